package pricing

import (
	"context"

	"github.com/shopspring/decimal"
)

// Feed is an external spot price source
type Feed interface {
	// TokenPrice prices an ERC-20 contract on Ethereum
	TokenPrice(ctx context.Context, contract, vsCurrency string) (decimal.Decimal, error)

	// SimplePrices prices feed IDs; missing IDs are absent from the result
	SimplePrices(ctx context.Context, ids []string, vsCurrency string) (map[string]decimal.Decimal, error)
}

// Store persists last-known prices across restarts
type Store interface {
	SaveLastKnown(ctx context.Context, prices map[string]Price) error
	LoadLastKnown(ctx context.Context) (map[string]Price, error)
}

// Observer receives one call per priced asset with the origin of its price
type Observer interface {
	ObservePrice(outcome string)
}
