package htx

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/Markhorcapital/ledger-listener/internal/platform/balance"
	"github.com/Markhorcapital/ledger-listener/pkg/retrier"
)

// HTX error codes that no retry can fix
var permanentCodes = map[string]bool{
	"api-signature-not-valid": true,
	"invalid-access-key-id":   true,
	"api-key-invalid":         true,
	"login-required":          true,
	"forbidden-ip":            true,
}

// Gateway reads spot balances of one HTX account
type Gateway struct {
	client  *Client
	limiter *rate.Limiter
}

// NewGateway creates a gateway over client. limiter may be nil.
func NewGateway(client *Client, limiter *rate.Limiter) *Gateway {
	return &Gateway{client: client, limiter: limiter}
}

// FetchBalances returns every currency with a non-zero total. The trade
// line maps to free and the frozen line to used.
func (g *Gateway) FetchBalances(ctx context.Context) (balance.Balances, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrap(err, "rate limiter")
		}
	}

	lines, err := g.client.SpotBalances(ctx)
	if err != nil {
		return nil, classify(err)
	}

	out := balance.Balances{}
	for _, line := range lines {
		amount, err := parseAmount(line.Balance)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid %s balance for %s", line.Type, line.Currency)
		}
		if amount.IsZero() {
			continue
		}

		switch line.Type {
		case "trade":
			out.Add(balance.NewEntry(line.Currency, amount, decimal.Zero, amount))
		case "frozen":
			out.Add(balance.NewEntry(line.Currency, decimal.Zero, amount, amount))
		}
	}

	return out, nil
}

func classify(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) && permanentCodes[apiErr.Code] {
		return retrier.Permanent(errors.Wrap(err, "htx rejected credentials"))
	}
	if errors.Is(err, ErrNoSpotAccount) {
		return retrier.Permanent(err)
	}
	return errors.Wrap(err, "htx balance request failed")
}

func parseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

var _ balance.Gateway = (*Gateway)(nil)
