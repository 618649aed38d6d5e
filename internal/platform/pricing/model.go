package pricing

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Origin tells where a price came from
type Origin string

const (
	OriginFresh     Origin = "fresh"      // fetched during this request
	OriginLastKnown Origin = "last_known" // most recent successful fetch
	OriginNone      Origin = "none"       // never fetched; Value is zero and means "unknown"
)

// Price is one asset's spot price in the configured vs-currency
type Price struct {
	Value  decimal.Decimal `json:"value"`
	Origin Origin          `json:"origin"`
	At     time.Time       `json:"at"`
}

// Quote maps canonical asset symbol to price
type Quote map[string]Price

// Get returns the price for asset; absent assets come back with OriginNone
func (q Quote) Get(asset string) Price {
	if p, ok := q[normalize(asset)]; ok {
		if p.Origin == "" {
			p.Origin = OriginNone
		}
		return p
	}
	return Price{Value: decimal.Zero, Origin: OriginNone}
}

// Value returns the price or zero
func (q Quote) Value(asset string) decimal.Decimal {
	return q.Get(asset).Value
}

// Known reports whether a usable (positive) price exists
func (q Quote) Known(asset string) bool {
	p := q.Get(asset)
	return p.Origin != OriginNone && p.Value.IsPositive()
}

// Fresh reports whether the price was fetched during this request
func (q Quote) Fresh(asset string) bool {
	p := q.Get(asset)
	return p.Origin == OriginFresh && p.Value.IsPositive()
}

// Values flattens the quote to asset → value
func (q Quote) Values() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(q))
	for a, p := range q {
		out[a] = p.Value
	}
	return out
}

func normalize(asset string) string {
	return strings.ToUpper(strings.TrimSpace(asset))
}

// Info is the pricing block attached to balance responses
type Info struct {
	Asset     string          `json:"asset"`
	PriceUSD  decimal.Decimal `json:"price_usd"`
	Source    string          `json:"source"`
	Origin    Origin          `json:"origin"`
	Timestamp time.Time       `json:"timestamp"`
}

// Info describes the price of asset in q
func (q Quote) Info(asset string) Info {
	p := q.Get(asset)
	source := "unavailable"
	switch p.Origin {
	case OriginFresh:
		source = "coingecko"
	case OriginLastKnown:
		source = "last_known"
	}
	return Info{
		Asset:     normalize(asset),
		PriceUSD:  p.Value,
		Source:    source,
		Origin:    p.Origin,
		Timestamp: p.At,
	}
}
