package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/Markhorcapital/ledger-listener/internal/platform/pricing"
	"github.com/Markhorcapital/ledger-listener/pkg/logger"
)

// Comments written to the comment column
const (
	CommentSkewedQuote   = "skewed toward quote"
	CommentSkewedPrimary = "skewed toward primary asset"
	CommentBalanced      = "balanced"
	CommentNoPrice       = "price unavailable"
)

// PriceSource tells which rule produced the price written to a row
type PriceSource string

const (
	PriceFresh       PriceSource = "fresh"
	PricePreviousRow PriceSource = "previous_row"
	PriceLastKnown   PriceSource = "last_known"
	PricePegged      PriceSource = "pegged"
	PriceNone        PriceSource = "none"
)

var (
	hundred = decimal.NewFromInt(100)
	fifty   = decimal.NewFromInt(50)
	two     = decimal.NewFromInt(2)
)

// Valuation is the USD split between the primary asset and the quote side
type Valuation struct {
	AssetUSD  decimal.Decimal
	QuoteUSD  decimal.Decimal
	TotalUSD  decimal.Decimal
	Imbalance decimal.Decimal
	Comment   string
}

// Value computes total, imbalance and comment. When the primary asset is held
// but its price is unknown, the comment says so and imbalance stays 0.
func Value(assetUSD, quoteUSD decimal.Decimal, priceKnown, primaryHeld bool) Valuation {
	v := Valuation{
		AssetUSD:  assetUSD,
		QuoteUSD:  quoteUSD,
		TotalUSD:  assetUSD.Add(quoteUSD),
		Imbalance: decimal.Zero,
	}

	if !priceKnown && primaryHeld {
		v.Comment = CommentNoPrice
		return v
	}
	if !v.TotalUSD.IsPositive() {
		return v
	}

	v.Imbalance = Imbalance(quoteUSD, v.TotalUSD)
	switch quoteUSD.Cmp(assetUSD) {
	case 1:
		v.Comment = CommentSkewedQuote
	case -1:
		v.Comment = CommentSkewedPrimary
	default:
		v.Comment = CommentBalanced
	}
	return v
}

// Imbalance returns |quote share - 50| * 2 in percent, clamped to [0, 100] and
// rounded to 2 dp. A non-positive total yields 0.
func Imbalance(quoteUSD, totalUSD decimal.Decimal) decimal.Decimal {
	if !totalUSD.IsPositive() {
		return decimal.Zero
	}
	share := quoteUSD.Div(totalUSD).Mul(hundred)
	imb := share.Sub(fifty).Abs().Mul(two)
	if imb.GreaterThan(hundred) {
		imb = hundred
	}
	if imb.IsNegative() {
		imb = decimal.Zero
	}
	return imb.Round(2)
}

// resolvePrice picks the price of asset: a fresh quote, then the previous
// row's positive price, then the provider's last-known value.
func resolvePrice(asset string, quote pricing.Quote, prev *Row, log *logger.Logger) (decimal.Decimal, PriceSource) {
	if quote.Fresh(asset) {
		return quote.Value(asset), PriceFresh
	}

	column := cellName(prefixPrice, asset)
	v, found, err := prev.Decimal(column)
	if err != nil {
		log.Warn("unparsable price in previous row", "column", column, "error", err)
	}
	if found && err == nil && v.IsPositive() {
		return v, PricePreviousRow
	}

	if quote.Known(asset) {
		return quote.Value(asset), PriceLastKnown
	}
	return decimal.Zero, PriceNone
}

func formatAmount(v decimal.Decimal) string {
	return v.String()
}

func formatUSD(v decimal.Decimal) string {
	return v.StringFixed(2)
}
