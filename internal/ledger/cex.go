package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Markhorcapital/ledger-listener/internal/platform/balance"
	"github.com/Markhorcapital/ledger-listener/internal/platform/pricing"
	"github.com/Markhorcapital/ledger-listener/pkg/logger"
	"github.com/Markhorcapital/ledger-listener/pkg/money"
)

// CEXBuilder synthesizes the next exchange ledger row
type CEXBuilder struct {
	Layout *CEXLayout
	Logger *logger.Logger
}

// NewCEXBuilder creates a new CEX row builder
func NewCEXBuilder(layout *CEXLayout, log *logger.Logger) *CEXBuilder {
	return &CEXBuilder{
		Layout: layout,
		Logger: log.WithComponent("ledger.cex"),
	}
}

// Build produces the row for now from a snapshot, a price quote and the
// previously recorded row (nil on the first run). Every layout column is
// present; anything that cannot be determined is written as 0.
func (b *CEXBuilder) Build(snap *balance.Snapshot, quote pricing.Quote, prev *Row, now time.Time) (*Row, Report) {
	if snap == nil {
		snap = balance.Aggregate(nil, now)
	}

	var report Report
	report.Degraded = snap.Degraded()

	cells := []Cell{{Column: ColDate, Value: now.UTC().Format("2006-01-02")}}
	cumulative := make(map[string]decimal.Decimal)

	for _, group := range b.Layout.Groups {
		running := make(map[string]decimal.Decimal, len(group.Assets))

		for _, slot := range group.Slots {
			switch slot.Kind {
			case SlotLive:
				key := balance.NewSourceKey(group.Venue, slot.Account)
				live := snap.Has(key) && !snap.IsFailed(key)
				if !live {
					report.Missing = append(report.Missing, key.String())
					b.Logger.Warn("live account missing from snapshot, writing zero",
						"venue", group.Venue,
						"account", slot.Account,
						"failed", snap.IsFailed(key))
				}
				for _, asset := range group.Assets {
					v := decimal.Zero
					if live {
						v = snap.Total(key, asset)
					}
					running[asset] = running[asset].Add(v)
					cells = append(cells, Cell{Column: cellName(slot.Column, asset), Value: formatAmount(v)})
				}

			case SlotCarry:
				for _, asset := range group.Assets {
					v := b.carry(prev, cellName(slot.Column, asset), &report)
					running[asset] = running[asset].Add(v)
					cells = append(cells, Cell{Column: cellName(slot.Column, asset), Value: formatAmount(v)})
				}

			case SlotTotal:
				for _, asset := range group.Assets {
					cells = append(cells, Cell{Column: cellName(slot.Column, asset), Value: formatAmount(running[asset])})
				}
			}
		}

		for asset, v := range running {
			cumulative[asset] = cumulative[asset].Add(v)
		}
	}

	for _, asset := range b.Layout.TrackedAssets() {
		cells = append(cells, Cell{Column: cellName(prefixCumulative, asset), Value: formatAmount(cumulative[asset])})
	}

	quotes := make([]decimal.Decimal, 0, len(b.Layout.QuoteAssets))
	for _, q := range b.Layout.QuoteAssets {
		quotes = append(quotes, cumulative[q])
	}
	cumulativeQuote := money.Sum(quotes...)

	primary := b.Layout.PrimaryAsset
	price, source := resolvePrice(primary, quote, prev, b.Logger)
	report.PriceSource = source
	report.PriceUnknown = source == PriceNone
	if report.PriceUnknown {
		b.Logger.Warn("no price for primary asset, valuing at zero", "asset", primary)
	}

	held := cumulative[primary]
	val := Value(held.Mul(price), cumulativeQuote, !report.PriceUnknown, held.IsPositive())

	cells = append(cells,
		Cell{Column: ColCumulativeQuote, Value: formatAmount(cumulativeQuote)},
		Cell{Column: cellName(prefixPrice, primary), Value: formatAmount(price)},
		Cell{Column: ColAssetUSDValuation, Value: formatUSD(val.AssetUSD)},
		Cell{Column: ColCumulativeUSDValuation, Value: formatUSD(val.TotalUSD)},
		Cell{Column: ColImbalancePct, Value: val.Imbalance.StringFixed(2)},
		Cell{Column: ColComment, Value: val.Comment},
	)

	return NewRow(cells), report
}

// carry reads a forward-filled value from the previous row. Absent or
// unparsable cells become zero and mark a history gap.
func (b *CEXBuilder) carry(prev *Row, column string, report *Report) decimal.Decimal {
	v, found, err := prev.Decimal(column)
	switch {
	case err != nil:
		report.HistoryGap = true
		b.Logger.Warn("unparsable carry-forward value, writing zero", "column", column, "error", err)
		return decimal.Zero
	case !found:
		report.HistoryGap = true
		b.Logger.Warn("no previous value to carry forward, writing zero", "column", column)
		return decimal.Zero
	}
	return v
}
