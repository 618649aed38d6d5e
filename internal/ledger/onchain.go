package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Markhorcapital/ledger-listener/internal/platform/balance"
	"github.com/Markhorcapital/ledger-listener/internal/platform/pricing"
	"github.com/Markhorcapital/ledger-listener/pkg/logger"
)

// OnchainBuilder synthesizes the next on-chain ledger row. Wallets are always
// queried live, so nothing is carried forward except prices.
type OnchainBuilder struct {
	Layout *OnchainLayout
	Logger *logger.Logger
}

// NewOnchainBuilder creates a new on-chain row builder
func NewOnchainBuilder(layout *OnchainLayout, log *logger.Logger) *OnchainBuilder {
	return &OnchainBuilder{
		Layout: layout,
		Logger: log.WithComponent("ledger.onchain"),
	}
}

// Build produces the row for now. Failed wallets count as zero and are reported as missing.
func (b *OnchainBuilder) Build(snap *balance.Snapshot, quote pricing.Quote, prev *Row, now time.Time) (*Row, Report) {
	if snap == nil {
		snap = balance.Aggregate(nil, now)
	}

	var report Report
	report.Degraded = snap.Degraded()

	cells := []Cell{{Column: ColDate, Value: now.UTC().Format("2006-01-02")}}
	allChains := make(map[string]decimal.Decimal, len(b.Layout.Assets))

	for _, chain := range b.Layout.Chains {
		chainTotals := make(map[string]decimal.Decimal, len(chain.Assets))

		for _, wallet := range chain.Wallets {
			key := balance.NewSourceKey(chain.Chain, wallet)
			live := snap.Has(key) && !snap.IsFailed(key)
			if !live {
				report.Missing = append(report.Missing, key.String())
				b.Logger.Warn("wallet missing from snapshot, writing zero", "chain", chain.Chain, "wallet", wallet)
			}
			for _, asset := range chain.Assets {
				v := decimal.Zero
				if live {
					v = snap.Total(key, asset)
				}
				chainTotals[asset] = chainTotals[asset].Add(v)
				cells = append(cells, Cell{Column: cellName(chain.Chain+"."+wallet, asset), Value: formatAmount(v)})
			}
		}

		for _, asset := range chain.Assets {
			allChains[asset] = allChains[asset].Add(chainTotals[asset])
			cells = append(cells, Cell{Column: cellName(chain.Chain+"."+chainTotal, asset), Value: formatAmount(chainTotals[asset])})
		}
	}

	for _, asset := range b.Layout.Assets {
		cells = append(cells, Cell{Column: cellName(prefixAllChains, asset), Value: formatAmount(allChains[asset])})
	}

	primary := b.Layout.PrimaryAsset
	assetUSD := decimal.Zero
	quoteUSD := decimal.Zero

	for _, asset := range b.Layout.Assets {
		price, source := resolvePrice(asset, quote, prev, b.Logger)
		if source == PriceNone && asset != primary && b.Layout.IsPegged(asset) {
			price, source = decimal.NewFromInt(1), PricePegged
		}
		cells = append(cells, Cell{Column: cellName(prefixPrice, asset), Value: formatAmount(price)})

		held := allChains[asset]
		if asset == primary {
			report.PriceSource = source
			report.PriceUnknown = source == PriceNone
			assetUSD = held.Mul(price)
			continue
		}
		if source == PriceNone && !held.IsZero() {
			report.Unpriced = append(report.Unpriced, asset)
			b.Logger.Warn("no price for asset, excluded from quote valuation", "asset", asset)
		}
		quoteUSD = quoteUSD.Add(held.Mul(price))
	}

	held := allChains[primary]
	val := Value(assetUSD, quoteUSD, !report.PriceUnknown, held.IsPositive())

	cells = append(cells,
		Cell{Column: ColAssetUSDValuation, Value: formatUSD(val.AssetUSD)},
		Cell{Column: ColQuoteEquivalentUSD, Value: formatUSD(val.QuoteUSD)},
		Cell{Column: ColCumulativeUSDValuation, Value: formatUSD(val.TotalUSD)},
		Cell{Column: ColImbalancePct, Value: val.Imbalance.StringFixed(2)},
		Cell{Column: ColComment, Value: val.Comment},
	)

	return NewRow(cells), report
}
