package ledger

import (
	"fmt"
	"strings"

	"github.com/Markhorcapital/ledger-listener/pkg/config"
)

// SlotKind selects where a slot's figures come from
type SlotKind string

const (
	SlotLive  SlotKind = "live"  // queried from the exchange this run
	SlotCarry SlotKind = "carry" // copied forward from the previous row
	SlotTotal SlotKind = "total" // running sum of the group's live and carry slots
)

// IsValid checks if the slot kind is known
func (k SlotKind) IsValid() bool {
	switch k {
	case SlotLive, SlotCarry, SlotTotal:
		return true
	}
	return false
}

// Slot is one column group inside an exchange block
type Slot struct {
	Kind    SlotKind
	Account string
	Column  string
}

// Group is one exchange block of the CEX sheet
type Group struct {
	Venue  string
	Name   string
	Assets []string
	Slots  []Slot
}

// CEXLayout is the column layout of the exchange ledger
type CEXLayout struct {
	PrimaryAsset string
	QuoteAssets  []string
	Groups       []Group
}

// NewCEXLayout builds the layout from configuration
func NewCEXLayout(cfg config.CEXLedger) (*CEXLayout, error) {
	l := &CEXLayout{
		PrimaryAsset: normalize(cfg.PrimaryAsset),
		QuoteAssets:  normalizeAll(cfg.QuoteAssets),
	}
	if l.PrimaryAsset == "" {
		return nil, ErrNoPrimaryAsset
	}

	for _, g := range cfg.Groups {
		group := Group{
			Venue:  strings.ToLower(strings.TrimSpace(g.Venue)),
			Name:   g.Venue,
			Assets: normalizeAll(g.Assets),
		}
		for _, s := range g.Slots {
			slot := Slot{
				Kind:    SlotKind(strings.ToLower(s.Kind)),
				Account: strings.TrimSpace(s.Account),
				Column:  strings.TrimSpace(s.Column),
			}
			if !slot.Kind.IsValid() {
				return nil, fmt.Errorf("%w: %q", ErrInvalidSlotKind, s.Kind)
			}
			group.Slots = append(group.Slots, slot)
		}
		l.Groups = append(l.Groups, group)
	}

	return l, nil
}

// TrackedAssets returns the primary asset followed by every group and quote asset, first seen first
func (l *CEXLayout) TrackedAssets() []string {
	seen := map[string]bool{l.PrimaryAsset: true}
	out := []string{l.PrimaryAsset}
	add := func(assets []string) {
		for _, a := range assets {
			if !seen[a] {
				seen[a] = true
				out = append(out, a)
			}
		}
	}
	for _, g := range l.Groups {
		add(g.Assets)
	}
	add(l.QuoteAssets)
	return out
}

// Columns returns the header of the CEX sheet
func (l *CEXLayout) Columns() []string {
	cols := []string{ColDate}
	for _, g := range l.Groups {
		for _, s := range g.Slots {
			for _, a := range g.Assets {
				cols = append(cols, cellName(s.Column, a))
			}
		}
	}
	for _, a := range l.TrackedAssets() {
		cols = append(cols, cellName(prefixCumulative, a))
	}
	return append(cols,
		ColCumulativeQuote,
		cellName(prefixPrice, l.PrimaryAsset),
		ColAssetUSDValuation,
		ColCumulativeUSDValuation,
		ColImbalancePct,
		ColComment,
	)
}

// ChainColumns lists the wallets and assets written for one chain
type ChainColumns struct {
	Chain   string
	Wallets []string
	Assets  []string
}

// OnchainLayout is the column layout of the on-chain ledger
type OnchainLayout struct {
	PrimaryAsset string
	Assets       []string
	Pegged       []string
	Chains       []ChainColumns
}

// NewOnchainLayout builds the layout from the ledger section and the chains it covers.
// Without explicit assets, every token of every chain is tracked.
func NewOnchainLayout(cfg config.OnchainLedger, chains []config.Chain) (*OnchainLayout, error) {
	l := &OnchainLayout{
		PrimaryAsset: normalize(cfg.PrimaryAsset),
		Pegged:       normalizeAll(cfg.Pegged),
	}
	if l.PrimaryAsset == "" {
		return nil, ErrNoPrimaryAsset
	}

	tracked := normalizeAll(cfg.Assets)
	if len(tracked) == 0 {
		for _, c := range chains {
			tracked = append(tracked, normalizeAll(c.Symbols())...)
		}
	}
	l.Assets = dedupe(append([]string{l.PrimaryAsset}, tracked...))

	isTracked := make(map[string]bool, len(l.Assets))
	for _, a := range l.Assets {
		isTracked[a] = true
	}

	for _, c := range chains {
		cc := ChainColumns{Chain: strings.ToLower(c.Name)}
		for _, w := range c.Wallets {
			cc.Wallets = append(cc.Wallets, w.Label)
		}
		for _, a := range normalizeAll(c.Symbols()) {
			if isTracked[a] {
				cc.Assets = append(cc.Assets, a)
			}
		}
		l.Chains = append(l.Chains, cc)
	}

	return l, nil
}

// IsPegged reports whether an asset is valued at 1 when no price is known
func (l *OnchainLayout) IsPegged(asset string) bool {
	for _, p := range l.Pegged {
		if p == asset {
			return true
		}
	}
	return false
}

// Columns returns the header of the on-chain sheet
func (l *OnchainLayout) Columns() []string {
	cols := []string{ColDate}
	for _, c := range l.Chains {
		for _, w := range c.Wallets {
			for _, a := range c.Assets {
				cols = append(cols, cellName(c.Chain+"."+w, a))
			}
		}
		for _, a := range c.Assets {
			cols = append(cols, cellName(c.Chain+"."+chainTotal, a))
		}
	}
	for _, a := range l.Assets {
		cols = append(cols, cellName(prefixAllChains, a))
	}
	for _, a := range l.Assets {
		cols = append(cols, cellName(prefixPrice, a))
	}
	return append(cols,
		ColAssetUSDValuation,
		ColQuoteEquivalentUSD,
		ColCumulativeUSDValuation,
		ColImbalancePct,
		ColComment,
	)
}

// Column names shared by both sheets
const (
	ColDate                   = "date"
	ColCumulativeQuote        = "cumulative_quote"
	ColAssetUSDValuation      = "asset_usd_valuation"
	ColQuoteEquivalentUSD     = "quote_equivalent_usd"
	ColCumulativeUSDValuation = "cumulative_usd_valuation"
	ColImbalancePct           = "imbalance_pct"
	ColComment                = "comment"

	prefixCumulative = "cumulative"
	prefixPrice      = "price"
	prefixAllChains  = "all_chains"
	chainTotal       = "total"
)

func cellName(prefix, asset string) string {
	return prefix + "." + asset
}

func normalize(asset string) string {
	return strings.ToUpper(strings.TrimSpace(asset))
}

func normalizeAll(assets []string) []string {
	out := make([]string, 0, len(assets))
	for _, a := range assets {
		if a = normalize(a); a != "" {
			out = append(out, a)
		}
	}
	return dedupe(out)
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
