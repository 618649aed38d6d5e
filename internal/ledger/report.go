package ledger

// Report explains how a row was built, for the caller and for logs
type Report struct {
	// Missing lists sources that were expected live but absent or failed; their cells are 0
	Missing []string `json:"missing,omitempty"`

	// HistoryGap is set when a carry slot found no previous value
	HistoryGap bool `json:"history_gap"`

	// PriceUnknown is set when the primary asset's price was written as 0
	PriceUnknown bool        `json:"price_unknown"`
	PriceSource  PriceSource `json:"price_source"`

	// Unpriced lists non-primary assets valued at zero for lack of a price
	Unpriced []string `json:"unpriced,omitempty"`

	// Degraded mirrors the snapshot: at least one source failed
	Degraded bool `json:"degraded"`
}

// Clean reports whether every figure in the row is backed by live or recorded data
func (r Report) Clean() bool {
	return len(r.Missing) == 0 && !r.HistoryGap && !r.PriceUnknown && len(r.Unpriced) == 0 && !r.Degraded
}
