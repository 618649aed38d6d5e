package balance

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Aggregate groups fetch results by venue and source and rolls totals up to
// venue level and network level. Failed sources are recorded with an empty
// balance map and contribute zero to every total.
func Aggregate(results []FetchResult, takenAt time.Time) *Snapshot {
	snap := &Snapshot{
		ID:            uuid.New(),
		TakenAt:       takenAt,
		Sources:       make(map[SourceKey]Balances, len(results)),
		Names:         make(map[SourceKey]string, len(results)),
		TotalsByVenue: make(map[string]map[string]decimal.Decimal),
		TotalsOverall: make(map[string]decimal.Decimal),
	}

	for _, r := range results {
		key := NewSourceKey(r.Key.Venue, r.Key.Source)

		if _, ok := snap.Sources[key]; !ok {
			snap.Sources[key] = make(Balances)
		}
		if r.Name != "" {
			snap.Names[key] = r.Name
		}

		if !r.OK() {
			if !snap.IsFailed(key) {
				snap.Failed = append(snap.Failed, key)
			}
			continue
		}

		for _, e := range r.Balances {
			snap.Sources[key].Add(e)
		}
	}

	// A key that failed anywhere in the batch is treated as failed outright.
	for _, key := range snap.Failed {
		snap.Sources[key] = make(Balances)
	}

	for key, balances := range snap.Sources {
		venueTotals, ok := snap.TotalsByVenue[key.Venue]
		if !ok {
			venueTotals = make(map[string]decimal.Decimal)
			snap.TotalsByVenue[key.Venue] = venueTotals
		}
		for asset, e := range balances {
			venueTotals[asset] = venueTotals[asset].Add(e.Total)
			snap.TotalsOverall[asset] = snap.TotalsOverall[asset].Add(e.Total)
		}
	}

	return snap
}
