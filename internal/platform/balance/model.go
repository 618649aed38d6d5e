package balance

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// consistencyTolerance absorbs upstream rounding when checking total == free + used
var consistencyTolerance = decimal.New(1, -8)

// AccountDescriptor is an exchange account as held by the credential store
type AccountDescriptor struct {
	AccountID string
	Exchange  string
	// VenueID is the gateway id the exchange display name maps to; empty falls back to Exchange
	VenueID   string
	Name      string
	APIKey    string
	APISecret string
	UID       string
	Active    bool

	// CredentialErr is set when the stored secret could not be decrypted
	CredentialErr error
}

// HasCredentials reports whether the account can be queried live
func (a AccountDescriptor) HasCredentials() bool {
	return a.APIKey != "" && a.APISecret != ""
}

// Key returns the aggregation key of the account. Accounts are keyed by venue id so
// that every display name mapped to one venue lands in the same ledger group.
func (a AccountDescriptor) Key() SourceKey {
	venue := a.VenueID
	if venue == "" {
		venue = a.Exchange
	}
	return NewSourceKey(venue, a.AccountID)
}

// WalletDescriptor is a labelled on-chain address with the assets tracked on it
type WalletDescriptor struct {
	Chain   string
	Label   string
	Address string
	Assets  []string
}

// Key returns the aggregation key of the wallet
func (w WalletDescriptor) Key() SourceKey {
	return NewSourceKey(w.Chain, w.Label)
}

// SourceKey identifies one account or wallet within its venue (exchange or chain)
type SourceKey struct {
	Venue  string
	Source string
}

// NewSourceKey normalizes the venue to lowercase; the source ID is kept as given, minus surrounding space.
func NewSourceKey(venue, source string) SourceKey {
	return SourceKey{
		Venue:  strings.ToLower(strings.TrimSpace(venue)),
		Source: strings.TrimSpace(source),
	}
}

func (k SourceKey) String() string {
	return k.Venue + "/" + k.Source
}

// NormalizeAsset returns the canonical symbol form used for every comparison
func NormalizeAsset(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Entry is the balance of one asset in one source
type Entry struct {
	Asset string          `json:"asset"`
	Free  decimal.Decimal `json:"free"`
	Used  decimal.Decimal `json:"used"`
	Total decimal.Decimal `json:"total"`
}

// NewEntry builds an entry with a normalized symbol. A missing total is derived from free + used.
func NewEntry(asset string, free, used, total decimal.Decimal) Entry {
	if total.IsZero() && (!free.IsZero() || !used.IsZero()) {
		total = free.Add(used)
	}
	return Entry{
		Asset: NormalizeAsset(asset),
		Free:  free,
		Used:  used,
		Total: total,
	}
}

// Consistent reports whether total == free + used within rounding tolerance
func (e Entry) Consistent() bool {
	return e.Total.Sub(e.Free.Add(e.Used)).Abs().LessThanOrEqual(consistencyTolerance)
}

// Balances maps canonical asset symbol to its entry
type Balances map[string]Entry

// Add merges an entry into the map, summing with any existing entry for the asset
func (b Balances) Add(e Entry) {
	e.Asset = NormalizeAsset(e.Asset)
	if e.Asset == "" {
		return
	}
	if cur, ok := b[e.Asset]; ok {
		e = Entry{
			Asset: e.Asset,
			Free:  cur.Free.Add(e.Free),
			Used:  cur.Used.Add(e.Used),
			Total: cur.Total.Add(e.Total),
		}
	}
	b[e.Asset] = e
}

// Total returns the total for an asset, zero when absent
func (b Balances) Total(asset string) decimal.Decimal {
	if e, ok := b[NormalizeAsset(asset)]; ok {
		return e.Total
	}
	return decimal.Zero
}

// Assets returns the symbols in sorted order
func (b Balances) Assets() []string {
	out := make([]string, 0, len(b))
	for a := range b {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// NonZero drops assets whose total is zero
func (b Balances) NonZero() Balances {
	out := make(Balances, len(b))
	for a, e := range b {
		if !e.Total.IsZero() {
			out[a] = e
		}
	}
	return out
}

// FetchResult is the outcome of one gateway call. When Err is set Balances is empty.
type FetchResult struct {
	Key       SourceKey
	Name      string
	Address   string
	Balances  Balances
	Err       error
	Attempts  int
	FetchedAt time.Time
}

// OK reports whether the fetch succeeded
func (r FetchResult) OK() bool {
	return r.Err == nil
}

// ErrorString returns the error message or "" on success
func (r FetchResult) ErrorString() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Snapshot is the aggregated view of one fetch batch: venue → source → asset.
type Snapshot struct {
	ID      uuid.UUID
	TakenAt time.Time

	Sources       map[SourceKey]Balances
	Names         map[SourceKey]string
	TotalsByVenue map[string]map[string]decimal.Decimal
	TotalsOverall map[string]decimal.Decimal

	// Failed lists sources whose fetch errored; they contribute zero everywhere.
	Failed []SourceKey
}

// Degraded reports whether any source failed, i.e. totals may understate holdings
func (s *Snapshot) Degraded() bool {
	return len(s.Failed) > 0
}

// IsFailed reports whether the source errored in this batch
func (s *Snapshot) IsFailed(key SourceKey) bool {
	for _, k := range s.Failed {
		if k == key {
			return true
		}
	}
	return false
}

// Has reports whether the source took part in the batch (successfully or not)
func (s *Snapshot) Has(key SourceKey) bool {
	_, ok := s.Sources[key]
	return ok
}

// Total returns a source-level total; absent venue, source or asset is zero
func (s *Snapshot) Total(key SourceKey, asset string) decimal.Decimal {
	return s.Sources[key].Total(asset)
}

// VenueTotal returns a venue-level total; absent keys are zero
func (s *Snapshot) VenueTotal(venue, asset string) decimal.Decimal {
	return s.TotalsByVenue[strings.ToLower(strings.TrimSpace(venue))][NormalizeAsset(asset)]
}

// OverallTotal returns the network-wide total for an asset; absent is zero
func (s *Snapshot) OverallTotal(asset string) decimal.Decimal {
	return s.TotalsOverall[NormalizeAsset(asset)]
}

// Venues returns venue names in sorted order
func (s *Snapshot) Venues() []string {
	seen := make(map[string]bool)
	for k := range s.Sources {
		seen[k.Venue] = true
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// SourcesOf returns the keys of one venue in sorted order
func (s *Snapshot) SourcesOf(venue string) []SourceKey {
	venue = strings.ToLower(strings.TrimSpace(venue))
	var out []SourceKey
	for k := range s.Sources {
		if k.Venue == venue {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}
