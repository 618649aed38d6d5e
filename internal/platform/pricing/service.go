package pricing

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Markhorcapital/ledger-listener/pkg/logger"
)

// Config describes what gets priced and how
type Config struct {
	Enabled bool
	Timeout time.Duration

	// PrimaryAsset is priced by contract address when PrimaryContract is set
	PrimaryAsset    string
	PrimaryContract string
	VSCurrency      string

	// PriceIDs maps asset symbol to feed ID for SimplePrices
	PriceIDs map[string]string
}

// Service fetches spot prices and remembers the last good value per asset.
// A failed or disabled fetch never errors: callers get the last-known price
// or an explicit unknown.
type Service struct {
	config   Config
	feed     Feed
	store    Store
	observer Observer
	logger   *logger.Logger
	now      func() time.Time

	lastKnown atomic.Pointer[map[string]Price]
}

// NewService creates a new pricing service. feed, store and observer may be nil.
func NewService(config Config, feed Feed, store Store, observer Observer, log *logger.Logger) *Service {
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	if config.VSCurrency == "" {
		config.VSCurrency = "usd"
	}
	config.PrimaryAsset = normalize(config.PrimaryAsset)

	ids := make(map[string]string, len(config.PriceIDs))
	for asset, id := range config.PriceIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids[normalize(asset)] = id
		}
	}
	config.PriceIDs = ids

	s := &Service{
		config:   config,
		feed:     feed,
		store:    store,
		observer: observer,
		logger:   log.WithComponent("pricing"),
		now:      time.Now,
	}
	empty := map[string]Price{}
	s.lastKnown.Store(&empty)
	return s
}

// PrimaryAsset returns the configured primary asset
func (s *Service) PrimaryAsset() string {
	return s.config.PrimaryAsset
}

// TrackedAssets returns every asset this service can price, sorted
func (s *Service) TrackedAssets() []string {
	seen := map[string]bool{}
	var out []string
	if s.config.PrimaryAsset != "" {
		seen[s.config.PrimaryAsset] = true
		out = append(out, s.config.PrimaryAsset)
	}
	for asset := range s.config.PriceIDs {
		if !seen[asset] {
			seen[asset] = true
			out = append(out, asset)
		}
	}
	sort.Strings(out)
	return out
}

// Warm loads last-known prices from the store
func (s *Service) Warm(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	prices, err := s.store.LoadLastKnown(ctx)
	if err != nil {
		return err
	}
	s.remember(prices)
	s.logger.Info("last-known prices loaded", "assets", len(prices))
	return nil
}

// PrimaryQuote prices the primary asset alone
func (s *Service) PrimaryQuote(ctx context.Context) Info {
	return s.Quote(ctx, []string{s.config.PrimaryAsset}).Info(s.config.PrimaryAsset)
}

// LastKnown returns a copy of the last-known price map
func (s *Service) LastKnown() map[string]Price {
	cur := *s.lastKnown.Load()
	out := make(map[string]Price, len(cur))
	for k, v := range cur {
		out[k] = v
	}
	return out
}

// Quote prices the given assets. Assets the feed cannot price fall back to the
// last-known value, then to OriginNone.
func (s *Service) Quote(ctx context.Context, assets []string) Quote {
	wanted := dedupe(assets)
	if len(wanted) == 0 {
		return Quote{}
	}

	var fresh map[string]decimal.Decimal
	if s.config.Enabled && s.feed != nil {
		fresh = s.fetch(ctx, wanted)
	}

	now := s.now().UTC()
	if len(fresh) > 0 {
		update := make(map[string]Price, len(fresh))
		for asset, v := range fresh {
			update[asset] = Price{Value: v, Origin: OriginLastKnown, At: now}
		}
		s.remember(update)
		s.persist(ctx)
	}

	known := *s.lastKnown.Load()
	quote := make(Quote, len(wanted))
	for _, asset := range wanted {
		var p Price
		if v, ok := fresh[asset]; ok {
			p = Price{Value: v, Origin: OriginFresh, At: now}
		} else if last, ok := known[asset]; ok && last.Value.IsPositive() {
			p = Price{Value: last.Value, Origin: OriginLastKnown, At: last.At}
		} else {
			p = Price{Value: decimal.Zero, Origin: OriginNone}
		}
		quote[asset] = p

		if s.observer != nil {
			outcome := string(p.Origin)
			if !s.config.Enabled {
				outcome = "disabled"
			}
			s.observer.ObservePrice(outcome)
		}
	}

	return quote
}

// fetch queries the feed under the configured timeout. Partial results are kept.
func (s *Service) fetch(ctx context.Context, assets []string) map[string]decimal.Decimal {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		out = map[string]decimal.Decimal{}
	)
	set := func(asset string, v decimal.Decimal) {
		if v.IsNegative() {
			return
		}
		mu.Lock()
		out[asset] = v
		mu.Unlock()
	}

	byID := map[string][]string{}
	for _, asset := range assets {
		if asset == s.config.PrimaryAsset && s.config.PrimaryContract != "" {
			wg.Add(1)
			go func() {
				defer wg.Done()
				v, err := s.feed.TokenPrice(ctx, s.config.PrimaryContract, s.config.VSCurrency)
				if err != nil {
					s.logger.Warn("token price fetch failed", "asset", asset, "error", err)
					return
				}
				set(asset, v)
			}()
			continue
		}
		if id, ok := s.config.PriceIDs[asset]; ok {
			byID[id] = append(byID[id], asset)
		}
	}

	if len(byID) > 0 {
		ids := make([]string, 0, len(byID))
		for id := range byID {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		wg.Add(1)
		go func() {
			defer wg.Done()
			prices, err := s.feed.SimplePrices(ctx, ids, s.config.VSCurrency)
			if err != nil {
				s.logger.Warn("simple price fetch failed", "ids", ids, "error", err)
				return
			}
			for id, v := range prices {
				for _, asset := range byID[id] {
					set(asset, v)
				}
			}
		}()
	}

	wg.Wait()
	return out
}

// remember merges prices into the last-known map without losing concurrent updates
func (s *Service) remember(prices map[string]Price) {
	for {
		cur := s.lastKnown.Load()
		next := make(map[string]Price, len(*cur)+len(prices))
		for k, v := range *cur {
			next[k] = v
		}
		for k, v := range prices {
			if v.Value.IsPositive() {
				v.Origin = OriginLastKnown
				next[normalize(k)] = v
			}
		}
		if s.lastKnown.CompareAndSwap(cur, &next) {
			return
		}
	}
}

func (s *Service) persist(ctx context.Context) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveLastKnown(context.WithoutCancel(ctx), s.LastKnown()); err != nil {
		s.logger.Warn("failed to persist last-known prices", "error", err)
	}
}

func dedupe(assets []string) []string {
	seen := make(map[string]bool, len(assets))
	out := make([]string, 0, len(assets))
	for _, a := range assets {
		a = normalize(a)
		if a == "" || seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out
}
