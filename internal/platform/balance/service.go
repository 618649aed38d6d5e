package balance

import (
	"context"
	"fmt"
	"time"

	"github.com/Markhorcapital/ledger-listener/internal/platform/pricing"
	"github.com/Markhorcapital/ledger-listener/pkg/logger"
)

// Pricer prices a set of assets; it never fails
type Pricer interface {
	Quote(ctx context.Context, assets []string) pricing.Quote
}

// Report is the outcome of one request-level fetch
type Report struct {
	Snapshot *Snapshot
	Results  []FetchResult
	Quote    pricing.Quote

	// Skipped lists active accounts that have no credentials and were not queried
	Skipped []SourceKey
}

// Succeeded returns the number of sources fetched without error
func (r *Report) Succeeded() int {
	n := 0
	for _, res := range r.Results {
		if res.OK() {
			n++
		}
	}
	return n
}

// Failed returns the number of sources that errored
func (r *Report) Failed() int {
	return len(r.Results) - r.Succeeded()
}

// Service runs the balance use cases: load sources, fan out, aggregate, price
type Service struct {
	accounts     AccountRepository
	venues       VenueResolver
	wallets      WalletSource
	factory      GatewayFactory
	orchestrator *Orchestrator
	pricer       Pricer
	cexAssets    []string
	chainAssets  []string
	logger       *logger.Logger
	now          func() time.Time
}

// ServiceDeps groups the collaborators of Service
type ServiceDeps struct {
	Accounts     AccountRepository
	Venues       VenueResolver
	Wallets      WalletSource
	Factory      GatewayFactory
	Orchestrator *Orchestrator
	Pricer       Pricer

	// CEXAssets and ChainAssets are priced alongside each snapshot
	CEXAssets   []string
	ChainAssets []string
}

// NewService creates a new balance service
func NewService(deps ServiceDeps, log *logger.Logger) *Service {
	return &Service{
		accounts:     deps.Accounts,
		venues:       deps.Venues,
		wallets:      deps.Wallets,
		factory:      deps.Factory,
		orchestrator: deps.Orchestrator,
		pricer:       deps.Pricer,
		cexAssets:    deps.CEXAssets,
		chainAssets:  deps.ChainAssets,
		logger:       log.WithComponent("balance"),
		now:          time.Now,
	}
}

// CEXSnapshot fetches every active exchange account.
// Returns ErrNoActiveSources when there are no active accounts at all; accounts
// skipped for lack of credentials still produce a report.
func (s *Service) CEXSnapshot(ctx context.Context) (*Report, error) {
	accounts, err := s.accounts.GetActiveAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load active accounts: %w", err)
	}

	jobs := make([]Job, 0, len(accounts))
	var skipped []SourceKey
	active := 0
	for _, acc := range accounts {
		if !acc.Active {
			continue
		}
		active++
		if acc.VenueID == "" && s.venues != nil {
			acc.VenueID = s.venues.VenueID(acc.Exchange)
		}
		if acc.CredentialErr != nil {
			jobs = append(jobs, Job{Key: acc.Key(), Name: acc.Name, Err: acc.CredentialErr})
			continue
		}
		if !acc.HasCredentials() {
			skipped = append(skipped, acc.Key())
			s.logger.Debug("account has no credentials, skipping", "account_id", acc.AccountID, "exchange", acc.Exchange)
			continue
		}
		gw, err := s.factory.ForAccount(acc)
		jobs = append(jobs, Job{
			Key:     acc.Key(),
			Name:    acc.Name,
			Gateway: gw,
			Err:     err,
		})
	}

	if active == 0 {
		return nil, ErrNoActiveSources
	}

	report := s.collect(ctx, jobs, s.cexAssets)
	report.Skipped = skipped
	return report, nil
}

// ChainSnapshot fetches every configured wallet.
// Returns ErrNoActiveSources when no wallets are configured.
func (s *Service) ChainSnapshot(ctx context.Context) (*Report, error) {
	wallets := s.wallets.Wallets()
	if len(wallets) == 0 {
		return nil, ErrNoActiveSources
	}

	jobs := make([]Job, 0, len(wallets))
	for _, w := range wallets {
		gw, err := s.factory.ForWallet(w)
		jobs = append(jobs, Job{
			Key:     w.Key(),
			Name:    w.Label,
			Address: w.Address,
			Gateway: gw,
			Err:     err,
		})
	}

	return s.collect(ctx, jobs, s.chainAssets), nil
}

// Quote prices assets without fetching balances
func (s *Service) Quote(ctx context.Context, assets []string) pricing.Quote {
	if s.pricer == nil {
		return pricing.Quote{}
	}
	return s.pricer.Quote(ctx, assets)
}

// collect runs the fan-out and the price fetch side by side and joins them
func (s *Service) collect(ctx context.Context, jobs []Job, assets []string) *Report {
	quoteCh := make(chan pricing.Quote, 1)
	go func() {
		quoteCh <- s.Quote(ctx, assets)
	}()

	start := time.Now()
	results := s.orchestrator.Fetch(ctx, jobs)
	snap := Aggregate(results, s.now().UTC())
	quote := <-quoteCh

	report := &Report{
		Snapshot: snap,
		Results:  results,
		Quote:    quote,
	}

	s.logger.Info("snapshot aggregated",
		string(logger.SnapshotIDKey), snap.ID.String(),
		"sources", len(results),
		"succeeded", report.Succeeded(),
		"failed", report.Failed(),
		"duration_ms", time.Since(start).Milliseconds())

	return report
}
