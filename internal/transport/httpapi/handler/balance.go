package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Markhorcapital/ledger-listener/internal/platform/balance"
	"github.com/Markhorcapital/ledger-listener/internal/platform/pricing"
	"github.com/Markhorcapital/ledger-listener/pkg/logger"
)

// BalanceServiceInterface defines the snapshot operations behind the balance endpoints
type BalanceServiceInterface interface {
	CEXSnapshot(ctx context.Context) (*balance.Report, error)
	ChainSnapshot(ctx context.Context) (*balance.Report, error)
}

// PriceServiceInterface provides the primary asset price block
type PriceServiceInterface interface {
	PrimaryAsset() string
	PrimaryQuote(ctx context.Context) pricing.Info
}

// BalanceHandler serves live exchange and on-chain balances
type BalanceHandler struct {
	balances BalanceServiceInterface
	prices   PriceServiceInterface
	logger   *logger.Logger
	now      func() time.Time
}

// NewBalanceHandler creates a new balance handler
func NewBalanceHandler(balances BalanceServiceInterface, prices PriceServiceInterface, log *logger.Logger) *BalanceHandler {
	return &BalanceHandler{
		balances: balances,
		prices:   prices,
		logger:   log.WithComponent("balance_handler"),
		now:      time.Now,
	}
}

// GetBalances handles GET /api/balances
func (h *BalanceHandler) GetBalances(w http.ResponseWriter, r *http.Request) {
	report, err := h.balances.CEXSnapshot(r.Context())
	if errors.Is(err, balance.ErrNoActiveSources) {
		respondWithJSON(w, http.StatusOK, BalancesResponse{
			Success:   true,
			Message:   "no active accounts",
			Accounts:  []AccountBalancesResponse{},
			Timestamp: timestamp(h.now()),
			Pricing:   toPricingResponse(h.prices.PrimaryQuote(r.Context())),
		})
		return
	}
	if err != nil {
		h.logger.WithContext(r.Context()).Error("failed to fetch balances", "error", err)
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	accounts := make([]AccountBalancesResponse, 0, len(report.Results))
	for _, res := range report.Results {
		balances := make(map[string]BalanceResponse, len(res.Balances))
		for asset, e := range res.Balances.NonZero() {
			balances[asset] = toBalanceResponse(e)
		}
		accounts = append(accounts, AccountBalancesResponse{
			AccountID:   res.Key.Source,
			AccountName: res.Name,
			Exchange:    res.Key.Venue,
			Balances:    balances,
			Error:       errorString(res),
			Timestamp:   timestamp(res.FetchedAt),
		})
	}

	skipped := make([]string, 0, len(report.Skipped))
	for _, k := range report.Skipped {
		skipped = append(skipped, k.String())
	}

	respondWithJSON(w, http.StatusOK, BalancesResponse{
		Success:           true,
		Accounts:          accounts,
		TotalAccounts:     len(report.Results) + len(report.Skipped),
		SuccessfulFetches: report.Succeeded(),
		FailedFetches:     report.Failed(),
		Skipped:           skipped,
		Timestamp:         timestamp(report.Snapshot.TakenAt),
		Pricing:           toPricingResponse(report.Quote.Info(h.prices.PrimaryAsset())),
		SnapshotID:        report.Snapshot.ID.String(),
		Degraded:          report.Snapshot.Degraded(),
	})
}

// GetSummary handles GET /api/balances/summary
func (h *BalanceHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	report, err := h.balances.CEXSnapshot(r.Context())
	if errors.Is(err, balance.ErrNoActiveSources) {
		respondWithJSON(w, http.StatusOK, SummaryResponse{
			Success:       true,
			Message:       "no active accounts",
			Summary:       map[string]map[string]map[string]BalanceResponse{},
			Totals:        TotalsResponse{ByExchange: map[string]map[string]string{}, Overall: map[string]string{}},
			Pricing:       toPricingResponse(h.prices.PrimaryQuote(r.Context())),
			Timestamp:     timestamp(h.now()),
			FailedSources: []string{},
		})
		return
	}
	if err != nil {
		h.logger.WithContext(r.Context()).Error("failed to build summary", "error", err)
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	snap := report.Snapshot
	summary := make(map[string]map[string]map[string]BalanceResponse)
	for _, res := range report.Results {
		byAccount, ok := summary[res.Key.Venue]
		if !ok {
			byAccount = make(map[string]map[string]BalanceResponse)
			summary[res.Key.Venue] = byAccount
		}

		name := res.Name
		if name == "" {
			name = res.Key.Source
		}
		if _, taken := byAccount[name]; taken {
			name = name + " (" + res.Key.Source + ")"
		}

		assets := make(map[string]BalanceResponse, len(res.Balances))
		for asset, e := range res.Balances.NonZero() {
			assets[asset] = toBalanceResponse(e)
		}
		byAccount[name] = assets
	}

	byExchange := make(map[string]map[string]string, len(snap.TotalsByVenue))
	for venue, totals := range snap.TotalsByVenue {
		byExchange[venue] = amounts(totals)
	}

	failed := make([]string, 0, len(snap.Failed))
	for _, k := range snap.Failed {
		failed = append(failed, k.String())
	}

	respondWithJSON(w, http.StatusOK, SummaryResponse{
		Success:       true,
		Summary:       summary,
		Totals:        TotalsResponse{ByExchange: byExchange, Overall: amounts(snap.TotalsOverall)},
		Pricing:       toPricingResponse(report.Quote.Info(h.prices.PrimaryAsset())),
		Timestamp:     timestamp(snap.TakenAt),
		FailedSources: failed,
		Degraded:      snap.Degraded(),
	})
}

// GetDexBalances handles GET /api/dex/balances
func (h *BalanceHandler) GetDexBalances(w http.ResponseWriter, r *http.Request) {
	report, err := h.balances.ChainSnapshot(r.Context())
	if errors.Is(err, balance.ErrNoActiveSources) {
		respondWithJSON(w, http.StatusOK, DexBalancesResponse{
			Success:       true,
			Message:       "no wallets configured",
			Chains:        map[string]ChainResponse{},
			TotalsOverall: map[string]string{},
			Prices:        map[string]string{},
			Timestamp:     timestamp(h.now()),
		})
		return
	}
	if err != nil {
		h.logger.WithContext(r.Context()).Error("failed to fetch dex balances", "error", err)
		respondWithError(w, http.StatusInternalServerError, "failed to fetch DEX balances")
		return
	}

	snap := report.Snapshot
	chains := make(map[string]ChainResponse)
	for _, res := range report.Results {
		chain, ok := chains[res.Key.Venue]
		if !ok {
			chain = ChainResponse{
				Wallets: make(map[string]WalletResponse),
				Totals:  amounts(snap.TotalsByVenue[res.Key.Venue]),
			}
			chains[res.Key.Venue] = chain
		}

		balances := make(map[string]string, len(res.Balances))
		for asset, e := range res.Balances {
			balances[asset] = e.Total.String()
		}
		chain.Wallets[res.Key.Source] = WalletResponse{
			Address:  res.Address,
			Balances: balances,
			Error:    errorString(res),
		}
	}

	prices := make(map[string]string)
	for asset := range report.Quote {
		if report.Quote.Known(asset) {
			prices[asset] = report.Quote.Value(asset).String()
		}
	}

	respondWithJSON(w, http.StatusOK, DexBalancesResponse{
		Success:       true,
		Chains:        chains,
		TotalsOverall: amounts(snap.TotalsOverall),
		Prices:        prices,
		Timestamp:     timestamp(snap.TakenAt),
		SnapshotID:    snap.ID.String(),
		Degraded:      snap.Degraded(),
	})
}
