package handler

import (
	"github.com/Markhorcapital/ledger-listener/internal/ledger"
	"github.com/Markhorcapital/ledger-listener/internal/platform/balance"
	"github.com/Markhorcapital/ledger-listener/internal/platform/pricing"
)

// BalanceResponse is one asset's balance. Amounts are decimal strings.
type BalanceResponse struct {
	Free  string `json:"free"`
	Used  string `json:"used"`
	Total string `json:"total"`
}

// AccountBalancesResponse is the outcome of one exchange account fetch
type AccountBalancesResponse struct {
	AccountID   string                     `json:"account_id"`
	AccountName string                     `json:"account_name"`
	Exchange    string                     `json:"exchange"`
	Balances    map[string]BalanceResponse `json:"balances"`
	Error       *string                    `json:"error"`
	Timestamp   string                     `json:"timestamp"`
}

// PricingResponse is the primary asset price block
type PricingResponse struct {
	Asset     string  `json:"asset"`
	PriceUSD  *string `json:"price_usd"`
	Source    string  `json:"source"`
	Timestamp string  `json:"timestamp,omitempty"`
}

// BalancesResponse is the body of GET /api/balances
type BalancesResponse struct {
	Success           bool                      `json:"success"`
	Message           string                    `json:"message,omitempty"`
	Accounts          []AccountBalancesResponse `json:"accounts"`
	TotalAccounts     int                       `json:"total_accounts"`
	SuccessfulFetches int                       `json:"successful_fetches"`
	FailedFetches     int                       `json:"failed_fetches"`
	Skipped           []string                  `json:"skipped,omitempty"`
	Timestamp         string                    `json:"timestamp"`
	Pricing           PricingResponse           `json:"pricing"`
	SnapshotID        string                    `json:"snapshot_id,omitempty"`
	Degraded          bool                      `json:"degraded"`
}

// TotalsResponse holds per-exchange and network-wide totals
type TotalsResponse struct {
	ByExchange map[string]map[string]string `json:"by_exchange"`
	Overall    map[string]string            `json:"overall"`
}

// SummaryResponse is the body of GET /api/balances/summary
type SummaryResponse struct {
	Success       bool                                             `json:"success"`
	Message       string                                           `json:"message,omitempty"`
	Summary       map[string]map[string]map[string]BalanceResponse `json:"summary"`
	Totals        TotalsResponse                                   `json:"totals"`
	Pricing       PricingResponse                                  `json:"pricing"`
	Timestamp     string                                           `json:"timestamp"`
	FailedSources []string                                         `json:"failed_sources"`
	Degraded      bool                                             `json:"degraded"`
}

// WalletResponse is one on-chain wallet
type WalletResponse struct {
	Address  string            `json:"address"`
	Balances map[string]string `json:"balances"`
	Error    *string           `json:"error"`
}

// ChainResponse groups the wallets of one chain
type ChainResponse struct {
	Wallets map[string]WalletResponse `json:"wallets"`
	Totals  map[string]string         `json:"totals"`
}

// DexBalancesResponse is the body of GET /api/dex/balances
type DexBalancesResponse struct {
	Success       bool                     `json:"success"`
	Message       string                   `json:"message,omitempty"`
	Chains        map[string]ChainResponse `json:"chains"`
	TotalsOverall map[string]string        `json:"totals_overall"`
	Prices        map[string]string        `json:"prices"`
	Timestamp     string                   `json:"timestamp"`
	SnapshotID    string                   `json:"snapshot_id,omitempty"`
	Degraded      bool                     `json:"degraded"`
}

// RowRequest is the body of the ledger row endpoints
type RowRequest struct {
	PreviousRow ledger.Values `json:"previous_row"`
}

// RowResponse is a built ledger row
type RowResponse struct {
	Success    bool          `json:"success"`
	Message    string        `json:"message,omitempty"`
	Row        []ledger.Cell `json:"row"`
	Values     ledger.Values `json:"values"`
	Report     ledger.Report `json:"report"`
	SnapshotID string        `json:"snapshot_id"`
}

// ColumnsResponse is a ledger sheet header
type ColumnsResponse struct {
	Columns []string `json:"columns"`
}

func toBalanceResponse(e balance.Entry) BalanceResponse {
	return BalanceResponse{
		Free:  e.Free.String(),
		Used:  e.Used.String(),
		Total: e.Total.String(),
	}
}

func toPricingResponse(info pricing.Info) PricingResponse {
	resp := PricingResponse{Asset: info.Asset, Source: info.Source}
	if info.Origin != pricing.OriginNone && info.PriceUSD.IsPositive() {
		price := info.PriceUSD.String()
		resp.PriceUSD = &price
	}
	if !info.Timestamp.IsZero() {
		resp.Timestamp = timestamp(info.Timestamp)
	}
	return resp
}

func errorString(r balance.FetchResult) *string {
	if r.OK() {
		return nil
	}
	msg := r.ErrorString()
	return &msg
}
