package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Markhorcapital/ledger-listener/internal/ledger"
	"github.com/Markhorcapital/ledger-listener/internal/platform/balance"
	"github.com/Markhorcapital/ledger-listener/internal/platform/pricing"
	"github.com/Markhorcapital/ledger-listener/pkg/logger"
)

var testTime = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

type MockBalanceService struct {
	mock.Mock
}

func (m *MockBalanceService) CEXSnapshot(ctx context.Context) (*balance.Report, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*balance.Report), args.Error(1)
}

func (m *MockBalanceService) ChainSnapshot(ctx context.Context) (*balance.Report, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*balance.Report), args.Error(1)
}

type MockLedgerService struct {
	mock.Mock
}

func (m *MockLedgerService) CEXColumns() []string {
	return m.Called().Get(0).([]string)
}

func (m *MockLedgerService) OnchainColumns() []string {
	return m.Called().Get(0).([]string)
}

func (m *MockLedgerService) NextCEXRow(ctx context.Context, prev *ledger.Row) (*ledger.Result, error) {
	args := m.Called(ctx, prev)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Result), args.Error(1)
}

func (m *MockLedgerService) NextOnchainRow(ctx context.Context, prev *ledger.Row) (*ledger.Result, error) {
	args := m.Called(ctx, prev)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Result), args.Error(1)
}

type stubPrices struct {
	info pricing.Info
}

func (s stubPrices) PrimaryAsset() string                          { return "ALI" }
func (s stubPrices) PrimaryQuote(ctx context.Context) pricing.Info { return s.info }

type stubDB struct{ err error }

func (s stubDB) Health(ctx context.Context) error { return s.err }

var (
	_ BalanceServiceInterface = (*MockBalanceService)(nil)
	_ LedgerServiceInterface  = (*MockLedgerService)(nil)
	_ PriceServiceInterface   = stubPrices{}
	_ DatabasePinger          = stubDB{}
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func fetched(venue, source, name string, entries ...balance.Entry) balance.FetchResult {
	b := balance.Balances{}
	for _, e := range entries {
		b.Add(e)
	}
	return balance.FetchResult{Key: balance.NewSourceKey(venue, source), Name: name, Balances: b, FetchedAt: testTime}
}

func cexReport() *balance.Report {
	results := []balance.FetchResult{
		fetched("binance", "acc1", "Main",
			balance.NewEntry("USDT", d("90"), d("10"), d("100")),
			balance.NewEntry("BTC", d("0"), d("0"), d("0"))),
		{Key: balance.NewSourceKey("binance", "acc2"), Name: "Second", Err: errors.New("invalid signature"), FetchedAt: testTime},
		fetched("bybit", "acc3", "MM", balance.NewEntry("ALI", d("500"), d("0"), d("500"))),
	}
	return &balance.Report{
		Snapshot: balance.Aggregate(results, testTime),
		Results:  results,
		Quote:    pricing.Quote{"ALI": {Value: d("0.02"), Origin: pricing.OriginFresh, At: testTime}},
		Skipped:  []balance.SourceKey{balance.NewSourceKey("gate", "acc4")},
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestBalanceHandler_GetBalances(t *testing.T) {
	svc := new(MockBalanceService)
	svc.On("CEXSnapshot", mock.Anything).Return(cexReport(), nil)
	h := NewBalanceHandler(svc, stubPrices{}, logger.Nop())

	rec := httptest.NewRecorder()
	h.GetBalances(rec, httptest.NewRequest(http.MethodGet, "/api/balances", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[BalancesResponse](t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, 4, resp.TotalAccounts)
	assert.Equal(t, 2, resp.SuccessfulFetches)
	assert.Equal(t, 1, resp.FailedFetches)
	assert.True(t, resp.Degraded)
	assert.Equal(t, []string{"gate/acc4"}, resp.Skipped)
	require.Len(t, resp.Accounts, 3)

	first := resp.Accounts[0]
	assert.Equal(t, "acc1", first.AccountID)
	assert.Equal(t, "Main", first.AccountName)
	assert.Equal(t, BalanceResponse{Free: "90", Used: "10", Total: "100"}, first.Balances["USDT"])
	assert.NotContains(t, first.Balances, "BTC")
	assert.Nil(t, first.Error)

	require.NotNil(t, resp.Accounts[1].Error)
	assert.Equal(t, "invalid signature", *resp.Accounts[1].Error)

	assert.Equal(t, "ALI", resp.Pricing.Asset)
	require.NotNil(t, resp.Pricing.PriceUSD)
	assert.Equal(t, "0.02", *resp.Pricing.PriceUSD)
	assert.Equal(t, "coingecko", resp.Pricing.Source)
}

func TestBalanceHandler_NoActiveAccounts(t *testing.T) {
	svc := new(MockBalanceService)
	svc.On("CEXSnapshot", mock.Anything).Return(nil, balance.ErrNoActiveSources)
	h := NewBalanceHandler(svc, stubPrices{info: pricing.Quote{}.Info("ALI")}, logger.Nop())

	t.Run("balances", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.GetBalances(rec, httptest.NewRequest(http.MethodGet, "/api/balances", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decode[BalancesResponse](t, rec)
		assert.True(t, resp.Success)
		assert.Equal(t, "no active accounts", resp.Message)
		assert.Equal(t, 0, resp.TotalAccounts)
		assert.NotNil(t, resp.Accounts)
		assert.Empty(t, resp.Accounts)
		assert.Nil(t, resp.Pricing.PriceUSD)
		assert.Equal(t, "unavailable", resp.Pricing.Source)
	})

	t.Run("summary", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.GetSummary(rec, httptest.NewRequest(http.MethodGet, "/api/balances/summary", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"message":"no active accounts"`)
	})
}

func TestBalanceHandler_Error(t *testing.T) {
	svc := new(MockBalanceService)
	svc.On("CEXSnapshot", mock.Anything).Return(nil, errors.New("failed to load active accounts: connection refused"))
	h := NewBalanceHandler(svc, stubPrices{}, logger.Nop())

	rec := httptest.NewRecorder()
	h.GetBalances(rec, httptest.NewRequest(http.MethodGet, "/api/balances", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decode[ErrorResponse](t, rec).Error, "connection refused")
}

func TestBalanceHandler_GetSummary(t *testing.T) {
	svc := new(MockBalanceService)
	svc.On("CEXSnapshot", mock.Anything).Return(cexReport(), nil)
	h := NewBalanceHandler(svc, stubPrices{}, logger.Nop())

	rec := httptest.NewRecorder()
	h.GetSummary(rec, httptest.NewRequest(http.MethodGet, "/api/balances/summary", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[SummaryResponse](t, rec)
	assert.Equal(t, "100", resp.Summary["binance"]["Main"]["USDT"].Total)
	assert.Empty(t, resp.Summary["binance"]["Second"])
	assert.Equal(t, "500", resp.Summary["bybit"]["MM"]["ALI"].Total)
	assert.Equal(t, "100", resp.Totals.ByExchange["binance"]["USDT"])
	assert.Equal(t, "500", resp.Totals.Overall["ALI"])
	assert.Equal(t, []string{"binance/acc2"}, resp.FailedSources)
	assert.True(t, resp.Degraded)
}

func TestBalanceHandler_GetDexBalances(t *testing.T) {
	results := []balance.FetchResult{
		fetched("ethereum", "treasury", "treasury",
			balance.NewEntry("ETH", d("1.5"), d("0"), d("1.5")),
			balance.NewEntry("ALI", d("0"), d("0"), d("0"))),
		{Key: balance.NewSourceKey("ethereum", "ops"), Address: "0xbb", Err: errors.New("rpc down")},
	}
	results[0].Address = "0xaa"

	svc := new(MockBalanceService)
	svc.On("ChainSnapshot", mock.Anything).Return(&balance.Report{
		Snapshot: balance.Aggregate(results, testTime),
		Results:  results,
		Quote: pricing.Quote{
			"ETH": {Value: d("3000"), Origin: pricing.OriginFresh},
			"ALI": {Origin: pricing.OriginNone},
		},
	}, nil)
	h := NewBalanceHandler(svc, stubPrices{}, logger.Nop())

	rec := httptest.NewRecorder()
	h.GetDexBalances(rec, httptest.NewRequest(http.MethodGet, "/api/dex/balances", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[DexBalancesResponse](t, rec)
	eth := resp.Chains["ethereum"]
	assert.Equal(t, "0xaa", eth.Wallets["treasury"].Address)
	assert.Equal(t, "1.5", eth.Wallets["treasury"].Balances["ETH"])
	assert.Equal(t, "0", eth.Wallets["treasury"].Balances["ALI"])
	require.NotNil(t, eth.Wallets["ops"].Error)
	assert.Equal(t, "1.5", eth.Totals["ETH"])
	assert.Equal(t, map[string]string{"ETH": "3000"}, resp.Prices)
	assert.True(t, resp.Degraded)
}

func TestLedgerHandler_CreateCEXRow(t *testing.T) {
	row := ledger.NewRow([]ledger.Cell{{Column: "date", Value: "2026-03-14"}, {Column: "binance.cold.ALI", Value: "2000"}})

	svc := new(MockLedgerService)
	svc.On("NextCEXRow", mock.Anything, mock.MatchedBy(func(prev *ledger.Row) bool {
		v, ok := prev.Get("binance.cold.ALI")
		return ok && v == "2,000"
	})).Return(&ledger.Result{Row: row, Report: ledger.Report{PriceSource: ledger.PriceFresh}, SnapshotID: "snap-1"}, nil)

	h := NewLedgerHandler(svc, logger.Nop())
	body := strings.NewReader(`{"previous_row": {"binance.cold.ALI": "2,000"}}`)
	rec := httptest.NewRecorder()
	h.CreateCEXRow(rec, httptest.NewRequest(http.MethodPost, "/api/ledger/cex/rows", body))
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[RowResponse](t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, row.Cells(), resp.Row)
	assert.Equal(t, "2000", resp.Values["binance.cold.ALI"])
	assert.Equal(t, ledger.PriceFresh, resp.Report.PriceSource)
	assert.Equal(t, "snap-1", resp.SnapshotID)
	svc.AssertExpectations(t)
}

func TestLedgerHandler_EmptyBodyAndNoSources(t *testing.T) {
	row := ledger.NewRow([]ledger.Cell{{Column: "date", Value: "2026-03-14"}})

	svc := new(MockLedgerService)
	svc.On("NextOnchainRow", mock.Anything, (*ledger.Row)(nil)).
		Return(&ledger.Result{Row: row, Empty: true}, nil)

	h := NewLedgerHandler(svc, logger.Nop())
	rec := httptest.NewRecorder()
	h.CreateOnchainRow(rec, httptest.NewRequest(http.MethodPost, "/api/ledger/onchain/rows", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[RowResponse](t, rec)
	assert.Equal(t, "no wallets configured", resp.Message)
}

func TestLedgerHandler_BadBody(t *testing.T) {
	h := NewLedgerHandler(new(MockLedgerService), logger.Nop())
	rec := httptest.NewRecorder()
	h.CreateCEXRow(rec, httptest.NewRequest(http.MethodPost, "/api/ledger/cex/rows", strings.NewReader(`{"previous_row": [1]}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLedgerHandler_Columns(t *testing.T) {
	svc := new(MockLedgerService)
	svc.On("CEXColumns").Return([]string{"date", "comment"})
	h := NewLedgerHandler(svc, logger.Nop())

	rec := httptest.NewRecorder()
	h.GetCEXColumns(rec, httptest.NewRequest(http.MethodGet, "/api/ledger/cex/columns", nil))
	assert.Equal(t, []string{"date", "comment"}, decode[ColumnsResponse](t, rec).Columns)
}

func TestHealthHandler_GetHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthHandler(stubDB{}).GetHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "connected", decode[HealthResponse](t, rec).Database)

	rec = httptest.NewRecorder()
	NewHealthHandler(stubDB{err: errors.New("connection refused")}).GetHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decode[HealthResponse](t, rec)
	assert.Equal(t, "unhealthy", resp.Status)
	assert.Equal(t, "error: connection refused", resp.Database)
}
