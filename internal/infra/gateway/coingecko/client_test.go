package coingecko_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Markhorcapital/ledger-listener/internal/infra/gateway/coingecko"
)

func TestClient_TokenPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/simple/token_price/ethereum", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-cg-pro-api-key"))
		assert.Equal(t, "0xabc", r.URL.Query().Get("contract_addresses"))
		assert.Equal(t, "usd", r.URL.Query().Get("vs_currencies"))
		_, _ = w.Write([]byte(`{"0xabc":{"usd":0.01234567}}`))
	}))
	defer srv.Close()

	price, err := coingecko.NewClient("secret", srv.URL).TokenPrice(context.Background(), "0xABC", "USD")
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.RequireFromString("0.01234567")))
}

func TestClient_TokenPrice_Missing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := coingecko.NewClient("secret", srv.URL).TokenPrice(context.Background(), "0xabc", "usd")
	assert.ErrorIs(t, err, coingecko.ErrPriceMissing)
}

func TestClient_SimplePrices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/simple/price", r.URL.Path)
		assert.Equal(t, "ethereum,solana", r.URL.Query().Get("ids"))
		_, _ = w.Write([]byte(`{"ethereum":{"usd":3012.5},"solana":{"eur":140}}`))
	}))
	defer srv.Close()

	prices, err := coingecko.NewClient("secret", srv.URL).SimplePrices(context.Background(), []string{"ethereum", "solana"}, "usd")
	require.NoError(t, err)

	assert.Len(t, prices, 1)
	assert.True(t, prices["ethereum"].Equal(decimal.RequireFromString("3012.5")))
}

func TestClient_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := coingecko.NewClient("secret", srv.URL).SimplePrices(context.Background(), []string{"ethereum"}, "usd")
	assert.True(t, coingecko.IsRateLimitError(err))
}

func TestClient_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := coingecko.NewClient("secret", srv.URL).TokenPrice(context.Background(), "0xabc", "usd")
	assert.ErrorContains(t, err, "502")
}

// TestCoinGeckoIntegration hits the real API. Requires COINGECKO_API_KEY.
func TestCoinGeckoIntegration(t *testing.T) {
	apiKey := os.Getenv("COINGECKO_API_KEY")
	if apiKey == "" {
		t.Skip("Skipping integration test: COINGECKO_API_KEY not set")
	}

	prices, err := coingecko.NewClient(apiKey, "").SimplePrices(context.Background(), []string{"ethereum"}, "usd")
	require.NoError(t, err)
	assert.True(t, prices["ethereum"].IsPositive())
}
