package bybit

import (
	"context"
	"net/http"

	"github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/Markhorcapital/ledger-listener/internal/platform/balance"
)

// Gateway reads the unified trading account balances of one Bybit account.
// The client library is synchronous; ctx bounds only the rate limiter wait,
// the caller enforces the overall deadline.
type Gateway struct {
	client  *bybit.Client
	limiter *rate.Limiter
}

// NewClient creates an authenticated Bybit client. Empty baseURL keeps the library default.
func NewClient(apiKey, apiSecret, baseURL string, httpClient *http.Client) *bybit.Client {
	client := bybit.NewClient().WithAuth(apiKey, apiSecret)
	if baseURL != "" {
		client = client.WithBaseURL(baseURL)
	}
	if httpClient != nil {
		client = client.WithHTTPClient(httpClient)
	}
	return client
}

// NewGateway creates a gateway over client. limiter may be nil.
func NewGateway(client *bybit.Client, limiter *rate.Limiter) *Gateway {
	return &Gateway{client: client, limiter: limiter}
}

// FetchBalances returns every coin with a non-zero wallet balance.
// WalletBalance is the total, Locked is used and free is the difference.
func (g *Gateway) FetchBalances(ctx context.Context) (balance.Balances, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrap(err, "rate limiter")
		}
	}

	res, err := g.client.V5().Account().GetWalletBalance(bybit.AccountTypeV5UNIFIED, nil)
	if err != nil {
		return nil, errors.Wrap(err, "bybit wallet balance request failed")
	}

	out := balance.Balances{}
	for _, account := range res.Result.List {
		for _, c := range account.Coin {
			total, err := parseAmount(c.WalletBalance)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid wallet balance for %s", c.Coin)
			}
			if total.IsZero() {
				continue
			}
			locked, err := parseAmount(c.Locked)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid locked balance for %s", c.Coin)
			}
			out.Add(balance.NewEntry(string(c.Coin), total.Sub(locked), locked, total))
		}
	}

	return out, nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

var _ balance.Gateway = (*Gateway)(nil)
