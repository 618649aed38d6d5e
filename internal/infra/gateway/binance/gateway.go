package binance

import (
	"context"
	"net/http"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/Markhorcapital/ledger-listener/internal/platform/balance"
	"github.com/Markhorcapital/ledger-listener/pkg/retrier"
)

// Binance error codes that no retry can fix
var permanentCodes = map[int64]bool{
	-1022: true, // signature invalid
	-2014: true, // API-key format invalid
	-2015: true, // invalid API-key, IP, or permissions
}

// Gateway reads spot balances of one Binance account
type Gateway struct {
	client  *binance.Client
	limiter *rate.Limiter
}

// NewClient creates a Binance client. Empty baseURL keeps the library default.
func NewClient(apiKey, apiSecret, baseURL string, httpClient *http.Client) *binance.Client {
	client := binance.NewClient(apiKey, apiSecret)
	if baseURL != "" {
		client.BaseURL = baseURL
	}
	if httpClient != nil {
		client.HTTPClient = httpClient
	}
	return client
}

// NewGateway creates a gateway over client. limiter may be nil.
func NewGateway(client *binance.Client, limiter *rate.Limiter) *Gateway {
	return &Gateway{client: client, limiter: limiter}
}

// FetchBalances returns every asset with a non-zero total. Free maps to free
// and Locked to used.
func (g *Gateway) FetchBalances(ctx context.Context) (balance.Balances, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrap(err, "rate limiter")
		}
	}

	account, err := g.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, classify(err)
	}

	out := balance.Balances{}
	for _, b := range account.Balances {
		free, err := parseAmount(b.Free)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid free balance for %s", b.Asset)
		}
		locked, err := parseAmount(b.Locked)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid locked balance for %s", b.Asset)
		}

		e := balance.NewEntry(b.Asset, free, locked, free.Add(locked))
		if e.Total.IsZero() {
			continue
		}
		out.Add(e)
	}

	return out, nil
}

func classify(err error) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) && permanentCodes[apiErr.Code] {
		return retrier.Permanent(errors.Wrap(err, "binance rejected credentials"))
	}
	return errors.Wrap(err, "binance account request failed")
}

func parseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

var _ balance.Gateway = (*Gateway)(nil)
