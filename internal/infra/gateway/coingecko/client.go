package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/Markhorcapital/ledger-listener/internal/platform/pricing"
)

const (
	defaultBaseURL      = "https://pro-api.coingecko.com/api/v3"
	headerAPIKey        = "x-cg-pro-api-key"
	requestTimeout      = 10 * time.Second
	rateLimitRetryAfter = 60 * time.Second
)

// ErrPriceMissing is returned when the response has no price for the requested key
var ErrPriceMissing = errors.New("price missing from response")

// Client represents a CoinGecko Pro API client
type Client struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a new CoinGecko API client. An empty baseURL selects the Pro endpoint.
func NewClient(apiKey, baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// TokenPrice fetches the price of an Ethereum ERC-20 contract
func (c *Client) TokenPrice(ctx context.Context, contract, vsCurrency string) (decimal.Decimal, error) {
	contract = strings.ToLower(contract)
	vsCurrency = strings.ToLower(vsCurrency)

	params := url.Values{}
	params.Set("contract_addresses", contract)
	params.Set("vs_currencies", vsCurrency)

	var raw map[string]map[string]decimal.Decimal
	if err := c.get(ctx, "/simple/token_price/ethereum", params, &raw); err != nil {
		return decimal.Zero, err
	}

	for addr, currencies := range raw {
		if strings.ToLower(addr) != contract {
			continue
		}
		if price, ok := currencies[vsCurrency]; ok {
			return price, nil
		}
	}
	return decimal.Zero, errors.Wrapf(ErrPriceMissing, "contract %s", contract)
}

// SimplePrices fetches prices for CoinGecko coin IDs. IDs the API does not know are absent.
func (c *Client) SimplePrices(ctx context.Context, ids []string, vsCurrency string) (map[string]decimal.Decimal, error) {
	if len(ids) == 0 {
		return map[string]decimal.Decimal{}, nil
	}
	vsCurrency = strings.ToLower(vsCurrency)

	params := url.Values{}
	params.Set("ids", strings.Join(ids, ","))
	params.Set("vs_currencies", vsCurrency)

	var raw map[string]map[string]decimal.Decimal
	if err := c.get(ctx, "/simple/price", params, &raw); err != nil {
		return nil, err
	}

	result := make(map[string]decimal.Decimal, len(raw))
	for id, currencies := range raw {
		if price, ok := currencies[vsCurrency]; ok {
			result[id] = price
		}
	}
	return result, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}

	req.Header.Set(headerAPIKey, c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to execute request")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return &RateLimitError{
			RetryAfter: rateLimitRetryAfter,
			Message:    "CoinGecko API rate limit exceeded",
		}
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "failed to decode response")
	}
	return nil
}

// RateLimitError represents a rate limit error from CoinGecko API
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s (retry after %s)", e.Message, e.RetryAfter)
}

// IsRateLimitError checks if an error is a rate limit error
func IsRateLimitError(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

var _ pricing.Feed = (*Client)(nil)
