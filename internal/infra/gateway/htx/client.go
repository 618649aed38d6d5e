// Package htx reads spot balances from HTX (formerly Huobi) over its signed REST API.
package htx

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const (
	defaultBaseURL  = "https://api.huobi.pro"
	signatureMethod = "HmacSHA256"
	timestampLayout = "2006-01-02T15:04:05"
)

// ErrNoSpotAccount is returned when the key has no working spot account
var ErrNoSpotAccount = errors.New("no spot account")

// APIError is an error envelope returned by HTX
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("htx error %s: %s", e.Code, e.Message)
}

// Client is a signed HTX REST client bound to one API key
type Client struct {
	apiKey     string
	apiSecret  string
	baseURL    string
	host       string
	httpClient *http.Client
	now        func() time.Time

	mu        sync.Mutex
	accountID int64
}

// NewClient creates a client. Empty baseURL selects the public endpoint.
func NewClient(apiKey, apiSecret, baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	baseURL = strings.TrimRight(baseURL, "/")

	host := baseURL
	if u, err := url.Parse(baseURL); err == nil && u.Host != "" {
		host = u.Host
	}

	return &Client{
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		baseURL:    baseURL,
		host:       strings.ToLower(host),
		httpClient: httpClient,
		now:        time.Now,
	}
}

type envelope struct {
	Status  string          `json:"status"`
	ErrCode string          `json:"err-code"`
	ErrMsg  string          `json:"err-msg"`
	Data    json.RawMessage `json:"data"`
}

type account struct {
	ID    int64  `json:"id"`
	Type  string `json:"type"`
	State string `json:"state"`
}

// BalanceLine is one currency balance of a given type (trade or frozen)
type BalanceLine struct {
	Currency string `json:"currency"`
	Type     string `json:"type"`
	Balance  string `json:"balance"`
}

type accountBalance struct {
	ID   int64         `json:"id"`
	List []BalanceLine `json:"list"`
}

// SpotAccountID returns the id of the working spot account, looked up once per client
func (c *Client) SpotAccountID(ctx context.Context) (int64, error) {
	c.mu.Lock()
	id := c.accountID
	c.mu.Unlock()
	if id != 0 {
		return id, nil
	}

	var accounts []account
	if err := c.get(ctx, "/v1/account/accounts", &accounts); err != nil {
		return 0, err
	}
	for _, a := range accounts {
		if a.Type == "spot" && (a.State == "" || a.State == "working") {
			c.mu.Lock()
			c.accountID = a.ID
			c.mu.Unlock()
			return a.ID, nil
		}
	}
	return 0, ErrNoSpotAccount
}

// SpotBalances returns the raw balance lines of the spot account
func (c *Client) SpotBalances(ctx context.Context) ([]BalanceLine, error) {
	id, err := c.SpotAccountID(ctx)
	if err != nil {
		return nil, err
	}

	var res accountBalance
	if err := c.get(ctx, fmt.Sprintf("/v1/account/accounts/%d/balance", id), &res); err != nil {
		return nil, err
	}
	return res.List, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, c.sign(http.MethodGet, path))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to execute request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return errors.Wrap(err, "failed to decode response")
	}
	if env.Status != "ok" {
		return &APIError{Code: env.ErrCode, Message: env.ErrMsg}
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return errors.Wrap(err, "failed to decode response data")
	}
	return nil
}

// sign builds the signature v2 query string for a request without parameters of its own
func (c *Client) sign(method, path string) string {
	params := url.Values{}
	params.Set("AccessKeyId", c.apiKey)
	params.Set("SignatureMethod", signatureMethod)
	params.Set("SignatureVersion", "2")
	params.Set("Timestamp", c.now().UTC().Format(timestampLayout))

	// Encode sorts by key
	query := params.Encode()
	payload := strings.Join([]string{method, c.host, path, query}, "\n")

	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(payload))
	params.Set("Signature", base64.StdEncoding.EncodeToString(mac.Sum(nil)))

	return params.Encode()
}
