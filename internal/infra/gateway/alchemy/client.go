package alchemy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

const requestTimeout = 30 * time.Second

// Client is a Solana JSON-RPC client for Alchemy (or any compatible) endpoints
type Client struct {
	url        string
	httpClient *http.Client
	nextID     atomic.Int64
}

// NewClient creates a new Solana RPC client for url
func NewClient(url string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}
	return &Client{
		url:        url,
		httpClient: httpClient,
	}
}

// doRequest performs a JSON-RPC request and decodes the result into out
func (c *Client) doRequest(ctx context.Context, method string, params []any, out any) error {
	req := &RPCRequest{
		JSONRPC: "2.0",
		ID:      int(c.nextID.Add(1)),
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return errors.Wrap(err, "failed to marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return errors.Wrapf(err, "%s request failed", method)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return &RateLimitError{
			RetryAfter: time.Minute,
			Message:    "Solana RPC rate limit exceeded",
		}
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(respBody))
	}

	var rpcResp RPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return errors.Wrap(err, "failed to decode response")
	}

	if rpcResp.Error != nil {
		return errors.Wrap(rpcResp.Error, method)
	}

	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return errors.Wrapf(err, "failed to parse %s result", method)
	}
	return nil
}

// GetBalance returns the native SOL balance of address in lamports
func (c *Client) GetBalance(ctx context.Context, address string) (uint64, error) {
	var res BalanceResult
	if err := c.doRequest(ctx, "getBalance", []any{address}, &res); err != nil {
		return 0, err
	}
	return res.Value, nil
}

// GetTokenAccountBalance returns the balance of an SPL token account
func (c *Client) GetTokenAccountBalance(ctx context.Context, account string) (*TokenAmount, error) {
	var res TokenAccountBalanceResult
	if err := c.doRequest(ctx, "getTokenAccountBalance", []any{account}, &res); err != nil {
		return nil, err
	}
	return &res.Value, nil
}

// RateLimitError represents a rate limit response from the RPC provider
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
