package alchemy

import (
	"encoding/json"
)

// RPCRequest represents a JSON-RPC 2.0 request
type RPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// RPCResponse represents a JSON-RPC 2.0 response
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC error
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return e.Message
}

// getBalance types

// BalanceResult is the result of getBalance; Value is in lamports
type BalanceResult struct {
	Context struct {
		Slot uint64 `json:"slot"`
	} `json:"context"`
	Value uint64 `json:"value"`
}

// getTokenAccountBalance types

// TokenAmount is an SPL token account balance
type TokenAmount struct {
	Amount         string   `json:"amount"` // raw base units
	Decimals       int      `json:"decimals"`
	UIAmount       *float64 `json:"uiAmount"` // deprecated upstream, may be null
	UIAmountString string   `json:"uiAmountString"`
}

// TokenAccountBalanceResult is the result of getTokenAccountBalance
type TokenAccountBalanceResult struct {
	Context struct {
		Slot uint64 `json:"slot"`
	} `json:"context"`
	Value TokenAmount `json:"value"`
}
