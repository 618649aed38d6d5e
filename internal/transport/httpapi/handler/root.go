package handler

import "net/http"

// RootHandler describes the service and its endpoints
type RootHandler struct {
	service string
	version string
}

// NewRootHandler creates a new root handler
func NewRootHandler(service, version string) *RootHandler {
	return &RootHandler{service: service, version: version}
}

// RootResponse is the body of GET /
type RootResponse struct {
	Service   string            `json:"service"`
	Version   string            `json:"version"`
	Status    string            `json:"status"`
	Endpoints map[string]string `json:"endpoints"`
}

// GetRoot handles GET /
func (h *RootHandler) GetRoot(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, RootResponse{
		Service: h.service,
		Version: h.version,
		Status:  "running",
		Endpoints: map[string]string{
			"balances":       "/api/balances",
			"summary":        "/api/balances/summary",
			"dex_balances":   "/api/dex/balances",
			"ledger_cex":     "/api/ledger/cex/rows",
			"ledger_onchain": "/api/ledger/onchain/rows",
			"health":         "/health",
			"metrics":        "/metrics",
		},
	})
}
