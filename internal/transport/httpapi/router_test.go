package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Markhorcapital/ledger-listener/internal/infra/metrics"
	"github.com/Markhorcapital/ledger-listener/internal/transport/httpapi/handler"
	"github.com/Markhorcapital/ledger-listener/internal/transport/httpapi/middleware"
	"github.com/Markhorcapital/ledger-listener/pkg/logger"
)

func testRouter(t *testing.T) http.Handler {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret-token"), bcrypt.MinCost)
	require.NoError(t, err)
	auth, err := middleware.NewAuthenticator("", string(hash), nil)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	metrics.New(reg).ObservePrice("fresh")

	return NewRouter(Config{
		Logger:         logger.Nop(),
		AllowedOrigins: []string{"*"},
		RootHandler:    handler.NewRootHandler("ledger-listener", "test"),
		Authenticator:  auth,
		Metrics:        reg,
	})
}

func TestRouter_PublicEndpoints(t *testing.T) {
	r := testRouter(t)

	for _, path := range []string{"/", "/health/live", "/metrics"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "ledger_listener_price_fetch_total")
}

func TestRouter_APIRequiresAuth(t *testing.T) {
	r := testRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/balances", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	req := httptest.NewRequest(http.MethodGet, "/api/balances", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
