package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Markhorcapital/ledger-listener/pkg/logger"
)

type observed struct {
	route, method string
	status        int
}

type recordingObserver struct {
	calls []observed
}

func (o *recordingObserver) ObserveRequest(route, method string, status int, _ time.Duration) {
	o.calls = append(o.calls, observed{route, method, status})
}

func serveLogged(t *testing.T, path, authz string) (map[string]any, *recordingObserver) {
	t.Helper()
	var buf bytes.Buffer
	obs := &recordingObserver{}
	auth, _ := testAuthenticator(t)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(Logger(logger.NewWithFormat("production", "json", &buf), obs))
	r.With(BearerAuth(auth)).Get("/api/balances/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	r.ServeHTTP(httptest.NewRecorder(), req)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	return line, obs
}

func TestLogger_RecordsClientAndRoute(t *testing.T) {
	line, obs := serveLogged(t, "/api/balances/7", "Bearer static-token")

	assert.Equal(t, "INFO", line["level"])
	assert.Equal(t, staticClient, line["client"])
	assert.Equal(t, "/api/balances/{id}", line["route"])
	assert.EqualValues(t, http.StatusNoContent, line["status"])
	assert.NotEmpty(t, line["request_id"])
	assert.Equal(t, []observed{{"/api/balances/{id}", http.MethodGet, http.StatusNoContent}}, obs.calls)
}

func TestLogger_UnauthorizedCarriesErrorMessage(t *testing.T) {
	line, obs := serveLogged(t, "/api/balances/7", "")

	assert.Equal(t, "WARN", line["level"])
	assert.Equal(t, "missing authorization header", line["error"])
	assert.Nil(t, line["client"])
	require.Len(t, obs.calls, 1)
	assert.Equal(t, http.StatusUnauthorized, obs.calls[0].status)
}
