package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Markhorcapital/ledger-listener/internal/transport/httpapi/handler"
	"github.com/Markhorcapital/ledger-listener/internal/transport/httpapi/middleware"
	"github.com/Markhorcapital/ledger-listener/pkg/logger"
)

// Config holds router configuration
type Config struct {
	Logger         *logger.Logger
	AllowedOrigins []string
	RootHandler    *handler.RootHandler
	HealthHandler  *handler.HealthHandler
	BalanceHandler *handler.BalanceHandler
	LedgerHandler  *handler.LedgerHandler
	Authenticator  *middleware.Authenticator

	// Metrics is served on /metrics when set
	Metrics prometheus.Gatherer

	// Observer receives request timings, may be nil
	Observer middleware.RequestObserver

	// RateLimiter overrides the default per-IP limiter
	RateLimiter func(http.Handler) http.Handler
}

// NewRouter creates a new HTTP router
func NewRouter(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	rateLimit := cfg.RateLimiter
	if rateLimit == nil {
		rateLimit = middleware.RateLimit()
	}

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logger(cfg.Logger, cfg.Observer))
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(chimiddleware.Compress(5))

	// Public endpoints
	if cfg.RootHandler != nil {
		r.Get("/", cfg.RootHandler.GetRoot)
	}
	r.Get("/health/live", handler.GetLiveness)
	if cfg.HealthHandler != nil {
		r.Get("/health", cfg.HealthHandler.GetHealth)
	}
	if cfg.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Metrics, promhttp.HandlerOpts{}))
	}

	// Every /api route requires a bearer token
	r.Route("/api", func(r chi.Router) {
		r.Use(rateLimit)
		r.Use(middleware.BearerAuth(cfg.Authenticator))

		if cfg.BalanceHandler != nil {
			r.Get("/balances", cfg.BalanceHandler.GetBalances)
			r.Get("/balances/summary", cfg.BalanceHandler.GetSummary)
			r.Get("/dex/balances", cfg.BalanceHandler.GetDexBalances)
		}

		if cfg.LedgerHandler != nil {
			r.Route("/ledger", func(r chi.Router) {
				r.Get("/cex/columns", cfg.LedgerHandler.GetCEXColumns)
				r.Post("/cex/rows", cfg.LedgerHandler.CreateCEXRow)
				r.Get("/onchain/columns", cfg.LedgerHandler.GetOnchainColumns)
				r.Post("/onchain/rows", cfg.LedgerHandler.CreateOnchainRow)
			})
		}
	})

	return r
}
