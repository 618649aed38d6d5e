package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Markhorcapital/ledger-listener/internal/infra/gateway/coingecko"
	"github.com/Markhorcapital/ledger-listener/internal/infra/gateway/venue"
	"github.com/Markhorcapital/ledger-listener/internal/infra/metrics"
	"github.com/Markhorcapital/ledger-listener/internal/infra/postgres"
	infraRedis "github.com/Markhorcapital/ledger-listener/internal/infra/redis"
	"github.com/Markhorcapital/ledger-listener/internal/ledger"
	"github.com/Markhorcapital/ledger-listener/internal/platform/balance"
	"github.com/Markhorcapital/ledger-listener/internal/platform/pricing"
	"github.com/Markhorcapital/ledger-listener/internal/transport/httpapi"
	"github.com/Markhorcapital/ledger-listener/internal/transport/httpapi/handler"
	"github.com/Markhorcapital/ledger-listener/internal/transport/httpapi/middleware"
	"github.com/Markhorcapital/ledger-listener/pkg/config"
	"github.com/Markhorcapital/ledger-listener/pkg/logger"
	"github.com/Markhorcapital/ledger-listener/pkg/secret"
)

const serviceName = "ledger-listener"

func main() {
	// Create context that listens for termination signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewDefault(cfg.Env)
	log.Info("Starting ledger listener",
		"env", cfg.Env,
		"port", cfg.Port,
		"version", cfg.ServiceVersion,
	)

	topology, err := config.LoadTopology(cfg.TopologyPath)
	if err != nil {
		log.Error("Failed to load topology", "path", cfg.TopologyPath, "error", err)
		os.Exit(1)
	}
	log.Info("Topology loaded",
		"chains", len(topology.Chains),
		"ledger_groups", len(topology.Ledger.CEX.Groups))

	// Credential store
	db, err := postgres.NewPool(ctx, postgres.Config{URL: cfg.DatabaseURL})
	if err != nil {
		log.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	log.Info("Database connection established")

	// Last-known prices survive restarts when redis is configured
	var priceStore pricing.Store
	if cfg.RedisURL != "" {
		redisClient, err := infraRedis.NewClient(ctx, cfg.RedisURL, cfg.RedisPassword)
		if err != nil {
			log.Warn("Redis unavailable, last-known prices kept in memory only", "error", err)
		} else {
			defer redisClient.Close()
			priceStore = infraRedis.NewPriceStore(redisClient, log)
			log.Info("Redis connection established")
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collectorSet := metrics.New(registry)

	var feed pricing.Feed
	if cfg.CoinGeckoAPIKey != "" {
		feed = coingecko.NewClient(cfg.CoinGeckoAPIKey, cfg.CoinGeckoBaseURL)
	}
	priceSvc := pricing.NewService(pricing.Config{
		Enabled:         cfg.PricingEnabled && feed != nil,
		Timeout:         cfg.PricingTimeout,
		PrimaryAsset:    topology.Pricing.PrimaryAsset,
		PrimaryContract: topology.Pricing.ContractAddress,
		VSCurrency:      topology.Pricing.VSCurrency,
		PriceIDs:        topology.Pricing.PriceIDs,
	}, feed, priceStore, collectorSet, log)
	if err := priceSvc.Warm(ctx); err != nil {
		log.Warn("Failed to load last-known prices", "error", err)
	}
	log.Info("Pricing initialized", "enabled", cfg.PricingEnabled, "assets", len(priceSvc.TrackedAssets()))

	// Gateways and fan-out
	factory := venue.NewFactory(topology, venue.Options{
		RateLimit: cfg.VenueRateLimit,
		RateBurst: cfg.VenueRateBurst,
	}, log)
	defer factory.Close()

	orchestrator := balance.NewOrchestrator(&balance.OrchestratorConfig{
		CallTimeout:    cfg.FetchTimeout,
		RetryAttempts:  cfg.FetchRetryAttempts,
		RetryDelay:     500 * time.Millisecond,
		MaxConcurrency: cfg.FetchConcurrency,
	}, collectorSet, log)

	cexLayout, err := ledger.NewCEXLayout(topology.Ledger.CEX)
	if err != nil {
		log.Error("Invalid CEX ledger layout", "error", err)
		os.Exit(1)
	}
	onchainLayout, err := ledger.NewOnchainLayout(topology.Ledger.Onchain, topology.Chains)
	if err != nil {
		log.Error("Invalid on-chain ledger layout", "error", err)
		os.Exit(1)
	}

	balanceSvc := balance.NewService(balance.ServiceDeps{
		Accounts:     postgres.NewAccountRepository(db.Pool, secret.NewCipher(cfg.CredentialSecret), log),
		Venues:       topology,
		Wallets:      factory,
		Factory:      factory,
		Orchestrator: orchestrator,
		Pricer:       priceSvc,
		CEXAssets:    []string{cexLayout.PrimaryAsset},
		ChainAssets:  onchainLayout.Assets,
	}, log)

	ledgerSvc := ledger.NewService(
		balanceSvc,
		ledger.NewCEXBuilder(cexLayout, log),
		ledger.NewOnchainBuilder(onchainLayout, log),
		log,
	)

	// Auth
	var tokens *middleware.TokenService
	if cfg.JWTSecret != "" {
		tokens = middleware.NewTokenService(cfg.JWTSecret)
	}
	authenticator, err := middleware.NewAuthenticator(cfg.AuthToken, cfg.AuthTokenHash, tokens)
	if err != nil {
		log.Error("Failed to initialize authentication", "error", err)
		os.Exit(1)
	}

	r := httpapi.NewRouter(httpapi.Config{
		Logger:         log,
		AllowedOrigins: cfg.AllowedOrigins,
		RootHandler:    handler.NewRootHandler(serviceName, cfg.ServiceVersion),
		HealthHandler:  handler.NewHealthHandler(db),
		BalanceHandler: handler.NewBalanceHandler(balanceSvc, priceSvc, log),
		LedgerHandler:  handler.NewLedgerHandler(ledgerSvc, log),
		Authenticator:  authenticator,
		Metrics:        registry,
		Observer:       collectorSet,
	})

	// A balance request waits for the slowest venue, so the write timeout
	// has to outlast FETCH_TIMEOUT.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.FetchTimeout + cfg.PricingTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", "error", err)
		os.Exit(1)
	}

	log.Info("Server stopped gracefully")
}
