package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/brojonat/kora/service/cache"
	"github.com/brojonat/kora/service/config"
	"github.com/brojonat/kora/service/fee"
	"github.com/brojonat/kora/service/metrics"
	"github.com/brojonat/kora/service/oracle"
	"github.com/brojonat/kora/service/payment"
	"github.com/brojonat/kora/service/server"
	"github.com/brojonat/kora/service/signer"
	"github.com/brojonat/kora/service/solana"
	"github.com/brojonat/kora/service/usage"
	"github.com/brojonat/kora/service/validator"
)

func main() {
	configPath := getEnvOrDefault("KORA_CONFIG", "kora.toml")
	signersPath := getEnvOrDefault("KORA_SIGNERS_CONFIG", "signers.toml")

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel)

	errs, warns := cfg.Validate()
	for _, w := range warns {
		logger.Warn("config warning", "warning", w)
	}
	if len(errs) > 0 {
		for _, e := range errs {
			logger.Error("config error", "error", e)
		}
		os.Exit(1)
	}

	rules, err := cfg.Compile()
	if err != nil {
		logger.Error("failed to compile validation rules", "error", err)
		os.Exit(1)
	}

	signerCfg, err := config.LoadSignerPool(signersPath)
	if err != nil {
		logger.Error("failed to load signer config", "error", err)
		os.Exit(1)
	}
	if errs := signerCfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			logger.Error("signer config error", "error", e)
		}
		os.Exit(1)
	}

	var m *metrics.Metrics
	registry := prometheus.NewRegistry()
	if cfg.Metrics.Enabled {
		m = metrics.NewMetrics(registry)
	}

	pool, err := signer.NewPoolFromConfig(signerCfg, m)
	if err != nil {
		logger.Error("failed to initialize signer pool", "error", err)
		os.Exit(1)
	}
	logger.Info("signer pool initialized",
		"strategy", pool.Strategy(),
		"signers", len(pool.Records()),
	)

	chain := solana.NewClient(solana.NewRPCClient(cfg.RPCURL), m, logger)

	var store cache.Store
	if cfg.Kora.Cache.Enabled && cfg.Kora.Cache.URL != "" {
		store, err = cache.NewRedisStore(cfg.Kora.Cache.URL)
		if err != nil {
			logger.Error("failed to connect account cache", "error", err)
			os.Exit(1)
		}
		defer store.Close()
		logger.Info("account cache enabled")
	}
	accounts := cache.New(store, chain, time.Duration(cfg.Kora.Cache.AccountTTL)*time.Second, m, logger)

	prices := buildOracle(cfg, m)

	var usageStore usage.Store
	if cfg.Kora.UsageLimit.Enabled && cfg.Kora.UsageLimit.CacheURL != "" {
		usageStore, err = usage.NewRedisStore(cfg.Kora.UsageLimit.CacheURL)
		if err != nil {
			if !cfg.Kora.UsageLimit.FallbackIfUnavailable {
				logger.Error("failed to connect usage limit store", "error", err)
				os.Exit(1)
			}
			logger.Warn("usage limit store unavailable, falling back open", "error", err)
		} else {
			defer usageStore.Close()
		}
	}

	deps := server.Deps{
		Pool:      pool,
		Chain:     chain,
		Accounts:  accounts,
		Validator: validator.New(rules, accounts, logger, m),
		Estimator: fee.New(rules, accounts, chain, prices, logger),
		Usage:     usage.New(cfg.Kora.UsageLimit, usageStore, pool, logger, m),
		Metrics:   m,
	}
	deps.Payments = payment.New(rules, deps.Estimator, logger, m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var stopTracker func()
	if m != nil && cfg.Metrics.FeePayerBalance.Enabled {
		tracked := make([]metrics.TrackedSigner, 0, len(pool.Records()))
		for _, rec := range pool.Records() {
			tracked = append(tracked, metrics.TrackedSigner{
				Name:    rec.Name,
				Address: rec.Signer.Pubkey(),
			})
		}
		tracker := metrics.NewBalanceTracker(
			chain,
			tracked,
			m,
			time.Duration(cfg.Metrics.ScrapeInterval)*time.Second,
			time.Duration(cfg.Metrics.FeePayerBalance.ExpirySeconds)*time.Second,
			logger,
		)
		stopTracker = tracker.Start(ctx)
		logger.Info("signer balance tracker started")
	}

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("GET "+cfg.Metrics.Endpoint, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		metricsServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler: metricsMux,
		}
		go func() {
			logger.Info("starting metrics server", "addr", metricsServer.Addr, "endpoint", cfg.Metrics.Endpoint)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	httpServer := server.New(cfg.ServerAddr, cfg, rules, deps, logger)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if stopTracker != nil {
			stopTracker()
		}
		if metricsServer != nil {
			metricsServer.Shutdown(shutdownCtx)
		}
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
	}
}

// buildOracle wires the configured price source behind a retry layer.
func buildOracle(cfg *config.Config, m *metrics.Metrics) oracle.Source {
	switch cfg.Validation.PriceSource {
	case "Mock", "mock":
		return oracle.NewMock(decimal.NewFromInt(1))
	default:
		jup := oracle.NewJupiter(os.Getenv("JUPITER_API_KEY"), m)
		return oracle.NewRetrying(jup, 3, 500*time.Millisecond)
	}
}

func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
