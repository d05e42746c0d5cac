package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	stdhttp "net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/agentvault/agentvault/internal/adapter/inbound/http"
	"github.com/agentvault/agentvault/internal/adapter/outbound/memory"
	avredis "github.com/agentvault/agentvault/internal/adapter/outbound/redis"
	"github.com/agentvault/agentvault/internal/adapter/outbound/sqlite"
	"github.com/agentvault/agentvault/internal/config"
	"github.com/agentvault/agentvault/internal/domain/policy"
	"github.com/agentvault/agentvault/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the policy engine server",
	Long: `Start the agentvault policy engine HTTP server.

The server evaluates proposed transactions against per-wallet policies and
serves the policy management API.

Examples:
  # Start with config file settings
  agentvault serve

  # Start with a specific config file
  agentvault --config /path/to/config.yaml serve

  # Start fully in-memory for local development
  agentvault serve --dev`,
	RunE: runServe,
}

var devMode bool

func init() {
	serveCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (in-memory stores, debug logging)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// Load configuration without validation so the CLI flag can override
	// DevMode first.
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if devMode {
		cfg.DevMode = true
	}
	cfg.SetDevDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	// stop() restores default signal handling so a second Ctrl+C does a
	// hard kill.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logLevel := parseLogLevel(cfg.Server.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	return run(ctx, cfg, logger)
}

// run wires all components together and serves until the context is
// cancelled.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	cacheTTL, err := cfg.CacheTTL()
	if err != nil {
		return fmt.Errorf("parse cache ttl: %w", err)
	}
	requestTimeout, err := cfg.RequestTimeout()
	if err != nil {
		return fmt.Errorf("parse request timeout: %w", err)
	}

	var (
		repo      policy.Repository
		cache     policy.Cache
		counters  policy.CounterStore
		publisher policy.EventPublisher
	)

	if cfg.DevMode {
		logger.Warn("dev mode: all state is in-memory and lost on restart")
		repo = memory.NewPolicyStore()
		cache = memory.NewPolicyCache(cacheTTL)
		counters = memory.NewCounterStore()
		publisher = memory.NewPublisher()
	} else {
		store, err := sqlite.Open(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("open policy store: %w", err)
		}
		defer func() { _ = store.Close() }()
		repo = store

		client := avredis.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		defer func() { _ = client.Close() }()

		// Fail fast when Redis is unreachable at boot. At runtime a Redis
		// outage degrades to fail-secure denies instead.
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("ping redis at %s: %w", cfg.Redis.Addr, err)
		}

		cache = avredis.NewPolicyCache(client, cacheTTL, logger)
		counters = avredis.NewCounterStore(client)
		publisher = avredis.NewPublisher(client, cfg.Events.Channel)
	}

	engine := policy.NewEngine(logger, policy.DefaultEvaluators()...)
	policyService := service.NewPolicyService(repo, cache, logger)
	evaluatorService := service.NewEvaluatorService(policyService, engine, counters, publisher, logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := http.NewMetrics(registry)
	promHandler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	handler := http.NewHandler(policyService, evaluatorService, metrics, logger, Version)

	server := &stdhttp.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           stdhttp.TimeoutHandler(handler.Routes(promHandler), requestTimeout, "request timed out"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("agentvault starting",
			"version", Version,
			"http_addr", cfg.Server.HTTPAddr,
			"dev_mode", cfg.DevMode,
			"cache_ttl", cacheTTL.String(),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	logger.Info("agentvault stopped")
	return nil
}

// parseLogLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
