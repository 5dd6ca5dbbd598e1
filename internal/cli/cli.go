// Package cli provides the jobqueue command line interface, built on
// cobra the way the rest of the example pack wires multi-command
// binaries: a persistent --config flag on the root command, one
// subcommand per operation.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/v-rdyy/jobqueue/internal/cache"
	"github.com/v-rdyy/jobqueue/internal/config"
	"github.com/v-rdyy/jobqueue/internal/db"
	httpx "github.com/v-rdyy/jobqueue/internal/http"
	"github.com/v-rdyy/jobqueue/internal/ledger"
	"github.com/v-rdyy/jobqueue/internal/notify"
	"github.com/v-rdyy/jobqueue/internal/observability"
	"github.com/v-rdyy/jobqueue/internal/queue"
	"github.com/v-rdyy/jobqueue/internal/queue/worker"
	"github.com/v-rdyy/jobqueue/internal/ratelimit"
	"github.com/v-rdyy/jobqueue/internal/store"
	"github.com/v-rdyy/jobqueue/internal/tasks"
)

var configFile string

// BuildCLI assembles the root command and its subcommands.
func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "jobqueue",
		Short:   "jobqueue runs an in-process asynchronous job execution service",
		Version: "1.0.0",
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (optional)")
	rootCmd.AddCommand(buildServeCommand())
	rootCmd.AddCommand(buildTasksCommand())

	return rootCmd
}

func buildServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the worker pool in one process",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configFile)
		},
	}
}

func buildTasksCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tasks",
		Short: "List the registered task names",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := tasks.NewRegistry()
			tasks.Register(registry)
			for _, name := range registry.Names() {
				fmt.Println(name)
			}
			return nil
		},
	}
}

func runServe(configPath string) error {
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := observability.NewLogger(cfg.Env)

	var shutdownTracer func(context.Context) error
	if cfg.OTLPEndpoint != "" {
		shutdownTracer, err = observability.InitTracer(ctx, "jobqueue", cfg.OTLPEndpoint)
		if err != nil {
			return fmt.Errorf("init tracer: %w", err)
		}
		defer func() { _ = shutdownTracer(context.Background()) }()

		log = slog.New(observability.NewTraceHandler(log.Handler()))
	}
	slog.SetDefault(log)

	reg := prometheus.NewRegistry()
	prom := observability.NewProm(reg)

	registry := tasks.NewRegistry()
	tasks.Register(registry)
	registry.Freeze()

	st := store.New()
	q := queue.New()

	statusCache := cache.New(cfg.StatusCacheTTL)
	st.OnMutate(statusCache.Delete)

	rec, closeLedger := buildLedger(ctx, cfg, prom, log)
	if closeLedger != nil {
		defer closeLedger()
	}

	notifier := buildNotifier(cfg)

	submitLimiter, closeLimiter := buildSubmitLimiter(cfg)
	if closeLimiter != nil {
		defer closeLimiter()
	}

	pool := worker.New(worker.Config{
		Concurrency:    cfg.WorkerCount,
		DefaultTimeout: time.Duration(cfg.DefaultTimeoutSeconds) * time.Second,
		ShutdownGrace:  cfg.ShutdownGrace,
	}, st, q, registry, notifier, rec)

	router := httpx.NewRouter(st, q, statusCache, cfg.DefaultMaxRetries, submitLimiter, prom)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	poolDone := make(chan struct{})
	go func() {
		pool.Run(ctx)
		close(poolDone)
	}()

	go func() {
		log.Info("server starting", "addr", srv.Addr, "env", cfg.Env, "workers", cfg.WorkerCount)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")

	q.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server graceful shutdown failed", "err", err)
		_ = srv.Close()
	} else {
		log.Info("server stopped gracefully")
	}

	// Pool.Run itself returns within the configured shutdown grace.
	<-poolDone

	return nil
}

func buildLedger(ctx context.Context, cfg config.Config, prom *observability.Prom, log *slog.Logger) (ledger.Recorder, func()) {
	if cfg.DatabaseURL == "" {
		return ledger.NoopLedger{}, nil
	}

	pool, err := db.NewPool(cfg.DatabaseURL)
	if err != nil {
		log.Warn("ledger: connect failed, falling back to no-op", "err", err)
		return ledger.NoopLedger{}, nil
	}

	migrateCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := ledger.Migrate(migrateCtx, pool); err != nil {
		log.Warn("ledger: migrate failed, falling back to no-op", "err", err)
		pool.Close()
		return ledger.NoopLedger{}, nil
	}

	return ledger.New(pool, prom), pool.Close
}

func buildNotifier(cfg config.Config) notify.Notifier {
	if cfg.WebhookURL == "" {
		return notify.NewLogNotifier()
	}

	webhook := notify.NewWebhookNotifier(cfg.WebhookURL, nil)
	return notify.NewCircuitBreakerNotifier(webhook, notify.CircuitBreakerConfig{})
}

func buildSubmitLimiter(cfg config.Config) (ratelimit.Limiter, func()) {
	if cfg.RedisAddr == "" {
		return ratelimit.NewLocal(cfg.SubmitRateLimit, cfg.SubmitRateWindow), nil
	}

	r := ratelimit.NewRedis(ratelimit.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, cfg.SubmitRateLimit, cfg.SubmitRateWindow)
	return r, func() { _ = r.Close() }
}
