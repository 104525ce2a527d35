package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/AyanDgr8/wa-prod/internal/api"
	"github.com/AyanDgr8/wa-prod/internal/cache"
	"github.com/AyanDgr8/wa-prod/internal/config"
	"github.com/AyanDgr8/wa-prod/internal/connection"
	"github.com/AyanDgr8/wa-prod/internal/quota"
	"github.com/AyanDgr8/wa-prod/internal/reconcile"
	"github.com/AyanDgr8/wa-prod/internal/repo"
	"github.com/AyanDgr8/wa-prod/internal/scheduler"
	"github.com/AyanDgr8/wa-prod/internal/sender"
	"github.com/AyanDgr8/wa-prod/internal/transport/gateway"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadAll()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("wa-prod starting",
		"addr", cfg.Server.Address,
		"gateway", cfg.Gateway.URL,
		"interval", cfg.Scheduler.Interval.String(),
		"batch", cfg.Scheduler.BatchSize,
		"redis", cfg.Redis.Enabled,
	)

	db, err := sql.Open("pgx", cfg.Database.PostgresURL)
	if err != nil {
		slog.Error("failed to open postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := db.PingContext(pingCtx); err != nil {
		slog.Error("failed to ping postgres", "error", err)
		os.Exit(1)
	}

	messages := repo.NewPostgresMessageRepo(db)
	timeline := repo.NewPostgresTimelineRepo(db)
	creds := repo.NewPostgresCredentialRepo(db)
	subs := repo.NewPostgresSubscriptionRepo(db)

	var statusCache *cache.RedisCache
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		statusCache = cache.NewRedisCache(rdb, cfg.Redis.TTL)
	}

	var reconcileCache reconcile.StatusCache
	var pipelineCache sender.StatusCache
	var apiCache cache.StatusStore
	if statusCache != nil {
		reconcileCache = statusCache
		pipelineCache = statusCache
		apiCache = statusCache
	}

	reconciler := reconcile.New(messages, timeline, reconcileCache, cfg.Reconcile.Buffer)
	reconciler.Start()
	defer reconciler.Stop()

	registry := connection.NewRegistry()
	supervisor := connection.NewSupervisor(registry, creds, gateway.NewClient(cfg.Gateway.URL), reconciler, cfg.Connect)

	gate := quota.NewGate(subs)
	pipeline := sender.NewPipeline(messages, timeline, gate, registry, pipelineCache, cfg.Sender)

	// Canceled at shutdown so an in-flight sweep stops instead of racing
	// the process exit.
	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	sweep := scheduler.NewSweep(messages, supervisor, pipeline, cfg.Scheduler)
	sched, err := scheduler.New(cfg.Scheduler.Interval, sweep.Run)
	if err != nil {
		slog.Error("failed to create scheduler", "error", err)
		os.Exit(1)
	}
	sched.Start(rootCtx)
	defer sched.Stop()

	handler := api.NewHandler(sched, messages, supervisor, pipeline, apiCache)

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           loggingMiddleware(api.Router(handler)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		slog.Error("http server failed", "error", err)
	case sig := <-stop:
		slog.Info("shutting down", "signal", sig.String())
	}

	cancelRoot()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown failed", "error", err)
	}

	slog.Info("wa-prod stopped")
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		slog.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
