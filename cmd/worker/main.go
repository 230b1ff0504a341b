package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/alert-engine/internal/app"
	"github.com/jwalitptl/alert-engine/internal/config"
	"github.com/jwalitptl/alert-engine/internal/handler/health"
	"github.com/jwalitptl/alert-engine/internal/handler/prometheus"
	"github.com/jwalitptl/alert-engine/internal/middleware"
	internalworker "github.com/jwalitptl/alert-engine/internal/worker"
	"github.com/jwalitptl/alert-engine/pkg/logger"
	"github.com/jwalitptl/alert-engine/pkg/messaging/redis"
	"github.com/jwalitptl/alert-engine/pkg/worker"
)

func main() {
	// Load config
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := app.NewLogger(cfg.Log)

	if err := run(cfg, log); err != nil {
		log.Fatal(err, "worker failed")
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	// Initialize Redis broker
	broker, err := a.ConnectBroker()
	if err != nil {
		return fmt.Errorf("failed to create Redis broker: %w", err)
	}
	defer broker.Close()

	processor := worker.NewOutboxProcessor(a.Outbox, broker, a.Alerts, cfg.Outbox.ToWorkerConfig(), log, a.Metrics)
	cleanup := internalworker.NewOutboxCleanupWorker(a.Outbox, cfg.Outbox.Retention, cfg.Outbox.CleanupInterval, log, a.Metrics)
	scheduler := internalworker.NewScanScheduler(
		a.Scanner,
		redis.NewLock(broker.Client(), cfg.Scan.LockKey, cfg.Scan.LockTTL),
		cfg.Scan.Interval,
		log,
	)

	srv := healthServer(cfg, a, broker, log)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(err, "health check server failed")
			cancel()
		}
	}()

	var wg sync.WaitGroup
	start := func(fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
		}()
	}
	start(processor.Start)
	if cfg.Outbox.CleanupInterval > 0 {
		start(cleanup.Start)
	}
	if cfg.Scan.Enabled {
		start(scheduler.Start)
	} else {
		log.Warn("scheduled scanning disabled")
	}

	<-ctx.Done()
	log.Info("Shutting down...")

	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer stop()
	_ = srv.Shutdown(shutdownCtx)

	// In-flight patient evaluations finish under their own timeout.
	wg.Wait()
	return nil
}

func healthServer(cfg *config.Config, a *app.App, broker *redis.RedisBroker, log *logger.Logger) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(middleware.Recovery(log))
	engine.GET("/metrics", prometheus.New(a.Registry).Handler())

	health.NewHandler(map[string]health.Check{
		"database": a.DB.PingContext,
		"redis":    broker.Ping,
	}).RegisterRoutes(engine)

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Health.Port),
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
