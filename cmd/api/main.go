package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/alert-engine/internal/app"
	"github.com/jwalitptl/alert-engine/internal/config"
	alerthandler "github.com/jwalitptl/alert-engine/internal/handler/alert"
	"github.com/jwalitptl/alert-engine/internal/handler/health"
	"github.com/jwalitptl/alert-engine/internal/handler/prometheus"
	"github.com/jwalitptl/alert-engine/internal/middleware"
	"github.com/jwalitptl/alert-engine/internal/router"
	"github.com/jwalitptl/alert-engine/pkg/auth"
	"github.com/jwalitptl/alert-engine/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	log := app.NewLogger(cfg.Log)

	if err := run(cfg, log); err != nil {
		log.Fatal(err, "api server failed")
	}
	log.Info("server exited properly")
}

func run(cfg *config.Config, log *logger.Logger) error {
	if cfg.JWT.Secret == "" {
		return errors.New("jwt.secret is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	gin.SetMode(gin.ReleaseMode)

	authMiddleware := middleware.NewAuthMiddleware(auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer))
	healthHandler := health.NewHandler(map[string]health.Check{
		"database": a.DB.PingContext,
	})
	alertHandler := alerthandler.NewHandler(a.Service, a.Audit, a.Scanner, authMiddleware)

	r, err := router.NewRouter(router.Dependencies{
		Auth:       authMiddleware,
		Health:     healthHandler,
		Metrics:    prometheus.New(a.Registry),
		API:        []router.Handler{alertHandler},
		AppMetrics: a.Metrics,
		Logger:     log,
	}, router.RouterConfig{
		RateLimitEnabled: cfg.RateLimit.Enabled,
		RateLimit:        rate.Limit(cfg.RateLimit.RequestsPerSecond),
		RateBurst:        cfg.RateLimit.Burst,
		RequestTimeout:   cfg.Server.RequestTimeout,
	})
	if err != nil {
		return err
	}

	// Create server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting api server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	select {
	case err := <-errCh:
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}
	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}
