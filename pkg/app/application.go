package app

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"auctionworker/pkg/config"
	"auctionworker/pkg/metrics"
	"auctionworker/pkg/middleware"

	"github.com/julienschmidt/httprouter"
)

// RouteRegistrar mounts its routes on a router.
type RouteRegistrar interface {
	RegisterRoutes(*httprouter.Router)
}

type Application struct {
	cfg         *config.Config
	server      *http.Server
	rateLimiter *middleware.IPRateLimiter
	metrics     *metrics.Metrics
	handler     http.Handler
	stopOnce    sync.Once
}

// NewApplication builds the HTTP server: health and metrics endpoints with
// minimal middleware, application routes behind the full stack.
func NewApplication(cfg *config.Config, m *metrics.Metrics, health RouteRegistrar, appHandler RouteRegistrar) *Application {
	a := &Application{cfg: cfg, metrics: m}

	mux := http.NewServeMux()
	healthHandler := a.healthHandler(health)
	mux.Handle("/health", healthHandler)
	mux.Handle("/ready", healthHandler)
	if m != nil {
		mux.Handle("/metrics", m.Handler())
	}
	mux.Handle("/", a.appHandler(appHandler))
	a.handler = mux

	a.server = &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	cfg.Log.Info("HTTP server configured", "port", cfg.Port)
	return a
}

func (a *Application) healthHandler(health RouteRegistrar) http.Handler {
	healthRouter := httprouter.New()
	health.RegisterRoutes(healthRouter)

	var h http.Handler = healthRouter
	h = middleware.RequestLogging(a.cfg.Log)(h)
	h = middleware.Recovery(a.cfg.Log)(h)
	a.cfg.Log.Info("Health endpoints configured with minimal middleware (Recovery + Logging only)")
	return h
}

func (a *Application) appHandler(appHandler RouteRegistrar) http.Handler {
	appRouter := httprouter.New()
	appHandler.RegisterRoutes(appRouter)

	a.rateLimiter = middleware.NewIPRateLimiter(a.cfg.RateLimitRPS, a.cfg.RateLimitBurst, a.cfg.Log)

	var h http.Handler = appRouter
	h = middleware.RequestTimeout(a.cfg.RequestTimeout)(h)
	h = middleware.RateLimit(a.rateLimiter)(h)
	h = middleware.ContentTypeValidation(a.cfg.Log)(h)
	h = middleware.MaxRequestSize(int64(a.cfg.MaxRequestSize))(h)
	h = a.metrics.Instrument(h)
	h = middleware.RequestLogging(a.cfg.Log)(h)
	h = middleware.Recovery(a.cfg.Log)(h)
	a.cfg.Log.Info("Application endpoints configured with full middleware stack")
	return h
}

// Handler is the complete middleware-wrapped mux.
func (a *Application) Handler() http.Handler {
	return a.handler
}

// Run serves until the server is shut down or ctx ends. A shutdown is not
// an error.
func (a *Application) Run(ctx context.Context) error {
	serverErrors := make(chan error, 1)

	go func() {
		a.cfg.Log.Info("Starting HTTP server", "address", a.server.Addr)
		serverErrors <- a.server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err

	case <-ctx.Done():
		a.cfg.Log.Info("Shutdown requested", "reason", context.Cause(ctx))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()
		if err := a.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-serverErrors; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// Shutdown stops the server gracefully, closing it when ctx runs out.
// Calls after the first are no-ops.
func (a *Application) Shutdown(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		a.cfg.Log.Info("Starting graceful shutdown...")
		a.rateLimiter.Stop()

		if err = a.server.Shutdown(ctx); err != nil {
			a.cfg.Log.Error("Server shutdown failed", "error", err)
			err = a.server.Close()
			return
		}
		a.cfg.Log.Info("Server stopped gracefully")
	})
	return err
}
