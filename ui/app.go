package ui

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"imvqa/internal"
	"imvqa/internal/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// HealthCheck reports whether a dependency is reachable
type HealthCheck func(ctx context.Context) error

// App is the operations listener: health, Prometheus metrics and pprof
type App struct {
	router  *chi.Mux
	metrics *metrics.Metrics
	checks  map[string]HealthCheck
	logger  *internal.Logger
	http    *http.Server
}

// OpsConfig holds ops listener settings
type OpsConfig struct {
	Addr   string
	Logger *internal.Logger
}

// NewApp creates the ops router. checks are run by /healthz.
func NewApp(config OpsConfig, m *metrics.Metrics, checks map[string]HealthCheck) *App {
	if config.Logger == nil {
		config.Logger = internal.DefaultLogger
	}
	a := &App{
		router:  chi.NewRouter(),
		metrics: m,
		checks:  checks,
		logger:  config.Logger.WithComponent("Ops"),
	}
	a.setupMiddleware()
	a.setupRoutes()
	a.http = &http.Server{
		Addr:              config.Addr,
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a
}

// setupMiddleware configures HTTP middleware
func (a *App) setupMiddleware() {
	a.router.Use(middleware.RequestID)
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Timeout(60 * time.Second))
}

// setupRoutes configures the ops routes
func (a *App) setupRoutes() {
	a.router.Get("/healthz", a.handleHealth)
	if a.metrics != nil {
		a.router.Handle("/metrics", a.metrics.Handler())
	}
	a.router.Mount("/debug", middleware.Profiler())
}

// Handler exposes the router
func (a *App) Handler() http.Handler {
	return a.router
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(a.checks))
	for name, check := range a.checks {
		if err := check(ctx); err != nil {
			a.logger.Warn("health check %s failed: %v", name, err)
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": state,
		"checks": results,
	})
}

// Start serves the ops routes until Shutdown is called
func (a *App) Start() error {
	a.logger.Info("ops listener on %s", a.http.Addr)
	if err := a.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the listener gracefully
func (a *App) Shutdown(ctx context.Context) error {
	return a.http.Shutdown(ctx)
}
