// Package app assembles the hospital administration backend: it loads
// configuration, initializes observability, wires the license subsystem
// and runs the HTTP server.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"hospadmin/internal/config"
	"hospadmin/internal/infrastructure"
	"hospadmin/internal/license"
	customMiddleware "hospadmin/internal/middleware"
	"hospadmin/internal/services"
	transport "hospadmin/internal/transport/http"
)

// Application holds the wired components of the backend.
type Application struct {
	Config         *config.Config
	Logger         *slog.Logger
	OTelProviders  *infrastructure.OTelProviders
	Metrics        *infrastructure.BusinessMetrics
	LicenseService services.LicenseService
	Router         chi.Router
	Server         *http.Server
}

// NewApplication builds the application from configuration.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}

	providers, err := infrastructure.InitializeOTel(
		infrastructure.DefaultOTelConfig(cfg.Logging.Development), logger)
	if err != nil {
		return nil, fmt.Errorf("initialize telemetry: %w", err)
	}

	var metrics *infrastructure.BusinessMetrics
	if providers.Meter != nil {
		metrics, err = infrastructure.CreateBusinessMetrics(providers.Meter)
		if err != nil {
			return nil, fmt.Errorf("create metrics: %w", err)
		}
	}

	secret, err := cfg.ResolveSecret()
	if err != nil {
		return nil, err
	}

	codec := license.NewCodec(secret)
	store := license.NewStore(cfg.License.StateFile, secret, logger)
	licenseService := services.NewLicenseService(license.NewValidator(codec), store, logger, metrics)

	app := &Application{
		Config:         cfg,
		Logger:         logger,
		OTelProviders:  providers,
		Metrics:        metrics,
		LicenseService: licenseService,
	}
	app.setupRouter()
	app.createServer()
	return app, nil
}

func (a *Application) setupRouter() {
	r := chi.NewRouter()

	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.Recoverer(a.Logger))
	r.Use(customMiddleware.SecurityHeaders)
	r.Use(customMiddleware.StructuredLogger(a.Logger))
	r.Use(customMiddleware.HTTPMetrics(a.Metrics))

	if a.Config.Security.RateLimit.Enabled {
		limiter := customMiddleware.NewRateLimiter(
			a.Config.Security.RateLimit.RPS,
			a.Config.Security.RateLimit.Burst,
			a.Logger)
		r.Use(limiter.Handler)
	}

	gate := customMiddleware.NewLicenseGate(
		a.LicenseService, a.Logger, a.Config.License.CacheTTL, a.Metrics)
	r.Use(gate.Handler)

	licenseHandler := transport.NewLicenseHandler(a.LicenseService, a.Logger)
	healthHandler := transport.NewHealthHandler(a.LicenseService, a.Logger)

	var prometheusHTTP http.Handler
	if a.OTelProviders != nil {
		prometheusHTTP = a.OTelProviders.PrometheusHTTP
	}
	metricsHandler := transport.NewMetricsHandler(prometheusHTTP)

	r.Route("/api", func(api chi.Router) {
		api.Mount("/license", licenseHandler.Routes())
		api.Get("/health", healthHandler.HealthCheck)
		api.Get("/health/ready", healthHandler.ReadinessCheck)
	})
	r.Get("/metrics", metricsHandler.Metrics)

	a.Router = r
}

func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      a.Router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  a.Config.Server.IdleTimeout,
	}
}

// Run starts the HTTP server and blocks until the context is cancelled
// or an interrupt signal arrives, then shuts down gracefully.
func (a *Application) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfoContext(ctx, "server starting",
			slog.String("addr", a.Server.Addr),
			slog.Int("port", a.Config.Server.Port))
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		a.Logger.Info("shutdown requested")
		return a.Stop(context.Background())
	})

	return g.Wait()
}

// Stop shuts down the server and flushes telemetry.
func (a *Application) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		a.Logger.ErrorContext(shutdownCtx, "server shutdown failed",
			slog.String("error", err.Error()))
		return err
	}

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.WarnContext(shutdownCtx, "telemetry shutdown failed",
				slog.String("error", err.Error()))
		}
	}

	if err := infrastructure.CloseLogFile(); err != nil {
		return err
	}

	a.Logger.Info("server stopped")
	return nil
}
