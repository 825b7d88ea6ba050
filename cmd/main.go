package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gridwatch/faultmap/internal/config"
	"github.com/gridwatch/faultmap/internal/fetcher"
	"github.com/gridwatch/faultmap/internal/geocoding"
	"github.com/gridwatch/faultmap/internal/metrics"
	"github.com/gridwatch/faultmap/internal/normalizer"
	"github.com/gridwatch/faultmap/internal/repository"
	"github.com/gridwatch/faultmap/internal/server"
	"github.com/gridwatch/faultmap/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Constants for different environment types.
const (
	envLocal = "local"
	envDev   = "development"
	envProd  = "production"
)

// main is the entry point of the application.
func main() {
	// Create a context that will be canceled when an interrupt signal is received.
	// This allows for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load application configuration.
	cfg := config.MustLoad()

	// Set up the logger based on the environment.
	logger := setupLogger(cfg.Env)

	// Create a separate registry for metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.NewMetrics(reg)

	// Pick the geocode cache store: persistent when a database is configured,
	// in-memory otherwise.
	var (
		store  repository.Store
		pinger server.Pinger
	)
	if cfg.Database.Enabled() {
		dtb, err := repository.NewDatabase(
			cfg.Database.Host, cfg.Database.Port, cfg.Database.User, cfg.Database.Password, cfg.Database.Name,
		)
		if err != nil {
			log.Fatalf("Failed to connect to DB: %v", err)
		}
		defer dtb.Close()

		pgStore := repository.NewPostgresStore(dtb, logger)
		if err = pgStore.EnsureSchema(ctx); err != nil {
			log.Fatalf("Failed to prepare geocode cache schema: %v", err)
		}

		store = pgStore
		pinger = dtb
		logger.InfoContext(ctx, "Persistent geocode cache enabled", "host", cfg.Database.Host)
	} else {
		store = repository.NewMemoryStore()
		logger.InfoContext(ctx, "In-memory geocode cache enabled")
	}

	// Create geocoding provider using factory pattern based on configuration
	// This allows runtime selection between different providers (Nominatim, Google, postcodes.io)
	rateLimit := 50
	providerConfig := geocoding.ProviderConfig{
		Type:      geocoding.ProviderType(cfg.ProviderType),
		APIKey:    cfg.APIKey,
		RateLimit: rateLimit / cfg.Workers,
		Country:   cfg.CountrySuffix,
		Logger:    logger,
	}

	geoProvider, err := geocoding.NewProvider(providerConfig)
	if err != nil {
		log.Fatalf("Failed to create geocoding provider: %v", err)
	}

	logger.InfoContext(ctx, "Geocoding provider initialized", "type", cfg.ProviderType)

	cachedProvider := geocoding.NewCachedProvider(
		geoProvider,
		store,
		cfg.ProviderType, // Provider name for metrics
		cfg.GeocodeTimeout,
		cfg.NegativeTTL,
		appMetrics,
		logger,
	)

	faultFetcher := fetcher.New(cfg.Fetch.BaseURL, cfg.Fetch.Dataset, cfg.Fetch.Rows, logger)
	faultNormalizer := normalizer.New(logger)

	dashboard := service.NewDashboardService(
		logger,
		faultFetcher,
		faultNormalizer,
		cachedProvider,
		appMetrics,
		cfg.Workers,
	)

	apiServer := server.NewServer(cfg.APIAddr, dashboard, pinger, reg, logger)

	// Log that the application has started.
	logger.InfoContext(ctx, "Application started. Press Ctrl+C to stop.")

	// Start the monitoring server in a goroutine to allow main to listen for signals.
	go startMonitoringServer(ctx, logger, apiServer, cfg.Port)

	go func() {
		if srvErr := apiServer.Start(); srvErr != nil && !errors.Is(srvErr, http.ErrServerClosed) {
			logger.ErrorContext(ctx, "API server failed", "error", srvErr)
		}
	}()

	// Wait for the context to be canceled (e.g., by Ctrl+C).
	<-ctx.Done()

	// Log that a shutdown signal has been received.
	logger.InfoContext(ctx, "Shutdown signal received. Stopping application...")

	shutdownTimeout := 10 * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err = apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("API server shutdown failed", "error", err)
	}

	// Log graceful shutdown completion.
	logger.Info("Application stopped gracefully.")
}

// startMonitoringServer starts an HTTP server that mirrors the health check
// and metrics endpoints on a dedicated port, so the monitoring listener can
// stay reachable even when the API listener is firewalled off.
//
// Parameters:
// - ctx: A context.Context for managing cancellation and timeouts.
// - log: A logger for logging server events and errors.
// - handler: The API server handler carrying /healthz and /metrics.
// - port: The port number on which the server will listen.
func startMonitoringServer(ctx context.Context, log *slog.Logger, handler http.Handler, port int) {
	log.InfoContext(ctx, "Starting monitoring server", "port", port)
	readTimeout := 5
	writeTimeout := 10
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      handler,
		ReadTimeout:  time.Duration(readTimeout) * time.Second,
		WriteTimeout: time.Duration(writeTimeout) * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.ErrorContext(ctx, "Monitoring server failed", "error", err)
	}
}

// setupLogger initializes and returns a logger based on the environment provided.
func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
				Level:     slog.LevelDebug,
				AddSource: true,
			}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level:     slog.LevelInfo,
				AddSource: false,
			}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level:     slog.LevelWarn,
				AddSource: false,
				ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
					if a.Key == slog.TimeKey {
						return slog.Attr{}
					}
					return a
				},
			}),
		)
	default:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level:     slog.LevelError,
				AddSource: false,
				ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
					if a.Key == slog.TimeKey {
						return slog.Attr{}
					}
					return a
				},
			}),
		)

		log.Error(
			"The env parameter was not specified or was invalid. Logging will be minimal, by default.",
			slog.String("available_envs", "local, development, production"))
	}

	return log
}
