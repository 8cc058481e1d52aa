package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/lexiqai/speech-client/internal/config"
	"github.com/lexiqai/speech-client/internal/ingest"
	"github.com/lexiqai/speech-client/internal/observability"
	"github.com/lexiqai/speech-client/pkg/speech"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	speechCfg, err := cfg.SpeechConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid speech configuration")
	}
	speechCfg.Metrics = observability.SpeechMetrics{}
	client, err := speech.NewClient(speechCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create speech client")
	}

	logger.Info().
		Str("port", cfg.Port).
		Str("recognition_endpoint", speechCfg.RecognitionEndpoint.String()).
		Str("auth_mode", speechCfg.AuthMode.String()).
		Str("language", speechCfg.Language).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Speech gateway starting")

	// Create HTTP server
	mux := http.NewServeMux()
	ingest.NewGateway(client, cfg).Register(mux)

	// Health check endpoint
	mux.HandleFunc("/health", observability.HealthCheckHandler())

	// Readiness: token mode needs a working token endpoint, key mode has
	// nothing to check up front
	mux.HandleFunc("/ready", observability.ReadinessHandler(map[string]observability.HealthCheckFunc{
		"speech_auth": func(ctx context.Context) (bool, error) {
			if state := client.AuthCircuitState(); state == "open" {
				return false, fmt.Errorf("auth circuit breaker is %s", state)
			}
			if err := client.Authenticate(ctx, false); err != nil {
				return false, err
			}
			return true, nil
		},
	}))

	// Metrics endpoint (Prometheus)
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	// WebSocket sessions outlive a fixed write timeout, so only the
	// header read is bounded here; sessions bound themselves.
	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		endpoint := cfg.GatewayURL
		if endpoint == "" {
			endpoint = fmt.Sprintf("ws://localhost:%s", cfg.Port)
		}
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", endpoint+"/v1/recognize/stream").
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("Shutting down server...")

		// Graceful shutdown with timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("Server stopped with error")
	}

	logger.Info().Msg("Server exited gracefully")
}
