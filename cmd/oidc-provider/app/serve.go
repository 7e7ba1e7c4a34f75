package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"

	oidc "github.com/giantswarm/jwt-oidc"
	"github.com/giantswarm/jwt-oidc/instrumentation"
	"github.com/giantswarm/jwt-oidc/security"
	"github.com/giantswarm/jwt-oidc/server"
	"github.com/giantswarm/jwt-oidc/storage"
	"github.com/giantswarm/jwt-oidc/storage/memory"
	"github.com/giantswarm/jwt-oidc/storage/valkey"
)

const (
	serverReadTimeout  = 10 * time.Second
	serverWriteTimeout = 15 * time.Second
	serverIdleTimeout  = 60 * time.Second
)

func newServeCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the provider",
		Long: `Start the provider. Every setting can be given as a flag or through
its environment variable, e.g. CLIENT_ID, CLIENT_SECRET, BASE_URL,
PRIVATE_KEY_FILE and REDIS_URL.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := loadOptions(v)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), opts)
		},
	}

	addServeFlags(cmd.Flags())
	if err := bindConfig(v, cmd.Flags()); err != nil {
		panic(err)
	}
	return cmd
}

// replayStore is a storage.ReplayStore that reports through instrumentation.
type replayStore interface {
	storage.ReplayStore
	SetInstrumentation(*instrumentation.Instrumentation)
}

// newReplayStore connects to Valkey when a URL is configured and falls back
// to an in-process store otherwise.
func newReplayStore(opts *options, logger *slog.Logger) (replayStore, func(), error) {
	if opts.RedisURL == "" {
		logger.Info("Using in-memory replay store",
			"note", "codes and refresh tokens are single use per replica only")
		store := memory.New()
		store.SetLogger(logger)
		if opts.ReplayMaxEntries > 0 {
			store.SetMaxEntries(opts.ReplayMaxEntries)
		}
		return store, store.Stop, nil
	}

	store, err := valkey.New(valkey.Config{
		URL:       opts.RedisURL,
		KeyPrefix: opts.RedisKeyPrefix,
		Logger:    logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

// buildHandler wires the provider engine and its HTTP adapter.
func buildHandler(opts *options, logger *slog.Logger, inst *instrumentation.Instrumentation, store replayStore) (*oidc.Handler, func(), error) {
	km, err := loadKeys(opts, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load signing key: %w", err)
	}

	srv, err := server.New(km, &server.Config{
		Issuer:           opts.BaseURL,
		ClientID:         opts.ClientID,
		ClientSecret:     opts.ClientSecret,
		ClientSecretHash: opts.ClientSecretHash,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	srv.SetAuditor(security.NewAuditor(logger, opts.Audit))
	srv.SetInstrumentation(inst)

	store.SetInstrumentation(inst)
	srv.SetReplayStore(store)

	handler := oidc.NewHandler(srv, &oidc.Config{
		TrustProxy:        opts.TrustProxy,
		TrustedProxyCount: opts.TrustedProxyCount,
	}, logger)

	stop := func() {}
	if opts.RateLimitRPS > 0 {
		rl := security.NewRateLimiter(security.RateLimitConfig{
			RequestsPerSecond: opts.RateLimitRPS,
			Burst:             opts.RateLimitBurst,
		}, logger)
		handler.SetRateLimiter(rl)
		stop = func() {
			rl.Stop()
			stats := rl.Stats()
			logger.Debug("Rate limiter stopped",
				"entries", stats.CurrentEntries,
				"max_entries", stats.MaxEntries,
				"evictions", stats.TotalEvictions,
				"cleanups", stats.TotalCleanups)
		}
	}
	return handler, stop, nil
}

func runServe(ctx context.Context, opts *options) error {
	logger := newLogger(os.Stderr, opts.LogFormat, opts.Debug)
	slog.SetDefault(logger)

	inst, err := instrumentation.New(instrumentation.Config{
		Enabled:         opts.MetricsEnabled,
		MetricsExporter: opts.MetricsExporter,
		LogClientIPs:    opts.LogClientIPs,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize instrumentation: %w", err)
	}
	otel.SetTracerProvider(inst.TracerProvider())
	otel.SetMeterProvider(inst.MeterProvider())
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := inst.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Instrumentation shutdown failed", "error", err)
		}
	}()

	store, closeStore, err := newReplayStore(opts, logger)
	if err != nil {
		return fmt.Errorf("failed to create replay store: %w", err)
	}
	defer closeStore()

	handler, stopLimiter, err := buildHandler(opts, logger, inst, store)
	if err != nil {
		return err
	}
	defer stopLimiter()

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("GET "+server.PathMetrics, inst.MetricsHandler())

	httpServer := &http.Server{
		Addr:         opts.ListenAddress,
		Handler:      security.RequestIDMiddleware(mux),
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Provider listening",
			"address", opts.ListenAddress,
			"issuer", opts.BaseURL,
			"replay_store", opts.RedisURL != "",
			"rate_limit_rps", opts.RateLimitRPS)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down provider")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logger.Info("Provider stopped")
	return nil
}
