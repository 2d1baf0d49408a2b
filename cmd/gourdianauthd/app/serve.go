package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/gourdian25/gourdianauth"
	"github.com/gourdian25/gourdianauth/httpauth"
)

const (
	defaultGracefulTimeout = 30 * time.Second
	serverRequestTimeout   = 10 * time.Second
	serverReadTimeout      = 10 * time.Second
	serverWriteTimeout     = 15 * time.Second // Must be > serverRequestTimeout to let middleware handle timeout
	serverIdleTimeout      = 60 * time.Second
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the token service",
		Long: `Start the HTTP token service. Refresh tokens are kept in memory unless
--redis-addr points at a Redis server shared by every instance.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := loadSettings(v)
			if err != nil {
				return err
			}

			logger, err := newLogger(s.Debug)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runServe(ctx, s, logger)
		},
	}

	defaults := gourdianauth.DefaultConfig("")
	flags := cmd.Flags()
	flags.String(keyListenAddr, ":8080", "Address to listen on")
	flags.String(keySigningSecret, "", "HMAC-SHA256 signing secret (at least 32 bytes)")
	flags.String(keyIssuerAPIKey, "", "Key trusted callers send in X-API-Key to issue refresh tokens")
	flags.String(keyIssuer, defaults.Issuer, "Issuer of access tokens")
	flags.String(keyAudience, defaults.Audience, "Audience of access tokens")
	flags.Bool(keyValidateIssuer, defaults.ValidateIssuer, "Reject access tokens from other issuers")
	flags.Bool(keyValidateAudience, defaults.ValidateAudience, "Reject access tokens for other audiences")
	flags.Duration(keyAccessTokenTTL, defaults.AccessTokenTTL, "Access token lifetime")
	flags.Duration(keyRefreshTokenTTL, defaults.RefreshTokenTTL, "Refresh token lifetime")
	flags.Duration(keyClockSkew, defaults.ClockSkew, "Clock skew tolerated when checking expiry")
	flags.Duration(keyStoreTimeout, defaults.StoreTimeout, "Timeout of each refresh token store call")
	flags.Duration(keyCleanupInterval, 10*time.Minute, "Interval between expired refresh token sweeps (0 disables)")
	flags.String(keyRedisAddr, "", "Redis address for the shared refresh token store (empty keeps tokens in memory)")
	flags.String(keyRedisPassword, "", "Redis password")
	flags.Int(keyRedisDB, 0, "Redis database")
	flags.String(keyRedisKeyPrefix, gourdianauth.DefaultRedisKeyPrefix, "Prefix of Redis keys")

	for _, key := range []string{
		keyListenAddr, keySigningSecret, keyIssuerAPIKey, keyIssuer, keyAudience, keyValidateIssuer,
		keyValidateAudience, keyAccessTokenTTL, keyRefreshTokenTTL, keyClockSkew,
		keyStoreTimeout, keyCleanupInterval, keyRedisAddr, keyRedisPassword,
		keyRedisDB, keyRedisKeyPrefix,
	} {
		mustBind(v, key, flags.Lookup(key))
	}

	return cmd
}

func newLogger(debug bool) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, nil
}

// runServe serves until ctx is cancelled, then shuts down gracefully.
func runServe(ctx context.Context, s *settings, logger *zap.Logger) error {
	store, closeStore, err := newStore(ctx, s, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	svc, err := gourdianauth.NewService(s.Auth,
		gourdianauth.WithStore(store),
		gourdianauth.WithPrincipalLookup(gourdianauth.StaticPrincipals(s.Principals)),
		gourdianauth.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("failed to create token service: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	server := &http.Server{
		Addr:         s.ListenAddr,
		Handler:      newHandler(svc, s, registry, logger),
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}

	if s.CleanupInterval > 0 {
		go runCleanup(ctx, store, s.CleanupInterval, logger)
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("address", s.ListenAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
		return err
	}

	logger.Info("server shutdown complete")
	return nil
}

// newHandler builds the HTTP handler: token routes, /metrics and /healthz.
func newHandler(svc *gourdianauth.Service, s *settings, registry *prometheus.Registry, logger *zap.Logger) http.Handler {
	router := httpauth.NewRouter(svc,
		httpauth.WithRealm(s.Auth.Issuer),
		httpauth.WithIssuerKey(s.IssuerAPIKey),
		httpauth.WithMetrics(httpauth.NewMetrics(registry)),
		httpauth.WithLogger(logger),
		httpauth.WithMiddlewares(
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(serverRequestTimeout),
		),
	)

	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return router
}

// newStore returns the Redis store when an address is configured and the
// in-memory store otherwise, along with its release function.
func newStore(ctx context.Context, s *settings, logger *zap.Logger) (gourdianauth.RefreshTokenStore, func(), error) {
	if s.RedisAddr == "" {
		logger.Info("using in-memory refresh token store")
		return gourdianauth.NewMemoryRefreshTokenStore(s.Auth.RefreshTokenTTL), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     s.RedisAddr,
		Password: s.RedisPassword,
		DB:       s.RedisDB,
	})
	store, err := gourdianauth.NewRedisRefreshTokenStore(ctx, client, gourdianauth.RedisStoreConfig{
		KeyPrefix: s.RedisKeyPrefix,
		TTL:       s.Auth.RefreshTokenTTL,
		Timeout:   s.Auth.StoreTimeout,
	})
	if err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to create redis refresh token store: %w", err)
	}

	logger.Info("using redis refresh token store", zap.String("address", s.RedisAddr))
	return store, func() { _ = client.Close() }, nil
}

// runCleanup sweeps expired refresh tokens every interval until ctx is done.
func runCleanup(ctx context.Context, store gourdianauth.RefreshTokenStore, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := store.CleanupExpired(ctx)
			if err != nil {
				logger.Warn("refresh token cleanup failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				logger.Debug("expired refresh tokens removed", zap.Int("count", removed))
			}
		}
	}
}
