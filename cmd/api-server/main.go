package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/medbook/internal/api"
	"github.com/hackgods/medbook/internal/auth"
	"github.com/hackgods/medbook/internal/booking"
	"github.com/hackgods/medbook/internal/config"
	"github.com/hackgods/medbook/internal/logging"
	"github.com/hackgods/medbook/internal/metrics"
	redisclient "github.com/hackgods/medbook/internal/redis"
	"github.com/hackgods/medbook/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := zerolog.New(os.Stderr)
		l.Fatal().Err(err).Msg("config load error")
	}

	log := logging.New(cfg.Env, cfg.LogLevel, "api-server")
	log.Info().
		Str("env", cfg.Env).
		Str("http_port", cfg.HTTPPort).
		Str("storage", cfg.StorageDriver).
		Str("lock", cfg.LockBackend).
		Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	openCtx, cancelOpen := context.WithTimeout(rootCtx, 10*time.Second)
	store, err := storage.Open(openCtx, cfg)
	if err != nil {
		cancelOpen()
		log.Fatal().Err(err).Msg("storage setup error")
	}
	err = store.Migrate(openCtx)
	cancelOpen()
	if err != nil {
		_ = store.Close()
		log.Fatal().Err(err).Msg("storage migration error")
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("error closing store")
		}
	}()
	log.Info().Str("driver", cfg.StorageDriver).Msg("store ready")

	var (
		locker     redisclient.Locker
		redisCheck api.Pinger
	)
	switch cfg.LockBackend {
	case config.LockRedis:
		rdb, err := redisclient.NewRedisClient(rootCtx, redisclient.Options{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("redis connection error")
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Error().Err(err).Msg("error closing redis")
			}
		}()
		log.Info().Str("addr", cfg.RedisAddr).Msg("connected to Redis")

		locker = redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)
		redisCheck = redisPinger(rdb)
	default:
		log.Warn().Msg("using process local slot locks; run a single api-server instance")
		locker = redisclient.NewProcessSlotLocker()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	svc, err := booking.NewService(store, locker, cfg, log, m)
	if err != nil {
		log.Fatal().Err(err).Msg("booking service setup error")
	}

	authenticator, err := auth.NewAdminAuthenticator(auth.Config{
		AdminEmail:        cfg.AdminEmail,
		AdminPasswordHash: cfg.AdminPasswordHash,
		Secret:            []byte(cfg.JWTSecret),
		TokenTTL:          cfg.TokenTTL,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("auth setup error")
	}
	if cfg.AdminEmail == "" || cfg.AdminPasswordHash == "" {
		log.Warn().Msg("ADMIN_EMAIL or ADMIN_PASSWORD_HASH not set; admin login disabled")
	}

	router := api.NewRouter(api.RouterConfig{
		Service:  svc,
		Auth:     authenticator,
		Metrics:  m,
		Gatherer: reg,
		Logger:   log,
		Store:    store,
		Redis:    redisCheck,
		Env:      cfg.Env,
		Version:  cfg.Version,
	})

	srv := newHTTPServer(cfg.HTTPPort, router)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-rootCtx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}

	log.Info().Msg("api-server stopped")
}

// newHTTPServer leaves BaseContext unset: request contexts outlive the signal
// so Shutdown can drain in-flight admissions.
func newHTTPServer(port string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              net.JoinHostPort("", port),
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func redisPinger(rdb *redis.Client) api.Pinger {
	return api.PingFunc(func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
}
