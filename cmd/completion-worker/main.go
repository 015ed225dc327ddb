package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/medbook/internal/booking"
	"github.com/hackgods/medbook/internal/config"
	"github.com/hackgods/medbook/internal/logging"
	redisclient "github.com/hackgods/medbook/internal/redis"
	"github.com/hackgods/medbook/internal/storage"
)

// completion-worker marks confirmed bookings whose slot has passed as completed.
func main() {
	cfg, err := config.Load()
	if err != nil {
		l := zerolog.New(os.Stderr)
		l.Fatal().Err(err).Msg("config load error")
	}

	log := logging.New(cfg.Env, cfg.LogLevel, "completion-worker")
	log.Info().
		Str("env", cfg.Env).
		Dur("interval", cfg.WorkerInterval).
		Str("clinic_tz", cfg.ClinicTimezone).
		Msg("completion worker starting up")

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
	defer store.Close()

	// Status updates never take slot locks, so a local locker is enough here.
	svc, err := booking.NewService(store, redisclient.NewProcessSlotLocker(), cfg, log, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("booking service setup error")
	}

	runOnce(rootCtx, svc, log)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info().Msg("shutdown signal received, stopping completion worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, log)
		}
	}
}

func runOnce(ctx context.Context, svc *booking.Service, log zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	n, err := svc.CompletePastBookings(runCtx, time.Now())
	if err != nil {
		log.Error().Err(err).Msg("completion run error")
		return
	}
	log.Info().Int("completed", n).Dur("took", time.Since(start)).Msg("completion run complete")
}
