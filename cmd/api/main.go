package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/punchamoorthee/vtuledger/internal/api"
	"github.com/punchamoorthee/vtuledger/internal/app"
	"github.com/punchamoorthee/vtuledger/internal/config"
	"github.com/punchamoorthee/vtuledger/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}
	defer a.Close()

	opts := api.Options{
		Ledger:      a.Ledger,
		Executor:    a.Executor,
		Deposits:    a.Deposits,
		Sweeper:     a.Sweeper,
		SweepSecret: cfg.SweepSecret,
		Redis:       a.Redis,
		RateLimit:   cfg.RateLimit,
		RateWindow:  cfg.RateWindow,
		Logger:      logger,
	}
	if cfg.JWTSecret != "" {
		opts.Auth = api.NewJWTVerifier(cfg.JWTSecret)
	} else {
		logger.Warn("JWT_SECRET not set, trusting X-Owner-ID header (development only)")
		opts.DevOwnerHeader = true
	}

	var scheduler *cron.Cron
	if cfg.SweepSchedule != "" {
		scheduler, err = a.ScheduleSweeps(cfg.SweepSchedule, logger)
		if err != nil {
			logger.Fatal("invalid SWEEP_SCHEDULE", zap.String("schedule", cfg.SweepSchedule), zap.Error(err))
		}
		scheduler.Start()
		logger.Info("in-process sweeper scheduled", zap.String("schedule", cfg.SweepSchedule))
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(opts),
		ReadHeaderTimeout: 10 * time.Second,
		// Purchases may wait on the provider for the full provider timeout.
		WriteTimeout: cfg.ProviderTimeout + 15*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("port", cfg.Port), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	if scheduler != nil {
		<-scheduler.Stop().Done()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ProviderTimeout+5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
