// Package app builds the shared dependency graph for the commands.
package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/punchamoorthee/vtuledger/internal/clock"
	"github.com/punchamoorthee/vtuledger/internal/config"
	"github.com/punchamoorthee/vtuledger/internal/events"
	"github.com/punchamoorthee/vtuledger/internal/provider"
	"github.com/punchamoorthee/vtuledger/internal/service"
	"github.com/punchamoorthee/vtuledger/internal/store"
)

type App struct {
	Ledger   store.Ledger
	Redis    redis.UniversalClient
	Events   events.Publisher
	Router   *provider.Router
	Health   *provider.HealthTracker
	Verifier provider.PaymentVerifier

	Executor *service.Executor
	Deposits *service.Deposits
	Sweeper  *service.Sweeper

	closers []func()
}

// New connects every backing service named in cfg. Redis, Kafka and the
// payment processor are optional.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{}
	clk := clock.RealClock{}

	switch cfg.StoreDriver {
	case "memory":
		logger.Warn("using in-memory ledger, balances are lost on restart")
		a.Ledger = store.NewMemory(clk, cfg.DedupWindow)
	default:
		pg, err := store.NewPostgres(ctx, cfg.DBSource, cfg.DedupWindow)
		if err != nil {
			return nil, fmt.Errorf("unable to connect to database: %w", err)
		}
		a.closers = append(a.closers, pg.Close)
		if err := pg.Migrate(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		a.Ledger = pg
	}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, rate limiting and provider health fail open", zap.Error(err))
		}
		a.Redis = rdb
		a.closers = append(a.closers, func() { rdb.Close() })
		a.Health = provider.NewHealthTracker(rdb, provider.HealthConfig{
			Threshold: cfg.HealthThreshold,
			Window:    cfg.HealthWindow,
			Cooldown:  cfg.HealthCooldown,
		}, logger)
	}

	a.Events = events.Noop{}
	if len(cfg.KafkaBrokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		a.Events = kp
		a.closers = append(a.closers, func() {
			if err := kp.Close(); err != nil {
				logger.Warn("kafka writer close failed", zap.Error(err))
			}
		})
	}

	a.Router = provider.NewRouter()
	for _, p := range cfg.Providers {
		gw := provider.NewHTTPGateway(provider.HTTPConfig{
			Name:    p.Name,
			BaseURL: p.BaseURL,
			APIKey:  p.APIKey,
			Timeout: cfg.ProviderTimeout,
		}, logger)
		a.Router.Register(gw.Name(), gw, p.Kinds...)
		logger.Info("provider registered", zap.String("provider", gw.Name()), zap.Any("kinds", p.Kinds))
	}

	if cfg.PaymentURL != "" {
		a.Verifier = provider.NewHTTPVerifier(cfg.PaymentURL, cfg.PaymentSecret, cfg.PaymentTimeout, logger)
	}

	a.Executor = service.NewExecutor(service.ExecutorConfig{
		Ledger:      a.Ledger,
		Router:      a.Router,
		Health:      a.Health,
		Events:      a.Events,
		Clock:       clk,
		Logger:      logger,
		Timeout:     cfg.ProviderTimeout,
		DedupWindow: cfg.DedupWindow,
	})
	a.Deposits = service.NewDeposits(service.DepositsConfig{
		Ledger:   a.Ledger,
		Verifier: a.Verifier,
		Events:   a.Events,
		Clock:    clk,
		Logger:   logger,
	})
	a.Sweeper = service.NewSweeper(service.SweeperConfig{
		Ledger:            a.Ledger,
		Verifier:          a.Verifier,
		Events:            a.Events,
		Clock:             clk,
		Logger:            logger,
		Grace:             cfg.SweepGrace,
		Batch:             cfg.SweepBatch,
		MaxVerifyAttempts: cfg.MaxVerifyAttempts,
	})
	return a, nil
}

// Close releases connections in reverse order of creation.
// sweepWrappers keeps a slow sweep from overlapping the next tick.
func sweepWrappers() []cron.JobWrapper {
	return []cron.JobWrapper{cron.SkipIfStillRunning(cron.DefaultLogger)}
}

// ScheduleSweeps registers the sweeper on schedule. The caller starts and
// stops the returned scheduler.
func (a *App) ScheduleSweeps(schedule string, logger *zap.Logger) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(sweepWrappers()...))
	_, err := c.AddFunc(schedule, func() {
		rep := a.Sweeper.Run(context.Background())
		logger.Info("scheduled sweep finished",
			zap.Int("processed", rep.Processed),
			zap.Int("errors", rep.Errors),
		)
	})
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return c, nil
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
