package provider

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// HealthTracker counts consecutive provider failures in Redis so every API
// instance sees the same view. After Threshold failures inside Window the
// provider is tripped for Cooldown. Redis errors fail open.
type HealthTracker struct {
	rdb       redis.UniversalClient
	prefix    string
	threshold int64
	window    time.Duration
	cooldown  time.Duration
	log       *zap.Logger
}

type HealthConfig struct {
	Threshold int
	Window    time.Duration
	Cooldown  time.Duration
}

func NewHealthTracker(rdb redis.UniversalClient, cfg HealthConfig, logger *zap.Logger) *HealthTracker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 2 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthTracker{
		rdb:       rdb,
		prefix:    "vtu:provider_health:",
		threshold: int64(cfg.Threshold),
		window:    cfg.Window,
		cooldown:  cfg.Cooldown,
		log:       logger.Named("provider_health"),
	}
}

func (h *HealthTracker) failKey(name string) string { return h.prefix + name + ":failures" }
func (h *HealthTracker) tripKey(name string) string { return h.prefix + name + ":tripped" }

// Available reports whether calls to the provider should be attempted.
func (h *HealthTracker) Available(ctx context.Context, name string) bool {
	if h == nil || h.rdb == nil {
		return true
	}
	n, err := h.rdb.Exists(ctx, h.tripKey(name)).Result()
	if err != nil {
		h.log.Warn("health lookup failed, allowing call", zap.String("provider", name), zap.Error(err))
		return true
	}
	return n == 0
}

// RecordFailure registers an ambiguous or failed call.
func (h *HealthTracker) RecordFailure(ctx context.Context, name string) {
	if h == nil || h.rdb == nil {
		return
	}
	key := h.failKey(name)
	count, err := h.rdb.Incr(ctx, key).Result()
	if err != nil {
		h.log.Warn("health update failed", zap.String("provider", name), zap.Error(err))
		return
	}
	if count == 1 {
		h.rdb.Expire(ctx, key, h.window)
	}
	if count >= h.threshold {
		h.rdb.Set(ctx, h.tripKey(name), "1", h.cooldown)
		h.rdb.Del(ctx, key)
		h.log.Warn("provider tripped",
			zap.String("provider", name),
			zap.Int64("failures", count),
			zap.Duration("cooldown", h.cooldown),
		)
	}
}

// RecordSuccess resets the failure streak.
func (h *HealthTracker) RecordSuccess(ctx context.Context, name string) {
	if h == nil || h.rdb == nil {
		return
	}
	h.rdb.Del(ctx, h.failKey(name))
}
