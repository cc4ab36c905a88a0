package app

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/punchamoorthee/vtuledger/internal/config"
	"github.com/punchamoorthee/vtuledger/internal/domain"
	"github.com/punchamoorthee/vtuledger/internal/events"
)

func memoryConfig() *config.Config {
	return &config.Config{
		StoreDriver:       "memory",
		DedupWindow:       30 * time.Minute,
		ProviderTimeout:   time.Minute,
		SweepGrace:        10 * time.Minute,
		MaxVerifyAttempts: 5,
		Providers: []config.ProviderConfig{
			{Name: "inlomax", BaseURL: "http://127.0.0.1:1", Kinds: []domain.Kind{domain.KindAirtime}},
		},
	}
}

func TestNewMemoryWiring(t *testing.T) {
	a, err := New(context.Background(), memoryConfig(), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.Executor)
	assert.NotNil(t, a.Sweeper)
	assert.NotNil(t, a.Deposits)
	assert.Nil(t, a.Verifier)
	assert.Nil(t, a.Redis)
	assert.IsType(t, events.Noop{}, a.Events)

	name, ok := a.Router.ProviderFor(domain.KindAirtime)
	assert.True(t, ok)
	assert.Equal(t, "inlomax", name)
	_, ok = a.Router.ProviderFor(domain.KindData)
	assert.False(t, ok)
}

func TestNewWithRedisAndProcessor(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := memoryConfig()
	cfg.RedisURL = "redis://" + mr.Addr()
	cfg.PaymentURL = "http://127.0.0.1:1"
	cfg.KafkaBrokers = []string{"127.0.0.1:9092"}
	cfg.KafkaTopic = events.TopicTransactionSettled

	a, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.Redis)
	assert.NotNil(t, a.Health)
	assert.NotNil(t, a.Verifier)
	assert.IsType(t, &events.KafkaPublisher{}, a.Events)
	assert.True(t, a.Health.Available(context.Background(), "inlomax"))
}

func TestNewRejectsBadRedisURL(t *testing.T) {
	cfg := memoryConfig()
	cfg.RedisURL = "mysql://nope"
	_, err := New(context.Background(), cfg, zap.NewNop())
	assert.ErrorContains(t, err, "REDIS_URL")
}

func TestScheduleSweeps(t *testing.T) {
	a, err := New(context.Background(), memoryConfig(), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	_, err = a.ScheduleSweeps("every now and then", zap.NewNop())
	assert.Error(t, err)

	c, err := a.ScheduleSweeps("@every 5m", zap.NewNop())
	require.NoError(t, err)
	require.Len(t, c.Entries(), 1)
	c.Entries()[0].WrappedJob.Run()
}

func TestSweepWrappersSkipOverlappingRuns(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var runs atomic.Int32
	job := cron.NewChain(sweepWrappers()...).Then(cron.FuncJob(func() {
		runs.Add(1)
		close(started)
		<-release
	}))

	done := make(chan struct{})
	go func() {
		job.Run()
		close(done)
	}()
	<-started

	job.Run()
	close(release)
	<-done
	assert.Equal(t, int32(1), runs.Load())
}
