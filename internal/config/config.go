package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/punchamoorthee/vtuledger/internal/domain"
	"github.com/punchamoorthee/vtuledger/internal/events"
)

type Config struct {
	DBSource    string
	StoreDriver string
	Port        string
	Env         string
	LogLevel    string

	DedupWindow     time.Duration
	ProviderTimeout time.Duration

	SweepGrace        time.Duration
	SweepBatch        int
	SweepSchedule     string
	SweepSecret       string
	MaxVerifyAttempts int

	JWTSecret string

	RedisURL        string
	RateLimit       int
	RateWindow      time.Duration
	HealthThreshold int
	HealthWindow    time.Duration
	HealthCooldown  time.Duration

	KafkaBrokers []string
	KafkaTopic   string

	Providers      []ProviderConfig
	PaymentURL     string
	PaymentSecret  string
	PaymentTimeout time.Duration
}

// ProviderConfig is one fulfillment provider and the kinds routed to it.
type ProviderConfig struct {
	Name    string
	BaseURL string
	APIKey  string
	Kinds   []domain.Kind
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DBSource:      os.Getenv("DB_SOURCE"),
		StoreDriver:   getEnv("LEDGER_STORE", "postgres"),
		Port:          getEnv("SERVER_PORT", "8080"),
		Env:           getEnv("ENVIRONMENT", "development"),
		LogLevel:      os.Getenv("LOG_LEVEL"),
		SweepSchedule: os.Getenv("SWEEP_SCHEDULE"),
		SweepSecret:   os.Getenv("SWEEP_SECRET"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		RedisURL:      os.Getenv("REDIS_URL"),
		KafkaTopic:    getEnv("KAFKA_TOPIC", events.TopicTransactionSettled),
		PaymentURL:    os.Getenv("PAYMENT_VERIFY_URL"),
		PaymentSecret: os.Getenv("PAYMENT_SECRET_KEY"),
	}

	var err error
	durations := []struct {
		dst *time.Duration
		key string
		def time.Duration
	}{
		{&cfg.DedupWindow, "DEDUP_WINDOW", 30 * time.Minute},
		{&cfg.ProviderTimeout, "PROVIDER_TIMEOUT", 60 * time.Second},
		{&cfg.SweepGrace, "SWEEP_GRACE", 10 * time.Minute},
		{&cfg.RateWindow, "RATE_LIMIT_WINDOW", time.Minute},
		{&cfg.HealthWindow, "PROVIDER_HEALTH_WINDOW", time.Minute},
		{&cfg.HealthCooldown, "PROVIDER_HEALTH_COOLDOWN", 2 * time.Minute},
		{&cfg.PaymentTimeout, "PAYMENT_TIMEOUT", 30 * time.Second},
	}
	for _, d := range durations {
		if *d.dst, err = getDuration(d.key, d.def); err != nil {
			return nil, err
		}
	}

	ints := []struct {
		dst *int
		key string
		def int
	}{
		{&cfg.SweepBatch, "SWEEP_BATCH", 500},
		{&cfg.MaxVerifyAttempts, "MAX_VERIFY_ATTEMPTS", 5},
		{&cfg.RateLimit, "RATE_LIMIT", 60},
		{&cfg.HealthThreshold, "PROVIDER_HEALTH_THRESHOLD", 5},
	}
	for _, i := range ints {
		if *i.dst, err = getInt(i.key, i.def); err != nil {
			return nil, err
		}
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitList(brokers)
	}

	if cfg.Providers, err = loadProviders(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.StoreDriver {
	case "postgres":
		if c.DBSource == "" {
			return fmt.Errorf("DB_SOURCE environment variable is required")
		}
	case "memory":
	default:
		return fmt.Errorf("LEDGER_STORE must be postgres or memory, got %q", c.StoreDriver)
	}
	if c.DedupWindow <= 0 {
		return fmt.Errorf("DEDUP_WINDOW must be positive")
	}
	if c.ProviderTimeout <= 0 {
		return fmt.Errorf("PROVIDER_TIMEOUT must be positive")
	}
	// A transaction must never be swept while its provider call can still be in flight.
	if c.SweepGrace <= c.ProviderTimeout {
		return fmt.Errorf("SWEEP_GRACE (%s) must exceed PROVIDER_TIMEOUT (%s)", c.SweepGrace, c.ProviderTimeout)
	}
	// A reference must stay claimed until the sweeper has settled its transaction.
	if c.DedupWindow <= c.SweepGrace {
		return fmt.Errorf("DEDUP_WINDOW (%s) must exceed SWEEP_GRACE (%s)", c.DedupWindow, c.SweepGrace)
	}
	if c.MaxVerifyAttempts <= 0 {
		return fmt.Errorf("MAX_VERIFY_ATTEMPTS must be positive")
	}
	if c.Env == "production" && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required in production")
	}
	return nil
}

// loadProviders reads PROVIDERS=inlomax,smeplug and for each name
// PROVIDER_<NAME>_URL, PROVIDER_<NAME>_KEY and PROVIDER_<NAME>_KINDS.
func loadProviders() ([]ProviderConfig, error) {
	names := splitList(os.Getenv("PROVIDERS"))
	out := make([]ProviderConfig, 0, len(names))
	for _, name := range names {
		prefix := "PROVIDER_" + strings.ToUpper(name) + "_"
		p := ProviderConfig{
			Name:    name,
			BaseURL: os.Getenv(prefix + "URL"),
			APIKey:  os.Getenv(prefix + "KEY"),
		}
		if p.BaseURL == "" {
			return nil, fmt.Errorf("%sURL is required", prefix)
		}
		for _, k := range splitList(os.Getenv(prefix + "KINDS")) {
			kind := domain.Kind(k)
			if !kind.IsPurchase() {
				return nil, fmt.Errorf("%sKINDS: %q is not a purchase kind", prefix, k)
			}
			p.Kinds = append(p.Kinds, kind)
		}
		if len(p.Kinds) == 0 {
			return nil, fmt.Errorf("%sKINDS is required", prefix)
		}
		out = append(out, p)
	}
	return out, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func getInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.ToLower(part))
		}
	}
	return out
}
