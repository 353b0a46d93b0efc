package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full server configuration, built from environment variables so
// main stays lean.
type Config struct {
	Server   Server
	Postgres Postgres
	Redis    Redis
	Kafka    Kafka
	Workers  Workers
}

// Server captures HTTP server level configuration. RateLimitPerMinute caps
// API requests per client IP; it only takes effect when Redis is configured.
type Server struct {
	Addr               string
	RateLimitPerMinute int
}

// Postgres configures the durable store. An empty DSN selects the in-memory
// stores, which is how tests and local development run.
type Postgres struct {
	DSN string
}

// Redis configures the rate-quote cache. An empty URL disables it.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka configures the optional transition feed. Empty brokers disable it.
type Kafka struct {
	Brokers []string
	Topic   string
}

// Workers configures background loop cadence.
type Workers struct {
	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	SweepInterval      time.Duration
	RefundTimeout      time.Duration
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	cfg := Config{
		Server: Server{
			Addr:               envString("WISHWELL_ADDR", ":8080"),
			RateLimitPerMinute: envInt("WISHWELL_RATE_LIMIT_PER_MINUTE", 300),
		},
		Postgres: Postgres{
			DSN: os.Getenv("WISHWELL_POSTGRES_DSN"),
		},
		Redis: Redis{
			URL:          os.Getenv("WISHWELL_REDIS_URL"),
			PoolSize:     envInt("WISHWELL_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("WISHWELL_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDuration("WISHWELL_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("WISHWELL_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("WISHWELL_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: Kafka{
			Brokers: envList("WISHWELL_KAFKA_BROKERS"),
			Topic:   envString("WISHWELL_KAFKA_TOPIC", "campaign-transitions"),
		},
		Workers: Workers{
			OutboxPollInterval: envDuration("WISHWELL_OUTBOX_POLL_INTERVAL", time.Second),
			OutboxBatchSize:    envInt("WISHWELL_OUTBOX_BATCH_SIZE", 100),
			SweepInterval:      envDuration("WISHWELL_SWEEP_INTERVAL", time.Minute),
			RefundTimeout:      envDuration("WISHWELL_REFUND_TIMEOUT", 30*time.Second),
		},
	}
	return cfg
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
