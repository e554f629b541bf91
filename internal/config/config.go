package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port                 string
	DatabaseURL          string
	SessionTTL           time.Duration
	TimerAutoStop        bool
	StaleTimerMaxAge     time.Duration
	StaleScanInterval    time.Duration
	StaleBatchSize       int
	RateLimitPerMinute   int
	RateLimitBurst       int
	SessionRatePerMinute int
	SessionRateBurst     int
	OTLPEndpoint         string
	OTLPInsecure         bool
}

func Load() Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	return Config{
		Port:                 port,
		DatabaseURL:          os.Getenv("DB_DSN"),
		SessionTTL:           readDurationHours("SESSION_TTL_HOURS", 8),
		TimerAutoStop:        readBool("TIMER_AUTO_STOP", false),
		StaleTimerMaxAge:     readDurationHours("STALE_TIMER_MAX_HOURS", 16),
		StaleScanInterval:    readDurationSeconds("STALE_SCAN_INTERVAL_SECONDS", 300),
		StaleBatchSize:       readInt("STALE_BATCH_SIZE", 100),
		RateLimitPerMinute:   readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:       readInt("RATE_LIMIT_BURST", 30),
		SessionRatePerMinute: readInt("SESSION_RATE_LIMIT_PER_MIN", 600),
		SessionRateBurst:     readInt("SESSION_RATE_LIMIT_BURST", 120),
		OTLPEndpoint:         os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OTLPInsecure:         readBool("OTEL_EXPORTER_OTLP_INSECURE", false),
	}
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readDurationHours(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Hour
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func readBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}
