package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port               string
	DatabaseURL        string
	OperatorToken      string
	AdminToken         string
	RequestTimeout     time.Duration
	EventBufferSize    int
	NoShowGrace        time.Duration
	NoShowInterval     time.Duration
	NoShowBatchSize    int
	RateLimitPerMinute int
	RateLimitBurst     int
	SeedDemoData       bool
}

func Load() Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	return Config{
		Port:               port,
		DatabaseURL:        os.Getenv("DB_DSN"),
		OperatorToken:      os.Getenv("OPERATOR_TOKEN"),
		AdminToken:         os.Getenv("ADMIN_TOKEN"),
		RequestTimeout:     readDurationSeconds("REQUEST_TIMEOUT_SECONDS", 8),
		EventBufferSize:    readInt("EVENT_BUFFER_SIZE", 1024),
		NoShowGrace:        readDurationSeconds("NO_SHOW_GRACE_SECONDS", 300),
		NoShowInterval:     readDurationSeconds("NO_SHOW_SCAN_INTERVAL_SECONDS", 30),
		NoShowBatchSize:    readInt("NO_SHOW_BATCH_SIZE", 100),
		RateLimitPerMinute: readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:     readInt("RATE_LIMIT_BURST", 30),
		SeedDemoData:       readBool("SEED_DEMO_DATA", true),
	}
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
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
