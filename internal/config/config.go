package config

import (
	"errors"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port               string
	DatabaseURL        string
	JWTSecret          string
	TokenTTL           time.Duration
	PollInterval       time.Duration
	BatchSize          int
	OutboxRetention    time.Duration
	RateLimitPerMinute int
	RateLimitBurst     int
	TrustProxyHeaders  bool
	CORSAllowedOrigins []string
	SessionListLimit   int
	ActivityListLimit  int
	MigrateOnStart     bool
}

// Load reads an optional .env file and then the process environment.
func Load() Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("dotenv load error: %v", err)
	}

	port := os.Getenv("CREW_MONITOR_PORT")
	if port == "" {
		port = "8090"
	}

	return Config{
		Port:               port,
		DatabaseURL:        os.Getenv("DB_DSN"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		TokenTTL:           readDurationHours("TOKEN_TTL_HOURS", 8),
		PollInterval:       readDurationSeconds("REALTIME_POLL_SECONDS", 1),
		BatchSize:          readInt("REALTIME_BATCH_SIZE", 100),
		OutboxRetention:    readDurationHours("REALTIME_RETENTION_HOURS", 24),
		RateLimitPerMinute: readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:     readInt("RATE_LIMIT_BURST", 30),
		TrustProxyHeaders:  readBool("TRUST_PROXY_HEADERS", false),
		CORSAllowedOrigins: readList("CORS_ALLOWED_ORIGINS"),
		SessionListLimit:   readInt("SESSION_LIST_LIMIT", 100),
		ActivityListLimit:  readInt("ACTIVITY_LIST_LIMIT", 100),
		MigrateOnStart:     readBool("MIGRATE_ON_START", false),
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

func readList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var values []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			values = append(values, part)
		}
	}
	return values
}
