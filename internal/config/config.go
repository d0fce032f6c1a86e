package config

import (
	"encoding/base64"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds agent configuration loaded from the environment.
type Config struct {
	AppName         string
	LogLevel        string
	HTTPPort        string
	DatabaseURL     string
	StateTable      string
	RedisURL        string
	ProbeCacheTTL   time.Duration
	RabbitURL       string
	CallbackQueue   string
	PrefetchCount   int
	Distributors    []string
	AccountURL      string
	AccountID       string
	AccountPassword string
	MessagingSeed   []byte
	DiscoverySeed   []byte
	DeviceName      string
	Capabilities    []string
	Discoverable    bool
	RelayURL        string
	RelayTimeout    time.Duration
	FallbackWSURL   string

	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	JobLifespan         time.Duration
}

// Load loads configuration and performs basic validation.
func Load() (*Config, error) {
	_ = godotenv.Load()

	messagingSeed, err := getEnvAsSeed("ACCOUNT_MESSAGING_IDENTITY_SEED")
	if err != nil {
		return nil, err
	}
	discoverySeed, err := getEnvAsSeed("ACCOUNT_DISCOVERY_IDENTITY_SEED")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		AppName:         getEnv("APP_NAME", "push_relay_agent"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		HTTPPort:        getEnv("HTTP_PORT", "8084"),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		StateTable:      getEnv("STATE_TABLE", "registration_state"),
		RedisURL:        getEnv("REDIS_URL", ""),
		ProbeCacheTTL:   getEnvAsDuration("PROBE_CACHE_TTL", 5*time.Minute),
		RabbitURL:       getEnv("RABBITMQ_URL", ""),
		CallbackQueue:   getEnv("CALLBACK_QUEUE", "agent.callbacks"),
		PrefetchCount:   getEnvAsInt("CALLBACK_PREFETCH", 10),
		Distributors:    getEnvAsList("DISTRIBUTORS"),
		AccountURL:      getEnv("ACCOUNT_URL", ""),
		AccountID:       getEnv("ACCOUNT_ID", ""),
		AccountPassword: getEnv("ACCOUNT_PASSWORD", ""),
		MessagingSeed:   messagingSeed,
		DiscoverySeed:   discoverySeed,
		DeviceName:      getEnv("DEVICE_NAME", "push-relay"),
		Capabilities:    getEnvAsList("ACCOUNT_CAPABILITIES"),
		Discoverable:    getEnvAsBool("ACCOUNT_DISCOVERABLE", false),
		RelayURL:        getEnv("RELAY_URL", ""),
		RelayTimeout:    getEnvAsDuration("RELAY_TIMEOUT", 10*time.Second),
		FallbackWSURL:   getEnv("FALLBACK_WS_URL", ""),

		RetryMaxAttempts:    getEnvAsInt("RETRY_MAX_ATTEMPTS", 3),
		RetryInitialBackoff: getEnvAsDuration("RETRY_INITIAL_BACKOFF", time.Second),
		RetryMaxBackoff:     getEnvAsDuration("RETRY_MAX_BACKOFF", 15*time.Second),
		JobLifespan:         getEnvAsDuration("JOB_LIFESPAN", 6*time.Hour),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var missing []string
	if c.RabbitURL == "" {
		missing = append(missing, "RABBITMQ_URL")
	}
	if c.AccountURL == "" {
		missing = append(missing, "ACCOUNT_URL")
	}
	if c.AccountID == "" {
		missing = append(missing, "ACCOUNT_ID")
	}
	if len(c.MessagingSeed) == 0 {
		missing = append(missing, "ACCOUNT_MESSAGING_IDENTITY_SEED")
	}
	if len(c.DiscoverySeed) == 0 {
		missing = append(missing, "ACCOUNT_DISCOVERY_IDENTITY_SEED")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missing)
	}
	return nil
}

func getEnv(key, def string) string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	return value
}

func getEnvAsInt(key string, def int) int {
	if value, ok := os.LookupEnv(key); ok {
		i, err := strconv.Atoi(value)
		if err != nil {
			log.Printf("invalid int for %s, using default %d: %v", key, def, err)
			return def
		}
		return i
	}
	return def
}

func getEnvAsBool(key string, def bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		b, err := strconv.ParseBool(value)
		if err != nil {
			log.Printf("invalid bool for %s, using default %t: %v", key, def, err)
			return def
		}
		return b
	}
	return def
}

func getEnvAsDuration(key string, def time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(value)
		if err != nil {
			log.Printf("invalid duration for %s, using default %s: %v", key, def, err)
			return def
		}
		return d
	}
	return def
}

func getEnvAsList(key string) []string {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnvAsSeed(key string) ([]byte, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return nil, nil
	}
	seed, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 in %s: %w", key, err)
	}
	return seed, nil
}
