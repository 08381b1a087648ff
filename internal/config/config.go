package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config carries every tunable explicitly; services receive the values they
// need through their constructors instead of reading ambient globals.
type Config struct {
	HTTPPort string

	LeaseDuration   time.Duration
	SessionDuration time.Duration
	CleanupInterval time.Duration

	// Zones is the raw zone spec, e.g. "A:20,B:30".
	Zones string

	KafkaBrokers    []string
	KafkaAuditTopic string
}

const (
	defaultHTTPPort        = "9000"
	defaultLeaseDuration   = 5 * time.Minute
	defaultSessionDuration = 30 * time.Minute
	defaultCleanupInterval = time.Minute
	defaultZones           = "A:20,B:20"
	defaultAuditTopic      = "lockerdesk.audit"
)

// Load reads .env (if present next to the working directory or one level
// up) and assembles the configuration from the environment.
func Load() (*Config, error) {
	loadDotEnv()

	cfg := &Config{
		HTTPPort:        envOr("HTTP_PORT", defaultHTTPPort),
		Zones:           envOr("ZONES", defaultZones),
		KafkaAuditTopic: envOr("KAFKA_AUDIT_TOPIC", defaultAuditTopic),
	}

	var err error
	if cfg.LeaseDuration, err = durationOr("LEASE_DURATION", defaultLeaseDuration); err != nil {
		return nil, err
	}
	if cfg.SessionDuration, err = durationOr("SESSION_DURATION", defaultSessionDuration); err != nil {
		return nil, err
	}
	if cfg.CleanupInterval, err = durationOr("CLEANUP_INTERVAL", defaultCleanupInterval); err != nil {
		return nil, err
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		for _, broker := range strings.Split(brokers, ",") {
			if broker = strings.TrimSpace(broker); broker != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, broker)
			}
		}
	}

	return cfg, nil
}

func loadDotEnv() {
	wd, err := os.Getwd()
	if err != nil {
		return
	}
	for _, path := range []string{
		filepath.Join(wd, ".env"),
		filepath.Join(wd, "..", ".env"),
		filepath.Join(wd, ".example.env"),
	} {
		if err := godotenv.Load(path); err == nil {
			return
		}
	}
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func durationOr(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %q", key, value)
	}
	return d, nil
}
