package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
// Only the RPC endpoint and listen address matter for the HTTP gateway; the
// database, NATS and Temporal settings are optional and enable transfer tracking.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// Solana configuration
	SolanaRPCURL        string
	Commitment          string
	ConfirmTimeout      time.Duration
	ConfirmPollInterval time.Duration
	ExplorerCluster     string

	// Database configuration (optional)
	DatabaseURL string

	// NATS configuration (optional)
	NATSURL string

	// Temporal configuration (optional)
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string
	TrackTimeout      time.Duration
	ReconcileInterval time.Duration // zero disables the reconcile schedule
}

const (
	DefaultRPCURL    = "https://api.devnet.solana.com"
	DefaultPort      = "8080"
	DefaultTaskQueue = "solapi-transfers"
)

// LoadDotEnv loads a .env file from the working directory if one exists.
// Variables already present in the environment are not overridden.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads configuration from environment variables and validates it.
// Returns an error if any configuration value is invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration. SERVER_ADDR wins over PORT.
	port := getEnvOrDefault("PORT", DefaultPort)
	if _, err := strconv.ParseUint(port, 10, 16); err != nil {
		errs = append(errs, fmt.Errorf("PORT: invalid port %q", port))
	}
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":"+port)
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// Solana configuration
	cfg.SolanaRPCURL = getEnvOrDefault("SOLANA_RPC_URL", DefaultRPCURL)
	if err := validateURL("SOLANA_RPC_URL", cfg.SolanaRPCURL); err != nil {
		errs = append(errs, err)
	}
	cfg.Commitment = getEnvOrDefault("SOLANA_COMMITMENT", "confirmed")
	cfg.ExplorerCluster = getEnvOrDefault("EXPLORER_CLUSTER", "devnet")

	confirmTimeout, err := parseDuration("CONFIRM_TIMEOUT", "60s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.ConfirmTimeout = confirmTimeout
	}

	pollInterval, err := parseDuration("CONFIRM_POLL_INTERVAL", "500ms")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.ConfirmPollInterval = pollInterval
	}

	// Optional integrations
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.NATSURL = os.Getenv("NATS_URL")
	cfg.TemporalHost = os.Getenv("TEMPORAL_HOST")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", DefaultTaskQueue)

	trackTimeout, err := parseDuration("TRACK_TIMEOUT", "3m")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.TrackTimeout = trackTimeout
	}

	reconcileInterval, err := parseDuration("RECONCILE_INTERVAL", "5m")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.ReconcileInterval = reconcileInterval
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.ServerAddr == "" {
		errs = append(errs, fmt.Errorf("ServerAddr is required"))
	}

	if c.SolanaRPCURL == "" {
		errs = append(errs, fmt.Errorf("SolanaRPCURL is required"))
	}

	switch c.Commitment {
	case "processed", "confirmed", "finalized":
	default:
		errs = append(errs, fmt.Errorf("Commitment must be one of processed, confirmed, finalized (got %q)", c.Commitment))
	}

	if c.ConfirmTimeout <= 0 {
		errs = append(errs, fmt.Errorf("ConfirmTimeout must be positive"))
	}

	if c.ConfirmPollInterval <= 0 {
		errs = append(errs, fmt.Errorf("ConfirmPollInterval must be positive"))
	} else if c.ConfirmPollInterval > c.ConfirmTimeout {
		errs = append(errs, fmt.Errorf("ConfirmPollInterval cannot be greater than ConfirmTimeout"))
	}

	if c.TemporalHost != "" && c.TemporalTaskQueue == "" {
		errs = append(errs, fmt.Errorf("TemporalTaskQueue is required when TemporalHost is set"))
	}

	if c.TrackTimeout < 0 {
		errs = append(errs, fmt.Errorf("TrackTimeout cannot be negative"))
	}

	if c.ReconcileInterval < 0 {
		errs = append(errs, fmt.Errorf("ReconcileInterval cannot be negative"))
	} else if c.ReconcileInterval > 0 && c.ReconcileInterval < time.Minute {
		errs = append(errs, fmt.Errorf("ReconcileInterval must be at least 1m or 0 to disable"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// TrackingEnabled reports whether submitted transfers are tracked to finality.
func (c *Config) TrackingEnabled() bool {
	return c.TemporalHost != ""
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

func validateURL(key, value string) error {
	u, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("%s: invalid URL %q: %w", key, value, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s: URL must use http or https, got %q", key, value)
	}
	return nil
}
