// Package config handles loading and validation of service configuration.
// Supports both development (env vars, .env file) and production (Secret Manager) modes.
package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/joho/godotenv"
)

// Defaults applied when a setting is absent.
const (
	DefaultPort           = "8080"
	DefaultAPIBaseURL     = "http://localhost:8085"
	DefaultPollInterval   = 10 * time.Second
	DefaultRequestTimeout = 30 * time.Second
	DefaultSecretName     = "cartsync-api"
)

// Config holds all service configuration.
// Environment determines whether API credentials load from env vars (development) or Secret Manager (production).
type Config struct {
	// Server settings
	Port        string
	Environment string // "development" or "production"
	LogLevel    string // "debug", "info", "warn", "error"

	// GCP settings (required in production)
	GCPProject string
	SecretName string

	// Cart API settings. In production BaseURL and Token may come from the secret.
	API APIConfig

	// Reconciliation
	PollInterval time.Duration

	// Optional cross-process fan-out. Empty Addr disables it.
	Redis RedisConfig
}

// APIConfig describes the remote cart API.
type APIConfig struct {
	BaseURL        string        `json:"api_base_url"`
	Token          string        `json:"api_token"`
	RequestTimeout time.Duration `json:"-"`
	ChromeTLS      bool          `json:"chrome_tls"`
	MinVersion     string        `json:"min_api_version"`
}

// RedisConfig describes the Redis pub/sub fan-out.
type RedisConfig struct {
	Addr    string `json:"addr"`
	Channel string `json:"channel"`
}

// Load reads configuration from file, environment, or Secret Manager.
// Priority: CONFIG_FILE (if set) → ENV vars (plus .env in development) / Secret Manager.
// Validates all required fields and returns an error if any are invalid.
func Load(ctx context.Context) (*Config, error) {
	// If CONFIG_FILE is set, load everything from the JSON file
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromFile(configPath)
	}

	if envOrDefault("ENVIRONMENT", "development") != "production" {
		if err := loadDotEnv(envOrDefault("ENV_FILE", ".env")); err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		Port:        envOrDefault("PORT", DefaultPort),
		Environment: envOrDefault("ENVIRONMENT", "development"),
		LogLevel:    envOrDefault("LOG_LEVEL", "info"),
		GCPProject:  os.Getenv("GCP_PROJECT"),
		SecretName:  envOrDefault("SECRET_NAME", DefaultSecretName),
		API: APIConfig{
			BaseURL:    envOrDefault("API_BASE_URL", DefaultAPIBaseURL),
			Token:      os.Getenv("API_TOKEN"),
			MinVersion: os.Getenv("MIN_API_VERSION"),
		},
		Redis: RedisConfig{
			Addr:    os.Getenv("REDIS_ADDR"),
			Channel: os.Getenv("REDIS_CHANNEL"),
		},
	}

	var err error
	if cfg.PollInterval, err = envDuration("POLL_INTERVAL", DefaultPollInterval); err != nil {
		return nil, err
	}
	if cfg.API.RequestTimeout, err = envDuration("REQUEST_TIMEOUT", DefaultRequestTimeout); err != nil {
		return nil, err
	}
	if cfg.API.ChromeTLS, err = envBool("CHROME_TLS", false); err != nil {
		return nil, err
	}

	// Credentials come from Secret Manager in production
	if cfg.Environment == "production" {
		if cfg.GCPProject == "" {
			return nil, fmt.Errorf("GCP_PROJECT required in production environment")
		}
		if err := cfg.loadFromSecretManager(ctx); err != nil {
			return nil, fmt.Errorf("loading API credentials: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadDotEnv exports variables from a .env file without overriding ones
// already set. A missing file is not an error.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// loadFromFile reads all configuration from a JSON file.
// Used for local development to avoid multiple ENV vars.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Durations are strings in the file ("10s", "1m")
	var fileConfig struct {
		Port           string      `json:"port"`
		Environment    string      `json:"environment"`
		LogLevel       string      `json:"log_level"`
		PollInterval   string      `json:"poll_interval"`
		RequestTimeout string      `json:"request_timeout"`
		API            APIConfig   `json:"api"`
		Redis          RedisConfig `json:"redis"`
	}

	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg := &Config{
		Port:        withDefault(fileConfig.Port, DefaultPort),
		Environment: withDefault(fileConfig.Environment, "development"),
		LogLevel:    withDefault(fileConfig.LogLevel, "info"),
		API:         fileConfig.API,
		Redis:       fileConfig.Redis,
	}
	cfg.API.BaseURL = withDefault(cfg.API.BaseURL, DefaultAPIBaseURL)

	if cfg.PollInterval, err = parseDuration("poll_interval", fileConfig.PollInterval, DefaultPollInterval); err != nil {
		return nil, err
	}
	if cfg.API.RequestTimeout, err = parseDuration("request_timeout", fileConfig.RequestTimeout, DefaultRequestTimeout); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// withDefault returns val if non-empty, otherwise defaultVal.
func withDefault(val, defaultVal string) string {
	if val != "" {
		return val
	}
	return defaultVal
}

// loadFromSecretManager fetches API credentials from GCP Secret Manager.
// Secret name format: projects/{project}/secrets/{secret_name}/versions/latest
// The payload is JSON; fields it sets override the environment.
func (c *Config) loadFromSecretManager(ctx context.Context) error {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("creating secret manager client: %w", err)
	}
	defer client.Close()

	secretName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest",
		c.GCPProject, c.SecretName)

	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: secretName,
	})
	if err != nil {
		return fmt.Errorf("accessing secret %s: %w", secretName, err)
	}

	return c.applySecret(result.Payload.Data)
}

// applySecret merges a secret payload into the API settings.
func (c *Config) applySecret(data []byte) error {
	var secret struct {
		BaseURL string `json:"api_base_url"`
		Token   string `json:"api_token"`
	}
	if err := json.Unmarshal(data, &secret); err != nil {
		return fmt.Errorf("parsing secret JSON: %w", err)
	}

	if secret.BaseURL != "" {
		c.API.BaseURL = secret.BaseURL
	}
	if secret.Token != "" {
		c.API.Token = secret.Token
	}
	return nil
}

// validate checks that all configuration fields are usable.
func (c *Config) validate() error {
	if c.Environment != "development" && c.Environment != "production" {
		return fmt.Errorf("environment must be development or production, got %q", c.Environment)
	}

	u, err := url.Parse(c.API.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid api_base_url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api_base_url must be an absolute http(s) URL, got %q", c.API.BaseURL)
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if c.API.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}

	return nil
}

// envOrDefault returns the environment variable value or the default if not set.
func envOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// envDuration parses a duration variable such as "10s".
func envDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	return parseDuration(key, os.Getenv(key), defaultVal)
}

func parseDuration(name, raw string, defaultVal time.Duration) (time.Duration, error) {
	if raw == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, raw, err)
	}
	return d, nil
}

func envBool(key string, defaultVal bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return b, nil
}
