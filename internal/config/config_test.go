package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearEnv blanks every variable Load reads so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"CONFIG_FILE", "ENVIRONMENT", "PORT", "LOG_LEVEL", "GCP_PROJECT", "SECRET_NAME",
		"API_BASE_URL", "API_TOKEN", "MIN_API_VERSION", "POLL_INTERVAL",
		"REQUEST_TIMEOUT", "CHROME_TLS", "REDIS_ADDR", "REDIS_CHANNEL",
	} {
		t.Setenv(k, "")
	}
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != DefaultPort {
		t.Errorf("Port = %s, want %s", cfg.Port, DefaultPort)
	}
	if cfg.Environment != "development" {
		t.Errorf("Environment = %s, want development", cfg.Environment)
	}
	if cfg.API.BaseURL != DefaultAPIBaseURL {
		t.Errorf("API.BaseURL = %s, want %s", cfg.API.BaseURL, DefaultAPIBaseURL)
	}
	if cfg.PollInterval != DefaultPollInterval {
		t.Errorf("PollInterval = %v, want %v", cfg.PollInterval, DefaultPollInterval)
	}
	if cfg.API.RequestTimeout != DefaultRequestTimeout {
		t.Errorf("RequestTimeout = %v, want %v", cfg.API.RequestTimeout, DefaultRequestTimeout)
	}
	if cfg.API.ChromeTLS {
		t.Error("ChromeTLS = true, want false")
	}
	if cfg.Redis.Addr != "" {
		t.Errorf("Redis.Addr = %q, want empty", cfg.Redis.Addr)
	}
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("API_BASE_URL", "https://api.shop.example.com")
	t.Setenv("API_TOKEN", "tok_123")
	t.Setenv("MIN_API_VERSION", "1.2.0")
	t.Setenv("POLL_INTERVAL", "15s")
	t.Setenv("REQUEST_TIMEOUT", "5s")
	t.Setenv("CHROME_TLS", "true")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_CHANNEL", "shop:cart")

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("Port = %s, want 9090", cfg.Port)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %s, want debug", cfg.LogLevel)
	}
	if cfg.API.BaseURL != "https://api.shop.example.com" {
		t.Errorf("API.BaseURL = %s", cfg.API.BaseURL)
	}
	if cfg.API.Token != "tok_123" {
		t.Errorf("API.Token = %s, want tok_123", cfg.API.Token)
	}
	if cfg.API.MinVersion != "1.2.0" {
		t.Errorf("API.MinVersion = %s, want 1.2.0", cfg.API.MinVersion)
	}
	if cfg.PollInterval != 15*time.Second {
		t.Errorf("PollInterval = %v, want 15s", cfg.PollInterval)
	}
	if cfg.API.RequestTimeout != 5*time.Second {
		t.Errorf("RequestTimeout = %v, want 5s", cfg.API.RequestTimeout)
	}
	if !cfg.API.ChromeTLS {
		t.Error("ChromeTLS = false, want true")
	}
	if cfg.Redis.Addr != "localhost:6379" || cfg.Redis.Channel != "shop:cart" {
		t.Errorf("Redis = %+v", cfg.Redis)
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)

	envFile := filepath.Join(t.TempDir(), ".env")
	content := "API_TOKEN=from_dotenv\nPOLL_INTERVAL=20s\nPORT=7070\n"
	if err := os.WriteFile(envFile, []byte(content), 0644); err != nil {
		t.Fatalf("writing .env: %v", err)
	}
	t.Setenv("ENV_FILE", envFile)
	// Already-set variables win over the file
	t.Setenv("PORT", "9191")

	// godotenv skips variables that exist even when empty
	os.Unsetenv("API_TOKEN")
	os.Unsetenv("POLL_INTERVAL")
	t.Cleanup(func() {
		os.Unsetenv("API_TOKEN")
		os.Unsetenv("POLL_INTERVAL")
	})

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.API.Token != "from_dotenv" {
		t.Errorf("API.Token = %q, want from_dotenv", cfg.API.Token)
	}
	if cfg.PollInterval != 20*time.Second {
		t.Errorf("PollInterval = %v, want 20s", cfg.PollInterval)
	}
	if cfg.Port != "9191" {
		t.Errorf("Port = %s, want 9191 (env wins over .env)", cfg.Port)
	}
}

func TestLoadInvalidEnv(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{"bad poll interval", "POLL_INTERVAL", "often", "POLL_INTERVAL"},
		{"zero poll interval", "POLL_INTERVAL", "0s", "poll_interval must be positive"},
		{"negative timeout", "REQUEST_TIMEOUT", "-1s", "request_timeout must be positive"},
		{"bad chrome flag", "CHROME_TLS", "sometimes", "CHROME_TLS"},
		{"relative base url", "API_BASE_URL", "/api", "absolute http(s) URL"},
		{"unsupported scheme", "API_BASE_URL", "ftp://shop.example.com", "absolute http(s) URL"},
		{"unknown environment", "ENVIRONMENT", "staging", "environment must be"},
		{"production without project", "ENVIRONMENT", "production", "GCP_PROJECT required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load(context.Background())
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestApplySecret(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		wantURL   string
		wantToken string
		wantErr   bool
	}{
		{
			name:      "both fields",
			payload:   `{"api_base_url":"https://api.shop.example.com","api_token":"secret_tok"}`,
			wantURL:   "https://api.shop.example.com",
			wantToken: "secret_tok",
		},
		{
			name:      "token only keeps env base url",
			payload:   `{"api_token":"secret_tok"}`,
			wantURL:   DefaultAPIBaseURL,
			wantToken: "secret_tok",
		},
		{
			name:    "malformed",
			payload: `not json`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{API: APIConfig{BaseURL: DefaultAPIBaseURL}}
			err := cfg.applySecret([]byte(tt.payload))
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("applySecret() error: %v", err)
			}
			if cfg.API.BaseURL != tt.wantURL {
				t.Errorf("BaseURL = %s, want %s", cfg.API.BaseURL, tt.wantURL)
			}
			if cfg.API.Token != tt.wantToken {
				t.Errorf("Token = %s, want %s", cfg.API.Token, tt.wantToken)
			}
		})
	}
}

func TestEnvOrDefault(t *testing.T) {
	t.Setenv("CARTSYNC_TEST_VAR", "custom")

	if v := envOrDefault("CARTSYNC_TEST_VAR", "default"); v != "custom" {
		t.Errorf("envOrDefault = %s, want custom", v)
	}
	if v := envOrDefault("CARTSYNC_TEST_UNSET", "default"); v != "default" {
		t.Errorf("envOrDefault = %s, want default", v)
	}
}

func TestWithDefault(t *testing.T) {
	if v := withDefault("", "fallback"); v != "fallback" {
		t.Errorf("withDefault empty = %s, want fallback", v)
	}
	if v := withDefault("set", "fallback"); v != "set" {
		t.Errorf("withDefault set = %s, want set", v)
	}
}

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"port": "9000",
		"log_level": "debug",
		"poll_interval": "1m",
		"request_timeout": "3s",
		"api": {
			"api_base_url": "https://api.shop.example.com",
			"api_token": "file_tok",
			"chrome_tls": true,
			"min_api_version": "2.0.0"
		},
		"redis": {"addr": "redis:6379", "channel": "cart"}
	}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != "9000" {
		t.Errorf("Port = %s, want 9000", cfg.Port)
	}
	if cfg.Environment != "development" {
		t.Errorf("Environment = %s, want development", cfg.Environment)
	}
	if cfg.PollInterval != time.Minute {
		t.Errorf("PollInterval = %v, want 1m", cfg.PollInterval)
	}
	if cfg.API.RequestTimeout != 3*time.Second {
		t.Errorf("RequestTimeout = %v, want 3s", cfg.API.RequestTimeout)
	}
	if cfg.API.Token != "file_tok" || !cfg.API.ChromeTLS || cfg.API.MinVersion != "2.0.0" {
		t.Errorf("API = %+v", cfg.API)
	}
	if cfg.Redis.Addr != "redis:6379" || cfg.Redis.Channel != "cart" {
		t.Errorf("Redis = %+v", cfg.Redis)
	}
}

func TestLoadFromFileErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"malformed json", `{`, "parsing config file"},
		{"bad duration", `{"poll_interval": "soon"}`, "poll_interval"},
		{"bad base url", `{"api": {"api_base_url": "shop"}}`, "absolute http(s) URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatalf("writing config: %v", err)
			}

			_, err := loadFromFile(path)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}

	if _, err := loadFromFile(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
