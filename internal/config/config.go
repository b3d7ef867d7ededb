package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all VERITAS console configuration.
type Config struct {
	// Backend is the remote analysis service.
	Backend BackendConfig `yaml:"backend"`

	// UI controls the interactive console.
	UI UIConfig `yaml:"ui"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`

	// StubServer configures `veritas stub-server`.
	StubServer StubServerConfig `yaml:"stub_server"`
}

// BackendConfig configures the analysis service client.
type BackendConfig struct {
	BaseURL string `yaml:"base_url"`

	Timeouts StageTimeouts `yaml:"timeouts"`
	Retry    RetryConfig   `yaml:"retry"`

	// Attachments larger than this are refused before any request is made.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
	// Response bodies are read up to this many bytes.
	MaxResponseBytes int64 `yaml:"max_response_bytes"`
}

// RetryConfig applies to idempotent calls only (deep-dive GET).
type RetryConfig struct {
	MaxAttempts int    `yaml:"max_attempts"`
	BaseDelay   string `yaml:"base_delay"`
}

// StubServerConfig configures the local stand-in backend.
type StubServerConfig struct {
	Addr string `yaml:"addr"`
	// Seed makes generated payloads reproducible; 0 seeds from the clock.
	Seed int64 `yaml:"seed"`
	// Latency is added to each adjudication and reconstruction response.
	Latency string `yaml:"latency"`
}

// DefaultBaseURL matches the address the analysis service listens on in development.
const DefaultBaseURL = "http://localhost:8000"

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			BaseURL:  DefaultBaseURL,
			Timeouts: DefaultStageTimeouts(),
			Retry: RetryConfig{
				MaxAttempts: 3,
				BaseDelay:   "200ms",
			},
			MaxUploadBytes:   64 << 20,
			MaxResponseBytes: 4 << 20,
		},

		UI: DefaultUIConfig(),

		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			File:   ".veritas/logs/veritas.log",
		},

		StubServer: StubServerConfig{
			Addr:    "127.0.0.1:8000",
			Latency: "0s",
		},
	}
}

// DefaultConfigPath returns the project-local config path.
func DefaultConfigPath() string {
	cwd, err := os.Getwd()
	if err != nil {
		return filepath.Join(".veritas", "config.yaml")
	}
	return filepath.Join(cwd, ".veritas", "config.yaml")
}

// LoadDotEnv loads .env.local then .env from the working directory.
// Existing process variables are never overwritten; missing files are ignored.
func LoadDotEnv() {
	for _, name := range []string{".env.local", ".env"} {
		_ = godotenv.Load(name)
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Defaults when the file doesn't exist
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("VERITAS_BASE_URL"); v != "" {
		c.Backend.BaseURL = v
	}
	if v := os.Getenv("VERITAS_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("VERITAS_LOG_FILE"); v != "" {
		c.Logging.File = v
	}
	if v := os.Getenv("VERITAS_THEME"); v != "" {
		c.UI.Theme = v
	}
	if v := os.Getenv("VERITAS_STUB_ADDR"); v != "" {
		c.StubServer.Addr = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Backend.BaseURL) == "" {
		return fmt.Errorf("backend.base_url is not configured (set it in the config file or VERITAS_BASE_URL)")
	}
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid backend.base_url %q: %w", c.Backend.BaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid backend.base_url %q: scheme must be http or https", c.Backend.BaseURL)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid backend.base_url %q: missing host", c.Backend.BaseURL)
	}
	if c.Backend.MaxUploadBytes <= 0 {
		return fmt.Errorf("backend.max_upload_bytes must be positive")
	}
	if c.Backend.MaxResponseBytes <= 0 {
		return fmt.Errorf("backend.max_response_bytes must be positive")
	}
	if err := c.UI.Validate(); err != nil {
		return err
	}
	return nil
}

// GetRetryBaseDelay returns the retry base delay as a duration.
func (c *Config) GetRetryBaseDelay() time.Duration {
	return parseDuration(c.Backend.Retry.BaseDelay, 200*time.Millisecond)
}

// GetRetryAttempts returns the number of attempts for idempotent calls (at least 1).
func (c *Config) GetRetryAttempts() int {
	if c.Backend.Retry.MaxAttempts < 1 {
		return 1
	}
	return c.Backend.Retry.MaxAttempts
}

// GetStubLatency returns the stub server's artificial latency.
func (c *Config) GetStubLatency() time.Duration {
	return parseDuration(c.StubServer.Latency, 0)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}
