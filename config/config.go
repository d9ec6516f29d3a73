// Package config loads gateway configuration from a YAML file plus
// environment variables. Environment always wins; a .env file is honored
// when present.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServerConfig holds the transport endpoints.
type ServerConfig struct {
	// HTTPAddr is the request/response listener address.
	HTTPAddr string `yaml:"http_addr"`
	// StdioEnabled turns the stream transport on.
	StdioEnabled bool `yaml:"stdio_enabled"`
	// LogWSPort is the diagnostic websocket side-channel port; 0 disables it.
	LogWSPort int `yaml:"log_ws_port"`
}

// CredentialConfig configures the delegated-token endpoint.
type CredentialConfig struct {
	TokenURL     string `yaml:"token_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"-"`
}

// BackendConfig configures one generation backend.
type BackendConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	APIKey  string `yaml:"-"`
}

// ConnectorConfig overrides upstream base URLs; empty values use the public
// endpoints.
type ConnectorConfig struct {
	RecordsBaseURL    string `yaml:"records_base_url"`
	LiteratureBaseURL string `yaml:"literature_base_url"`
	TrialsBaseURL     string `yaml:"trials_base_url"`
	OpenFDABaseURL    string `yaml:"openfda_base_url"`
}

// Config is the full gateway configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Credential CredentialConfig `yaml:"credential"`
	Local      BackendConfig    `yaml:"local_backend"`
	Remote     BackendConfig    `yaml:"remote_backend"`
	Connectors ConnectorConfig  `yaml:"connectors"`

	// Durations are parsed from strings like "90s" in parseDurations.
	CacheTTL         time.Duration `yaml:"-"`
	SessionTTL       time.Duration `yaml:"-"`
	ConnectorTimeout time.Duration `yaml:"-"`

	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:     ":8090",
			StdioEnabled: true,
			LogWSPort:    0,
		},
		Local: BackendConfig{
			Enabled: true,
			BaseURL: "http://localhost:11434",
			Model:   "llama3",
		},
		CacheTTL:         5 * time.Minute,
		SessionTTL:       30 * time.Minute,
		ConnectorTimeout: 20 * time.Second,
		LogLevel:         "info",
	}
}

// Load reads path (optional) and applies environment overrides.
func Load(path string) (*Config, error) {
	// Try to load .env file, ignore error if it doesn't exist
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		expanded := []byte(expandEnvVars(string(data)))
		if err := yaml.Unmarshal(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
		if err := cfg.parseDurations(expanded); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseDurations decodes the duration keys, which YAML carries as strings
// like "90s" or "5m".
func (c *Config) parseDurations(data []byte) error {
	var raw struct {
		CacheTTL         string `yaml:"cache_ttl"`
		SessionTTL       string `yaml:"session_ttl"`
		ConnectorTimeout string `yaml:"connector_timeout"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	for _, f := range []struct {
		key string
		val string
		dst *time.Duration
	}{
		{"cache_ttl", raw.CacheTTL, &c.CacheTTL},
		{"session_ttl", raw.SessionTTL, &c.SessionTTL},
		{"connector_timeout", raw.ConnectorTimeout, &c.ConnectorTimeout},
	} {
		if f.val == "" {
			continue
		}
		d, err := time.ParseDuration(f.val)
		if err != nil {
			return fmt.Errorf("%s: invalid duration %q", f.key, f.val)
		}
		*f.dst = d
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.HTTPAddr = getEnv("MEDGATE_HTTP_ADDR", c.Server.HTTPAddr)
	c.Server.LogWSPort = getEnvInt("MEDGATE_LOG_WS_PORT", c.Server.LogWSPort)
	c.LogLevel = getEnv("MEDGATE_LOG_LEVEL", c.LogLevel)

	c.Credential.TokenURL = getEnv("MEDGATE_TOKEN_URL", c.Credential.TokenURL)
	c.Credential.ClientID = getEnv("MEDGATE_CLIENT_ID", c.Credential.ClientID)
	c.Credential.ClientSecret = getEnv("MEDGATE_CLIENT_SECRET", c.Credential.ClientSecret)

	c.Local.BaseURL = getEnv("MEDGATE_LOCAL_URL", c.Local.BaseURL)
	c.Local.Model = getEnv("MEDGATE_LOCAL_MODEL", c.Local.Model)
	c.Remote.BaseURL = getEnv("MEDGATE_REMOTE_URL", c.Remote.BaseURL)
	c.Remote.Model = getEnv("MEDGATE_REMOTE_MODEL", c.Remote.Model)
	c.Remote.APIKey = getEnv("MEDGATE_REMOTE_API_KEY", c.Remote.APIKey)
	if c.Remote.APIKey != "" && c.Remote.Model != "" {
		c.Remote.Enabled = true
	}
}

// Validate rejects configurations the gateway cannot run with.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr must be set")
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("cache_ttl must be positive")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session_ttl must be positive")
	}
	if c.ConnectorTimeout <= 0 {
		return fmt.Errorf("connector_timeout must be positive")
	}
	if c.Remote.Enabled && c.Remote.APIKey == "" {
		return fmt.Errorf("remote backend enabled without an API key")
	}
	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func expandEnvVars(s string) string {
	// Replace ${VAR_NAME} with environment variable values
	return os.Expand(s, func(key string) string {
		return os.Getenv(key)
	})
}
