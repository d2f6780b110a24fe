// Package config provides configuration types and utilities for the
// coordination engine. This file defines the typed sections of Config.
package config

import "fmt"

// ProviderConfig holds the credentials and defaults for one LLM path.
// AnthropicAPIKey backs the primary-provider path (llmgateway.AnthropicProvider);
// GenericAPIKey backs every agent that carries its own ModelID
// (llmgateway.OpenAIProvider).
type ProviderConfig struct {
	AnthropicAPIKey string `mapstructure:"anthropic_api_key" yaml:"anthropic_api_key,omitempty"`
	AnthropicModel  string `mapstructure:"anthropic_model" yaml:"anthropic_model,omitempty"`
	MaxTokens       int64  `mapstructure:"max_tokens" yaml:"max_tokens,omitempty"`

	GenericAPIKey string `mapstructure:"generic_api_key" yaml:"generic_api_key,omitempty"`
	GenericModel  string `mapstructure:"generic_model" yaml:"generic_model,omitempty"`
	GenericURL    string `mapstructure:"generic_base_url" yaml:"generic_base_url,omitempty"`
}

func (c *ProviderConfig) Validate() error {
	if c.AnthropicAPIKey == "" {
		return fmt.Errorf("providers: anthropic_api_key is required")
	}
	return nil
}

func (c *ProviderConfig) SetDefaults() {
	if c.AnthropicModel == "" {
		c.AnthropicModel = "claude-sonnet-4-5-20250929"
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 4096
	}
	if c.GenericModel == "" {
		c.GenericModel = "gpt-4o"
	}
}

// ToolConfig holds tokens for the handful of external tools that need
// one. The built-in tool registry does not read these; it registers the
// same fixed tool set whether or not a token is set.
type ToolConfig struct {
	SearchAPIKey string `mapstructure:"search_api_key" yaml:"search_api_key,omitempty"`
}

func (c *ToolConfig) Validate() error { return nil }
func (c *ToolConfig) SetDefaults()    {}

// StorageConfig selects and configures the persistence backend
// (store/sqlite or store/postgres).
type StorageConfig struct {
	Driver       string `mapstructure:"driver" yaml:"driver,omitempty"` // "sqlite" or "postgres"
	SQLitePath   string `mapstructure:"sqlite_path" yaml:"sqlite_path,omitempty"`
	PostgresDSN  string `mapstructure:"postgres_dsn" yaml:"postgres_dsn,omitempty"`
	MaxOpenConns int    `mapstructure:"max_open_conns" yaml:"max_open_conns,omitempty"`
	MaxIdleConns int    `mapstructure:"max_idle_conns" yaml:"max_idle_conns,omitempty"`
}

func (c *StorageConfig) Validate() error {
	switch c.Driver {
	case "sqlite", "postgres":
		return nil
	default:
		return fmt.Errorf("storage: unknown driver %q (want sqlite or postgres)", c.Driver)
	}
}

func (c *StorageConfig) SetDefaults() {
	if c.Driver == "" {
		c.Driver = "sqlite"
	}
	if c.SQLitePath == "" {
		c.SQLitePath = "agora.db"
	}
}

// ServerConfig carries the HTTP surface's listen address and auth mode.
type ServerConfig struct {
	Addr             string `mapstructure:"addr" yaml:"addr,omitempty"`
	AuthSharedSecret string `mapstructure:"auth_shared_secret" yaml:"auth_shared_secret,omitempty"`
	DevBypassAuth    bool   `mapstructure:"dev_bypass_auth" yaml:"dev_bypass_auth,omitempty"`
	CORSOrigin       string `mapstructure:"cors_origin" yaml:"cors_origin,omitempty"`
}

func (c *ServerConfig) Validate() error {
	if !c.DevBypassAuth && c.AuthSharedSecret == "" {
		return fmt.Errorf("server: auth_shared_secret is required unless dev_bypass_auth is set")
	}
	return nil
}

func (c *ServerConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
}

// ReportsConfig names where pipeline/protocol run artifacts are written
// (the original's markdown/JSON report dumps).
type ReportsConfig struct {
	OutputDir string `mapstructure:"output_dir" yaml:"output_dir,omitempty"`
}

func (c *ReportsConfig) Validate() error { return nil }

func (c *ReportsConfig) SetDefaults() {
	if c.OutputDir == "" {
		c.OutputDir = "./reports"
	}
}

// LoggingConfig controls the logger package's verbosity and wire format.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level,omitempty"`
	Format string `mapstructure:"format" yaml:"format,omitempty"`
	File   string `mapstructure:"file" yaml:"file,omitempty"`
}

func (c *LoggingConfig) Validate() error { return nil }

func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "simple"
	}
}

// TracingConfig controls the OTel exporter the llmgateway tracing
// decorator attaches to the primary-provider client.
type TracingConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled,omitempty"`
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	LogPath  string `mapstructure:"log_path" yaml:"log_path,omitempty"`
}

func (c *TracingConfig) Validate() error { return nil }

func (c *TracingConfig) SetDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = "localhost:4317"
	}
}
