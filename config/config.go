// Package config provides configuration types and utilities for the
// coordination engine. This file contains the main unified configuration
// entry point: environment variables first, with an optional YAML file
// layered on top for values that don't fit comfortably in the shell.
package config

import (
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Config is the single entry point for every environment-driven setting
// the run controller, HTTP surface, and persistence layer need.
type Config struct {
	Providers ProviderConfig `mapstructure:"providers" yaml:"providers,omitempty"`
	Tools     ToolConfig     `mapstructure:"tools" yaml:"tools,omitempty"`
	Storage   StorageConfig  `mapstructure:"storage" yaml:"storage,omitempty"`
	Server    ServerConfig   `mapstructure:"server" yaml:"server,omitempty"`
	Reports   ReportsConfig  `mapstructure:"reports" yaml:"reports,omitempty"`
	Logging   LoggingConfig  `mapstructure:"logging" yaml:"logging,omitempty"`
	Tracing   TracingConfig  `mapstructure:"tracing" yaml:"tracing,omitempty"`
}

// sections lists every ConfigInterface member, in the order Validate and
// SetDefaults should visit them.
func (c *Config) sections() []ConfigInterface {
	return []ConfigInterface{
		&c.Providers, &c.Tools, &c.Storage, &c.Server, &c.Reports, &c.Logging, &c.Tracing,
	}
}

// Validate checks every section in turn, returning the first error found.
func (c *Config) Validate() error {
	for _, s := range c.sections() {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// SetDefaults fills in every section's unset fields.
func (c *Config) SetDefaults() {
	for _, s := range c.sections() {
		s.SetDefaults()
	}
}

// fromEnv builds a Config from the fixed set of environment variables
// this engine reads (spec.md §6): the primary provider token, a handful
// of optional tool tokens, the reports directory, the auth shared secret,
// and the dev-bypass flag.
func fromEnv() Config {
	return Config{
		Providers: ProviderConfig{
			AnthropicAPIKey: os.Getenv("AGORA_ANTHROPIC_API_KEY"),
			AnthropicModel:  os.Getenv("AGORA_ANTHROPIC_MODEL"),
			GenericAPIKey:   os.Getenv("AGORA_GENERIC_API_KEY"),
			GenericModel:    os.Getenv("AGORA_GENERIC_MODEL"),
			GenericURL:      os.Getenv("AGORA_GENERIC_BASE_URL"),
		},
		Tools: ToolConfig{
			SearchAPIKey: os.Getenv("AGORA_SEARCH_API_KEY"),
		},
		Storage: StorageConfig{
			Driver:      os.Getenv("AGORA_STORAGE_DRIVER"),
			SQLitePath:  os.Getenv("AGORA_SQLITE_PATH"),
			PostgresDSN: os.Getenv("AGORA_POSTGRES_DSN"),
		},
		Server: ServerConfig{
			Addr:             os.Getenv("AGORA_ADDR"),
			AuthSharedSecret: os.Getenv("AGORA_AUTH_SHARED_SECRET"),
			DevBypassAuth:    os.Getenv("AGORA_DEV_BYPASS_AUTH") == "true",
			CORSOrigin:       os.Getenv("AGORA_CORS_ORIGIN"),
		},
		Reports: ReportsConfig{
			OutputDir: os.Getenv("AGORA_REPORTS_DIR"),
		},
		Logging: LoggingConfig{
			Level:  os.Getenv("AGORA_LOG_LEVEL"),
			Format: os.Getenv("AGORA_LOG_FORMAT"),
			File:   os.Getenv("AGORA_LOG_FILE"),
		},
		Tracing: TracingConfig{
			Enabled:  os.Getenv("AGORA_TRACING_ENABLED") == "true",
			Endpoint: os.Getenv("AGORA_TRACING_ENDPOINT"),
			LogPath:  os.Getenv("AGORA_TRACING_LOG_PATH"),
		},
	}
}

// Load reads .env/.env.local (if present), builds a Config from the
// environment, then layers an optional YAML override file on top —
// useful for values awkward to carry as shell exports (storage tuning,
// per-environment CORS origins). yamlPath may be empty to skip the
// override step entirely.
func Load(yamlPath string) (*Config, error) {
	if err := LoadEnvFiles(); err != nil {
		return nil, err
	}

	cfg := fromEnv()

	if yamlPath != "" {
		if err := applyYAMLOverride(&cfg, yamlPath); err != nil {
			return nil, err
		}
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// applyYAMLOverride decodes yamlPath into a loosely-typed map, expands
// any ${VAR}/${VAR:-default}/$VAR references against the environment,
// and merges the result onto cfg via mapstructure — so a YAML file can
// still defer individual values to the environment.
func applyYAMLOverride(cfg *Config, yamlPath string) error {
	raw, err := os.ReadFile(yamlPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", yamlPath, err)
	}

	var data map[string]interface{}
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("config: parse %s: %w", yamlPath, err)
	}

	expanded := ExpandEnvVarsInData(data)

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("config: build decoder: %w", err)
	}
	if err := decoder.Decode(expanded); err != nil {
		return fmt.Errorf("config: decode %s: %w", yamlPath, err)
	}
	return nil
}
