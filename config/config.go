// Package config loads the YAML run configuration used by the agentwire CLI.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hupe1980/agentwire/flow"
	"github.com/hupe1980/agentwire/logging"
	"gopkg.in/yaml.v3"
)

// Config is the process-level run configuration.
type Config struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	// BaseURL overrides the endpoint of the selected model.
	BaseURL      string         `yaml:"base_url,omitempty"`
	SystemPrompt string         `yaml:"system_prompt,omitempty"`
	Vars         map[string]any `yaml:"vars,omitempty"`

	MaxTurns    int      `yaml:"max_turns"`
	MaxTokens   int      `yaml:"max_tokens,omitempty"`
	Temperature *float64 `yaml:"temperature,omitempty"`

	Workspace WorkspaceConfig `yaml:"workspace"`
	Tools     ToolsConfig     `yaml:"tools"`
	Log       LogConfig       `yaml:"log"`

	// Endpoints registers extra OpenAI-compatible connectors.
	Endpoints []EndpointConfig `yaml:"endpoints,omitempty"`
}

// WorkspaceConfig describes the directory tools operate in.
type WorkspaceConfig struct {
	Root      string `yaml:"root,omitempty"`
	Sandboxed bool   `yaml:"sandboxed"`
	Owner     bool   `yaml:"owner"`
	AgentID   string `yaml:"agent_id,omitempty"`
}

// ToolsConfig selects tools and how they are dispatched.
type ToolsConfig struct {
	Dispatch    flow.DispatchMode `yaml:"dispatch"`
	MaxParallel int               `yaml:"max_parallel,omitempty"`
	// Enabled restricts the registered tools; empty means all built-ins.
	Enabled []string `yaml:"enabled,omitempty"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// EndpointConfig describes an OpenAI-compatible endpoint. APIKey is expanded
// against the environment, so "${DEEPSEEK_API_KEY}" is accepted.
type EndpointConfig struct {
	ID      string   `yaml:"id"`
	Label   string   `yaml:"label,omitempty"`
	BaseURL string   `yaml:"base_url"`
	APIKey  string   `yaml:"api_key,omitempty"`
	EnvVars []string `yaml:"env_vars,omitempty"`
	Models  []string `yaml:"models,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Provider: "openai",
		Model:    "gpt-4o-mini",
		MaxTurns: flow.DefaultMaxTurns,
		Tools:    ToolsConfig{Dispatch: flow.DispatchSequential},
		Log:      LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path and applies defaults for unset fields. Unknown keys are
// rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML data and applies defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	for i := range cfg.Endpoints {
		cfg.Endpoints[i].APIKey = os.ExpandEnv(cfg.Endpoints[i].APIKey)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.MaxTurns == 0 {
		c.MaxTurns = flow.DefaultMaxTurns
	}
	if c.Tools.Dispatch == "" {
		c.Tools.Dispatch = flow.DispatchSequential
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Provider == "" {
		return errors.New("config: provider is required")
	}
	if c.MaxTurns < 0 {
		return fmt.Errorf("config: max_turns must be positive, got %d", c.MaxTurns)
	}
	if _, err := flow.NewDispatcher(c.Tools.Dispatch, c.Tools.MaxParallel); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("config: log format must be text or json, got %q", c.Log.Format)
	}
	seen := map[string]bool{}
	for _, ep := range c.Endpoints {
		if ep.ID == "" || ep.BaseURL == "" {
			return errors.New("config: endpoints need id and base_url")
		}
		if seen[ep.ID] {
			return fmt.Errorf("config: duplicate endpoint %q", ep.ID)
		}
		seen[ep.ID] = true
	}
	return nil
}
