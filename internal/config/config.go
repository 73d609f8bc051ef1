package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all screendoc configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Session storage
	Session SessionConfig `yaml:"session"`

	// LLM configuration
	LLM LLMConfig `yaml:"llm"`

	// Capture loop settings
	Capture CaptureConfig `yaml:"capture"`

	// Clarification policy
	Clarify ClarifyConfig `yaml:"clarify"`

	// Enhancement phase settings
	Enhance EnhanceConfig `yaml:"enhance"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// SessionConfig configures session storage.
type SessionConfig struct {
	// Directory that holds per-session folders and the document store
	Dir string `yaml:"dir"`

	// SQLite document store path, relative to Dir unless absolute
	DatabasePath string `yaml:"database_path"`
}

// LLMConfig configures the analysis capability.
type LLMConfig struct {
	Provider string `yaml:"provider"` // anthropic, gemini
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`
}

// CaptureConfig configures the capture→analyze loop.
type CaptureConfig struct {
	// Interval between ticks (first capture is immediate)
	TickInterval string `yaml:"tick_interval"`

	// Context window size handed to the analysis gateway
	WindowSize int `yaml:"window_size"`

	// Target page for the rod capturer (empty = active page)
	TargetURL string `yaml:"target_url"`
}

// ClarifyConfig configures the clarification policy.
type ClarifyConfig struct {
	// conservative, balanced, frequent
	Sensitivity string `yaml:"sensitivity"`

	// How long to wait for a human answer before abandoning the request
	Timeout string `yaml:"timeout"`
}

// EnhanceConfig configures the enhancement phase.
type EnhanceConfig struct {
	// Cap on refinement rounds; guarantees termination
	MaxRounds int `yaml:"max_rounds"`
}

// LoggingConfig configures the categorized file logger.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"`  // debug, info, warn, error
	JSONFormat bool            `yaml:"json_format"`
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "screendoc",
		Version: "0.3.0",

		Session: SessionConfig{
			Dir:          "sessions",
			DatabasePath: "screendoc.db",
		},

		LLM: LLMConfig{
			Provider: "anthropic",
			Model:    "claude-sonnet-4-20250514",
			BaseURL:  "https://api.anthropic.com/v1",
			Timeout:  "120s",
		},

		Capture: CaptureConfig{
			TickInterval: "10s",
			WindowSize:   5,
		},

		Clarify: ClarifyConfig{
			Sensitivity: "conservative",
			Timeout:     "120s",
		},

		Enhance: EnhanceConfig{
			MaxRounds: 3,
		},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults; environment variables override either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
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
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		c.LLM.APIKey = key
		if c.LLM.Provider == "" {
			c.LLM.Provider = "anthropic"
		}
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "gemini"
	}
	if dir := os.Getenv("SCREENDOC_SESSIONS"); dir != "" {
		c.Session.Dir = dir
	}
	if path := os.Getenv("SCREENDOC_DB"); path != "" {
		c.Session.DatabasePath = path
	}
	if level := os.Getenv("SCREENDOC_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// Validate checks the configuration for obvious mistakes.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "anthropic", "gemini":
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	switch c.Clarify.Sensitivity {
	case "conservative", "balanced", "frequent":
	default:
		return fmt.Errorf("unknown clarify sensitivity %q", c.Clarify.Sensitivity)
	}
	if c.Capture.WindowSize < 1 {
		return fmt.Errorf("capture window_size must be >= 1")
	}
	if c.Enhance.MaxRounds < 1 {
		return fmt.Errorf("enhance max_rounds must be >= 1")
	}
	return nil
}

// GetLLMTimeout returns the LLM timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// GetTickInterval returns the capture tick interval as a duration.
func (c *Config) GetTickInterval() time.Duration {
	d, err := time.ParseDuration(c.Capture.TickInterval)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// GetClarifyTimeout returns the clarification abandonment timeout.
func (c *Config) GetClarifyTimeout() time.Duration {
	d, err := time.ParseDuration(c.Clarify.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// DatabasePath resolves the document store path against the session dir.
func (c *Config) DatabasePath() string {
	if filepath.IsAbs(c.Session.DatabasePath) {
		return c.Session.DatabasePath
	}
	return filepath.Join(c.Session.Dir, c.Session.DatabasePath)
}
