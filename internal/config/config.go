// Package config handles configuration loading for foreman.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for foreman.
type Config struct {
	Defaults DefaultsConfig `mapstructure:"defaults"`
	Sandbox  SandboxConfig  `mapstructure:"sandbox"`
	Agent    AgentConfig    `mapstructure:"agent"`
	TUI      TUIConfig      `mapstructure:"tui"`
}

// DefaultsConfig holds default values for orchestration runs.
type DefaultsConfig struct {
	Mode          string        `mapstructure:"mode"`
	Target        string        `mapstructure:"target"`
	MaxParallel   int           `mapstructure:"max_parallel"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	FailurePolicy string        `mapstructure:"failure_policy"`
	MaxRetries    int           `mapstructure:"max_retries"`
}

// SandboxConfig holds Docker sandbox settings.
type SandboxConfig struct {
	Image string `mapstructure:"image"`
}

// AgentConfig holds agent process settings.
type AgentConfig struct {
	Command     string        `mapstructure:"command"`
	ContextFile string        `mapstructure:"context_file"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// TUIConfig holds TUI display settings.
type TUIConfig struct {
	RefreshRate time.Duration `mapstructure:"refresh_rate"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (FOREMAN_*)
// 2. Project config (.foreman.yaml in current directory or parent)
// 3. User config (~/.config/foreman/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Load user config from XDG path
	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	// Load project config if present
	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			// Merge project config (takes precedence)
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	// Environment variable overrides
	v.SetEnvPrefix("FOREMAN")
	v.AutomaticEnv()
	v.BindEnv("defaults.mode", "FOREMAN_MODE")
	v.BindEnv("defaults.target", "FOREMAN_TARGET")
	v.BindEnv("defaults.max_parallel", "FOREMAN_MAX_PARALLEL")
	v.BindEnv("sandbox.image", "FOREMAN_SANDBOX_IMAGE")
	v.BindEnv("agent.command", "FOREMAN_AGENT_COMMAND")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}

// Save writes the current configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(userConfigDir, "config.yaml")

	v := viper.New()
	v.SetConfigFile(configPath)

	v.Set("defaults.mode", cfg.Defaults.Mode)
	v.Set("defaults.target", cfg.Defaults.Target)
	v.Set("defaults.max_parallel", cfg.Defaults.MaxParallel)
	v.Set("defaults.poll_interval", cfg.Defaults.PollInterval.String())
	v.Set("defaults.failure_policy", cfg.Defaults.FailurePolicy)
	v.Set("defaults.max_retries", cfg.Defaults.MaxRetries)
	v.Set("sandbox.image", cfg.Sandbox.Image)
	v.Set("agent.command", cfg.Agent.Command)
	v.Set("agent.context_file", cfg.Agent.ContextFile)
	v.Set("agent.timeout", cfg.Agent.Timeout.String())
	v.Set("tui.refresh_rate", cfg.TUI.RefreshRate.String())

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	// Orchestration defaults
	v.SetDefault("defaults.mode", "autonomous")
	v.SetDefault("defaults.target", "sandbox")
	v.SetDefault("defaults.max_parallel", 3)
	v.SetDefault("defaults.poll_interval", "5s")
	v.SetDefault("defaults.failure_policy", "skip")
	v.SetDefault("defaults.max_retries", 1)

	// Sandbox defaults
	v.SetDefault("sandbox.image", "foreman-agent:latest")

	// Agent defaults
	v.SetDefault("agent.command", "claude")
	v.SetDefault("agent.context_file", "")
	v.SetDefault("agent.timeout", "0s")

	// TUI defaults
	v.SetDefault("tui.refresh_rate", "100ms")
}

// getUserConfigDir returns the XDG config directory for foreman.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "foreman")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "foreman")
	}
	return filepath.Join(home, ".config", "foreman")
}

// findProjectConfig searches for .foreman.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".foreman.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Defaults: DefaultsConfig{
			Mode:          "autonomous",
			Target:        "sandbox",
			MaxParallel:   3,
			PollInterval:  5 * time.Second,
			FailurePolicy: "skip",
			MaxRetries:    1,
		},
		Sandbox: SandboxConfig{
			Image: "foreman-agent:latest",
		},
		Agent: AgentConfig{
			Command: "claude",
		},
		TUI: TUIConfig{
			RefreshRate: 100 * time.Millisecond,
		},
	}
}
