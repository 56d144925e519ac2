// Package config handles Eckert configuration loading.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/eckert/config.yaml, /etc/eckert/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "eckert", "config.yaml"))
	}

	paths = append(paths, "/etc/eckert/config.yaml")
	return paths
}

// ErrNoConfig is returned by FindConfig when no candidate path exists.
var ErrNoConfig = errors.New("no config file found")

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("%w (searched: %v)", ErrNoConfig, DefaultSearchPaths())
}

// Defaults applied to fields left empty.
const (
	DefaultProvider      = "ollama"
	DefaultModel         = "qwen3:4b"
	DefaultOllamaURL     = "http://localhost:11434"
	DefaultTemperature   = 0.7
	DefaultMaxMessages   = 10
	DefaultMaxIterations = 5
	DefaultSessionID     = "default_user"
	DefaultPort          = 8080
	DefaultDataDir       = "data"
)

// Config holds all Eckert configuration.
type Config struct {
	Listen    ListenConfig  `yaml:"listen"`
	Models    ModelsConfig  `yaml:"models"`
	Storage   StorageConfig `yaml:"storage"`
	Agent     AgentConfig   `yaml:"agent"`
	DataDir   string        `yaml:"data_dir"`
	SkillsDir string        `yaml:"skills_dir"`

	// DefaultSession is the session id used when a command is not
	// given one.
	DefaultSession string `yaml:"default_session"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // text (default) or json
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// Addr returns the host:port to bind.
func (l ListenConfig) Addr() string {
	return fmt.Sprintf("%s:%d", l.Address, l.Port)
}

// ModelConfig describes one generator backend.
type ModelConfig struct {
	Provider string `yaml:"provider"` // ollama, anthropic, gemini
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"api_key"`

	// Temperature is a pointer so an explicit 0 survives defaulting.
	Temperature *float64 `yaml:"temperature"`
	MaxTokens   int      `yaml:"max_tokens"`
}

// Temp returns the configured temperature or DefaultTemperature.
func (m ModelConfig) Temp() float64 {
	if m.Temperature == nil {
		return DefaultTemperature
	}
	return *m.Temperature
}

// ModelsConfig is the primary generator plus optional fallbacks, tried
// in order when the primary is unreachable.
type ModelsConfig struct {
	ModelConfig `yaml:",inline"`
	Fallbacks   []ModelConfig `yaml:"fallbacks"`
}

// StorageConfig selects the transcript store.
type StorageConfig struct {
	Driver      string `yaml:"driver"` // sqlite (default), bolt, memory
	Path        string `yaml:"path"`
	MaxMessages int    `yaml:"max_messages"`
	PureGo      bool   `yaml:"pure_go"`
}

// AgentConfig tunes the reasoning loop and its system prompt.
type AgentConfig struct {
	MaxIterations int           `yaml:"max_iterations"`
	Retries       int           `yaml:"retries"`
	RetryBackoff  time.Duration `yaml:"retry_backoff"`
	Role          string        `yaml:"role"`
	Rules         []string      `yaml:"rules"`
}

// Load reads configuration from a YAML file, expands ${VAR} references,
// applies environment overrides and defaults, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the configuration used when no file is found. It
// still honours environment overrides.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, cfg.Validate()
}

// applyEnv overlays the environment keys of a .env-style deployment.
func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("OLLAMA_MODEL"); v != "" {
		c.Models.Model = v
	}
	if v := getenv("OLLAMA_BASE_URL"); v != "" {
		c.Models.BaseURL = v
	}
	if v := getenv("OLLAMA_TEMPERATURE"); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("OLLAMA_TEMPERATURE: %w", err)
		}
		c.Models.Temperature = &t
	}
	if v := getenv("MAX_MEMORY_LEN"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MAX_MEMORY_LEN: %w", err)
		}
		c.Storage.MaxMessages = n
	}
	if v := getenv("DEFAULT_SESSION_ID"); v != "" {
		c.DefaultSession = v
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Listen.Port == 0 {
		c.Listen.Port = DefaultPort
	}
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if c.DefaultSession == "" {
		c.DefaultSession = DefaultSessionID
	}

	if c.Models.Provider == "" {
		c.Models.Provider = DefaultProvider
	}
	if c.Models.Provider == "ollama" {
		if c.Models.Model == "" {
			c.Models.Model = DefaultModel
		}
		if c.Models.BaseURL == "" {
			c.Models.BaseURL = DefaultOllamaURL
		}
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite"
	}
	if c.Storage.MaxMessages <= 0 {
		c.Storage.MaxMessages = DefaultMaxMessages
	}
	if c.Storage.Path == "" {
		switch c.Storage.Driver {
		case "sqlite":
			c.Storage.Path = filepath.Join(c.DataDir, "memory.db")
		case "bolt":
			c.Storage.Path = filepath.Join(c.DataDir, "memory.bolt")
		}
	}

	if c.Agent.MaxIterations <= 0 {
		c.Agent.MaxIterations = DefaultMaxIterations
	}
	if c.Agent.Retries > 0 && c.Agent.RetryBackoff <= 0 {
		c.Agent.RetryBackoff = 500 * time.Millisecond
	}
	if c.SkillsDir == "" {
		c.SkillsDir = "skills"
	}
}

// Validate reports the first problem with the configuration.
func (c *Config) Validate() error {
	models := append([]ModelConfig{c.Models.ModelConfig}, c.Models.Fallbacks...)
	for i, m := range models {
		name := "models"
		if i > 0 {
			name = fmt.Sprintf("models.fallbacks[%d]", i-1)
		}
		switch m.Provider {
		case "", "ollama", "anthropic", "gemini":
		default:
			return fmt.Errorf("%s.provider: unknown provider %q (valid: ollama, anthropic, gemini)", name, m.Provider)
		}
		if m.Provider != "" && m.Provider != "ollama" && m.Model == "" {
			return fmt.Errorf("%s.model: required for provider %s", name, m.Provider)
		}
		if t := m.Temp(); t < 0 || t > 2 {
			return fmt.Errorf("%s.temperature: %v out of range [0, 2]", name, t)
		}
	}

	switch c.Storage.Driver {
	case "sqlite", "bolt", "memory":
	default:
		return fmt.Errorf("storage.driver: unknown driver %q (valid: sqlite, bolt, memory)", c.Storage.Driver)
	}

	if c.Agent.Retries < 0 {
		return fmt.Errorf("agent.retries: must not be negative")
	}
	if c.Listen.Port < 0 || c.Listen.Port > 65535 {
		return fmt.Errorf("listen.port: %d out of range", c.Listen.Port)
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		return fmt.Errorf("log_format: unknown format %q (valid: text, json)", c.LogFormat)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	return nil
}
