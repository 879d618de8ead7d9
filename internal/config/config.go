// ABOUTME: Configuration loading and parsing for familiar
// ABOUTME: Supports YAML files with environment variable expansion and defaults

package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete familiar configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Widget     WidgetConfig     `yaml:"widget"`
	Completion CompletionConfig `yaml:"completion"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// WidgetConfig holds the user-facing widget texts and mount point.
// Texts are fixed for the widget's lifetime; there is no runtime
// reconfiguration surface.
type WidgetConfig struct {
	Title       string `yaml:"title"`
	Greeting    string `yaml:"greeting"`
	ErrorText   string `yaml:"error_text"`
	Placeholder string `yaml:"placeholder"` // input field hint
	MountPath   string `yaml:"mount_path"`
}

// CompletionConfig selects the completion provider and its parameters
type CompletionConfig struct {
	Provider          string `yaml:"provider"` // "gemini" or "openai"
	Model             string `yaml:"model"`
	APIKey            string `yaml:"api_key"`
	SystemInstruction string `yaml:"system_instruction"`
	BaseURL           string `yaml:"base_url"` // OpenAI-compatible endpoints only
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults for everything a config file may leave out. A missing API key is
// deliberately not defaulted and not validated: the widget runs without a
// session and silently ignores submissions.
const (
	DefaultHTTPAddr    = "localhost:8765"
	DefaultTitle       = "Familiar"
	DefaultGreeting    = "Hi! How can I help you today?"
	DefaultErrorText   = "Sorry, something went wrong. Please try again."
	DefaultPlaceholder = "Type a message"
	DefaultMountPath   = "/familiar"
	DefaultInstruction = "You are a friendly, concise assistant embedded in a website chat widget. Answer briefly and helpfully."
)

// Load reads a configuration file from the given path and returns a parsed
// Config. Environment variables in the format ${VAR_NAME} are expanded,
// then missing fields are filled with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// LoadOrDefault loads the file at path when it exists and falls back to
// Default() when it doesn't. Any other read or parse problem is still an
// error: a present-but-broken config should fail loudly, not be ignored.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

// Default returns a runnable configuration for the no-config-file case.
// The API key is taken from GEMINI_API_KEY, falling back to OPENAI_API_KEY
// (switching the provider along with it).
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()

	cfg.Completion.APIKey = os.Getenv("GEMINI_API_KEY")
	if cfg.Completion.APIKey == "" {
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			cfg.Completion.Provider = "openai"
			cfg.Completion.APIKey = key
		}
	}

	return cfg
}

// applyDefaults fills every empty field that has a sensible default.
func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.Widget.Title == "" {
		c.Widget.Title = DefaultTitle
	}
	if c.Widget.Greeting == "" {
		c.Widget.Greeting = DefaultGreeting
	}
	if c.Widget.ErrorText == "" {
		c.Widget.ErrorText = DefaultErrorText
	}
	if c.Widget.Placeholder == "" {
		c.Widget.Placeholder = DefaultPlaceholder
	}
	if c.Widget.MountPath == "" {
		c.Widget.MountPath = DefaultMountPath
	}
	if c.Completion.Provider == "" {
		c.Completion.Provider = "gemini"
	}
	if c.Completion.SystemInstruction == "" {
		c.Completion.SystemInstruction = DefaultInstruction
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all configuration fields are usable.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	switch c.Completion.Provider {
	case "gemini", "openai":
	default:
		return fmt.Errorf("completion.provider must be \"gemini\" or \"openai\", got %q", c.Completion.Provider)
	}

	if !strings.HasPrefix(c.Widget.MountPath, "/") {
		return fmt.Errorf("widget.mount_path must start with \"/\", got %q", c.Widget.MountPath)
	}
	if strings.HasSuffix(c.Widget.MountPath, "/") && c.Widget.MountPath != "/" {
		return fmt.Errorf("widget.mount_path must not end with \"/\", got %q", c.Widget.MountPath)
	}

	return nil
}
