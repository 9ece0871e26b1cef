package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Judge providers.
const (
	ProviderOpenAI      = "openai"
	ProviderAnthropic   = "anthropic"
	ProviderGemini      = "gemini"
	ProviderLevenshtein = "levenshtein"
)

// Config holds the trackjudge service configuration.
type Config struct {
	HTTP    HTTPConfig    `yaml:"http"`
	Judge   JudgeConfig   `yaml:"judge"`
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int   `yaml:"port"`
	ReadTimeoutSec  int   `yaml:"read_timeout_sec"`
	WriteTimeoutSec int   `yaml:"write_timeout_sec"` // 0 = no deadline; judge calls are unbounded
	ShutdownSec     int   `yaml:"shutdown_timeout_sec"`
	MaxBodyBytes    int64 `yaml:"max_body_bytes"`
}

// JudgeConfig selects and configures the judging capability.
type JudgeConfig struct {
	Provider         string       `yaml:"provider"` // openai, anthropic, gemini, levenshtein
	Model            string       `yaml:"model"`
	APIKey           string       `yaml:"api_key"`
	BaseURL          string       `yaml:"base_url"`
	SystemPromptPath string       `yaml:"system_prompt_path"`
	MaxTokens        int          `yaml:"max_tokens"`
	Temperature      float64      `yaml:"temperature"`
	Budget           BudgetConfig `yaml:"budget"`
}

// BudgetConfig holds judge token budget settings.
type BudgetConfig struct {
	DailyTokenLimit   int64  `yaml:"daily_token_limit"`   // 0 = unlimited
	MonthlyTokenLimit int64  `yaml:"monthly_token_limit"` // 0 = unlimited
	Action            string `yaml:"action"`              // "warn" (default) or "reject"
}

var defaultModels = map[string]string{
	ProviderOpenAI:    "gpt-4.1-mini",
	ProviderAnthropic: "claude-sonnet-4-5",
	ProviderGemini:    "gemini-2.5-flash",
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse decodes YAML configuration, expanding ${VAR} references, applying defaults and validating.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 6111
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		c.HTTP.MaxBodyBytes = 1 << 20
	}
	if c.Judge.Provider == "" {
		c.Judge.Provider = ProviderOpenAI
	}
	if c.Judge.Model == "" {
		c.Judge.Model = defaultModels[c.Judge.Provider]
	}
	if c.Judge.SystemPromptPath == "" {
		c.Judge.SystemPromptPath = filepath.Join("prompts", "system.txt")
	}
	if c.Judge.MaxTokens <= 0 {
		c.Judge.MaxTokens = 256
	}
	if c.Judge.Budget.Action == "" {
		c.Judge.Budget.Action = "warn"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.HTTP.WriteTimeoutSec < 0 {
		return fmt.Errorf("http.write_timeout_sec must not be negative, got %d", c.HTTP.WriteTimeoutSec)
	}
	switch c.Judge.Provider {
	case ProviderOpenAI, ProviderAnthropic, ProviderGemini:
		if c.Judge.APIKey == "" {
			return fmt.Errorf("judge.api_key is required for provider %q", c.Judge.Provider)
		}
	case ProviderLevenshtein:
		// offline, no credentials
	default:
		return fmt.Errorf(
			"judge.provider must be one of openai, anthropic, gemini, levenshtein, got %q",
			c.Judge.Provider,
		)
	}
	if c.Judge.Temperature < 0 || c.Judge.Temperature > 2 {
		return fmt.Errorf("judge.temperature must be between 0 and 2, got %v", c.Judge.Temperature)
	}
	switch c.Judge.Budget.Action {
	case "", "warn", "reject":
		// ok
	default:
		return fmt.Errorf("judge.budget.action must be \"warn\" or \"reject\", got %q", c.Judge.Budget.Action)
	}
	if c.Judge.Budget.DailyTokenLimit < 0 || c.Judge.Budget.MonthlyTokenLimit < 0 {
		return fmt.Errorf("judge.budget token limits must not be negative")
	}
	return nil
}

// LoadSystemPrompt reads the judge system prompt once at startup.
func LoadSystemPrompt(path string) (string, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("read system prompt %s: %w", path, err)
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", fmt.Errorf("system prompt %s is empty", path)
	}
	return prompt, nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1])
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
