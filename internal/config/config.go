package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Config is the root configuration for the Jinoca bot.
type Config struct {
	General    GeneralConfig    `json:"general"`
	Server     ServerConfig     `json:"server"`
	OpenRouter OpenRouterConfig `json:"openRouter"`
	ImageGen   ImageGenConfig   `json:"imageGen"`
	WhatsApp   WhatsAppConfig   `json:"whatsapp"`
	History    HistoryConfig    `json:"history"`
}

type GeneralConfig struct {
	LogLevel string `json:"logLevel"` // "debug" | "info" | "warn" | "error"
}

// ServerConfig configures the HTTP status surface.
type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// OpenRouterConfig configures the chat-completion API client.
type OpenRouterConfig struct {
	APIBase string `json:"apiBase"`
	APIKey  string `json:"apiKey"`
	Model   string `json:"model"`
}

// ImageGenConfig configures the image-generation API client.
type ImageGenConfig struct {
	BaseURL string `json:"baseUrl"`
}

// WhatsAppConfig configures the whatsmeow transport.
type WhatsAppConfig struct {
	DBPath                string `json:"dbPath"`
	ReconnectDelaySeconds int    `json:"reconnectDelaySeconds"`
}

// HistoryConfig configures the conversational-context window.
// WindowSize is the number of prior turns forwarded to the completion API;
// 0 disables history entirely.
type HistoryConfig struct {
	DBPath     string `json:"dbPath"`
	WindowSize int    `json:"windowSize"`
}

// DefaultConfigDir returns the default config directory (~/.jinoca).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".jinoca"
	}
	return filepath.Join(home, ".jinoca")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load reads the config file, expands ${VAR} references, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cannot resolve home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	ApplyEnv(cfg)

	cfg.WhatsApp.DBPath = expandPath(cfg.WhatsApp.DBPath)
	cfg.History.DBPath = expandPath(cfg.History.DBPath)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// FromEnv builds a config from defaults and environment variables only,
// used when no config file exists.
func FromEnv() (*Config, error) {
	cfg := Defaults()
	ApplyEnv(cfg)
	cfg.WhatsApp.DBPath = expandPath(cfg.WhatsApp.DBPath)
	cfg.History.DBPath = expandPath(cfg.History.DBPath)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides config values from recognized environment variables.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" {
		cfg.OpenRouter.APIKey = v
	}
	if v := os.Getenv("OPENROUTER_MODEL"); v != "" {
		cfg.OpenRouter.Model = v
	}
	if v := os.Getenv("IMAGE_GEN_API_URL"); v != "" {
		cfg.ImageGen.BaseURL = v
	}
	if v := os.Getenv("HISTORY_WINDOW"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.History.WindowSize = n
		}
	}
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // keep original if no env var and no default
		}
		return val
	})
}

// Save writes the config as indented JSON, creating the directory if needed.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 0 and 65535")
	}
	switch cfg.General.LogLevel {
	case "", "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	if cfg.OpenRouter.APIBase == "" {
		errs = append(errs, "openRouter.apiBase must not be empty")
	}
	if cfg.OpenRouter.Model == "" {
		errs = append(errs, "openRouter.model must not be empty")
	}
	if cfg.ImageGen.BaseURL == "" {
		errs = append(errs, "imageGen.baseUrl must not be empty")
	}
	if cfg.History.WindowSize < 0 {
		errs = append(errs, "history.windowSize must be >= 0")
	}
	if cfg.WhatsApp.ReconnectDelaySeconds < 1 {
		errs = append(errs, "whatsapp.reconnectDelaySeconds must be >= 1")
	}
	if cfg.WhatsApp.DBPath == "" {
		errs = append(errs, "whatsapp.dbPath must not be empty")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
