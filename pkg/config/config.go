package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"mealsnap/pkg/provider/types"
)

const (
	envCredentialsPath = "MEALSNAP_CREDENTIALS_FILE"
	envUsageDBPath     = "MEALSNAP_USAGE_DB"
)

// Config is the root runtime configuration loaded from config.json.
type Config struct {
	Profile   Profile         `json:"profile"`
	Providers ProvidersConfig `json:"providers"`
	Storage   StorageConfig   `json:"storage"`
	Logging   LoggingConfig   `json:"logging,omitempty"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty"`
	Level     string `json:"level,omitempty"`
	AddSource bool   `json:"add_source,omitempty"`
}

// Profile is the per-user analysis setup consumed by the engine.
type Profile struct {
	SelectedProvider types.Provider `json:"selected_provider"`
	Preferences      Preferences    `json:"preferences"`
}

// Preferences holds user-configured analysis options.
//
// Mutated by settings flows only; the engine reads them per request.
type Preferences struct {
	FallbackProvider types.Provider  `json:"fallback_provider,omitempty"`
	MaxRetries       int             `json:"max_retries"`
	TimeoutSeconds   int             `json:"timeout_seconds"`
	EnableFallback   bool            `json:"enable_fallback"`
	LogUsage         bool            `json:"log_usage"`
	MaxDailyCost     decimal.Decimal `json:"max_daily_cost"`
}

// WithDefaults fills unset preference fields with engine defaults.
func (p Preferences) WithDefaults() Preferences {
	if p.MaxRetries < 1 {
		p.MaxRetries = 3
	}
	if p.TimeoutSeconds <= 0 {
		p.TimeoutSeconds = 45
	}
	if p.MaxDailyCost.IsZero() {
		p.MaxDailyCost = decimal.RequireFromString("1.00")
	}
	return p
}

// Timeout is the per-attempt deadline derived from TimeoutSeconds.
func (p Preferences) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// ProvidersConfig stores per-provider connection settings.
type ProvidersConfig struct {
	OpenAI    ProviderConfig `json:"openai"`
	Anthropic ProviderConfig `json:"anthropic"`
	Gemini    ProviderConfig `json:"gemini"`
}

// ProviderConfig configures one vendor client.
//
// BaseURL overrides the vendor endpoint, mainly for tests and proxies.
type ProviderConfig struct {
	BaseURL string `json:"base_url,omitempty"`
}

// ForProvider returns the config block matching a provider identity.
func (c ProvidersConfig) ForProvider(p types.Provider) ProviderConfig {
	switch p {
	case types.ProviderOpenAI:
		return c.OpenAI
	case types.ProviderAnthropic:
		return c.Anthropic
	case types.ProviderGemini:
		return c.Gemini
	}
	return ProviderConfig{}
}

// StorageConfig locates the engine's local state files.
type StorageConfig struct {
	CredentialsPath string `json:"credentials_path"`
	UsageDBPath     string `json:"usage_db_path"`
}

// LoadConfig resolves config.json, unmarshals it, and applies environment overrides.
func LoadConfig() (*Config, error) {
	configPath, err := findConfigPath()
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyEnvOverrides(&cfg)
	applyStorageDefaults(&cfg, filepath.Dir(configPath))

	return &cfg, nil
}

// applyEnvOverrides injects selected env-driven settings on top of file config.
func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	if path := strings.TrimSpace(os.Getenv(envCredentialsPath)); path != "" {
		cfg.Storage.CredentialsPath = path
	}

	if path := strings.TrimSpace(os.Getenv(envUsageDBPath)); path != "" {
		cfg.Storage.UsageDBPath = path
	}
}

// applyStorageDefaults places state files next to the config when unset.
func applyStorageDefaults(cfg *Config, baseDir string) {
	if strings.TrimSpace(cfg.Storage.CredentialsPath) == "" {
		cfg.Storage.CredentialsPath = filepath.Join(baseDir, "credentials.json")
	}
	if strings.TrimSpace(cfg.Storage.UsageDBPath) == "" {
		cfg.Storage.UsageDBPath = filepath.Join(baseDir, "usage.db")
	}
}

// findConfigPath resolves the active config file location.
//
// Precedence is MEALSNAP_CONFIG first, then cwd-local fallback paths.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv("MEALSNAP_CONFIG")); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("MEALSNAP_CONFIG does not point to a file: %s", value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config", "config.json"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("config.json not found (checked %s and %s)", candidates[0], candidates[1])
}
