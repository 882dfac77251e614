package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for snaptext
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	OCR     OCRConfig     `mapstructure:"ocr"`
	Enhance EnhanceConfig `mapstructure:"enhance"`
	Preview PreviewConfig `mapstructure:"preview"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Address      string   `mapstructure:"address"`
	Port         int      `mapstructure:"port"`
	ReadTimeout  int      `mapstructure:"read_timeout"`
	WriteTimeout int      `mapstructure:"write_timeout"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// OCRConfig holds recognition engine settings
type OCRConfig struct {
	Language       string `mapstructure:"language"`
	PageSegMode    int    `mapstructure:"page_seg_mode"`
	AttemptTimeout int    `mapstructure:"attempt_timeout"`
	RetryCount     int    `mapstructure:"retry_count"`
	RetryDelay     int    `mapstructure:"retry_delay"`
	DataPath       string `mapstructure:"data_path"`
}

// EnhanceConfig holds text enhancement service settings
type EnhanceConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	BaseURL   string `mapstructure:"base_url"`
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	Timeout   int    `mapstructure:"timeout"`
	MaxTokens int    `mapstructure:"max_tokens"`
	RateLimit int    `mapstructure:"rate_limit"`
}

// PreviewConfig holds preview thumbnail settings
type PreviewConfig struct {
	Dir     string `mapstructure:"dir"`
	MaxEdge int    `mapstructure:"max_edge"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Load loads configuration from file, env, and defaults
func Load(configPath, dataDir string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Determine data directory
	if dataDir == "" {
		dataDir = getDefaultDataDir()
	}

	// Ensure data directory exists
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	v.Set("preview.dir", filepath.Join(dataDir, "previews"))

	// Config file path
	if configPath == "" {
		configPath = filepath.Join(dataDir, "snaptext.yaml")
	} else {
		configPath = expandPath(configPath)
	}

	// If config file exists, load it
	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// Environment variables (SNAPTEXT_SERVER_PORT, SNAPTEXT_OCR_LANGUAGE, etc.)
	v.SetEnvPrefix("SNAPTEXT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal to struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Load secrets from environment (aliases like OPENAI_API_KEY included)
	loadEnvOverrides(&cfg)

	// Validate
	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.address", "0.0.0.0")
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)
	v.SetDefault("server.allow_origins", []string{"*"})

	// OCR defaults
	v.SetDefault("ocr.language", "eng")
	v.SetDefault("ocr.page_seg_mode", 3)
	v.SetDefault("ocr.attempt_timeout", 60)
	v.SetDefault("ocr.retry_count", 2)
	v.SetDefault("ocr.retry_delay", 2)

	// Enhancement defaults
	v.SetDefault("enhance.enabled", false)
	v.SetDefault("enhance.base_url", "https://api.openai.com/v1")
	v.SetDefault("enhance.model", "gpt-4o-mini")
	v.SetDefault("enhance.timeout", 30)
	v.SetDefault("enhance.max_tokens", 4096)
	v.SetDefault("enhance.rate_limit", 2)

	// Preview defaults
	v.SetDefault("preview.max_edge", 512)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)
}

func getDefaultDataDir() string {
	// Try XDG_DATA_HOME first
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "snaptext")
	}

	// Fall back to home directory
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}

	return filepath.Join(home, ".local", "share", "snaptext")
}

// loadEnvOverrides loads specific env vars that Viper doesn't handle well,
// including well-known aliases for third-party secrets
func loadEnvOverrides(cfg *Config) {
	getEnv := func(key, fallback string) string {
		if val := os.Getenv(key); val != "" {
			return val
		}
		return fallback
	}

	// Server settings
	cfg.Server.Address = getEnv("SNAPTEXT_SERVER_ADDRESS", cfg.Server.Address)
	if port := os.Getenv("SNAPTEXT_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}

	// OCR settings
	cfg.OCR.Language = getEnv("SNAPTEXT_OCR_LANGUAGE", cfg.OCR.Language)
	if psm := os.Getenv("SNAPTEXT_OCR_PAGE_SEG_MODE"); psm != "" {
		if m, err := strconv.Atoi(psm); err == nil {
			cfg.OCR.PageSegMode = m
		}
	}
	if dataPath := ResolveEnvWithAliases("SNAPTEXT_OCR_DATA_PATH"); dataPath != "" {
		cfg.OCR.DataPath = dataPath
	}

	// Enhancement settings
	if apiKey := ResolveEnvWithAliases("SNAPTEXT_ENHANCE_API_KEY"); apiKey != "" {
		cfg.Enhance.APIKey = apiKey
		cfg.Enhance.Enabled = true
	}
	if baseURL := GetEnvWithFallback("SNAPTEXT_ENHANCE_BASE_URL", "OPENAI_BASE_URL"); baseURL != "" {
		cfg.Enhance.BaseURL = baseURL
	}
	cfg.Enhance.Model = getEnv("SNAPTEXT_ENHANCE_MODEL", cfg.Enhance.Model)
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	if cfg.OCR.Language == "" {
		return fmt.Errorf("ocr.language is required")
	}
	if cfg.OCR.PageSegMode < 0 || cfg.OCR.PageSegMode > 13 {
		return fmt.Errorf("ocr.page_seg_mode must be between 0 and 13")
	}
	if cfg.OCR.RetryCount < 0 {
		return fmt.Errorf("ocr.retry_count must not be negative")
	}
	if cfg.OCR.AttemptTimeout < 1 {
		return fmt.Errorf("ocr.attempt_timeout must be at least 1 second")
	}

	if cfg.Enhance.Enabled && cfg.Enhance.APIKey == "" {
		return fmt.Errorf("enhance.api_key is required when enhancement is enabled")
	}

	if cfg.Preview.MaxEdge < 16 {
		return fmt.Errorf("preview.max_edge must be at least 16 pixels")
	}

	return nil
}
