package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the configuration for the application.
type Config struct {
	Env      string `yaml:"env"`
	LogLevel string `yaml:"log_level"`
	Port     string `yaml:"port"`

	// LLM Config
	LLMProvider       string        `yaml:"llm_provider"`
	GeminiAPIKey      string        `yaml:"-"`
	GroqAPIKey        string        `yaml:"-"`
	GenerationTimeout time.Duration `yaml:"generation_timeout"`

	// Storage Config
	StoreBackend  string        `yaml:"store_backend"`
	DatabasePath  string        `yaml:"database_path"`
	PostgresDSN   string        `yaml:"-"`
	WriteDebounce time.Duration `yaml:"write_debounce"`

	// Session Config
	SessionJWTSecret string        `yaml:"-"`
	SessionWatchdog  time.Duration `yaml:"session_watchdog"`

	ExportTaskCount int `yaml:"export_task_count"`

	// Telegram Config
	TelegramBotToken   string `yaml:"-"`
	TelegramWebhookURL string `yaml:"telegram_webhook_url"`
	AdminTelegramID    int64  `yaml:"admin_telegram_id"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Env:               "development",
		LogLevel:          "info",
		Port:              "8080",
		LLMProvider:       "gemini",
		GenerationTimeout: 30 * time.Second,
		StoreBackend:      "sqlite",
		DatabasePath:      "data/capillaire.db",
		WriteDebounce:     500 * time.Millisecond,
		SessionWatchdog:   5 * time.Second,
		ExportTaskCount:   7,
	}
}

// NewFromEnv creates a new Config object from environment variables.
func NewFromEnv() (*Config, error) {
	return Load("")
}

// Load reads the optional YAML file at path, then applies environment
// variables on top of it.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.Env = getEnv("APP_ENV", cfg.Env)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.LLMProvider = getEnv("LLM_PROVIDER", cfg.LLMProvider)
	cfg.StoreBackend = getEnv("STORE_BACKEND", cfg.StoreBackend)
	cfg.DatabasePath = getEnv("DATABASE_PATH", cfg.DatabasePath)
	cfg.PostgresDSN = os.Getenv("POSTGRES_DSN")
	cfg.TelegramBotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.TelegramWebhookURL = getEnv("TELEGRAM_WEBHOOK_URL", cfg.TelegramWebhookURL)

	if v := os.Getenv("ADMIN_TELEGRAM_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("ADMIN_TELEGRAM_ID must be an integer: %w", err)
		}
		cfg.AdminTelegramID = id
	}

	var err error
	if cfg.GenerationTimeout, err = getDuration("GENERATION_TIMEOUT", cfg.GenerationTimeout); err != nil {
		return nil, err
	}
	if cfg.SessionWatchdog, err = getDuration("SESSION_WATCHDOG", cfg.SessionWatchdog); err != nil {
		return nil, err
	}
	if cfg.WriteDebounce, err = getDuration("WRITE_DEBOUNCE", cfg.WriteDebounce); err != nil {
		return nil, err
	}
	if v := os.Getenv("EXPORT_TASK_COUNT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("EXPORT_TASK_COUNT must be an integer: %w", err)
		}
		cfg.ExportTaskCount = n
	}

	switch cfg.LLMProvider {
	case "gemini":
		cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY environment variable not set")
		}
	case "groq":
		cfg.GroqAPIKey = os.Getenv("GROQ_API_KEY")
		if cfg.GroqAPIKey == "" {
			return nil, fmt.Errorf("GROQ_API_KEY environment variable not set")
		}
	}

	cfg.SessionJWTSecret = os.Getenv("SESSION_JWT_SECRET")
	if cfg.SessionJWTSecret == "" {
		return nil, fmt.Errorf("SESSION_JWT_SECRET environment variable not set")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays the YAML document at path onto c. Secrets are never
// read from the file.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.LLMProvider != "gemini" && c.LLMProvider != "groq" {
		return errors.New("LLM_PROVIDER must be one of: gemini, groq")
	}
	if c.StoreBackend != "sqlite" && c.StoreBackend != "postgres" {
		return errors.New("STORE_BACKEND must be one of: sqlite, postgres")
	}
	if c.StoreBackend == "postgres" && c.PostgresDSN == "" {
		return errors.New("POSTGRES_DSN is required when STORE_BACKEND=postgres")
	}
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return errors.New("APP_ENV must be one of: development, staging, production")
	}
	if c.GenerationTimeout <= 0 || c.SessionWatchdog <= 0 {
		return errors.New("timeouts must be positive")
	}
	if c.ExportTaskCount < 1 {
		return errors.New("EXPORT_TASK_COUNT must be at least 1")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	return d, nil
}
