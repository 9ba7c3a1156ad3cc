package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port     string `env:"PORT" env-default:"3000"`
	SiteName string `env:"SITE_NAME" env-default:"Средства измерения"`

	// Database configuration
	DBType            string `env:"DB_TYPE" env-default:"sqlite"`
	DBHost            string `env:"DB_HOST" env-default:"localhost"`
	DBPort            string `env:"DB_PORT" env-default:""`
	DBDatabase        string `env:"DB_DATABASE" env-default:"reestrsi.db"`
	DBUser            string `env:"DB_USER" env-default:""`
	DBPassword        string `env:"DB_PASSWORD" env-default:""`
	DBConnectionLimit int    `env:"DB_CONNECTION_LIMIT" env-default:"5"`
	SeedData          bool   `env:"SEED_DATA" env-default:"true"`

	// Session configuration
	SecretKey string `env:"SECRET_KEY" env-default:""`

	// Upload configuration
	UploadFolder      string   `env:"UPLOAD_FOLDER" env-default:"uploads"`
	AllowedExtensions []string `env:"ALLOWED_EXTENSIONS" env-separator:"," env-default:"pdf,jpg,jpeg,png"`

	// List pages
	PageSize int `env:"PAGE_SIZE" env-default:"20"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" env-default:"info"`
	LogFormat string `env:"LOG_FORMAT" env-default:"json"`
}

// Load loads configuration from an optional .env file and environment variables
func Load() (*Config, error) {
	// A missing .env is fine, the environment may already be complete
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	cfg := &Config{}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) validate() error {
	cfg.DBType = strings.ToLower(cfg.DBType)

	if cfg.SecretKey == "" {
		return fmt.Errorf("SECRET_KEY is required")
	}
	if cfg.DBDatabase == "" {
		return fmt.Errorf("DB_DATABASE is required")
	}
	if cfg.PageSize <= 0 {
		return fmt.Errorf("PAGE_SIZE must be positive")
	}

	switch cfg.DBType {
	case "sqlite", "sqlite-purego":
	case "mysql", "mariadb", "postgres", "sqlserver":
		if cfg.DBHost == "" {
			return fmt.Errorf("DB_HOST is required")
		}
		if cfg.DBUser == "" {
			return fmt.Errorf("DB_USER is required")
		}
	default:
		return fmt.Errorf("unsupported DB_TYPE: %s", cfg.DBType)
	}

	for i, ext := range cfg.AllowedExtensions {
		cfg.AllowedExtensions[i] = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	}
	return nil
}

// IsFileDB reports whether the configured database lives in a local file
func (cfg *Config) IsFileDB() bool {
	return cfg.DBType == "sqlite" || cfg.DBType == "sqlite-purego"
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Version returns the build version advertised in response headers
func Version() string {
	return getEnv("APP_VERSION", "1.0.0")
}
