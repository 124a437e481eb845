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

const (
	EnvConfigPath   = "CONFIG_PATH"
	EnvDBConnection = "DB_CONNECTION"
	EnvJWTSecret    = "JWT_SECRET"
	EnvJWTExpiry    = "JWT_EXPIRY"
	EnvLogLevel     = "LOG_LEVEL"
	EnvRedisAddr    = "THROTTLE_REDIS_ADDR"
)

// AppConfig holds resolved application configuration values.
type AppConfig struct {
	ConfigPath string
}

// LoadFromEnv loads app config from environment variables.
func LoadFromEnv() (AppConfig, error) {
	return AppConfig{ConfigPath: ResolveConfigPath(os.Getenv(EnvConfigPath))}, nil
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// ErrMissingDatabaseDSN indicates no database DSN is present in the config file.
var ErrMissingDatabaseDSN = errors.New("missing database dsn (set `database-dsn` or `database.dsn` in config file)")

// JWTConfig holds JWT secret and expiry settings.
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Expiry time.Duration `yaml:"expiry"`
}

// EngineConfig tunes the accounting engine.
type EngineConfig struct {
	MinFeedbackLength  int `yaml:"min-feedback-length"`
	SpendRetryAttempts int `yaml:"spend-retry-attempts"`
	ExpiryWarningDays  int `yaml:"expiry-warning-days"`
}

// RedisConfig holds connection settings for the Redis throttle backend.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// ThrottleConfig limits how often a user may trigger spend actions.
type ThrottleConfig struct {
	Limit int         `yaml:"limit"`
	Redis RedisConfig `yaml:"redis"`
}

// LoggingConfig selects log level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Engine defaults applied when the config omits or invalidates a value.
const (
	DefaultMinFeedbackLength  = 10
	DefaultSpendRetryAttempts = 2
	DefaultExpiryWarningDays  = 7
	DefaultServerPort         = 8320
	DefaultThrottlePrefix     = "credits:rl"
)

// LoadDatabaseDSN reads the database DSN from the YAML config file.
func LoadDatabaseDSN(configPath string) (string, error) {
	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		return dsn, nil
	}

	// fileConfig maps the YAML fields needed for DSN resolution.
	type fileConfig struct {
		DatabaseDSN string `yaml:"database-dsn"`
		Database    struct {
			DSN string `yaml:"dsn"`
		} `yaml:"database"`
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", fmt.Errorf("read config file: %w", err)
	}

	var cfg fileConfig
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return "", fmt.Errorf("parse config file: %w", errUnmarshal)
	}

	if dsn := strings.TrimSpace(cfg.DatabaseDSN); dsn != "" {
		return dsn, nil
	}
	if dsn := strings.TrimSpace(cfg.Database.DSN); dsn != "" {
		return dsn, nil
	}
	return "", ErrMissingDatabaseDSN
}

// defaultJWTExpiry is used when the config omits or invalidates JWT expiry.
const defaultJWTExpiry = 30 * 24 * time.Hour

// LoadJWTConfig loads JWT settings from the YAML config file.
func LoadJWTConfig(configPath string) (JWTConfig, error) {
	// fileConfig maps the YAML fields needed for JWT settings.
	type fileConfig struct {
		JWT JWTConfig `yaml:"jwt"`
	}

	result := JWTConfig{Expiry: defaultJWTExpiry}

	var cfg fileConfig
	if readOptional(configPath, &cfg) {
		result = cfg.JWT
	}

	if secret := strings.TrimSpace(os.Getenv(EnvJWTSecret)); secret != "" {
		result.Secret = secret
	}
	if expiryRaw := strings.TrimSpace(os.Getenv(EnvJWTExpiry)); expiryRaw != "" {
		if expiry, errParse := time.ParseDuration(expiryRaw); errParse == nil && expiry > 0 {
			result.Expiry = expiry
		}
	}

	if result.Expiry <= 0 {
		result.Expiry = defaultJWTExpiry
	}
	return result, nil
}

// LoadEngineConfig loads accounting engine settings, applying defaults.
func LoadEngineConfig(configPath string) (EngineConfig, error) {
	type fileConfig struct {
		Engine EngineConfig `yaml:"engine"`
	}

	var cfg fileConfig
	readOptional(configPath, &cfg)
	result := cfg.Engine

	if result.MinFeedbackLength <= 0 {
		result.MinFeedbackLength = DefaultMinFeedbackLength
	}
	if result.SpendRetryAttempts < 0 {
		result.SpendRetryAttempts = 0
	}
	if result.SpendRetryAttempts == 0 {
		result.SpendRetryAttempts = DefaultSpendRetryAttempts
	}
	if result.ExpiryWarningDays <= 0 {
		result.ExpiryWarningDays = DefaultExpiryWarningDays
	}
	return result, nil
}

// LoadThrottleConfig loads spend throttle settings.
func LoadThrottleConfig(configPath string) (ThrottleConfig, error) {
	type fileConfig struct {
		Throttle ThrottleConfig `yaml:"throttle"`
	}

	var cfg fileConfig
	readOptional(configPath, &cfg)
	result := cfg.Throttle

	if addr := strings.TrimSpace(os.Getenv(EnvRedisAddr)); addr != "" {
		result.Redis.Addr = addr
		result.Redis.Enabled = true
	}
	result.Redis.Addr = strings.TrimSpace(result.Redis.Addr)
	result.Redis.Prefix = strings.TrimSpace(result.Redis.Prefix)
	if result.Redis.Prefix == "" {
		result.Redis.Prefix = DefaultThrottlePrefix
	}
	if result.Redis.DB < 0 {
		result.Redis.DB = 0
	}
	if result.Limit < 0 {
		result.Limit = 0
	}
	return result, nil
}

// LoadLoggingConfig loads log level and format.
func LoadLoggingConfig(configPath string) (LoggingConfig, error) {
	type fileConfig struct {
		Logging LoggingConfig `yaml:"logging"`
	}

	var cfg fileConfig
	readOptional(configPath, &cfg)
	result := cfg.Logging

	if level := strings.TrimSpace(os.Getenv(EnvLogLevel)); level != "" {
		result.Level = level
	}
	result.Level = strings.ToLower(strings.TrimSpace(result.Level))
	if result.Level == "" {
		result.Level = "info"
	}
	result.Format = strings.ToLower(strings.TrimSpace(result.Format))
	if result.Format != "json" {
		result.Format = "text"
	}
	return result, nil
}

// LoadServerPort reads `server.port`, falling back to the given default.
func LoadServerPort(configPath string, fallback int) int {
	type fileConfig struct {
		Server struct {
			Port string `yaml:"port"`
		} `yaml:"server"`
	}

	var cfg fileConfig
	if readOptional(configPath, &cfg) {
		if port, errParse := strconv.Atoi(strings.TrimSpace(cfg.Server.Port)); errParse == nil && port > 0 && port <= 65535 {
			return port
		}
	}
	if fallback <= 0 {
		return DefaultServerPort
	}
	return fallback
}

// readOptional decodes the config file into out, reporting whether it succeeded.
func readOptional(configPath string, out any) bool {
	data, errRead := os.ReadFile(configPath)
	if errRead != nil {
		return false
	}
	return yaml.Unmarshal(data, out) == nil
}
