package ratelimit

import (
	"strings"

	"github.com/router-for-me/CreditEngine/internal/config"
	internalsettings "github.com/router-for-me/CreditEngine/internal/settings"
)

// SettingsConfig is the effective throttle configuration.
type SettingsConfig struct {
	Limit         int
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// SettingsProvider supplies the latest settings snapshot.
type SettingsProvider func() SettingsConfig

// NewSettingsProvider combines file config with the DB-held limit override.
// The limit is re-read from the settings snapshot on every call.
func NewSettingsProvider(cfg config.ThrottleConfig) SettingsProvider {
	base := SettingsConfig{
		Limit:         cfg.Limit,
		RedisEnabled:  cfg.Redis.Enabled,
		RedisAddr:     strings.TrimSpace(cfg.Redis.Addr),
		RedisPassword: strings.TrimSpace(cfg.Redis.Password),
		RedisDB:       cfg.Redis.DB,
		RedisPrefix:   strings.TrimSpace(cfg.Redis.Prefix),
	}
	if base.RedisPrefix == "" {
		base.RedisPrefix = config.DefaultThrottlePrefix
	}
	if base.RedisDB < 0 {
		base.RedisDB = 0
	}
	if base.Limit < 0 {
		base.Limit = 0
	}
	return func() SettingsConfig {
		out := base
		if raw, ok := internalsettings.DBConfigValue(internalsettings.SpendThrottleLimitKey); ok {
			if limit, okParse := internalsettings.ParseNonNegativeInt(raw); okParse && limit > 0 {
				out.Limit = limit
			}
		}
		return out
	}
}
