package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Env lookups go through viper so values from .env, the process environment and
// bound cobra flags share one precedence order.

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(viper.GetString(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if !viper.IsSet(key) || viper.GetString(key) == "" {
		return fallback
	}
	return viper.GetInt(key)
}

func getEnvBool(key string, fallback bool) bool {
	if !viper.IsSet(key) || viper.GetString(key) == "" {
		return fallback
	}
	switch strings.ToLower(viper.GetString(key)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// getEnvDuration accepts Go durations ("90s", "5m") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(viper.GetString(key))
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs := viper.GetFloat64(key); secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	raw := viper.GetString(key)
	if raw == "" {
		return fallback
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// GetAllSettings returns the non-secret configuration for diagnostics.
func GetAllSettings() map[string]any {
	if Global == nil {
		return map[string]any{}
	}
	return map[string]any{
		"app_version":        Global.App.Version,
		"app_debug":          Global.App.Debug,
		"db_driver":          Global.Database.Driver,
		"valkey_enabled":     Global.Valkey.Enabled,
		"messaging_backend":  Global.Messaging.Backend,
		"dispatch_interval":  Global.Dispatch.Interval.String(),
		"dispatch_batch":     Global.Dispatch.BatchSize,
		"reaper_interval":    Global.Reaper.Interval.String(),
		"reaper_threshold":   Global.Reaper.Threshold.String(),
		"webhook_configured": Global.Sink.URL != "",
	}
}
