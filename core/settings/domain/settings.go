package domain

import (
	"context"
	"time"
)

// Setting represents a dynamic configuration value stored in the database.
type Setting struct {
	Key   string
	Value string
}

// ISettingsRepository defines the contract for persisting dynamic settings.
type ISettingsRepository interface {
	Get(ctx context.Context, key string) (string, error)
	GetAll(ctx context.Context) (map[string]string, error)
	Set(ctx context.Context, key string, value string) error
	SetMany(ctx context.Context, values map[string]string) error
	Delete(ctx context.Context, key string) error

	// InitSchema creates the necessary tables
	InitSchema(ctx context.Context) error
}

// Keys persisted in global_settings
const (
	KeyProspectorMode    = "prospector_mode"
	KeyDispatchEnabled   = "dispatch_enabled"
	KeyHourlyLimit       = "dispatch_hourly_limit"
	KeyDailyLimit        = "dispatch_daily_limit"
	KeyMinDelaySeconds   = "dispatch_min_delay_seconds"
	KeyMaxDelaySeconds   = "dispatch_max_delay_seconds"
	KeyBusinessDays      = "business_days"
	KeyBusinessStartHour = "business_start_hour"
	KeyBusinessEndHour   = "business_end_hour"
	KeyBusinessTimezone  = "business_timezone"
	KeyScraperCategories = "scraper_categories"
	KeyScraperCities     = "scraper_cities"
)

// RuntimeConfig is the operator-tunable snapshot a dispatch cycle reads once at start.
// Categories and Cities are only consumed by the external scraper.
type RuntimeConfig struct {
	Mode            string         `json:"mode"`
	DispatchEnabled bool           `json:"dispatch_enabled"`
	HourlyLimit     int            `json:"hourly_limit"`
	DailyLimit      int            `json:"daily_limit"`
	MinDelay        time.Duration  `json:"-"`
	MaxDelay        time.Duration  `json:"-"`
	BusinessDays    []time.Weekday `json:"business_days"`
	StartHour       int            `json:"start_hour"`
	EndHour         int            `json:"end_hour"`
	Timezone        string         `json:"timezone"`
	Categories      []string       `json:"categories"`
	Cities          []string       `json:"cities"`
}

// RuntimeConfigPatch carries a partial update; nil fields are left untouched.
type RuntimeConfigPatch struct {
	Mode            *string  `json:"mode,omitempty"`
	DispatchEnabled *bool    `json:"dispatch_enabled,omitempty"`
	HourlyLimit     *int     `json:"hourly_limit,omitempty"`
	DailyLimit      *int     `json:"daily_limit,omitempty"`
	MinDelaySeconds *int     `json:"min_delay_seconds,omitempty"`
	MaxDelaySeconds *int     `json:"max_delay_seconds,omitempty"`
	BusinessDays    *string  `json:"business_days,omitempty"`
	StartHour       *int     `json:"start_hour,omitempty"`
	EndHour         *int     `json:"end_hour,omitempty"`
	Timezone        *string  `json:"timezone,omitempty"`
	Categories      []string `json:"categories,omitempty"`
	Cities          []string `json:"cities,omitempty"`
}

// Location resolves Timezone, falling back to UTC on an unknown zone.
func (c RuntimeConfig) Location() *time.Location {
	if loc, err := time.LoadLocation(c.Timezone); err == nil {
		return loc
	}
	return time.UTC
}
