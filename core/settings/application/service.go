package application

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/AzielCF/az-prospector/core/settings/domain"
	"github.com/AzielCF/az-prospector/core/settings/infrastructure"
	pkgError "github.com/AzielCF/az-prospector/pkg/error"
	"github.com/AzielCF/az-prospector/pkg/timeutils"
	"github.com/AzielCF/az-prospector/validations"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type SettingsService struct {
	repo     domain.ISettingsRepository
	defaults domain.RuntimeConfig
}

// NewSettingsService binds the gorm settings store. defaults come from env config and
// fill any key never written by an operator.
func NewSettingsService(db *gorm.DB, defaults domain.RuntimeConfig) *SettingsService {
	return NewSettingsServiceWithRepo(infrastructure.NewGlobalSettingsGormRepository(db), defaults)
}

func NewSettingsServiceWithRepo(repo domain.ISettingsRepository, defaults domain.RuntimeConfig) *SettingsService {
	return &SettingsService{repo: repo, defaults: defaults}
}

func (s *SettingsService) InitSchema(ctx context.Context) error {
	return s.repo.InitSchema(ctx)
}

// LoadRuntimeConfig builds a fresh snapshot: defaults overlaid with stored values.
// Malformed stored values are ignored with a warning.
func (s *SettingsService) LoadRuntimeConfig(ctx context.Context) (domain.RuntimeConfig, error) {
	stored, err := s.repo.GetAll(ctx)
	if err != nil {
		return domain.RuntimeConfig{}, fmt.Errorf("load runtime settings: %w", err)
	}

	cfg := s.defaults
	cfg.BusinessDays = append([]time.Weekday(nil), s.defaults.BusinessDays...)
	cfg.Categories = append([]string(nil), s.defaults.Categories...)
	cfg.Cities = append([]string(nil), s.defaults.Cities...)

	if v := stored[domain.KeyProspectorMode]; v != "" {
		cfg.Mode = strings.ToLower(v)
	}
	if v := stored[domain.KeyDispatchEnabled]; v != "" {
		cfg.DispatchEnabled = parseBool(v)
	}
	overlayInt(stored, domain.KeyHourlyLimit, &cfg.HourlyLimit)
	overlayInt(stored, domain.KeyDailyLimit, &cfg.DailyLimit)
	overlayInt(stored, domain.KeyBusinessStartHour, &cfg.StartHour)
	overlayInt(stored, domain.KeyBusinessEndHour, &cfg.EndHour)

	var seconds int
	if overlayInt(stored, domain.KeyMinDelaySeconds, &seconds) {
		cfg.MinDelay = time.Duration(seconds) * time.Second
	}
	if overlayInt(stored, domain.KeyMaxDelaySeconds, &seconds) {
		cfg.MaxDelay = time.Duration(seconds) * time.Second
	}
	if v := stored[domain.KeyBusinessDays]; v != "" {
		if days, err := timeutils.ParseWeekdays(v); err == nil {
			cfg.BusinessDays = days
		} else {
			logrus.WithError(err).Warnf("[SETTINGS] Ignoring stored %s", domain.KeyBusinessDays)
		}
	}
	if v := stored[domain.KeyBusinessTimezone]; v != "" {
		cfg.Timezone = v
	}
	if v, ok := stored[domain.KeyScraperCategories]; ok {
		cfg.Categories = splitList(v)
	}
	if v, ok := stored[domain.KeyScraperCities]; ok {
		cfg.Cities = splitList(v)
	}

	return cfg, nil
}

// UpdateRuntimeConfig applies patch over the current snapshot, validates the result
// and persists the touched keys atomically.
func (s *SettingsService) UpdateRuntimeConfig(ctx context.Context, patch domain.RuntimeConfigPatch) (domain.RuntimeConfig, error) {
	cfg, err := s.LoadRuntimeConfig(ctx)
	if err != nil {
		return domain.RuntimeConfig{}, err
	}

	values := make(map[string]string)
	if patch.Mode != nil {
		cfg.Mode = strings.ToLower(strings.TrimSpace(*patch.Mode))
		values[domain.KeyProspectorMode] = cfg.Mode
	}
	if patch.DispatchEnabled != nil {
		cfg.DispatchEnabled = *patch.DispatchEnabled
		values[domain.KeyDispatchEnabled] = strconv.FormatBool(cfg.DispatchEnabled)
	}
	if patch.HourlyLimit != nil {
		cfg.HourlyLimit = *patch.HourlyLimit
		values[domain.KeyHourlyLimit] = strconv.Itoa(cfg.HourlyLimit)
	}
	if patch.DailyLimit != nil {
		cfg.DailyLimit = *patch.DailyLimit
		values[domain.KeyDailyLimit] = strconv.Itoa(cfg.DailyLimit)
	}
	if patch.MinDelaySeconds != nil {
		cfg.MinDelay = time.Duration(*patch.MinDelaySeconds) * time.Second
		values[domain.KeyMinDelaySeconds] = strconv.Itoa(*patch.MinDelaySeconds)
	}
	if patch.MaxDelaySeconds != nil {
		cfg.MaxDelay = time.Duration(*patch.MaxDelaySeconds) * time.Second
		values[domain.KeyMaxDelaySeconds] = strconv.Itoa(*patch.MaxDelaySeconds)
	}
	if patch.BusinessDays != nil {
		days, err := timeutils.ParseWeekdays(*patch.BusinessDays)
		if err != nil {
			return domain.RuntimeConfig{}, pkgError.ValidationError(err.Error())
		}
		cfg.BusinessDays = days
		values[domain.KeyBusinessDays] = timeutils.FormatWeekdays(days)
	}
	if patch.StartHour != nil {
		cfg.StartHour = *patch.StartHour
		values[domain.KeyBusinessStartHour] = strconv.Itoa(cfg.StartHour)
	}
	if patch.EndHour != nil {
		cfg.EndHour = *patch.EndHour
		values[domain.KeyBusinessEndHour] = strconv.Itoa(cfg.EndHour)
	}
	if patch.Timezone != nil {
		cfg.Timezone = strings.TrimSpace(*patch.Timezone)
		values[domain.KeyBusinessTimezone] = cfg.Timezone
	}
	if patch.Categories != nil {
		cfg.Categories = cleanList(patch.Categories)
		values[domain.KeyScraperCategories] = strings.Join(cfg.Categories, ",")
	}
	if patch.Cities != nil {
		cfg.Cities = cleanList(patch.Cities)
		values[domain.KeyScraperCities] = strings.Join(cfg.Cities, ",")
	}

	if err := validations.ValidateRuntimeConfig(ctx, cfg); err != nil {
		return domain.RuntimeConfig{}, err
	}
	if len(values) == 0 {
		return cfg, nil
	}
	if err := s.repo.SetMany(ctx, values); err != nil {
		return domain.RuntimeConfig{}, fmt.Errorf("persist runtime settings: %w", err)
	}

	logrus.WithField("keys", len(values)).Info("[SETTINGS] Runtime configuration updated")
	return cfg, nil
}

// SetMode switches the active product ("zappy" or "lojaky").
func (s *SettingsService) SetMode(ctx context.Context, mode string) (domain.RuntimeConfig, error) {
	return s.UpdateRuntimeConfig(ctx, domain.RuntimeConfigPatch{Mode: &mode})
}

func overlayInt(stored map[string]string, key string, dst *int) bool {
	v := stored[key]
	if v == "" {
		return false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		logrus.Warnf("[SETTINGS] Ignoring stored %s=%q", key, v)
		return false
	}
	*dst = n
	return true
}

func parseBool(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func splitList(v string) []string {
	return cleanList(strings.Split(v, ","))
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out
}
