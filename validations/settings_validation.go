package validations

import (
	"context"
	"errors"
	"time"

	settingsDomain "github.com/AzielCF/az-prospector/core/settings/domain"
	leadsDomain "github.com/AzielCF/az-prospector/leads/domain"
	pkgError "github.com/AzielCF/az-prospector/pkg/error"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

var (
	isProductMode = validation.By(func(value interface{}) error {
		mode, _ := value.(string)
		if _, ok := leadsDomain.ParseProduct(mode); !ok {
			return errors.New("must be zappy or lojaky")
		}
		return nil
	})

	isTimezone = validation.By(func(value interface{}) error {
		tz, _ := value.(string)
		if _, err := time.LoadLocation(tz); err != nil {
			return errors.New("unknown timezone")
		}
		return nil
	})
)

// ValidateRuntimeConfig checks an operator-edited snapshot before it is persisted.
func ValidateRuntimeConfig(ctx context.Context, cfg settingsDomain.RuntimeConfig) error {
	err := validation.ValidateStructWithContext(ctx, &cfg,
		validation.Field(&cfg.Mode, validation.Required, isProductMode),
		validation.Field(&cfg.HourlyLimit, validation.Required, validation.Min(1), validation.Max(1000)),
		validation.Field(&cfg.DailyLimit, validation.Required, validation.Min(cfg.HourlyLimit).Error("must be at least the hourly limit")),
		validation.Field(&cfg.MinDelay, validation.Min(time.Duration(0))),
		validation.Field(&cfg.MaxDelay, validation.Min(cfg.MinDelay).Error("must not be lower than min delay")),
		validation.Field(&cfg.BusinessDays, validation.Required, validation.Length(1, 7)),
		validation.Field(&cfg.StartHour, validation.Min(0), validation.Max(23)),
		validation.Field(&cfg.EndHour, validation.Required, validation.Min(cfg.StartHour+1).Error("must be after start hour"), validation.Max(24)),
		validation.Field(&cfg.Timezone, validation.Required, isTimezone),
	)
	if err != nil {
		return pkgError.ValidationError(err.Error())
	}
	return nil
}
