package rest

import (
	"context"

	"github.com/AzielCF/az-prospector/core/settings/domain"
	"github.com/AzielCF/az-prospector/pkg/timeutils"
	"github.com/AzielCF/az-prospector/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

// SettingsService es lo que el handler necesita de core/settings
type SettingsService interface {
	LoadRuntimeConfig(ctx context.Context) (domain.RuntimeConfig, error)
	UpdateRuntimeConfig(ctx context.Context, patch domain.RuntimeConfigPatch) (domain.RuntimeConfig, error)
}

type Settings struct {
	service  SettingsService
	onUpdate func(domain.RuntimeConfig)
}

// SettingsResponse expone los delays en segundos y los días como lista "1,2,3"
type SettingsResponse struct {
	domain.RuntimeConfig
	MinDelaySeconds int    `json:"min_delay_seconds"`
	MaxDelaySeconds int    `json:"max_delay_seconds"`
	BusinessDaysStr string `json:"business_days_text"`
}

func toSettingsResponse(rc domain.RuntimeConfig) SettingsResponse {
	return SettingsResponse{
		RuntimeConfig:   rc,
		MinDelaySeconds: int(rc.MinDelay.Seconds()),
		MaxDelaySeconds: int(rc.MaxDelay.Seconds()),
		BusinessDaysStr: timeutils.FormatWeekdays(rc.BusinessDays),
	}
}

// InitRestSettings registra GET/PUT /settings. onUpdate (opcional) recibe la
// configuración recién guardada.
func InitRestSettings(app fiber.Router, service SettingsService, onUpdate func(domain.RuntimeConfig)) *Settings {
	h := &Settings{service: service, onUpdate: onUpdate}
	app.Get("/settings", h.Get)
	app.Put("/settings", h.Update)
	return h
}

func (h *Settings) Get(c *fiber.Ctx) error {
	rc, err := h.service.LoadRuntimeConfig(c.UserContext())
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Runtime settings",
		Results: toSettingsResponse(rc),
	})
}

func (h *Settings) Update(c *fiber.Ctx) error {
	var patch domain.RuntimeConfigPatch
	if err := c.BodyParser(&patch); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	rc, err := h.service.UpdateRuntimeConfig(c.UserContext(), patch)
	if err != nil {
		return errorJSON(c, err)
	}
	if h.onUpdate != nil {
		h.onUpdate(rc)
	}

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Runtime settings updated",
		Results: toSettingsResponse(rc),
	})
}
