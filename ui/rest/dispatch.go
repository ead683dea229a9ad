package rest

import (
	"context"
	"errors"

	"github.com/AzielCF/az-prospector/dispatch/application"
	"github.com/AzielCF/az-prospector/dispatch/domain"
	"github.com/AzielCF/az-prospector/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type Dispatch struct {
	orchestrator *application.Orchestrator
	reaper       *application.Reaper
}

func InitRestDispatch(app fiber.Router, o *application.Orchestrator, r *application.Reaper) *Dispatch {
	h := &Dispatch{orchestrator: o, reaper: r}
	group := app.Group("/dispatch")
	group.Post("/run", h.Run)
	group.Post("/reap", h.Reap)
	group.Get("/status", h.Status)
	return h
}

// Run dispara un ciclo. Por defecto en segundo plano (202); con ?wait=true espera el reporte.
func (h *Dispatch) Run(c *fiber.Ctx) error {
	if c.QueryBool("wait") {
		report, err := h.orchestrator.RunCycle(c.UserContext())
		if errors.Is(err, domain.ErrCycleInProgress) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
		}
		if err != nil {
			return errorJSON(c, err)
		}
		return c.JSON(utils.ResponseData{Status: 200, Code: "SUCCESS", Message: "Dispatch cycle finished", Results: report})
	}

	go func() {
		if _, err := h.orchestrator.RunCycle(context.Background()); err != nil && !errors.Is(err, domain.ErrCycleInProgress) {
			logrus.WithError(err).Error("[DISPATCH] Manual cycle failed")
		}
	}()
	return c.Status(fiber.StatusAccepted).JSON(utils.ResponseData{
		Status:  fiber.StatusAccepted,
		Code:    "ACCEPTED",
		Message: "Dispatch cycle started",
	})
}

func (h *Dispatch) Reap(c *fiber.Ctx) error {
	n, err := h.reaper.Run(c.UserContext())
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Reaper pass finished",
		Results: fiber.Map{"marked_cold": n, "threshold": h.reaper.Threshold().String()},
	})
}

func (h *Dispatch) Status(c *fiber.Ctx) error {
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Dispatch status",
		Results: fiber.Map{
			"backend":    h.orchestrator.Sender().Name(),
			"governor":   h.orchestrator.Governor().Status(),
			"last_cycle": h.orchestrator.LastReport(),
			"cold_after": h.reaper.Threshold().String(),
		},
	})
}
