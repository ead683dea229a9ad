package rest

import (
	"context"
	"time"

	dispatchDomain "github.com/AzielCF/az-prospector/dispatch/domain"
	"github.com/AzielCF/az-prospector/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// Pinger es cualquier dependencia con chequeo de vida (valkey)
type Pinger interface {
	Ping(ctx context.Context) error
}

type Health struct {
	db     *gorm.DB
	sender dispatchDomain.Sender
	cache  Pinger
}

func InitRestHealth(app fiber.Router, db *gorm.DB, sender dispatchDomain.Sender, cache Pinger) *Health {
	h := &Health{db: db, sender: sender, cache: cache}
	app.Get("/health", h.GetStatus)
	return h
}

type componentStatus struct {
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

func (h *Health) GetStatus(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	healthy := true
	results := fiber.Map{}

	db := componentStatus{OK: true}
	if sqlDB, err := h.db.DB(); err != nil {
		db = componentStatus{Detail: err.Error()}
	} else if err := sqlDB.PingContext(ctx); err != nil {
		db = componentStatus{Detail: err.Error()}
	}
	healthy = healthy && db.OK
	results["database"] = db

	if h.cache != nil {
		cache := componentStatus{OK: true}
		if err := h.cache.Ping(ctx); err != nil {
			cache = componentStatus{Detail: err.Error()}
		}
		healthy = healthy && cache.OK
		results["valkey"] = cache
	}

	if h.sender != nil {
		session := dispatchDomain.SessionStatus{Backend: h.sender.Name(), Connected: true, Detail: "no session check"}
		if checker, ok := h.sender.(dispatchDomain.SessionChecker); ok {
			session = checker.CheckSession(ctx)
		}
		results["messaging"] = session
	}

	status := fiber.StatusOK
	code := "SUCCESS"
	if !healthy {
		status = fiber.StatusServiceUnavailable
		code = "UNHEALTHY"
	}
	return c.Status(status).JSON(utils.ResponseData{
		Status:  status,
		Code:    code,
		Message: "Health status retrieved",
		Results: results,
	})
}
