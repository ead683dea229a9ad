package rest

import (
	"errors"

	leadsDomain "github.com/AzielCF/az-prospector/leads/domain"
	pkgError "github.com/AzielCF/az-prospector/pkg/error"
	"github.com/gofiber/fiber/v2"
)

func errorJSON(c *fiber.Ctx, err error) error {
	var generic pkgError.GenericError
	if errors.As(err, &generic) {
		return c.Status(generic.StatusCode()).JSON(fiber.Map{"error": generic.Error(), "code": generic.ErrCode()})
	}
	if errors.Is(err, leadsDomain.ErrStoreUnavailable) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
}
