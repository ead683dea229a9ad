package middleware

import (
	"fmt"

	pkgError "github.com/AzielCF/az-prospector/pkg/error"
	"github.com/AzielCF/az-prospector/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// Recovery turns a handler panic into a JSON error; GenericError panics keep their status.
func Recovery() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		defer func() {
			err := recover()
			if err == nil {
				return
			}

			res := utils.ResponseData{
				Status:  fiber.StatusInternalServerError,
				Code:    "INTERNAL_SERVER_ERROR",
				Message: fmt.Sprintf("%v", err),
			}
			if genericErr, ok := err.(pkgError.GenericError); ok {
				res.Status = genericErr.StatusCode()
				res.Code = genericErr.ErrCode()
				res.Message = genericErr.Error()
			}

			logrus.WithFields(logrus.Fields{
				"method": ctx.Method(),
				"path":   ctx.Path(),
			}).Errorf("[HTTP] Panic recovered: %v", err)

			_ = ctx.Status(res.Status).JSON(res)
		}()

		return ctx.Next()
	}
}
