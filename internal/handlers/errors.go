package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/reestrsi/internal/types"
	"github.com/localnerve/reestrsi/internal/utils"
	"go.uber.org/zap"
)

// ErrorHandler renders every error through the standard envelope
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return utils.ErrorResponse(c, fe.Message, fe.Code, "http")
		}

		ce := types.ToCustomError(err)
		if ce.Code >= fiber.StatusInternalServerError {
			log.Error("request failed",
				zap.String("method", c.Method()),
				zap.String("url", c.OriginalURL()),
				zap.Any("requestid", c.Locals("requestid")),
				zap.Error(err),
			)
		}
		return utils.ErrorResponse(c, ce.Message, ce.Code, ce.Type)
	}
}
