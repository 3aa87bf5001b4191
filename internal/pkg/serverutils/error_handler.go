package serverutils

import (
	"errors"

	"voice2note-be/internal/pkg/apperror"
	"voice2note-be/internal/pkg/logger"

	"github.com/gofiber/fiber/v2"
)

const genericErrorMessage = "Something went wrong, please try again later"

// StatusFor maps an error onto the HTTP status it is reported with.
func StatusFor(err error) int {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	switch apperror.KindOf(err) {
	case apperror.KindValidation:
		return fiber.StatusBadRequest
	case apperror.KindNotFound:
		return fiber.StatusNotFound
	case apperror.KindUpstream:
		return fiber.StatusBadGateway
	case apperror.KindRateLimited:
		return fiber.StatusTooManyRequests
	case apperror.KindPoolExhausted:
		return fiber.StatusServiceUnavailable
	case apperror.KindConcurrencyConflict:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

// messageFor exposes client errors as-is. Server-side causes stay in the log.
func messageFor(err error, status int) string {
	if status >= fiber.StatusInternalServerError {
		return genericErrorMessage
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Message
	}
	var ae *apperror.Error
	if errors.As(err, &ae) {
		return ae.Message
	}
	return err.Error()
}

// ErrorHandlerMiddleware turns handler errors into the response envelope.
func ErrorHandlerMiddleware(log logger.ILogger) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}

		status := StatusFor(err)
		if status >= fiber.StatusInternalServerError {
			log.Error("HTTP", "request failed", map[string]interface{}{
				"method": ctx.Method(),
				"path":   ctx.Path(),
				"status": status,
				"tenant": TenantFrom(ctx).String(),
				"error":  err.Error(),
			})
		}
		return ctx.Status(status).JSON(ErrorResponse(status, messageFor(err, status)))
	}
}
