package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/kori-finance/kori/internal/fault"
)

// ErrorHandler translates business faults to HTTP responses. Faults map
// by category; anything else is reported as a generic technical
// failure so internal detail never leaks to callers.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return c.Status(fiberErr.Code).JSON(fiber.Map{"error": fiberErr.Message})
		}

		var f *fault.Error
		if errors.As(err, &f) {
			body := fiber.Map{"error": f.Code}
			if len(f.Metadata) > 0 {
				body["details"] = f.Metadata
			}
			return c.Status(statusFor(f.Category)).JSON(body)
		}

		logger.Error("unhandled error",
			slog.String("path", c.Path()), slog.Any("error", err))
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "internal_error"})
	}
}

func statusFor(category fault.Category) int {
	switch category {
	case fault.Validation:
		return http.StatusBadRequest
	case fault.Authorization:
		return http.StatusForbidden
	case fault.NotFound:
		return http.StatusNotFound
	case fault.Conflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
