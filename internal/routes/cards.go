package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/kori-finance/kori/internal/card"
)

// RegisterCardRoutes wires the card endpoints.
func RegisterCardRoutes(r fiber.Router, h *card.Handler) {
	r.Post("/cards", h.Enroll)
	r.Post("/cards/verify-pin", h.VerifyPin)
	r.Post("/cards/:id/transition", h.Transition)
	r.Post("/cards/:id/unblock", h.Unblock)
}
