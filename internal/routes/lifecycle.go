package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/kori-finance/kori/internal/lifecycle"
)

// RegisterLifecycleRoutes wires the actor status commands.
func RegisterLifecycleRoutes(r fiber.Router, h *lifecycle.Handler) {
	r.Post("/agents/:ref/status", h.Agent)
	r.Post("/merchants/:ref/status", h.Merchant)
	r.Post("/clients/:ref/status", h.Client)
	r.Post("/terminals/:ref/status", h.Terminal)
}
