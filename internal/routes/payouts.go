package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/kori-finance/kori/internal/payout"
)

// RegisterPayoutRoutes wires the payout and refund endpoints.
func RegisterPayoutRoutes(r fiber.Router, h *payout.Handler) {
	r.Post("/payouts", h.Request)
	r.Post("/payouts/:id/complete", h.Complete)
	r.Post("/payouts/:id/fail", h.Fail)
	r.Post("/refunds", h.RequestRefund)
	r.Post("/refunds/:id/complete", h.CompleteRefund)
	r.Post("/refunds/:id/fail", h.FailRefund)
}
