package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/kori-finance/kori/internal/payments"
)

// RegisterPaymentRoutes wires the money-movement endpoints.
func RegisterPaymentRoutes(r fiber.Router, h *payments.Handler) {
	r.Post("/payments/cash-in", h.CashIn)
	r.Post("/payments/card", h.PayByCard)
	r.Post("/payments/merchant-withdraw", h.MerchantWithdraw)
	r.Post("/payments/:id/reverse", h.Reverse)
}
