package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/kori-finance/kori/internal/ledger"
)

// RegisterLedgerRoutes wires the journal read side for the back office.
func RegisterLedgerRoutes(r fiber.Router, h *ledger.Handler) {
	r.Get("/reconciliation", h.Reconciliation)
	r.Get("/accounts/:type/:owner/balance", h.Balance)
	r.Get("/transactions/:id", h.Transaction)
}
