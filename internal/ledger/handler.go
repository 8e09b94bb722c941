package ledger

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Handler exposes the admin read side of the journal.
type Handler struct {
	queries QueryPort
}

// NewHandler constructs a ledger read handler.
func NewHandler(queries QueryPort) *Handler {
	return &Handler{queries: queries}
}

// Reconciliation lists transactions whose entries no longer sum to
// zero. A non-empty answer means the journal store has been tampered
// with or corrupted; the write path never produces one.
func (h *Handler) Reconciliation(c *fiber.Ctx) error {
	ids, err := h.queries.FindInconsistentTransactions(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"inconsistent_transaction_ids": ids})
}

// Balance reports one account's balance.
func (h *Handler) Balance(c *fiber.Ctx) error {
	ref := AccountRef{Type: AccountType(c.Params("type")), OwnerRef: c.Params("owner")}
	balance, err := h.queries.BalanceOf(c.UserContext(), ref)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"account": ref.String(), "balance": balance})
}

// Transaction returns a transaction header with its entries.
func (h *Handler) Transaction(c *fiber.Ctx) error {
	txID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid transaction id")
	}
	tx, err := h.queries.FindTransaction(c.UserContext(), txID)
	if err != nil {
		return err
	}
	entries, err := h.queries.EntriesForTransaction(c.UserContext(), txID)
	if err != nil {
		return err
	}

	view := make([]fiber.Map, 0, len(entries))
	for _, e := range entries {
		view = append(view, fiber.Map{
			"account": e.Account.String(),
			"type":    e.Type,
			"amount":  e.Amount,
		})
	}
	return c.JSON(fiber.Map{
		"transaction_id":          tx.ID,
		"type":                    tx.Type,
		"amount":                  tx.Amount,
		"created_at":              tx.CreatedAt,
		"original_transaction_id": tx.OriginalTransactionID,
		"entries":                 view,
	})
}
