package payout

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/kori-finance/kori/internal/idempotency"
	"github.com/kori-finance/kori/internal/middleware"
	"github.com/kori-finance/kori/internal/money"
)

const idempotencyKeyHeader = "Idempotency-Key"

// Handler exposes the payout and refund endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a payout handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type requestPayoutRequest struct {
	Amount string `json:"amount"`
}

// Request opens a payout for the calling agent.
func (h *Handler) Request(c *fiber.Ctx) error {
	var req requestPayoutRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := money.FromString(req.Amount)
	if err != nil {
		return err
	}

	res, err := h.service.RequestPayout(c.UserContext(), RequestPayoutInput{
		Caller:         middleware.CallerFrom(c),
		Amount:         amount,
		IdempotencyKey: c.Get(idempotencyKeyHeader),
		RequestHash:    idempotency.RequestHash(c.Body()),
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(res)
}

// Complete settles a payout.
func (h *Handler) Complete(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payout id")
	}
	res, err := h.service.CompletePayout(c.UserContext(), CompletePayoutInput{
		Caller:         middleware.CallerFrom(c),
		PayoutID:       id,
		IdempotencyKey: c.Get(idempotencyKeyHeader),
		RequestHash:    commandHash(id, c.Body()),
	})
	if err != nil {
		return err
	}
	return c.JSON(res)
}

type failRequest struct {
	Reason string `json:"reason"`
}

// Fail aborts a payout, reversing the reserved funds.
func (h *Handler) Fail(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payout id")
	}
	var req failRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	res, err := h.service.FailPayout(c.UserContext(), FailPayoutInput{
		Caller:         middleware.CallerFrom(c),
		PayoutID:       id,
		Reason:         req.Reason,
		IdempotencyKey: c.Get(idempotencyKeyHeader),
		RequestHash:    commandHash(id, c.Body()),
	})
	if err != nil {
		return err
	}
	return c.JSON(res)
}

type requestRefundRequest struct {
	ClientRef string `json:"client_ref"`
	Amount    string `json:"amount"`
}

// RequestRefund opens a refund crediting a client.
func (h *Handler) RequestRefund(c *fiber.Ctx) error {
	var req requestRefundRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := money.FromString(req.Amount)
	if err != nil {
		return err
	}

	res, err := h.service.RequestClientRefund(c.UserContext(), RequestRefundInput{
		Caller:         middleware.CallerFrom(c),
		ClientRef:      req.ClientRef,
		Amount:         amount,
		IdempotencyKey: c.Get(idempotencyKeyHeader),
		RequestHash:    idempotency.RequestHash(c.Body()),
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(res)
}

// CompleteRefund settles a refund.
func (h *Handler) CompleteRefund(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid refund id")
	}
	res, err := h.service.CompleteClientRefund(c.UserContext(), CompleteRefundInput{
		Caller:         middleware.CallerFrom(c),
		RefundID:       id,
		IdempotencyKey: c.Get(idempotencyKeyHeader),
		RequestHash:    commandHash(id, c.Body()),
	})
	if err != nil {
		return err
	}
	return c.JSON(res)
}

// FailRefund aborts a refund, reversing the client credit.
func (h *Handler) FailRefund(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid refund id")
	}
	var req failRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	res, err := h.service.FailClientRefund(c.UserContext(), FailRefundInput{
		Caller:         middleware.CallerFrom(c),
		RefundID:       id,
		Reason:         req.Reason,
		IdempotencyKey: c.Get(idempotencyKeyHeader),
		RequestHash:    commandHash(id, c.Body()),
	})
	if err != nil {
		return err
	}
	return c.JSON(res)
}

// commandHash digests a lifecycle command so a reused key targeting a
// different aggregate is rejected, not replayed.
func commandHash(id uuid.UUID, body []byte) string {
	return idempotency.RequestHash(append([]byte(id.String()+":"), body...))
}
