package payments

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/kori-finance/kori/internal/idempotency"
	"github.com/kori-finance/kori/internal/middleware"
	"github.com/kori-finance/kori/internal/money"
)

const idempotencyKeyHeader = "Idempotency-Key"

// Handler exposes the payment endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a payments handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type cashInRequest struct {
	ClientRef string `json:"client_ref"`
	Amount    string `json:"amount"`
}

// CashIn records a cash deposit collected by the calling agent.
func (h *Handler) CashIn(c *fiber.Ctx) error {
	var req cashInRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := money.FromString(req.Amount)
	if err != nil {
		return err
	}

	res, err := h.service.CashInByAgent(c.UserContext(), CashInInput{
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

type payByCardRequest struct {
	CardUID string `json:"card_uid"`
	Pin     string `json:"pin"`
	Amount  string `json:"amount"`
}

// PayByCard processes a card payment captured at the calling terminal.
func (h *Handler) PayByCard(c *fiber.Ctx) error {
	var req payByCardRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := money.FromString(req.Amount)
	if err != nil {
		return err
	}

	res, err := h.service.PayByCard(c.UserContext(), PayByCardInput{
		Caller:         middleware.CallerFrom(c),
		CardUID:        req.CardUID,
		Pin:            req.Pin,
		Amount:         amount,
		IdempotencyKey: c.Get(idempotencyKeyHeader),
		RequestHash:    idempotency.RequestHash(c.Body()),
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(res)
}

type merchantWithdrawRequest struct {
	AgentRef string `json:"agent_ref"`
	Amount   string `json:"amount"`
}

// MerchantWithdraw cashes out the calling merchant at an agent.
func (h *Handler) MerchantWithdraw(c *fiber.Ctx) error {
	var req merchantWithdrawRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := money.FromString(req.Amount)
	if err != nil {
		return err
	}

	res, err := h.service.MerchantWithdrawAtAgent(c.UserContext(), MerchantWithdrawInput{
		Caller:         middleware.CallerFrom(c),
		AgentRef:       req.AgentRef,
		Amount:         amount,
		IdempotencyKey: c.Get(idempotencyKeyHeader),
		RequestHash:    idempotency.RequestHash(c.Body()),
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(res)
}

// Reverse undoes a committed transaction.
func (h *Handler) Reverse(c *fiber.Ctx) error {
	txID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid transaction id")
	}

	res, err := h.service.Reverse(c.UserContext(), ReverseInput{
		Caller:         middleware.CallerFrom(c),
		TransactionID:  txID,
		IdempotencyKey: c.Get(idempotencyKeyHeader),
		RequestHash:    idempotency.RequestHash(c.Body()),
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(res)
}
