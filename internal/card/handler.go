package card

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/kori-finance/kori/internal/idempotency"
	"github.com/kori-finance/kori/internal/middleware"
)

const idempotencyKeyHeader = "Idempotency-Key"

// Handler exposes the card endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a card handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type enrollRequest struct {
	ClientRef string `json:"client_ref"`
	CardUID   string `json:"card_uid"`
	Pin       string `json:"pin"`
}

// Enroll issues a card to a client.
func (h *Handler) Enroll(c *fiber.Ctx) error {
	var req enrollRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	res, err := h.service.EnrollCard(c.UserContext(), EnrollInput{
		Caller:         middleware.CallerFrom(c),
		ClientRef:      req.ClientRef,
		CardUID:        req.CardUID,
		Pin:            req.Pin,
		IdempotencyKey: c.Get(idempotencyKeyHeader),
		RequestHash:    idempotency.RequestHash(c.Body()),
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(res)
}

type verifyPinRequest struct {
	CardUID string `json:"card_uid"`
	Pin     string `json:"pin"`
}

// VerifyPin checks a card PIN.
func (h *Handler) VerifyPin(c *fiber.Ctx) error {
	var req verifyPinRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.service.VerifyPin(c.UserContext(), middleware.CallerFrom(c), req.CardUID, req.Pin); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"verified": true})
}

type transitionRequest struct {
	Status string `json:"status"`
}

// Transition moves a card to a non-active status.
func (h *Handler) Transition(c *fiber.Ctx) error {
	cardID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid card id")
	}
	var req transitionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	updated, err := h.service.Block(c.UserContext(), middleware.CallerFrom(c), cardID, Status(req.Status))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"card_id": updated.ID, "status": updated.Status})
}

// Unblock restores a blocked card to active.
func (h *Handler) Unblock(c *fiber.Ctx) error {
	cardID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid card id")
	}

	updated, err := h.service.Unblock(c.UserContext(), middleware.CallerFrom(c), cardID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"card_id": updated.ID, "status": updated.Status})
}
