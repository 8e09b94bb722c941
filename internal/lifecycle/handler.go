package lifecycle

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/kori-finance/kori/internal/middleware"
)

// Handler exposes the actor lifecycle endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a lifecycle handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type changeRequest struct {
	Verb   string `json:"verb"`
	Reason string `json:"reason"`
}

type changeFunc func(c *fiber.Ctx, ref string, verb Verb, reason string) (Change, error)

func (h *Handler) change(c *fiber.Ctx, apply changeFunc) error {
	var req changeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	res, err := apply(c, c.Params("ref"), Verb(req.Verb), req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

// Agent changes an agent's status.
func (h *Handler) Agent(c *fiber.Ctx) error {
	return h.change(c, func(c *fiber.Ctx, ref string, verb Verb, reason string) (Change, error) {
		return h.service.ChangeAgentStatus(c.UserContext(), middleware.CallerFrom(c), ref, verb, reason)
	})
}

// Merchant changes a merchant's status.
func (h *Handler) Merchant(c *fiber.Ctx) error {
	return h.change(c, func(c *fiber.Ctx, ref string, verb Verb, reason string) (Change, error) {
		return h.service.ChangeMerchantStatus(c.UserContext(), middleware.CallerFrom(c), ref, verb, reason)
	})
}

// Client changes a client's status.
func (h *Handler) Client(c *fiber.Ctx) error {
	return h.change(c, func(c *fiber.Ctx, ref string, verb Verb, reason string) (Change, error) {
		return h.service.ChangeClientStatus(c.UserContext(), middleware.CallerFrom(c), ref, verb, reason)
	})
}

// Terminal changes a terminal's status.
func (h *Handler) Terminal(c *fiber.Ctx) error {
	return h.change(c, func(c *fiber.Ctx, ref string, verb Verb, reason string) (Change, error) {
		return h.service.ChangeTerminalStatus(c.UserContext(), middleware.CallerFrom(c), ref, verb, reason)
	})
}
