package middleware

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/kori-finance/kori/internal/guard"
)

const (
	actorTypeHeader = "X-Actor-Type"
	actorRefHeader  = "X-Actor-Ref"

	callerLocal = "caller"
)

// Caller extracts the gateway-verified identity headers. The gateway in
// front of this service owns authentication; requests reaching here
// without identity headers are rejected outright.
func Caller() fiber.Handler {
	return func(c *fiber.Ctx) error {
		actorType := c.Get(actorTypeHeader)
		actorRef := c.Get(actorRefHeader)
		if actorType == "" || actorRef == "" {
			return fiber.NewError(http.StatusUnauthorized, "missing identity headers")
		}
		c.Locals(callerLocal, guard.Caller{Type: guard.ActorType(actorType), Ref: actorRef})
		return c.Next()
	}
}

// CallerFrom returns the identity stored by the Caller middleware.
func CallerFrom(c *fiber.Ctx) guard.Caller {
	caller, _ := c.Locals(callerLocal).(guard.Caller)
	return caller
}

// RequireActor gates a route group to the given actor types.
func RequireActor(allowed ...guard.ActorType) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := guard.RequireActorType(CallerFrom(c).Type, allowed...); err != nil {
			return err
		}
		return c.Next()
	}
}
