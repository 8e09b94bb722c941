package cascade

import (
	"context"

	"github.com/kori-finance/kori/internal/account"
	"github.com/kori-finance/kori/internal/actor"
	"github.com/kori-finance/kori/internal/card"
	"github.com/kori-finance/kori/internal/event"
	"github.com/kori-finance/kori/internal/ledger"
	"github.com/kori-finance/kori/internal/status"
)

// ClientHandler propagates client status changes to the client's account
// profile and cards.
type ClientHandler struct {
	profiles account.Port
	cards    card.Repository
}

// NewClientHandler builds the client cascade handler.
func NewClientHandler(profiles account.Port, cards card.Repository) *ClientHandler {
	return &ClientHandler{profiles: profiles, cards: cards}
}

// Handle applies the verb to the client's account profile, then cascades
// to cards: SUSPENDED suspends only currently-active cards; CLOSED
// deactivates every card not already lost or inactive. A client
// returning to ACTIVE never reactivates cards.
func (h *ClientHandler) Handle(ctx context.Context, evt event.StatusChanged) error {
	if evt.Kind != actor.KindClient || evt.Unchanged() {
		return nil
	}

	if err := propagateProfile(ctx, h.profiles, ledger.ClientAccount(evt.ActorRef), evt.After); err != nil {
		return err
	}

	switch evt.After {
	case status.Suspended:
		return h.suspendActiveCards(ctx, evt.ActorRef)
	case status.Closed:
		return h.deactivateCards(ctx, evt.ActorRef)
	}
	return nil
}

func (h *ClientHandler) suspendActiveCards(ctx context.Context, clientRef string) error {
	cards, err := h.cards.FindByClient(ctx, clientRef)
	if err != nil {
		return err
	}
	for _, c := range cards {
		if c.Status != card.StatusActive {
			continue
		}
		if err := c.TransitionTo(card.StatusSuspended); err != nil {
			return err
		}
		if err := h.cards.Save(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (h *ClientHandler) deactivateCards(ctx context.Context, clientRef string) error {
	cards, err := h.cards.FindByClient(ctx, clientRef)
	if err != nil {
		return err
	}
	for _, c := range cards {
		if c.Status == card.StatusLost || c.Status == card.StatusInactive {
			continue
		}
		if err := c.TransitionTo(card.StatusInactive); err != nil {
			return err
		}
		if err := h.cards.Save(ctx, c); err != nil {
			return err
		}
	}
	return nil
}
