package cascade

import (
	"context"

	"github.com/kori-finance/kori/internal/account"
	"github.com/kori-finance/kori/internal/actor"
	"github.com/kori-finance/kori/internal/event"
	"github.com/kori-finance/kori/internal/ledger"
	"github.com/kori-finance/kori/internal/status"
)

// MerchantHandler propagates merchant status changes to the merchant's
// account profile and terminals.
type MerchantHandler struct {
	profiles  account.Port
	terminals actor.TerminalRepository
}

// NewMerchantHandler builds the merchant cascade handler.
func NewMerchantHandler(profiles account.Port, terminals actor.TerminalRepository) *MerchantHandler {
	return &MerchantHandler{profiles: profiles, terminals: terminals}
}

// Handle applies the verb to the merchant's account profile, then
// cascades to terminals: SUSPENDED suspends only active terminals;
// CLOSED closes every terminal not already closed. A merchant returning
// to ACTIVE never reactivates terminals.
func (h *MerchantHandler) Handle(ctx context.Context, evt event.StatusChanged) error {
	if evt.Kind != actor.KindMerchant || evt.Unchanged() {
		return nil
	}

	if err := propagateProfile(ctx, h.profiles, ledger.MerchantAccount(evt.ActorRef), evt.After); err != nil {
		return err
	}

	switch evt.After {
	case status.Suspended:
		return h.forEachTerminal(ctx, evt.ActorRef, func(t *actor.Terminal) (bool, error) {
			if t.Status != status.Active {
				return false, nil
			}
			return true, t.Suspend()
		})
	case status.Closed:
		return h.forEachTerminal(ctx, evt.ActorRef, func(t *actor.Terminal) (bool, error) {
			if t.Status == status.Closed {
				return false, nil
			}
			return true, t.Close()
		})
	}
	return nil
}

func (h *MerchantHandler) forEachTerminal(ctx context.Context, merchantRef string, apply func(*actor.Terminal) (bool, error)) error {
	terminals, err := h.terminals.FindByMerchant(ctx, merchantRef)
	if err != nil {
		return err
	}
	for i := range terminals {
		changed, err := apply(&terminals[i])
		if err != nil {
			return err
		}
		if !changed {
			continue
		}
		if err := h.terminals.Save(ctx, terminals[i]); err != nil {
			return err
		}
	}
	return nil
}
