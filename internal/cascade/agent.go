package cascade

import (
	"context"

	"github.com/kori-finance/kori/internal/account"
	"github.com/kori-finance/kori/internal/actor"
	"github.com/kori-finance/kori/internal/event"
	"github.com/kori-finance/kori/internal/ledger"
)

// AgentHandler propagates agent status changes to the agent's wallet and
// cash-clearing account profiles.
type AgentHandler struct {
	profiles account.Port
}

// NewAgentHandler builds the agent cascade handler.
func NewAgentHandler(profiles account.Port) *AgentHandler {
	return &AgentHandler{profiles: profiles}
}

// Handle applies the identical verb to the agent's account profiles.
func (h *AgentHandler) Handle(ctx context.Context, evt event.StatusChanged) error {
	if evt.Kind != actor.KindAgent || evt.Unchanged() {
		return nil
	}

	if err := propagateProfile(ctx, h.profiles, ledger.AgentWalletAccount(evt.ActorRef), evt.After); err != nil {
		return err
	}
	return propagateProfile(ctx, h.profiles, ledger.AgentCashClearingAccount(evt.ActorRef), evt.After)
}
