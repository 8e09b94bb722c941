// Package lifecycle holds the admin commands that move actors between
// ACTIVE, SUSPENDED and CLOSED. Each command applies the transition,
// runs the status cascades synchronously, and only then persists the
// actor, so a cascade failure aborts the change.
package lifecycle

import (
	"context"
	"log/slog"

	"github.com/kori-finance/kori/internal/actor"
	"github.com/kori-finance/kori/internal/audit"
	"github.com/kori-finance/kori/internal/clock"
	"github.com/kori-finance/kori/internal/event"
	"github.com/kori-finance/kori/internal/fault"
	"github.com/kori-finance/kori/internal/guard"
	"github.com/kori-finance/kori/internal/status"
)

// Verb is a lifecycle command name.
type Verb string

const (
	VerbSuspend  Verb = "SUSPEND"
	VerbActivate Verb = "ACTIVATE"
	VerbClose    Verb = "CLOSE"
)

// ErrUnknownVerb rejects a verb outside the table.
var ErrUnknownVerb = fault.Invalid("lifecycle_verb_unknown", nil)

// Service applies lifecycle verbs to actors.
type Service struct {
	agents     actor.AgentRepository
	merchants  actor.MerchantRepository
	clients    actor.ClientRepository
	admins     actor.AdminRepository
	terminals  actor.TerminalRepository
	dispatcher *event.Dispatcher
	events     event.Publisher
	trail      audit.Port
	clock      clock.Clock
	logger     *slog.Logger
}

// ServiceDeps wires a lifecycle Service.
type ServiceDeps struct {
	Agents     actor.AgentRepository
	Merchants  actor.MerchantRepository
	Clients    actor.ClientRepository
	Admins     actor.AdminRepository
	Terminals  actor.TerminalRepository
	Dispatcher *event.Dispatcher
	Events     event.Publisher
	Audit      audit.Port
	Clock      clock.Clock
	Logger     *slog.Logger
}

// NewService builds the lifecycle service.
func NewService(deps ServiceDeps) *Service {
	return &Service{
		agents:     deps.Agents,
		merchants:  deps.Merchants,
		clients:    deps.Clients,
		admins:     deps.Admins,
		terminals:  deps.Terminals,
		dispatcher: deps.Dispatcher,
		events:     deps.Events,
		trail:      deps.Audit,
		clock:      deps.Clock,
		logger:     deps.Logger,
	}
}

// Change is the outcome of a lifecycle command.
type Change struct {
	Kind   actor.Kind    `json:"kind"`
	Ref    string        `json:"ref"`
	Before status.Status `json:"before"`
	After  status.Status `json:"after"`
}

// ChangeAgentStatus applies a verb to an agent and cascades to its
// ledger account profiles.
func (s *Service) ChangeAgentStatus(ctx context.Context, caller guard.Caller, ref string, verb Verb, reason string) (Change, error) {
	if err := s.requireAdmin(ctx, caller); err != nil {
		return Change{}, err
	}
	agent, err := s.agents.FindByRef(ctx, ref)
	if err != nil {
		return Change{}, err
	}
	before := agent.Status
	if err := applyVerb(verb, agent.Suspend, agent.Activate, agent.Close); err != nil {
		return Change{}, err
	}
	save := func(ctx context.Context) error { return s.agents.Save(ctx, agent) }
	return s.commit(ctx, caller, actor.KindAgent, ref, before, agent.Status, reason, save)
}

// ChangeMerchantStatus applies a verb to a merchant and cascades to its
// profile and terminals.
func (s *Service) ChangeMerchantStatus(ctx context.Context, caller guard.Caller, ref string, verb Verb, reason string) (Change, error) {
	if err := s.requireAdmin(ctx, caller); err != nil {
		return Change{}, err
	}
	merchant, err := s.merchants.FindByRef(ctx, ref)
	if err != nil {
		return Change{}, err
	}
	before := merchant.Status
	if err := applyVerb(verb, merchant.Suspend, merchant.Activate, merchant.Close); err != nil {
		return Change{}, err
	}
	save := func(ctx context.Context) error { return s.merchants.Save(ctx, merchant) }
	return s.commit(ctx, caller, actor.KindMerchant, ref, before, merchant.Status, reason, save)
}

// ChangeClientStatus applies a verb to a client and cascades to its
// profile and cards.
func (s *Service) ChangeClientStatus(ctx context.Context, caller guard.Caller, ref string, verb Verb, reason string) (Change, error) {
	if err := s.requireAdmin(ctx, caller); err != nil {
		return Change{}, err
	}
	client, err := s.clients.FindByRef(ctx, ref)
	if err != nil {
		return Change{}, err
	}
	before := client.Status
	if err := applyVerb(verb, client.Suspend, client.Activate, client.Close); err != nil {
		return Change{}, err
	}
	save := func(ctx context.Context) error { return s.clients.Save(ctx, client) }
	return s.commit(ctx, caller, actor.KindClient, ref, before, client.Status, reason, save)
}

// ChangeTerminalStatus applies a verb to a single terminal. No cascade
// listens for terminals; the command stands alone.
func (s *Service) ChangeTerminalStatus(ctx context.Context, caller guard.Caller, ref string, verb Verb, reason string) (Change, error) {
	if err := s.requireAdmin(ctx, caller); err != nil {
		return Change{}, err
	}
	terminal, err := s.terminals.FindByRef(ctx, ref)
	if err != nil {
		return Change{}, err
	}
	before := terminal.Status
	if err := applyVerb(verb, terminal.Suspend, terminal.Activate, terminal.Close); err != nil {
		return Change{}, err
	}
	save := func(ctx context.Context) error { return s.terminals.Save(ctx, terminal) }
	return s.commit(ctx, caller, actor.KindTerminal, ref, before, terminal.Status, reason, save)
}

func applyVerb(verb Verb, suspend, activate, closeActor func() error) error {
	switch verb {
	case VerbSuspend:
		return suspend()
	case VerbActivate:
		return activate()
	case VerbClose:
		return closeActor()
	default:
		return ErrUnknownVerb
	}
}

// commit runs the cascades before persisting the actor: if a dependent
// aggregate cannot follow, the triggering change is not applied either.
func (s *Service) commit(ctx context.Context, caller guard.Caller, kind actor.Kind, ref string, before, after status.Status, reason string, save func(context.Context) error) (Change, error) {
	now := s.clock.Now()
	evt := event.StatusChanged{
		Kind:       kind,
		ActorRef:   ref,
		Before:     before,
		After:      after,
		Reason:     reason,
		OccurredAt: now,
	}
	if err := s.dispatcher.Dispatch(ctx, evt); err != nil {
		return Change{}, err
	}
	if err := save(ctx); err != nil {
		return Change{}, err
	}

	if !evt.Unchanged() {
		if err := s.events.Publish(ctx, evt); err != nil {
			s.logger.Warn("event publish failed",
				slog.String("actor_ref", ref), slog.Any("error", err))
		}
	}
	s.trail.Publish(ctx, "lifecycle."+string(kind), caller.Type, caller.Ref, now, map[string]string{
		"ref":    ref,
		"before": string(before),
		"after":  string(after),
		"reason": reason,
	})
	return Change{Kind: kind, Ref: ref, Before: before, After: after}, nil
}

func (s *Service) requireAdmin(ctx context.Context, caller guard.Caller) error {
	if err := guard.RequireActorType(caller.Type, guard.ActorAdmin); err != nil {
		return err
	}
	admin, err := s.admins.FindByRef(ctx, caller.Ref)
	if err != nil {
		return err
	}
	if admin.Status != status.Active {
		return fault.Denied("actor_inactive", map[string]string{"status": string(admin.Status)})
	}
	return nil
}
