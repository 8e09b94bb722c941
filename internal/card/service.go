package card

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/google/uuid"

	"github.com/kori-finance/kori/internal/account"
	"github.com/kori-finance/kori/internal/actor"
	"github.com/kori-finance/kori/internal/audit"
	"github.com/kori-finance/kori/internal/clock"
	"github.com/kori-finance/kori/internal/event"
	"github.com/kori-finance/kori/internal/fault"
	"github.com/kori-finance/kori/internal/guard"
	"github.com/kori-finance/kori/internal/idempotency"
	"github.com/kori-finance/kori/internal/ledger"
	"github.com/kori-finance/kori/internal/money"
	"github.com/kori-finance/kori/internal/pricing"
	"github.com/kori-finance/kori/internal/status"
)

// ErrCardUIDTaken rejects enrolling a UID that is already on file.
var ErrCardUIDTaken = fault.Conflicting("card_uid_taken", nil)

// ErrInsufficientFunds rejects enrollment when the client cannot cover
// the fee.
var ErrInsufficientFunds = fault.Conflicting("insufficient_funds", nil)

// ErrPinMismatch reports a failed PIN verification.
var ErrPinMismatch = fault.Denied("pin_mismatch", nil)

// Journal is the slice of the ledger card enrollment needs.
type Journal interface {
	ledger.AppendPort
	ledger.QueryPort
}

// Service drives card enrollment and lifecycle commands.
type Service struct {
	agents     actor.AgentRepository
	clients    actor.ClientRepository
	admins     actor.AdminRepository
	cards      Repository
	pins       PinHasher
	profiles   account.Port
	journal    Journal
	locks      ledger.LockPort
	executor   *idempotency.Executor
	commission pricing.CommissionPolicy
	config     pricing.PlatformConfig
	events     event.Publisher
	trail      audit.Port
	clock      clock.Clock
	logger     *slog.Logger
}

// ServiceDeps wires a card Service.
type ServiceDeps struct {
	Agents     actor.AgentRepository
	Clients    actor.ClientRepository
	Admins     actor.AdminRepository
	Cards      Repository
	Pins       PinHasher
	Profiles   account.Port
	Journal    Journal
	Locks      ledger.LockPort
	Executor   *idempotency.Executor
	Commission pricing.CommissionPolicy
	Config     pricing.PlatformConfig
	Events     event.Publisher
	Audit      audit.Port
	Clock      clock.Clock
	Logger     *slog.Logger
}

// NewService builds the card service.
func NewService(deps ServiceDeps) *Service {
	return &Service{
		agents:     deps.Agents,
		clients:    deps.Clients,
		admins:     deps.Admins,
		cards:      deps.Cards,
		pins:       deps.Pins,
		profiles:   deps.Profiles,
		journal:    deps.Journal,
		locks:      deps.Locks,
		executor:   deps.Executor,
		commission: deps.Commission,
		config:     deps.Config,
		events:     deps.Events,
		trail:      deps.Audit,
		clock:      deps.Clock,
		logger:     deps.Logger,
	}
}

// EnrollInput issues a card to a client at an agent.
type EnrollInput struct {
	Caller         guard.Caller
	ClientRef      string
	CardUID        string
	Pin            string
	IdempotencyKey string
	RequestHash    string
}

// EnrollResult is the stored idempotent outcome of an enrollment.
type EnrollResult struct {
	CardID        uuid.UUID   `json:"card_id"`
	TransactionID uuid.UUID   `json:"transaction_id"`
	Fee           money.Money `json:"fee"`
}

// EnrollCard issues a card and charges the client the enrollment fee.
// The enrolling agent earns the commission carved from the fee.
func (s *Service) EnrollCard(ctx context.Context, in EnrollInput) (EnrollResult, error) {
	if err := guard.RequireActorType(in.Caller.Type, guard.ActorAgent); err != nil {
		return EnrollResult{}, err
	}

	return idempotency.Execute(ctx, s.executor, in.IdempotencyKey, in.RequestHash,
		func(ctx context.Context) (EnrollResult, error) {
			agent, err := s.agents.FindByRef(ctx, in.Caller.Ref)
			if err != nil {
				return EnrollResult{}, err
			}
			agentProfile, err := s.profiles.FindByAccount(ctx, ledger.AgentWalletAccount(agent.Ref))
			if err != nil {
				return EnrollResult{}, err
			}
			if err := guard.RequireActive(agent.Status, agentProfile); err != nil {
				return EnrollResult{}, err
			}

			client, err := s.clients.FindByRef(ctx, in.ClientRef)
			if err != nil {
				return EnrollResult{}, err
			}
			clientAccount := ledger.ClientAccount(client.Ref)
			clientProfile, err := s.profiles.FindByAccount(ctx, clientAccount)
			if err != nil {
				return EnrollResult{}, err
			}
			if err := guard.RequireActive(client.Status, clientProfile); err != nil {
				return EnrollResult{}, err
			}

			if _, err := s.cards.FindByUID(ctx, in.CardUID); err == nil {
				return EnrollResult{}, ErrCardUIDTaken
			} else if !errors.Is(err, ErrCardNotFound) {
				return EnrollResult{}, err
			}

			fee, err := s.config.CardEnrollmentFee(ctx)
			if err != nil {
				return EnrollResult{}, err
			}
			commission, err := s.commission.CommissionFor(ctx, ledger.TxEnrollCard, fee)
			if err != nil {
				return EnrollResult{}, err
			}
			revenue, err := guard.PlatformRevenue(fee, commission)
			if err != nil {
				return EnrollResult{}, err
			}

			pinHash, err := s.pins.Hash(in.Pin)
			if err != nil {
				return EnrollResult{}, err
			}

			wallet := ledger.AgentWalletAccount(agent.Ref)
			revenueAccount := ledger.PlatformFeeRevenueAccount()
			unlock, err := ledger.LockAll(ctx, s.locks, clientAccount, wallet, revenueAccount)
			if err != nil {
				return EnrollResult{}, err
			}
			defer unlock()

			balance, err := s.journal.BalanceOf(ctx, clientAccount)
			if err != nil {
				return EnrollResult{}, err
			}
			if balance.IsLessThan(fee) {
				return EnrollResult{}, ErrInsufficientFunds
			}

			now := s.clock.Now()
			tx := ledger.NewTransaction(ledger.TxEnrollCard, fee, now)
			entries := []ledger.Entry{
				ledger.NewDebit(tx.ID, clientAccount, fee),
				ledger.NewCredit(tx.ID, wallet, commission),
				ledger.NewCredit(tx.ID, revenueAccount, revenue),
			}
			if err := s.journal.Append(ctx, tx, entries); err != nil {
				return EnrollResult{}, err
			}

			issued := New(client.Ref, in.CardUID, pinHash, now)
			if err := s.cards.Save(ctx, issued); err != nil {
				return EnrollResult{}, err
			}

			s.publishTransaction(ctx, tx)
			s.trail.Publish(ctx, "card.enroll", in.Caller.Type, in.Caller.Ref, now, map[string]string{
				"card_id":    issued.ID.String(),
				"client_ref": client.Ref,
				"fee":        fee.String(),
			})
			return EnrollResult{CardID: issued.ID, TransactionID: tx.ID, Fee: fee}, nil
		})
}

// VerifyPin checks a PIN, counting failures toward the auto-block
// threshold and resetting the counter on success.
func (s *Service) VerifyPin(ctx context.Context, caller guard.Caller, cardUID, pin string) error {
	if err := guard.RequireActorType(caller.Type, guard.ActorTerminal, guard.ActorAgent); err != nil {
		return err
	}

	c, err := s.cards.FindByUID(ctx, cardUID)
	if err != nil {
		return err
	}
	if c.Status != StatusActive {
		return fault.Denied("card_not_usable", map[string]string{
			"status": string(c.Status),
		})
	}

	if s.pins.Matches(pin, c.HashedPIN) {
		c.OnPinSuccess()
		return s.cards.Save(ctx, c)
	}

	maxAttempts, err := s.config.MaxPinAttempts(ctx)
	if err != nil {
		return err
	}
	c.OnPinFailure(maxAttempts)
	if err := s.cards.Save(ctx, c); err != nil {
		return err
	}
	s.trail.Publish(ctx, "card.pin_failure", caller.Type, caller.Ref, s.clock.Now(), map[string]string{
		"card_id":  c.ID.String(),
		"attempts": strconv.Itoa(c.FailedPinAttempts),
	})
	return ErrPinMismatch
}

// Block moves a card to the given non-active status.
func (s *Service) Block(ctx context.Context, caller guard.Caller, cardID uuid.UUID, to Status) (Card, error) {
	if err := s.requireAdmin(ctx, caller); err != nil {
		return Card{}, err
	}

	c, err := s.cards.FindByID(ctx, cardID)
	if err != nil {
		return Card{}, err
	}
	if err := c.TransitionTo(to); err != nil {
		return Card{}, err
	}
	if err := s.cards.Save(ctx, c); err != nil {
		return Card{}, err
	}

	s.trail.Publish(ctx, "card.transition", caller.Type, caller.Ref, s.clock.Now(), map[string]string{
		"card_id": c.ID.String(),
		"status":  string(c.Status),
	})
	return c, nil
}

// Unblock is the privileged BLOCKED to ACTIVE transition. It also
// clears the failed-PIN counter.
func (s *Service) Unblock(ctx context.Context, caller guard.Caller, cardID uuid.UUID) (Card, error) {
	if err := s.requireAdmin(ctx, caller); err != nil {
		return Card{}, err
	}

	c, err := s.cards.FindByID(ctx, cardID)
	if err != nil {
		return Card{}, err
	}
	if err := c.UnblockToActive(); err != nil {
		return Card{}, err
	}
	if err := s.cards.Save(ctx, c); err != nil {
		return Card{}, err
	}

	s.trail.Publish(ctx, "card.unblock", caller.Type, caller.Ref, s.clock.Now(), map[string]string{
		"card_id": c.ID.String(),
	})
	return c, nil
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

func (s *Service) publishTransaction(ctx context.Context, tx ledger.Transaction) {
	evt := event.TransactionCommitted{
		TransactionID: tx.ID.String(),
		Type:          string(tx.Type),
		Amount:        tx.Amount.String(),
		OccurredAt:    tx.CreatedAt,
	}
	if err := s.events.Publish(ctx, evt); err != nil {
		s.logger.Warn("event publish failed",
			slog.String("transaction_id", tx.ID.String()), slog.Any("error", err))
	}
}
