package payout

import (
	"context"
	"errors"
	"log/slog"
	"time"

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

// ErrInsufficientFunds rejects a payout above the wallet balance.
var ErrInsufficientFunds = fault.Conflicting("insufficient_funds", nil)

// Journal is the slice of the ledger the payout service needs.
type Journal interface {
	ledger.AppendPort
	ledger.QueryPort
}

// Service drives the payout and client-refund lifecycles.
type Service struct {
	agents   actor.AgentRepository
	clients  actor.ClientRepository
	admins   actor.AdminRepository
	profiles account.Port
	journal  Journal
	locks    ledger.LockPort
	executor *idempotency.Executor
	config   pricing.PlatformConfig
	payouts  Repository
	refunds  RefundRepository
	events   event.Publisher
	trail    audit.Port
	clock    clock.Clock
	logger   *slog.Logger
}

// ServiceDeps wires a Service.
type ServiceDeps struct {
	Agents   actor.AgentRepository
	Clients  actor.ClientRepository
	Admins   actor.AdminRepository
	Profiles account.Port
	Journal  Journal
	Locks    ledger.LockPort
	Executor *idempotency.Executor
	Config   pricing.PlatformConfig
	Payouts  Repository
	Refunds  RefundRepository
	Events   event.Publisher
	Audit    audit.Port
	Clock    clock.Clock
	Logger   *slog.Logger
}

// NewService builds the payout service.
func NewService(deps ServiceDeps) *Service {
	return &Service{
		agents:   deps.Agents,
		clients:  deps.Clients,
		admins:   deps.Admins,
		profiles: deps.Profiles,
		journal:  deps.Journal,
		locks:    deps.Locks,
		executor: deps.Executor,
		config:   deps.Config,
		payouts:  deps.Payouts,
		refunds:  deps.Refunds,
		events:   deps.Events,
		trail:    deps.Audit,
		clock:    deps.Clock,
		logger:   deps.Logger,
	}
}

// RequestPayoutInput asks the platform to pay out the calling agent's
// wallet balance.
type RequestPayoutInput struct {
	Caller         guard.Caller
	Amount         money.Money
	IdempotencyKey string
	RequestHash    string
}

// PayoutResult is the stored idempotent outcome of a payout command.
type PayoutResult struct {
	PayoutID      uuid.UUID   `json:"payout_id"`
	TransactionID uuid.UUID   `json:"transaction_id"`
	Status        Status      `json:"status"`
	Amount        money.Money `json:"amount"`
}

// RefundResult is the stored idempotent outcome of a refund command.
type RefundResult struct {
	RefundID      uuid.UUID   `json:"refund_id"`
	TransactionID uuid.UUID   `json:"transaction_id"`
	Status        Status      `json:"status"`
	Amount        money.Money `json:"amount"`
}

// RequestPayout moves the requested amount from the agent's wallet into
// platform clearing and opens a REQUESTED payout. At most one payout
// per agent may be open; the admission query runs under the wallet
// lock so concurrent requests serialize against it.
func (s *Service) RequestPayout(ctx context.Context, in RequestPayoutInput) (PayoutResult, error) {
	if err := guard.RequireActorType(in.Caller.Type, guard.ActorAgent); err != nil {
		return PayoutResult{}, err
	}

	return idempotency.Execute(ctx, s.executor, in.IdempotencyKey, in.RequestHash,
		func(ctx context.Context) (PayoutResult, error) {
			agent, err := s.agents.FindByRef(ctx, in.Caller.Ref)
			if err != nil {
				return PayoutResult{}, err
			}
			wallet := ledger.AgentWalletAccount(agent.Ref)
			profile, err := s.profiles.FindByAccount(ctx, wallet)
			if err != nil {
				return PayoutResult{}, err
			}
			if err := guard.RequireActive(agent.Status, profile); err != nil {
				return PayoutResult{}, err
			}

			bounds, err := s.config.AmountBounds(ctx, ledger.TxAgentPayout)
			if err != nil {
				return PayoutResult{}, err
			}
			if err := bounds.Check(in.Amount); err != nil {
				return PayoutResult{}, err
			}

			clearing := ledger.PlatformClearingAccount()
			unlock, err := ledger.LockAll(ctx, s.locks, wallet, clearing)
			if err != nil {
				return PayoutResult{}, err
			}
			defer unlock()

			open, err := s.payouts.ExistsRequestedForAgent(ctx, agent.Ref)
			if err != nil {
				return PayoutResult{}, err
			}
			if open {
				return PayoutResult{}, ErrPayoutPending
			}

			balance, err := s.journal.BalanceOf(ctx, wallet)
			if err != nil {
				return PayoutResult{}, err
			}
			if balance.IsLessThan(in.Amount) {
				return PayoutResult{}, ErrInsufficientFunds
			}

			now := s.clock.Now()
			tx := ledger.NewTransaction(ledger.TxAgentPayout, in.Amount, now)
			entries := []ledger.Entry{
				ledger.NewDebit(tx.ID, wallet, in.Amount),
				ledger.NewCredit(tx.ID, clearing, in.Amount),
			}
			if err := s.journal.Append(ctx, tx, entries); err != nil {
				return PayoutResult{}, err
			}

			payout := NewPayout(agent.Ref, in.Amount, tx.ID, now)
			if err := s.payouts.Save(ctx, payout); err != nil {
				return PayoutResult{}, err
			}

			s.afterCommit(ctx, tx, "payout.request", in.Caller, map[string]string{
				"payout_id": payout.ID.String(),
				"amount":    in.Amount.String(),
			})
			return PayoutResult{PayoutID: payout.ID, TransactionID: tx.ID, Status: payout.Status, Amount: payout.Amount}, nil
		})
}

// CompletePayoutInput settles an open payout.
type CompletePayoutInput struct {
	Caller         guard.Caller
	PayoutID       uuid.UUID
	IdempotencyKey string
	RequestHash    string
}

// CompletePayout settles an open payout: the clearing balance moves to
// the platform bank account and the lifecycle terminates. The
// settlement transaction id is persisted on the payout before the
// posting is appended, so a retry after a partial failure settles the
// same transaction at most once.
func (s *Service) CompletePayout(ctx context.Context, in CompletePayoutInput) (PayoutResult, error) {
	if err := s.requireAdmin(ctx, in.Caller); err != nil {
		return PayoutResult{}, err
	}

	return idempotency.Execute(ctx, s.executor, in.IdempotencyKey, in.RequestHash,
		func(ctx context.Context) (PayoutResult, error) {
			payout, err := s.payouts.FindByID(ctx, in.PayoutID)
			if err != nil {
				return PayoutResult{}, err
			}

			clearing := ledger.PlatformClearingAccount()
			bank := ledger.PlatformBankAccount()
			unlock, err := ledger.LockAll(ctx, s.locks, clearing, bank)
			if err != nil {
				return PayoutResult{}, err
			}
			defer unlock()

			now := s.clock.Now()
			if payout.Status.Terminal() {
				return PayoutResult{}, ErrPayoutSettled
			}

			if payout.SettlementTransactionID == nil {
				id := uuid.New()
				payout.SettlementTransactionID = &id
				if err := s.payouts.Save(ctx, payout); err != nil {
					return PayoutResult{}, err
				}
			}
			settlementID := *payout.SettlementTransactionID

			tx, err := s.journal.FindTransaction(ctx, settlementID)
			if errors.Is(err, ledger.ErrTransactionNotFound) {
				tx = ledger.Transaction{ID: settlementID, Type: ledger.TxAgentPayout, Amount: payout.Amount, CreatedAt: now}
				entries := []ledger.Entry{
					ledger.NewDebit(tx.ID, clearing, payout.Amount),
					ledger.NewCredit(tx.ID, bank, payout.Amount),
				}
				if err := s.journal.Append(ctx, tx, entries); err != nil {
					return PayoutResult{}, err
				}
			} else if err != nil {
				return PayoutResult{}, err
			}

			if err := payout.Complete(now); err != nil {
				return PayoutResult{}, err
			}
			if err := s.payouts.Save(ctx, payout); err != nil {
				return PayoutResult{}, err
			}

			s.afterCommit(ctx, tx, "payout.complete", in.Caller, map[string]string{
				"payout_id": payout.ID.String(),
			})
			return PayoutResult{PayoutID: payout.ID, TransactionID: tx.ID, Status: payout.Status, Amount: payout.Amount}, nil
		})
}

// FailPayoutInput aborts an open payout.
type FailPayoutInput struct {
	Caller         guard.Caller
	PayoutID       uuid.UUID
	Reason         string
	IdempotencyKey string
	RequestHash    string
}

// FailPayout aborts an open payout: the original posting is reversed so
// the wallet balance comes back, and the reason is recorded. A retry
// after a partial failure reuses the reversal already on the journal.
func (s *Service) FailPayout(ctx context.Context, in FailPayoutInput) (PayoutResult, error) {
	if err := s.requireAdmin(ctx, in.Caller); err != nil {
		return PayoutResult{}, err
	}

	return idempotency.Execute(ctx, s.executor, in.IdempotencyKey, in.RequestHash,
		func(ctx context.Context) (PayoutResult, error) {
			payout, err := s.payouts.FindByID(ctx, in.PayoutID)
			if err != nil {
				return PayoutResult{}, err
			}

			wallet := ledger.AgentWalletAccount(payout.AgentRef)
			clearing := ledger.PlatformClearingAccount()
			unlock, err := ledger.LockAll(ctx, s.locks, wallet, clearing)
			if err != nil {
				return PayoutResult{}, err
			}
			defer unlock()

			now := s.clock.Now()
			if err := payout.Fail(now, in.Reason); err != nil {
				return PayoutResult{}, err
			}

			original, err := s.journal.FindTransaction(ctx, payout.TransactionID)
			if err != nil {
				return PayoutResult{}, err
			}
			reversal, err := s.reverseOnce(ctx, original, now)
			if err != nil {
				return PayoutResult{}, err
			}
			if err := s.payouts.Save(ctx, payout); err != nil {
				return PayoutResult{}, err
			}

			s.afterCommit(ctx, reversal, "payout.fail", in.Caller, map[string]string{
				"payout_id": payout.ID.String(),
				"reason":    in.Reason,
			})
			return PayoutResult{PayoutID: payout.ID, TransactionID: reversal.ID, Status: payout.Status, Amount: payout.Amount}, nil
		})
}

// RequestRefundInput opens a refund paying a client back from the
// platform refund clearing account.
type RequestRefundInput struct {
	Caller         guard.Caller
	ClientRef      string
	Amount         money.Money
	IdempotencyKey string
	RequestHash    string
}

// RequestClientRefund credits the client immediately and opens a
// REQUESTED refund for the back office to settle or abort. The
// one-open-refund-per-client query runs under the client account lock.
func (s *Service) RequestClientRefund(ctx context.Context, in RequestRefundInput) (RefundResult, error) {
	if err := s.requireAdmin(ctx, in.Caller); err != nil {
		return RefundResult{}, err
	}

	return idempotency.Execute(ctx, s.executor, in.IdempotencyKey, in.RequestHash,
		func(ctx context.Context) (RefundResult, error) {
			client, err := s.clients.FindByRef(ctx, in.ClientRef)
			if err != nil {
				return RefundResult{}, err
			}
			clientAccount := ledger.ClientAccount(client.Ref)
			profile, err := s.profiles.FindByAccount(ctx, clientAccount)
			if err != nil {
				return RefundResult{}, err
			}
			if err := guard.RequireActive(client.Status, profile); err != nil {
				return RefundResult{}, err
			}

			bounds, err := s.config.AmountBounds(ctx, ledger.TxClientRefund)
			if err != nil {
				return RefundResult{}, err
			}
			if err := bounds.Check(in.Amount); err != nil {
				return RefundResult{}, err
			}

			refundClearing := ledger.PlatformClientRefundClearingAccount()
			unlock, err := ledger.LockAll(ctx, s.locks, clientAccount, refundClearing)
			if err != nil {
				return RefundResult{}, err
			}
			defer unlock()

			open, err := s.refunds.ExistsRequestedForClient(ctx, client.Ref)
			if err != nil {
				return RefundResult{}, err
			}
			if open {
				return RefundResult{}, ErrRefundPending
			}

			now := s.clock.Now()
			tx := ledger.NewTransaction(ledger.TxClientRefund, in.Amount, now)
			entries := []ledger.Entry{
				ledger.NewDebit(tx.ID, refundClearing, in.Amount),
				ledger.NewCredit(tx.ID, clientAccount, in.Amount),
			}
			if err := s.journal.Append(ctx, tx, entries); err != nil {
				return RefundResult{}, err
			}

			refund := NewClientRefund(client.Ref, in.Amount, tx.ID, now)
			if err := s.refunds.Save(ctx, refund); err != nil {
				return RefundResult{}, err
			}

			s.afterCommit(ctx, tx, "refund.request", in.Caller, map[string]string{
				"refund_id":  refund.ID.String(),
				"client_ref": client.Ref,
				"amount":     in.Amount.String(),
			})
			return RefundResult{RefundID: refund.ID, TransactionID: tx.ID, Status: refund.Status, Amount: refund.Amount}, nil
		})
}

// CompleteRefundInput confirms an open refund.
type CompleteRefundInput struct {
	Caller         guard.Caller
	RefundID       uuid.UUID
	IdempotencyKey string
	RequestHash    string
}

// CompleteClientRefund confirms the refund reached the client.
func (s *Service) CompleteClientRefund(ctx context.Context, in CompleteRefundInput) (RefundResult, error) {
	if err := s.requireAdmin(ctx, in.Caller); err != nil {
		return RefundResult{}, err
	}

	return idempotency.Execute(ctx, s.executor, in.IdempotencyKey, in.RequestHash,
		func(ctx context.Context) (RefundResult, error) {
			refund, err := s.refunds.FindByID(ctx, in.RefundID)
			if err != nil {
				return RefundResult{}, err
			}
			now := s.clock.Now()
			if err := refund.Complete(now); err != nil {
				return RefundResult{}, err
			}
			if err := s.refunds.Save(ctx, refund); err != nil {
				return RefundResult{}, err
			}

			s.trail.Publish(ctx, "refund.complete", in.Caller.Type, in.Caller.Ref, now, map[string]string{
				"refund_id": refund.ID.String(),
			})
			return RefundResult{RefundID: refund.ID, TransactionID: refund.TransactionID, Status: refund.Status, Amount: refund.Amount}, nil
		})
}

// FailRefundInput aborts an open refund.
type FailRefundInput struct {
	Caller         guard.Caller
	RefundID       uuid.UUID
	Reason         string
	IdempotencyKey string
	RequestHash    string
}

// FailClientRefund aborts an open refund, reversing the credit. A retry
// after a partial failure reuses the reversal already on the journal.
func (s *Service) FailClientRefund(ctx context.Context, in FailRefundInput) (RefundResult, error) {
	if err := s.requireAdmin(ctx, in.Caller); err != nil {
		return RefundResult{}, err
	}

	return idempotency.Execute(ctx, s.executor, in.IdempotencyKey, in.RequestHash,
		func(ctx context.Context) (RefundResult, error) {
			refund, err := s.refunds.FindByID(ctx, in.RefundID)
			if err != nil {
				return RefundResult{}, err
			}

			clientAccount := ledger.ClientAccount(refund.ClientRef)
			refundClearing := ledger.PlatformClientRefundClearingAccount()
			unlock, err := ledger.LockAll(ctx, s.locks, clientAccount, refundClearing)
			if err != nil {
				return RefundResult{}, err
			}
			defer unlock()

			now := s.clock.Now()
			if err := refund.Fail(now, in.Reason); err != nil {
				return RefundResult{}, err
			}

			original, err := s.journal.FindTransaction(ctx, refund.TransactionID)
			if err != nil {
				return RefundResult{}, err
			}
			reversal, err := s.reverseOnce(ctx, original, now)
			if err != nil {
				return RefundResult{}, err
			}
			if err := s.refunds.Save(ctx, refund); err != nil {
				return RefundResult{}, err
			}

			s.afterCommit(ctx, reversal, "refund.fail", in.Caller, map[string]string{
				"refund_id": refund.ID.String(),
				"reason":    in.Reason,
			})
			return RefundResult{RefundID: refund.ID, TransactionID: reversal.ID, Status: refund.Status, Amount: refund.Amount}, nil
		})
}

// reverseOnce posts the inverse of original, or returns the reversal a
// previous attempt already committed.
func (s *Service) reverseOnce(ctx context.Context, original ledger.Transaction, now time.Time) (ledger.Transaction, error) {
	if existing, err := s.journal.FindReversalOf(ctx, original.ID); err != nil {
		return ledger.Transaction{}, err
	} else if existing != nil {
		return *existing, nil
	}

	originalEntries, err := s.journal.EntriesForTransaction(ctx, original.ID)
	if err != nil {
		return ledger.Transaction{}, err
	}
	reversal := ledger.NewReversal(original, now)
	if err := s.journal.Append(ctx, reversal, ledger.Invert(originalEntries, reversal.ID)); err != nil {
		return ledger.Transaction{}, err
	}
	return reversal, nil
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

func (s *Service) afterCommit(ctx context.Context, tx ledger.Transaction, action string, caller guard.Caller, metadata map[string]string) {
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
	s.trail.Publish(ctx, action, caller.Type, caller.Ref, tx.CreatedAt, metadata)
}
