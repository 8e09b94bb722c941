// Package payments holds the money-moving commands between clients,
// merchants and agents. Every command runs the same spine: actor and
// activity guards, an idempotency claim, account locks, balance and
// pricing checks, then one balanced posting.
package payments

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/kori-finance/kori/internal/account"
	"github.com/kori-finance/kori/internal/actor"
	"github.com/kori-finance/kori/internal/audit"
	"github.com/kori-finance/kori/internal/card"
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

// ErrInsufficientFunds rejects a debit above the account balance.
var ErrInsufficientFunds = fault.Conflicting("insufficient_funds", nil)

// ErrReversalOfReversal rejects reversing a reversal.
var ErrReversalOfReversal = fault.Invalid("cannot_reverse_reversal", nil)

// ErrSettlementManaged rejects reversing a transaction owned by a
// payout or refund lifecycle. Those are unwound only through their own
// fail commands, which keep the aggregate and the journal in step.
var ErrSettlementManaged = fault.Conflicting("transaction_settlement_managed", nil)

// ErrCardNotUsable rejects a payment with a card that is not ACTIVE.
var ErrCardNotUsable = fault.Denied("card_not_usable", nil)

// ErrPinMismatch rejects a payment with a wrong PIN.
var ErrPinMismatch = fault.Denied("pin_mismatch", nil)

// Journal is the slice of the ledger the payments service needs.
type Journal interface {
	ledger.AppendPort
	ledger.QueryPort
}

// Service executes the client/merchant/agent money movements.
type Service struct {
	agents     actor.AgentRepository
	merchants  actor.MerchantRepository
	clients    actor.ClientRepository
	admins     actor.AdminRepository
	terminals  actor.TerminalRepository
	cards      card.Repository
	pins       card.PinHasher
	profiles   account.Port
	journal    Journal
	locks      ledger.LockPort
	executor   *idempotency.Executor
	fees       pricing.FeePolicy
	commission pricing.CommissionPolicy
	config     pricing.PlatformConfig
	events     event.Publisher
	trail      audit.Port
	clock      clock.Clock
	logger     *slog.Logger
}

// ServiceDeps wires a payments Service.
type ServiceDeps struct {
	Agents     actor.AgentRepository
	Merchants  actor.MerchantRepository
	Clients    actor.ClientRepository
	Admins     actor.AdminRepository
	Terminals  actor.TerminalRepository
	Cards      card.Repository
	Pins       card.PinHasher
	Profiles   account.Port
	Journal    Journal
	Locks      ledger.LockPort
	Executor   *idempotency.Executor
	Fees       pricing.FeePolicy
	Commission pricing.CommissionPolicy
	Config     pricing.PlatformConfig
	Events     event.Publisher
	Audit      audit.Port
	Clock      clock.Clock
	Logger     *slog.Logger
}

// NewService builds the payments service.
func NewService(deps ServiceDeps) *Service {
	return &Service{
		agents:     deps.Agents,
		merchants:  deps.Merchants,
		clients:    deps.Clients,
		admins:     deps.Admins,
		terminals:  deps.Terminals,
		cards:      deps.Cards,
		pins:       deps.Pins,
		profiles:   deps.Profiles,
		journal:    deps.Journal,
		locks:      deps.Locks,
		executor:   deps.Executor,
		fees:       deps.Fees,
		commission: deps.Commission,
		config:     deps.Config,
		events:     deps.Events,
		trail:      deps.Audit,
		clock:      deps.Clock,
		logger:     deps.Logger,
	}
}

// Result is the stored idempotent outcome of a payment command.
type Result struct {
	TransactionID uuid.UUID   `json:"transaction_id"`
	Type          string      `json:"type"`
	Amount        money.Money `json:"amount"`
	Fee           money.Money `json:"fee"`
	Commission    money.Money `json:"commission"`
}

// CashInInput deposits cash a client handed to an agent.
type CashInInput struct {
	Caller         guard.Caller
	ClientRef      string
	Amount         money.Money
	IdempotencyKey string
	RequestHash    string
}

// CashInByAgent credits the client with the cash an agent collected,
// minus the fee. The agent now holds that cash for the platform, so
// their cash-clearing account is debited, bounded by the global cash
// limit. The agent earns the commission; the platform keeps the rest of
// the fee.
func (s *Service) CashInByAgent(ctx context.Context, in CashInInput) (Result, error) {
	if err := guard.RequireActorType(in.Caller.Type, guard.ActorAgent); err != nil {
		return Result{}, err
	}

	return idempotency.Execute(ctx, s.executor, in.IdempotencyKey, in.RequestHash,
		func(ctx context.Context) (Result, error) {
			agent, err := s.activeAgent(ctx, in.Caller.Ref)
			if err != nil {
				return Result{}, err
			}
			client, err := s.activeClient(ctx, in.ClientRef)
			if err != nil {
				return Result{}, err
			}

			fee, commission, err := s.price(ctx, ledger.TxCashInByAgent, in.Amount)
			if err != nil {
				return Result{}, err
			}
			if err := requireFeeBelowAmount(fee, in.Amount); err != nil {
				return Result{}, err
			}
			revenue, err := guard.PlatformRevenue(fee, commission)
			if err != nil {
				return Result{}, err
			}

			clientAccount := ledger.ClientAccount(client.Ref)
			wallet := ledger.AgentWalletAccount(agent.Ref)
			clearing := ledger.AgentCashClearingAccount(agent.Ref)
			revenueAccount := ledger.PlatformFeeRevenueAccount()

			unlock, err := ledger.LockAll(ctx, s.locks, clientAccount, wallet, clearing, revenueAccount)
			if err != nil {
				return Result{}, err
			}
			defer unlock()

			// The cash-limit projection must run under the clearing lock.
			clearingBalance, err := s.journal.BalanceOf(ctx, clearing)
			if err != nil {
				return Result{}, err
			}
			limit, err := s.config.AgentCashLimit(ctx)
			if err != nil {
				return Result{}, err
			}
			if err := guard.CheckCashLimit(clearingBalance, in.Amount.Neg(), limit); err != nil {
				return Result{}, err
			}

			now := s.clock.Now()
			tx := ledger.NewTransaction(ledger.TxCashInByAgent, in.Amount, now)
			entries := []ledger.Entry{
				ledger.NewCredit(tx.ID, clientAccount, in.Amount.Minus(fee)),
				ledger.NewDebit(tx.ID, clearing, in.Amount),
				ledger.NewCredit(tx.ID, wallet, commission),
				ledger.NewCredit(tx.ID, revenueAccount, revenue),
			}
			if err := s.journal.Append(ctx, tx, entries); err != nil {
				return Result{}, err
			}

			s.afterCommit(ctx, tx, "payments.cash_in", in.Caller, map[string]string{
				"client_ref": client.Ref,
				"amount":     in.Amount.String(),
				"fee":        fee.String(),
			})
			return Result{TransactionID: tx.ID, Type: string(tx.Type), Amount: in.Amount, Fee: fee, Commission: commission}, nil
		})
}

// PayByCardInput is a card payment captured at a merchant terminal.
type PayByCardInput struct {
	Caller         guard.Caller
	CardUID        string
	Pin            string
	Amount         money.Money
	IdempotencyKey string
	RequestHash    string
}

// PayByCard debits the client amount plus fee and credits the merchant
// exactly the amount. No agent takes part in a card payment, so the
// platform keeps the full fee. A wrong PIN counts toward the auto-block
// threshold before the command fails.
func (s *Service) PayByCard(ctx context.Context, in PayByCardInput) (Result, error) {
	if err := guard.RequireActorType(in.Caller.Type, guard.ActorTerminal); err != nil {
		return Result{}, err
	}

	return idempotency.Execute(ctx, s.executor, in.IdempotencyKey, in.RequestHash,
		func(ctx context.Context) (Result, error) {
			terminal, err := s.terminals.FindByRef(ctx, in.Caller.Ref)
			if err != nil {
				return Result{}, err
			}
			if terminal.Status != status.Active {
				return Result{}, fault.Denied("terminal_inactive", map[string]string{
					"status": string(terminal.Status),
				})
			}
			merchant, err := s.activeMerchant(ctx, terminal.MerchantRef)
			if err != nil {
				return Result{}, err
			}

			paymentCard, err := s.cards.FindByUID(ctx, in.CardUID)
			if err != nil {
				return Result{}, err
			}
			if paymentCard.Status != card.StatusActive {
				return Result{}, ErrCardNotUsable
			}
			if err := s.verifyPin(ctx, &paymentCard, in.Pin); err != nil {
				return Result{}, err
			}

			client, err := s.activeClient(ctx, paymentCard.ClientRef)
			if err != nil {
				return Result{}, err
			}

			fee, _, err := s.price(ctx, ledger.TxPayByCard, in.Amount)
			if err != nil {
				return Result{}, err
			}

			clientAccount := ledger.ClientAccount(client.Ref)
			merchantAccount := ledger.MerchantAccount(merchant.Ref)
			revenueAccount := ledger.PlatformFeeRevenueAccount()

			unlock, err := ledger.LockAll(ctx, s.locks, clientAccount, merchantAccount, revenueAccount)
			if err != nil {
				return Result{}, err
			}
			defer unlock()

			charged := in.Amount.Plus(fee)
			balance, err := s.journal.BalanceOf(ctx, clientAccount)
			if err != nil {
				return Result{}, err
			}
			if balance.IsLessThan(charged) {
				return Result{}, ErrInsufficientFunds
			}

			now := s.clock.Now()
			tx := ledger.NewTransaction(ledger.TxPayByCard, in.Amount, now)
			entries := []ledger.Entry{
				ledger.NewDebit(tx.ID, clientAccount, charged),
				ledger.NewCredit(tx.ID, merchantAccount, in.Amount),
				ledger.NewCredit(tx.ID, revenueAccount, fee),
			}
			if err := s.journal.Append(ctx, tx, entries); err != nil {
				return Result{}, err
			}

			s.afterCommit(ctx, tx, "payments.pay_by_card", in.Caller, map[string]string{
				"merchant_ref": merchant.Ref,
				"card_id":      paymentCard.ID.String(),
				"amount":       in.Amount.String(),
				"fee":          fee.String(),
			})
			return Result{TransactionID: tx.ID, Type: string(tx.Type), Amount: in.Amount, Fee: fee, Commission: money.Zero()}, nil
		})
}

// MerchantWithdrawInput is a merchant cashing out at an agent.
type MerchantWithdrawInput struct {
	Caller         guard.Caller
	AgentRef       string
	Amount         money.Money
	IdempotencyKey string
	RequestHash    string
}

// MerchantWithdrawAtAgent debits the merchant and hands the agent the
// cash to pay out: the agent's cash-clearing account is credited with
// amount minus fee, reducing the cash they owe the platform, and their
// wallet earns the commission.
func (s *Service) MerchantWithdrawAtAgent(ctx context.Context, in MerchantWithdrawInput) (Result, error) {
	if err := guard.RequireActorType(in.Caller.Type, guard.ActorMerchant); err != nil {
		return Result{}, err
	}

	return idempotency.Execute(ctx, s.executor, in.IdempotencyKey, in.RequestHash,
		func(ctx context.Context) (Result, error) {
			merchant, err := s.activeMerchant(ctx, in.Caller.Ref)
			if err != nil {
				return Result{}, err
			}
			agent, err := s.activeAgent(ctx, in.AgentRef)
			if err != nil {
				return Result{}, err
			}

			fee, commission, err := s.price(ctx, ledger.TxMerchantWithdraw, in.Amount)
			if err != nil {
				return Result{}, err
			}
			if err := requireFeeBelowAmount(fee, in.Amount); err != nil {
				return Result{}, err
			}
			revenue, err := guard.PlatformRevenue(fee, commission)
			if err != nil {
				return Result{}, err
			}

			merchantAccount := ledger.MerchantAccount(merchant.Ref)
			wallet := ledger.AgentWalletAccount(agent.Ref)
			clearing := ledger.AgentCashClearingAccount(agent.Ref)
			revenueAccount := ledger.PlatformFeeRevenueAccount()

			unlock, err := ledger.LockAll(ctx, s.locks, merchantAccount, wallet, clearing, revenueAccount)
			if err != nil {
				return Result{}, err
			}
			defer unlock()

			balance, err := s.journal.BalanceOf(ctx, merchantAccount)
			if err != nil {
				return Result{}, err
			}
			if balance.IsLessThan(in.Amount) {
				return Result{}, ErrInsufficientFunds
			}

			clearingBalance, err := s.journal.BalanceOf(ctx, clearing)
			if err != nil {
				return Result{}, err
			}
			limit, err := s.config.AgentCashLimit(ctx)
			if err != nil {
				return Result{}, err
			}
			if err := guard.CheckCashLimit(clearingBalance, in.Amount.Minus(fee), limit); err != nil {
				return Result{}, err
			}

			now := s.clock.Now()
			tx := ledger.NewTransaction(ledger.TxMerchantWithdraw, in.Amount, now)
			entries := []ledger.Entry{
				ledger.NewDebit(tx.ID, merchantAccount, in.Amount),
				ledger.NewCredit(tx.ID, clearing, in.Amount.Minus(fee)),
				ledger.NewCredit(tx.ID, wallet, commission),
				ledger.NewCredit(tx.ID, revenueAccount, revenue),
			}
			if err := s.journal.Append(ctx, tx, entries); err != nil {
				return Result{}, err
			}

			s.afterCommit(ctx, tx, "payments.merchant_withdraw", in.Caller, map[string]string{
				"agent_ref": agent.Ref,
				"amount":    in.Amount.String(),
				"fee":       fee.String(),
			})
			return Result{TransactionID: tx.ID, Type: string(tx.Type), Amount: in.Amount, Fee: fee, Commission: commission}, nil
		})
}

// ReverseInput undoes a committed transaction.
type ReverseInput struct {
	Caller         guard.Caller
	TransactionID  uuid.UUID
	IdempotencyKey string
	RequestHash    string
}

// Reverse posts the exact inverse of the original entries. A
// transaction can be reversed at most once, a reversal itself never,
// and postings owned by a payout or refund lifecycle only through
// FailPayout and FailClientRefund.
func (s *Service) Reverse(ctx context.Context, in ReverseInput) (Result, error) {
	if err := guard.RequireActorType(in.Caller.Type, guard.ActorAdmin); err != nil {
		return Result{}, err
	}

	return idempotency.Execute(ctx, s.executor, in.IdempotencyKey, in.RequestHash,
		func(ctx context.Context) (Result, error) {
			admin, err := s.admins.FindByRef(ctx, in.Caller.Ref)
			if err != nil {
				return Result{}, err
			}
			if admin.Status != status.Active {
				return Result{}, fault.Denied("actor_inactive", map[string]string{
					"status": string(admin.Status),
				})
			}

			original, err := s.journal.FindTransaction(ctx, in.TransactionID)
			if err != nil {
				return Result{}, err
			}
			if original.Type == ledger.TxReversal {
				return Result{}, ErrReversalOfReversal
			}
			if original.Type == ledger.TxAgentPayout || original.Type == ledger.TxClientRefund {
				return Result{}, ErrSettlementManaged
			}
			if existing, err := s.journal.FindReversalOf(ctx, original.ID); err != nil {
				return Result{}, err
			} else if existing != nil {
				return Result{}, ledger.ErrAlreadyReversed
			}

			originalEntries, err := s.journal.EntriesForTransaction(ctx, original.ID)
			if err != nil {
				return Result{}, err
			}
			refs := make([]ledger.AccountRef, 0, len(originalEntries))
			for _, e := range originalEntries {
				refs = append(refs, e.Account)
			}
			unlock, err := ledger.LockAll(ctx, s.locks, refs...)
			if err != nil {
				return Result{}, err
			}
			defer unlock()

			now := s.clock.Now()
			reversal := ledger.NewReversal(original, now)
			if err := s.journal.Append(ctx, reversal, ledger.Invert(originalEntries, reversal.ID)); err != nil {
				return Result{}, err
			}

			s.afterCommit(ctx, reversal, "payments.reverse", in.Caller, map[string]string{
				"original_transaction_id": original.ID.String(),
			})
			return Result{TransactionID: reversal.ID, Type: string(reversal.Type), Amount: reversal.Amount}, nil
		})
}

// requireFeeBelowAmount applies to operations whose fee is carved out
// of the moved amount rather than charged on top.
func requireFeeBelowAmount(fee, amount money.Money) error {
	if !amount.IsGreaterThan(fee) {
		return fault.Invalid("fee_exceeds_amount", map[string]string{
			"fee":    fee.String(),
			"amount": amount.String(),
		})
	}
	return nil
}

func (s *Service) price(ctx context.Context, txType ledger.TransactionType, amount money.Money) (fee, commission money.Money, err error) {
	bounds, err := s.config.AmountBounds(ctx, txType)
	if err != nil {
		return money.Money{}, money.Money{}, err
	}
	if err := bounds.Check(amount); err != nil {
		return money.Money{}, money.Money{}, err
	}
	if fee, err = s.fees.FeeFor(ctx, txType, amount); err != nil {
		return money.Money{}, money.Money{}, err
	}
	if commission, err = s.commission.CommissionFor(ctx, txType, fee); err != nil {
		return money.Money{}, money.Money{}, err
	}
	return fee, commission, nil
}

func (s *Service) verifyPin(ctx context.Context, paymentCard *card.Card, pin string) error {
	if s.pins.Matches(pin, paymentCard.HashedPIN) {
		paymentCard.OnPinSuccess()
		return s.cards.Save(ctx, *paymentCard)
	}

	maxAttempts, err := s.config.MaxPinAttempts(ctx)
	if err != nil {
		return err
	}
	paymentCard.OnPinFailure(maxAttempts)
	if err := s.cards.Save(ctx, *paymentCard); err != nil {
		return err
	}
	return ErrPinMismatch
}

func (s *Service) activeAgent(ctx context.Context, ref string) (actor.Agent, error) {
	agent, err := s.agents.FindByRef(ctx, ref)
	if err != nil {
		return actor.Agent{}, err
	}
	profile, err := s.profiles.FindByAccount(ctx, ledger.AgentWalletAccount(agent.Ref))
	if err != nil {
		return actor.Agent{}, err
	}
	if err := guard.RequireActive(agent.Status, profile); err != nil {
		return actor.Agent{}, err
	}
	return agent, nil
}

func (s *Service) activeMerchant(ctx context.Context, ref string) (actor.Merchant, error) {
	merchant, err := s.merchants.FindByRef(ctx, ref)
	if err != nil {
		return actor.Merchant{}, err
	}
	profile, err := s.profiles.FindByAccount(ctx, ledger.MerchantAccount(merchant.Ref))
	if err != nil {
		return actor.Merchant{}, err
	}
	if err := guard.RequireActive(merchant.Status, profile); err != nil {
		return actor.Merchant{}, err
	}
	return merchant, nil
}

func (s *Service) activeClient(ctx context.Context, ref string) (actor.Client, error) {
	client, err := s.clients.FindByRef(ctx, ref)
	if err != nil {
		return actor.Client{}, err
	}
	profile, err := s.profiles.FindByAccount(ctx, ledger.ClientAccount(client.Ref))
	if err != nil {
		return actor.Client{}, err
	}
	if err := guard.RequireActive(client.Status, profile); err != nil {
		return actor.Client{}, err
	}
	return client, nil
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
