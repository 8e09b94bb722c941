package payments

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

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
	"github.com/kori-finance/kori/internal/logging"
	"github.com/kori-finance/kori/internal/money"
	"github.com/kori-finance/kori/internal/pricing"
	"github.com/kori-finance/kori/internal/status"
)

type harness struct {
	service *Service
	journal *ledger.InMemoryJournal
	cards   *card.MemoryRepository
	clients *actor.MemoryClients
	config  *pricing.Static
}

// flatRate prices every operation with a flat 1.00 fee, half of which
// is commission.
func flatRate() pricing.Rate {
	return pricing.Rate{
		Flat:            money.FromMinorUnits(100),
		Percent:         decimal.Zero,
		CommissionShare: decimal.RequireFromString("0.5"),
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	agents := actor.NewMemoryAgents()
	merchants := actor.NewMemoryMerchants()
	clients := actor.NewMemoryClients()
	admins := actor.NewMemoryAdmins()
	terminals := actor.NewMemoryTerminals()
	cards := card.NewMemoryRepository()
	profiles := account.NewMemoryPort()
	journal := ledger.NewInMemoryJournal()
	logger := logging.Discard()

	if err := agents.Save(ctx, actor.Agent{Ref: "agent-1", Status: status.Active, CreatedAt: now}); err != nil {
		t.Fatalf("seed agent: %v", err)
	}
	if err := merchants.Save(ctx, actor.Merchant{Ref: "merchant-1", Status: status.Active, CreatedAt: now}); err != nil {
		t.Fatalf("seed merchant: %v", err)
	}
	if err := clients.Save(ctx, actor.Client{Ref: "client-1", Status: status.Active, CreatedAt: now}); err != nil {
		t.Fatalf("seed client: %v", err)
	}
	if err := admins.Save(ctx, actor.Admin{Ref: "admin-1", Status: status.Active, CreatedAt: now}); err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	if err := terminals.Save(ctx, actor.Terminal{Ref: "term-1", MerchantRef: "merchant-1", Status: status.Active, CreatedAt: now}); err != nil {
		t.Fatalf("seed terminal: %v", err)
	}
	for _, ref := range []ledger.AccountRef{
		ledger.ClientAccount("client-1"),
		ledger.MerchantAccount("merchant-1"),
		ledger.AgentWalletAccount("agent-1"),
		ledger.AgentCashClearingAccount("agent-1"),
	} {
		if err := profiles.Save(ctx, account.NewProfile(ref, now)); err != nil {
			t.Fatalf("seed profile: %v", err)
		}
	}

	hasher := card.BcryptHasher{}
	pinHash, err := hasher.Hash("1234")
	if err != nil {
		t.Fatalf("hash pin: %v", err)
	}
	if err := cards.Save(ctx, card.New("client-1", "card-uid-1", pinHash, now)); err != nil {
		t.Fatalf("seed card: %v", err)
	}

	bounds := guard.AmountBounds{Min: money.FromMinorUnits(200), Max: money.FromMinorUnits(1_000_000)}
	config := &pricing.Static{
		Rates: map[ledger.TransactionType]pricing.Rate{
			ledger.TxCashInByAgent:    flatRate(),
			ledger.TxPayByCard:        flatRate(),
			ledger.TxMerchantWithdraw: flatRate(),
		},
		Bounds: map[ledger.TransactionType]guard.AmountBounds{
			ledger.TxCashInByAgent:    bounds,
			ledger.TxPayByCard:        bounds,
			ledger.TxMerchantWithdraw: bounds,
		},
		CashLimit:   money.FromMinorUnits(100_000),
		PinAttempts: 3,
	}

	service := NewService(ServiceDeps{
		Agents:     agents,
		Merchants:  merchants,
		Clients:    clients,
		Admins:     admins,
		Terminals:  terminals,
		Cards:      cards,
		Pins:       hasher,
		Profiles:   profiles,
		Journal:    journal,
		Locks:      journal,
		Executor:   idempotency.NewExecutor(idempotency.NewMemoryStore(), logger),
		Fees:       config,
		Commission: config,
		Config:     config,
		Events:     event.NewLoggerPublisher(logger),
		Audit:      audit.NewLogTrail(logger),
		Clock:      clock.System{},
		Logger:     logger,
	})
	return &harness{service: service, journal: journal, cards: cards, clients: clients, config: config}
}

func (h *harness) balance(t *testing.T, ref ledger.AccountRef) money.Money {
	t.Helper()
	b, err := h.journal.BalanceOf(context.Background(), ref)
	if err != nil {
		t.Fatalf("balance of %s: %v", ref, err)
	}
	return b
}

func agentCaller() guard.Caller    { return guard.Caller{Type: guard.ActorAgent, Ref: "agent-1"} }
func merchantCaller() guard.Caller { return guard.Caller{Type: guard.ActorMerchant, Ref: "merchant-1"} }
func terminalCaller() guard.Caller { return guard.Caller{Type: guard.ActorTerminal, Ref: "term-1"} }
func adminCaller() guard.Caller    { return guard.Caller{Type: guard.ActorAdmin, Ref: "admin-1"} }

func TestCashInSplitsAmountAcrossAccounts(t *testing.T) {
	h := newHarness(t)

	res, err := h.service.CashInByAgent(context.Background(), CashInInput{
		Caller:         agentCaller(),
		ClientRef:      "client-1",
		Amount:         money.FromMinorUnits(10_000), // 100.00
		IdempotencyKey: "ci-1",
		RequestHash:    "h1",
	})
	if err != nil {
		t.Fatalf("cash in: %v", err)
	}
	if want := money.FromMinorUnits(100); !res.Fee.Equals(want) {
		t.Fatalf("fee = %s, want %s", res.Fee, want)
	}

	// Client receives amount minus fee.
	if got, want := h.balance(t, ledger.ClientAccount("client-1")), money.FromMinorUnits(9_900); !got.Equals(want) {
		t.Fatalf("client = %s, want %s", got, want)
	}
	// The agent now owes the platform the collected cash.
	if got, want := h.balance(t, ledger.AgentCashClearingAccount("agent-1")), money.FromMinorUnits(-10_000); !got.Equals(want) {
		t.Fatalf("clearing = %s, want %s", got, want)
	}
	// Half the fee is the agent's commission, half is platform revenue.
	if got, want := h.balance(t, ledger.AgentWalletAccount("agent-1")), money.FromMinorUnits(50); !got.Equals(want) {
		t.Fatalf("wallet = %s, want %s", got, want)
	}
	if got, want := h.balance(t, ledger.PlatformFeeRevenueAccount()), money.FromMinorUnits(50); !got.Equals(want) {
		t.Fatalf("revenue = %s, want %s", got, want)
	}

	entries, err := h.journal.EntriesForTransaction(context.Background(), res.TransactionID)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if !ledger.Balanced(entries) {
		t.Fatalf("posted entries are unbalanced")
	}
}

func TestCashInRetryReturnsStoredResult(t *testing.T) {
	h := newHarness(t)

	in := CashInInput{
		Caller:         agentCaller(),
		ClientRef:      "client-1",
		Amount:         money.FromMinorUnits(10_000),
		IdempotencyKey: "ci-1",
		RequestHash:    "h1",
	}
	first, err := h.service.CashInByAgent(context.Background(), in)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := h.service.CashInByAgent(context.Background(), in)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if first.TransactionID != second.TransactionID {
		t.Fatalf("retry posted a second transaction")
	}
	if got, want := h.balance(t, ledger.ClientAccount("client-1")), money.FromMinorUnits(9_900); !got.Equals(want) {
		t.Fatalf("client = %s, want %s: retry must not post twice", got, want)
	}
}

func TestCashInReusedKeyDifferentBodyRejected(t *testing.T) {
	h := newHarness(t)

	if _, err := h.service.CashInByAgent(context.Background(), CashInInput{
		Caller: agentCaller(), ClientRef: "client-1", Amount: money.FromMinorUnits(10_000),
		IdempotencyKey: "ci-1", RequestHash: "h1",
	}); err != nil {
		t.Fatalf("first: %v", err)
	}

	_, err := h.service.CashInByAgent(context.Background(), CashInInput{
		Caller: agentCaller(), ClientRef: "client-1", Amount: money.FromMinorUnits(5_000),
		IdempotencyKey: "ci-1", RequestHash: "h2",
	})
	if !errors.Is(err, idempotency.ErrKeyReused) {
		t.Fatalf("err = %v, want ErrKeyReused", err)
	}
}

func TestCashInBlockedByAgentCashLimit(t *testing.T) {
	h := newHarness(t)
	h.config.CashLimit = money.FromMinorUnits(5_000)

	_, err := h.service.CashInByAgent(context.Background(), CashInInput{
		Caller: agentCaller(), ClientRef: "client-1", Amount: money.FromMinorUnits(6_000),
		IdempotencyKey: "ci-1", RequestHash: "h1",
	})
	if fault.CodeOf(err) != "agent_cash_limit_exceeded" {
		t.Fatalf("err = %v, want agent_cash_limit_exceeded", err)
	}

	// A projected balance exactly at the limit is allowed.
	if _, err := h.service.CashInByAgent(context.Background(), CashInInput{
		Caller: agentCaller(), ClientRef: "client-1", Amount: money.FromMinorUnits(5_000),
		IdempotencyKey: "ci-2", RequestHash: "h2",
	}); err != nil {
		t.Fatalf("cash in at the boundary: %v", err)
	}
}

func TestCashInRejectsSuspendedClient(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	client, err := h.clients.FindByRef(ctx, "client-1")
	if err != nil {
		t.Fatalf("load client: %v", err)
	}
	if err := client.Suspend(); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	if err := h.clients.Save(ctx, client); err != nil {
		t.Fatalf("save client: %v", err)
	}

	_, err = h.service.CashInByAgent(ctx, CashInInput{
		Caller: agentCaller(), ClientRef: "client-1", Amount: money.FromMinorUnits(10_000),
		IdempotencyKey: "ci-1", RequestHash: "h1",
	})
	if fault.CategoryOf(err) != fault.Authorization {
		t.Fatalf("err = %v, want AUTHORIZATION fault", err)
	}
}

func TestPayByCardChargesClientAndPaysMerchant(t *testing.T) {
	h := newHarness(t)
	ledger.SeedBalance(h.journal, ledger.ClientAccount("client-1"), money.FromMinorUnits(20_000))

	res, err := h.service.PayByCard(context.Background(), PayByCardInput{
		Caller:         terminalCaller(),
		CardUID:        "card-uid-1",
		Pin:            "1234",
		Amount:         money.FromMinorUnits(10_000),
		IdempotencyKey: "pbc-1",
		RequestHash:    "h1",
	})
	if err != nil {
		t.Fatalf("pay by card: %v", err)
	}

	// Client pays amount plus fee.
	if got, want := h.balance(t, ledger.ClientAccount("client-1")), money.FromMinorUnits(9_900); !got.Equals(want) {
		t.Fatalf("client = %s, want %s", got, want)
	}
	// Merchant receives exactly the amount; no agent takes part, so the
	// full fee is platform revenue.
	if got, want := h.balance(t, ledger.MerchantAccount("merchant-1")), money.FromMinorUnits(10_000); !got.Equals(want) {
		t.Fatalf("merchant = %s, want %s", got, want)
	}
	if got, want := h.balance(t, ledger.PlatformFeeRevenueAccount()), money.FromMinorUnits(100); !got.Equals(want) {
		t.Fatalf("revenue = %s, want %s", got, want)
	}

	entries, err := h.journal.EntriesForTransaction(context.Background(), res.TransactionID)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if !ledger.Balanced(entries) {
		t.Fatalf("posted entries are unbalanced")
	}
}

func TestPayByCardWrongPinCountsTowardBlock(t *testing.T) {
	h := newHarness(t)
	ledger.SeedBalance(h.journal, ledger.ClientAccount("client-1"), money.FromMinorUnits(20_000))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := h.service.PayByCard(ctx, PayByCardInput{
			Caller: terminalCaller(), CardUID: "card-uid-1", Pin: "9999",
			Amount:         money.FromMinorUnits(1_000),
			IdempotencyKey: "pbc-bad", RequestHash: "h1",
		})
		if !errors.Is(err, ErrPinMismatch) {
			t.Fatalf("attempt %d: err = %v, want ErrPinMismatch", i+1, err)
		}
	}

	blocked, err := h.cards.FindByUID(ctx, "card-uid-1")
	if err != nil {
		t.Fatalf("load card: %v", err)
	}
	if blocked.Status != card.StatusBlocked {
		t.Fatalf("card status = %s, want BLOCKED after 3 failures", blocked.Status)
	}
	if blocked.FailedPinAttempts != 3 {
		t.Fatalf("failed attempts = %d, want 3", blocked.FailedPinAttempts)
	}

	// A blocked card cannot pay even with the right PIN.
	_, err = h.service.PayByCard(ctx, PayByCardInput{
		Caller: terminalCaller(), CardUID: "card-uid-1", Pin: "1234",
		Amount:         money.FromMinorUnits(1_000),
		IdempotencyKey: "pbc-2", RequestHash: "h2",
	})
	if !errors.Is(err, ErrCardNotUsable) {
		t.Fatalf("err = %v, want ErrCardNotUsable", err)
	}
}

func TestPayByCardInsufficientFunds(t *testing.T) {
	h := newHarness(t)
	ledger.SeedBalance(h.journal, ledger.ClientAccount("client-1"), money.FromMinorUnits(10_000))

	// Balance covers the amount but not amount plus fee.
	_, err := h.service.PayByCard(context.Background(), PayByCardInput{
		Caller: terminalCaller(), CardUID: "card-uid-1", Pin: "1234",
		Amount:         money.FromMinorUnits(10_000),
		IdempotencyKey: "pbc-1", RequestHash: "h1",
	})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
}

func TestMerchantWithdrawMovesCashThroughClearing(t *testing.T) {
	h := newHarness(t)
	ledger.SeedBalance(h.journal, ledger.MerchantAccount("merchant-1"), money.FromMinorUnits(20_000))

	res, err := h.service.MerchantWithdrawAtAgent(context.Background(), MerchantWithdrawInput{
		Caller:         merchantCaller(),
		AgentRef:       "agent-1",
		Amount:         money.FromMinorUnits(10_000),
		IdempotencyKey: "mw-1",
		RequestHash:    "h1",
	})
	if err != nil {
		t.Fatalf("merchant withdraw: %v", err)
	}

	if got, want := h.balance(t, ledger.MerchantAccount("merchant-1")), money.FromMinorUnits(10_000); !got.Equals(want) {
		t.Fatalf("merchant = %s, want %s", got, want)
	}
	// Handing out cash reduces what the agent owes the platform.
	if got, want := h.balance(t, ledger.AgentCashClearingAccount("agent-1")), money.FromMinorUnits(9_900); !got.Equals(want) {
		t.Fatalf("clearing = %s, want %s", got, want)
	}
	if got, want := h.balance(t, ledger.AgentWalletAccount("agent-1")), money.FromMinorUnits(50); !got.Equals(want) {
		t.Fatalf("wallet = %s, want %s", got, want)
	}

	entries, err := h.journal.EntriesForTransaction(context.Background(), res.TransactionID)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if !ledger.Balanced(entries) {
		t.Fatalf("posted entries are unbalanced")
	}
}

func TestReverseRestoresBalancesExactlyOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.service.CashInByAgent(ctx, CashInInput{
		Caller: agentCaller(), ClientRef: "client-1", Amount: money.FromMinorUnits(10_000),
		IdempotencyKey: "ci-1", RequestHash: "h1",
	})
	if err != nil {
		t.Fatalf("cash in: %v", err)
	}

	rev, err := h.service.Reverse(ctx, ReverseInput{
		Caller: adminCaller(), TransactionID: res.TransactionID,
		IdempotencyKey: "rev-1", RequestHash: "h1",
	})
	if err != nil {
		t.Fatalf("reverse: %v", err)
	}

	for _, ref := range []ledger.AccountRef{
		ledger.ClientAccount("client-1"),
		ledger.AgentWalletAccount("agent-1"),
		ledger.AgentCashClearingAccount("agent-1"),
		ledger.PlatformFeeRevenueAccount(),
	} {
		if got := h.balance(t, ref); !got.IsZero() {
			t.Fatalf("balance of %s = %s, want 0.00 after reversal", ref, got)
		}
	}

	// A second reversal of the same original is rejected.
	if _, err := h.service.Reverse(ctx, ReverseInput{
		Caller: adminCaller(), TransactionID: res.TransactionID,
		IdempotencyKey: "rev-2", RequestHash: "h2",
	}); !errors.Is(err, ledger.ErrAlreadyReversed) {
		t.Fatalf("err = %v, want ErrAlreadyReversed", err)
	}

	// A reversal itself cannot be reversed.
	if _, err := h.service.Reverse(ctx, ReverseInput{
		Caller: adminCaller(), TransactionID: rev.TransactionID,
		IdempotencyKey: "rev-3", RequestHash: "h3",
	}); !errors.Is(err, ErrReversalOfReversal) {
		t.Fatalf("err = %v, want ErrReversalOfReversal", err)
	}
}

func TestReverseRejectsLifecycleOwnedTransactions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ledger.SeedBalance(h.journal, ledger.AgentWalletAccount("agent-1"), money.FromMinorUnits(10_000))

	// Postings of this type belong to an open payout or refund; undoing
	// them behind the lifecycle's back would let it settle unbacked
	// clearing later.
	now := time.Now().UTC()
	for i, txType := range []ledger.TransactionType{ledger.TxAgentPayout, ledger.TxClientRefund} {
		tx := ledger.NewTransaction(txType, money.FromMinorUnits(4_000), now)
		entries := []ledger.Entry{
			ledger.NewDebit(tx.ID, ledger.AgentWalletAccount("agent-1"), money.FromMinorUnits(4_000)),
			ledger.NewCredit(tx.ID, ledger.PlatformClearingAccount(), money.FromMinorUnits(4_000)),
		}
		if err := h.journal.Append(ctx, tx, entries); err != nil {
			t.Fatalf("append %s: %v", txType, err)
		}

		_, err := h.service.Reverse(ctx, ReverseInput{
			Caller: adminCaller(), TransactionID: tx.ID,
			IdempotencyKey: fmt.Sprintf("rev-%d", i), RequestHash: "h1",
		})
		if !errors.Is(err, ErrSettlementManaged) {
			t.Fatalf("reverse %s: err = %v, want ErrSettlementManaged", txType, err)
		}
	}
}

func TestAmountBoundsEnforced(t *testing.T) {
	h := newHarness(t)

	_, err := h.service.CashInByAgent(context.Background(), CashInInput{
		Caller: agentCaller(), ClientRef: "client-1", Amount: money.FromMinorUnits(150),
		IdempotencyKey: "ci-1", RequestHash: "h1",
	})
	if fault.CodeOf(err) != "amount_below_minimum" {
		t.Fatalf("err = %v, want amount_below_minimum", err)
	}
}
