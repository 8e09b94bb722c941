package payout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kori-finance/kori/internal/account"
	"github.com/kori-finance/kori/internal/actor"
	"github.com/kori-finance/kori/internal/audit"
	"github.com/kori-finance/kori/internal/clock"
	"github.com/kori-finance/kori/internal/event"
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
	payouts *MemoryRepository
	refunds *MemoryRefundRepository
}

func newHarness(t *testing.T) *harness {
	return newHarnessOver(t, nil)
}

// newHarnessOver lets a test interpose on the payout store, to simulate
// a store failing mid-command.
func newHarnessOver(t *testing.T, wrapPayouts func(Repository) Repository) *harness {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	agents := actor.NewMemoryAgents()
	clients := actor.NewMemoryClients()
	admins := actor.NewMemoryAdmins()
	profiles := account.NewMemoryPort()
	journal := ledger.NewInMemoryJournal()
	payouts := NewMemoryRepository()
	refunds := NewMemoryRefundRepository()
	logger := logging.Discard()

	if err := agents.Save(ctx, actor.Agent{Ref: "agent-1", Name: "Agent One", Status: status.Active, CreatedAt: now}); err != nil {
		t.Fatalf("seed agent: %v", err)
	}
	if err := clients.Save(ctx, actor.Client{Ref: "client-1", Status: status.Active, CreatedAt: now}); err != nil {
		t.Fatalf("seed client: %v", err)
	}
	if err := admins.Save(ctx, actor.Admin{Ref: "admin-1", Name: "Admin One", Status: status.Active, CreatedAt: now}); err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	for _, ref := range []ledger.AccountRef{
		ledger.AgentWalletAccount("agent-1"),
		ledger.ClientAccount("client-1"),
	} {
		if err := profiles.Save(ctx, account.NewProfile(ref, now)); err != nil {
			t.Fatalf("seed profile: %v", err)
		}
	}

	bounds := guard.AmountBounds{Min: money.FromMinorUnits(100), Max: money.FromMinorUnits(1_000_000)}
	config := &pricing.Static{
		Bounds: map[ledger.TransactionType]guard.AmountBounds{
			ledger.TxAgentPayout:  bounds,
			ledger.TxClientRefund: bounds,
		},
	}

	var payoutRepo Repository = payouts
	if wrapPayouts != nil {
		payoutRepo = wrapPayouts(payouts)
	}

	service := NewService(ServiceDeps{
		Agents:   agents,
		Clients:  clients,
		Admins:   admins,
		Profiles: profiles,
		Journal:  journal,
		Locks:    journal,
		Executor: idempotency.NewExecutor(idempotency.NewMemoryStore(), logger),
		Config:   config,
		Payouts:  payoutRepo,
		Refunds:  refunds,
		Events:   event.NewLoggerPublisher(logger),
		Audit:    audit.NewLogTrail(logger),
		Clock:    clock.System{},
		Logger:   logger,
	})
	return &harness{service: service, journal: journal, payouts: payouts, refunds: refunds}
}

func agentCaller() guard.Caller { return guard.Caller{Type: guard.ActorAgent, Ref: "agent-1"} }
func adminCaller() guard.Caller { return guard.Caller{Type: guard.ActorAdmin, Ref: "admin-1"} }

func (h *harness) balance(t *testing.T, ref ledger.AccountRef) money.Money {
	t.Helper()
	b, err := h.journal.BalanceOf(context.Background(), ref)
	if err != nil {
		t.Fatalf("balance of %s: %v", ref, err)
	}
	return b
}

var errStoreUnavailable = errors.New("payout store unavailable")

// flakySaveRepository fails the Nth Save call after arm, passing every
// other operation through.
type flakySaveRepository struct {
	Repository
	mu     sync.Mutex
	calls  int
	failAt int
}

func (r *flakySaveRepository) arm(after int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failAt = r.calls + after
}

func (r *flakySaveRepository) Save(ctx context.Context, p Payout) error {
	r.mu.Lock()
	r.calls++
	fail := r.failAt > 0 && r.calls == r.failAt
	r.mu.Unlock()
	if fail {
		return errStoreUnavailable
	}
	return r.Repository.Save(ctx, p)
}

func TestRequestPayoutMovesWalletIntoClearing(t *testing.T) {
	h := newHarness(t)
	ledger.SeedBalance(h.journal, ledger.AgentWalletAccount("agent-1"), money.FromMinorUnits(10_000))

	res, err := h.service.RequestPayout(context.Background(), RequestPayoutInput{
		Caller:         agentCaller(),
		Amount:         money.FromMinorUnits(4_000),
		IdempotencyKey: "payout-1",
		RequestHash:    "h1",
	})
	if err != nil {
		t.Fatalf("request payout: %v", err)
	}
	if res.Status != StatusRequested {
		t.Fatalf("status = %s, want REQUESTED", res.Status)
	}

	wallet := h.balance(t, ledger.AgentWalletAccount("agent-1"))
	if want := money.FromMinorUnits(6_000); !wallet.Equals(want) {
		t.Fatalf("wallet = %s, want %s", wallet, want)
	}
	clearing := h.balance(t, ledger.PlatformClearingAccount())
	if want := money.FromMinorUnits(4_000); !clearing.Equals(want) {
		t.Fatalf("clearing = %s, want %s", clearing, want)
	}
}

func TestRequestPayoutIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ledger.SeedBalance(h.journal, ledger.AgentWalletAccount("agent-1"), money.FromMinorUnits(10_000))

	in := RequestPayoutInput{
		Caller:         agentCaller(),
		Amount:         money.FromMinorUnits(4_000),
		IdempotencyKey: "payout-1",
		RequestHash:    "h1",
	}
	first, err := h.service.RequestPayout(context.Background(), in)
	if err != nil {
		t.Fatalf("first request: %v", err)
	}
	second, err := h.service.RequestPayout(context.Background(), in)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if first.PayoutID != second.PayoutID || first.TransactionID != second.TransactionID {
		t.Fatalf("retry returned a different result: %+v vs %+v", first, second)
	}

	// The wallet was debited exactly once.
	wallet := h.balance(t, ledger.AgentWalletAccount("agent-1"))
	if want := money.FromMinorUnits(6_000); !wallet.Equals(want) {
		t.Fatalf("wallet = %s, want %s", wallet, want)
	}
}

func TestSecondOpenPayoutRejected(t *testing.T) {
	h := newHarness(t)
	ledger.SeedBalance(h.journal, ledger.AgentWalletAccount("agent-1"), money.FromMinorUnits(10_000))

	if _, err := h.service.RequestPayout(context.Background(), RequestPayoutInput{
		Caller: agentCaller(), Amount: money.FromMinorUnits(1_000),
		IdempotencyKey: "payout-1", RequestHash: "h1",
	}); err != nil {
		t.Fatalf("first request: %v", err)
	}

	_, err := h.service.RequestPayout(context.Background(), RequestPayoutInput{
		Caller: agentCaller(), Amount: money.FromMinorUnits(1_000),
		IdempotencyKey: "payout-2", RequestHash: "h2",
	})
	if !errors.Is(err, ErrPayoutPending) {
		t.Fatalf("err = %v, want ErrPayoutPending", err)
	}
}

func TestConcurrentPayoutRequestsAdmitOnlyOne(t *testing.T) {
	h := newHarness(t)
	ledger.SeedBalance(h.journal, ledger.AgentWalletAccount("agent-1"), money.FromMinorUnits(10_000))

	// Two distinct keys race on the same wallet; the open-payout check
	// runs under the wallet lock, so the loser must observe the
	// winner's REQUESTED payout.
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.service.RequestPayout(context.Background(), RequestPayoutInput{
				Caller: agentCaller(), Amount: money.FromMinorUnits(1_000),
				IdempotencyKey: fmt.Sprintf("payout-%d", i), RequestHash: "h1",
			})
		}(i)
	}
	wg.Wait()

	var admitted, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			admitted++
		case errors.Is(err, ErrPayoutPending):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if admitted != 1 || rejected != 1 {
		t.Fatalf("admitted = %d, rejected = %d, want exactly one of each", admitted, rejected)
	}

	clearing := h.balance(t, ledger.PlatformClearingAccount())
	if want := money.FromMinorUnits(1_000); !clearing.Equals(want) {
		t.Fatalf("clearing = %s, want %s", clearing, want)
	}
}

func TestConcurrentRefundRequestsAdmitOnlyOne(t *testing.T) {
	h := newHarness(t)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.service.RequestClientRefund(context.Background(), RequestRefundInput{
				Caller: adminCaller(), ClientRef: "client-1", Amount: money.FromMinorUnits(1_000),
				IdempotencyKey: fmt.Sprintf("refund-%d", i), RequestHash: "h1",
			})
		}(i)
	}
	wg.Wait()

	var admitted, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			admitted++
		case errors.Is(err, ErrRefundPending):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if admitted != 1 || rejected != 1 {
		t.Fatalf("admitted = %d, rejected = %d, want exactly one of each", admitted, rejected)
	}

	clientBalance := h.balance(t, ledger.ClientAccount("client-1"))
	if want := money.FromMinorUnits(1_000); !clientBalance.Equals(want) {
		t.Fatalf("client balance = %s, want %s", clientBalance, want)
	}
}

func TestRequestPayoutInsufficientFunds(t *testing.T) {
	h := newHarness(t)
	ledger.SeedBalance(h.journal, ledger.AgentWalletAccount("agent-1"), money.FromMinorUnits(500))

	_, err := h.service.RequestPayout(context.Background(), RequestPayoutInput{
		Caller: agentCaller(), Amount: money.FromMinorUnits(1_000),
		IdempotencyKey: "payout-1", RequestHash: "h1",
	})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}

	// The failed attempt released its claim; a funded retry succeeds.
	ledger.SeedBalance(h.journal, ledger.AgentWalletAccount("agent-1"), money.FromMinorUnits(1_000))
	if _, err := h.service.RequestPayout(context.Background(), RequestPayoutInput{
		Caller: agentCaller(), Amount: money.FromMinorUnits(1_000),
		IdempotencyKey: "payout-1", RequestHash: "h1",
	}); err != nil {
		t.Fatalf("funded retry: %v", err)
	}
}

func TestFailPayoutReversesThePosting(t *testing.T) {
	h := newHarness(t)
	ledger.SeedBalance(h.journal, ledger.AgentWalletAccount("agent-1"), money.FromMinorUnits(10_000))

	res, err := h.service.RequestPayout(context.Background(), RequestPayoutInput{
		Caller: agentCaller(), Amount: money.FromMinorUnits(4_000),
		IdempotencyKey: "payout-1", RequestHash: "h1",
	})
	if err != nil {
		t.Fatalf("request payout: %v", err)
	}

	failed, err := h.service.FailPayout(context.Background(), FailPayoutInput{
		Caller: adminCaller(), PayoutID: res.PayoutID, Reason: "bank rejected",
		IdempotencyKey: "fail-1", RequestHash: "f1",
	})
	if err != nil {
		t.Fatalf("fail payout: %v", err)
	}
	if failed.Status != StatusFailed {
		t.Fatalf("status = %s, want FAILED", failed.Status)
	}

	wallet := h.balance(t, ledger.AgentWalletAccount("agent-1"))
	if want := money.FromMinorUnits(10_000); !wallet.Equals(want) {
		t.Fatalf("wallet = %s, want %s after reversal", wallet, want)
	}
	clearing := h.balance(t, ledger.PlatformClearingAccount())
	if !clearing.IsZero() {
		t.Fatalf("clearing = %s, want 0.00 after reversal", clearing)
	}

	stored, err := h.payouts.FindByID(context.Background(), res.PayoutID)
	if err != nil {
		t.Fatalf("load payout: %v", err)
	}
	if stored.FailureReason != "bank rejected" {
		t.Fatalf("failure reason = %q", stored.FailureReason)
	}
}

func TestFailPayoutRetryReversesOnce(t *testing.T) {
	flaky := &flakySaveRepository{}
	h := newHarnessOver(t, func(base Repository) Repository {
		flaky.Repository = base
		return flaky
	})
	ledger.SeedBalance(h.journal, ledger.AgentWalletAccount("agent-1"), money.FromMinorUnits(10_000))

	res, err := h.service.RequestPayout(context.Background(), RequestPayoutInput{
		Caller: agentCaller(), Amount: money.FromMinorUnits(4_000),
		IdempotencyKey: "payout-1", RequestHash: "h1",
	})
	if err != nil {
		t.Fatalf("request payout: %v", err)
	}

	// First attempt posts the reversal, then loses the status save.
	flaky.arm(1)
	in := FailPayoutInput{
		Caller: adminCaller(), PayoutID: res.PayoutID, Reason: "bank rejected",
		IdempotencyKey: "fail-1", RequestHash: "f1",
	}
	if _, err := h.service.FailPayout(context.Background(), in); !errors.Is(err, errStoreUnavailable) {
		t.Fatalf("err = %v, want store failure", err)
	}

	failed, err := h.service.FailPayout(context.Background(), in)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if failed.Status != StatusFailed {
		t.Fatalf("status = %s, want FAILED", failed.Status)
	}

	// One reversal, not two: the wallet is restored exactly.
	wallet := h.balance(t, ledger.AgentWalletAccount("agent-1"))
	if want := money.FromMinorUnits(10_000); !wallet.Equals(want) {
		t.Fatalf("wallet = %s, want %s", wallet, want)
	}
	clearing := h.balance(t, ledger.PlatformClearingAccount())
	if !clearing.IsZero() {
		t.Fatalf("clearing = %s, want 0.00", clearing)
	}
}

func TestCompletePayoutSettlesToBankAndIsTerminal(t *testing.T) {
	h := newHarness(t)
	ledger.SeedBalance(h.journal, ledger.AgentWalletAccount("agent-1"), money.FromMinorUnits(10_000))

	res, err := h.service.RequestPayout(context.Background(), RequestPayoutInput{
		Caller: agentCaller(), Amount: money.FromMinorUnits(4_000),
		IdempotencyKey: "payout-1", RequestHash: "h1",
	})
	if err != nil {
		t.Fatalf("request payout: %v", err)
	}

	done, err := h.service.CompletePayout(context.Background(), CompletePayoutInput{
		Caller: adminCaller(), PayoutID: res.PayoutID,
		IdempotencyKey: "complete-1", RequestHash: "c1",
	})
	if err != nil {
		t.Fatalf("complete payout: %v", err)
	}
	if done.Status != StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", done.Status)
	}
	clearing := h.balance(t, ledger.PlatformClearingAccount())
	if !clearing.IsZero() {
		t.Fatalf("clearing = %s, want 0.00 after settlement", clearing)
	}

	// With a fresh key the settled payout rejects further commands.
	if _, err := h.service.CompletePayout(context.Background(), CompletePayoutInput{
		Caller: adminCaller(), PayoutID: res.PayoutID,
		IdempotencyKey: "complete-2", RequestHash: "c2",
	}); !errors.Is(err, ErrPayoutSettled) {
		t.Fatalf("err = %v, want ErrPayoutSettled", err)
	}
	if _, err := h.service.FailPayout(context.Background(), FailPayoutInput{
		Caller: adminCaller(), PayoutID: res.PayoutID, Reason: "late",
		IdempotencyKey: "fail-1", RequestHash: "f1",
	}); !errors.Is(err, ErrPayoutSettled) {
		t.Fatalf("err = %v, want ErrPayoutSettled", err)
	}
}

func TestCompletePayoutRetryDoesNotDoubleSettle(t *testing.T) {
	flaky := &flakySaveRepository{}
	h := newHarnessOver(t, func(base Repository) Repository {
		flaky.Repository = base
		return flaky
	})
	ledger.SeedBalance(h.journal, ledger.AgentWalletAccount("agent-1"), money.FromMinorUnits(10_000))

	res, err := h.service.RequestPayout(context.Background(), RequestPayoutInput{
		Caller: agentCaller(), Amount: money.FromMinorUnits(4_000),
		IdempotencyKey: "payout-1", RequestHash: "h1",
	})
	if err != nil {
		t.Fatalf("request payout: %v", err)
	}

	// The first attempt persists the settlement id, appends the
	// settlement posting, then loses the final status save.
	flaky.arm(2)
	in := CompletePayoutInput{
		Caller: adminCaller(), PayoutID: res.PayoutID,
		IdempotencyKey: "complete-1", RequestHash: "c1",
	}
	if _, err := h.service.CompletePayout(context.Background(), in); !errors.Is(err, errStoreUnavailable) {
		t.Fatalf("err = %v, want store failure", err)
	}

	done, err := h.service.CompletePayout(context.Background(), in)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if done.Status != StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", done.Status)
	}

	// The retry reused the posting already on the journal; clearing
	// nets to zero and the bank received the amount exactly once.
	clearing := h.balance(t, ledger.PlatformClearingAccount())
	if !clearing.IsZero() {
		t.Fatalf("clearing = %s, want 0.00", clearing)
	}
	bank := h.balance(t, ledger.PlatformBankAccount())
	if want := money.FromMinorUnits(4_000); !bank.Equals(want) {
		t.Fatalf("bank = %s, want %s", bank, want)
	}
}

func TestRequestPayoutRejectsNonAgents(t *testing.T) {
	h := newHarness(t)
	_, err := h.service.RequestPayout(context.Background(), RequestPayoutInput{
		Caller: adminCaller(), Amount: money.FromMinorUnits(1_000),
		IdempotencyKey: "payout-1", RequestHash: "h1",
	})
	if !errors.Is(err, guard.RequireActorType(guard.ActorAdmin, guard.ActorAgent)) {
		t.Fatalf("err = %v, want actor type rejection", err)
	}
}

func TestClientRefundLifecycle(t *testing.T) {
	h := newHarness(t)

	res, err := h.service.RequestClientRefund(context.Background(), RequestRefundInput{
		Caller:         adminCaller(),
		ClientRef:      "client-1",
		Amount:         money.FromMinorUnits(2_500),
		IdempotencyKey: "refund-1",
		RequestHash:    "h1",
	})
	if err != nil {
		t.Fatalf("request refund: %v", err)
	}

	clientBalance := h.balance(t, ledger.ClientAccount("client-1"))
	if want := money.FromMinorUnits(2_500); !clientBalance.Equals(want) {
		t.Fatalf("client balance = %s, want %s", clientBalance, want)
	}

	// A second open refund for the same client is rejected.
	if _, err := h.service.RequestClientRefund(context.Background(), RequestRefundInput{
		Caller: adminCaller(), ClientRef: "client-1", Amount: money.FromMinorUnits(1_000),
		IdempotencyKey: "refund-2", RequestHash: "h2",
	}); !errors.Is(err, ErrRefundPending) {
		t.Fatalf("err = %v, want ErrRefundPending", err)
	}

	done, err := h.service.CompleteClientRefund(context.Background(), CompleteRefundInput{
		Caller: adminCaller(), RefundID: res.RefundID,
		IdempotencyKey: "refund-complete-1", RequestHash: "c1",
	})
	if err != nil {
		t.Fatalf("complete refund: %v", err)
	}
	if done.Status != StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", done.Status)
	}
}

func TestFailClientRefundReversesTheCredit(t *testing.T) {
	h := newHarness(t)

	res, err := h.service.RequestClientRefund(context.Background(), RequestRefundInput{
		Caller: adminCaller(), ClientRef: "client-1", Amount: money.FromMinorUnits(2_500),
		IdempotencyKey: "refund-1", RequestHash: "h1",
	})
	if err != nil {
		t.Fatalf("request refund: %v", err)
	}

	failed, err := h.service.FailClientRefund(context.Background(), FailRefundInput{
		Caller: adminCaller(), RefundID: res.RefundID, Reason: "wrong client",
		IdempotencyKey: "refund-fail-1", RequestHash: "f1",
	})
	if err != nil {
		t.Fatalf("fail refund: %v", err)
	}
	if failed.Status != StatusFailed {
		t.Fatalf("status = %s, want FAILED", failed.Status)
	}
	clientBalance := h.balance(t, ledger.ClientAccount("client-1"))
	if !clientBalance.IsZero() {
		t.Fatalf("client balance = %s, want 0.00 after reversal", clientBalance)
	}
}
