// Package payout holds the settlement-side lifecycles: an agent asking
// the platform to pay out their wallet balance, and the platform
// refunding a client. Both move money when requested and settle or
// reverse when an admin decides.
package payout

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/kori-finance/kori/internal/fault"
	"github.com/kori-finance/kori/internal/money"
)

// Status is the settlement lifecycle. COMPLETED and FAILED are
// terminal.
type Status string

const (
	StatusRequested Status = "REQUESTED"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Terminal reports whether the lifecycle is finished.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ErrPayoutNotFound reports a missing payout aggregate.
var ErrPayoutNotFound = fault.Missing("payout_not_found", nil)

// ErrPayoutPending rejects a second payout request while one is open.
var ErrPayoutPending = fault.Conflicting("payout_already_requested", nil)

// ErrPayoutSettled rejects completing or failing a terminal payout.
var ErrPayoutSettled = fault.Conflicting("payout_already_settled", nil)

// ErrRefundNotFound reports a missing refund aggregate.
var ErrRefundNotFound = fault.Missing("refund_not_found", nil)

// ErrRefundPending rejects a second refund request while one is open.
var ErrRefundPending = fault.Conflicting("refund_already_requested", nil)

// ErrRefundSettled rejects completing or failing a terminal refund.
var ErrRefundSettled = fault.Conflicting("refund_already_settled", nil)

// Payout is one agent's pending wallet withdrawal. TransactionID points
// at the posting that moved the funds into platform clearing.
// SettlementTransactionID is assigned, and persisted, before the
// settlement posting is appended, so a retry after a partial failure
// finds the posting instead of double-settling.
type Payout struct {
	ID                      uuid.UUID
	AgentRef                string
	Amount                  money.Money
	Status                  Status
	TransactionID           uuid.UUID
	SettlementTransactionID *uuid.UUID
	CreatedAt               time.Time
	CompletedAt             *time.Time
	FailedAt                *time.Time
	FailureReason           string
}

// NewPayout builds a REQUESTED payout.
func NewPayout(agentRef string, amount money.Money, transactionID uuid.UUID, now time.Time) Payout {
	return Payout{
		ID:            uuid.New(),
		AgentRef:      agentRef,
		Amount:        amount,
		Status:        StatusRequested,
		TransactionID: transactionID,
		CreatedAt:     now,
	}
}

// Complete settles the payout. Only a REQUESTED payout can settle.
func (p *Payout) Complete(now time.Time) error {
	if p.Status.Terminal() {
		return ErrPayoutSettled
	}
	p.Status = StatusCompleted
	p.CompletedAt = &now
	return nil
}

// Fail records the failure reason and closes the lifecycle.
func (p *Payout) Fail(now time.Time, reason string) error {
	if p.Status.Terminal() {
		return ErrPayoutSettled
	}
	p.Status = StatusFailed
	p.FailedAt = &now
	p.FailureReason = reason
	return nil
}

// ClientRefund is one platform-initiated repayment to a client.
type ClientRefund struct {
	ID            uuid.UUID
	ClientRef     string
	Amount        money.Money
	Status        Status
	TransactionID uuid.UUID
	CreatedAt     time.Time
	CompletedAt   *time.Time
	FailedAt      *time.Time
	FailureReason string
}

// NewClientRefund builds a REQUESTED refund.
func NewClientRefund(clientRef string, amount money.Money, transactionID uuid.UUID, now time.Time) ClientRefund {
	return ClientRefund{
		ID:            uuid.New(),
		ClientRef:     clientRef,
		Amount:        amount,
		Status:        StatusRequested,
		TransactionID: transactionID,
		CreatedAt:     now,
	}
}

// Complete settles the refund.
func (r *ClientRefund) Complete(now time.Time) error {
	if r.Status.Terminal() {
		return ErrRefundSettled
	}
	r.Status = StatusCompleted
	r.CompletedAt = &now
	return nil
}

// Fail records the failure reason and closes the lifecycle.
func (r *ClientRefund) Fail(now time.Time, reason string) error {
	if r.Status.Terminal() {
		return ErrRefundSettled
	}
	r.Status = StatusFailed
	r.FailedAt = &now
	r.FailureReason = reason
	return nil
}

// Repository persists payouts. ExistsRequestedForAgent backs the
// one-open-payout-per-agent admission check and must be consulted
// while the agent's wallet lock is held, or two concurrent requests
// can both pass it.
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (Payout, error)
	Save(ctx context.Context, payout Payout) error
	ExistsRequestedForAgent(ctx context.Context, agentRef string) (bool, error)
}

// RefundRepository persists client refunds, with the same admission
// query per client.
type RefundRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (ClientRefund, error)
	Save(ctx context.Context, refund ClientRefund) error
	ExistsRequestedForClient(ctx context.Context, clientRef string) (bool, error)
}
