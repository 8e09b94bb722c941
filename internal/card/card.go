// Package card holds the payment card aggregate and its lifecycle
// machine. Ordinary transitions never touch the failed-PIN counter; only
// the privileged unblock and the PIN verbs do.
package card

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/kori-finance/kori/internal/fault"
)

// Status is the card lifecycle state.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusBlocked   Status = "BLOCKED"
	StatusLost      Status = "LOST"
	StatusSuspended Status = "SUSPENDED"
	StatusInactive  Status = "INACTIVE"
)

// transitions is the ordinary legality table. INACTIVE is terminal;
// BLOCKED->ACTIVE is deliberately absent here because unblocking is a
// separate privileged transition.
var transitions = map[Status]map[Status]bool{
	StatusActive:    {StatusBlocked: true, StatusLost: true, StatusSuspended: true, StatusInactive: true},
	StatusBlocked:   {StatusLost: true, StatusSuspended: true, StatusInactive: true},
	StatusLost:      {StatusInactive: true},
	StatusSuspended: {StatusInactive: true},
	StatusInactive:  {},
}

// CanTransitionTo reports whether the ordinary move s -> to is legal.
// Self-transitions are allowed and treated as no-ops by TransitionTo.
func (s Status) CanTransitionTo(to Status) bool {
	if s == to {
		return true
	}
	allowed, ok := transitions[s]
	if !ok {
		return false
	}
	return allowed[to]
}

// Card is a client's payment instrument.
type Card struct {
	ID                uuid.UUID
	ClientRef         string
	CardUID           string
	HashedPIN         []byte
	Status            Status
	FailedPinAttempts int
	CreatedAt         time.Time
}

// New issues an active card for the client.
func New(clientRef, cardUID string, hashedPIN []byte, now time.Time) Card {
	return Card{
		ID:        uuid.New(),
		ClientRef: clientRef,
		CardUID:   cardUID,
		HashedPIN: hashedPIN,
		Status:    StatusActive,
		CreatedAt: now,
	}
}

// TransitionTo applies an ordinary lifecycle move. A self-transition is a
// successful no-op. The failed-PIN counter is never touched here.
func (c *Card) TransitionTo(to Status) error {
	if !c.Status.CanTransitionTo(to) {
		return fault.Conflicting("card_transition_invalid", map[string]string{
			"from": string(c.Status),
			"to":   string(to),
		})
	}
	c.Status = to
	return nil
}

// UnblockToActive is the privileged BLOCKED -> ACTIVE transition. It is
// the only transition that resets the failed-PIN counter.
func (c *Card) UnblockToActive() error {
	if c.Status != StatusBlocked {
		return fault.Conflicting("card_not_blocked", map[string]string{
			"status": string(c.Status),
		})
	}
	c.Status = StatusActive
	c.FailedPinAttempts = 0
	return nil
}

// OnPinFailure records a failed PIN attempt and blocks an active card
// once the supplied threshold is reached.
func (c *Card) OnPinFailure(maxAttempts int) {
	c.FailedPinAttempts++
	if c.Status == StatusActive && c.FailedPinAttempts >= maxAttempts {
		c.Status = StatusBlocked
	}
}

// OnPinSuccess resets the counter without changing status.
func (c *Card) OnPinSuccess() {
	c.FailedPinAttempts = 0
}

// ErrCardNotFound reports a missing card.
var ErrCardNotFound = fault.Missing("card_not_found", nil)

// Repository persists cards.
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (Card, error)
	FindByUID(ctx context.Context, cardUID string) (Card, error)
	FindByClient(ctx context.Context, clientRef string) ([]Card, error)
	Save(ctx context.Context, card Card) error
}
