package card

import (
	"testing"
	"time"
)

func newTestCard() Card {
	return New("client-1", "uid-001", []byte("hash"), time.Now().UTC())
}

func TestStatusTransitionTable(t *testing.T) {
	cases := []struct {
		from, to Status
		allowed  bool
	}{
		{StatusActive, StatusBlocked, true},
		{StatusActive, StatusLost, true},
		{StatusActive, StatusSuspended, true},
		{StatusActive, StatusInactive, true},
		{StatusBlocked, StatusLost, true},
		{StatusBlocked, StatusSuspended, true},
		{StatusBlocked, StatusInactive, true},
		{StatusLost, StatusInactive, true},
		{StatusSuspended, StatusInactive, true},
		{StatusBlocked, StatusActive, false}, // only via UnblockToActive
		{StatusLost, StatusActive, false},
		{StatusInactive, StatusActive, false},
		{StatusInactive, StatusBlocked, false},
		{StatusInactive, StatusLost, false},
		{StatusInactive, StatusSuspended, false},
	}

	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.allowed {
			t.Errorf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.allowed, got)
		}
	}
}

func TestSelfTransitionIsNoOpSuccess(t *testing.T) {
	c := newTestCard()
	c.FailedPinAttempts = 2

	if err := c.TransitionTo(StatusActive); err != nil {
		t.Fatalf("self transition must succeed: %v", err)
	}
	if c.FailedPinAttempts != 2 {
		t.Fatalf("ordinary transition must not touch the PIN counter")
	}
}

func TestUnblockToActive(t *testing.T) {
	c := newTestCard()
	if err := c.UnblockToActive(); err == nil {
		t.Fatalf("unblock must reject a card that is not blocked")
	}

	if err := c.TransitionTo(StatusBlocked); err != nil {
		t.Fatalf("block: %v", err)
	}
	c.FailedPinAttempts = 3

	if err := c.UnblockToActive(); err != nil {
		t.Fatalf("unblock: %v", err)
	}
	if c.Status != StatusActive {
		t.Fatalf("expected ACTIVE, got %s", c.Status)
	}
	if c.FailedPinAttempts != 0 {
		t.Fatalf("unblock must reset the PIN counter, got %d", c.FailedPinAttempts)
	}
}

func TestPinFailureBlocksAtThreshold(t *testing.T) {
	c := newTestCard()
	const maxAttempts = 3

	c.OnPinFailure(maxAttempts)
	c.OnPinFailure(maxAttempts)
	if c.Status != StatusActive {
		t.Fatalf("two failures must not block, got %s", c.Status)
	}

	c.OnPinFailure(maxAttempts)
	if c.Status != StatusBlocked {
		t.Fatalf("expected BLOCKED after %d failures, got %s", maxAttempts, c.Status)
	}
	if c.FailedPinAttempts != 3 {
		t.Fatalf("expected counter 3, got %d", c.FailedPinAttempts)
	}
}

func TestPinSuccessResetsCounterOnly(t *testing.T) {
	c := newTestCard()
	c.OnPinFailure(5)
	c.OnPinFailure(5)

	c.OnPinSuccess()
	if c.FailedPinAttempts != 0 {
		t.Fatalf("expected counter reset, got %d", c.FailedPinAttempts)
	}
	if c.Status != StatusActive {
		t.Fatalf("success must not change status, got %s", c.Status)
	}

	// A success on a blocked card resets the counter but leaves the card
	// blocked; only the privileged unblock reactivates it.
	blocked := newTestCard()
	blocked.OnPinFailure(1)
	if blocked.Status != StatusBlocked {
		t.Fatalf("expected BLOCKED, got %s", blocked.Status)
	}
	blocked.OnPinSuccess()
	if blocked.Status != StatusBlocked {
		t.Fatalf("success must not unblock, got %s", blocked.Status)
	}
}

func TestBcryptHasherRoundTrip(t *testing.T) {
	hasher := BcryptHasher{}

	hash, err := hasher.Hash("4821")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !hasher.Matches("4821", hash) {
		t.Fatalf("correct PIN rejected")
	}
	if hasher.Matches("0000", hash) {
		t.Fatalf("wrong PIN accepted")
	}

	if _, err := hasher.Hash("12"); err == nil {
		t.Fatalf("short PIN accepted")
	}
}
