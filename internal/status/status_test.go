package status

import "testing"

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		from, to Status
		allowed  bool
	}{
		{Active, Suspended, true},
		{Suspended, Active, true},
		{Active, Active, true},
		{Suspended, Suspended, true},
		{Active, Closed, true},
		{Suspended, Closed, true},
		{Closed, Active, false},
		{Closed, Suspended, false},
		{Closed, Closed, false},
	}

	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.allowed {
			t.Errorf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.allowed, got)
		}
	}
}

func TestTransitionRejectsLeavingClosed(t *testing.T) {
	got, err := Transition(Closed, Active)
	if err == nil {
		t.Fatalf("expected error reactivating a closed aggregate")
	}
	if got != Closed {
		t.Fatalf("failed transition must not change status, got %s", got)
	}
}

func TestTransitionAppliesLegalMove(t *testing.T) {
	got, err := Transition(Active, Suspended)
	if err != nil {
		t.Fatalf("suspend: %v", err)
	}
	if got != Suspended {
		t.Fatalf("expected SUSPENDED, got %s", got)
	}
}
