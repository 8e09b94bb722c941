// Package status implements the lifecycle machine shared by every actor
// aggregate and by ledger account profiles: ACTIVE and SUSPENDED may swap
// freely, CLOSED is terminal.
package status

import "github.com/kori-finance/kori/internal/fault"

// Status is the shared actor/account lifecycle state.
type Status string

const (
	Active    Status = "ACTIVE"
	Suspended Status = "SUSPENDED"
	Closed    Status = "CLOSED"
)

// transitions is the explicit legality table. Self-loops are listed so
// repeated suspend/activate commands stay idempotent.
var transitions = map[Status]map[Status]bool{
	Active:    {Active: true, Suspended: true, Closed: true},
	Suspended: {Active: true, Suspended: true, Closed: true},
	Closed:    {},
}

// CanTransitionTo reports whether from -> to is a legal move.
func (s Status) CanTransitionTo(to Status) bool {
	allowed, ok := transitions[s]
	if !ok {
		return false
	}
	return allowed[to]
}

// Transition validates and applies a status change, returning the new
// status. Any move out of CLOSED is rejected.
func Transition(from, to Status) (Status, error) {
	if !from.CanTransitionTo(to) {
		return from, fault.Conflicting("status_transition_invalid", map[string]string{
			"from": string(from),
			"to":   string(to),
		})
	}
	return to, nil
}
