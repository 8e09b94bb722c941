// Package guard holds the pure business checks that stand between a
// command and the ledger: actor type gates, activity gates, amount
// bounds, the agent cash limit and fee/commission pricing. Guards never
// return booleans; every rejection is a category-tagged fault with a
// stable code.
package guard

import (
	"github.com/kori-finance/kori/internal/account"
	"github.com/kori-finance/kori/internal/fault"
	"github.com/kori-finance/kori/internal/money"
	"github.com/kori-finance/kori/internal/status"
)

// ActorType identifies the kind of caller behind a command.
type ActorType string

const (
	ActorAdmin    ActorType = "ADMIN"
	ActorAgent    ActorType = "AGENT"
	ActorMerchant ActorType = "MERCHANT"
	ActorClient   ActorType = "CLIENT"
	ActorTerminal ActorType = "TERMINAL"
)

// Caller is the gateway-verified identity behind a command.
type Caller struct {
	Type ActorType
	Ref  string
}

// RequireActorType rejects callers whose type does not match the
// operation.
func RequireActorType(actual ActorType, allowed ...ActorType) error {
	for _, a := range allowed {
		if actual == a {
			return nil
		}
	}
	return fault.Denied("actor_type_not_allowed", map[string]string{
		"actor_type": string(actual),
	})
}

// RequireActive enforces both activity gates for money movement: the
// actor's own status must be ACTIVE and its account profile must exist
// and be ACTIVE. A missing profile is treated as inactive.
func RequireActive(actorStatus status.Status, profile *account.Profile) error {
	if actorStatus != status.Active {
		return fault.Denied("actor_inactive", map[string]string{
			"status": string(actorStatus),
		})
	}
	if profile == nil {
		return fault.Denied("account_profile_inactive", map[string]string{
			"profile_status": "MISSING",
		})
	}
	if profile.Status != status.Active {
		return fault.Denied("account_profile_inactive", map[string]string{
			"profile_status": string(profile.Status),
		})
	}
	return nil
}

// AmountBounds are the configured per-operation limits.
type AmountBounds struct {
	Min money.Money
	Max money.Money
}

// Check rejects amounts outside [Min, Max]. Non-positive amounts are
// always rejected.
func (b AmountBounds) Check(amount money.Money) error {
	if amount.IsZero() || amount.IsNegative() {
		return fault.Invalid("amount_not_positive", map[string]string{
			"amount": amount.String(),
		})
	}
	if amount.IsLessThan(b.Min) {
		return fault.Invalid("amount_below_minimum", map[string]string{
			"amount":  amount.String(),
			"minimum": b.Min.String(),
		})
	}
	if amount.IsGreaterThan(b.Max) {
		return fault.Invalid("amount_above_maximum", map[string]string{
			"amount":  amount.String(),
			"maximum": b.Max.String(),
		})
	}
	return nil
}
