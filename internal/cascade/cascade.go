// Package cascade keeps dependent aggregates consistent when an actor's
// status changes: account profiles follow the actor's verb, while cards
// and terminals are suspended or deactivated but never automatically
// restored. Restoring the parent never silently restores an instrument
// suspended for cause.
package cascade

import (
	"context"

	"github.com/kori-finance/kori/internal/account"
	"github.com/kori-finance/kori/internal/event"
	"github.com/kori-finance/kori/internal/ledger"
	"github.com/kori-finance/kori/internal/status"
)

// propagateProfile applies the actor's verb to the account profile, if
// one exists. Absence is not an error.
func propagateProfile(ctx context.Context, profiles account.Port, ref ledger.AccountRef, after status.Status) error {
	profile, err := profiles.FindByAccount(ctx, ref)
	if err != nil {
		return err
	}
	if profile == nil {
		return nil
	}

	switch after {
	case status.Suspended:
		err = profile.Suspend()
	case status.Active:
		err = profile.Activate()
	case status.Closed:
		err = profile.Close()
	default:
		return nil
	}
	if err != nil {
		return err
	}
	return profiles.Save(ctx, *profile)
}

var _ event.CascadeHandler = (*AgentHandler)(nil)
var _ event.CascadeHandler = (*ClientHandler)(nil)
var _ event.CascadeHandler = (*MerchantHandler)(nil)
