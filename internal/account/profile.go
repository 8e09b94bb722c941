// Package account holds the AccountProfile: a ledger-level activity gate
// for one account ref, independent of the owning actor's own status. Both
// gates must be open for money to move.
package account

import (
	"context"
	"time"

	"github.com/kori-finance/kori/internal/ledger"
	"github.com/kori-finance/kori/internal/status"
)

// Profile gates ledger activity on one account.
type Profile struct {
	Account   ledger.AccountRef
	Status    status.Status
	CreatedAt time.Time
}

// NewProfile opens an active profile for the account.
func NewProfile(account ledger.AccountRef, now time.Time) Profile {
	return Profile{Account: account, Status: status.Active, CreatedAt: now}
}

// Suspend halts ledger activity on the account.
func (p *Profile) Suspend() error {
	next, err := status.Transition(p.Status, status.Suspended)
	if err != nil {
		return err
	}
	p.Status = next
	return nil
}

// Activate resumes ledger activity on the account.
func (p *Profile) Activate() error {
	next, err := status.Transition(p.Status, status.Active)
	if err != nil {
		return err
	}
	p.Status = next
	return nil
}

// Close permanently ends ledger activity on the account.
func (p *Profile) Close() error {
	next, err := status.Transition(p.Status, status.Closed)
	if err != nil {
		return err
	}
	p.Status = next
	return nil
}

// Port persists profiles. FindByAccount returns (nil, nil) when no
// profile exists; callers treat absence as inactive.
type Port interface {
	FindByAccount(ctx context.Context, account ledger.AccountRef) (*Profile, error)
	Save(ctx context.Context, profile Profile) error
}
