package account

import (
	"context"
	"sync"

	"github.com/kori-finance/kori/internal/ledger"
)

// MemoryPort is an in-memory profile store for tests.
type MemoryPort struct {
	mu       sync.RWMutex
	profiles map[ledger.AccountRef]Profile
}

// NewMemoryPort creates an empty in-memory profile store.
func NewMemoryPort() *MemoryPort {
	return &MemoryPort{profiles: make(map[ledger.AccountRef]Profile)}
}

func (p *MemoryPort) FindByAccount(_ context.Context, account ledger.AccountRef) (*Profile, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	profile, ok := p.profiles[account]
	if !ok {
		return nil, nil
	}
	return &profile, nil
}

func (p *MemoryPort) Save(_ context.Context, profile Profile) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.profiles[profile.Account] = profile
	return nil
}
