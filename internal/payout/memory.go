package payout

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryRepository is the in-memory payout store used in tests.
type MemoryRepository struct {
	mu      sync.RWMutex
	payouts map[uuid.UUID]Payout
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{payouts: make(map[uuid.UUID]Payout)}
}

func (r *MemoryRepository) FindByID(_ context.Context, id uuid.UUID) (Payout, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.payouts[id]
	if !ok {
		return Payout{}, ErrPayoutNotFound
	}
	return p, nil
}

func (r *MemoryRepository) Save(_ context.Context, payout Payout) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payouts[payout.ID] = payout
	return nil
}

func (r *MemoryRepository) ExistsRequestedForAgent(_ context.Context, agentRef string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.payouts {
		if p.AgentRef == agentRef && p.Status == StatusRequested {
			return true, nil
		}
	}
	return false, nil
}

// MemoryRefundRepository is the in-memory refund store used in tests.
type MemoryRefundRepository struct {
	mu      sync.RWMutex
	refunds map[uuid.UUID]ClientRefund
}

func NewMemoryRefundRepository() *MemoryRefundRepository {
	return &MemoryRefundRepository{refunds: make(map[uuid.UUID]ClientRefund)}
}

func (r *MemoryRefundRepository) FindByID(_ context.Context, id uuid.UUID) (ClientRefund, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	refund, ok := r.refunds[id]
	if !ok {
		return ClientRefund{}, ErrRefundNotFound
	}
	return refund, nil
}

func (r *MemoryRefundRepository) Save(_ context.Context, refund ClientRefund) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refunds[refund.ID] = refund
	return nil
}

func (r *MemoryRefundRepository) ExistsRequestedForClient(_ context.Context, clientRef string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, refund := range r.refunds {
		if refund.ClientRef == clientRef && refund.Status == StatusRequested {
			return true, nil
		}
	}
	return false, nil
}
