package card

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryRepository is an in-memory card store for tests.
type MemoryRepository struct {
	mu    sync.RWMutex
	cards map[uuid.UUID]Card
}

// NewMemoryRepository creates an empty in-memory card store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{cards: make(map[uuid.UUID]Card)}
}

func (r *MemoryRepository) FindByID(_ context.Context, id uuid.UUID) (Card, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.cards[id]
	if !ok {
		return Card{}, ErrCardNotFound
	}
	return c, nil
}

func (r *MemoryRepository) FindByUID(_ context.Context, cardUID string) (Card, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.cards {
		if c.CardUID == cardUID {
			return c, nil
		}
	}
	return Card{}, ErrCardNotFound
}

func (r *MemoryRepository) FindByClient(_ context.Context, clientRef string) ([]Card, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Card
	for _, c := range r.cards {
		if c.ClientRef == clientRef {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *MemoryRepository) Save(_ context.Context, card Card) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cards[card.ID] = card
	return nil
}
