package actor

import (
	"context"
	"sync"
)

// MemoryAgents is an in-memory agent store for tests.
type MemoryAgents struct {
	mu     sync.RWMutex
	agents map[string]Agent
}

func NewMemoryAgents() *MemoryAgents {
	return &MemoryAgents{agents: make(map[string]Agent)}
}

func (r *MemoryAgents) FindByRef(_ context.Context, ref string) (Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[ref]
	if !ok {
		return Agent{}, ErrAgentNotFound
	}
	return a, nil
}

func (r *MemoryAgents) Save(_ context.Context, agent Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[agent.Ref] = agent
	return nil
}

// MemoryMerchants is an in-memory merchant store for tests.
type MemoryMerchants struct {
	mu        sync.RWMutex
	merchants map[string]Merchant
}

func NewMemoryMerchants() *MemoryMerchants {
	return &MemoryMerchants{merchants: make(map[string]Merchant)}
}

func (r *MemoryMerchants) FindByRef(_ context.Context, ref string) (Merchant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.merchants[ref]
	if !ok {
		return Merchant{}, ErrMerchantNotFound
	}
	return m, nil
}

func (r *MemoryMerchants) Save(_ context.Context, merchant Merchant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.merchants[merchant.Ref] = merchant
	return nil
}

// MemoryClients is an in-memory client store for tests.
type MemoryClients struct {
	mu      sync.RWMutex
	clients map[string]Client
}

func NewMemoryClients() *MemoryClients {
	return &MemoryClients{clients: make(map[string]Client)}
}

func (r *MemoryClients) FindByRef(_ context.Context, ref string) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[ref]
	if !ok {
		return Client{}, ErrClientNotFound
	}
	return c, nil
}

func (r *MemoryClients) Save(_ context.Context, client Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[client.Ref] = client
	return nil
}

// MemoryAdmins is an in-memory admin store for tests.
type MemoryAdmins struct {
	mu     sync.RWMutex
	admins map[string]Admin
}

func NewMemoryAdmins() *MemoryAdmins {
	return &MemoryAdmins{admins: make(map[string]Admin)}
}

func (r *MemoryAdmins) FindByRef(_ context.Context, ref string) (Admin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.admins[ref]
	if !ok {
		return Admin{}, ErrAdminNotFound
	}
	return a, nil
}

func (r *MemoryAdmins) Save(_ context.Context, admin Admin) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.admins[admin.Ref] = admin
	return nil
}

// MemoryTerminals is an in-memory terminal store for tests.
type MemoryTerminals struct {
	mu        sync.RWMutex
	terminals map[string]Terminal
}

func NewMemoryTerminals() *MemoryTerminals {
	return &MemoryTerminals{terminals: make(map[string]Terminal)}
}

func (r *MemoryTerminals) FindByRef(_ context.Context, ref string) (Terminal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.terminals[ref]
	if !ok {
		return Terminal{}, ErrTerminalNotFound
	}
	return t, nil
}

func (r *MemoryTerminals) FindByMerchant(_ context.Context, merchantRef string) ([]Terminal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Terminal
	for _, t := range r.terminals {
		if t.MerchantRef == merchantRef {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *MemoryTerminals) Save(_ context.Context, terminal Terminal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.terminals[terminal.Ref] = terminal
	return nil
}
