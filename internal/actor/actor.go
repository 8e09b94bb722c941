// Package actor holds the people and devices moving money: agents,
// merchants, clients, admins and merchant terminals. Each aggregate
// carries the shared lifecycle status and mutates it only through named
// verbs.
package actor

import (
	"context"
	"time"

	"github.com/kori-finance/kori/internal/fault"
	"github.com/kori-finance/kori/internal/status"
)

// Kind names an actor aggregate in status-change events.
type Kind string

const (
	KindAgent    Kind = "AGENT"
	KindMerchant Kind = "MERCHANT"
	KindClient   Kind = "CLIENT"
	KindAdmin    Kind = "ADMIN"
	KindTerminal Kind = "TERMINAL"
)

// Agent operates cash-in/cash-out points and holds a wallet plus a cash
// clearing account.
type Agent struct {
	Ref       string
	Name      string
	Phone     string
	Status    status.Status
	CreatedAt time.Time
}

func (a *Agent) Suspend() error  { return transition(&a.Status, status.Suspended) }
func (a *Agent) Activate() error { return transition(&a.Status, status.Active) }
func (a *Agent) Close() error    { return transition(&a.Status, status.Closed) }

// Merchant accepts card payments through its terminals.
type Merchant struct {
	Ref       string
	Name      string
	Status    status.Status
	CreatedAt time.Time
}

func (m *Merchant) Suspend() error  { return transition(&m.Status, status.Suspended) }
func (m *Merchant) Activate() error { return transition(&m.Status, status.Active) }
func (m *Merchant) Close() error    { return transition(&m.Status, status.Closed) }

// Client owns a wallet account and zero or more cards.
type Client struct {
	Ref       string
	Phone     string
	Status    status.Status
	CreatedAt time.Time
}

func (c *Client) Suspend() error  { return transition(&c.Status, status.Suspended) }
func (c *Client) Activate() error { return transition(&c.Status, status.Active) }
func (c *Client) Close() error    { return transition(&c.Status, status.Closed) }

// Admin operates back-office commands.
type Admin struct {
	Ref       string
	Name      string
	Status    status.Status
	CreatedAt time.Time
}

func (a *Admin) Suspend() error  { return transition(&a.Status, status.Suspended) }
func (a *Admin) Activate() error { return transition(&a.Status, status.Active) }
func (a *Admin) Close() error    { return transition(&a.Status, status.Closed) }

// Terminal is a merchant's card-acceptance device.
type Terminal struct {
	Ref         string
	MerchantRef string
	Status      status.Status
	CreatedAt   time.Time
}

func (t *Terminal) Suspend() error  { return transition(&t.Status, status.Suspended) }
func (t *Terminal) Activate() error { return transition(&t.Status, status.Active) }
func (t *Terminal) Close() error    { return transition(&t.Status, status.Closed) }

func transition(s *status.Status, to status.Status) error {
	next, err := status.Transition(*s, to)
	if err != nil {
		return err
	}
	*s = next
	return nil
}

var (
	ErrAgentNotFound    = fault.Missing("agent_not_found", nil)
	ErrMerchantNotFound = fault.Missing("merchant_not_found", nil)
	ErrClientNotFound   = fault.Missing("client_not_found", nil)
	ErrAdminNotFound    = fault.Missing("admin_not_found", nil)
	ErrTerminalNotFound = fault.Missing("terminal_not_found", nil)
)

// AgentRepository persists agents.
type AgentRepository interface {
	FindByRef(ctx context.Context, ref string) (Agent, error)
	Save(ctx context.Context, agent Agent) error
}

// MerchantRepository persists merchants.
type MerchantRepository interface {
	FindByRef(ctx context.Context, ref string) (Merchant, error)
	Save(ctx context.Context, merchant Merchant) error
}

// ClientRepository persists clients.
type ClientRepository interface {
	FindByRef(ctx context.Context, ref string) (Client, error)
	Save(ctx context.Context, client Client) error
}

// AdminRepository persists admins.
type AdminRepository interface {
	FindByRef(ctx context.Context, ref string) (Admin, error)
	Save(ctx context.Context, admin Admin) error
}

// TerminalRepository persists terminals.
type TerminalRepository interface {
	FindByRef(ctx context.Context, ref string) (Terminal, error)
	FindByMerchant(ctx context.Context, merchantRef string) ([]Terminal, error)
	Save(ctx context.Context, terminal Terminal) error
}
