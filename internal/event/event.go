// Package event carries domain events out of command handlers. Status
// cascades use an explicit synchronous dispatcher so a handler failure
// aborts the triggering change; the publisher is the fire-and-forget
// outbound side for downstream systems.
package event

import (
	"context"
	"log/slog"
	"time"

	"github.com/kori-finance/kori/internal/actor"
	"github.com/kori-finance/kori/internal/status"
)

// StatusChanged is published after an actor status-update command
// commits.
type StatusChanged struct {
	Kind       actor.Kind
	ActorRef   string
	Before     status.Status
	After      status.Status
	Reason     string
	OccurredAt time.Time
}

// Unchanged reports a no-op event handlers must ignore.
func (e StatusChanged) Unchanged() bool {
	return e.Before == e.After
}

// TransactionCommitted is published after a posting commits.
type TransactionCommitted struct {
	TransactionID string
	Type          string
	Amount        string
	OccurredAt    time.Time
}

// Publisher delivers events to downstream systems.
type Publisher interface {
	Publish(ctx context.Context, evt any) error
}

// LoggerPublisher writes events to the structured logger. It stands in
// for a broker in tests and local runs.
type LoggerPublisher struct {
	logger *slog.Logger
}

// NewLoggerPublisher constructs a logging publisher.
func NewLoggerPublisher(logger *slog.Logger) *LoggerPublisher {
	return &LoggerPublisher{logger: logger}
}

// Publish writes the event to the logger.
func (p *LoggerPublisher) Publish(_ context.Context, evt any) error {
	if p == nil || p.logger == nil {
		return nil
	}
	p.logger.Info("domain event", slog.Any("event", evt))
	return nil
}

// CascadeHandler propagates an actor status change to dependent
// aggregates. Handlers run synchronously inside the same unit of work as
// the status change, so an error here rolls the change back.
type CascadeHandler interface {
	Handle(ctx context.Context, evt StatusChanged) error
}

// Dispatcher invokes registered cascade handlers in order, stopping at
// the first error.
type Dispatcher struct {
	handlers []CascadeHandler
}

// NewDispatcher registers the cascade handlers.
func NewDispatcher(handlers ...CascadeHandler) *Dispatcher {
	return &Dispatcher{handlers: handlers}
}

// Dispatch runs every handler against the event.
func (d *Dispatcher) Dispatch(ctx context.Context, evt StatusChanged) error {
	for _, h := range d.handlers {
		if err := h.Handle(ctx, evt); err != nil {
			return err
		}
	}
	return nil
}
