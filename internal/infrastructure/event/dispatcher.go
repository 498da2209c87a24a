package event

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pharmaerp/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// Dispatcher routes an event to every handler subscribed to its type. Unlike
// a fire-and-forget bus it reports handler failures, so the outbox can retry.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string][]shared.EventHandler
	logger   *zap.Logger
}

// NewDispatcher creates a new Dispatcher
func NewDispatcher(logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string][]shared.EventHandler),
		logger:   logger,
	}
}

// Subscribe registers a handler for the event types it declares
func (d *Dispatcher) Subscribe(handler shared.EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, eventType := range handler.EventTypes() {
		d.handlers[eventType] = append(d.handlers[eventType], handler)
	}
	d.logger.Debug("handler subscribed", zap.Strings("event_types", handler.EventTypes()))
}

// HasHandlers reports whether anything is subscribed to eventType
func (d *Dispatcher) HasHandlers(eventType string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers[eventType]) > 0
}

// Dispatch runs every handler of the event's type in registration order. All
// handlers run even if one fails; their errors are joined.
func (d *Dispatcher) Dispatch(ctx context.Context, event shared.DomainEvent) error {
	d.mu.RLock()
	handlers := append([]shared.EventHandler(nil), d.handlers[event.EventType()]...)
	d.mu.RUnlock()

	var errs []error
	for _, handler := range handlers {
		if err := d.invoke(ctx, handler, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) invoke(ctx context.Context, handler shared.EventHandler, event shared.DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("handler panicked",
				zap.String("event_type", event.EventType()),
				zap.String("event_id", event.EventID().String()),
				zap.Any("panic", r),
			)
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler.Handle(ctx, event)
}

var _ shared.EventDispatcher = (*Dispatcher)(nil)
