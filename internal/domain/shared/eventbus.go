package shared

import "context"

// EventHandler handles domain events
type EventHandler interface {
	// Handle processes a domain event. A non-nil error asks the caller to retry.
	Handle(ctx context.Context, event DomainEvent) error
	// EventTypes returns the event types this handler is interested in
	EventTypes() []string
}

// EventDispatcher routes one event to every subscribed handler and reports failures
type EventDispatcher interface {
	Dispatch(ctx context.Context, event DomainEvent) error
}

// OutboxEventSaver saves domain events to the outbox table within a transaction.
// Repositories use it to write cascade tasks atomically with the aggregate.
type OutboxEventSaver interface {
	// SaveEvents saves domain events within the current transaction.
	// The txProvider should be a *gorm.DB transaction.
	SaveEvents(ctx context.Context, txProvider any, events ...DomainEvent) error
}
