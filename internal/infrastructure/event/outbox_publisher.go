package event

import (
	"context"
	"fmt"

	"github.com/pharmaerp/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// OutboxPublisher writes cascade tasks to the outbox inside the caller's transaction
type OutboxPublisher struct {
	serializer *EventSerializer
	policy     shared.RetryPolicy
}

// NewOutboxPublisher creates a new outbox publisher. Every entry it writes
// carries policy as its retry budget.
func NewOutboxPublisher(serializer *EventSerializer, policy shared.RetryPolicy) *OutboxPublisher {
	return &OutboxPublisher{
		serializer: serializer,
		policy:     policy,
	}
}

// PublishWithTx writes events to the outbox within the provided transaction,
// so the tasks commit or roll back together with the aggregate
func (p *OutboxPublisher) PublishWithTx(ctx context.Context, tx *gorm.DB, events ...shared.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}

	entries := make([]*shared.OutboxEntry, 0, len(events))
	for _, event := range events {
		payload, err := p.serializer.Serialize(event)
		if err != nil {
			return err
		}
		entries = append(entries, shared.NewOutboxEntry(event, payload, p.policy))
	}
	return NewGormOutboxRepository(tx).Save(ctx, entries...)
}

// SaveEvents implements shared.OutboxEventSaver
func (p *OutboxPublisher) SaveEvents(ctx context.Context, txProvider any, events ...shared.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx, ok := txProvider.(*gorm.DB)
	if !ok {
		return fmt.Errorf("txProvider must be a *gorm.DB, got %T", txProvider)
	}
	return p.PublishWithTx(ctx, tx, events...)
}

var _ shared.OutboxEventSaver = (*OutboxPublisher)(nil)
