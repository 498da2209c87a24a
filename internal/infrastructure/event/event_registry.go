package event

import "github.com/pharmaerp/backend/internal/domain/delivery"

// RegisterDeliveryEvents registers the cascade events with the serializer.
// The outbox processor cannot decode a row whose type is missing here.
func RegisterDeliveryEvents(serializer *EventSerializer) {
	serializer.Register(
		&delivery.ShortReturnLogCreatedEvent{},
		&delivery.ShortReturnLogStatusChangedEvent{},
		&delivery.InvoiceGroupTotalsRecomputedEvent{},
	)
}
