package delivery

import (
	"github.com/google/uuid"
	"github.com/pharmaerp/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Aggregate type names
const (
	AggregateTypeShortReturnLog = "ShortReturnLog"
	AggregateTypeInvoiceGroup   = "InvoiceGroup"
)

// Event type constants
const (
	EventTypeShortReturnLogCreated        = "ShortReturnLogCreated"
	EventTypeShortReturnLogStatusChanged  = "ShortReturnLogStatusChanged"
	EventTypeInvoiceGroupTotalsRecomputed = "InvoiceGroupTotalsRecomputed"
)

// InvoiceGroupTrigger is implemented by events that require an invoice group recompute
type InvoiceGroupTrigger interface {
	shared.DomainEvent
	TargetInvoiceGroup() (uuid.UUID, ShortReturnKind)
}

// ShortReturnLogCreatedEvent is raised when a log is opened
type ShortReturnLogCreatedEvent struct {
	shared.BaseDomainEvent
	LogID          uuid.UUID         `json:"log_id"`
	OrderID        uuid.UUID         `json:"order_id"`
	InvoiceGroupID uuid.UUID         `json:"invoice_group_id"`
	Kind           ShortReturnKind   `json:"kind"`
	Status         ShortReturnStatus `json:"status"`
	Amount         decimal.Decimal   `json:"amount"`
	RoundDiscount  decimal.Decimal   `json:"round_discount"`
}

// NewShortReturnLogCreatedEvent creates the creation event for a log
func NewShortReturnLogCreatedEvent(l *ShortReturnLog) *ShortReturnLogCreatedEvent {
	return &ShortReturnLogCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeShortReturnLogCreated, AggregateTypeShortReturnLog, l.ID, l.TenantID),
		LogID:           l.ID,
		OrderID:         l.OrderID,
		InvoiceGroupID:  l.InvoiceGroupID,
		Kind:            l.Kind,
		Status:          l.Status,
		Amount:          l.Amount,
		RoundDiscount:   l.RoundDiscount,
	}
}

// EventType returns the event type name
func (e *ShortReturnLogCreatedEvent) EventType() string {
	return EventTypeShortReturnLogCreated
}

// TargetInvoiceGroup returns the invoice group and kind to recompute
func (e *ShortReturnLogCreatedEvent) TargetInvoiceGroup() (uuid.UUID, ShortReturnKind) {
	return e.InvoiceGroupID, e.Kind
}

// ShortReturnLogStatusChangedEvent is raised on every transition after creation
type ShortReturnLogStatusChangedEvent struct {
	shared.BaseDomainEvent
	LogID          uuid.UUID         `json:"log_id"`
	InvoiceGroupID uuid.UUID         `json:"invoice_group_id"`
	Kind           ShortReturnKind   `json:"kind"`
	FromStatus     ShortReturnStatus `json:"from_status"`
	ToStatus       ShortReturnStatus `json:"to_status"`
	ApprovedBy     *uuid.UUID        `json:"approved_by,omitempty"`
}

// NewShortReturnLogStatusChangedEvent creates a transition event for a log
func NewShortReturnLogStatusChangedEvent(l *ShortReturnLog, from ShortReturnStatus) *ShortReturnLogStatusChangedEvent {
	return &ShortReturnLogStatusChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeShortReturnLogStatusChanged, AggregateTypeShortReturnLog, l.ID, l.TenantID),
		LogID:           l.ID,
		InvoiceGroupID:  l.InvoiceGroupID,
		Kind:            l.Kind,
		FromStatus:      from,
		ToStatus:        l.Status,
		ApprovedBy:      l.ApprovedBy,
	}
}

// EventType returns the event type name
func (e *ShortReturnLogStatusChangedEvent) EventType() string {
	return EventTypeShortReturnLogStatusChanged
}

// TargetInvoiceGroup returns the invoice group and kind to recompute
func (e *ShortReturnLogStatusChangedEvent) TargetInvoiceGroup() (uuid.UUID, ShortReturnKind) {
	return e.InvoiceGroupID, e.Kind
}

// InvoiceGroupTotalsRecomputedEvent is raised after an invoice group rollup is
// rewritten; it drives the delivery sheet step of the cascade.
type InvoiceGroupTotalsRecomputedEvent struct {
	shared.BaseDomainEvent
	InvoiceGroupID uuid.UUID       `json:"invoice_group_id"`
	Kind           ShortReturnKind `json:"kind"`
	TotalShort     decimal.Decimal `json:"total_short"`
	TotalReturn    decimal.Decimal `json:"total_return"`
}

// NewInvoiceGroupTotalsRecomputedEvent creates the event for a recomputed group
func NewInvoiceGroupTotalsRecomputedEvent(g *InvoiceGroup, kind ShortReturnKind) *InvoiceGroupTotalsRecomputedEvent {
	return &InvoiceGroupTotalsRecomputedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceGroupTotalsRecomputed, AggregateTypeInvoiceGroup, g.ID, g.TenantID),
		InvoiceGroupID:  g.ID,
		Kind:            kind,
		TotalShort:      g.TotalShort,
		TotalReturn:     g.TotalReturn,
	}
}

// EventType returns the event type name
func (e *InvoiceGroupTotalsRecomputedEvent) EventType() string {
	return EventTypeInvoiceGroupTotalsRecomputed
}
