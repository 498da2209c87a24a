package shared

import (
	"context"

	"github.com/google/uuid"
)

// Notification is a best-effort message for operators
type Notification struct {
	Topic    string         `json:"topic"`
	TenantID uuid.UUID      `json:"tenant_id"`
	Subject  string         `json:"subject"`
	Fields   map[string]any `json:"fields,omitempty"`
}

// Notifier delivers notifications. Implementations must not block the caller
// on delivery failures; errors are reported for logging only.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Notification topics
const (
	TopicSheetGenerated   = "delivery_sheet.generated"
	TopicSheetDestroyed   = "delivery_sheet.destroyed"
	TopicSubSheetCreated  = "sub_sheet.created"
	TopicLargeDiscount    = "invoice_group.large_discount"
	TopicMismatchRepaired = "delivery_sheet.mismatch_repaired"
)
