package delivery

import (
	"context"
	"errors"
	"fmt"

	"github.com/pharmaerp/backend/internal/domain/delivery"
	"github.com/pharmaerp/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// InvoiceGroupCascadeHandler recomputes the invoice group of a created or
// transitioned short/return log
type InvoiceGroupCascadeHandler struct {
	aggregator *InvoiceGroupAggregator
	logger     *zap.Logger
}

// NewInvoiceGroupCascadeHandler creates a new InvoiceGroupCascadeHandler
func NewInvoiceGroupCascadeHandler(aggregator *InvoiceGroupAggregator, logger *zap.Logger) *InvoiceGroupCascadeHandler {
	return &InvoiceGroupCascadeHandler{
		aggregator: aggregator,
		logger:     logger,
	}
}

// EventTypes returns the event types this handler is interested in
func (h *InvoiceGroupCascadeHandler) EventTypes() []string {
	return []string{
		delivery.EventTypeShortReturnLogCreated,
		delivery.EventTypeShortReturnLogStatusChanged,
	}
}

// Handle recomputes the rollup the event points at. Errors are returned so
// the outbox retries the task.
func (h *InvoiceGroupCascadeHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	trigger, ok := event.(delivery.InvoiceGroupTrigger)
	if !ok {
		h.logger.Error("unexpected event type",
			zap.String("event_type", event.EventType()),
			zap.String("event_id", event.EventID().String()),
		)
		return fmt.Errorf("unexpected event type: %s", event.EventType())
	}

	groupID, kind := trigger.TargetInvoiceGroup()
	if _, err := h.aggregator.Recompute(ctx, event.TenantID(), groupID, kind); err != nil {
		h.logger.Warn("invoice group cascade failed",
			zap.String("event_id", event.EventID().String()),
			zap.String("invoice_group_id", groupID.String()),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// DeliverySheetCascadeHandler pushes a recomputed invoice group down to every
// sheet that links it
type DeliverySheetCascadeHandler struct {
	sheetRepo  delivery.DeliverySheetRepository
	aggregator *SheetAggregator
	logger     *zap.Logger
}

// NewDeliverySheetCascadeHandler creates a new DeliverySheetCascadeHandler
func NewDeliverySheetCascadeHandler(sheetRepo delivery.DeliverySheetRepository, aggregator *SheetAggregator, logger *zap.Logger) *DeliverySheetCascadeHandler {
	return &DeliverySheetCascadeHandler{
		sheetRepo:  sheetRepo,
		aggregator: aggregator,
		logger:     logger,
	}
}

// EventTypes returns the event types this handler is interested in
func (h *DeliverySheetCascadeHandler) EventTypes() []string {
	return []string{delivery.EventTypeInvoiceGroupTotalsRecomputed}
}

// Handle refreshes each active link of the invoice group. Every link is
// attempted; the joined errors trigger a retry of the whole task, which is
// safe because each step overwrites from its source.
func (h *DeliverySheetCascadeHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	recomputed, ok := event.(*delivery.InvoiceGroupTotalsRecomputedEvent)
	if !ok {
		return fmt.Errorf("unexpected event type: %s", event.EventType())
	}

	links, err := h.sheetRepo.FindActiveLinksByInvoiceGroup(ctx, event.TenantID(), recomputed.InvoiceGroupID)
	if err != nil {
		return err
	}

	var errs []error
	for _, link := range links {
		if _, err := h.aggregator.RecomputeForLink(ctx, event.TenantID(), link.ID, recomputed.Kind); err != nil {
			h.logger.Warn("delivery sheet cascade failed",
				zap.String("event_id", event.EventID().String()),
				zap.String("link_id", link.ID.String()),
				zap.Error(err),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ shared.EventHandler = (*InvoiceGroupCascadeHandler)(nil)
	_ shared.EventHandler = (*DeliverySheetCascadeHandler)(nil)
)
