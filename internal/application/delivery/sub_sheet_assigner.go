package delivery

import (
	"context"

	"github.com/google/uuid"
	"github.com/pharmaerp/backend/internal/domain/delivery"
	"github.com/pharmaerp/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// SubSheetAssigner splits top sheet items off to courier sub-sheets
type SubSheetAssigner struct {
	sheetRepo   delivery.DeliverySheetRepository
	courierRepo delivery.CourierRepository
	orgRepo     delivery.OrganizationRepository
	sheetAgg    *SheetAggregator
	notifier    shared.Notifier
	logger      *zap.Logger
}

// NewSubSheetAssigner creates a new SubSheetAssigner
func NewSubSheetAssigner(
	sheetRepo delivery.DeliverySheetRepository,
	courierRepo delivery.CourierRepository,
	orgRepo delivery.OrganizationRepository,
	sheetAgg *SheetAggregator,
	logger *zap.Logger,
) *SubSheetAssigner {
	return &SubSheetAssigner{
		sheetRepo:   sheetRepo,
		courierRepo: courierRepo,
		orgRepo:     orgRepo,
		sheetAgg:    sheetAgg,
		logger:      logger,
	}
}

// SetNotifier sets the notifier for sub-sheet creation
func (a *SubSheetAssigner) SetNotifier(n shared.Notifier) {
	a.notifier = n
}

// Assign moves the selected items of a top sheet onto the courier's sub-sheet
// for the sheet date, creating it on first use. Repeated calls for the same
// courier accumulate items on the same sub-sheet.
func (a *SubSheetAssigner) Assign(ctx context.Context, tenantID, topSheetID uuid.UUID, req AssignSubSheetRequest) (*SubSheetResponse, error) {
	top, err := a.sheetRepo.FindByIDForTenant(ctx, tenantID, topSheetID)
	if err != nil {
		return nil, err
	}
	if !top.IsActive() {
		return nil, delivery.ErrSheetInactive
	}
	if !top.IsTopSheet() {
		return nil, shared.NewValidationError("sub-sheets can only be split from a top sheet")
	}

	courier, err := a.courierRepo.FindByIDForTenant(ctx, tenantID, req.CourierID)
	if err != nil {
		return nil, err
	}
	if !courier.IsAssignable() {
		return nil, delivery.ErrCourierUnavailable
	}

	orgIDs := req.OrganizationIDs
	if len(orgIDs) == 0 {
		if orgIDs, err = a.orgRepo.FindIDsByPrimaryResponsible(ctx, tenantID, courier.ID); err != nil {
			return nil, err
		}
	}
	candidates, err := a.candidates(ctx, tenantID, top.ID, orgIDs)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, delivery.ErrNoDeliveryItems
	}

	proposed, err := top.NewSubSheetFor(courier)
	if err != nil {
		return nil, err
	}
	sub, created, err := a.sheetRepo.FindOrCreateSubSheet(ctx, top, proposed)
	if err != nil {
		return nil, err
	}
	if !sub.IsActive() {
		return nil, delivery.ErrSheetInactive
	}

	itemIDs := make([]uuid.UUID, len(candidates))
	var previous []uuid.UUID
	seen := make(map[uuid.UUID]struct{})
	for i, item := range candidates {
		itemIDs[i] = item.ID
		if item.SubSheetID == nil || *item.SubSheetID == sub.ID {
			continue
		}
		if _, ok := seen[*item.SubSheetID]; !ok {
			seen[*item.SubSheetID] = struct{}{}
			previous = append(previous, *item.SubSheetID)
		}
	}
	if err := a.sheetRepo.AssignItems(ctx, tenantID, itemIDs, sub.ID); err != nil {
		return nil, err
	}

	if _, err := a.sheetAgg.Rebuild(ctx, sub); err != nil {
		return nil, err
	}
	for _, id := range previous {
		old, err := a.sheetRepo.FindByIDForTenant(ctx, tenantID, id)
		if err != nil {
			return nil, err
		}
		if _, err := a.sheetAgg.Rebuild(ctx, old); err != nil {
			return nil, err
		}
	}

	a.logger.Info("items assigned to sub-sheet",
		zap.String("top_sheet_id", top.ID.String()),
		zap.String("sub_sheet_id", sub.ID.String()),
		zap.String("courier_id", courier.ID.String()),
		zap.Bool("created", created),
		zap.Int("items", len(itemIDs)),
	)
	if created {
		a.notify(ctx, sub, courier)
	}

	return &SubSheetResponse{
		Sheet:         ToDeliverySheetResponse(sub),
		Created:       created,
		AssignedItems: len(itemIDs),
	}, nil
}

func (a *SubSheetAssigner) candidates(ctx context.Context, tenantID, topSheetID uuid.UUID, orgIDs []uuid.UUID) ([]*delivery.DeliverySheetItem, error) {
	if len(orgIDs) == 0 {
		return nil, nil
	}
	wanted := make(map[uuid.UUID]struct{}, len(orgIDs))
	for _, id := range orgIDs {
		wanted[id] = struct{}{}
	}
	items, err := a.sheetRepo.FindItems(ctx, tenantID, topSheetID)
	if err != nil {
		return nil, err
	}
	var out []*delivery.DeliverySheetItem
	for _, item := range items {
		if _, ok := wanted[item.OrganizationID]; ok {
			out = append(out, item)
		}
	}
	return out, nil
}

func (a *SubSheetAssigner) notify(ctx context.Context, sub *delivery.DeliverySheet, courier *delivery.Courier) {
	if a.notifier == nil {
		return
	}
	err := a.notifier.Notify(ctx, shared.Notification{
		Topic:    shared.TopicSubSheetCreated,
		TenantID: sub.TenantID,
		Subject:  sub.Name,
		Fields: map[string]any{
			"sheet_id":   sub.ID.String(),
			"alias":      sub.Alias,
			"courier_id": courier.ID.String(),
			"courier":    courier.Name,
		},
	})
	if err != nil {
		a.logger.Warn("failed to send sub-sheet notification", zap.Error(err))
	}
}
