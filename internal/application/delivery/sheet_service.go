package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pharmaerp/backend/internal/domain/delivery"
	"github.com/pharmaerp/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// SheetService handles delivery sheet operations
type SheetService struct {
	sheetRepo delivery.DeliverySheetRepository
	groupRepo delivery.InvoiceGroupRepository
	logRepo   delivery.ShortReturnLogRepository
	groupAgg  *InvoiceGroupAggregator
	sheetAgg  *SheetAggregator
	notifier  shared.Notifier
	logger    *zap.Logger
	now       func() time.Time
}

// NewSheetService creates a new SheetService
func NewSheetService(
	sheetRepo delivery.DeliverySheetRepository,
	groupRepo delivery.InvoiceGroupRepository,
	logRepo delivery.ShortReturnLogRepository,
	groupAgg *InvoiceGroupAggregator,
	sheetAgg *SheetAggregator,
	logger *zap.Logger,
) *SheetService {
	return &SheetService{
		sheetRepo: sheetRepo,
		groupRepo: groupRepo,
		logRepo:   logRepo,
		groupAgg:  groupAgg,
		sheetAgg:  sheetAgg,
		logger:    logger,
		now:       time.Now,
	}
}

// SetNotifier sets the notifier for sheet lifecycle messages
func (s *SheetService) SetNotifier(n shared.Notifier) {
	s.notifier = n
}

// Generate builds a top sheet over the given invoice groups: one item per
// organization, one link per invoice group.
func (s *SheetService) Generate(ctx context.Context, tenantID, userID uuid.UUID, req GenerateSheetRequest) (*DeliverySheetResponse, error) {
	groupIDs := uniqueIDs(req.InvoiceGroupIDs)
	groups, err := s.groupRepo.FindByIDs(ctx, tenantID, groupIDs)
	if err != nil {
		return nil, err
	}
	if len(groups) != len(groupIDs) {
		return nil, shared.NewDomainError(shared.CodeNotFound, "one or more invoice groups were not found")
	}

	sheet, err := delivery.NewTopSheet(tenantID, req.Name, req.Alias, req.SheetDate, req.ResponsibleCourierID, req.QueryFilters)
	if err != nil {
		return nil, err
	}
	sheet.SetCreatedBy(userID)

	byID := make(map[uuid.UUID]*delivery.InvoiceGroup, len(groups))
	for _, g := range groups {
		byID[g.ID] = g
	}
	itemsByOrg := make(map[uuid.UUID]*delivery.DeliverySheetItem)
	var items []*delivery.DeliverySheetItem
	links := make([]*delivery.DeliverySheetLink, 0, len(groupIDs))
	for _, id := range groupIDs {
		group := byID[id]
		item, ok := itemsByOrg[group.OrganizationID]
		if !ok {
			item = &delivery.DeliverySheetItem{
				ID:             uuid.New(),
				TenantID:       tenantID,
				TopSheetID:     sheet.ID,
				OrganizationID: group.OrganizationID,
				Status:         delivery.SheetStatusActive,
			}
			itemsByOrg[group.OrganizationID] = item
			items = append(items, item)
		}
		links = append(links, &delivery.DeliverySheetLink{
			ID:             uuid.New(),
			TenantID:       tenantID,
			ItemID:         item.ID,
			InvoiceGroupID: group.ID,
			Status:         delivery.SheetStatusActive,
		})
	}

	if err := s.sheetRepo.CreateTopSheet(ctx, sheet, items, links); err != nil {
		return nil, err
	}
	if _, err := s.sheetAgg.Rebuild(ctx, sheet); err != nil {
		return nil, err
	}

	s.logger.Info("delivery sheet generated",
		zap.String("sheet_id", sheet.ID.String()),
		zap.String("alias", sheet.Alias),
		zap.Int("items", len(items)),
		zap.Int("invoice_groups", len(links)),
	)
	s.notify(ctx, shared.TopicSheetGenerated, sheet, map[string]any{"items": len(items)})

	response := ToDeliverySheetResponse(sheet)
	return &response, nil
}

// GetByID retrieves a sheet by ID
func (s *SheetService) GetByID(ctx context.Context, tenantID, sheetID uuid.UUID) (*DeliverySheetResponse, error) {
	sheet, err := s.sheetRepo.FindByIDForTenant(ctx, tenantID, sheetID)
	if err != nil {
		return nil, err
	}
	response := ToDeliverySheetResponse(sheet)
	return &response, nil
}

// Info aggregates the sheet at query time without consulting its caches
func (s *SheetService) Info(ctx context.Context, tenantID, sheetID uuid.UUID) (*delivery.SheetInfo, error) {
	sheet, err := s.sheetRepo.FindByIDForTenant(ctx, tenantID, sheetID)
	if err != nil {
		return nil, err
	}
	src, err := s.sheetRepo.LoadSource(ctx, sheet)
	if err != nil {
		return nil, err
	}
	info := src.Info()
	return &info, nil
}

// ApproveShortReturns activates every DRAFT log reachable from the sheet in
// one transaction, which also queues one cascade task per invoice group and
// kind. Rollups are refreshed right after commit; when that fails the queued
// tasks bring them up to date.
func (s *SheetService) ApproveShortReturns(ctx context.Context, tenantID, sheetID, approvedBy uuid.UUID) (*ApprovalResponse, error) {
	sheet, err := s.sheetRepo.FindByIDForTenant(ctx, tenantID, sheetID)
	if err != nil {
		return nil, err
	}
	if !sheet.IsActive() {
		return nil, delivery.ErrSheetInactive
	}
	src, err := s.sheetRepo.LoadSource(ctx, sheet)
	if err != nil {
		return nil, err
	}

	drafts := src.DraftLogs()
	if len(drafts) == 0 {
		return &ApprovalResponse{HasDraft: false, Summary: src.Buckets(nil)}, nil
	}

	now := s.now()
	type target struct {
		group uuid.UUID
		kind  delivery.ShortReturnKind
	}
	queued := make(map[target]struct{})
	var events []shared.DomainEvent
	for _, log := range drafts {
		if err := log.Approve(approvedBy, now); err != nil {
			return nil, fmt.Errorf("approve log %s: %w", log.ID, err)
		}
		raised := log.PullDomainEvents()
		key := target{group: log.InvoiceGroupID, kind: log.Kind}
		if _, ok := queued[key]; ok {
			continue
		}
		queued[key] = struct{}{}
		events = append(events, raised...)
	}
	if err := s.logRepo.SaveAllWithLockAndEvents(ctx, drafts, events); err != nil {
		return nil, err
	}

	s.logger.Info("short/return logs approved by sheet",
		zap.String("sheet_id", sheet.ID.String()),
		zap.Int("approved", len(drafts)),
	)

	s.refreshAfterApproval(ctx, tenantID, drafts)

	return &ApprovalResponse{
		HasDraft:      true,
		ApprovedCount: len(drafts),
		Summary:       src.Buckets(drafts),
	}, nil
}

func (s *SheetService) refreshAfterApproval(ctx context.Context, tenantID uuid.UUID, approved []*delivery.ShortReturnLog) {
	kindsByGroup := make(map[uuid.UUID][]delivery.ShortReturnKind)
	var groupIDs []uuid.UUID
	for _, log := range approved {
		kinds, seen := kindsByGroup[log.InvoiceGroupID]
		if !seen {
			groupIDs = append(groupIDs, log.InvoiceGroupID)
		}
		if !containsKind(kinds, log.Kind) {
			kindsByGroup[log.InvoiceGroupID] = append(kinds, log.Kind)
		}
	}

	for _, groupID := range groupIDs {
		if _, _, err := s.groupAgg.RecomputeSilently(ctx, tenantID, groupID, kindsByGroup[groupID]...); err != nil {
			s.logger.Error("failed to recompute invoice group after approval",
				zap.String("invoice_group_id", groupID.String()),
				zap.Error(err),
			)
		}
	}
	if _, err := s.sheetAgg.RebuildForInvoiceGroups(ctx, tenantID, groupIDs); err != nil {
		s.logger.Error("failed to rebuild sheets after approval", zap.Error(err))
	}
}

// DestroySheet retires a sheet. A sub-sheet releases its items; a top sheet
// retires its items and every sub-sheet split from it. Nothing is deleted.
func (s *SheetService) DestroySheet(ctx context.Context, tenantID, sheetID uuid.UUID) error {
	sheet, err := s.sheetRepo.FindByIDForTenant(ctx, tenantID, sheetID)
	if err != nil {
		return err
	}

	if err := sheet.Deactivate(s.now()); err != nil {
		return err
	}
	if err := s.sheetRepo.Destroy(ctx, sheet); err != nil {
		return err
	}

	s.logger.Info("delivery sheet destroyed",
		zap.String("sheet_id", sheet.ID.String()),
		zap.String("type", string(sheet.Type)),
	)
	s.notify(ctx, shared.TopicSheetDestroyed, sheet, nil)
	return nil
}

func (s *SheetService) notify(ctx context.Context, topic string, sheet *delivery.DeliverySheet, fields map[string]any) {
	if s.notifier == nil {
		return
	}
	if fields == nil {
		fields = make(map[string]any)
	}
	fields["sheet_id"] = sheet.ID.String()
	fields["alias"] = sheet.Alias
	err := s.notifier.Notify(ctx, shared.Notification{
		Topic:    topic,
		TenantID: sheet.TenantID,
		Subject:  sheet.Name,
		Fields:   fields,
	})
	if err != nil {
		s.logger.Warn("failed to send sheet notification", zap.String("topic", topic), zap.Error(err))
	}
}

func containsKind(kinds []delivery.ShortReturnKind, kind delivery.ShortReturnKind) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
