package delivery

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/pharmaerp/backend/internal/domain/delivery"
	"go.uber.org/zap"
)

// SheetAggregator keeps link, item and sheet rollups in step with invoice groups
type SheetAggregator struct {
	sheetRepo delivery.DeliverySheetRepository
	logger    *zap.Logger
}

// NewSheetAggregator creates a new SheetAggregator
func NewSheetAggregator(sheetRepo delivery.DeliverySheetRepository, logger *zap.Logger) *SheetAggregator {
	return &SheetAggregator{
		sheetRepo: sheetRepo,
		logger:    logger,
	}
}

// RecomputeForLink mirrors the link's invoice group, refreshes its item for
// kind, then the top sheet and, when the item is assigned, its sub-sheet.
// Retired links, items and sheets are skipped.
func (a *SheetAggregator) RecomputeForLink(ctx context.Context, tenantID, linkID uuid.UUID, kind delivery.ShortReturnKind) (delivery.SheetChanges, error) {
	link, err := a.sheetRepo.FindLink(ctx, tenantID, linkID)
	if err != nil {
		return delivery.SheetChanges{}, err
	}
	if !link.IsActive() {
		return delivery.SheetChanges{}, nil
	}
	item, err := a.sheetRepo.FindItem(ctx, tenantID, link.ItemID)
	if err != nil {
		return delivery.SheetChanges{}, err
	}
	top, err := a.sheetRepo.FindByIDForTenant(ctx, tenantID, item.TopSheetID)
	if err != nil {
		return delivery.SheetChanges{}, err
	}
	if !top.IsActive() {
		return delivery.SheetChanges{}, nil
	}

	src, err := a.sheetRepo.LoadSource(ctx, top)
	if err != nil {
		return delivery.SheetChanges{}, fmt.Errorf("load sheet %s: %w", top.ID, err)
	}

	var changes delivery.SheetChanges
	if srcLink := src.Link(link.ID); srcLink != nil && src.RecomputeLink(srcLink, kind) {
		changes.Links = append(changes.Links, srcLink)
	}
	srcItem := src.Item(item.ID)
	if srcItem != nil && srcItem.IsActive() && src.RecomputeItem(srcItem, kind) {
		changes.Items = append(changes.Items, srcItem)
	}
	if top.ApplyTotals(src.ComputeTotals()) {
		changes.Sheets = append(changes.Sheets, top)
	}
	if err := a.save(ctx, changes); err != nil {
		return delivery.SheetChanges{}, err
	}

	if srcItem != nil && srcItem.SubSheetID != nil {
		sub, err := a.sheetRepo.FindByIDForTenant(ctx, tenantID, *srcItem.SubSheetID)
		if err != nil {
			return changes, fmt.Errorf("load sub-sheet %s: %w", *srcItem.SubSheetID, err)
		}
		if sub.IsActive() {
			subChanges, err := a.refreshTotals(ctx, sub)
			if err != nil {
				return changes, err
			}
			changes.Merge(subChanges)
		}
	}
	return changes, nil
}

// Rebuild recomputes every link, item and the totals of sheet from scratch and
// writes whatever changed.
func (a *SheetAggregator) Rebuild(ctx context.Context, sheet *delivery.DeliverySheet) (delivery.SheetChanges, error) {
	src, err := a.sheetRepo.LoadSource(ctx, sheet)
	if err != nil {
		return delivery.SheetChanges{}, fmt.Errorf("load sheet %s: %w", sheet.ID, err)
	}
	return a.RebuildSource(ctx, src)
}

// RebuildSource is Rebuild over an already loaded source. Rebuilding a
// sub-sheet rewrites item and link rows its top sheet sums, so the top sheet
// totals are refreshed afterwards.
func (a *SheetAggregator) RebuildSource(ctx context.Context, src *delivery.SheetSource) (delivery.SheetChanges, error) {
	changes := rebuild(src)
	if err := a.save(ctx, changes); err != nil {
		return delivery.SheetChanges{}, err
	}
	if src.Sheet.IsTopSheet() {
		return changes, nil
	}
	seen := make(map[uuid.UUID]struct{})
	for _, item := range src.Items {
		if _, ok := seen[item.TopSheetID]; ok {
			continue
		}
		seen[item.TopSheetID] = struct{}{}
		top, err := a.sheetRepo.FindByIDForTenant(ctx, src.Sheet.TenantID, item.TopSheetID)
		if err != nil {
			return changes, fmt.Errorf("load top sheet %s: %w", item.TopSheetID, err)
		}
		if !top.IsActive() {
			continue
		}
		topChanges, err := a.refreshTotals(ctx, top)
		if err != nil {
			return changes, err
		}
		changes.Merge(topChanges)
	}
	return changes, nil
}

// RebuildWithSubSheets rebuilds a top sheet and then each of its sub-sheets
func (a *SheetAggregator) RebuildWithSubSheets(ctx context.Context, top *delivery.DeliverySheet) (delivery.SheetChanges, error) {
	changes, err := a.Rebuild(ctx, top)
	if err != nil {
		return changes, err
	}
	if !top.IsTopSheet() {
		return changes, nil
	}
	subs, err := a.sheetRepo.FindSubSheets(ctx, top.TenantID, top.ID)
	if err != nil {
		return changes, fmt.Errorf("load sub-sheets of %s: %w", top.ID, err)
	}
	for _, sub := range subs {
		subChanges, err := a.Rebuild(ctx, sub)
		if err != nil {
			return changes, err
		}
		changes.Merge(subChanges)
	}
	return changes, nil
}

// RebuildForInvoiceGroups rebuilds every distinct sheet and sub-sheet that
// links one of the given invoice groups, each exactly once. Failures are
// collected so one broken sheet does not starve the others.
func (a *SheetAggregator) RebuildForInvoiceGroups(ctx context.Context, tenantID uuid.UUID, groupIDs []uuid.UUID) (delivery.SheetChanges, error) {
	var tops, subs []uuid.UUID
	seen := make(map[uuid.UUID]struct{})
	for _, groupID := range groupIDs {
		links, err := a.sheetRepo.FindActiveLinksByInvoiceGroup(ctx, tenantID, groupID)
		if err != nil {
			return delivery.SheetChanges{}, err
		}
		for _, link := range links {
			item, err := a.sheetRepo.FindItem(ctx, tenantID, link.ItemID)
			if err != nil {
				return delivery.SheetChanges{}, err
			}
			if _, ok := seen[item.TopSheetID]; !ok {
				seen[item.TopSheetID] = struct{}{}
				tops = append(tops, item.TopSheetID)
			}
			if item.SubSheetID != nil {
				if _, ok := seen[*item.SubSheetID]; !ok {
					seen[*item.SubSheetID] = struct{}{}
					subs = append(subs, *item.SubSheetID)
				}
			}
		}
	}

	var changes delivery.SheetChanges
	var errs []error
	for _, id := range append(tops, subs...) {
		sheet, err := a.sheetRepo.FindByIDForTenant(ctx, tenantID, id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !sheet.IsActive() {
			continue
		}
		sheetChanges, err := a.Rebuild(ctx, sheet)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		changes.Merge(sheetChanges)
	}
	return changes, errors.Join(errs...)
}

// refreshTotals recomputes only the sheet level rollups of sheet
func (a *SheetAggregator) refreshTotals(ctx context.Context, sheet *delivery.DeliverySheet) (delivery.SheetChanges, error) {
	src, err := a.sheetRepo.LoadSource(ctx, sheet)
	if err != nil {
		return delivery.SheetChanges{}, fmt.Errorf("load sheet %s: %w", sheet.ID, err)
	}
	var changes delivery.SheetChanges
	if sheet.ApplyTotals(src.ComputeTotals()) {
		changes.Sheets = append(changes.Sheets, sheet)
	}
	if err := a.save(ctx, changes); err != nil {
		return delivery.SheetChanges{}, err
	}
	return changes, nil
}

func (a *SheetAggregator) save(ctx context.Context, changes delivery.SheetChanges) error {
	if changes.IsEmpty() {
		return nil
	}
	if err := a.sheetRepo.SaveRollups(ctx, changes); err != nil {
		return fmt.Errorf("save sheet rollups: %w", err)
	}
	a.logger.Debug("sheet rollups saved",
		zap.Int("sheets", len(changes.Sheets)),
		zap.Int("items", len(changes.Items)),
		zap.Int("links", len(changes.Links)),
	)
	return nil
}

// rebuild refreshes every active link and item of src, then the sheet totals
func rebuild(src *delivery.SheetSource) delivery.SheetChanges {
	var changes delivery.SheetChanges
	for _, link := range src.Links {
		if link.IsActive() && src.RecomputeLink(link) {
			changes.Links = append(changes.Links, link)
		}
	}
	for _, item := range src.Items {
		if item.IsActive() && src.RecomputeItem(item) {
			changes.Items = append(changes.Items, item)
		}
	}
	if src.Sheet.ApplyTotals(src.ComputeTotals()) {
		changes.Sheets = append(changes.Sheets, src.Sheet)
	}
	return changes
}
