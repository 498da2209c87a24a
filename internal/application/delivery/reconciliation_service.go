package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pharmaerp/backend/internal/domain/delivery"
	"github.com/pharmaerp/backend/internal/domain/shared"
	"github.com/pharmaerp/backend/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// SweepObserver receives the outcome of each sweep
type SweepObserver interface {
	ObserveSweep(ctx context.Context, mismatched, repaired, failed int)
}

// ReconciliationService detects and repairs drift between cached rollups and their sources
type ReconciliationService struct {
	sheetRepo delivery.DeliverySheetRepository
	groupAgg  *InvoiceGroupAggregator
	sheetAgg  *SheetAggregator
	notifier  shared.Notifier
	observer  SweepObserver
	logger    *zap.Logger
}

// NewReconciliationService creates a new ReconciliationService
func NewReconciliationService(
	sheetRepo delivery.DeliverySheetRepository,
	groupAgg *InvoiceGroupAggregator,
	sheetAgg *SheetAggregator,
	logger *zap.Logger,
) *ReconciliationService {
	return &ReconciliationService{
		sheetRepo: sheetRepo,
		groupAgg:  groupAgg,
		sheetAgg:  sheetAgg,
		logger:    logger,
	}
}

// SetNotifier sets the notifier for sweep repairs
func (s *ReconciliationService) SetNotifier(n shared.Notifier) {
	s.notifier = n
}

// SetSweepObserver sets the observer for sweep outcomes
func (s *ReconciliationService) SetSweepObserver(o SweepObserver) {
	s.observer = o
}

// IsShortReturnAmountMismatched compares the sheet's cached short/return totals
// with a recomputation from logs and with the sum of its link caches
func (s *ReconciliationService) IsShortReturnAmountMismatched(ctx context.Context, tenantID, sheetID uuid.UUID) (*delivery.MismatchReport, error) {
	sheet, err := s.sheetRepo.FindByIDForTenant(ctx, tenantID, sheetID)
	if err != nil {
		return nil, err
	}
	return s.check(ctx, sheet)
}

// RepairByAlias rebuilds every rollup reachable from the sheet with the given
// alias. Running it twice in a row reports no changes the second time.
func (s *ReconciliationService) RepairByAlias(ctx context.Context, tenantID uuid.UUID, alias string) (*RepairResponse, error) {
	sheet, err := s.sheetRepo.FindByAlias(ctx, tenantID, alias)
	if err != nil {
		return nil, err
	}
	return s.repair(ctx, sheet)
}

// Sweep checks every ACTIVE sheet dated on or after since and repairs the
// mismatched ones. One failing sheet does not stop the sweep.
func (s *ReconciliationService) Sweep(ctx context.Context, since time.Time) (_ *SweepResult, err error) {
	ctx, span := telemetry.StartSpan(ctx, "reconciliation.sweep",
		attribute.String("since", delivery.DateOf(since).Format(time.DateOnly)))
	defer func() { telemetry.EndSpan(span, err) }()

	sheets, err := s.sheetRepo.FindActiveSince(ctx, delivery.DateOf(since))
	if err != nil {
		return nil, err
	}

	result := &SweepResult{}
	for _, sheet := range sheets {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		result.Checked++
		report, err := s.check(ctx, sheet)
		if err != nil {
			result.Failed++
			s.logger.Warn("reconciliation check failed",
				zap.String("sheet_id", sheet.ID.String()),
				zap.Error(err),
			)
			continue
		}
		if !report.Mismatched {
			continue
		}
		result.Mismatched++

		repaired, err := s.repair(ctx, sheet)
		if err != nil {
			result.Failed++
			s.logger.Error("reconciliation repair failed",
				zap.String("sheet_id", sheet.ID.String()),
				zap.String("alias", sheet.Alias),
				zap.Error(err),
			)
			continue
		}
		result.Repaired++
		s.notifyRepair(ctx, sheet, repaired)
	}

	if s.observer != nil {
		s.observer.ObserveSweep(ctx, result.Mismatched, result.Repaired, result.Failed)
	}
	s.logger.Info("reconciliation sweep finished",
		zap.Int("checked", result.Checked),
		zap.Int("mismatched", result.Mismatched),
		zap.Int("repaired", result.Repaired),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

func (s *ReconciliationService) check(ctx context.Context, sheet *delivery.DeliverySheet) (*delivery.MismatchReport, error) {
	src, err := s.sheetRepo.LoadSource(ctx, sheet)
	if err != nil {
		return nil, err
	}
	report := src.CheckMismatch()
	return &report, nil
}

func (s *ReconciliationService) repair(ctx context.Context, sheet *delivery.DeliverySheet) (_ *RepairResponse, err error) {
	ctx, span := telemetry.StartSpan(ctx, "reconciliation.repair",
		attribute.String("sheet_id", sheet.ID.String()),
		attribute.String("alias", sheet.Alias))
	defer func() { telemetry.EndSpan(span, err) }()

	src, err := s.sheetRepo.LoadSource(ctx, sheet)
	if err != nil {
		return nil, err
	}
	result := &RepairResponse{
		SheetID: sheet.ID,
		Alias:   sheet.Alias,
		Before:  src.CheckMismatch(),
	}

	for _, groupID := range src.InvoiceGroupIDs() {
		group, changed, err := s.groupAgg.RecomputeSilently(ctx, sheet.TenantID, groupID)
		if err != nil {
			return nil, fmt.Errorf("recompute invoice group %s: %w", groupID, err)
		}
		src.InvoiceGroups[groupID] = group
		if changed {
			result.InvoiceGroupsUpdated++
		}
	}

	changes, err := s.sheetAgg.RebuildSource(ctx, src)
	if err != nil {
		return nil, err
	}
	if sheet.IsTopSheet() {
		subs, err := s.sheetRepo.FindSubSheets(ctx, sheet.TenantID, sheet.ID)
		if err != nil {
			return nil, err
		}
		for _, sub := range subs {
			subChanges, err := s.sheetAgg.Rebuild(ctx, sub)
			if err != nil {
				return nil, err
			}
			changes.Merge(subChanges)
		}
	}
	result.LinksUpdated = len(changes.Links)
	result.ItemsUpdated = len(changes.Items)
	result.SheetsUpdated = len(changes.Sheets)

	// sub-sheet rebuilds may have saved this sheet again
	current, err := s.sheetRepo.FindByIDForTenant(ctx, sheet.TenantID, sheet.ID)
	if err != nil {
		return nil, err
	}
	after, err := s.check(ctx, current)
	if err != nil {
		return nil, err
	}
	result.After = *after

	s.logger.Info("sheet rollups repaired",
		zap.String("sheet_id", sheet.ID.String()),
		zap.String("alias", sheet.Alias),
		zap.Bool("was_mismatched", result.Before.Mismatched),
		zap.Int("invoice_groups", result.InvoiceGroupsUpdated),
		zap.Int("links", result.LinksUpdated),
		zap.Int("items", result.ItemsUpdated),
		zap.Int("sheets", result.SheetsUpdated),
	)
	return result, nil
}

func (s *ReconciliationService) notifyRepair(ctx context.Context, sheet *delivery.DeliverySheet, r *RepairResponse) {
	if s.notifier == nil {
		return
	}
	err := s.notifier.Notify(ctx, shared.Notification{
		Topic:    shared.TopicMismatchRepaired,
		TenantID: sheet.TenantID,
		Subject:  sheet.Name,
		Fields: map[string]any{
			"sheet_id":       sheet.ID.String(),
			"alias":          sheet.Alias,
			"invoice_groups": r.InvoiceGroupsUpdated,
			"links":          r.LinksUpdated,
			"items":          r.ItemsUpdated,
		},
	})
	if err != nil {
		s.logger.Warn("failed to send repair notification", zap.Error(err))
	}
}
