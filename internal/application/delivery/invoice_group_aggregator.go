package delivery

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pharmaerp/backend/internal/domain/delivery"
	"github.com/pharmaerp/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// InvoiceGroupAggregator rewrites invoice group short/return rollups from their logs
type InvoiceGroupAggregator struct {
	groupRepo delivery.InvoiceGroupRepository
	logRepo   delivery.ShortReturnLogRepository
	logger    *zap.Logger

	rule                   delivery.DiscountRule
	largeDiscountThreshold decimal.Decimal
	notifier               shared.Notifier
}

// NewInvoiceGroupAggregator creates a new InvoiceGroupAggregator
func NewInvoiceGroupAggregator(
	groupRepo delivery.InvoiceGroupRepository,
	logRepo delivery.ShortReturnLogRepository,
	logger *zap.Logger,
) *InvoiceGroupAggregator {
	return &InvoiceGroupAggregator{
		groupRepo: groupRepo,
		logRepo:   logRepo,
		logger:    logger,
	}
}

// SetDiscountRule enables additional-discount reconciliation. Discounts above
// threshold are reported through the notifier, if one is set.
func (a *InvoiceGroupAggregator) SetDiscountRule(rule delivery.DiscountRule, threshold decimal.Decimal) {
	a.rule = rule
	a.largeDiscountThreshold = threshold
}

// SetNotifier sets the notifier for large discounts
func (a *InvoiceGroupAggregator) SetNotifier(n shared.Notifier) {
	a.notifier = n
}

// Recompute rewrites the rollup of one kind and records the follow-up sheet
// cascade in the same transaction. The event is written even when nothing
// changed so that stale links downstream still converge.
func (a *InvoiceGroupAggregator) Recompute(ctx context.Context, tenantID, groupID uuid.UUID, kind delivery.ShortReturnKind) (*delivery.InvoiceGroup, error) {
	group, results, err := a.recompute(ctx, tenantID, groupID, kind)
	if err != nil {
		return nil, err
	}

	events := []shared.DomainEvent{delivery.NewInvoiceGroupTotalsRecomputedEvent(group, kind)}
	if err := a.groupRepo.SaveWithLockAndEvents(ctx, group, events); err != nil {
		return nil, fmt.Errorf("save invoice group %s: %w", groupID, err)
	}

	a.logger.Debug("invoice group recomputed",
		zap.String("invoice_group_id", groupID.String()),
		zap.String("kind", string(kind)),
		zap.String("total_short", group.TotalShort.String()),
		zap.String("total_return", group.TotalReturn.String()),
		zap.String("additional_discount", group.AdditionalDiscount.String()),
	)
	a.notifyDiscounts(ctx, group, results)
	return group, nil
}

// RecomputeSilently rewrites the rollups for the given kinds (all kinds when
// none are given) without scheduling any cascade. The group is written only
// if something changed; the second return value reports that.
func (a *InvoiceGroupAggregator) RecomputeSilently(ctx context.Context, tenantID, groupID uuid.UUID, kinds ...delivery.ShortReturnKind) (*delivery.InvoiceGroup, bool, error) {
	group, results, err := a.recompute(ctx, tenantID, groupID, kinds...)
	if err != nil {
		return nil, false, err
	}

	changed := false
	for _, r := range results {
		if r.Changed() {
			changed = true
		}
	}
	if !changed {
		return group, false, nil
	}
	if err := a.groupRepo.SaveWithLockAndEvents(ctx, group, nil); err != nil {
		return nil, false, fmt.Errorf("save invoice group %s: %w", groupID, err)
	}
	a.notifyDiscounts(ctx, group, results)
	return group, true, nil
}

func (a *InvoiceGroupAggregator) recompute(ctx context.Context, tenantID, groupID uuid.UUID, kinds ...delivery.ShortReturnKind) (*delivery.InvoiceGroup, []delivery.InvoiceGroupRecompute, error) {
	if len(kinds) == 0 {
		kinds = delivery.AllKinds
	}
	group, err := a.groupRepo.FindByIDForTenant(ctx, tenantID, groupID)
	if err != nil {
		return nil, nil, err
	}
	logs, err := a.logRepo.FindByInvoiceGroup(ctx, tenantID, groupID)
	if err != nil {
		return nil, nil, fmt.Errorf("load logs of invoice group %s: %w", groupID, err)
	}

	results := make([]delivery.InvoiceGroupRecompute, 0, len(kinds))
	for _, kind := range kinds {
		results = append(results, group.RecomputeTotal(kind, logs, a.rule))
	}
	return group, results, nil
}

func (a *InvoiceGroupAggregator) notifyDiscounts(ctx context.Context, group *delivery.InvoiceGroup, results []delivery.InvoiceGroupRecompute) {
	if a.notifier == nil || a.largeDiscountThreshold.IsZero() {
		return
	}
	for _, r := range results {
		if r.Discount == nil || r.PreviousAdditionalDiscount.Equal(r.AdditionalDiscount) {
			continue
		}
		if r.Discount.Amount.LessThan(a.largeDiscountThreshold) {
			continue
		}
		err := a.notifier.Notify(ctx, shared.Notification{
			Topic:    shared.TopicLargeDiscount,
			TenantID: group.TenantID,
			Subject:  "large additional discount applied",
			Fields: map[string]any{
				"invoice_group_id": group.ID.String(),
				"percentage":       r.Discount.Percentage.String(),
				"amount":           r.Discount.Amount.String(),
			},
		})
		if err != nil {
			a.logger.Warn("failed to send discount notification",
				zap.String("invoice_group_id", group.ID.String()),
				zap.Error(err),
			)
		}
		return
	}
}
