package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/pharmaerp/backend/internal/domain/delivery"
	"github.com/pharmaerp/backend/internal/domain/shared"
	"github.com/pharmaerp/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormInvoiceGroupRepository implements InvoiceGroupRepository using GORM
type GormInvoiceGroupRepository struct {
	db          *gorm.DB
	outboxSaver shared.OutboxEventSaver
}

// NewGormInvoiceGroupRepository creates a new GormInvoiceGroupRepository
func NewGormInvoiceGroupRepository(db *gorm.DB) *GormInvoiceGroupRepository {
	return &GormInvoiceGroupRepository{db: db}
}

// SetOutboxEventSaver sets the outbox event saver for transactional event publishing
func (r *GormInvoiceGroupRepository) SetOutboxEventSaver(saver shared.OutboxEventSaver) {
	r.outboxSaver = saver
}

// FindByIDForTenant finds an invoice group by ID within a tenant
func (r *GormInvoiceGroupRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*delivery.InvoiceGroup, error) {
	var model models.InvoiceGroupModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByIDs loads the invoice groups with the given IDs. Unknown IDs are skipped.
func (r *GormInvoiceGroupRepository) FindByIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]*delivery.InvoiceGroup, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []models.InvoiceGroupModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id IN ?", tenantID, ids).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*delivery.InvoiceGroup, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

// SaveWithLockAndEvents writes the rollup columns with optimistic locking. A
// nil events slice writes nothing to the outbox.
func (r *GormInvoiceGroupRepository) SaveWithLockAndEvents(ctx context.Context, group *delivery.InvoiceGroup, events []shared.DomainEvent) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.InvoiceGroupModel
		if err := tx.Select("version").
			Where("tenant_id = ? AND id = ?", group.TenantID, group.ID).
			Take(&current).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return shared.ErrNotFound
			}
			return err
		}
		if current.Version != group.Version {
			return shared.NewDomainError(shared.CodeConcurrentModification, "The invoice group has been modified by another process")
		}

		version := group.Version + 1
		group.UpdatedAt = time.Now()
		result := tx.Model(&models.InvoiceGroupModel{}).
			Where("id = ? AND version = ?", group.ID, current.Version).
			Updates(map[string]any{
				"total_short":         group.TotalShort,
				"total_return":        group.TotalReturn,
				"additional_discount": group.AdditionalDiscount,
				"version":             version,
				"updated_at":          group.UpdatedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return shared.NewDomainError(shared.CodeConcurrentModification, "The invoice group has been modified by another process")
		}

		if r.outboxSaver != nil && len(events) > 0 {
			if err := r.outboxSaver.SaveEvents(ctx, tx, events...); err != nil {
				return err
			}
		}
		group.Version = version
		return nil
	})
}

var _ delivery.InvoiceGroupRepository = (*GormInvoiceGroupRepository)(nil)
