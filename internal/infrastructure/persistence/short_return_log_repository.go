package persistence

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pharmaerp/backend/internal/domain/delivery"
	"github.com/pharmaerp/backend/internal/domain/shared"
	"github.com/pharmaerp/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormShortReturnLogRepository implements ShortReturnLogRepository using GORM
type GormShortReturnLogRepository struct {
	db          *gorm.DB
	outboxSaver shared.OutboxEventSaver
}

// NewGormShortReturnLogRepository creates a new GormShortReturnLogRepository
func NewGormShortReturnLogRepository(db *gorm.DB) *GormShortReturnLogRepository {
	return &GormShortReturnLogRepository{db: db}
}

// SetOutboxEventSaver sets the outbox event saver for transactional event publishing
func (r *GormShortReturnLogRepository) SetOutboxEventSaver(saver shared.OutboxEventSaver) {
	r.outboxSaver = saver
}

// WithTx returns a new repository instance bound to the given transaction
func (r *GormShortReturnLogRepository) WithTx(tx *gorm.DB) *GormShortReturnLogRepository {
	return &GormShortReturnLogRepository{db: tx, outboxSaver: r.outboxSaver}
}

// FindByIDForTenant finds a log with its items
func (r *GormShortReturnLogRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*delivery.ShortReturnLog, error) {
	var model models.ShortReturnLogModel
	if err := r.db.WithContext(ctx).
		Preload("Items").
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByInvoiceGroup returns every log of an invoice group, newest first
func (r *GormShortReturnLogRepository) FindByInvoiceGroup(ctx context.Context, tenantID, invoiceGroupID uuid.UUID) ([]*delivery.ShortReturnLog, error) {
	var rows []models.ShortReturnLogModel
	if err := r.db.WithContext(ctx).
		Preload("Items").
		Where("tenant_id = ? AND invoice_group_id = ?", tenantID, invoiceGroupID).
		Order("log_date DESC, created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return logsToDomain(rows), nil
}

// FindOpenByOrder returns the DRAFT and ACTIVE logs of an order
func (r *GormShortReturnLogRepository) FindOpenByOrder(ctx context.Context, tenantID, orderID uuid.UUID) ([]*delivery.ShortReturnLog, error) {
	var rows []models.ShortReturnLogModel
	if err := r.db.WithContext(ctx).
		Preload("Items").
		Where("tenant_id = ? AND order_id = ? AND status IN ?", tenantID, orderID,
			[]delivery.ShortReturnStatus{delivery.LogStatusDraft, delivery.LogStatusActive}).
		Order("created_at").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return logsToDomain(rows), nil
}

// ExistsOpen reports whether a non-INACTIVE log exists for the same log date,
// invoice group and receiver
func (r *GormShortReturnLogRepository) ExistsOpen(ctx context.Context, tenantID uuid.UUID, logDate time.Time, invoiceGroupID, receivedBy uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.ShortReturnLogModel{}).
		Where("tenant_id = ? AND log_date = ? AND invoice_group_id = ? AND received_by = ? AND status <> ?",
			tenantID, delivery.DateOf(logDate), invoiceGroupID, receivedBy, delivery.LogStatusInactive).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// CreateWithEvents inserts a new log with its items, applies its stock credits
// and writes its events to the outbox in one transaction
func (r *GormShortReturnLogRepository) CreateWithEvents(ctx context.Context, log *delivery.ShortReturnLog, events []shared.DomainEvent) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		model := models.ShortReturnLogModelFromDomain(log)
		if err := tx.Create(model).Error; err != nil {
			return err
		}
		if err := creditStock(tx, log.TenantID, log.PullStockCredits()); err != nil {
			return err
		}
		return r.saveEvents(ctx, tx, events)
	})
}

// SaveWithLockAndEvents persists a transition with optimistic locking, applying
// stock credits and writing events in the same transaction
func (r *GormShortReturnLogRepository) SaveWithLockAndEvents(ctx context.Context, log *delivery.ShortReturnLog, events []shared.DomainEvent) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := saveLogLocked(tx, log); err != nil {
			return err
		}
		return r.saveEvents(ctx, tx, events)
	})
}

// SaveAllWithLockAndEvents persists several transitions and their events
// atomically. Any version conflict rolls back every log.
func (r *GormShortReturnLogRepository) SaveAllWithLockAndEvents(ctx context.Context, logs []*delivery.ShortReturnLog, events []shared.DomainEvent) error {
	if len(logs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, log := range logs {
			if err := saveLogLocked(tx, log); err != nil {
				return fmt.Errorf("short/return log %s: %w", log.ID, err)
			}
		}
		return r.saveEvents(ctx, tx, events)
	})
}

func (r *GormShortReturnLogRepository) saveEvents(ctx context.Context, tx *gorm.DB, events []shared.DomainEvent) error {
	if r.outboxSaver == nil || len(events) == 0 {
		return nil
	}
	return r.outboxSaver.SaveEvents(ctx, tx, events...)
}

func saveLogLocked(tx *gorm.DB, log *delivery.ShortReturnLog) error {
	var current models.ShortReturnLogModel
	if err := tx.Select("version").
		Where("tenant_id = ? AND id = ?", log.TenantID, log.ID).
		Take(&current).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return shared.ErrNotFound
		}
		return err
	}
	if current.Version != log.Version {
		return shared.NewDomainError(shared.CodeConcurrentModification, "The short/return log has been modified by another user")
	}

	version := log.Version + 1
	result := tx.Model(&models.ShortReturnLogModel{}).
		Where("id = ? AND version = ?", log.ID, current.Version).
		Updates(map[string]any{
			"status":         log.Status,
			"amount":         log.Amount,
			"round_discount": log.RoundDiscount,
			"approved_by":    log.ApprovedBy,
			"approved_at":    log.ApprovedAt,
			"updated_by":     log.UpdatedBy,
			"remark":         log.Remark,
			"version":        version,
			"updated_at":     log.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.NewDomainError(shared.CodeConcurrentModification, "The short/return log has been modified by another user")
	}

	if err := tx.Model(&models.ShortReturnItemModel{}).
		Where("log_id = ?", log.ID).
		Updates(map[string]any{"status": log.Status, "updated_at": log.UpdatedAt}).Error; err != nil {
		return err
	}
	if err := creditStock(tx, log.TenantID, log.PullStockCredits()); err != nil {
		return err
	}
	log.Version = version
	return nil
}

// creditStock adds returned quantities back to salable stock. Rows are touched
// in stock id order so concurrent credits lock in the same sequence.
func creditStock(tx *gorm.DB, tenantID uuid.UUID, credits []delivery.StockCredit) error {
	sort.Slice(credits, func(i, j int) bool {
		return bytes.Compare(credits[i].StockID[:], credits[j].StockID[:]) < 0
	})
	for _, credit := range credits {
		result := tx.Model(&models.StockModel{}).
			Where("tenant_id = ? AND id = ?", tenantID, credit.StockID).
			Update("ecom_stock", gorm.Expr("ecom_stock + ?", credit.Quantity))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return shared.NewDomainError(shared.CodeNotFound, fmt.Sprintf("stock %s not found", credit.StockID))
		}
	}
	return nil
}

func logsToDomain(rows []models.ShortReturnLogModel) []*delivery.ShortReturnLog {
	out := make([]*delivery.ShortReturnLog, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out
}

var _ delivery.ShortReturnLogRepository = (*GormShortReturnLogRepository)(nil)
