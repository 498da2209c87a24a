package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/pharmaerp/backend/internal/domain/delivery"
	"github.com/pharmaerp/backend/internal/domain/shared"
	"github.com/pharmaerp/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormOrderRepository implements OrderRepository using GORM
type GormOrderRepository struct {
	db *gorm.DB
}

// NewGormOrderRepository creates a new GormOrderRepository
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// FindByIDForTenant finds an order with its lines
func (r *GormOrderRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*delivery.Order, error) {
	var model models.OrderModel
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

// FindByInvoiceGroups lists the orders of the given invoice groups
func (r *GormOrderRepository) FindByInvoiceGroups(ctx context.Context, tenantID uuid.UUID, invoiceGroupIDs []uuid.UUID) ([]*delivery.Order, error) {
	if len(invoiceGroupIDs) == 0 {
		return nil, nil
	}
	var rows []models.OrderModel
	if err := r.db.WithContext(ctx).
		Preload("Items").
		Where("tenant_id = ? AND invoice_group_id IN ?", tenantID, invoiceGroupIDs).
		Order("created_at").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*delivery.Order, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

// GormCourierRepository implements CourierRepository using GORM
type GormCourierRepository struct {
	db *gorm.DB
}

// NewGormCourierRepository creates a new GormCourierRepository
func NewGormCourierRepository(db *gorm.DB) *GormCourierRepository {
	return &GormCourierRepository{db: db}
}

// FindByIDForTenant finds a courier by ID within a tenant
func (r *GormCourierRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*delivery.Courier, error) {
	var model models.CourierModel
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

// GormOrganizationRepository implements OrganizationRepository using GORM
type GormOrganizationRepository struct {
	db *gorm.DB
}

// NewGormOrganizationRepository creates a new GormOrganizationRepository
func NewGormOrganizationRepository(db *gorm.DB) *GormOrganizationRepository {
	return &GormOrganizationRepository{db: db}
}

// FindIDsByPrimaryResponsible lists organizations a courier is primarily responsible for
func (r *GormOrganizationRepository) FindIDsByPrimaryResponsible(ctx context.Context, tenantID, courierID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).
		Model(&models.OrganizationModel{}).
		Where("tenant_id = ? AND primary_responsible_id = ?", tenantID, courierID).
		Order("name").
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

var (
	_ delivery.OrderRepository        = (*GormOrderRepository)(nil)
	_ delivery.CourierRepository      = (*GormCourierRepository)(nil)
	_ delivery.OrganizationRepository = (*GormOrganizationRepository)(nil)
)
