package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pharmaerp/backend/internal/domain/delivery"
	"github.com/pharmaerp/backend/internal/domain/shared"
	"github.com/pharmaerp/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormDeliverySheetRepository implements DeliverySheetRepository using GORM
type GormDeliverySheetRepository struct {
	db *gorm.DB
}

// NewGormDeliverySheetRepository creates a new GormDeliverySheetRepository
func NewGormDeliverySheetRepository(db *gorm.DB) *GormDeliverySheetRepository {
	return &GormDeliverySheetRepository{db: db}
}

// WithTx returns a new repository instance bound to the given transaction
func (r *GormDeliverySheetRepository) WithTx(tx *gorm.DB) *GormDeliverySheetRepository {
	return &GormDeliverySheetRepository{db: tx}
}

// FindByIDForTenant finds a sheet by ID within a tenant
func (r *GormDeliverySheetRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*delivery.DeliverySheet, error) {
	return r.findOne(r.db.WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantID, id))
}

// FindByAlias finds a sheet by its alias within a tenant. An ACTIVE sheet wins
// over retired ones, then the newest.
func (r *GormDeliverySheetRepository) FindByAlias(ctx context.Context, tenantID uuid.UUID, alias string) (*delivery.DeliverySheet, error) {
	return r.findOne(r.db.WithContext(ctx).
		Where("tenant_id = ? AND alias = ?", tenantID, alias).
		Order(clause.OrderBy{Expression: clause.Expr{
			SQL:                "CASE WHEN status = ? THEN 0 ELSE 1 END, created_at DESC",
			Vars:               []any{delivery.SheetStatusActive},
			WithoutParentheses: true,
		}}))
}

// FindSubSheets lists the ACTIVE sub-sheets joined to a top sheet
func (r *GormDeliverySheetRepository) FindSubSheets(ctx context.Context, tenantID, topSheetID uuid.UUID) ([]*delivery.DeliverySheet, error) {
	var rows []models.DeliverySheetModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND status = ? AND id IN (?)", tenantID, delivery.SheetStatusActive,
			r.db.Model(&models.TopSheetSubSheetModel{}).Select("sub_sheet_id").Where("top_sheet_id = ?", topSheetID)).
		Order("created_at").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return sheetsToDomain(rows)
}

// FindActiveSince lists ACTIVE sheets of every tenant dated on or after since
func (r *GormDeliverySheetRepository) FindActiveSince(ctx context.Context, since time.Time) ([]*delivery.DeliverySheet, error) {
	var rows []models.DeliverySheetModel
	if err := r.db.WithContext(ctx).
		Where("status = ? AND sheet_date >= ?", delivery.SheetStatusActive, delivery.DateOf(since)).
		Order("sheet_date, created_at").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return sheetsToDomain(rows)
}

// FindItem finds a sheet item by id
func (r *GormDeliverySheetRepository) FindItem(ctx context.Context, tenantID, id uuid.UUID) (*delivery.DeliverySheetItem, error) {
	var model models.DeliverySheetItemModel
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

// FindItems lists the ACTIVE items of a top sheet
func (r *GormDeliverySheetRepository) FindItems(ctx context.Context, tenantID, topSheetID uuid.UUID) ([]*delivery.DeliverySheetItem, error) {
	var rows []models.DeliverySheetItemModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND top_sheet_id = ? AND status = ?", tenantID, topSheetID, delivery.SheetStatusActive).
		Order("created_at").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return itemsToDomain(rows), nil
}

// FindActiveLinksByInvoiceGroup lists the ACTIVE links pointing at an invoice group
func (r *GormDeliverySheetRepository) FindActiveLinksByInvoiceGroup(ctx context.Context, tenantID, invoiceGroupID uuid.UUID) ([]*delivery.DeliverySheetLink, error) {
	var rows []models.DeliverySheetLinkModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND invoice_group_id = ? AND status = ?", tenantID, invoiceGroupID, delivery.SheetStatusActive).
		Order("created_at").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return linksToDomain(rows), nil
}

// FindLink finds a link by id
func (r *GormDeliverySheetRepository) FindLink(ctx context.Context, tenantID, id uuid.UUID) (*delivery.DeliverySheetLink, error) {
	var model models.DeliverySheetLinkModel
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

// LoadSource loads everything the sheet's rollups derive from. A top sheet
// covers all its items; a sub-sheet covers the items assigned to it.
func (r *GormDeliverySheetRepository) LoadSource(ctx context.Context, sheet *delivery.DeliverySheet) (*delivery.SheetSource, error) {
	db := r.db.WithContext(ctx)
	src := &delivery.SheetSource{
		Sheet:         sheet,
		InvoiceGroups: make(map[uuid.UUID]*delivery.InvoiceGroup),
	}

	itemQuery := db.Where("tenant_id = ?", sheet.TenantID)
	if sheet.IsTopSheet() {
		itemQuery = itemQuery.Where("top_sheet_id = ?", sheet.ID)
	} else {
		itemQuery = itemQuery.Where("sub_sheet_id = ?", sheet.ID)
	}
	var itemRows []models.DeliverySheetItemModel
	if err := itemQuery.Order("created_at").Find(&itemRows).Error; err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}
	src.Items = itemsToDomain(itemRows)
	if len(src.Items) == 0 {
		return src, nil
	}

	itemIDs := make([]uuid.UUID, len(src.Items))
	for i, item := range src.Items {
		itemIDs[i] = item.ID
	}
	var linkRows []models.DeliverySheetLinkModel
	if err := db.Where("tenant_id = ? AND item_id IN ?", sheet.TenantID, itemIDs).
		Order("created_at").
		Find(&linkRows).Error; err != nil {
		return nil, fmt.Errorf("load links: %w", err)
	}
	src.Links = linksToDomain(linkRows)

	groupIDs := distinctGroupIDs(src.Links)
	if len(groupIDs) == 0 {
		return src, nil
	}

	var groupRows []models.InvoiceGroupModel
	if err := db.Where("tenant_id = ? AND id IN ?", sheet.TenantID, groupIDs).
		Find(&groupRows).Error; err != nil {
		return nil, fmt.Errorf("load invoice groups: %w", err)
	}
	for i := range groupRows {
		group := groupRows[i].ToDomain()
		src.InvoiceGroups[group.ID] = group
	}

	var orderRows []models.OrderModel
	if err := db.Preload("Items").
		Where("tenant_id = ? AND invoice_group_id IN ?", sheet.TenantID, groupIDs).
		Order("created_at").
		Find(&orderRows).Error; err != nil {
		return nil, fmt.Errorf("load orders: %w", err)
	}
	src.Orders = make([]*delivery.Order, len(orderRows))
	for i := range orderRows {
		src.Orders[i] = orderRows[i].ToDomain()
	}

	var logRows []models.ShortReturnLogModel
	if err := db.Preload("Items").
		Where("tenant_id = ? AND invoice_group_id IN ? AND status <> ?", sheet.TenantID, groupIDs, delivery.LogStatusInactive).
		Order("created_at").
		Find(&logRows).Error; err != nil {
		return nil, fmt.Errorf("load short/return logs: %w", err)
	}
	src.Logs = logsToDomain(logRows)
	return src, nil
}

// CreateTopSheet inserts a new top sheet with its items and links
func (r *GormDeliverySheetRepository) CreateTopSheet(ctx context.Context, sheet *delivery.DeliverySheet, items []*delivery.DeliverySheetItem, links []*delivery.DeliverySheetLink) error {
	var model models.DeliverySheetModel
	if err := model.FromDomain(sheet); err != nil {
		return err
	}
	now := sheet.CreatedAt
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.DeliverySheetModel{}).
			Where("tenant_id = ? AND alias = ?", sheet.TenantID, sheet.Alias).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return shared.NewDomainError(shared.CodeAlreadyExists, fmt.Sprintf("delivery sheet alias %q is already used", sheet.Alias))
		}

		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		if len(items) > 0 {
			rows := make([]*models.DeliverySheetItemModel, len(items))
			for i, item := range items {
				rows[i] = models.DeliverySheetItemModelFromDomain(item, now)
			}
			if err := tx.CreateInBatches(rows, 200).Error; err != nil {
				return err
			}
		}
		if len(links) > 0 {
			rows := make([]*models.DeliverySheetLinkModel, len(links))
			for i, link := range links {
				rows[i] = models.DeliverySheetLinkModelFromDomain(link, now)
			}
			if err := tx.CreateInBatches(rows, 200).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// FindOrCreateSubSheet inserts sub with its join row unless one already exists
// for the same top sheet, courier and date. The join row is claimed first with
// ON CONFLICT DO NOTHING; losing that race returns the existing sub-sheet.
func (r *GormDeliverySheetRepository) FindOrCreateSubSheet(ctx context.Context, top, sub *delivery.DeliverySheet) (*delivery.DeliverySheet, bool, error) {
	if sub.ResponsibleCourierID == nil {
		return nil, false, shared.NewValidationError("sub-sheet requires a responsible courier")
	}
	var sheetModel models.DeliverySheetModel
	if err := sheetModel.FromDomain(sub); err != nil {
		return nil, false, err
	}

	var existingID uuid.UUID
	created := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		join := models.TopSheetSubSheetModel{
			BaseModel:            models.BaseModel{ID: uuid.New(), CreatedAt: sub.CreatedAt, UpdatedAt: sub.CreatedAt},
			TenantID:             top.TenantID,
			TopSheetID:           top.ID,
			SubSheetID:           sub.ID,
			ResponsibleCourierID: *sub.ResponsibleCourierID,
			SheetDate:            delivery.DateOf(sub.SheetDate),
		}
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "top_sheet_id"}, {Name: "responsible_courier_id"}, {Name: "sheet_date"}},
			DoNothing: true,
		}).Create(&join)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			var existing models.TopSheetSubSheetModel
			if err := tx.Where("top_sheet_id = ? AND responsible_courier_id = ? AND sheet_date = ?",
				top.ID, *sub.ResponsibleCourierID, delivery.DateOf(sub.SheetDate)).
				Take(&existing).Error; err != nil {
				return err
			}
			existingID = existing.SubSheetID
			return nil
		}
		created = true
		return tx.Create(&sheetModel).Error
	})
	if err != nil {
		return nil, false, err
	}
	if created {
		return sub, true, nil
	}
	existing, err := r.FindByIDForTenant(ctx, top.TenantID, existingID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// AssignItems points items at a sub-sheet
func (r *GormDeliverySheetRepository) AssignItems(ctx context.Context, tenantID uuid.UUID, itemIDs []uuid.UUID, subSheetID uuid.UUID) error {
	if len(itemIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.DeliverySheetItemModel{}).
		Where("tenant_id = ? AND id IN ?", tenantID, itemIDs).
		Updates(map[string]any{"sub_sheet_id": subSheetID, "updated_at": time.Now()}).Error
}

// SaveRollups writes the changed rollup rows in one transaction. Sheets are
// version checked; items and links are plain overwrites of derived columns.
func (r *GormDeliverySheetRepository) SaveRollups(ctx context.Context, changes delivery.SheetChanges) error {
	if changes.IsEmpty() {
		return nil
	}
	now := time.Now()
	versions := make(map[uuid.UUID]int, len(changes.Sheets))
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, link := range changes.Links {
			if err := tx.Model(&models.DeliverySheetLinkModel{}).
				Where("id = ?", link.ID).
				Updates(map[string]any{
					"total_short":  link.TotalShort,
					"total_return": link.TotalReturn,
					"updated_at":   now,
				}).Error; err != nil {
				return err
			}
		}
		for _, item := range changes.Items {
			if err := tx.Model(&models.DeliverySheetItemModel{}).
				Where("id = ?", item.ID).
				Updates(map[string]any{
					"total_item_order":         item.TotalItemOrder,
					"total_item_short":         item.TotalItemShort,
					"total_item_return":        item.TotalItemReturn,
					"total_unique_item_order":  item.TotalUniqueItemOrder,
					"total_unique_item_short":  item.TotalUniqueItemShort,
					"total_unique_item_return": item.TotalUniqueItemReturn,
					"updated_at":               now,
				}).Error; err != nil {
				return err
			}
		}
		for _, sheet := range changes.Sheets {
			data, err := sheet.TotalData.Marshal()
			if err != nil {
				return err
			}
			version := sheet.Version + 1
			result := tx.Model(&models.DeliverySheetModel{}).
				Where("id = ? AND version = ?", sheet.ID, sheet.Version).
				Updates(map[string]any{
					"short_amount":  sheet.ShortAmount,
					"return_amount": sheet.ReturnAmount,
					"total_data":    string(data),
					"version":       version,
					"updated_at":    now,
				})
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return shared.NewDomainError(shared.CodeConcurrentModification, "The delivery sheet has been modified by another process")
			}
			versions[sheet.ID] = version
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, sheet := range changes.Sheets {
		sheet.Version = versions[sheet.ID]
		sheet.UpdatedAt = now
	}
	return nil
}

// Destroy retires a sheet. A sub-sheet releases its items and join rows; a top
// sheet retires its items, their links and every sub-sheet split from it.
func (r *GormDeliverySheetRepository) Destroy(ctx context.Context, sheet *delivery.DeliverySheet) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.DeliverySheetModel{}).
			Where("tenant_id = ? AND id = ? AND version = ?", sheet.TenantID, sheet.ID, sheet.Version).
			Updates(map[string]any{
				"status":     sheet.Status,
				"version":    sheet.Version + 1,
				"updated_at": sheet.UpdatedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return shared.NewDomainError(shared.CodeConcurrentModification, "The delivery sheet has been modified by another process")
		}

		if !sheet.IsTopSheet() {
			if err := tx.Model(&models.DeliverySheetItemModel{}).
				Where("tenant_id = ? AND sub_sheet_id = ?", sheet.TenantID, sheet.ID).
				Updates(map[string]any{"sub_sheet_id": nil, "updated_at": sheet.UpdatedAt}).Error; err != nil {
				return err
			}
			if err := tx.Where("sub_sheet_id = ?", sheet.ID).
				Delete(&models.TopSheetSubSheetModel{}).Error; err != nil {
				return err
			}
			sheet.Version++
			return nil
		}

		items := tx.Model(&models.DeliverySheetItemModel{}).
			Select("id").
			Where("tenant_id = ? AND top_sheet_id = ?", sheet.TenantID, sheet.ID)
		if err := tx.Model(&models.DeliverySheetLinkModel{}).
			Where("item_id IN (?)", items).
			Updates(map[string]any{"status": delivery.SheetStatusInactive, "updated_at": sheet.UpdatedAt}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.DeliverySheetItemModel{}).
			Where("tenant_id = ? AND top_sheet_id = ?", sheet.TenantID, sheet.ID).
			Updates(map[string]any{"status": delivery.SheetStatusInactive, "updated_at": sheet.UpdatedAt}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.DeliverySheetModel{}).
			Where("tenant_id = ? AND status = ? AND id IN (?)", sheet.TenantID, delivery.SheetStatusActive,
				tx.Model(&models.TopSheetSubSheetModel{}).Select("sub_sheet_id").Where("top_sheet_id = ?", sheet.ID)).
			Updates(map[string]any{
				"status":     delivery.SheetStatusInactive,
				"version":    gorm.Expr("version + 1"),
				"updated_at": sheet.UpdatedAt,
			}).Error; err != nil {
			return err
		}
		sheet.Version++
		return nil
	})
}

func (r *GormDeliverySheetRepository) findOne(query *gorm.DB) (*delivery.DeliverySheet, error) {
	var model models.DeliverySheetModel
	if err := query.First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain()
}

func sheetsToDomain(rows []models.DeliverySheetModel) ([]*delivery.DeliverySheet, error) {
	out := make([]*delivery.DeliverySheet, 0, len(rows))
	for i := range rows {
		sheet, err := rows[i].ToDomain()
		if err != nil {
			return nil, fmt.Errorf("delivery sheet %s: %w", rows[i].ID, err)
		}
		out = append(out, sheet)
	}
	return out, nil
}

func itemsToDomain(rows []models.DeliverySheetItemModel) []*delivery.DeliverySheetItem {
	out := make([]*delivery.DeliverySheetItem, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out
}

func linksToDomain(rows []models.DeliverySheetLinkModel) []*delivery.DeliverySheetLink {
	out := make([]*delivery.DeliverySheetLink, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out
}

func distinctGroupIDs(links []*delivery.DeliverySheetLink) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(links))
	out := make([]uuid.UUID, 0, len(links))
	for _, link := range links {
		if _, ok := seen[link.InvoiceGroupID]; ok {
			continue
		}
		seen[link.InvoiceGroupID] = struct{}{}
		out = append(out, link.InvoiceGroupID)
	}
	return out
}

var _ delivery.DeliverySheetRepository = (*GormDeliverySheetRepository)(nil)
