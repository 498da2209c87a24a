package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pharmaerp/backend/internal/domain/delivery"
	"github.com/shopspring/decimal"
)

// ShortReturnLogModel is the persistence model for the ShortReturnLog aggregate root.
type ShortReturnLogModel struct {
	TenantAggregateModel
	OrderID        uuid.UUID                  `gorm:"type:uuid;not null;index"`
	InvoiceGroupID uuid.UUID                  `gorm:"type:uuid;not null;index;index:idx_short_return_open,priority:2"`
	Kind           delivery.ShortReturnKind   `gorm:"type:varchar(10);not null"`
	Status         delivery.ShortReturnStatus `gorm:"type:varchar(10);not null;default:'DRAFT'"`
	ReceivedBy     uuid.UUID                  `gorm:"type:uuid;not null;index:idx_short_return_open,priority:3"`
	LogDate        time.Time                  `gorm:"type:date;not null;index:idx_short_return_open,priority:1"`
	Amount         decimal.Decimal            `gorm:"type:decimal(18,4);not null;default:0"`
	RoundDiscount  decimal.Decimal            `gorm:"type:decimal(18,4);not null;default:0"`
	ApprovedBy     *uuid.UUID                 `gorm:"type:uuid"`
	ApprovedAt     *time.Time
	UpdatedBy      *uuid.UUID            `gorm:"type:uuid"`
	Remark         string                `gorm:"type:text"`
	Items          []ShortReturnItemModel `gorm:"foreignKey:LogID;references:ID"`
}

// TableName returns the table name for GORM
func (ShortReturnLogModel) TableName() string {
	return "short_return_logs"
}

// ToDomain converts the persistence model to a domain ShortReturnLog
func (m *ShortReturnLogModel) ToDomain() *delivery.ShortReturnLog {
	log := &delivery.ShortReturnLog{
		OrderID:        m.OrderID,
		InvoiceGroupID: m.InvoiceGroupID,
		Kind:           m.Kind,
		Status:         m.Status,
		ReceivedBy:     m.ReceivedBy,
		LogDate:        m.LogDate,
		Amount:         m.Amount,
		RoundDiscount:  m.RoundDiscount,
		ApprovedBy:     m.ApprovedBy,
		ApprovedAt:     m.ApprovedAt,
		UpdatedBy:      m.UpdatedBy,
		Remark:         m.Remark,
		Items:          make([]delivery.ShortReturnItem, len(m.Items)),
	}
	log.TenantAggregateRoot = m.Root()
	for i, item := range m.Items {
		log.Items[i] = item.ToDomain()
	}
	return log
}

// FromDomain populates the persistence model from a domain ShortReturnLog
func (m *ShortReturnLogModel) FromDomain(l *delivery.ShortReturnLog) {
	m.SetRoot(l.TenantAggregateRoot)
	m.OrderID = l.OrderID
	m.InvoiceGroupID = l.InvoiceGroupID
	m.Kind = l.Kind
	m.Status = l.Status
	m.ReceivedBy = l.ReceivedBy
	m.LogDate = l.LogDate
	m.Amount = l.Amount
	m.RoundDiscount = l.RoundDiscount
	m.ApprovedBy = l.ApprovedBy
	m.ApprovedAt = l.ApprovedAt
	m.UpdatedBy = l.UpdatedBy
	m.Remark = l.Remark
	m.Items = make([]ShortReturnItemModel, len(l.Items))
	for i, item := range l.Items {
		m.Items[i].FromDomain(item, l.TenantID, l.UpdatedAt)
	}
}

// ShortReturnLogModelFromDomain creates a new persistence model from a domain ShortReturnLog
func ShortReturnLogModelFromDomain(l *delivery.ShortReturnLog) *ShortReturnLogModel {
	m := &ShortReturnLogModel{}
	m.FromDomain(l)
	return m
}

// ShortReturnItemModel is the persistence model for one short/return product line.
type ShortReturnItemModel struct {
	BaseModel
	TenantID uuid.UUID                  `gorm:"type:uuid;not null;index"`
	LogID    uuid.UUID                  `gorm:"type:uuid;not null;index"`
	StockID  uuid.UUID                  `gorm:"type:uuid;not null;index"`
	Quantity decimal.Decimal            `gorm:"type:decimal(18,4);not null"`
	Rate     decimal.Decimal            `gorm:"type:decimal(18,4);not null;default:0"`
	Discount decimal.Decimal            `gorm:"type:decimal(18,4);not null;default:0"`
	VAT      decimal.Decimal            `gorm:"column:vat;type:decimal(18,4);not null;default:0"`
	Tax      decimal.Decimal            `gorm:"type:decimal(18,4);not null;default:0"`
	Status   delivery.ShortReturnStatus `gorm:"type:varchar(10);not null"`
}

// TableName returns the table name for GORM
func (ShortReturnItemModel) TableName() string {
	return "short_return_items"
}

// ToDomain converts the persistence model to a domain ShortReturnItem
func (m *ShortReturnItemModel) ToDomain() delivery.ShortReturnItem {
	return delivery.ShortReturnItem{
		ID:       m.ID,
		LogID:    m.LogID,
		StockID:  m.StockID,
		Quantity: m.Quantity,
		Rate:     m.Rate,
		Discount: m.Discount,
		VAT:      m.VAT,
		Tax:      m.Tax,
		Status:   m.Status,
	}
}

// FromDomain populates the persistence model from a domain ShortReturnItem
func (m *ShortReturnItemModel) FromDomain(i delivery.ShortReturnItem, tenantID uuid.UUID, now time.Time) {
	m.ID = i.ID
	m.TenantID = tenantID
	m.LogID = i.LogID
	m.StockID = i.StockID
	m.Quantity = i.Quantity
	m.Rate = i.Rate
	m.Discount = i.Discount
	m.VAT = i.VAT
	m.Tax = i.Tax
	m.Status = i.Status
	m.CreatedAt = now
	m.UpdatedAt = now
}

// InvoiceGroupModel is the persistence model for the InvoiceGroup aggregate root.
type InvoiceGroupModel struct {
	TenantAggregateModel
	OrganizationID     uuid.UUID       `gorm:"type:uuid;not null;index"`
	DeliveryDate       time.Time       `gorm:"type:date;not null;index"`
	SubTotal           decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	Discount           decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	RoundDiscount      decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	AdditionalDiscount decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	AdditionalCost     decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	TotalShort         decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	TotalReturn        decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
}

// TableName returns the table name for GORM
func (InvoiceGroupModel) TableName() string {
	return "invoice_groups"
}

// ToDomain converts the persistence model to a domain InvoiceGroup
func (m *InvoiceGroupModel) ToDomain() *delivery.InvoiceGroup {
	g := &delivery.InvoiceGroup{
		OrganizationID:     m.OrganizationID,
		DeliveryDate:       m.DeliveryDate,
		SubTotal:           m.SubTotal,
		Discount:           m.Discount,
		RoundDiscount:      m.RoundDiscount,
		AdditionalDiscount: m.AdditionalDiscount,
		AdditionalCost:     m.AdditionalCost,
		TotalShort:         m.TotalShort,
		TotalReturn:        m.TotalReturn,
	}
	g.TenantAggregateRoot = m.Root()
	return g
}

// FromDomain populates the persistence model from a domain InvoiceGroup
func (m *InvoiceGroupModel) FromDomain(g *delivery.InvoiceGroup) {
	m.SetRoot(g.TenantAggregateRoot)
	m.OrganizationID = g.OrganizationID
	m.DeliveryDate = g.DeliveryDate
	m.SubTotal = g.SubTotal
	m.Discount = g.Discount
	m.RoundDiscount = g.RoundDiscount
	m.AdditionalDiscount = g.AdditionalDiscount
	m.AdditionalCost = g.AdditionalCost
	m.TotalShort = g.TotalShort
	m.TotalReturn = g.TotalReturn
}

// InvoiceGroupModelFromDomain creates a new persistence model from a domain InvoiceGroup
func InvoiceGroupModelFromDomain(g *delivery.InvoiceGroup) *InvoiceGroupModel {
	m := &InvoiceGroupModel{}
	m.FromDomain(g)
	return m
}

// OrderModel is the persistence model for customer orders.
type OrderModel struct {
	BaseModel
	TenantID       uuid.UUID            `gorm:"type:uuid;not null;index"`
	InvoiceGroupID uuid.UUID            `gorm:"type:uuid;not null;index"`
	OrganizationID uuid.UUID            `gorm:"type:uuid;not null;index"`
	Status         delivery.OrderStatus `gorm:"type:varchar(20);not null;default:'PENDING'"`
	Items          []OrderItemModel     `gorm:"foreignKey:OrderID;references:ID"`
}

// TableName returns the table name for GORM
func (OrderModel) TableName() string {
	return "orders"
}

// ToDomain converts the persistence model to a domain Order
func (m *OrderModel) ToDomain() *delivery.Order {
	o := &delivery.Order{
		ID:             m.ID,
		TenantID:       m.TenantID,
		InvoiceGroupID: m.InvoiceGroupID,
		OrganizationID: m.OrganizationID,
		Status:         m.Status,
		Items:          make([]delivery.OrderItem, len(m.Items)),
	}
	for i, item := range m.Items {
		o.Items[i] = delivery.OrderItem{
			ID:       item.ID,
			OrderID:  item.OrderID,
			StockID:  item.StockID,
			Quantity: item.Quantity,
			Rate:     item.Rate,
		}
	}
	return o
}

// OrderModelFromDomain creates a new persistence model from a domain Order
func OrderModelFromDomain(o *delivery.Order, now time.Time) *OrderModel {
	m := &OrderModel{
		BaseModel:      BaseModel{ID: o.ID, CreatedAt: now, UpdatedAt: now},
		TenantID:       o.TenantID,
		InvoiceGroupID: o.InvoiceGroupID,
		OrganizationID: o.OrganizationID,
		Status:         o.Status,
		Items:          make([]OrderItemModel, len(o.Items)),
	}
	for i, item := range o.Items {
		m.Items[i] = OrderItemModel{
			BaseModel: BaseModel{ID: item.ID, CreatedAt: now, UpdatedAt: now},
			OrderID:   o.ID,
			StockID:   item.StockID,
			Quantity:  item.Quantity,
			Rate:      item.Rate,
		}
	}
	return m
}

// OrderItemModel is the persistence model for ordered stock lines.
type OrderItemModel struct {
	BaseModel
	OrderID  uuid.UUID       `gorm:"type:uuid;not null;index"`
	StockID  uuid.UUID       `gorm:"type:uuid;not null;index"`
	Quantity decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Rate     decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
}

// TableName returns the table name for GORM
func (OrderItemModel) TableName() string {
	return "order_items"
}

// StockModel is the persistence model for salable stock rows.
type StockModel struct {
	BaseModel
	TenantID  uuid.UUID       `gorm:"type:uuid;not null;index"`
	Name      string          `gorm:"type:varchar(200);not null"`
	EcomStock decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
}

// TableName returns the table name for GORM
func (StockModel) TableName() string {
	return "stocks"
}

// ToDomain converts the persistence model to a domain Stock
func (m *StockModel) ToDomain() *delivery.Stock {
	return &delivery.Stock{ID: m.ID, TenantID: m.TenantID, Name: m.Name, EcomStock: m.EcomStock}
}

// OrganizationModel is the persistence model for customer pharmacies.
type OrganizationModel struct {
	BaseModel
	TenantID             uuid.UUID  `gorm:"type:uuid;not null;index"`
	Name                 string     `gorm:"type:varchar(200);not null"`
	PrimaryResponsibleID *uuid.UUID `gorm:"type:uuid;index"`
}

// TableName returns the table name for GORM
func (OrganizationModel) TableName() string {
	return "organizations"
}

// CourierModel is the persistence model for couriers.
type CourierModel struct {
	BaseModel
	TenantID  uuid.UUID              `gorm:"type:uuid;not null;index"`
	Name      string                 `gorm:"type:varchar(200);not null"`
	Status    delivery.CourierStatus `gorm:"type:varchar(10);not null;default:'ACTIVE'"`
	ManagerID *uuid.UUID             `gorm:"type:uuid"`
}

// TableName returns the table name for GORM
func (CourierModel) TableName() string {
	return "couriers"
}

// ToDomain converts the persistence model to a domain Courier
func (m *CourierModel) ToDomain() *delivery.Courier {
	return &delivery.Courier{ID: m.ID, TenantID: m.TenantID, Name: m.Name, Status: m.Status, ManagerID: m.ManagerID}
}

// DeliverySheetModel is the persistence model for top sheets and sub-sheets.
type DeliverySheetModel struct {
	TenantAggregateModel
	Alias                string               `gorm:"type:varchar(100);not null;index"`
	Name                 string               `gorm:"type:varchar(200);not null"`
	Type                 delivery.SheetType   `gorm:"type:varchar(20);not null;default:'DEFAULT'"`
	Status               delivery.SheetStatus `gorm:"type:varchar(10);not null;default:'ACTIVE';index:idx_delivery_sheet_status_date,priority:1"`
	SheetDate            time.Time            `gorm:"type:date;not null;index:idx_delivery_sheet_status_date,priority:2"`
	ResponsibleCourierID *uuid.UUID           `gorm:"type:uuid;index"`
	CoordinatorID        *uuid.UUID           `gorm:"type:uuid"`
	QueryFilters         string               `gorm:"type:text"`
	ShortAmount          decimal.Decimal      `gorm:"type:decimal(18,4);not null;default:0"`
	ReturnAmount         decimal.Decimal      `gorm:"type:decimal(18,4);not null;default:0"`
	TotalData            string               `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (DeliverySheetModel) TableName() string {
	return "delivery_sheets"
}

// ToDomain converts the persistence model to a domain DeliverySheet. The
// stored total_data is validated on the way in.
func (m *DeliverySheetModel) ToDomain() (*delivery.DeliverySheet, error) {
	data, err := delivery.ParseTotalData([]byte(m.TotalData))
	if err != nil {
		return nil, err
	}
	s := &delivery.DeliverySheet{
		Alias:                m.Alias,
		Name:                 m.Name,
		Type:                 m.Type,
		Status:               m.Status,
		SheetDate:            m.SheetDate,
		ResponsibleCourierID: m.ResponsibleCourierID,
		CoordinatorID:        m.CoordinatorID,
		QueryFilters:         m.QueryFilters,
		ShortAmount:          m.ShortAmount,
		ReturnAmount:         m.ReturnAmount,
		TotalData:            data,
	}
	s.TenantAggregateRoot = m.Root()
	return s, nil
}

// FromDomain populates the persistence model from a domain DeliverySheet
func (m *DeliverySheetModel) FromDomain(s *delivery.DeliverySheet) error {
	data, err := s.TotalData.Marshal()
	if err != nil {
		return err
	}
	m.SetRoot(s.TenantAggregateRoot)
	m.Alias = s.Alias
	m.Name = s.Name
	m.Type = s.Type
	m.Status = s.Status
	m.SheetDate = s.SheetDate
	m.ResponsibleCourierID = s.ResponsibleCourierID
	m.CoordinatorID = s.CoordinatorID
	m.QueryFilters = s.QueryFilters
	m.ShortAmount = s.ShortAmount
	m.ReturnAmount = s.ReturnAmount
	m.TotalData = string(data)
	return nil
}

// DeliverySheetItemModel is the persistence model for sheet items.
type DeliverySheetItemModel struct {
	BaseModel
	TenantID              uuid.UUID            `gorm:"type:uuid;not null;index"`
	TopSheetID            uuid.UUID            `gorm:"type:uuid;not null;index"`
	SubSheetID            *uuid.UUID           `gorm:"type:uuid;index"`
	OrganizationID        uuid.UUID            `gorm:"type:uuid;not null;index"`
	Status                delivery.SheetStatus `gorm:"type:varchar(10);not null;default:'ACTIVE'"`
	TotalItemOrder        decimal.Decimal      `gorm:"type:decimal(18,4);not null;default:0"`
	TotalItemShort        decimal.Decimal      `gorm:"type:decimal(18,4);not null;default:0"`
	TotalItemReturn       decimal.Decimal      `gorm:"type:decimal(18,4);not null;default:0"`
	TotalUniqueItemOrder  int                  `gorm:"not null;default:0"`
	TotalUniqueItemShort  int                  `gorm:"not null;default:0"`
	TotalUniqueItemReturn int                  `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (DeliverySheetItemModel) TableName() string {
	return "delivery_sheet_items"
}

// ToDomain converts the persistence model to a domain DeliverySheetItem
func (m *DeliverySheetItemModel) ToDomain() *delivery.DeliverySheetItem {
	return &delivery.DeliverySheetItem{
		ID:                    m.ID,
		TenantID:              m.TenantID,
		TopSheetID:            m.TopSheetID,
		SubSheetID:            m.SubSheetID,
		OrganizationID:        m.OrganizationID,
		Status:                m.Status,
		TotalItemOrder:        m.TotalItemOrder,
		TotalItemShort:        m.TotalItemShort,
		TotalItemReturn:       m.TotalItemReturn,
		TotalUniqueItemOrder:  m.TotalUniqueItemOrder,
		TotalUniqueItemShort:  m.TotalUniqueItemShort,
		TotalUniqueItemReturn: m.TotalUniqueItemReturn,
	}
}

// DeliverySheetItemModelFromDomain creates a new persistence model from a domain DeliverySheetItem
func DeliverySheetItemModelFromDomain(i *delivery.DeliverySheetItem, now time.Time) *DeliverySheetItemModel {
	return &DeliverySheetItemModel{
		BaseModel:             BaseModel{ID: i.ID, CreatedAt: now, UpdatedAt: now},
		TenantID:              i.TenantID,
		TopSheetID:            i.TopSheetID,
		SubSheetID:            i.SubSheetID,
		OrganizationID:        i.OrganizationID,
		Status:                i.Status,
		TotalItemOrder:        i.TotalItemOrder,
		TotalItemShort:        i.TotalItemShort,
		TotalItemReturn:       i.TotalItemReturn,
		TotalUniqueItemOrder:  i.TotalUniqueItemOrder,
		TotalUniqueItemShort:  i.TotalUniqueItemShort,
		TotalUniqueItemReturn: i.TotalUniqueItemReturn,
	}
}

// DeliverySheetLinkModel is the persistence model for item to invoice group links.
type DeliverySheetLinkModel struct {
	BaseModel
	TenantID       uuid.UUID            `gorm:"type:uuid;not null;index"`
	ItemID         uuid.UUID            `gorm:"type:uuid;not null;index"`
	InvoiceGroupID uuid.UUID            `gorm:"type:uuid;not null;index"`
	Status         delivery.SheetStatus `gorm:"type:varchar(10);not null;default:'ACTIVE'"`
	TotalShort     decimal.Decimal      `gorm:"type:decimal(18,4);not null;default:0"`
	TotalReturn    decimal.Decimal      `gorm:"type:decimal(18,4);not null;default:0"`
}

// TableName returns the table name for GORM
func (DeliverySheetLinkModel) TableName() string {
	return "delivery_sheet_invoice_group_links"
}

// ToDomain converts the persistence model to a domain DeliverySheetLink
func (m *DeliverySheetLinkModel) ToDomain() *delivery.DeliverySheetLink {
	return &delivery.DeliverySheetLink{
		ID:             m.ID,
		TenantID:       m.TenantID,
		ItemID:         m.ItemID,
		InvoiceGroupID: m.InvoiceGroupID,
		Status:         m.Status,
		TotalShort:     m.TotalShort,
		TotalReturn:    m.TotalReturn,
	}
}

// DeliverySheetLinkModelFromDomain creates a new persistence model from a domain DeliverySheetLink
func DeliverySheetLinkModelFromDomain(l *delivery.DeliverySheetLink, now time.Time) *DeliverySheetLinkModel {
	return &DeliverySheetLinkModel{
		BaseModel:      BaseModel{ID: l.ID, CreatedAt: now, UpdatedAt: now},
		TenantID:       l.TenantID,
		ItemID:         l.ItemID,
		InvoiceGroupID: l.InvoiceGroupID,
		Status:         l.Status,
		TotalShort:     l.TotalShort,
		TotalReturn:    l.TotalReturn,
	}
}

// TopSheetSubSheetModel joins a top sheet to a sub-sheet. The unique index
// makes concurrent sub-sheet creation for the same courier and date collapse
// onto one row.
type TopSheetSubSheetModel struct {
	BaseModel
	TenantID             uuid.UUID `gorm:"type:uuid;not null;index"`
	TopSheetID           uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_top_sheet_courier_date,priority:1"`
	SubSheetID           uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"`
	ResponsibleCourierID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_top_sheet_courier_date,priority:2"`
	SheetDate            time.Time `gorm:"type:date;not null;uniqueIndex:idx_top_sheet_courier_date,priority:3"`
}

// TableName returns the table name for GORM
func (TopSheetSubSheetModel) TableName() string {
	return "top_sheet_sub_sheets"
}

// ToDomain converts the persistence model to a domain TopSheetSubSheet
func (m *TopSheetSubSheetModel) ToDomain() *delivery.TopSheetSubSheet {
	return &delivery.TopSheetSubSheet{
		ID:                   m.ID,
		TopSheetID:           m.TopSheetID,
		SubSheetID:           m.SubSheetID,
		ResponsibleCourierID: m.ResponsibleCourierID,
		SheetDate:            m.SheetDate,
	}
}

// AllModels returns every model in migration order
func AllModels() []any {
	return []any{
		&OrganizationModel{},
		&CourierModel{},
		&StockModel{},
		&InvoiceGroupModel{},
		&OrderModel{},
		&OrderItemModel{},
		&ShortReturnLogModel{},
		&ShortReturnItemModel{},
		&DeliverySheetModel{},
		&DeliverySheetItemModel{},
		&DeliverySheetLinkModel{},
		&TopSheetSubSheetModel{},
		&OutboxEntryModel{},
	}
}
