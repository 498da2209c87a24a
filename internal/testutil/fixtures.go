package testutil

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pharmaerp/backend/internal/domain/delivery"
	"github.com/pharmaerp/backend/internal/domain/shared"
	"github.com/pharmaerp/backend/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// Fixture seeds reference rows for one tenant
type Fixture struct {
	t        *testing.T
	DB       *gorm.DB
	TenantID uuid.UUID
	Now      time.Time
}

// NewFixture creates a fixture for a fresh tenant
func NewFixture(t *testing.T, db *gorm.DB) *Fixture {
	return &Fixture{
		t:        t,
		DB:       db,
		TenantID: uuid.New(),
		Now:      time.Now().UTC(),
	}
}

// Dec parses a decimal literal and panics on malformed input
func Dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (f *Fixture) base() models.BaseModel {
	return models.BaseModel{ID: uuid.New(), CreatedAt: f.Now, UpdatedAt: f.Now}
}

func (f *Fixture) create(value any) {
	f.t.Helper()
	require.NoError(f.t, f.DB.Create(value).Error)
}

// Organization inserts a customer organization
func (f *Fixture) Organization(name string, primaryResponsible *uuid.UUID) uuid.UUID {
	f.t.Helper()
	m := &models.OrganizationModel{
		BaseModel:            f.base(),
		TenantID:             f.TenantID,
		Name:                 name,
		PrimaryResponsibleID: primaryResponsible,
	}
	f.create(m)
	return m.ID
}

// Courier inserts a courier with the given status
func (f *Fixture) Courier(name string, status delivery.CourierStatus, managerID *uuid.UUID) uuid.UUID {
	f.t.Helper()
	m := &models.CourierModel{
		BaseModel: f.base(),
		TenantID:  f.TenantID,
		Name:      name,
		Status:    status,
		ManagerID: managerID,
	}
	f.create(m)
	return m.ID
}

// Stock inserts a stock row with the given salable quantity
func (f *Fixture) Stock(name, ecomStock string) uuid.UUID {
	f.t.Helper()
	m := &models.StockModel{
		BaseModel: f.base(),
		TenantID:  f.TenantID,
		Name:      name,
		EcomStock: Dec(ecomStock),
	}
	f.create(m)
	return m.ID
}

// StockLevel reads back a stock's salable quantity
func (f *Fixture) StockLevel(id uuid.UUID) decimal.Decimal {
	f.t.Helper()
	var m models.StockModel
	require.NoError(f.t, f.DB.Where("id = ?", id).Take(&m).Error)
	return m.EcomStock
}

// InvoiceGroupSpec describes an invoice group to seed
type InvoiceGroupSpec struct {
	OrganizationID     uuid.UUID
	DeliveryDate       time.Time
	SubTotal           string
	Discount           string
	RoundDiscount      string
	AdditionalDiscount string
	AdditionalCost     string
}

func decOrZero(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	return Dec(s)
}

// InvoiceGroup inserts an invoice group with zero short/return totals
func (f *Fixture) InvoiceGroup(spec InvoiceGroupSpec) uuid.UUID {
	f.t.Helper()
	if spec.DeliveryDate.IsZero() {
		spec.DeliveryDate = f.Now
	}
	m := &models.InvoiceGroupModel{
		TenantAggregateModel: models.TenantAggregateModel{
			AggregateModel: models.AggregateModel{BaseModel: f.base(), Version: 1},
			TenantID:       f.TenantID,
		},
		OrganizationID:     spec.OrganizationID,
		DeliveryDate:       delivery.DateOf(spec.DeliveryDate),
		SubTotal:           decOrZero(spec.SubTotal),
		Discount:           decOrZero(spec.Discount),
		RoundDiscount:      decOrZero(spec.RoundDiscount),
		AdditionalDiscount: decOrZero(spec.AdditionalDiscount),
		AdditionalCost:     decOrZero(spec.AdditionalCost),
		TotalShort:         decimal.Zero,
		TotalReturn:        decimal.Zero,
	}
	f.create(m)
	return m.ID
}

// InvoiceGroupRow reads back an invoice group row
func (f *Fixture) InvoiceGroupRow(id uuid.UUID) models.InvoiceGroupModel {
	f.t.Helper()
	var m models.InvoiceGroupModel
	require.NoError(f.t, f.DB.Where("id = ?", id).Take(&m).Error)
	return m
}

// ExpireRetryBackoff makes every FAILED outbox task due immediately
func (f *Fixture) ExpireRetryBackoff() {
	f.t.Helper()
	require.NoError(f.t, f.DB.Model(&models.OutboxEntryModel{}).
		Where("status = ?", shared.OutboxStatusFailed).
		Update("next_retry_at", time.Unix(0, 0).UTC()).Error)
}

// OrderLine is one ordered stock line of a seeded order
type OrderLine struct {
	StockID  uuid.UUID
	Quantity string
	Rate     string
}

// Order inserts an order with its lines
func (f *Fixture) Order(invoiceGroupID, organizationID uuid.UUID, lines ...OrderLine) uuid.UUID {
	f.t.Helper()
	o := &delivery.Order{
		ID:             uuid.New(),
		TenantID:       f.TenantID,
		InvoiceGroupID: invoiceGroupID,
		OrganizationID: organizationID,
		Status:         delivery.OrderStatusDelivered,
	}
	for _, line := range lines {
		o.Items = append(o.Items, delivery.OrderItem{
			ID:       uuid.New(),
			OrderID:  o.ID,
			StockID:  line.StockID,
			Quantity: Dec(line.Quantity),
			Rate:     decOrZero(line.Rate),
		})
	}
	f.create(models.OrderModelFromDomain(o, f.Now))
	return o.ID
}

// Route is a seeded organization with one invoice group and one order
type Route struct {
	OrganizationID uuid.UUID
	InvoiceGroupID uuid.UUID
	OrderID        uuid.UUID
	StockID        uuid.UUID
}

// Route seeds an organization, its invoice group and an order of qty units
// of a fresh stock at rate
func (f *Fixture) Route(name string, responsible *uuid.UUID, subTotal, qty, rate string) Route {
	f.t.Helper()
	org := f.Organization(name, responsible)
	stock := f.Stock(name+" stock", "0")
	group := f.InvoiceGroup(InvoiceGroupSpec{OrganizationID: org, SubTotal: subTotal})
	order := f.Order(group, org, OrderLine{StockID: stock, Quantity: qty, Rate: rate})
	return Route{OrganizationID: org, InvoiceGroupID: group, OrderID: order, StockID: stock}
}
