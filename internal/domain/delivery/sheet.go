package delivery

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pharmaerp/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// SheetType distinguishes full routes from courier partitions
type SheetType string

const (
	SheetTypeDefault     SheetType = "DEFAULT"
	SheetTypeSubTopSheet SheetType = "SUB_TOP_SHEET"
)

// SheetStatus applies to sheets, sheet items and links
type SheetStatus string

const (
	SheetStatusActive   SheetStatus = "ACTIVE"
	SheetStatusInactive SheetStatus = "INACTIVE"
)

// DeliverySheet is either a top sheet or a sub-sheet
type DeliverySheet struct {
	shared.TenantAggregateRoot
	Alias                string
	Name                 string
	Type                 SheetType
	Status               SheetStatus
	SheetDate            time.Time
	ResponsibleCourierID *uuid.UUID
	CoordinatorID        *uuid.UUID
	QueryFilters         string
	ShortAmount          decimal.Decimal
	ReturnAmount         decimal.Decimal
	TotalData            TotalData
}

// NewTopSheet creates an empty top sheet
func NewTopSheet(tenantID uuid.UUID, name, alias string, sheetDate time.Time, courierID *uuid.UUID, queryFilters string) (*DeliverySheet, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, shared.NewValidationError("sheet name is required")
	}
	alias = strings.TrimSpace(alias)
	if alias == "" {
		alias = "TS-" + DateOf(sheetDate).Format("20060102") + "-" + uuid.NewString()[:8]
	}
	return &DeliverySheet{
		TenantAggregateRoot:  shared.NewTenantAggregateRoot(tenantID),
		Alias:                alias,
		Name:                 name,
		Type:                 SheetTypeDefault,
		Status:               SheetStatusActive,
		SheetDate:            DateOf(sheetDate),
		ResponsibleCourierID: courierID,
		QueryFilters:         queryFilters,
	}, nil
}

// NewSubSheetFor derives a courier-specific sub-sheet from a top sheet
func (s *DeliverySheet) NewSubSheetFor(courier *Courier) (*DeliverySheet, error) {
	if !s.IsTopSheet() {
		return nil, shared.NewValidationError("sub-sheets can only be split from a top sheet")
	}
	courierID := courier.ID
	root := shared.NewTenantAggregateRoot(s.TenantID)
	// unique across repeated splits for the same courier
	return &DeliverySheet{
		TenantAggregateRoot:  root,
		Alias:                s.Alias + "-" + courier.ID.String()[:8] + "-" + root.ID.String()[:6],
		Name:                 s.Name,
		Type:                 SheetTypeSubTopSheet,
		Status:               SheetStatusActive,
		SheetDate:            s.SheetDate,
		ResponsibleCourierID: &courierID,
		CoordinatorID:        courier.ManagerID,
		QueryFilters:         s.QueryFilters,
	}, nil
}

// IsTopSheet reports whether the sheet covers a full route
func (s *DeliverySheet) IsTopSheet() bool {
	return s.Type == SheetTypeDefault
}

// IsActive reports whether the sheet has not been removed
func (s *DeliverySheet) IsActive() bool {
	return s.Status == SheetStatusActive
}

// ApplyTotals overwrites the cached rollups and reports whether anything changed
func (s *DeliverySheet) ApplyTotals(t SheetTotals) bool {
	changed := !s.ShortAmount.Equal(t.ShortAmount) ||
		!s.ReturnAmount.Equal(t.ReturnAmount) ||
		!s.TotalData.Equal(t.TotalData)
	s.ShortAmount = t.ShortAmount
	s.ReturnAmount = t.ReturnAmount
	s.TotalData = t.TotalData
	return changed
}

// Deactivate flips the sheet to INACTIVE
func (s *DeliverySheet) Deactivate(now time.Time) error {
	if !s.IsActive() {
		return ErrSheetInactive
	}
	s.Status = SheetStatusInactive
	s.Touch(now)
	return nil
}

// DeliverySheetItem is one organization's consolidated delivery within a sheet
type DeliverySheetItem struct {
	ID                    uuid.UUID
	TenantID              uuid.UUID
	TopSheetID            uuid.UUID
	SubSheetID            *uuid.UUID
	OrganizationID        uuid.UUID
	Status                SheetStatus
	TotalItemOrder        decimal.Decimal
	TotalItemShort        decimal.Decimal
	TotalItemReturn       decimal.Decimal
	TotalUniqueItemOrder  int
	TotalUniqueItemShort  int
	TotalUniqueItemReturn int
}

// IsActive reports whether the item still counts towards its sheets
func (i *DeliverySheetItem) IsActive() bool {
	return i.Status == SheetStatusActive
}

// NetQuantity is the ordered quantity that actually stayed with the customer
func (i *DeliverySheetItem) NetQuantity() decimal.Decimal {
	return i.TotalItemOrder.Sub(i.TotalItemShort).Sub(i.TotalItemReturn)
}

// DeliverySheetLink binds one invoice group to one sheet item
type DeliverySheetLink struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	ItemID         uuid.UUID
	InvoiceGroupID uuid.UUID
	Status         SheetStatus
	TotalShort     decimal.Decimal
	TotalReturn    decimal.Decimal
}

// IsActive reports whether the link counts towards its sheets
func (l *DeliverySheetLink) IsActive() bool {
	return l.Status == SheetStatusActive
}

// TotalFor returns the cached link total for a kind
func (l *DeliverySheetLink) TotalFor(kind ShortReturnKind) decimal.Decimal {
	if kind == KindReturn {
		return l.TotalReturn
	}
	return l.TotalShort
}

// Mirror copies the invoice group's rollup for kind and reports a change
func (l *DeliverySheetLink) Mirror(group *InvoiceGroup, kind ShortReturnKind) bool {
	next := group.TotalFor(kind)
	if l.TotalFor(kind).Equal(next) {
		return false
	}
	if kind == KindReturn {
		l.TotalReturn = next
	} else {
		l.TotalShort = next
	}
	return true
}

// TopSheetSubSheet joins a top sheet to one of its sub-sheets. At most one
// row exists per top sheet, responsible courier and date.
type TopSheetSubSheet struct {
	ID                   uuid.UUID
	TopSheetID           uuid.UUID
	SubSheetID           uuid.UUID
	ResponsibleCourierID uuid.UUID
	SheetDate            time.Time
}
