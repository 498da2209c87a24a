package delivery

import (
	"time"

	"github.com/google/uuid"
	"github.com/pharmaerp/backend/internal/domain/delivery"
	"github.com/shopspring/decimal"
)

// ==================== Short/Return Log DTOs ====================

// CreateShortReturnLogRequest represents a request to record a short or a return
type CreateShortReturnLogRequest struct {
	OrderID        uuid.UUID                `json:"order_id" binding:"required"`
	InvoiceGroupID uuid.UUID                `json:"invoice_group_id" binding:"required"`
	Kind           string                   `json:"kind" binding:"required,oneof=SHORT RETURN"`
	Status         string                   `json:"status" binding:"omitempty,oneof=DRAFT ACTIVE"`
	ReceivedBy     *uuid.UUID               `json:"received_by"`
	LogDate        *time.Time               `json:"log_date"`
	RoundDiscount  decimal.Decimal          `json:"round_discount" binding:"gte=0"`
	Remark         string                   `json:"remark" binding:"max=500"`
	Items          []ShortReturnItemRequest `json:"items" binding:"required,min=1,dive"`
}

// ShortReturnItemRequest represents one product line of a short/return request
type ShortReturnItemRequest struct {
	StockID  uuid.UUID       `json:"stock_id" binding:"required"`
	Quantity decimal.Decimal `json:"quantity" binding:"gt=0"`
	Rate     decimal.Decimal `json:"rate" binding:"gte=0"`
	Discount decimal.Decimal `json:"discount" binding:"gte=0"`
	VAT      decimal.Decimal `json:"vat" binding:"gte=0"`
	Tax      decimal.Decimal `json:"tax" binding:"gte=0"`
}

// ShortReturnLogResponse represents a short/return log in API responses
type ShortReturnLogResponse struct {
	ID             uuid.UUID                 `json:"id"`
	TenantID       uuid.UUID                 `json:"tenant_id"`
	OrderID        uuid.UUID                 `json:"order_id"`
	InvoiceGroupID uuid.UUID                 `json:"invoice_group_id"`
	Kind           string                    `json:"kind"`
	Status         string                    `json:"status"`
	ReceivedBy     uuid.UUID                 `json:"received_by"`
	LogDate        time.Time                 `json:"log_date"`
	Amount         decimal.Decimal           `json:"amount"`
	RoundDiscount  decimal.Decimal           `json:"round_discount"`
	ApprovedBy     *uuid.UUID                `json:"approved_by,omitempty"`
	ApprovedAt     *time.Time                `json:"approved_at,omitempty"`
	UpdatedBy      *uuid.UUID                `json:"updated_by,omitempty"`
	Remark         string                    `json:"remark,omitempty"`
	Items          []ShortReturnItemResponse `json:"items"`
	Version        int                       `json:"version"`
	CreatedAt      time.Time                 `json:"created_at"`
	UpdatedAt      time.Time                 `json:"updated_at"`
}

// ShortReturnItemResponse represents one product line in API responses
type ShortReturnItemResponse struct {
	ID        uuid.UUID       `json:"id"`
	StockID   uuid.UUID       `json:"stock_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	Rate      decimal.Decimal `json:"rate"`
	Discount  decimal.Decimal `json:"discount"`
	VAT       decimal.Decimal `json:"vat"`
	Tax       decimal.Decimal `json:"tax"`
	NetAmount decimal.Decimal `json:"net_amount"`
	Status    string          `json:"status"`
}

// ToShortReturnLogResponse converts a domain log to its response
func ToShortReturnLogResponse(l *delivery.ShortReturnLog) ShortReturnLogResponse {
	items := make([]ShortReturnItemResponse, len(l.Items))
	for i, item := range l.Items {
		items[i] = ShortReturnItemResponse{
			ID:        item.ID,
			StockID:   item.StockID,
			Quantity:  item.Quantity,
			Rate:      item.Rate,
			Discount:  item.Discount,
			VAT:       item.VAT,
			Tax:       item.Tax,
			NetAmount: item.NetAmount(),
			Status:    string(item.Status),
		}
	}
	return ShortReturnLogResponse{
		ID:             l.ID,
		TenantID:       l.TenantID,
		OrderID:        l.OrderID,
		InvoiceGroupID: l.InvoiceGroupID,
		Kind:           string(l.Kind),
		Status:         string(l.Status),
		ReceivedBy:     l.ReceivedBy,
		LogDate:        l.LogDate,
		Amount:         l.Amount,
		RoundDiscount:  l.RoundDiscount,
		ApprovedBy:     l.ApprovedBy,
		ApprovedAt:     l.ApprovedAt,
		UpdatedBy:      l.UpdatedBy,
		Remark:         l.Remark,
		Items:          items,
		Version:        l.Version,
		CreatedAt:      l.CreatedAt,
		UpdatedAt:      l.UpdatedAt,
	}
}

// ==================== Delivery Sheet DTOs ====================

// GenerateSheetRequest represents a request to build a top sheet from invoice groups
type GenerateSheetRequest struct {
	Name                 string      `json:"name" binding:"required,min=1,max=200"`
	Alias                string      `json:"alias" binding:"max=100"`
	SheetDate            time.Time   `json:"sheet_date" binding:"required"`
	ResponsibleCourierID *uuid.UUID  `json:"responsible_courier_id"`
	InvoiceGroupIDs      []uuid.UUID `json:"invoice_group_ids" binding:"required,min=1"`
	QueryFilters         string      `json:"query_filters"`
}

// AssignSubSheetRequest represents a request to split part of a top sheet off to a courier.
// An empty organization list selects the organizations the courier is primarily responsible for.
type AssignSubSheetRequest struct {
	CourierID       uuid.UUID   `json:"courier_id" binding:"required"`
	OrganizationIDs []uuid.UUID `json:"organization_ids"`
}

// DeliverySheetResponse represents a sheet in API responses
type DeliverySheetResponse struct {
	ID                   uuid.UUID          `json:"id"`
	TenantID             uuid.UUID          `json:"tenant_id"`
	Alias                string             `json:"alias"`
	Name                 string             `json:"name"`
	Type                 string             `json:"type"`
	Status               string             `json:"status"`
	SheetDate            time.Time          `json:"sheet_date"`
	ResponsibleCourierID *uuid.UUID         `json:"responsible_courier_id,omitempty"`
	CoordinatorID        *uuid.UUID         `json:"coordinator_id,omitempty"`
	ShortAmount          decimal.Decimal    `json:"short_amount"`
	ReturnAmount         decimal.Decimal    `json:"return_amount"`
	TotalData            delivery.TotalData `json:"total_data"`
	Version              int                `json:"version"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
}

// ToDeliverySheetResponse converts a domain sheet to its response
func ToDeliverySheetResponse(s *delivery.DeliverySheet) DeliverySheetResponse {
	return DeliverySheetResponse{
		ID:                   s.ID,
		TenantID:             s.TenantID,
		Alias:                s.Alias,
		Name:                 s.Name,
		Type:                 string(s.Type),
		Status:               string(s.Status),
		SheetDate:            s.SheetDate,
		ResponsibleCourierID: s.ResponsibleCourierID,
		CoordinatorID:        s.CoordinatorID,
		ShortAmount:          s.ShortAmount,
		ReturnAmount:         s.ReturnAmount,
		TotalData:            s.TotalData,
		Version:              s.Version,
		CreatedAt:            s.CreatedAt,
		UpdatedAt:            s.UpdatedAt,
	}
}

// SubSheetResponse reports the outcome of a sub-sheet assignment
type SubSheetResponse struct {
	Sheet         DeliverySheetResponse `json:"sheet"`
	Created       bool                  `json:"created"`
	AssignedItems int                   `json:"assigned_items"`
}

// ApprovalResponse reports the outcome of a bulk approval
type ApprovalResponse struct {
	HasDraft      bool                   `json:"has_draft"`
	ApprovedCount int                    `json:"approved_count"`
	Summary       delivery.StatusBuckets `json:"summary"`
}

// RepairResponse reports what a mismatch repair rewrote
type RepairResponse struct {
	SheetID              uuid.UUID               `json:"sheet_id"`
	Alias                string                  `json:"alias"`
	InvoiceGroupsUpdated int                     `json:"invoice_groups_updated"`
	LinksUpdated         int                     `json:"links_updated"`
	ItemsUpdated         int                     `json:"items_updated"`
	SheetsUpdated        int                     `json:"sheets_updated"`
	Before               delivery.MismatchReport `json:"before"`
	After                delivery.MismatchReport `json:"after"`
}

// SweepResult summarizes one periodic reconciliation pass
type SweepResult struct {
	Checked    int `json:"checked"`
	Mismatched int `json:"mismatched"`
	Repaired   int `json:"repaired"`
	Failed     int `json:"failed"`
}
