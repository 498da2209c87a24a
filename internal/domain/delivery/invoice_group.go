package delivery

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pharmaerp/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// InvoiceGroup is one customer's consolidated order for one delivery date
type InvoiceGroup struct {
	shared.TenantAggregateRoot
	OrganizationID     uuid.UUID
	DeliveryDate       time.Time
	SubTotal           decimal.Decimal
	Discount           decimal.Decimal
	RoundDiscount      decimal.Decimal
	AdditionalDiscount decimal.Decimal
	AdditionalCost     decimal.Decimal
	TotalShort         decimal.Decimal
	TotalReturn        decimal.Decimal
}

// OrderAmount is the billed amount before shorts and returns
func (g *InvoiceGroup) OrderAmount() decimal.Decimal {
	return g.SubTotal.
		Sub(g.Discount).
		Add(g.RoundDiscount).
		Sub(g.AdditionalDiscount).
		Add(g.AdditionalCost)
}

// GrandTotal is the amount still due once shorts and returns are deducted
func (g *InvoiceGroup) GrandTotal() decimal.Decimal {
	return g.OrderAmount().Sub(g.TotalShort).Sub(g.TotalReturn)
}

// TotalFor returns the cached rollup for a kind
func (g *InvoiceGroup) TotalFor(kind ShortReturnKind) decimal.Decimal {
	if kind == KindReturn {
		return g.TotalReturn
	}
	return g.TotalShort
}

// InvoiceGroupRecompute reports what a rollup recompute changed
type InvoiceGroupRecompute struct {
	Kind                       ShortReturnKind
	PreviousTotal              decimal.Decimal
	Total                      decimal.Decimal
	PreviousAdditionalDiscount decimal.Decimal
	AdditionalDiscount         decimal.Decimal
	Discount                   *Discount
}

// Changed reports whether any persisted field moved
func (r InvoiceGroupRecompute) Changed() bool {
	return !r.PreviousTotal.Equal(r.Total) || !r.PreviousAdditionalDiscount.Equal(r.AdditionalDiscount)
}

// RecomputeTotal rewrites the rollup for kind from the given logs. Only ACTIVE
// logs of the same invoice group and kind count. When a discount rule is
// supplied the additional discount is re-derived from the net amount first;
// in every case a grand total at or below zero clears the additional discount.
func (g *InvoiceGroup) RecomputeTotal(kind ShortReturnKind, logs []*ShortReturnLog, rule DiscountRule) InvoiceGroupRecompute {
	result := InvoiceGroupRecompute{
		Kind:                       kind,
		PreviousTotal:              g.TotalFor(kind),
		PreviousAdditionalDiscount: g.AdditionalDiscount,
	}

	total := decimal.Zero
	for _, log := range logs {
		if log.InvoiceGroupID != g.ID || log.Kind != kind || log.Status != LogStatusActive {
			continue
		}
		total = total.Add(log.RolledUpAmount())
	}

	if kind == KindReturn {
		g.TotalReturn = total
	} else {
		g.TotalShort = total
	}

	if rule != nil {
		net := g.SubTotal.Sub(g.Discount).Add(g.RoundDiscount).Add(g.AdditionalCost).Sub(g.TotalShort).Sub(g.TotalReturn)
		if net.IsPositive() {
			discount := rule.DiscountFor(net)
			g.AdditionalDiscount = discount.Amount
			result.Discount = &discount
		} else {
			g.AdditionalDiscount = decimal.Zero
		}
	}

	if !g.GrandTotal().IsPositive() {
		g.AdditionalDiscount = decimal.Zero
	}

	result.Total = total
	result.AdditionalDiscount = g.AdditionalDiscount
	return result
}

// Discount is the outcome of a discount rule
type Discount struct {
	Percentage decimal.Decimal
	Amount     decimal.Decimal
}

// DiscountRule derives an additional discount from an order amount
type DiscountRule interface {
	DiscountFor(total decimal.Decimal) Discount
}

// DiscountTier grants Percentage off once an order reaches MinAmount
type DiscountTier struct {
	MinAmount  decimal.Decimal
	Percentage decimal.Decimal
}

// TieredDiscountRule picks the highest tier an amount qualifies for
type TieredDiscountRule struct {
	tiers []DiscountTier
}

// NewTieredDiscountRule builds a rule from tiers in any order
func NewTieredDiscountRule(tiers []DiscountTier) *TieredDiscountRule {
	sorted := make([]DiscountTier, len(tiers))
	copy(sorted, tiers)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].MinAmount.GreaterThan(sorted[j].MinAmount)
	})
	return &TieredDiscountRule{tiers: sorted}
}

// DiscountFor returns the discount for total, rounded to cents
func (r *TieredDiscountRule) DiscountFor(total decimal.Decimal) Discount {
	for _, tier := range r.tiers {
		if total.GreaterThanOrEqual(tier.MinAmount) {
			return Discount{
				Percentage: tier.Percentage,
				Amount:     total.Mul(tier.Percentage).Div(decimal.NewFromInt(100)).Round(2),
			}
		}
	}
	return Discount{Percentage: decimal.Zero, Amount: decimal.Zero}
}

// OrderStatus is the delivery outcome of an order
type OrderStatus string

const (
	OrderStatusPending          OrderStatus = "PENDING"
	OrderStatusDelivered        OrderStatus = "DELIVERED"
	OrderStatusPartialDelivered OrderStatus = "PARTIAL_DELIVERED"
	OrderStatusFullReturned     OrderStatus = "FULL_RETURNED"
	OrderStatusCancelled        OrderStatus = "CANCELLED"
)

// Order is a customer order inside an invoice group
type Order struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	InvoiceGroupID uuid.UUID
	OrganizationID uuid.UUID
	Status         OrderStatus
	Items          []OrderItem
}

// OrderItem is one ordered stock line
type OrderItem struct {
	ID       uuid.UUID
	OrderID  uuid.UUID
	StockID  uuid.UUID
	Quantity decimal.Decimal
	Rate     decimal.Decimal
}

// QuantityByStock sums ordered quantities per stock
func (o *Order) QuantityByStock() map[uuid.UUID]decimal.Decimal {
	out := make(map[uuid.UUID]decimal.Decimal, len(o.Items))
	for _, item := range o.Items {
		out[item.StockID] = out[item.StockID].Add(item.Quantity)
	}
	return out
}

// Stock is a salable stock row
type Stock struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	Name      string
	EcomStock decimal.Decimal
}

// Organization is a customer pharmacy
type Organization struct {
	ID                   uuid.UUID
	TenantID             uuid.UUID
	Name                 string
	PrimaryResponsibleID *uuid.UUID
}

// CourierStatus is the employment state of a courier
type CourierStatus string

const (
	CourierStatusActive   CourierStatus = "ACTIVE"
	CourierStatusDraft    CourierStatus = "DRAFT"
	CourierStatusInactive CourierStatus = "INACTIVE"
)

// Courier delivers sheets and may own sub-sheets
type Courier struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	Name      string
	Status    CourierStatus
	ManagerID *uuid.UUID
}

// IsAssignable reports whether the courier may receive a sub-sheet
func (c *Courier) IsAssignable() bool {
	return c.Status == CourierStatusActive || c.Status == CourierStatusDraft
}
