package delivery

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pharmaerp/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// ShortReturnKind tells whether a log records undelivered goods or goods sent back
type ShortReturnKind string

const (
	KindShort  ShortReturnKind = "SHORT"
	KindReturn ShortReturnKind = "RETURN"
)

// AllKinds lists every kind in a stable order
var AllKinds = []ShortReturnKind{KindShort, KindReturn}

// IsValid reports whether k is a known kind
func (k ShortReturnKind) IsValid() bool {
	return k == KindShort || k == KindReturn
}

// ShortReturnStatus is the lifecycle state of a short/return log
type ShortReturnStatus string

const (
	LogStatusDraft    ShortReturnStatus = "DRAFT"
	LogStatusActive   ShortReturnStatus = "ACTIVE"
	LogStatusInactive ShortReturnStatus = "INACTIVE"
)

// IsValid reports whether s is a known status
func (s ShortReturnStatus) IsValid() bool {
	switch s {
	case LogStatusDraft, LogStatusActive, LogStatusInactive:
		return true
	}
	return false
}

// TransitionEffects describes what a status change must trigger
type TransitionEffects struct {
	From ShortReturnStatus
	To   ShortReturnStatus
	// CreditStock is set when returned units go back to salable stock
	CreditStock bool
	// Cascade is set when rollups above the log must be recomputed
	Cascade bool
}

// DecideTransition validates a move from one status to another and returns its
// side effects. An empty from means the log is being created.
func DecideTransition(kind ShortReturnKind, from, to ShortReturnStatus) (TransitionEffects, error) {
	if !kind.IsValid() {
		return TransitionEffects{}, shared.NewDomainError(shared.CodeInvalidInput, fmt.Sprintf("unknown short/return kind %q", kind))
	}

	allowed := false
	switch from {
	case "":
		allowed = to == LogStatusDraft || to == LogStatusActive
	case LogStatusDraft:
		allowed = to == LogStatusActive || to == LogStatusInactive
	case LogStatusActive:
		allowed = to == LogStatusInactive
	}
	if !allowed {
		origin := string(from)
		if origin == "" {
			origin = "NEW"
		}
		return TransitionEffects{}, shared.NewDomainError(CodeInvalidTransition,
			fmt.Sprintf("cannot move short/return log from %s to %s", origin, to))
	}

	return TransitionEffects{
		From:        from,
		To:          to,
		CreditStock: kind == KindReturn && to == LogStatusActive && from != LogStatusActive,
		Cascade:     true,
	}, nil
}

// StockCredit is a pending increment of a stock's salable quantity
type StockCredit struct {
	StockID  uuid.UUID
	Quantity decimal.Decimal
}

// ShortReturnItem is one product line of a short/return log
type ShortReturnItem struct {
	ID       uuid.UUID
	LogID    uuid.UUID
	StockID  uuid.UUID
	Quantity decimal.Decimal
	Rate     decimal.Decimal
	Discount decimal.Decimal
	VAT      decimal.Decimal
	Tax      decimal.Decimal
	Status   ShortReturnStatus
}

// NetAmount returns price minus discount plus taxes
func (i ShortReturnItem) NetAmount() decimal.Decimal {
	return i.Quantity.Mul(i.Rate).Sub(i.Discount).Add(i.VAT).Add(i.Tax)
}

// ShortReturnLog records a short or a return against one order of one invoice group
type ShortReturnLog struct {
	shared.TenantAggregateRoot
	OrderID        uuid.UUID
	InvoiceGroupID uuid.UUID
	Kind           ShortReturnKind
	Status         ShortReturnStatus
	ReceivedBy     uuid.UUID
	LogDate        time.Time
	Amount         decimal.Decimal
	RoundDiscount  decimal.Decimal
	ApprovedBy     *uuid.UUID
	ApprovedAt     *time.Time
	UpdatedBy      *uuid.UUID
	Remark         string
	Items          []ShortReturnItem

	pendingCredits []StockCredit
}

// ShortReturnItemInput carries one requested product line
type ShortReturnItemInput struct {
	StockID  uuid.UUID
	Quantity decimal.Decimal
	Rate     decimal.Decimal
	Discount decimal.Decimal
	VAT      decimal.Decimal
	Tax      decimal.Decimal
}

// NewShortReturnLogInput carries everything needed to open a log
type NewShortReturnLogInput struct {
	TenantID       uuid.UUID
	OrderID        uuid.UUID
	InvoiceGroupID uuid.UUID
	Kind           ShortReturnKind
	Status         ShortReturnStatus
	ReceivedBy     uuid.UUID
	CreatedBy      uuid.UUID
	LogDate        time.Time
	RoundDiscount  decimal.Decimal
	Remark         string
	Items          []ShortReturnItemInput
}

// NewShortReturnLog opens a log in DRAFT or ACTIVE. Logs entered directly by a
// courier skip DRAFT and are stamped as approved by their creator.
func NewShortReturnLog(in NewShortReturnLogInput, now time.Time) (*ShortReturnLog, error) {
	if in.TenantID == uuid.Nil || in.OrderID == uuid.Nil || in.InvoiceGroupID == uuid.Nil {
		return nil, shared.NewValidationError("tenant, order and invoice group are required")
	}
	if in.ReceivedBy == uuid.Nil {
		return nil, shared.NewValidationError("receiver is required")
	}
	if len(in.Items) == 0 {
		return nil, shared.NewValidationError("at least one item is required")
	}
	if in.RoundDiscount.IsNegative() {
		return nil, shared.NewValidationError("round discount cannot be negative")
	}

	effects, err := DecideTransition(in.Kind, "", in.Status)
	if err != nil {
		return nil, err
	}

	log := &ShortReturnLog{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(in.TenantID),
		OrderID:             in.OrderID,
		InvoiceGroupID:      in.InvoiceGroupID,
		Kind:                in.Kind,
		ReceivedBy:          in.ReceivedBy,
		LogDate:             DateOf(in.LogDate),
		RoundDiscount:       in.RoundDiscount,
		Remark:              in.Remark,
		Items:               make([]ShortReturnItem, 0, len(in.Items)),
	}
	log.SetCreatedBy(in.CreatedBy)
	log.CreatedAt = now
	log.UpdatedAt = now

	seen := make(map[uuid.UUID]struct{}, len(in.Items))
	amount := decimal.Zero
	for idx, item := range in.Items {
		if item.StockID == uuid.Nil {
			return nil, shared.NewValidationError(fmt.Sprintf("item %d: stock is required", idx+1))
		}
		if _, dup := seen[item.StockID]; dup {
			return nil, shared.NewValidationError(fmt.Sprintf("item %d: stock %s listed twice", idx+1, item.StockID))
		}
		seen[item.StockID] = struct{}{}
		if !item.Quantity.IsPositive() {
			return nil, shared.NewValidationError(fmt.Sprintf("item %d: quantity must be positive", idx+1))
		}
		if item.Rate.IsNegative() || item.Discount.IsNegative() || item.VAT.IsNegative() || item.Tax.IsNegative() {
			return nil, shared.NewValidationError(fmt.Sprintf("item %d: rate, discount and taxes cannot be negative", idx+1))
		}
		line := ShortReturnItem{
			ID:       uuid.New(),
			LogID:    log.ID,
			StockID:  item.StockID,
			Quantity: item.Quantity,
			Rate:     item.Rate,
			Discount: item.Discount,
			VAT:      item.VAT,
			Tax:      item.Tax,
		}
		if line.NetAmount().IsNegative() {
			return nil, shared.NewValidationError(fmt.Sprintf("item %d: discount exceeds line amount", idx+1))
		}
		amount = amount.Add(line.NetAmount())
		log.Items = append(log.Items, line)
	}
	log.Amount = amount

	if in.Status == LogStatusActive && in.CreatedBy != uuid.Nil {
		approver := in.CreatedBy
		approvedAt := now
		log.ApprovedBy = &approver
		log.ApprovedAt = &approvedAt
	}

	log.apply(effects, now)
	log.AddDomainEvent(NewShortReturnLogCreatedEvent(log))
	return log, nil
}

// Approve moves a DRAFT log to ACTIVE and stamps the approver
func (l *ShortReturnLog) Approve(approvedBy uuid.UUID, now time.Time) error {
	if approvedBy == uuid.Nil {
		return shared.NewValidationError("approver is required")
	}
	effects, err := DecideTransition(l.Kind, l.Status, LogStatusActive)
	if err != nil {
		return err
	}

	approvedAt := now
	l.ApprovedBy = &approvedBy
	l.ApprovedAt = &approvedAt
	l.UpdatedBy = &approvedBy
	l.apply(effects, now)
	l.AddDomainEvent(NewShortReturnLogStatusChangedEvent(l, effects.From))
	return nil
}

// Deactivate removes a DRAFT or ACTIVE log from every rollup. Logs whose
// invoice group was delivered more than windowDays ago are immutable.
func (l *ShortReturnLog) Deactivate(deliveryDate time.Time, windowDays int, updatedBy uuid.UUID, now time.Time) error {
	effects, err := DecideTransition(l.Kind, l.Status, LogStatusInactive)
	if err != nil {
		return err
	}
	if DeleteWindowExpired(deliveryDate, windowDays, now) {
		return ErrDeleteWindowExpired
	}

	if updatedBy != uuid.Nil {
		l.UpdatedBy = &updatedBy
	}
	l.apply(effects, now)
	l.AddDomainEvent(NewShortReturnLogStatusChangedEvent(l, effects.From))
	return nil
}

// apply moves the log and its items to the target status and records stock credits
func (l *ShortReturnLog) apply(effects TransitionEffects, now time.Time) {
	l.Status = effects.To
	for i := range l.Items {
		l.Items[i].Status = effects.To
	}
	if effects.CreditStock {
		for _, item := range l.Items {
			l.pendingCredits = append(l.pendingCredits, StockCredit{StockID: item.StockID, Quantity: item.Quantity})
		}
	}
	l.Touch(now)
}

// PullStockCredits returns the credits the last transitions require and clears them
func (l *ShortReturnLog) PullStockCredits() []StockCredit {
	credits := l.pendingCredits
	l.pendingCredits = nil
	return credits
}

// RolledUpAmount is what the log contributes to its invoice group's total
func (l *ShortReturnLog) RolledUpAmount() decimal.Decimal {
	return l.Amount.Add(l.RoundDiscount)
}

// QuantityByStock sums item quantities per stock
func (l *ShortReturnLog) QuantityByStock() map[uuid.UUID]decimal.Decimal {
	out := make(map[uuid.UUID]decimal.Decimal, len(l.Items))
	for _, item := range l.Items {
		out[item.StockID] = out[item.StockID].Add(item.Quantity)
	}
	return out
}

// DeleteWindowExpired reports whether deliveryDate lies before today minus windowDays
func DeleteWindowExpired(deliveryDate time.Time, windowDays int, now time.Time) bool {
	cutoff := DateOf(now).AddDate(0, 0, -windowDays)
	return DateOf(deliveryDate).Before(cutoff)
}

// DateOf truncates t to its calendar date at UTC midnight
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
