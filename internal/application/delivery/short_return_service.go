package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pharmaerp/backend/internal/domain/delivery"
	"github.com/pharmaerp/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultDeleteWindowDays is how many days after delivery a log may still be removed
const DefaultDeleteWindowDays = 3

// ShortReturnService handles short/return log operations
type ShortReturnService struct {
	logRepo          delivery.ShortReturnLogRepository
	groupRepo        delivery.InvoiceGroupRepository
	orderRepo        delivery.OrderRepository
	deleteWindowDays int
	logger           *zap.Logger
	now              func() time.Time
}

// NewShortReturnService creates a new ShortReturnService
func NewShortReturnService(
	logRepo delivery.ShortReturnLogRepository,
	groupRepo delivery.InvoiceGroupRepository,
	orderRepo delivery.OrderRepository,
	deleteWindowDays int,
	logger *zap.Logger,
) *ShortReturnService {
	if deleteWindowDays <= 0 {
		deleteWindowDays = DefaultDeleteWindowDays
	}
	return &ShortReturnService{
		logRepo:          logRepo,
		groupRepo:        groupRepo,
		orderRepo:        orderRepo,
		deleteWindowDays: deleteWindowDays,
		logger:           logger,
		now:              time.Now,
	}
}

// Create records a short or a return against an order. The invoice group
// rollup is brought up to date by the cascade.
func (s *ShortReturnService) Create(ctx context.Context, tenantID, userID uuid.UUID, req CreateShortReturnLogRequest) (*ShortReturnLogResponse, error) {
	now := s.now()

	order, err := s.orderRepo.FindByIDForTenant(ctx, tenantID, req.OrderID)
	if err != nil {
		return nil, err
	}
	if order.InvoiceGroupID != req.InvoiceGroupID {
		return nil, shared.NewValidationError("order does not belong to the invoice group")
	}
	if _, err := s.groupRepo.FindByIDForTenant(ctx, tenantID, req.InvoiceGroupID); err != nil {
		return nil, err
	}

	receivedBy := userID
	if req.ReceivedBy != nil {
		receivedBy = *req.ReceivedBy
	}
	logDate := now
	if req.LogDate != nil {
		logDate = *req.LogDate
	}
	status := delivery.ShortReturnStatus(req.Status)
	if status == "" {
		status = delivery.LogStatusDraft
	}

	exists, err := s.logRepo.ExistsOpen(ctx, tenantID, delivery.DateOf(logDate), req.InvoiceGroupID, receivedBy)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, delivery.ErrDuplicateLog
	}

	if err := s.checkRemainingQuantity(ctx, tenantID, order, req.Items); err != nil {
		return nil, err
	}

	items := make([]delivery.ShortReturnItemInput, len(req.Items))
	for i, item := range req.Items {
		items[i] = delivery.ShortReturnItemInput{
			StockID:  item.StockID,
			Quantity: item.Quantity,
			Rate:     item.Rate,
			Discount: item.Discount,
			VAT:      item.VAT,
			Tax:      item.Tax,
		}
	}

	log, err := delivery.NewShortReturnLog(delivery.NewShortReturnLogInput{
		TenantID:       tenantID,
		OrderID:        order.ID,
		InvoiceGroupID: order.InvoiceGroupID,
		Kind:           delivery.ShortReturnKind(req.Kind),
		Status:         status,
		ReceivedBy:     receivedBy,
		CreatedBy:      userID,
		LogDate:        logDate,
		RoundDiscount:  req.RoundDiscount,
		Remark:         req.Remark,
		Items:          items,
	}, now)
	if err != nil {
		return nil, err
	}

	events := log.GetDomainEvents()
	log.ClearDomainEvents()
	if err := s.logRepo.CreateWithEvents(ctx, log, events); err != nil {
		return nil, err
	}

	s.logger.Info("short/return log created",
		zap.String("log_id", log.ID.String()),
		zap.String("invoice_group_id", log.InvoiceGroupID.String()),
		zap.String("kind", string(log.Kind)),
		zap.String("status", string(log.Status)),
		zap.String("amount", log.Amount.String()),
	)

	response := ToShortReturnLogResponse(log)
	return &response, nil
}

// checkRemainingQuantity rejects lines that exceed what is left of the order
// once DRAFT and ACTIVE logs are deducted
func (s *ShortReturnService) checkRemainingQuantity(ctx context.Context, tenantID uuid.UUID, order *delivery.Order, items []ShortReturnItemRequest) error {
	open, err := s.logRepo.FindOpenByOrder(ctx, tenantID, order.ID)
	if err != nil {
		return err
	}
	used := make(map[uuid.UUID]decimal.Decimal)
	for _, log := range open {
		for stockID, qty := range log.QuantityByStock() {
			used[stockID] = used[stockID].Add(qty)
		}
	}

	ordered := order.QuantityByStock()
	for _, item := range items {
		orderedQty, ok := ordered[item.StockID]
		if !ok {
			return shared.NewValidationError(fmt.Sprintf("stock %s is not part of order %s", item.StockID, order.ID))
		}
		remaining := orderedQty.Sub(used[item.StockID])
		if item.Quantity.GreaterThan(remaining) {
			return shared.NewDomainError(delivery.CodeQuantityExceeded,
				fmt.Sprintf("quantity %s for stock %s exceeds the remaining %s", item.Quantity, item.StockID, remaining))
		}
	}
	return nil
}

// Approve moves a DRAFT log to ACTIVE
func (s *ShortReturnService) Approve(ctx context.Context, tenantID, userID, logID uuid.UUID) (*ShortReturnLogResponse, error) {
	log, err := s.logRepo.FindByIDForTenant(ctx, tenantID, logID)
	if err != nil {
		return nil, err
	}
	if err := log.Approve(userID, s.now()); err != nil {
		return nil, err
	}

	events := log.GetDomainEvents()
	log.ClearDomainEvents()
	if err := s.logRepo.SaveWithLockAndEvents(ctx, log, events); err != nil {
		return nil, err
	}

	s.logger.Info("short/return log approved",
		zap.String("log_id", log.ID.String()),
		zap.String("approved_by", userID.String()),
	)
	response := ToShortReturnLogResponse(log)
	return &response, nil
}

// Delete retires a log. Logs of invoice groups delivered before the delete
// window are rejected and left untouched.
func (s *ShortReturnService) Delete(ctx context.Context, tenantID, userID, logID uuid.UUID) error {
	log, err := s.logRepo.FindByIDForTenant(ctx, tenantID, logID)
	if err != nil {
		return err
	}
	group, err := s.groupRepo.FindByIDForTenant(ctx, tenantID, log.InvoiceGroupID)
	if err != nil {
		return err
	}
	if err := log.Deactivate(group.DeliveryDate, s.deleteWindowDays, userID, s.now()); err != nil {
		return err
	}

	events := log.GetDomainEvents()
	log.ClearDomainEvents()
	if err := s.logRepo.SaveWithLockAndEvents(ctx, log, events); err != nil {
		return err
	}

	s.logger.Info("short/return log deactivated",
		zap.String("log_id", log.ID.String()),
		zap.String("invoice_group_id", log.InvoiceGroupID.String()),
	)
	return nil
}

// GetByID retrieves a log by ID
func (s *ShortReturnService) GetByID(ctx context.Context, tenantID, logID uuid.UUID) (*ShortReturnLogResponse, error) {
	log, err := s.logRepo.FindByIDForTenant(ctx, tenantID, logID)
	if err != nil {
		return nil, err
	}
	response := ToShortReturnLogResponse(log)
	return &response, nil
}

// ListByInvoiceGroup lists every log of an invoice group
func (s *ShortReturnService) ListByInvoiceGroup(ctx context.Context, tenantID, groupID uuid.UUID) ([]ShortReturnLogResponse, error) {
	if _, err := s.groupRepo.FindByIDForTenant(ctx, tenantID, groupID); err != nil {
		return nil, err
	}
	logs, err := s.logRepo.FindByInvoiceGroup(ctx, tenantID, groupID)
	if err != nil {
		return nil, err
	}
	out := make([]ShortReturnLogResponse, len(logs))
	for i, log := range logs {
		out[i] = ToShortReturnLogResponse(log)
	}
	return out, nil
}
