package delivery

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pharmaerp/backend/internal/domain/delivery"
	"github.com/pharmaerp/backend/internal/domain/shared"
	"github.com/stretchr/testify/mock"
)

// MockShortReturnLogRepository is a mock implementation of ShortReturnLogRepository
type MockShortReturnLogRepository struct {
	mock.Mock
}

func (m *MockShortReturnLogRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*delivery.ShortReturnLog, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*delivery.ShortReturnLog), args.Error(1)
}

func (m *MockShortReturnLogRepository) FindByInvoiceGroup(ctx context.Context, tenantID, invoiceGroupID uuid.UUID) ([]*delivery.ShortReturnLog, error) {
	args := m.Called(ctx, tenantID, invoiceGroupID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*delivery.ShortReturnLog), args.Error(1)
}

func (m *MockShortReturnLogRepository) FindOpenByOrder(ctx context.Context, tenantID, orderID uuid.UUID) ([]*delivery.ShortReturnLog, error) {
	args := m.Called(ctx, tenantID, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*delivery.ShortReturnLog), args.Error(1)
}

func (m *MockShortReturnLogRepository) ExistsOpen(ctx context.Context, tenantID uuid.UUID, logDate time.Time, invoiceGroupID, receivedBy uuid.UUID) (bool, error) {
	args := m.Called(ctx, tenantID, logDate, invoiceGroupID, receivedBy)
	return args.Bool(0), args.Error(1)
}

func (m *MockShortReturnLogRepository) CreateWithEvents(ctx context.Context, log *delivery.ShortReturnLog, events []shared.DomainEvent) error {
	args := m.Called(ctx, log, events)
	return args.Error(0)
}

func (m *MockShortReturnLogRepository) SaveWithLockAndEvents(ctx context.Context, log *delivery.ShortReturnLog, events []shared.DomainEvent) error {
	args := m.Called(ctx, log, events)
	return args.Error(0)
}

func (m *MockShortReturnLogRepository) SaveAllWithLockAndEvents(ctx context.Context, logs []*delivery.ShortReturnLog, events []shared.DomainEvent) error {
	args := m.Called(ctx, logs, events)
	return args.Error(0)
}

// MockInvoiceGroupRepository is a mock implementation of InvoiceGroupRepository
type MockInvoiceGroupRepository struct {
	mock.Mock
}

func (m *MockInvoiceGroupRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*delivery.InvoiceGroup, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*delivery.InvoiceGroup), args.Error(1)
}

func (m *MockInvoiceGroupRepository) FindByIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]*delivery.InvoiceGroup, error) {
	args := m.Called(ctx, tenantID, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*delivery.InvoiceGroup), args.Error(1)
}

func (m *MockInvoiceGroupRepository) SaveWithLockAndEvents(ctx context.Context, group *delivery.InvoiceGroup, events []shared.DomainEvent) error {
	args := m.Called(ctx, group, events)
	return args.Error(0)
}

// MockOrderRepository is a mock implementation of OrderRepository
type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*delivery.Order, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*delivery.Order), args.Error(1)
}

func (m *MockOrderRepository) FindByInvoiceGroups(ctx context.Context, tenantID uuid.UUID, invoiceGroupIDs []uuid.UUID) ([]*delivery.Order, error) {
	args := m.Called(ctx, tenantID, invoiceGroupIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*delivery.Order), args.Error(1)
}

// recordingNotifier collects every notification
type recordingNotifier struct {
	sent []shared.Notification
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, msg shared.Notification) error {
	n.sent = append(n.sent, msg)
	return n.err
}
