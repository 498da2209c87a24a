package delivery

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pharmaerp/backend/internal/domain/delivery"
	"github.com/pharmaerp/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInvoiceGroupCascadeHandler(t *testing.T) {
	groups := new(MockInvoiceGroupRepository)
	logs := new(MockShortReturnLogRepository)
	h := NewInvoiceGroupCascadeHandler(NewInvoiceGroupAggregator(groups, logs, zap.NewNop()), zap.NewNop())

	assert.ElementsMatch(t, []string{
		delivery.EventTypeShortReturnLogCreated,
		delivery.EventTypeShortReturnLogStatusChanged,
	}, h.EventTypes())

	tenantID := uuid.New()
	group := &delivery.InvoiceGroup{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		SubTotal:            dec("300"),
	}
	log := activeLog(group, delivery.KindReturn, "120")

	t.Run("recomputes the target invoice group", func(t *testing.T) {
		groups.On("FindByIDForTenant", mock.Anything, tenantID, group.ID).Return(group, nil).Once()
		logs.On("FindByInvoiceGroup", mock.Anything, tenantID, group.ID).Return([]*delivery.ShortReturnLog{log}, nil).Once()
		groups.On("SaveWithLockAndEvents", mock.Anything, group, mock.Anything).Return(nil).Once()

		err := h.Handle(context.Background(), delivery.NewShortReturnLogCreatedEvent(log))
		require.NoError(t, err)
		assert.True(t, dec("120").Equal(group.TotalReturn))
	})

	t.Run("failures are returned for retry", func(t *testing.T) {
		groups.On("FindByIDForTenant", mock.Anything, tenantID, group.ID).Return(nil, assert.AnError).Once()

		err := h.Handle(context.Background(), delivery.NewShortReturnLogStatusChangedEvent(log, delivery.LogStatusDraft))
		assert.ErrorIs(t, err, assert.AnError)
	})

	t.Run("rejects foreign events", func(t *testing.T) {
		err := h.Handle(context.Background(), &delivery.InvoiceGroupTotalsRecomputedEvent{
			BaseDomainEvent: shared.NewBaseDomainEvent(delivery.EventTypeInvoiceGroupTotalsRecomputed,
				delivery.AggregateTypeInvoiceGroup, group.ID, tenantID),
		})
		assert.Error(t, err)
	})
}

func TestDeliverySheetCascadeHandler_RejectsForeignEvents(t *testing.T) {
	h := NewDeliverySheetCascadeHandler(nil, nil, zap.NewNop())
	assert.Equal(t, []string{delivery.EventTypeInvoiceGroupTotalsRecomputed}, h.EventTypes())

	log := &delivery.ShortReturnLog{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(uuid.New()),
		InvoiceGroupID:      uuid.New(),
		Kind:                delivery.KindShort,
		LogDate:             time.Now(),
	}
	err := h.Handle(context.Background(), delivery.NewShortReturnLogCreatedEvent(log))
	assert.Error(t, err)
}
