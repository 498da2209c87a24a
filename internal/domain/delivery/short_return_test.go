package delivery

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pharmaerp/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)

func newTestLogInput(kind ShortReturnKind, status ShortReturnStatus) NewShortReturnLogInput {
	return NewShortReturnLogInput{
		TenantID:       uuid.New(),
		OrderID:        uuid.New(),
		InvoiceGroupID: uuid.New(),
		Kind:           kind,
		Status:         status,
		ReceivedBy:     uuid.New(),
		CreatedBy:      uuid.New(),
		LogDate:        testNow,
		RoundDiscount:  decimal.NewFromFloat(0.5),
		Items: []ShortReturnItemInput{
			{StockID: uuid.New(), Quantity: decimal.NewFromInt(2), Rate: decimal.NewFromInt(100), Discount: decimal.NewFromInt(10), VAT: decimal.NewFromInt(5)},
			{StockID: uuid.New(), Quantity: decimal.NewFromInt(1), Rate: decimal.NewFromInt(40), Tax: decimal.NewFromInt(2)},
		},
	}
}

func TestDecideTransition(t *testing.T) {
	tests := []struct {
		name        string
		kind        ShortReturnKind
		from        ShortReturnStatus
		to          ShortReturnStatus
		wantErr     bool
		creditStock bool
	}{
		{"create short as draft", KindShort, "", LogStatusDraft, false, false},
		{"create short as active", KindShort, "", LogStatusActive, false, false},
		{"create return as draft", KindReturn, "", LogStatusDraft, false, false},
		{"create return as active credits stock", KindReturn, "", LogStatusActive, false, true},
		{"approve return credits stock", KindReturn, LogStatusDraft, LogStatusActive, false, true},
		{"approve short", KindShort, LogStatusDraft, LogStatusActive, false, false},
		{"discard draft", KindReturn, LogStatusDraft, LogStatusInactive, false, false},
		{"deactivate active return", KindReturn, LogStatusActive, LogStatusInactive, false, false},
		{"create inactive", KindShort, "", LogStatusInactive, true, false},
		{"reactivate inactive", KindReturn, LogStatusInactive, LogStatusActive, true, false},
		{"active back to draft", KindShort, LogStatusActive, LogStatusDraft, true, false},
		{"active to active", KindReturn, LogStatusActive, LogStatusActive, true, false},
		{"inactive to draft", KindShort, LogStatusInactive, LogStatusDraft, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			effects, err := DecideTransition(tt.kind, tt.from, tt.to)
			if tt.wantErr {
				require.Error(t, err)
				var domainErr *shared.DomainError
				require.True(t, errors.As(err, &domainErr))
				assert.Equal(t, CodeInvalidTransition, domainErr.Code)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.creditStock, effects.CreditStock)
			assert.True(t, effects.Cascade)
			assert.Equal(t, tt.to, effects.To)
		})
	}

	t.Run("rejects unknown kind", func(t *testing.T) {
		_, err := DecideTransition("LOST", "", LogStatusDraft)
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})
}

func TestNewShortReturnLog(t *testing.T) {
	t.Run("computes amount from item net amounts", func(t *testing.T) {
		log, err := NewShortReturnLog(newTestLogInput(KindShort, LogStatusDraft), testNow)
		require.NoError(t, err)

		// 2*100-10+5 + 1*40+2
		assert.True(t, log.Amount.Equal(decimal.NewFromInt(237)), log.Amount.String())
		assert.True(t, log.RolledUpAmount().Equal(decimal.NewFromFloat(237.5)))
		assert.Equal(t, LogStatusDraft, log.Status)
		assert.Nil(t, log.ApprovedBy)
		assert.Equal(t, DateOf(testNow), log.LogDate)
		for _, item := range log.Items {
			assert.Equal(t, LogStatusDraft, item.Status)
			assert.Equal(t, log.ID, item.LogID)
		}
	})

	t.Run("emits a creation event", func(t *testing.T) {
		log, err := NewShortReturnLog(newTestLogInput(KindReturn, LogStatusDraft), testNow)
		require.NoError(t, err)

		events := log.GetDomainEvents()
		require.Len(t, events, 1)
		created, ok := events[0].(*ShortReturnLogCreatedEvent)
		require.True(t, ok)
		groupID, kind := created.TargetInvoiceGroup()
		assert.Equal(t, log.InvoiceGroupID, groupID)
		assert.Equal(t, KindReturn, kind)
		assert.Equal(t, log.TenantID, created.TenantID())
	})

	t.Run("active creation is approved by its creator", func(t *testing.T) {
		in := newTestLogInput(KindShort, LogStatusActive)
		log, err := NewShortReturnLog(in, testNow)
		require.NoError(t, err)
		require.NotNil(t, log.ApprovedBy)
		assert.Equal(t, in.CreatedBy, *log.ApprovedBy)
		assert.Empty(t, log.PullStockCredits())
	})

	t.Run("active return records stock credits", func(t *testing.T) {
		in := newTestLogInput(KindReturn, LogStatusActive)
		log, err := NewShortReturnLog(in, testNow)
		require.NoError(t, err)

		credits := log.PullStockCredits()
		require.Len(t, credits, 2)
		assert.Equal(t, in.Items[0].StockID, credits[0].StockID)
		assert.True(t, credits[0].Quantity.Equal(decimal.NewFromInt(2)))
		assert.Empty(t, log.PullStockCredits())
	})

	t.Run("rejects duplicate stock lines", func(t *testing.T) {
		in := newTestLogInput(KindShort, LogStatusDraft)
		in.Items[1].StockID = in.Items[0].StockID
		_, err := NewShortReturnLog(in, testNow)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "listed twice")
	})

	t.Run("rejects non-positive quantity", func(t *testing.T) {
		in := newTestLogInput(KindShort, LogStatusDraft)
		in.Items[0].Quantity = decimal.Zero
		_, err := NewShortReturnLog(in, testNow)
		assert.Error(t, err)
	})

	t.Run("rejects empty items", func(t *testing.T) {
		in := newTestLogInput(KindShort, LogStatusDraft)
		in.Items = nil
		_, err := NewShortReturnLog(in, testNow)
		assert.Error(t, err)
	})

	t.Run("rejects inactive creation", func(t *testing.T) {
		_, err := NewShortReturnLog(newTestLogInput(KindShort, LogStatusInactive), testNow)
		assert.Error(t, err)
	})
}

func TestShortReturnLog_Approve(t *testing.T) {
	t.Run("credits a return exactly once", func(t *testing.T) {
		log, err := NewShortReturnLog(newTestLogInput(KindReturn, LogStatusDraft), testNow)
		require.NoError(t, err)
		assert.Empty(t, log.PullStockCredits())
		log.ClearDomainEvents()

		approver := uuid.New()
		require.NoError(t, log.Approve(approver, testNow))
		assert.Equal(t, LogStatusActive, log.Status)
		assert.Equal(t, approver, *log.ApprovedBy)
		assert.Len(t, log.PullStockCredits(), 2)

		err = log.Approve(approver, testNow)
		assert.Error(t, err)
		assert.Empty(t, log.PullStockCredits())

		events := log.GetDomainEvents()
		require.Len(t, events, 1)
		changed := events[0].(*ShortReturnLogStatusChangedEvent)
		assert.Equal(t, LogStatusDraft, changed.FromStatus)
		assert.Equal(t, LogStatusActive, changed.ToStatus)
	})

	t.Run("items follow the parent", func(t *testing.T) {
		log, err := NewShortReturnLog(newTestLogInput(KindShort, LogStatusDraft), testNow)
		require.NoError(t, err)
		require.NoError(t, log.Approve(uuid.New(), testNow))
		for _, item := range log.Items {
			assert.Equal(t, LogStatusActive, item.Status)
		}
	})

	t.Run("requires an approver", func(t *testing.T) {
		log, err := NewShortReturnLog(newTestLogInput(KindShort, LogStatusDraft), testNow)
		require.NoError(t, err)
		assert.Error(t, log.Approve(uuid.Nil, testNow))
		assert.Equal(t, LogStatusDraft, log.Status)
	})
}

func TestShortReturnLog_Deactivate(t *testing.T) {
	t.Run("delivery four days ago is rejected without changes", func(t *testing.T) {
		log, err := NewShortReturnLog(newTestLogInput(KindReturn, LogStatusActive), testNow)
		require.NoError(t, err)
		log.PullStockCredits()
		log.ClearDomainEvents()
		before := *log

		err = log.Deactivate(testNow.AddDate(0, 0, -4), 3, uuid.New(), testNow)
		assert.ErrorIs(t, err, ErrDeleteWindowExpired)
		assert.Equal(t, LogStatusActive, log.Status)
		assert.Equal(t, before.UpdatedAt, log.UpdatedAt)
		assert.Nil(t, log.UpdatedBy)
		assert.Empty(t, log.GetDomainEvents())
		for _, item := range log.Items {
			assert.Equal(t, LogStatusActive, item.Status)
		}
	})

	t.Run("delivery three days ago is still allowed", func(t *testing.T) {
		log, err := NewShortReturnLog(newTestLogInput(KindShort, LogStatusDraft), testNow)
		require.NoError(t, err)

		require.NoError(t, log.Deactivate(testNow.AddDate(0, 0, -3), 3, uuid.New(), testNow))
		assert.Equal(t, LogStatusInactive, log.Status)
		for _, item := range log.Items {
			assert.Equal(t, LogStatusInactive, item.Status)
		}
	})

	t.Run("active return is not credited again", func(t *testing.T) {
		log, err := NewShortReturnLog(newTestLogInput(KindReturn, LogStatusActive), testNow)
		require.NoError(t, err)
		log.PullStockCredits()

		require.NoError(t, log.Deactivate(testNow, 3, uuid.New(), testNow))
		assert.Empty(t, log.PullStockCredits())
	})

	t.Run("inactive log cannot be deactivated again", func(t *testing.T) {
		log, err := NewShortReturnLog(newTestLogInput(KindShort, LogStatusDraft), testNow)
		require.NoError(t, err)
		require.NoError(t, log.Deactivate(testNow, 3, uuid.New(), testNow))

		err = log.Deactivate(testNow, 3, uuid.New(), testNow)
		var domainErr *shared.DomainError
		require.True(t, errors.As(err, &domainErr))
		assert.Equal(t, CodeInvalidTransition, domainErr.Code)
	})
}

func TestDeleteWindowExpired(t *testing.T) {
	now := time.Date(2026, 3, 10, 0, 5, 0, 0, time.UTC)
	assert.False(t, DeleteWindowExpired(now, 3, now))
	assert.False(t, DeleteWindowExpired(time.Date(2026, 3, 7, 23, 59, 0, 0, time.UTC), 3, now))
	assert.True(t, DeleteWindowExpired(time.Date(2026, 3, 6, 23, 59, 0, 0, time.UTC), 3, now))
}
