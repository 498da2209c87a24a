package delivery

import (
	"testing"

	"github.com/google/uuid"
	"github.com/pharmaerp/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func newTestInvoiceGroup() *InvoiceGroup {
	return &InvoiceGroup{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(uuid.New()),
		OrganizationID:      uuid.New(),
		DeliveryDate:        DateOf(testNow),
		SubTotal:            dec("1000"),
		Discount:            dec("50"),
		RoundDiscount:       decimal.Zero,
		AdditionalDiscount:  dec("100"),
		AdditionalCost:      decimal.Zero,
	}
}

func logFor(group *InvoiceGroup, kind ShortReturnKind, status ShortReturnStatus, amount string) *ShortReturnLog {
	return &ShortReturnLog{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(group.TenantID),
		OrderID:             uuid.New(),
		InvoiceGroupID:      group.ID,
		Kind:                kind,
		Status:              status,
		Amount:              dec(amount),
		RoundDiscount:       decimal.Zero,
	}
}

func TestInvoiceGroup_RecomputeTotal(t *testing.T) {
	t.Run("grand total at zero clears additional discount", func(t *testing.T) {
		group := newTestInvoiceGroup()
		logs := []*ShortReturnLog{logFor(group, KindShort, LogStatusActive, "850")}

		result := group.RecomputeTotal(KindShort, logs, nil)

		assert.True(t, group.TotalShort.Equal(dec("850")))
		assert.True(t, group.AdditionalDiscount.IsZero())
		assert.True(t, result.Changed())
		assert.True(t, result.PreviousAdditionalDiscount.Equal(dec("100")))
		assert.True(t, group.GrandTotal().Equal(dec("100")))
	})

	t.Run("only active logs of the same kind count", func(t *testing.T) {
		group := newTestInvoiceGroup()
		other := newTestInvoiceGroup()
		withRound := logFor(group, KindReturn, LogStatusActive, "20")
		withRound.RoundDiscount = dec("0.25")
		logs := []*ShortReturnLog{
			logFor(group, KindReturn, LogStatusActive, "100"),
			withRound,
			logFor(group, KindReturn, LogStatusDraft, "300"),
			logFor(group, KindReturn, LogStatusInactive, "400"),
			logFor(group, KindShort, LogStatusActive, "500"),
			logFor(other, KindReturn, LogStatusActive, "600"),
		}

		group.RecomputeTotal(KindReturn, logs, nil)

		assert.True(t, group.TotalReturn.Equal(dec("120.25")), group.TotalReturn.String())
		assert.True(t, group.TotalShort.IsZero())
		assert.True(t, group.AdditionalDiscount.Equal(dec("100")))
	})

	t.Run("recompute is idempotent", func(t *testing.T) {
		group := newTestInvoiceGroup()
		logs := []*ShortReturnLog{logFor(group, KindShort, LogStatusActive, "200")}

		first := group.RecomputeTotal(KindShort, logs, nil)
		second := group.RecomputeTotal(KindShort, logs, nil)

		assert.True(t, first.Changed())
		assert.False(t, second.Changed())
		assert.True(t, group.TotalShort.Equal(dec("200")))
	})

	t.Run("deactivating the only log drops the total to zero", func(t *testing.T) {
		group := newTestInvoiceGroup()
		log := logFor(group, KindShort, LogStatusActive, "200")
		group.RecomputeTotal(KindShort, []*ShortReturnLog{log}, nil)

		log.Status = LogStatusInactive
		group.RecomputeTotal(KindShort, []*ShortReturnLog{log}, nil)
		assert.True(t, group.TotalShort.IsZero())
	})

	t.Run("discount rule is applied before the guard", func(t *testing.T) {
		group := newTestInvoiceGroup()
		rule := NewTieredDiscountRule([]DiscountTier{
			{MinAmount: dec("100"), Percentage: dec("2")},
			{MinAmount: dec("500"), Percentage: dec("5")},
		})
		logs := []*ShortReturnLog{logFor(group, KindShort, LogStatusActive, "250")}

		result := group.RecomputeTotal(KindShort, logs, rule)

		// net = 1000 - 50 - 250 = 700, 5% tier
		require.NotNil(t, result.Discount)
		assert.True(t, result.Discount.Percentage.Equal(dec("5")))
		assert.True(t, group.AdditionalDiscount.Equal(dec("35")))
		assert.True(t, group.GrandTotal().Equal(dec("665")))
	})

	t.Run("discount rule yields nothing once everything is shorted", func(t *testing.T) {
		group := newTestInvoiceGroup()
		rule := NewTieredDiscountRule([]DiscountTier{{MinAmount: dec("1"), Percentage: dec("10")}})
		logs := []*ShortReturnLog{logFor(group, KindShort, LogStatusActive, "950")}

		result := group.RecomputeTotal(KindShort, logs, rule)

		assert.Nil(t, result.Discount)
		assert.True(t, group.AdditionalDiscount.IsZero())
	})
}

func TestTieredDiscountRule(t *testing.T) {
	rule := NewTieredDiscountRule([]DiscountTier{
		{MinAmount: dec("1000"), Percentage: dec("3")},
		{MinAmount: dec("5000"), Percentage: dec("4.5")},
	})

	tests := []struct {
		total      string
		percentage string
		amount     string
	}{
		{"999.99", "0", "0"},
		{"1000", "3", "30"},
		{"4999.99", "3", "150"},
		{"6000", "4.5", "270"},
	}
	for _, tt := range tests {
		t.Run(tt.total, func(t *testing.T) {
			d := rule.DiscountFor(dec(tt.total))
			assert.True(t, d.Percentage.Equal(dec(tt.percentage)))
			assert.True(t, d.Amount.Equal(dec(tt.amount)), d.Amount.String())
		})
	}
}
