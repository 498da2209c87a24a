package delivery

import (
	"testing"

	"github.com/google/uuid"
	"github.com/pharmaerp/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sourceFixture struct {
	src    *SheetSource
	groups []*InvoiceGroup
	orders []*Order
	items  []*DeliverySheetItem
	links  []*DeliverySheetLink
	stockA uuid.UUID
	stockB uuid.UUID
}

// newSourceFixture builds a top sheet with two items, each linked to one
// invoice group holding one order of two stock lines.
func newSourceFixture(t *testing.T) *sourceFixture {
	t.Helper()
	tenantID := uuid.New()
	sheet, err := NewTopSheet(tenantID, "Route 7", "", testNow, nil, "")
	require.NoError(t, err)

	f := &sourceFixture{stockA: uuid.New(), stockB: uuid.New()}
	f.src = &SheetSource{Sheet: sheet, InvoiceGroups: make(map[uuid.UUID]*InvoiceGroup)}

	statuses := []OrderStatus{OrderStatusPartialDelivered, OrderStatusFullReturned}
	for i := 0; i < 2; i++ {
		group := &InvoiceGroup{
			TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
			OrganizationID:      uuid.New(),
			DeliveryDate:        DateOf(testNow),
			SubTotal:            dec("500"),
			Discount:            dec("20"),
			RoundDiscount:       decimal.Zero,
			AdditionalDiscount:  decimal.Zero,
			AdditionalCost:      dec("5"),
		}
		order := &Order{
			ID:             uuid.New(),
			TenantID:       tenantID,
			InvoiceGroupID: group.ID,
			OrganizationID: group.OrganizationID,
			Status:         statuses[i],
			Items: []OrderItem{
				{ID: uuid.New(), StockID: f.stockA, Quantity: dec("10"), Rate: dec("20")},
				{ID: uuid.New(), StockID: f.stockB, Quantity: dec("6"), Rate: dec("50")},
			},
		}
		item := &DeliverySheetItem{
			ID:             uuid.New(),
			TenantID:       tenantID,
			TopSheetID:     sheet.ID,
			OrganizationID: group.OrganizationID,
			Status:         SheetStatusActive,
		}
		link := &DeliverySheetLink{
			ID:             uuid.New(),
			TenantID:       tenantID,
			ItemID:         item.ID,
			InvoiceGroupID: group.ID,
			Status:         SheetStatusActive,
		}
		f.groups = append(f.groups, group)
		f.orders = append(f.orders, order)
		f.items = append(f.items, item)
		f.links = append(f.links, link)
		f.src.InvoiceGroups[group.ID] = group
	}
	f.src.Items = f.items
	f.src.Links = f.links
	f.src.Orders = f.orders
	return f
}

func (f *sourceFixture) addLog(orderIdx int, kind ShortReturnKind, status ShortReturnStatus, amount string, lines ...ShortReturnItem) *ShortReturnLog {
	order := f.orders[orderIdx]
	log := &ShortReturnLog{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(order.TenantID),
		OrderID:             order.ID,
		InvoiceGroupID:      order.InvoiceGroupID,
		Kind:                kind,
		Status:              status,
		Amount:              dec(amount),
		RoundDiscount:       decimal.Zero,
	}
	for _, line := range lines {
		line.ID = uuid.New()
		line.LogID = log.ID
		line.Status = status
		log.Items = append(log.Items, line)
	}
	f.src.Logs = append(f.src.Logs, log)
	return log
}

// settle brings every cache in the fixture up to date
func (f *sourceFixture) settle() {
	for _, group := range f.groups {
		for _, kind := range AllKinds {
			group.RecomputeTotal(kind, f.src.Logs, nil)
		}
	}
	for _, link := range f.links {
		f.src.RecomputeLink(link)
	}
	for _, item := range f.items {
		f.src.RecomputeItem(item)
	}
	f.src.Sheet.ApplyTotals(f.src.ComputeTotals())
}

func TestSheetSource_RecomputeItem(t *testing.T) {
	f := newSourceFixture(t)
	f.addLog(0, KindShort, LogStatusActive, "40", ShortReturnItem{StockID: f.stockA, Quantity: dec("2")})
	f.addLog(0, KindReturn, LogStatusActive, "150",
		ShortReturnItem{StockID: f.stockA, Quantity: dec("1")},
		ShortReturnItem{StockID: f.stockB, Quantity: dec("2")},
	)
	f.addLog(0, KindReturn, LogStatusDraft, "50", ShortReturnItem{StockID: f.stockB, Quantity: dec("1")})

	item := f.items[0]
	changed := f.src.RecomputeItem(item)

	assert.True(t, changed)
	assert.True(t, item.TotalItemOrder.Equal(dec("16")))
	assert.Equal(t, 2, item.TotalUniqueItemOrder)
	assert.True(t, item.TotalItemShort.Equal(dec("2")))
	assert.Equal(t, 1, item.TotalUniqueItemShort)
	assert.True(t, item.TotalItemReturn.Equal(dec("3")))
	assert.Equal(t, 2, item.TotalUniqueItemReturn)
	assert.True(t, item.NetQuantity().Equal(dec("11")))

	assert.False(t, f.src.RecomputeItem(item), "second recompute must be a no-op")

	t.Run("only the requested kind moves", func(t *testing.T) {
		f.addLog(0, KindShort, LogStatusActive, "20", ShortReturnItem{StockID: f.stockB, Quantity: dec("1")})
		f.src.index = nil

		f.src.RecomputeItem(item, KindReturn)
		assert.True(t, item.TotalItemShort.Equal(dec("2")))

		f.src.RecomputeItem(item, KindShort)
		assert.True(t, item.TotalItemShort.Equal(dec("3")))
		assert.Equal(t, 2, item.TotalUniqueItemShort)
	})
}

func TestSheetSource_RecomputeLink(t *testing.T) {
	f := newSourceFixture(t)
	f.addLog(1, KindReturn, LogStatusActive, "75")
	f.groups[1].RecomputeTotal(KindReturn, f.src.Logs, nil)

	link := f.links[1]
	assert.True(t, f.src.RecomputeLink(link, KindReturn))
	assert.True(t, link.TotalReturn.Equal(dec("75")))
	assert.True(t, link.TotalShort.IsZero())
	assert.False(t, f.src.RecomputeLink(link))

	orphan := &DeliverySheetLink{ID: uuid.New(), InvoiceGroupID: uuid.New(), Status: SheetStatusActive}
	assert.False(t, f.src.RecomputeLink(orphan))
}

func TestSheetSource_ComputeTotals(t *testing.T) {
	f := newSourceFixture(t)
	f.addLog(0, KindShort, LogStatusActive, "40", ShortReturnItem{StockID: f.stockA, Quantity: dec("2")})
	f.addLog(1, KindReturn, LogStatusActive, "100", ShortReturnItem{StockID: f.stockB, Quantity: dec("2")})
	f.addLog(1, KindShort, LogStatusDraft, "20", ShortReturnItem{StockID: f.stockA, Quantity: dec("1")})
	f.settle()

	totals := f.src.ComputeTotals()
	data := totals.TotalData

	assert.True(t, totals.ShortAmount.Equal(dec("40")))
	assert.True(t, totals.ReturnAmount.Equal(dec("100")))
	assert.True(t, data.TotalShortAmount.Equal(totals.ShortAmount))
	assert.True(t, data.TotalReturnAmount.Equal(totals.ReturnAmount))
	// 2 groups of 500 - 20 + 5
	assert.True(t, data.TotalOrderAmount.Equal(dec("970")))
	assert.Equal(t, 2, data.TotalOrderCount)
	assert.Equal(t, 2, data.TotalUniqueItem)
	// (16 - 2) + (16 - 2)
	assert.True(t, data.TotalItem.Equal(dec("28")))

	assert.True(t, data.TotalShortAmountDraft.Equal(dec("20")))
	assert.True(t, data.TotalReturnAmountDraft.IsZero())
	assert.True(t, data.TotalItemDraft.Equal(dec("1")))
	assert.Equal(t, 1, data.TotalUniqueItemDraft)
	assert.Equal(t, 1, data.TotalOrderCountDraft)
	assert.True(t, data.TotalOrderAmountDraft.Equal(dec("485")))
	require.NoError(t, data.Validate())

	t.Run("inactive items and links drop out", func(t *testing.T) {
		f.items[1].Status = SheetStatusInactive
		f.src.index = nil

		totals := f.src.ComputeTotals()
		assert.True(t, totals.ReturnAmount.IsZero())
		assert.Equal(t, 1, totals.TotalData.TotalOrderCount)
		assert.True(t, totals.TotalData.TotalShortAmountDraft.IsZero())
	})
}

func TestSheetSource_CheckMismatch(t *testing.T) {
	t.Run("settled sheet matches", func(t *testing.T) {
		f := newSourceFixture(t)
		f.addLog(0, KindShort, LogStatusActive, "40")
		f.addLog(1, KindReturn, LogStatusDraft, "10")
		f.settle()

		report := f.src.CheckMismatch()
		assert.False(t, report.Mismatched)
		assert.True(t, report.FromLogs.Short.Equal(dec("40")))
		assert.True(t, report.FromLogsDraft.Return.Equal(dec("10")))
	})

	t.Run("stale link is detected", func(t *testing.T) {
		f := newSourceFixture(t)
		f.addLog(0, KindShort, LogStatusActive, "40")
		f.settle()

		f.links[0].TotalShort = dec("0")
		report := f.src.CheckMismatch()
		assert.True(t, report.Mismatched)
	})

	t.Run("missed cascade is detected", func(t *testing.T) {
		f := newSourceFixture(t)
		f.settle()

		f.addLog(1, KindReturn, LogStatusActive, "60")
		f.src.index = nil
		report := f.src.CheckMismatch()
		assert.True(t, report.Mismatched)
		assert.True(t, report.FromLogs.Return.Equal(dec("60")))
		assert.True(t, report.Cached.Return.IsZero())
	})

	t.Run("stale draft total is detected", func(t *testing.T) {
		f := newSourceFixture(t)
		f.addLog(0, KindShort, LogStatusDraft, "15")
		f.settle()

		f.src.Sheet.TotalData.TotalShortAmountDraft = decimal.Zero
		assert.True(t, f.src.CheckMismatch().Mismatched)
	})
}

func TestSheetSource_Info(t *testing.T) {
	f := newSourceFixture(t)
	f.addLog(0, KindShort, LogStatusActive, "40")
	f.addLog(0, KindReturn, LogStatusDraft, "25")
	f.addLog(1, KindReturn, LogStatusActive, "480")
	f.addLog(1, KindShort, LogStatusInactive, "999")

	info := f.src.Info()

	assert.Equal(t, 2, info.TotalInvoice)
	assert.Equal(t, 2, info.TotalOrderCount)
	assert.Equal(t, 2, info.UniquePharmacies)
	assert.True(t, info.TotalOrderAmount.Equal(dec("970")))
	assert.True(t, info.ShortAmount.Equal(dec("40")))
	assert.True(t, info.ReturnAmount.Equal(dec("480")))
	assert.True(t, info.ReturnAmountDraft.Equal(dec("25")))

	assert.True(t, info.Active.PartialDelivered.ShortAmount.Equal(dec("40")))
	assert.Equal(t, 1, info.Active.PartialDelivered.UniquePharmacies)
	assert.True(t, info.Active.FullReturned.ReturnAmount.Equal(dec("480")))
	assert.Equal(t, 1, info.Active.FullReturned.UniquePharmacies)
	assert.True(t, info.Draft.PartialDelivered.ReturnAmount.Equal(dec("25")))
	assert.Equal(t, 0, info.Draft.FullReturned.UniquePharmacies)

	drafts := f.src.DraftLogs()
	require.Len(t, drafts, 1)
	assert.Equal(t, KindReturn, drafts[0].Kind)
}
