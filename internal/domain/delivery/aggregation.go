package delivery

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SheetSource is everything a sheet's rollups are derived from: its items,
// their links, the linked invoice groups with their orders, and the
// non-INACTIVE short/return logs of those invoice groups.
type SheetSource struct {
	Sheet         *DeliverySheet
	Items         []*DeliverySheetItem
	Links         []*DeliverySheetLink
	InvoiceGroups map[uuid.UUID]*InvoiceGroup
	Orders        []*Order
	Logs          []*ShortReturnLog

	index *sourceIndex
}

type sourceIndex struct {
	linksByItem    map[uuid.UUID][]*DeliverySheetLink
	ordersByGroup  map[uuid.UUID][]*Order
	ordersByID     map[uuid.UUID]*Order
	logsByOrder    map[uuid.UUID][]*ShortReturnLog
	reachable      []uuid.UUID
	reachableGroup map[uuid.UUID]struct{}
}

func (s *SheetSource) idx() *sourceIndex {
	if s.index != nil {
		return s.index
	}
	ix := &sourceIndex{
		linksByItem:    make(map[uuid.UUID][]*DeliverySheetLink),
		ordersByGroup:  make(map[uuid.UUID][]*Order),
		ordersByID:     make(map[uuid.UUID]*Order, len(s.Orders)),
		logsByOrder:    make(map[uuid.UUID][]*ShortReturnLog),
		reachableGroup: make(map[uuid.UUID]struct{}),
	}
	for _, link := range s.Links {
		ix.linksByItem[link.ItemID] = append(ix.linksByItem[link.ItemID], link)
	}
	for _, order := range s.Orders {
		ix.ordersByGroup[order.InvoiceGroupID] = append(ix.ordersByGroup[order.InvoiceGroupID], order)
		ix.ordersByID[order.ID] = order
	}
	for _, log := range s.Logs {
		ix.logsByOrder[log.OrderID] = append(ix.logsByOrder[log.OrderID], log)
	}
	for _, item := range s.Items {
		if !item.IsActive() {
			continue
		}
		for _, link := range ix.linksByItem[item.ID] {
			if !link.IsActive() {
				continue
			}
			if _, seen := ix.reachableGroup[link.InvoiceGroupID]; seen {
				continue
			}
			ix.reachableGroup[link.InvoiceGroupID] = struct{}{}
			ix.reachable = append(ix.reachable, link.InvoiceGroupID)
		}
	}
	s.index = ix
	return ix
}

// InvoiceGroupIDs lists the invoice groups reachable through active items and links
func (s *SheetSource) InvoiceGroupIDs() []uuid.UUID {
	out := make([]uuid.UUID, len(s.idx().reachable))
	copy(out, s.idx().reachable)
	return out
}

// Item returns the item with the given id, if loaded
func (s *SheetSource) Item(id uuid.UUID) *DeliverySheetItem {
	for _, item := range s.Items {
		if item.ID == id {
			return item
		}
	}
	return nil
}

// Link returns the link with the given id, if loaded
func (s *SheetSource) Link(id uuid.UUID) *DeliverySheetLink {
	for _, link := range s.Links {
		if link.ID == id {
			return link
		}
	}
	return nil
}

// ItemQuantities are the unit rollups of one sheet item
type ItemQuantities struct {
	Order        decimal.Decimal
	Short        decimal.Decimal
	Return       decimal.Decimal
	UniqueOrder  int
	UniqueShort  int
	UniqueReturn int
}

// ItemQuantities derives unit totals for an item from order lines and
// short/return lines. Money is never consulted here.
func (s *SheetSource) ItemQuantities(itemID uuid.UUID) ItemQuantities {
	ix := s.idx()
	q := ItemQuantities{Order: decimal.Zero, Short: decimal.Zero, Return: decimal.Zero}

	orderStocks := make(map[uuid.UUID]struct{})
	shortStocks := make(map[uuid.UUID]struct{})
	returnStocks := make(map[uuid.UUID]struct{})
	seenItems := make(map[uuid.UUID]struct{})
	seenGroups := make(map[uuid.UUID]struct{})

	for _, link := range ix.linksByItem[itemID] {
		if !link.IsActive() {
			continue
		}
		if _, dup := seenGroups[link.InvoiceGroupID]; dup {
			continue
		}
		seenGroups[link.InvoiceGroupID] = struct{}{}

		for _, order := range ix.ordersByGroup[link.InvoiceGroupID] {
			for _, line := range order.Items {
				q.Order = q.Order.Add(line.Quantity)
				orderStocks[line.StockID] = struct{}{}
			}
			for _, log := range ix.logsByOrder[order.ID] {
				if log.Status != LogStatusActive {
					continue
				}
				for _, line := range log.Items {
					if line.Status != LogStatusActive {
						continue
					}
					if _, dup := seenItems[line.ID]; dup {
						continue
					}
					seenItems[line.ID] = struct{}{}
					if log.Kind == KindReturn {
						q.Return = q.Return.Add(line.Quantity)
						returnStocks[line.StockID] = struct{}{}
					} else {
						q.Short = q.Short.Add(line.Quantity)
						shortStocks[line.StockID] = struct{}{}
					}
				}
			}
		}
	}

	q.UniqueOrder = len(orderStocks)
	q.UniqueShort = len(shortStocks)
	q.UniqueReturn = len(returnStocks)
	return q
}

// RecomputeItem refreshes the item's unit rollups for the given kinds (all
// kinds when none are given) and reports whether anything changed.
func (s *SheetSource) RecomputeItem(item *DeliverySheetItem, kinds ...ShortReturnKind) bool {
	if len(kinds) == 0 {
		kinds = AllKinds
	}
	q := s.ItemQuantities(item.ID)
	changed := !item.TotalItemOrder.Equal(q.Order) || item.TotalUniqueItemOrder != q.UniqueOrder
	item.TotalItemOrder = q.Order
	item.TotalUniqueItemOrder = q.UniqueOrder

	for _, kind := range kinds {
		switch kind {
		case KindShort:
			changed = changed || !item.TotalItemShort.Equal(q.Short) || item.TotalUniqueItemShort != q.UniqueShort
			item.TotalItemShort = q.Short
			item.TotalUniqueItemShort = q.UniqueShort
		case KindReturn:
			changed = changed || !item.TotalItemReturn.Equal(q.Return) || item.TotalUniqueItemReturn != q.UniqueReturn
			item.TotalItemReturn = q.Return
			item.TotalUniqueItemReturn = q.UniqueReturn
		}
	}
	return changed
}

// RecomputeLink mirrors the linked invoice group's rollups onto the link
func (s *SheetSource) RecomputeLink(link *DeliverySheetLink, kinds ...ShortReturnKind) bool {
	group, ok := s.InvoiceGroups[link.InvoiceGroupID]
	if !ok {
		return false
	}
	if len(kinds) == 0 {
		kinds = AllKinds
	}
	changed := false
	for _, kind := range kinds {
		if link.Mirror(group, kind) {
			changed = true
		}
	}
	return changed
}

// SheetTotals are the cached sheet-level rollups
type SheetTotals struct {
	ShortAmount  decimal.Decimal
	ReturnAmount decimal.Decimal
	TotalData    TotalData
}

// ComputeTotals derives the sheet rollups. Money comes from link caches,
// pending money from DRAFT logs, units from item caches.
func (s *SheetSource) ComputeTotals() SheetTotals {
	ix := s.idx()
	short, ret := decimal.Zero, decimal.Zero
	totalItem := decimal.Zero

	for _, item := range s.Items {
		if !item.IsActive() {
			continue
		}
		totalItem = totalItem.Add(item.NetQuantity())
		for _, link := range ix.linksByItem[item.ID] {
			if !link.IsActive() {
				continue
			}
			short = short.Add(link.TotalShort)
			ret = ret.Add(link.TotalReturn)
		}
	}

	orderAmount := decimal.Zero
	orderCount := 0
	orderStocks := make(map[uuid.UUID]struct{})
	for _, groupID := range ix.reachable {
		if group, ok := s.InvoiceGroups[groupID]; ok {
			orderAmount = orderAmount.Add(group.OrderAmount())
		}
		for _, order := range ix.ordersByGroup[groupID] {
			orderCount++
			for _, line := range order.Items {
				orderStocks[line.StockID] = struct{}{}
			}
		}
	}

	draft := s.draftTotals()
	data := TotalData{
		TotalOrderAmount:       orderAmount,
		TotalShortAmount:       short,
		TotalReturnAmount:      ret,
		TotalUniqueItem:        len(orderStocks),
		TotalItem:              totalItem,
		TotalOrderCount:        orderCount,
		TotalOrderAmountDraft:  draft.orderAmount,
		TotalShortAmountDraft:  draft.short,
		TotalReturnAmountDraft: draft.ret,
		TotalUniqueItemDraft:   draft.uniqueItems,
		TotalItemDraft:         draft.items,
		TotalOrderCountDraft:   draft.orders,
	}
	return SheetTotals{ShortAmount: short, ReturnAmount: ret, TotalData: data}
}

type draftTotals struct {
	orderAmount decimal.Decimal
	short       decimal.Decimal
	ret         decimal.Decimal
	items       decimal.Decimal
	uniqueItems int
	orders      int
}

func (s *SheetSource) draftTotals() draftTotals {
	ix := s.idx()
	out := draftTotals{orderAmount: decimal.Zero, short: decimal.Zero, ret: decimal.Zero, items: decimal.Zero}
	stocks := make(map[uuid.UUID]struct{})
	orders := make(map[uuid.UUID]struct{})
	groups := make(map[uuid.UUID]struct{})

	for _, log := range s.Logs {
		if log.Status != LogStatusDraft {
			continue
		}
		if _, ok := ix.reachableGroup[log.InvoiceGroupID]; !ok {
			continue
		}
		if log.Kind == KindReturn {
			out.ret = out.ret.Add(log.RolledUpAmount())
		} else {
			out.short = out.short.Add(log.RolledUpAmount())
		}
		for _, line := range log.Items {
			out.items = out.items.Add(line.Quantity)
			stocks[line.StockID] = struct{}{}
		}
		orders[log.OrderID] = struct{}{}
		if _, seen := groups[log.InvoiceGroupID]; !seen {
			groups[log.InvoiceGroupID] = struct{}{}
			if group, ok := s.InvoiceGroups[log.InvoiceGroupID]; ok {
				out.orderAmount = out.orderAmount.Add(group.OrderAmount())
			}
		}
	}
	out.uniqueItems = len(stocks)
	out.orders = len(orders)
	return out
}

// AmountPair holds a short and a return amount
type AmountPair struct {
	Short  decimal.Decimal `json:"short"`
	Return decimal.Decimal `json:"return"`
}

// Equal compares both amounts
func (p AmountPair) Equal(o AmountPair) bool {
	return p.Short.Equal(o.Short) && p.Return.Equal(o.Return)
}

// MismatchReport compares a sheet's cached totals with two independent recomputations
type MismatchReport struct {
	SheetID         uuid.UUID  `json:"sheet_id"`
	Cached          AmountPair `json:"cached"`
	CachedTotalData AmountPair `json:"cached_total_data"`
	CachedDraft     AmountPair `json:"cached_draft"`
	FromLogs        AmountPair `json:"from_logs"`
	FromLogsDraft   AmountPair `json:"from_logs_draft"`
	FromLinks       AmountPair `json:"from_links"`
	Mismatched      bool       `json:"mismatched"`
}

// CheckMismatch recomputes short/return totals from logs and from link caches
// and compares both with what the sheet has cached.
func (s *SheetSource) CheckMismatch() MismatchReport {
	ix := s.idx()
	report := MismatchReport{
		SheetID:         s.Sheet.ID,
		Cached:          AmountPair{Short: s.Sheet.ShortAmount, Return: s.Sheet.ReturnAmount},
		CachedTotalData: AmountPair{Short: s.Sheet.TotalData.TotalShortAmount, Return: s.Sheet.TotalData.TotalReturnAmount},
		CachedDraft:     AmountPair{Short: s.Sheet.TotalData.TotalShortAmountDraft, Return: s.Sheet.TotalData.TotalReturnAmountDraft},
		FromLogs:        AmountPair{Short: decimal.Zero, Return: decimal.Zero},
		FromLogsDraft:   AmountPair{Short: decimal.Zero, Return: decimal.Zero},
		FromLinks:       AmountPair{Short: decimal.Zero, Return: decimal.Zero},
	}

	for _, log := range s.Logs {
		if _, ok := ix.reachableGroup[log.InvoiceGroupID]; !ok {
			continue
		}
		var target *AmountPair
		switch log.Status {
		case LogStatusActive:
			target = &report.FromLogs
		case LogStatusDraft:
			target = &report.FromLogsDraft
		default:
			continue
		}
		if log.Kind == KindReturn {
			target.Return = target.Return.Add(log.RolledUpAmount())
		} else {
			target.Short = target.Short.Add(log.RolledUpAmount())
		}
	}

	for _, item := range s.Items {
		if !item.IsActive() {
			continue
		}
		for _, link := range ix.linksByItem[item.ID] {
			if !link.IsActive() {
				continue
			}
			report.FromLinks.Short = report.FromLinks.Short.Add(link.TotalShort)
			report.FromLinks.Return = report.FromLinks.Return.Add(link.TotalReturn)
		}
	}

	report.Mismatched = !report.FromLogs.Equal(report.Cached) ||
		!report.FromLinks.Equal(report.Cached) ||
		!report.CachedTotalData.Equal(report.Cached) ||
		!report.FromLogsDraft.Equal(report.CachedDraft)
	return report
}

// BucketTotals aggregates short/return money for one order-status bucket
type BucketTotals struct {
	ShortAmount      decimal.Decimal `json:"short_amount"`
	ReturnAmount     decimal.Decimal `json:"return_amount"`
	UniquePharmacies int             `json:"unique_pharmacies"`
}

// StatusBuckets splits totals by the delivery outcome of the order
type StatusBuckets struct {
	PartialDelivered BucketTotals `json:"partial_delivered"`
	FullReturned     BucketTotals `json:"full_returned"`
}

// SheetInfo is the read-side summary of a sheet computed at query time
type SheetInfo struct {
	SheetID           uuid.UUID       `json:"sheet_id"`
	Alias             string          `json:"alias"`
	Type              SheetType       `json:"type"`
	Status            SheetStatus     `json:"status"`
	TotalInvoice      int             `json:"total_invoice"`
	TotalOrderCount   int             `json:"total_order_count"`
	TotalOrderAmount  decimal.Decimal `json:"total_order_amount"`
	UniquePharmacies  int             `json:"unique_pharmacies"`
	ShortAmount       decimal.Decimal `json:"short_amount"`
	ReturnAmount      decimal.Decimal `json:"return_amount"`
	ShortAmountDraft  decimal.Decimal `json:"short_amount_draft"`
	ReturnAmountDraft decimal.Decimal `json:"return_amount_draft"`
	Active            StatusBuckets   `json:"active"`
	Draft             StatusBuckets   `json:"draft"`
}

// Info aggregates the sheet from its sources without touching any cache
func (s *SheetSource) Info() SheetInfo {
	ix := s.idx()
	info := SheetInfo{
		SheetID:           s.Sheet.ID,
		Alias:             s.Sheet.Alias,
		Type:              s.Sheet.Type,
		Status:            s.Sheet.Status,
		TotalInvoice:      len(ix.reachable),
		TotalOrderAmount:  decimal.Zero,
		ShortAmount:       decimal.Zero,
		ReturnAmount:      decimal.Zero,
		ShortAmountDraft:  decimal.Zero,
		ReturnAmountDraft: decimal.Zero,
	}

	pharmacies := make(map[uuid.UUID]struct{})
	for _, groupID := range ix.reachable {
		if group, ok := s.InvoiceGroups[groupID]; ok {
			info.TotalOrderAmount = info.TotalOrderAmount.Add(group.OrderAmount())
			pharmacies[group.OrganizationID] = struct{}{}
		}
		info.TotalOrderCount += len(ix.ordersByGroup[groupID])
	}
	info.UniquePharmacies = len(pharmacies)

	var active, draft []*ShortReturnLog
	for _, log := range s.Logs {
		if _, ok := ix.reachableGroup[log.InvoiceGroupID]; !ok {
			continue
		}
		switch log.Status {
		case LogStatusActive:
			active = append(active, log)
			if log.Kind == KindReturn {
				info.ReturnAmount = info.ReturnAmount.Add(log.RolledUpAmount())
			} else {
				info.ShortAmount = info.ShortAmount.Add(log.RolledUpAmount())
			}
		case LogStatusDraft:
			draft = append(draft, log)
			if log.Kind == KindReturn {
				info.ReturnAmountDraft = info.ReturnAmountDraft.Add(log.RolledUpAmount())
			} else {
				info.ShortAmountDraft = info.ShortAmountDraft.Add(log.RolledUpAmount())
			}
		}
	}
	info.Active = s.Buckets(active)
	info.Draft = s.Buckets(draft)
	return info
}

// DraftLogs returns the DRAFT logs reachable from the sheet
func (s *SheetSource) DraftLogs() []*ShortReturnLog {
	ix := s.idx()
	var out []*ShortReturnLog
	for _, log := range s.Logs {
		if log.Status != LogStatusDraft {
			continue
		}
		if _, ok := ix.reachableGroup[log.InvoiceGroupID]; ok {
			out = append(out, log)
		}
	}
	return out
}

// Buckets splits the given logs by their order's delivery outcome. Logs of
// orders in any other status fall outside both buckets.
func (s *SheetSource) Buckets(logs []*ShortReturnLog) StatusBuckets {
	ix := s.idx()
	out := StatusBuckets{
		PartialDelivered: BucketTotals{ShortAmount: decimal.Zero, ReturnAmount: decimal.Zero},
		FullReturned:     BucketTotals{ShortAmount: decimal.Zero, ReturnAmount: decimal.Zero},
	}
	partial := make(map[uuid.UUID]struct{})
	full := make(map[uuid.UUID]struct{})

	for _, log := range logs {
		order, ok := ix.ordersByID[log.OrderID]
		if !ok {
			continue
		}
		var bucket *BucketTotals
		var pharmacies map[uuid.UUID]struct{}
		switch order.Status {
		case OrderStatusPartialDelivered:
			bucket, pharmacies = &out.PartialDelivered, partial
		case OrderStatusFullReturned:
			bucket, pharmacies = &out.FullReturned, full
		default:
			continue
		}
		if log.Kind == KindReturn {
			bucket.ReturnAmount = bucket.ReturnAmount.Add(log.RolledUpAmount())
		} else {
			bucket.ShortAmount = bucket.ShortAmount.Add(log.RolledUpAmount())
		}
		pharmacies[order.OrganizationID] = struct{}{}
	}
	out.PartialDelivered.UniquePharmacies = len(partial)
	out.FullReturned.UniquePharmacies = len(full)
	return out
}
