package delivery

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pharmaerp/backend/internal/domain/shared"
)

// ShortReturnLogRepository defines persistence for short/return logs
type ShortReturnLogRepository interface {
	// FindByIDForTenant finds a log with its items
	FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*ShortReturnLog, error)

	// FindByInvoiceGroup returns every log of an invoice group, newest first
	FindByInvoiceGroup(ctx context.Context, tenantID, invoiceGroupID uuid.UUID) ([]*ShortReturnLog, error)

	// FindOpenByOrder returns the DRAFT and ACTIVE logs of an order
	FindOpenByOrder(ctx context.Context, tenantID, orderID uuid.UUID) ([]*ShortReturnLog, error)

	// ExistsOpen reports whether a non-INACTIVE log already exists for the
	// same log date, invoice group and receiver
	ExistsOpen(ctx context.Context, tenantID uuid.UUID, logDate time.Time, invoiceGroupID, receivedBy uuid.UUID) (bool, error)

	// CreateWithEvents inserts a new log, applies its stock credits and writes
	// its events to the outbox in one transaction
	CreateWithEvents(ctx context.Context, log *ShortReturnLog, events []shared.DomainEvent) error

	// SaveWithLockAndEvents persists a transition with optimistic locking,
	// applying stock credits and writing events in the same transaction
	SaveWithLockAndEvents(ctx context.Context, log *ShortReturnLog, events []shared.DomainEvent) error

	// SaveAllWithLockAndEvents persists several transitions and their events
	// atomically. Any version conflict rolls back every log.
	SaveAllWithLockAndEvents(ctx context.Context, logs []*ShortReturnLog, events []shared.DomainEvent) error
}

// InvoiceGroupRepository defines persistence for invoice groups
type InvoiceGroupRepository interface {
	FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*InvoiceGroup, error)
	FindByIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]*InvoiceGroup, error)

	// SaveWithLockAndEvents writes the rollup columns with optimistic locking.
	// A nil events slice writes nothing to the outbox.
	SaveWithLockAndEvents(ctx context.Context, group *InvoiceGroup, events []shared.DomainEvent) error
}

// OrderRepository reads orders with their lines
type OrderRepository interface {
	FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*Order, error)
	FindByInvoiceGroups(ctx context.Context, tenantID uuid.UUID, invoiceGroupIDs []uuid.UUID) ([]*Order, error)
}

// CourierRepository reads couriers
type CourierRepository interface {
	FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*Courier, error)
}

// OrganizationRepository reads customer organizations
type OrganizationRepository interface {
	// FindIDsByPrimaryResponsible lists organizations a courier is primarily responsible for
	FindIDsByPrimaryResponsible(ctx context.Context, tenantID, courierID uuid.UUID) ([]uuid.UUID, error)
}

// SheetChanges carries the rollup rows a recompute actually changed
type SheetChanges struct {
	Sheets []*DeliverySheet
	Items  []*DeliverySheetItem
	Links  []*DeliverySheetLink
}

// IsEmpty reports whether nothing needs writing
func (c SheetChanges) IsEmpty() bool {
	return len(c.Sheets) == 0 && len(c.Items) == 0 && len(c.Links) == 0
}

// Merge appends other's rows, skipping rows already present
func (c *SheetChanges) Merge(other SheetChanges) {
	sheets := make(map[uuid.UUID]struct{}, len(c.Sheets))
	for _, s := range c.Sheets {
		sheets[s.ID] = struct{}{}
	}
	for _, s := range other.Sheets {
		if _, ok := sheets[s.ID]; !ok {
			c.Sheets = append(c.Sheets, s)
			sheets[s.ID] = struct{}{}
		}
	}
	items := make(map[uuid.UUID]struct{}, len(c.Items))
	for _, i := range c.Items {
		items[i.ID] = struct{}{}
	}
	for _, i := range other.Items {
		if _, ok := items[i.ID]; !ok {
			c.Items = append(c.Items, i)
			items[i.ID] = struct{}{}
		}
	}
	links := make(map[uuid.UUID]struct{}, len(c.Links))
	for _, l := range c.Links {
		links[l.ID] = struct{}{}
	}
	for _, l := range other.Links {
		if _, ok := links[l.ID]; !ok {
			c.Links = append(c.Links, l)
			links[l.ID] = struct{}{}
		}
	}
}

// DeliverySheetRepository defines persistence for delivery sheets and their items
type DeliverySheetRepository interface {
	FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*DeliverySheet, error)
	FindByAlias(ctx context.Context, tenantID uuid.UUID, alias string) (*DeliverySheet, error)

	// FindSubSheets lists the ACTIVE sub-sheets joined to a top sheet
	FindSubSheets(ctx context.Context, tenantID, topSheetID uuid.UUID) ([]*DeliverySheet, error)

	// FindActiveSince lists ACTIVE sheets of every tenant dated on or after since
	FindActiveSince(ctx context.Context, since time.Time) ([]*DeliverySheet, error)

	// FindItem finds a sheet item by id
	FindItem(ctx context.Context, tenantID, id uuid.UUID) (*DeliverySheetItem, error)

	// FindItems lists the ACTIVE items of a top sheet
	FindItems(ctx context.Context, tenantID, topSheetID uuid.UUID) ([]*DeliverySheetItem, error)

	// FindActiveLinksByInvoiceGroup lists the ACTIVE links pointing at an invoice group
	FindActiveLinksByInvoiceGroup(ctx context.Context, tenantID, invoiceGroupID uuid.UUID) ([]*DeliverySheetLink, error)

	// FindLink finds a link by id
	FindLink(ctx context.Context, tenantID, id uuid.UUID) (*DeliverySheetLink, error)

	// LoadSource loads everything the sheet's rollups derive from. A top sheet
	// covers all its items; a sub-sheet covers the items assigned to it.
	LoadSource(ctx context.Context, sheet *DeliverySheet) (*SheetSource, error)

	// CreateTopSheet inserts a new top sheet with its items and links
	CreateTopSheet(ctx context.Context, sheet *DeliverySheet, items []*DeliverySheetItem, links []*DeliverySheetLink) error

	// FindOrCreateSubSheet inserts sub with its join row unless one already
	// exists for the same top sheet, courier and date; the existing sheet is
	// returned in that case with created=false.
	FindOrCreateSubSheet(ctx context.Context, top, sub *DeliverySheet) (sheet *DeliverySheet, created bool, err error)

	// AssignItems points items at a sub-sheet
	AssignItems(ctx context.Context, tenantID uuid.UUID, itemIDs []uuid.UUID, subSheetID uuid.UUID) error

	// SaveRollups writes the changed rollup rows in one transaction
	SaveRollups(ctx context.Context, changes SheetChanges) error

	// Destroy retires a sheet. A sub-sheet releases its items and join rows;
	// a top sheet retires its items as well.
	Destroy(ctx context.Context, sheet *DeliverySheet) error
}
