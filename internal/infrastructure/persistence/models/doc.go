// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer free
// from ORM concerns.
//
// Structure:
//   - base.go: base persistence models (BaseModel, AggregateModel, TenantAggregateModel)
//   - delivery.go: short/return logs, invoice groups, orders, stock, couriers,
//     organizations, delivery sheets with their items, links and sub-sheet joins
//   - outbox.go: outbox model for cascade task delivery
package models
