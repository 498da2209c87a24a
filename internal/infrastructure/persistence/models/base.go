package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pharmaerp/backend/internal/domain/shared"
)

// BaseModel holds the identity and timestamps every table carries.
type BaseModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// AggregateModel adds the optimistic lock column.
type AggregateModel struct {
	BaseModel
	Version int `gorm:"not null;default:1"`
}

// TenantAggregateModel is the row header of every tenant-owned aggregate.
type TenantAggregateModel struct {
	AggregateModel
	TenantID  uuid.UUID  `gorm:"type:uuid;not null;index"`
	CreatedBy *uuid.UUID `gorm:"type:uuid;index"`
}

// Root rebuilds the domain header. Pending events are never persisted, so
// the result starts with none.
func (m *TenantAggregateModel) Root() shared.TenantAggregateRoot {
	var r shared.TenantAggregateRoot
	r.ID = m.ID
	r.CreatedAt = m.CreatedAt
	r.UpdatedAt = m.UpdatedAt
	r.Version = m.Version
	r.TenantID = m.TenantID
	r.CreatedBy = m.CreatedBy
	return r
}

// SetRoot copies the domain header onto the row.
func (m *TenantAggregateModel) SetRoot(r shared.TenantAggregateRoot) {
	m.ID = r.ID
	m.CreatedAt = r.CreatedAt
	m.UpdatedAt = r.UpdatedAt
	m.Version = r.Version
	m.TenantID = r.TenantID
	m.CreatedBy = r.CreatedBy
}
