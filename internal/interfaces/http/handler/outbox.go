package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pharmaerp/backend/internal/domain/shared"
	"github.com/pharmaerp/backend/internal/interfaces/http/dto"
)

// DeadLetterRetrier moves a dead cascade task back to PENDING
type DeadLetterRetrier interface {
	RetryDead(ctx context.Context, entry *shared.OutboxEntry) error
}

// OutboxHandler exposes cascade task maintenance
type OutboxHandler struct {
	BaseHandler
	repo    shared.OutboxRepository
	retrier DeadLetterRetrier
}

// NewOutboxHandler creates a new OutboxHandler
func NewOutboxHandler(repo shared.OutboxRepository, retrier DeadLetterRetrier) *OutboxHandler {
	return &OutboxHandler{repo: repo, retrier: retrier}
}

// OutboxEntryResponse represents a cascade task in API responses
type OutboxEntryResponse struct {
	ID            uuid.UUID  `json:"id"`
	TenantID      uuid.UUID  `json:"tenant_id"`
	EventID       uuid.UUID  `json:"event_id"`
	EventType     string     `json:"event_type"`
	AggregateID   uuid.UUID  `json:"aggregate_id"`
	AggregateType string     `json:"aggregate_type"`
	Status        string     `json:"status"`
	RetryCount    int        `json:"retry_count"`
	MaxRetries    int        `json:"max_retries"`
	LastError     string     `json:"last_error,omitempty"`
	NextRetryAt   *time.Time `json:"next_retry_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func toOutboxEntryResponse(e *shared.OutboxEntry) OutboxEntryResponse {
	return OutboxEntryResponse{
		ID:            e.ID,
		TenantID:      e.TenantID,
		EventID:       e.EventID,
		EventType:     e.EventType,
		AggregateID:   e.AggregateID,
		AggregateType: e.AggregateType,
		Status:        string(e.Status),
		RetryCount:    e.RetryCount,
		MaxRetries:    e.MaxRetries,
		LastError:     e.LastError,
		NextRetryAt:   e.NextRetryAt,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
}

// ListDead returns dead cascade tasks, newest first.
// GET /system/outbox/dead
func (h *OutboxHandler) ListDead(c *gin.Context) {
	var page dto.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		h.BadRequest(c, "Invalid query parameters")
		return
	}
	page.Normalize()

	entries, total, err := h.repo.FindDead(c.Request.Context(), page.Page, page.PageSize)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	out := make([]OutboxEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = toOutboxEntryResponse(e)
	}
	h.SuccessWithMeta(c, out, total, page.Page, page.PageSize)
}

// Stats returns the number of cascade tasks per status.
// GET /system/outbox/stats
func (h *OutboxHandler) Stats(c *gin.Context) {
	counts, err := h.repo.CountByStatus(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, counts)
}

// RetryDead moves one dead cascade task back to PENDING.
// POST /system/outbox/:id/retry
func (h *OutboxHandler) RetryDead(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	entry, err := h.repo.FindByID(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if err := h.retrier.RetryDead(c.Request.Context(), entry); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toOutboxEntryResponse(entry))
}
