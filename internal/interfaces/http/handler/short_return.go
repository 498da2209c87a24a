package handler

import (
	"github.com/gin-gonic/gin"
	deliveryapp "github.com/pharmaerp/backend/internal/application/delivery"
)

// ShortReturnHandler handles short/return log HTTP requests
type ShortReturnHandler struct {
	BaseHandler
	service *deliveryapp.ShortReturnService
}

// NewShortReturnHandler creates a new ShortReturnHandler
func NewShortReturnHandler(service *deliveryapp.ShortReturnService) *ShortReturnHandler {
	return &ShortReturnHandler{service: service}
}

// Create records a short or a return against an order.
// POST /short-return-logs
func (h *ShortReturnHandler) Create(c *gin.Context) {
	tenantID, userID, ok := h.actor(c)
	if !ok {
		return
	}
	var req deliveryapp.CreateShortReturnLogRequest
	if !h.BindJSON(c, &req) {
		return
	}

	log, err := h.service.Create(c.Request.Context(), tenantID, userID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, log)
}

// GetByID returns one log with its items.
// GET /short-return-logs/:id
func (h *ShortReturnHandler) GetByID(c *gin.Context) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	log, err := h.service.GetByID(c.Request.Context(), tenantID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, log)
}

// ListByInvoiceGroup returns the logs of an invoice group.
// GET /invoice-groups/:id/short-return-logs
func (h *ShortReturnHandler) ListByInvoiceGroup(c *gin.Context) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	logs, err := h.service.ListByInvoiceGroup(c.Request.Context(), tenantID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, logs, int64(len(logs)), 1, max(len(logs), 1))
}

// Approve moves a DRAFT log to ACTIVE.
// POST /short-return-logs/:id/approve
func (h *ShortReturnHandler) Approve(c *gin.Context) {
	tenantID, userID, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	log, err := h.service.Approve(c.Request.Context(), tenantID, userID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, log)
}

// Delete moves a log to INACTIVE within the delete window.
// DELETE /short-return-logs/:id
func (h *ShortReturnHandler) Delete(c *gin.Context) {
	tenantID, userID, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), tenantID, userID, id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}
