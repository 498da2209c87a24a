package handler

import (
	"github.com/gin-gonic/gin"
	deliveryapp "github.com/pharmaerp/backend/internal/application/delivery"
)

// DeliverySheetHandler handles delivery sheet HTTP requests
type DeliverySheetHandler struct {
	BaseHandler
	sheets     *deliveryapp.SheetService
	assigner   *deliveryapp.SubSheetAssigner
	reconciler *deliveryapp.ReconciliationService
}

// NewDeliverySheetHandler creates a new DeliverySheetHandler
func NewDeliverySheetHandler(
	sheets *deliveryapp.SheetService,
	assigner *deliveryapp.SubSheetAssigner,
	reconciler *deliveryapp.ReconciliationService,
) *DeliverySheetHandler {
	return &DeliverySheetHandler{
		sheets:     sheets,
		assigner:   assigner,
		reconciler: reconciler,
	}
}

// Generate builds a top sheet from invoice groups.
// POST /delivery-sheets
func (h *DeliverySheetHandler) Generate(c *gin.Context) {
	tenantID, userID, ok := h.actor(c)
	if !ok {
		return
	}
	var req deliveryapp.GenerateSheetRequest
	if !h.BindJSON(c, &req) {
		return
	}

	sheet, err := h.sheets.Generate(c.Request.Context(), tenantID, userID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, sheet)
}

// GetByID returns a sheet with its cached rollups.
// GET /delivery-sheets/:id
func (h *DeliverySheetHandler) GetByID(c *gin.Context) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	sheet, err := h.sheets.GetByID(c.Request.Context(), tenantID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, sheet)
}

// Info returns the per-organization breakdown of a sheet.
// GET /delivery-sheets/:id/info
func (h *DeliverySheetHandler) Info(c *gin.Context) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	info, err := h.sheets.Info(c.Request.Context(), tenantID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, info)
}

// ShortReturnMismatch compares cached short/return totals with their sources.
// GET /delivery-sheets/:id/short-return-mismatch
func (h *DeliverySheetHandler) ShortReturnMismatch(c *gin.Context) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	report, err := h.reconciler.IsShortReturnAmountMismatched(c.Request.Context(), tenantID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, report)
}

// ApproveShortReturns activates every DRAFT log on the sheet.
// POST /delivery-sheets/:id/approve-short-return
func (h *DeliverySheetHandler) ApproveShortReturns(c *gin.Context) {
	tenantID, userID, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	result, err := h.sheets.ApproveShortReturns(c.Request.Context(), tenantID, id, userID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// AssignSubSheet moves organizations of a top sheet onto a courier's sub-sheet.
// POST /delivery-sheets/:id/sub-sheets
func (h *DeliverySheetHandler) AssignSubSheet(c *gin.Context) {
	tenantID, _, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req deliveryapp.AssignSubSheetRequest
	if !h.BindJSON(c, &req) {
		return
	}

	result, err := h.assigner.Assign(c.Request.Context(), tenantID, id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if result.Created {
		h.Created(c, result)
		return
	}
	h.Success(c, result)
}

// Destroy retires a sheet.
// DELETE /delivery-sheets/:id
func (h *DeliverySheetHandler) Destroy(c *gin.Context) {
	tenantID, _, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	if err := h.sheets.DestroySheet(c.Request.Context(), tenantID, id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// FixMismatch rebuilds every rollup reachable from a top sheet.
// POST /top-sheets/:alias/fix-mismatch
func (h *DeliverySheetHandler) FixMismatch(c *gin.Context) {
	tenantID, _, ok := h.actor(c)
	if !ok {
		return
	}
	alias := c.Param("alias")
	if alias == "" {
		h.BadRequest(c, "Invalid alias")
		return
	}

	result, err := h.reconciler.RepairByAlias(c.Request.Context(), tenantID, alias)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}
