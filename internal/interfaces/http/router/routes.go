package router

import (
	"github.com/gin-gonic/gin"
	"github.com/pharmaerp/backend/internal/interfaces/http/handler"
)

// Handlers bundles the HTTP handlers of the delivery service
type Handlers struct {
	ShortReturn   *handler.ShortReturnHandler
	DeliverySheet *handler.DeliverySheetHandler
	Outbox        *handler.OutboxHandler
	System        *handler.SystemHandler
}

// ShortReturnRoutes returns the short/return log routes
func ShortReturnRoutes(h *handler.ShortReturnHandler) []RouteRegistrar {
	logs := NewDomainGroup("short-return-logs", "/short-return-logs").
		POST("", h.Create).
		GET("/:id", h.GetByID).
		POST("/:id/approve", h.Approve).
		DELETE("/:id", h.Delete)
	groups := NewDomainGroup("invoice-groups", "/invoice-groups").
		GET("/:id/short-return-logs", h.ListByInvoiceGroup)
	return []RouteRegistrar{logs, groups}
}

// DeliverySheetRoutes returns the delivery sheet and top sheet routes
func DeliverySheetRoutes(h *handler.DeliverySheetHandler) []RouteRegistrar {
	sheets := NewDomainGroup("delivery-sheets", "/delivery-sheets").
		POST("", h.Generate).
		GET("/:id", h.GetByID).
		GET("/:id/info", h.Info).
		GET("/:id/short-return-mismatch", h.ShortReturnMismatch).
		POST("/:id/approve-short-return", h.ApproveShortReturns).
		POST("/:id/sub-sheets", h.AssignSubSheet).
		DELETE("/:id", h.Destroy)
	topSheets := NewDomainGroup("top-sheets", "/top-sheets").
		POST("/:alias/fix-mismatch", h.FixMismatch)
	return []RouteRegistrar{sheets, topSheets}
}

// SystemRoutes returns the maintenance routes
func SystemRoutes(outbox *handler.OutboxHandler, system *handler.SystemHandler) RouteRegistrar {
	g := NewDomainGroup("system", "/system")
	if system != nil {
		g.GET("/info", system.Info)
	}
	if outbox != nil {
		g.GET("/outbox/dead", outbox.ListDead).
			GET("/outbox/stats", outbox.Stats).
			POST("/outbox/:id/retry", outbox.RetryDead)
	}
	return g
}

// Mount registers every handler on the engine. Health probes live outside
// the versioned API.
func Mount(engine *gin.Engine, h Handlers) {
	if h.System != nil {
		engine.GET("/health", h.System.Health)
		engine.GET("/ready", h.System.Ready)
	}

	r := NewRouter(engine)
	if h.ShortReturn != nil {
		for _, g := range ShortReturnRoutes(h.ShortReturn) {
			r.Register(g)
		}
	}
	if h.DeliverySheet != nil {
		for _, g := range DeliverySheetRoutes(h.DeliverySheet) {
			r.Register(g)
		}
	}
	r.Register(SystemRoutes(h.Outbox, h.System))
	r.Setup()
}
