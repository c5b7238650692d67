package handler

import (
	"github.com/gin-gonic/gin"
	auditapp "github.com/verifactu/backend/internal/application/audit"
	"github.com/verifactu/backend/internal/interfaces/http/middleware"
)

// EventLogHandler exposes the append-only audit trail
type EventLogHandler struct {
	BaseHandler
	events *auditapp.EventLogService
}

// NewEventLogHandler creates a new EventLogHandler
func NewEventLogHandler(events *auditapp.EventLogService) *EventLogHandler {
	return &EventLogHandler{events: events}
}

// ListEvents returns a page of the tenant's audit trail, newest first
func (h *EventLogHandler) ListEvents(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	var filter auditapp.EventListFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	page, err := h.events.List(c.Request.Context(), tenantID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, page.Items, page.Total, page.Page, page.PageSize)
}

// VerifyChain recomputes the tenant's audit event chain
func (h *EventLogHandler) VerifyChain(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	result, err := h.events.VerifyChain(c.Request.Context(), tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// RegisterRoutes registers audit trail routes
func (h *EventLogHandler) RegisterRoutes(rg *gin.RouterGroup) {
	events := rg.Group("/verifactu/events")
	{
		events.GET("", h.ListEvents)
		events.GET("/verify", h.VerifyChain)
	}
}
