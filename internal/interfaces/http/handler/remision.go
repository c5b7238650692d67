package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	remisionapp "github.com/verifactu/backend/internal/application/remision"
	"github.com/verifactu/backend/internal/interfaces/http/middleware"
)

// RemisionHandler exposes AEAT submission pipeline operations
type RemisionHandler struct {
	BaseHandler
	remision *remisionapp.RemisionService
}

// NewRemisionHandler creates a new RemisionHandler
func NewRemisionHandler(remision *remisionapp.RemisionService) *RemisionHandler {
	return &RemisionHandler{remision: remision}
}

// CreateBatch chunks the tenant's pending records into queued batches and
// enqueues them for submission
func (h *RemisionHandler) CreateBatch(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	result, err := h.remision.ProcessQueue(c.Request.Context(), tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if result.BatchesCreated == 0 {
		h.BadRequest(c, "no pending records to submit")
		return
	}
	h.Created(c, result)
}

// GetBatch returns one submission batch
func (h *RemisionHandler) GetBatch(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "batch ID is not a valid UUID")
		return
	}

	batch, err := h.remision.GetBatch(c.Request.Context(), tenantID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, batch)
}

// ListBatches returns a page of the tenant's submission batches
func (h *RemisionHandler) ListBatches(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	var filter remisionapp.BatchListFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	page, err := h.remision.ListBatches(c.Request.Context(), tenantID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, page.Items, page.Total, page.Page, page.PageSize)
}

// RetryBatch re-submits a failed batch synchronously
func (h *RemisionHandler) RetryBatch(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "batch ID is not a valid UUID")
		return
	}

	result, err := h.remision.RetryBatch(c.Request.Context(), tenantID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// ProcessQueue chunks the tenant's pending records into submission batches
func (h *RemisionHandler) ProcessQueue(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	result, err := h.remision.ProcessQueue(c.Request.Context(), tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// QueueStatus reports batch counts, pending records and breaker state
func (h *RemisionHandler) QueueStatus(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	status, err := h.remision.QueueStatus(c.Request.Context(), tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, status)
}

// RegisterRoutes registers all submission pipeline routes
func (h *RemisionHandler) RegisterRoutes(rg *gin.RouterGroup) {
	batches := rg.Group("/verifactu/batches")
	{
		batches.POST("", h.CreateBatch)
		batches.GET("", h.ListBatches)
		batches.GET("/:id", h.GetBatch)
		batches.POST("/:id/retry", h.RetryBatch)
	}
	queue := rg.Group("/verifactu/queue")
	{
		queue.POST("/process", h.ProcessQueue)
		queue.GET("/status", h.QueueStatus)
	}
}
