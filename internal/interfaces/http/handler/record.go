package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	ledgerapp "github.com/verifactu/backend/internal/application/ledger"
	"github.com/verifactu/backend/internal/interfaces/http/middleware"
)

// RecordHandler exposes ledger record operations
type RecordHandler struct {
	BaseHandler
	records *ledgerapp.RecordService
}

// NewRecordHandler creates a new RecordHandler
func NewRecordHandler(records *ledgerapp.RecordService) *RecordHandler {
	return &RecordHandler{records: records}
}

// CancelRequest identifies the invoice to cancel
type CancelRequest struct {
	InvoiceNumber string `json:"invoice_number" binding:"required"`
}

// CreateAlta registers a new invoice in the tenant's ledger chain
func (h *RecordHandler) CreateAlta(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	var req ledgerapp.CreateAltaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	record, err := h.records.CreateAlta(c.Request.Context(), tenantID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, record)
}

// CreateAnulacion appends a cancellation record for an existing invoice
func (h *RecordHandler) CreateAnulacion(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	var req CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	record, err := h.records.CreateAnulacion(c.Request.Context(), tenantID, req.InvoiceNumber)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, record)
}

// CreateRectificativa registers a corrective invoice referencing its source
func (h *RecordHandler) CreateRectificativa(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	var req ledgerapp.CreateRectificativaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	record, err := h.records.CreateRectificativa(c.Request.Context(), tenantID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, record)
}

// GetRecord returns one ledger record
func (h *RecordHandler) GetRecord(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "record ID is not a valid UUID")
		return
	}

	record, err := h.records.GetRecord(c.Request.Context(), tenantID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, record)
}

// GetVerificationURL returns the AEAT QR validation URL for one record
func (h *RecordHandler) GetVerificationURL(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "record ID is not a valid UUID")
		return
	}

	record, err := h.records.GetRecord(c.Request.Context(), tenantID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, gin.H{
		"invoice_number":   record.InvoiceNumber,
		"verification_url": record.VerificationURL,
		"hash":             record.HashRecord,
	})
}

// GetRecordXML returns the AEAT registration envelope for one record
func (h *RecordHandler) GetRecordXML(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "record ID is not a valid UUID")
		return
	}

	envelope, err := h.records.RecordXML(c.Request.Context(), tenantID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.Data(http.StatusOK, "text/xml; charset=utf-8", []byte(envelope))
}

// ListRecords returns a page of the tenant's ledger records
func (h *RecordHandler) ListRecords(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	var filter ledgerapp.RecordListFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	page, err := h.records.ListRecords(c.Request.Context(), tenantID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, page.Items, page.Total, page.Page, page.PageSize)
}

// VerifyChain walks the tenant's full ledger chain and reports the first
// break, if any
func (h *RecordHandler) VerifyChain(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	result, err := h.records.VerifyChain(c.Request.Context(), tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// RegisterRoutes registers all ledger record routes
func (h *RecordHandler) RegisterRoutes(rg *gin.RouterGroup) {
	records := rg.Group("/verifactu/records")
	{
		records.POST("", h.CreateAlta)
		records.POST("/cancel", h.CreateAnulacion)
		records.POST("/rectify", h.CreateRectificativa)
		records.GET("", h.ListRecords)
		records.GET("/:id", h.GetRecord)
		records.GET("/:id/qr", h.GetVerificationURL)
		records.GET("/:id/xml", h.GetRecordXML)
	}
	rg.GET("/verifactu/chain/verify", h.VerifyChain)
}
