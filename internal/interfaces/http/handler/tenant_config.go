package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	ledgerapp "github.com/verifactu/backend/internal/application/ledger"
	"github.com/verifactu/backend/internal/domain/ledger"
	"github.com/verifactu/backend/internal/infrastructure/aeat"
	"github.com/verifactu/backend/internal/interfaces/http/middleware"
)

// ConnectionProber checks reachability of the AEAT endpoint for an
// environment
type ConnectionProber interface {
	Probe(ctx context.Context, env ledger.Environment) error
}

// TenantConfigHandler exposes per-tenant VeriFactu configuration
type TenantConfigHandler struct {
	BaseHandler
	config *ledgerapp.TenantConfigService
	certs  *aeat.CertificateInspector
	prober ConnectionProber
}

// NewTenantConfigHandler creates a new TenantConfigHandler
func NewTenantConfigHandler(config *ledgerapp.TenantConfigService) *TenantConfigHandler {
	return &TenantConfigHandler{config: config}
}

// SetCertificateInspector wires certificate status reporting
func (h *TenantConfigHandler) SetCertificateInspector(certs *aeat.CertificateInspector) {
	h.certs = certs
}

// SetConnectionProber wires AEAT connectivity testing
func (h *TenantConfigHandler) SetConnectionProber(prober ConnectionProber) {
	h.prober = prober
}

// GetConfig returns the tenant's issuer identity and ledger settings
func (h *TenantConfigHandler) GetConfig(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	config, err := h.config.GetConfig(c.Request.Context(), tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, config)
}

// UpdateConfig creates or updates the tenant's VeriFactu settings
func (h *TenantConfigHandler) UpdateConfig(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	var req ledgerapp.UpdateTenantConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	config, err := h.config.UpdateConfig(c.Request.Context(), tenantID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, config)
}

// GetCertificateStatus reports whether the AEAT client certificate is
// configured and currently valid
func (h *TenantConfigHandler) GetCertificateStatus(c *gin.Context) {
	if h.certs == nil {
		h.Success(c, &aeat.CertificateStatus{Configured: false})
		return
	}
	h.Success(c, h.certs.Status())
}

// TestConnection probes the AEAT endpoint for the tenant's configured
// environment
func (h *TenantConfigHandler) TestConnection(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	if h.prober == nil {
		h.InternalError(c, "connection probing is not configured")
		return
	}

	config, err := h.config.GetConfig(c.Request.Context(), tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	env := ledger.Environment(config.Environment)
	if err := h.prober.Probe(c.Request.Context(), env); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, gin.H{
		"environment": config.Environment,
		"reachable":   true,
	})
}

// RegisterRoutes registers tenant configuration routes
func (h *TenantConfigHandler) RegisterRoutes(rg *gin.RouterGroup) {
	config := rg.Group("/verifactu/config")
	{
		config.GET("", h.GetConfig)
		config.PUT("", h.UpdateConfig)
		config.GET("/certificate/status", h.GetCertificateStatus)
		config.POST("/test-connection", h.TestConnection)
	}
}
