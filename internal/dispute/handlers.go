package dispute

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Eaziking2002/talent-afro-sub001/internal/auth"
	"github.com/Eaziking2002/talent-afro-sub001/internal/validation"
)

// Handler exposes disputes over HTTP.
type Handler struct {
	service *Service
}

// NewHandler creates a dispute HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterProtectedRoutes registers endpoints that require authentication.
func (h *Handler) RegisterProtectedRoutes(r gin.IRoutes) {
	r.POST("/disputes", h.Open)
	r.GET("/disputes/:disputeId", h.Get)
}

// RegisterAdminRoutes registers admin-only endpoints.
func (h *Handler) RegisterAdminRoutes(r gin.IRoutes) {
	r.GET("/admin/disputes", h.ListOpen)
	r.POST("/admin/disputes/:disputeId/resolve", h.Resolve)
	r.POST("/admin/disputes/sweep", h.Sweep)
}

// OpenRequest is the body for POST /disputes.
type OpenRequest struct {
	JobID  string `json:"jobId" binding:"required"`
	Reason string `json:"reason" binding:"required"`
}

// Open handles POST /disputes.
func (h *Handler) Open(c *gin.Context) {
	var req OpenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}
	raisedBy := auth.GetAuthenticatedUser(c)

	d, err := h.service.Open(c.Request.Context(), req.JobID, raisedBy,
		validation.SanitizeString(req.Reason, validation.MaxStringLength))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

// Get handles GET /disputes/:disputeId.
func (h *Handler) Get(c *gin.Context) {
	d, err := h.service.Get(c.Request.Context(), c.Param("disputeId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// ListOpen handles GET /admin/disputes.
func (h *Handler) ListOpen(c *gin.Context) {
	disputes, err := h.service.ListOpen(c.Request.Context(), 100)
	if err != nil {
		respondError(c, err)
		return
	}
	if disputes == nil {
		disputes = []*Dispute{}
	}
	c.JSON(http.StatusOK, gin.H{"disputes": disputes, "count": len(disputes)})
}

// ResolveRequest is the body for POST /admin/disputes/:disputeId/resolve.
type ResolveRequest struct {
	Resolution string `json:"resolution" binding:"required"`
}

// Resolve handles POST /admin/disputes/:disputeId/resolve.
func (h *Handler) Resolve(c *gin.Context) {
	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}
	adminID := auth.GetAuthenticatedUser(c)
	if adminID == "" {
		adminID = "admin"
	}

	d, err := h.service.Resolve(c.Request.Context(), c.Param("disputeId"),
		adminID, validation.SanitizeString(req.Resolution, validation.MaxStringLength))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// Sweep handles POST /admin/disputes/sweep, running the escalation sweep
// on demand. External cron can drive the sweep through this endpoint.
func (h *Handler) Sweep(c *gin.Context) {
	result, err := h.service.RunEscalationSweep(c.Request.Context(), time.Now())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": err.Error(),
		})
	case errors.Is(err, ErrEmptyReason):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
	case errors.Is(err, ErrNoAdmins):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "no_admins",
			"message": err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "an unexpected error occurred",
		})
	}
}
