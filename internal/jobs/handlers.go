package jobs

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Eaziking2002/talent-afro-sub001/internal/auth"
	"github.com/Eaziking2002/talent-afro-sub001/internal/validation"
)

// Handler exposes job and application records over HTTP.
type Handler struct {
	service *Service
}

// NewHandler creates a jobs HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the public read endpoints.
func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/jobs/:jobId", h.GetJob)
}

// RegisterProtectedRoutes registers endpoints that require authentication.
func (h *Handler) RegisterProtectedRoutes(r gin.IRoutes) {
	r.POST("/jobs", h.CreateJob)
	r.POST("/jobs/:jobId/apply", h.Apply)
	r.GET("/jobs/:jobId/applications", h.ListApplications)
	r.GET("/users/:userId/jobs", h.ListByEmployer)
}

// CreateJobRequest is the body for POST /jobs.
type CreateJobRequest struct {
	Title    string `json:"title" binding:"required"`
	Budget   int64  `json:"budget"`
	Currency string `json:"currency"`
}

// CreateJob handles POST /jobs.
func (h *Handler) CreateJob(c *gin.Context) {
	var req CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}
	if req.Currency != "" && !validation.IsValidCurrency(req.Currency) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_currency",
			"message": "Unsupported currency code",
		})
		return
	}

	employerID := auth.GetAuthenticatedUser(c)
	job, err := h.service.Create(c.Request.Context(), employerID, req.Title, req.Budget, req.Currency)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, job)
}

// GetJob handles GET /jobs/:jobId.
func (h *Handler) GetJob(c *gin.Context) {
	job, err := h.service.Get(c.Request.Context(), c.Param("jobId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// ApplyRequest is the body for POST /jobs/:jobId/apply.
type ApplyRequest struct {
	CoverNote string `json:"coverNote"`
}

// Apply handles POST /jobs/:jobId/apply.
func (h *Handler) Apply(c *gin.Context) {
	var req ApplyRequest
	_ = c.ShouldBindJSON(&req) // body optional

	workerID := auth.GetAuthenticatedUser(c)
	app, err := h.service.Apply(c.Request.Context(), c.Param("jobId"), workerID, req.CoverNote)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, app)
}

// ListApplications handles GET /jobs/:jobId/applications.
func (h *Handler) ListApplications(c *gin.Context) {
	apps, err := h.service.Applications(c.Request.Context(), c.Param("jobId"))
	if err != nil {
		respondError(c, err)
		return
	}
	if apps == nil {
		apps = []*Application{}
	}
	c.JSON(http.StatusOK, gin.H{
		"applications": apps,
		"count":        len(apps),
	})
}

// ListByEmployer handles GET /users/:userId/jobs.
func (h *Handler) ListByEmployer(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	list, err := h.service.ListByEmployer(c.Request.Context(), c.Param("userId"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	if list == nil {
		list = []*Job{}
	}
	c.JSON(http.StatusOK, gin.H{
		"jobs":  list,
		"count": len(list),
	})
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrApplicationMissing):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": err.Error(),
		})
	case errors.Is(err, ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "invalid_status",
			"message": err.Error(),
		})
	case errors.Is(err, ErrAlreadyApplied):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "already_applied",
			"message": err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}
}
