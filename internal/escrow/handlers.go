package escrow

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Eaziking2002/talent-afro-sub001/internal/auth"
	"github.com/Eaziking2002/talent-afro-sub001/internal/gateway"
	"github.com/Eaziking2002/talent-afro-sub001/internal/security"
	"github.com/Eaziking2002/talent-afro-sub001/internal/validation"
)

// Handler exposes the transaction lifecycle over HTTP.
type Handler struct {
	service *Service
}

// NewHandler creates an escrow HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the public read endpoints.
func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/transactions/:id", h.GetTransaction)
	r.GET("/users/:userId/transactions", h.ListTransactions)
}

// RegisterProtectedRoutes registers endpoints that require authentication.
func (h *Handler) RegisterProtectedRoutes(r gin.IRoutes) {
	r.POST("/payments/escrow", h.InitializeEscrow)
	r.POST("/jobs/:jobId/release", h.ReleaseEscrow)
	r.POST("/payouts", h.WithdrawPayout)
	r.POST("/transactions/:id/proof", h.SubmitProof)
}

// RegisterAdminRoutes registers admin-only endpoints.
func (h *Handler) RegisterAdminRoutes(r gin.IRoutes) {
	r.POST("/admin/proofs/:proofId/verify", h.VerifyProof)
	r.GET("/admin/transactions/summary", h.Summary)
}

// Summary handles GET /admin/transactions/summary.
func (h *Handler) Summary(c *gin.Context) {
	summary, err := h.service.StatusSummary(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": summary})
}

// InitializeEscrow handles POST /payments/escrow.
func (h *Handler) InitializeEscrow(c *gin.Context) {
	var req InitializeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}
	req.EmployerID = auth.GetAuthenticatedUser(c)

	tx, err := h.service.InitializeEscrow(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tx)
}

// ReleaseEscrow handles POST /jobs/:jobId/release.
func (h *Handler) ReleaseEscrow(c *gin.Context) {
	callerID := auth.GetAuthenticatedUser(c)

	tx, err := h.service.ReleaseEscrow(c.Request.Context(), c.Param("jobId"), callerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tx)
}

// WithdrawRequest is the body for POST /payouts.
type WithdrawRequest struct {
	Amount   int64  `json:"amount" binding:"required"`
	Currency string `json:"currency" binding:"required"`
}

// WithdrawPayout handles POST /payouts.
func (h *Handler) WithdrawPayout(c *gin.Context) {
	var req WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}
	workerID := auth.GetAuthenticatedUser(c)

	tx, err := h.service.WithdrawPayout(c.Request.Context(), workerID, req.Amount, req.Currency)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tx)
}

// SubmitProofRequest is the body for POST /transactions/:id/proof.
type SubmitProofRequest struct {
	URL  string `json:"url"`
	Note string `json:"note"`
}

// SubmitProof handles POST /transactions/:id/proof.
func (h *Handler) SubmitProof(c *gin.Context) {
	var req SubmitProofRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}
	if req.URL != "" {
		if err := security.ValidateStoredURL(req.URL); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_url",
				"message": err.Error(),
			})
			return
		}
	}
	uploaderID := auth.GetAuthenticatedUser(c)

	proof, err := h.service.SubmitProof(c.Request.Context(), c.Param("id"), uploaderID,
		validation.SanitizeString(req.URL, 500), validation.SanitizeString(req.Note, validation.MaxStringLength))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, proof)
}

// VerifyProofRequest is the body for POST /admin/proofs/:proofId/verify.
type VerifyProofRequest struct {
	Approve bool   `json:"approve"`
	Note    string `json:"note"`
}

// VerifyProof handles POST /admin/proofs/:proofId/verify.
func (h *Handler) VerifyProof(c *gin.Context) {
	var req VerifyProofRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}
	reviewerID := auth.GetAuthenticatedUser(c)
	if reviewerID == "" {
		reviewerID = "admin"
	}

	proof, err := h.service.VerifyProof(c.Request.Context(), c.Param("proofId"),
		reviewerID, req.Approve, validation.SanitizeString(req.Note, validation.MaxStringLength))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, proof)
}

// GetTransaction handles GET /transactions/:id.
func (h *Handler) GetTransaction(c *gin.Context) {
	tx, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tx)
}

// ListTransactions handles GET /users/:userId/transactions.
func (h *Handler) ListTransactions(c *gin.Context) {
	txs, err := h.service.ListByUser(c.Request.Context(), c.Param("userId"), 50)
	if err != nil {
		respondError(c, err)
		return
	}
	if txs == nil {
		txs = []*Transaction{}
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs, "count": len(txs)})
}

// respondError maps service errors to HTTP responses.
func respondError(c *gin.Context, err error) {
	var gwErr *gateway.Error

	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrProofNotFound), errors.Is(err, ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": err.Error(),
		})
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrUnsupportedCurrency):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
	case errors.Is(err, ErrNotEmployer):
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "forbidden",
			"message": err.Error(),
		})
	case errors.Is(err, ErrEscrowNotFunded), errors.Is(err, ErrAlreadyReleased),
		errors.Is(err, ErrProofDecided), errors.Is(err, ErrInvalidStatus):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "conflict",
			"message": err.Error(),
		})
	case errors.Is(err, ErrInsufficientFunds):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "insufficient_funds",
			"message": err.Error(),
		})
	case errors.As(err, &gwErr):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "gateway_error",
			"message": gwErr.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "an unexpected error occurred",
		})
	}
}
