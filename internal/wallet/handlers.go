package wallet

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Handler exposes wallet balances over HTTP.
type Handler struct {
	service *Service
}

// NewHandler creates a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// GetWallet handles GET /users/:userId/wallet.
func (h *Handler) GetWallet(c *gin.Context) {
	w, err := h.service.Balance(c.Request.Context(), c.Param("userId"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to load wallet",
		})
		return
	}
	c.JSON(http.StatusOK, w)
}

// GetHistory handles GET /users/:userId/wallet/history.
func (h *Handler) GetHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	entries, err := h.service.History(c.Request.Context(), c.Param("userId"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to load wallet history",
		})
		return
	}
	if entries == nil {
		entries = []*Entry{}
	}
	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"count":   len(entries),
	})
}
