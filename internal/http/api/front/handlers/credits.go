package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/CreditEngine/internal/credits"
)

// CreditFrontHandler exposes the caller's balance.
type CreditFrontHandler struct {
	ledger *credits.Ledger
}

// NewCreditFrontHandler constructs a CreditFrontHandler.
func NewCreditFrontHandler(ledger *credits.Ledger) *CreditFrontHandler {
	return &CreditFrontHandler{ledger: ledger}
}

// Balance returns the active subscription balance.
func (h *CreditFrontHandler) Balance(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	balance, errBalance := h.ledger.GetCreditBalance(c.Request.Context(), userID)
	if errBalance != nil {
		respondError(c, "load balance", errBalance)
		return
	}
	c.JSON(http.StatusOK, balance)
}

// Expiry reports how soon the active subscription ends.
func (h *CreditFrontHandler) Expiry(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	status, errExpiry := h.ledger.CheckSubscriptionExpiry(c.Request.Context(), userID)
	if errExpiry != nil {
		respondError(c, "check expiry", errExpiry)
		return
	}
	c.JSON(http.StatusOK, status)
}

// Transactions returns the caller's ledger history, newest first.
func (h *CreditFrontHandler) Transactions(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var q credits.HistoryQuery
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		limit, errParse := strconv.Atoi(raw)
		if errParse != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		q.Limit = limit
	}
	if raw := strings.TrimSpace(c.Query("before_id")); raw != "" {
		beforeID, errParse := strconv.ParseUint(raw, 10, 64)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid before_id"})
			return
		}
		q.BeforeID = beforeID
	}
	page, errList := h.ledger.ListTransactions(c.Request.Context(), userID, q)
	if errList != nil {
		respondError(c, "list transactions", errList)
		return
	}
	c.JSON(http.StatusOK, page)
}
