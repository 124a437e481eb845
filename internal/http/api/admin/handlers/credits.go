package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/CreditEngine/internal/credits"
	"github.com/router-for-me/CreditEngine/internal/outcome"
	log "github.com/sirupsen/logrus"
)

// CreditHandler lets admins grant credits and inspect balances.
type CreditHandler struct {
	ledger *credits.Ledger
}

// NewCreditHandler constructs a credit handler.
func NewCreditHandler(ledger *credits.Ledger) *CreditHandler {
	return &CreditHandler{ledger: ledger}
}

// grantCreditsRequest captures the payload for a credit grant.
type grantCreditsRequest struct {
	Amount int    `json:"amount"`
	Reason string `json:"reason"`
}

// Grant adds credits to a user's active subscription.
func (h *CreditHandler) Grant(c *gin.Context) {
	userID, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil || userID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var body grantCreditsRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	reason := strings.TrimSpace(body.Reason)
	if reason == "" {
		reason = "admin grant"
	}

	res, errAdd := h.ledger.AddCredits(c.Request.Context(), userID, body.Amount, reason)
	if errAdd != nil {
		log.WithError(errAdd).WithField("user_id", userID).Error("admin: grant credits failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "grant failed"})
		return
	}
	c.JSON(outcome.HTTPStatus(res.Code), res)
}

// Balance returns a user's active subscription balance.
func (h *CreditHandler) Balance(c *gin.Context) {
	userID, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil || userID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	balance, errBalance := h.ledger.GetCreditBalance(c.Request.Context(), userID)
	if errBalance != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, balance)
}
