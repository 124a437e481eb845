package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/CreditEngine/internal/credits"
)

// SubscriptionFrontHandler starts and ends subscriptions for the caller.
type SubscriptionFrontHandler struct {
	ledger *credits.Ledger
}

// NewSubscriptionFrontHandler constructs a SubscriptionFrontHandler.
func NewSubscriptionFrontHandler(ledger *credits.Ledger) *SubscriptionFrontHandler {
	return &SubscriptionFrontHandler{ledger: ledger}
}

// createSubscriptionRequest defines the request body for subscribing.
type createSubscriptionRequest struct {
	PackageID uint64 `json:"package_id"`
}

// Create subscribes the caller to a package, replacing any active subscription.
func (h *SubscriptionFrontHandler) Create(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var body createSubscriptionRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.PackageID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "package_id is required"})
		return
	}

	res, errSubscribe := h.ledger.Subscribe(c.Request.Context(), userID, body.PackageID)
	if errSubscribe != nil {
		respondError(c, "subscribe", errSubscribe)
		return
	}
	if res.Success {
		c.JSON(http.StatusCreated, res)
		return
	}
	respond(c, res.Code, res)
}

// Cancel ends the caller's active subscription.
func (h *SubscriptionFrontHandler) Cancel(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	res, errCancel := h.ledger.CancelSubscription(c.Request.Context(), userID)
	if errCancel != nil {
		respondError(c, "cancel subscription", errCancel)
		return
	}
	respond(c, res.Code, res)
}
