package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/CreditEngine/internal/accounting"
	"github.com/router-for-me/CreditEngine/internal/models"
)

// RequestFrontHandler runs request creation and revisions for the caller.
type RequestFrontHandler struct {
	engine *accounting.Engine
}

// NewRequestFrontHandler constructs a RequestFrontHandler.
func NewRequestFrontHandler(engine *accounting.Engine) *RequestFrontHandler {
	return &RequestFrontHandler{engine: engine}
}

// createRequestBody defines the request body for creating and quoting requests.
type createRequestBody struct {
	ServiceTypeID      uint64                     `json:"service_type_id"`
	Title              string                     `json:"title"`
	Priority           string                     `json:"priority"`
	AttributeResponses []models.AttributeResponse `json:"attribute_responses"`
}

// revisionBody defines the request body for requesting a revision.
type revisionBody struct {
	Feedback string `json:"feedback"`
}

// Create prices and charges for a new request.
func (h *RequestFrontHandler) Create(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var body createRequestBody
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	res, errCreate := h.engine.CreateRequest(c.Request.Context(), accounting.CreateRequestInput{
		ClientID:      userID,
		ServiceTypeID: body.ServiceTypeID,
		Title:         body.Title,
		Priority:      body.Priority,
		Responses:     body.AttributeResponses,
	})
	if errCreate != nil {
		respondError(c, "create request", errCreate)
		return
	}
	if res.Success {
		c.JSON(http.StatusCreated, res)
		return
	}
	respond(c, res.Code, res)
}

// Quote prices a prospective request without charging.
func (h *RequestFrontHandler) Quote(c *gin.Context) {
	var body createRequestBody
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	res, errQuote := h.engine.PriceQuote(c.Request.Context(), body.ServiceTypeID, body.AttributeResponses, body.Priority)
	if errQuote != nil {
		respondError(c, "quote request", errQuote)
		return
	}
	respond(c, res.Code, res)
}

// RevisionInfo returns the price of the next revision.
func (h *RequestFrontHandler) RevisionInfo(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	requestID, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
		return
	}
	info, errInfo := h.engine.Revisions().GetRevisionInfo(c.Request.Context(), requestID, userID)
	if errInfo != nil {
		respondError(c, "load revision info", errInfo)
		return
	}
	respond(c, info.Code, info)
}

// RequestRevision asks for a revision of delivered work.
func (h *RequestFrontHandler) RequestRevision(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	requestID, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
		return
	}
	var body revisionBody
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	res, errRevision := h.engine.RequestRevision(c.Request.Context(), accounting.RevisionInput{
		RequestID: requestID,
		UserID:    userID,
		Feedback:  body.Feedback,
	})
	if errRevision != nil {
		respondError(c, "request revision", errRevision)
		return
	}
	respond(c, res.Code, res)
}
