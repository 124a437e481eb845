package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/CreditEngine/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ServiceTypeHandler manages admin endpoints for service types and their pricing.
type ServiceTypeHandler struct {
	db *gorm.DB // Database handle for service type records.
}

// NewServiceTypeHandler constructs a service type handler.
func NewServiceTypeHandler(db *gorm.DB) *ServiceTypeHandler {
	return &ServiceTypeHandler{db: db}
}

// createServiceTypeRequest captures the payload for creating a service type.
type createServiceTypeRequest struct {
	Name                     string             `json:"name"`
	Description              string             `json:"description"`
	CreditCost               int                `json:"credit_cost"`
	MaxFreeRevisions         int                `json:"max_free_revisions"`
	PaidRevisionCost         int                `json:"paid_revision_cost"`
	ResetFreeRevisionsOnPaid bool               `json:"reset_free_revisions_on_paid"`
	PriorityCostLow          *int               `json:"priority_cost_low"`
	PriorityCostMedium       *int               `json:"priority_cost_medium"`
	PriorityCostHigh         *int               `json:"priority_cost_high"`
	Attributes               []models.Attribute `json:"attributes"`
}

// updateServiceTypeRequest captures optional fields for service type updates.
type updateServiceTypeRequest struct {
	Name                     *string             `json:"name"`
	Description              *string             `json:"description"`
	CreditCost               *int                `json:"credit_cost"`
	MaxFreeRevisions         *int                `json:"max_free_revisions"`
	PaidRevisionCost         *int                `json:"paid_revision_cost"`
	ResetFreeRevisionsOnPaid *bool               `json:"reset_free_revisions_on_paid"`
	PriorityCostLow          *int                `json:"priority_cost_low"`
	PriorityCostMedium       *int                `json:"priority_cost_medium"`
	PriorityCostHigh         *int                `json:"priority_cost_high"`
	Attributes               *[]models.Attribute `json:"attributes"`
	IsEnabled                *bool               `json:"is_enabled"`
}

var errNegativeCost = errors.New("costs and revision counts must be non-negative")

// Create validates input and inserts a new service type.
func (h *ServiceTypeHandler) Create(c *gin.Context) {
	var body createServiceTypeRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(body.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}
	if anyNegative(&body.CreditCost, &body.MaxFreeRevisions, &body.PaidRevisionCost,
		body.PriorityCostLow, body.PriorityCostMedium, body.PriorityCostHigh) {
		c.JSON(http.StatusBadRequest, gin.H{"error": errNegativeCost.Error()})
		return
	}

	now := time.Now().UTC()
	st := models.ServiceType{
		Name:                     strings.TrimSpace(body.Name),
		Description:              body.Description,
		CreditCost:               body.CreditCost,
		MaxFreeRevisions:         body.MaxFreeRevisions,
		PaidRevisionCost:         body.PaidRevisionCost,
		ResetFreeRevisionsOnPaid: body.ResetFreeRevisionsOnPaid,
		PriorityCostLow:          body.PriorityCostLow,
		PriorityCostMedium:       body.PriorityCostMedium,
		PriorityCostHigh:         body.PriorityCostHigh,
		Attributes:               datatypes.JSONSlice[models.Attribute](body.Attributes),
		IsEnabled:                true,
		CreatedAt:                now,
		UpdatedAt:                now,
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&st).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create service type failed"})
		return
	}
	c.JSON(http.StatusCreated, h.formatServiceType(&st))
}

// List returns all service types.
func (h *ServiceTypeHandler) List(c *gin.Context) {
	var rows []models.ServiceType
	if errFind := h.db.WithContext(c.Request.Context()).Order("id ASC").Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list service types failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, h.formatServiceType(&row))
	}
	c.JSON(http.StatusOK, gin.H{"service_types": out})
}

// Update applies partial changes. Pricing and revision policy changes take
// effect for in-flight requests on their next revision.
func (h *ServiceTypeHandler) Update(c *gin.Context) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var body updateServiceTypeRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if anyNegative(body.CreditCost, body.MaxFreeRevisions, body.PaidRevisionCost,
		body.PriorityCostLow, body.PriorityCostMedium, body.PriorityCostHigh) {
		c.JSON(http.StatusBadRequest, gin.H{"error": errNegativeCost.Error()})
		return
	}

	var st models.ServiceType
	if errFind := h.db.WithContext(c.Request.Context()).First(&st, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	updates := map[string]any{"updated_at": time.Now().UTC()}
	if body.Name != nil {
		name := strings.TrimSpace(*body.Name)
		if name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
			return
		}
		updates["name"] = name
	}
	if body.Description != nil {
		updates["description"] = *body.Description
	}
	if body.CreditCost != nil {
		updates["credit_cost"] = *body.CreditCost
	}
	if body.MaxFreeRevisions != nil {
		updates["max_free_revisions"] = *body.MaxFreeRevisions
	}
	if body.PaidRevisionCost != nil {
		updates["paid_revision_cost"] = *body.PaidRevisionCost
	}
	if body.ResetFreeRevisionsOnPaid != nil {
		updates["reset_free_revisions_on_paid"] = *body.ResetFreeRevisionsOnPaid
	}
	if body.PriorityCostLow != nil {
		updates["priority_cost_low"] = *body.PriorityCostLow
	}
	if body.PriorityCostMedium != nil {
		updates["priority_cost_medium"] = *body.PriorityCostMedium
	}
	if body.PriorityCostHigh != nil {
		updates["priority_cost_high"] = *body.PriorityCostHigh
	}
	if body.Attributes != nil {
		updates["attributes"] = datatypes.JSONSlice[models.Attribute](*body.Attributes)
	}
	if body.IsEnabled != nil {
		updates["is_enabled"] = *body.IsEnabled
	}

	if errUpdate := h.db.WithContext(c.Request.Context()).Model(&st).Updates(updates).Error; errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	if errReload := h.db.WithContext(c.Request.Context()).First(&st, id).Error; errReload != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, h.formatServiceType(&st))
}

func anyNegative(values ...*int) bool {
	for _, v := range values {
		if v != nil && *v < 0 {
			return true
		}
	}
	return false
}

// formatServiceType formats a service type row into response JSON.
func (h *ServiceTypeHandler) formatServiceType(st *models.ServiceType) gin.H {
	return gin.H{
		"id":                           st.ID,
		"name":                         st.Name,
		"description":                  st.Description,
		"credit_cost":                  st.CreditCost,
		"max_free_revisions":           st.MaxFreeRevisions,
		"paid_revision_cost":           st.PaidRevisionCost,
		"reset_free_revisions_on_paid": st.ResetFreeRevisionsOnPaid,
		"priority_cost_low":            st.PriorityCostLow,
		"priority_cost_medium":         st.PriorityCostMedium,
		"priority_cost_high":           st.PriorityCostHigh,
		"attributes":                   []models.Attribute(st.Attributes),
		"is_enabled":                   st.IsEnabled,
		"updated_at":                   st.UpdatedAt,
	}
}
