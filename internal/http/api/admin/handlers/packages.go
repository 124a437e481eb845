package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/CreditEngine/internal/models"
	"gorm.io/gorm"
)

// PackageHandler manages admin CRUD endpoints for credit packages.
type PackageHandler struct {
	db *gorm.DB // Database handle for package records.
}

// NewPackageHandler constructs a package handler.
func NewPackageHandler(db *gorm.DB) *PackageHandler {
	return &PackageHandler{db: db}
}

// createPackageRequest captures the payload for creating a package.
type createPackageRequest struct {
	Name         string  `json:"name"`          // Package name.
	Description  string  `json:"description"`   // Package description.
	Price        float64 `json:"price"`         // Package price.
	Credits      int     `json:"credits"`       // Credits granted on subscribe.
	DurationDays int     `json:"duration_days"` // Subscription length.
	SortOrder    int     `json:"sort_order"`    // Display order.
	IsEnabled    *bool   `json:"is_enabled"`    // Optional active flag.
}

// Create validates input and inserts a new package.
func (h *PackageHandler) Create(c *gin.Context) {
	var body createPackageRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(body.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}
	if body.Credits < 0 || body.DurationDays < 0 || body.Price < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "price, credits and duration_days must be non-negative"})
		return
	}

	isEnabled := true
	if body.IsEnabled != nil {
		isEnabled = *body.IsEnabled
	}
	durationDays := body.DurationDays
	if durationDays == 0 {
		durationDays = 30
	}

	now := time.Now().UTC()
	pkg := models.Package{
		Name:         strings.TrimSpace(body.Name),
		Description:  body.Description,
		Price:        body.Price,
		Credits:      body.Credits,
		DurationDays: durationDays,
		SortOrder:    body.SortOrder,
		IsEnabled:    isEnabled,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&pkg).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create package failed"})
		return
	}
	if !isEnabled {
		// gorm skips zero values that carry a default tag on insert.
		if errUpdate := h.db.WithContext(c.Request.Context()).Model(&pkg).Update("is_enabled", false).Error; errUpdate != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "create package failed"})
			return
		}
	}
	c.JSON(http.StatusCreated, h.formatPackage(&pkg))
}

// List returns all packages, optionally filtered by enabled flag.
func (h *PackageHandler) List(c *gin.Context) {
	enabledQ := strings.TrimSpace(c.Query("is_enabled"))

	q := h.db.WithContext(c.Request.Context()).Model(&models.Package{})
	if enabledQ == "true" || enabledQ == "1" {
		q = q.Where("is_enabled = ?", true)
	} else if enabledQ == "false" || enabledQ == "0" {
		q = q.Where("is_enabled = ?", false)
	}

	var rows []models.Package
	if errFind := q.Order("sort_order ASC, created_at DESC").Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list packages failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, h.formatPackage(&row))
	}
	c.JSON(http.StatusOK, gin.H{"packages": out})
}

// SetEnabled toggles whether a package can be purchased.
func (h *PackageHandler) SetEnabled(enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}
		res := h.db.WithContext(c.Request.Context()).Model(&models.Package{}).Where("id = ?", id).
			Updates(map[string]any{"is_enabled": enabled, "updated_at": time.Now().UTC()})
		if res.Error != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
			return
		}
		if res.RowsAffected == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

// Get fetches a package by ID.
func (h *PackageHandler) Get(c *gin.Context) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var pkg models.Package
	if errFind := h.db.WithContext(c.Request.Context()).First(&pkg, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, h.formatPackage(&pkg))
}

// formatPackage formats a package row into response JSON.
func (h *PackageHandler) formatPackage(p *models.Package) gin.H {
	return gin.H{
		"id":            p.ID,
		"name":          p.Name,
		"description":   p.Description,
		"price":         p.Price,
		"credits":       p.Credits,
		"duration_days": p.DurationDays,
		"sort_order":    p.SortOrder,
		"is_enabled":    p.IsEnabled,
		"created_at":    p.CreatedAt,
		"updated_at":    p.UpdatedAt,
	}
}
