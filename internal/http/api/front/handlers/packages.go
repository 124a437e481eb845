package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/CreditEngine/internal/models"
	"gorm.io/gorm"
)

// PackageFrontHandler serves the purchasable credit packages.
type PackageFrontHandler struct {
	db *gorm.DB
}

// NewPackageFrontHandler constructs a PackageFrontHandler.
func NewPackageFrontHandler(db *gorm.DB) *PackageFrontHandler {
	return &PackageFrontHandler{db: db}
}

// List returns enabled packages in display order.
func (h *PackageFrontHandler) List(c *gin.Context) {
	var packages []models.Package
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("is_enabled = ?", true).
		Order("sort_order ASC, created_at DESC").
		Find(&packages).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list packages failed"})
		return
	}

	out := make([]gin.H, 0, len(packages))
	for _, pkg := range packages {
		out = append(out, gin.H{
			"id":            pkg.ID,
			"name":          pkg.Name,
			"description":   pkg.Description,
			"price":         pkg.Price,
			"credits":       pkg.Credits,
			"duration_days": pkg.DurationDays,
			"sort_order":    pkg.SortOrder,
		})
	}
	c.JSON(http.StatusOK, gin.H{"packages": out})
}
