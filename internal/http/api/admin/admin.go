package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/CreditEngine/internal/accounting"
	"github.com/router-for-me/CreditEngine/internal/config"
	"github.com/router-for-me/CreditEngine/internal/http/api/authn"
	handlers "github.com/router-for-me/CreditEngine/internal/http/api/admin/handlers"
	"github.com/router-for-me/CreditEngine/internal/models"
	"gorm.io/gorm"
)

// RegisterAdminRoutes registers admin routes, middleware, and handlers.
func RegisterAdminRoutes(r *gin.Engine, db *gorm.DB, jwtCfg config.JWTConfig, engine *accounting.Engine) {
	if r == nil || db == nil || engine == nil {
		return
	}

	authed := r.Group("/v0/admin")
	authed.Use(authn.Middleware(db, jwtCfg))
	authed.Use(adminRoleMiddleware())

	packageHandler := handlers.NewPackageHandler(db)
	authed.POST("/packages", packageHandler.Create)
	authed.GET("/packages", packageHandler.List)
	authed.GET("/packages/:id", packageHandler.Get)
	authed.POST("/packages/:id/enable", packageHandler.SetEnabled(true))
	authed.POST("/packages/:id/disable", packageHandler.SetEnabled(false))

	serviceTypeHandler := handlers.NewServiceTypeHandler(db)
	authed.POST("/service-types", serviceTypeHandler.Create)
	authed.GET("/service-types", serviceTypeHandler.List)
	authed.PUT("/service-types/:id", serviceTypeHandler.Update)

	creditHandler := handlers.NewCreditHandler(engine.Ledger())
	authed.GET("/users/:id/credits", creditHandler.Balance)
	authed.POST("/users/:id/credits", creditHandler.Grant)

	settingHandler := handlers.NewSettingHandler(db)
	authed.GET("/settings", settingHandler.List)
	authed.PUT("/settings/:key", settingHandler.Put)
	authed.DELETE("/settings/:key", settingHandler.Delete)
}

// adminRoleMiddleware rejects authenticated users without the admin role.
func adminRoleMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if models.UserRole(c.GetString(authn.ContextUserRole)) != models.UserRoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin role required"})
			return
		}
		c.Next()
	}
}
