package front

import (
	"github.com/gin-gonic/gin"
	"github.com/router-for-me/CreditEngine/internal/accounting"
	"github.com/router-for-me/CreditEngine/internal/config"
	"github.com/router-for-me/CreditEngine/internal/http/api/authn"
	handlers "github.com/router-for-me/CreditEngine/internal/http/api/front/handlers"
	"gorm.io/gorm"
)

// RegisterFrontRoutes registers user-facing routes, middleware, and handlers.
func RegisterFrontRoutes(r *gin.Engine, db *gorm.DB, jwtCfg config.JWTConfig, engine *accounting.Engine) {
	if r == nil || db == nil || engine == nil {
		return
	}

	frontGroup := r.Group("/v0/front")

	packageHandler := handlers.NewPackageFrontHandler(db)
	frontGroup.GET("/packages", packageHandler.List)

	requestHandler := handlers.NewRequestFrontHandler(engine)
	frontGroup.POST("/requests/quote", requestHandler.Quote)

	authed := frontGroup.Group("")
	authed.Use(authn.Middleware(db, jwtCfg))

	subscriptionHandler := handlers.NewSubscriptionFrontHandler(engine.Ledger())
	authed.POST("/subscriptions", subscriptionHandler.Create)
	authed.DELETE("/subscriptions", subscriptionHandler.Cancel)

	creditHandler := handlers.NewCreditFrontHandler(engine.Ledger())
	authed.GET("/credits", creditHandler.Balance)
	authed.GET("/credits/expiry", creditHandler.Expiry)
	authed.GET("/credits/transactions", creditHandler.Transactions)

	authed.POST("/requests", requestHandler.Create)
	authed.GET("/requests/:id/revision", requestHandler.RevisionInfo)
	authed.POST("/requests/:id/revision", requestHandler.RequestRevision)
}
