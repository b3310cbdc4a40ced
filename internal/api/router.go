package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"parking-occupancy-backend/internal/model"
	"parking-occupancy-backend/internal/mw"
)

// RouterConfig carries the request-layer knobs.
type RouterConfig struct {
	RateLimit rate.Limit
	Burst     int
}

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler, verifier mw.TokenVerifier, cfg RouterConfig, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), mw.RequestLogger(log))

	officer := mw.RequireOfficer(verifier)
	admin := mw.RequireRole(model.RoleAdmin)
	caching := h.cache.Middleware()

	api := r.Group("/api")
	api.Use(mw.RateLimiter(mw.NewIPRateLimiter(cfg.RateLimit, cfg.Burst)))
	{
		api.GET("/health", h.Health)
		api.POST("/auth/login", h.Login)

		api.GET("/zones", h.ListZones)
		api.GET("/zones/:zone_id/vehicles", h.ZoneVehicles)
		api.GET("/search", h.Search)

		api.POST("/enter", officer, h.Enter)
		api.POST("/exit", officer, h.Exit)

		api.GET("/snapshots", h.ListSnapshots)
		api.POST("/snapshots", officer, h.CreateSnapshot)
		api.POST("/snapshots/:id/restore", officer, admin, h.RestoreSnapshot)
		api.DELETE("/snapshots/:id", officer, admin, h.DeleteSnapshot)

		api.GET("/reports", h.History)
		api.GET("/reports/monthly", caching, h.Monthly)
		api.GET("/reports/yearly", caching, h.Yearly)
		api.GET("/predictions", caching, h.Predictions)
	}

	adminGroup := api.Group("/admin", officer, admin)
	{
		adminGroup.POST("/zones", h.CreateZone)
		adminGroup.PUT("/zones/:zone_id", h.UpdateZone)
		adminGroup.DELETE("/zones/:zone_id", h.DeactivateZone)
		adminGroup.GET("/audit", h.Audit)
	}

	return r
}
