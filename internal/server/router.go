package server

import (
	"net/http"
	"time"

	"github.com/RishiVykunta/Real-Time-SaaS-Dashboard/internal/auth"
	"github.com/RishiVykunta/Real-Time-SaaS-Dashboard/internal/config"
	"github.com/RishiVykunta/Real-Time-SaaS-Dashboard/internal/metrics"
	"github.com/RishiVykunta/Real-Time-SaaS-Dashboard/internal/models"
	"github.com/RishiVykunta/Real-Time-SaaS-Dashboard/internal/mw"
	"github.com/RishiVykunta/Real-Time-SaaS-Dashboard/internal/service"
	"github.com/RishiVykunta/Real-Time-SaaS-Dashboard/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// SetupRouter 统一初始化 Gin 中间件、REST API 以及 WebSocket 端点。
func SetupRouter(cfg config.Config, db *gorm.DB, hub *ws.Hub) *gin.Engine {
	userSvc := service.NewUserService(db, cfg)
	sessionSvc := service.NewSessionService(db)
	activitySvc := service.NewActivityService(db)
	h := NewHandler(userSvc, sessionSvc, activitySvc, hub)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware())
	r.Use(mw.CORS(cfg.Env, cfg.CORSOrigins))
	rps, burst := cfg.RateLimitPerSec, cfg.RateLimitBurst
	if rps <= 0 {
		rps = 20
	}
	if burst <= 0 {
		burst = 40
	}
	r.Use(mw.RateLimit(rate.Every(time.Second/time.Duration(rps)), burst))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "connections": hub.Connections()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")

	api.POST("/auth/register", h.Register)
	api.POST("/auth/login", h.Login)

	// 需要 Bearer Token 的业务接口。
	authed := api.Group("")
	authed.Use(auth.AuthMiddleware(cfg, db))

	authed.POST("/auth/logout", h.Logout)

	adminOrManager := auth.RequireRole(models.RoleAdmin, models.RoleManager)
	adminOnly := auth.RequireRole(models.RoleAdmin)

	authed.GET("/users", adminOrManager, h.ListUsers)
	authed.GET("/users/:id", adminOrManager, h.GetUser)
	authed.PATCH("/users/:id/status", adminOnly, h.UpdateUserStatus)

	authed.GET("/activities", adminOrManager, h.ListActivities)
	authed.POST("/activities", h.CreateActivity)

	analytics := authed.Group("/analytics", adminOrManager)
	analytics.GET("/stats", h.DashboardStats)
	analytics.GET("/user-growth", h.UserGrowth)
	analytics.GET("/role-distribution", h.RoleDistribution)
	analytics.GET("/activity-stats", h.ActivityStats)

	r.GET("/ws", ws.Serve(hub, cfg))

	return r
}
