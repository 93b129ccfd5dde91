package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"attendance-backend/config"
	"attendance-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler, authn mw.Authenticator, cfg *config.ServerConfig) *gin.Engine {
	r := gin.Default()

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	// Reports are cached per identity for a short while; writes are never cached.
	cacheStore := cache.New(cfg.CacheTTL, 2*cfg.CacheTTL)
	caching := mw.Cache(cacheStore, cfg.CacheTTL)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().Unix()})
	})

	api := r.Group("/api")
	api.Use(rateLimiter)
	api.GET("/vapid_public_key", h.GetVAPIDPublicKey)

	authed := api.Group("")
	authed.Use(mw.Authenticate(authn))
	{
		authed.POST("/timer/checkin", h.CheckIn)
		authed.POST("/timer/checkout", h.CheckOut)
		authed.GET("/timer/current", h.CurrentSession)
		authed.GET("/timer/hours", h.WorkingHours)
		authed.POST("/presence", h.Heartbeat)

		authed.POST("/leaves", h.ApplyLeave)
		authed.GET("/leaves", h.ListLeaves)
		authed.GET("/leaves/balance", h.LeaveBalance)

		authed.GET("/activity", caching, h.Activity)
		authed.GET("/activity/counts", caching, h.ActiveCounts)

		authed.GET("/subscriptions", h.GetSubscription)
		authed.PUT("/subscriptions", h.PutSubscription)
		authed.DELETE("/subscriptions", h.DeleteSubscription)
	}

	admin := authed.Group("")
	admin.Use(mw.RequireAdmin())
	{
		admin.POST("/leaves/:id/approve", h.ApproveLeave)
		admin.POST("/leaves/:id/reject", h.RejectLeave)
		admin.POST("/admin/leaves/grant", h.GrantLeave)
	}

	return r
}
