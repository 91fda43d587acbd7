package main

import (
	"database/sql"
	"log/slog"
	"time"

	"callrouter-platform/internal/auth"
	"callrouter-platform/internal/httpapi"
	"callrouter-platform/internal/ledger"
	"callrouter-platform/internal/rbac"
	"callrouter-platform/internal/routing"
	"callrouter-platform/internal/telephony"
	"callrouter-platform/internal/tenant"
	"callrouter-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

type routeDeps struct {
	auth      *auth.Manager
	authMW    gin.HandlerFunc
	router    *routing.Router
	directory *tenant.Directory
	ledger    *ledger.Service
	transport *telephony.TwilioTransport
	db        *sql.DB
	redis     *redis.Client
	log       *slog.Logger
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, deps routeDeps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), deps.db, 2*time.Second); err != nil {
			c.JSON(503, gin.H{"status": "degraded", "postgres": err.Error()})
			return
		}
		if err := deps.redis.Ping(c.Request.Context()).Err(); err != nil {
			c.JSON(503, gin.H{"status": "degraded", "redis": err.Error()})
			return
		}
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Provider webhooks (public).
	// NOTE: Protect with Twilio signature validation in production.
	{
		wh := httpapi.VoiceWebhook{
			Router:    deps.router,
			Directory: deps.directory,
			Transport: deps.transport,
			Releases:  httpapi.NewReleaseStore(),
			Log:       deps.log,
		}
		r.POST("/webhooks/twilio/voice", wh.HandleVoice)
		r.POST("/webhooks/twilio/status", wh.HandleLegStatus)
		r.POST("/webhooks/twilio/connect", wh.HandleConnect)
	}

	h := httpapi.Handlers{
		Auth:      deps.auth,
		Ledger:    deps.ledger,
		Directory: deps.directory,
	}

	// Token issuance is public; everything else under /v1 requires a token.
	r.POST("/v1/auth/login", h.Login)

	v1 := r.Group("/v1")
	v1.Use(deps.authMW)
	{
		v1.GET("/me", func(c *gin.Context) {
			uid, _ := auth.UserID(c.Request.Context())
			tid, _ := auth.TenantID(c.Request.Context())
			role, _ := auth.Role(c.Request.Context())
			c.JSON(200, gin.H{"user_id": uid, "tenant_id": tid, "role": role})
		})

		// LEDGER routes: read-side routing analytics.
		led := v1.Group("/ledger")
		led.Use(rbac.RequireTenant())
		led.Use(rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleSupervisor, rbac.RoleAnalyst, rbac.RoleSuperAdmin))
		{
			led.GET("/stats", h.LedgerStats)
			led.GET("/calls/:call_id", h.CallLedger)
		}

		// ADMIN routes.
		// Hidden carrier_ops is intentionally NOT included unless explicitly desired.
		admin := v1.Group("/admin")
		admin.Use(rbac.RequireTenant())
		admin.Use(rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleSuperAdmin))
		{
			admin.POST("/tenants/:tenant_id/invalidate-cache", h.InvalidateTenantCache)
		}
	}
}
