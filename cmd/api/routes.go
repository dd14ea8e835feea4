package main

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"telephony-orchestrator/internal/onboarding"
	"telephony-orchestrator/internal/session"
	"telephony-orchestrator/internal/webhook"
	"telephony-orchestrator/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

type routeDeps struct {
	webhook *webhook.Handler
	mgmt    *onboarding.Handler
	calls   session.CallStore

	db  *sql.DB
	rdb *redis.Client
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers delegate to internal modules.
func registerRoutes(r *gin.Engine, authMW gin.HandlerFunc, deps routeDeps) {
	// public
	r.GET("/healthz", healthz(deps.db, deps.rdb))

	// Platform webhooks (signature-verified, not bearer-authed).
	deps.webhook.Register(r)

	// protected management API
	v1 := r.Group("/v1")
	v1.Use(authMW)
	{
		deps.mgmt.Register(v1)

		// Observability channel for the fire-and-forget dispatch path.
		v1.GET("/calls", func(c *gin.Context) {
			calls, err := deps.calls.ListCalls(c.Request.Context(), c.Query("room"))
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list calls"})
				return
			}
			if calls == nil {
				calls = []session.Call{}
			}
			c.JSON(http.StatusOK, gin.H{"calls": calls})
		})
	}
}

func healthz(db *sql.DB, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := http.StatusOK
		checks := gin.H{"db": "ok", "redis": "ok"}

		if err := utils.PingPostgres(c.Request.Context(), db, 2*time.Second); err != nil {
			checks["db"] = "unreachable"
			status = http.StatusServiceUnavailable
		}
		pingCtx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			checks["redis"] = "unreachable"
			status = http.StatusServiceUnavailable
		}

		c.JSON(status, gin.H{"status": statusWord(status), "checks": checks})
	}
}

func statusWord(status int) string {
	if status == http.StatusOK {
		return "ok"
	}
	return "degraded"
}
