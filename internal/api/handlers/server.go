// Package handlers implements the admin HTTP API.
//
// Routes are registered by the app package; handlers never register their
// own routes.
package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"regportal.io/automation/internal/api/middleware"
	"regportal.io/automation/internal/automation"
	"regportal.io/automation/internal/governance/audit"
	"regportal.io/automation/internal/pkg/worker"
	"regportal.io/automation/internal/vault"
)

// Server implements all admin API handlers.
type Server struct {
	vault                 *vault.Vault
	engine                *automation.Engine
	pools                 *worker.Pools
	audit                 *audit.Logger
	rotationThresholdDays int
}

// ServerDeps holds all dependencies for creating a Server.
type ServerDeps struct {
	Vault                 *vault.Vault
	Engine                *automation.Engine
	Pools                 *worker.Pools // Optional: reported by the readiness probe
	Audit                 *audit.Logger // Optional: nil disables the audit trail
	RotationThresholdDays int
}

// NewServer creates a new Server with all dependencies.
func NewServer(deps ServerDeps) *Server {
	threshold := deps.RotationThresholdDays
	if threshold <= 0 {
		threshold = vault.DefaultRotationThresholdDays
	}
	return &Server{
		vault:                 deps.Vault,
		engine:                deps.Engine,
		pools:                 deps.Pools,
		audit:                 deps.Audit,
		rotationThresholdDays: threshold,
	}
}

// auditCtx carries the request id into audit entries.
func auditCtx(c *gin.Context) context.Context {
	ctx := c.Request.Context()
	return audit.WithRequestID(ctx, middleware.GetRequestID(ctx))
}

// actorFromCtx extracts the authenticated subject from the request context.
func actorFromCtx(c interface{ GetString(any) string }) string {
	if sub := c.GetString("subject"); sub != "" {
		return sub
	}
	return "anonymous"
}
