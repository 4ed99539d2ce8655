package app

import (
	"github.com/gin-gonic/gin"

	"regportal.io/automation/internal/api/handlers"
	"regportal.io/automation/internal/api/middleware"
	"regportal.io/automation/internal/pkg/logger"
	"regportal.io/automation/internal/pkg/metrics"
)

func newRouter(s *handlers.Server, jwtCfg middleware.JWTConfig, recorder *metrics.Recorder) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.AccessLog(), middleware.ErrorHandler())

	// Probes and scraping stay unauthenticated.
	router.GET("/health/live", s.GetLiveness)
	router.GET("/health/ready", s.GetReadiness)
	router.GET("/metrics", gin.WrapH(recorder.Handler()))

	api := router.Group("/api/v1", middleware.JWTAuth(jwtCfg))

	read := middleware.RequireScope(middleware.ScopeVaultRead)
	write := middleware.RequireScope(middleware.ScopeVaultWrite)
	api.GET("/credentials", read, s.ListCredentials)
	api.GET("/credentials/rotation-due", read, s.ListRotationDue)
	api.POST("/credentials", write, s.CreateCredential)
	api.PATCH("/credentials/:id", write, s.UpdateCredential)
	api.POST("/credentials/:id/rotate", write, s.RotateCredential)
	api.DELETE("/credentials/:id", write, s.DeleteCredential)

	admin := middleware.RequireScope(middleware.ScopeAdmin)
	api.GET("/vault/export", admin, s.ExportVault)
	api.POST("/vault/import", admin, s.ImportVault)
	api.GET("/log/level", admin, gin.WrapH(logger.LevelHandler()))
	api.PUT("/log/level", admin, gin.WrapH(logger.LevelHandler()))
	api.GET("/audit-logs", admin, s.ListAuditLogs)

	tasksRead := middleware.RequireScope(middleware.ScopeTasksRead)
	tasksWrite := middleware.RequireScope(middleware.ScopeTasksWrite)
	api.GET("/portals", tasksRead, s.ListPortals)
	api.POST("/tasks", tasksWrite, s.QueueTask)
	api.GET("/tasks", tasksRead, s.ListQueuedTasks)
	api.GET("/queue", tasksRead, s.GetQueueStatus)
	api.DELETE("/systems/:system/tasks", tasksWrite, s.CancelSystemTasks)
	api.GET("/events", tasksRead, s.StreamEvents)

	sessions := middleware.RequireScope(middleware.ScopeSessionsCtrl)
	api.GET("/sessions", tasksRead, s.ListSessions)
	api.GET("/sessions/:id", tasksRead, s.GetSession)
	api.POST("/sessions/:id/toggle", sessions, s.ToggleSession)
	api.POST("/sessions/:id/close", sessions, s.CloseSession)

	return router
}
