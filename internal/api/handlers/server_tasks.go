package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"regportal.io/automation/internal/domain"
	apperrors "regportal.io/automation/internal/pkg/errors"
)

// QueueTaskRequest is the body of POST /tasks.
type QueueTaskRequest struct {
	ID           string         `json:"id"`
	System       string         `json:"system" binding:"required"`
	Action       string         `json:"action" binding:"required"`
	Payload      domain.Payload `json:"payload"`
	Priority     string         `json:"priority"`
	CredentialID string         `json:"credential_id"`
	MaxRetries   int            `json:"max_retries" binding:"gte=0"`
	TimeoutMs    int64          `json:"timeout_ms" binding:"gte=0"`
}

// QueueTask handles POST /tasks.
func (s *Server) QueueTask(c *gin.Context) {
	var req QueueTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.Validation(err.Error()))
		return
	}
	system, ok := domain.ParseSystem(req.System)
	if !ok {
		_ = c.Error(apperrors.ErrUnknownSystemf(req.System))
		return
	}

	task, err := s.engine.QueueTask(c.Request.Context(), domain.Task{
		ID:           req.ID,
		System:       system,
		Action:       req.Action,
		Payload:      req.Payload,
		Priority:     domain.Priority(req.Priority),
		CredentialID: req.CredentialID,
		MaxRetries:   req.MaxRetries,
		Timeout:      time.Duration(req.TimeoutMs) * time.Millisecond,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	s.audit.LogAction(auditCtx(c), "task.queue", "task", task.ID, actorFromCtx(c), map[string]any{
		"system":   task.System,
		"action":   task.Action,
		"priority": task.Priority,
	})
	c.JSON(http.StatusAccepted, task)
}

// ListQueuedTasks handles GET /tasks.
func (s *Server) ListQueuedTasks(c *gin.Context) {
	tasks := s.engine.QueuedTasks()
	if q := c.Query("system"); q != "" {
		filtered := tasks[:0]
		for _, t := range tasks {
			if string(t.System) == q {
				filtered = append(filtered, t)
			}
		}
		tasks = filtered
	}
	c.JSON(http.StatusOK, gin.H{"items": tasks, "total": len(tasks)})
}

// GetQueueStatus handles GET /queue.
func (s *Server) GetQueueStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.QueueStatus())
}

// CancelSystemTasks handles DELETE /systems/:system/tasks.
func (s *Server) CancelSystemTasks(c *gin.Context) {
	system, ok := domain.ParseSystem(c.Param("system"))
	if !ok {
		_ = c.Error(apperrors.ErrUnknownSystemf(c.Param("system")))
		return
	}
	n := s.engine.CancelSystemTasks(c.Request.Context(), system)
	s.audit.LogAction(auditCtx(c), "task.cancel", "system", string(system), actorFromCtx(c), map[string]any{
		"cancelled": n,
	})
	c.JSON(http.StatusOK, gin.H{"system": system, "cancelled": n})
}

// ListPortals handles GET /portals.
func (s *Server) ListPortals(c *gin.Context) {
	items := make([]gin.H, 0)
	for _, sys := range s.engine.Systems() {
		items = append(items, gin.H{"system": sys, "actions": s.engine.Actions(sys)})
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}
