package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ListSessions handles GET /sessions. ?active=true hides completed sessions.
func (s *Server) ListSessions(c *gin.Context) {
	sessions := s.engine.Sessions()
	if c.Query("active") == "true" {
		sessions = s.engine.ActiveSessions()
	}
	c.JSON(http.StatusOK, gin.H{"items": sessions, "total": len(sessions)})
}

// GetSession handles GET /sessions/:id.
func (s *Server) GetSession(c *gin.Context) {
	sess, err := s.engine.Session(c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// ToggleSession handles POST /sessions/:id/toggle.
func (s *Server) ToggleSession(c *gin.Context) {
	sess, err := s.engine.ToggleSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	s.audit.LogSession(auditCtx(c), "toggle", sess.ID, actorFromCtx(c), map[string]any{
		"system": sess.System,
		"status": sess.Status,
	})
	c.JSON(http.StatusOK, sess)
}

// CloseSession handles POST /sessions/:id/close.
func (s *Server) CloseSession(c *gin.Context) {
	sess, err := s.engine.CloseSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	s.audit.LogSession(auditCtx(c), "close", sess.ID, actorFromCtx(c), map[string]any{
		"system": sess.System,
	})
	c.JSON(http.StatusOK, sess)
}
