package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"regportal.io/automation/internal/governance/audit"
	apperrors "regportal.io/automation/internal/pkg/errors"
)

// ListAuditLogs handles GET /audit-logs. ?limit=N (default 100) and
// ?actor=name narrow the result; entries are newest first.
func (s *Server) ListAuditLogs(c *gin.Context) {
	limit := 100
	if q := c.Query("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 {
			_ = c.Error(apperrors.Validation("limit must be a positive integer"))
			return
		}
		limit = n
	}
	items := s.audit.Recent(limit, c.Query("actor"))
	if items == nil {
		items = []audit.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": len(items)})
}
