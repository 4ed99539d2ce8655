package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "regportal.io/automation/internal/pkg/errors"
)

// VaultBlob carries an export blob in both directions.
type VaultBlob struct {
	Blob string `json:"blob" binding:"required"`
}

// ExportVault handles GET /vault/export.
func (s *Server) ExportVault(c *gin.Context) {
	blob, err := s.vault.ExportAll()
	if err != nil {
		_ = c.Error(err)
		return
	}
	s.audit.LogAction(auditCtx(c), "vault.export", "vault", "", actorFromCtx(c), map[string]any{
		"credentials": s.vault.Len(),
	})
	c.JSON(http.StatusOK, VaultBlob{Blob: blob})
}

// ImportVault handles POST /vault/import. The store is replaced only when
// the whole blob decodes.
func (s *Server) ImportVault(c *gin.Context) {
	var req VaultBlob
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.Validation(err.Error()))
		return
	}
	if err := s.vault.ImportAll(req.Blob); err != nil {
		_ = c.Error(err)
		return
	}
	s.audit.LogAction(auditCtx(c), "vault.import", "vault", "", actorFromCtx(c), map[string]any{
		"credentials": s.vault.Len(),
	})
	c.JSON(http.StatusOK, gin.H{"credentials": s.vault.Len()})
}
