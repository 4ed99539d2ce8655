package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"regportal.io/automation/internal/domain"
	apperrors "regportal.io/automation/internal/pkg/errors"
	"regportal.io/automation/internal/vault"
)

// CreateCredentialRequest is the body of POST /credentials.
type CreateCredentialRequest struct {
	System                string     `json:"system" binding:"required"`
	AuthMethod            string     `json:"auth_method" binding:"required"`
	Username              string     `json:"username"`
	Password              string     `json:"password"`
	CertificateReference  string     `json:"certificate_reference"`
	FederatedProviderHint string     `json:"federated_provider_hint"`
	MFASeed               string     `json:"mfa_seed"`
	APIKey                string     `json:"api_key"`
	ExpiresAt             *time.Time `json:"expires_at"`
}

// UpdateCredentialRequest is the body of PATCH /credentials/:id. Absent
// fields are left unchanged.
type UpdateCredentialRequest struct {
	Username             *string    `json:"username"`
	Password             *string    `json:"password"`
	CertificateReference *string    `json:"certificate_reference"`
	MFASeed              *string    `json:"mfa_seed"`
	APIKey               *string    `json:"api_key"`
	ExpiresAt            *time.Time `json:"expires_at"`
}

// RotatePasswordRequest is the body of POST /credentials/:id/rotate.
type RotatePasswordRequest struct {
	Password string `json:"password" binding:"required"`
}

// CredentialView is a listing entry. It never carries secret material.
type CredentialView struct {
	vault.Summary
	NeedsRotation bool `json:"needs_rotation"`
}

// ListCredentials handles GET /credentials.
func (s *Server) ListCredentials(c *gin.Context) {
	var system domain.System
	if q := c.Query("system"); q != "" {
		sys, ok := domain.ParseSystem(q)
		if !ok {
			_ = c.Error(apperrors.ErrUnknownSystemf(q))
			return
		}
		system = sys
	}

	summaries := s.vault.List(system)
	items := make([]CredentialView, 0, len(summaries))
	for _, sum := range summaries {
		items = append(items, CredentialView{
			Summary:       sum,
			NeedsRotation: s.vault.NeedsRotation(sum.ID, s.rotationThresholdDays),
		})
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": len(items)})
}

// CreateCredential handles POST /credentials.
func (s *Server) CreateCredential(c *gin.Context) {
	var req CreateCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.Validation(err.Error()))
		return
	}
	system, ok := domain.ParseSystem(req.System)
	if !ok {
		_ = c.Error(apperrors.ErrUnknownSystemf(req.System))
		return
	}

	id, err := s.vault.Store(system, domain.AuthMethod(req.AuthMethod), vault.Fields{
		Username:              req.Username,
		Password:              req.Password,
		CertificateReference:  req.CertificateReference,
		FederatedProviderHint: req.FederatedProviderHint,
		MFASeed:               req.MFASeed,
		APIKey:                req.APIKey,
		ExpiresAt:             req.ExpiresAt,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	s.audit.LogCredential(auditCtx(c), "create", id, actorFromCtx(c), map[string]any{
		"system":      system,
		"auth_method": req.AuthMethod,
	})
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

// UpdateCredential handles PATCH /credentials/:id.
func (s *Server) UpdateCredential(c *gin.Context) {
	var req UpdateCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.Validation(err.Error()))
		return
	}
	id := c.Param("id")

	ok, err := s.vault.Update(id, vault.Update{
		Username:             req.Username,
		Password:             req.Password,
		CertificateReference: req.CertificateReference,
		MFASeed:              req.MFASeed,
		APIKey:               req.APIKey,
		ExpiresAt:            req.ExpiresAt,
	})
	s.respondMutation(c, id, ok, err, "update")
}

// RotateCredential handles POST /credentials/:id/rotate.
func (s *Server) RotateCredential(c *gin.Context) {
	var req RotatePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.Validation(err.Error()))
		return
	}
	id := c.Param("id")
	ok, err := s.vault.RotatePassword(id, req.Password)
	s.respondMutation(c, id, ok, err, "rotate")
}

// DeleteCredential handles DELETE /credentials/:id.
func (s *Server) DeleteCredential(c *gin.Context) {
	id := c.Param("id")
	if !s.vault.Delete(id) {
		_ = c.Error(apperrors.ErrCredentialNotFoundf(id))
		return
	}
	s.audit.LogCredential(auditCtx(c), "delete", id, actorFromCtx(c), nil)
	c.Status(http.StatusNoContent)
}

// ListRotationDue handles GET /credentials/rotation-due.
func (s *Server) ListRotationDue(c *gin.Context) {
	threshold := s.rotationThresholdDays
	if q := c.Query("threshold_days"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 0 {
			_ = c.Error(apperrors.Validation("threshold_days must be a non-negative integer"))
			return
		}
		threshold = n
	}

	items := []vault.Summary{}
	for _, sum := range s.vault.List("") {
		if s.vault.NeedsRotation(sum.ID, threshold) {
			items = append(items, sum)
		}
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "threshold_days": threshold})
}

func (s *Server) respondMutation(c *gin.Context, id string, ok bool, err error, op string) {
	if err != nil {
		_ = c.Error(err)
		return
	}
	if !ok {
		_ = c.Error(apperrors.ErrCredentialNotFoundf(id))
		return
	}
	s.audit.LogCredential(auditCtx(c), op, id, actorFromCtx(c), nil)
	c.Status(http.StatusNoContent)
}
