package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"regportal.io/automation/internal/pkg/logger"
)

// RequestIDHeader carries the correlation id in both directions.
const RequestIDHeader = "X-Request-ID"

// maxRequestIDLen bounds caller-supplied ids before they reach logs.
const maxRequestIDLen = 128

type contextKey string

const (
	ctxKeyRequestID contextKey = "request_id"
	ctxKeySubject   contextKey = "subject"
	ctxKeyScopes    contextKey = "scopes"
)

// RequestID tags every request with a correlation id. A well-formed id sent
// by the caller is kept; otherwise a UUIDv7 is minted.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(RequestIDHeader)
		if !validRequestID(rid) {
			rid = uuid.Must(uuid.NewV7()).String()
		}
		c.Set(string(ctxKeyRequestID), rid)
		c.Header(RequestIDHeader, rid)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), ctxKeyRequestID, rid))
		c.Next()
	}
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.', r == ':':
		default:
			return false
		}
	}
	return true
}

// AccessLog writes one "HTTP request" line per request: debug normally,
// warn for server errors.
func AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		ctx := c.Request.Context()
		status := c.Writer.Status()
		log := logger.Debug
		if status >= 500 {
			log = logger.Warn
		}
		log("HTTP request",
			zap.String("request_id", GetRequestID(ctx)),
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("subject", GetSubject(ctx)),
		)
	}
}

func ctxString(ctx context.Context, key contextKey) string {
	s, _ := ctx.Value(key).(string)
	return s
}

// GetRequestID returns the id set by RequestID, or "".
func GetRequestID(ctx context.Context) string { return ctxString(ctx, ctxKeyRequestID) }

// GetSubject returns the authenticated subject, or "".
func GetSubject(ctx context.Context) string { return ctxString(ctx, ctxKeySubject) }

// GetScopes returns the authenticated caller's scopes.
func GetScopes(ctx context.Context) []string {
	scopes, _ := ctx.Value(ctxKeyScopes).([]string)
	return scopes
}

// SetPrincipal records the authenticated caller on ctx.
func SetPrincipal(ctx context.Context, subject string, scopes []string) context.Context {
	return context.WithValue(context.WithValue(ctx, ctxKeySubject, subject), ctxKeyScopes, scopes)
}
