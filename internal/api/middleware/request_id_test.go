package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestRequestID(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		wantKept bool
	}{
		{"no header", "", false},
		{"caller id kept", "batch-42.retry:1", true},
		{"newline rejected", "abc\nforged=1", false},
		{"space rejected", "a b", false},
		{"overlong rejected", strings.Repeat("a", maxRequestIDLen+1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			router := gin.New()
			router.Use(RequestID())
			router.GET("/", func(c *gin.Context) {
				seen = GetRequestID(c.Request.Context())
				c.Status(http.StatusNoContent)
			})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			got := w.Header().Get(RequestIDHeader)
			assert.Equal(t, seen, got)
			if tt.wantKept {
				assert.Equal(t, tt.incoming, got)
				return
			}
			id, err := uuid.Parse(got)
			assert.NoError(t, err)
			assert.Equal(t, uuid.Version(7), id.Version())
		})
	}
}

func TestPrincipalRoundTrip(t *testing.T) {
	ctx := SetPrincipal(httptest.NewRequest(http.MethodGet, "/", nil).Context(), "ops", []string{ScopeTasksRead})

	assert.Equal(t, "ops", GetSubject(ctx))
	assert.Equal(t, []string{ScopeTasksRead}, GetScopes(ctx))
	assert.Empty(t, GetRequestID(ctx))
}
