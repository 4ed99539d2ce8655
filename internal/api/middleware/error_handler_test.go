package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "regportal.io/automation/internal/pkg/errors"
	"regportal.io/automation/internal/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
	_ = logger.Init("error", "json")
}

type errorBody struct {
	Code        string                 `json:"code"`
	Message     string                 `json:"message"`
	Params      map[string]interface{} `json:"params"`
	FieldErrors []apperrors.FieldError `json:"field_errors"`
}

func serveWithErrorHandler(t *testing.T, handler gin.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	router := gin.New()
	router.Use(RequestID(), ErrorHandler())
	router.GET("/x", handler)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	return w
}

func TestErrorHandler(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		check      func(t *testing.T, body errorBody)
	}{
		{
			name:       "app error keeps status and params",
			err:        apperrors.ErrCredentialNotFoundf("c-1"),
			wantStatus: http.StatusNotFound,
			wantCode:   apperrors.CodeCredentialNotFound,
			check: func(t *testing.T, body errorBody) {
				assert.Equal(t, "c-1", body.Params["credential_id"])
			},
		},
		{
			name:       "missing fields listed",
			err:        apperrors.MissingFields("username", "password"),
			wantStatus: http.StatusBadRequest,
			wantCode:   apperrors.CodeValidationFailed,
			check: func(t *testing.T, body errorBody) {
				require.Len(t, body.FieldErrors, 2)
				assert.Equal(t, "password", body.FieldErrors[1].Field)
			},
		},
		{
			name:       "wrapped app error found",
			err:        fmt.Errorf("queue: %w", apperrors.Conflict(apperrors.CodeSessionBusy, "session busy")),
			wantStatus: http.StatusConflict,
			wantCode:   apperrors.CodeSessionBusy,
		},
		{
			name:       "zero status becomes 500",
			err:        &apperrors.AppError{Code: "UNSET", Message: "no status"},
			wantStatus: http.StatusInternalServerError,
			wantCode:   "UNSET",
		},
		{
			name:       "plain error hidden",
			err:        fmt.Errorf("dial tcp: connection refused"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_ERROR",
			check: func(t *testing.T, body errorBody) {
				assert.NotContains(t, body.Message, "connection refused")
			},
		},
		{
			name:       "client went away",
			err:        fmt.Errorf("stream: %w", context.Canceled),
			wantStatus: statusClientClosed,
			wantCode:   "REQUEST_CANCELLED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serveWithErrorHandler(t, func(c *gin.Context) { _ = c.Error(tt.err) })

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

			var body errorBody
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body.Code)
			if tt.check != nil {
				tt.check(t, body)
			}
		})
	}
}

func TestErrorHandler_NoErrors(t *testing.T) {
	w := serveWithErrorHandler(t, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestErrorHandler_ResponseAlreadyWritten(t *testing.T) {
	w := serveWithErrorHandler(t, func(c *gin.Context) {
		c.String(http.StatusAccepted, "queued")
		_ = c.Error(apperrors.Internal("LATE", "late failure"))
	})
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "queued", w.Body.String())
}
