// Package middleware provides HTTP middleware for the admin API.
package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "regportal.io/automation/internal/pkg/errors"
	"regportal.io/automation/internal/pkg/logger"
)

// statusClientClosed is written when the caller went away mid-request.
const statusClientClosed = 499

// ErrorHandler renders the last error a handler recorded with c.Error.
// An *AppError is written as its JSON form with its own status; anything
// else becomes a generic 500 whose detail only reaches the log.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil || c.Writer.Written() {
			return
		}
		c.JSON(render(c, last.Err))
	}
}

func render(c *gin.Context, err error) (int, *apperrors.AppError) {
	log := logger.With(
		zap.String("request_id", GetRequestID(c.Request.Context())),
		zap.String("route", c.FullPath()),
	)

	if appErr, ok := apperrors.IsAppError(err); ok {
		status := appErr.Status()
		fields := []zap.Field{
			zap.String("code", appErr.Code),
			zap.Int("status", status),
			zap.Error(appErr.Err),
		}
		if status >= http.StatusInternalServerError {
			log.Error(appErr.Message, fields...)
		} else {
			log.Warn(appErr.Message, fields...)
		}
		return status, appErr
	}

	if errors.Is(err, context.Canceled) {
		log.Info("Request cancelled by client")
		return statusClientClosed, apperrors.New("REQUEST_CANCELLED", "request cancelled", statusClientClosed)
	}

	log.Error("Unhandled request error", zap.Error(err))
	return http.StatusInternalServerError, apperrors.Internal("INTERNAL_ERROR", "An internal error occurred")
}
