package handlers

import (
	"context"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"regportal.io/automation/internal/domain"
	apperrors "regportal.io/automation/internal/pkg/errors"
	"regportal.io/automation/internal/pkg/logger"
)

const (
	eventBuffer       = 64
	heartbeatInterval = 15 * time.Second
)

// StreamEvents handles GET /events as a server-sent event stream.
// ?types=taskCompleted,taskRetry limits the stream to those event types.
func (s *Server) StreamEvents(c *gin.Context) {
	types, err := parseEventTypes(c.Query("types"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	ch := make(chan domain.Event, eventBuffer)
	var dropped atomic.Int64
	unsubscribe := s.engine.Subscribe(func(_ context.Context, ev domain.Event) {
		select {
		case ch <- ev:
		default:
			dropped.Add(1)
		}
	}, types...)
	defer unsubscribe()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()
	ctx := c.Request.Context()

	for {
		select {
		case <-ctx.Done():
			if n := dropped.Load(); n > 0 {
				logger.Warn("Slow event stream consumer dropped events",
					zap.String("actor", actorFromCtx(c)),
					zap.Int64("dropped", n),
				)
			}
			return
		case ev := <-ch:
			c.SSEvent(string(ev.Type), ev)
		case <-heartbeat.C:
			c.SSEvent("ping", time.Now().UTC().Format(time.RFC3339))
		}
		c.Writer.Flush()
	}
}

func parseEventTypes(raw string) ([]domain.EventType, error) {
	if raw == "" {
		return nil, nil
	}
	known := make(map[domain.EventType]bool, len(domain.AllEventTypes))
	for _, t := range domain.AllEventTypes {
		known[t] = true
	}
	var out []domain.EventType
	for _, part := range strings.Split(raw, ",") {
		t := domain.EventType(strings.TrimSpace(part))
		if !known[t] {
			return nil, apperrors.Validation("unknown event type " + string(t))
		}
		out = append(out, t)
	}
	return out, nil
}
