// Package audit keeps the trail of operator actions taken through the admin
// API: credential changes, vault transfers, task submissions and session
// control.
//
// Entries are append-only. The most recent ones stay in a bounded in-memory
// ring for the audit endpoint, and every entry is also written to the
// "audit" structured log, which is the durable record.
package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"regportal.io/automation/internal/pkg/logger"
)

// DefaultCapacity is the number of entries kept in memory.
const DefaultCapacity = 1000

// Entry is one audited action. Details never carry secret values.
type Entry struct {
	ID           string         `json:"id"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	Actor        string         `json:"actor"`
	RequestID    string         `json:"request_id,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
	At           time.Time      `json:"at"`
}

// Logger records audit entries. A nil *Logger discards everything.
type Logger struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool

	now func() time.Time
	log *zap.Logger
}

// NewLogger creates a Logger keeping the last capacity entries in memory.
func NewLogger(capacity int) *Logger {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Logger{
		entries: make([]Entry, capacity),
		now:     time.Now,
		log:     logger.Component("audit"),
	}
}

type requestIDKey struct{}

// WithRequestID attaches the HTTP request id so entries can be correlated
// with access logs.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// LogAction records an auditable action.
func (l *Logger) LogAction(ctx context.Context, action, resourceType, resourceID, actor string, details map[string]any) {
	if l == nil {
		return
	}
	e := Entry{
		ID:           generateAuditID(),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Actor:        actor,
		Details:      details,
		At:           l.now().UTC(),
	}
	if rid, ok := ctx.Value(requestIDKey{}).(string); ok {
		e.RequestID = rid
	}

	l.mu.Lock()
	l.entries[l.next] = e
	l.next = (l.next + 1) % len(l.entries)
	if l.next == 0 {
		l.full = true
	}
	l.mu.Unlock()

	l.log.Info(action,
		zap.String("audit_id", e.ID),
		zap.String("resource_type", resourceType),
		zap.String("resource_id", resourceID),
		zap.String("actor", actor),
		zap.String("request_id", e.RequestID),
		zap.Any("details", details),
	)
}

// LogCredential records a credential operation.
func (l *Logger) LogCredential(ctx context.Context, operation, credentialID, actor string, details map[string]any) {
	l.LogAction(ctx, "credential."+operation, "credential", credentialID, actor, details)
}

// LogSession records a session control operation.
func (l *Logger) LogSession(ctx context.Context, operation, sessionID, actor string, details map[string]any) {
	l.LogAction(ctx, "session."+operation, "session", sessionID, actor, details)
}

// Recent returns up to limit entries, newest first. A non-empty actor keeps
// only that actor's entries.
func (l *Logger) Recent(limit int, actor string) []Entry {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	n := l.next
	if l.full {
		n = len(l.entries)
	}
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Entry, 0, limit)
	for i := 1; i <= n && len(out) < limit; i++ {
		e := l.entries[(l.next-i+len(l.entries))%len(l.entries)]
		if actor != "" && e.Actor != actor {
			continue
		}
		out = append(out, e)
	}
	return out
}

func generateAuditID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return fmt.Sprintf("audit-%s", id.String())
}
