package automation

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"regportal.io/automation/internal/domain"
	apperrors "regportal.io/automation/internal/pkg/errors"
)

// QueueStatus summarizes the queued (not in-flight) tasks.
type QueueStatus struct {
	Total      int                     `json:"total"`
	ByPriority map[domain.Priority]int `json:"by_priority"`
	InFlight   *domain.Task            `json:"in_flight,omitempty"`
}

// QueueStatus returns queue totals per priority.
func (e *Engine) QueueStatus() QueueStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := QueueStatus{
		Total: len(e.queue),
		ByPriority: map[domain.Priority]int{
			domain.PriorityHigh:   0,
			domain.PriorityMedium: 0,
			domain.PriorityLow:    0,
		},
	}
	for _, t := range e.queue {
		st.ByPriority[t.Priority]++
	}
	for _, s := range e.sessions {
		if s.Status == domain.SessionRunning {
			st.InFlight = s.CurrentTask.Clone()
		}
	}
	return st
}

// QueuedTasks returns the queued tasks in dispatch order.
func (e *Engine) QueuedTasks() []*domain.Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*domain.Task, len(e.queue))
	for i, t := range e.queue {
		out[i] = t.Clone()
	}
	return out
}

// ActiveSessions returns every session that is not completed, oldest first.
func (e *Engine) ActiveSessions() []*domain.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []*domain.Session
	for _, s := range e.sessions {
		if s.Status != domain.SessionCompleted {
			out = append(out, s.Clone())
		}
	}
	sortSessions(out)
	return out
}

// Sessions returns every tracked session, oldest first.
func (e *Engine) Sessions() []*domain.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*domain.Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		out = append(out, s.Clone())
	}
	sortSessions(out)
	return out
}

// Session returns one session by id.
func (e *Engine) Session(id string) (*domain.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[id]
	if !ok {
		return nil, apperrors.ErrSessionNotFoundf(id)
	}
	return s.Clone(), nil
}

func sortSessions(s []*domain.Session) {
	sort.Slice(s, func(i, j int) bool {
		if !s[i].StartTime.Equal(s[j].StartTime) {
			return s[i].StartTime.Before(s[j].StartTime)
		}
		return s[i].ID < s[j].ID
	})
}

// ToggleSession flips a session between idle and paused. A running session
// cannot be toggled; its task is never interrupted.
func (e *Engine) ToggleSession(ctx context.Context, id string) (*domain.Session, error) {
	e.mu.Lock()
	s, ok := e.sessions[id]
	if !ok {
		e.mu.Unlock()
		return nil, apperrors.ErrSessionNotFoundf(id)
	}
	switch s.Status {
	case domain.SessionIdle:
		s.Status = domain.SessionPaused
	case domain.SessionPaused:
		s.Status = domain.SessionIdle
	default:
		status := s.Status
		e.mu.Unlock()
		return nil, sessionBusy(id, status)
	}
	snap := s.Clone()
	e.mu.Unlock()

	e.log.Info("Session toggled",
		zap.String("session_id", id),
		zap.String("system", string(snap.System)),
		zap.String("status", string(snap.Status)),
	)
	e.publish(ctx, domain.Event{Type: domain.EventSessionStatusChanged, Session: snap})
	if snap.Status == domain.SessionIdle {
		e.signal()
	}
	return snap, nil
}

// CloseSession marks an idle or paused session completed and stamps its end
// time. The next task for the system opens a fresh session.
func (e *Engine) CloseSession(ctx context.Context, id string) (*domain.Session, error) {
	e.mu.Lock()
	s, ok := e.sessions[id]
	if !ok {
		e.mu.Unlock()
		return nil, apperrors.ErrSessionNotFoundf(id)
	}
	if s.Status == domain.SessionRunning || s.Status == domain.SessionCompleted {
		status := s.Status
		e.mu.Unlock()
		return nil, sessionBusy(id, status)
	}
	end := e.now()
	s.Status = domain.SessionCompleted
	s.EndTime = &end
	if e.current[s.System] == id {
		delete(e.current, s.System)
	}
	snap := s.Clone()
	e.mu.Unlock()

	e.log.Info("Session closed",
		zap.String("session_id", id),
		zap.String("system", string(snap.System)),
		zap.Int("tasks_completed", snap.TasksCompleted),
		zap.Int("tasks_failed", snap.TasksFailed),
	)
	e.publish(ctx, domain.Event{Type: domain.EventSessionStatusChanged, Session: snap})
	e.signal()
	return snap, nil
}

func sessionBusy(id string, status domain.SessionStatus) error {
	return apperrors.Conflict(apperrors.CodeSessionBusy,
		"session is "+string(status)).WithParams(map[string]interface{}{"session_id": id, "status": string(status)})
}

// CancelSystemTasks drops every queued task for system and returns how many
// were removed. A task already in flight is left alone.
func (e *Engine) CancelSystemTasks(ctx context.Context, system domain.System) int {
	e.mu.Lock()
	kept := e.queue[:0]
	removed := 0
	for _, t := range e.queue {
		if t.System == system {
			removed++
			continue
		}
		kept = append(kept, t)
	}
	for i := len(kept); i < len(e.queue); i++ {
		e.queue[i] = nil
	}
	e.queue = kept
	depth := len(e.queue)
	e.mu.Unlock()

	e.log.Info("Queued tasks cancelled",
		zap.String("system", string(system)),
		zap.Int("cancelled", removed),
	)
	e.metrics.SetQueueDepth(depth)
	e.publish(ctx, domain.Event{Type: domain.EventTasksCancelled, System: system, Cancelled: removed})
	return removed
}

// CleanupSessions forgets sessions that ended more than the retention
// window ago and returns how many were removed.
func (e *Engine) CleanupSessions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	cutoff := e.now().Add(-e.cfg.SessionRetention)
	removed := 0
	for id, s := range e.sessions {
		if s.EndTime != nil && s.EndTime.Before(cutoff) {
			delete(e.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		e.log.Debug("Sessions cleaned up", zap.Int("removed", removed))
	}
	return removed
}
