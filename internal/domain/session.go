package domain

import "time"

// SessionStatus is the lifecycle state of an automation session.
type SessionStatus string

const (
	SessionIdle      SessionStatus = "idle"
	SessionRunning   SessionStatus = "running"
	SessionPaused    SessionStatus = "paused"
	SessionCompleted SessionStatus = "completed"
	SessionError     SessionStatus = "error"
)

// Session is the bookkeeping record of automation directed at one system.
// CurrentTask is non-nil exactly when Status is SessionRunning.
type Session struct {
	ID             string        `json:"id"`
	System         System        `json:"system"`
	Status         SessionStatus `json:"status"`
	StartTime      time.Time     `json:"start_time"`
	EndTime        *time.Time    `json:"end_time,omitempty"`
	TasksCompleted int           `json:"tasks_completed"`
	TasksFailed    int           `json:"tasks_failed"`
	CurrentTask    *Task         `json:"current_task,omitempty"`
}

// Clone returns a deep copy safe to hand to callers.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.EndTime != nil {
		end := *s.EndTime
		c.EndTime = &end
	}
	c.CurrentTask = s.CurrentTask.Clone()
	return &c
}
