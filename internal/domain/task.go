package domain

import (
	"time"
)

// Priority orders queued tasks: high before medium before low.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank returns the sort weight of p; lower runs first.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	}
	return 3
}

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	return p.Rank() < 3
}

const (
	DefaultMaxRetries = 3
	DefaultTimeout    = 60 * time.Second
)

// Payload is the free-form action input as submitted. Executors decode it
// into a typed struct per (system, action).
type Payload map[string]any

// Task is one requested automation operation.
type Task struct {
	ID       string   `json:"id"`
	System   System   `json:"system"`
	Action   string   `json:"action"`
	Payload  Payload  `json:"payload,omitempty"`
	Priority Priority `json:"priority"`

	// CredentialID selects a vault credential explicitly. When empty and the
	// action needs a login, the engine picks one for System.
	CredentialID string `json:"credential_id,omitempty"`

	RetryCount int           `json:"retry_count"`
	MaxRetries int           `json:"max_retries"`
	Timeout    time.Duration `json:"timeout"`
	QueuedAt   time.Time     `json:"queued_at"`
}

// Clone returns a copy safe to hand to event subscribers.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	if t.Payload != nil {
		c.Payload = make(Payload, len(t.Payload))
		for k, v := range t.Payload {
			c.Payload[k] = v
		}
	}
	return &c
}

// ResultStatus is the outcome reported by a portal executor.
type ResultStatus string

const (
	ResultSuccess ResultStatus = "success"
	ResultFailure ResultStatus = "failure"
	ResultPartial ResultStatus = "partial"
)

// Result is what a portal executor returns for one task attempt.
type Result struct {
	Status ResultStatus   `json:"status"`
	Data   map[string]any `json:"data,omitempty"`
	Error  string         `json:"error,omitempty"`
	// ErrorCode distinguishes e.g. UNSUPPORTED_ACTION from a portal rejection.
	ErrorCode     string        `json:"error_code,omitempty"`
	ExecutionTime time.Duration `json:"execution_time"`
	Logs          []string      `json:"logs,omitempty"`
}

// Failed reports whether the attempt should go down the failure path.
func (r *Result) Failed() bool {
	return r == nil || r.Status == ResultFailure
}

// FailureResult builds a failure result with a code and message.
func FailureResult(code, msg string, elapsed time.Duration, logs ...string) *Result {
	return &Result{
		Status:        ResultFailure,
		Error:         msg,
		ErrorCode:     code,
		ExecutionTime: elapsed,
		Logs:          logs,
	}
}
