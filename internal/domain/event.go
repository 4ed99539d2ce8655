package domain

import (
	"time"
)

// EventType names an engine lifecycle notification.
type EventType string

const (
	EventTaskQueued           EventType = "taskQueued"
	EventTaskStarted          EventType = "taskStarted"
	EventTaskCompleted        EventType = "taskCompleted"
	EventTaskRetry            EventType = "taskRetry"
	EventTaskError            EventType = "taskError"
	EventSessionCreated       EventType = "sessionCreated"
	EventSessionStatusChanged EventType = "sessionStatusChanged"
	EventTasksCancelled       EventType = "tasksCancelled"
)

// AllEventTypes lists every event the engine emits.
var AllEventTypes = []EventType{
	EventTaskQueued, EventTaskStarted, EventTaskCompleted, EventTaskRetry,
	EventTaskError, EventSessionCreated, EventSessionStatusChanged, EventTasksCancelled,
}

// Event carries the objects relevant to one notification. Task, Session and
// Result are copies; mutating them does not affect the engine.
type Event struct {
	Type    EventType `json:"type"`
	At      time.Time `json:"at"`
	Task    *Task     `json:"task,omitempty"`
	Session *Session  `json:"session,omitempty"`
	Result  *Result   `json:"result,omitempty"`

	// Error is the original executor error message for taskError.
	Error string `json:"error,omitempty"`

	// System and Cancelled are set for tasksCancelled.
	System    System `json:"system,omitempty"`
	Cancelled int    `json:"cancelled,omitempty"`
}
