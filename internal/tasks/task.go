package tasks

import (
	"github.com/google/uuid"
)

// Status is the lifecycle state of a background crew execution.
type Status string

const (
	// StatusProcessing is set when the request is accepted, before a
	// worker picks the job up.
	StatusProcessing Status = "processing"
	// StatusRunning is set while a worker executes the crew.
	StatusRunning Status = "running"
	// StatusSuccess is terminal: the crew finished and the report is stored.
	StatusSuccess Status = "success"
	// StatusError is terminal: the crew failed or was cancelled.
	StatusError Status = "error"
	// StatusBlocked is reported for deny-listed task ids; no record exists.
	StatusBlocked Status = "blocked"
)

// Terminal reports whether the status can no longer change.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusError
}

// Valid reports whether s is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusProcessing, StatusRunning, StatusSuccess, StatusError, StatusBlocked:
		return true
	}
	return false
}

// NewTaskID returns a fresh task identifier.
func NewTaskID() string {
	return uuid.NewString()
}
