package models

import "time"

// ExecutionStatus is the lifecycle state of a single automation invocation.
type ExecutionStatus string

const (
	ExecutionStatusRunning ExecutionStatus = "running" // Initial, set at insert
	ExecutionStatusSuccess ExecutionStatus = "success"
	ExecutionStatusError   ExecutionStatus = "error"
)

// IsTerminal reports whether the status is final. Terminal executions are
// never updated again.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusSuccess || s == ExecutionStatusError
}

// Execution records one invocation attempt of an automation and its outcome.
// It is inserted with status running and updated exactly once to a terminal
// status (plus at most one corrective update if the run fails midway).
type Execution struct {
	ID           string          `json:"id"`
	AutomationID string          `json:"automation_id" validate:"required"`
	Status       ExecutionStatus `json:"status"`
	// Data holds whatever JSON the remote endpoint returned, or a
	// {message: ...} wrapper when the response was not JSON.
	Data         any       `json:"execution_data"`
	ErrorMessage *string   `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
