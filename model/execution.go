package model

import "time"

type ExecutionStatus string

const EXECUTION_STATUS_PENDING ExecutionStatus = "pending"
const EXECUTION_STATUS_RUNNING ExecutionStatus = "running"
const EXECUTION_STATUS_COMPLETED ExecutionStatus = "completed"
const EXECUTION_STATUS_FAILED ExecutionStatus = "failed"
const EXECUTION_STATUS_CANCELLED ExecutionStatus = "cancelled"

func (s ExecutionStatus) Terminal() bool {
	switch s {
	case EXECUTION_STATUS_COMPLETED, EXECUTION_STATUS_FAILED, EXECUTION_STATUS_CANCELLED:
		return true
	}
	return false
}

// ActionResult is the recorded outcome of a single action within an execution.
// Skipped actions are recorded as successful without ever being dispatched.
type ActionResult struct {
	ActionId        string         `json:"action_id"`
	Success         bool           `json:"success"`
	Skipped         bool           `json:"skipped,omitempty"`
	Error           string         `json:"error,omitempty"`
	Output          map[string]any `json:"output,omitempty"`
	Attempts        int            `json:"attempts"`
	DurationSeconds float64        `json:"duration_seconds"`
}

// WorkflowExecution is mutated only by the engine driving it and becomes
// immutable once its status is terminal.
type WorkflowExecution struct {
	Id                   string                  `json:"execution_id"`
	WorkflowId           string                  `json:"workflow_id"`
	StartedBy            string                  `json:"started_by,omitempty"`
	InputParameters      map[string]any          `json:"input_parameters"`
	Status               ExecutionStatus         `json:"status"`
	StartedAt            time.Time               `json:"started_at"`
	CompletedAt          *time.Time              `json:"completed_at,omitempty"`
	ExecutionTimeSeconds float64                 `json:"execution_time_seconds"`
	ActionResults        map[string]ActionResult `json:"action_results"`
	OutputData           map[string]any          `json:"output_data,omitempty"`
	ErrorMessage         string                  `json:"error_message,omitempty"`
	CurrentAction        string                  `json:"current_action,omitempty"`
	CompletedActions     []string                `json:"completed_actions"`
	FailedActions        []string                `json:"failed_actions"`
}
