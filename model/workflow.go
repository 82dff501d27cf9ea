package model

import "time"

type WorkflowStatus string

const WORKFLOW_STATUS_DRAFT WorkflowStatus = "draft"
const WORKFLOW_STATUS_ACTIVE WorkflowStatus = "active"
const WORKFLOW_STATUS_ARCHIVED WorkflowStatus = "archived"
const WORKFLOW_STATUS_DEPRECATED WorkflowStatus = "deprecated"

type ParamType string

const PARAM_TYPE_STRING ParamType = "string"
const PARAM_TYPE_INT ParamType = "int"
const PARAM_TYPE_FLOAT ParamType = "float"
const PARAM_TYPE_BOOL ParamType = "bool"
const PARAM_TYPE_ARRAY ParamType = "array"
const PARAM_TYPE_OBJECT ParamType = "object"
const PARAM_TYPE_FILE ParamType = "file"

type ActionType string

const ACTION_TYPE_SERVICE_CALL ActionType = "service-call"
const ACTION_TYPE_PROMPT ActionType = "prompt-execution"
const ACTION_TYPE_TRANSFORM ActionType = "transform-data"
const ACTION_TYPE_WAIT ActionType = "wait"
const ACTION_TYPE_NOTIFICATION ActionType = "notification"

func ValidActionType(t ActionType) bool {
	switch t {
	case ACTION_TYPE_SERVICE_CALL, ACTION_TYPE_PROMPT, ACTION_TYPE_TRANSFORM,
		ACTION_TYPE_WAIT, ACTION_TYPE_NOTIFICATION:
		return true
	}
	return false
}

type WorkflowParameter struct {
	Name            string         `json:"name"`
	Type            ParamType      `json:"type"`
	Description     string         `json:"description,omitempty"`
	Required        bool           `json:"required"`
	DefaultValue    any            `json:"default_value,omitempty"`
	AllowedValues   []any          `json:"allowed_values,omitempty"`
	ValidationRules map[string]any `json:"validation_rules,omitempty"`
}

type WorkflowAction struct {
	Id                string         `json:"id"`
	Type              ActionType     `json:"action_type"`
	Name              string         `json:"name"`
	Description       string         `json:"description,omitempty"`
	Config            map[string]any `json:"config"`
	Condition         string         `json:"condition,omitempty"`
	DependsOn         []string       `json:"depends_on,omitempty"`
	RetryCount        int            `json:"retry_count"`
	RetryDelaySeconds float64        `json:"retry_delay"`
	TimeoutSeconds    int            `json:"timeout_seconds"`
	OnError           string         `json:"on_error,omitempty"`
	ContinueOnError   bool           `json:"continue_on_error"`
}

// WorkflowStats are rolling counters maintained by the execution engine on
// every terminal transition.
type WorkflowStats struct {
	ExecutionCount     int64   `json:"execution_count"`
	SuccessCount       int64   `json:"success_count"`
	AvgDurationSeconds float64 `json:"avg_duration_seconds"`
}

type WorkflowDefinition struct {
	Id                   string              `json:"id"`
	Name                 string              `json:"name"`
	Description          string              `json:"description,omitempty"`
	Version              int                 `json:"version"`
	Status               WorkflowStatus      `json:"status"`
	CreatedBy            string              `json:"created_by,omitempty"`
	CreatedAt            time.Time           `json:"created_at"`
	UpdatedAt            time.Time           `json:"updated_at"`
	Tags                 []string            `json:"tags,omitempty"`
	Parameters           []WorkflowParameter `json:"parameters"`
	Actions              []WorkflowAction    `json:"actions"`
	TimeoutSeconds       int                 `json:"timeout_seconds"`
	MaxConcurrentActions int                 `json:"max_concurrent_actions"`
	NotifyOnCompletion   bool                `json:"notify_on_completion"`
	NotificationChannels []string            `json:"notification_channels,omitempty"`
	Stats                WorkflowStats       `json:"stats"`
}

// ActionById returns the declared action with the given id, or nil.
func (wf *WorkflowDefinition) ActionById(id string) *WorkflowAction {
	for i := range wf.Actions {
		if wf.Actions[i].Id == id {
			return &wf.Actions[i]
		}
	}
	return nil
}

// ParameterByName returns the declared parameter with the given name, or nil.
func (wf *WorkflowDefinition) ParameterByName(name string) *WorkflowParameter {
	for i := range wf.Parameters {
		if wf.Parameters[i].Name == name {
			return &wf.Parameters[i]
		}
	}
	return nil
}
