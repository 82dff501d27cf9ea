package model

// WorkflowRequest is the create/update DTO. Server-assigned fields (id,
// timestamps, version, stats) are never taken from the caller.
type WorkflowRequest struct {
	Name                 string              `json:"name"`
	Description          string              `json:"description,omitempty"`
	Tags                 []string            `json:"tags,omitempty"`
	Parameters           []WorkflowParameter `json:"parameters"`
	Actions              []WorkflowAction    `json:"actions"`
	TimeoutSeconds       int                 `json:"timeout_seconds"`
	MaxConcurrentActions int                 `json:"max_concurrent_actions"`
	NotifyOnCompletion   bool                `json:"notify_on_completion"`
	NotificationChannels []string            `json:"notification_channels,omitempty"`
	Status               WorkflowStatus      `json:"status,omitempty"`
}

func (r *WorkflowRequest) ToDefinition() *WorkflowDefinition {
	return &WorkflowDefinition{
		Name:                 r.Name,
		Description:          r.Description,
		Tags:                 r.Tags,
		Parameters:           r.Parameters,
		Actions:              r.Actions,
		TimeoutSeconds:       r.TimeoutSeconds,
		MaxConcurrentActions: r.MaxConcurrentActions,
		NotifyOnCompletion:   r.NotifyOnCompletion,
		NotificationChannels: r.NotificationChannels,
		Status:               r.Status,
	}
}

type ExecutionRequest struct {
	Parameters map[string]any `json:"parameters"`
}

type WorkflowSearchFilter struct {
	Name   string
	Tag    string
	Status WorkflowStatus
}
