package event

import (
	"time"

	"github.com/chorusflow/chorus/model"
)

// ReplayState is the aggregate state reconstructed by folding its event log.
type ReplayState struct {
	AggregateId    string          `json:"aggregate_id"`
	AggregateType  string          `json:"aggregate_type"`
	Status         string          `json:"status"`
	StartedAt      *time.Time      `json:"started_at,omitempty"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	FailureReason  string          `json:"failure_reason,omitempty"`
	StepsStarted   []string        `json:"steps_started,omitempty"`
	StepsCompleted []string        `json:"steps_completed,omitempty"`
	StepsFailed    []string        `json:"steps_failed,omitempty"`
	EventCount     int             `json:"event_count"`
	LastEventType  model.EventType `json:"last_event_type,omitempty"`
}

// ReplayEvents sorts the aggregate's events by timestamp and folds them
// through the reducer. The fold is pure: replaying the same event set twice
// yields identical state.
func ReplayEvents(aggregateId string, aggregateType string, events []model.Event) *ReplayState {
	sortByTimestamp(events)
	state := &ReplayState{
		AggregateId:   aggregateId,
		AggregateType: aggregateType,
		Status:        "unknown",
	}
	for _, ev := range events {
		reduce(state, ev)
	}
	return state
}

func reduce(state *ReplayState, ev model.Event) {
	state.EventCount++
	state.LastEventType = ev.Type
	switch ev.Type {
	case model.EVENT_WORKFLOW_STARTED:
		state.Status = "running"
		at := ev.Timestamp
		state.StartedAt = &at
	case model.EVENT_WORKFLOW_COMPLETED:
		state.Status = "completed"
		at := ev.Timestamp
		state.CompletedAt = &at
	case model.EVENT_WORKFLOW_FAILED:
		state.Status = "failed"
		at := ev.Timestamp
		state.CompletedAt = &at
		if reason, ok := ev.Payload["error"].(string); ok {
			state.FailureReason = reason
		}
	case model.EVENT_WORKFLOW_CANCELLED:
		state.Status = "cancelled"
		at := ev.Timestamp
		state.CompletedAt = &at
	case model.EVENT_STEP_STARTED:
		state.StepsStarted = appendStep(state.StepsStarted, ev)
	case model.EVENT_STEP_COMPLETED:
		state.StepsCompleted = appendStep(state.StepsCompleted, ev)
	case model.EVENT_STEP_FAILED:
		state.StepsFailed = appendStep(state.StepsFailed, ev)
	}
}

func appendStep(steps []string, ev model.Event) []string {
	if actionId, ok := ev.Payload["action_id"].(string); ok {
		return append(steps, actionId)
	}
	return steps
}
