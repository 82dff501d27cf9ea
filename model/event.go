package model

import "time"

type EventType string

const EVENT_WORKFLOW_STARTED EventType = "workflow.started"
const EVENT_WORKFLOW_COMPLETED EventType = "workflow.completed"
const EVENT_WORKFLOW_FAILED EventType = "workflow.failed"
const EVENT_WORKFLOW_CANCELLED EventType = "workflow.cancelled"
const EVENT_STEP_STARTED EventType = "step.started"
const EVENT_STEP_COMPLETED EventType = "step.completed"
const EVENT_STEP_FAILED EventType = "step.failed"
const EVENT_SERVICE_CALLED EventType = "service.called"
const EVENT_ERROR EventType = "error"
const EVENT_STATE_CHANGED EventType = "state.changed"
const EVENT_CORRELATION_DETECTED EventType = "correlation.detected"

const AGGREGATE_TYPE_EXECUTION string = "workflow_execution"

// Event is an append-only record. Replay order is established by Timestamp,
// never by insertion order.
type Event struct {
	Id            string         `json:"id"`
	Type          EventType      `json:"type"`
	Name          string         `json:"name"`
	AggregateId   string         `json:"aggregate_id"`
	AggregateType string         `json:"aggregate_type"`
	CorrelationId string         `json:"correlation_id,omitempty"`
	CausationId   string         `json:"causation_id,omitempty"`
	Payload       map[string]any `json:"payload,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
	Priority      int            `json:"priority"`
}

// RuleConditions is the single-event predicate plus the window completion
// requirements of a correlation rule.
type RuleConditions struct {
	EventType          EventType      `json:"event_type,omitempty"`
	NameGlob           string         `json:"name_glob,omitempty"`
	PayloadEquals      map[string]any `json:"payload_equals,omitempty"`
	MinEvents          int            `json:"min_events"`
	MaxTimeSpanSeconds float64        `json:"max_time_span_seconds"`
	Sequence           []string       `json:"sequence,omitempty"`
}

type CorrelationRule struct {
	Name          string         `json:"name"`
	Conditions    RuleConditions `json:"conditions"`
	WindowSeconds float64        `json:"window_seconds"`
}
