package service

import (
	"github.com/chorusflow/chorus/engine"
	"github.com/chorusflow/chorus/event"
	"github.com/chorusflow/chorus/model"
	"github.com/chorusflow/chorus/persistence"
)

// ExecutionService exposes the execution engine: start, poll, list, cancel
// and event-log replay.
type ExecutionService struct {
	engine     *engine.Engine
	executions persistence.ExecutionStorage
	eventStore event.Store
}

func NewExecutionService(eng *engine.Engine, executions persistence.ExecutionStorage, eventStore event.Store) *ExecutionService {
	return &ExecutionService{
		engine:     eng,
		executions: executions,
		eventStore: eventStore,
	}
}

// Execute starts a workflow. Action-level failures never surface here; the
// caller gets a handle to poll and errors only on synchronous validation.
func (s *ExecutionService) Execute(workflowId string, params map[string]any, initiator string) (*model.WorkflowExecution, error) {
	return s.engine.Start(workflowId, params, initiator)
}

func (s *ExecutionService) Get(id string) (*model.WorkflowExecution, error) {
	return s.executions.Get(id)
}

func (s *ExecutionService) List(workflowId string) ([]*model.WorkflowExecution, error) {
	return s.executions.List(workflowId)
}

func (s *ExecutionService) Cancel(id string) error {
	return s.engine.Cancel(id)
}

func (s *ExecutionService) Events(id string) ([]model.Event, error) {
	return s.eventStore.AggregateEvents(id, model.AGGREGATE_TYPE_EXECUTION)
}

func (s *ExecutionService) Replay(id string) (*event.ReplayState, error) {
	return s.eventStore.Replay(id, model.AGGREGATE_TYPE_EXECUTION)
}
