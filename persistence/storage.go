package persistence

import "github.com/chorusflow/chorus/model"

// WorkflowStorage persists workflow definitions. Record layout mirrors the
// DTO plus server-assigned id, timestamps, version and rolling statistics.
type WorkflowStorage interface {
	Save(wf *model.WorkflowDefinition) error
	Get(id string) (*model.WorkflowDefinition, error)
	List() ([]*model.WorkflowDefinition, error)
	Delete(id string) error
}

// ExecutionStorage persists workflow executions, including the
// current-action pointer and completed/failed action id lists.
type ExecutionStorage interface {
	Save(ex *model.WorkflowExecution) error
	Get(id string) (*model.WorkflowExecution, error)
	List(workflowId string) ([]*model.WorkflowExecution, error)
}
