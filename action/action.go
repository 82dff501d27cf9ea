package action

import (
	"context"
	"fmt"

	"github.com/chorusflow/chorus/model"
)

// Context carries the identifiers and resolved data an executor may need.
// Data holds the merged template context: input parameters at the top level,
// prior action results keyed by action id, and workflow-scoped variables
// under "workflow".
type Context struct {
	WorkflowId  string
	ExecutionId string
	ActionId    string
	Data        map[string]any
}

// Executor runs one action variant. Config arrives fully resolved; templating
// happens before dispatch. Implementations must respect ctx cancellation.
type Executor interface {
	Type() model.ActionType
	Execute(ctx context.Context, config map[string]any, ec Context) (map[string]any, error)
}

// Registry is the closed dispatch table over the action type tags.
type Registry struct {
	executors map[model.ActionType]Executor
}

func NewRegistry(executors ...Executor) *Registry {
	r := &Registry{executors: make(map[model.ActionType]Executor)}
	for _, e := range executors {
		r.executors[e.Type()] = e
	}
	return r
}

func (r *Registry) Register(e Executor) {
	r.executors[e.Type()] = e
}

func (r *Registry) Get(t model.ActionType) (Executor, error) {
	e, ok := r.executors[t]
	if !ok {
		return nil, fmt.Errorf("no executor registered for action type %s", t)
	}
	return e, nil
}

func configString(config map[string]any, key string) string {
	if v, ok := config[key].(string); ok {
		return v
	}
	return ""
}

func configFloat(config map[string]any, key string) (float64, bool) {
	switch v := config[key].(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}
