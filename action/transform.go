package action

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chorusflow/chorus/model"
	"github.com/dop251/goja"
)

// TransformExecutor runs a javascript expression over the resolution context.
// The script sees the context as $ and whatever it leaves in $ becomes the
// action output. The goja runtime is created per invocation with no host
// bindings, so the script can not reach outside the supplied data.
type TransformExecutor struct{}

var _ Executor = new(TransformExecutor)

func NewTransformExecutor() *TransformExecutor {
	return &TransformExecutor{}
}

func (e *TransformExecutor) Type() model.ActionType {
	return model.ACTION_TYPE_TRANSFORM
}

func (e *TransformExecutor) Execute(ctx context.Context, config map[string]any, ec Context) (map[string]any, error) {
	expression := configString(config, "expression")
	if expression == "" {
		expression = configString(config, "script")
	}
	if expression == "" {
		return nil, fmt.Errorf("transform-data action requires an expression")
	}
	data, err := json.Marshal(ec.Data)
	if err != nil {
		return nil, err
	}
	vm := goja.New()
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt("cancelled")
		case <-done:
		}
	}()
	defer close(done)
	script := fmt.Sprintf("var $ = %s;\n%s", data, expression)
	if _, err := vm.RunString(script); err != nil {
		return nil, fmt.Errorf("error executing transform script: %w", err)
	}
	val, err := vm.RunString("$")
	if err != nil {
		return nil, fmt.Errorf("error executing transform script: %w", err)
	}
	res, err := json.Marshal(val.Export())
	if err != nil {
		return nil, err
	}
	var output map[string]any
	if err := json.Unmarshal(res, &output); err != nil {
		return map[string]any{"result": val.Export()}, nil
	}
	return output, nil
}
