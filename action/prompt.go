package action

import (
	"context"
	"fmt"

	"github.com/chorusflow/chorus/model"
)

// PromptRunner is the external collaborator that evaluates a prompt against
// a model backend.
type PromptRunner interface {
	Run(ctx context.Context, prompt string, modelName string) (string, error)
}

// EchoPromptRunner returns the rendered prompt unchanged. It stands in when
// no model backend is configured.
type EchoPromptRunner struct{}

func (EchoPromptRunner) Run(ctx context.Context, prompt string, modelName string) (string, error) {
	return prompt, nil
}

type PromptExecutor struct {
	runner PromptRunner
}

var _ Executor = new(PromptExecutor)

func NewPromptExecutor(runner PromptRunner) *PromptExecutor {
	if runner == nil {
		runner = EchoPromptRunner{}
	}
	return &PromptExecutor{runner: runner}
}

func (e *PromptExecutor) Type() model.ActionType {
	return model.ACTION_TYPE_PROMPT
}

func (e *PromptExecutor) Execute(ctx context.Context, config map[string]any, ec Context) (map[string]any, error) {
	prompt := configString(config, "prompt")
	if prompt == "" {
		return nil, fmt.Errorf("prompt-execution action requires a prompt")
	}
	response, err := e.runner.Run(ctx, prompt, configString(config, "model"))
	if err != nil {
		return nil, err
	}
	return map[string]any{"response": response}, nil
}
