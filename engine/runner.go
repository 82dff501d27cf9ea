package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chorusflow/chorus/action"
	"github.com/chorusflow/chorus/expr"
	"github.com/chorusflow/chorus/logger"
	"github.com/chorusflow/chorus/model"
	"github.com/chorusflow/chorus/template"
	"go.uber.org/zap"
)

// runner drives one execution through its leveled plan. The execution record
// is shared across the per-action goroutines of a level, so every mutation
// goes through mu.
type runner struct {
	engine    *Engine
	wf        *model.WorkflowDefinition
	ex        *model.WorkflowExecution
	causation string
	mu        sync.Mutex
}

// runLevel dispatches every action of the level concurrently and waits for
// all of them. The level fails only on actions not marked continue_on_error;
// a failed level aborts the remaining levels.
func (r *runner) runLevel(ctx context.Context, level []string) error {
	limit := r.wf.MaxConcurrentActions
	if limit <= 0 {
		limit = r.engine.defaultMaxConcurrent
	}
	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup
	var failMu sync.Mutex
	var failed []string

	for _, actionId := range level {
		act := r.wf.ActionById(actionId)
		wg.Add(1)
		go func(act *model.WorkflowAction) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}
			if ok := r.runAction(ctx, act); !ok && !act.ContinueOnError {
				failMu.Lock()
				failed = append(failed, act.Id)
				failMu.Unlock()
			}
		}(act)
	}
	wg.Wait()
	if len(failed) > 0 {
		return levelError(failed)
	}
	return nil
}

// runAction resolves, conditionally skips and dispatches one action with
// retry, timeout and on-error hook semantics. It reports whether the action
// counts as successful for level fail-fast purposes.
func (r *runner) runAction(ctx context.Context, act *model.WorkflowAction) bool {
	data := r.templateContext()
	r.setCurrent(act.Id)

	if act.Condition != "" {
		ok, err := expr.Eval(act.Condition, data)
		if err != nil {
			r.recordFailure(act, 0, 0, fmt.Sprintf("invalid condition: %v", err))
			return false
		}
		if !ok {
			r.recordSkipped(act)
			return true
		}
	}
	config, err := template.ResolveConfig(act.Config, data)
	if err != nil {
		r.recordFailure(act, 0, 0, err.Error())
		return false
	}
	executor, err := r.engine.registry.Get(act.Type)
	if err != nil {
		r.recordFailure(act, 0, 0, err.Error())
		return false
	}

	stepStarted := r.engine.emit(r.ex, model.EVENT_STEP_STARTED, act.Name, r.causation, map[string]any{
		"action_id": act.Id,
		"type":      string(act.Type),
	})

	start := time.Now()
	attempts := act.RetryCount + 1
	if attempts < 1 {
		attempts = 1
	}
	var output map[string]any
	var lastErr error
	attempt := 0
	for attempt < attempts {
		attempt++
		output, lastErr = r.dispatch(ctx, executor, act, config, data)
		if lastErr == nil || ctx.Err() != nil {
			break
		}
		if attempt < attempts {
			logger.Debug("retrying action",
				zap.String("execution", r.ex.Id), zap.String("action", act.Id),
				zap.Int("attempt", attempt), zap.Error(lastErr))
			if !sleepCtx(ctx, time.Duration(act.RetryDelaySeconds*float64(time.Second))) {
				break
			}
		}
	}
	duration := time.Since(start).Seconds()

	if lastErr != nil {
		r.recordFailure(act, attempt, duration, lastErr.Error())
		r.engine.emit(r.ex, model.EVENT_STEP_FAILED, act.Name, stepStarted, map[string]any{
			"action_id": act.Id,
			"error":     lastErr.Error(),
			"attempts":  attempt,
		})
		r.runErrorHook(ctx, act)
		return false
	}

	r.mu.Lock()
	r.ex.ActionResults[act.Id] = model.ActionResult{
		ActionId:        act.Id,
		Success:         true,
		Output:          output,
		Attempts:        attempt,
		DurationSeconds: duration,
	}
	r.ex.CompletedActions = append(r.ex.CompletedActions, act.Id)
	r.mu.Unlock()
	r.persist()

	r.engine.emit(r.ex, model.EVENT_STEP_COMPLETED, act.Name, stepStarted, map[string]any{
		"action_id": act.Id,
		"attempts":  attempt,
	})
	if act.Type == model.ACTION_TYPE_SERVICE_CALL {
		r.engine.emit(r.ex, model.EVENT_SERVICE_CALLED, act.Name, stepStarted, map[string]any{
			"action_id": act.Id,
			"url":       config["url"],
		})
	}
	return true
}

func (r *runner) dispatch(ctx context.Context, executor action.Executor, act *model.WorkflowAction, config map[string]any, data map[string]any) (map[string]any, error) {
	actx := ctx
	if act.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, time.Duration(act.TimeoutSeconds)*time.Second)
		defer cancel()
	}
	output, err := executor.Execute(actx, config, actionContext(r.wf, r.ex, act, data))
	if err != nil {
		return nil, model.ActionExecutionError{ActionId: act.Id, Reason: err.Error()}
	}
	return output, nil
}

// runErrorHook dispatches the on_error action once, without retries. Its
// result is recorded alongside the regular action results.
func (r *runner) runErrorHook(ctx context.Context, act *model.WorkflowAction) {
	if act.OnError == "" {
		return
	}
	hook := r.wf.ActionById(act.OnError)
	if hook == nil {
		logger.Error("on_error hook references unknown action",
			zap.String("execution", r.ex.Id), zap.String("action", act.Id), zap.String("hook", act.OnError))
		return
	}
	data := r.templateContext()
	data["failed_action"] = act.Id
	config, err := template.ResolveConfig(hook.Config, data)
	if err != nil {
		logger.Error("error resolving on_error hook config", zap.String("hook", hook.Id), zap.Error(err))
		return
	}
	executor, err := r.engine.registry.Get(hook.Type)
	if err != nil {
		logger.Error("error dispatching on_error hook", zap.String("hook", hook.Id), zap.Error(err))
		return
	}
	start := time.Now()
	output, hookErr := executor.Execute(ctx, config, actionContext(r.wf, r.ex, hook, data))
	result := model.ActionResult{
		ActionId:        hook.Id,
		Success:         hookErr == nil,
		Output:          output,
		Attempts:        1,
		DurationSeconds: time.Since(start).Seconds(),
	}
	if hookErr != nil {
		result.Error = hookErr.Error()
	}
	r.mu.Lock()
	r.ex.ActionResults[hook.Id] = result
	r.mu.Unlock()
	r.persist()
}

// templateContext merges input parameters, prior action results and
// workflow-scoped variables into one resolution context.
func (r *runner) templateContext() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	data := make(map[string]any, len(r.ex.InputParameters)+len(r.ex.ActionResults)+1)
	for k, v := range r.ex.InputParameters {
		data[k] = v
	}
	for actionId, res := range r.ex.ActionResults {
		fields := make(map[string]any, len(res.Output))
		for k, v := range res.Output {
			fields[k] = v
		}
		data[actionId] = fields
	}
	data["workflow"] = map[string]any{
		"id":           r.wf.Id,
		"name":         r.wf.Name,
		"execution_id": r.ex.Id,
		"initiator":    r.ex.StartedBy,
	}
	return data
}

func (r *runner) setCurrent(actionId string) {
	r.mu.Lock()
	r.ex.CurrentAction = actionId
	r.mu.Unlock()
}

func (r *runner) recordSkipped(act *model.WorkflowAction) {
	r.mu.Lock()
	r.ex.ActionResults[act.Id] = model.ActionResult{
		ActionId: act.Id,
		Success:  true,
		Skipped:  true,
	}
	r.ex.CompletedActions = append(r.ex.CompletedActions, act.Id)
	r.mu.Unlock()
	r.persist()
	r.engine.emit(r.ex, model.EVENT_STEP_COMPLETED, act.Name, r.causation, map[string]any{
		"action_id": act.Id,
		"skipped":   true,
	})
}

func (r *runner) recordFailure(act *model.WorkflowAction, attempts int, duration float64, reason string) {
	r.mu.Lock()
	r.ex.ActionResults[act.Id] = model.ActionResult{
		ActionId:        act.Id,
		Success:         false,
		Error:           reason,
		Attempts:        attempts,
		DurationSeconds: duration,
	}
	r.ex.FailedActions = append(r.ex.FailedActions, act.Id)
	r.mu.Unlock()
	r.persist()
	logger.Error("action failed",
		zap.String("execution", r.ex.Id), zap.String("action", act.Id), zap.String("reason", reason))
}

// persist saves intermediate progress. Once the record went terminal through
// finalize, further progress writes are skipped. Both locks are held during
// the save so no level goroutine mutates the record mid-encode.
func (r *runner) persist() {
	r.engine.mu.Lock()
	defer r.engine.mu.Unlock()
	if stored, err := r.engine.executions.Get(r.ex.Id); err == nil && stored.Status.Terminal() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.engine.executions.Save(r.ex); err != nil {
		logger.Error("error persisting execution progress", zap.String("execution", r.ex.Id), zap.Error(err))
	}
}

func actionContext(wf *model.WorkflowDefinition, ex *model.WorkflowExecution, act *model.WorkflowAction, data map[string]any) action.Context {
	return action.Context{
		WorkflowId:  wf.Id,
		ExecutionId: ex.Id,
		ActionId:    act.Id,
		Data:        data,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
