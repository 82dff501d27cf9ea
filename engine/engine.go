package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chorusflow/chorus/action"
	"github.com/chorusflow/chorus/cache"
	"github.com/chorusflow/chorus/logger"
	"github.com/chorusflow/chorus/model"
	"github.com/chorusflow/chorus/persistence"
	"github.com/chorusflow/chorus/planner"
	"github.com/chorusflow/chorus/stream"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Engine drives workflow executions through their state machine:
// pending -> running -> completed | failed | cancelled. Terminal records are
// never mutated again.
type Engine struct {
	workflows  persistence.WorkflowStorage
	executions persistence.ExecutionStorage
	defCache   *cache.DefinitionCache
	registry   *action.Registry
	stream     *stream.Stream

	defaultMaxConcurrent int

	mu     sync.Mutex
	active map[string]context.CancelFunc

	// statsMu serializes the read-modify-write of definition statistics so
	// concurrent terminal transitions never lose counts.
	statsMu sync.Mutex
	wg      *sync.WaitGroup
}

func New(workflows persistence.WorkflowStorage, executions persistence.ExecutionStorage,
	defCache *cache.DefinitionCache, registry *action.Registry, st *stream.Stream,
	defaultMaxConcurrent int, wg *sync.WaitGroup) *Engine {
	if defaultMaxConcurrent <= 0 {
		defaultMaxConcurrent = 8
	}
	return &Engine{
		workflows:            workflows,
		executions:           executions,
		defCache:             defCache,
		registry:             registry,
		stream:               st,
		defaultMaxConcurrent: defaultMaxConcurrent,
		active:               make(map[string]context.CancelFunc),
		wg:                   wg,
	}
}

func (e *Engine) definition(id string) (*model.WorkflowDefinition, error) {
	if e.defCache != nil {
		if wf, ok := e.defCache.Get(id); ok {
			return wf, nil
		}
	}
	wf, err := e.workflows.Get(id)
	if err != nil {
		return nil, err
	}
	if e.defCache != nil {
		e.defCache.Set(wf)
	}
	return wf, nil
}

// Start validates the input synchronously, creates the execution record and
// drives the plan on a background goroutine. Validation failures never create
// an execution record; the returned handle is for polling.
func (e *Engine) Start(workflowId string, params map[string]any, initiator string) (*model.WorkflowExecution, error) {
	wf, err := e.definition(workflowId)
	if err != nil {
		return nil, err
	}
	if wf.Status != model.WORKFLOW_STATUS_ACTIVE {
		return nil, model.ValidationError{Message: fmt.Sprintf("workflow %s is not active", workflowId)}
	}
	normalized, errs := planner.ValidateParameters(wf, params)
	if len(errs) > 0 {
		return nil, model.ValidationError{Message: "invalid execution parameters", Fields: errs}
	}
	plan, err := planner.ComputeExecutionPlan(wf)
	if err != nil {
		return nil, err
	}
	ex := &model.WorkflowExecution{
		Id:               uuid.New().String(),
		WorkflowId:       wf.Id,
		StartedBy:        initiator,
		InputParameters:  normalized,
		Status:           model.EXECUTION_STATUS_PENDING,
		StartedAt:        time.Now(),
		ActionResults:    make(map[string]model.ActionResult),
		CompletedActions: []string{},
		FailedActions:    []string{},
	}
	if err := e.executions.Save(ex); err != nil {
		return nil, err
	}
	ex.Status = model.EXECUTION_STATUS_RUNNING
	if err := e.executions.Save(ex); err != nil {
		return nil, err
	}
	// The handle is re-read from storage before the driver starts so the
	// caller never shares maps with the goroutines mutating the record.
	handle, err := e.executions.Get(ex.Id)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	e.active[ex.Id] = cancel
	e.mu.Unlock()

	logger.Info("starting workflow execution", zap.String("workflow", wf.Id), zap.String("execution", ex.Id))
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer cancel()
		e.run(ctx, wf, ex, plan)
	}()
	return handle, nil
}

// Cancel is only legal while the execution is running. It cancels the driving
// task and marks the record cancelled; side effects of actions already
// dispatched are abandoned without compensation.
func (e *Engine) Cancel(executionId string) error {
	ex, err := e.executions.Get(executionId)
	if err != nil {
		return err
	}
	if ex.Status != model.EXECUTION_STATUS_RUNNING {
		return model.ValidationError{Message: fmt.Sprintf("execution %s is %s, only running executions can be cancelled", executionId, ex.Status)}
	}
	e.mu.Lock()
	cancel, ok := e.active[executionId]
	e.mu.Unlock()
	if ok {
		cancel()
	}
	if !e.finalize(ex, model.EXECUTION_STATUS_CANCELLED, "cancelled by caller") {
		return model.ValidationError{Message: fmt.Sprintf("execution %s already terminal", executionId)}
	}
	e.afterTerminal(ex, model.EVENT_WORKFLOW_CANCELLED)
	return nil
}

func (e *Engine) run(ctx context.Context, wf *model.WorkflowDefinition, ex *model.WorkflowExecution, plan [][]string) {
	startedId := e.emit(ex, model.EVENT_WORKFLOW_STARTED, wf.Name, "", map[string]any{
		"workflow_id": wf.Id,
	})
	if wf.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(wf.TimeoutSeconds)*time.Second)
		defer cancel()
	}
	r := &runner{engine: e, wf: wf, ex: ex, causation: startedId}
	var failed string
	for _, level := range plan {
		if err := r.runLevel(ctx, level); err != nil {
			failed = err.Error()
			break
		}
		if ctx.Err() != nil {
			failed = ctx.Err().Error()
			break
		}
	}
	r.mu.Lock()
	ex.OutputData = aggregateOutput(ex)
	ex.CurrentAction = ""
	r.mu.Unlock()

	if ctx.Err() == context.Canceled {
		// Cancel() already finalized the record; just stop driving.
		if !e.finalize(ex, model.EXECUTION_STATUS_CANCELLED, "cancelled") {
			return
		}
		e.afterTerminal(ex, model.EVENT_WORKFLOW_CANCELLED)
		return
	}
	if failed != "" {
		if e.finalize(ex, model.EXECUTION_STATUS_FAILED, failed) {
			e.afterTerminal(ex, model.EVENT_WORKFLOW_FAILED)
		}
		return
	}
	if e.finalize(ex, model.EXECUTION_STATUS_COMPLETED, "") {
		e.afterTerminal(ex, model.EVENT_WORKFLOW_COMPLETED)
	}
}

// finalize writes the terminal state exactly once: whichever of the driver or
// Cancel gets there first wins, the other sees the stored record terminal.
func (e *Engine) finalize(ex *model.WorkflowExecution, status model.ExecutionStatus, errMsg string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if stored, err := e.executions.Get(ex.Id); err == nil && stored.Status.Terminal() {
		return false
	}
	now := time.Now()
	ex.Status = status
	ex.CompletedAt = &now
	ex.ExecutionTimeSeconds = now.Sub(ex.StartedAt).Seconds()
	ex.ErrorMessage = errMsg
	if err := e.executions.Save(ex); err != nil {
		logger.Error("error persisting terminal execution", zap.String("execution", ex.Id), zap.Error(err))
	}
	delete(e.active, ex.Id)
	return true
}

// afterTerminal updates the owning definition's rolling statistics and emits
// the terminal lifecycle event.
func (e *Engine) afterTerminal(ex *model.WorkflowExecution, evType model.EventType) {
	payload := map[string]any{
		"workflow_id":      ex.WorkflowId,
		"duration_seconds": ex.ExecutionTimeSeconds,
	}
	if ex.ErrorMessage != "" {
		payload["error"] = ex.ErrorMessage
	}
	e.emit(ex, evType, ex.WorkflowId, "", payload)

	e.updateStats(ex)
	logger.Info("workflow execution terminal",
		zap.String("execution", ex.Id), zap.String("status", string(ex.Status)),
		zap.Float64("duration", ex.ExecutionTimeSeconds))
}

// updateStats folds one terminal execution into the definition's rolling
// statistics. Get, increment and Save run under statsMu so terminal
// transitions racing from different driver goroutines all count.
func (e *Engine) updateStats(ex *model.WorkflowExecution) {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	wf, err := e.workflows.Get(ex.WorkflowId)
	if err != nil {
		logger.Error("error loading workflow for stats update", zap.String("workflow", ex.WorkflowId), zap.Error(err))
		return
	}
	wf.Stats.ExecutionCount++
	if ex.Status == model.EXECUTION_STATUS_COMPLETED {
		wf.Stats.SuccessCount++
	}
	wf.Stats.AvgDurationSeconds += (ex.ExecutionTimeSeconds - wf.Stats.AvgDurationSeconds) / float64(wf.Stats.ExecutionCount)
	if err := e.workflows.Save(wf); err != nil {
		logger.Error("error persisting workflow stats", zap.String("workflow", wf.Id), zap.Error(err))
	}
	if e.defCache != nil {
		e.defCache.Invalidate(wf.Id)
	}
}

func (e *Engine) emit(ex *model.WorkflowExecution, evType model.EventType, name string, causationId string, payload map[string]any) string {
	if e.stream == nil {
		return ""
	}
	ev := model.Event{
		Id:            uuid.New().String(),
		Type:          evType,
		Name:          name,
		AggregateId:   ex.Id,
		AggregateType: model.AGGREGATE_TYPE_EXECUTION,
		CorrelationId: ex.Id,
		CausationId:   causationId,
		Payload:       payload,
		Timestamp:     time.Now(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.stream.Publish(ctx, ev); err != nil {
		logger.Error("error publishing lifecycle event", zap.String("execution", ex.Id), zap.Error(err))
	}
	return ev.Id
}

func aggregateOutput(ex *model.WorkflowExecution) map[string]any {
	output := make(map[string]any)
	for actionId, res := range ex.ActionResults {
		if res.Success && !res.Skipped && len(res.Output) > 0 {
			output[actionId] = res.Output
		}
	}
	return output
}

func levelError(failed []string) error {
	return model.ActionExecutionError{
		ActionId: strings.Join(failed, ","),
		Reason:   "action failed, aborting remaining levels",
	}
}
