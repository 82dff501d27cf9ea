package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/chorusflow/chorus/cache"
	"github.com/chorusflow/chorus/event"
	"github.com/chorusflow/chorus/logger"
	"github.com/chorusflow/chorus/model"
	"github.com/chorusflow/chorus/persistence"
	"github.com/chorusflow/chorus/planner"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// WorkflowService owns the definition lifecycle: create, update, search and
// soft deletion. Validation failures block persistence entirely.
type WorkflowService struct {
	workflows  persistence.WorkflowStorage
	executions persistence.ExecutionStorage
	defCache   *cache.DefinitionCache
	eventStore event.Store
}

func NewWorkflowService(workflows persistence.WorkflowStorage, executions persistence.ExecutionStorage,
	defCache *cache.DefinitionCache, eventStore event.Store) *WorkflowService {
	return &WorkflowService{
		workflows:  workflows,
		executions: executions,
		defCache:   defCache,
		eventStore: eventStore,
	}
}

func (s *WorkflowService) Create(req *model.WorkflowRequest, creator string) (*model.WorkflowDefinition, error) {
	wf := req.ToDefinition()
	if wf.Status == "" {
		wf.Status = model.WORKFLOW_STATUS_ACTIVE
	}
	if err := planner.Validate(wf); err != nil {
		return nil, err
	}
	now := time.Now()
	wf.Id = uuid.New().String()
	wf.Version = 1
	wf.CreatedBy = creator
	wf.CreatedAt = now
	wf.UpdatedAt = now
	if err := s.workflows.Save(wf); err != nil {
		return nil, err
	}
	logger.Info("workflow created", zap.String("workflow", wf.Id), zap.String("name", wf.Name))
	return wf, nil
}

func (s *WorkflowService) Get(id string) (*model.WorkflowDefinition, error) {
	return s.workflows.Get(id)
}

func (s *WorkflowService) List() ([]*model.WorkflowDefinition, error) {
	return s.workflows.List()
}

func (s *WorkflowService) Search(filter model.WorkflowSearchFilter) ([]*model.WorkflowDefinition, error) {
	all, err := s.workflows.List()
	if err != nil {
		return nil, err
	}
	var out []*model.WorkflowDefinition
	for _, wf := range all {
		if filter.Name != "" && !strings.Contains(strings.ToLower(wf.Name), strings.ToLower(filter.Name)) {
			continue
		}
		if filter.Status != "" && wf.Status != filter.Status {
			continue
		}
		if filter.Tag != "" && !containsTag(wf.Tags, filter.Tag) {
			continue
		}
		out = append(out, wf)
	}
	return out, nil
}

// Update replaces the mutable definition fields, re-validates and bumps the
// version. Server-assigned fields and rolling statistics are preserved.
func (s *WorkflowService) Update(id string, req *model.WorkflowRequest) (*model.WorkflowDefinition, error) {
	existing, err := s.workflows.Get(id)
	if err != nil {
		return nil, err
	}
	updated := req.ToDefinition()
	updated.Id = existing.Id
	updated.Version = existing.Version + 1
	updated.CreatedBy = existing.CreatedBy
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = time.Now()
	updated.Stats = existing.Stats
	if updated.Status == "" {
		updated.Status = existing.Status
	}
	if err := planner.Validate(updated); err != nil {
		return nil, err
	}
	if err := s.workflows.Save(updated); err != nil {
		return nil, err
	}
	if s.defCache != nil {
		s.defCache.Invalidate(id)
	}
	logger.Info("workflow updated", zap.String("workflow", id), zap.Int("version", updated.Version))
	return updated, nil
}

// Delete archives a definition that has executions (soft delete) and removes
// one that never ran.
func (s *WorkflowService) Delete(id string) error {
	wf, err := s.workflows.Get(id)
	if err != nil {
		return err
	}
	executions, err := s.executions.List(id)
	if err != nil {
		return err
	}
	if len(executions) > 0 {
		wf.Status = model.WORKFLOW_STATUS_ARCHIVED
		wf.UpdatedAt = time.Now()
		if err := s.workflows.Save(wf); err != nil {
			return err
		}
	} else {
		if err := s.workflows.Delete(id); err != nil {
			return err
		}
	}
	if s.defCache != nil {
		s.defCache.Invalidate(id)
	}
	logger.Info("workflow deleted", zap.String("workflow", id), zap.Bool("archived", len(executions) > 0))
	return nil
}

func (s *WorkflowService) CreateFromTemplate(templateName string, name string, creator string) (*model.WorkflowDefinition, error) {
	req, err := Template(templateName)
	if err != nil {
		return nil, err
	}
	if name != "" {
		req.Name = name
	}
	return s.Create(req, creator)
}

// GlobalStats aggregates rolling statistics across all definitions.
type GlobalStats struct {
	Workflows       int     `json:"workflows"`
	ActiveWorkflows int     `json:"active_workflows"`
	Executions      int64   `json:"executions"`
	Successes       int64   `json:"successes"`
	AvgDuration     float64 `json:"avg_duration_seconds"`
}

func (s *WorkflowService) Statistics() (*GlobalStats, error) {
	all, err := s.workflows.List()
	if err != nil {
		return nil, err
	}
	stats := &GlobalStats{Workflows: len(all)}
	var weighted float64
	for _, wf := range all {
		if wf.Status == model.WORKFLOW_STATUS_ACTIVE {
			stats.ActiveWorkflows++
		}
		stats.Executions += wf.Stats.ExecutionCount
		stats.Successes += wf.Stats.SuccessCount
		weighted += wf.Stats.AvgDurationSeconds * float64(wf.Stats.ExecutionCount)
	}
	if stats.Executions > 0 {
		stats.AvgDuration = weighted / float64(stats.Executions)
	}
	return stats, nil
}

// Activity returns the most recent events across all aggregates.
func (s *WorkflowService) Activity(limit int) ([]model.Event, error) {
	if s.eventStore == nil {
		return nil, fmt.Errorf("no event store configured")
	}
	return s.eventStore.Recent(limit)
}

func containsTag(tags []string, tag string) bool {
	for _, t := range tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}
