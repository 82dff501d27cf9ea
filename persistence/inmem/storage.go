package inmem

import (
	"sync"

	"github.com/chorusflow/chorus/model"
	"github.com/chorusflow/chorus/persistence"
	"github.com/chorusflow/chorus/util"
)

// Records are stored as encoded JSON so readers get copies, matching the
// behavior of the redis implementation.
type WorkflowStorage struct {
	mu     sync.RWMutex
	items  map[string][]byte
	encdec util.EncoderDecoder[model.WorkflowDefinition]
}

var _ persistence.WorkflowStorage = new(WorkflowStorage)

func NewWorkflowStorage() *WorkflowStorage {
	return &WorkflowStorage{
		items:  make(map[string][]byte),
		encdec: util.NewJsonEncoderDecoder[model.WorkflowDefinition](),
	}
}

func (s *WorkflowStorage) Save(wf *model.WorkflowDefinition) error {
	data, err := s.encdec.Encode(*wf)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[wf.Id] = data
	return nil
}

func (s *WorkflowStorage) Get(id string) (*model.WorkflowDefinition, error) {
	s.mu.RLock()
	data, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return nil, model.NotFoundError{Kind: "workflow", Id: id}
	}
	return s.encdec.Decode(data)
}

func (s *WorkflowStorage) List() ([]*model.WorkflowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.WorkflowDefinition, 0, len(s.items))
	for _, data := range s.items {
		wf, err := s.encdec.Decode(data)
		if err != nil {
			return nil, err
		}
		out = append(out, wf)
	}
	return out, nil
}

func (s *WorkflowStorage) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return model.NotFoundError{Kind: "workflow", Id: id}
	}
	delete(s.items, id)
	return nil
}

type ExecutionStorage struct {
	mu     sync.RWMutex
	items  map[string][]byte
	encdec util.EncoderDecoder[model.WorkflowExecution]
}

var _ persistence.ExecutionStorage = new(ExecutionStorage)

func NewExecutionStorage() *ExecutionStorage {
	return &ExecutionStorage{
		items:  make(map[string][]byte),
		encdec: util.NewJsonEncoderDecoder[model.WorkflowExecution](),
	}
}

func (s *ExecutionStorage) Save(ex *model.WorkflowExecution) error {
	data, err := s.encdec.Encode(*ex)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[ex.Id] = data
	return nil
}

func (s *ExecutionStorage) Get(id string) (*model.WorkflowExecution, error) {
	s.mu.RLock()
	data, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return nil, model.NotFoundError{Kind: "execution", Id: id}
	}
	return s.encdec.Decode(data)
}

func (s *ExecutionStorage) List(workflowId string) ([]*model.WorkflowExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.WorkflowExecution, 0, len(s.items))
	for _, data := range s.items {
		ex, err := s.encdec.Decode(data)
		if err != nil {
			return nil, err
		}
		if workflowId == "" || ex.WorkflowId == workflowId {
			out = append(out, ex)
		}
	}
	return out, nil
}
