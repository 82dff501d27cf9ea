package redis

import (
	"context"
	"errors"

	rd "github.com/go-redis/redis/v9"
	"github.com/chorusflow/chorus/logger"
	"github.com/chorusflow/chorus/model"
	"github.com/chorusflow/chorus/persistence"
	"github.com/chorusflow/chorus/util"
	"go.uber.org/zap"
)

const WORKFLOW_DEF string = "WORKFLOW"

type workflowStorage struct {
	*baseDao
	encdec util.EncoderDecoder[model.WorkflowDefinition]
}

var _ persistence.WorkflowStorage = new(workflowStorage)

func NewWorkflowStorage(conf Config) *workflowStorage {
	return &workflowStorage{
		baseDao: newBaseDao(conf),
		encdec:  util.NewJsonEncoderDecoder[model.WorkflowDefinition](),
	}
}

func (s *workflowStorage) Save(wf *model.WorkflowDefinition) error {
	data, err := s.encdec.Encode(*wf)
	if err != nil {
		return err
	}
	key := s.getNamespaceKey(WORKFLOW_DEF)
	ctx := context.Background()
	if err := s.redisClient.HSet(ctx, key, wf.Id, string(data)).Err(); err != nil {
		logger.Error("error in saving workflow definition", zap.String("workflow", wf.Id), zap.Error(err))
		return model.StorageError{Op: "save workflow", Err: err}
	}
	return nil
}

func (s *workflowStorage) Get(id string) (*model.WorkflowDefinition, error) {
	key := s.getNamespaceKey(WORKFLOW_DEF)
	ctx := context.Background()
	val, err := s.redisClient.HGet(ctx, key, id).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, model.NotFoundError{Kind: "workflow", Id: id}
		}
		logger.Error("error in getting workflow definition", zap.String("workflow", id), zap.Error(err))
		return nil, model.StorageError{Op: "get workflow", Err: err}
	}
	return s.encdec.Decode([]byte(val))
}

func (s *workflowStorage) List() ([]*model.WorkflowDefinition, error) {
	key := s.getNamespaceKey(WORKFLOW_DEF)
	ctx := context.Background()
	values, err := s.redisClient.HGetAll(ctx, key).Result()
	if err != nil {
		logger.Error("error in listing workflow definitions", zap.Error(err))
		return nil, model.StorageError{Op: "list workflows", Err: err}
	}
	out := make([]*model.WorkflowDefinition, 0, len(values))
	for _, val := range values {
		wf, err := s.encdec.Decode([]byte(val))
		if err != nil {
			return nil, err
		}
		out = append(out, wf)
	}
	return out, nil
}

func (s *workflowStorage) Delete(id string) error {
	key := s.getNamespaceKey(WORKFLOW_DEF)
	ctx := context.Background()
	removed, err := s.redisClient.HDel(ctx, key, id).Result()
	if err != nil {
		logger.Error("error in deleting workflow definition", zap.String("workflow", id), zap.Error(err))
		return model.StorageError{Op: "delete workflow", Err: err}
	}
	if removed == 0 {
		return model.NotFoundError{Kind: "workflow", Id: id}
	}
	return nil
}
