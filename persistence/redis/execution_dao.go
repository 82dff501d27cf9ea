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

const EXECUTION string = "EXECUTION"

type executionStorage struct {
	*baseDao
	encdec util.EncoderDecoder[model.WorkflowExecution]
}

var _ persistence.ExecutionStorage = new(executionStorage)

func NewExecutionStorage(conf Config) *executionStorage {
	return &executionStorage{
		baseDao: newBaseDao(conf),
		encdec:  util.NewJsonEncoderDecoder[model.WorkflowExecution](),
	}
}

func (s *executionStorage) Save(ex *model.WorkflowExecution) error {
	data, err := s.encdec.Encode(*ex)
	if err != nil {
		return err
	}
	key := s.getNamespaceKey(EXECUTION)
	ctx := context.Background()
	if err := s.redisClient.HSet(ctx, key, ex.Id, string(data)).Err(); err != nil {
		logger.Error("error in saving execution", zap.String("execution", ex.Id), zap.Error(err))
		return model.StorageError{Op: "save execution", Err: err}
	}
	return nil
}

func (s *executionStorage) Get(id string) (*model.WorkflowExecution, error) {
	key := s.getNamespaceKey(EXECUTION)
	ctx := context.Background()
	val, err := s.redisClient.HGet(ctx, key, id).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, model.NotFoundError{Kind: "execution", Id: id}
		}
		logger.Error("error in getting execution", zap.String("execution", id), zap.Error(err))
		return nil, model.StorageError{Op: "get execution", Err: err}
	}
	return s.encdec.Decode([]byte(val))
}

func (s *executionStorage) List(workflowId string) ([]*model.WorkflowExecution, error) {
	key := s.getNamespaceKey(EXECUTION)
	ctx := context.Background()
	values, err := s.redisClient.HGetAll(ctx, key).Result()
	if err != nil {
		logger.Error("error in listing executions", zap.Error(err))
		return nil, model.StorageError{Op: "list executions", Err: err}
	}
	out := make([]*model.WorkflowExecution, 0, len(values))
	for _, val := range values {
		ex, err := s.encdec.Decode([]byte(val))
		if err != nil {
			return nil, err
		}
		if workflowId == "" || ex.WorkflowId == workflowId {
			out = append(out, ex)
		}
	}
	return out, nil
}
