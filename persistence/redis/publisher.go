package redis

import (
	"context"

	"github.com/chorusflow/chorus/logger"
	"github.com/chorusflow/chorus/model"
	"github.com/chorusflow/chorus/util"
	"go.uber.org/zap"
)

// EventPublisher mirrors dispatched events onto redis pub/sub so external
// consumers can follow the stream. Failures are reported as false and
// counted by the caller; they never fail the dispatch loop.
type EventPublisher struct {
	*baseDao
	encdec util.EncoderDecoder[model.Event]
}

func NewEventPublisher(conf Config) *EventPublisher {
	return &EventPublisher{
		baseDao: newBaseDao(conf),
		encdec:  util.NewJsonEncoderDecoder[model.Event](),
	}
}

func (p *EventPublisher) Publish(streamName string, ev model.Event) bool {
	data, err := p.encdec.Encode(ev)
	if err != nil {
		logger.Error("error encoding event for publish", zap.String("event", ev.Id), zap.Error(err))
		return false
	}
	channel := p.getNamespaceKey("events", streamName)
	ctx := context.Background()
	if err := p.redisClient.Publish(ctx, channel, data).Err(); err != nil {
		logger.Error("error publishing event", zap.String("channel", channel), zap.Error(err))
		return false
	}
	return true
}
