// Package stream is the reactive dispatch loop: a single consumer drains a
// bounded FIFO queue, persists every event, feeds the correlation engine and
// fans matching events out to subscribers.
package stream

import (
	"context"
	"path"
	"sync"
	"time"

	"github.com/chorusflow/chorus/correlation"
	"github.com/chorusflow/chorus/event"
	"github.com/chorusflow/chorus/logger"
	"github.com/chorusflow/chorus/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Publisher mirrors accepted events onto an external transport. A false
// return signals a retriable publish failure; the loop only counts it.
type Publisher interface {
	Publish(streamName string, ev model.Event) bool
}

// Subscription receives events matching its pattern, priority floor and
// optional custom filter.
type Subscription struct {
	Id          string
	Name        string
	Types       []model.EventType
	NameGlob    string
	MinPriority int
	Filter      func(ev model.Event) bool
	Handler     func(ev model.Event) error

	mu           sync.Mutex
	delivered    int64
	failed       int64
	avgLatencyMs float64
}

// SubscriptionMetrics is a snapshot of a subscription's running counters.
type SubscriptionMetrics struct {
	Delivered    int64   `json:"delivered"`
	Failed       int64   `json:"failed"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}

func (s *Subscription) Metrics() SubscriptionMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SubscriptionMetrics{Delivered: s.delivered, Failed: s.failed, AvgLatencyMs: s.avgLatencyMs}
}

func (s *Subscription) record(latency time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.failed++
	} else {
		s.delivered++
	}
	total := s.delivered + s.failed
	s.avgLatencyMs += (float64(latency.Milliseconds()) - s.avgLatencyMs) / float64(total)
}

func (s *Subscription) matches(ev model.Event) bool {
	if len(s.Types) > 0 {
		found := false
		for _, t := range s.Types {
			if t == ev.Type {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if s.NameGlob != "" {
		if ok, _ := path.Match(s.NameGlob, ev.Name); !ok {
			return false
		}
	}
	if ev.Priority < s.MinPriority {
		return false
	}
	if s.Filter != nil && !s.Filter(ev) {
		return false
	}
	return true
}

// Stream is one named dispatch loop. Events within the queue are processed
// strictly FIFO; nothing is ordered across distinct streams.
type Stream struct {
	name  string
	queue chan model.Event
	store event.Store
	corr  *correlation.Engine
	pub   Publisher

	mu   sync.RWMutex
	subs map[string]*Subscription

	stop          chan struct{}
	wg            *sync.WaitGroup
	storeFailures int64
	pubFailures   int64
	statsMu       sync.Mutex
}

func NewStream(name string, capacity int, store event.Store, corr *correlation.Engine, pub Publisher, wg *sync.WaitGroup) *Stream {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Stream{
		name:  name,
		queue: make(chan model.Event, capacity),
		store: store,
		corr:  corr,
		pub:   pub,
		subs:  make(map[string]*Subscription),
		stop:  make(chan struct{}),
		wg:    wg,
	}
}

func (s *Stream) Name() string {
	return s.name
}

// SetCorrelation attaches the correlation engine after construction; the
// engine's emit side references the stream, so one of the two is wired late.
// Call before Start.
func (s *Stream) SetCorrelation(corr *correlation.Engine) {
	s.corr = corr
}

// Publish enqueues an event. A full queue blocks the producer (backpressure)
// until the consumer catches up or ctx is done.
func (s *Stream) Publish(ctx context.Context, ev model.Event) error {
	select {
	case s.queue <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Stream) Subscribe(sub *Subscription) string {
	if sub.Id == "" {
		sub.Id = uuid.New().String()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[sub.Id] = sub
	return sub.Id
}

func (s *Stream) Unsubscribe(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
}

func (s *Stream) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case ev := <-s.queue:
				s.process(ev)
			case <-s.stop:
				logger.Info("stopping event stream", zap.String("stream", s.name))
				return
			}
		}
	}()
}

func (s *Stream) Stop() {
	s.stop <- struct{}{}
}

// Drain processes everything already queued, then returns. Test helper and
// shutdown aid; the consumer must not be running concurrently.
func (s *Stream) Drain() {
	for {
		select {
		case ev := <-s.queue:
			s.process(ev)
		default:
			return
		}
	}
}

func (s *Stream) process(ev model.Event) {
	if err := s.store.Append(&ev); err != nil {
		s.statsMu.Lock()
		s.storeFailures++
		s.statsMu.Unlock()
		logger.Error("error persisting event", zap.String("stream", s.name), zap.String("event", ev.Id), zap.Error(err))
	}
	if s.corr != nil {
		s.corr.OnEvent(ev)
	}
	if s.pub != nil && !s.pub.Publish(s.name, ev) {
		s.statsMu.Lock()
		s.pubFailures++
		s.statsMu.Unlock()
	}
	s.mu.RLock()
	matched := make([]*Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		if sub.matches(ev) {
			matched = append(matched, sub)
		}
	}
	s.mu.RUnlock()
	var wg sync.WaitGroup
	for _, sub := range matched {
		wg.Add(1)
		go func(sub *Subscription) {
			defer wg.Done()
			s.notify(sub, ev)
		}(sub)
	}
	wg.Wait()
}

// notify invokes one subscriber, isolated behind a recover so a failing
// handler can not block or fail the others.
func (s *Stream) notify(sub *Subscription, ev model.Event) {
	start := time.Now()
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = model.ActionExecutionError{ActionId: sub.Id, Reason: "subscriber panicked"}
				logger.Error("subscriber panicked", zap.String("subscription", sub.Name), zap.Any("panic", r))
			}
		}()
		err = sub.Handler(ev)
	}()
	sub.record(time.Since(start), err)
	if err != nil {
		logger.Debug("subscriber handler failed", zap.String("subscription", sub.Name), zap.String("event", ev.Id), zap.Error(err))
	}
}

// Failures reports the internal error counters for dropped persistence and
// publish attempts.
func (s *Stream) Failures() (storeFailures int64, pubFailures int64) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.storeFailures, s.pubFailures
}
