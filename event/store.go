package event

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chorusflow/chorus/logger"
	"github.com/chorusflow/chorus/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Handler observes appended events of a subscribed type. Handler failures are
// isolated: they never block the append or the other handlers.
type Handler func(ev model.Event)

// Store is an append-only per-aggregate event log with typed replay.
type Store interface {
	Append(ev *model.Event) error
	AggregateEvents(aggregateId string, aggregateType string) ([]model.Event, error)
	EventsByType(t model.EventType, limit int) ([]model.Event, error)
	Recent(limit int) ([]model.Event, error)
	Subscribe(t model.EventType, h Handler)
	Replay(aggregateId string, aggregateType string) (*ReplayState, error)
	Close() error
}

func aggregateKey(aggregateType string, aggregateId string) string {
	return fmt.Sprintf("%s:%s", aggregateType, aggregateId)
}

// fill assigns the server-side fields of an event before it is appended.
func fill(ev *model.Event) {
	if ev.Id == "" {
		ev.Id = uuid.New().String()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
}

// handlerSet dispatches appended events to type subscribers, isolating each
// handler behind a recover.
type handlerSet struct {
	mu           sync.RWMutex
	handlers     map[model.EventType][]Handler
	handlerPanic uint64
}

func newHandlerSet() *handlerSet {
	return &handlerSet{handlers: make(map[model.EventType][]Handler)}
}

func (hs *handlerSet) subscribe(t model.EventType, h Handler) {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	hs.handlers[t] = append(hs.handlers[t], h)
}

func (hs *handlerSet) dispatch(ev model.Event) {
	hs.mu.RLock()
	handlers := hs.handlers[ev.Type]
	hs.mu.RUnlock()
	for _, h := range handlers {
		hs.invoke(h, ev)
	}
}

func (hs *handlerSet) invoke(h Handler, ev model.Event) {
	defer func() {
		if r := recover(); r != nil {
			atomic.AddUint64(&hs.handlerPanic, 1)
			logger.Error("event handler panicked", zap.String("event", ev.Id), zap.Any("panic", r))
		}
	}()
	h(ev)
}

// MemoryStore keeps the full log in process memory. Appends to one aggregate
// are serialized by the store mutex; reads copy out slices so callers never
// observe later mutation.
type MemoryStore struct {
	mu         sync.Mutex
	aggregates map[string][]model.Event
	byType     map[model.EventType][]model.Event
	all        []model.Event
	handlers   *handlerSet
}

var _ Store = new(MemoryStore)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		aggregates: make(map[string][]model.Event),
		byType:     make(map[model.EventType][]model.Event),
		handlers:   newHandlerSet(),
	}
}

func (s *MemoryStore) Append(ev *model.Event) error {
	fill(ev)
	s.mu.Lock()
	key := aggregateKey(ev.AggregateType, ev.AggregateId)
	s.aggregates[key] = append(s.aggregates[key], *ev)
	s.byType[ev.Type] = append(s.byType[ev.Type], *ev)
	s.all = append(s.all, *ev)
	s.mu.Unlock()
	s.handlers.dispatch(*ev)
	return nil
}

func (s *MemoryStore) AggregateEvents(aggregateId string, aggregateType string) ([]model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := s.aggregates[aggregateKey(aggregateType, aggregateId)]
	out := make([]model.Event, len(events))
	copy(out, events)
	return out, nil
}

func (s *MemoryStore) EventsByType(t model.EventType, limit int) ([]model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return tail(s.byType[t], limit), nil
}

func (s *MemoryStore) Recent(limit int) ([]model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return tail(s.all, limit), nil
}

func (s *MemoryStore) Subscribe(t model.EventType, h Handler) {
	s.handlers.subscribe(t, h)
}

func (s *MemoryStore) Replay(aggregateId string, aggregateType string) (*ReplayState, error) {
	events, err := s.AggregateEvents(aggregateId, aggregateType)
	if err != nil {
		return nil, err
	}
	return ReplayEvents(aggregateId, aggregateType, events), nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func tail(events []model.Event, limit int) []model.Event {
	if limit <= 0 || limit > len(events) {
		limit = len(events)
	}
	out := make([]model.Event, limit)
	copy(out, events[len(events)-limit:])
	return out
}

func sortByTimestamp(events []model.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
}
