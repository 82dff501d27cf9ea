package stream

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/chorusflow/chorus/correlation"
	"github.com/chorusflow/chorus/event"
	"github.com/chorusflow/chorus/model"
	"github.com/stretchr/testify/require"
)

func newTestStream(capacity int) (*Stream, *event.MemoryStore, *sync.WaitGroup) {
	store := event.NewMemoryStore()
	var wg sync.WaitGroup
	return NewStream("test", capacity, store, nil, nil, &wg), store, &wg
}

func publish(t *testing.T, s *Stream, ev model.Event) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Publish(ctx, ev))
}

func testEvent(id string, evType model.EventType, name string) model.Event {
	return model.Event{
		Id:            id,
		Type:          evType,
		Name:          name,
		AggregateId:   "ex-1",
		AggregateType: model.AGGREGATE_TYPE_EXECUTION,
		Timestamp:     time.Now(),
	}
}

func TestStreamPersistsInOrder(t *testing.T) {
	s, store, _ := newTestStream(16)
	base := time.Now()
	for i := 0; i < 5; i++ {
		ev := testEvent(fmt.Sprintf("ev-%d", i), model.EVENT_STEP_COMPLETED, "step")
		ev.Timestamp = base.Add(time.Duration(i) * time.Millisecond)
		publish(t, s, ev)
	}
	s.Drain()
	events, err := store.AggregateEvents("ex-1", model.AGGREGATE_TYPE_EXECUTION)
	require.NoError(t, err)
	require.Len(t, events, 5)
	for i, ev := range events {
		require.Equal(t, fmt.Sprintf("ev-%d", i), ev.Id)
	}
}

func TestSubscriptionMatching(t *testing.T) {
	for scenario, fn := range map[string]func(t *testing.T){
		"test type filter": func(t *testing.T) {
			sub := &Subscription{Types: []model.EventType{model.EVENT_STEP_FAILED}}
			require.True(t, sub.matches(testEvent("1", model.EVENT_STEP_FAILED, "x")))
			require.False(t, sub.matches(testEvent("1", model.EVENT_STEP_COMPLETED, "x")))
		},
		"test name glob": func(t *testing.T) {
			sub := &Subscription{NameGlob: "deploy-*"}
			require.True(t, sub.matches(testEvent("1", model.EVENT_STEP_FAILED, "deploy-api")))
			require.False(t, sub.matches(testEvent("1", model.EVENT_STEP_FAILED, "build-api")))
		},
		"test priority floor": func(t *testing.T) {
			sub := &Subscription{MinPriority: 5}
			ev := testEvent("1", model.EVENT_ERROR, "x")
			require.False(t, sub.matches(ev))
			ev.Priority = 5
			require.True(t, sub.matches(ev))
		},
		"test custom filter": func(t *testing.T) {
			sub := &Subscription{Filter: func(ev model.Event) bool { return ev.Name == "wanted" }}
			require.True(t, sub.matches(testEvent("1", model.EVENT_ERROR, "wanted")))
			require.False(t, sub.matches(testEvent("1", model.EVENT_ERROR, "other")))
		},
		"test empty subscription matches all": func(t *testing.T) {
			sub := &Subscription{}
			require.True(t, sub.matches(testEvent("1", model.EVENT_ERROR, "anything")))
		},
	} {
		t.Run(scenario, fn)
	}
}

func TestSubscriberFanout(t *testing.T) {
	s, _, _ := newTestStream(16)
	var mu sync.Mutex
	var first, second []string
	s.Subscribe(&Subscription{
		Name:  "first",
		Types: []model.EventType{model.EVENT_STEP_FAILED},
		Handler: func(ev model.Event) error {
			mu.Lock()
			first = append(first, ev.Id)
			mu.Unlock()
			return nil
		},
	})
	s.Subscribe(&Subscription{
		Name: "second",
		Handler: func(ev model.Event) error {
			mu.Lock()
			second = append(second, ev.Id)
			mu.Unlock()
			return nil
		},
	})
	publish(t, s, testEvent("ev-1", model.EVENT_STEP_FAILED, "step"))
	publish(t, s, testEvent("ev-2", model.EVENT_STEP_COMPLETED, "step"))
	s.Drain()

	require.Equal(t, []string{"ev-1"}, first)
	require.Len(t, second, 2)
}

func TestSubscriberIsolation(t *testing.T) {
	s, _, _ := newTestStream(16)
	var delivered int
	panicking := &Subscription{
		Name:    "panicking",
		Handler: func(ev model.Event) error { panic("boom") },
	}
	s.Subscribe(panicking)
	s.Subscribe(&Subscription{
		Name: "healthy",
		Handler: func(ev model.Event) error {
			delivered++
			return nil
		},
	})
	publish(t, s, testEvent("ev-1", model.EVENT_ERROR, "x"))
	s.Drain()

	require.Equal(t, 1, delivered)
	m := panicking.Metrics()
	require.Equal(t, int64(1), m.Failed)
	require.Equal(t, int64(0), m.Delivered)
}

func TestSubscriptionMetrics(t *testing.T) {
	s, _, _ := newTestStream(16)
	calls := 0
	sub := &Subscription{
		Name: "metered",
		Handler: func(ev model.Event) error {
			calls++
			if calls == 2 {
				return fmt.Errorf("transient failure")
			}
			return nil
		},
	}
	s.Subscribe(sub)
	for i := 0; i < 3; i++ {
		publish(t, s, testEvent(fmt.Sprintf("ev-%d", i), model.EVENT_ERROR, "x"))
	}
	s.Drain()

	m := sub.Metrics()
	require.Equal(t, int64(2), m.Delivered)
	require.Equal(t, int64(1), m.Failed)
	require.GreaterOrEqual(t, m.AvgLatencyMs, float64(0))
}

func TestUnsubscribe(t *testing.T) {
	s, _, _ := newTestStream(16)
	var delivered int
	id := s.Subscribe(&Subscription{
		Handler: func(ev model.Event) error {
			delivered++
			return nil
		},
	})
	publish(t, s, testEvent("ev-1", model.EVENT_ERROR, "x"))
	s.Drain()
	s.Unsubscribe(id)
	publish(t, s, testEvent("ev-2", model.EVENT_ERROR, "x"))
	s.Drain()
	require.Equal(t, 1, delivered)
}

func TestBackpressure(t *testing.T) {
	s, _, _ := newTestStream(1)
	publish(t, s, testEvent("ev-1", model.EVENT_ERROR, "x"))

	// queue is full, a second publish blocks until the context gives up
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.Publish(ctx, testEvent("ev-2", model.EVENT_ERROR, "x"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConsumerLoop(t *testing.T) {
	s, store, wg := newTestStream(16)
	s.Start()
	publish(t, s, testEvent("ev-1", model.EVENT_ERROR, "x"))

	require.Eventually(t, func() bool {
		events, err := store.Recent(10)
		return err == nil && len(events) == 1
	}, time.Second, 5*time.Millisecond)

	s.Stop()
	wg.Wait()
}

func TestCorrelationFeed(t *testing.T) {
	store := event.NewMemoryStore()
	var wg sync.WaitGroup
	var fired []model.Event
	corr := correlation.NewEngine(func(ev model.Event) {
		fired = append(fired, ev)
	}, time.Hour)
	require.NoError(t, corr.RegisterRule(model.CorrelationRule{
		Name:       "any-error",
		Conditions: model.RuleConditions{EventType: model.EVENT_ERROR, MinEvents: 2},
	}))
	s := NewStream("test", 16, store, corr, nil, &wg)

	publish(t, s, testEvent("ev-1", model.EVENT_ERROR, "x"))
	publish(t, s, testEvent("ev-2", model.EVENT_ERROR, "x"))
	s.Drain()

	require.Len(t, fired, 1)
	require.Equal(t, model.EVENT_CORRELATION_DETECTED, fired[0].Type)
}
