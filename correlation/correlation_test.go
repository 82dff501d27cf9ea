package correlation

import (
	"testing"
	"time"

	"github.com/chorusflow/chorus/model"
	"github.com/stretchr/testify/require"
)

type capture struct {
	events []model.Event
}

func (c *capture) emit(ev model.Event) {
	c.events = append(c.events, ev)
}

func newTestEngine() (*Engine, *capture) {
	c := &capture{}
	return NewEngine(c.emit, time.Hour), c
}

func errorBurstRule() model.CorrelationRule {
	return model.CorrelationRule{
		Name: "error-burst",
		Conditions: model.RuleConditions{
			EventType:          model.EVENT_ERROR,
			MinEvents:          5,
			MaxTimeSpanSeconds: 300,
		},
		WindowSeconds: 300,
	}
}

func errorEvent(id string, correlationId string, at time.Time) model.Event {
	return model.Event{
		Id:            id,
		Type:          model.EVENT_ERROR,
		Name:          "error",
		AggregateId:   correlationId,
		AggregateType: model.AGGREGATE_TYPE_EXECUTION,
		CorrelationId: correlationId,
		Timestamp:     at,
	}
}

func TestRegisterRule(t *testing.T) {
	engine, _ := newTestEngine()
	require.NoError(t, engine.RegisterRule(errorBurstRule()))
	require.Len(t, engine.Rules(), 1)

	err := engine.RegisterRule(model.CorrelationRule{Name: ""})
	require.IsType(t, model.CorrelationRuleError{}, err)

	err = engine.RegisterRule(model.CorrelationRule{Name: "no-min"})
	require.IsType(t, model.CorrelationRuleError{}, err)

	err = engine.RegisterRule(model.CorrelationRule{
		Name:       "bad-glob",
		Conditions: model.RuleConditions{MinEvents: 1, NameGlob: "[unclosed"},
	})
	require.IsType(t, model.CorrelationRuleError{}, err)
}

func TestErrorBurstFiresOnce(t *testing.T) {
	engine, out := newTestEngine()
	require.NoError(t, engine.RegisterRule(errorBurstRule()))

	base := time.Now().Add(-200 * time.Second)
	for i := 0; i < 5; i++ {
		engine.OnEvent(errorEvent(string(rune('a'+i)), "ex-1", base.Add(time.Duration(i*40)*time.Second)))
	}
	require.Len(t, out.events, 1)

	detected := out.events[0]
	require.Equal(t, model.EVENT_CORRELATION_DETECTED, detected.Type)
	require.Equal(t, "error-burst", detected.Name)
	require.Equal(t, "ex-1", detected.CorrelationId)
	require.Equal(t, 5, detected.Payload["event_count"])
	confidence, ok := detected.Payload["confidence"].(float64)
	require.True(t, ok)
	require.GreaterOrEqual(t, confidence, 0.8)
	require.LessOrEqual(t, confidence, 1.0)

	// the window was consumed, the next event starts a fresh count
	engine.OnEvent(errorEvent("f", "ex-1", base.Add(190*time.Second)))
	require.Len(t, out.events, 1)
}

func TestBelowThresholdDoesNotFire(t *testing.T) {
	engine, out := newTestEngine()
	require.NoError(t, engine.RegisterRule(errorBurstRule()))
	base := time.Now().Add(-100 * time.Second)
	for i := 0; i < 4; i++ {
		engine.OnEvent(errorEvent(string(rune('a'+i)), "ex-1", base.Add(time.Duration(i)*time.Second)))
	}
	require.Empty(t, out.events)
	require.Equal(t, 1, engine.ActiveWindows())
}

func TestWindowsKeyedByCorrelationId(t *testing.T) {
	engine, out := newTestEngine()
	require.NoError(t, engine.RegisterRule(errorBurstRule()))
	base := time.Now().Add(-100 * time.Second)
	for i := 0; i < 4; i++ {
		engine.OnEvent(errorEvent(string(rune('a'+i)), "ex-1", base.Add(time.Duration(i)*time.Second)))
		engine.OnEvent(errorEvent(string(rune('p'+i)), "ex-2", base.Add(time.Duration(i)*time.Second)))
	}
	require.Empty(t, out.events)
	require.Equal(t, 2, engine.ActiveWindows())

	engine.OnEvent(errorEvent("e", "ex-1", base.Add(5*time.Second)))
	require.Len(t, out.events, 1)
	require.Equal(t, "ex-1", out.events[0].CorrelationId)
}

func TestSlidingWindowDropsOldEvents(t *testing.T) {
	engine, out := newTestEngine()
	rule := errorBurstRule()
	rule.WindowSeconds = 10
	rule.Conditions.MaxTimeSpanSeconds = 10
	require.NoError(t, engine.RegisterRule(rule))

	stale := time.Now().Add(-time.Hour)
	for i := 0; i < 4; i++ {
		engine.OnEvent(errorEvent(string(rune('a'+i)), "ex-1", stale.Add(time.Duration(i)*time.Second)))
	}
	// stale events slid out, one fresh event is not enough
	engine.OnEvent(errorEvent("e", "ex-1", time.Now()))
	require.Empty(t, out.events)
}

func TestSequenceRule(t *testing.T) {
	engine, out := newTestEngine()
	require.NoError(t, engine.RegisterRule(model.CorrelationRule{
		Name: "fail-then-cancel",
		Conditions: model.RuleConditions{
			MinEvents: 2,
			Sequence:  []string{"step.failed", "workflow.cancelled"},
		},
		WindowSeconds: 600,
	}))
	base := time.Now().Add(-10 * time.Second)

	cancelled := errorEvent("1", "ex-1", base)
	cancelled.Name = "workflow.cancelled"
	failed := errorEvent("2", "ex-1", base.Add(time.Second))
	failed.Name = "step.failed"

	// wrong order does not fire
	engine.OnEvent(cancelled)
	engine.OnEvent(failed)
	require.Empty(t, out.events)

	cancelled2 := errorEvent("3", "ex-1", base.Add(2*time.Second))
	cancelled2.Name = "workflow.cancelled"
	engine.OnEvent(cancelled2)
	require.Len(t, out.events, 1)
}

func TestCorrelationEventsNotRecorrelated(t *testing.T) {
	engine, out := newTestEngine()
	require.NoError(t, engine.RegisterRule(model.CorrelationRule{
		Name:       "everything",
		Conditions: model.RuleConditions{MinEvents: 1},
	}))
	detected := errorEvent("1", "ex-1", time.Now())
	detected.Type = model.EVENT_CORRELATION_DETECTED
	engine.OnEvent(detected)
	require.Empty(t, out.events)
}

func TestGC(t *testing.T) {
	engine, _ := newTestEngine()
	engine.retention = time.Millisecond
	require.NoError(t, engine.RegisterRule(errorBurstRule()))
	engine.OnEvent(errorEvent("a", "ex-1", time.Now()))
	require.Equal(t, 1, engine.ActiveWindows())
	time.Sleep(5 * time.Millisecond)
	engine.GC()
	require.Equal(t, 0, engine.ActiveWindows())
}
