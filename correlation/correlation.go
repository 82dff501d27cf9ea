// Package correlation detects multi-event patterns over sliding time windows
// and emits synthetic correlation events back into the pipeline.
package correlation

import (
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/chorusflow/chorus/logger"
	"github.com/chorusflow/chorus/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EmitFunc re-enters a synthetic correlation event into the dispatch pipeline.
type EmitFunc func(ev model.Event)

type window struct {
	rule     string
	key      string
	events   []model.Event
	lastSeen time.Time
}

// Engine holds the registered rules and their active correlation windows.
// Windows are buffered per rule and per correlation key and garbage-collected
// past the retention horizon.
type Engine struct {
	mu        sync.Mutex
	rules     map[string]model.CorrelationRule
	windows   map[string]*window
	emit      EmitFunc
	retention time.Duration
}

func NewEngine(emit EmitFunc, retention time.Duration) *Engine {
	if retention <= 0 {
		retention = time.Hour
	}
	return &Engine{
		rules:     make(map[string]model.CorrelationRule),
		windows:   make(map[string]*window),
		emit:      emit,
		retention: retention,
	}
}

func (e *Engine) RegisterRule(rule model.CorrelationRule) error {
	if rule.Name == "" {
		return model.CorrelationRuleError{Rule: rule.Name, Message: "name can not be empty"}
	}
	if rule.Conditions.MinEvents <= 0 {
		return model.CorrelationRuleError{Rule: rule.Name, Message: "min_events must be positive"}
	}
	if rule.Conditions.MaxTimeSpanSeconds < 0 || rule.WindowSeconds < 0 {
		return model.CorrelationRuleError{Rule: rule.Name, Message: "time spans must be non-negative"}
	}
	if rule.Conditions.NameGlob != "" {
		if _, err := path.Match(rule.Conditions.NameGlob, "probe"); err != nil {
			return model.CorrelationRuleError{Rule: rule.Name, Message: "invalid name glob"}
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules[rule.Name] = rule
	return nil
}

func (e *Engine) Rules() []model.CorrelationRule {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.CorrelationRule, 0, len(e.rules))
	for _, rule := range e.rules {
		out = append(out, rule)
	}
	return out
}

// OnEvent feeds one event through every registered rule. Correlation events
// themselves are not re-correlated, which keeps a firing rule from feeding
// its own window.
func (e *Engine) OnEvent(ev model.Event) {
	if ev.Type == model.EVENT_CORRELATION_DETECTED {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, rule := range e.rules {
		if !matches(rule, ev) {
			continue
		}
		key := correlationKey(ev)
		wKey := fmt.Sprintf("%s:%s", rule.Name, key)
		w, ok := e.windows[wKey]
		if !ok {
			w = &window{rule: rule.Name, key: key}
			e.windows[wKey] = w
		}
		w.events = append(w.events, ev)
		w.lastSeen = time.Now()
		e.trim(rule, w)
		if fired, confidence := e.check(rule, w); fired {
			e.fire(rule, w, confidence)
			delete(e.windows, wKey)
		}
	}
}

// GC discards windows whose newest event is older than the retention horizon.
// Wire it to a tick worker.
func (e *Engine) GC() {
	cutoff := time.Now().Add(-e.retention)
	e.mu.Lock()
	defer e.mu.Unlock()
	for key, w := range e.windows {
		if w.lastSeen.Before(cutoff) {
			delete(e.windows, key)
		}
	}
}

func (e *Engine) ActiveWindows() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.windows)
}

// trim drops buffered events that have slid out of the rule window.
func (e *Engine) trim(rule model.CorrelationRule, w *window) {
	if rule.WindowSeconds <= 0 {
		return
	}
	cutoff := time.Now().Add(-time.Duration(rule.WindowSeconds * float64(time.Second)))
	kept := w.events[:0]
	for _, ev := range w.events {
		if !ev.Timestamp.Before(cutoff) {
			kept = append(kept, ev)
		}
	}
	w.events = kept
}

func (e *Engine) check(rule model.CorrelationRule, w *window) (bool, float64) {
	n := len(w.events)
	if n < rule.Conditions.MinEvents {
		return false, 0
	}
	span := w.events[n-1].Timestamp.Sub(w.events[0].Timestamp)
	maxSpan := time.Duration(rule.Conditions.MaxTimeSpanSeconds * float64(time.Second))
	if maxSpan > 0 && span > maxSpan {
		return false, 0
	}
	if len(rule.Conditions.Sequence) > 0 && !matchesSequence(w.events, rule.Conditions.Sequence) {
		return false, 0
	}
	return true, confidence(n, span, maxSpan)
}

// confidence is 0.8 base, up to 0.2 for event volume and up to 0.1 for tight
// time clustering, capped at 1.0.
func confidence(n int, span time.Duration, maxSpan time.Duration) float64 {
	score := 0.8
	volume := 0.1 * float64(n)
	if volume > 0.2 {
		volume = 0.2
	}
	score += volume
	if maxSpan > 0 {
		cluster := 0.1 * (1 - float64(span)/float64(maxSpan))
		if cluster > 0 {
			score += cluster
		}
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

func (e *Engine) fire(rule model.CorrelationRule, w *window, confidence float64) {
	n := len(w.events)
	matched := make([]any, 0, n)
	for _, ev := range w.events {
		matched = append(matched, ev.Id)
	}
	span := w.events[n-1].Timestamp.Sub(w.events[0].Timestamp)
	out := model.Event{
		Id:            uuid.New().String(),
		Type:          model.EVENT_CORRELATION_DETECTED,
		Name:          rule.Name,
		AggregateId:   w.key,
		AggregateType: "correlation",
		CorrelationId: w.key,
		CausationId:   w.events[n-1].Id,
		Payload: map[string]any{
			"rule":           rule.Name,
			"matched_events": matched,
			"event_count":    n,
			"span_seconds":   span.Seconds(),
			"confidence":     confidence,
		},
		Timestamp: time.Now(),
	}
	logger.Info("correlation detected", zap.String("rule", rule.Name), zap.String("key", w.key), zap.Float64("confidence", confidence))
	e.emit(out)
}

func matches(rule model.CorrelationRule, ev model.Event) bool {
	cond := rule.Conditions
	if cond.EventType != "" && cond.EventType != ev.Type {
		return false
	}
	if cond.NameGlob != "" {
		if ok, _ := path.Match(cond.NameGlob, ev.Name); !ok {
			return false
		}
	}
	for field, expected := range cond.PayloadEquals {
		actual, ok := ev.Payload[field]
		if !ok || fmt.Sprintf("%v", actual) != fmt.Sprintf("%v", expected) {
			return false
		}
	}
	return true
}

// matchesSequence checks that the required names appear in order within the
// buffered events (other events may interleave).
func matchesSequence(events []model.Event, sequence []string) bool {
	i := 0
	for _, ev := range events {
		if i < len(sequence) && ev.Name == sequence[i] {
			i++
		}
	}
	return i == len(sequence)
}

func correlationKey(ev model.Event) string {
	if ev.CorrelationId != "" {
		return ev.CorrelationId
	}
	return ev.AggregateId
}
