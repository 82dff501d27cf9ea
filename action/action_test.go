package action

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chorusflow/chorus/model"
	"github.com/chorusflow/chorus/notification"
	"github.com/stretchr/testify/require"
)

func testActionContext() Context {
	return Context{
		WorkflowId:  "wf-1",
		ExecutionId: "ex-1",
		ActionId:    "act-1",
		Data:        map[string]any{"target": "svc"},
	}
}

func TestRegistry(t *testing.T) {
	registry := NewRegistry(NewWaitExecutor(), NewTransformExecutor())
	e, err := registry.Get(model.ACTION_TYPE_WAIT)
	require.NoError(t, err)
	require.Equal(t, model.ACTION_TYPE_WAIT, e.Type())

	_, err = registry.Get(model.ACTION_TYPE_SERVICE_CALL)
	require.Error(t, err)

	registry.Register(NewServiceCallExecutor(nil))
	_, err = registry.Get(model.ACTION_TYPE_SERVICE_CALL)
	require.NoError(t, err)
}

func TestServiceCall(t *testing.T) {
	for scenario, fn := range map[string]func(t *testing.T){
		"test get json response": func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, http.MethodGet, r.Method)
				require.Equal(t, "token-1", r.Header.Get("Authorization"))
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(`{"status":"healthy"}`))
			}))
			defer srv.Close()

			e := NewServiceCallExecutor(srv.Client())
			output, err := e.Execute(context.Background(), map[string]any{
				"url":     srv.URL,
				"headers": map[string]any{"Authorization": "token-1"},
			}, testActionContext())
			require.NoError(t, err)
			require.Equal(t, 200, output["status_code"])
			require.Equal(t, map[string]any{"status": "healthy"}, output["body"])
		},
		"test post body": func(t *testing.T) {
			var got string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				buf := make([]byte, r.ContentLength)
				r.Body.Read(buf)
				got = string(buf)
				w.WriteHeader(http.StatusCreated)
			}))
			defer srv.Close()

			e := NewServiceCallExecutor(srv.Client())
			output, err := e.Execute(context.Background(), map[string]any{
				"url":    srv.URL,
				"method": "post",
				"body":   map[string]any{"name": "demo"},
			}, testActionContext())
			require.NoError(t, err)
			require.Equal(t, 201, output["status_code"])
			require.JSONEq(t, `{"name":"demo"}`, got)
		},
		"test error status": func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", http.StatusServiceUnavailable)
			}))
			defer srv.Close()

			e := NewServiceCallExecutor(srv.Client())
			output, err := e.Execute(context.Background(), map[string]any{"url": srv.URL}, testActionContext())
			require.Error(t, err)
			require.Equal(t, 503, output["status_code"])
		},
		"test missing url": func(t *testing.T) {
			e := NewServiceCallExecutor(nil)
			_, err := e.Execute(context.Background(), map[string]any{}, testActionContext())
			require.Error(t, err)
		},
		"test non json body passes as string": func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("plain text, not json at all {"))
			}))
			defer srv.Close()

			e := NewServiceCallExecutor(srv.Client())
			output, err := e.Execute(context.Background(), map[string]any{"url": srv.URL}, testActionContext())
			require.NoError(t, err)
			require.Equal(t, "plain text, not json at all {", output["body"])
		},
	} {
		t.Run(scenario, fn)
	}
}

func TestTransform(t *testing.T) {
	for scenario, fn := range map[string]func(t *testing.T){
		"test reshape": func(t *testing.T) {
			e := NewTransformExecutor()
			ec := testActionContext()
			ec.Data = map[string]any{
				"fetch": map[string]any{"body": map[string]any{"items": []any{"a", "b", "c"}}},
			}
			output, err := e.Execute(context.Background(), map[string]any{
				"expression": "$ = { count: $.fetch.body.items.length, first: $.fetch.body.items[0] };",
			}, ec)
			require.NoError(t, err)
			require.Equal(t, float64(3), output["count"])
			require.Equal(t, "a", output["first"])
		},
		"test scalar result wrapped": func(t *testing.T) {
			e := NewTransformExecutor()
			output, err := e.Execute(context.Background(), map[string]any{
				"expression": "$ = 1 + 2;",
			}, testActionContext())
			require.NoError(t, err)
			require.Equal(t, int64(3), output["result"])
		},
		"test script error": func(t *testing.T) {
			e := NewTransformExecutor()
			_, err := e.Execute(context.Background(), map[string]any{
				"expression": "$ = undefinedFunction();",
			}, testActionContext())
			require.Error(t, err)
		},
		"test missing expression": func(t *testing.T) {
			e := NewTransformExecutor()
			_, err := e.Execute(context.Background(), map[string]any{}, testActionContext())
			require.Error(t, err)
		},
		"test cancellation interrupts script": func(t *testing.T) {
			e := NewTransformExecutor()
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			_, err := e.Execute(ctx, map[string]any{
				"expression": "while (true) {}",
			}, testActionContext())
			require.Error(t, err)
		},
	} {
		t.Run(scenario, fn)
	}
}

func TestWait(t *testing.T) {
	e := NewWaitExecutor()
	start := time.Now()
	output, err := e.Execute(context.Background(), map[string]any{"duration_seconds": 0.05}, testActionContext())
	require.NoError(t, err)
	require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	require.Equal(t, 0.05, output["waited_seconds"])

	_, err = e.Execute(context.Background(), map[string]any{}, testActionContext())
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Execute(ctx, map[string]any{"duration_seconds": 30}, testActionContext())
	require.ErrorIs(t, err, context.Canceled)
}

func TestPrompt(t *testing.T) {
	e := NewPromptExecutor(nil)
	output, err := e.Execute(context.Background(), map[string]any{
		"prompt": "summarize the incident",
	}, testActionContext())
	require.NoError(t, err)
	require.Equal(t, "summarize the incident", output["response"])

	_, err = e.Execute(context.Background(), map[string]any{}, testActionContext())
	require.Error(t, err)
}

type captureSink struct {
	messages []string
}

func (c *captureSink) Send(channel string, message string) error {
	c.messages = append(c.messages, channel+":"+message)
	return nil
}

func TestNotification(t *testing.T) {
	notifier := notification.NewNotifier()
	sink := &captureSink{}
	notifier.Register("slack", sink)

	e := NewNotificationExecutor(notifier)
	output, err := e.Execute(context.Background(), map[string]any{
		"message":  "deploy finished",
		"channels": []any{"slack"},
	}, testActionContext())
	require.NoError(t, err)
	require.Equal(t, true, output["delivered"])
	require.Equal(t, []string{"slack:deploy finished"}, sink.messages)

	_, err = e.Execute(context.Background(), map[string]any{}, testActionContext())
	require.Error(t, err)
}
