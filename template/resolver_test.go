package template

import (
	"testing"

	"github.com/chorusflow/chorus/model"
	"github.com/stretchr/testify/require"
)

func testContext() map[string]any {
	return map[string]any{
		"endpoint": "http://svc/health",
		"retries":  float64(3),
		"fetch": map[string]any{
			"status_code": float64(200),
			"body":        map[string]any{"items": []any{"a", "b"}},
		},
		"workflow": map[string]any{"id": "wf-1", "name": "demo"},
	}
}

func TestResolveString(t *testing.T) {
	for scenario, fn := range map[string]func(t *testing.T){
		"test plain string passes through": func(t *testing.T) {
			v, err := ResolveString("no markers here", testContext())
			require.NoError(t, err)
			require.Equal(t, "no markers here", v)
		},
		"test single marker keeps type": func(t *testing.T) {
			v, err := ResolveString("{{retries}}", testContext())
			require.NoError(t, err)
			require.Equal(t, float64(3), v)

			v, err = ResolveString("{{fetch.body}}", testContext())
			require.NoError(t, err)
			require.Equal(t, map[string]any{"items": []any{"a", "b"}}, v)
		},
		"test embedded markers stringify": func(t *testing.T) {
			v, err := ResolveString("GET {{endpoint}} returned {{fetch.status_code}}", testContext())
			require.NoError(t, err)
			require.Equal(t, "GET http://svc/health returned 200", v)
		},
		"test workflow scope": func(t *testing.T) {
			v, err := ResolveString("{{workflow.id}}", testContext())
			require.NoError(t, err)
			require.Equal(t, "wf-1", v)
		},
		"test jsonpath ref": func(t *testing.T) {
			v, err := ResolveString("{{$.fetch.body.items[0]}}", testContext())
			require.NoError(t, err)
			require.Equal(t, "a", v)
		},
		"test unresolved ref fails": func(t *testing.T) {
			_, err := ResolveString("{{ghost.output}}", testContext())
			require.Error(t, err)
			require.IsType(t, model.ValidationError{}, err)
			require.Contains(t, err.Error(), "unresolved template reference")
		},
		"test unresolved jsonpath fails": func(t *testing.T) {
			_, err := ResolveString("{{$.no.such.path}}", testContext())
			require.IsType(t, model.ValidationError{}, err)
		},
		"test whitespace inside marker": func(t *testing.T) {
			v, err := ResolveString("{{ retries }}", testContext())
			require.NoError(t, err)
			require.Equal(t, float64(3), v)
		},
	} {
		t.Run(scenario, fn)
	}
}

func TestResolveConfig(t *testing.T) {
	config := map[string]any{
		"url":    "{{endpoint}}",
		"method": "GET",
		"body": map[string]any{
			"status": "{{fetch.status_code}}",
		},
		"tags":  []any{"{{workflow.name}}", "static"},
		"count": 7,
	}
	resolved, err := ResolveConfig(config, testContext())
	require.NoError(t, err)
	require.Equal(t, "http://svc/health", resolved["url"])
	require.Equal(t, "GET", resolved["method"])
	require.Equal(t, map[string]any{"status": float64(200)}, resolved["body"])
	require.Equal(t, []any{"demo", "static"}, resolved["tags"])
	require.Equal(t, 7, resolved["count"])
}

func TestResolveConfigFailsOnFirstUnresolved(t *testing.T) {
	config := map[string]any{"nested": map[string]any{"ref": "{{missing}}"}}
	_, err := ResolveConfig(config, testContext())
	require.Error(t, err)
	require.IsType(t, model.ValidationError{}, err)
}
