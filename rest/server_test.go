package rest

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/chorusflow/chorus/action"
	"github.com/chorusflow/chorus/engine"
	"github.com/chorusflow/chorus/event"
	"github.com/chorusflow/chorus/model"
	"github.com/chorusflow/chorus/persistence/inmem"
	"github.com/chorusflow/chorus/service"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *sync.WaitGroup) {
	t.Helper()
	workflows := inmem.NewWorkflowStorage()
	executions := inmem.NewExecutionStorage()
	eventStore := event.NewMemoryStore()
	var wg sync.WaitGroup
	registry := action.NewRegistry(action.NewWaitExecutor())
	eng := engine.New(workflows, executions, nil, registry, nil, 4, &wg)

	server, err := NewServer(0,
		service.NewWorkflowService(workflows, executions, nil, eventStore),
		service.NewExecutionService(eng, executions, eventStore))
	require.NoError(t, err)
	return server, &wg
}

func doJSON(t *testing.T, handler http.Handler, method string, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("X-User", "tester")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func waitWorkflowRequest() model.WorkflowRequest {
	return model.WorkflowRequest{
		Name: "pause",
		Actions: []model.WorkflowAction{
			{Id: "hold", Type: model.ACTION_TYPE_WAIT, Name: "hold",
				Config: map[string]any{"duration_seconds": 0}},
		},
	}
}

func TestServer(t *testing.T) {
	for scenario, fn := range map[string]func(t *testing.T, server *Server, wg *sync.WaitGroup){
		"test health":                   testHealth,
		"test create and get workflow":  testCreateGetWorkflow,
		"test create invalid workflow":  testCreateInvalid,
		"test get unknown workflow":     testGetUnknown,
		"test list templates":           testListTemplates,
		"test execute workflow":         testExecuteWorkflow,
		"test execute unknown workflow": testExecuteUnknown,
		"test cancel terminal conflict": testCancelTerminal,
	} {
		t.Run(scenario, func(t *testing.T) {
			server, wg := newTestServer(t)
			fn(t, server, wg)
		})
	}
}

func testHealth(t *testing.T, server *Server, wg *sync.WaitGroup) {
	rec := doJSON(t, server.Handler, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func testCreateGetWorkflow(t *testing.T, server *Server, wg *sync.WaitGroup) {
	rec := doJSON(t, server.Handler, http.MethodPost, "/workflow", waitWorkflowRequest())
	require.Equal(t, http.StatusCreated, rec.Code)

	var created model.WorkflowDefinition
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.Id)
	require.Equal(t, "tester", created.CreatedBy)
	require.Equal(t, model.WORKFLOW_STATUS_ACTIVE, created.Status)

	rec = doJSON(t, server.Handler, http.MethodGet, "/workflow/"+created.Id, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, server.Handler, http.MethodGet, "/workflow", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var all []model.WorkflowDefinition
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	require.Len(t, all, 1)
}

func testCreateInvalid(t *testing.T, server *Server, wg *sync.WaitGroup) {
	req := waitWorkflowRequest()
	req.Actions[0].DependsOn = []string{"ghost"}
	rec := doJSON(t, server.Handler, http.MethodPost, "/workflow", req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func testGetUnknown(t *testing.T, server *Server, wg *sync.WaitGroup) {
	rec := doJSON(t, server.Handler, http.MethodGet, "/workflow/ghost", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func testListTemplates(t *testing.T, server *Server, wg *sync.WaitGroup) {
	rec := doJSON(t, server.Handler, http.MethodGet, "/templates", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Templates []string `json:"templates"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Contains(t, body.Templates, "service-healthcheck")
}

func testExecuteWorkflow(t *testing.T, server *Server, wg *sync.WaitGroup) {
	rec := doJSON(t, server.Handler, http.MethodPost, "/workflow", waitWorkflowRequest())
	require.Equal(t, http.StatusCreated, rec.Code)
	var created model.WorkflowDefinition
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doJSON(t, server.Handler, http.MethodPost, "/workflow/"+created.Id+"/execute",
		model.ExecutionRequest{Parameters: map[string]any{}})
	require.Equal(t, http.StatusAccepted, rec.Code)
	var ex model.WorkflowExecution
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ex))
	require.NotEmpty(t, ex.Id)
	wg.Wait()

	rec = doJSON(t, server.Handler, http.MethodGet, "/execution/"+ex.Id, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, server.Handler, http.MethodGet, "/executions?workflow_id="+created.Id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func testExecuteUnknown(t *testing.T, server *Server, wg *sync.WaitGroup) {
	rec := doJSON(t, server.Handler, http.MethodPost, "/workflow/ghost/execute",
		model.ExecutionRequest{})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func testCancelTerminal(t *testing.T, server *Server, wg *sync.WaitGroup) {
	rec := doJSON(t, server.Handler, http.MethodPost, "/workflow", waitWorkflowRequest())
	var created model.WorkflowDefinition
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	rec = doJSON(t, server.Handler, http.MethodPost, "/workflow/"+created.Id+"/execute",
		model.ExecutionRequest{Parameters: map[string]any{}})
	var ex model.WorkflowExecution
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ex))
	wg.Wait()

	rec = doJSON(t, server.Handler, http.MethodDelete, "/execution/"+ex.Id, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
