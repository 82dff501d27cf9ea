package rest

import (
	"encoding/json"
	"net/http"

	"github.com/chorusflow/chorus/model"
	"github.com/gorilla/mux"
)

func (s *Server) HandleExecuteWorkflow(w http.ResponseWriter, r *http.Request) {
	workflowId := mux.Vars(r)["id"]
	var req model.ExecutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	defer r.Body.Close()
	if req.Parameters == nil {
		req.Parameters = map[string]any{}
	}
	ex, err := s.executionService.Execute(workflowId, req.Parameters, r.Header.Get("X-User"))
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusAccepted, ex)
}

func (s *Server) HandleGetExecution(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ex, err := s.executionService.Get(id)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, ex)
}

func (s *Server) HandleListExecutions(w http.ResponseWriter, r *http.Request) {
	executions, err := s.executionService.List(r.URL.Query().Get("workflow_id"))
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, executions)
}

func (s *Server) HandleCancelExecution(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.executionService.Cancel(id); err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "cancelled"})
}

func (s *Server) HandleExecutionEvents(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	events, err := s.executionService.Events(id)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, events)
}

func (s *Server) HandleReplayExecution(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	state, err := s.executionService.Replay(id)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, state)
}
