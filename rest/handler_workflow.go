package rest

import (
	"encoding/json"
	"net/http"

	"github.com/chorusflow/chorus/model"
	"github.com/chorusflow/chorus/service"
	"github.com/gorilla/mux"
)

func (s *Server) HandleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req model.WorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	defer r.Body.Close()
	wf, err := s.workflowService.Create(&req, r.Header.Get("X-User"))
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, wf)
}

func (s *Server) HandleListWorkflows(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.WorkflowSearchFilter{
		Name:   q.Get("name"),
		Tag:    q.Get("tag"),
		Status: model.WorkflowStatus(q.Get("status")),
	}
	if filter.Name == "" && filter.Tag == "" && filter.Status == "" {
		workflows, err := s.workflowService.List()
		if err != nil {
			respondWithError(w, err)
			return
		}
		respondWithJSON(w, http.StatusOK, workflows)
		return
	}
	workflows, err := s.workflowService.Search(filter)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, workflows)
}

func (s *Server) HandleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	wf, err := s.workflowService.Get(id)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, wf)
}

func (s *Server) HandleUpdateWorkflow(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req model.WorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	defer r.Body.Close()
	wf, err := s.workflowService.Update(id, &req)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, wf)
}

func (s *Server) HandleDeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.workflowService.Delete(id); err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "deleted"})
}

func (s *Server) HandleCreateFromTemplate(w http.ResponseWriter, r *http.Request) {
	templateName := mux.Vars(r)["name"]
	var body struct {
		Name string `json:"name"`
	}
	json.NewDecoder(r.Body).Decode(&body)
	defer r.Body.Close()
	wf, err := s.workflowService.CreateFromTemplate(templateName, body.Name, r.Header.Get("X-User"))
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, wf)
}

func (s *Server) HandleListTemplates(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]any{"templates": service.TemplateNames()})
}

func (s *Server) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.workflowService.Statistics()
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, stats)
}

func (s *Server) HandleActivity(w http.ResponseWriter, r *http.Request) {
	events, err := s.workflowService.Activity(50)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, events)
}
