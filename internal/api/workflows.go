package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/deal-sourcing/internal/agentconfig"
	"github.com/sells-group/deal-sourcing/internal/model"
	"github.com/sells-group/deal-sourcing/internal/store"
	"github.com/sells-group/deal-sourcing/internal/workflow"
)

type createWorkflowRequest struct {
	Criteria model.SearchCriteria    `json:"criteria"`
	Rules    model.AutoApprovalRules `json:"rules"`
}

func (s *Server) createWorkflow(w http.ResponseWriter, r *http.Request) {
	var req createWorkflowRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_payload", "invalid JSON body")
		return
	}
	if req.Criteria.Strategy == "" {
		req.Criteria.Strategy = model.StrategyBuySide
	}
	if err := agentconfig.ValidateStruct(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	wf, err := s.runner.Start(r.Context(), workflow.RunRequest{
		Criteria: req.Criteria,
		Rules:    req.Rules,
		Trigger:  model.TriggerDirect,
	})
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, wf)
}

func (s *Server) listWorkflows(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit", 0)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid_query", "limit must be a non-negative integer")
		return
	}
	wfs, err := s.store.ListWorkflows(r.Context(), limit)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if wfs == nil {
		wfs = []model.Workflow{}
	}
	writeJSON(w, http.StatusOK, wfs)
}

func (s *Server) getWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := s.store.GetWorkflow(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (s *Server) workflowQueue(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.store.GetWorkflow(r.Context(), id); err != nil {
		writeStoreError(w, r, err)
		return
	}
	s.writeQueue(w, r, store.QueueFilter{WorkflowID: id})
}
