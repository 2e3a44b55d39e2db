package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/deal-sourcing/internal/agentconfig"
	"github.com/sells-group/deal-sourcing/internal/model"
	"github.com/sells-group/deal-sourcing/internal/store"
)

const (
	manualApprovalReason  = "Manually approved"
	manualRejectionReason = "Manually rejected"
)

type decisionRequest struct {
	Reason string `json:"reason"`
}

type bulkRequest struct {
	IDs    []string `json:"ids" validate:"required,min=1,max=200,dive,required"`
	Reason string   `json:"reason"`
}

type bulkFailure struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

type bulkResponse struct {
	Updated []string      `json:"updated"`
	Failed  []bulkFailure `json:"failed"`
}

func (s *Server) listQueue(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, ok := queryInt(r, "limit", 0)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid_query", "limit must be a non-negative integer")
		return
	}
	offset, ok := queryInt(r, "offset", 0)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid_query", "offset must be a non-negative integer")
		return
	}
	s.writeQueue(w, r, store.QueueFilter{
		WorkflowID:     q.Get("workflow_id"),
		ApprovalStatus: model.ApprovalStatus(q.Get("approval_status")),
		ResearchStatus: model.ResearchStatus(q.Get("research_status")),
		Limit:          limit,
		Offset:         offset,
	})
}

func (s *Server) writeQueue(w http.ResponseWriter, r *http.Request, filter store.QueueFilter) {
	filter.Sort = store.QueueSort(r.URL.Query().Get("sort"))
	if !filter.Sort.Valid() {
		writeError(w, r, http.StatusBadRequest, "invalid_query", "sort must be one of revenue, score, created")
		return
	}

	items, err := s.store.ListQueueItems(r.Context(), filter)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if items == nil {
		items = []model.QueueItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) getQueueItem(w http.ResponseWriter, r *http.Request) {
	item, err := s.store.GetQueueItem(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) approveItem(w http.ResponseWriter, r *http.Request) {
	s.decide(w, r, model.ApprovalManualApproved, manualApprovalReason)
}

func (s *Server) rejectItem(w http.ResponseWriter, r *http.Request) {
	s.decide(w, r, model.ApprovalRejected, manualRejectionReason)
}

// decide applies a manual decision to one pending item. Approval starts
// research in the background.
func (s *Server) decide(w http.ResponseWriter, r *http.Request, status model.ApprovalStatus, defaultReason string) {
	var req decisionRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, r, http.StatusBadRequest, "invalid_payload", "invalid JSON body")
		return
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = defaultReason
	}

	id := chi.URLParam(r, "id")
	if err := s.store.SetApproval(r.Context(), id, status, reason); err != nil {
		writeStoreError(w, r, err)
		return
	}
	if status == model.ApprovalManualApproved {
		s.runner.StartResearchApproved(r.Context(), []string{id})
	}

	item, err := s.store.GetQueueItem(r.Context(), id)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) bulkApprove(w http.ResponseWriter, r *http.Request) {
	s.bulkDecide(w, r, model.ApprovalManualApproved, manualApprovalReason)
}

func (s *Server) bulkReject(w http.ResponseWriter, r *http.Request) {
	s.bulkDecide(w, r, model.ApprovalRejected, manualRejectionReason)
}

// bulkDecide applies a decision to each id independently and reports which
// succeeded.
func (s *Server) bulkDecide(w http.ResponseWriter, r *http.Request, status model.ApprovalStatus, defaultReason string) {
	var req bulkRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_payload", "invalid JSON body")
		return
	}
	if err := agentconfig.ValidateStruct(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = defaultReason
	}

	resp := bulkResponse{Updated: []string{}, Failed: []bulkFailure{}}
	for _, id := range req.IDs {
		if err := s.store.SetApproval(r.Context(), id, status, reason); err != nil {
			resp.Failed = append(resp.Failed, bulkFailure{ID: id, Error: bulkErrorCode(err)})
			continue
		}
		resp.Updated = append(resp.Updated, id)
	}
	if status == model.ApprovalManualApproved && len(resp.Updated) > 0 {
		s.runner.StartResearchApproved(r.Context(), resp.Updated)
	}
	writeJSON(w, http.StatusOK, resp)
}

func bulkErrorCode(err error) string {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	case errors.Is(err, store.ErrInvalidTransition):
		return "invalid_transition"
	default:
		return "internal"
	}
}
