package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/deal-sourcing/internal/model"
)

func (s *Server) listReports(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit", 0)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid_query", "limit must be a non-negative integer")
		return
	}
	reports, err := s.store.ListReports(r.Context(), limit)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if reports == nil {
		reports = []model.Report{}
	}
	writeJSON(w, http.StatusOK, reports)
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.store.GetReport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
