package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/deal-sourcing/internal/agentconfig"
	"github.com/sells-group/deal-sourcing/internal/model"
)

func (s *Server) listConfigurations(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	configs, err := s.store.ListConfigurations(r.Context(), activeOnly)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if configs == nil {
		configs = []model.AgentConfiguration{}
	}
	writeJSON(w, http.StatusOK, configs)
}

func (s *Server) getConfiguration(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.store.GetConfiguration(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) createConfiguration(w http.ResponseWriter, r *http.Request) {
	var cfg model.AgentConfiguration
	if err := decodeJSON(r, &cfg); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_payload", "invalid JSON body")
		return
	}
	cfg.ID = ""
	if err := agentconfig.Validate(&cfg); err != nil {
		writeError(w, r, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}
	if err := s.store.CreateConfiguration(r.Context(), &cfg); err != nil {
		writeStoreError(w, r, err)
		return
	}
	s.reload(r.Context())
	writeJSON(w, http.StatusCreated, cfg)
}

func (s *Server) updateConfiguration(w http.ResponseWriter, r *http.Request) {
	var cfg model.AgentConfiguration
	if err := decodeJSON(r, &cfg); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_payload", "invalid JSON body")
		return
	}
	cfg.ID = chi.URLParam(r, "id")
	if err := agentconfig.Validate(&cfg); err != nil {
		writeError(w, r, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}
	if err := s.store.UpdateConfiguration(r.Context(), &cfg); err != nil {
		writeStoreError(w, r, err)
		return
	}
	s.reload(r.Context())
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) deleteConfiguration(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteConfiguration(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, r, err)
		return
	}
	s.reload(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) runConfiguration(w http.ResponseWriter, r *http.Request) {
	wf, err := s.runner.StartConfiguration(r.Context(), chi.URLParam(r, "id"), model.TriggerManual)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, wf)
}
