package api

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

type healthResponse struct {
	Status   string   `json:"status"`
	Database string   `json:"database"`
	Missing  []string `json:"missing,omitempty"`
}

// health returns 503 when a required credential is missing or the database
// does not answer a ping.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Database: "ok", Missing: s.credentials()}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		zap.L().Warn("health check: database unreachable", zap.Error(err))
		resp.Database = "unreachable"
	}

	status := http.StatusOK
	if resp.Database != "ok" || len(resp.Missing) > 0 {
		resp.Status = "unavailable"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
