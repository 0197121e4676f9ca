package httpapi

import (
	"encoding/json"
	"net/http"
)

// handlePerfLatency reports recent per-stage turn latency quantiles for
// manual inspection alongside the Prometheus metrics.
func (s *Server) handlePerfLatency(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.metrics.TurnStageSnapshot())
}

// handlePerfReset clears the rolling window so a fresh measurement run
// starts from zero samples.
func (s *Server) handlePerfReset(w http.ResponseWriter, _ *http.Request) {
	s.metrics.ResetTurnStages()
	respondJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
