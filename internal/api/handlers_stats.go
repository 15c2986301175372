package api

import (
	"encoding/json"
	"net/http"
)

func (s *Server) handleKeyStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"model": s.cfg.GenerationModel,
		"keys":  s.pool.Stats(),
	})
}
