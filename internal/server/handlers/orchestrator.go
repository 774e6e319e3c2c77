package handlers

import (
	"net/http"

	"github.com/forgebench/infersupervisor/internal/orchestrator"
)

// OrchestratorHandler exposes the pending eviction snapshot, if any, so an
// operator can inspect or clear it without restarting the process.
type OrchestratorHandler struct {
	Orchestrator *orchestrator.Orchestrator
}

func (h *OrchestratorHandler) GetSavedState(w http.ResponseWriter, r *http.Request) {
	saved := h.Orchestrator.GetSavedState()
	if saved == nil {
		writeJSON(w, http.StatusOK, map[string]any{"saved": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"saved": true, "state": saved})
}

func (h *OrchestratorHandler) ClearSavedState(w http.ResponseWriter, r *http.Request) {
	h.Orchestrator.ClearSavedState()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}
