package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/forgebench/infersupervisor/internal/apierrors"
	"github.com/forgebench/infersupervisor/internal/applog"
	"github.com/forgebench/infersupervisor/internal/orchestrator"
	"github.com/forgebench/infersupervisor/internal/registry"
	"github.com/forgebench/infersupervisor/internal/supervisor"
)

// GenerateHandler serves the image generation job API: a request creates a
// pending registry entry and kicks off the orchestrated generation in the
// background, so the caller can poll /api/generate/{id} for progress rather
// than holding a connection open across an eviction-and-restore cycle.
type GenerateHandler struct {
	Orchestrator *orchestrator.Orchestrator
	Registry     *registry.Registry
}

func (h *GenerateHandler) Create(w http.ResponseWriter, r *http.Request) {
	var cfg supervisor.ImageGenerationConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, apierrors.Wrap(apierrors.CodeServerError, "decode generate request body", err))
		return
	}
	if err := cfg.Validate(); err != nil {
		writeError(w, err)
		return
	}

	id := h.Registry.Create(cfg)
	go h.run(id, cfg)

	writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": string(registry.StatusPending)})
}

func (h *GenerateHandler) run(id string, cfg supervisor.ImageGenerationConfig) {
	running := registry.StatusRunning
	h.Registry.Update(id, registry.Delta{Status: &running})

	result, err := h.Orchestrator.OrchestrateImageGeneration(context.Background(), cfg)
	if err != nil {
		applog.Error().Err(err).Str("generation_id", id).Msg("image generation failed")
		failed := registry.StatusError
		msg := err.Error()
		h.Registry.Update(id, registry.Delta{Status: &failed, Error: &msg})
		return
	}

	complete := registry.StatusComplete
	h.Registry.Update(id, registry.Delta{Status: &complete, Result: &result})
}

func (h *GenerateHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	state, ok := h.Registry.Get(id)
	if !ok {
		writeError(w, apierrors.Serverf(apierrors.ReasonUnknownGeneration, "generation %q not found", id))
		return
	}
	writeJSON(w, http.StatusOK, state)
}
