package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/forgebench/infersupervisor/internal/apierrors"
	"github.com/forgebench/infersupervisor/internal/supervisor"
)

// ServerHandler dispatches the per-server lifecycle and log-tailing routes
// by the {name} path value ("llm" or "diffusion").
type ServerHandler struct {
	Llama     *supervisor.Supervisor
	Diffusion *supervisor.Supervisor
}

func (h *ServerHandler) resolve(name string) (*supervisor.Supervisor, bool) {
	switch name {
	case "llm", "llama":
		return h.Llama, true
	case "diffusion":
		return h.Diffusion, true
	default:
		return nil, false
	}
}

func (h *ServerHandler) Status(w http.ResponseWriter, r *http.Request) {
	sup, ok := h.resolve(r.PathValue("name"))
	if !ok {
		writeError(w, unknownServerError(r.PathValue("name")))
		return
	}
	writeJSON(w, http.StatusOK, sup.Info())
}

func (h *ServerHandler) Start(w http.ResponseWriter, r *http.Request) {
	sup, ok := h.resolve(r.PathValue("name"))
	if !ok {
		writeError(w, unknownServerError(r.PathValue("name")))
		return
	}

	var cfg supervisor.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, apierrors.Wrap(apierrors.CodeServerError, "decode start request body", err))
		return
	}

	info, err := sup.Start(r.Context(), cfg)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *ServerHandler) Stop(w http.ResponseWriter, r *http.Request) {
	sup, ok := h.resolve(r.PathValue("name"))
	if !ok {
		writeError(w, unknownServerError(r.PathValue("name")))
		return
	}
	if err := sup.Stop(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sup.Info())
}

func (h *ServerHandler) Restart(w http.ResponseWriter, r *http.Request) {
	sup, ok := h.resolve(r.PathValue("name"))
	if !ok {
		writeError(w, unknownServerError(r.PathValue("name")))
		return
	}
	info, err := sup.Restart(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *ServerHandler) Logs(w http.ResponseWriter, r *http.Request) {
	sup, ok := h.resolve(r.PathValue("name"))
	if !ok {
		writeError(w, unknownServerError(r.PathValue("name")))
		return
	}

	lines := 200
	if raw := r.URL.Query().Get("lines"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			lines = n
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"lines": sup.GetLogs(lines)})
}

func unknownServerError(name string) error {
	return apierrors.Serverf(apierrors.ReasonUnknownServer, "unknown server %q", name).
		WithSuggestion(`name must be "llm" or "diffusion"`)
}
