package server

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/forgebench/infersupervisor/internal/applog"
	"github.com/forgebench/infersupervisor/internal/server/handlers"
)

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", handlers.Health)

	servers := &handlers.ServerHandler{Llama: s.llama, Diffusion: s.diffusion.Supervisor}
	mux.HandleFunc("GET /api/servers/{name}/status", servers.Status)
	mux.HandleFunc("POST /api/servers/{name}/start", servers.Start)
	mux.HandleFunc("POST /api/servers/{name}/stop", servers.Stop)
	mux.HandleFunc("POST /api/servers/{name}/restart", servers.Restart)
	mux.HandleFunc("GET /api/servers/{name}/logs", servers.Logs)

	gen := &handlers.GenerateHandler{Orchestrator: s.orchestrator, Registry: s.registry}
	mux.HandleFunc("POST /api/generate/image", gen.Create)
	mux.HandleFunc("GET /api/generate/{id}", gen.Get)

	orch := &handlers.OrchestratorHandler{Orchestrator: s.orchestrator}
	mux.HandleFunc("GET /api/orchestrator/saved-state", orch.GetSavedState)
	mux.HandleFunc("DELETE /api/orchestrator/saved-state", orch.ClearSavedState)
}

// withLogging tags every request with a correlation id (surfaced both in
// the response header and the log line) so a multi-request sequence like
// start -> generate -> poll can be traced back through the log file.
func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		w.Header().Set("X-Request-Id", requestID)
		applog.Debug().Str("request_id", requestID).Str("method", r.Method).Str("path", r.URL.Path).Msg("request")
		next.ServeHTTP(w, r)
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
