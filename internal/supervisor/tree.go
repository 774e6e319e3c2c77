package supervisor

import (
	"context"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/forgebench/infersupervisor/internal/applog"
)

// Tree is a Suture root supervisor for the process's own long-running
// background services (the HTTP control API, periodic maintenance loops).
// It deliberately does NOT supervise the LLM/diffusion child processes
// themselves: §4.1 requires that an unexpected child exit land in crashed
// and stay there until an operator or the orchestrator explicitly restarts
// it, which Suture's default auto-restart-on-return would violate. Tree is
// for infrastructure that genuinely should come back on its own — a crashed
// HTTP listener or maintenance goroutine is safe and desirable to restart.
type Tree struct {
	root *suture.Supervisor
}

// NewTree builds a Tree with backoff parameters in the idiom of the pack's
// own Suture usage, logging lifecycle events through applog instead of a
// second logging dependency.
func NewTree() *Tree {
	root := suture.New("supervisord", suture.Spec{
		EventHook:        logEventHook,
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   5 * time.Second,
		Timeout:          10 * time.Second,
	})
	return &Tree{root: root}
}

func logEventHook(ev suture.Event) {
	switch e := ev.(type) {
	case suture.EventServicePanic:
		applog.Error().Str("service", e.ServiceName).Str("panic", e.PanicMsg).Msg("supervised service panicked")
	case suture.EventServiceTerminate:
		applog.Warn().Str("service", e.ServiceName).Err(e.Err).Msg("supervised service terminated")
	case suture.EventBackoff:
		applog.Warn().Msg("supervisor entering backoff: too many failures")
	case suture.EventResume:
		applog.Info().Msg("supervisor resuming normal operation")
	}
}

// ServeFunc adapts any blocking, context-aware function into a
// suture.Service.
type ServeFunc func(ctx context.Context) error

type funcService struct {
	name string
	fn   ServeFunc
}

func (f funcService) Serve(ctx context.Context) error { return f.fn(ctx) }
func (f funcService) String() string                  { return f.name }

// Add registers fn under name and returns its token, so callers can Remove
// it later if the service needs to be torn down independently of the tree.
func (t *Tree) Add(name string, fn ServeFunc) suture.ServiceToken {
	return t.root.Add(funcService{name: name, fn: fn})
}

// Remove stops and removes a previously added service.
func (t *Tree) Remove(token suture.ServiceToken) error {
	return t.root.Remove(token)
}

// Serve runs every registered service and blocks until ctx is cancelled.
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}
