// Package registry implements the in-memory GenerationRegistry of spec
// §4.5: a table of image-generation jobs keyed by generation id, with
// TTL-based reaping of terminal entries and an optional Badger-backed
// spill that keeps a recently finished job's metadata readable through
// Spill.Lookup after reaping or a restart.
package registry

import (
	"time"

	"github.com/forgebench/infersupervisor/internal/supervisor"
)

// Status is a GenerationState's lifecycle position.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusError    Status = "error"
)

// IsTerminal reports whether s is a status the reaper is allowed to evict.
func (s Status) IsTerminal() bool {
	return s == StatusComplete || s == StatusError
}

// GenerationState is one row of the registry.
type GenerationState struct {
	ID        string
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
	Config    supervisor.ImageGenerationConfig
	Result    *supervisor.ImageGenerationResult
	Error     string
}

// Delta is a partial update applied via Update; nil fields are left
// untouched.
type Delta struct {
	Status *Status
	Result *supervisor.ImageGenerationResult
	Error  *string
}
