// Package orchestrator implements ResourceOrchestrator (spec.md §4.6): the
// decision engine that arbitrates scarce RAM/VRAM between the LLM and
// diffusion supervisors, temporarily evicting the LLM when both can't fit.
package orchestrator

import (
	"time"

	"github.com/forgebench/infersupervisor/internal/supervisor"
)

const (
	// GiB is a convenience unit for footprint constants.
	GiB = 1 << 30

	// DefaultTotalLayers is the constant fallback divisor for gpuRatio when
	// no GGUF-derived layer count is available (§9).
	DefaultTotalLayers = 32

	// DefaultHeadroom reserves 25% of capacity for the OS and other
	// collaborators; eviction triggers strictly above this fraction (§4.6).
	DefaultHeadroom = 0.75

	// DefaultMultiplier pads a raw model file size into a footprint
	// estimate, accounting for KV cache and runtime overhead (§4.6).
	DefaultMultiplier = 1.2

	// DefaultDiffusionModelSize is the assumed diffusion model size when
	// the diffusion supervisor has never been started (§4.6).
	DefaultDiffusionModelSize = int64(6.5 * GiB)
)

// Footprint is an estimated resource cost, in bytes.
type Footprint struct {
	RAMBytes  int64
	VRAMBytes int64
}

// SavedLLMState is the config snapshot retained across an eviction so the
// LLM can be restarted identically (§3, §4.6).
type SavedLLMState struct {
	Config     supervisor.Config
	WasRunning bool
	SavedAt    time.Time
}

// Tunables bundles the heuristic constants §9 calls out as tunable, not
// load-bearing for correctness.
type Tunables struct {
	TotalLayers               int
	Headroom                  float64
	Multiplier                float64
	DefaultDiffusionModelSize int64
}

func (t Tunables) withDefaults() Tunables {
	if t.TotalLayers <= 0 {
		t.TotalLayers = DefaultTotalLayers
	}
	if t.Headroom <= 0 {
		t.Headroom = DefaultHeadroom
	}
	if t.Multiplier <= 0 {
		t.Multiplier = DefaultMultiplier
	}
	if t.DefaultDiffusionModelSize <= 0 {
		t.DefaultDiffusionModelSize = DefaultDiffusionModelSize
	}
	return t
}
