// Package systeminfo specifies the contract for the out-of-scope GPU/CPU/RAM
// probing collaborator (spec.md §1: "GPU/CPU/RAM probing... out of scope").
// ResourceOrchestrator depends only on this interface so its footprint math
// can be tested against a fake without touching the real host.
package systeminfo

// GPU describes the host's graphics accelerator, if any.
type GPU struct {
	Available bool
	VRAMBytes int64
	Type      string // e.g. "cuda", "metal", "rocm"
}

// Memory describes host system RAM.
type Memory struct {
	AvailableBytes int64
	TotalBytes     int64
}

// Snapshot is one point-in-time reading of the host's resources.
type Snapshot struct {
	CPUCores int
	Memory   Memory
	GPU      GPU
}

// Provider supplies a current Snapshot. Implementations probe the real OS;
// tests substitute a StaticProvider.
type Provider interface {
	Snapshot() (Snapshot, error)
}

// StaticProvider returns a fixed Snapshot, for tests and for hosts where no
// live probing collaborator has been wired in yet.
type StaticProvider struct {
	Snap Snapshot
}

func (p StaticProvider) Snapshot() (Snapshot, error) { return p.Snap, nil }
