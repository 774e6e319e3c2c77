package registry

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/forgebench/infersupervisor/internal/applog"
	"github.com/forgebench/infersupervisor/internal/supervisor"
)

const (
	DefaultCleanupInterval = 60 * time.Second
	DefaultMaxResultAge    = 5 * time.Minute
)

// Options tunes the reaper's cadence and retention window.
type Options struct {
	CleanupInterval time.Duration
	MaxResultAge    time.Duration
	Spill           *Spill // optional durable mirror for terminal entries, see spill.go
}

func (o Options) withDefaults() Options {
	if o.CleanupInterval <= 0 {
		o.CleanupInterval = DefaultCleanupInterval
	}
	if o.MaxResultAge <= 0 {
		o.MaxResultAge = DefaultMaxResultAge
	}
	return o
}

// Registry is the thread-safe generationId -> GenerationState table.
type Registry struct {
	opts Options

	mu      sync.Mutex
	entries map[string]*GenerationState

	stopReaper chan struct{}
	reaperDone chan struct{}
}

// New constructs a Registry and starts its background reaper.
func New(opts Options) *Registry {
	r := &Registry{
		opts:       opts.withDefaults(),
		entries:    make(map[string]*GenerationState),
		stopReaper: make(chan struct{}),
		reaperDone: make(chan struct{}),
	}
	go r.reap()
	return r
}

// Create inserts a new pending entry and returns its id.
func (r *Registry) Create(cfg supervisor.ImageGenerationConfig) string {
	now := time.Now()
	id := generateID(now)

	r.mu.Lock()
	r.entries[id] = &GenerationState{
		ID:        id,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
		Config:    cfg,
	}
	r.mu.Unlock()

	return id
}

// Get returns a copy of the entry for id, or false if unknown (including
// entries that have already been reaped).
func (r *Registry) Get(id string) (GenerationState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return GenerationState{}, false
	}
	return *e, true
}

// Update merges delta into the entry for id and bumps updatedAt; a
// reference to an unknown id is a silent no-op (§4.5).
func (r *Registry) Update(id string, delta Delta) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return
	}
	if delta.Status != nil {
		e.Status = *delta.Status
	}
	if delta.Result != nil {
		e.Result = delta.Result
	}
	if delta.Error != nil {
		e.Error = *delta.Error
	}
	e.UpdatedAt = time.Now()
}

// Delete removes an entry, regardless of its status.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	delete(r.entries, id)
	r.mu.Unlock()
}

// Size returns the current entry count.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Clear removes every entry.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.entries = make(map[string]*GenerationState)
	r.mu.Unlock()
}

// Destroy stops the reaper. Safe to call once; the Registry must not be
// used afterward.
func (r *Registry) Destroy() {
	close(r.stopReaper)
	<-r.reaperDone
}

// reap runs every CleanupInterval and evicts terminal entries older than
// MaxResultAge (§4.5: "pending and running are never reaped").
func (r *Registry) reap() {
	defer close(r.reaperDone)

	ticker := time.NewTicker(r.opts.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopReaper:
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

func (r *Registry) sweep() {
	now := time.Now()

	r.mu.Lock()
	var evicted []*GenerationState
	for id, e := range r.entries {
		if !e.Status.IsTerminal() {
			continue
		}
		if now.Sub(e.UpdatedAt) <= r.opts.MaxResultAge {
			continue
		}
		if r.opts.Spill != nil {
			if err := r.opts.Spill.Mirror(*e); err != nil {
				applog.Warn().Err(err).Str("generation_id", e.ID).Msg("failed to spill generation before reaping")
			}
		}
		evicted = append(evicted, e)
		delete(r.entries, id)
	}
	r.mu.Unlock()

	if len(evicted) == 0 {
		return
	}

	applog.Info().Int("count", len(evicted)).Msg("reaped terminal generations")
}

// generateID produces the gen_{epoch_ms}_{9-char base36} format of §4.5.
func generateID(at time.Time) string {
	return fmt.Sprintf("gen_%d_%s", at.UnixMilli(), randomBase36(9))
}

const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

func randomBase36(n int) string {
	out := make([]byte, n)
	max := big.NewInt(int64(len(base36Alphabet)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand failing is unrecoverable on any real platform;
			// fall back to a clock-derived digit rather than panic.
			out[i] = base36Alphabet[time.Now().UnixNano()%int64(len(base36Alphabet))]
			continue
		}
		out[i] = base36Alphabet[idx.Int64()]
	}
	return string(out)
}
