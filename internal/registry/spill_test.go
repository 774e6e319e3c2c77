package registry

import (
	"testing"
	"time"

	"github.com/forgebench/infersupervisor/internal/supervisor"
)

func newTestSpill(t *testing.T) *Spill {
	t.Helper()
	s, err := OpenSpill(t.TempDir())
	if err != nil {
		t.Fatalf("OpenSpill: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSpillMirrorAndLookupRoundTrip(t *testing.T) {
	s := newTestSpill(t)

	entry := GenerationState{
		ID:        "gen_1_abcdefghi",
		Status:    StatusComplete,
		CreatedAt: time.Now().Add(-time.Minute),
		UpdatedAt: time.Now(),
		Result:    &supervisor.ImageGenerationResult{Seed: 7, Format: "png", Width: 512, Height: 512},
	}
	if err := s.Mirror(entry); err != nil {
		t.Fatalf("Mirror: %v", err)
	}

	got, ok, err := s.Lookup(entry.ID)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !ok {
		t.Fatal("expected entry to be found")
	}
	if got.Status != StatusComplete {
		t.Fatalf("status = %v, want complete", got.Status)
	}
}

func TestSpillLookupMissReturnsFalseNotError(t *testing.T) {
	s := newTestSpill(t)

	_, ok, err := s.Lookup("gen_0_000000000")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if ok {
		t.Fatal("expected a miss")
	}
}

func TestRegistryReaperMirrorsToSpillBeforeEviction(t *testing.T) {
	spill := newTestSpill(t)
	r := New(Options{CleanupInterval: 15 * time.Millisecond, MaxResultAge: 20 * time.Millisecond, Spill: spill})
	defer r.Destroy()

	id := r.Create(supervisor.ImageGenerationConfig{Prompt: "spill me"})
	complete := StatusComplete
	r.Update(id, Delta{Status: &complete, Result: &supervisor.ImageGenerationResult{Seed: 99}})

	time.Sleep(100 * time.Millisecond)

	if _, ok := r.Get(id); ok {
		t.Fatal("expected the in-memory entry to be reaped")
	}

	got, ok, err := spill.Lookup(id)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !ok {
		t.Fatal("expected the reaped entry to have been mirrored to the spill store")
	}
	if got.Status != StatusComplete {
		t.Fatalf("status = %v, want complete", got.Status)
	}
}
