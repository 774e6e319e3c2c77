package registry

import (
	"strings"
	"testing"
	"time"

	"github.com/forgebench/infersupervisor/internal/supervisor"
)

func newTestRegistry() *Registry {
	return New(Options{CleanupInterval: time.Hour, MaxResultAge: time.Hour})
}

func TestCreateAssignsIDWithExpectedFormat(t *testing.T) {
	r := newTestRegistry()
	defer r.Destroy()

	id := r.Create(supervisor.ImageGenerationConfig{Prompt: "a cat"})
	if !strings.HasPrefix(id, "gen_") {
		t.Fatalf("id = %q, want gen_ prefix", id)
	}
	parts := strings.Split(id, "_")
	if len(parts) != 3 {
		t.Fatalf("id = %q, want 3 underscore-delimited parts", id)
	}
	if len(parts[2]) != 9 {
		t.Fatalf("random suffix = %q, want length 9", parts[2])
	}
}

func TestGetReturnsConfigUnchanged(t *testing.T) {
	r := newTestRegistry()
	defer r.Destroy()

	cfg := supervisor.ImageGenerationConfig{Prompt: "a dog", Width: 512, Height: 512, Steps: 20}
	id := r.Create(cfg)

	got, ok := r.Get(id)
	if !ok {
		t.Fatal("expected entry to exist")
	}
	if got.Config != cfg {
		t.Fatalf("config = %+v, want %+v", got.Config, cfg)
	}
	if got.Status != StatusPending {
		t.Fatalf("status = %v, want pending", got.Status)
	}
	if !got.CreatedAt.Equal(got.UpdatedAt) {
		t.Fatal("createdAt and updatedAt should match on creation")
	}
}

func TestGetUnknownIDReturnsFalse(t *testing.T) {
	r := newTestRegistry()
	defer r.Destroy()

	_, ok := r.Get("gen_0_000000000")
	if ok {
		t.Fatal("expected false for unknown id")
	}
}

func TestUpdateMergesDeltaAndBumpsUpdatedAt(t *testing.T) {
	r := newTestRegistry()
	defer r.Destroy()

	id := r.Create(supervisor.ImageGenerationConfig{Prompt: "x"})
	before, _ := r.Get(id)

	time.Sleep(5 * time.Millisecond)
	running := StatusRunning
	r.Update(id, Delta{Status: &running})

	after, _ := r.Get(id)
	if after.Status != StatusRunning {
		t.Fatalf("status = %v, want running", after.Status)
	}
	if !after.UpdatedAt.After(before.UpdatedAt) {
		t.Fatal("expected updatedAt to advance")
	}
}

func TestUpdateUnknownIDIsNoOp(t *testing.T) {
	r := newTestRegistry()
	defer r.Destroy()

	running := StatusRunning
	r.Update("gen_nonexistent_000000000", Delta{Status: &running})
	if r.Size() != 0 {
		t.Fatalf("size = %d, want 0", r.Size())
	}
}

func TestDeleteRemovesEntry(t *testing.T) {
	r := newTestRegistry()
	defer r.Destroy()

	id := r.Create(supervisor.ImageGenerationConfig{Prompt: "x"})
	r.Delete(id)

	if _, ok := r.Get(id); ok {
		t.Fatal("expected entry to be gone")
	}
}

func TestSizeAndClear(t *testing.T) {
	r := newTestRegistry()
	defer r.Destroy()

	r.Create(supervisor.ImageGenerationConfig{Prompt: "a"})
	r.Create(supervisor.ImageGenerationConfig{Prompt: "b"})
	if r.Size() != 2 {
		t.Fatalf("size = %d, want 2", r.Size())
	}

	r.Clear()
	if r.Size() != 0 {
		t.Fatalf("size after clear = %d, want 0", r.Size())
	}
}

func TestReaperEvictsOldTerminalEntriesOnly(t *testing.T) {
	r := New(Options{CleanupInterval: 20 * time.Millisecond, MaxResultAge: 30 * time.Millisecond})
	defer r.Destroy()

	completeID := r.Create(supervisor.ImageGenerationConfig{Prompt: "done"})
	complete := StatusComplete
	r.Update(completeID, Delta{Status: &complete})

	pendingID := r.Create(supervisor.ImageGenerationConfig{Prompt: "pending"})

	time.Sleep(120 * time.Millisecond)

	if _, ok := r.Get(completeID); ok {
		t.Fatal("expected the old complete entry to be reaped")
	}
	if _, ok := r.Get(pendingID); !ok {
		t.Fatal("pending entries must never be reaped")
	}
}

func TestReaperLeavesFreshTerminalEntries(t *testing.T) {
	r := New(Options{CleanupInterval: 10 * time.Millisecond, MaxResultAge: time.Hour})
	defer r.Destroy()

	id := r.Create(supervisor.ImageGenerationConfig{Prompt: "fresh"})
	complete := StatusComplete
	r.Update(id, Delta{Status: &complete})

	time.Sleep(50 * time.Millisecond)

	if _, ok := r.Get(id); !ok {
		t.Fatal("fresh terminal entry should not be reaped yet")
	}
}

func TestDestroyStopsReaperCleanly(t *testing.T) {
	r := newTestRegistry()
	r.Destroy()
	// A second Destroy would panic closing an already-closed channel; this
	// test only asserts the first call returns promptly.
}
