package modelcatalog

import (
	"context"
	"testing"

	"github.com/forgebench/infersupervisor/internal/modelstore"
)

func TestPutThenGetRoundTrips(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	m := Metadata{ModelID: "qwen-7b", LayerCount: 28, ContextLen: 8192, Architecture: "qwen2", SizeBytes: 4_000_000_000}
	if err := c.Put(context.Background(), m); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok := c.Get("qwen-7b")
	if !ok {
		t.Fatal("expected entry to exist")
	}
	if got != m {
		t.Fatalf("got = %+v, want %+v", got, m)
	}
}

func TestGetUnknownModelReturnsFalse(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := c.Get("nope"); ok {
		t.Fatal("expected false for unknown model")
	}
}

func TestLayerCountFallsBackWhenUnknown(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := c.LayerCount("unknown-model", 32); got != 32 {
		t.Fatalf("LayerCount = %d, want fallback 32", got)
	}
}

func TestLayerCountPrefersKnownValue(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.Put(context.Background(), Metadata{ModelID: "m1", LayerCount: 40})
	if got := c.LayerCount("m1", 32); got != 40 {
		t.Fatalf("LayerCount = %d, want 40", got)
	}
}

func TestSeedFromStorePopulatesEntriesAndIndex(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	entries := []modelstore.Entry{
		{Name: "model-a.gguf", SizeBytes: 1000},
		{Name: "model-b.safetensors", SizeBytes: 2000},
	}
	if err := c.SeedFromStore(context.Background(), entries); err != nil {
		t.Fatalf("SeedFromStore: %v", err)
	}

	got, ok := c.Get("model-a.gguf")
	if !ok {
		t.Fatal("expected model-a.gguf to be seeded")
	}
	if got.Architecture != "gguf" || got.SizeBytes != 1000 {
		t.Fatalf("got = %+v", got)
	}

	ids, err := c.SimilarArchitectures(context.Background(), "gguf", 5)
	if err != nil {
		t.Fatalf("SimilarArchitectures: %v", err)
	}
	if len(ids) == 0 {
		t.Fatal("expected at least one indexed document after seeding")
	}
}

func TestPersistentCatalogOpensWithoutError(t *testing.T) {
	c, err := NewPersistent(t.TempDir())
	if err != nil {
		t.Fatalf("NewPersistent: %v", err)
	}
	if err := c.Put(context.Background(), Metadata{ModelID: "m2", LayerCount: 32}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if got, ok := c.Get("m2"); !ok || got.LayerCount != 32 {
		t.Fatalf("got = %+v, ok = %v", got, ok)
	}
}
