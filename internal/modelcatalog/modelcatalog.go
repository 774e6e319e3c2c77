// Package modelcatalog is the cache half of the out-of-scope ModelCatalog
// collaborator (spec.md §9: "read per-model layer count from the GGUF
// metadata collaborator when available; fall back to 32 only when
// unknown"). It does not parse GGUF files itself — that's the
// collaborator's job — it just remembers what was parsed, keyed by model
// id, in the teacher's ChromemStore idiom (an authoritative in-memory map
// mirrored into a chromem-go collection so the catalog is also
// semantically searchable, e.g. "models quantized like X").
package modelcatalog

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/philippgille/chromem-go"

	"github.com/forgebench/infersupervisor/internal/modelstore"
)

// Metadata is what the catalog remembers about one model file.
type Metadata struct {
	ModelID      string
	LayerCount   int
	ContextLen   int
	Architecture string
	SizeBytes    int64
	Quantization string
}

// Catalog is an embedded, queryable cache of Metadata records.
type Catalog struct {
	collection *chromem.Collection

	mu      sync.RWMutex
	entries map[string]Metadata
}

// identityEmbed is a placeholder embedding function: the catalog's
// similarity search operates over a short synthetic description string
// (architecture + quantization), not free text, so a fixed-width hash
// embedding is enough to make chromem-go's cosine search meaningful
// without pulling in a real embedding model.
func identityEmbed(ctx context.Context, text string) ([]float32, error) {
	const dims = 32
	vec := make([]float32, dims)
	for i, r := range text {
		vec[i%dims] += float32(r)
	}
	return vec, nil
}

// New creates an in-memory Catalog.
func New() (*Catalog, error) {
	db := chromem.NewDB()
	col, err := db.GetOrCreateCollection("model-metadata", nil, chromem.EmbeddingFunc(identityEmbed))
	if err != nil {
		return nil, fmt.Errorf("create model metadata collection: %w", err)
	}
	return &Catalog{collection: col, entries: make(map[string]Metadata)}, nil
}

// NewPersistent creates a Catalog backed by an on-disk chromem-go database
// at dir, so the metadata collection persists across restarts. Get and
// LayerCount read the in-memory map, which starts empty on every open and
// is not reloaded from the persisted collection.
func NewPersistent(dir string) (*Catalog, error) {
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("open persistent model metadata DB: %w", err)
	}
	col, err := db.GetOrCreateCollection("model-metadata", nil, chromem.EmbeddingFunc(identityEmbed))
	if err != nil {
		return nil, fmt.Errorf("create model metadata collection: %w", err)
	}
	return &Catalog{collection: col, entries: make(map[string]Metadata)}, nil
}

// Put records (or overwrites) a model's metadata.
func (c *Catalog) Put(ctx context.Context, m Metadata) error {
	doc := chromem.Document{
		ID:      m.ModelID,
		Content: fmt.Sprintf("%s %s", m.Architecture, m.Quantization),
		Metadata: map[string]string{
			"layer_count":  strconv.Itoa(m.LayerCount),
			"context_len":  strconv.Itoa(m.ContextLen),
			"architecture": m.Architecture,
			"quantization": m.Quantization,
			"size_bytes":   strconv.FormatInt(m.SizeBytes, 10),
		},
	}
	if err := c.collection.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("index model metadata: %w", err)
	}

	c.mu.Lock()
	c.entries[m.ModelID] = m
	c.mu.Unlock()
	return nil
}

// SeedFromStore records one coarse Metadata entry per file a modelstore.Store
// already knows about (file extension as a stand-in "architecture" tag, size
// from disk), so the catalog — and its chromem-go collection — hold real
// documents at boot instead of staying empty until a GGUF-parsing
// collaborator (out of scope) populates it. LayerCount is left at 0, so
// LayerCount lookups still fall back until that collaborator exists; this
// only seeds what's knowable without parsing the file.
func (c *Catalog) SeedFromStore(ctx context.Context, entries []modelstore.Entry) error {
	for _, e := range entries {
		src := e.Path
		if src == "" {
			src = e.Name
		}
		arch := strings.TrimPrefix(filepath.Ext(src), ".")
		if err := c.Put(ctx, Metadata{
			ModelID:      e.Name,
			Architecture: arch,
			SizeBytes:    e.SizeBytes,
		}); err != nil {
			return fmt.Errorf("seed %s: %w", e.Name, err)
		}
	}
	return nil
}

// Get returns the cached metadata for a model id, if any.
func (c *Catalog) Get(modelID string) (Metadata, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.entries[modelID]
	return m, ok
}

// LayerCount returns the model's known layer count, or fallback (spec.md
// §9's "32" constant) when the model has never been Put.
func (c *Catalog) LayerCount(modelID string, fallback int) int {
	if m, ok := c.Get(modelID); ok && m.LayerCount > 0 {
		return m.LayerCount
	}
	return fallback
}

// SimilarArchitectures returns up to limit model ids whose
// architecture/quantization description is closest to query's, e.g. for an
// operator comparing offload behavior across similarly-shaped models.
func (c *Catalog) SimilarArchitectures(ctx context.Context, query string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 5
	}
	count := c.collection.Count()
	if count == 0 {
		return nil, nil
	}
	if limit > count {
		limit = count
	}

	results, err := c.collection.Query(ctx, query, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query model metadata: %w", err)
	}

	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	return ids, nil
}
