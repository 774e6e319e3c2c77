// Package modelstore is a concrete, file-system-backed implementation of
// supervisor.ModelResolver, adapted from the teacher's models.Store (which
// only ever resolved .gguf files for one server). This one resolves either
// a .gguf (llama) or a .safetensors (diffusion) file by model id, which is
// enough to exercise the ResourceOrchestrator's modelFileSize lookups
// end-to-end without the full model-download collaborator spec.md marks
// out of scope.
package modelstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/forgebench/infersupervisor/internal/supervisor"
)

var extensions = []string{".gguf", ".safetensors"}

// Entry is one model file discovered under a Store's directory.
type Entry struct {
	Name       string
	Path       string
	SizeBytes  int64
	ModifiedAt int64
}

// Store resolves model ids against files in dir.
type Store struct {
	dir string
}

// New creates a Store rooted at dir.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// List returns every recognized model file under the store's directory.
func (s *Store) List() []Entry {
	var entries []Entry

	_ = filepath.Walk(s.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() {
			return nil
		}
		if !hasRecognizedExtension(info.Name()) {
			return nil
		}
		entries = append(entries, Entry{
			Name:       strings.TrimSuffix(info.Name(), filepath.Ext(info.Name())),
			Path:       path,
			SizeBytes:  info.Size(),
			ModifiedAt: info.ModTime().Unix(),
		})
		return nil
	})

	return entries
}

func hasRecognizedExtension(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range extensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// Resolve satisfies supervisor.ModelResolver: it locates modelID's on-disk
// path and size, trying an exact path, then each recognized extension
// inside the store directory, then a case-insensitive partial match
// against the directory listing.
func (s *Store) Resolve(ctx context.Context, modelID string) (string, int64, error) {
	if filepath.IsAbs(modelID) {
		if info, err := os.Stat(modelID); err == nil {
			return modelID, info.Size(), nil
		}
	}

	candidate := filepath.Join(s.dir, modelID)
	if info, err := os.Stat(candidate); err == nil {
		return candidate, info.Size(), nil
	}
	for _, ext := range extensions {
		withExt := candidate + ext
		if info, err := os.Stat(withExt); err == nil {
			return withExt, info.Size(), nil
		}
	}

	for _, e := range s.List() {
		if strings.EqualFold(e.Name, modelID) || strings.Contains(strings.ToLower(e.Name), strings.ToLower(modelID)) {
			return e.Path, e.SizeBytes, nil
		}
	}

	return "", 0, supervisor.ModelNotFoundError(modelID)
}
