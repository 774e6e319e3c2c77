package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/forgebench/infersupervisor/internal/supervisor"
)

const spillKeyPrefix = "generation:"

// Spill mirrors terminal GenerationState entries (result metadata only,
// never the image bytes) into an embedded Badger store, where Lookup can
// still read a recently finished job after it has been reaped or after a
// restart, per SPEC_FULL §3's durable-spill note. The HTTP control API
// reads only the in-memory Registry, not the spill. It is a cache, not a queue:
// the in-memory Registry remains the source of truth while an entry is
// pending or running.
type Spill struct {
	db *badger.DB
}

// OpenSpill opens (creating if necessary) a Badger store at dir.
func OpenSpill(dir string) (*Spill, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open generation spill store: %w", err)
	}
	return &Spill{db: db}, nil
}

// Close releases the underlying Badger store.
func (s *Spill) Close() error {
	return s.db.Close()
}

// spilledState is GenerationState's durable projection: the image bytes
// are dropped, keeping the spill small and avoiding a second copy of
// data the original result already persisted to disk, if it chose to.
type spilledState struct {
	ID        string                                `json:"id"`
	Status    Status                                `json:"status"`
	CreatedAt string                                `json:"created_at"`
	UpdatedAt string                                `json:"updated_at"`
	Error     string                                `json:"error,omitempty"`
	Seed      int64                                 `json:"seed,omitempty"`
	Format    string                                `json:"format,omitempty"`
	Width     int                                   `json:"width,omitempty"`
	Height    int                                   `json:"height,omitempty"`
}

// Mirror writes a terminal entry's metadata into the spill store.
func (s *Spill) Mirror(e GenerationState) error {
	rec := spilledState{
		ID:        e.ID,
		Status:    e.Status,
		CreatedAt: e.CreatedAt.Format("2006-01-02T15:04:05.000Z07:00"),
		UpdatedAt: e.UpdatedAt.Format("2006-01-02T15:04:05.000Z07:00"),
		Error:     e.Error,
	}
	if e.Result != nil {
		rec.Seed = e.Result.Seed
		rec.Format = e.Result.Format
		rec.Width = e.Result.Width
		rec.Height = e.Result.Height
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal spilled generation: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(spillKeyPrefix+e.ID), data)
	})
}

// Lookup returns a spilled entry's metadata by id.
func (s *Spill) Lookup(id string) (GenerationState, bool, error) {
	var rec spilledState

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(spillKeyPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return errSpillMiss
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, errSpillMiss) {
		return GenerationState{}, false, nil
	}
	if err != nil {
		return GenerationState{}, false, fmt.Errorf("lookup spilled generation %q: %w", id, err)
	}

	state := GenerationState{ID: rec.ID, Status: rec.Status, Error: rec.Error}
	state.CreatedAt, _ = time.Parse("2006-01-02T15:04:05.000Z07:00", rec.CreatedAt)
	state.UpdatedAt, _ = time.Parse("2006-01-02T15:04:05.000Z07:00", rec.UpdatedAt)
	if rec.Seed != 0 || rec.Format != "" || rec.Width != 0 || rec.Height != 0 {
		state.Result = &supervisor.ImageGenerationResult{Seed: rec.Seed, Format: rec.Format, Width: rec.Width, Height: rec.Height}
	}
	return state, true, nil
}

var errSpillMiss = errors.New("spill: key not found")
