// Package batch persists the partition of the subreddit population into
// numbered batches plus the cursor that rotates through them.
package batch

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrMissingFile is returned by Load when no snapshot exists. The caller
// is responsible for generating one first.
var ErrMissingFile = eris.New("batch: snapshot file does not exist")

// ErrInvalidCursor is returned when the cursor points at a batch index
// absent from the snapshot (corrupted file or shrunk population).
var ErrInvalidCursor = eris.New("batch: cursor points at a missing batch")

// Snapshot is the durable partition of the population. Batch keys are
// stringified integer indexes to keep the JSON file human-inspectable
// and stable across readers.
type Snapshot struct {
	BatchSize         int                 `json:"batch_size"`
	TotalBatches      int                 `json:"total_batches"`
	Batches           map[string][]string `json:"batches"`
	CurrentBatchIndex int                 `json:"current_batch_index"`
}

// Current returns the batch at the cursor. An empty snapshot has no
// batches to point at; its current batch is empty, not invalid.
func (s *Snapshot) Current() ([]string, error) {
	if s.TotalBatches == 0 {
		return nil, nil
	}
	keys, ok := s.Batches[strconv.Itoa(s.CurrentBatchIndex)]
	if !ok {
		return nil, eris.Wrapf(ErrInvalidCursor, "batch: index %d of %d", s.CurrentBatchIndex, s.TotalBatches)
	}
	return keys, nil
}

// Advance moves the cursor to the next batch, wrapping modulo
// TotalBatches. It is a no-op on an empty snapshot.
func (s *Snapshot) Advance() {
	if s.TotalBatches == 0 {
		return
	}
	s.CurrentBatchIndex = (s.CurrentBatchIndex + 1) % s.TotalBatches
}

// Store reads and writes one pipeline's snapshot file.
type Store struct {
	path string
}

// NewStore creates a Store for the snapshot at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the snapshot file path.
func (st *Store) Path() string {
	return st.path
}

// Exists reports whether a snapshot file is present.
func (st *Store) Exists() bool {
	_, err := os.Stat(st.path)
	return err == nil
}

// Generate partitions the population into contiguous chunks of
// batchSize in population order, resets the cursor to zero and persists
// the result. Generation replaces any previous snapshot and cursor, so
// callers only invoke it when no snapshot exists or on explicit
// operator action.
func (st *Store) Generate(population []string, batchSize int) (*Snapshot, error) {
	if batchSize <= 0 {
		return nil, eris.Errorf("batch: batch size must be positive, got %d", batchSize)
	}

	total := (len(population) + batchSize - 1) / batchSize
	batches := make(map[string][]string, total)
	for i := 0; i < total; i++ {
		start := i * batchSize
		end := start + batchSize
		if end > len(population) {
			end = len(population)
		}
		batches[strconv.Itoa(i)] = population[start:end]
	}

	snap := &Snapshot{
		BatchSize:         batchSize,
		TotalBatches:      total,
		Batches:           batches,
		CurrentBatchIndex: 0,
	}
	if err := st.Save(snap); err != nil {
		return nil, err
	}

	zap.L().Info("generated batch snapshot",
		zap.String("path", st.path),
		zap.Int("population", len(population)),
		zap.Int("batch_size", batchSize),
		zap.Int("total_batches", total),
	)
	return snap, nil
}

// Load reads the snapshot from disk.
func (st *Store) Load() (*Snapshot, error) {
	data, err := os.ReadFile(st.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, eris.Wrapf(ErrMissingFile, "batch: %s", st.path)
		}
		return nil, eris.Wrapf(err, "batch: read %s", st.path)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, eris.Wrapf(err, "batch: parse %s", st.path)
	}
	return &snap, nil
}

// Save writes the snapshot atomically: the file always holds valid JSON
// even if the process dies mid-write.
func (st *Store) Save(snap *Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(st.path), 0o755); err != nil {
		return eris.Wrapf(err, "batch: create dir for %s", st.path)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return eris.Wrap(err, "batch: marshal snapshot")
	}

	tmp := st.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return eris.Wrapf(err, "batch: write %s", tmp)
	}
	if err := os.Rename(tmp, st.path); err != nil {
		return eris.Wrapf(err, "batch: rename %s", st.path)
	}
	return nil
}

// ResetCursor sets the cursor back to zero and persists the snapshot.
// Used to restart the cycle when the cursor turns out invalid.
func (st *Store) ResetCursor(snap *Snapshot) error {
	snap.CurrentBatchIndex = 0
	return st.Save(snap)
}
