package batch

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "batches.json"))
}

func TestGenerateConcreteScenario(t *testing.T) {
	st := newTestStore(t)

	snap, err := st.Generate([]string{"a", "b", "c", "d", "e"}, 2)
	require.NoError(t, err)

	assert.Equal(t, 2, snap.BatchSize)
	assert.Equal(t, 3, snap.TotalBatches)
	assert.Equal(t, 0, snap.CurrentBatchIndex)
	assert.Equal(t, []string{"a", "b"}, snap.Batches["0"])
	assert.Equal(t, []string{"c", "d"}, snap.Batches["1"])
	assert.Equal(t, []string{"e"}, snap.Batches["2"])
}

func TestGeneratePreservesPopulationOrder(t *testing.T) {
	st := newTestStore(t)

	for _, tc := range []struct {
		population int
		batchSize  int
	}{
		{0, 3}, {1, 3}, {7, 3}, {9, 3}, {10, 1}, {5, 100},
	} {
		pop := make([]string, tc.population)
		for i := range pop {
			pop[i] = fmt.Sprintf("sub-%03d", i)
		}

		snap, err := st.Generate(pop, tc.batchSize)
		require.NoError(t, err)

		wantTotal := (tc.population + tc.batchSize - 1) / tc.batchSize
		assert.Equal(t, wantTotal, snap.TotalBatches)

		// Concatenation in index order reproduces the population exactly.
		got := make([]string, 0, tc.population)
		for i := 0; i < snap.TotalBatches; i++ {
			got = append(got, snap.Batches[fmt.Sprintf("%d", i)]...)
		}
		assert.Equal(t, pop, got, "population %d batch size %d", tc.population, tc.batchSize)
	}
}

func TestGenerateRejectsBadBatchSize(t *testing.T) {
	st := newTestStore(t)

	_, err := st.Generate([]string{"a"}, 0)
	require.Error(t, err)

	_, err = st.Generate([]string{"a"}, -1)
	require.Error(t, err)
}

func TestAdvanceWrapsAround(t *testing.T) {
	st := newTestStore(t)
	snap, err := st.Generate([]string{"a", "b", "c", "d", "e"}, 2)
	require.NoError(t, err)

	snap.Advance()
	assert.Equal(t, 1, snap.CurrentBatchIndex)
	snap.Advance()
	assert.Equal(t, 2, snap.CurrentBatchIndex)
	snap.Advance()
	assert.Equal(t, 0, snap.CurrentBatchIndex, "advancing total_batches times wraps to start")
}

func TestAdvanceEmptySnapshot(t *testing.T) {
	st := newTestStore(t)
	snap, err := st.Generate(nil, 5)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.TotalBatches)

	snap.Advance()
	assert.Equal(t, 0, snap.CurrentBatchIndex)

	keys, err := snap.Current()
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestLoadRoundTrip(t *testing.T) {
	st := newTestStore(t)
	_, err := st.Generate([]string{"a", "b", "c"}, 2)
	require.NoError(t, err)

	snap, err := st.Load()
	require.NoError(t, err)
	assert.Equal(t, 2, snap.TotalBatches)

	keys, err := snap.Current()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)

	// Persist an advanced cursor and read it back.
	snap.Advance()
	require.NoError(t, st.Save(snap))

	again, err := st.Load()
	require.NoError(t, err)
	assert.Equal(t, 1, again.CurrentBatchIndex)
}

func TestLoadMissingFile(t *testing.T) {
	st := newTestStore(t)
	assert.False(t, st.Exists())

	_, err := st.Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingFile))
}

func TestLoadCorruptFile(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, os.WriteFile(st.Path(), []byte("{not json"), 0o644))

	_, err := st.Load()
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrMissingFile))
}

func TestCurrentInvalidCursor(t *testing.T) {
	snap := &Snapshot{
		BatchSize:         2,
		TotalBatches:      2,
		Batches:           map[string][]string{"0": {"a"}},
		CurrentBatchIndex: 1,
	}

	_, err := snap.Current()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidCursor))
}

func TestResetCursor(t *testing.T) {
	st := newTestStore(t)
	snap, err := st.Generate([]string{"a", "b", "c", "d"}, 2)
	require.NoError(t, err)

	snap.CurrentBatchIndex = 1
	require.NoError(t, st.ResetCursor(snap))
	assert.Equal(t, 0, snap.CurrentBatchIndex)

	again, err := st.Load()
	require.NoError(t, err)
	assert.Equal(t, 0, again.CurrentBatchIndex)
}

func TestSaveFileStaysValidJSON(t *testing.T) {
	st := newTestStore(t)
	snap, err := st.Generate([]string{"a", "b", "c"}, 1)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		snap.Advance()
		require.NoError(t, st.Save(snap))

		data, err := os.ReadFile(st.Path())
		require.NoError(t, err)
		assert.True(t, json.Valid(data))
	}
}
