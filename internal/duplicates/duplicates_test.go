package duplicates

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterFlushAndFinish(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, 0.5)
	require.NoError(t, err)

	assert.False(t, w.Done())

	require.NoError(t, w.FlushBatch([]Record{
		{Offset: 1, Matches: []uint64{0, 1}},
		{Offset: 2, Matches: []uint64{0, 2}},
	}))
	require.NoError(t, w.Finish())

	assert.True(t, w.Done())

	stats, err := ReadStats(dir)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalDuplicates)
	assert.Equal(t, 0.5, stats.LSHThreshold)

	_, err = os.Stat(filepath.Join(dir, "duplicates_0000.gob"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "duplicates_smol_0000.gob"))
	assert.NoError(t, err)
}

func TestWriterEmptyBatchIsNoop(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, 0.5)
	require.NoError(t, err)

	require.NoError(t, w.FlushBatch(nil))
	_, err = os.Stat(filepath.Join(dir, "duplicates_0000.gob"))
	assert.True(t, os.IsNotExist(err))
}

func TestReaderSkipsSmolFiles(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, 0.5)
	require.NoError(t, err)

	require.NoError(t, w.FlushBatch([]Record{{Offset: 1, Matches: []uint64{0}}}))
	require.NoError(t, w.FlushBatch([]Record{{Offset: 3, Matches: []uint64{2}}}))

	r, err := NewReader(dir)
	require.NoError(t, err)

	all, err := r.All()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, uint64(1), all[0].Offset)
	assert.Equal(t, uint64(3), all[1].Offset)
}

func TestReadStatsMissingFile(t *testing.T) {
	_, err := ReadStats(t.TempDir())
	assert.Error(t, err)
}
