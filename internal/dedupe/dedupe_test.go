package dedupe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/textdedupe/textdedupe/internal/duplicates"
	"github.com/textdedupe/textdedupe/internal/lsh"
	"github.com/textdedupe/textdedupe/internal/minhash"
	"github.com/textdedupe/textdedupe/internal/store"
)

func buildIndex(t *testing.T, recs []store.SignatureRecord) *lsh.Index {
	t.Helper()
	idx := lsh.NewIndex(5, 2)
	for _, r := range recs {
		idx.Insert(r.Offset, r.Signature)
	}
	return idx
}

func sig(vals ...uint64) minhash.Signature {
	return minhash.Signature(vals)
}

func TestEngineRunTrivialDuplicate(t *testing.T) {
	s := sig(1, 1, 2, 2, 3, 3, 4, 4, 5, 5)
	recs := []store.SignatureRecord{
		{Offset: 0, Signature: s},
		{Offset: 1, Signature: s},
	}
	idx := buildIndex(t, recs)

	dir := t.TempDir()
	w, err := duplicates.NewWriter(dir, 0.5)
	require.NoError(t, err)

	engine := &Engine{Index: idx, Writer: w, DuplicatesDirectory: dir, MinFreeDiskPercent: 0}

	ch := make(chan store.SignatureRecord, len(recs))
	for _, r := range recs {
		ch <- r
	}
	close(ch)

	stats, err := engine.Run(context.Background(), ch)
	require.NoError(t, err)

	assert.Equal(t, int64(2), stats.DocumentsProcessed)
	assert.Equal(t, int64(1), stats.DuplicatesFound)

	r, err := duplicates.NewReader(dir)
	require.NoError(t, err)
	all, err := r.All()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, uint64(1), all[0].Offset)
	assert.Contains(t, all[0].Matches, uint64(0))
}

func TestEngineRunNoDuplicates(t *testing.T) {
	recs := []store.SignatureRecord{
		{Offset: 0, Signature: sig(1, 1, 2, 2, 3, 3, 4, 4, 5, 5)},
		{Offset: 1, Signature: sig(6, 6, 7, 7, 8, 8, 9, 9, 10, 10)},
	}
	idx := buildIndex(t, recs)

	dir := t.TempDir()
	w, err := duplicates.NewWriter(dir, 0.5)
	require.NoError(t, err)
	engine := &Engine{Index: idx, Writer: w, DuplicatesDirectory: dir}

	ch := make(chan store.SignatureRecord, len(recs))
	for _, r := range recs {
		ch <- r
	}
	close(ch)

	stats, err := engine.Run(context.Background(), ch)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.DuplicatesFound)

	statsFile, err := duplicates.ReadStats(dir)
	require.NoError(t, err)
	assert.Equal(t, int64(0), statsFile.TotalDuplicates)
}

func TestEngineRunTransitiveClusterEmitsTwoRecords(t *testing.T) {
	// A, B, C all share the same band signature (pairwise "similar").
	s := sig(1, 1, 2, 2, 3, 3, 4, 4, 5, 5)
	recs := []store.SignatureRecord{
		{Offset: 0, Signature: s}, // A
		{Offset: 1, Signature: s}, // B
		{Offset: 2, Signature: s}, // C
	}
	idx := buildIndex(t, recs)

	dir := t.TempDir()
	w, err := duplicates.NewWriter(dir, 0.5)
	require.NoError(t, err)
	engine := &Engine{Index: idx, Writer: w, DuplicatesDirectory: dir}

	ch := make(chan store.SignatureRecord, len(recs))
	for _, r := range recs {
		ch <- r
	}
	close(ch)

	stats, err := engine.Run(context.Background(), ch)
	require.NoError(t, err)

	// B matches A (and C, still indexed); C matches A only (B was
	// removed after being recorded). A is never emitted as a duplicate.
	assert.Equal(t, int64(2), stats.DuplicatesFound)

	r, err := duplicates.NewReader(dir)
	require.NoError(t, err)
	all, err := r.All()
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, rec := range all {
		assert.NotEqual(t, uint64(0), rec.Offset, "A must never be emitted as a duplicate")
		assert.Less(t, uint64(0), rec.Offset)
	}
}

func TestEngineRunRejectsOutOfOrderOffsets(t *testing.T) {
	idx := lsh.NewIndex(5, 2)
	dir := t.TempDir()
	w, err := duplicates.NewWriter(dir, 0.5)
	require.NoError(t, err)
	engine := &Engine{Index: idx, Writer: w, DuplicatesDirectory: dir}

	ch := make(chan store.SignatureRecord, 2)
	ch <- store.SignatureRecord{Offset: 5, Signature: sig(1, 1, 2, 2, 3, 3, 4, 4, 5, 5)}
	ch <- store.SignatureRecord{Offset: 3, Signature: sig(1, 1, 2, 2, 3, 3, 4, 4, 5, 5)}
	close(ch)

	_, err = engine.Run(context.Background(), ch)
	assert.Error(t, err)
}
