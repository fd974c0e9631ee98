package corpus

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func writeZstdFile(t *testing.T, dir, name, content string) {
	t.Helper()
	var buf bytes.Buffer
	w, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	_, err = w.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), buf.Bytes(), 0o644))
}

func TestYieldReadsPlainShard(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "00.jsonl", `{"text":"hello world"}`+"\n"+`{"text":"second doc"}`+"\n")

	var docs []Document
	require.NoError(t, Yield(dir, 0, func(d Document) error {
		docs = append(docs, d)
		return nil
	}))

	require.Len(t, docs, 2)
	assert.Equal(t, uint64(0), docs[0].Offset)
	assert.Equal(t, "hello world", string(docs[0].Text))
	assert.Equal(t, uint64(1), docs[1].Offset)
	assert.Equal(t, "second doc", string(docs[1].Text))
}

func TestYieldReadsZstdShard(t *testing.T) {
	dir := t.TempDir()
	writeZstdFile(t, dir, "00.jsonl.zst", `{"text":"compressed doc"}`+"\n")

	var docs []Document
	require.NoError(t, Yield(dir, 0, func(d Document) error {
		docs = append(docs, d)
		return nil
	}))

	require.Len(t, docs, 1)
	assert.Equal(t, "compressed doc", string(docs[0].Text))
}

func TestYieldOrdersShardsByFilename(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "01.jsonl", `{"text":"b"}`+"\n")
	writeFile(t, dir, "00.jsonl", `{"text":"a"}`+"\n")

	var texts []string
	require.NoError(t, Yield(dir, 0, func(d Document) error {
		texts = append(texts, string(d.Text))
		return nil
	}))

	assert.Equal(t, []string{"a", "b"}, texts)
}

func TestYieldComputesDenseOffsetsAcrossShards(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "00.jsonl", `{"text":"a"}`+"\n"+`{"text":"b"}`+"\n")
	writeFile(t, dir, "01.jsonl", `{"text":"c"}`+"\n")

	var offsets []uint64
	require.NoError(t, Yield(dir, 0, func(d Document) error {
		offsets = append(offsets, d.Offset)
		return nil
	}))

	assert.Equal(t, []uint64{0, 1, 2}, offsets)
}

func TestYieldResumesFromStartOffset(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "00.jsonl", `{"text":"a"}`+"\n"+`{"text":"b"}`+"\n"+`{"text":"c"}`+"\n")

	var texts []string
	require.NoError(t, Yield(dir, 1, func(d Document) error {
		texts = append(texts, string(d.Text))
		return nil
	}))

	assert.Equal(t, []string{"b", "c"}, texts)
}

func TestYieldSkipsBlankLines(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "00.jsonl", `{"text":"a"}`+"\n\n"+`{"text":"b"}`+"\n")

	var texts []string
	require.NoError(t, Yield(dir, 0, func(d Document) error {
		texts = append(texts, string(d.Text))
		return nil
	}))

	assert.Equal(t, []string{"a", "b"}, texts)
}

func TestLoadStatisticsComputesAndCaches(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "00.jsonl", `{"text":"a"}`+"\n"+`{"text":"b"}`+"\n")
	writeFile(t, dir, "01.jsonl", `{"text":"c"}`+"\n")

	stats, err := LoadStatistics(dir)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), stats.DocumentCount)
	require.Len(t, stats.PerFileStartOffset, 2)
	assert.Equal(t, uint64(0), stats.PerFileStartOffset[0])
	assert.Equal(t, uint64(2), stats.PerFileStartOffset[1])

	_, err = os.Stat(filepath.Join(dir, statsFileName))
	require.NoError(t, err)
}

func TestLoadStatisticsUsesCacheOnSecondCall(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "00.jsonl", `{"text":"a"}`+"\n")

	first, err := LoadStatistics(dir)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first.DocumentCount)

	// Add a document after the cache was written; a cached call must
	// still return the stale count rather than re-scanning.
	writeFile(t, dir, "01.jsonl", `{"text":"b"}`+"\n")

	second, err := LoadStatistics(dir)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), second.DocumentCount)
}

func TestShardFilesSearchesSubdirectories(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "subset-00")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	writeFile(t, sub, "00.jsonl", `{"text":"nested"}`+"\n")

	var texts []string
	require.NoError(t, Yield(dir, 0, func(d Document) error {
		texts = append(texts, string(d.Text))
		return nil
	}))

	assert.Equal(t, []string{"nested"}, texts)
}

func TestShardFilesIgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "00.jsonl", `{"text":"a"}`+"\n")
	writeFile(t, dir, "readme.txt", "not a shard")
	writeFile(t, dir, statsFileName, `{}`)

	files, err := shardFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Contains(t, files[0], "00.jsonl")
}
