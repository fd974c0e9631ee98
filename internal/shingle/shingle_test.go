package shingle

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	tokens := tokenize("hello, world! foo-bar")
	assert.Equal(t, []string{"hello", ",", "world", "!", "foo", "-", "bar"}, tokens)
}

func TestNgrams(t *testing.T) {
	tokens := []string{"a", "b", "c", "d", "e", "f"}
	grams := ngrams(tokens, Size)
	require.Len(t, grams, 2)
	assert.Equal(t, "a b c d e", grams[0])
	assert.Equal(t, "b c d e f", grams[1])
}

func TestNgramsShorterThanSize(t *testing.T) {
	tokens := []string{"a", "b"}
	assert.Nil(t, ngrams(tokens, Size))
}

func TestExtractBasic(t *testing.T) {
	doc := []byte("the quick brown fox jumps over the lazy dog")
	set := Extract(doc)

	// 9 tokens -> 5 five-word shingles
	assert.Equal(t, 5, set.Len())

	_, ok := set["the quick brown fox jumps"]
	assert.True(t, ok)
}

func TestExtractShortDocumentYieldsEmptySet(t *testing.T) {
	doc := []byte("too short")
	set := Extract(doc)
	assert.Equal(t, 0, set.Len())
}

func TestExtractEmptyDocument(t *testing.T) {
	set := Extract(nil)
	assert.Equal(t, 0, set.Len())
}

func TestExtractIdenticalDocumentsProduceIdenticalSets(t *testing.T) {
	doc := []byte("a repeated phrase that keeps on repeating a repeated phrase")
	a := Extract(doc)
	b := Extract(bytes.Clone(doc))

	assert.Equal(t, len(a), len(b))
	for g := range a {
		_, ok := b[g]
		assert.True(t, ok, "shingle %q missing from second set", g)
	}
}

func TestSliceSplitsLargeDocuments(t *testing.T) {
	doc := bytes.Repeat([]byte("a "), ChunkBytes) // well over ChunkBytes
	slices := slice(doc)

	require.Len(t, slices, 2)
	assert.Equal(t, ChunkBytes, len(slices[0]))
	assert.Equal(t, len(doc)-ChunkBytes, len(slices[1]))
}

func TestSliceSingleChunkUnderLimit(t *testing.T) {
	doc := []byte("small document")
	slices := slice(doc)
	require.Len(t, slices, 1)
	assert.Equal(t, doc, slices[0])
}

func TestExtractAcrossSliceBoundaryLosesStraddlingShingle(t *testing.T) {
	// Pad so the ChunkBytes cut point falls right after "six": each slice
	// is tokenized independently, so a shingle spanning the cut is never
	// generated.
	head := " one two three four five six"
	pad := ChunkBytes - len(head)
	doc := []byte(string(bytes.Repeat([]byte("x"), pad)) + head + " seven eight nine ten")

	set := Extract(doc)
	_, spansBoundary := set["three four five six seven"]
	assert.False(t, spansBoundary)
	// Shingles fully inside the first slice still get picked up.
	_, ok := set["two three four five six"]
	assert.True(t, ok)
	assert.NotZero(t, set.Len())
}
