// Package shingle extracts word-level shingles from document text, the
// first stage of the minhash signature pipeline.
package shingle

import (
	"math"
	"regexp"
	"strings"
)

// Size is the shingle width in words, fixed at 5 per the pipeline's
// similarity definition (lower values blur distinct documents together,
// higher values miss similarity between documents that only share short
// runs of text).
const Size = 5

// ChunkBytes bounds how much of a document is shingled in one pass. A
// document larger than this is sliced into ChunkBytes-sized windows and
// each window's shingles are unioned into the final set; this keeps peak
// memory flat regardless of document length, at the cost of losing the
// handful of shingles that would have spanned a slice boundary.
const ChunkBytes = 1024 * 1024 // 1 MiB

// Set is a document's shingle set: distinct 5-word runs of normalized text.
type Set map[string]struct{}

// Len returns the number of distinct shingles in the set.
func (s Set) Len() int {
	return len(s)
}

var wordRe = regexp.MustCompile(`[\pL\pN]+|[^\s\pL\pN]`)

// tokenize splits text into words and punctuation marks, the same split
// a standard word tokenizer produces: runs of letters/digits are one
// token, every other non-space character is its own token.
func tokenize(text string) []string {
	return wordRe.FindAllString(text, -1)
}

// ngrams joins consecutive runs of n tokens with a single space,
// producing the shingle strings that get hashed downstream.
func ngrams(tokens []string, n int) []string {
	if len(tokens) < n {
		return nil
	}
	out := make([]string, 0, len(tokens)-n+1)
	for i := 0; i <= len(tokens)-n; i++ {
		out = append(out, strings.Join(tokens[i:i+n], " "))
	}
	return out
}

// slice splits a document into ChunkBytes-sized byte windows. A document
// no larger than ChunkBytes is returned as a single slice.
func slice(document []byte) [][]byte {
	if len(document) <= ChunkBytes {
		return [][]byte{document}
	}

	numSlices := int(math.Ceil(float64(len(document)) / float64(ChunkBytes)))
	slices := make([][]byte, 0, numSlices)
	for i := 0; i < numSlices; i++ {
		start := i * ChunkBytes
		end := start + ChunkBytes
		if end > len(document) {
			end = len(document)
		}
		slices = append(slices, document[start:end])
	}
	return slices
}

// Extract builds the shingle set for a document. Documents larger than
// ChunkBytes are processed slice by slice and their shingles unioned;
// shingles that would straddle a slice boundary are not generated. A
// document that fails to tokenize into at least Size words yields an
// empty set rather than an error; nothing is logged for it.
func Extract(document []byte) Set {
	set := make(Set)

	for _, chunk := range slice(document) {
		tokens := tokenize(string(chunk))
		for _, g := range ngrams(tokens, Size) {
			set[g] = struct{}{}
		}
	}

	return set
}
