// Package lsh implements a banded locality-sensitive hash index over
// minhash signatures, used as the candidate-pair generator for the
// streaming dedupe pass.
package lsh

import (
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"

	"github.com/textdedupe/textdedupe/internal/minhash"
)

// BandKey identifies one band's bucket.
type BandKey struct {
	Band int
	Hash uint64
}

// Index is the banded LSH structure: one bucket map per band, each
// mapping a band hash to the compact list of offsets sharing it.
type Index struct {
	bands   int
	rows    int
	buckets []map[uint64][]uint64
}

// NewIndex creates an empty index with the given band/row split.
func NewIndex(bands, rows int) *Index {
	buckets := make([]map[uint64][]uint64, bands)
	for i := range buckets {
		buckets[i] = make(map[uint64][]uint64)
	}
	return &Index{bands: bands, rows: rows, buckets: buckets}
}

// Bands returns the number of bands.
func (idx *Index) Bands() int { return idx.bands }

// Rows returns the number of rows per band.
func (idx *Index) Rows() int { return idx.rows }

// bandHash computes the 64-bit FNV-1a hash of one band's signature
// slice, packed little-endian, matching the hash primitive used
// everywhere else in the pipeline.
func bandHash(band minhash.Signature) uint64 {
	h := fnv.New64a()
	buf := make([]byte, 8)
	for _, v := range band {
		binary.LittleEndian.PutUint64(buf, v)
		h.Write(buf)
	}
	return h.Sum64()
}

// Insert adds offset under sig to every band bucket. Amortized O(bands).
func (idx *Index) Insert(offset uint64, sig minhash.Signature) {
	for b := 0; b < idx.bands; b++ {
		start := b * idx.rows
		end := start + idx.rows
		key := bandHash(sig[start:end])
		idx.buckets[b][key] = append(idx.buckets[b][key], offset)
	}
}

// Query returns the union of offsets sharing any band with sig. The
// result never includes an offset implicitly; the caller filters out
// the querying document's own offset if needed.
func (idx *Index) Query(sig minhash.Signature) []uint64 {
	seen := make(map[uint64]struct{})

	for b := 0; b < idx.bands; b++ {
		start := b * idx.rows
		end := start + idx.rows
		key := bandHash(sig[start:end])
		for _, offset := range idx.buckets[b][key] {
			seen[offset] = struct{}{}
		}
	}

	result := make([]uint64, 0, len(seen))
	for offset := range seen {
		result = append(result, offset)
	}
	return result
}

// Remove deletes offset from every band bucket under sig. Buckets left
// empty after removal are deleted from the band map entirely, so a
// later Query can never observe a stale empty bucket or the removed
// offset.
func (idx *Index) Remove(offset uint64, sig minhash.Signature) {
	for b := 0; b < idx.bands; b++ {
		start := b * idx.rows
		end := start + idx.rows
		key := bandHash(sig[start:end])

		bucket := idx.buckets[b][key]
		filtered := bucket[:0]
		for _, o := range bucket {
			if o != offset {
				filtered = append(filtered, o)
			}
		}

		if len(filtered) == 0 {
			delete(idx.buckets[b], key)
		} else {
			idx.buckets[b][key] = filtered
		}
	}
}

// gobIndex is the persisted representation of an Index.
type gobIndex struct {
	Bands   int
	Rows    int
	Buckets []map[uint64][]uint64
}

// Save persists the index to path using the same atomic
// temp-file-then-rename discipline as the pipeline's other durable
// artifacts: write to a sibling temp file, then rename over the
// destination so a crash mid-write never leaves a corrupt index.
func (idx *Index) Save(path string) error {
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating lsh index temp file: %w", err)
	}

	enc := gob.NewEncoder(f)
	if err := enc.Encode(gobIndex{Bands: idx.bands, Rows: idx.rows, Buckets: idx.buckets}); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("encoding lsh index: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing lsh index temp file: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming lsh index into place: %w", err)
	}

	return nil
}

// LoadIndex reads an index previously written by Save.
func LoadIndex(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening lsh index %q: %w", path, err)
	}
	defer f.Close()

	var g gobIndex
	if err := gob.NewDecoder(f).Decode(&g); err != nil {
		return nil, fmt.Errorf("decoding lsh index %q: %w", path, err)
	}

	if g.Buckets == nil {
		g.Buckets = make([]map[uint64][]uint64, g.Bands)
	}
	for i := range g.Buckets {
		if g.Buckets[i] == nil {
			g.Buckets[i] = make(map[uint64][]uint64)
		}
	}

	return &Index{bands: g.Bands, rows: g.Rows, buckets: g.Buckets}, nil
}

// IndexPath returns the conventional path for an LSH index sidecar file
// under dir.
func IndexPath(dir string) string {
	return filepath.Join(dir, "lsh.gob")
}
