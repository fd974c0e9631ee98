package build

import (
	"errors"
	"fmt"
	"os"

	"github.com/textdedupe/textdedupe/internal/lsh"
	"github.com/textdedupe/textdedupe/internal/store"
)

// BuildIndex loads every signature committed to minhashesDirectory and
// inserts it into a fresh LSH index sized by lsh.Plan for the given
// permutation width and similarity threshold. This pass is strictly
// single-threaded: the index has no internal locking.
func BuildIndex(minhashesDirectory string, permutationCount int, threshold float64) (*lsh.Index, error) {
	reader, err := store.NewReader(minhashesDirectory)
	if err != nil {
		return nil, fmt.Errorf("opening minhashes store: %w", err)
	}

	records, err := reader.All()
	if err != nil {
		return nil, fmt.Errorf("reading minhashes: %w", err)
	}

	bands, rows := lsh.Plan(permutationCount, threshold)
	idx := lsh.NewIndex(bands, rows)
	for _, rec := range records {
		idx.Insert(rec.Offset, rec.Signature)
	}

	return idx, nil
}

// BuildOrLoadIndex loads the LSH index sidecar under duplicatesDirectory
// if one was left by a previous run, skipping the (expensive,
// single-threaded) build pass entirely. Otherwise it builds the index
// from minhashesDirectory and persists it before returning, so a
// restarted dedupe run never rebuilds it twice.
func BuildOrLoadIndex(minhashesDirectory, duplicatesDirectory string, permutationCount int, threshold float64) (*lsh.Index, error) {
	path := lsh.IndexPath(duplicatesDirectory)

	if _, err := os.Stat(path); err == nil {
		idx, err := lsh.LoadIndex(path)
		if err != nil {
			return nil, fmt.Errorf("loading lsh index %q: %w", path, err)
		}
		return idx, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("statting lsh index %q: %w", path, err)
	}

	idx, err := BuildIndex(minhashesDirectory, permutationCount, threshold)
	if err != nil {
		return nil, err
	}

	if err := idx.Save(path); err != nil {
		return nil, fmt.Errorf("saving lsh index %q: %w", path, err)
	}

	return idx, nil
}
