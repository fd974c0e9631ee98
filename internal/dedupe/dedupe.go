// Package dedupe runs the single-pass streaming dedupe algorithm: for
// every signature in increasing offset order, query the LSH index, and
// if any match with a smaller offset exists, record it and remove only
// the current offset so later documents can still match against the
// earlier ones.
package dedupe

import (
	"context"
	"fmt"

	"github.com/textdedupe/textdedupe/internal/duplicates"
	"github.com/textdedupe/textdedupe/internal/lsh"
	"github.com/textdedupe/textdedupe/internal/progress"
	"github.com/textdedupe/textdedupe/internal/store"
)

// BatchSize is the number of duplicate records accumulated before a
// flush to disk, matching the original pipeline's save_frequency.
const BatchSize = 1_000_000

// Stats summarizes one dedupe run.
type Stats struct {
	DocumentsProcessed int64
	DuplicatesFound    int64
}

// Engine runs the streaming dedupe pass against a fully built LSH index.
type Engine struct {
	Index               *lsh.Index
	Writer              *duplicates.Writer
	DuplicatesDirectory string
	MinFreeDiskPercent  float64

	// TotalDocuments sizes the progress bar; zero renders an
	// indeterminate spinner instead of a percentage.
	TotalDocuments int64
}

// Run consumes sigs in strictly increasing offset order. sigs must
// already reflect every signature inserted into Index (the index is
// built in a prior, single-threaded pass over the same data).
func (e *Engine) Run(ctx context.Context, sigs <-chan store.SignatureRecord) (Stats, error) {
	var stats Stats
	var pending []duplicates.Record
	var lastOffset uint64
	haveLast := false

	bar := progress.New(e.TotalDocuments, "dedupe")
	defer bar.Close()

	for rec := range sigs {
		bar.Add(1)
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		if haveLast && rec.Offset <= lastOffset {
			return stats, fmt.Errorf("dedupe: offsets not strictly increasing: %d after %d", rec.Offset, lastOffset)
		}
		lastOffset = rec.Offset
		haveLast = true

		stats.DocumentsProcessed++

		matches := e.Index.Query(rec.Signature)
		hasEarlier := false
		for _, m := range matches {
			if m < rec.Offset {
				hasEarlier = true
				break
			}
		}

		if hasEarlier {
			pending = append(pending, duplicates.Record{Offset: rec.Offset, Matches: matches})
			stats.DuplicatesFound++
			e.Index.Remove(rec.Offset, rec.Signature)
		}

		if len(pending) == BatchSize {
			if err := e.flush(pending); err != nil {
				return stats, err
			}
			pending = nil
		}
	}

	if len(pending) != 0 {
		if err := e.flush(pending); err != nil {
			return stats, err
		}
	}

	if err := e.Writer.Finish(); err != nil {
		return stats, fmt.Errorf("finishing dedupe run: %w", err)
	}

	return stats, nil
}

func (e *Engine) flush(records []duplicates.Record) error {
	if err := store.CheckFreeDiskSpace(e.DuplicatesDirectory, e.MinFreeDiskPercent); err != nil {
		return err
	}
	if err := e.Writer.FlushBatch(records); err != nil {
		return fmt.Errorf("flushing duplicates batch: %w", err)
	}
	return nil
}
