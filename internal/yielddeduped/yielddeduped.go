// Package yielddeduped merges the corpus stream with the duplicates
// store's offset stream, yielding every document whose offset was not
// flagged as a near-duplicate.
package yielddeduped

import (
	"fmt"

	"github.com/textdedupe/textdedupe/internal/corpus"
	"github.com/textdedupe/textdedupe/internal/duplicates"
	"github.com/textdedupe/textdedupe/internal/progress"
)

// Stats summarizes one yield-deduped run.
type Stats struct {
	DocumentCount   uint64
	TotalDuplicates int64
	Yielded         int64
}

// Run streams every non-duplicate document in pileDirectory, in
// increasing offset order, to fn. Both the corpus and the duplicates
// offset stream are consumed in strictly increasing order, so the
// merge is a single linear pass: each corpus offset is compared
// against the next pending duplicate offset and skipped on a match.
func Run(pileDirectory, duplicatesDirectory string, fn func(corpus.Document) error) (Stats, error) {
	stats, err := corpus.LoadStatistics(pileDirectory)
	if err != nil {
		return Stats{}, fmt.Errorf("loading corpus statistics: %w", err)
	}

	dupStats, err := duplicates.ReadStats(duplicatesDirectory)
	if err != nil {
		return Stats{}, fmt.Errorf("reading duplicate statistics: %w", err)
	}

	r, err := duplicates.NewReader(duplicatesDirectory)
	if err != nil {
		return Stats{}, fmt.Errorf("opening duplicates reader: %w", err)
	}
	records, err := r.All()
	if err != nil {
		return Stats{}, fmt.Errorf("reading duplicate records: %w", err)
	}

	result := Stats{DocumentCount: stats.DocumentCount, TotalDuplicates: dupStats.TotalDuplicates}

	nextDup := 0
	hasCurrent := nextDup < len(records)

	bar := progress.New(int64(stats.DocumentCount), "yield-deduped")
	defer bar.Close()

	err = corpus.Yield(pileDirectory, 0, func(doc corpus.Document) error {
		bar.Add(1)
		for hasCurrent && records[nextDup].Offset < doc.Offset {
			nextDup++
			hasCurrent = nextDup < len(records)
		}

		if hasCurrent && records[nextDup].Offset == doc.Offset {
			nextDup++
			hasCurrent = nextDup < len(records)
			return nil
		}

		result.Yielded++
		return fn(doc)
	})
	if err != nil {
		return result, fmt.Errorf("yielding deduped corpus: %w", err)
	}

	return result, nil
}
