// Package build orchestrates the MinHash build phase: a corpus reader
// feeds documents to a bounded worker pool that computes signatures
// concurrently, a single collector goroutine reassembles them back into
// strictly increasing offset order, and a BatchWriter commits them to
// disk in crash-safe batches.
package build

import (
	"container/heap"
	"fmt"
	"log/slog"
	"time"

	"github.com/textdedupe/textdedupe/internal/corpus"
	"github.com/textdedupe/textdedupe/internal/memory"
	"github.com/textdedupe/textdedupe/internal/minhash"
	"github.com/textdedupe/textdedupe/internal/parallel"
	"github.com/textdedupe/textdedupe/internal/progress"
	"github.com/textdedupe/textdedupe/internal/shingle"
	"github.com/textdedupe/textdedupe/internal/store"
)

// BatchSize is the number of signatures committed to the store per
// transaction.
const BatchSize = 100_000

// Stats summarizes one build run.
type Stats struct {
	DocumentsProcessed int64
}

// Options configures a Run.
type Options struct {
	CorpusDirectory    string
	WorkingDirectory   string
	Permutations       minhash.Permutations
	Workers            int
	MinFreeDiskPercent float64
}

// Run signs every document in opts.CorpusDirectory starting from the
// resume offset recovered from opts.WorkingDirectory, and commits
// signatures in order to a store.BatchWriter rooted there.
func Run(opts Options) (Stats, error) {
	resumeFrom, err := store.Recover(opts.WorkingDirectory)
	if err != nil {
		return Stats{}, fmt.Errorf("recovering working directory: %w", err)
	}

	writer, err := store.NewBatchWriter(opts.WorkingDirectory, opts.MinFreeDiskPercent, 0)
	if err != nil {
		return Stats{}, fmt.Errorf("creating batch writer: %w", err)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}
	poolOpts := parallel.DefaultWorkerPoolOptions()
	poolOpts.Size = workers
	pool, err := parallel.NewWorkerPool(poolOpts)
	if err != nil {
		return Stats{}, fmt.Errorf("creating worker pool: %w", err)
	}
	defer pool.Shutdown()

	builder := minhash.NewBuilder(opts.Permutations)

	monitor := memory.NewMonitor(30*time.Second, memory.DefaultThreshold())
	monitor.Start()
	defer monitor.Stop()

	var total int64
	if corpusStats, statErr := corpus.LoadStatistics(opts.CorpusDirectory); statErr == nil {
		total = int64(corpusStats.DocumentCount) - int64(resumeFrom)
	}
	bar := progress.New(total, "generate-minhashes")
	defer bar.Close()

	results := make(chan store.SignatureRecord, workers*2)

	submitErr := make(chan error, 1)
	go func() {
		defer close(results)
		submitErr <- corpus.Yield(opts.CorpusDirectory, resumeFrom, func(doc corpus.Document) error {
			offset := doc.Offset
			text := doc.Text
			return pool.SubmitWithError(func() error {
				sig := builder.Sign(shingle.Extract(text))
				results <- store.SignatureRecord{Offset: offset, Signature: sig}
				return nil
			})
		})
		pool.Wait()
	}()

	backpressure := parallel.NewBackpressureController(parallel.DefaultBackpressureConfig())
	collected, collectErr := collectInOrder(results, resumeFrom, backpressure)

	var stats Stats
	var pending []store.SignatureRecord
	for rec := range collected {
		pending = append(pending, rec)
		stats.DocumentsProcessed++
		bar.Add(1)
		if len(pending) == BatchSize {
			if err := writer.CommitBatch(pending); err != nil {
				return stats, fmt.Errorf("committing batch: %w", err)
			}
			pending = nil
		}
	}

	if err := <-submitErr; err != nil {
		return stats, fmt.Errorf("reading corpus: %w", err)
	}
	if err := <-collectErr; err != nil {
		return stats, err
	}

	if len(pending) != 0 {
		if err := writer.CommitBatch(pending); err != nil {
			return stats, fmt.Errorf("committing final batch: %w", err)
		}
	}

	latest := monitor.GetLatest()
	slog.Debug("build memory snapshot",
		slog.Uint64("heap_alloc", latest.HeapAlloc),
		slog.Uint64("heap_objects", latest.HeapObjects),
		slog.Int("goroutines", latest.NumGoroutine))

	return stats, nil
}

// recordHeap is a min-heap of SignatureRecord ordered by Offset, used
// to reorder signatures completed out of order by the worker pool back
// into the strictly increasing sequence CommitBatch requires.
type recordHeap []store.SignatureRecord

func (h recordHeap) Len() int            { return len(h) }
func (h recordHeap) Less(i, j int) bool  { return h[i].Offset < h[j].Offset }
func (h recordHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *recordHeap) Push(x interface{}) { *h = append(*h, x.(store.SignatureRecord)) }
func (h *recordHeap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

// collectInOrder reads SignatureRecords off in, which may arrive out of
// order (workers finish at different speeds), and emits them on the
// returned channel in strictly increasing offset order starting at
// nextWanted. If the reorder heap grows faster than the collector can
// drain it (a slow downstream batch commit, or workers racing far ahead
// of the offset the heap is still waiting on), bp throttles the
// producer side via CheckPressure against a nominal queue capacity.
func collectInOrder(in <-chan store.SignatureRecord, nextWanted uint64, bp *parallel.BackpressureController) (<-chan store.SignatureRecord, <-chan error) {
	const nominalCapacity = 10_000
	out := make(chan store.SignatureRecord)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		h := &recordHeap{}
		for rec := range in {
			heap.Push(h, rec)
			bp.CheckPressure(h.Len(), nominalCapacity)
			for h.Len() > 0 && (*h)[0].Offset == nextWanted {
				next := heap.Pop(h).(store.SignatureRecord)
				out <- next
				nextWanted++
				bp.RecordProcessed()
			}
		}
		if h.Len() != 0 {
			errc <- fmt.Errorf("build: %d signatures never reached expected offset %d (gap in corpus stream)", h.Len(), nextWanted)
			return
		}
		errc <- nil
	}()

	return out, errc
}
