// Package store persists minhash signatures in crash-safe batches and
// recovers a resumable offset after an interrupted run.
package store

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/textdedupe/textdedupe/internal/minhash"
)

// SignatureRecord pairs a document offset with its minhash signature.
type SignatureRecord struct {
	Offset    uint64
	Signature minhash.Signature
}

const (
	checkpointFile     = "checkpoint"
	checkpointTempFile = "checkpoint.tmp"
	checkpointOldFile  = "checkpoint.old"
	transactionLock    = ".transaction_lock"
	batchFilePrefix    = "minhashes_"
)

// BatchWriter commits batches of SignatureRecord to working directory
// using the pipeline's transaction protocol: a lock sentinel brackets
// the batch file write and the checkpoint rename dance, so a crash mid
// commit is always recoverable via Recover.
type BatchWriter struct {
	dir string

	mu           sync.Mutex
	spaceLimiter *rate.Limiter
	minFreePct   float64
}

// NewBatchWriter creates a BatchWriter rooted at dir. minFreeDiskPercent
// is the free-space floor checked opportunistically (throttled to at
// most once per checkInterval) before each commit.
func NewBatchWriter(dir string, minFreeDiskPercent float64, checkInterval time.Duration) (*BatchWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating working directory %q: %w", dir, err)
	}

	limit := rate.Every(checkInterval)
	return &BatchWriter{
		dir:          dir,
		spaceLimiter: rate.NewLimiter(limit, 1),
		minFreePct:   minFreeDiskPercent,
	}, nil
}

// CommitBatch runs the 6-step transaction protocol for one batch of
// records, which must be sorted in strictly increasing offset order.
// SIGINT/SIGTERM are deferred across the whole transaction so a signal
// arriving mid-commit cannot tear a batch file and its checkpoint apart.
func (w *BatchWriter) CommitBatch(records []SignatureRecord) error {
	if len(records) == 0 {
		return nil
	}
	for i := 1; i < len(records); i++ {
		if records[i].Offset <= records[i-1].Offset {
			return fmt.Errorf("batch offsets not strictly increasing at index %d", i)
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.spaceLimiter.Allow() {
		if err := checkFreeDiskSpace(w.dir, w.minFreePct); err != nil {
			return err
		}
	}

	deferSignals()
	defer restoreSignals()

	startOffset := records[0].Offset

	lockPath := filepath.Join(w.dir, transactionLock)
	if err := touch(lockPath); err != nil {
		return fmt.Errorf("creating transaction lock: %w", err)
	}

	batchPath := filepath.Join(w.dir, batchFileName(startOffset))
	if err := writeGobAtomic(batchPath, records); err != nil {
		os.Remove(lockPath)
		return fmt.Errorf("writing batch file: %w", err)
	}

	lastOffset := records[len(records)-1].Offset
	tempCheckpoint := filepath.Join(w.dir, checkpointTempFile)
	if err := writeGobAtomic(tempCheckpoint, lastOffset); err != nil {
		os.Remove(lockPath)
		return fmt.Errorf("writing checkpoint temp file: %w", err)
	}

	checkpointPath := filepath.Join(w.dir, checkpointFile)
	oldCheckpointPath := filepath.Join(w.dir, checkpointOldFile)
	if _, err := os.Stat(checkpointPath); err == nil {
		if err := os.Rename(checkpointPath, oldCheckpointPath); err != nil {
			return fmt.Errorf("rotating checkpoint to old: %w", err)
		}
	}
	if err := os.Rename(tempCheckpoint, checkpointPath); err != nil {
		return fmt.Errorf("promoting checkpoint: %w", err)
	}

	if err := os.Remove(lockPath); err != nil {
		return fmt.Errorf("releasing transaction lock: %w", err)
	}

	return nil
}

func batchFileName(startOffset uint64) string {
	return fmt.Sprintf("%s%d.gob", batchFilePrefix, startOffset)
}

// Recover inspects dir left by a previous run and returns the offset to
// resume from. A transaction lock alone does not mean the commit failed:
// by the time the lock is removed in step 6, the checkpoint has already
// been durably promoted in step 5. The only sign of an interrupted
// commit is checkpoint.tmp still being present (written in step 3,
// renamed away in step 5); only then is checkpoint.old restored over
// checkpoint, mirroring the original's crash recovery check.
func Recover(dir string) (resumeFrom uint64, err error) {
	lockPath := filepath.Join(dir, transactionLock)
	checkpointPath := filepath.Join(dir, checkpointFile)
	oldCheckpointPath := filepath.Join(dir, checkpointOldFile)
	tempCheckpointPath := filepath.Join(dir, checkpointTempFile)

	if _, tmpErr := os.Stat(tempCheckpointPath); tmpErr == nil {
		if _, oldErr := os.Stat(oldCheckpointPath); oldErr == nil {
			if err := os.Rename(oldCheckpointPath, checkpointPath); err != nil {
				return 0, fmt.Errorf("rolling back checkpoint: %w", err)
			}
		} else {
			os.Remove(checkpointPath)
		}
		if err := os.Remove(tempCheckpointPath); err != nil {
			return 0, fmt.Errorf("clearing checkpoint temp file: %w", err)
		}
	}

	if _, statErr := os.Stat(lockPath); statErr == nil {
		if err := os.Remove(lockPath); err != nil {
			return 0, fmt.Errorf("clearing stale transaction lock: %w", err)
		}
	}

	f, err := os.Open(checkpointPath)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("opening checkpoint: %w", err)
	}
	defer f.Close()

	var last uint64
	if err := gob.NewDecoder(f).Decode(&last); err != nil {
		return 0, fmt.Errorf("decoding checkpoint: %w", err)
	}

	return last + 1, nil
}

// Reader streams every SignatureRecord persisted in dir, in ascending
// batch-start-offset order.
type Reader struct {
	dir         string
	batchPaths  []string
	batchOffset []uint64
}

// NewReader opens dir and indexes its batch files by start offset.
func NewReader(dir string) (*Reader, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading store directory %q: %w", dir, err)
	}

	type indexed struct {
		offset uint64
		path   string
	}
	var found []indexed

	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, batchFilePrefix) || !strings.HasSuffix(name, ".gob") {
			continue
		}
		offsetStr := strings.TrimSuffix(strings.TrimPrefix(name, batchFilePrefix), ".gob")
		offset, err := strconv.ParseUint(offsetStr, 10, 64)
		if err != nil {
			continue
		}
		found = append(found, indexed{offset: offset, path: filepath.Join(dir, name)})
	}

	sort.Slice(found, func(i, j int) bool { return found[i].offset < found[j].offset })

	r := &Reader{dir: dir}
	for _, f := range found {
		r.batchPaths = append(r.batchPaths, f.path)
		r.batchOffset = append(r.batchOffset, f.offset)
	}
	return r, nil
}

// All loads every batch file and returns their concatenated records in
// batch order (each batch is already internally ordered by CommitBatch's
// precondition).
func (r *Reader) All() ([]SignatureRecord, error) {
	var all []SignatureRecord
	for _, path := range r.batchPaths {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening batch file %q: %w", path, err)
		}

		var batch []SignatureRecord
		decErr := gob.NewDecoder(f).Decode(&batch)
		f.Close()
		if decErr != nil {
			return nil, fmt.Errorf("decoding batch file %q: %w", path, decErr)
		}

		all = append(all, batch...)
	}
	return all, nil
}

func touch(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}

func writeGobAtomic(path string, v interface{}) error {
	tmp := path + ".writing"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := gob.NewEncoder(f).Encode(v); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// CheckFreeDiskSpace fails if the filesystem backing dir has less than
// minFreePercent free space. Exported for reuse by internal/dedupe,
// which enforces the same guard before every duplicates batch flush.
func CheckFreeDiskSpace(dir string, minFreePercent float64) error {
	return checkFreeDiskSpace(dir, minFreePercent)
}

// checkFreeDiskSpace fails the commit if the filesystem backing dir has
// less than minFreePercent free, matching the guard the dedupe engine
// and batch writer both enforce before flushing to disk.
func checkFreeDiskSpace(dir string, minFreePercent float64) error {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(dir, &stat); err != nil {
		return fmt.Errorf("statting filesystem for %q: %w", dir, err)
	}

	total := stat.Blocks * uint64(stat.Bsize)
	free := stat.Bavail * uint64(stat.Bsize)
	if total == 0 {
		return nil
	}

	freePercent := float64(free) / float64(total) * 100
	if freePercent < minFreePercent {
		return fmt.Errorf("free disk space %.2f%% below required %.2f%%", freePercent, minFreePercent)
	}
	return nil
}
