// Package corpus is a reference implementation of the dense-offset
// document stream the dedupe pipeline reads from: newline-delimited
// JSON documents read from a directory of shard files, in sorted
// filename order, assigning each document a strictly increasing global
// offset. A real deployment may swap this out for a different reader
// without touching the similarity pipeline.
package corpus

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/klauspost/compress/zstd"
	"github.com/tidwall/gjson"

	"github.com/textdedupe/textdedupe/internal/memory"
)

// Document is one corpus entry: its dense global offset and raw text.
type Document struct {
	Offset uint64
	Text   []byte
}

const statsFileName = "corpus_statistics.json"

// Statistics summarizes a corpus directory, cached to statsFileName so
// repeated runs don't re-scan every shard just to learn the document
// count.
type Statistics struct {
	Data               string   `json:"Data"`
	DocumentCount      uint64   `json:"Document Count"`
	PerFileStartOffset []uint64 `json:"File Start Offsets"`
	Files              []string `json:"Files"`
}

// shardFiles returns every *.jsonl and *.jsonl.zst file under dir,
// searched recursively so shards may be organized into subdirectories
// (mirroring how the Pile itself ships as nested per-subset archives),
// in sorted path order (the order documents are yielded in).
func shardFiles(dir string) ([]string, error) {
	matches, err := doublestar.Glob(os.DirFS(dir), "**/*.jsonl*")
	if err != nil {
		return nil, fmt.Errorf("globbing corpus directory %q: %w", dir, err)
	}

	var files []string
	for _, m := range matches {
		if strings.HasSuffix(m, ".jsonl") || strings.HasSuffix(m, ".jsonl.zst") {
			files = append(files, filepath.Join(dir, m))
		}
	}
	sort.Strings(files)
	return files, nil
}

// LoadStatistics computes (or loads the cached) document count and
// per-file start offsets for dir.
func LoadStatistics(dir string) (Statistics, error) {
	cachePath := filepath.Join(dir, statsFileName)
	if data, err := os.ReadFile(cachePath); err == nil {
		var stats Statistics
		if err := json.Unmarshal(data, &stats); err == nil {
			return stats, nil
		}
	}

	files, err := shardFiles(dir)
	if err != nil {
		return Statistics{}, err
	}

	stats := Statistics{Data: "corpus statistics", Files: files}
	var offset uint64
	for _, file := range files {
		stats.PerFileStartOffset = append(stats.PerFileStartOffset, offset)
		count, err := countDocuments(file)
		if err != nil {
			return Statistics{}, fmt.Errorf("counting documents in %q: %w", file, err)
		}
		offset += count
	}
	stats.DocumentCount = offset

	if data, err := json.Marshal(stats); err == nil {
		_ = os.WriteFile(cachePath, data, 0o644)
	}

	return stats, nil
}

func countDocuments(path string) (uint64, error) {
	var count uint64
	err := scanShard(path, func([]byte) error {
		count++
		return nil
	})
	return count, err
}

// Yield streams every document in dir starting from startOffset (0 to
// read from the beginning), computing each document's dense global
// offset as it goes.
func Yield(dir string, startOffset uint64, fn func(Document) error) error {
	files, err := shardFiles(dir)
	if err != nil {
		return err
	}

	var offset uint64
	for _, file := range files {
		err := scanShard(file, func(text []byte) error {
			current := offset
			offset++
			if current < startOffset {
				return nil
			}
			return fn(Document{Offset: current, Text: text})
		})
		if err != nil {
			return fmt.Errorf("reading corpus shard %q: %w", file, err)
		}
	}
	return nil
}

// scanShard reads one newline-delimited JSON shard, plain or
// zstd-compressed by file extension, extracting the "text" field of
// each line via gjson rather than a full struct unmarshal.
func scanShard(path string, fn func(text []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".zst") {
		zr, err := zstd.NewReader(f)
		if err != nil {
			return fmt.Errorf("opening zstd stream: %w", err)
		}
		defer zr.Close()
		r = zr
	}

	scanner := bufio.NewScanner(r)
	scanBuf := memory.GetBytes(64 * 1024)
	defer memory.PutBytes(scanBuf)
	scanner.Buffer(scanBuf[:0], 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		text := gjson.GetBytes(line, "text")
		if err := fn([]byte(text.String())); err != nil {
			return err
		}
	}
	return scanner.Err()
}
