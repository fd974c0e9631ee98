// Package config handles configuration loading and management for textdedupe.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the global configuration for the dedupe pipeline.
type Config struct {
	Build      BuildConfig      `yaml:"build"`
	Dedupe     DedupeConfig     `yaml:"dedupe"`
	Corpus     CorpusConfig     `yaml:"corpus"`
	YieldFinal YieldFinalConfig `yaml:"yield_deduped"`
}

// BuildConfig controls the minhash build phase.
type BuildConfig struct {
	WorkingDirectory   string `yaml:"working_directory"`
	BackupDirectory    string `yaml:"backup_dir"`
	MinhashesDirectory string `yaml:"minhashes_directory"`
	ProcessCount       int    `yaml:"process_count"`
	PermutationCount   int    `yaml:"permutation_count"`
	BatchSize          int    `yaml:"batch_size"`
	PermutationSeed    int64  `yaml:"permutation_seed"`
}

// DedupeConfig controls the LSH build + streaming dedupe phase.
type DedupeConfig struct {
	MinhashesDirectory  string  `yaml:"minhashes_directory"`
	DuplicatesDirectory string  `yaml:"duplicates_directory"`
	LSHThreshold        float64 `yaml:"lsh_threshold"`
	BatchSize           int     `yaml:"batch_size"`
	MinFreeDiskPercent  float64 `yaml:"min_free_disk_percent"`
}

// CorpusConfig points at the reference corpus reader's shard directory.
type CorpusConfig struct {
	PileDirectory string `yaml:"pile_directory"`
}

// YieldFinalConfig controls the reference yield-deduped subcommand.
type YieldFinalConfig struct {
	DuplicatesDirectory string `yaml:"duplicates_directory"`
	PileDirectory       string `yaml:"pile_directory"`
	OutputPath          string `yaml:"out"`
}

// DefaultConfig returns the default configuration, matching the defaults
// documented for the textdedupe CLI.
func DefaultConfig() *Config {
	return &Config{
		Build: BuildConfig{
			WorkingDirectory:   ".",
			BackupDirectory:    "backup",
			MinhashesDirectory: "minhashes",
			ProcessCount:       4,
			PermutationCount:   10,
			BatchSize:          100_000,
			PermutationSeed:    1337,
		},
		Dedupe: DedupeConfig{
			MinhashesDirectory:  "minhashes",
			DuplicatesDirectory: "duplicates",
			LSHThreshold:        0.5,
			BatchSize:           1_000_000,
			MinFreeDiskPercent:  5.0,
		},
		Corpus: CorpusConfig{
			PileDirectory: "pile",
		},
		YieldFinal: YieldFinalConfig{
			DuplicatesDirectory: "duplicates",
			PileDirectory:       "pile",
			OutputPath:          "deduped.jsonl",
		},
	}
}

// Load reads a YAML configuration file, falling back to defaults for any
// field the file omits.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %q: %w", path, err)
	}

	return cfg, nil
}
