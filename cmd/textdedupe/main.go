// textdedupe finds and removes near-duplicate documents from a text
// corpus using MinHash signatures and banded locality-sensitive hashing.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/textdedupe/textdedupe/internal/build"
	"github.com/textdedupe/textdedupe/internal/config"
	"github.com/textdedupe/textdedupe/internal/corpus"
	"github.com/textdedupe/textdedupe/internal/dedupe"
	"github.com/textdedupe/textdedupe/internal/duplicates"
	"github.com/textdedupe/textdedupe/internal/minhash"
	"github.com/textdedupe/textdedupe/internal/store"
	"github.com/textdedupe/textdedupe/internal/yielddeduped"
)

var version = "0.1.0-dev"

var (
	configFile string
	verbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "textdedupe",
		Short: "Near-duplicate text corpus deduplication via MinHash/LSH",
		Long: `textdedupe finds near-duplicate documents in a large text corpus
using fixed-width MinHash signatures and banded locality-sensitive
hashing, then yields the corpus with duplicates removed.

Pipeline:
  1. generate-minhashes - sign every document, checkpointed to disk
  2. dedupe             - build the LSH index, stream duplicates out
  3. yield-deduped      - merge the corpus with the duplicate offsets`,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to config file (YAML)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(versionCmd(), generateMinhashesCmd(), dedupeCmd(), yieldDedupedCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupLogger() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

func loadConfig() (*config.Config, error) {
	return config.Load(configFile)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("textdedupe version %s\n", version)
		},
	}
}

func generateMinhashesCmd() *cobra.Command {
	var (
		corpusDirectory  string
		workingDirectory string
		processCount     int
		permutationCount int
		permutationSeed  int64
	)

	cmd := &cobra.Command{
		Use:   "generate-minhashes",
		Short: "Sign every document in the corpus with a MinHash signature",
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogger()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			if corpusDirectory == "" {
				corpusDirectory = cfg.Corpus.PileDirectory
			}
			if workingDirectory == "" {
				workingDirectory = cfg.Build.MinhashesDirectory
			}
			if processCount == 0 {
				processCount = cfg.Build.ProcessCount
			}
			if permutationCount == 0 {
				permutationCount = cfg.Build.PermutationCount
			}
			if permutationSeed == 0 {
				permutationSeed = cfg.Build.PermutationSeed
			}

			perm := minhash.NewPermutations(permutationSeed, permutationCount)

			slog.Info("generating minhashes",
				slog.String("corpus_directory", corpusDirectory),
				slog.String("working_directory", workingDirectory),
				slog.Int("workers", processCount),
				slog.Int("permutations", permutationCount))

			stats, err := build.Run(build.Options{
				CorpusDirectory:    corpusDirectory,
				WorkingDirectory:   workingDirectory,
				Permutations:       perm,
				Workers:            processCount,
				MinFreeDiskPercent: cfg.Dedupe.MinFreeDiskPercent,
			})
			if err != nil {
				return fmt.Errorf("generating minhashes: %w", err)
			}

			slog.Info("minhash generation complete", slog.Int64("documents_processed", stats.DocumentsProcessed))
			return nil
		},
	}

	cmd.Flags().StringVar(&corpusDirectory, "corpus-directory", "", "Directory of corpus shard files")
	cmd.Flags().StringVar(&workingDirectory, "working-directory", "", "Directory to store minhash batches and checkpoints")
	cmd.Flags().IntVar(&processCount, "process-count", 0, "Number of concurrent signing workers")
	cmd.Flags().IntVar(&permutationCount, "permutation-count", 0, "Number of MinHash permutations (signature width)")
	cmd.Flags().Int64Var(&permutationSeed, "permutation-seed", 0, "Deterministic seed for permutation coefficients")

	return cmd
}

func dedupeCmd() *cobra.Command {
	var (
		minhashesDirectory  string
		duplicatesDirectory string
		permutationCount    int
		lshThreshold        float64
	)

	cmd := &cobra.Command{
		Use:   "dedupe",
		Short: "Build the LSH index and stream duplicate documents to disk",
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogger()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			if minhashesDirectory == "" {
				minhashesDirectory = cfg.Dedupe.MinhashesDirectory
			}
			if duplicatesDirectory == "" {
				duplicatesDirectory = cfg.Dedupe.DuplicatesDirectory
			}
			if permutationCount == 0 {
				permutationCount = cfg.Build.PermutationCount
			}
			if lshThreshold == 0 {
				lshThreshold = cfg.Dedupe.LSHThreshold
			}
			if lshThreshold <= 0 || lshThreshold >= 1 {
				return fmt.Errorf("lsh threshold %v out of range: must be in (0, 1)", lshThreshold)
			}

			writer, err := duplicates.NewWriter(duplicatesDirectory, lshThreshold)
			if err != nil {
				return fmt.Errorf("creating duplicates writer: %w", err)
			}
			if writer.Done() {
				slog.Info("dedupe already completed for this directory, skipping")
				return nil
			}

			slog.Info("loading or building lsh index", slog.String("minhashes_directory", minhashesDirectory))
			idx, err := build.BuildOrLoadIndex(minhashesDirectory, duplicatesDirectory, permutationCount, lshThreshold)
			if err != nil {
				return fmt.Errorf("loading or building lsh index: %w", err)
			}
			slog.Info("lsh index ready", slog.Int("bands", idx.Bands()), slog.Int("rows", idx.Rows()))

			reader, total, err := newMinhashStream(minhashesDirectory)
			if err != nil {
				return err
			}

			engine := &dedupe.Engine{
				Index:               idx,
				Writer:              writer,
				DuplicatesDirectory: duplicatesDirectory,
				MinFreeDiskPercent:  cfg.Dedupe.MinFreeDiskPercent,
				TotalDocuments:      total,
			}

			stats, err := engine.Run(cmd.Context(), reader)
			if err != nil {
				return fmt.Errorf("running dedupe: %w", err)
			}

			slog.Info("dedupe complete",
				slog.Int64("documents_processed", stats.DocumentsProcessed),
				slog.Int64("duplicates_found", stats.DuplicatesFound))
			return nil
		},
	}

	cmd.Flags().StringVar(&minhashesDirectory, "minhashes-directory", "", "Directory of committed minhash batches")
	cmd.Flags().StringVar(&duplicatesDirectory, "duplicates-directory", "", "Directory to write duplicate records to")
	cmd.Flags().IntVar(&permutationCount, "permutation-count", 0, "Number of MinHash permutations used to build the signatures")
	cmd.Flags().Float64Var(&lshThreshold, "lsh-threshold", 0, "Similarity threshold the LSH band/row split targets")

	return cmd
}

func yieldDedupedCmd() *cobra.Command {
	var (
		duplicatesDirectory string
		pileDirectory       string
		outPath             string
	)

	cmd := &cobra.Command{
		Use:   "yield-deduped",
		Short: "Write the corpus with duplicate documents removed",
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogger()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			if duplicatesDirectory == "" {
				duplicatesDirectory = cfg.YieldFinal.DuplicatesDirectory
			}
			if pileDirectory == "" {
				pileDirectory = cfg.YieldFinal.PileDirectory
			}
			if outPath == "" {
				outPath = cfg.YieldFinal.OutputPath
			}

			out, err := os.Create(outPath)
			if err != nil {
				return fmt.Errorf("creating output file %q: %w", outPath, err)
			}
			defer out.Close()

			enc := json.NewEncoder(out)
			stats, err := yielddeduped.Run(pileDirectory, duplicatesDirectory, func(doc corpus.Document) error {
				return enc.Encode(struct {
					Text string `json:"text"`
				}{Text: string(doc.Text)})
			})
			if err != nil {
				return fmt.Errorf("yielding deduped corpus: %w", err)
			}

			percentRemaining := 0.0
			if stats.DocumentCount > 0 {
				percentRemaining = float64(stats.DocumentCount-uint64(stats.TotalDuplicates)) / float64(stats.DocumentCount) * 100
			}
			slog.Info("yield-deduped complete",
				slog.Uint64("document_count", stats.DocumentCount),
				slog.Int64("total_duplicates", stats.TotalDuplicates),
				slog.Float64("percent_remaining", percentRemaining))
			return nil
		},
	}

	cmd.Flags().StringVar(&duplicatesDirectory, "duplicates-directory", "", "Directory of duplicate records from the dedupe step")
	cmd.Flags().StringVar(&pileDirectory, "pile-directory", "", "Directory of corpus shard files")
	cmd.Flags().StringVar(&outPath, "out", "", "Output path for the deduped corpus (newline-delimited JSON)")

	return cmd
}

// newMinhashStream loads every signature committed to dir and streams
// it over a channel in the increasing offset order dedupe.Engine.Run
// requires, returning the record count for progress display.
func newMinhashStream(dir string) (<-chan store.SignatureRecord, int64, error) {
	reader, err := store.NewReader(dir)
	if err != nil {
		return nil, 0, fmt.Errorf("opening minhashes store: %w", err)
	}

	records, err := reader.All()
	if err != nil {
		return nil, 0, fmt.Errorf("reading minhashes: %w", err)
	}

	ch := make(chan store.SignatureRecord, len(records))
	for _, rec := range records {
		ch <- rec
	}
	close(ch)
	return ch, int64(len(records)), nil
}
