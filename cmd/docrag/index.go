package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/docrag-mcp/internal/app"
	"github.com/dshills/docrag-mcp/internal/indexer"
	"github.com/dshills/docrag-mcp/internal/logger"
	"github.com/dshills/docrag-mcp/pkg/types"
)

var (
	indexTenant   string
	indexFull     bool
	indexInclude  []string
	indexMaxBytes int64
	indexJSON     bool
)

var indexCmd = &cobra.Command{
	Use:   "index <dir>",
	Short: "Index the text files under a directory",
	Long: `Reads every UTF-8 text file under dir and synchronizes it into the
vector store. Document names are the slash-separated paths relative to dir,
prefixed with --tenant when given.

Unchanged files are skipped unless --full is set.`,
	Args: cobra.ExactArgs(1),
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().StringVar(&indexTenant, "tenant", "", "prefix added to every document name (e.g. t1:)")
	indexCmd.Flags().BoolVar(&indexFull, "full", false, "re-embed every file even if unchanged")
	indexCmd.Flags().StringSliceVar(&indexInclude, "include", nil, "only index files matching these glob patterns (e.g. **/*.md)")
	indexCmd.Flags().Int64Var(&indexMaxBytes, "max-size", indexer.DefaultMaxFileSize, "skip files larger than this many bytes")
	indexCmd.Flags().BoolVar(&indexJSON, "json", false, "output the report as JSON")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	docs, err := indexer.LoadDirectory(args[0], indexer.LoadOptions{
		Include:     indexInclude,
		Tenant:      indexTenant,
		MaxFileSize: indexMaxBytes,
	})
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		cmd.Println("No text files found.")
		return nil
	}
	logger.Debug("loaded %d files from %s", len(docs), args[0])

	var opts []app.Option
	var progress *indexProgress
	if out := progressWriter(os.Stderr); out != nil {
		progress = newIndexProgress(out)
		opts = append(opts, indexer.WithProgress(progress.update))
	}

	a, err := openApp(ctx, opts...)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.Indexer.Sync(ctx, docs, !indexFull)
	if progress != nil {
		progress.finish()
	}
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	if indexJSON {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal report: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}
	printReport(cmd, report)
	return nil
}

func printReport(cmd *cobra.Command, report *types.Report) {
	cmd.Printf("Indexed %d files (%d chunks) in %s\n", report.FilesCount, report.ChunksCount, report.Duration.Round(time.Millisecond))
	if report.EmbeddingModel != "" {
		cmd.Printf("Model: %s (dimension %d)\n", report.EmbeddingModel, report.EmbeddingDimension)
	}
	if report.SkippedEmptyChunks > 0 || report.SkippedBadEmbeddings > 0 {
		cmd.Printf("Dropped chunks: %d empty, %d bad embeddings\n", report.SkippedEmptyChunks, report.SkippedBadEmbeddings)
	}

	counts := make(map[string]int)
	for _, s := range report.SkippedFiles {
		counts[s.Reason]++
	}
	if len(counts) == 0 {
		return
	}
	cmd.Println("Skipped:")
	for _, s := range report.SkippedFiles {
		if s.Reason == types.SkipUnchanged {
			continue
		}
		cmd.Printf("  %s: %s\n", s.Name, s.Reason)
	}
	if n := counts[types.SkipUnchanged]; n > 0 {
		cmd.Printf("  %d unchanged\n", n)
	}
}
