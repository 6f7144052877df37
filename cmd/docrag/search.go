package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/docrag-mcp/internal/searcher"
)

var (
	searchAll     bool
	searchTenant  string
	searchAnalyze bool
	searchTopK    int
	searchMax     int
	searchJSON    bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Retrieve the chunks most similar to a query",
	Long: `Embeds the query with a model compatible with the index and returns the
closest chunks. With --all the query is ignored and every chunk under
--tenant is returned instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().BoolVar(&searchAll, "all", false, "return every chunk under the tenant instead of a similarity search")
	searchCmd.Flags().StringVar(&searchTenant, "tenant", "", "only return sources with this name prefix")
	searchCmd.Flags().BoolVar(&searchAnalyze, "analyze", false, "print source statistics only")
	searchCmd.Flags().IntVarP(&searchTopK, "top-k", "k", 0, "number of nearest chunks (default from config)")
	searchCmd.Flags().IntVar(&searchMax, "max-chunks", 0, "cap on returned chunks (default from config)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var query string
	if len(args) > 0 {
		query = args[0]
	}
	if !searchAll && strings.TrimSpace(query) == "" {
		return searcher.ErrEmptyQuery
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	req := searcher.RetrieveRequest{
		Query:            query,
		TopK:             a.Config.Search.TopK,
		TenantPrefix:     searchTenant,
		UseFullScan:      searchAll,
		MaxContextChunks: a.Config.Search.MaxContextChunks,
	}
	if searchTopK > 0 {
		req.TopK = searchTopK
	}
	if searchMax > 0 {
		req.MaxContextChunks = searchMax
	}

	result, err := a.Searcher.Retrieve(ctx, req)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return outputSearchJSON(cmd, result)
	}
	outputSearchText(cmd, result)
	return nil
}

func outputSearchJSON(cmd *cobra.Command, result *searcher.RetrieveResult) error {
	out := map[string]interface{}{
		"chunks_used":     len(result.Chunks),
		"total_retrieved": result.TotalRetrieved,
		"sources":         result.Sources,
		"truncated":       result.Truncated,
		"embedding_model": result.EmbeddingModel,
	}
	if !searchAnalyze {
		chunks := make([]map[string]interface{}, len(result.Chunks))
		for i, c := range result.Chunks {
			chunks[i] = map[string]interface{}{
				"source":  c.Metadata.Source,
				"content": c.Content,
				"score":   c.Score,
			}
		}
		out["chunks"] = chunks
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputSearchText(cmd *cobra.Command, result *searcher.RetrieveResult) {
	if len(result.Chunks) == 0 {
		cmd.Println("No results found.")
		return
	}

	if !searchAnalyze {
		for i, c := range result.Chunks {
			cmd.Printf("[%d] %s (%.3f)\n", i+1, c.Metadata.Source, c.Score)
			cmd.Println(indent(c.Content, "    "))
			cmd.Println()
		}
	}

	cmd.Printf("Sources (%d):\n", len(result.Sources))
	for _, src := range result.Sources {
		line := "  " + src.Path
		if src.LineCount != nil && src.FileSize != nil {
			line += fmt.Sprintf("  %d lines, %d bytes", *src.LineCount, *src.FileSize)
		}
		cmd.Println(line)
	}

	summary := fmt.Sprintf("%d of %d chunks", len(result.Chunks), result.TotalRetrieved)
	if result.Truncated {
		summary += " (truncated)"
	}
	if result.EmbeddingModel != "" {
		summary += ", model " + result.EmbeddingModel
	}
	cmd.Println(summary)
}

func indent(text, prefix string) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
