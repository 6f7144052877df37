package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/docrag-mcp/internal/logger"
	"github.com/dshills/docrag-mcp/internal/searcher"
	"github.com/dshills/docrag-mcp/pkg/types"
)

// recentRunsShown is how many runs get_index_status reports
const recentRunsShown = 5

// handleIndexDocuments handles the index_documents tool invocation
func (s *Server) handleIndexDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	docs, err := parseDocuments(args["files"])
	if err != nil {
		return nil, invalidParam("files", err.Error())
	}
	incremental := getBoolDefault(args, "incremental", true)

	report, err := s.app.Indexer.Sync(ctx, docs, incremental)
	if err != nil {
		logger.Error("index_documents failed: %v", err)
		return nil, toMCPError("indexing failed", err)
	}
	if report.ChunksCount > 0 {
		s.app.Searcher.InvalidateCache()
	}

	response := map[string]interface{}{
		"files_count":            report.FilesCount,
		"chunks_count":           report.ChunksCount,
		"skipped_files":          report.SkippedFiles,
		"skipped_empty_chunks":   report.SkippedEmptyChunks,
		"skipped_bad_embeddings": report.SkippedBadEmbeddings,
		"embedding_dimension":    report.EmbeddingDimension,
		"embedding_model":        report.EmbeddingModel,
		"duration_ms":            report.Duration.Milliseconds(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// parseDocuments converts the files argument into documents
func parseDocuments(raw interface{}) ([]types.Document, error) {
	items, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("must be an array of {name, content}")
	}
	docs := make([]types.Document, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("files[%d] must be an object", i)
		}
		name, _ := obj["name"].(string)
		if name == "" {
			return nil, fmt.Errorf("files[%d].name is required", i)
		}
		content, ok := obj["content"].(string)
		if !ok {
			return nil, fmt.Errorf("files[%d].content must be a string", i)
		}
		docs = append(docs, types.Document{Name: name, Content: content})
	}
	return docs, nil
}

// chunkView is the per-chunk shape returned by search_documents
type chunkView struct {
	Source  string  `json:"source"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// handleSearchDocuments handles the search_documents tool invocation
func (s *Server) handleSearchDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	cfg := s.app.Config.Search
	req := searcher.RetrieveRequest{
		Query:            getStringDefault(args, "query", ""),
		TopK:             getIntDefault(args, "top_k", cfg.TopK),
		TenantPrefix:     getStringDefault(args, "tenant_prefix", ""),
		UseFullScan:      getBoolDefault(args, "use_all_documents", false),
		MaxContextChunks: getIntDefault(args, "max_context_chunks", cfg.MaxContextChunks),
		UseCache:         true,
	}
	if req.TopK < 1 {
		return nil, newMCPError(ErrorCodeInvalidParams, "top_k must be at least 1", map[string]interface{}{
			"param": "top_k",
			"value": req.TopK,
		})
	}
	if req.MaxContextChunks < 1 {
		return nil, newMCPError(ErrorCodeInvalidParams, "max_context_chunks must be at least 1", map[string]interface{}{
			"param": "max_context_chunks",
			"value": req.MaxContextChunks,
		})
	}
	analyzeOnly := getBoolDefault(args, "analyze_only", false)

	result, err := s.app.Searcher.Retrieve(ctx, req)
	if err != nil {
		logger.Error("search_documents failed: %v", err)
		return nil, toMCPError("search failed", err)
	}

	response := map[string]interface{}{
		"chunks_used":     len(result.Chunks),
		"total_retrieved": result.TotalRetrieved,
		"sources":         result.Sources,
		"truncated":       result.Truncated,
		"embedding_model": result.EmbeddingModel,
	}
	if !analyzeOnly {
		chunks := make([]chunkView, len(result.Chunks))
		for i, c := range result.Chunks {
			chunks[i] = chunkView{Source: c.Metadata.Source, Content: c.Content, Score: c.Score}
		}
		response["chunks"] = chunks
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetIndexStatus handles the get_index_status tool invocation
func (s *Server) handleGetIndexStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	prefix := getStringDefault(args, "tenant_prefix", "")

	status, err := s.app.Store.Status(ctx, prefix)
	if err != nil {
		return nil, toMCPError("failed to get status", err)
	}
	runs, err := s.app.Store.RecentRuns(ctx, recentRunsShown)
	if err != nil {
		return nil, toMCPError("failed to get index runs", err)
	}

	response := map[string]interface{}{
		"backend":             status.Backend,
		"table_exists":        status.TableExists,
		"has_rows":            status.HasRows,
		"has_tenant_rows":     status.HasTenantRows,
		"chunk_count":         status.ChunkCount,
		"source_count":        status.SourceCount,
		"embedding_dimension": status.Dimension,
		"recent_runs":         runs,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleListSources handles the list_sources tool invocation
func (s *Server) handleListSources(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	prefix := getStringDefault(args, "tenant_prefix", "")
	limit := getIntDefault(args, "limit", 100)
	if limit < 1 {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be at least 1", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	sources, err := s.app.Store.ListSources(ctx, prefix, limit)
	if err != nil {
		return nil, toMCPError("failed to list sources", err)
	}

	response := map[string]interface{}{
		"sources": sources,
		"count":   len(sources),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleDeleteDocuments handles the delete_documents tool invocation
func (s *Server) handleDeleteDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	sources, err := getStringSlice(args, "sources")
	if err != nil {
		return nil, invalidParam("sources", err.Error())
	}
	prefix := getStringDefault(args, "tenant_prefix", "")
	if len(sources) == 0 && prefix == "" {
		return nil, invalidParam("sources", "sources or tenant_prefix is required")
	}

	deleted, err := s.app.Indexer.Remove(ctx, sources, prefix)
	if err != nil {
		return nil, toMCPError("delete failed", err)
	}
	if deleted > 0 {
		s.app.Searcher.InvalidateCache()
	}

	response := map[string]interface{}{
		"deleted_chunks": deleted,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// getStringSlice extracts an optional array of strings
func getStringSlice(args map[string]interface{}, key string) ([]string, error) {
	raw, present := args[key]
	if !present || raw == nil {
		return nil, nil
	}
	items, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("must be an array of strings")
	}
	out := make([]string, 0, len(items))
	for i, item := range items {
		str, ok := item.(string)
		if !ok || str == "" {
			return nil, fmt.Errorf("element %d must be a non-empty string", i)
		}
		out = append(out, str)
	}
	return out, nil
}
