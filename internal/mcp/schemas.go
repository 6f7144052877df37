package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// indexDocumentsTool returns the tool definition for index_documents
func indexDocumentsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_documents",
		Description: "Index text documents into the knowledge base. Unchanged documents are skipped.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"files": map[string]interface{}{
					"type":        "array",
					"description": "Documents to index. name may carry a tenant prefix such as 't1:'",
					"items": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"name": map[string]interface{}{
								"type":        "string",
								"description": "Source identifier, e.g. 't1:reports/q3.txt'",
							},
							"content": map[string]interface{}{
								"type":        "string",
								"description": "Extracted plain text",
							},
						},
						"required": []string{"name", "content"},
					},
				},
				"incremental": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, skip documents whose content hash is unchanged",
					"default":     true,
				},
			},
			Required: []string{"files"},
		},
	}
}

// searchDocumentsTool returns the tool definition for search_documents
func searchDocumentsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_documents",
		Description: "Retrieve indexed passages relevant to a question",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Natural language question",
				},
				"top_k": map[string]interface{}{
					"type":        "integer",
					"description": "Number of nearest chunks to retrieve",
					"default":     20,
					"minimum":     1,
				},
				"use_all_documents": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, skip similarity and return every chunk under the tenant prefix",
					"default":     false,
				},
				"tenant_prefix": map[string]interface{}{
					"type":        "string",
					"description": "Only return chunks whose source starts with this prefix",
				},
				"max_context_chunks": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of chunks returned",
					"default":     200,
					"minimum":     1,
				},
				"analyze_only": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, return retrieval statistics without chunk content",
					"default":     false,
				},
			},
		},
	}
}

// getIndexStatusTool returns the tool definition for get_index_status
func getIndexStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_index_status",
		Description: "Report whether the index exists and has rows, optionally under a tenant prefix",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"tenant_prefix": map[string]interface{}{
					"type":        "string",
					"description": "Count only sources starting with this prefix",
				},
			},
		},
	}
}

// listSourcesTool returns the tool definition for list_sources
func listSourcesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list_sources",
		Description: "List indexed sources with their line count and size",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"tenant_prefix": map[string]interface{}{
					"type":        "string",
					"description": "Only list sources starting with this prefix",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of sources",
					"default":     100,
					"minimum":     1,
				},
			},
		},
	}
}

// deleteDocumentsTool returns the tool definition for delete_documents
func deleteDocumentsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "delete_documents",
		Description: "Remove documents from the index by exact source or tenant prefix",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"sources": map[string]interface{}{
					"type":        "array",
					"description": "Exact source names to remove",
					"items": map[string]interface{}{
						"type": "string",
					},
				},
				"tenant_prefix": map[string]interface{}{
					"type":        "string",
					"description": "Remove every source starting with this prefix",
				},
			},
		},
	}
}
