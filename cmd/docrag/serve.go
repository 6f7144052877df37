package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/docrag-mcp/internal/logger"
	"github.com/dshills/docrag-mcp/internal/mcp"
	"github.com/dshills/docrag-mcp/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server on stdio",
	Long: `Start the Model Context Protocol server over stdio.

Stdout carries the protocol; logs go to stderr.

Client configuration:
  {
    "mcpServers": {
      "docrag": {
        "command": "/path/to/docrag",
        "args": ["serve"]
      }
    }
  }`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("failed to close: %v", err)
		}
	}()

	logger.Info("docrag MCP server %s starting (build mode %s, driver %s)",
		version, storage.BuildMode, a.Config.Storage.Driver)

	server := mcp.NewServer(a)

	errChan := make(chan error, 1)
	go func() {
		logger.Info("MCP server ready, listening on stdio...")
		errChan <- server.Serve(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		return nil
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}
}
