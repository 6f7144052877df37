// Command docrag indexes documents into a vector store and serves
// retrieval over MCP.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dshills/docrag-mcp/internal/app"
	"github.com/dshills/docrag-mcp/internal/config"
	"github.com/dshills/docrag-mcp/internal/logger"
	"github.com/dshills/docrag-mcp/internal/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:           "docrag",
	Short:         "Incremental document vector index with MCP retrieval",
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       version,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		if verbose {
			logger.SetVerbose(true)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default ~/.docrag/config.yaml)")
	rootCmd.SetOut(os.Stdout)
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.SetVersionTemplate(fmt.Sprintf("docrag {{.Version}}\nBuild Time: %s\nBuild Mode: %s\nSQLite Driver: %s\n",
		buildTime, storage.BuildMode, storage.DriverName))
}

// openApp loads the configuration and builds the shared runtime
func openApp(ctx context.Context, opts ...app.Option) (*app.App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return app.Open(ctx, cfg, opts...)
}

func main() {
	// .env is optional
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Error("%v", err)
		stop()
		os.Exit(1)
	}
}
