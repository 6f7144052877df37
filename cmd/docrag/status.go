package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// recentRuns is how many index runs status prints
const recentRuns = 5

var (
	statusTenant  string
	statusSources int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index status and recent runs",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusTenant, "tenant", "", "report rows under this name prefix")
	statusCmd.Flags().IntVar(&statusSources, "sources", 20, "number of sources to list (0 to hide)")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	status, err := a.Store.Status(ctx, statusTenant)
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}

	cmd.Printf("Backend:   %s\n", status.Backend)
	if !status.TableExists {
		cmd.Println("Index:     empty (no dimension bound yet)")
		return nil
	}
	cmd.Printf("Dimension: %d\n", status.Dimension)
	cmd.Printf("Chunks:    %d\n", status.ChunkCount)
	cmd.Printf("Sources:   %d\n", status.SourceCount)
	if statusTenant != "" && !status.HasTenantRows {
		cmd.Printf("No rows under %q\n", statusTenant)
	}

	runs, err := a.Store.RecentRuns(ctx, recentRuns)
	if err != nil {
		return fmt.Errorf("failed to get index runs: %w", err)
	}
	if len(runs) > 0 {
		cmd.Println()
		cmd.Println("Recent runs:")
		for _, r := range runs {
			line := fmt.Sprintf("  %s  %d files, %d chunks, %d skipped, %s",
				r.StartedAt.Local().Format(time.DateTime), r.FilesCount, r.ChunksCount, r.SkippedCount, r.Duration.Round(time.Millisecond))
			if r.Error != "" {
				line += "  error: " + r.Error
			}
			cmd.Println(line)
		}
	}

	if statusSources <= 0 {
		return nil
	}
	sources, err := a.Store.ListSources(ctx, statusTenant, statusSources)
	if err != nil {
		return fmt.Errorf("failed to list sources: %w", err)
	}
	cmd.Println()
	cmd.Println("Sources:")
	for _, s := range sources {
		cmd.Printf("  %s\n", s.Path)
	}
	return nil
}
