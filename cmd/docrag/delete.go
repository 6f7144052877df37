package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var deleteTenant string

var deleteCmd = &cobra.Command{
	Use:   "delete [source...]",
	Short: "Remove documents from the index",
	Long: `Deletes every chunk of the named sources. With --tenant every source
whose name starts with the prefix is removed as well.`,
	RunE: runDelete,
}

func init() {
	deleteCmd.Flags().StringVar(&deleteTenant, "tenant", "", "remove every source with this name prefix")
	rootCmd.AddCommand(deleteCmd)
}

func runDelete(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && deleteTenant == "" {
		return errors.New("name at least one source or pass --tenant")
	}
	ctx := cmd.Context()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	deleted, err := a.Indexer.Remove(ctx, args, deleteTenant)
	if err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}
	cmd.Printf("Deleted %d chunks\n", deleted)
	return nil
}
