package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var modelsProbe bool

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List embedding models and their dimensions",
	Long: `Lists the provider's embedding-capable models. With --probe each model is
asked for its vector width, and models matching the index dimension are
marked.`,
	Args: cobra.NoArgs,
	RunE: runModels,
}

func init() {
	modelsCmd.Flags().BoolVar(&modelsProbe, "probe", true, "embed a probe text to learn each dimension")
	rootCmd.AddCommand(modelsCmd)
}

func runModels(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	models, err := a.Embedder.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("failed to list models: %w", err)
	}
	dim, err := a.Store.Dimension(ctx)
	if err != nil {
		return fmt.Errorf("failed to read index dimension: %w", err)
	}

	cmd.Printf("Provider: %s (default model %s)\n", a.Embedder.Provider(), a.Resolver.DefaultModel())
	if dim > 0 {
		cmd.Printf("Index dimension: %d\n", dim)
	} else {
		cmd.Println("Index dimension: unbound")
	}
	cmd.Println()

	for _, m := range models {
		if !m.EmbeddingCapable {
			continue
		}
		width := m.Dimension
		if width == 0 && modelsProbe {
			probed, err := a.Resolver.ProbeDimension(ctx, m.Name)
			if err != nil {
				cmd.Printf("  %-32s probe failed: %v\n", m.Name, err)
				continue
			}
			width = probed
		}

		mark := ""
		if dim > 0 && width == dim {
			mark = "  *"
		}
		if width == 0 {
			cmd.Printf("  %-32s ?\n", m.Name)
			continue
		}
		cmd.Printf("  %-32s %5d%s\n", m.Name, width, mark)
	}
	return nil
}
