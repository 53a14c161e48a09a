package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/memexd/memexd/internal/config"
)

// buildMemoryCmd creates the "memory" command group, currently just
// "expire", for operator-triggered maintenance against the memory
// collaborator.
func buildMemoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Maintenance operations against the memory collaborator",
	}
	cmd.AddCommand(buildMemoryExpireCmd())
	return cmd
}

func buildMemoryExpireCmd() *cobra.Command {
	var (
		configPath string
		batchSize  int
	)

	cmd := &cobra.Command{
		Use:   "expire",
		Short: "Expire stale memory items for this project",
		Long: `Calls the memory collaborator's expire operation, which retires
memory items that have gone stale (consecutive validation failures, age,
or operator-side policy), in batches.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath = resolveConfigPath(configPath)
			return runMemoryExpire(cmd.Context(), configPath, batchSize)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigName, "Path to configuration file")
	cmd.Flags().IntVar(&batchSize, "batch-size", 100, "Maximum number of items to expire in one call")

	return cmd
}

func runMemoryExpire(ctx context.Context, configPath string, batchSize int) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	comps := buildComponents(cfg)
	n, err := comps.memory.Expire(ctx, cfg.ProjectID, batchSize)
	status := "ok"
	if err != nil {
		status = "error"
	}
	comps.metrics.RecordMemoryClientRequest("expire", status)
	if err != nil {
		return fmt.Errorf("expire memory items: %w", err)
	}

	fmt.Printf("expired %d memory items for project %s\n", n, cfg.ProjectID)
	return nil
}
