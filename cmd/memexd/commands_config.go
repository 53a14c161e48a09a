package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/memexd/memexd/internal/config"
	"github.com/memexd/memexd/internal/taskschema"
)

// buildConfigCmd creates the "config" command group: "validate" to check a
// config file the way every other subcommand loads one, and "schema" to
// print the JSON Schema for either the config file itself or an exec-graph
// task array.
func buildConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate memexd configuration",
	}
	cmd.AddCommand(buildConfigValidateCmd(), buildConfigSchemaCmd())
	return cmd
}

func buildConfigValidateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate a configuration file",
		Long: `Runs the same $include resolution, env overrides, defaulting, version
check, and field validation that every other memexd subcommand applies
before it will use a config file, without actually starting anything.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath = resolveConfigPath(configPath)
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (version %d, backend %q)\n", configPath, cfg.Version, cfg.Backend.Program)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigName, "Path to configuration file")
	return cmd
}

func buildConfigSchemaCmd() *cobra.Command {
	var target string

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print a JSON Schema for the config file or an exec-graph task array",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				raw []byte
				err error
			)
			switch target {
			case "config":
				raw, err = config.JSONSchema()
			case "tasks":
				raw, err = taskschema.JSONSchema()
			default:
				return fmt.Errorf("config schema: unknown target %q, want \"config\" or \"tasks\"", target)
			}
			if err != nil {
				return fmt.Errorf("config schema: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(raw))
			return nil
		},
	}
	cmd.Flags().StringVar(&target, "target", "config", `Schema to print: "config" or "tasks"`)
	return cmd
}
