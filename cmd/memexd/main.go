// Package main provides the CLI entry point for memexd, a supervising
// wrapper around a spawned AI-assistant backend (codex, claude, gemini) that
// injects memory search results into the prompt, watches the backend's tool
// events for a gatekeeper decision, and writes validated Q/A candidates back
// to an external memory collaborator.
//
// # Basic Usage
//
// Run one request through the pipeline:
//
//	memexd run --config memexd.yaml "how do I rotate the deploy key"
//
// Start the admin HTTP surface (health, metrics, memory search proxy):
//
//	memexd serve --config memexd.yaml
//
// Run a dependency graph of tasks through the layered executor:
//
//	memexd exec-graph --config memexd.yaml tasks.json
//
// # Environment Variables
//
//   - MEMEXD_HOST: server bind host
//   - MEMEXD_HTTP_PORT: admin HTTP port
//   - MEMEXD_PROJECT_ID: memory collaborator project id
//   - MEMEXD_MEMORY_BASE_URL: memory collaborator base URL
//   - MEMEXD_MEMORY_API_KEY: memory collaborator bearer API key
//   - MEMEXD_BACKEND: default backend program
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information - populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(exitCodeFor(err))
	}
}

// buildRootCmd creates the root command with all subcommands attached. This
// is separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "memexd",
		Short: "memexd - supervising wrapper for AI-assistant CLI backends",
		Long: `memexd spawns an AI-assistant CLI backend (codex, claude, gemini), injects
relevant memory search results into its prompt, supervises its tool-event
stream for a gatekeeper decision, and writes validated Q/A candidates back
to an external memory collaborator.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildRunCmd(),
		buildServeCmd(),
		buildExecGraphCmd(),
		buildMemoryCmd(),
		buildConfigCmd(),
		buildVersionCmd(),
	)
	return rootCmd
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "memexd %s (commit: %s, built: %s)\n", version, commit, date)
			return nil
		},
	}
}

const defaultConfigName = "memexd.yaml"

func resolveConfigPath(path string) string {
	if path == "" {
		return defaultConfigName
	}
	return path
}
