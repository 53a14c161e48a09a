package main

import (
	"github.com/spf13/cobra"
)

// buildServeCmd creates the "serve" command that starts the admin HTTP
// surface: health check, Prometheus metrics, and a memory search proxy.
func buildServeCmd() *cobra.Command {
	var (
		configPath  string
		watchConfig bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the memexd admin HTTP surface",
		Long: `Start memexd's long-lived admin surface: /healthz, /metrics, and a
memory search proxy at /v1/search. The server also starts the event bus
writer goroutine and records a session state file so other processes can
discover it.

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  memexd serve
  memexd serve --config /etc/memexd/production.yaml --watch-config`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath = resolveConfigPath(configPath)
			return runServe(cmd.Context(), configPath, watchConfig)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigName, "Path to configuration file")
	cmd.Flags().BoolVar(&watchConfig, "watch-config", false, "Reload gatekeeper/policy/candidate config on file change")

	return cmd
}
