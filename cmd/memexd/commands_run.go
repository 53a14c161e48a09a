package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/memexd/memexd/internal/config"
	"github.com/memexd/memexd/internal/dialect"
	"github.com/memexd/memexd/internal/pipeline"
	"github.com/memexd/memexd/pkg/models"
)

// buildRunCmd creates the "run" command: one request through the pipeline,
// from memory search through backend supervision to candidate write-back.
func buildRunCmd() *cobra.Command {
	var (
		configPath string
		backend    string
		model      string
		resumeID   string
		baseArgs   []string
		stream     string
		jsonOut    bool
	)

	cmd := &cobra.Command{
		Use:   "run [query]",
		Short: "Run one request through the memory-augmented pipeline",
		Long: `Run spawns the configured backend once, with the given query merged
against relevant memory search results, supervises its tool-event stream for
a gatekeeper decision, and writes validated Q/A candidates back to the
memory collaborator.`,
		Example: `  memexd run "how do I rotate the deploy key"
  memexd run --backend claude --model claude-sonnet-4 "summarize this repo"`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath = resolveConfigPath(configPath)
			return runOnce(cmd.Context(), runOptions{
				configPath: configPath,
				backend:    backend,
				model:      model,
				resumeID:   resumeID,
				baseArgs:   baseArgs,
				stream:     stream,
				jsonOut:    jsonOut,
				query:      strings.Join(args, " "),
				out:        cmd.OutOrStdout(),
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigName, "Path to configuration file")
	cmd.Flags().StringVar(&backend, "backend", "", "Backend program override (codex, claude, gemini)")
	cmd.Flags().StringVar(&model, "model", "", "Model name passed to the backend")
	cmd.Flags().StringVar(&resumeID, "resume", "", "Resume a prior backend session by id")
	cmd.Flags().StringArrayVar(&baseArgs, "arg", nil, "Extra argument passed through to the backend (repeatable)")
	cmd.Flags().StringVar(&stream, "stream", "", "Stream format override: text or jsonl")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the run result as JSON")

	return cmd
}

type runOptions struct {
	configPath string
	backend    string
	model      string
	resumeID   string
	baseArgs   []string
	stream     string
	jsonOut    bool
	query      string
	out        io.Writer
}

func runOnce(ctx context.Context, opts runOptions) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	comps := buildComponents(cfg)
	if comps.bus != nil {
		if err := comps.bus.Start(ctx); err != nil {
			comps.logger.Slog().Warn("event bus failed to start", "error", err)
		}
		defer comps.bus.Close()
	}

	req := pipeline.Request{
		Backend:   firstNonEmpty(opts.backend, cfg.Backend.Program),
		BaseArgs:  append(append([]string{}, cfg.Backend.BaseArgs...), opts.baseArgs...),
		ResumeID:  opts.resumeID,
		Model:     firstNonEmpty(opts.model, cfg.Backend.Model),
		UserQuery: opts.query,
	}
	req.StreamFormat = dialect.StreamFormat(firstNonEmpty(opts.stream, cfg.Backend.StreamFormat))
	if req.StreamFormat == "" {
		req.StreamFormat = dialect.StreamText
	}

	result, err := comps.pipe.Run(ctx, req)
	if err != nil {
		return err
	}

	comps.recordPolicyBlocks(ctx, result.RunID, toolEventNames(result.Outcome.ToolEvents))
	comps.metrics.RecordRun(req.Backend, exitStatusLabel(result.Outcome.ExitCode), float64(result.Outcome.DurationMS)/1000)
	comps.metrics.RecordGatekeeperDecision(result.Decision.ShouldWriteCandidate)
	comps.recordRunLifecycle(ctx, result.RunID, exitCodeError(result.Outcome.ExitCode), result.Outcome.DurationMS, result.Decision.ShouldWriteCandidate, result.Decision.Reasons)

	if opts.jsonOut {
		if err := printRunJSON(opts.out, result); err != nil {
			return err
		}
	} else {
		tty := isOutputTerminal(opts.out)
		printRunSummary(opts.out, result)
		printToolEvents(opts.out, result.Outcome.ToolEvents, tty)
	}

	if result.Outcome.ExitCode != 0 {
		return &exitError{code: result.Outcome.ExitCode}
	}
	return nil
}

func toolEventNames(events []models.ToolEvent) []string {
	names := make([]string, 0, len(events))
	for _, ev := range events {
		if ev.Tool != "" {
			names = append(names, ev.Tool)
		}
	}
	return names
}

// exitCodeError turns a non-zero backend exit code into an error for
// EventRecorder.RecordRunEnd, which records a run.error event distinct from
// a plain run.end when given a non-nil error.
func exitCodeError(code int) error {
	if code == 0 {
		return nil
	}
	return fmt.Errorf("backend exited with code %d", code)
}

func exitStatusLabel(code int) string {
	if code == 0 {
		return "ok"
	}
	return "failed"
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func printRunSummary(w io.Writer, r pipeline.Result) {
	fmt.Fprintf(w, "run %s: exit=%d duration=%dms reasons=%s\n",
		r.RunID, r.Outcome.ExitCode, r.Outcome.DurationMS, strings.Join(r.Decision.Reasons, ";"))
}

func printRunJSON(w io.Writer, r pipeline.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// exitError carries a non-zero process exit code without being treated as a
// supervision failure by exitCodeFor; RunE returning it makes cobra print
// nothing extra (SilenceUsage is set) while main still exits non-zero.
type exitError struct{ code int }

func (e *exitError) Error() string { return fmt.Sprintf("run exited with code %d", e.code) }
