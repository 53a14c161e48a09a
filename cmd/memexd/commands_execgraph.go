package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/memexd/memexd/internal/config"
	"github.com/memexd/memexd/internal/dialect"
	"github.com/memexd/memexd/internal/pipeline"
	"github.com/memexd/memexd/internal/taskschema"
	"github.com/memexd/memexd/pkg/models"
)

// buildExecGraphCmd creates the "exec-graph" command: run a dependency
// graph of tasks through the layered executor, each task driven through the
// same run pipeline as `run`.
func buildExecGraphCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "exec-graph [tasks.json]",
		Short: "Run a task dependency graph through the layered executor",
		Long: `Reads a JSON array of tasks, each naming the ids of the tasks it
depends on, and runs them layer by layer with bounded concurrency. Every
task is driven through the same memory-augmented pipeline as "run".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath = resolveConfigPath(configPath)
			return runExecGraph(cmd.Context(), configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigName, "Path to configuration file")
	return cmd
}

func runExecGraph(ctx context.Context, configPath, tasksPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(tasksPath)
	if err != nil {
		return fmt.Errorf("read task graph: %w", err)
	}
	if err := taskschema.Validate(data); err != nil {
		return fmt.Errorf("task graph failed schema validation: %w", err)
	}
	var tasks []models.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		return fmt.Errorf("parse task graph: %w", err)
	}

	comps := buildComponents(cfg)
	if comps.bus != nil {
		if err := comps.bus.Start(ctx); err != nil {
			comps.logger.Slog().Warn("event bus failed to start", "error", err)
		}
		defer comps.bus.Close()
	}

	runner := func(taskCtx context.Context, task models.Task) (models.RunOutcome, error) {
		req := pipeline.Request{
			Backend:      firstNonEmpty(task.Backend, cfg.Backend.Program),
			Model:        firstNonEmpty(task.Model, cfg.Backend.Model),
			StreamFormat: dialect.StreamFormat(firstNonEmpty(task.StreamFormat, cfg.Backend.StreamFormat)),
			UserQuery:    task.Content,
		}
		if req.StreamFormat == "" {
			req.StreamFormat = dialect.StreamText
		}
		result, err := comps.pipe.Run(taskCtx, req)
		if err != nil {
			return models.RunOutcome{}, err
		}
		comps.recordPolicyBlocks(taskCtx, result.RunID, toolEventNames(result.Outcome.ToolEvents))
		comps.recordRunLifecycle(taskCtx, result.RunID, exitCodeError(result.Outcome.ExitCode), result.Outcome.DurationMS, result.Decision.ShouldWriteCandidate, result.Decision.Reasons)
		if result.Outcome.ExitCode != 0 {
			return result.Outcome, fmt.Errorf("task %q: backend exited with code %d", task.ID, result.Outcome.ExitCode)
		}
		return result.Outcome, nil
	}

	results, err := comps.exec.Run(ctx, tasks, runner)
	if err != nil {
		return err
	}

	byID := make(map[string]models.TaskResult, len(results))
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for _, r := range results {
		byID[r.TaskID] = r
		status := "ok"
		if r.Err != nil || r.Outcome.ExitCode != 0 {
			status = "failed"
		}
		comps.metrics.RecordExecutorTaskResult(status)
		if err := enc.Encode(execGraphResult{
			TaskID:   r.TaskID,
			ExitCode: r.Outcome.ExitCode,
			Attempts: r.Attempts,
			Error:    errString(r.Err),
		}); err != nil {
			return err
		}
	}

	return firstFailureExit(tasks, byID)
}

// firstFailureExit walks tasks in submission order and returns an exitError
// for the first one that failed, carrying its process exit code (or 1 when
// the task failed without a backend exit code, e.g. a spawn failure). A task
// never started (skipped after an earlier layer's failure) has no entry in
// byID and is not itself a failure.
func firstFailureExit(tasks []models.Task, byID map[string]models.TaskResult) error {
	for _, t := range tasks {
		r, ok := byID[t.ID]
		if !ok {
			continue
		}
		if r.Outcome.ExitCode != 0 {
			return &exitError{code: r.Outcome.ExitCode}
		}
		if r.Err != nil {
			return &exitError{code: 1}
		}
	}
	return nil
}

type execGraphResult struct {
	TaskID   string `json:"task_id"`
	ExitCode int    `json:"exit_code"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
