// Package executor implements the layered task executor (C9): it validates
// a task dependency graph, groups tasks into topological layers, and runs
// each layer with bounded, CPU-adaptive concurrency.
package executor

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/memexd/memexd/internal/filecache"
	"github.com/memexd/memexd/internal/retry"
	"github.com/memexd/memexd/pkg/models"
)

// ErrCycle is returned when the task graph contains a dependency cycle.
var ErrCycle = fmt.Errorf("executor: dependency cycle detected")

// Runner executes a single task and returns its outcome.
type Runner func(ctx context.Context, task models.Task) (models.RunOutcome, error)

// Config configures the layered executor.
type Config struct {
	MaxParallel     int           `yaml:"max_parallel_tasks"`
	AdaptiveScaling bool          `yaml:"adaptive_concurrency"`
	MinParallel     int           `yaml:"min_parallel_tasks"`
	StopOnFirstFail bool          `yaml:"stop_on_first_fail"`
	DefaultTimeout  time.Duration `yaml:"default_timeout"`
	DefaultRetry    int           `yaml:"default_retry"`
	CPULoadSampler  func() float64 `yaml:"-"` // 0..1, fraction of CPU in use; nil disables scaling

	// FileCache resolves a task's files list into inline content before it
	// reaches Runner; nil disables file expansion (tasks run with Content
	// unchanged).
	FileCache *filecache.Cache `yaml:"-"`
}

// DefaultConfig returns sensible defaults: parallelism capped at 2x CPU
// cores, adaptive scaling enabled, stop-on-first-failure off.
func DefaultConfig() Config {
	cores := runtime.NumCPU()
	return Config{
		MaxParallel:     cores * 2,
		AdaptiveScaling: true,
		MinParallel:     1,
		StopOnFirstFail: false,
		DefaultTimeout:  5 * time.Minute,
		DefaultRetry:    0,
		FileCache:       filecache.NewFromEnv(),
	}
}

// Executor runs a graph of models.Task under Config's concurrency policy.
type Executor struct {
	cfg Config
}

// New constructs an Executor.
func New(cfg Config) *Executor {
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = runtime.NumCPU() * 2
	}
	if cfg.MinParallel <= 0 {
		cfg.MinParallel = 1
	}
	return &Executor{cfg: cfg}
}

// Layer is one topologically-ordered batch of task ids that may run
// concurrently.
type Layer []string

// Plan validates the task graph and returns its topological layering.
// Validation rejects duplicate ids, references to unknown dependency ids,
// and cycles.
func Plan(tasks []models.Task) ([]Layer, error) {
	byID := make(map[string]models.Task, len(tasks))
	for _, t := range tasks {
		if _, dup := byID[t.ID]; dup {
			return nil, fmt.Errorf("executor: duplicate task id %q", t.ID)
		}
		byID[t.ID] = t
	}
	for _, t := range tasks {
		for _, dep := range t.Dependencies {
			if _, ok := byID[dep]; !ok {
				return nil, fmt.Errorf("executor: task %q depends on unknown task %q", t.ID, dep)
			}
		}
	}

	remaining := make(map[string]models.Task, len(byID))
	for id, t := range byID {
		remaining[id] = t
	}

	var layers []Layer
	for len(remaining) > 0 {
		var ready []string
		for id, t := range remaining {
			allSatisfied := true
			for _, dep := range t.Dependencies {
				if _, stillPending := remaining[dep]; stillPending {
					allSatisfied = false
					break
				}
			}
			if allSatisfied {
				ready = append(ready, id)
			}
		}
		if len(ready) == 0 {
			return nil, ErrCycle
		}
		sort.Strings(ready)
		layers = append(layers, Layer(ready))
		for _, id := range ready {
			delete(remaining, id)
		}
	}
	return layers, nil
}

// Run validates and executes tasks layer by layer, applying run per task
// (with retry and timeout) under a concurrency semaphore whose weight is
// re-sampled before each layer when adaptive scaling is enabled.
func (e *Executor) Run(ctx context.Context, tasks []models.Task, run Runner) ([]models.TaskResult, error) {
	layers, err := Plan(tasks)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]models.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}

	results := make([]models.TaskResult, 0, len(tasks))
	var resultsMu sync.Mutex
	var aborted atomic.Bool

	current := runtime.NumCPU()
	if current > e.cfg.MaxParallel {
		current = e.cfg.MaxParallel
	}
	if current < e.cfg.MinParallel {
		current = e.cfg.MinParallel
	}

	for _, layer := range layers {
		if aborted.Load() {
			for _, id := range layer {
				resultsMu.Lock()
				results = append(results, models.TaskResult{TaskID: id, Err: context.Canceled})
				resultsMu.Unlock()
			}
			continue
		}

		current = e.adaptConcurrency(current)
		sem := semaphore.NewWeighted(int64(current))
		// errgroup cancels layerCtx on the first task error when
		// StopOnFirstFail is set, so sem.Acquire below fails fast for any
		// sibling in this layer that hasn't started yet; tasks already
		// running are left to finish (ctx is the caller's, not layerCtx).
		g, layerCtx := errgroup.WithContext(ctx)

		for _, id := range layer {
			task := byID[id]
			g.Go(func() error {
				if err := sem.Acquire(layerCtx, 1); err != nil {
					resultsMu.Lock()
					results = append(results, models.TaskResult{TaskID: task.ID, Err: err})
					resultsMu.Unlock()
					return nil
				}
				defer sem.Release(1)

				tr := e.runOne(ctx, task, run)
				resultsMu.Lock()
				results = append(results, tr)
				resultsMu.Unlock()
				if e.cfg.StopOnFirstFail && (tr.Err != nil || tr.Outcome.ExitCode != 0) {
					aborted.Store(true)
					if tr.Err != nil {
						return tr.Err
					}
					return fmt.Errorf("executor: task %q exited with code %d", tr.TaskID, tr.Outcome.ExitCode)
				}
				return nil
			})
		}
		_ = g.Wait()
	}

	return results, nil
}

// expandFiles resolves task.Files into inline content appended to
// task.Content, per files_mode/files_encoding, using the executor's shared
// file-content cache. A task with no files, or when no cache is
// configured, passes through unchanged.
func (e *Executor) expandFiles(task models.Task) (models.Task, error) {
	if e.cfg.FileCache == nil || len(task.Files) == 0 {
		return task, nil
	}
	block, err := filecache.Embed(e.cfg.FileCache, task.Files, task.FilesMode, task.FilesEncoding)
	if err != nil {
		return task, fmt.Errorf("executor: task %q: %w", task.ID, err)
	}
	task.Content = task.Content + block
	return task, nil
}

func (e *Executor) runOne(ctx context.Context, task models.Task, run Runner) models.TaskResult {
	task, err := e.expandFiles(task)
	if err != nil {
		return models.TaskResult{TaskID: task.ID, Err: err}
	}

	timeout := e.cfg.DefaultTimeout
	if task.Timeout > 0 {
		timeout = task.Timeout
	}
	attempts := e.cfg.DefaultRetry + 1
	if task.Retry > 0 {
		attempts = task.Retry + 1
	}

	var (
		outcome  models.RunOutcome
		lastErr  error
		numTries int
	)
	rc := retry.Config{MaxAttempts: attempts, InitialDelay: 200 * time.Millisecond, MaxDelay: 5 * time.Second, Factor: 2, Jitter: true}
	res := retry.Do(ctx, rc, func() error {
		numTries++
		runCtx := ctx
		var cancel context.CancelFunc
		if timeout > 0 {
			runCtx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		o, err := run(runCtx, task)
		outcome = o
		// A Runner may report failure purely through a non-zero exit code
		// without returning a Go error (the backend process simply exited
		// non-zero). Retry and stop-on-first-fail both key off Err, so fold
		// that case into an error here rather than requiring every Runner
		// to do it.
		if err == nil && o.ExitCode != 0 {
			err = fmt.Errorf("executor: task %q exited with code %d", task.ID, o.ExitCode)
		}
		lastErr = err
		return err
	})
	if res.Err != nil {
		lastErr = res.Err
	}

	return models.TaskResult{
		TaskID:   task.ID,
		Outcome:  outcome,
		Attempts: numTries,
		Err:      lastErr,
	}
}

// adaptConcurrency resamples the permitted concurrency for the next layer
// relative to the current value. Below 50% CPU load it scales up by half
// (capped at MaxParallel, itself bounded to 2x cores by DefaultConfig);
// above 80% it scales down by one (floored at MinParallel); otherwise it
// holds steady.
func (e *Executor) adaptConcurrency(current int) int {
	if !e.cfg.AdaptiveScaling || e.cfg.CPULoadSampler == nil {
		return current
	}
	load := e.cfg.CPULoadSampler()
	next := current
	switch {
	case load < 0.5:
		next = current + current/2 + 1
	case load > 0.8:
		next = current - 1
	}
	if next > e.cfg.MaxParallel {
		next = e.cfg.MaxParallel
	}
	if next < e.cfg.MinParallel {
		next = e.cfg.MinParallel
	}
	return next
}
