package main

import (
	"context"
	"os"
	"time"

	"github.com/memexd/memexd/internal/config"
	"github.com/memexd/memexd/internal/eventbus"
	"github.com/memexd/memexd/internal/executor"
	"github.com/memexd/memexd/internal/filecache"
	"github.com/memexd/memexd/internal/memoryclient"
	"github.com/memexd/memexd/internal/observability"
	"github.com/memexd/memexd/internal/pipeline"
	"github.com/memexd/memexd/internal/policy"
)

// components bundles the long-lived objects built from one loaded Config,
// shared by the run/serve/exec-graph commands.
type components struct {
	cfg        *config.Config
	logger     *observability.Logger
	metrics    *observability.Metrics
	bus        *eventbus.Bus
	memory     memoryclient.Client
	pipe       *pipeline.Pipeline
	exec       *executor.Executor
	toolPolicy policy.Config
	recorder   *observability.EventRecorder
	events     observability.EventStore
}

// buildComponents wires every component's Config from cfg into its
// constructor, the way cmd/memexd assembles the run pipeline for both the
// one-shot `run` command and the long-lived `serve` command.
func buildComponents(cfg *config.Config) *components {
	logger := observability.NewLogger(cfg.Logging)
	metrics := observability.NewMetrics()
	bus := eventbus.New(cfg.EventBus)
	eventStore := observability.NewMemoryEventStore(1000)
	recorder := observability.NewEventRecorder(eventStore, logger)

	gkCfg := cfg.Gatekeeper
	gkCfg.Policy = policy.New(cfg.ToolPolicy)

	memory := memoryclient.New(cfg.Memory, nil)

	supCfg := cfg.Supervisor
	if supCfg.Mirror && supCfg.MirrorWriter == nil {
		supCfg.MirrorWriter = os.Stdout
	}

	pipeCfg := pipeline.Config{
		ProjectID:        cfg.ProjectID,
		SearchLimit:      20,
		GatekeeperConfig: gkCfg,
		CandidateConfig:  cfg.Candidate,
		SupervisorConfig: supCfg,
		ValidationSource: "memexd",
	}
	pipe := pipeline.New(pipeCfg, memory, bus, logger.Slog())

	execCfg := cfg.Executor
	execCfg.FileCache = filecache.New(cfg.FileCache.MaxEntries)

	return &components{
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics,
		bus:        bus,
		memory:     memory,
		pipe:       pipe,
		exec:       executor.New(execCfg),
		toolPolicy: cfg.ToolPolicy,
		recorder:   recorder,
		events:     eventStore,
	}
}

// recordPolicyBlocks scans a run's tool events for invocations the tool
// policy provider would deny, emitting a metric and a timeline event per
// tool name seen. The supervisor itself has no live veto path (the decision
// channel only carries policy.abort, not per-tool denials); this is the
// post-hoc accounting the gatekeeper's own "blocked_by_policy" reasoning
// already does internally, surfaced here for operators watching metrics.
// recordRunLifecycle stores a run.start/run.end and, when applicable, a
// gatekeeper.decide event against runID, making the run queryable later
// through GET /v1/events?run_id=... (handleEventTimeline) for as long as this
// process stays up. A one-shot command (run, exec-graph) only has that
// window to itself; serve's long-lived process is where this pays off.
func (c *components) recordRunLifecycle(ctx context.Context, runID string, outcomeErr error, durationMS int64, writeCandidate bool, reasons []string) {
	if c.recorder == nil {
		return
	}
	ctx = observability.AddRunID(ctx, runID)
	_ = c.recorder.RecordRunStart(ctx, runID, nil)
	_ = c.recorder.RecordGatekeeperDecision(ctx, writeCandidate, map[string]interface{}{"reasons": reasons})
	_ = c.recorder.RecordRunEnd(ctx, time.Duration(durationMS)*time.Millisecond, outcomeErr)
}

func (c *components) recordPolicyBlocks(ctx context.Context, runID string, toolNames []string) {
	if c.metrics == nil || len(toolNames) == 0 {
		return
	}
	p := policy.New(c.toolPolicy)
	seen := make(map[string]bool, len(toolNames))
	ctx = observability.AddRunID(ctx, runID)
	for _, name := range toolNames {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		if p.Evaluate(name) == policy.ActionDeny {
			c.metrics.RecordPolicyBlock(name)
			if c.recorder != nil {
				_ = c.recorder.Record(ctx, observability.EventTypePolicyBlock, "tool_policy_denied", map[string]interface{}{"tool": name})
			}
		}
	}
}
