// Package pipeline implements the run pipeline (C8): the top-level state
// machine that takes a user prompt through memory search, prompt merging,
// backend supervision, post-run gatekeeper evaluation, and write-back, while
// emitting structural wrapper events to the bus.
package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/memexd/memexd/internal/candidate"
	"github.com/memexd/memexd/internal/dialect"
	"github.com/memexd/memexd/internal/eventbus"
	"github.com/memexd/memexd/internal/gatekeeper"
	"github.com/memexd/memexd/internal/memoryclient"
	"github.com/memexd/memexd/internal/supervisor"
	"github.com/memexd/memexd/pkg/models"
)

var anchorPattern = regexp.MustCompile(`\[QA_REF\s+([^\]\s]+)\]`)

// Config parameterises a Pipeline across its dependent components.
type Config struct {
	ProjectID        string
	SearchLimit      int
	SearchMinScore   float64
	InjectConfig     memoryclient.InjectConfig
	GatekeeperConfig gatekeeper.Config
	CandidateConfig  candidate.Config
	SupervisorConfig supervisor.Config
	ValidationSource string
}

// DefaultConfig wires every component's own defaults together.
func DefaultConfig() Config {
	return Config{
		SearchLimit:      20,
		InjectConfig:     memoryclient.DefaultInjectConfig(),
		GatekeeperConfig: gatekeeper.DefaultConfig(),
		CandidateConfig:  candidate.DefaultConfig(),
		SupervisorConfig: supervisor.DefaultConfig(),
		ValidationSource: "mem-codecli",
	}
}

// Request describes one run: the user's prompt and how to invoke the
// backend for it.
type Request struct {
	Backend      string
	BaseArgs     []string
	ResumeID     string
	Model        string
	StreamFormat dialect.StreamFormat
	UserQuery    string
	Env          []string
}

// Result is returned once the pipeline reaches EMIT_END.
type Result struct {
	RunID    string
	Outcome  models.RunOutcome
	Decision models.GatekeeperDecision
}

// Pipeline orchestrates one run end to end.
type Pipeline struct {
	cfg    Config
	memory memoryclient.Client
	gate   *gatekeeper.Gatekeeper
	sup    *supervisor.Supervisor
	bus    *eventbus.Bus
	log    *slog.Logger
}

// New constructs a Pipeline. bus may be nil to disable event emission
// (e.g. in tests); logger defaults to slog.Default() when nil.
func New(cfg Config, memory memoryclient.Client, bus *eventbus.Bus, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		cfg:    cfg,
		memory: memory,
		gate:   gatekeeper.New(cfg.GatekeeperConfig),
		sup:    supervisor.New(cfg.SupervisorConfig),
		bus:    bus,
		log:    logger,
	}
}

// Run drives one request through PRE_SEARCH, PROMPT_MERGE, SPAWN,
// SUPERVISE, POST_EVAL, WRITE_BACK and EMIT_END.
func (p *Pipeline) Run(ctx context.Context, req Request) (Result, error) {
	provisionalID := uuid.NewString()
	effectiveID := provisionalID
	established := false
	var buffered []models.WrapperEvent

	flushWith := func(id string) {
		for _, ev := range buffered {
			ev.RunID = id
			p.send(ctx, ev)
		}
		buffered = nil
	}
	establish := func(id string) {
		if established {
			return
		}
		established = true
		effectiveID = id
		flushWith(id)
	}
	emit := func(typ models.WrapperEventType, data any) {
		ev := models.WrapperEvent{V: 1, Type: typ, TS: time.Now().UTC(), RunID: effectiveID, Data: data}
		if established {
			p.send(ctx, ev)
			return
		}
		buffered = append(buffered, ev)
	}

	// PRE_SEARCH. The event-ordering contract requires memory.search.result
	// (when emitted at all) to precede run.start, so the search must run and
	// be emitted before run.start is queued.
	var matches []models.SearchMatch
	searched := false
	if p.memory != nil {
		m, err := p.memory.Search(ctx, memoryclient.SearchRequest{
			ProjectID: p.cfg.ProjectID,
			Query:     req.UserQuery,
			Limit:     p.cfg.SearchLimit,
			MinScore:  p.cfg.SearchMinScore,
		})
		if err != nil {
			p.log.Warn("memory search degraded", "error", err)
		} else {
			matches = m
			searched = true
		}
	}
	if searched {
		emit(models.WrapperEventMemorySearch, map[string]any{"count": len(matches)})
	}
	emit(models.WrapperEventRunStart, map[string]any{"backend": req.Backend})

	// PROMPT_MERGE
	injectList := p.gate.PrepareInject(matches)
	memCtx := memoryclient.RenderMemoryContext(injectList, p.cfg.InjectConfig)
	merged := memoryclient.MergePrompt(req.UserQuery, memCtx)

	// SPAWN
	strategy := dialect.Resolve(req.Backend)
	plan, err := strategy.Plan(dialect.PlanRequest{
		Backend:      req.Backend,
		BaseArgs:     req.BaseArgs,
		ResumeID:     req.ResumeID,
		Prompt:       merged,
		Model:        req.Model,
		StreamFormat: req.StreamFormat,
	})
	if err != nil {
		establish(provisionalID)
		return Result{}, err
	}

	spec := supervisor.Spec{Program: plan.Program, Args: plan.Args, Env: req.Env}
	if plan.PromptOnStdin {
		spec.Stdin = []byte(merged + "\n")
		spec.CloseStdinAfterWrite = true
	}

	onEvent := func(ev models.ToolEvent) {
		if !established && ev.RunID != "" {
			establish(ev.RunID)
		}
	}

	// SUPERVISE
	result, err := p.sup.Run(ctx, spec, onEvent)
	if err != nil {
		establish(provisionalID)
		return Result{}, err
	}
	establish(provisionalID)

	// POST_EVAL
	shownIDs := make([]string, 0, len(injectList))
	for _, it := range injectList {
		shownIDs = append(shownIDs, it.QAID)
	}
	usedIDs := extractUsedAnchors(result.StdoutTail)

	outcome := models.RunOutcome{
		ExitCode:   result.ExitCode,
		DurationMS: result.DurationMS,
		StdoutTail: result.StdoutTail,
		StderrTail: result.StderrTail,
		ToolEvents: result.ToolEvents,
		ShownQAIDs: shownIDs,
		UsedQAIDs:  usedIDs,
	}
	decision := p.gate.Evaluate(time.Now().UTC(), matches, outcome, result.ToolEvents)

	// WRITE_BACK — failures here are logged and discarded, never surfaced.
	p.writeBack(ctx, req, decision, result)

	// EMIT_END
	emit(models.WrapperEventGatekeeperDecide, decision)
	if result.Aborted {
		emit(models.WrapperEventPolicyAbort, map[string]any{"reason": result.AbortReason})
	}
	if p.bus != nil {
		if dropped := p.bus.Dropped(); dropped > 0 {
			emit(models.WrapperEventTeeDrop, map[string]any{"dropped_lines": dropped})
		}
	}
	emit(models.WrapperEventRunEnd, map[string]any{"exit_code": result.ExitCode, "duration_ms": result.DurationMS})

	return Result{RunID: effectiveID, Outcome: outcome, Decision: decision}, nil
}

func (p *Pipeline) writeBack(ctx context.Context, req Request, decision models.GatekeeperDecision, result supervisor.Result) {
	if p.memory == nil {
		return
	}
	if len(decision.HitRefs) > 0 {
		if err := p.memory.RecordHit(ctx, memoryclient.BuildHitPayload(p.cfg.ProjectID, decision)); err != nil {
			p.log.Warn("record hit failed", "error", err)
		}
	}
	for _, vp := range memoryclient.BuildValidatePayloads(p.cfg.ProjectID, decision, time.Now().UTC(), p.cfg.ValidationSource) {
		if err := p.memory.RecordValidation(ctx, vp); err != nil {
			p.log.Warn("record validation failed", "qa_id", vp.QAID, "error", err)
		}
	}
	if decision.ShouldWriteCandidate {
		drafts := candidate.Extract(p.cfg.CandidateConfig, req.UserQuery, result.StdoutTail, result.StderrTail, result.ToolEvents)
		for _, cp := range memoryclient.BuildCandidatePayloads(p.cfg.ProjectID, drafts) {
			if err := p.memory.RecordCandidate(ctx, cp); err != nil {
				p.log.Warn("record candidate failed", "error", err)
			}
		}
	}
}

func (p *Pipeline) send(ctx context.Context, ev models.WrapperEvent) {
	if p.bus == nil {
		return
	}
	line, err := json.Marshal(ev)
	if err != nil {
		p.log.Warn("encode wrapper event failed", "error", err)
		return
	}
	p.bus.Send(ctx, string(line))
}

func extractUsedAnchors(stdoutTail []byte) []string {
	matches := anchorPattern.FindAllStringSubmatch(string(stdoutTail), -1)
	seen := make(map[string]bool, len(matches))
	var out []string
	for _, m := range matches {
		id := m[1]
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
