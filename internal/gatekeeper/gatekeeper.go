// Package gatekeeper implements the pure post/pre-run decision function
// (C5): given search matches and, post-run, the run outcome and tool
// events, it selects what to inject into the prompt and what to write back
// to the memory collaborator. Evaluate is deterministic in its inputs so a
// replay harness can reproduce a prior decision byte-for-byte.
package gatekeeper

import (
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/memexd/memexd/internal/policy"
	"github.com/memexd/memexd/pkg/models"
)

// Config holds the thresholds that parameterise gatekeeper decisions.
type Config struct {
	MinLevelInject           int      `yaml:"min_level_inject"`
	MinLevelFallback         int      `yaml:"min_level_fallback"`
	MinTrustShow             float64  `yaml:"min_trust_show"`
	SkipIfTop1ScoreGE        float64  `yaml:"skip_if_top1_score_ge"`
	MaxInject                int      `yaml:"max_inject"`
	ActiveStatuses           []string `yaml:"active_statuses"`
	ExcludeStaleByDefault    bool     `yaml:"exclude_stale_by_default"`
	BlockIfConsecutiveFailGE int      `yaml:"block_if_consecutive_fail_ge"`
	// Policy, when set, flags tool invocations the operator has denied;
	// a denied invocation blocks candidate write-back the same way
	// consecutive tool failures do.
	Policy *policy.Provider `yaml:"-"`
}

// DefaultConfig returns the thresholds used when no configuration is
// supplied.
func DefaultConfig() Config {
	return Config{
		MinLevelInject:           2,
		MinLevelFallback:         1,
		MinTrustShow:             0.4,
		SkipIfTop1ScoreGE:        0.85,
		MaxInject:                3,
		ActiveStatuses:           []string{"active", "validated"},
		ExcludeStaleByDefault:    true,
		BlockIfConsecutiveFailGE: 3,
	}
}

func (c Config) isActive(status string) bool {
	for _, s := range c.ActiveStatuses {
		if s == status {
			return true
		}
	}
	return false
}

var (
	successPattern = regexp.MustCompile(`(?i)\b(success|passed|ok|done|completed)\b`)
	failPattern    = regexp.MustCompile(`(?i)\b(error|failed|failure|panic|exception|traceback)\b`)
)

// Gatekeeper evaluates inject selection and post-run write-back decisions
// over an immutable Config.
type Gatekeeper struct {
	cfg Config
}

// New constructs a Gatekeeper bound to cfg.
func New(cfg Config) *Gatekeeper {
	return &Gatekeeper{cfg: cfg}
}

// PrepareInject runs the pre-run selection rules over matches alone,
// returning the items that will be rendered into the inject preamble.
func (g *Gatekeeper) PrepareInject(matches []models.SearchMatch) []models.InjectItem {
	cfg := g.cfg

	candidates := make([]models.SearchMatch, 0, len(matches))
	for _, m := range matches {
		if cfg.ExcludeStaleByDefault && !cfg.isActive(m.Status) {
			continue
		}
		candidates = append(candidates, m)
	}
	if len(candidates) == 0 {
		return nil
	}

	top1 := candidates[0]
	for _, m := range candidates {
		if m.Score > top1.Score {
			top1 = m
		}
	}
	if top1.Score >= cfg.SkipIfTop1ScoreGE {
		return nil
	}

	byLevel := filterByMinLevel(candidates, cfg.MinLevelInject)
	if len(byLevel) == 0 {
		byLevel = filterByMinLevel(candidates, cfg.MinLevelFallback)
	}

	kept := make([]models.SearchMatch, 0, len(byLevel))
	for _, m := range byLevel {
		if m.Trust >= cfg.MinTrustShow {
			kept = append(kept, m)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		a, b := kept[i], kept[j]
		if a.ValidationLevel != b.ValidationLevel {
			return a.ValidationLevel > b.ValidationLevel
		}
		if a.Trust != b.Trust {
			return a.Trust > b.Trust
		}
		return a.Score > b.Score
	})

	if len(kept) > cfg.MaxInject {
		kept = kept[:cfg.MaxInject]
	}

	items := make([]models.InjectItem, 0, len(kept))
	for _, m := range kept {
		answer := m.Answer
		if m.Summary != "" {
			answer = m.Summary
		}
		items = append(items, models.InjectItem{
			QAID:            m.QAID,
			Question:        m.Question,
			Answer:          answer,
			Trust:           m.Trust,
			ValidationLevel: m.ValidationLevel,
			Score:           m.Score,
			Tags:            m.Tags,
		})
	}
	return items
}

func filterByMinLevel(matches []models.SearchMatch, minLevel int) []models.SearchMatch {
	out := make([]models.SearchMatch, 0, len(matches))
	for _, m := range matches {
		if m.ValidationLevel >= minLevel {
			out = append(out, m)
		}
	}
	return out
}

// Evaluate runs the full post-run decision given the same matches used at
// pre-run time, the run's outcome, and its tool events.
func (g *Gatekeeper) Evaluate(now time.Time, matches []models.SearchMatch, outcome models.RunOutcome, toolEvents []models.ToolEvent) models.GatekeeperDecision {
	cfg := g.cfg
	var reasons []string

	injectList := g.PrepareInject(matches)
	if top1, ok := top1Score(matches, cfg); ok && top1 >= cfg.SkipIfTop1ScoreGE {
		reasons = append(reasons, fmt.Sprintf("skip: top1 score %.2f >= %.2f", top1, cfg.SkipIfTop1ScoreGE))
	}

	usedSet := make(map[string]bool, len(outcome.UsedQAIDs))
	for _, id := range outcome.UsedQAIDs {
		usedSet[id] = true
	}

	hitRefs := make([]models.HitRef, 0, len(injectList))
	for _, qaID := range outcome.ShownQAIDs {
		hitRefs = append(hitRefs, models.HitRef{
			QAID:  qaID,
			Shown: true,
			Used:  usedSet[qaID],
		})
	}
	// Anchors used but never shown are hallucinations: recorded in signals,
	// never surfaced as a hit reference.
	var hallucinated []string
	shownByOutcome := make(map[string]bool, len(outcome.ShownQAIDs))
	for _, id := range outcome.ShownQAIDs {
		shownByOutcome[id] = true
	}
	for id := range usedSet {
		if !shownByOutcome[id] {
			hallucinated = append(hallucinated, id)
		}
	}
	sort.Strings(hallucinated)

	failingTools := countFailingTools(toolEvents)

	tails := string(outcome.StdoutTail) + "\n" + string(outcome.StderrTail)
	success := successPattern.MatchString(tails)
	fail := failPattern.MatchString(tails)

	var signal models.SignalStrength
	var result string
	strongSignal := false
	switch {
	case outcome.ExitCode == 0 && success && len(outcome.UsedQAIDs) > 0 && failingTools == 0:
		signal = models.SignalStrong
		strongSignal = true
		result = "pass"
		reasons = append(reasons, "grade: strong (clean exit, success pattern, anchors used, no failing tools)")
	case outcome.ExitCode == 0 && (success || len(outcome.UsedQAIDs) > 0):
		signal = models.SignalMedium
		result = "pass"
		reasons = append(reasons, "grade: medium (clean exit with success signal)")
	case outcome.ExitCode != 0 && fail:
		signal = models.SignalMedium
		result = "fail"
		reasons = append(reasons, "grade: medium (non-zero exit with failure pattern)")
	default:
		signal = models.SignalWeak
		reasons = append(reasons, "grade: weak (no clear signal)")
	}

	var validatePlans []models.ValidatePlan
	if !(outcome.ExitCode != 0 && len(intersect(outcome.ShownQAIDs, outcome.UsedQAIDs)) == 0) {
		for _, qaID := range outcome.ShownQAIDs {
			if !usedSet[qaID] {
				continue
			}
			validatePlans = append(validatePlans, models.ValidatePlan{
				QAID:           qaID,
				Result:         result,
				SignalStrength: signal,
				StrongSignal:   strongSignal,
			})
		}
	}

	blockedTools := policyBlockedTools(cfg.Policy, toolEvents)
	blockedByFailures := failingTools >= cfg.BlockIfConsecutiveFailGE
	blockedByPolicy := len(blockedTools) > 0
	top1, hasTop1 := top1Score(matches, cfg)
	shouldWriteCandidate := outcome.ExitCode == 0 &&
		(!hasTop1 || top1 < cfg.SkipIfTop1ScoreGE) &&
		(len(outcome.StdoutTail) > 0 || len(outcome.StderrTail) > 0) &&
		!blockedByFailures && !blockedByPolicy

	if blockedByFailures {
		reasons = append(reasons, fmt.Sprintf("block: consecutive_fail >= %d", cfg.BlockIfConsecutiveFailGE))
	}
	for _, tool := range blockedTools {
		reasons = append(reasons, fmt.Sprintf("block: policy denied tool %q", tool))
	}
	if shouldWriteCandidate {
		reasons = append(reasons, "candidate: eligible for heuristic extraction")
	}

	signals := map[string]any{
		"exit_code":            outcome.ExitCode,
		"success_pattern":      success,
		"fail_pattern":         fail,
		"failing_tools":        failingTools,
		"used_qa_count":        len(outcome.UsedQAIDs),
		"hallucinated_qa_ids":  hallucinated,
		"grade":                string(signal),
		"policy_blocked_tools": blockedTools,
	}

	return models.GatekeeperDecision{
		InjectList:           injectList,
		HitRefs:              hitRefs,
		ValidatePlans:        validatePlans,
		ShouldWriteCandidate: shouldWriteCandidate,
		Reasons:              reasons,
		Signals:              signals,
	}
}

func top1Score(matches []models.SearchMatch, cfg Config) (float64, bool) {
	best := 0.0
	found := false
	for _, m := range matches {
		if cfg.ExcludeStaleByDefault && !cfg.isActive(m.Status) {
			continue
		}
		if !found || m.Score > best {
			best = m.Score
			found = true
		}
	}
	return best, found
}

// policyBlockedTools returns the sorted, deduplicated set of tool names that
// a request invoked and policy denied. Returns nil when no policy is
// configured.
func policyBlockedTools(p *policy.Provider, events []models.ToolEvent) []string {
	if p == nil {
		return nil
	}
	seen := make(map[string]bool)
	var blocked []string
	for _, ev := range events {
		if ev.Type != models.ToolEventRequest || ev.Tool == "" {
			continue
		}
		if seen[ev.Tool] {
			continue
		}
		if p.Evaluate(ev.Tool) == policy.ActionDeny {
			seen[ev.Tool] = true
			blocked = append(blocked, ev.Tool)
		}
	}
	sort.Strings(blocked)
	return blocked
}

func countFailingTools(events []models.ToolEvent) int {
	n := 0
	for _, ev := range events {
		if ev.Type == models.ToolEventResult && ev.OK != nil && !*ev.OK {
			n++
		}
	}
	return n
}

func intersect(a, b []string) []string {
	set := make(map[string]bool, len(a))
	for _, v := range a {
		set[v] = true
	}
	var out []string
	for _, v := range b {
		if set[v] {
			out = append(out, v)
		}
	}
	return out
}

