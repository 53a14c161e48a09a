package gatekeeper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memexd/memexd/internal/policy"
	"github.com/memexd/memexd/pkg/models"
)

func TestPrepareInject_EmptyMatchesYieldsEmptyList(t *testing.T) {
	g := New(DefaultConfig())
	assert.Empty(t, g.PrepareInject(nil))
}

func TestPrepareInject_SkipsWhenTop1AtThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SkipIfTop1ScoreGE = 0.85
	g := New(cfg)

	matches := []models.SearchMatch{
		{QAID: "Q1", Score: 0.85, ValidationLevel: 3, Trust: 0.9, Status: "active"},
	}
	assert.Empty(t, g.PrepareInject(matches), "top1 score exactly at threshold skips injection")
}

func TestPrepareInject_FallsBackToLowerLevelWhenNoneMeetPrimary(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinLevelInject = 3
	cfg.MinLevelFallback = 1
	cfg.SkipIfTop1ScoreGE = 0.99
	g := New(cfg)

	matches := []models.SearchMatch{
		{QAID: "Q1", Score: 0.5, ValidationLevel: 1, Trust: 0.9, Status: "active"},
	}
	items := g.PrepareInject(matches)
	require.Len(t, items, 1)
	assert.Equal(t, "Q1", items[0].QAID)
}

func TestPrepareInject_ExcludesStaleStatusByDefault(t *testing.T) {
	g := New(DefaultConfig())
	matches := []models.SearchMatch{
		{QAID: "Q1", Score: 0.1, ValidationLevel: 3, Trust: 0.9, Status: "archived"},
	}
	assert.Empty(t, g.PrepareInject(matches))
}

func TestPrepareInject_TruncatesToMaxInjectOrderedByLevelTrustScore(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxInject = 1
	cfg.SkipIfTop1ScoreGE = 0.99
	g := New(cfg)

	matches := []models.SearchMatch{
		{QAID: "low", Score: 0.3, ValidationLevel: 2, Trust: 0.5, Status: "active"},
		{QAID: "high", Score: 0.4, ValidationLevel: 3, Trust: 0.9, Status: "active"},
	}
	items := g.PrepareInject(matches)
	require.Len(t, items, 1)
	assert.Equal(t, "high", items[0].QAID)
}

func TestEvaluate_S2_ShownAndUsedProducesPassValidation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SkipIfTop1ScoreGE = 0.95
	g := New(cfg)

	matches := []models.SearchMatch{
		{QAID: "Q1", ValidationLevel: 3, Trust: 0.9, Score: 0.5, Status: "active"},
	}
	outcome := models.RunOutcome{
		ExitCode:   0,
		StdoutTail: []byte("done [QA_REF Q1]\n"),
		ShownQAIDs: []string{"Q1"},
		UsedQAIDs:  []string{"Q1"},
	}

	decision := g.Evaluate(time.Now(), matches, outcome, nil)
	require.Len(t, decision.HitRefs, 1)
	assert.Equal(t, models.HitRef{QAID: "Q1", Shown: true, Used: true}, decision.HitRefs[0])
	require.Len(t, decision.ValidatePlans, 1)
	assert.Equal(t, "pass", decision.ValidatePlans[0].Result)
	assert.Equal(t, models.SignalStrong, decision.ValidatePlans[0].SignalStrength)
}

func TestEvaluate_UsedWithoutShownIsHallucinationNotHit(t *testing.T) {
	g := New(DefaultConfig())
	outcome := models.RunOutcome{
		ExitCode:   0,
		StdoutTail: []byte("done [QA_REF Ghost]\n"),
		ShownQAIDs: nil,
		UsedQAIDs:  []string{"Ghost"},
	}
	decision := g.Evaluate(time.Now(), nil, outcome, nil)
	assert.Empty(t, decision.HitRefs)
	assert.Equal(t, []string{"Ghost"}, decision.Signals["hallucinated_qa_ids"])
}

func TestEvaluate_ShouldWriteCandidateFalseWhenBlockedByConsecutiveFailures(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BlockIfConsecutiveFailGE = 2
	g := New(cfg)

	ok := false
	outcome := models.RunOutcome{
		ExitCode:   0,
		StdoutTail: []byte("some output"),
		ToolEvents: []models.ToolEvent{
			{Type: models.ToolEventResult, OK: &ok},
			{Type: models.ToolEventResult, OK: &ok},
		},
	}
	decision := g.Evaluate(time.Now(), nil, outcome, outcome.ToolEvents)
	assert.False(t, decision.ShouldWriteCandidate)
}

func TestEvaluate_ShouldWriteCandidateFalseWhenToolDeniedByPolicy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Policy = policy.New(policy.Config{Denylist: []string{"shell.exec"}})
	g := New(cfg)

	outcome := models.RunOutcome{
		ExitCode:   0,
		StdoutTail: []byte("some output"),
		ToolEvents: []models.ToolEvent{
			{Type: models.ToolEventRequest, Tool: "shell.exec"},
		},
	}
	decision := g.Evaluate(time.Now(), nil, outcome, outcome.ToolEvents)
	assert.False(t, decision.ShouldWriteCandidate)
	assert.Equal(t, []string{"shell.exec"}, decision.Signals["policy_blocked_tools"])
	assert.Contains(t, decision.Reasons, `block: policy denied tool "shell.exec"`)
}

func TestEvaluate_AllowedToolsDoNotBlockCandidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Policy = policy.New(policy.Config{Denylist: []string{"shell.exec"}})
	g := New(cfg)

	outcome := models.RunOutcome{
		ExitCode:   0,
		StdoutTail: []byte("some output"),
		ToolEvents: []models.ToolEvent{
			{Type: models.ToolEventRequest, Tool: "fs.read"},
		},
	}
	decision := g.Evaluate(time.Now(), nil, outcome, outcome.ToolEvents)
	assert.True(t, decision.ShouldWriteCandidate)
	assert.Empty(t, decision.Signals["policy_blocked_tools"])
}

func TestEvaluate_DeterministicAcrossRepeatedCalls(t *testing.T) {
	g := New(DefaultConfig())
	matches := []models.SearchMatch{
		{QAID: "Q1", ValidationLevel: 3, Trust: 0.9, Score: 0.5, Status: "active"},
	}
	outcome := models.RunOutcome{
		ExitCode:   0,
		StdoutTail: []byte("done [QA_REF Q1]\n"),
		ShownQAIDs: []string{"Q1"},
		UsedQAIDs:  []string{"Q1"},
	}
	now := time.Now()
	d1 := g.Evaluate(now, matches, outcome, nil)
	d2 := g.Evaluate(now, matches, outcome, nil)
	assert.Equal(t, d1, d2)
}
