package dialect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_PicksKnownDialectsByBasename(t *testing.T) {
	assert.IsType(t, CodexStrategy{}, Resolve("/usr/local/bin/codex"))
	assert.IsType(t, ClaudeStrategy{}, Resolve("claude"))
	assert.IsType(t, GeminiStrategy{}, Resolve("gemini.exe"))
	assert.IsType(t, GenericStrategy{}, Resolve("some-other-cli"))
}

func TestCodexStrategy_Plan_ResumeAddsResumeArg(t *testing.T) {
	plan, err := CodexStrategy{}.Plan(PlanRequest{Backend: "codex", ResumeID: "run-1"})
	require.NoError(t, err)
	assert.Contains(t, plan.Args, "resume")
	assert.Contains(t, plan.Args, "run-1")
	assert.True(t, plan.PromptOnStdin)
}

func TestClaudeStrategy_Plan_StreamJSONFlags(t *testing.T) {
	plan, err := ClaudeStrategy{}.Plan(PlanRequest{Backend: "claude"})
	require.NoError(t, err)
	assert.Contains(t, plan.Args, "stream-json")
}

func TestGeminiStrategy_Plan_PromptPassedAsArg(t *testing.T) {
	plan, err := GeminiStrategy{}.Plan(PlanRequest{Backend: "gemini", Prompt: "hello"})
	require.NoError(t, err)
	assert.Contains(t, plan.Args, "hello")
	assert.False(t, plan.PromptOnStdin)
}

func TestGenericStrategy_Plan_PassesArgsThrough(t *testing.T) {
	plan, err := GenericStrategy{}.Plan(PlanRequest{Backend: "mytool", BaseArgs: []string{"--flag"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"--flag"}, plan.Args)
}

func TestStrategy_RejectsUnsafeArguments(t *testing.T) {
	_, err := GenericStrategy{}.Plan(PlanRequest{Backend: "mytool", BaseArgs: []string{"safe; rm -rf /"}})
	assert.Error(t, err)
}
