// Package dialect implements the backend argument-dialect strategy named in
// the specification's design notes as "an externalised strategy and NOT
// part of the core contract": given a logical intent (a prompt to run, or a
// resume of a prior session), it produces the concrete (program, args) to
// exec for one of the three known backend CLIs, or passes arguments through
// unmodified for an unrecognised backend.
package dialect

import (
	"path/filepath"
	"strings"

	"github.com/memexd/memexd/internal/exec"
)

// StreamFormat selects how the backend is asked to emit its output.
type StreamFormat string

const (
	StreamText  StreamFormat = "text"
	StreamJSONL StreamFormat = "jsonl"
)

// PlanRequest describes the logical invocation the strategy must turn into
// concrete process arguments.
type PlanRequest struct {
	Backend      string
	BaseArgs     []string
	ResumeID     string
	Prompt       string
	Model        string
	StreamFormat StreamFormat
}

// Plan is the resolved (program, args) pair, plus whether the prompt must
// be written to the child's stdin rather than passed as an argument.
type Plan struct {
	Program       string
	Args          []string
	PromptOnStdin bool
}

// Strategy resolves a PlanRequest into a Plan for one backend argument
// dialect.
type Strategy interface {
	Plan(req PlanRequest) (Plan, error)
}

// Resolve picks a Strategy by backend basename: "codex", "claude", "gemini"
// map to their known dialects; anything else falls back to Generic.
func Resolve(backend string) Strategy {
	switch backendBasenameLower(backend) {
	case "codex":
		return CodexStrategy{}
	case "claude":
		return ClaudeStrategy{}
	case "gemini":
		return GeminiStrategy{}
	default:
		return GenericStrategy{}
	}
}

// finishPlan validates the resolved program and argument list before
// handing the Plan back to the caller, so every Strategy's Plan method gets
// the same safety check at the same point regardless of dialect.
func finishPlan(program string, args []string, promptOnStdin bool) (Plan, error) {
	sanitizedProgram, err := exec.SanitizeProgram(program)
	if err != nil {
		return Plan{}, err
	}
	sanitizedArgs, err := exec.SanitizeArguments(args)
	if err != nil {
		return Plan{}, err
	}
	return Plan{Program: sanitizedProgram, Args: sanitizedArgs, PromptOnStdin: promptOnStdin}, nil
}

func backendBasenameLower(backend string) string {
	base := filepath.Base(backend)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.ToLower(base)
}

// CodexStrategy implements the codex CLI's argument dialect.
type CodexStrategy struct{}

func (CodexStrategy) Plan(req PlanRequest) (Plan, error) {
	args := append([]string{}, req.BaseArgs...)
	args = append(args, "exec", "--json", "--skip-git-repo-check")
	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}
	if req.ResumeID != "" {
		args = append(args, "resume", req.ResumeID)
	}
	return finishPlan(req.Backend, args, true)
}

// ClaudeStrategy implements the claude CLI's argument dialect.
type ClaudeStrategy struct{}

func (ClaudeStrategy) Plan(req PlanRequest) (Plan, error) {
	args := append([]string{}, req.BaseArgs...)
	args = append(args, "-p", "--output-format", "stream-json", "--verbose")
	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}
	if req.ResumeID != "" {
		args = append(args, "--resume", req.ResumeID)
	}
	return finishPlan(req.Backend, args, true)
}

// GeminiStrategy implements the gemini CLI's argument dialect.
type GeminiStrategy struct{}

func (GeminiStrategy) Plan(req PlanRequest) (Plan, error) {
	args := append([]string{}, req.BaseArgs...)
	args = append(args, "-p", req.Prompt, "--output-format", "json")
	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}
	return finishPlan(req.Backend, args, false)
}

// GenericStrategy passes arguments through unmodified, writing the prompt
// to stdin.
type GenericStrategy struct{}

func (GenericStrategy) Plan(req PlanRequest) (Plan, error) {
	args := append([]string{}, req.BaseArgs...)
	return finishPlan(req.Backend, args, true)
}
