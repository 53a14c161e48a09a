// Package candidate implements the heuristic candidate extractor (C7): given
// a user query, the stdout/stderr tails, and the tool events of a run, it
// builds a redacted Q/A draft suitable for writing back to the memory
// collaborator.
package candidate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/memexd/memexd/pkg/models"
)

// Config parameterises extraction limits.
type Config struct {
	MaxCandidates     int  `yaml:"max_candidates"`
	MaxAnswerChars    int  `yaml:"max_answer_chars"`
	MinAnswerChars    int  `yaml:"min_answer_chars"`
	ContextLines      int  `yaml:"context_lines"`
	Redact            bool `yaml:"redact"`
	StrictSecretBlock bool `yaml:"strict_secret_block"`
}

// DefaultConfig matches the original's defaults.
func DefaultConfig() Config {
	return Config{
		MaxCandidates:     1,
		MaxAnswerChars:    1200,
		MinAnswerChars:    200,
		ContextLines:      8,
		Redact:            true,
		StrictSecretBlock: true,
	}
}

var commandPrefix = regexp.MustCompile(
	`^(?:\s*\$\s+|\s*(cargo|git|npm|pnpm|yarn|bun|go|pytest|python|pip|uv|uvx|docker|kubectl)\b)`)

var errorHintPattern = regexp.MustCompile(`(?i)\b(error|failed|panic|exception|traceback)\b`)

// Extract builds up to cfg.MaxCandidates drafts (currently always 0 or 1,
// matching the heuristic extractor's single-draft design) from the run's
// textual output.
func Extract(cfg Config, userQuery string, stdoutTail, stderrTail []byte, toolEvents []models.ToolEvent) []models.CandidateDraft {
	combined := string(stdoutTail) + "\n" + string(stderrTail)

	if cfg.StrictSecretBlock && ContainsSecret(combined) {
		return nil
	}

	cmdBlock, hasCmdBlock := extractCommandBlock(combined, cfg.ContextLines)
	errorHint, hasErrorHint := extractErrorHint(combined)
	toolSummary := summarizeToolEvents(toolEvents, 3)

	question := buildQuestion(userQuery, errorHint, hasErrorHint, toolSummary)
	answer := buildAnswer(userQuery, cmdBlock, hasCmdBlock, toolSummary, errorHint, hasErrorHint)

	if cfg.Redact {
		answer = RedactSecrets(answer)
		question = RedactSecrets(question)
	}

	if len([]rune(answer)) < cfg.MinAnswerChars {
		return nil
	}
	answer = truncateToChars(answer, cfg.MaxAnswerChars)

	tags := inferTags(userQuery+" "+answer, toolEvents)

	draft := models.CandidateDraft{
		Question:   question,
		Answer:     answer,
		Tags:       tags,
		Confidence: 0.45,
		Metadata: map[string]any{
			"source":         "heuristic_extractor_v1",
			"has_cmd_block":  hasCmdBlock,
			"has_error_hint": hasErrorHint,
		},
		Source: "mem-codecli",
	}

	if cfg.MaxCandidates <= 0 {
		return nil
	}
	return []models.CandidateDraft{draft}
}

func extractCommandBlock(text string, contextLines int) (string, bool) {
	lines := strings.Split(text, "\n")
	lastIdx := -1
	for i, line := range lines {
		if commandPrefix.MatchString(line) {
			lastIdx = i
		}
	}
	if lastIdx == -1 {
		return "", false
	}
	start := lastIdx - contextLines
	if start < 0 {
		start = 0
	}
	end := lastIdx + contextLines + 1
	if end > len(lines) {
		end = len(lines)
	}
	return strings.TrimSpace(strings.Join(lines[start:end], "\n")), true
}

func extractErrorHint(text string) (string, bool) {
	lines := strings.Split(text, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if len(line) < 6 {
			continue
		}
		if errorHintPattern.MatchString(line) {
			return line, true
		}
	}
	return "", false
}

func summarizeToolEvents(events []models.ToolEvent, limit int) []string {
	var summaries []string
	for i := len(events) - 1; i >= 0 && len(summaries) < limit; i-- {
		ev := events[i]
		if ev.Tool == "" {
			continue
		}
		action := string(ev.Type)
		summaries = append(summaries, fmt.Sprintf("%s:%s", ev.Tool, action))
	}
	return summaries
}

func buildQuestion(userQuery, errorHint string, hasErrorHint bool, toolSummary []string) string {
	const maxQuestionChars = 180
	switch {
	case hasErrorHint:
		return trimMidChars(fmt.Sprintf("How do I resolve: %s?", errorHint), maxQuestionChars)
	case len(toolSummary) > 0:
		return trimMidChars(fmt.Sprintf("What happens when running %s?", toolSummary[0]), maxQuestionChars)
	default:
		return trimMidChars(userQuery, maxQuestionChars)
	}
}

func buildAnswer(userQuery, cmdBlock string, hasCmdBlock bool, toolSummary []string, errorHint string, hasErrorHint bool) string {
	var b strings.Builder
	b.WriteString("## Context\n")
	fmt.Fprintf(&b, "%s\n\n", userQuery)

	b.WriteString("## Steps\n")
	switch {
	case len(toolSummary) > 0:
		for _, s := range toolSummary {
			fmt.Fprintf(&b, "- %s\n", s)
		}
	case hasCmdBlock:
		fmt.Fprintf(&b, "```bash\n%s\n```\n", cmdBlock)
	default:
		b.WriteString("- Reproduce the issue\n- Apply the fix\n- Verify the result\n")
	}

	if hasErrorHint {
		fmt.Fprintf(&b, "\n## Notes\n%s\n", errorHint)
	}
	return b.String()
}

func truncateToChars(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return strings.TrimRight(string(runes[:maxChars]), " \t\n") + " ..."
}

func trimMidChars(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return strings.TrimRight(string(runes[:maxChars]), " \t\n") + ".."
}

var ecosystemTags = map[string][]string{
	"rust":   {"cargo", "rustc", "crate"},
	"nodejs": {"npm", "pnpm", "yarn", "node", "package.json"},
	"python": {"pytest", "pip", "python", "venv"},
	"docker": {"docker", "dockerfile", "container"},
	"k8s":    {"kubectl", "kubernetes", "helm"},
	"mcp":    {"mcp", "tool_use", "tool_result"},
}

func inferTags(text string, toolEvents []models.ToolEvent) []string {
	lower := strings.ToLower(text)
	var tags []string
	for tag, keywords := range ecosystemTags {
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				tags = append(tags, tag)
				break
			}
		}
	}
	for _, ev := range toolEvents {
		switch {
		case strings.Contains(ev.Tool, "git"):
			tags = append(tags, "git")
		case strings.Contains(ev.Tool, "fs") || strings.Contains(ev.Tool, "file"):
			tags = append(tags, "filesystem")
		}
	}
	return dedupe(tags)
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
