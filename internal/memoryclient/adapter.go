package memoryclient

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/width"

	"github.com/memexd/memexd/pkg/models"
)

// InjectPlacement selects which channel the rendered preamble is handed to
// the backend through. It does not change the textual format.
type InjectPlacement string

const (
	PlacementSystem InjectPlacement = "system"
	PlacementUser   InjectPlacement = "user"
)

// InjectConfig parameterises preamble rendering.
type InjectConfig struct {
	Placement       InjectPlacement `yaml:"placement"`
	MaxItems        int             `yaml:"max_items"`
	MaxAnswerChars  int             `yaml:"max_answer_chars"`
	IncludeMetaLine bool            `yaml:"include_meta_line"`
}

// DefaultInjectConfig matches the original's defaults.
func DefaultInjectConfig() InjectConfig {
	return InjectConfig{
		Placement:       PlacementUser,
		MaxItems:        3,
		MaxAnswerChars:  900,
		IncludeMetaLine: true,
	}
}

const (
	memoryContextHeader = "[MEMORY_CONTEXT v1]"
	memoryContextFooter = "[/MEMORY_CONTEXT]"
	instructionParagraph = "The following items were retrieved from prior validated answers. " +
		"Reference one with the literal token [QA_REF <qa_id>] if and only if you relied on it."
	rulesParagraph = "Rules:\n" +
		"- Do not invent anchors.\n" +
		"- If none are relevant, ignore them.\n" +
		"- Prefer the highest validation_level and trust."
)

// RenderMemoryContext builds the inject preamble from a (already selected
// and ordered) list of items. Returns "" when items is empty.
func RenderMemoryContext(items []models.InjectItem, cfg InjectConfig) string {
	if len(items) == 0 {
		return ""
	}
	max := cfg.MaxItems
	if max <= 0 || max > len(items) {
		max = len(items)
	}

	var b strings.Builder
	b.WriteString(memoryContextHeader)
	b.WriteString("\n")
	b.WriteString(instructionParagraph)
	b.WriteString("\n")

	for i, item := range items[:max] {
		fmt.Fprintf(&b, "%d) [QA_REF %s]\n", i+1, item.QAID)
		fmt.Fprintf(&b, "Q: %s\n", oneLine(item.Question))
		fmt.Fprintf(&b, "A: %s\n", pickAnswer(item, cfg.MaxAnswerChars))
		if cfg.IncludeMetaLine {
			tags := "-"
			if len(item.Tags) > 0 {
				tags = strings.Join(item.Tags, ",")
			}
			fmt.Fprintf(&b, "Meta: level=%d trust=%.2f score=%.2f tags=%s\n",
				item.ValidationLevel, item.Trust, item.Score, tags)
		}
	}

	b.WriteString(rulesParagraph)
	b.WriteString("\n")
	b.WriteString(memoryContextFooter)
	b.WriteString("\n")
	return b.String()
}

// MergePrompt prepends a non-empty memory context to the user prompt with a
// single newline separator; an empty context passes the prompt through
// unchanged.
func MergePrompt(userQuery, memoryContext string) string {
	if strings.TrimSpace(memoryContext) == "" {
		return userQuery
	}
	return memoryContext + "\n" + userQuery
}

// pickAnswer prefers an item's summary-equivalent content (InjectItem.Answer
// already carries summary-over-answer per the gatekeeper's projection) and
// truncates it for the preamble.
func pickAnswer(item models.InjectItem, maxChars int) string {
	return truncateClean(item.Answer, maxChars)
}

// oneLine collapses all whitespace runs (including newlines) to single
// spaces, operating rune-wise so multi-byte text folds correctly.
func oneLine(s string) string {
	var b strings.Builder
	lastWasSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !lastWasSpace {
				b.WriteRune(' ')
			}
			lastWasSpace = true
			continue
		}
		lastWasSpace = false
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

// truncateClean truncates s to at most maxChars runes (counting
// double-width runes as their visual width), appending " ..." when
// truncation occurred.
func truncateClean(s string, maxChars int) string {
	if maxChars <= 0 {
		return s
	}
	runes := []rune(s)
	if visualWidth(runes) <= maxChars {
		return s
	}
	cut := cutToWidth(runes, maxChars)
	return strings.TrimRight(string(runes[:cut]), " \t\n") + " ..."
}

// trimMid truncates s to at most maxChars runes, appending ".." (used for
// short single-line truncation such as question shaping).
func trimMid(s string, maxChars int) string {
	if maxChars <= 0 {
		return s
	}
	runes := []rune(s)
	if visualWidth(runes) <= maxChars {
		return s
	}
	cut := cutToWidth(runes, maxChars)
	return strings.TrimRight(string(runes[:cut]), " \t\n") + ".."
}

func visualWidth(runes []rune) int {
	n := 0
	for _, r := range runes {
		if width.LookupRune(r).Kind() == width.EastAsianWide || width.LookupRune(r).Kind() == width.EastAsianFullwidth {
			n += 2
			continue
		}
		n++
	}
	return n
}

func cutToWidth(runes []rune, maxChars int) int {
	n := 0
	for i, r := range runes {
		w := 1
		if width.LookupRune(r).Kind() == width.EastAsianWide || width.LookupRune(r).Kind() == width.EastAsianFullwidth {
			w = 2
		}
		if n+w > maxChars {
			return i
		}
		n += w
	}
	return len(runes)
}

// BuildHitPayload converts a decision's hit refs into the wire request for
// RecordHit.
func BuildHitPayload(projectID string, decision models.GatekeeperDecision) HitRequest {
	return HitRequest{ProjectID: projectID, References: decision.HitRefs}
}

// BuildValidatePayloads converts a decision's validate plans into wire
// requests for RecordValidation.
func BuildValidatePayloads(projectID string, decision models.GatekeeperDecision, now time.Time, source string) []ValidationRequest {
	out := make([]ValidationRequest, 0, len(decision.ValidatePlans))
	for _, plan := range decision.ValidatePlans {
		out = append(out, ValidationRequest{
			ProjectID:      projectID,
			QAID:           plan.QAID,
			Result:         plan.Result,
			SignalStrength: string(plan.SignalStrength),
			StrongSignal:   plan.StrongSignal,
			Context:        plan.Context,
			TS:             now,
			Payload:        plan.Payload,
			Source:         source,
		})
	}
	return out
}

// BuildCandidatePayloads converts candidate drafts into wire requests for
// RecordCandidate.
func BuildCandidatePayloads(projectID string, drafts []models.CandidateDraft) []CandidateRequest {
	out := make([]CandidateRequest, 0, len(drafts))
	for _, d := range drafts {
		out = append(out, CandidateRequest{
			ProjectID:  projectID,
			Question:   d.Question,
			Answer:     d.Answer,
			Tags:       d.Tags,
			Confidence: d.Confidence,
			Metadata:   d.Metadata,
			Summary:    d.Summary,
			Source:     d.Source,
			Author:     d.Author,
		})
	}
	return out
}
