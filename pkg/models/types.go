// Package models defines the canonical data types shared across the run
// pipeline: search matches, inject items, tool events, wrapper events, and
// run outcomes. These types are the wire shapes for the event bus and the
// payload shapes for the memory collaborator.
package models

import (
	"encoding/json"
	"time"
)

// SearchMatch is an opaque record returned by the memory collaborator's
// search operation. Immutable once received.
type SearchMatch struct {
	QAID            string         `json:"qa_id"`
	ProjectID       string         `json:"project_id,omitempty"`
	Question        string         `json:"question"`
	Answer          string         `json:"answer"`
	Score           float64        `json:"score"`
	Relevance       float64        `json:"relevance,omitempty"`
	ValidationLevel int            `json:"validation_level"`
	Level           *int           `json:"level,omitempty"`
	Trust           float64        `json:"trust"`
	Freshness       float64        `json:"freshness,omitempty"`
	Confidence      float64        `json:"confidence,omitempty"`
	Status          string         `json:"status"`
	Summary         string         `json:"summary,omitempty"`
	Source          string         `json:"source,omitempty"`
	ExpiryAt        *time.Time     `json:"expiry_at,omitempty"`
	Tags            []string       `json:"tags,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// InjectItem is a projection of a SearchMatch chosen by the gatekeeper's
// pre-run selection for rendering into the inject preamble.
type InjectItem struct {
	QAID            string   `json:"qa_id"`
	Question        string   `json:"question"`
	Answer          string   `json:"answer"`
	Trust           float64  `json:"trust"`
	ValidationLevel int      `json:"validation_level"`
	Score           float64  `json:"score"`
	Tags            []string `json:"tags,omitempty"`
}

// ToolEventType enumerates the canonical tool-event kinds recognised by the
// parser (C2) regardless of source dialect.
type ToolEventType string

const (
	ToolEventRequest          ToolEventType = "tool.request"
	ToolEventResult           ToolEventType = "tool.result"
	ToolEventProgress         ToolEventType = "tool.progress"
	ToolEventAssistantOutput  ToolEventType = "assistant.output"
	ToolEventAssistantAction  ToolEventType = "assistant.action"
	ToolEventAssistantThought ToolEventType = "assistant.thinking"
)

// ToolEvent is the canonical record emitted per recognised line of backend
// output. Fields not relevant to a given Type are left zero.
type ToolEvent struct {
	V         int             `json:"v"`
	Type      ToolEventType   `json:"type"`
	TS        *time.Time      `json:"ts,omitempty"`
	RunID     string          `json:"run_id,omitempty"`
	ID        string          `json:"id,omitempty"`
	Tool      string          `json:"tool,omitempty"`
	Action    string          `json:"action,omitempty"`
	Args      json.RawMessage `json:"args,omitempty"`
	OK        *bool           `json:"ok,omitempty"`
	Output    string          `json:"output,omitempty"`
	Error     string          `json:"error,omitempty"`
	Rationale string          `json:"rationale,omitempty"`
}

// WrapperEventType enumerates the structural events the core itself emits,
// distinct from tool events.
type WrapperEventType string

const (
	WrapperEventRunStart         WrapperEventType = "run.start"
	WrapperEventRunEnd           WrapperEventType = "run.end"
	WrapperEventMemorySearch     WrapperEventType = "memory.search.result"
	WrapperEventGatekeeperDecide WrapperEventType = "gatekeeper.decision"
	WrapperEventTeeDrop          WrapperEventType = "tee.drop"
	WrapperEventPolicyAbort      WrapperEventType = "policy.abort"
)

// WrapperEvent is a structural event emitted by the run pipeline itself.
type WrapperEvent struct {
	V     int              `json:"v"`
	Type  WrapperEventType `json:"type"`
	TS    time.Time        `json:"ts"`
	RunID string           `json:"run_id"`
	Data  any              `json:"data,omitempty"`
}

// RunOutcome captures everything the supervisor observed about one backend
// invocation, handed to the gatekeeper's post-run evaluation.
type RunOutcome struct {
	ExitCode     int
	DurationMS   int64
	StdoutTail   []byte
	StderrTail   []byte
	ToolEvents   []ToolEvent
	ShownQAIDs   []string
	UsedQAIDs    []string
}

// HitRef records whether a shown memory item was also used (anchored) by
// the backend during a run.
type HitRef struct {
	QAID      string `json:"qa_id"`
	Shown     bool   `json:"shown"`
	Used      bool   `json:"used"`
	MessageID string `json:"message_id,omitempty"`
	Context   string `json:"context,omitempty"`
}

// SignalStrength grades how strongly a run's outcome validates (or
// invalidates) the memory items it used.
type SignalStrength string

const (
	SignalStrong SignalStrength = "strong"
	SignalMedium SignalStrength = "medium"
	SignalWeak   SignalStrength = "weak"
)

// ValidatePlan is the gatekeeper's instruction to record a validation
// result for one memory item.
type ValidatePlan struct {
	QAID           string         `json:"qa_id"`
	Result         string         `json:"result,omitempty"` // "pass" | "fail"
	SignalStrength SignalStrength `json:"signal_strength,omitempty"`
	StrongSignal   bool           `json:"strong_signal"`
	Context        string         `json:"context,omitempty"`
	Payload        map[string]any `json:"payload,omitempty"`
}

// GatekeeperDecision is the unique output of the gatekeeper (C5), produced
// once per run by Evaluate and reproducible given identical inputs.
type GatekeeperDecision struct {
	InjectList          []InjectItem     `json:"inject_list"`
	HitRefs             []HitRef         `json:"hit_refs"`
	ValidatePlans       []ValidatePlan   `json:"validate_plans"`
	ShouldWriteCandidate bool            `json:"should_write_candidate"`
	Reasons             []string         `json:"reasons"`
	Signals             map[string]any   `json:"signals"`
}

// CandidateDraft is a heuristically-built Q/A draft suitable for writing
// back to the memory collaborator as a new candidate.
type CandidateDraft struct {
	Question   string         `json:"question"`
	Answer     string         `json:"answer"`
	Summary    string         `json:"summary,omitempty"`
	Tags       []string       `json:"tags,omitempty"`
	Confidence float64        `json:"confidence"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Source     string         `json:"source,omitempty"`
	Author     string         `json:"author,omitempty"`
}

// Task describes one node of the layered executor's (C9) dependency graph.
type Task struct {
	ID             string            `json:"id"`
	Backend        string            `json:"backend"`
	Workdir        string            `json:"workdir,omitempty"`
	Model          string            `json:"model,omitempty"`
	ModelProvider  string            `json:"model_provider,omitempty"`
	Dependencies   []string          `json:"dependencies,omitempty"`
	StreamFormat   string            `json:"stream_format,omitempty"` // "text" | "jsonl"
	Timeout        time.Duration     `json:"timeout,omitempty"`
	Retry          int               `json:"retry,omitempty"`
	Files          []string          `json:"files,omitempty"`
	FilesMode      string            `json:"files_mode,omitempty"`     // "embed" | "ref" | "auto"
	FilesEncoding  string            `json:"files_encoding,omitempty"` // "utf-8" | "base64" | "auto"
	Content        string            `json:"content"`
}

// TaskResult is the outcome of running one Task through the pipeline.
type TaskResult struct {
	TaskID   string
	RunID    string
	Outcome  RunOutcome
	Attempts int
	Err      error
}
