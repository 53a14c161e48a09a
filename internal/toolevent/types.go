package toolevent

import "github.com/memexd/memexd/pkg/models"

// ToolEvent and EventType are aliased from pkg/models so that the parser's
// public API speaks the canonical wire type directly.
type (
	ToolEvent = models.ToolEvent
	EventType = models.ToolEventType
)

const (
	ToolRequest       = models.ToolEventRequest
	ToolResult        = models.ToolEventResult
	ToolProgress      = models.ToolEventProgress
	AssistantOutput   = models.ToolEventAssistantOutput
	AssistantAction   = models.ToolEventAssistantAction
	AssistantThinking = models.ToolEventAssistantThought
)
