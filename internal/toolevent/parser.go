// Package toolevent implements the stateful line classifier (C2) that turns
// raw backend output lines into canonical models.ToolEvent records. It
// recognises a prefixed JSONL marker, three vendor "stream-json" dialects,
// and raw canonical JSON, in that order, and correlates request/result
// pairs by id so that a result missing its tool name on the wire still
// carries the tool name forward from the matching request.
package toolevent

import (
	"bytes"
	"encoding/json"
	"strings"
)

// DefaultMarker is the default prefix recognised for prefixed JSONL events.
const DefaultMarker = "@@MEM_TOOL_EVENT@@"

// Parser is a stateful per-stream line classifier. Exactly one instance
// exists per stream per run; it is not safe for concurrent use by more than
// one goroutine (matching the "Send but not Sync" contract of the
// specification this is grounded on).
type Parser struct {
	marker string
	// pendingTool maps a request id to the tool name seen on its
	// tool.request, so that results which omit the tool name on the wire
	// (Family B) can have it filled in.
	pendingTool map[string]string
}

// New creates a Parser using the given prefix marker. An empty marker
// falls back to DefaultMarker.
func New(marker string) *Parser {
	if marker == "" {
		marker = DefaultMarker
	}
	return &Parser{
		marker:      marker,
		pendingTool: make(map[string]string),
	}
}

// Parse classifies one line of backend output. It returns (event, true) if
// the line was recognised as a tool event, or (zero, false) if the line is
// not an event (plain output, unparseable JSON after the marker, etc).
func (p *Parser) Parse(line string) (ToolEvent, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return ToolEvent{}, false
	}

	if rest, ok := strings.CutPrefix(trimmed, p.marker); ok {
		var ev ToolEvent
		if err := json.Unmarshal([]byte(strings.TrimSpace(rest)), &ev); err != nil {
			return ToolEvent{}, false
		}
		p.linkResult(&ev)
		return ev, true
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
		return ToolEvent{}, false
	}

	if ev, ok := p.parseFamilyA(raw); ok {
		return ev, true
	}
	if ev, ok := p.parseFamilyB(raw); ok {
		return ev, true
	}
	if ev, ok := p.parseFamilyC(raw); ok {
		return ev, true
	}
	if ev, ok := p.parseCanonical(raw); ok {
		return ev, true
	}

	return ToolEvent{}, false
}

// linkResult remembers the tool name on a request, or fills it in on a
// result that omitted it.
func (p *Parser) linkResult(ev *ToolEvent) {
	switch ev.Type {
	case ToolRequest:
		if ev.ID != "" && ev.Tool != "" {
			p.pendingTool[ev.ID] = ev.Tool
		}
	case ToolResult:
		if ev.Tool == "" && ev.ID != "" {
			if name, ok := p.pendingTool[ev.ID]; ok {
				ev.Tool = name
			}
		}
	}
}

func stringField(raw map[string]json.RawMessage, key string) string {
	v, ok := raw[key]
	if !ok {
		return ""
	}
	var s string
	_ = json.Unmarshal(v, &s)
	return s
}

func boolFieldPtr(raw map[string]json.RawMessage, keys ...string) *bool {
	for _, key := range keys {
		v, ok := raw[key]
		if !ok {
			continue
		}
		var b bool
		if err := json.Unmarshal(v, &b); err == nil {
			return &b
		}
	}
	return nil
}

// parseCanonical accepts a line that is already a canonical ToolEvent
// object: {"v":1,"type":"tool.request"/...,...}.
func (p *Parser) parseCanonical(raw map[string]json.RawMessage) (ToolEvent, bool) {
	typ := stringField(raw, "type")
	if !isCanonicalType(typ) {
		return ToolEvent{}, false
	}
	payload, err := json.Marshal(raw)
	if err != nil {
		return ToolEvent{}, false
	}
	var ev ToolEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return ToolEvent{}, false
	}
	p.linkResult(&ev)
	return ev, true
}

func isCanonicalType(typ string) bool {
	switch EventType(typ) {
	case ToolRequest, ToolResult, ToolProgress, AssistantOutput, AssistantAction, AssistantThinking:
		return true
	default:
		return false
	}
}

// parseFamilyA recognises Claude-style message/content-block dialects:
// {"type":"assistant"|"user","message":{"content":[{"type":"tool_use"|"tool_result",...}]}}
func (p *Parser) parseFamilyA(raw map[string]json.RawMessage) (ToolEvent, bool) {
	typ := stringField(raw, "type")
	if typ != "assistant" && typ != "user" {
		return ToolEvent{}, false
	}
	msgRaw, ok := raw["message"]
	if !ok {
		return ToolEvent{}, false
	}
	var msg struct {
		Content []map[string]json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(msgRaw, &msg); err != nil || len(msg.Content) == 0 {
		return ToolEvent{}, false
	}

	for _, block := range msg.Content {
		blockType := stringField(block, "type")
		switch blockType {
		case "tool_use":
			id := stringField(block, "id")
			name := stringField(block, "name")
			ev := ToolEvent{V: 1, Type: ToolRequest, ID: id, Tool: name}
			if input, ok := block["input"]; ok {
				ev.Args = json.RawMessage(input)
			}
			p.linkResult(&ev)
			return ev, true
		case "tool_result":
			id := stringField(block, "tool_use_id")
			ev := ToolEvent{V: 1, Type: ToolResult, ID: id}
			ev.Output = rawToString(block["content"])
			if ok := boolFieldPtr(block, "is_error", "isError"); ok != nil {
				truth := !*ok
				ev.OK = &truth
			} else {
				nonEmpty := strings.TrimSpace(ev.Output) != ""
				ev.OK = &nonEmpty
			}
			p.linkResult(&ev)
			return ev, true
		}
	}
	return ToolEvent{}, false
}

// parseFamilyB recognises Gemini-style flat tool_use/tool_result records:
// {"type":"tool_use","tool_name","tool_id","parameters"}
// {"type":"tool_result","tool_id","status","output"}
func (p *Parser) parseFamilyB(raw map[string]json.RawMessage) (ToolEvent, bool) {
	typ := stringField(raw, "type")
	switch typ {
	case "tool_use":
		id := stringField(raw, "tool_id")
		name := stringField(raw, "tool_name")
		ev := ToolEvent{V: 1, Type: ToolRequest, ID: id, Tool: name}
		if params, ok := raw["parameters"]; ok {
			ev.Args = json.RawMessage(params)
		}
		p.linkResult(&ev)
		return ev, true
	case "tool_result":
		id := stringField(raw, "tool_id")
		status := stringField(raw, "status")
		ev := ToolEvent{V: 1, Type: ToolResult, ID: id}
		ev.Output = rawToString(raw["output"])
		ok := status == "success"
		ev.OK = &ok
		p.linkResult(&ev)
		return ev, true
	default:
		return ToolEvent{}, false
	}
}

// parseFamilyC recognises Codex-style wrapped items:
// {"type":"item.started"|"item.completed","item":{"type":"mcp_tool_call",...}}
func (p *Parser) parseFamilyC(raw map[string]json.RawMessage) (ToolEvent, bool) {
	typ := stringField(raw, "type")
	if typ != "item.started" && typ != "item.completed" {
		return ToolEvent{}, false
	}
	itemRaw, ok := raw["item"]
	if !ok {
		return ToolEvent{}, false
	}
	var item map[string]json.RawMessage
	if err := json.Unmarshal(itemRaw, &item); err != nil {
		return ToolEvent{}, false
	}
	if stringField(item, "type") != "mcp_tool_call" {
		return ToolEvent{}, false
	}

	id := stringField(item, "id")
	server := stringField(item, "server")
	tool := stringField(item, "tool")
	canonicalTool := tool
	if server != "" && tool != "" {
		canonicalTool = server + "." + tool
	}

	if typ == "item.started" {
		ev := ToolEvent{V: 1, Type: ToolRequest, ID: id, Tool: canonicalTool}
		if args, ok := item["arguments"]; ok {
			ev.Args = json.RawMessage(args)
		}
		p.linkResult(&ev)
		return ev, true
	}

	ev := ToolEvent{V: 1, Type: ToolResult, ID: id, Tool: canonicalTool}
	ev.Output = rawToString(item["result"])
	ev.Error = stringField(item, "error")
	if status := stringField(item, "status"); status != "" {
		ok := status == "completed" || status == "success"
		ev.OK = &ok
	} else if ev.Error == "" {
		ok := true
		ev.OK = &ok
	}
	p.linkResult(&ev)
	return ev, true
}

func rawToString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err == nil {
		return buf.String()
	}
	return string(raw)
}
