package generation

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/crystaldolphin/agentbridge/internal/tools"
	"github.com/crystaldolphin/agentbridge/internal/value"
)

// PartType tags one piece of a timeline message.
type PartType string

const (
	PartText       PartType = "text"
	PartToolCall   PartType = "tool-call"
	PartToolResult PartType = "tool-result"
)

// Part is text, a tool call or a tool result.
type Part struct {
	Type     PartType
	Text     string
	ToolName string
	Args     value.Object
	Result   value.Value
}

// Message is one role-tagged timeline entry.
type Message struct {
	Role  string
	Parts []Part
}

// TimelineFromValue parses the timeline[] field of llm:generate. Entries
// carry a role and either a text/content string or a content array of
// {type: text|tool-call|tool-result} blocks. Unknown block types are skipped.
func TimelineFromValue(v value.Value) ([]Message, error) {
	if v.IsNull() {
		return nil, nil
	}
	items, ok := v.AsArray()
	if !ok {
		return nil, fmt.Errorf("timeline: expected array, got %s", v.Kind())
	}
	out := make([]Message, 0, len(items))
	for i, item := range items {
		obj, ok := item.AsObject()
		if !ok {
			return nil, fmt.Errorf("timeline[%d]: expected object, got %s", i, item.Kind())
		}
		msg := Message{Role: obj.StringOr("role", "user")}
		if s, ok := obj.String("text"); ok {
			msg.Parts = append(msg.Parts, Part{Type: PartText, Text: s})
		}
		switch c := obj["content"]; c.Kind() {
		case value.KindString:
			s, _ := c.AsString()
			msg.Parts = append(msg.Parts, Part{Type: PartText, Text: s})
		case value.KindArray:
			blocks, _ := c.AsArray()
			for _, b := range blocks {
				if p, ok := partFromValue(b); ok {
					msg.Parts = append(msg.Parts, p)
				}
			}
		}
		out = append(out, msg)
	}
	return out, nil
}

func partFromValue(v value.Value) (Part, bool) {
	obj, ok := v.AsObject()
	if !ok {
		return Part{}, false
	}
	name := obj.StringOr("toolName", obj.StringOr("name", ""))
	switch strings.ReplaceAll(obj.StringOr("type", ""), "_", "-") {
	case "text":
		return Part{Type: PartText, Text: obj.StringOr("text", "")}, true
	case "tool-call":
		args, ok := obj.Object("args")
		if !ok {
			args, _ = obj.Object("input")
		}
		return Part{Type: PartToolCall, ToolName: name, Args: args}, true
	case "tool-result":
		res, ok := obj["result"]
		if !ok {
			res = obj["output"]
		}
		return Part{Type: PartToolResult, ToolName: name, Result: res}, true
	}
	return Part{}, false
}

// Transcript flattens the timeline into newline-joined lines.
func Transcript(timeline []Message) string {
	var lines []string
	for _, m := range timeline {
		role := roleLabel(m.Role)
		for _, p := range m.Parts {
			switch p.Type {
			case PartText:
				if strings.TrimSpace(p.Text) == "" {
					continue
				}
				lines = append(lines, role+": "+p.Text)
			case PartToolCall:
				lines = append(lines, fmt.Sprintf("%s called %s(%s)", role, p.ToolName, value.Stringify(value.ObjectOf(p.Args))))
			case PartToolResult:
				lines = append(lines, fmt.Sprintf("Tool %s returned: %s", p.ToolName, value.Stringify(p.Result)))
			}
		}
	}
	return strings.Join(lines, "\n")
}

func roleLabel(role string) string {
	switch strings.ToLower(role) {
	case "assistant":
		return "Assistant"
	case "system":
		return "System"
	case "tool":
		return "Tool"
	default:
		return "User"
	}
}

// Preamble lists tool names, descriptions and parameter names, then the
// output format for mode. Full schemas are left out to keep the prompt small
// enough for an on-device model. In static mode only parameters the decision
// object can carry are listed.
func Preamble(defs []tools.Definition, mode Mode) string {
	var sb strings.Builder
	sb.WriteString("Choose exactly one tool to call next.\n\nTools:\n")
	for _, d := range defs {
		sb.WriteString("- ")
		sb.WriteString(d.Name)
		if d.Description != "" {
			sb.WriteString(": ")
			sb.WriteString(d.Description)
		}
		var names []string
		for _, p := range d.Params {
			if mode != ModeStatic || staticFieldSet[p.Name] {
				names = append(names, p.Name)
			}
		}
		if len(names) > 0 {
			sb.WriteString(" (parameters: ")
			sb.WriteString(strings.Join(names, ", "))
			sb.WriteString(")")
		}
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	switch mode {
	case ModeStatic:
		sb.WriteString(`Reply with one JSON object containing "toolName" and only the fields that tool needs, chosen from: `)
		sb.WriteString(strings.Join(StaticFields, ", "))
		sb.WriteString(". Dates use ISO 8601.")
	default:
		sb.WriteString(`Reply with one JSON object {"toolName": "<tool>", "toolArgsJSON": "<the arguments as a JSON object, encoded as a string>"}.`)
	}
	return sb.String()
}

// BuildPrompt assembles the backend prompt for req.
func BuildPrompt(req Request, mode Mode) Prompt {
	system := Preamble(req.Tools, mode)
	if strings.TrimSpace(req.SystemPrompt) != "" {
		system += "\n\n" + req.SystemPrompt
	}
	return Prompt{Mode: mode, System: system, Transcript: Transcript(req.Timeline)}
}

// RequestFromValue reads the fields of an llm:generate payload. Invalid
// entries in tools[] are skipped; when none remain, fallback is offered.
func RequestFromValue(fields value.Object, fallback []tools.Definition) (Request, error) {
	timeline, err := TimelineFromValue(fields["timeline"])
	if err != nil {
		return Request{}, err
	}
	req := Request{
		ThreadID:     fields.StringOr("threadId", ""),
		SystemPrompt: fields.StringOr("systemPrompt", ""),
		Timeline:     timeline,
	}
	if items, ok := fields.Array("tools"); ok {
		for _, item := range items {
			d, err := tools.DefinitionFromValue(item)
			if err != nil {
				slog.Debug("generation: skipping tool definition", "err", err)
				continue
			}
			req.Tools = append(req.Tools, d)
		}
	}
	if len(req.Tools) == 0 {
		req.Tools = fallback
	}
	return req, nil
}
