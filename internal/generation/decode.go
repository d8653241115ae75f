package generation

import (
	"regexp"
	"strings"

	"github.com/crystaldolphin/agentbridge/internal/shared/stringutils"
	"github.com/crystaldolphin/agentbridge/internal/tools"
	"github.com/crystaldolphin/agentbridge/internal/value"
)

// StaticFields is the shared field set of a static-mode decision object,
// covering the parameters of every tool static mode supports.
var StaticFields = []string{
	"startDate", "endDate",
	"title", "notes", "location", "recurrence",
	"id", "query",
	"message", "options", "severity",
}

var staticFieldSet = func() map[string]bool {
	m := make(map[string]bool, len(StaticFields))
	for _, f := range StaticFields {
		m[f] = true
	}
	return m
}()

// FieldTable maps a tool name to the static fields that belong to it.
type FieldTable map[string][]string

// NewFieldTable derives the table from tool definitions: each tool gets the
// declared parameters that are also static fields, in declaration order.
func NewFieldTable(defs []tools.Definition) FieldTable {
	t := make(FieldTable, len(defs))
	for _, d := range defs {
		fields := []string{}
		for _, p := range d.Params {
			if staticFieldSet[p.Name] {
				fields = append(fields, p.Name)
			}
		}
		t[d.Name] = fields
	}
	return t
}

// DecodeDynamic maps {toolName, toolArgsJSON} to a Decision. A toolArgs
// object is accepted in place of the string.
func DecodeDynamic(out value.Object) (Decision, error) {
	name, _ := out.String("toolName")
	if name == "" {
		return Decision{}, failed("model output has no toolName")
	}

	args := value.Object{}
	if raw, ok := out.String("toolArgsJSON"); ok {
		parsed, err := repairJSON(raw)
		if err != nil {
			return Decision{}, failed("toolArgsJSON for %s: %v", name, err)
		}
		args = parsed
	} else if obj, ok := out.Object("toolArgs"); ok {
		args = obj
	}
	return Decision{ToolName: name, ToolArgs: normalizeArgs(args)}, nil
}

// DecodeStatic maps a flat decision object to a Decision, keeping only the
// fields the table lists for the chosen tool.
func DecodeStatic(out value.Object, table FieldTable) (Decision, error) {
	name, _ := out.String("toolName")
	if name == "" {
		return Decision{}, failed("model output has no toolName")
	}
	fields, ok := table[name]
	if !ok {
		return Decision{}, failed("model chose unknown tool %q", name)
	}

	args := make(value.Object, len(fields))
	for _, f := range fields {
		if v, ok := out[f]; ok {
			args[f] = v
		}
	}
	return Decision{ToolName: name, ToolArgs: normalizeArgs(args)}, nil
}

// normalizeArgs drops null and empty-string values, which small models emit
// for fields they mean to leave unset.
func normalizeArgs(args value.Object) value.Object {
	out := make(value.Object, len(args))
	for k, v := range args {
		if v.IsNull() {
			continue
		}
		if s, ok := v.AsString(); ok && s == "" {
			continue
		}
		out[k] = v
	}
	return out
}

var reFence = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// ParseOutput extracts the JSON object from raw model text, tolerating
// reasoning blocks, code fences and surrounding prose.
func ParseOutput(text string) (value.Object, error) {
	text = strings.TrimSpace(stringutils.StripThink(text))
	if m := reFence.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}
	if i := strings.Index(text, "{"); i > 0 {
		text = text[i:]
	}
	if text == "" {
		return nil, failed("model returned no output")
	}
	obj, err := repairJSON(text)
	if err != nil {
		return nil, failed("model output is not a JSON object: %v", err)
	}
	return obj, nil
}

// repairJSON parses a JSON object, retrying with trailing garbage cut after
// the first complete object, then with a truncated object closed.
func repairJSON(raw string) (value.Object, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return value.Object{}, nil
	}

	obj, err := parseObject(raw)
	if err == nil {
		return obj, nil
	}
	st := scanJSON(raw)
	if st.end > 0 && st.end < len(raw) {
		if obj, err := parseObject(raw[:st.end]); err == nil {
			return obj, nil
		}
	}
	if st.end == 0 {
		if obj, err := parseObject(closeTruncated(raw, st)); err == nil {
			return obj, nil
		}
	}
	return nil, err
}

type jsonScan struct {
	open     []byte // closers still owed, innermost last
	end      int    // index just past the first complete top-level value, or 0
	inString bool
	escaped  bool
}

func scanJSON(raw string) jsonScan {
	var st jsonScan
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case st.escaped:
			st.escaped = false
		case st.inString && c == '\\':
			st.escaped = true
		case c == '"':
			st.inString = !st.inString
		case st.inString:
		case c == '{':
			st.open = append(st.open, '}')
		case c == '[':
			st.open = append(st.open, ']')
		case (c == '}' || c == ']') && len(st.open) > 0:
			st.open = st.open[:len(st.open)-1]
			if len(st.open) == 0 && st.end == 0 {
				st.end = i + 1
			}
		}
	}
	return st
}

// closeTruncated completes JSON cut off mid-stream: it ends an open string,
// drops a dangling comma, gives a dangling key a null value and closes every
// open object and array in order.
func closeTruncated(raw string, st jsonScan) string {
	out := raw
	if st.escaped {
		out += "\\"
	}
	if st.inString {
		out += `"`
	}
	out = strings.TrimRight(out, " \t\r\n")
	switch {
	case strings.HasSuffix(out, ","):
		out = strings.TrimSuffix(out, ",")
	case strings.HasSuffix(out, ":"):
		out += "null"
	}
	for i := len(st.open) - 1; i >= 0; i-- {
		out += string(st.open[i])
	}
	return out
}

func parseObject(s string) (value.Object, error) {
	var obj value.Object
	if err := obj.UnmarshalJSON([]byte(s)); err != nil {
		return nil, err
	}
	return obj, nil
}
