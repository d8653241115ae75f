// Package tools holds the host capabilities the embedded agent can call, the
// registry that owns them and the schema builder that describes their
// arguments on the wire.
package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/crystaldolphin/agentbridge/internal/value"
)

// Tool is the interface every host capability must satisfy.
// Built-in tools, calendar tools and MCP-wrapped tools all implement it.
type Tool interface {
	Name() string
	Description() string
	// Params declares the arguments once; the wire schema and the static
	// generation field table are both derived from it.
	Params() []Param
	// Timeout bounds Execute. Zero means wait indefinitely, for tools that
	// block on the user.
	Timeout() time.Duration
	Execute(ctx context.Context, args value.Object) (any, error)
}

// HandlerFunc is the body of a Func tool.
type HandlerFunc func(ctx context.Context, args value.Object) (any, error)

// Func adapts a plain function into a Tool.
type Func struct {
	name        string
	description string
	params      []Param
	timeout     time.Duration
	fn          HandlerFunc
}

// NewFunc creates a Tool backed by fn.
func NewFunc(name, description string, params []Param, timeout time.Duration, fn HandlerFunc) *Func {
	return &Func{name: name, description: description, params: params, timeout: timeout, fn: fn}
}

func (f *Func) Name() string           { return f.name }
func (f *Func) Description() string    { return f.description }
func (f *Func) Params() []Param        { return f.params }
func (f *Func) Timeout() time.Duration { return f.timeout }

func (f *Func) Execute(ctx context.Context, args value.Object) (any, error) {
	return f.fn(ctx, args)
}

// Definition is the wire description of a tool, as sent in mcp:tools.
type Definition struct {
	Name        string
	Description string
	InputSchema value.Object
	Timeout     time.Duration
	Params      []Param
}

// DefinitionOf projects t into its wire shape.
func DefinitionOf(t Tool) Definition {
	params := t.Params()
	return Definition{
		Name:        t.Name(),
		Description: t.Description(),
		InputSchema: SchemaOf(params),
		Timeout:     t.Timeout(),
		Params:      params,
	}
}

// TimeoutMs is the timeout in milliseconds; 0 signals no timeout.
func (d Definition) TimeoutMs() int64 {
	return d.Timeout.Milliseconds()
}

// ToValue renders {name, description, inputSchema, timeout}.
func (d Definition) ToValue() value.Value {
	return value.ObjectOf(value.Object{
		"name":        value.String(d.Name),
		"description": value.String(d.Description),
		"inputSchema": value.ObjectOf(d.InputSchema),
		"timeout":     value.Int(d.TimeoutMs()),
	})
}

// DefinitionFromValue parses a wire definition, as carried by the tools[]
// field of llm:generate.
func DefinitionFromValue(v value.Value) (Definition, error) {
	obj, ok := v.AsObject()
	if !ok {
		return Definition{}, fmt.Errorf("tool definition: expected object, got %s", v.Kind())
	}
	name, _ := obj.String("name")
	if name == "" {
		return Definition{}, fmt.Errorf("tool definition: missing name")
	}
	schema, _ := obj.Object("inputSchema")
	d := Definition{
		Name:        name,
		Description: obj.StringOr("description", ""),
		InputSchema: schema,
		Params:      ParamsFromSchema(schema),
	}
	if ms, ok := obj["timeout"].AsInt(); ok && ms > 0 {
		d.Timeout = time.Duration(ms) * time.Millisecond
	}
	if d.InputSchema == nil {
		d.InputSchema = SchemaOf(nil)
	}
	return d, nil
}

// DefinitionsToValue renders a tools[] array.
func DefinitionsToValue(defs []Definition) value.Value {
	out := make([]value.Value, len(defs))
	for i, d := range defs {
		out[i] = d.ToValue()
	}
	return value.Array(out...)
}
