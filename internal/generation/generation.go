// Package generation answers llm:generate requests with a local model. A
// Backend produces structured text; the Adapter turns it into a canonical
// tool-call Decision using one of two output encodings.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/crystaldolphin/agentbridge/internal/tools"
	"github.com/crystaldolphin/agentbridge/internal/value"
)

// Mode selects how the model encodes its tool call.
type Mode string

const (
	// ModeDynamic asks for {toolName, toolArgsJSON} with the arguments as a
	// JSON-object string. Works for any tool.
	ModeDynamic Mode = "dynamic"
	// ModeStatic asks for one flat decision object drawn from StaticFields.
	ModeStatic Mode = "static"
)

// ParseMode accepts "dynamic" or "static"; empty means dynamic.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeDynamic:
		return ModeDynamic, nil
	case ModeStatic:
		return ModeStatic, nil
	}
	return "", fmt.Errorf("unknown generation mode %q", s)
}

// Code classifies a generation failure on the wire.
type Code string

const (
	CodeModelUnavailable Code = "model_unavailable"
	CodeGenerationFailed Code = "generation_failed"
)

// ErrModelUnavailable means no backend is configured or it cannot be reached.
var ErrModelUnavailable = errors.New("model unavailable")

// Error is a typed generation failure.
type Error struct {
	Code Code
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

func failed(format string, a ...any) *Error {
	return &Error{Code: CodeGenerationFailed, Err: fmt.Errorf(format, a...)}
}

// CodeOf maps any error to its wire code.
func CodeOf(err error) Code {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Code
	}
	if errors.Is(err, ErrModelUnavailable) {
		return CodeModelUnavailable
	}
	return CodeGenerationFailed
}

// Request is the input of one llm:generate call.
type Request struct {
	ThreadID     string
	SystemPrompt string
	Timeline     []Message
	Tools        []tools.Definition
}

// Decision is the model's choice of tool call.
type Decision struct {
	ToolName     string
	ToolArgs     value.Object
	InputTokens  int
	OutputTokens int
}

// Prompt is what a Backend receives.
type Prompt struct {
	Mode       Mode
	System     string // instruction preamble followed by the caller's system prompt
	Transcript string // linearized timeline
}

// Output is raw model text plus usage.
type Output struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// Backend is a local inference engine.
type Backend interface {
	Complete(ctx context.Context, p Prompt) (Output, error)
}

// BackendFunc adapts a function into a Backend.
type BackendFunc func(ctx context.Context, p Prompt) (Output, error)

func (f BackendFunc) Complete(ctx context.Context, p Prompt) (Output, error) { return f(ctx, p) }
