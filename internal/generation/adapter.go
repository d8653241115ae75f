package generation

import (
	"context"
	"errors"
	"log/slog"
)

// Adapter presents a uniform Generate over a Backend.
type Adapter struct {
	backend Backend
	mode    Mode
}

// NewAdapter wraps backend. A nil backend yields an adapter whose every call
// fails with CodeModelUnavailable.
func NewAdapter(backend Backend, mode Mode) *Adapter {
	if mode == "" {
		mode = ModeDynamic
	}
	return &Adapter{backend: backend, mode: mode}
}

func (a *Adapter) Mode() Mode { return a.mode }

// Available reports whether a backend is configured.
func (a *Adapter) Available() bool { return a != nil && a.backend != nil }

// Generate asks the backend for the next tool call. Errors are always *Error.
func (a *Adapter) Generate(ctx context.Context, req Request) (Decision, error) {
	if !a.Available() {
		return Decision{}, &Error{Code: CodeModelUnavailable, Err: ErrModelUnavailable}
	}

	prompt := BuildPrompt(req, a.mode)
	out, err := a.backend.Complete(ctx, prompt)
	if err != nil {
		code := CodeGenerationFailed
		if errors.Is(err, ErrModelUnavailable) {
			code = CodeModelUnavailable
		}
		slog.Warn("generation: backend failed", "thread", req.ThreadID, "code", code, "err", err)
		return Decision{}, &Error{Code: code, Err: err}
	}

	obj, err := ParseOutput(out.Text)
	if err != nil {
		return Decision{}, err
	}

	var d Decision
	switch a.mode {
	case ModeStatic:
		d, err = DecodeStatic(obj, NewFieldTable(req.Tools))
	default:
		d, err = DecodeDynamic(obj)
	}
	if err != nil {
		return Decision{}, err
	}

	d.InputTokens = out.InputTokens
	d.OutputTokens = out.OutputTokens
	slog.Debug("generation: decided", "thread", req.ThreadID, "tool", d.ToolName, "mode", a.mode)
	return d, nil
}
