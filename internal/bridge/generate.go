package bridge

import (
	"context"
	"log/slog"

	"github.com/crystaldolphin/agentbridge/internal/generation"
	"github.com/crystaldolphin/agentbridge/internal/protocol"
	"github.com/crystaldolphin/agentbridge/internal/value"
)

// onGenerate parses the request on the engine goroutine and runs the model
// call on its own. When the request carries no tools[] the registered tools
// are offered.
func (e *Engine) onGenerate(ctx context.Context, env protocol.Envelope) {
	r := e.replier(env.RequestID)

	req, err := generation.RequestFromValue(env.Fields, e.registry.Definitions())
	if err != nil {
		e.generateFailed(ctx, r, &generation.Error{Code: generation.CodeGenerationFailed, Err: err})
		return
	}

	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		d, err := e.opts.Generator.Generate(ctx, req)
		if err != nil {
			e.generateFailed(ctx, r, err)
			return
		}
		r.reply(ctx, protocol.New(protocol.KindGenerateResponse, value.Object{
			"toolName": value.String(d.ToolName),
			"toolArgs": value.ObjectOf(d.ToolArgs),
			"usage": value.ObjectOf(value.Object{
				"inputTokens":  value.Int(int64(d.InputTokens)),
				"outputTokens": value.Int(int64(d.OutputTokens)),
			}),
		}))
	}()
}

func (e *Engine) generateFailed(ctx context.Context, r *replier, err error) {
	code := generation.CodeOf(err)
	slog.Warn("bridge: generation failed", "requestId", r.requestID, "code", code, "err", err)
	r.reply(ctx, protocol.New(protocol.KindGenerateError, value.Object{
		"error": value.String(err.Error()),
		"code":  value.String(string(code)),
	}))
}
