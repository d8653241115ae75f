package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/crystaldolphin/agentbridge/internal/protocol"
)

// send encodes env and writes it to the channel. When encoding fails a
// hand-built mcp:error referencing the same request goes out instead, so a
// waiting client is never left without an answer.
func (e *Engine) send(ctx context.Context, env protocol.Envelope) {
	payload, err := e.codec.Encode(env)
	if err != nil {
		slog.Error("bridge: encode failed, sending fallback error",
			"type", env.Type, "requestId", env.RequestID, "err", err)
		payload = protocol.FallbackError(env.RequestID, env.Type, fmt.Sprintf("failed to serialize %s: %v", env.Type, err))
	}

	sendCtx, cancel := context.WithTimeout(ctx, e.opts.SendTimeout)
	defer cancel()
	if err := e.ch.Send(sendCtx, payload); err != nil {
		slog.Warn("bridge: send failed", "type", env.Type, "requestId", env.RequestID, "err", err)
	}
}

// replier delivers at most one reply for a request.
type replier struct {
	e         *Engine
	requestID string
	once      sync.Once
}

func (e *Engine) replier(requestID string) *replier {
	return &replier{e: e, requestID: requestID}
}

// reply sends env with the request id filled in. Later calls are no-ops and
// report false.
func (r *replier) reply(ctx context.Context, env protocol.Envelope) bool {
	sent := false
	r.once.Do(func() {
		env.RequestID = r.requestID
		r.e.send(ctx, env)
		sent = true
	})
	if !sent {
		slog.Warn("bridge: dropping duplicate reply", "type", env.Type, "requestId", r.requestID)
	}
	return sent
}
