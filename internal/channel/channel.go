// Package channel provides the transports between the host and the embedded
// web client. A channel moves opaque payloads both ways with best-effort
// delivery, in order within one direction only.
package channel

import (
	"context"
	"errors"

	"github.com/crystaldolphin/agentbridge/internal/protocol"
	"github.com/crystaldolphin/agentbridge/internal/value"
)

var (
	// ErrClosed is returned by operations on a closed channel.
	ErrClosed = errors.New("channel closed")
	// ErrNotConnected is returned by Send when no client is attached.
	ErrNotConnected = errors.New("no client connected")
)

// Channel is the host side of a transport.
type Channel interface {
	// Send delivers payload to the client.
	Send(ctx context.Context, payload []byte) error
	// Receive yields payloads from the client. The returned channel is never
	// closed; watch Done for shutdown.
	Receive() <-chan []byte
	// Inject asks the client surface to evaluate script.
	Inject(ctx context.Context, script string) error
	// Done is closed once the channel is closed.
	Done() <-chan struct{}
	Close() error
}

// injectPayload wraps script in a host:inject envelope for transports that
// have no native evaluation hook.
func injectPayload(script string) ([]byte, error) {
	env := protocol.New(protocol.KindInject, value.Object{"script": value.String(script)})
	return protocol.NewJSONCodec().Encode(env)
}
