package channel

import (
	"context"
	"sync"
)

type pipeState struct {
	done chan struct{}
	once sync.Once
}

// Endpoint is one side of an in-process pipe.
type Endpoint struct {
	recv  chan []byte
	peer  chan []byte
	state *pipeState
}

// NewPipe returns two connected endpoints, each buffering up to buf payloads
// in its inbound direction. Closing either side closes both. It backs tests
// and hosts that run the web client in-process.
func NewPipe(buf int) (host, client *Endpoint) {
	a := make(chan []byte, buf)
	b := make(chan []byte, buf)
	st := &pipeState{done: make(chan struct{})}
	return &Endpoint{recv: a, peer: b, state: st}, &Endpoint{recv: b, peer: a, state: st}
}

func (e *Endpoint) Send(ctx context.Context, payload []byte) error {
	select {
	case <-e.state.done:
		return ErrClosed
	default:
	}
	cp := append([]byte(nil), payload...)
	select {
	case e.peer <- cp:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.state.done:
		return ErrClosed
	}
}

func (e *Endpoint) Receive() <-chan []byte { return e.recv }

func (e *Endpoint) Inject(ctx context.Context, script string) error {
	payload, err := injectPayload(script)
	if err != nil {
		return err
	}
	return e.Send(ctx, payload)
}

func (e *Endpoint) Done() <-chan struct{} { return e.state.done }

func (e *Endpoint) Close() error {
	e.state.once.Do(func() { close(e.state.done) })
	return nil
}

var _ Channel = (*Endpoint)(nil)
