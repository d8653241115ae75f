package protocol

import (
	"time"

	"github.com/google/uuid"

	"github.com/crystaldolphin/agentbridge/internal/value"
)

// Envelope is one protocol message. Reserved header keys (type, version,
// timestamp, requestId) live in dedicated fields; everything else is
// kind-specific payload in Fields.
type Envelope struct {
	Type      Kind
	Version   string
	Timestamp int64 // ms since epoch, sender clock
	RequestID string
	Fields    value.Object
}

const (
	keyType      = "type"
	keyVersion   = "version"
	keyTimestamp = "timestamp"
	keyRequestID = "requestId"
)

var reserved = map[string]bool{
	keyType:      true,
	keyVersion:   true,
	keyTimestamp: true,
	keyRequestID: true,
}

// New builds an outbound envelope stamped with the current version and time.
func New(kind Kind, fields value.Object) Envelope {
	if fields == nil {
		fields = value.Object{}
	}
	return Envelope{
		Type:      kind,
		Version:   Version,
		Timestamp: time.Now().UnixMilli(),
		Fields:    fields,
	}
}

// Request builds an outbound envelope that expects a reply and therefore
// carries a freshly generated request id.
func Request(kind Kind, fields value.Object) Envelope {
	env := New(kind, fields)
	env.RequestID = NewRequestID()
	return env
}

// Reply builds an outbound envelope echoing requestID.
func Reply(kind Kind, requestID string, fields value.Object) Envelope {
	env := New(kind, fields)
	env.RequestID = requestID
	return env
}

// NewRequestID returns an opaque correlation id.
func NewRequestID() string {
	return uuid.NewString()
}

// Field returns the payload value under key (null when absent).
func (e Envelope) Field(key string) value.Value {
	return e.Fields[key]
}

// String returns the payload string under key, or "".
func (e Envelope) String(key string) string {
	s, _ := e.Fields.String(key)
	return s
}

// Object returns the payload object under key, or an empty object.
func (e Envelope) Object(key string) value.Object {
	if o, ok := e.Fields.Object(key); ok {
		return o
	}
	return value.Object{}
}

// ToValue flattens the envelope into the wire object. Payload keys that
// collide with header keys are dropped.
func (e Envelope) ToValue() value.Value {
	out := make(value.Object, len(e.Fields)+4)
	for k, v := range e.Fields {
		if reserved[k] {
			continue
		}
		out[k] = v
	}
	out[keyType] = value.String(string(e.Type))
	out[keyVersion] = value.String(e.Version)
	out[keyTimestamp] = value.Int(e.Timestamp)
	if e.RequestID != "" {
		out[keyRequestID] = value.String(e.RequestID)
	}
	return value.ObjectOf(out)
}

// Capabilities are the feature flags advertised in handshake:ack.
type Capabilities struct {
	MCP     bool
	DOM     bool
	Storage bool
	LLM     bool
}

func (c Capabilities) ToValue() value.Value {
	return value.ObjectOf(value.Object{
		"mcp":     value.Bool(c.MCP),
		"dom":     value.Bool(c.DOM),
		"storage": value.Bool(c.Storage),
		"llm":     value.Bool(c.LLM),
	})
}
