package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/crystaldolphin/agentbridge/internal/value"
)

var (
	// ErrNotObject means the payload did not decode to a JSON object.
	ErrNotObject = errors.New("payload is not an object")
	// ErrUnknownKind means the payload has no type in a bridge namespace.
	ErrUnknownKind = errors.New("payload has no recognized kind")
)

// Codec turns envelopes into channel payloads and back.
type Codec interface {
	Encode(env Envelope) ([]byte, error)
	Decode(payload []byte) (Envelope, error)
}

// JSONCodec is the default Codec: one JSON object per payload.
type JSONCodec struct{}

func NewJSONCodec() *JSONCodec { return &JSONCodec{} }

// Encode serializes env. It fails when a payload field holds a value the wire
// format cannot carry (a non-finite number).
func (c *JSONCodec) Encode(env Envelope) ([]byte, error) {
	data, err := env.ToValue().MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", env.Type, err)
	}
	return data, nil
}

// Decode parses payload into an envelope. A payload that is itself a JSON
// string is unwrapped once, since web views commonly post pre-stringified
// messages.
func (c *JSONCodec) Decode(payload []byte) (Envelope, error) {
	v, err := value.Parse(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrNotObject, err)
	}
	if s, ok := v.AsString(); ok {
		if v, err = value.Parse([]byte(s)); err != nil {
			return Envelope{}, fmt.Errorf("%w: %v", ErrNotObject, err)
		}
	}

	obj, ok := v.AsObject()
	if !ok {
		return Envelope{}, fmt.Errorf("%w: got %s", ErrNotObject, v.Kind())
	}

	typ, _ := obj.String(keyType)
	kind := Kind(typ)
	if typ == "" || !kind.Recognized() {
		return Envelope{}, fmt.Errorf("%w: %q", ErrUnknownKind, typ)
	}

	env := Envelope{Type: kind, Fields: make(value.Object, len(obj))}
	env.Version, _ = obj.String(keyVersion)
	if ts, ok := obj[keyTimestamp].AsInt(); ok {
		env.Timestamp = ts
	}
	env.RequestID, _ = obj.String(keyRequestID)
	for k, fv := range obj {
		if !reserved[k] {
			env.Fields[k] = fv
		}
	}
	return env, nil
}

// FallbackError hand-builds a minimal mcp:error payload that is always valid
// JSON, for use when encoding the real reply failed. original is the kind of
// the envelope that could not be sent.
func FallbackError(requestID string, original Kind, message string) []byte {
	b := make([]byte, 0, 160+len(message))
	b = append(b, `{"type":`...)
	b = appendQuoted(b, string(KindError))
	b = append(b, `,"version":`...)
	b = appendQuoted(b, Version)
	b = append(b, `,"timestamp":`...)
	b = strconv.AppendInt(b, time.Now().UnixMilli(), 10)
	if requestID != "" {
		b = append(b, `,"requestId":`...)
		b = appendQuoted(b, requestID)
	}
	b = append(b, `,"error":`...)
	b = appendQuoted(b, message)
	b = append(b, `,"originalType":`...)
	b = appendQuoted(b, string(original))
	return append(b, '}')
}

// appendQuoted relies on json.Marshal never failing for strings.
func appendQuoted(b []byte, s string) []byte {
	q, _ := json.Marshal(s)
	return append(b, q...)
}
