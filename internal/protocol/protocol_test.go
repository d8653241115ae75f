package protocol

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/crystaldolphin/agentbridge/internal/value"
)

func TestKindParts(t *testing.T) {
	tests := []struct {
		kind       Kind
		namespace  string
		suffix     string
		recognized bool
	}{
		{KindHandshake, "handshake", "", true},
		{KindInvoke, "mcp", "invoke", true},
		{KindGenerateError, "llm", "generate:error", true},
		{Kind("analytics:ping"), "analytics", "ping", false},
		{Kind(""), "", "", false},
	}
	for _, tt := range tests {
		if got := tt.kind.Namespace(); got != tt.namespace {
			t.Errorf("%q.Namespace() = %q, want %q", tt.kind, got, tt.namespace)
		}
		if got := tt.kind.Suffix(); got != tt.suffix {
			t.Errorf("%q.Suffix() = %q, want %q", tt.kind, got, tt.suffix)
		}
		if got := tt.kind.Recognized(); got != tt.recognized {
			t.Errorf("%q.Recognized() = %v, want %v", tt.kind, got, tt.recognized)
		}
	}
}

func TestEncodeDecode(t *testing.T) {
	c := NewJSONCodec()
	env := Reply(KindResult, "req-1", value.Object{
		"result": value.ObjectOf(value.Object{"count": value.Int(2)}),
	})

	data, err := c.Encode(env)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("encoded payload is not JSON: %v", err)
	}
	if raw["type"] != "mcp:result" || raw["requestId"] != "req-1" || raw["version"] != Version {
		t.Errorf("unexpected header: %v", raw)
	}

	back, err := c.Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if back.Type != KindResult || back.RequestID != "req-1" || back.Timestamp != env.Timestamp {
		t.Errorf("header mismatch: %+v", back)
	}
	if !back.Field("result").Equal(env.Field("result")) {
		t.Errorf("result = %s", value.Stringify(back.Field("result")))
	}
	if _, ok := back.Fields["type"]; ok {
		t.Error("header keys must not leak into Fields")
	}
}

func TestEncode_FieldsCannotOverrideHeader(t *testing.T) {
	env := New(KindError, value.Object{"type": value.String("spoof"), "error": value.String("x")})
	data, err := NewJSONCodec().Encode(env)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.Contains(string(data), `"type":"mcp:error"`) {
		t.Errorf("type was overridden: %s", data)
	}
}

func TestEncode_NonFiniteFails(t *testing.T) {
	env := Reply(KindResult, "r", value.Object{"result": value.Number(math.NaN())})
	if _, err := NewJSONCodec().Encode(env); err == nil {
		t.Fatal("expected encode error for NaN")
	}
}

func TestDecode_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    error
	}{
		{"not json", `hello`, ErrNotObject},
		{"array", `[1,2]`, ErrNotObject},
		{"number", `42`, ErrNotObject},
		{"no type", `{"a":1}`, ErrUnknownKind},
		{"foreign namespace", `{"type":"analytics:ping"}`, ErrUnknownKind},
		{"type not string", `{"type":7}`, ErrUnknownKind},
	}
	c := NewJSONCodec()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Decode([]byte(tt.payload))
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDecode_StringWrapped(t *testing.T) {
	inner := `{"type":"mcp:invoke","requestId":"r9","toolName":"search_events","args":{"query":"lunch"}}`
	outer, _ := json.Marshal(inner)

	env, err := NewJSONCodec().Decode(outer)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Type != KindInvoke || env.RequestID != "r9" {
		t.Errorf("got %+v", env)
	}
	if env.String("toolName") != "search_events" {
		t.Errorf("toolName = %q", env.String("toolName"))
	}
	if env.Object("args").StringOr("query", "") != "lunch" {
		t.Errorf("args = %v", env.Object("args"))
	}
}

func TestFallbackError(t *testing.T) {
	data := FallbackError(`req "7"`, KindResult, "could not encode\nresult")

	env, err := NewJSONCodec().Decode(data)
	if err != nil {
		t.Fatalf("fallback must decode: %v (%s)", err, data)
	}
	if env.Type != KindError {
		t.Errorf("type = %s", env.Type)
	}
	if env.RequestID != `req "7"` {
		t.Errorf("requestId = %q", env.RequestID)
	}
	if env.String("originalType") != string(KindResult) {
		t.Errorf("originalType = %q", env.String("originalType"))
	}
	if env.String("error") != "could not encode\nresult" {
		t.Errorf("error = %q", env.String("error"))
	}
}

func TestRequestIDs(t *testing.T) {
	a := Request(KindThemeSet, nil)
	b := Request(KindThemeSet, nil)
	if a.RequestID == "" || a.RequestID == b.RequestID {
		t.Errorf("request ids must be non-empty and distinct: %q %q", a.RequestID, b.RequestID)
	}
}
