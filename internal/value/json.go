package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
)

// MarshalJSON encodes v. Object keys are written in sorted order so encodings
// are deterministic. Non-finite numbers fail with ErrUnrepresentable.
func (v Value) MarshalJSON() ([]byte, error) {
	return v.appendJSON(make([]byte, 0, 64))
}

func (v Value) appendJSON(b []byte) ([]byte, error) {
	switch v.kind {
	case KindNull:
		return append(b, "null"...), nil
	case KindBool:
		return strconv.AppendBool(b, v.b), nil
	case KindNumber:
		if math.IsNaN(v.n) || math.IsInf(v.n, 0) {
			return nil, fmt.Errorf("%w: non-finite number %v", ErrUnrepresentable, v.n)
		}
		data, err := json.Marshal(v.n)
		if err != nil {
			return nil, err
		}
		return append(b, data...), nil
	case KindString:
		return appendString(b, v.s), nil
	case KindArray:
		b = append(b, '[')
		for i, e := range v.arr {
			if i > 0 {
				b = append(b, ',')
			}
			var err error
			if b, err = e.appendJSON(b); err != nil {
				return nil, err
			}
		}
		return append(b, ']'), nil
	case KindObject:
		b = append(b, '{')
		for i, k := range v.obj.Keys() {
			if i > 0 {
				b = append(b, ',')
			}
			b = appendString(b, k)
			b = append(b, ':')
			var err error
			if b, err = v.obj[k].appendJSON(b); err != nil {
				return nil, err
			}
		}
		return append(b, '}'), nil
	}
	return nil, fmt.Errorf("value: unknown kind %d", v.kind)
}

// appendString never fails: encoding/json replaces invalid UTF-8.
func appendString(b []byte, s string) []byte {
	data, _ := json.Marshal(s)
	return append(b, data...)
}

// UnmarshalJSON decodes any JSON document into v.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func (o Object) MarshalJSON() ([]byte, error) {
	return ObjectOf(o).MarshalJSON()
}

func (o *Object) UnmarshalJSON(data []byte) error {
	v, err := Parse(data)
	if err != nil {
		return err
	}
	obj, ok := v.AsObject()
	if !ok {
		return fmt.Errorf("value: expected object, got %s", v.Kind())
	}
	*o = obj
	return nil
}

// Parse decodes a single JSON document. Trailing data is an error.
func Parse(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var x any
	if err := dec.Decode(&x); err != nil {
		return Null(), fmt.Errorf("parse json: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return Null(), fmt.Errorf("parse json: trailing data after document")
	}
	return FromAny(x)
}

// Stringify returns the compact JSON text of v, or "null" when v cannot be
// encoded.
func Stringify(v Value) string {
	data, err := v.MarshalJSON()
	if err != nil {
		return "null"
	}
	return string(data)
}
