package value

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"time"
)

// ErrUnrepresentable is returned when a Go value has no wire representation.
var ErrUnrepresentable = errors.New("value not representable on the wire")

// Valuer is implemented by types that know how to render themselves as a Value.
type Valuer interface {
	ToValue() Value
}

const maxDepth = 64

// FromAny converts plain Go data into a Value. Dates, byte blobs, errors,
// structs, channels, functions and non-finite numbers are rejected with
// ErrUnrepresentable; use Degrade when a best-effort rendering is acceptable.
func FromAny(x any) (Value, error) {
	return fromAny(x, "$", 0)
}

func fromAny(x any, path string, depth int) (Value, error) {
	if depth > maxDepth {
		return Null(), fmt.Errorf("%w: %s nests deeper than %d levels", ErrUnrepresentable, path, maxDepth)
	}
	if isNilPointer(x) {
		return Null(), nil
	}

	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		if err := checkFinite(t, path); err != nil {
			return Null(), err
		}
		return t, nil
	case Object:
		v := ObjectOf(t)
		if err := checkFinite(v, path); err != nil {
			return Null(), err
		}
		return v, nil
	case Valuer:
		return fromAny(t.ToValue(), path, depth+1)
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Null(), fmt.Errorf("%w: %s: %v", ErrUnrepresentable, path, err)
		}
		return Number(f), nil
	case json.RawMessage:
		v, err := Parse(t)
		if err != nil {
			return Null(), fmt.Errorf("%s: %w", path, err)
		}
		return v, nil
	case []byte:
		return Null(), fmt.Errorf("%w: %s is a byte blob", ErrUnrepresentable, path)
	case time.Time:
		return Null(), fmt.Errorf("%w: %s is a time.Time", ErrUnrepresentable, path)
	case error:
		return Null(), fmt.Errorf("%w: %s is an error value", ErrUnrepresentable, path)
	case []any:
		out := make([]Value, len(t))
		for i, e := range t {
			v, err := fromAny(e, fmt.Sprintf("%s[%d]", path, i), depth+1)
			if err != nil {
				return Null(), err
			}
			out[i] = v
		}
		return Array(out...), nil
	case map[string]any:
		out := make(Object, len(t))
		for k, e := range t {
			v, err := fromAny(e, path+"."+k, depth+1)
			if err != nil {
				return Null(), err
			}
			out[k] = v
		}
		return ObjectOf(out), nil
	case []string:
		return Strings(t), nil
	}

	rv := reflect.ValueOf(x)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return Null(), nil
		}
		return fromAny(rv.Elem().Interface(), path, depth+1)
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	case reflect.String:
		return String(rv.String()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return Number(float64(rv.Uint())), nil
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return Null(), fmt.Errorf("%w: %s is a non-finite number", ErrUnrepresentable, path)
		}
		return Number(f), nil
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return Null(), fmt.Errorf("%w: %s is a byte blob", ErrUnrepresentable, path)
		}
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return Null(), nil
		}
		out := make([]Value, rv.Len())
		for i := range out {
			v, err := fromAny(rv.Index(i).Interface(), fmt.Sprintf("%s[%d]", path, i), depth+1)
			if err != nil {
				return Null(), err
			}
			out[i] = v
		}
		return Array(out...), nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return Null(), fmt.Errorf("%w: %s has non-string keys", ErrUnrepresentable, path)
		}
		out := make(Object, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k := iter.Key().String()
			v, err := fromAny(iter.Value().Interface(), path+"."+k, depth+1)
			if err != nil {
				return Null(), err
			}
			out[k] = v
		}
		return ObjectOf(out), nil
	}

	return Null(), fmt.Errorf("%w: %s is %T", ErrUnrepresentable, path, x)
}

// isNilPointer reports a typed nil pointer, whose methods must not be called.
func isNilPointer(x any) bool {
	rv := reflect.ValueOf(x)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}

func checkFinite(v Value, path string) error {
	switch v.kind {
	case KindNumber:
		if math.IsNaN(v.n) || math.IsInf(v.n, 0) {
			return fmt.Errorf("%w: %s is a non-finite number", ErrUnrepresentable, path)
		}
	case KindArray:
		for i, e := range v.arr {
			if err := checkFinite(e, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
	case KindObject:
		for k, e := range v.obj {
			if err := checkFinite(e, path+"."+k); err != nil {
				return err
			}
		}
	}
	return nil
}

// Degrade renders any Go value as a Value, never failing. Representable data
// converts exactly as FromAny would; dates become RFC 3339 strings, byte blobs
// become base64 strings, errors become their message, non-finite numbers
// become null and anything else falls back to its printed form.
func Degrade(x any) Value {
	return degrade(x, 0)
}

func degrade(x any, depth int) Value {
	if v, err := FromAny(x); err == nil {
		return v
	}
	if depth > maxDepth {
		return String(fmt.Sprintf("%T", x))
	}
	if isNilPointer(x) {
		return Null()
	}

	switch t := x.(type) {
	case Value:
		return degradeValue(t)
	case Object:
		return degradeValue(ObjectOf(t))
	case time.Time:
		return String(t.UTC().Format(time.RFC3339Nano))
	case []byte:
		return String(base64.StdEncoding.EncodeToString(t))
	case error:
		return String(t.Error())
	case fmt.Stringer:
		return String(t.String())
	case []any:
		out := make([]Value, len(t))
		for i, e := range t {
			out[i] = degrade(e, depth+1)
		}
		return Array(out...)
	case map[string]any:
		out := make(Object, len(t))
		for k, e := range t {
			out[k] = degrade(e, depth+1)
		}
		return ObjectOf(out)
	}

	rv := reflect.ValueOf(x)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return Null()
		}
		return degrade(rv.Elem().Interface(), depth+1)
	case reflect.Float32, reflect.Float64:
		return Null()
	case reflect.Slice, reflect.Array:
		out := make([]Value, rv.Len())
		for i := range out {
			out[i] = degrade(rv.Index(i).Interface(), depth+1)
		}
		return Array(out...)
	case reflect.Map:
		out := make(Object, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[fmt.Sprint(iter.Key().Interface())] = degrade(iter.Value().Interface(), depth+1)
		}
		return ObjectOf(out)
	case reflect.Struct:
		if data, err := json.Marshal(x); err == nil {
			if v, err := Parse(data); err == nil {
				return v
			}
		}
		out := make(Object, rv.NumField())
		rt := rv.Type()
		for i := 0; i < rv.NumField(); i++ {
			f := rt.Field(i)
			if !f.IsExported() {
				continue
			}
			out[f.Name] = degrade(rv.Field(i).Interface(), depth+1)
		}
		return ObjectOf(out)
	case reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return String("<" + rv.Type().String() + ">")
	}

	return String(fmt.Sprintf("%v", x))
}

func degradeValue(v Value) Value {
	switch v.kind {
	case KindNumber:
		if math.IsNaN(v.n) || math.IsInf(v.n, 0) {
			return Null()
		}
	case KindArray:
		out := make([]Value, len(v.arr))
		for i, e := range v.arr {
			out[i] = degradeValue(e)
		}
		return Array(out...)
	case KindObject:
		out := make(Object, len(v.obj))
		for k, e := range v.obj {
			out[k] = degradeValue(e)
		}
		return ObjectOf(out)
	}
	return v
}
