package tools

import (
	"github.com/crystaldolphin/agentbridge/internal/value"
)

// RequireString returns a non-empty string argument.
func RequireString(args value.Object, key string) (string, error) {
	v, ok := args[key]
	if !ok || v.IsNull() {
		return "", InvalidArgs("missing required parameter %q", key)
	}
	s, ok := v.AsString()
	if !ok {
		return "", InvalidArgs("parameter %q must be a string, got %s", key, v.Kind())
	}
	if s == "" {
		return "", InvalidArgs("parameter %q must not be empty", key)
	}
	return s, nil
}

// OptionalString returns the string argument, or "" when absent or null.
func OptionalString(args value.Object, key string) (string, error) {
	v, ok := args[key]
	if !ok || v.IsNull() {
		return "", nil
	}
	s, ok := v.AsString()
	if !ok {
		return "", InvalidArgs("parameter %q must be a string, got %s", key, v.Kind())
	}
	return s, nil
}

// OptionalInt returns the integer argument, or def when absent or null.
func OptionalInt(args value.Object, key string, def int) (int, error) {
	v, ok := args[key]
	if !ok || v.IsNull() {
		return def, nil
	}
	n, ok := v.AsInt()
	if !ok {
		return 0, InvalidArgs("parameter %q must be an integer", key)
	}
	return int(n), nil
}

// OptionalBool returns the boolean argument, or def when absent or null.
func OptionalBool(args value.Object, key string, def bool) (bool, error) {
	v, ok := args[key]
	if !ok || v.IsNull() {
		return def, nil
	}
	b, ok := v.AsBool()
	if !ok {
		return false, InvalidArgs("parameter %q must be a boolean", key)
	}
	return b, nil
}

// OptionalStrings returns a string-array argument. A single string is
// accepted as a one-element list since small models often emit one.
func OptionalStrings(args value.Object, key string) ([]string, error) {
	v, ok := args[key]
	if !ok || v.IsNull() {
		return nil, nil
	}
	if s, ok := v.AsString(); ok {
		return []string{s}, nil
	}
	arr, ok := v.AsArray()
	if !ok {
		return nil, InvalidArgs("parameter %q must be a list of strings", key)
	}
	out := make([]string, 0, len(arr))
	for i, e := range arr {
		s, ok := e.AsString()
		if !ok {
			return nil, InvalidArgs("parameter %q[%d] must be a string", key, i)
		}
		out = append(out, s)
	}
	return out, nil
}
