package tools

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDuplicateTool is returned by Register under RejectDuplicates.
var ErrDuplicateTool = errors.New("duplicate tool name")

// DuplicatePolicy decides what Register does with a name already present.
type DuplicatePolicy int

const (
	// RejectDuplicates refuses the later tool and reports ErrDuplicateTool.
	RejectDuplicates DuplicatePolicy = iota
	// FirstWins silently keeps the earlier tool.
	FirstWins
	// LastWins replaces the earlier tool in place, keeping its position.
	LastWins
)

func (p DuplicatePolicy) String() string {
	switch p {
	case FirstWins:
		return "first"
	case LastWins:
		return "last"
	default:
		return "reject"
	}
}

// ParseDuplicatePolicy accepts "reject", "first" or "last" (empty is reject).
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "reject":
		return RejectDuplicates, nil
	case "first", "first-wins":
		return FirstWins, nil
	case "last", "last-wins":
		return LastWins, nil
	}
	return RejectDuplicates, fmt.Errorf("unknown duplicate policy %q", s)
}

// Registry holds tools in registration order. It is not safe for concurrent
// use; the bridge engine serializes every access on its own goroutine.
type Registry struct {
	policy DuplicatePolicy
	tools  []Tool
	index  map[string]int
}

// NewRegistry returns an empty registry using policy for name conflicts.
func NewRegistry(policy DuplicatePolicy) *Registry {
	return &Registry{policy: policy, index: make(map[string]int)}
}

func (r *Registry) Policy() DuplicatePolicy { return r.policy }

// Register appends tools in order. Tools that conflict under
// RejectDuplicates, or that have no name, are skipped and reported; the rest
// are still registered.
func (r *Registry) Register(ts ...Tool) error {
	var errs []error
	for _, t := range ts {
		name := t.Name()
		if name == "" {
			errs = append(errs, fmt.Errorf("register tool: empty name"))
			continue
		}
		i, exists := r.index[name]
		switch {
		case !exists:
			r.index[name] = len(r.tools)
			r.tools = append(r.tools, t)
		case r.policy == LastWins:
			r.tools[i] = t
		case r.policy == FirstWins:
		default:
			errs = append(errs, fmt.Errorf("register %q: %w", name, ErrDuplicateTool))
		}
	}
	return errors.Join(errs...)
}

// Get returns the tool with the given name.
func (r *Registry) Get(name string) (Tool, bool) {
	i, ok := r.index[name]
	if !ok {
		return nil, false
	}
	return r.tools[i], true
}

func (r *Registry) Len() int { return len(r.tools) }

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.tools))
	for i, t := range r.tools {
		names[i] = t.Name()
	}
	return names
}

// Definitions returns every tool's wire definition in registration order.
func (r *Registry) Definitions() []Definition {
	defs := make([]Definition, len(r.tools))
	for i, t := range r.tools {
		defs[i] = DefinitionOf(t)
	}
	return defs
}
