package tools

import (
	"github.com/crystaldolphin/agentbridge/internal/value"
)

// ParamType is a JSON-Schema primitive type name.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeBool    ParamType = "boolean"
	TypeNumber  ParamType = "number"
	TypeInteger ParamType = "integer"
	TypeArray   ParamType = "array"
	TypeObject  ParamType = "object"
)

// Param declares one tool argument.
type Param struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
	Items       ParamType // element type when Type is TypeArray
	Enum        []string
}

// Schema assembles tool parameters without hand-written schema literals.
// It performs no argument validation; tools check their own arguments.
//
//	tools.NewSchema().
//		String("query", "Text to search for", true).
//		Integer("limit", "Maximum results", false)
type Schema struct {
	params []Param
}

func NewSchema() *Schema {
	return &Schema{}
}

func (s *Schema) add(p Param) *Schema {
	s.params = append(s.params, p)
	return s
}

func (s *Schema) String(name, description string, required bool) *Schema {
	return s.add(Param{Name: name, Type: TypeString, Description: description, Required: required})
}

func (s *Schema) Bool(name, description string, required bool) *Schema {
	return s.add(Param{Name: name, Type: TypeBool, Description: description, Required: required})
}

func (s *Schema) Number(name, description string, required bool) *Schema {
	return s.add(Param{Name: name, Type: TypeNumber, Description: description, Required: required})
}

func (s *Schema) Integer(name, description string, required bool) *Schema {
	return s.add(Param{Name: name, Type: TypeInteger, Description: description, Required: required})
}

// Strings declares an array-of-strings parameter.
func (s *Schema) Strings(name, description string, required bool) *Schema {
	return s.add(Param{Name: name, Type: TypeArray, Items: TypeString, Description: description, Required: required})
}

// Enum declares a string parameter restricted to values.
func (s *Schema) Enum(name, description string, required bool, values ...string) *Schema {
	return s.add(Param{Name: name, Type: TypeString, Description: description, Required: required, Enum: values})
}

// Params returns the declared parameters in declaration order.
func (s *Schema) Params() []Param {
	return s.params
}

// Build renders the declared parameters as {type, properties, required}.
func (s *Schema) Build() value.Object {
	return SchemaOf(s.params)
}

// SchemaOf renders params as a JSON-Schema-like object. required is always
// present, possibly empty.
func SchemaOf(params []Param) value.Object {
	props := make(value.Object, len(params))
	required := make([]string, 0, len(params))
	for _, p := range params {
		prop := value.Object{"type": value.String(string(p.Type))}
		if p.Description != "" {
			prop["description"] = value.String(p.Description)
		}
		if p.Type == TypeArray && p.Items != "" {
			prop["items"] = value.ObjectOf(value.Object{"type": value.String(string(p.Items))})
		}
		if len(p.Enum) > 0 {
			prop["enum"] = value.Strings(p.Enum)
		}
		props[p.Name] = value.ObjectOf(prop)
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return value.Object{
		"type":       value.String("object"),
		"properties": value.ObjectOf(props),
		"required":   value.Strings(required),
	}
}

// ParamsFromSchema recovers parameter declarations from a JSON-Schema-like
// object, in sorted property order. Unknown keywords are ignored.
func ParamsFromSchema(schema value.Object) []Param {
	props, ok := schema.Object("properties")
	if !ok {
		return nil
	}
	required := make(map[string]bool)
	if req, ok := schema.Array("required"); ok {
		for _, r := range req {
			if s, ok := r.AsString(); ok {
				required[s] = true
			}
		}
	}

	params := make([]Param, 0, len(props))
	for _, name := range props.Keys() {
		p := Param{Name: name, Type: TypeString, Required: required[name]}
		if prop, ok := props.Object(name); ok {
			if t, ok := prop.String("type"); ok {
				p.Type = ParamType(t)
			}
			p.Description = prop.StringOr("description", "")
			if items, ok := prop.Object("items"); ok {
				p.Items = ParamType(items.StringOr("type", ""))
			}
			if enum, ok := prop.Array("enum"); ok {
				for _, e := range enum {
					if s, ok := e.AsString(); ok {
						p.Enum = append(p.Enum, s)
					}
				}
			}
		}
		params = append(params, p)
	}
	return params
}
