// Package schema declares tool input shapes and validates raw argument
// payloads against them.
//
// A Schema is an ordered list of fields. Each field has a primitive kind
// (string or integer) and is either required or optional, optionally with a
// default. Validation produces an Input holding typed values; unknown fields
// are ignored and no cross-field rules are applied.
package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	apierrors "github.com/olgasafonova/cbeta-mcp-server/internal/errors"
)

// Kind is the primitive type of a field.
type Kind int

const (
	KindString Kind = iota
	KindInteger
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInteger:
		return "integer"
	default:
		return "unknown"
	}
}

// Field describes one named input value.
type Field struct {
	Name        string
	Kind        Kind
	Required    bool
	Default     any // nil means no default
	Description string
}

// String declares an optional string field.
func String(name string) Field {
	return Field{Name: name, Kind: KindString}
}

// Integer declares an optional integer field.
func Integer(name string) Field {
	return Field{Name: name, Kind: KindInteger}
}

// Require marks the field as required.
func (f Field) Require() Field {
	f.Required = true
	return f
}

// WithDefault sets the value used when the field is absent.
func (f Field) WithDefault(v any) Field {
	f.Default = v
	return f
}

// Describe attaches a human-readable description.
func (f Field) Describe(d string) Field {
	f.Description = d
	return f
}

// Schema is an ordered, immutable set of fields.
type Schema struct {
	fields []Field
	index  map[string]int
}

// New builds a schema. It rejects empty or repeated field names, required
// fields carrying defaults, and defaults that do not match the field kind.
func New(fields ...Field) (*Schema, error) {
	s := &Schema{
		fields: make([]Field, 0, len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	for _, f := range fields {
		if strings.TrimSpace(f.Name) == "" {
			return nil, fmt.Errorf("schema: field name is required")
		}
		if _, dup := s.index[f.Name]; dup {
			return nil, fmt.Errorf("schema: field %q declared twice", f.Name)
		}
		if f.Default != nil {
			if f.Required {
				return nil, fmt.Errorf("schema: required field %q cannot have a default", f.Name)
			}
			v, err := coerce(f.Kind, f.Default)
			if err != nil {
				return nil, fmt.Errorf("schema: default for %q: %w", f.Name, err)
			}
			f.Default = v
		}
		s.index[f.Name] = len(s.fields)
		s.fields = append(s.fields, f)
	}
	return s, nil
}

// MustNew is like New but panics on an invalid declaration.
// Intended for package-level tool tables.
func MustNew(fields ...Field) *Schema {
	s, err := New(fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// Fields returns the declared fields in order.
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Field looks up a declared field by name.
func (s *Schema) Field(name string) (Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// Validate checks raw against the schema and returns the typed input.
// The first offending field, in declaration order, is reported.
func (s *Schema) Validate(raw map[string]any) (Input, error) {
	in := Input{values: make(map[string]any, len(s.fields))}
	for _, f := range s.fields {
		v, present := raw[f.Name]
		if !present || v == nil {
			if f.Required {
				return Input{}, apierrors.NewMissingFieldError(f.Name)
			}
			if f.Default != nil {
				in.set(f.Name, f.Default)
			}
			continue
		}
		typed, err := coerce(f.Kind, v)
		if err != nil {
			return Input{}, apierrors.NewInvalidFieldError(f.Name, err.Error())
		}
		in.set(f.Name, typed)
	}
	return in, nil
}

// JSONSchema renders the schema as a JSON Schema object for tool discovery.
func (s *Schema) JSONSchema() *jsonschema.Schema {
	js := &jsonschema.Schema{
		Type:       "object",
		Properties: make(map[string]*jsonschema.Schema, len(s.fields)),
	}
	for _, f := range s.fields {
		prop := &jsonschema.Schema{
			Type:        f.Kind.String(),
			Description: f.Description,
		}
		if f.Default != nil {
			if data, err := json.Marshal(f.Default); err == nil {
				prop.Default = data
			}
		}
		js.Properties[f.Name] = prop
		if f.Required {
			js.Required = append(js.Required, f.Name)
		}
	}
	return js
}

// coerce converts v to the Go representation of kind: string or int64.
// Integers accept integral JSON numbers and decimal strings.
func coerce(kind Kind, v any) (any, error) {
	switch kind {
	case KindString:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %s", jsonTypeName(v))
		}
		return s, nil

	case KindInteger:
		switch n := v.(type) {
		case int:
			return int64(n), nil
		case int32:
			return int64(n), nil
		case int64:
			return n, nil
		case float64:
			i, ok := integral(n)
			if !ok {
				return nil, fmt.Errorf("expected integer, got non-integral number")
			}
			return i, nil
		case json.Number:
			if i, err := n.Int64(); err == nil {
				return i, nil
			}
			// 5.0 and 1e2 are integral even though Int64 rejects their form
			f, err := n.Float64()
			if err != nil {
				return nil, fmt.Errorf("expected integer, got %q", n.String())
			}
			i, ok := integral(f)
			if !ok {
				return nil, fmt.Errorf("expected integer, got %q", n.String())
			}
			return i, nil
		case string:
			i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("expected integer, got %q", n)
			}
			return i, nil
		default:
			return nil, fmt.Errorf("expected integer, got %s", jsonTypeName(v))
		}
	}
	return nil, fmt.Errorf("unsupported kind %s", kind)
}

// integral converts f to int64 when it is a whole number in range.
// float64(math.MaxInt64) rounds up to 2^63, which int64 cannot hold.
func integral(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}

func jsonTypeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, float32, int, int32, int64, json.Number:
		return "number"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// Input is a validated argument set. Only fields that were supplied or
// defaulted are present.
type Input struct {
	values map[string]any
	order  []string
}

func (in *Input) set(name string, v any) {
	in.values[name] = v
	in.order = append(in.order, name)
}

// Has reports whether name carries a value.
func (in Input) Has(name string) bool {
	_, ok := in.values[name]
	return ok
}

// String returns a string field value.
func (in Input) String(name string) string {
	s, _ := in.values[name].(string)
	return s
}

// Int returns an integer field value.
func (in Input) Int(name string) int64 {
	n, _ := in.values[name].(int64)
	return n
}

// Map returns the present values keyed by field name.
func (in Input) Map() map[string]any {
	out := make(map[string]any, len(in.values))
	for k, v := range in.values {
		out[k] = v
	}
	return out
}

// Query encodes the present values as query parameters, verbatim. With no
// names every present field is encoded; otherwise only the named ones.
func (in Input) Query(names ...string) url.Values {
	q := url.Values{}
	keys := in.order
	if len(names) > 0 {
		keys = names
	}
	for _, name := range keys {
		v, ok := in.values[name]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case string:
			q.Set(name, t)
		case int64:
			q.Set(name, strconv.FormatInt(t, 10))
		}
	}
	return q
}

// NewInput builds an Input from already-typed values, bypassing validation.
// Keys are ordered alphabetically.
func NewInput(values map[string]any) Input {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	in := Input{values: make(map[string]any, len(values))}
	for _, k := range keys {
		v := values[k]
		if i, ok := v.(int); ok {
			v = int64(i)
		}
		in.set(k, v)
	}
	return in
}
