package schema

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	apierrors "github.com/olgasafonova/cbeta-mcp-server/internal/errors"
)

func testSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := New(
		String("q").Require().Describe("query"),
		Integer("juan").Require(),
		Integer("rows").WithDefault(20),
		String("sort").WithDefault("f"),
		String("fields"),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s
}

func TestValidate_RequiredFields(t *testing.T) {
	s := testSchema(t)

	tests := []struct {
		name    string
		raw     map[string]any
		wantErr string
	}{
		{
			name:    "missing q",
			raw:     map[string]any{"juan": float64(1)},
			wantErr: "missing field: q",
		},
		{
			name:    "null q counts as missing",
			raw:     map[string]any{"q": nil, "juan": float64(1)},
			wantErr: "missing field: q",
		},
		{
			name:    "first missing field in declaration order",
			raw:     map[string]any{},
			wantErr: "missing field: q",
		},
		{
			name:    "missing juan",
			raw:     map[string]any{"q": "法鼓"},
			wantErr: "missing field: juan",
		},
		{
			name:    "q has wrong kind",
			raw:     map[string]any{"q": float64(3), "juan": float64(1)},
			wantErr: "invalid field: q (expected string, got number)",
		},
		{
			name:    "juan is fractional",
			raw:     map[string]any{"q": "x", "juan": 1.5},
			wantErr: "invalid field: juan (expected integer, got non-integral number)",
		},
		{
			name:    "juan is boolean",
			raw:     map[string]any{"q": "x", "juan": true},
			wantErr: "invalid field: juan (expected integer, got boolean)",
		},
		{
			name:    "juan is non-numeric string",
			raw:     map[string]any{"q": "x", "juan": "one"},
			wantErr: `invalid field: juan (expected integer, got "one")`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Validate(tt.raw)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !apierrors.IsValidation(err) {
				t.Errorf("expected ValidationError, got %T", err)
			}
			if err.Error() != tt.wantErr {
				t.Errorf("error = %q, want %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidate_DefaultsAndCoercion(t *testing.T) {
	s := testSchema(t)

	in, err := s.Validate(map[string]any{
		"q":       "四聖諦",
		"juan":    "3",
		"unknown": []any{"ignored"},
	})
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if got := in.String("q"); got != "四聖諦" {
		t.Errorf("q = %q", got)
	}
	if got := in.Int("juan"); got != 3 {
		t.Errorf("juan = %d, want 3", got)
	}
	if got := in.Int("rows"); got != 20 {
		t.Errorf("rows default = %d, want 20", got)
	}
	if got := in.String("sort"); got != "f" {
		t.Errorf("sort default = %q, want f", got)
	}
	if in.Has("fields") {
		t.Error("optional field without default should be absent")
	}
	if in.Has("unknown") {
		t.Error("unknown fields should be ignored")
	}
}

func TestValidate_IntegerForms(t *testing.T) {
	s := MustNew(Integer("n").Require())

	tests := []struct {
		name string
		raw  any
		want int64
	}{
		{name: "float64", raw: float64(42), want: 42},
		{name: "negative float64", raw: float64(-1), want: -1},
		{name: "int", raw: 7, want: 7},
		{name: "json.Number", raw: json.Number("500"), want: 500},
		{name: "padded string", raw: " 16 ", want: 16},
		{name: "json.Number with fraction zero", raw: json.Number("5.0"), want: 5},
		{name: "json.Number exponent", raw: json.Number("1e2"), want: 100},
		{name: "json.Number negative exponent form", raw: json.Number("-2.0E1"), want: -20},
		{name: "largest exact float below 2^63", raw: float64(1 << 62), want: 1 << 62},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := s.Validate(map[string]any{"n": tt.raw})
			if err != nil {
				t.Fatalf("Validate failed: %v", err)
			}
			if got := in.Int("n"); got != tt.want {
				t.Errorf("n = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestValidate_RejectsNonIntegralAndOutOfRange(t *testing.T) {
	s := MustNew(Integer("n").Require())

	tests := []struct {
		name string
		raw  any
	}{
		{"fractional float64", 2.5},
		{"fractional json.Number", json.Number("5.5")},
		{"2^63 as float64", math.Pow(2, 63)},
		{"2^63 as json.Number", json.Number("9223372036854775808")},
		{"beyond -2^63", -math.Pow(2, 64)},
		{"infinity", math.Inf(1)},
		{"NaN", math.NaN()},
		{"huge exponent", json.Number("1e400")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Validate(map[string]any{"n": tt.raw})
			if err == nil {
				t.Fatal("expected a validation error")
			}
			if !strings.HasPrefix(err.Error(), "invalid field: n") {
				t.Errorf("error = %q", err.Error())
			}
		})
	}
}

func TestValidate_MinInt64(t *testing.T) {
	s := MustNew(Integer("n").Require())
	in, err := s.Validate(map[string]any{"n": -math.Pow(2, 63)})
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if got := in.Int("n"); got != math.MinInt64 {
		t.Errorf("n = %d, want %d", got, int64(math.MinInt64))
	}
}

func TestValidate_ExplicitNullUsesDefault(t *testing.T) {
	s := MustNew(Integer("rows").WithDefault(10))
	in, err := s.Validate(map[string]any{"rows": nil})
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if got := in.Int("rows"); got != 10 {
		t.Errorf("rows = %d, want 10", got)
	}
}

func TestNew_RejectsBadDeclarations(t *testing.T) {
	tests := []struct {
		name   string
		fields []Field
	}{
		{name: "empty name", fields: []Field{String("")}},
		{name: "duplicate", fields: []Field{String("q"), Integer("q")}},
		{name: "required with default", fields: []Field{String("q").Require().WithDefault("x")}},
		{name: "default of wrong kind", fields: []Field{Integer("rows").WithDefault("twenty")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.fields...); err == nil {
				t.Error("expected declaration error")
			}
		})
	}
}

func TestMustNew_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustNew should panic on invalid declaration")
		}
	}()
	MustNew(String("q"), String("q"))
}

func TestQuery(t *testing.T) {
	s := testSchema(t)
	in, err := s.Validate(map[string]any{"q": "a b", "juan": float64(2), "fields": "work,juan"})
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	q := in.Query()
	if got := q.Encode(); got != "fields=work%2Cjuan&juan=2&q=a+b&rows=20&sort=f" {
		t.Errorf("Query().Encode() = %q", got)
	}

	sub := in.Query("q", "fields", "missing")
	if len(sub) != 2 || sub.Get("q") != "a b" || sub.Get("fields") != "work,juan" {
		t.Errorf("Query(subset) = %v", sub)
	}
}

func TestJSONSchema(t *testing.T) {
	js := testSchema(t).JSONSchema()

	if js.Type != "object" {
		t.Errorf("Type = %q, want object", js.Type)
	}
	if len(js.Properties) != 5 {
		t.Errorf("Properties = %d, want 5", len(js.Properties))
	}
	if len(js.Required) != 2 || js.Required[0] != "q" || js.Required[1] != "juan" {
		t.Errorf("Required = %v, want [q juan]", js.Required)
	}
	if got := js.Properties["juan"].Type; got != "integer" {
		t.Errorf("juan type = %q", got)
	}
	if got := string(js.Properties["rows"].Default); got != "20" {
		t.Errorf("rows default = %s, want 20", got)
	}
	if got := js.Properties["q"].Description; got != "query" {
		t.Errorf("q description = %q", got)
	}

	data, err := json.Marshal(js)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded["type"] != "object" {
		t.Errorf("marshaled type = %v", decoded["type"])
	}
}

func TestNewInput(t *testing.T) {
	in := NewInput(map[string]any{"work": "T0001", "juan": 1})
	if in.String("work") != "T0001" || in.Int("juan") != 1 {
		t.Errorf("NewInput values = %v", in.Map())
	}
	if got := in.Query().Encode(); got != "juan=1&work=T0001" {
		t.Errorf("Query = %q", got)
	}
}
