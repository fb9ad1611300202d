package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/olgasafonova/cbeta-mcp-server/internal/envelope"
	"github.com/olgasafonova/cbeta-mcp-server/internal/schema"
)

func newTestDispatcher(t *testing.T, descs ...Descriptor) *Dispatcher {
	t.Helper()
	reg := NewRegistry(discardLogger())
	for _, d := range descs {
		if err := reg.Register(d); err != nil {
			t.Fatalf("Register %s: %v", d.Name, err)
		}
	}
	return NewDispatcher(reg, discardLogger())
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	return string(data)
}

func TestDispatcher_EchoScenario(t *testing.T) {
	d := newTestDispatcher(t, echoDescriptor("test"))
	ctx := context.Background()

	tests := []struct {
		name string
		tool string
		args map[string]any
		want string
	}{
		{
			name: "valid call",
			tool: "echo",
			args: map[string]any{"q": "x"},
			want: `{"status":"success","result":{"q":"x"}}`,
		},
		{
			name: "missing required field",
			tool: "echo",
			args: map[string]any{},
			want: `{"status":"error","message":"missing field: q"}`,
		},
		{
			name: "unknown tool",
			tool: "nope",
			args: map[string]any{"q": "x"},
			want: `{"status":"error","message":"unknown tool"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := d.Invoke(ctx, tt.tool, tt.args)
			if got := mustJSON(t, env); got != tt.want {
				t.Errorf("Invoke = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDispatcher_ValidationPrecedesExecution(t *testing.T) {
	calls := 0
	desc := Descriptor{
		Name:   "counted",
		Schema: schema.MustNew(schema.String("work").Require(), schema.Integer("juan").Require()),
		Handler: func(ctx context.Context, in schema.Input) (any, error) {
			calls++
			return nil, nil
		},
	}
	d := newTestDispatcher(t, desc)

	bad := []map[string]any{
		{},
		{"work": "T0001"},
		{"work": "T0001", "juan": "first"},
		{"work": 1, "juan": 1},
	}
	for _, args := range bad {
		env := d.Invoke(context.Background(), "counted", args)
		if !env.IsError() {
			t.Errorf("args %v should fail validation", args)
		}
	}
	if calls != 0 {
		t.Errorf("handler ran %d times on invalid input", calls)
	}

	env := d.Invoke(context.Background(), "counted", map[string]any{"work": "T0001", "juan": float64(1)})
	if env.IsError() {
		t.Errorf("valid call failed: %s", env.Message)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDispatcher_HandlerOutcomes(t *testing.T) {
	tests := []struct {
		name    string
		handler Handler
		want    string
	}{
		{
			name: "plain value is wrapped",
			handler: func(ctx context.Context, in schema.Input) (any, error) {
				return []int{1, 2}, nil
			},
			want: `{"status":"success","result":[1,2]}`,
		},
		{
			name: "nil value is a success with null result",
			handler: func(ctx context.Context, in schema.Input) (any, error) {
				return nil, nil
			},
			want: `{"status":"success","result":null}`,
		},
		{
			name: "returned error envelope passes through",
			handler: func(ctx context.Context, in schema.Input) (any, error) {
				return envelope.Error("please supply creator_id"), nil
			},
			want: `{"status":"error","message":"please supply creator_id"}`,
		},
		{
			name: "returned success envelope is not double wrapped",
			handler: func(ctx context.Context, in schema.Input) (any, error) {
				return envelope.Success("done"), nil
			},
			want: `{"status":"success","result":"done"}`,
		},
		{
			name: "envelope pointer passes through",
			handler: func(ctx context.Context, in schema.Input) (any, error) {
				e := envelope.Error("by pointer")
				return &e, nil
			},
			want: `{"status":"error","message":"by pointer"}`,
		},
		{
			name: "zero envelope is wrapped, not passed through",
			handler: func(ctx context.Context, in schema.Input) (any, error) {
				return envelope.Envelope{}, nil
			},
			want: `{"status":"success","result":{"status":"success","result":null}}`,
		},
		{
			name: "error names the tool",
			handler: func(ctx context.Context, in schema.Input) (any, error) {
				return nil, errors.New("remote service returned status 502 for /works")
			},
			want: `{"status":"error","message":"shape failed: remote service returned status 502 for /works"}`,
		},
		{
			name: "panic is contained",
			handler: func(ctx context.Context, in schema.Input) (any, error) {
				panic("index out of range")
			},
			want: `{"status":"error","message":"shape failed: panic: index out of range"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDispatcher(t, Descriptor{
				Name:    "shape",
				Schema:  schema.MustNew(),
				Handler: tt.handler,
			})
			env := d.Invoke(context.Background(), "shape", nil)
			if got := mustJSON(t, env); got != tt.want {
				t.Errorf("Invoke = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDispatcher_LogsExecution(t *testing.T) {
	var buf bytes.Buffer
	reg := NewRegistry(discardLogger())
	if err := reg.Register(echoDescriptor("test/unit")); err != nil {
		t.Fatal(err)
	}
	d := NewDispatcher(reg, bufferLogger(&buf))

	d.Invoke(context.Background(), "echo", map[string]any{"q": "x"})

	logged := buf.String()
	for _, want := range []string{"Tool executed", "tool=echo", "unit=test/unit", "status=success", "invocation_id="} {
		if !strings.Contains(logged, want) {
			t.Errorf("log missing %q: %s", want, logged)
		}
	}
}

func TestDispatcher_SealsRegistry(t *testing.T) {
	reg := NewRegistry(discardLogger())
	d := NewDispatcher(reg, discardLogger())

	if !reg.Sealed() {
		t.Error("NewDispatcher should seal the registry")
	}
	if d.Registry() != reg {
		t.Error("Registry should return the wrapped registry")
	}
}

func TestDispatcher_InvokeJSON(t *testing.T) {
	d := newTestDispatcher(t, echoDescriptor("test"))
	ctx := context.Background()

	tests := []struct {
		name string
		tool string
		raw  string
		want string
	}{
		{"object", "echo", `{"q":"x"}`, `{"status":"success","result":{"q":"x"}}`},
		{"empty input is an empty object", "echo", ``, `{"status":"error","message":"missing field: q"}`},
		{"null input is an empty object", "echo", `null`, `{"status":"error","message":"missing field: q"}`},
		{"unknown tool wins over bad json", "nope", `{`, `{"status":"error","message":"unknown tool"}`},
		{"array", "echo", `["x"]`, `{"status":"error","message":"invalid arguments: expected a JSON object, got array"}`},
		{"string", "echo", `"x"`, `{"status":"error","message":"invalid arguments: expected a JSON object, got string"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := d.InvokeJSON(ctx, tt.tool, json.RawMessage(tt.raw))
			if got := mustJSON(t, env); got != tt.want {
				t.Errorf("InvokeJSON = %s, want %s", got, tt.want)
			}
		})
	}

	env := d.InvokeJSON(ctx, "echo", json.RawMessage(`{"q":`))
	if !env.IsError() || !strings.HasPrefix(env.Message, "invalid arguments: ") {
		t.Errorf("malformed JSON = %+v", env)
	}
}

func TestDispatcher_InvokeJSONIntegralNumbers(t *testing.T) {
	d := newTestDispatcher(t, Descriptor{
		Name:   "juan_echo",
		Schema: schema.MustNew(schema.Integer("juan").Require()),
		Handler: func(ctx context.Context, in schema.Input) (any, error) {
			return in.Int("juan"), nil
		},
	})
	ctx := context.Background()

	tests := []struct {
		raw  string
		want string
	}{
		{`{"juan":5}`, `{"status":"success","result":5}`},
		{`{"juan":5.0}`, `{"status":"success","result":5}`},
		{`{"juan":1e2}`, `{"status":"success","result":100}`},
		{`{"juan":"7"}`, `{"status":"success","result":7}`},
		{`{"juan":5.5}`, `{"status":"error","message":"invalid field: juan (expected integer, got \"5.5\")"}`},
		{`{"juan":9223372036854775808}`, `{"status":"error","message":"invalid field: juan (expected integer, got \"9223372036854775808\")"}`},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got := mustJSON(t, d.InvokeJSON(ctx, "juan_echo", json.RawMessage(tt.raw)))
			if got != tt.want {
				t.Errorf("InvokeJSON(%s) = %s, want %s", tt.raw, got, tt.want)
			}
		})
	}

	// Both entry points agree on an integral float
	viaMap := mustJSON(t, d.Invoke(ctx, "juan_echo", map[string]any{"juan": float64(5)}))
	viaJSON := mustJSON(t, d.InvokeJSON(ctx, "juan_echo", json.RawMessage(`{"juan":5.0}`)))
	if viaMap != viaJSON {
		t.Errorf("Invoke = %s, InvokeJSON = %s", viaMap, viaJSON)
	}
}

func TestDecodeArguments(t *testing.T) {
	args, err := DecodeArguments([]byte(` {"juan": 12345678901234567, "q": "x"} `))
	if err != nil {
		t.Fatalf("DecodeArguments failed: %v", err)
	}
	if n, ok := args["juan"].(json.Number); !ok || n.String() != "12345678901234567" {
		t.Errorf("juan = %#v, want exact json.Number", args["juan"])
	}

	if _, err := DecodeArguments([]byte(`{"q":"x"} trailing`)); err == nil {
		t.Error("trailing data should be rejected")
	}
}

func TestDispatcher_ConcurrentInvoke(t *testing.T) {
	d := newTestDispatcher(t, echoDescriptor("test"))

	done := make(chan envelope.Envelope)
	for i := 0; i < 16; i++ {
		go func() {
			done <- d.Invoke(context.Background(), "echo", map[string]any{"q": "x"})
		}()
	}
	for i := 0; i < 16; i++ {
		if env := <-done; env.IsError() {
			t.Errorf("concurrent invoke failed: %s", env.Message)
		}
	}
}
