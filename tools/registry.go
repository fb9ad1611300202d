// Package tools holds the tool registry, the unit loader that fills it, the
// dispatcher that invokes tools by name, and the MCP binding that exposes
// them to clients.
package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	apierrors "github.com/olgasafonova/cbeta-mcp-server/internal/errors"
	"github.com/olgasafonova/cbeta-mcp-server/internal/schema"
	"github.com/olgasafonova/cbeta-mcp-server/metrics"
)

// ErrSealed is returned by Register once the registry serves requests.
var ErrSealed = errors.New("registry is sealed")

// Handler runs a tool against validated input. It may return any
// JSON-serializable value, an envelope.Envelope to report a usage error
// itself, or an error.
type Handler func(ctx context.Context, in schema.Input) (any, error)

// Descriptor defines a tool's metadata and behavior.
type Descriptor struct {
	// Name is the MCP tool name (e.g., "cbeta_fulltext_search")
	Name string

	// Title is the human-readable tool title for annotations
	Title string

	// Description is the tool description shown to LLMs
	Description string

	// Unit is the identifier of the unit that contributed the tool
	Unit string

	// Schema declares the accepted arguments
	Schema *schema.Schema

	// Handler performs the call
	Handler Handler

	// ReadOnly indicates the tool doesn't modify remote state
	ReadOnly bool

	// Destructive indicates the tool can delete or overwrite data
	Destructive bool

	// Idempotent indicates repeated calls have the same effect
	Idempotent bool

	// OpenWorld indicates the tool accesses external resources
	OpenWorld bool
}

// Summary returns the first line of the description.
func (d Descriptor) Summary() string {
	line, _, _ := strings.Cut(strings.TrimSpace(d.Description), "\n")
	return strings.TrimSpace(line)
}

func (d Descriptor) validate() error {
	switch {
	case strings.TrimSpace(d.Name) == "":
		return errors.New("tool name is required")
	case d.Schema == nil:
		return fmt.Errorf("tool %q has no input schema", d.Name)
	case d.Handler == nil:
		return fmt.Errorf("tool %q has no handler", d.Name)
	}
	return nil
}

// Registry maps tool names to descriptors. It is filled once by the loader
// and sealed before serving; lookups after Seal take no lock.
type Registry struct {
	logger *slog.Logger

	mu     sync.Mutex
	sealed bool
	byName map[string]int
	tools  []Descriptor
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger: logger,
		byName: make(map[string]int),
	}
}

// Register adds d. A name that is already taken keeps its first descriptor;
// the duplicate is logged and reported as *DuplicateToolError.
func (r *Registry) Register(d Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return ErrSealed
	}
	if err := d.validate(); err != nil {
		metrics.RecordRegistration("invalid")
		return err
	}

	if i, exists := r.byName[d.Name]; exists {
		metrics.RecordRegistration("duplicate")
		r.logger.Warn("Duplicate tool registration",
			"tool", d.Name,
			"unit", d.Unit,
			"registered_by", r.tools[i].Unit)
		return &apierrors.DuplicateToolError{Name: d.Name, Unit: d.Unit}
	}

	r.byName[d.Name] = len(r.tools)
	r.tools = append(r.tools, d)
	metrics.RecordRegistration("registered")
	metrics.RegisteredTools.Set(float64(len(r.tools)))
	return nil
}

// Seal stops further registration.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Sealed reports whether Seal has been called.
func (r *Registry) Sealed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sealed
}

// Lookup finds a descriptor by name.
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	i, ok := r.byName[name]
	if !ok {
		return Descriptor{}, false
	}
	return r.tools[i], true
}

// List returns every descriptor in registration order.
func (r *Registry) List() []Descriptor {
	out := make([]Descriptor, len(r.tools))
	copy(out, r.tools)
	return out
}

// Names returns registered tool names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.tools))
	for i, d := range r.tools {
		names[i] = d.Name
	}
	return names
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.tools)
}

// ptr is a helper to create a pointer to a value.
func ptr[T any](v T) *T {
	return &v
}
