package cbeta

import (
	"context"
	"time"

	"github.com/olgasafonova/cbeta-mcp-server/internal/schema"
	"github.com/olgasafonova/cbeta-mcp-server/tools"
)

// Unit identifiers, all beneath the "cbeta" root.
const (
	UnitCatalog = "cbeta/catalog"
	UnitSearch  = "cbeta/search"
	UnitWork    = "cbeta/work"
)

// Per-tool timeouts for the slower search endpoints.
const (
	fulltextTimeout = 20 * time.Second
	allInOneTimeout = 15 * time.Second
	kwicTimeout     = 10 * time.Second
)

// Units returns the tool units backed by client, for the loader.
func Units(client *Client) []tools.Unit {
	return []tools.Unit{
		{ID: UnitCatalog, Load: func() ([]tools.Descriptor, error) { return catalogTools(client), nil }},
		{ID: UnitSearch, Load: func() ([]tools.Descriptor, error) { return searchTools(client), nil }},
		{ID: UnitWork, Load: func() ([]tools.Descriptor, error) { return workTools(client), nil }},
	}
}

// remoteTool builds a descriptor for a read-only call to the remote service.
func remoteTool(name, title, description string, s *schema.Schema, h tools.Handler) tools.Descriptor {
	return tools.Descriptor{
		Name:        name,
		Title:       title,
		Description: description,
		Schema:      s,
		Handler:     h,
		ReadOnly:    true,
		Idempotent:  true,
		OpenWorld:   true,
	}
}

// passThrough forwards every present field as a query parameter and returns
// the decoded response unchanged.
func passThrough(c *Client, path string, timeout time.Duration) tools.Handler {
	return func(ctx context.Context, in schema.Input) (any, error) {
		return c.Get(ctx, Request{Path: path, Query: in.Query(), Timeout: timeout})
	}
}

// object returns v as a JSON object, or an empty one.
func object(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

// list returns v as a JSON array, or an empty one.
func list(v any) []any {
	if l, ok := v.([]any); ok {
		return l
	}
	return []any{}
}

// valueOr returns m[key], or fallback when the key is absent or null.
func valueOr(m map[string]any, key string, fallback any) any {
	if v, ok := m[key]; ok && v != nil {
		return v
	}
	return fallback
}

// number reads a JSON number, treating anything else as zero.
func number(v any) float64 {
	if f, ok := v.(float64); ok {
		return f
	}
	return 0
}
