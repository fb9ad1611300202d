package tools

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func staticUnit(id string, names ...string) Unit {
	return Unit{
		ID: id,
		Load: func() ([]Descriptor, error) {
			out := make([]Descriptor, 0, len(names))
			for _, n := range names {
				out = append(out, namedDescriptor(n))
			}
			return out, nil
		},
	}
}

func testUnits() []Unit {
	return []Unit{
		staticUnit("cbeta/work", "work_info", "toc"),
		staticUnit("cbeta/catalog", "catalog"),
		staticUnit("cbeta/_private", "hidden"),
		staticUnit("other/misc", "misc"),
		staticUnit("cbetax/lookalike", "lookalike"),
		staticUnit("cbeta", "root_tool"),
	}
}

func TestLoader_SelectsByRoot(t *testing.T) {
	reg := NewRegistry(discardLogger())
	report := NewLoader(discardLogger()).Load(reg, testUnits(), Selection{Root: "cbeta"})

	want := []string{"root_tool", "catalog", "work_info", "toc"}
	if got := reg.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names = %v, want %v", got, want)
	}
	if !reflect.DeepEqual(report.Loaded, []string{"cbeta", "cbeta/catalog", "cbeta/work"}) {
		t.Errorf("Loaded = %v", report.Loaded)
	}
	if !reflect.DeepEqual(report.Skipped, []string{"cbeta/_private"}) {
		t.Errorf("Skipped = %v", report.Skipped)
	}
	if report.Registered != 4 {
		t.Errorf("Registered = %d, want 4", report.Registered)
	}
}

func TestLoader_EmptyRootSelectsAll(t *testing.T) {
	reg := NewRegistry(discardLogger())
	NewLoader(discardLogger()).Load(reg, testUnits(), Selection{})

	if reg.Len() != 6 {
		t.Errorf("Len = %d, want 6 (all but the underscore unit)", reg.Len())
	}
	if _, ok := reg.Lookup("hidden"); ok {
		t.Error("underscore unit should never load")
	}
}

func TestLoader_ExcludeAndDisable(t *testing.T) {
	reg := NewRegistry(discardLogger())
	report := NewLoader(discardLogger()).Load(reg, testUnits(), Selection{
		Root:    "cbeta/",
		Exclude: []string{"cbeta/catalog"},
		Disable: []string{"toc"},
	})

	want := []string{"root_tool", "work_info"}
	if got := reg.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names = %v, want %v", got, want)
	}
	if !reflect.DeepEqual(report.Disabled, []string{"toc"}) {
		t.Errorf("Disabled = %v", report.Disabled)
	}
}

func TestLoader_IsolatesFailures(t *testing.T) {
	var buf bytes.Buffer
	units := []Unit{
		staticUnit("t/a", "a1"),
		{ID: "t/b", Load: func() ([]Descriptor, error) { return nil, errors.New("boom") }},
		{ID: "t/c", Load: func() ([]Descriptor, error) { panic("kaboom") }},
		{ID: "t/d"},
		staticUnit("t/e", "e1"),
	}

	reg := NewRegistry(bufferLogger(&buf))
	report := NewLoader(bufferLogger(&buf)).Load(reg, units, Selection{Root: "t"})

	if got := reg.Names(); !reflect.DeepEqual(got, []string{"a1", "e1"}) {
		t.Errorf("Names = %v, want [a1 e1]", got)
	}
	if !reflect.DeepEqual(report.Failed, []string{"t/b", "t/c", "t/d"}) {
		t.Errorf("Failed = %v", report.Failed)
	}

	logged := buf.String()
	for _, want := range []string{"Tool unit failed to load", "unit=t/b", "boom", "unit=t/c", "kaboom"} {
		if !strings.Contains(logged, want) {
			t.Errorf("log missing %q", want)
		}
	}
}

func TestLoader_DuplicatesAcrossUnits(t *testing.T) {
	var buf bytes.Buffer
	units := []Unit{
		staticUnit("t/b", "shared", "b_only"),
		staticUnit("t/a", "shared"),
	}

	reg := NewRegistry(bufferLogger(&buf))
	report := NewLoader(discardLogger()).Load(reg, units, Selection{})

	d, ok := reg.Lookup("shared")
	if !ok {
		t.Fatal("shared not registered")
	}
	// t/a sorts first, so it owns the name.
	if d.Unit != "t/a" {
		t.Errorf("shared owned by %q, want t/a", d.Unit)
	}
	if !reflect.DeepEqual(report.Duplicates, []string{"shared"}) {
		t.Errorf("Duplicates = %v", report.Duplicates)
	}
	if !strings.Contains(buf.String(), "Duplicate tool registration") {
		t.Error("duplicate should be logged")
	}
}

func TestLoader_StampsLoadingUnit(t *testing.T) {
	units := []Unit{{
		ID: "cbeta/work",
		Load: func() ([]Descriptor, error) {
			d := namedDescriptor("toc")
			d.Unit = "cbeta/elsewhere"
			return []Descriptor{d}, nil
		},
	}}

	reg := NewRegistry(discardLogger())
	NewLoader(discardLogger()).Load(reg, units, Selection{})

	d, ok := reg.Lookup("toc")
	if !ok {
		t.Fatal("toc not registered")
	}
	if d.Unit != "cbeta/work" {
		t.Errorf("Unit = %q, want the loading unit cbeta/work", d.Unit)
	}
}

func TestLoader_RepeatedRunsAreIdentical(t *testing.T) {
	first := NewRegistry(discardLogger())
	NewLoader(discardLogger()).Load(first, testUnits(), Selection{Root: "cbeta"})

	units := testUnits()
	for i, j := 0, len(units)-1; i < j; i, j = i+1, j-1 {
		units[i], units[j] = units[j], units[i]
	}
	second := NewRegistry(discardLogger())
	NewLoader(discardLogger()).Load(second, units, Selection{Root: "cbeta"})

	if !reflect.DeepEqual(first.Names(), second.Names()) {
		t.Errorf("registries differ: %v vs %v", first.Names(), second.Names())
	}
}

func TestUnder(t *testing.T) {
	tests := []struct {
		id, root string
		want     bool
	}{
		{"cbeta/search", "cbeta", true},
		{"cbeta", "cbeta", true},
		{"cbetax/search", "cbeta", false},
		{"other", "cbeta", false},
		{"anything", "", true},
	}
	for _, tt := range tests {
		if got := under(tt.id, tt.root); got != tt.want {
			t.Errorf("under(%q, %q) = %v, want %v", tt.id, tt.root, got, tt.want)
		}
	}
}
