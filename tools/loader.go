package tools

import (
	"fmt"
	"log/slog"
	"path"
	"runtime/debug"
	"sort"
	"strings"

	apierrors "github.com/olgasafonova/cbeta-mcp-server/internal/errors"
	"github.com/olgasafonova/cbeta-mcp-server/metrics"
)

// Unit is a named group of tool descriptors. IDs are slash-separated paths
// such as "cbeta/search".
type Unit struct {
	ID   string
	Load func() ([]Descriptor, error)
}

// Selection narrows which units and tools are loaded.
type Selection struct {
	// Root selects units whose ID is Root or lies beneath it. Empty selects all.
	Root string

	// Exclude lists unit IDs (and their descendants) to skip
	Exclude []string

	// Disable lists tool names that are not registered
	Disable []string
}

// LoadReport summarizes one loader run.
type LoadReport struct {
	Loaded     []string
	Failed     []string
	Skipped    []string
	Disabled   []string
	Duplicates []string
	Rejected   []string
	Registered int
}

// Loader fills a registry from a static catalog of units.
type Loader struct {
	logger *slog.Logger
}

// NewLoader creates a loader that logs to logger.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// Load registers the tools of every selected unit, in sorted unit ID order.
// A unit that fails to load, by error or panic, is logged and skipped;
// loading continues with the next unit.
func (l *Loader) Load(reg *Registry, units []Unit, sel Selection) LoadReport {
	var report LoadReport

	root := strings.Trim(sel.Root, "/")
	disabled := make(map[string]bool, len(sel.Disable))
	for _, name := range sel.Disable {
		disabled[name] = true
	}

	ordered := make([]Unit, len(units))
	copy(ordered, units)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	for _, unit := range ordered {
		if !under(unit.ID, root) {
			continue
		}
		if strings.HasPrefix(path.Base(unit.ID), "_") || excluded(unit.ID, sel.Exclude) {
			metrics.RecordUnitLoad("skipped")
			report.Skipped = append(report.Skipped, unit.ID)
			l.logger.Debug("Tool unit skipped", "unit", unit.ID)
			continue
		}

		descriptors, err := l.loadUnit(unit)
		if err != nil {
			metrics.RecordUnitLoad("failed")
			report.Failed = append(report.Failed, unit.ID)
			l.logger.Error("Tool unit failed to load", "unit", unit.ID, "error", err)
			continue
		}
		metrics.RecordUnitLoad("loaded")
		report.Loaded = append(report.Loaded, unit.ID)

		for _, d := range descriptors {
			d.Unit = unit.ID
			if disabled[d.Name] {
				metrics.RecordRegistration("disabled")
				report.Disabled = append(report.Disabled, d.Name)
				l.logger.Debug("Tool disabled by manifest", "tool", d.Name, "unit", unit.ID)
				continue
			}

			switch err := reg.Register(d); {
			case err == nil:
				report.Registered++
			case apierrors.IsDuplicate(err):
				report.Duplicates = append(report.Duplicates, d.Name)
			default:
				report.Rejected = append(report.Rejected, d.Name)
				l.logger.Error("Tool registration rejected", "tool", d.Name, "unit", unit.ID, "error", err)
			}
		}
	}

	l.logger.Info("Loaded tool units",
		"root", root,
		"loaded", len(report.Loaded),
		"failed", len(report.Failed),
		"skipped", len(report.Skipped),
		"tools", report.Registered,
		"duplicates", len(report.Duplicates))

	return report
}

func (l *Loader) loadUnit(unit Unit) (descriptors []Descriptor, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			l.logger.Error("Panic recovered",
				"unit", unit.ID,
				"panic", rec,
				"stack", string(debug.Stack()))
			descriptors = nil
			err = &apierrors.UnitLoadError{Unit: unit.ID, Err: fmt.Errorf("panic: %v", rec)}
		}
	}()

	if unit.Load == nil {
		return nil, &apierrors.UnitLoadError{Unit: unit.ID, Err: fmt.Errorf("no loader")}
	}
	descriptors, err = unit.Load()
	if err != nil {
		return nil, &apierrors.UnitLoadError{Unit: unit.ID, Err: err}
	}
	return descriptors, nil
}

// under reports whether id is root or lies beneath it.
func under(id, root string) bool {
	return root == "" || id == root || strings.HasPrefix(id, root+"/")
}

func excluded(id string, exclude []string) bool {
	for _, e := range exclude {
		e = strings.Trim(e, "/")
		if e != "" && under(id, e) {
			return true
		}
	}
	return false
}
