package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/benchgate/benchgate/internal/compare"
	"github.com/benchgate/benchgate/pkg/types"
)

// Version is the registry file format version.
const Version = 1

// Record is one promoted baseline. It embeds a full copy of the run so the
// registry stays self-contained: deleting or editing the original run
// artifact cannot alter a promoted baseline.
type Record struct {
	SuiteName      string           `json:"suite_name"`
	SuiteVersion   string           `json:"suite_version"`
	BaselineName   string           `json:"baseline_name"`
	Run            types.Run        `json:"run"`
	PromotedAt     string           `json:"promoted_at"`
	Notes          string           `json:"notes,omitempty"`
	CompareVerdict string           `json:"compare_verdict,omitempty"`
	CompareSummary *compare.Summary `json:"compare_summary,omitempty"`
}

// Entry holds the live record for one named baseline plus its append-only
// promotion history.
type Entry struct {
	Current *Record  `json:"current"`
	History []Record `json:"history"`
}

// Registry is the on-disk baseline store, keyed by suite name then baseline
// name.
type Registry struct {
	Version   int                          `json:"version"`
	Baselines map[string]map[string]*Entry `json:"baselines"`
}

// NotFoundError reports a baseline lookup miss.
type NotFoundError struct {
	SuiteName    string
	BaselineName string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no baseline named %q for suite %q", e.BaselineName, e.SuiteName)
}

// RegressionBlockedError reports a promotion refused by the gate. It carries
// the full comparison report so callers can render it without re-running.
type RegressionBlockedError struct {
	SuiteName    string
	BaselineName string
	Report       compare.Report
}

func (e *RegressionBlockedError) Error() string {
	return fmt.Sprintf("promotion of baseline %q for suite %q blocked: verdict %s (%d regression(s), %d uncertain)",
		e.BaselineName, e.SuiteName, e.Report.Verdict,
		e.Report.Summary.Regressions, e.Report.Summary.Uncertain)
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{Version: Version, Baselines: map[string]map[string]*Entry{}}
}

// Load reads the registry file at path. A missing file is an empty registry,
// not an error.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}

	var reg Registry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parse registry %s: %w", path, err)
	}
	if reg.Version != Version {
		return nil, fmt.Errorf("registry %s has unsupported version %d", path, reg.Version)
	}
	if reg.Baselines == nil {
		reg.Baselines = map[string]map[string]*Entry{}
	}
	return &reg, nil
}

// Save writes the registry atomically: the payload lands in a temp file in
// the target directory and is renamed over the destination.
func Save(path string, reg *Registry) error {
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create registry directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".registry-*.json")
	if err != nil {
		return fmt.Errorf("create registry temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write registry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close registry temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace registry: %w", err)
	}
	return nil
}

// Resolve returns the live record for the named baseline.
func (r *Registry) Resolve(suiteName, baselineName string) (*Record, error) {
	suiteEntries, ok := r.Baselines[suiteName]
	if !ok {
		return nil, &NotFoundError{SuiteName: suiteName, BaselineName: baselineName}
	}
	entry, ok := suiteEntries[baselineName]
	if !ok || entry == nil || entry.Current == nil {
		return nil, &NotFoundError{SuiteName: suiteName, BaselineName: baselineName}
	}
	return entry.Current, nil
}

// Row is one line of baseline listing output.
type Row struct {
	SuiteName    string `json:"suite_name"`
	BaselineName string `json:"baseline_name"`
	SuiteVersion string `json:"suite_version"`
	RunID        string `json:"run_id"`
	PromotedAt   string `json:"promoted_at"`
	Promotions   int    `json:"promotions"`
}

// List returns the live baselines sorted by suite then baseline name. An
// empty suiteName lists every suite.
func (r *Registry) List(suiteName string) []Row {
	rows := []Row{}
	for suite, entries := range r.Baselines {
		if suiteName != "" && suite != suiteName {
			continue
		}
		for name, entry := range entries {
			if entry == nil || entry.Current == nil {
				continue
			}
			rows = append(rows, Row{
				SuiteName:    suite,
				BaselineName: name,
				SuiteVersion: entry.Current.SuiteVersion,
				RunID:        entry.Current.Run.RunID,
				PromotedAt:   entry.Current.PromotedAt,
				Promotions:   len(entry.History),
			})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].SuiteName != rows[j].SuiteName {
			return rows[i].SuiteName < rows[j].SuiteName
		}
		return rows[i].BaselineName < rows[j].BaselineName
	})
	return rows
}

func (r *Registry) entry(suiteName, baselineName string) *Entry {
	suiteEntries, ok := r.Baselines[suiteName]
	if !ok {
		suiteEntries = map[string]*Entry{}
		r.Baselines[suiteName] = suiteEntries
	}
	entry, ok := suiteEntries[baselineName]
	if !ok {
		entry = &Entry{}
		suiteEntries[baselineName] = entry
	}
	return entry
}
