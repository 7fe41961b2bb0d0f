package registry

import (
	"fmt"
	"os"
	"time"

	"github.com/benchgate/benchgate/internal/adapter"
	"github.com/benchgate/benchgate/internal/artifact"
	"github.com/benchgate/benchgate/internal/compare"
	"github.com/benchgate/benchgate/internal/runner"
	"github.com/benchgate/benchgate/pkg/types"
)

// PromoteOptions tune a single promotion.
type PromoteOptions struct {
	Notes string
	// AllowRegression records the candidate even when the gate blocks it.
	// The blocking report is still attached to the record.
	AllowRegression bool
}

const lockStaleAfter = 30 * time.Second

// Promote installs candidate as the live baseline named baselineName for the
// suite, after gating it against the currently promoted run. The registry
// file at path is read and rewritten under a sidecar lock; a blocked
// promotion leaves the file byte-identical.
//
// A first promotion has no stored run to gate against. It is instead
// compared against a golden-adapter run of the suite as a self-consistency
// probe; that outcome is recorded on the record but never blocks.
func Promote(path string, s types.Suite, baselineName string, candidate types.Run, policy compare.Policy, opts PromoteOptions) (*Record, error) {
	if baselineName == "" {
		return nil, fmt.Errorf("baseline name must not be empty")
	}
	if err := artifact.Validate(candidate); err != nil {
		return nil, fmt.Errorf("candidate run: %w", err)
	}
	if err := artifact.AlignWithSuite(candidate, s); err != nil {
		return nil, fmt.Errorf("candidate run: %w", err)
	}

	unlock, err := acquireLock(path + ".lock")
	if err != nil {
		return nil, err
	}
	defer unlock()

	reg, err := Load(path)
	if err != nil {
		return nil, err
	}

	record := &Record{
		SuiteName:    s.Name,
		SuiteVersion: s.Version,
		BaselineName: baselineName,
		Run:          candidate.Clone(),
		PromotedAt:   time.Now().UTC().Format(time.RFC3339),
		Notes:        opts.Notes,
	}

	current, err := reg.Resolve(s.Name, baselineName)
	switch err.(type) {
	case nil:
		report, cmpErr := compare.Run(s, current.Run, candidate, policy)
		if cmpErr != nil {
			return nil, cmpErr
		}
		record.CompareVerdict = report.Verdict
		record.CompareSummary = &report.Summary
		if !report.Summary.Passed && !opts.AllowRegression {
			return nil, &RegressionBlockedError{
				SuiteName:    s.Name,
				BaselineName: baselineName,
				Report:       report,
			}
		}
	case *NotFoundError:
		// Self-consistency probe on first promotion: informative only.
		golden := runner.Run(s, &adapter.Golden{}, runner.Options{Model: candidate.Model})
		if report, cmpErr := compare.Run(s, golden, candidate, policy); cmpErr == nil {
			record.CompareVerdict = report.Verdict
			record.CompareSummary = &report.Summary
		}
	default:
		return nil, err
	}

	entry := reg.entry(s.Name, baselineName)
	entry.History = append(entry.History, *record)
	entry.Current = record

	if err := Save(path, reg); err != nil {
		return nil, err
	}
	return record, nil
}

// acquireLock creates the sidecar lock file exclusively. A lock older than
// lockStaleAfter is treated as abandoned and broken.
func acquireLock(lockPath string) (func(), error) {
	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintf(f, "pid=%d\n", os.Getpid())
			f.Close()
			return func() { os.Remove(lockPath) }, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("acquire registry lock: %w", err)
		}
		info, statErr := os.Stat(lockPath)
		if statErr != nil {
			// Holder released between open and stat; retry.
			continue
		}
		if time.Since(info.ModTime()) > lockStaleAfter {
			os.Remove(lockPath)
			continue
		}
		return nil, fmt.Errorf("registry is locked by another promotion (%s)", lockPath)
	}
	return nil, fmt.Errorf("registry is locked by another promotion (%s)", lockPath)
}
