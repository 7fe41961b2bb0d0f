package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/benchgate/benchgate/internal/compare"
	"github.com/benchgate/benchgate/pkg/types"
)

// WriteJSON writes any report payload as indented JSON, creating parent
// directories as needed.
func WriteJSON(path string, payload any) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	data = append(data, '\n')
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// WriteMarkdown writes rendered markdown with a single trailing newline.
func WriteMarkdown(path, text string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(strings.TrimRight(text, "\n")+"\n"), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// BuildRunMarkdown renders a run artifact as a human-readable summary with
// a per-task score table.
func BuildRunMarkdown(run types.Run) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Benchmark Run: %s\n\n", run.SuiteName)
	fmt.Fprintf(&b, "- Run ID: `%s`\n", run.RunID)
	fmt.Fprintf(&b, "- Suite Version: `%s`\n", run.SuiteVersion)
	fmt.Fprintf(&b, "- Model: `%s`\n", modelLabel(run.Model))
	fmt.Fprintf(&b, "- Adapter: `%s`\n", run.Adapter)
	fmt.Fprintf(&b, "- Cases Total: `%d`\n", run.Summary.CasesTotal)
	fmt.Fprintf(&b, "- Case Failures: `%d`\n", run.Summary.CaseFailures)
	fmt.Fprintf(&b, "- Tasks With Errors: `%d`\n", run.Summary.TasksWithErrors)
	if run.Summary.WeightedScore != nil {
		fmt.Fprintf(&b, "- Weighted Score: `%.6f`\n", *run.Summary.WeightedScore)
	}

	b.WriteString("\n## Task Scores\n\n")
	b.WriteString("| Task | Metric | Direction | Score | Failures |\n")
	b.WriteString("|---|---|---|---:|---:|\n")
	for _, tr := range run.TaskResults {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %d |\n",
			cell(tr.TaskID), cell(tr.Metric), cell(tr.Direction),
			scoreCell(tr.Score), tr.CaseFailures)
	}
	return b.String()
}

// BuildCompareMarkdown renders a comparison report with the gate verdict
// and a per-task delta table.
func BuildCompareMarkdown(r compare.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Benchmark Compare: %s\n\n", r.SuiteName)
	fmt.Fprintf(&b, "- Suite Version: `%s`\n", r.SuiteVersion)
	fmt.Fprintf(&b, "- Verdict: `%s`\n", r.Verdict)
	fmt.Fprintf(&b, "- Passed: `%t`\n", r.Summary.Passed)
	fmt.Fprintf(&b, "- Tasks Total: `%d`\n", r.Summary.TasksTotal)
	fmt.Fprintf(&b, "- Regressions: `%d`\n", r.Summary.Regressions)
	fmt.Fprintf(&b, "- Uncertain: `%d`\n", r.Summary.Uncertain)
	fmt.Fprintf(&b, "- Missing: `%d`\n", r.Summary.Missing)
	fmt.Fprintf(&b, "- Min Effect Size: `%g`\n", r.Policy.MinEffectSize)
	fmt.Fprintf(&b, "- Bootstrap Resamples: `%d`\n", r.Policy.BootstrapResamples)
	fmt.Fprintf(&b, "- Confidence Level: `%g`\n", r.Policy.ConfidenceLevel)

	b.WriteString("\n## Task Deltas\n\n")
	b.WriteString("| Task | Metric | Baseline | Candidate | Delta | Tolerance | CI Low | CI High | Status |\n")
	b.WriteString("|---|---|---:|---:|---:|---:|---:|---:|---|\n")
	for _, tc := range r.Tasks {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %g | %s | %s | %s |\n",
			cell(tc.TaskID), cell(tc.Metric),
			scoreCell(tc.BaselineScore), scoreCell(tc.CandidateScore),
			deltaCell(tc.Delta), tc.Tolerance,
			scoreCell(tc.CILow), scoreCell(tc.CIHigh), tc.Status)
	}
	return b.String()
}

func modelLabel(m types.Model) string {
	if m.Version == "" {
		return m.Name
	}
	return m.Name + "@" + m.Version
}

func scoreCell(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.6f", *v)
}

func deltaCell(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%+.6f", *v)
}

// cell escapes the pipe so free-form ids cannot break the table.
func cell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
