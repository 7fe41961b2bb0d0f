package compare

import (
	"fmt"

	"github.com/benchgate/benchgate/internal/metric"
	"github.com/benchgate/benchgate/pkg/types"
)

// Task statuses. Missing tasks are surfaced but never fold into the
// run-level verdict.
const (
	StatusPass       = "pass"
	StatusRegression = "regression"
	StatusUncertain  = "uncertain"
	StatusMissing    = "missing"
)

// Run-level verdicts.
const (
	VerdictPass       = "pass"
	VerdictRegression = "regression"
	VerdictUncertain  = "uncertain"
)

// Policy configures the statistical gate.
type Policy struct {
	MinEffectSize      float64 `json:"min_effect_size"`
	BootstrapResamples int     `json:"bootstrap_resamples"`
	ConfidenceLevel    float64 `json:"confidence_level"`
	BootstrapSeed      int64   `json:"bootstrap_seed"`
	FailOnUncertain    bool    `json:"fail_on_uncertain"`
}

// DefaultPolicy gates on tolerance alone: no effect-size filter, no
// bootstrap.
func DefaultPolicy() Policy {
	return Policy{ConfidenceLevel: 0.95}
}

func (p Policy) Validate() error {
	if p.MinEffectSize < 0 {
		return fmt.Errorf("min_effect_size must be >= 0")
	}
	if p.BootstrapResamples < 0 {
		return fmt.Errorf("bootstrap_resamples must be >= 0")
	}
	if p.ConfidenceLevel <= 0 || p.ConfidenceLevel >= 1 {
		return fmt.Errorf("confidence_level must be between 0 and 1 exclusive")
	}
	return nil
}

// SuiteMismatchError reports runs that do not share the suite identity they
// are being compared under.
type SuiteMismatchError struct {
	Want string
	Got  string
}

func (e *SuiteMismatchError) Error() string {
	return fmt.Sprintf("suite identity mismatch: run is %s, expected %s", e.Got, e.Want)
}

// TaskComparison pairs one task's baseline and candidate scores. Delta is
// normalized so that a positive delta always means the candidate is worse,
// whatever the metric's natural direction.
type TaskComparison struct {
	TaskID         string   `json:"task_id"`
	Metric         string   `json:"metric"`
	Direction      string   `json:"direction"`
	BaselineScore  *float64 `json:"baseline_score"`
	CandidateScore *float64 `json:"candidate_score"`
	Delta          *float64 `json:"delta"`
	EffectSize     *float64 `json:"effect_size"`
	Tolerance      float64  `json:"tolerance"`
	CILow          *float64 `json:"ci_low"`
	CIHigh         *float64 `json:"ci_high"`
	PRegression    *float64 `json:"p_regression"`
	PairedCases    int      `json:"paired_cases"`
	Status         string   `json:"status"`
	Message        string   `json:"message"`
}

type Summary struct {
	TasksTotal  int  `json:"tasks_total"`
	Regressions int  `json:"regressions"`
	Uncertain   int  `json:"uncertain"`
	Missing     int  `json:"missing"`
	Passed      bool `json:"passed"`
}

// Report is the full comparison output: enough structured detail to render
// a human-readable report without re-running anything.
type Report struct {
	SuiteName    string           `json:"suite_name"`
	SuiteVersion string           `json:"suite_version"`
	Verdict      string           `json:"verdict"`
	Summary      Summary          `json:"summary"`
	Policy       Policy           `json:"policy"`
	Tasks        []TaskComparison `json:"task_comparisons"`
}

// Run compares a candidate run against a baseline run under the suite's
// tolerances and the gate policy.
func Run(s types.Suite, baseline, candidate types.Run, policy Policy) (Report, error) {
	if err := policy.Validate(); err != nil {
		return Report{}, err
	}
	want := identity(s.Name, s.Version)
	if got := identity(baseline.SuiteName, baseline.SuiteVersion); got != want {
		return Report{}, &SuiteMismatchError{Want: want, Got: got}
	}
	if got := identity(candidate.SuiteName, candidate.SuiteVersion); got != want {
		return Report{}, &SuiteMismatchError{Want: want, Got: got}
	}

	report := Report{
		SuiteName:    s.Name,
		SuiteVersion: s.Version,
		Policy:       policy,
		Tasks:        make([]TaskComparison, 0, len(s.Tasks)),
	}

	for taskIndex := range s.Tasks {
		task := &s.Tasks[taskIndex]
		tc := compareTask(task, taskIndex, baseline.TaskResultByID(task.ID), candidate.TaskResultByID(task.ID), policy)
		switch tc.Status {
		case StatusRegression:
			report.Summary.Regressions++
		case StatusUncertain:
			report.Summary.Uncertain++
		case StatusMissing:
			report.Summary.Missing++
		}
		report.Tasks = append(report.Tasks, tc)
	}
	report.Summary.TasksTotal = len(report.Tasks)

	// Worst task wins; missing tasks are reported but never fold in.
	switch {
	case report.Summary.Regressions > 0:
		report.Verdict = VerdictRegression
	case report.Summary.Uncertain > 0:
		report.Verdict = VerdictUncertain
	default:
		report.Verdict = VerdictPass
	}
	report.Summary.Passed = report.Verdict == VerdictPass ||
		(report.Verdict == VerdictUncertain && !policy.FailOnUncertain)

	return report, nil
}

func compareTask(task *types.Task, taskIndex int, baseline, candidate *types.TaskResult, policy Policy) TaskComparison {
	direction, _ := metric.Direction(task.Metric)
	tc := TaskComparison{
		TaskID:    task.ID,
		Metric:    task.Metric,
		Direction: direction,
		Tolerance: task.RegressionTolerance,
	}

	if baseline == nil || candidate == nil {
		tc.Status = StatusMissing
		switch {
		case baseline == nil && candidate == nil:
			tc.Message = "task absent from both runs"
		case baseline == nil:
			tc.CandidateScore = candidate.Score
			tc.Message = "task missing in baseline run"
		default:
			tc.BaselineScore = baseline.Score
			tc.Message = "task missing in candidate run"
		}
		return tc
	}

	tc.BaselineScore = baseline.Score
	tc.CandidateScore = candidate.Score

	// An undefined score is not 0.0: a side that produced no succeeding
	// cases cannot be shown non-regressed.
	if baseline.Score == nil || candidate.Score == nil {
		tc.Status = StatusRegression
		tc.Message = "undefined score in one of the runs (no succeeding cases)"
		return tc
	}

	delta := normalizedDelta(direction, *baseline.Score, *candidate.Score)
	tc.Delta = &delta
	effect := delta / scaleReference(*baseline.Score, task.RegressionTolerance)
	tc.EffectSize = &effect

	classify(&tc, task, taskIndex, baseline, candidate, policy)
	return tc
}

// normalizedDelta flips the raw score difference so that positive always
// means worse. This is the sign contract every downstream consumer assumes.
func normalizedDelta(direction string, baselineScore, candidateScore float64) float64 {
	if direction == types.DirectionLower {
		return candidateScore - baselineScore
	}
	return baselineScore - candidateScore
}

// scaleReference is the denominator for effect-size normalization:
// the baseline score magnitude, or the task tolerance when the baseline is
// exactly zero, or 1.0 when both are zero. Never zero.
func scaleReference(baselineScore, tolerance float64) float64 {
	if baselineScore != 0 {
		if baselineScore < 0 {
			return -baselineScore
		}
		return baselineScore
	}
	if tolerance > 0 {
		return tolerance
	}
	return 1.0
}

func identity(name, version string) string {
	return name + "@" + version
}
