package compare

import (
	"errors"
	"math"
	"testing"

	"github.com/benchgate/benchgate/pkg/types"
)

func score(v float64) *float64 { return &v }

func maeSuite(tolerance float64) types.Suite {
	return types.Suite{
		Name:    "gate-suite",
		Version: "1.0.0",
		Tasks: []types.Task{
			{
				ID:                  "affinity",
				Metric:              "mae",
				PredictionKey:       "affinity",
				ExpectedKey:         "affinity",
				RegressionTolerance: tolerance,
				Weight:              1.0,
				Cases: []types.Case{
					{ID: "a", Expected: map[string]any{"affinity": 1.0}},
				},
			},
		},
	}
}

func runWithScores(s types.Suite, scores map[string]*float64) types.Run {
	run := types.Run{
		RunID:        "run-" + s.Name,
		SuiteName:    s.Name,
		SuiteVersion: s.Version,
		Model:        types.Model{Name: "m"},
		Adapter:      "golden",
		StartedAt:    "2026-01-01T00:00:00Z",
		FinishedAt:   "2026-01-01T00:00:01Z",
		Provenance:   map[string]any{},
	}
	for _, task := range s.Tasks {
		sc, ok := scores[task.ID]
		if !ok {
			continue
		}
		run.TaskResults = append(run.TaskResults, types.TaskResult{
			TaskID:    task.ID,
			Metric:    task.Metric,
			Direction: directionOf(task.Metric),
			Score:     sc,
		})
	}
	return run
}

func directionOf(kind string) string {
	if kind == "mae" || kind == "rmse" {
		return types.DirectionLower
	}
	return types.DirectionHigher
}

func TestRun_ToleranceBreachIsRegression(t *testing.T) {
	s := maeSuite(0.1)
	baseline := runWithScores(s, map[string]*float64{"affinity": score(1.0)})
	candidate := runWithScores(s, map[string]*float64{"affinity": score(1.2)})

	report, err := Run(s, baseline, candidate, DefaultPolicy())
	if err != nil {
		t.Fatal(err)
	}
	if report.Verdict != VerdictRegression {
		t.Fatalf("verdict = %q, want regression", report.Verdict)
	}
	tc := report.Tasks[0]
	if tc.Status != StatusRegression {
		t.Errorf("status = %q", tc.Status)
	}
	if tc.Delta == nil || math.Abs(*tc.Delta-0.2) > 1e-12 {
		t.Errorf("delta = %v, want 0.2", tc.Delta)
	}
	if report.Summary.Passed {
		t.Error("regression must not pass")
	}
}

func TestRun_WithinToleranceIsPass(t *testing.T) {
	s := maeSuite(0.1)
	baseline := runWithScores(s, map[string]*float64{"affinity": score(1.0)})
	candidate := runWithScores(s, map[string]*float64{"affinity": score(1.05)})

	report, err := Run(s, baseline, candidate, DefaultPolicy())
	if err != nil {
		t.Fatal(err)
	}
	if report.Verdict != VerdictPass || !report.Summary.Passed {
		t.Fatalf("verdict = %q passed=%t, want pass", report.Verdict, report.Summary.Passed)
	}
}

func TestRun_DeltaSignNormalization(t *testing.T) {
	// Error-like metric, candidate worse: delta > 0.
	s := maeSuite(0.0)
	baseline := runWithScores(s, map[string]*float64{"affinity": score(1.0)})
	candidate := runWithScores(s, map[string]*float64{"affinity": score(1.5)})
	report, err := Run(s, baseline, candidate, DefaultPolicy())
	if err != nil {
		t.Fatal(err)
	}
	if d := *report.Tasks[0].Delta; d <= 0 {
		t.Errorf("worse candidate on lower-is-better: delta = %v, want > 0", d)
	}

	// Score-like metric, candidate strictly better: delta < 0.
	accSuite := types.Suite{
		Name: "acc", Version: "1",
		Tasks: []types.Task{{
			ID: "t", Metric: "accuracy", PredictionKey: "v", ExpectedKey: "v",
			RegressionTolerance: 0.0, Weight: 1.0,
			Cases: []types.Case{{ID: "c", Expected: map[string]any{"v": 1}}},
		}},
	}
	baseline = runWithScores(accSuite, map[string]*float64{"t": score(0.8)})
	candidate = runWithScores(accSuite, map[string]*float64{"t": score(0.9)})
	report, err = Run(accSuite, baseline, candidate, DefaultPolicy())
	if err != nil {
		t.Fatal(err)
	}
	if d := *report.Tasks[0].Delta; d >= 0 {
		t.Errorf("better candidate on higher-is-better: delta = %v, want < 0", d)
	}
	if report.Verdict != VerdictPass {
		t.Errorf("improvement must pass, got %q", report.Verdict)
	}
}

func TestRun_MinEffectSizeInfinityForcesPass(t *testing.T) {
	s := maeSuite(0.1)
	baseline := runWithScores(s, map[string]*float64{"affinity": score(1.0)})
	candidate := runWithScores(s, map[string]*float64{"affinity": score(5.0)})

	policy := DefaultPolicy()
	policy.MinEffectSize = math.Inf(1)
	report, err := Run(s, baseline, candidate, policy)
	if err != nil {
		t.Fatal(err)
	}
	if report.Verdict != VerdictPass {
		t.Fatalf("verdict = %q, want pass under infinite min effect size", report.Verdict)
	}
}

func TestRun_SuiteMismatch(t *testing.T) {
	s := maeSuite(0.1)
	baseline := runWithScores(s, map[string]*float64{"affinity": score(1.0)})
	candidate := runWithScores(s, map[string]*float64{"affinity": score(1.0)})
	candidate.SuiteVersion = "2.0.0"

	_, err := Run(s, baseline, candidate, DefaultPolicy())
	var sme *SuiteMismatchError
	if !errors.As(err, &sme) {
		t.Fatalf("want SuiteMismatchError, got %v", err)
	}
}

func TestRun_MissingTaskReportedNotFolded(t *testing.T) {
	s := maeSuite(0.1)
	s.Tasks = append(s.Tasks, types.Task{
		ID: "extra", Metric: "mae", PredictionKey: "v", ExpectedKey: "v",
		RegressionTolerance: 0.1, Weight: 1.0,
		Cases: []types.Case{{ID: "c", Expected: map[string]any{"v": 1.0}}},
	})
	baseline := runWithScores(s, map[string]*float64{"affinity": score(1.0), "extra": score(1.0)})
	candidate := runWithScores(s, map[string]*float64{"affinity": score(1.0)})

	report, err := Run(s, baseline, candidate, DefaultPolicy())
	if err != nil {
		t.Fatal(err)
	}
	if report.Verdict != VerdictPass {
		t.Fatalf("missing task must not fail the gate, verdict = %q", report.Verdict)
	}
	if report.Summary.Missing != 1 {
		t.Errorf("missing = %d, want 1", report.Summary.Missing)
	}
	var extra *TaskComparison
	for i := range report.Tasks {
		if report.Tasks[i].TaskID == "extra" {
			extra = &report.Tasks[i]
		}
	}
	if extra == nil || extra.Status != StatusMissing {
		t.Fatalf("extra task comparison = %+v, want status missing", extra)
	}
}

func TestRun_UndefinedScoreIsRegression(t *testing.T) {
	s := maeSuite(0.1)
	baseline := runWithScores(s, map[string]*float64{"affinity": score(0.0)})
	candidate := runWithScores(s, map[string]*float64{"affinity": nil})

	report, err := Run(s, baseline, candidate, DefaultPolicy())
	if err != nil {
		t.Fatal(err)
	}
	if report.Verdict != VerdictRegression {
		t.Fatalf("undefined candidate score: verdict = %q, want regression", report.Verdict)
	}
	if report.Tasks[0].Delta != nil {
		t.Error("no delta can exist against an undefined score")
	}
}

func TestRun_ZeroBaselineUsesToleranceScale(t *testing.T) {
	s := maeSuite(0.15)
	baseline := runWithScores(s, map[string]*float64{"affinity": score(0.0)})
	candidate := runWithScores(s, map[string]*float64{"affinity": score(0.2)})

	// effect = 0.2 / 0.15 with the tolerance fallback scale.
	policy := DefaultPolicy()
	policy.MinEffectSize = 2.0
	report, err := Run(s, baseline, candidate, policy)
	if err != nil {
		t.Fatal(err)
	}
	if report.Verdict != VerdictPass {
		t.Fatalf("effect 1.33 under min 2.0 must pass, got %q", report.Verdict)
	}
	if e := *report.Tasks[0].EffectSize; math.Abs(e-0.2/0.15) > 1e-12 {
		t.Errorf("effect size = %v, want %v", e, 0.2/0.15)
	}

	policy.MinEffectSize = 1.0
	report, err = Run(s, baseline, candidate, policy)
	if err != nil {
		t.Fatal(err)
	}
	if report.Verdict != VerdictRegression {
		t.Fatalf("effect 1.33 over min 1.0 with breach must regress, got %q", report.Verdict)
	}
}

func TestRun_ZeroBaselineZeroToleranceUsesUnitScale(t *testing.T) {
	s := maeSuite(0.0)
	baseline := runWithScores(s, map[string]*float64{"affinity": score(0.0)})
	candidate := runWithScores(s, map[string]*float64{"affinity": score(0.2)})

	report, err := Run(s, baseline, candidate, DefaultPolicy())
	if err != nil {
		t.Fatal(err)
	}
	if e := *report.Tasks[0].EffectSize; math.Abs(e-0.2) > 1e-12 {
		t.Errorf("effect size = %v, want 0.2 under unit fallback scale", e)
	}
}

func TestRun_FailOnUncertainControlsPassed(t *testing.T) {
	s, baseline, candidate := noisyBootstrapFixture()

	policy := DefaultPolicy()
	policy.BootstrapResamples = 500
	policy.BootstrapSeed = 7
	report, err := Run(s, baseline, candidate, policy)
	if err != nil {
		t.Fatal(err)
	}
	if report.Verdict != VerdictUncertain {
		t.Fatalf("verdict = %q, want uncertain", report.Verdict)
	}
	if !report.Summary.Passed {
		t.Error("uncertain without fail_on_uncertain must pass")
	}

	policy.FailOnUncertain = true
	report, err = Run(s, baseline, candidate, policy)
	if err != nil {
		t.Fatal(err)
	}
	if report.Summary.Passed {
		t.Error("uncertain with fail_on_uncertain must not pass")
	}
}

func TestPolicy_Validate(t *testing.T) {
	bad := []Policy{
		{MinEffectSize: -1, ConfidenceLevel: 0.95},
		{BootstrapResamples: -5, ConfidenceLevel: 0.95},
		{ConfidenceLevel: 0},
		{ConfidenceLevel: 1},
	}
	for i, p := range bad {
		if err := p.Validate(); err == nil {
			t.Errorf("policy %d should be invalid: %+v", i, p)
		}
	}
	if err := DefaultPolicy().Validate(); err != nil {
		t.Errorf("default policy invalid: %v", err)
	}
}
