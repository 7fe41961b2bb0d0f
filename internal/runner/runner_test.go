package runner

import (
	"fmt"
	"testing"

	"github.com/benchgate/benchgate/internal/adapter"
	"github.com/benchgate/benchgate/pkg/types"
)

func testSuite() types.Suite {
	return types.Suite{
		Name:    "runner-suite",
		Version: "1.0.0",
		Tasks: []types.Task{
			{
				ID:            "affinity",
				Metric:        "mae",
				PredictionKey: "affinity",
				ExpectedKey:   "affinity",
				Weight:        2.0,
				Cases: []types.Case{
					{ID: "a", Input: map[string]any{}, Expected: map[string]any{"affinity": -9.3}},
					{ID: "b", Input: map[string]any{}, Expected: map[string]any{"affinity": -8.7}},
				},
			},
			{
				ID:            "toxicity",
				Metric:        "accuracy",
				PredictionKey: "toxic",
				ExpectedKey:   "toxic",
				Weight:        1.0,
				Cases: []types.Case{
					{ID: "c1", Input: map[string]any{}, Expected: map[string]any{"toxic": 0}},
					{ID: "c2", Input: map[string]any{}, Expected: map[string]any{"toxic": 1}},
				},
			},
		},
	}
}

func TestRun_GoldenScoresPerfectly(t *testing.T) {
	run := Run(testSuite(), &adapter.Golden{}, Options{})

	if run.RunID == "" {
		t.Error("run id must be set")
	}
	if run.SuiteName != "runner-suite" || run.SuiteVersion != "1.0.0" {
		t.Errorf("suite identity = %s/%s", run.SuiteName, run.SuiteVersion)
	}
	if run.Adapter != "golden" || run.Model.Name != "golden" {
		t.Errorf("adapter identity = %s/%s", run.Adapter, run.Model.Name)
	}
	if !run.Summary.AllCasesSucceeded || run.Summary.CaseFailures != 0 {
		t.Errorf("summary = %+v", run.Summary)
	}
	if run.Summary.CasesTotal != 4 || run.Summary.TasksTotal != 2 {
		t.Errorf("counts = %+v", run.Summary)
	}

	mae := run.TaskResultByID("affinity")
	if mae == nil || mae.Score == nil || *mae.Score != 0.0 {
		t.Fatalf("golden mae score = %+v, want 0.0", mae)
	}
	acc := run.TaskResultByID("toxicity")
	if acc == nil || acc.Score == nil || *acc.Score != 1.0 {
		t.Fatalf("golden accuracy score = %+v, want 1.0", acc)
	}

	// weighted = (2*0 + 1*1) / 3
	if run.Summary.WeightedScore == nil || *run.Summary.WeightedScore != 1.0/3.0 {
		t.Errorf("weighted score = %v, want 1/3", run.Summary.WeightedScore)
	}
}

type flakyAdapter struct{ failCase string }

func (*flakyAdapter) Name() string { return "flaky" }

func (f *flakyAdapter) Predict(task types.Task, c types.Case) (map[string]any, error) {
	if c.ID == f.failCase {
		return nil, fmt.Errorf("model backend unavailable")
	}
	out := map[string]any{}
	for k, v := range c.Expected {
		out[k] = v
	}
	return out, nil
}

func TestRun_CaseFailureRecordedNotRaised(t *testing.T) {
	run := Run(testSuite(), &flakyAdapter{failCase: "c1"}, Options{})

	if run.Summary.CaseFailures != 1 {
		t.Fatalf("case failures = %d, want 1", run.Summary.CaseFailures)
	}
	if run.Summary.TasksWithErrors != 1 {
		t.Errorf("tasks with errors = %d, want 1", run.Summary.TasksWithErrors)
	}
	tox := run.TaskResultByID("toxicity")
	if tox == nil {
		t.Fatal("toxicity result missing")
	}
	if tox.Score == nil || *tox.Score != 1.0 {
		t.Errorf("score over successes = %v, want 1.0 over the surviving case", tox.Score)
	}
	var failed *types.CaseResult
	for i := range tox.CaseResults {
		if tox.CaseResults[i].CaseID == "c1" {
			failed = &tox.CaseResults[i]
		}
	}
	if failed == nil || failed.Error == "" {
		t.Error("failing case must carry its error string")
	}
}

type emptyAdapter struct{}

func (*emptyAdapter) Name() string { return "empty" }

func (*emptyAdapter) Predict(types.Task, types.Case) (map[string]any, error) {
	return nil, fmt.Errorf("nothing works")
}

func TestRun_AllCasesFailingYieldsUndefinedScore(t *testing.T) {
	run := Run(testSuite(), &emptyAdapter{}, Options{})
	for _, tr := range run.TaskResults {
		if tr.Score != nil {
			t.Errorf("task %s score = %v, want nil (undefined, not 0)", tr.TaskID, *tr.Score)
		}
		if tr.CaseFailures != tr.CasesTotal {
			t.Errorf("task %s failures = %d/%d", tr.TaskID, tr.CaseFailures, tr.CasesTotal)
		}
	}
	if run.Summary.WeightedScore != nil {
		t.Error("weighted score must be undefined when no task scored")
	}
	if run.Summary.TasksWithErrors != 2 {
		t.Errorf("tasks with errors = %d, want 2", run.Summary.TasksWithErrors)
	}
}

type missingKeyAdapter struct{}

func (*missingKeyAdapter) Name() string { return "missing-key" }

func (*missingKeyAdapter) Predict(types.Task, types.Case) (map[string]any, error) {
	return map[string]any{"unrelated": 1}, nil
}

func TestRun_MissingPredictionKeyIsCaseFailure(t *testing.T) {
	run := Run(testSuite(), &missingKeyAdapter{}, Options{})
	if run.Summary.CaseFailures != run.Summary.CasesTotal {
		t.Errorf("failures = %d, want all %d", run.Summary.CaseFailures, run.Summary.CasesTotal)
	}
}

func TestRun_ModelIdentityOverride(t *testing.T) {
	run := Run(testSuite(), &adapter.Golden{}, Options{
		Model:      types.Model{Name: "refnet", Version: "2.1.0"},
		Provenance: map[string]any{"captured": true},
	})
	if run.Model.Name != "refnet" || run.Model.Version != "2.1.0" {
		t.Errorf("model = %+v", run.Model)
	}
	if run.Provenance["captured"] != true {
		t.Error("provenance not attached")
	}
}
