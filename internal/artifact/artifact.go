package artifact

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/benchgate/benchgate/internal/metric"
	"github.com/benchgate/benchgate/pkg/schema"
	"github.com/benchgate/benchgate/pkg/types"
)

// runSchema is the wire contract for run artifacts. It catches shape errors
// early; the structural pass below enforces the cross-field invariants a
// JSON Schema cannot express.
const runSchema = `{
  "type": "object",
  "required": ["run_id", "suite_name", "suite_version", "model", "adapter",
               "started_at", "finished_at", "summary", "task_results", "provenance"],
  "properties": {
    "run_id": {"type": "string", "minLength": 1},
    "suite_name": {"type": "string", "minLength": 1},
    "suite_version": {"type": "string", "minLength": 1},
    "model": {
      "type": "object",
      "required": ["name"],
      "properties": {
        "name": {"type": "string", "minLength": 1},
        "version": {"type": "string"}
      }
    },
    "adapter": {"type": "string", "minLength": 1},
    "started_at": {"type": "string", "minLength": 1},
    "finished_at": {"type": "string", "minLength": 1},
    "summary": {
      "type": "object",
      "required": ["tasks_total", "tasks_with_errors", "cases_total",
                   "case_failures", "all_cases_succeeded"],
      "properties": {
        "tasks_total": {"type": "integer", "minimum": 0},
        "tasks_with_errors": {"type": "integer", "minimum": 0},
        "cases_total": {"type": "integer", "minimum": 0},
        "case_failures": {"type": "integer", "minimum": 0},
        "all_cases_succeeded": {"type": "boolean"},
        "weighted_score": {"type": ["number", "null"]}
      }
    },
    "task_results": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["task_id", "metric", "direction", "score",
                     "cases_total", "case_failures", "case_results"],
        "properties": {
          "task_id": {"type": "string", "minLength": 1},
          "metric": {"type": "string", "minLength": 1},
          "direction": {"enum": ["lower", "higher"]},
          "score": {"type": ["number", "null"]},
          "cases_total": {"type": "integer", "minimum": 0},
          "case_failures": {"type": "integer", "minimum": 0},
          "case_results": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["case_id", "duration_ms"],
              "properties": {
                "case_id": {"type": "string", "minLength": 1},
                "duration_ms": {"type": "number", "minimum": 0},
                "error": {"type": "string"}
              }
            }
          }
        }
      }
    },
    "provenance": {"type": "object"}
  }
}`

// Read loads, schema-checks, and structurally validates a run artifact.
func Read(path string) (types.Run, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return types.Run{}, fmt.Errorf("read run artifact %s: %w", path, err)
	}
	violations, err := schema.ValidateBytes(runSchema, raw)
	if err != nil {
		return types.Run{}, fmt.Errorf("run artifact %s: %w", path, err)
	}
	if len(violations) > 0 {
		return types.Run{}, fmt.Errorf("run artifact %s: %s", path, strings.Join(violations, "; "))
	}

	var run types.Run
	if err := json.Unmarshal(raw, &run); err != nil {
		return types.Run{}, fmt.Errorf("decode run artifact %s: %w", path, err)
	}
	if err := Validate(run); err != nil {
		return types.Run{}, fmt.Errorf("run artifact %s: %w", path, err)
	}
	return run, nil
}

// Write persists a run artifact as indented JSON, creating parent
// directories as needed.
func Write(path string, run types.Run) error {
	raw, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("encode run artifact: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create artifact dir: %w", err)
		}
	}
	return os.WriteFile(path, append(raw, '\n'), 0o644)
}

// Validate enforces internal consistency: unique ids, summary counts that
// match the task results, finite scores.
func Validate(run types.Run) error {
	taskIDs := make(map[string]struct{}, len(run.TaskResults))
	casesTotal := 0
	caseFailures := 0
	tasksWithErrors := 0

	for i := range run.TaskResults {
		tr := &run.TaskResults[i]
		if _, dup := taskIDs[tr.TaskID]; dup {
			return fmt.Errorf("duplicate task_id %q", tr.TaskID)
		}
		taskIDs[tr.TaskID] = struct{}{}

		if tr.Score != nil && (math.IsNaN(*tr.Score) || math.IsInf(*tr.Score, 0)) {
			return fmt.Errorf("task %q score must be finite", tr.TaskID)
		}
		if tr.CaseFailures > tr.CasesTotal {
			return fmt.Errorf("task %q case_failures exceeds cases_total", tr.TaskID)
		}
		if len(tr.CaseResults) != tr.CasesTotal {
			return fmt.Errorf("task %q cases_total=%d does not match %d case results",
				tr.TaskID, tr.CasesTotal, len(tr.CaseResults))
		}

		caseIDs := make(map[string]struct{}, len(tr.CaseResults))
		observedFailures := 0
		for j := range tr.CaseResults {
			cr := &tr.CaseResults[j]
			if _, dup := caseIDs[cr.CaseID]; dup {
				return fmt.Errorf("duplicate case_id %q in task %q", cr.CaseID, tr.TaskID)
			}
			caseIDs[cr.CaseID] = struct{}{}
			if cr.Error != "" {
				observedFailures++
			}
		}
		if observedFailures != tr.CaseFailures {
			return fmt.Errorf("task %q case_failures=%d does not match %d observed failures",
				tr.TaskID, tr.CaseFailures, observedFailures)
		}

		if tr.CaseFailures > 0 || tr.Score == nil {
			tasksWithErrors++
		}
		casesTotal += tr.CasesTotal
		caseFailures += tr.CaseFailures
	}

	s := run.Summary
	if s.TasksTotal != len(run.TaskResults) {
		return fmt.Errorf("summary.tasks_total=%d does not match %d task results", s.TasksTotal, len(run.TaskResults))
	}
	if s.CasesTotal != casesTotal {
		return fmt.Errorf("summary.cases_total=%d does not match %d", s.CasesTotal, casesTotal)
	}
	if s.CaseFailures != caseFailures {
		return fmt.Errorf("summary.case_failures=%d does not match %d", s.CaseFailures, caseFailures)
	}
	if s.TasksWithErrors != tasksWithErrors {
		return fmt.Errorf("summary.tasks_with_errors=%d does not match %d", s.TasksWithErrors, tasksWithErrors)
	}
	if s.AllCasesSucceeded != (caseFailures == 0) {
		return fmt.Errorf("summary.all_cases_succeeded=%t inconsistent with case_failures=%d", s.AllCasesSucceeded, caseFailures)
	}
	return nil
}

// AlignWithSuite checks that a run artifact belongs to the given suite:
// identity, task and case id sets, metric kinds and directions.
func AlignWithSuite(run types.Run, s types.Suite) error {
	if run.SuiteName != s.Name {
		return fmt.Errorf("run suite_name %q does not match suite %q", run.SuiteName, s.Name)
	}
	if run.SuiteVersion != s.Version {
		return fmt.Errorf("run suite_version %q does not match suite version %q", run.SuiteVersion, s.Version)
	}
	if len(run.TaskResults) != len(s.Tasks) {
		return fmt.Errorf("run has %d task results, suite defines %d tasks", len(run.TaskResults), len(s.Tasks))
	}

	for i := range s.Tasks {
		task := &s.Tasks[i]
		tr := run.TaskResultByID(task.ID)
		if tr == nil {
			return fmt.Errorf("run is missing task %q", task.ID)
		}
		if tr.Metric != task.Metric {
			return fmt.Errorf("task %q metric %q does not match suite metric %q", task.ID, tr.Metric, task.Metric)
		}
		wantDirection, err := metric.Direction(task.Metric)
		if err != nil {
			return err
		}
		if tr.Direction != wantDirection {
			return fmt.Errorf("task %q direction %q does not match %q", task.ID, tr.Direction, wantDirection)
		}
		if tr.CasesTotal != len(task.Cases) {
			return fmt.Errorf("task %q has %d case results, suite defines %d cases", task.ID, tr.CasesTotal, len(task.Cases))
		}
		for _, c := range task.Cases {
			found := false
			for j := range tr.CaseResults {
				if tr.CaseResults[j].CaseID == c.ID {
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("task %q is missing case %q", task.ID, c.ID)
			}
		}
	}
	return nil
}
