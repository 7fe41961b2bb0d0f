package runner

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/benchgate/benchgate/internal/adapter"
	"github.com/benchgate/benchgate/internal/metric"
	"github.com/benchgate/benchgate/pkg/types"
)

type Options struct {
	Model      types.Model
	Provenance map[string]any
}

// Run evaluates every case of every task with the adapter and aggregates
// scores. Per-case failures are recorded on the result and never abort the
// run; a task with zero succeeding cases gets a nil score.
func Run(s types.Suite, a adapter.Adapter, opts Options) types.Run {
	startedAt := time.Now().UTC()

	taskResults := make([]types.TaskResult, 0, len(s.Tasks))
	casesTotal := 0
	caseFailures := 0
	tasksWithErrors := 0

	for i := range s.Tasks {
		result := runTask(s.Tasks[i], a)
		casesTotal += result.CasesTotal
		caseFailures += result.CaseFailures
		if result.CaseFailures > 0 || result.Score == nil {
			tasksWithErrors++
		}
		taskResults = append(taskResults, result)
	}

	model := opts.Model
	if model.Name == "" {
		model.Name = a.Name()
	}
	provenance := opts.Provenance
	if provenance == nil {
		provenance = map[string]any{}
	}

	finishedAt := time.Now().UTC()
	return types.Run{
		RunID:        uuid.NewString(),
		SuiteName:    s.Name,
		SuiteVersion: s.Version,
		Model:        model,
		Adapter:      a.Name(),
		StartedAt:    startedAt.Format(time.RFC3339Nano),
		FinishedAt:   finishedAt.Format(time.RFC3339Nano),
		Summary: types.RunSummary{
			TasksTotal:        len(s.Tasks),
			TasksWithErrors:   tasksWithErrors,
			CasesTotal:        casesTotal,
			CaseFailures:      caseFailures,
			AllCasesSucceeded: caseFailures == 0,
			WeightedScore:     weightedScore(s, taskResults),
		},
		TaskResults: taskResults,
		Provenance:  provenance,
	}
}

func runTask(task types.Task, a adapter.Adapter) types.TaskResult {
	direction, _ := metric.Direction(task.Metric)

	expectedValues := make([]any, 0, len(task.Cases))
	predictedValues := make([]any, 0, len(task.Cases))
	caseResults := make([]types.CaseResult, 0, len(task.Cases))
	failures := 0

	for _, c := range task.Cases {
		expected := c.Expected[task.ExpectedKey]
		start := time.Now()

		var predicted any
		errMsg := ""
		output, err := a.Predict(task, c)
		if err != nil {
			errMsg = err.Error()
		} else if value, ok := output[task.PredictionKey]; ok {
			predicted = value
			expectedValues = append(expectedValues, expected)
			predictedValues = append(predictedValues, predicted)
		} else {
			errMsg = fmt.Sprintf("missing prediction key %q in adapter output for case %q", task.PredictionKey, c.ID)
		}
		if errMsg != "" {
			failures++
		}

		caseResults = append(caseResults, types.CaseResult{
			CaseID:     c.ID,
			Expected:   expected,
			Predicted:  predicted,
			DurationMS: float64(time.Since(start)) / float64(time.Millisecond),
			Error:      errMsg,
		})
	}

	var score *float64
	if len(expectedValues) > 0 {
		value, err := metric.Compute(task.Metric, expectedValues, predictedValues, task.PositiveLabel)
		if err == nil {
			score = &value
		} else {
			// A scoring failure over otherwise-succeeding cases marks every
			// contributing case, not the task silently.
			failures = len(task.Cases)
			for i := range caseResults {
				if caseResults[i].Error == "" {
					caseResults[i].Error = fmt.Sprintf("score %s: %v", task.Metric, err)
				}
			}
		}
	}

	return types.TaskResult{
		TaskID:       task.ID,
		Metric:       task.Metric,
		Direction:    direction,
		Score:        score,
		CasesTotal:   len(task.Cases),
		CaseFailures: failures,
		CaseResults:  caseResults,
	}
}

// weightedScore is the weight-normalized sum of defined task scores. It is
// reporting-only; gating never consults it.
func weightedScore(s types.Suite, results []types.TaskResult) *float64 {
	sum := 0.0
	weightTotal := 0.0
	for i := range results {
		if results[i].Score == nil {
			continue
		}
		task := s.TaskByID(results[i].TaskID)
		if task == nil {
			continue
		}
		sum += task.Weight * *results[i].Score
		weightTotal += task.Weight
	}
	if weightTotal == 0 {
		return nil
	}
	value := sum / weightTotal
	return &value
}
