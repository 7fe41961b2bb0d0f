package types

// Metric direction values. Delta normalization in internal/compare depends
// on these: "lower" means smaller scores are better.
const (
	DirectionLower  = "lower"
	DirectionHigher = "higher"
)

// Run is the persisted artifact of one evaluated benchmark run.
type Run struct {
	RunID        string         `json:"run_id"`
	SuiteName    string         `json:"suite_name"`
	SuiteVersion string         `json:"suite_version"`
	Model        Model          `json:"model"`
	Adapter      string         `json:"adapter"`
	StartedAt    string         `json:"started_at"`
	FinishedAt   string         `json:"finished_at"`
	Summary      RunSummary     `json:"summary"`
	TaskResults  []TaskResult   `json:"task_results"`
	Provenance   map[string]any `json:"provenance"`
}

type Model struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

type RunSummary struct {
	TasksTotal        int      `json:"tasks_total"`
	TasksWithErrors   int      `json:"tasks_with_errors"`
	CasesTotal        int      `json:"cases_total"`
	CaseFailures      int      `json:"case_failures"`
	AllCasesSucceeded bool     `json:"all_cases_succeeded"`
	WeightedScore     *float64 `json:"weighted_score"`
}

// TaskResult holds the aggregate score for one task. Score is nil when no
// case succeeded; nil is meaningfully distinct from 0.0 and every consumer
// must preserve the distinction.
type TaskResult struct {
	TaskID       string       `json:"task_id"`
	Metric       string       `json:"metric"`
	Direction    string       `json:"direction"`
	Score        *float64     `json:"score"`
	CasesTotal   int          `json:"cases_total"`
	CaseFailures int          `json:"case_failures"`
	CaseResults  []CaseResult `json:"case_results"`
}

// CaseResult records one case evaluation. A failed evaluation carries its
// error string here instead of aborting the run.
type CaseResult struct {
	CaseID     string  `json:"case_id"`
	Expected   any     `json:"expected"`
	Predicted  any     `json:"predicted"`
	DurationMS float64 `json:"duration_ms"`
	Error      string  `json:"error,omitempty"`
}

// TaskResultByID returns the task result with the given task id, or nil.
func (r *Run) TaskResultByID(id string) *TaskResult {
	for i := range r.TaskResults {
		if r.TaskResults[i].TaskID == id {
			return &r.TaskResults[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the run. The registry stores clones so later
// mutation of a source run cannot alter a promoted baseline.
func (r Run) Clone() Run {
	out := r
	out.TaskResults = make([]TaskResult, len(r.TaskResults))
	for i, tr := range r.TaskResults {
		c := tr
		if tr.Score != nil {
			v := *tr.Score
			c.Score = &v
		}
		c.CaseResults = make([]CaseResult, len(tr.CaseResults))
		for j, cr := range tr.CaseResults {
			cr.Expected = deepCopyValue(cr.Expected)
			cr.Predicted = deepCopyValue(cr.Predicted)
			c.CaseResults[j] = cr
		}
		out.TaskResults[i] = c
	}
	if r.Summary.WeightedScore != nil {
		v := *r.Summary.WeightedScore
		out.Summary.WeightedScore = &v
	}
	if r.Provenance != nil {
		out.Provenance = deepCopyMap(r.Provenance)
	}
	return out
}

func deepCopyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyMap(t)
	case []any:
		items := make([]any, len(t))
		for i, item := range t {
			items[i] = deepCopyValue(item)
		}
		return items
	default:
		return v
	}
}
