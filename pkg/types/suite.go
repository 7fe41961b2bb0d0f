package types

// Suite is the declarative definition of tasks and cases a model is
// evaluated against. Task ids are unique within a suite and case ids are
// unique within a task; internal/suite enforces both at load time.
type Suite struct {
	Name        string         `json:"name" yaml:"name"`
	Version     string         `json:"version" yaml:"version"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Tasks       []Task         `json:"tasks" yaml:"tasks"`
	Metadata    map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

type Task struct {
	ID                  string `json:"id" yaml:"id"`
	Metric              string `json:"metric" yaml:"metric"`
	PredictionKey       string `json:"prediction_key" yaml:"prediction_key"`
	ExpectedKey         string `json:"expected_key,omitempty" yaml:"expected_key,omitempty"`
	RegressionTolerance float64 `json:"regression_tolerance" yaml:"regression_tolerance"`
	Weight              float64 `json:"weight" yaml:"weight"`
	PositiveLabel       any    `json:"positive_label,omitempty" yaml:"positive_label,omitempty"`
	Cases               []Case `json:"cases" yaml:"cases"`
}

type Case struct {
	ID       string         `json:"id" yaml:"id"`
	Input    map[string]any `json:"input" yaml:"input"`
	Expected map[string]any `json:"expected" yaml:"expected"`
	Tags     []string       `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// TaskByID returns the task with the given id, or nil.
func (s *Suite) TaskByID(id string) *Task {
	for i := range s.Tasks {
		if s.Tasks[i].ID == id {
			return &s.Tasks[i]
		}
	}
	return nil
}
