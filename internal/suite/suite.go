package suite

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/benchgate/benchgate/internal/metric"
	"github.com/benchgate/benchgate/pkg/types"
)

// ConfigError reports a malformed suite or task definition. Load fails fast
// with it; nothing downstream ever sees a partially valid suite.
type ConfigError struct {
	Path   string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return "invalid suite: " + e.Reason
	}
	return fmt.Sprintf("invalid suite %s: %s", e.Path, e.Reason)
}

// Load reads and validates a suite definition from a YAML or JSON file.
func Load(path string) (types.Suite, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return types.Suite{}, fmt.Errorf("read suite %s: %w", path, err)
	}

	var s types.Suite
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(raw, &s)
	} else {
		err = yaml.Unmarshal(raw, &s)
	}
	if err != nil {
		return types.Suite{}, fmt.Errorf("parse suite %s: %w", path, err)
	}

	if err := validate(&s); err != nil {
		var ce *ConfigError
		if errors.As(err, &ce) {
			ce.Path = path
		}
		return types.Suite{}, err
	}
	return s, nil
}

// FromMap builds and validates a suite from an already-decoded mapping.
func FromMap(data map[string]any) (types.Suite, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return types.Suite{}, fmt.Errorf("encode suite payload: %w", err)
	}
	var s types.Suite
	if err := json.Unmarshal(raw, &s); err != nil {
		return types.Suite{}, fmt.Errorf("decode suite payload: %w", err)
	}
	if err := validate(&s); err != nil {
		return types.Suite{}, err
	}
	return s, nil
}

func validate(s *types.Suite) error {
	if strings.TrimSpace(s.Name) == "" {
		return &ConfigError{Reason: "name is required"}
	}
	if s.Version == "" {
		s.Version = "0.0.1"
	}
	if len(s.Tasks) == 0 {
		return &ConfigError{Reason: "tasks must be a non-empty list"}
	}

	seen := make(map[string]struct{}, len(s.Tasks))
	for i := range s.Tasks {
		task := &s.Tasks[i]
		if err := validateTask(task); err != nil {
			return err
		}
		if _, dup := seen[task.ID]; dup {
			return &ConfigError{Reason: fmt.Sprintf("duplicate task id %q", task.ID)}
		}
		seen[task.ID] = struct{}{}
	}
	return nil
}

func validateTask(task *types.Task) error {
	if strings.TrimSpace(task.ID) == "" {
		return &ConfigError{Reason: "task id is required"}
	}
	if !metric.Supported(task.Metric) {
		return &ConfigError{Reason: fmt.Sprintf(
			"unsupported metric %q for task %q (allowed: %s)",
			task.Metric, task.ID, strings.Join(metric.Kinds(), ", "))}
	}
	if strings.TrimSpace(task.PredictionKey) == "" {
		return &ConfigError{Reason: fmt.Sprintf("task %q requires prediction_key", task.ID)}
	}
	if task.ExpectedKey == "" {
		task.ExpectedKey = task.PredictionKey
	}
	if task.RegressionTolerance < 0 {
		return &ConfigError{Reason: fmt.Sprintf("task %q regression_tolerance must be >= 0", task.ID)}
	}
	if task.Weight == 0 {
		task.Weight = 1.0
	}
	if task.Weight <= 0 {
		return &ConfigError{Reason: fmt.Sprintf("task %q weight must be > 0", task.ID)}
	}
	if task.Metric == metric.F1 && task.PositiveLabel == nil {
		return &ConfigError{Reason: fmt.Sprintf("task %q uses f1 and requires positive_label", task.ID)}
	}
	if len(task.Cases) == 0 {
		return &ConfigError{Reason: fmt.Sprintf("task %q must include a non-empty cases list", task.ID)}
	}

	seen := make(map[string]struct{}, len(task.Cases))
	for i := range task.Cases {
		c := &task.Cases[i]
		if strings.TrimSpace(c.ID) == "" {
			return &ConfigError{Reason: fmt.Sprintf("task %q has a case without an id", task.ID)}
		}
		if _, dup := seen[c.ID]; dup {
			return &ConfigError{Reason: fmt.Sprintf("duplicate case id %q in task %q", c.ID, task.ID)}
		}
		seen[c.ID] = struct{}{}
		if c.Expected == nil {
			return &ConfigError{Reason: fmt.Sprintf("task %q case %q must include expected values", task.ID, c.ID)}
		}
		if c.Input == nil {
			c.Input = map[string]any{}
		}
	}
	return nil
}
