package adapter

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/benchgate/benchgate/pkg/types"
)

// File serves predictions from a static YAML/JSON file mapping
// task id -> case id -> prediction. Scalar predictions are wrapped under the
// task's prediction_key.
type File struct {
	predictions map[string]map[string]any
}

func NewFile(config map[string]any) (*File, error) {
	rawPath, _ := config["predictions_path"].(string)
	if rawPath == "" {
		return nil, fmt.Errorf("file adapter requires 'predictions_path' in adapter config")
	}

	raw, err := os.ReadFile(rawPath)
	if err != nil {
		return nil, fmt.Errorf("read predictions %s: %w", rawPath, err)
	}

	var payload map[string]any
	if strings.EqualFold(filepath.Ext(rawPath), ".json") {
		err = json.Unmarshal(raw, &payload)
	} else {
		err = yaml.Unmarshal(raw, &payload)
	}
	if err != nil {
		return nil, fmt.Errorf("parse predictions %s: %w", rawPath, err)
	}

	normalized := make(map[string]map[string]any, len(payload))
	for taskID, taskPayload := range payload {
		cases, ok := taskPayload.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("predictions for task %q must be a mapping of case ids", taskID)
		}
		normalized[taskID] = cases
	}
	return &File{predictions: normalized}, nil
}

func (*File) Name() string { return "file" }

func (f *File) Predict(task types.Task, c types.Case) (map[string]any, error) {
	cases, ok := f.predictions[task.ID]
	if !ok {
		return nil, fmt.Errorf("no predictions for task %q", task.ID)
	}
	prediction, ok := cases[c.ID]
	if !ok {
		return nil, fmt.Errorf("no prediction for case %q in task %q", c.ID, task.ID)
	}
	if m, ok := prediction.(map[string]any); ok {
		return m, nil
	}
	return map[string]any{task.PredictionKey: prediction}, nil
}
