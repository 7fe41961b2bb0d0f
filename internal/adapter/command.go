package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/benchgate/benchgate/pkg/types"
)

// Command shells out to an external model process per case. The request is a
// single JSON object on stdin:
//
//	{"task_id": ..., "prediction_key": ..., "case_id": ..., "input": {...}}
//
// and the prediction is the last JSON line of stdout, so model code is free
// to log to stdout before answering.
type Command struct {
	argv            []string
	env             map[string]string
	timeout         time.Duration
	includeExpected bool
}

func NewCommand(config map[string]any) (*Command, error) {
	rawArgv, ok := config["command"].([]any)
	if !ok || len(rawArgv) == 0 {
		return nil, fmt.Errorf("command adapter requires a non-empty string list at config.command")
	}
	argv := make([]string, 0, len(rawArgv))
	for _, item := range rawArgv {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("command adapter requires a non-empty string list at config.command")
		}
		argv = append(argv, s)
	}

	env := map[string]string{}
	if rawEnv, present := config["env"]; present {
		envMap, ok := rawEnv.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("command adapter 'env' must be a mapping")
		}
		for k, v := range envMap {
			env[k] = fmt.Sprint(v)
		}
	}

	timeout := 60 * time.Second
	if rawTimeout, present := config["timeout_seconds"]; present {
		seconds, ok := asSeconds(rawTimeout)
		if !ok {
			return nil, fmt.Errorf("command adapter 'timeout_seconds' must be numeric")
		}
		timeout = time.Duration(seconds * float64(time.Second))
	}

	includeExpected, _ := config["include_expected"].(bool)

	return &Command{argv: argv, env: env, timeout: timeout, includeExpected: includeExpected}, nil
}

func (*Command) Name() string { return "command" }

func (c *Command) Predict(task types.Task, bc types.Case) (map[string]any, error) {
	request := map[string]any{
		"task_id":        task.ID,
		"prediction_key": task.PredictionKey,
		"case_id":        bc.ID,
		"input":          bc.Input,
	}
	if c.includeExpected {
		request["expected"] = bc.Expected
	}
	payload, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("encode adapter request: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.argv[0], c.argv[1:]...)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Env = os.Environ()
	for k, v := range c.env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("command adapter timed out after %s", c.timeout)
		}
		return nil, fmt.Errorf("command adapter failed: %v: %s", err, strings.TrimSpace(stderr.String()))
	}

	out := strings.TrimSpace(stdout.String())
	if out == "" {
		return nil, fmt.Errorf("command adapter returned empty stdout")
	}
	return parseLastJSONLine(out)
}

func parseLastJSONLine(out string) (map[string]any, error) {
	lines := strings.Split(out, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		var parsed any
		if err := json.Unmarshal([]byte(line), &parsed); err != nil {
			continue
		}
		m, ok := parsed.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("command adapter must return a JSON object, got %T", parsed)
		}
		return m, nil
	}
	return nil, fmt.Errorf("unable to parse JSON output from command adapter")
}

func asSeconds(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	default:
		return 0, false
	}
}
