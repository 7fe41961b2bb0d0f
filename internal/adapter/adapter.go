package adapter

import (
	"fmt"
	"sort"
	"sync"

	"github.com/benchgate/benchgate/pkg/types"
)

// Adapter turns a case input into a prediction mapping. The returned map
// must contain the task's prediction_key. The core pipeline depends only on
// this interface, never on adapter identity.
type Adapter interface {
	Name() string
	Predict(task types.Task, c types.Case) (map[string]any, error)
}

// Factory builds an Adapter from its config mapping.
type Factory func(config map[string]any) (Adapter, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register installs a custom adapter factory under the given name. Embedders
// register adapters at init time and select them with the usual --adapter
// spec; built-in names cannot be replaced.
func Register(name string, factory Factory) error {
	mu.Lock()
	defer mu.Unlock()
	if name == "" || factory == nil {
		return fmt.Errorf("adapter registration requires a name and a factory")
	}
	if _, exists := factories[name]; exists {
		return fmt.Errorf("adapter %q already registered", name)
	}
	factories[name] = factory
	return nil
}

// Load resolves an adapter spec (built-in or registered name) with its
// config mapping.
func Load(spec string, config map[string]any) (Adapter, error) {
	if config == nil {
		config = map[string]any{}
	}
	switch spec {
	case "golden":
		return &Golden{}, nil
	case "file":
		return NewFile(config)
	case "command":
		return NewCommand(config)
	}

	mu.RLock()
	factory, ok := factories[spec]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown adapter %q (built-ins: golden, file, command; registered: %v)", spec, registeredNames())
	}
	return factory(config)
}

func registeredNames() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Golden echoes the case's expected values, producing a perfect-score run.
// It seeds baselines and exercises the pipeline end to end.
type Golden struct{}

func (*Golden) Name() string { return "golden" }

func (*Golden) Predict(_ types.Task, c types.Case) (map[string]any, error) {
	out := make(map[string]any, len(c.Expected))
	for k, v := range c.Expected {
		out[k] = v
	}
	return out, nil
}
