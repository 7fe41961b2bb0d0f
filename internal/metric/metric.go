package metric

import (
	"fmt"
	"math"
	"reflect"

	"github.com/benchgate/benchgate/pkg/types"
)

const (
	MAE        = "mae"
	RMSE       = "rmse"
	Accuracy   = "accuracy"
	ExactMatch = "exact_match"
	F1         = "f1"
)

var directions = map[string]string{
	MAE:        types.DirectionLower,
	RMSE:       types.DirectionLower,
	Accuracy:   types.DirectionHigher,
	ExactMatch: types.DirectionHigher,
	F1:         types.DirectionHigher,
}

// Supported reports whether kind names a known metric.
func Supported(kind string) bool {
	_, ok := directions[kind]
	return ok
}

// Kinds returns the supported metric kinds in stable order.
func Kinds() []string {
	return []string{Accuracy, ExactMatch, F1, MAE, RMSE}
}

// Direction returns "lower" or "higher" for a supported metric kind.
func Direction(kind string) (string, error) {
	d, ok := directions[kind]
	if !ok {
		return "", fmt.Errorf("unsupported metric %q", kind)
	}
	return d, nil
}

// Compute aggregates paired expected/predicted values into one score.
// positiveLabel is only consulted for f1.
func Compute(kind string, expected, predicted []any, positiveLabel any) (float64, error) {
	if len(expected) != len(predicted) {
		return 0, fmt.Errorf("expected and predicted must have equal length (%d != %d)", len(expected), len(predicted))
	}
	if len(expected) == 0 {
		return 0, fmt.Errorf("cannot compute %s on zero values", kind)
	}

	switch kind {
	case MAE:
		exp, err := toFloats(expected)
		if err != nil {
			return 0, err
		}
		pred, err := toFloats(predicted)
		if err != nil {
			return 0, err
		}
		sum := 0.0
		for i := range exp {
			sum += math.Abs(exp[i] - pred[i])
		}
		return sum / float64(len(exp)), nil

	case RMSE:
		exp, err := toFloats(expected)
		if err != nil {
			return 0, err
		}
		pred, err := toFloats(predicted)
		if err != nil {
			return 0, err
		}
		sum := 0.0
		for i := range exp {
			d := exp[i] - pred[i]
			sum += d * d
		}
		return math.Sqrt(sum / float64(len(exp))), nil

	case Accuracy, ExactMatch:
		matches := 0
		for i := range expected {
			if Equal(expected[i], predicted[i]) {
				matches++
			}
		}
		return float64(matches) / float64(len(expected)), nil

	case F1:
		return f1Binary(expected, predicted, positiveLabel), nil
	}

	return 0, fmt.Errorf("unsupported metric %q", kind)
}

// Equal compares two extracted values. Numbers compare by value so that a
// YAML int and a JSON float64 carrying the same quantity match; everything
// else compares structurally.
func Equal(a, b any) bool {
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if aok && bok {
		return af == bf
	}
	if aok != bok {
		return false
	}
	return reflect.DeepEqual(normalize(a), normalize(b))
}

// f1Binary scores binary F1 with both sides binarized by positiveLabel.
// No positives on either side is a vacuous perfect score; zero precision
// and recall scores 0.
func f1Binary(expected, predicted []any, positiveLabel any) float64 {
	tp, fp, fn := 0, 0, 0
	for i := range expected {
		expPos := Equal(expected[i], positiveLabel)
		predPos := Equal(predicted[i], positiveLabel)
		switch {
		case expPos && predPos:
			tp++
		case !expPos && predPos:
			fp++
		case expPos && !predPos:
			fn++
		}
	}

	if tp == 0 && fp == 0 && fn == 0 {
		return 1.0
	}

	precision := 0.0
	if tp+fp > 0 {
		precision = float64(tp) / float64(tp+fp)
	}
	recall := 0.0
	if tp+fn > 0 {
		recall = float64(tp) / float64(tp+fn)
	}
	if precision+recall == 0 {
		return 0.0
	}
	return 2 * precision * recall / (precision + recall)
}

func toFloats(values []any) ([]float64, error) {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		f, ok := asFloat(v)
		if !ok {
			return nil, fmt.Errorf("expected numeric value, got %T (%v)", v, v)
		}
		out = append(out, f)
	}
	return out, nil
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint64:
		return float64(t), true
	default:
		return 0, false
	}
}

// normalize rewrites nested numbers to float64 so DeepEqual does not
// distinguish decoder-dependent numeric types.
func normalize(v any) any {
	if f, ok := asFloat(v); ok {
		return f
	}
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = normalize(item)
		}
		return out
	default:
		return v
	}
}
