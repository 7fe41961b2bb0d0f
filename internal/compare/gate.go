package compare

import (
	"math"
	"math/rand"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/benchgate/benchgate/internal/metric"
	"github.com/benchgate/benchgate/pkg/types"
)

// classify runs the statistical decision ladder on a tolerance comparison:
// effect-size filter first, then the tolerance point estimate, then the
// bootstrap confidence interval when resampling is enabled.
func classify(tc *TaskComparison, task *types.Task, taskIndex int, baseline, candidate *types.TaskResult, policy Policy) {
	delta := *tc.Delta

	if math.Abs(*tc.EffectSize) < policy.MinEffectSize {
		tc.Status = StatusPass
		tc.Message = "effect size below practical threshold"
		return
	}
	if delta <= task.RegressionTolerance {
		tc.Status = StatusPass
		tc.Message = "within tolerance"
		return
	}
	if policy.BootstrapResamples == 0 {
		tc.Status = StatusRegression
		tc.Message = "exceeded tolerance"
		return
	}

	pairs := pairedCases(baseline, candidate)
	tc.PairedCases = len(pairs)
	stats := bootstrap(task, taskIndex, pairs, policy)
	if stats == nil {
		tc.Status = StatusUncertain
		tc.Message = "insufficient paired cases for bootstrap CI"
		return
	}

	tc.CILow = &stats.low
	tc.CIHigh = &stats.high
	tc.PRegression = &stats.pRegression
	switch {
	case stats.low > 0:
		tc.Status = StatusRegression
		tc.Message = "bootstrap CI confirms regression"
	case stats.high <= 0:
		tc.Status = StatusPass
		tc.Message = "bootstrap CI rejects regression"
	default:
		tc.Status = StatusUncertain
		tc.Message = "regression signal inconclusive under bootstrap CI"
	}
}

type pair struct {
	baselineExpected   any
	baselinePredicted  any
	candidateExpected  any
	candidatePredicted any
}

// pairedCases collects the case-level contributions present and error-free
// in both runs, in baseline case order for determinism.
func pairedCases(baseline, candidate *types.TaskResult) []pair {
	candidateByID := make(map[string]*types.CaseResult, len(candidate.CaseResults))
	for i := range candidate.CaseResults {
		candidateByID[candidate.CaseResults[i].CaseID] = &candidate.CaseResults[i]
	}

	pairs := make([]pair, 0, len(baseline.CaseResults))
	for i := range baseline.CaseResults {
		b := &baseline.CaseResults[i]
		c, ok := candidateByID[b.CaseID]
		if !ok || b.Error != "" || c.Error != "" {
			continue
		}
		if b.Expected == nil || b.Predicted == nil || c.Expected == nil || c.Predicted == nil {
			continue
		}
		pairs = append(pairs, pair{
			baselineExpected:   b.Expected,
			baselinePredicted:  b.Predicted,
			candidateExpected:  c.Expected,
			candidatePredicted: c.Predicted,
		})
	}
	return pairs
}

type bootstrapStats struct {
	low         float64
	high        float64
	pRegression float64
}

// bootstrap resamples the paired case contributions with replacement and
// forms the empirical two-sided interval on the normalized delta. Each
// resample derives its RNG from (taskSeed, resampleIndex), so results are
// bit-identical across runs and worker counts.
func bootstrap(task *types.Task, taskIndex int, pairs []pair, policy Policy) *bootstrapStats {
	n := len(pairs)
	if n < 2 || policy.BootstrapResamples <= 0 {
		return nil
	}
	direction, _ := metric.Direction(task.Metric)
	taskSeed := policy.BootstrapSeed + int64(taskIndex)

	samples := make([]float64, policy.BootstrapResamples)
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range samples {
		i := i
		g.Go(func() error {
			rng := newResampleRand(taskSeed, i)
			baseExpected := make([]any, n)
			basePredicted := make([]any, n)
			candExpected := make([]any, n)
			candPredicted := make([]any, n)
			for j := 0; j < n; j++ {
				p := pairs[rng.Intn(n)]
				baseExpected[j] = p.baselineExpected
				basePredicted[j] = p.baselinePredicted
				candExpected[j] = p.candidateExpected
				candPredicted[j] = p.candidatePredicted
			}
			baselineScore, err := metric.Compute(task.Metric, baseExpected, basePredicted, task.PositiveLabel)
			if err != nil {
				return err
			}
			candidateScore, err := metric.Compute(task.Metric, candExpected, candPredicted, task.PositiveLabel)
			if err != nil {
				return err
			}
			samples[i] = normalizedDelta(direction, baselineScore, candidateScore)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil
	}

	hits := 0
	for _, s := range samples {
		if s > 0 {
			hits++
		}
	}
	alpha := 1.0 - policy.ConfidenceLevel
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)
	return &bootstrapStats{
		low:         quantile(sorted, alpha/2),
		high:        quantile(sorted, 1-alpha/2),
		pRegression: float64(hits) / float64(len(samples)),
	}
}

// newResampleRand derives an independent generator from (taskSeed, index)
// via splitmix64, keeping resamples deterministic under any parallelism.
func newResampleRand(taskSeed int64, index int) *rand.Rand {
	z := uint64(taskSeed) + uint64(index+1)*0x9E3779B97F4A7C15
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	z ^= z >> 31
	return rand.New(rand.NewSource(int64(z)))
}

// quantile interpolates linearly over an already-sorted sample.
func quantile(sorted []float64, probability float64) float64 {
	if probability <= 0 {
		return sorted[0]
	}
	if probability >= 1 {
		return sorted[len(sorted)-1]
	}
	position := probability * float64(len(sorted)-1)
	lo := int(position)
	hi := lo + 1
	if hi >= len(sorted) {
		hi = len(sorted) - 1
	}
	fraction := position - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*fraction
}
