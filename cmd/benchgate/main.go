package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/benchgate/benchgate/internal/adapter"
	"github.com/benchgate/benchgate/internal/artifact"
	"github.com/benchgate/benchgate/internal/compare"
	"github.com/benchgate/benchgate/internal/provenance"
	"github.com/benchgate/benchgate/internal/registry"
	"github.com/benchgate/benchgate/internal/report"
	"github.com/benchgate/benchgate/internal/runner"
	"github.com/benchgate/benchgate/internal/suite"
	"github.com/benchgate/benchgate/pkg/types"
)

// Exit codes: 0 pass, 1 gate failure, 2 usage/config/IO errors.
const (
	exitGateFail = 1
	exitError    = 2
)

type cliError struct {
	code int
	err  error
}

func (e cliError) Error() string { return e.err.Error() }

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		var ce cliError
		if errors.As(err, &ce) {
			fmt.Fprintln(os.Stderr, ce.err)
			os.Exit(ce.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitError)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "benchgate",
		Short:         "Model benchmark runner and regression gate",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newInitCommand())
	root.AddCommand(newRunCommand())
	root.AddCommand(newCompareCommand())
	root.AddCommand(newGateCommand())
	root.AddCommand(newBaselineCommand())
	return root
}

// statisticalFlags mirror compare.Policy on the command line.
type statisticalFlags struct {
	minEffectSize      float64
	bootstrapResamples int
	confidenceLevel    float64
	bootstrapSeed      int64
	failOnUncertain    bool
}

func addStatisticalFlags(cmd *cobra.Command, f *statisticalFlags) {
	cmd.Flags().Float64Var(&f.minEffectSize, "min-effect-size", 0, "minimum practical effect required before failing")
	cmd.Flags().IntVar(&f.bootstrapResamples, "bootstrap-resamples", 0, "enable statistical gating with this many bootstrap resamples")
	cmd.Flags().Float64Var(&f.confidenceLevel, "confidence-level", 0.95, "confidence level for the bootstrap CI")
	cmd.Flags().Int64Var(&f.bootstrapSeed, "bootstrap-seed", 0, "seed for the bootstrap resampler")
	cmd.Flags().BoolVar(&f.failOnUncertain, "fail-on-uncertain", false, "treat uncertain verdicts as failures")
}

func (f *statisticalFlags) policy() compare.Policy {
	return compare.Policy{
		MinEffectSize:      f.minEffectSize,
		BootstrapResamples: f.bootstrapResamples,
		ConfidenceLevel:    f.confidenceLevel,
		BootstrapSeed:      f.bootstrapSeed,
		FailOnUncertain:    f.failOnUncertain,
	}
}

// provenanceFlags describe the model identity attached to a fresh run.
type provenanceFlags struct {
	modelName    string
	modelVersion string
	extra        string
	disabled     bool
}

func addProvenanceFlags(cmd *cobra.Command, f *provenanceFlags) {
	cmd.Flags().StringVar(&f.modelName, "model-name", "", "model name recorded on the run")
	cmd.Flags().StringVar(&f.modelVersion, "model-version", "", "model version recorded on the run")
	cmd.Flags().StringVar(&f.extra, "provenance-extra", "", "extra provenance as inline JSON or a YAML/JSON file path")
	cmd.Flags().BoolVar(&f.disabled, "no-provenance", false, "disable environment capture")
}

func newRunCommand() *cobra.Command {
	var suitePath, adapterSpec, adapterConfigPath, outPath, markdownPath string
	var failOnErrors bool
	var prov provenanceFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a benchmark suite and write the run artifact",
		RunE: func(_ *cobra.Command, _ []string) error {
			run, err := executeRun(suitePath, adapterSpec, adapterConfigPath, prov)
			if err != nil {
				return err
			}
			if err := artifact.Write(outPath, run); err != nil {
				return err
			}
			fmt.Println(outPath)
			if markdownPath != "" {
				if err := report.WriteMarkdown(markdownPath, report.BuildRunMarkdown(run)); err != nil {
					return err
				}
			}
			if failOnErrors && run.Summary.CaseFailures > 0 {
				return cliError{code: exitGateFail, err: fmt.Errorf("%d case failure(s)", run.Summary.CaseFailures)}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&suitePath, "suite", "", "suite YAML/JSON path")
	cmd.Flags().StringVar(&adapterSpec, "adapter", "golden", "adapter (golden|file|command|registered name)")
	cmd.Flags().StringVar(&adapterConfigPath, "adapter-config", "", "adapter config YAML/JSON path")
	cmd.Flags().StringVar(&outPath, "output", "run.json", "run artifact output path")
	cmd.Flags().StringVar(&markdownPath, "markdown", "", "optional markdown summary path")
	cmd.Flags().BoolVar(&failOnErrors, "fail-on-errors", false, "exit non-zero when any case fails")
	addProvenanceFlags(cmd, &prov)
	cmd.MarkFlagRequired("suite")
	return cmd
}

func newCompareCommand() *cobra.Command {
	var suitePath, baselinePath, candidatePath, registryPath, baselineName string
	var outPath, markdownPath string
	var noFailOnRegression bool
	var stats statisticalFlags

	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare a candidate run against a baseline run",
		RunE: func(_ *cobra.Command, _ []string) error {
			s, err := suite.Load(suitePath)
			if err != nil {
				return err
			}
			baseline, err := resolveBaselineRun(s, baselinePath, registryPath, baselineName)
			if err != nil {
				return err
			}
			candidate, err := artifact.Read(candidatePath)
			if err != nil {
				return err
			}
			if err := artifact.AlignWithSuite(candidate, s); err != nil {
				return fmt.Errorf("candidate run: %w", err)
			}

			r, err := compare.Run(s, baseline, candidate, stats.policy())
			if err != nil {
				return err
			}
			return emitCompareReport(r, outPath, markdownPath, noFailOnRegression)
		},
	}
	cmd.Flags().StringVar(&suitePath, "suite", "", "suite YAML/JSON path")
	cmd.Flags().StringVar(&baselinePath, "baseline", "", "baseline run artifact path")
	cmd.Flags().StringVar(&candidatePath, "candidate", "", "candidate run artifact path")
	cmd.Flags().StringVar(&registryPath, "registry", "", "baseline registry path (with --baseline-name)")
	cmd.Flags().StringVar(&baselineName, "baseline-name", "", "named baseline to resolve from the registry")
	cmd.Flags().StringVar(&outPath, "output", "compare.json", "comparison report output path")
	cmd.Flags().StringVar(&markdownPath, "markdown", "", "optional markdown report path")
	cmd.Flags().BoolVar(&noFailOnRegression, "no-fail-on-regression", false, "always exit zero, reporting only")
	addStatisticalFlags(cmd, &stats)
	cmd.MarkFlagRequired("suite")
	cmd.MarkFlagRequired("candidate")
	return cmd
}

func newGateCommand() *cobra.Command {
	var suitePath, adapterSpec, adapterConfigPath string
	var baselinePath, registryPath, baselineName string
	var candidateOutPath, outPath, markdownPath string
	var noFailOnRegression bool
	var stats statisticalFlags
	var prov provenanceFlags

	cmd := &cobra.Command{
		Use:   "gate",
		Short: "Run the suite and gate the fresh run against a baseline",
		RunE: func(_ *cobra.Command, _ []string) error {
			s, err := suite.Load(suitePath)
			if err != nil {
				return err
			}
			candidate, err := executeRun(suitePath, adapterSpec, adapterConfigPath, prov)
			if err != nil {
				return err
			}
			if err := artifact.Write(candidateOutPath, candidate); err != nil {
				return err
			}
			baseline, err := resolveBaselineRun(s, baselinePath, registryPath, baselineName)
			if err != nil {
				return err
			}

			r, err := compare.Run(s, baseline, candidate, stats.policy())
			if err != nil {
				return err
			}
			return emitCompareReport(r, outPath, markdownPath, noFailOnRegression)
		},
	}
	cmd.Flags().StringVar(&suitePath, "suite", "", "suite YAML/JSON path")
	cmd.Flags().StringVar(&adapterSpec, "adapter", "golden", "adapter (golden|file|command|registered name)")
	cmd.Flags().StringVar(&adapterConfigPath, "adapter-config", "", "adapter config YAML/JSON path")
	cmd.Flags().StringVar(&baselinePath, "baseline", "", "baseline run artifact path")
	cmd.Flags().StringVar(&registryPath, "registry", "", "baseline registry path (with --baseline-name)")
	cmd.Flags().StringVar(&baselineName, "baseline-name", "", "named baseline to resolve from the registry")
	cmd.Flags().StringVar(&candidateOutPath, "candidate-output", "candidate_run.json", "fresh run artifact output path")
	cmd.Flags().StringVar(&outPath, "output", "compare.json", "comparison report output path")
	cmd.Flags().StringVar(&markdownPath, "markdown", "", "optional markdown report path")
	cmd.Flags().BoolVar(&noFailOnRegression, "no-fail-on-regression", false, "always exit zero, reporting only")
	addStatisticalFlags(cmd, &stats)
	addProvenanceFlags(cmd, &prov)
	cmd.MarkFlagRequired("suite")
	return cmd
}

func newBaselineCommand() *cobra.Command {
	baselineCmd := &cobra.Command{Use: "baseline", Short: "Manage promoted baselines"}
	baselineCmd.AddCommand(newBaselinePromoteCommand())
	baselineCmd.AddCommand(newBaselineListCommand())
	baselineCmd.AddCommand(newBaselineResolveCommand())
	return baselineCmd
}

func newBaselinePromoteCommand() *cobra.Command {
	var suitePath, registryPath, name, candidatePath, notes, outPath string
	var allowRegression bool
	var stats statisticalFlags

	cmd := &cobra.Command{
		Use:   "promote",
		Short: "Promote a candidate run as a named baseline",
		RunE: func(_ *cobra.Command, _ []string) error {
			s, err := suite.Load(suitePath)
			if err != nil {
				return err
			}
			candidate, err := artifact.Read(candidatePath)
			if err != nil {
				return err
			}

			record, err := registry.Promote(registryPath, s, name, candidate, stats.policy(), registry.PromoteOptions{
				Notes:           notes,
				AllowRegression: allowRegression,
			})
			var blocked *registry.RegressionBlockedError
			if errors.As(err, &blocked) {
				if outPath != "" {
					if werr := report.WriteJSON(outPath, blocked.Report); werr != nil {
						return werr
					}
				}
				return cliError{code: exitGateFail, err: blocked}
			}
			if err != nil {
				return err
			}

			if outPath != "" {
				if err := report.WriteJSON(outPath, record); err != nil {
					return err
				}
			}
			fmt.Printf("promoted %s:%s (run %s)\n", record.SuiteName, record.BaselineName, record.Run.RunID)
			return nil
		},
	}
	cmd.Flags().StringVar(&suitePath, "suite", "", "suite YAML/JSON path")
	cmd.Flags().StringVar(&registryPath, "registry", "registry.json", "baseline registry path")
	cmd.Flags().StringVar(&name, "name", "", "baseline name")
	cmd.Flags().StringVar(&candidatePath, "candidate", "", "candidate run artifact path")
	cmd.Flags().StringVar(&notes, "notes", "", "free-form promotion notes")
	cmd.Flags().StringVar(&outPath, "output", "", "optional JSON output (record, or blocking report)")
	cmd.Flags().BoolVar(&allowRegression, "allow-regression", false, "promote even when the gate blocks")
	addStatisticalFlags(cmd, &stats)
	cmd.MarkFlagRequired("suite")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("candidate")
	return cmd
}

func newBaselineListCommand() *cobra.Command {
	var registryPath, suiteName, outPath string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List promoted baselines",
		RunE: func(_ *cobra.Command, _ []string) error {
			reg, err := registry.Load(registryPath)
			if err != nil {
				return err
			}
			rows := reg.List(suiteName)
			if outPath != "" {
				return report.WriteJSON(outPath, map[string]any{"rows": rows})
			}
			for _, row := range rows {
				fmt.Printf("%s:%s suite_version=%s run=%s promoted_at=%s promotions=%d\n",
					row.SuiteName, row.BaselineName, row.SuiteVersion, row.RunID, row.PromotedAt, row.Promotions)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&registryPath, "registry", "registry.json", "baseline registry path")
	cmd.Flags().StringVar(&suiteName, "suite-name", "", "filter by suite name")
	cmd.Flags().StringVar(&outPath, "output", "", "optional JSON output path")
	return cmd
}

func newBaselineResolveCommand() *cobra.Command {
	var suitePath, registryPath, name, outPath string

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Extract a promoted baseline's run artifact",
		RunE: func(_ *cobra.Command, _ []string) error {
			s, err := suite.Load(suitePath)
			if err != nil {
				return err
			}
			reg, err := registry.Load(registryPath)
			if err != nil {
				return err
			}
			record, err := reg.Resolve(s.Name, name)
			if err != nil {
				return err
			}
			if err := artifact.Write(outPath, record.Run); err != nil {
				return err
			}
			fmt.Println(outPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&suitePath, "suite", "", "suite YAML/JSON path")
	cmd.Flags().StringVar(&registryPath, "registry", "registry.json", "baseline registry path")
	cmd.Flags().StringVar(&name, "name", "", "baseline name")
	cmd.Flags().StringVar(&outPath, "output", "baseline_run.json", "run artifact output path")
	cmd.MarkFlagRequired("suite")
	cmd.MarkFlagRequired("name")
	return cmd
}

func newInitCommand() *cobra.Command {
	var dir, name string
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Scaffold a starter suite, golden baseline, and adapter examples",
		RunE: func(_ *cobra.Command, _ []string) error {
			return scaffold(dir, name, force)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", ".", "target directory")
	cmd.Flags().StringVar(&name, "name", "starter-suite", "suite name")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing scaffold files")
	return cmd
}

func scaffold(dir, name string, force bool) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	files := map[string]string{
		"suite.yaml":                  fmt.Sprintf(starterSuiteYAML, name),
		"candidate_predictions.json":  starterPredictionsJSON,
		"command_adapter_config.yaml": starterCommandConfigYAML,
		"adapter_command.sh":          starterCommandScript,
	}

	if !force {
		existing := []string{}
		for fname := range files {
			if fileExists(filepath.Join(dir, fname)) {
				existing = append(existing, fname)
			}
		}
		if fileExists(filepath.Join(dir, "baseline.json")) {
			existing = append(existing, "baseline.json")
		}
		if len(existing) > 0 {
			return fmt.Errorf("target directory already contains %v, use --force to overwrite", existing)
		}
	}

	for fname, content := range files {
		mode := os.FileMode(0o644)
		if filepath.Ext(fname) == ".sh" {
			mode = 0o755
		}
		if err := os.WriteFile(filepath.Join(dir, fname), []byte(content), mode); err != nil {
			return err
		}
	}

	s, err := suite.Load(filepath.Join(dir, "suite.yaml"))
	if err != nil {
		return err
	}
	baseline := runner.Run(s, &adapter.Golden{}, runner.Options{})
	if err := artifact.Write(filepath.Join(dir, "baseline.json"), baseline); err != nil {
		return err
	}
	fmt.Printf("initialized starter suite in %s\n", dir)
	return nil
}

func executeRun(suitePath, adapterSpec, adapterConfigPath string, prov provenanceFlags) (types.Run, error) {
	s, err := suite.Load(suitePath)
	if err != nil {
		return types.Run{}, err
	}
	adapterConfig, err := loadOptionalMapping(adapterConfigPath)
	if err != nil {
		return types.Run{}, err
	}
	a, err := adapter.Load(adapterSpec, adapterConfig)
	if err != nil {
		return types.Run{}, err
	}

	model := types.Model{Name: prov.modelName, Version: prov.modelVersion}
	opts := runner.Options{Model: model}
	if !prov.disabled {
		extra, err := loadInlineOrFileMapping(prov.extra)
		if err != nil {
			return types.Run{}, err
		}
		opts.Provenance = provenance.Collect(provenance.Options{
			Model:         model,
			AdapterName:   a.Name(),
			AdapterSpec:   adapterSpec,
			AdapterConfig: adapterConfig,
			SuitePath:     suitePath,
			Extra:         extra,
		})
	}
	return runner.Run(s, a, opts), nil
}

func resolveBaselineRun(s types.Suite, baselinePath, registryPath, baselineName string) (types.Run, error) {
	if baselinePath != "" {
		run, err := artifact.Read(baselinePath)
		if err != nil {
			return types.Run{}, err
		}
		if err := artifact.AlignWithSuite(run, s); err != nil {
			return types.Run{}, fmt.Errorf("baseline run: %w", err)
		}
		return run, nil
	}
	if registryPath != "" && baselineName != "" {
		reg, err := registry.Load(registryPath)
		if err != nil {
			return types.Run{}, err
		}
		record, err := reg.Resolve(s.Name, baselineName)
		if err != nil {
			return types.Run{}, err
		}
		return record.Run, nil
	}
	return types.Run{}, fmt.Errorf("provide --baseline, or --registry with --baseline-name")
}

func emitCompareReport(r compare.Report, outPath, markdownPath string, noFailOnRegression bool) error {
	if err := report.WriteJSON(outPath, r); err != nil {
		return err
	}
	fmt.Println(outPath)
	if markdownPath != "" {
		if err := report.WriteMarkdown(markdownPath, report.BuildCompareMarkdown(r)); err != nil {
			return err
		}
	}
	if noFailOnRegression || r.Summary.Passed {
		return nil
	}
	return cliError{code: exitGateFail, err: fmt.Errorf("gate verdict %s (%d regression(s), %d uncertain)",
		r.Verdict, r.Summary.Regressions, r.Summary.Uncertain)}
}

// loadOptionalMapping reads a YAML or JSON mapping file; an empty path is an
// empty map.
func loadOptionalMapping(path string) (map[string]any, error) {
	if path == "" {
		return map[string]any{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse mapping %s: %w", path, err)
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}

// loadInlineOrFileMapping accepts either inline JSON or a path to a mapping
// file.
func loadInlineOrFileMapping(value string) (map[string]any, error) {
	if value == "" {
		return nil, nil
	}
	if fileExists(value) {
		return loadOptionalMapping(value)
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(value), &m); err != nil {
		return nil, fmt.Errorf("parse inline mapping: %w", err)
	}
	return m, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

const starterSuiteYAML = `name: %s
version: 1.0.0
description: Starter suite for model benchmarking and regression gates.
tasks:
  - id: affinity_mae
    metric: mae
    prediction_key: affinity
    regression_tolerance: 0.05
    weight: 2.0
    cases:
      - id: kras_mrtx1133
        input:
          target: KRAS
          ligand: MRTX1133
        expected:
          affinity: -9.3
      - id: egfr_osimertinib
        input:
          target: EGFR
          ligand: Osimertinib
        expected:
          affinity: -8.7
  - id: admet_toxicity_accuracy
    metric: accuracy
    prediction_key: toxic
    regression_tolerance: 0.02
    cases:
      - id: case_1
        input:
          smiles: CCO
        expected:
          toxic: 0
      - id: case_2
        input:
          smiles: CC(=O)O
        expected:
          toxic: 0
      - id: case_3
        input:
          smiles: "N#CCN"
        expected:
          toxic: 1
`

const starterPredictionsJSON = `{
  "affinity_mae": {
    "kras_mrtx1133": {"affinity": -9.15},
    "egfr_osimertinib": {"affinity": -8.5}
  },
  "admet_toxicity_accuracy": {
    "case_1": {"toxic": 0},
    "case_2": {"toxic": 1},
    "case_3": {"toxic": 1}
  }
}
`

const starterCommandConfigYAML = `command:
  - ./adapter_command.sh
timeout_seconds: 30
`

const starterCommandScript = `#!/bin/sh
# Reads one JSON request per case on stdin and answers with a prediction
# object on stdout. Replace the canned values with calls into your model
# runtime.
read -r request
case "$request" in
  *'"prediction_key":"affinity"'*) echo '{"affinity": -8.0}' ;;
  *'"prediction_key":"toxic"'*) echo '{"toxic": 0}' ;;
  *) echo '{}' ;;
esac
`
