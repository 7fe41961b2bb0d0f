package provenance

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"github.com/benchgate/benchgate/pkg/types"
)

// Options describe the evaluation context being captured.
type Options struct {
	Model         types.Model
	AdapterName   string
	AdapterSpec   string
	AdapterConfig map[string]any
	SuitePath     string
	WorkDir       string
	Extra         map[string]any
}

// Collect gathers the environment snapshot stored on a run artifact. The
// result is opaque to the comparator; it exists so a run can be audited
// later. Collection never fails: unavailable sources report themselves as
// unavailable.
func Collect(opts Options) map[string]any {
	workDir := opts.WorkDir
	if workDir == "" {
		workDir, _ = os.Getwd()
	}

	p := map[string]any{
		"captured_at": time.Now().UTC().Format(time.RFC3339),
		"runtime":     runtimeInfo(),
		"git":         gitInfo(workDir),
		"model": map[string]any{
			"name":           opts.Model.Name,
			"version":        opts.Model.Version,
			"adapter_name":   opts.AdapterName,
			"adapter_spec":   opts.AdapterSpec,
			"adapter_config": orEmpty(opts.AdapterConfig),
		},
		"dependencies": dependencyVersions(),
		"extra":        orEmpty(opts.Extra),
	}

	if opts.SuitePath != "" {
		if digest, err := digestFile(opts.SuitePath); err == nil {
			p["suite_digest"] = digest
		}
	}
	return p
}

func runtimeInfo() map[string]any {
	hostname, _ := os.Hostname()
	return map[string]any{
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"hostname":   hostname,
		"cpu_count":  runtime.NumCPU(),
	}
}

func gitInfo(workDir string) map[string]any {
	head, err := runGit(workDir, "rev-parse", "HEAD")
	if err != nil {
		return map[string]any{"available": false}
	}
	root, _ := runGit(workDir, "rev-parse", "--show-toplevel")
	status, _ := runGit(workDir, "status", "--porcelain")
	return map[string]any{
		"available": true,
		"commit":    head,
		"root":      root,
		"dirty":     status != "",
	}
}

func runGit(workDir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = workDir
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// dependencyVersions reads the module versions compiled into the binary.
// Test binaries built outside a main module report nothing useful; the map
// is simply empty then.
func dependencyVersions() map[string]string {
	versions := map[string]string{}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return versions
	}
	if info.Main.Path != "" {
		versions[info.Main.Path] = info.Main.Version
	}
	for _, dep := range info.Deps {
		versions[dep.Path] = dep.Version
	}
	return versions
}

func digestFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash file %s: %w", path, err)
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil)), nil
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
