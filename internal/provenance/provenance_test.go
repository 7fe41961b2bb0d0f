package provenance

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/benchgate/benchgate/pkg/types"
)

func TestCollect_Shape(t *testing.T) {
	p := Collect(Options{
		Model:       types.Model{Name: "scorer", Version: "2.1"},
		AdapterName: "command",
		AdapterSpec: "command",
		Extra:       map[string]any{"ticket": "EV-12"},
	})

	for _, key := range []string{"captured_at", "runtime", "git", "model", "dependencies", "extra"} {
		if _, ok := p[key]; !ok {
			t.Errorf("missing key %q", key)
		}
	}
	rt := p["runtime"].(map[string]any)
	if rt["go_version"] == "" || rt["os"] == "" {
		t.Errorf("runtime info incomplete: %v", rt)
	}
	model := p["model"].(map[string]any)
	if model["name"] != "scorer" || model["adapter_name"] != "command" {
		t.Errorf("model info wrong: %v", model)
	}
	if model["adapter_config"] == nil {
		t.Error("absent adapter config must collapse to an empty map")
	}
	if p["extra"].(map[string]any)["ticket"] != "EV-12" {
		t.Errorf("extra not carried: %v", p["extra"])
	}
}

func TestCollect_GitUnavailableOutsideRepo(t *testing.T) {
	p := Collect(Options{WorkDir: t.TempDir()})
	git := p["git"].(map[string]any)
	if git["available"] != false {
		t.Errorf("git info in a bare directory = %v, want available=false", git)
	}
	if _, ok := git["commit"]; ok {
		t.Error("unavailable git must not carry a commit")
	}
}

func TestCollect_SuiteDigest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "suite.yaml")
	if err := os.WriteFile(path, []byte("name: s\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := Collect(Options{SuitePath: path})
	digest, ok := p["suite_digest"].(string)
	if !ok || !strings.HasPrefix(digest, "sha256:") {
		t.Fatalf("suite digest = %v", p["suite_digest"])
	}
	if len(digest) != len("sha256:")+64 {
		t.Errorf("digest length wrong: %q", digest)
	}

	p = Collect(Options{SuitePath: filepath.Join(t.TempDir(), "missing.yaml")})
	if _, ok := p["suite_digest"]; ok {
		t.Error("unreadable suite file must not produce a digest")
	}
}
