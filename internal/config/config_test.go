package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad_FromRepoRoot(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "go.mod"), "module example.com/test\n")
	writeFile(t, filepath.Join(dir, FileName), "version: 1\ntimeout: 10m\n")

	res, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.RepoRoot != dir {
		t.Errorf("RepoRoot = %q, want %q", res.RepoRoot, dir)
	}
	if res.Config.Version != 1 {
		t.Errorf("Config.Version = %d, want 1", res.Config.Version)
	}
	if got := res.Config.Timeout(); got != 10*time.Minute {
		t.Errorf("Timeout() = %v, want 10m", got)
	}
}

func TestLoad_FromSubdirectoryOfGitRepo(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(root, FileName), "version: 2\n")

	sub := filepath.Join(root, "pkg", "foo")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	res, err := Load(sub)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.RepoRoot != root {
		t.Errorf("RepoRoot = %q, want %q", res.RepoRoot, root)
	}
	if res.Config.Version != 2 {
		t.Errorf("Config.Version = %d, want 2", res.Config.Version)
	}
}

func TestLoad_NoMarker(t *testing.T) {
	dir := t.TempDir()

	res, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.RepoRoot != dir {
		t.Errorf("RepoRoot = %q, want %q (fallback to workspace)", res.RepoRoot, dir)
	}
	if len(res.Config.Steps) != 0 {
		t.Errorf("expected default config, got %d steps", len(res.Config.Steps))
	}
}

func TestLoad_Invalid(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "go.mod"), "module example.com/test\n")
	writeFile(t, filepath.Join(dir, FileName), "steps:\n  - name: build\n")

	_, err := Load(dir)
	if err == nil {
		t.Fatal("expected an error for a step without run")
	}
	if !strings.Contains(err.Error(), "steps[0].run") {
		t.Errorf("error = %q, want it to name steps[0].run", err)
	}
}

func TestParse_Validation(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string // substring of the error; empty means valid
	}{
		{"empty", "", ""},
		{"minimal step", "steps:\n  - name: a\n    run: [echo]\n", ""},
		{"missing name", "steps:\n  - run: [echo]\n", "steps[0].name: is required"},
		{"duplicate names", "steps:\n  - {name: a, run: [echo]}\n  - {name: a, run: [true]}\n", "unique"},
		{"bad timeout", "timeout: soon\n", `timeout: "soon" is not a positive duration`},
		{"bad step grace", "steps:\n  - {name: a, run: [echo], drain_grace: -1s}\n", "steps[0].drain_grace"},
		{"bad log level", "log: {level: loud}\n", "log.level: must be one of"},
		{"bad log format", "log: {format: xml}\n", "log.format"},
		{"not yaml", "steps: [", "parsing .steprun"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			if tt.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error = %v, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestDefaults(t *testing.T) {
	c := &Config{}
	if c.Timeout() != DefaultTimeout {
		t.Errorf("Timeout() = %v, want %v", c.Timeout(), DefaultTimeout)
	}
	if c.DrainGrace() != DefaultDrainGrace {
		t.Errorf("DrainGrace() = %v, want %v", c.DrainGrace(), DefaultDrainGrace)
	}
}

func TestResolve(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".env"), "FROM_FILE=file\nSHARED=file\n")

	cfg, err := Parse([]byte(`
drain_grace: 3s
defaults:
  fail_on_stderr: true
  env: {SHARED: defaults, DEFAULT_ONLY: d}
steps:
  - name: build
    run: [go, build, ./...]
    dir: sub
    env_file: .env
    env: {SHARED: step}
    input: payload
    fail_on_stderr: false
  - name: vet
    run: [go, vet]
    drain_grace: 500ms
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	build, ok := cfg.Step("build")
	if !ok {
		t.Fatal("step build not found")
	}
	r, err := cfg.Resolve(build, root)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := &Resolved{
		Name:    "build",
		Program: "go",
		Args:    []string{"build", "./..."},
		Dir:     "sub",
		Env: map[string]string{
			"FROM_FILE":    "file",
			"SHARED":       "step",
			"DEFAULT_ONLY": "d",
		},
		Input:        []byte("payload"),
		FailOnStdErr: false,
		DrainGrace:   3 * time.Second,
	}
	if diff := cmp.Diff(want, r); diff != "" {
		t.Errorf("Resolve(build) mismatch (-want +got):\n%s", diff)
	}

	vet, _ := cfg.Step("vet")
	r, err = cfg.Resolve(vet, root)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !r.FailOnStdErr {
		t.Error("vet should inherit fail_on_stderr from defaults")
	}
	if r.DrainGrace != 500*time.Millisecond {
		t.Errorf("DrainGrace = %v, want 500ms", r.DrainGrace)
	}
	if r.Input != nil {
		t.Errorf("Input = %q, want nil", r.Input)
	}

	if diff := cmp.Diff([]string{"build", "vet"}, cfg.StepNames()); diff != "" {
		t.Errorf("StepNames mismatch (-want +got):\n%s", diff)
	}
	if _, ok := cfg.Step("missing"); ok {
		t.Error("Step(missing) reported found")
	}
}

func TestResolve_MissingEnvFile(t *testing.T) {
	cfg := &Config{}
	_, err := cfg.Resolve(&Step{Name: "x", Run: []string{"true"}, EnvFile: "nope.env"}, t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "env file") {
		t.Fatalf("err = %v, want an env file error", err)
	}
}
