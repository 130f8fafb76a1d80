package mcp

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/deixis/steprun/internal/config"
	"github.com/deixis/steprun/internal/metrics"
	"github.com/deixis/steprun/internal/report"
	"github.com/deixis/steprun/internal/runner"
)

// setup creates a full steprun MCP server + client over in-memory transports.
func setup(t *testing.T, cfg *config.Config, opts ...ServerOption) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()

	if cfg == nil {
		cfg = &config.Config{}
	}
	workspace := t.TempDir()
	store := report.NewLRUStore(5, report.NewDiskStore(t.TempDir()))
	r := &runner.Runner{
		Workspace: workspace,
		Timeout:   30 * time.Second,
	}

	server := NewServer(cfg, r, store, workspace, opts...)

	ct, st := mcp.NewInMemoryTransports()
	ss, err := server.Connect(ctx, st, nil)
	if err != nil {
		t.Fatalf("server.Connect: %v", err)
	}

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, ct, nil)
	if err != nil {
		t.Fatalf("client.Connect: %v", err)
	}

	t.Cleanup(func() {
		_ = cs.Close()
		_ = ss.Wait()
	})

	return cs
}

func callTool(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	return res
}

func resultText(r *mcp.CallToolResult) string {
	var parts []string
	for _, c := range r.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// runID extracts the ID from the "Run: <id>" line.
func runID(t *testing.T, text string) string {
	t.Helper()
	for _, line := range strings.Split(text, "\n") {
		if id, ok := strings.CutPrefix(line, "Run: "); ok {
			return id
		}
	}
	t.Fatalf("no Run ID found in output:\n%s", text)
	return ""
}

func stepsConfig() *config.Config {
	return &config.Config{Steps: []config.Step{
		{Name: "greet", Run: []string{"sh", "-c", "echo hello; echo world"}},
		{Name: "broken", Run: []string{"sh", "-c", "echo oops >&2; exit 3"}},
		{Name: "after", Run: []string{"true"}},
	}}
}

// --- step_list ---

func TestStepList(t *testing.T) {
	cs := setup(t, stepsConfig())
	res := callTool(t, cs, "step_list", nil)
	text := resultText(res)
	if res.IsError {
		t.Fatalf("unexpected error: %s", text)
	}
	for _, want := range []string{"Steps (3):", "greet: sh -c echo hello; echo world", "after: true"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in output, got:\n%s", want, text)
		}
	}
}

func TestStepList_NoSteps(t *testing.T) {
	cs := setup(t, nil)
	text := resultText(callTool(t, cs, "step_list", nil))
	if !strings.Contains(text, "No steps configured") {
		t.Errorf("expected no-steps message, got:\n%s", text)
	}
}

// --- step_run ---

func TestStepRun_StopsOnFailure(t *testing.T) {
	cs := setup(t, stepsConfig())
	res := callTool(t, cs, "step_run", nil)
	text := resultText(res)
	if res.IsError {
		t.Fatalf("a failing step is not a tool error: %s", text)
	}
	for _, want := range []string{"Status: FAIL", "greet: pass", "broken: fail (exit 3", "after: skipped", "oops", "step_inspect"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in output, got:\n%s", want, text)
		}
	}
}

func TestStepRun_KeepGoing(t *testing.T) {
	cs := setup(t, stepsConfig())
	text := resultText(callTool(t, cs, "step_run", map[string]any{"keep_going": true}))
	if !strings.Contains(text, "after: pass") {
		t.Errorf("expected after to run, got:\n%s", text)
	}
}

func TestStepRun_Selected(t *testing.T) {
	cs := setup(t, stepsConfig())
	text := resultText(callTool(t, cs, "step_run", map[string]any{"steps": []string{"greet"}}))
	if !strings.Contains(text, "Status: PASS") {
		t.Errorf("expected Status: PASS, got:\n%s", text)
	}
	if strings.Contains(text, "broken") {
		t.Errorf("unselected step in output:\n%s", text)
	}
}

func TestStepRun_UnknownStep(t *testing.T) {
	cs := setup(t, stepsConfig())
	res := callTool(t, cs, "step_run", map[string]any{"steps": []string{"deploy"}})
	if !res.IsError {
		t.Fatal("expected IsError for unknown step")
	}
	if text := resultText(res); !strings.Contains(text, "deploy") {
		t.Errorf("expected step name in error, got:\n%s", text)
	}
}

// --- step_exec ---

func TestStepExec(t *testing.T) {
	m := metrics.NewRecorder()
	cs := setup(t, nil, WithMetrics(m))
	res := callTool(t, cs, "step_exec", map[string]any{
		"program": "sh",
		"args":    []string{"-c", `printf '%s\n' "$GREETING"; cat`},
		"env":     map[string]string{"GREETING": "hi"},
		"input":   "from stdin\n",
	})
	text := resultText(res)
	if res.IsError {
		t.Fatalf("unexpected error: %s", text)
	}
	for _, want := range []string{"Status: PASS", "sh: pass (exit 0", "hi", "from stdin"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in output, got:\n%s", want, text)
		}
	}
	if n := testutil.CollectAndCount(m, "steprun_executions_started_total"); n != 1 {
		t.Errorf("started series = %d, want 1", n)
	}
}

func TestStepExec_NonZeroExit(t *testing.T) {
	cs := setup(t, nil)
	text := resultText(callTool(t, cs, "step_exec", map[string]any{
		"program": "sh",
		"args":    []string{"-c", "exit 2"},
	}))
	if !strings.Contains(text, "Status: FAIL") || !strings.Contains(text, "exit code 2") {
		t.Errorf("expected exit code failure, got:\n%s", text)
	}

	text = resultText(callTool(t, cs, "step_exec", map[string]any{
		"program":            "sh",
		"args":               []string{"-c", "exit 2"},
		"ignore_return_code": true,
	}))
	if !strings.Contains(text, "Status: PASS") {
		t.Errorf("expected ignored exit code to pass, got:\n%s", text)
	}
}

func TestStepExec_FailOnStderr(t *testing.T) {
	cs := setup(t, nil)
	text := resultText(callTool(t, cs, "step_exec", map[string]any{
		"program":        "sh",
		"args":           []string{"-c", "echo warn >&2"},
		"fail_on_stderr": true,
	}))
	if !strings.Contains(text, "Status: FAIL") || !strings.Contains(text, "warn") {
		t.Errorf("expected stderr failure, got:\n%s", text)
	}
}

func TestStepExec_NotFound(t *testing.T) {
	cs := setup(t, nil)
	text := resultText(callTool(t, cs, "step_exec", map[string]any{
		"program": "steprun-no-such-program",
	}))
	if !strings.Contains(text, "unavailable") {
		t.Errorf("expected unavailable status, got:\n%s", text)
	}
}

func TestStepExec_InvalidParams(t *testing.T) {
	cs := setup(t, nil)
	for name, args := range map[string]map[string]any{
		"empty program":   {"program": ""},
		"bad drain grace": {"program": "true", "drain_grace": "soon"},
	} {
		t.Run(name, func(t *testing.T) {
			if res := callTool(t, cs, "step_exec", args); !res.IsError {
				t.Errorf("expected IsError, got:\n%s", resultText(res))
			}
		})
	}
}

func TestStepExec_DirOutsideWorkspace(t *testing.T) {
	cs := setup(t, nil)
	text := resultText(callTool(t, cs, "step_exec", map[string]any{"program": "true", "dir": "../"}))
	if !strings.Contains(text, "true: error") {
		t.Errorf("expected error status, got:\n%s", text)
	}
	if !strings.Contains(text, "outside workspace") {
		t.Errorf("expected workspace error, got:\n%s", text)
	}
}

func TestStepExec_MissingProgram(t *testing.T) {
	cs := setup(t, nil)
	_, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "step_exec",
		Arguments: map[string]any{"args": []string{"x"}},
	})
	if err == nil {
		t.Error("expected error for missing program")
	}
}

// --- step_inspect ---

func TestStepInspect_MissingRunID(t *testing.T) {
	cs := setup(t, nil)
	_, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "step_inspect",
		Arguments: map[string]any{"step": "greet"},
	})
	if err == nil {
		t.Error("expected error for missing run_id")
	}
}

func TestStepInspect_InvalidRunID(t *testing.T) {
	cs := setup(t, nil)
	res := callTool(t, cs, "step_inspect", map[string]any{"run_id": "nonexistent-id"})
	if !res.IsError {
		t.Error("expected IsError for invalid run_id")
	}
	if text := resultText(res); !strings.Contains(text, "Run nonexistent-id not found") {
		t.Errorf("expected not found message, got:\n%s", text)
	}
}

func TestStepInspect_AfterRun(t *testing.T) {
	cs := setup(t, stepsConfig())
	id := runID(t, resultText(callTool(t, cs, "step_run", nil)))

	// Defaults to the failed step.
	res := callTool(t, cs, "step_inspect", map[string]any{"run_id": id, "stream": "stderr"})
	text := resultText(res)
	if res.IsError {
		t.Fatalf("unexpected error from step_inspect: %s", text)
	}
	for _, want := range []string{"Run: " + id + " (run)", "Step: broken: fail, exit 3", "stderr:\noops\n"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in output, got:\n%s", want, text)
		}
	}

	text = resultText(callTool(t, cs, "step_inspect", map[string]any{"run_id": id, "step": "greet", "tail": 1}))
	if !strings.Contains(text, "stdout:\nworld\n") || strings.Contains(text, "stdout:\nhello") {
		t.Errorf("expected only the last line, got:\n%s", text)
	}

	text = resultText(callTool(t, cs, "step_inspect", map[string]any{"run_id": id, "step": "greet", "grep": "hel"}))
	if !strings.Contains(text, "(1):\n     1  hello\n") || strings.Contains(text, "2  world") {
		t.Errorf("expected grep match on line 1, got:\n%s", text)
	}

	res = callTool(t, cs, "step_inspect", map[string]any{"run_id": id, "step": "deploy"})
	if !res.IsError {
		t.Errorf("expected IsError for unknown step, got:\n%s", resultText(res))
	}
	res = callTool(t, cs, "step_inspect", map[string]any{"run_id": id, "stream": "stdin"})
	if !res.IsError {
		t.Errorf("expected IsError for unknown stream, got:\n%s", resultText(res))
	}
}

func TestStepInspect_NoOutput(t *testing.T) {
	cs := setup(t, nil)
	id := runID(t, resultText(callTool(t, cs, "step_exec", map[string]any{"program": "true"})))
	text := resultText(callTool(t, cs, "step_inspect", map[string]any{"run_id": id}))
	if !strings.Contains(text, "(no stdout output)") {
		t.Errorf("expected empty output note, got:\n%s", text)
	}
}

func TestStepInspect_Kind(t *testing.T) {
	cs := setup(t, nil)
	id := runID(t, resultText(callTool(t, cs, "step_exec", map[string]any{"program": "true"})))

	if res := callTool(t, cs, "step_inspect", map[string]any{"run_id": id, "kind": "exec"}); res.IsError {
		t.Errorf("unexpected error: %s", resultText(res))
	}
	res := callTool(t, cs, "step_inspect", map[string]any{"run_id": id, "kind": "run"})
	if !res.IsError {
		t.Fatalf("expected IsError for kind mismatch, got:\n%s", resultText(res))
	}
	if text := resultText(res); !strings.Contains(text, "has kind exec, want run") {
		t.Errorf("expected kind mismatch message, got:\n%s", text)
	}
}
