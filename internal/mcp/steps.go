package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deixis/steprun/internal/config"
	"github.com/deixis/steprun/internal/report"
	"github.com/deixis/steprun/internal/runner"
	"github.com/deixis/steprun/internal/workflow"
)

// outputTail bounds the stream excerpts in step_run and step_exec results.
const outputTail = 30

type listParams struct{}

func (h *handler) listHandler(ctx context.Context, req *mcp.CallToolRequest, _ listParams) (*mcp.CallToolResult, any, error) {
	e := h.current()
	if e.Config == nil || len(e.Config.Steps) == 0 {
		return textResult(fmt.Sprintf("No steps configured. Add a steps list to %s in %s.", config.FileName, e.RepoRoot))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Steps (%d):\n", len(e.Config.Steps))
	for _, s := range e.Config.Steps {
		fmt.Fprintf(&b, "  %s: %s", s.Name, strings.Join(s.Run, " "))
		if s.Dir != "" {
			fmt.Fprintf(&b, " (in %s)", s.Dir)
		}
		fmt.Fprintln(&b)
	}
	return textResult(b.String())
}

type runParams struct {
	Steps     []string `json:"steps,omitempty" jsonschema:"names of the steps to run, in any order; defaults to every configured step"`
	KeepGoing bool     `json:"keep_going,omitempty" jsonschema:"run every step instead of stopping at the first failure"`
}

func (h *handler) runHandler(ctx context.Context, req *mcp.CallToolRequest, params runParams) (*mcp.CallToolResult, any, error) {
	rr, err := h.current().Run(ctx, params.Steps, workflow.RunOptions{KeepGoing: params.KeepGoing})
	if err != nil {
		return errorResult(fmt.Sprintf("run failed: %v", err))
	}
	return textResult(formatRun(rr))
}

type execParams struct {
	Program          string            `json:"program" jsonschema:"program to execute, looked up in PATH when it has no path separator"`
	Args             []string          `json:"args,omitempty" jsonschema:"arguments, passed as-is without shell interpretation"`
	Dir              string            `json:"dir,omitempty" jsonschema:"working directory, relative to the workspace"`
	Env              map[string]string `json:"env,omitempty" jsonschema:"environment variables overlaid on the inherited environment"`
	Input            string            `json:"input,omitempty" jsonschema:"text written to the program's stdin"`
	FailOnStderr     bool              `json:"fail_on_stderr,omitempty" jsonschema:"fail if anything is written to stderr"`
	IgnoreReturnCode bool              `json:"ignore_return_code,omitempty" jsonschema:"do not fail on a non-zero exit code"`
	DrainGrace       string            `json:"drain_grace,omitempty" jsonschema:"how long to wait for output after the program exits, as a Go duration (e.g. 2s); defaults to 10s"`
}

func (h *handler) execHandler(ctx context.Context, req *mcp.CallToolRequest, params execParams) (*mcp.CallToolResult, any, error) {
	opts := runner.Options{
		Dir:              params.Dir,
		Env:              params.Env,
		Silent:           true,
		FailOnStdErr:     params.FailOnStderr,
		IgnoreReturnCode: params.IgnoreReturnCode,
	}
	if params.Input != "" {
		opts.Input = []byte(params.Input)
	}
	if params.DrainGrace != "" {
		d, err := time.ParseDuration(params.DrainGrace)
		if err != nil {
			return errorResult(fmt.Sprintf("invalid drain_grace %q: %v", params.DrainGrace, err))
		}
		opts.DrainGrace = d
	}

	rr, err := h.current().Exec(ctx, runner.Command{Program: params.Program, Args: params.Args}, opts)
	if err != nil {
		return errorResult(err.Error())
	}
	return textResult(formatRun(rr))
}

// formatRun renders a run with an excerpt of each step's output.
func formatRun(rr *report.RunResult) string {
	var b strings.Builder

	status := "PASS"
	if !rr.Passed() {
		status = "FAIL"
	}
	fmt.Fprintf(&b, "Status: %s\n", status)
	fmt.Fprintf(&b, "Run: %s\n", rr.ID)
	fmt.Fprintln(&b)

	for _, s := range rr.Steps {
		fmt.Fprintf(&b, "%s: %s", s.Name, s.Status)
		if s.Status != report.StatusSkipped {
			fmt.Fprintf(&b, " (exit %d, %dms)", s.ExitCode, s.DurationMS)
		}
		fmt.Fprintln(&b)
		if s.Message != "" {
			fmt.Fprintf(&b, "  %s\n", s.Message)
		}
		if s.Truncated {
			fmt.Fprintln(&b, "  output truncated: a child process kept the streams open")
		}
		writeExcerpt(&b, "stdout", s.Stdout)
		writeExcerpt(&b, "stderr", s.Stderr)
	}

	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "Inspect with step_inspect(run_id=%q, step=\"<name>\", stream=\"stdout|stderr\").\n", rr.ID)
	return b.String()
}

func writeExcerpt(b *strings.Builder, stream, text string) {
	if text == "" {
		return
	}
	tail := report.Tail(text, outputTail)
	if tail != text {
		fmt.Fprintf(b, "  %s (last %d lines):\n", stream, outputTail)
	} else {
		fmt.Fprintf(b, "  %s:\n", stream)
	}
	for _, line := range strings.Split(strings.TrimSuffix(tail, "\n"), "\n") {
		fmt.Fprintf(b, "    %s\n", line)
	}
}
