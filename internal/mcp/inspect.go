package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deixis/steprun/internal/report"
)

type inspectParams struct {
	RunID  string `json:"run_id" jsonschema:"the run ID from a step_run or step_exec result"`
	Step   string `json:"step,omitempty" jsonschema:"step name; defaults to the failed step, or the first step when all passed"`
	Stream string `json:"stream,omitempty" jsonschema:"stdout or stderr; defaults to stdout"`
	Tail   int    `json:"tail,omitempty" jsonschema:"only return the last N lines"`
	Grep   string `json:"grep,omitempty" jsonschema:"only return lines containing this substring"`
	Kind   string `json:"kind,omitempty" jsonschema:"exec or run; fails when the run is of the other kind"`
}

func (h *handler) inspectHandler(ctx context.Context, req *mcp.CallToolRequest, params inspectParams) (*mcp.CallToolResult, any, error) {
	if params.RunID == "" {
		return errorResult("run_id is required")
	}

	result, err := h.store.Load(params.RunID)
	if errors.Is(err, report.ErrNotFound) {
		return errorResult(fmt.Sprintf("Run %s not found. Run IDs come from step_run or step_exec results of this server.", params.RunID))
	}
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to load run %s: %v", params.RunID, err))
	}
	if params.Kind != "" {
		if err := result.Expect(report.Kind(params.Kind)); err != nil {
			return errorResult(err.Error())
		}
	}

	step, err := pickStep(result, params.Step)
	if err != nil {
		return errorResult(err.Error())
	}
	if _, err := step.Stream(params.Stream); err != nil {
		return errorResult(err.Error())
	}

	return textResult(formatInspectOutput(result, step, params))
}

// pickStep returns the named step, the failed step, or the first step.
func pickStep(rr *report.RunResult, name string) (*report.StepRecord, error) {
	if name != "" {
		return rr.Step(name)
	}
	if f := rr.Failed(); f != nil {
		return f, nil
	}
	if len(rr.Steps) == 0 {
		return nil, fmt.Errorf("run %s has no steps", rr.ID)
	}
	return &rr.Steps[0], nil
}

func formatInspectOutput(rr *report.RunResult, step *report.StepRecord, params inspectParams) string {
	var b strings.Builder

	stream := params.Stream
	if stream == "" {
		stream = "stdout"
	}
	text, _ := step.Stream(stream)

	fmt.Fprintf(&b, "Run: %s (%s)\n", rr.ID, rr.Kind)
	fmt.Fprintf(&b, "Step: %s: %s, exit %d\n", step.Name, step.Status, step.ExitCode)
	fmt.Fprintf(&b, "Command: %s\n", strings.Join(step.Argv, " "))
	if step.Message != "" {
		fmt.Fprintf(&b, "Error: %s\n", step.Message)
	}
	fmt.Fprintln(&b)

	if text == "" {
		fmt.Fprintf(&b, "(no %s output)\n", stream)
		return b.String()
	}

	if params.Grep != "" {
		matches := report.Grep(text, params.Grep)
		if params.Tail > 0 && len(matches) > params.Tail {
			matches = matches[len(matches)-params.Tail:]
		}
		fmt.Fprintf(&b, "%s lines containing %q (%d):\n", stream, params.Grep, len(matches))
		for _, m := range matches {
			fmt.Fprintf(&b, "%6d  %s\n", m.Line, m.Text)
		}
		return b.String()
	}

	fmt.Fprintf(&b, "%s:\n", stream)
	b.WriteString(report.Tail(text, params.Tail))
	if !strings.HasSuffix(text, "\n") {
		fmt.Fprintln(&b)
	}
	return b.String()
}
