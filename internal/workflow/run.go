package workflow

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/deixis/steprun/internal/actions"
	"github.com/deixis/steprun/internal/report"
)

// RunOptions controls Run.
type RunOptions struct {
	// KeepGoing runs every step instead of stopping at the first failure.
	KeepGoing bool
}

func newRun(kind report.Kind) *report.RunResult {
	return &report.RunResult{ID: uuid.New().String(), Kind: kind}
}

// Run runs the named steps in configuration order, or every configured
// step when names is empty. By default it stops at the first step that
// does not pass and marks the rest as skipped.
func (e *Engine) Run(ctx context.Context, names []string, opts RunOptions) (*report.RunResult, error) {
	if e.Config == nil || len(e.Config.Steps) == 0 {
		return nil, errors.New("no steps configured")
	}
	if err := unknownSteps(e.Config, names); err != nil {
		return nil, err
	}

	selected := make(map[string]bool, len(names))
	for _, n := range names {
		selected[n] = true
	}

	rr := newRun(report.Run)
	for i := range e.Config.Steps {
		step := &e.Config.Steps[i]
		if len(selected) > 0 && !selected[step.Name] {
			continue
		}
		rr.Steps = append(rr.Steps, report.StepRecord{
			Name:   step.Name,
			Argv:   step.Run,
			Dir:    step.Dir,
			Status: report.StatusSkipped,
		})
	}

	for i := range rr.Steps {
		rec := &rr.Steps[i]
		if ctx.Err() != nil {
			break
		}

		step, _ := e.Config.Step(rec.Name)
		resolved, err := e.Config.Resolve(step, e.RepoRoot)
		if err != nil {
			rec.Status = report.StatusError
			rec.Message = err.Error()
			rec.ExitCode = -1
			e.annotate(rec)
		} else {
			e.group(rec.Name, func() {
				*rec = e.execute(ctx, report.Run, rec.Name, Command(resolved), Options(resolved))
				e.annotate(rec)
			})
		}

		if rec.Status != report.StatusPass && !opts.KeepGoing {
			break
		}
	}

	e.finish(rr)
	return rr, nil
}

// WriteSummary appends a results table for rr to the job summary.
func WriteSummary(s *actions.Summary, rr *report.RunResult) error {
	rows := [][]actions.SummaryTableCell{{
		{Data: "Step", Header: true},
		{Data: "Status", Header: true},
		{Data: "Exit code", Header: true},
		{Data: "Duration", Header: true},
	}}
	for _, st := range rr.Steps {
		exit := ""
		if st.Status != report.StatusSkipped {
			exit = strconv.Itoa(st.ExitCode)
		}
		rows = append(rows, []actions.SummaryTableCell{
			{Data: st.Name},
			{Data: statusLabel(st.Status)},
			{Data: exit},
			{Data: fmt.Sprintf("%dms", st.DurationMS)},
		})
	}

	title := "steprun: passed"
	if !rr.Passed() {
		title = "steprun: failed"
	}
	s.AddHeading(title, 2).AddTable(rows)
	if f := rr.Failed(); f != nil && f.Stderr != "" {
		s.AddDetails(f.Name+" stderr", "\n\n```\n"+report.Tail(f.Stderr, 50)+"\n```\n")
	}
	s.AddRaw("run "+rr.ID, true)
	return s.Write(actions.WriteOptions{})
}

func statusLabel(status string) string {
	switch status {
	case report.StatusPass:
		return "✅ pass"
	case report.StatusFail:
		return "❌ fail"
	case report.StatusSkipped:
		return "⏭ skipped"
	default:
		return "⚠️ " + status
	}
}
