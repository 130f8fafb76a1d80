package workflow

import (
	"fmt"

	"github.com/deixis/steprun/internal/report"
)

// FormatRun renders a run for the terminal. With verbose, the captured
// stderr of the failed step is included.
func FormatRun(rr *report.RunResult, verbose bool) string {
	var b []byte
	w := func(format string, args ...any) {
		b = fmt.Appendf(b, format, args...)
	}

	failed := rr.Failed()
	if failed == nil {
		w("ok\n")
	} else {
		w("FAIL\n")
	}
	w("\n")

	for _, s := range rr.Steps {
		switch s.Status {
		case report.StatusPass:
			w("  %-15s ok       %dms\n", s.Name, s.DurationMS)
		case report.StatusFail:
			w("  %-15s FAIL     exit %d\n", s.Name, s.ExitCode)
		case report.StatusUnavailable:
			w("  %-15s unavailable\n", s.Name)
		case report.StatusError:
			w("  %-15s error\n", s.Name)
		case report.StatusSkipped:
			w("  %-15s -\n", s.Name)
		}
		if s.Truncated {
			w("  %-15s (output truncated: a child process kept the streams open)\n", "")
		}
	}
	w("\n")

	if failed != nil {
		w("  %s: %s\n", failed.Name, failed.Message)
		if verbose && failed.Stderr != "" {
			w("\n%s\n", report.Tail(failed.Stderr, 50))
		}
		w("\n")
	}
	w("run %s\n", rr.ID)

	return string(b)
}
