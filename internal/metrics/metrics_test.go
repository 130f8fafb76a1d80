package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorder_Observe(t *testing.T) {
	r := NewRecorder()
	r.Start("step")
	r.Start("step")
	r.Observe("step", "pass", 150*time.Millisecond, false)
	r.Observe("step", "fail", 2*time.Second, true)

	if got := testutil.ToFloat64(r.started.WithLabelValues("step")); got != 2 {
		t.Errorf("started = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.handled.WithLabelValues("step", "fail")); got != 1 {
		t.Errorf("handled{fail} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.truncated.WithLabelValues("step")); got != 1 {
		t.Errorf("truncated = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(r.duration); got != 1 {
		t.Errorf("duration series = %d, want 1", got)
	}

	want := `
# HELP steprun_executions_handled_total Total number of executions completed, by status.
# TYPE steprun_executions_handled_total counter
steprun_executions_handled_total{kind="step",status="fail"} 1
steprun_executions_handled_total{kind="step",status="pass"} 1
`
	if err := testutil.GatherAndCompare(r.Registry(), strings.NewReader(want), "steprun_executions_handled_total"); err != nil {
		t.Error(err)
	}
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	r.Start("exec")
	r.Observe("exec", "pass", time.Second, true)
}

func TestRecorder_Handler(t *testing.T) {
	r := NewRecorder()
	r.Start("exec")
	r.Observe("exec", "error", time.Millisecond, false)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `steprun_executions_started_total{kind="exec"} 1`) {
		t.Errorf("metrics body missing started counter:\n%s", body)
	}
}
