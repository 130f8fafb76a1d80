package runner

import (
	"errors"
	"fmt"
	"testing"
)

func TestVerdict_Table(t *testing.T) {
	for _, exitCode := range []int{0, 1, 42, -1} {
		for _, stderrSeen := range []bool{false, true} {
			for _, failOnStdErr := range []bool{false, true} {
				for _, ignoreReturnCode := range []bool{false, true} {
					name := fmt.Sprintf("exit=%d/stderr=%t/failOnStdErr=%t/ignore=%t", exitCode, stderrSeen, failOnStdErr, ignoreReturnCode)
					t.Run(name, func(t *testing.T) {
						res := &Result{ExitCode: exitCode}
						if stderrSeen {
							res.Stderr = "oops\n"
						}
						opts := &Options{FailOnStdErr: failOnStdErr, IgnoreReturnCode: ignoreReturnCode}
						err := verdict("prog", res, stderrSeen, opts)

						var want Kind
						switch {
						case failOnStdErr && stderrSeen:
							want = KindStdErrProduced
						case exitCode != 0 && !ignoreReturnCode:
							want = KindNonZeroExit
						}
						if got := KindOf(err); got != want {
							t.Fatalf("KindOf = %v, want %v (err = %v)", got, want, err)
						}
						if res.ExitCode != exitCode {
							t.Errorf("ExitCode changed to %d", res.ExitCode)
						}
					})
				}
			}
		}
	}
}

func TestVerdict_StdErrTakesPrecedence(t *testing.T) {
	res := &Result{ExitCode: 1, Stderr: "bad\n"}
	err := verdict("prog", res, true, &Options{FailOnStdErr: true})
	if !errors.Is(err, ErrStdErrProduced) {
		t.Fatalf("err = %v, want ErrStdErrProduced", err)
	}
	if errors.Is(err, ErrNonZeroExit) {
		t.Error("err also matches ErrNonZeroExit")
	}
	var execErr *ExecError
	if !errors.As(err, &execErr) {
		t.Fatalf("err = %v, want *ExecError", err)
	}
	if execErr.Stderr != "bad\n" {
		t.Errorf("ExecError.Stderr = %q, want %q", execErr.Stderr, "bad\n")
	}
}

func TestVerdict_NonZeroExitCarriesCodeAndStderr(t *testing.T) {
	res := &Result{ExitCode: 3, Stderr: "why\n"}
	err := verdict("prog", res, true, &Options{})
	var execErr *ExecError
	if !errors.As(err, &execErr) {
		t.Fatalf("err = %v, want *ExecError", err)
	}
	if execErr.Kind != KindNonZeroExit || execErr.ExitCode != 3 || execErr.Stderr != "why\n" {
		t.Errorf("ExecError = %+v", execErr)
	}
	if got := err.Error(); got != `process "prog" failed with exit code 3` {
		t.Errorf("Error() = %q", got)
	}
}
