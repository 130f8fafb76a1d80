package runner

// verdict applies the failure policy to a finalized execution. stderrSeen
// reports whether any bytes arrived on stderr. A stderr failure takes
// precedence over the exit code.
func verdict(program string, res *Result, stderrSeen bool, opts *Options) error {
	if opts.FailOnStdErr && stderrSeen {
		return &ExecError{
			Kind:     KindStdErrProduced,
			Program:  program,
			ExitCode: res.ExitCode,
			Stderr:   res.Stderr,
		}
	}
	if res.ExitCode != 0 && !opts.IgnoreReturnCode {
		return &ExecError{
			Kind:     KindNonZeroExit,
			Program:  program,
			ExitCode: res.ExitCode,
			Stderr:   res.Stderr,
		}
	}
	return nil
}
