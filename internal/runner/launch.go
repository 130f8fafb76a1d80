package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// process is a started child with the parent's ends of its pipes.
type process struct {
	cmd    *exec.Cmd
	stdout *os.File
	stderr *os.File
	stdin  *os.File // nil when no input was given
}

// launch starts the child. The output pipes are created with os.Pipe rather
// than cmd.StdoutPipe so that cmd.Wait returns at process exit without
// closing them; draining them is the coordinator's business.
func (r *Runner) launch(ctx context.Context, c Command, opts *Options) (*process, error) {
	launchErr := func(err error) error {
		return &ExecError{Kind: KindLaunch, Program: c.Program, Err: err}
	}

	if c.Program == "" {
		return nil, launchErr(errors.New("program is required"))
	}

	dir, err := r.resolveDir(opts.Dir)
	if err != nil {
		return nil, launchErr(err)
	}

	cmd := exec.CommandContext(ctx, c.Program, c.Args...) //nolint:gosec // running arbitrary programs is the point
	cmd.Dir = dir
	cmd.Env = overlayEnv(os.Environ(), r.Env, opts.Env)

	var toClose []*os.File
	closeAll := func() {
		for _, f := range toClose {
			_ = f.Close()
		}
	}

	outR, outW, err := os.Pipe()
	if err != nil {
		return nil, launchErr(fmt.Errorf("creating stdout pipe: %w", err))
	}
	toClose = append(toClose, outR, outW)

	errR, errW, err := os.Pipe()
	if err != nil {
		closeAll()
		return nil, launchErr(fmt.Errorf("creating stderr pipe: %w", err))
	}
	toClose = append(toClose, errR, errW)

	cmd.Stdout = outW
	cmd.Stderr = errW

	var inR, inW *os.File
	if opts.Input != nil {
		inR, inW, err = os.Pipe()
		if err != nil {
			closeAll()
			return nil, launchErr(fmt.Errorf("creating stdin pipe: %w", err))
		}
		toClose = append(toClose, inR, inW)
		cmd.Stdin = inR
	}

	if err := cmd.Start(); err != nil {
		closeAll()
		return nil, launchErr(err)
	}

	// The child holds its own copies now. Dropping ours is what lets the
	// read ends see EOF once the child and its descendants are done.
	_ = outW.Close()
	_ = errW.Close()
	if inR != nil {
		_ = inR.Close()
	}

	return &process{cmd: cmd, stdout: outR, stderr: errR, stdin: inW}, nil
}

// resolveDir resolves dir relative to the workspace, if any, and checks
// that it exists. With a workspace set, the result must stay inside it.
func (r *Runner) resolveDir(dir string) (string, error) {
	if r.Workspace == "" {
		if dir == "" {
			return "", nil
		}
		return dir, statDir(dir)
	}

	if dir == "" {
		return r.Workspace, statDir(r.Workspace)
	}

	var abs string
	if filepath.IsAbs(dir) {
		abs = filepath.Clean(dir)
	} else {
		abs = filepath.Clean(filepath.Join(r.Workspace, dir))
	}

	rel, err := filepath.Rel(r.Workspace, abs)
	if err != nil {
		return "", fmt.Errorf("resolving dir: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("dir %q is outside workspace %q", dir, r.Workspace)
	}
	return abs, statDir(abs)
}

func statDir(dir string) error {
	fi, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("working directory: %w", err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("working directory %q is not a directory", dir)
	}
	return nil
}

// overlayEnv applies each overlay on top of base, in order. Overridden
// entries are dropped from base rather than duplicated, and new keys are
// appended in sorted order so the result is deterministic.
func overlayEnv(base []string, overlays ...map[string]string) []string {
	merged := make(map[string]string)
	for _, o := range overlays {
		for k, v := range o {
			merged[k] = v
		}
	}
	if len(merged) == 0 {
		return base
	}

	env := make([]string, 0, len(base)+len(merged))
	for _, kv := range base {
		k, _, _ := strings.Cut(kv, "=")
		if _, ok := merged[k]; ok {
			continue
		}
		env = append(env, kv)
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+merged[k])
	}
	return env
}
