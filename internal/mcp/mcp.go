// Package mcp provides the steprun MCP server, registering the step tools
// and publishing model instructions.
package mcp

import (
	"context"
	_ "embed"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/deixis/steprun"
	"github.com/deixis/steprun/internal/config"
	"github.com/deixis/steprun/internal/metrics"
	"github.com/deixis/steprun/internal/report"
	"github.com/deixis/steprun/internal/runner"
	"github.com/deixis/steprun/internal/workflow"
)

//go:embed instructions.md
var Instructions string

// handler holds shared dependencies for all tool handlers.
type handler struct {
	mu     sync.Mutex
	engine *workflow.Engine
	runner *runner.Runner
	store  report.Store
	log    zerolog.Logger
}

// NewServer creates an MCP server with all steprun tools registered.
func NewServer(cfg *config.Config, r *runner.Runner, store report.Store, workspace string, opts ...ServerOption) *mcp.Server {
	var so serverOptions
	for _, o := range opts {
		o(&so)
	}

	h := &handler{
		engine: &workflow.Engine{
			Config:   cfg,
			Runner:   r,
			RepoRoot: workspace, // updated via roots
			Log:      so.log,
			Store:    store,
			Metrics:  so.metrics,
			// stdout carries the protocol; never echo there.
			Stdout: io.Discard,
			Stderr: io.Discard,
		},
		runner: r,
		store:  store,
		log:    so.log,
	}

	mcpOpts := &mcp.ServerOptions{
		Instructions: Instructions,
		Capabilities: &mcp.ServerCapabilities{
			Tools: &mcp.ToolCapabilities{ListChanged: false},
		},
		InitializedHandler: func(ctx context.Context, req *mcp.InitializedRequest) {
			h.updateWorkspaceFromRoots(ctx, req.Session)
		},
	}
	s := mcp.NewServer(&mcp.Implementation{Name: "steprun", Version: steprun.Version}, mcpOpts)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "step_list",
		Description: "List the steps configured in .steprun with their command lines.",
	}, h.listHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "step_run",
		Description: `Run configured steps in order and stop on the first failure.

Runs every step from .steprun, or only the named ones. Set keep_going to run
all of them regardless of failures. Results are stored for drill-down via step_inspect.`,
	}, h.runHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "step_exec",
		Description: `Execute a single program with arguments (no shell) and report its outcome.

A non-zero exit code fails the command unless ignore_return_code is set. With
fail_on_stderr, any output on stderr fails it too. Results are stored for
drill-down via step_inspect.`,
	}, h.execHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "step_inspect",
		Description: `Read the captured output of a step from a step_run or step_exec result.

Use the run_id from the tool output. Narrow the output with tail (last N lines)
or grep (lines containing a substring).`,
	}, h.inspectHandler)

	return s
}

// ServerOption configures the steprun MCP server.
type ServerOption func(*serverOptions)

type serverOptions struct {
	log     zerolog.Logger
	metrics *metrics.Recorder
}

// WithLogger sets the logger used for step execution.
func WithLogger(l zerolog.Logger) ServerOption {
	return func(o *serverOptions) {
		o.log = l
	}
}

// WithMetrics records every execution in m.
func WithMetrics(m *metrics.Recorder) ServerOption {
	return func(o *serverOptions) {
		o.metrics = m
	}
}

// current returns the engine tool calls should use.
func (h *handler) current() *workflow.Engine {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.engine
}

// updateWorkspaceFromRoots queries the client for MCP roots and swaps in a
// runner and engine for the first file root, if it has a loadable config.
func (h *handler) updateWorkspaceFromRoots(ctx context.Context, session *mcp.ServerSession) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	roots, err := session.ListRoots(ctx, &mcp.ListRootsParams{})
	if err != nil || len(roots.Roots) == 0 {
		return
	}

	u, err := url.Parse(roots.Roots[0].URI)
	if err != nil || u.Scheme != "file" {
		return
	}
	workspace := u.Path

	loaded, err := config.Load(workspace)
	if err != nil {
		h.log.Warn().Err(err).Str("workspace", workspace).Msg("ignoring client root")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	r := *h.runner
	r.Workspace = workspace
	r.Timeout = loaded.Config.Timeout()
	h.runner = &r

	e := *h.engine
	e.Config = loaded.Config
	e.Runner = &r
	e.RepoRoot = loaded.RepoRoot
	h.engine = &e

	h.log.Info().Str("workspace", workspace).Msg("workspace set from client root")
}

// textResult is a helper to build a text-only tool result.
func textResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, nil, nil
}

// errorResult is a helper to build an error tool result.
func errorResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}, nil, nil
}
