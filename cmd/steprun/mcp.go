package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/deixis/steprun/internal/logging"
	srmcp "github.com/deixis/steprun/internal/mcp"
)

var mcpFlags struct {
	instructions bool
	http         string
}

var mcpCmd = &cobra.Command{
	Use:     "mcp",
	Short:   "Start the MCP server",
	GroupID: "server",
	Long: `Start the MCP server on stdio, or on HTTP with --http.

The server exposes step_list, step_run, step_exec and step_inspect. In HTTP
mode, Prometheus metrics are served on /metrics next to the MCP endpoint.`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	mcpCmd.Flags().BoolVar(&mcpFlags.instructions, "instructions", false, "print model instructions and exit")
	mcpCmd.Flags().StringVar(&mcpFlags.http, "http", "", "start HTTP server on address (e.g. :9090)")
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	if mcpFlags.instructions {
		fmt.Print(srmcp.Instructions)
		return nil
	}

	ctx, stop := signalContext()
	defer stop()

	return serve(ctx, mcpFlags.http)
}

func serve(ctx context.Context, httpAddr string) error {
	workspace, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("determining workspace: %w", err)
	}
	a, err := newApp(workspace, "info")
	if err != nil {
		return err
	}
	defer a.Close()

	server := srmcp.NewServer(a.loaded.Config, a.runner(0), a.store, a.loaded.RepoRoot,
		srmcp.WithLogger(a.log.With().Str(logging.FieldComponent, "mcp").Logger()),
		srmcp.WithMetrics(a.metrics),
	)

	if httpAddr != "" {
		return serveHTTP(ctx, a, server, httpAddr)
	}
	return server.Run(ctx, &mcpsdk.StdioTransport{})
}

func serveHTTP(ctx context.Context, a *app, server *mcpsdk.Server, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	mux.Handle("/", mcpsdk.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcpsdk.Server { return server },
		nil,
	))

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		_ = httpServer.Close()
	}()

	a.log.Info().Str("addr", addr).Msg("listening")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
