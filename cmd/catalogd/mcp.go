package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/felixgeelhaar/mcp-go"
	"github.com/spf13/cobra"

	mcptools "github.com/felixgeelhaar/catalogd/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server for AI agent integration",
	Long: `Start a Model Context Protocol (MCP) server exposing the catalog registry.

The host keeps following the packages directory while the server runs.

Available tools:
  - catalog_list      List internal, installed and remote catalogs
  - catalog_get       Get one catalog by id or package name
  - catalog_refresh   Refresh the remote manifest
  - catalog_status    Version information and catalog counts

Examples:
  catalogd mcp                     # Start stdio MCP server
  catalogd mcp --http :8080        # Start HTTP MCP server`,
	RunE: runMCP,
}

var mcpHTTP string

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().StringVar(&mcpHTTP, "http", "", "Start HTTP server on address (e.g., :8080)")
}

func runMCP(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if err := a.Start(ctx); err != nil {
		return err
	}

	srv := mcp.NewServer(mcp.ServerInfo{
		Name:    "catalogd",
		Version: version,
	})
	mcptools.RegisterAll(srv, a.Registry(), a, a.Agent(), mcptools.VersionInfo{
		Version:   version,
		Commit:    commit,
		BuildDate: date,
	})

	return serveAlongside(ctx, a.Run, func(ctx context.Context) error {
		if mcpHTTP != "" {
			return mcp.ServeHTTP(ctx, srv, mcpHTTP)
		}
		return mcp.ServeStdio(ctx, srv)
	})
}

// serveAlongside runs the host and the server together. Whichever stops
// first stops the other; a host failure is reported over the server's
// result.
func serveAlongside(ctx context.Context, run, serve func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	runErr := make(chan error, 1)
	go func() {
		err := run(ctx)
		if err != nil {
			cancel()
		}
		runErr <- err
	}()

	serveErr := serve(ctx)
	cancel()
	if err := <-runErr; err != nil {
		return fmt.Errorf("catalog host stopped: %w", err)
	}
	return serveErr
}
