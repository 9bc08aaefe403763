package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server over stdio",
		Long: `Start the Model Context Protocol server, exposing add_documents,
semantic_search, hybrid_search, index_codebase, search_code, and the git
history tools over stdio for an MCP client (Claude Code, Cursor, etc.).

MCP clients speak JSON-RPC over stdout, so nothing but protocol traffic
is written there; diagnostics go to the log file instead.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, path)
		},
	}

	cmd.Flags().StringVar(&path, "path", ".", "Project directory to serve")

	return cmd
}

func runServe(ctx context.Context, path string) error {
	pc, err := resolveProject(path)
	if err != nil {
		return err
	}

	deps, cleanup, err := buildServerDeps(ctx, pc)
	if err != nil {
		return err
	}
	defer cleanup()

	srv, err := newMCPServer(deps)
	if err != nil {
		return err
	}

	return srv.Serve(ctx, pc.Config.Server.Transport)
}
