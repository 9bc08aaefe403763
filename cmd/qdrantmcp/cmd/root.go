// Package cmd provides the CLI commands for QdrantMCPServer.
package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/mhalder/qdrant-mcp-server-sub001/internal/logging"
	"github.com/mhalder/qdrant-mcp-server-sub001/pkg/version"
)

// Debug logging flag.
var (
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for qdrantmcp CLI.
func NewRootCmd() *cobra.Command {
	var reindex bool

	cmd := &cobra.Command{
		Use:   "qdrantmcp",
		Short: "Local-first RAG MCP server for developers",
		Long: `QdrantMCPServer provides hybrid search (BM25 + semantic) over codebases
for AI coding assistants like Claude Code and Cursor.

It runs entirely locally with zero configuration required.

Just run 'qdrantmcp' in your project directory to get started.`,
		Version: version.Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return cmd.Help()
			}
			return runSmartDefault(cmd.Context(), reindex)
		},
	}

	cmd.SetVersionTemplate("qdrantmcp version {{.Version}}\n")

	cmd.Flags().BoolVar(&reindex, "reindex", false, "Force reindex even if index exists")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.qdrantmcp/logs/")

	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRunE = stopLogging

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startLogging enables debug logging to ~/.qdrantmcp/logs/ when --debug is set.
func startLogging(_ *cobra.Command, _ []string) error {
	if !debugMode {
		return nil
	}
	logger, cleanup, err := logging.Setup(logging.DebugConfig())
	if err != nil {
		return fmt.Errorf("failed to setup debug logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Info("debug logging enabled", slog.String("log_file", logging.DefaultLogPath()))
	return nil
}

func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		slog.Info("debug logging stopped")
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// runSmartDefault implements the "It Just Works" flow: index the current
// project if needed, then start the MCP server over stdio.
//
// MCP clients read stdout as JSON-RPC, so nothing but the server's own
// protocol traffic may be written there before runServe takes over.
func runSmartDefault(ctx context.Context, reindex bool) error {
	pc, err := resolveProject(".")
	if err != nil {
		return err
	}

	deps, cleanup, err := buildServerDeps(ctx, pc)
	if err != nil {
		return err
	}
	defer cleanup()

	exists, err := deps.Store.CollectionExists(ctx, codeCollectionFor(pc.Root))
	if err != nil {
		slog.Warn("collection lookup failed", slog.String("error", err.Error()))
	}

	if reindex || !exists {
		slog.Info("index not found, indexing project", slog.String("root", pc.Root))
		if _, err := deps.Indexer.IndexCodebase(ctx, indexOptionsFor(pc, deps, reindex)); err != nil {
			slog.Error("indexing failed", slog.String("error", err.Error()))
			return fmt.Errorf("indexing failed: %w", err)
		}
		slog.Info("index complete")
	} else {
		slog.Debug("index found", slog.String("collection", codeCollectionFor(pc.Root)))
	}

	srv, err := newMCPServer(deps)
	if err != nil {
		return err
	}
	return srv.Serve(ctx, pc.Config.Server.Transport)
}
