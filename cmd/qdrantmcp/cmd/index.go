package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mhalder/qdrant-mcp-server-sub001/internal/gitindexer"
	"github.com/mhalder/qdrant-mcp-server-sub001/internal/indexer"
	"github.com/mhalder/qdrant-mcp-server-sub001/internal/mcp"
	"github.com/mhalder/qdrant-mcp-server-sub001/internal/meta"
)

func newIndexCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Index a directory for searching",
		Long: `Index a directory to enable hybrid search over its contents.

This scans files, diffs them against the last indexed snapshot, chunks
the changed ones, generates embeddings, and updates the collection's
BM25 and vector indices.

Use --force to re-chunk and re-embed every file, ignoring the existing
snapshot.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			return runIndexCodebase(ctx, cmd, path, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Re-chunk and re-embed every file")
	cmd.AddCommand(newIndexGitCmd())

	return cmd
}

func runIndexCodebase(ctx context.Context, cmd *cobra.Command, path string, force bool) error {
	pc, err := resolveProject(path)
	if err != nil {
		return err
	}

	deps, cleanup, err := buildServerDeps(ctx, pc)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := deps.Indexer.IndexCodebase(ctx, indexOptionsFor(pc, deps, force))
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Indexed %s\n", pc.Root)
	fmt.Fprintf(cmd.OutOrStdout(), "  files scanned:  %d\n", res.FilesScanned)
	fmt.Fprintf(cmd.OutOrStdout(), "  files indexed:  %d\n", res.FilesIndexed)
	fmt.Fprintf(cmd.OutOrStdout(), "  chunks indexed: %d\n", res.ChunksIndexed)
	fmt.Fprintf(cmd.OutOrStdout(), "  status:         %s\n", res.Status)
	if len(res.Warnings) > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "  warnings:       %d\n", len(res.Warnings))
	}
	return nil
}

// indexOptionsFor builds indexer.Options for pc from its merged config.
func indexOptionsFor(pc *projectContext, deps mcp.Deps, force bool) indexer.Options {
	return indexer.Options{
		RootDir:      pc.Root,
		Embedder:     deps.Embedder,
		Store:        deps.Store,
		Snapshots:    deps.Snapshots,
		Sparse:       deps.Sparse,
		PathsInclude: pc.Config.Paths.Include,
		PathsExclude: pc.Config.Paths.Exclude,
		Submodules:   &pc.Config.Submodules,
		Force:        force,
	}
}

// codeCollectionFor is the collection name the indexer derives for root.
func codeCollectionFor(root string) string {
	return meta.CodeCollectionName(root)
}

func newIndexGitCmd() *cobra.Command {
	var (
		since       string
		maxCommits  int
		includeDiff bool
		force       bool
	)

	cmd := &cobra.Command{
		Use:   "git [path]",
		Short: "Index a repository's commit history",
		Long: `Index a git repository's commit history for search, embedding each
commit's message, author, and changed-file list.

On the first run this indexes the full history (bounded by --since and
--max-commits); subsequent runs only embed commits newer than the last
indexed commit, unless --force is given to re-index from scratch.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			return runIndexGit(ctx, cmd, path, since, maxCommits, includeDiff, force)
		},
	}

	cmd.Flags().StringVar(&since, "since", "", "Only index commits after this date (RFC3339)")
	cmd.Flags().IntVar(&maxCommits, "max-commits", 0, "Maximum number of commits to scan (0 = unbounded)")
	cmd.Flags().BoolVar(&includeDiff, "include-diff", false, "Include a unified-diff preview in each commit's chunk")
	cmd.Flags().BoolVar(&force, "force", false, "Re-index the full history, ignoring the last checkpoint")

	return cmd
}

func runIndexGit(ctx context.Context, cmd *cobra.Command, path, since string, maxCommits int, includeDiff, force bool) error {
	pc, err := resolveProject(path)
	if err != nil {
		return err
	}

	deps, cleanup, err := buildServerDeps(ctx, pc)
	if err != nil {
		return err
	}
	defer cleanup()

	sinceDate, err := parseSinceDate(since)
	if err != nil {
		return err
	}

	opts := gitindexer.Options{
		RepoPath:    pc.Root,
		Embedder:    deps.Embedder,
		Store:       deps.Store,
		Snapshots:   deps.GitSnapshots,
		Sparse:      deps.Sparse,
		SinceDate:   sinceDate,
		MaxCommits:  maxCommits,
		IncludeDiff: includeDiff,
	}

	collection := meta.GitCollectionName(pc.Root)
	var res *gitindexer.Result
	if !force {
		if snap, loadErr := deps.GitSnapshots.Load(collection, pc.Root); loadErr == nil && snap != nil {
			res, err = deps.GitIndexer.IndexNewCommits(ctx, opts)
		}
	}
	if res == nil {
		res, err = deps.GitIndexer.IndexHistory(ctx, opts)
	}
	if err != nil {
		return fmt.Errorf("git history indexing failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Indexed git history for %s\n", pc.Root)
	fmt.Fprintf(cmd.OutOrStdout(), "  commits scanned: %d\n", res.CommitsScanned)
	fmt.Fprintf(cmd.OutOrStdout(), "  new commits:     %d\n", res.NewCommits)
	fmt.Fprintf(cmd.OutOrStdout(), "  status:          %s\n", res.Status)
	return nil
}

// parseSinceDate parses an RFC3339 date string, returning the zero
// time.Time (meaning "unbounded") when s is empty.
func parseSinceDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --since date %q (want RFC3339): %w", s, err)
	}
	return t, nil
}
