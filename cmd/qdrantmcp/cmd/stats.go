package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mhalder/qdrant-mcp-server-sub001/internal/meta"
)

func newStatsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats [path]",
		Short: "Show index statistics",
		Long: `Display statistics about a project's indexed collections: point
counts, dimensions, and git history checkpoint status.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			return runStats(cmd.Context(), cmd, path, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

// StatsOutput reports the current state of a project's code and git
// history collections.
type StatsOutput struct {
	Root       string           `json:"root"`
	Code       *CollectionStats `json:"code,omitempty"`
	GitHistory *GitHistoryStats `json:"git_history,omitempty"`
}

// CollectionStats mirrors vectorstore.CollectionInfo for the code collection.
type CollectionStats struct {
	Collection    string `json:"collection"`
	Dimensions    int    `json:"dimensions"`
	PointCount    int    `json:"point_count"`
	HybridEnabled bool   `json:"hybrid_enabled"`
}

// GitHistoryStats mirrors a repository's GitSnapshot checkpoint.
type GitHistoryStats struct {
	Collection   string `json:"collection"`
	Indexed      bool   `json:"indexed"`
	LastCommit   string `json:"last_commit,omitempty"`
	CommitsCount int    `json:"commits_count,omitempty"`
}

func runStats(ctx context.Context, cmd *cobra.Command, path string, jsonOutput bool) error {
	pc, err := resolveProject(path)
	if err != nil {
		return err
	}

	deps, cleanup, err := buildServerDeps(ctx, pc)
	if err != nil {
		return err
	}
	defer cleanup()

	out := &StatsOutput{Root: pc.Root}

	codeCollection := meta.CodeCollectionName(pc.Root)
	if exists, _ := deps.Store.CollectionExists(ctx, codeCollection); exists {
		if info, err := deps.Store.GetCollectionInfo(ctx, codeCollection); err == nil && info != nil {
			out.Code = &CollectionStats{
				Collection:    codeCollection,
				Dimensions:    info.Dimensions,
				PointCount:    info.PointCount,
				HybridEnabled: info.HybridEnabled,
			}
		}
	}

	gitCollection := meta.GitCollectionName(pc.Root)
	gitStats := &GitHistoryStats{Collection: gitCollection}
	if snap, err := deps.GitSnapshots.Load(gitCollection, pc.Root); err == nil && snap != nil {
		gitStats.Indexed = true
		gitStats.LastCommit = snap.LastCommit
		gitStats.CommitsCount = snap.CommitsCount
	}
	out.GitHistory = gitStats

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Project: %s\n\n", out.Root)

	if out.Code == nil {
		fmt.Fprintln(w, "Code index: not indexed")
	} else {
		fmt.Fprintln(w, "Code index:")
		fmt.Fprintf(w, "  collection:  %s\n", out.Code.Collection)
		fmt.Fprintf(w, "  points:      %d\n", out.Code.PointCount)
		fmt.Fprintf(w, "  dimensions:  %d\n", out.Code.Dimensions)
		fmt.Fprintf(w, "  hybrid:      %t\n", out.Code.HybridEnabled)
	}
	fmt.Fprintln(w)

	if !out.GitHistory.Indexed {
		fmt.Fprintln(w, "Git history: not indexed")
	} else {
		fmt.Fprintln(w, "Git history:")
		fmt.Fprintf(w, "  collection:  %s\n", out.GitHistory.Collection)
		fmt.Fprintf(w, "  last commit: %s\n", out.GitHistory.LastCommit)
		fmt.Fprintf(w, "  commits:     %d\n", out.GitHistory.CommitsCount)
	}

	return nil
}
