package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mhalder/qdrant-mcp-server-sub001/internal/meta"
	"github.com/mhalder/qdrant-mcp-server-sub001/internal/vectorstore"
)

type searchOptions struct {
	limit       int
	format      string // "text", "json"
	bm25Only    bool
	fileTypes   []string
	pathPattern string
	git         bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search an indexed codebase",
		Long: `Search an indexed codebase using hybrid search: BM25 (keyword) and
semantic (embedding) search combined with Reciprocal Rank Fusion.

Examples:
  qdrantmcp search "authentication middleware"
  qdrantmcp search "handleRequest" --limit 5
  qdrantmcp search "error handling" --format json
  qdrantmcp search --git "fix race condition"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&opts.bm25Only, "bm25-only", false, "Use keyword search only (skip semantic search)")
	cmd.Flags().StringSliceVar(&opts.fileTypes, "file-type", nil, "Restrict to these file extensions (repeatable)")
	cmd.Flags().StringVar(&opts.pathPattern, "path-pattern", "", "Glob restricting matched file paths")
	cmd.Flags().BoolVar(&opts.git, "git", false, "Search commit history instead of code")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	pc, err := resolveProject(".")
	if err != nil {
		return err
	}

	deps, cleanup, err := buildServerDeps(ctx, pc)
	if err != nil {
		return err
	}
	defer cleanup()

	dense, err := deps.Embedder.Embed(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to embed query: %w", err)
	}

	var results []vectorstore.SearchResult
	var collection string
	if opts.git {
		collection = meta.GitCollectionName(pc.Root)
	} else {
		collection = meta.CodeCollectionName(pc.Root)
	}

	exists, err := deps.Store.CollectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if !exists {
		return fmt.Errorf("no index found for %s. Run 'qdrantmcp index%s' first", pc.Root, gitSuffix(opts.git))
	}

	if opts.bm25Only || deps.Sparse == nil {
		results, err = deps.Store.Search(ctx, collection, dense, opts.limit, nil)
	} else {
		sparse := deps.Sparse.Generate(query)
		results, err = deps.Store.HybridSearch(ctx, collection, dense, vectorstore.Sparse{Indices: sparse.Indices, Values: sparse.Values}, opts.limit, nil)
	}
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if opts.git {
		return printCommitResults(cmd, query, results, opts)
	}
	return printCodeResults(cmd, query, results, opts)
}

func gitSuffix(isGit bool) string {
	if isGit {
		return " git"
	}
	return ""
}

func printCodeResults(cmd *cobra.Command, query string, results []vectorstore.SearchResult, opts searchOptions) error {
	results = filterCodeResults(results, opts)

	if opts.format == "json" {
		return printJSON(cmd, results)
	}

	if len(results) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No results found for %q\n", query)
		return nil
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Found %d results for %q:\n\n", len(results), query)
	for i, r := range results {
		path, _ := r.Payload["relativePath"].(string)
		startLine, _ := r.Payload["startLine"].(int)
		location := path
		if startLine > 0 {
			location = fmt.Sprintf("%s:%d", path, startLine)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d. %s (score: %.3f)\n", i+1, location, r.Score)
		content, _ := r.Payload["content"].(string)
		for _, line := range snippet(content, 3) {
			fmt.Fprintf(cmd.OutOrStdout(), "   %s\n", line)
		}
		fmt.Fprintln(cmd.OutOrStdout())
	}
	return nil
}

func printCommitResults(cmd *cobra.Command, query string, results []vectorstore.SearchResult, opts searchOptions) error {
	if opts.format == "json" {
		return printJSON(cmd, results)
	}

	if len(results) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No commits found for %q\n", query)
		return nil
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Found %d commits for %q:\n\n", len(results), query)
	for i, r := range results {
		shortHash, _ := r.Payload["shortHash"].(string)
		subject, _ := r.Payload["subject"].(string)
		author, _ := r.Payload["author"].(string)
		fmt.Fprintf(cmd.OutOrStdout(), "%d. %s %s (score: %.3f)\n", i+1, shortHash, subject, r.Score)
		fmt.Fprintf(cmd.OutOrStdout(), "   by %s\n", author)
	}
	return nil
}

// filterCodeResults applies the --file-type and --path-pattern filters
// the CLI supports but the vectorstore.Filter shape cannot express.
func filterCodeResults(results []vectorstore.SearchResult, opts searchOptions) []vectorstore.SearchResult {
	if len(opts.fileTypes) == 0 && opts.pathPattern == "" {
		return results
	}
	out := make([]vectorstore.SearchResult, 0, len(results))
	for _, r := range results {
		ext, _ := r.Payload["fileExtension"].(string)
		path, _ := r.Payload["relativePath"].(string)
		if len(opts.fileTypes) > 0 && !contains(opts.fileTypes, ext) {
			continue
		}
		if opts.pathPattern != "" {
			if ok, _ := filepath.Match(opts.pathPattern, path); !ok {
				continue
			}
		}
		out = append(out, r)
	}
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func printJSON(cmd *cobra.Command, results []vectorstore.SearchResult) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

func snippet(content string, n int) []string {
	lines := strings.Split(content, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
