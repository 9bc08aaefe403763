// Package mcp implements the Model Context Protocol (MCP) server for
// QdrantMCPServer, registering the tool surface internal/mcpsurface
// defines over internal/indexer, internal/gitindexer, and
// internal/vectorstore.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mhalder/qdrant-mcp-server-sub001/internal/config"
	"github.com/mhalder/qdrant-mcp-server-sub001/internal/embed"
	"github.com/mhalder/qdrant-mcp-server-sub001/internal/gitindexer"
	"github.com/mhalder/qdrant-mcp-server-sub001/internal/indexer"
	"github.com/mhalder/qdrant-mcp-server-sub001/internal/mcpsurface"
	"github.com/mhalder/qdrant-mcp-server-sub001/internal/merkle"
	"github.com/mhalder/qdrant-mcp-server-sub001/internal/meta"
	"github.com/mhalder/qdrant-mcp-server-sub001/internal/sparse"
	"github.com/mhalder/qdrant-mcp-server-sub001/internal/vectorstore"
	"github.com/mhalder/qdrant-mcp-server-sub001/pkg/version"
)

// Server is the MCP server for QdrantMCPServer. It bridges AI clients
// (Claude Code, Cursor) with the indexing pipelines and vector store
// directly -- there is no separate search-engine layer between the tool
// handlers and internal/vectorstore.Adapter.
type Server struct {
	mcp *mcp.Server

	store    vectorstore.Adapter
	embedder embed.Embedder
	sparse   *sparse.Generator

	indexer      *indexer.Indexer
	gitIndexer   *gitindexer.GitIndexer
	snapshots    *merkle.SnapshotStore
	gitSnapshots *merkle.GitSnapshotStore

	cfg    *config.Config
	logger *slog.Logger
}

// Deps collects the constructed pipeline pieces NewServer wires into
// MCP tool handlers. All fields are required.
type Deps struct {
	Store        vectorstore.Adapter
	Embedder     embed.Embedder
	Sparse       *sparse.Generator
	Indexer      *indexer.Indexer
	GitIndexer   *gitindexer.GitIndexer
	Snapshots    *merkle.SnapshotStore
	GitSnapshots *merkle.GitSnapshotStore
	Config       *config.Config
}

// NewServer creates a new MCP server and registers its tool surface.
func NewServer(deps Deps) (*Server, error) {
	if deps.Store == nil || deps.Embedder == nil || deps.Indexer == nil || deps.GitIndexer == nil {
		return nil, errors.New("mcp: Store, Embedder, Indexer, and GitIndexer are required")
	}
	if deps.Snapshots == nil || deps.GitSnapshots == nil {
		return nil, errors.New("mcp: Snapshots and GitSnapshots are required")
	}
	cfg := deps.Config
	if cfg == nil {
		cfg = config.NewConfig()
	}

	s := &Server{
		store:        deps.Store,
		embedder:     deps.Embedder,
		sparse:       deps.Sparse,
		indexer:      deps.Indexer,
		gitIndexer:   deps.GitIndexer,
		snapshots:    deps.Snapshots,
		gitSnapshots: deps.GitSnapshots,
		cfg:          cfg,
		logger:       slog.Default(),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{Name: "QdrantMCPServer", Version: version.Version},
		nil,
	)
	s.registerTools()
	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Serve starts the server with the specified transport.
func (s *Server) Serve(ctx context.Context, transport string) error {
	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("mcp server stopped with error", slog.String("error", err.Error()))
		}
		return err
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "add_documents",
		Description: "Add arbitrary text documents to a collection, bypassing the code/commit chunking pipelines.",
	}, s.handleAddDocuments)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "delete_documents",
		Description: "Delete documents from a collection by ID.",
	}, s.handleDeleteDocuments)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "semantic_search",
		Description: "Run a dense-only nearest-neighbor query against a collection.",
	}, s.handleSemanticSearch)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "hybrid_search",
		Description: "Run a hybrid (BM25 + semantic) query against a collection.",
	}, s.handleHybridSearch)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index_codebase",
		Description: "Scan, chunk, embed, and store a codebase's files, incrementally by default.",
	}, s.handleIndexCodebase)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_code",
		Description: "Hybrid search over a previously indexed codebase. Faster and more precise than grep for conceptual queries.",
	}, s.handleSearchCode)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index_new_commits",
		Description: "Index commits added since the last git-history indexing run.",
	}, s.handleIndexNewCommits)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index_git_history",
		Description: "Index a repository's full commit history from scratch.",
	}, s.handleIndexGitHistory)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_git_history",
		Description: "Hybrid search over a previously indexed git commit history.",
	}, s.handleSearchGitHistory)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_git_index_status",
		Description: "Report whether, and how far, a repository's git history has been indexed.",
	}, s.handleGetGitIndexStatus)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "clear_git_index",
		Description: "Delete a repository's git history collection and checkpoint.",
	}, s.handleClearGitIndex)

	s.logger.Info("mcp tools registered", slog.Int("count", 11))
}

func (s *Server) handleAddDocuments(ctx context.Context, _ *mcp.CallToolRequest, in mcpsurface.AddDocumentsInput) (
	*mcp.CallToolResult, mcpsurface.AddDocumentsOutput, error,
) {
	if in.Collection == "" || len(in.Documents) == 0 {
		return nil, mcpsurface.AddDocumentsOutput{}, NewInvalidParamsError("collection and documents are required")
	}

	texts := make([]string, len(in.Documents))
	for i, d := range in.Documents {
		texts[i] = d.Content
	}
	vecs, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, mcpsurface.AddDocumentsOutput{}, MapError(err)
	}

	exists, err := s.store.CollectionExists(ctx, in.Collection)
	if err != nil {
		return nil, mcpsurface.AddDocumentsOutput{}, MapError(err)
	}
	if !exists {
		if err := s.store.CreateCollection(ctx, in.Collection, s.embedder.Dimensions(), vectorstore.DistanceCosine, s.sparse != nil); err != nil {
			return nil, mcpsurface.AddDocumentsOutput{}, MapError(err)
		}
	}

	ids := make([]string, len(in.Documents))
	points := make([]vectorstore.Point, len(in.Documents))
	for i, d := range in.Documents {
		ids[i] = uuid.NewString()
		payload := map[string]any{"content": d.Content}
		for k, v := range d.Metadata {
			payload[k] = v
		}
		var sp *vectorstore.Sparse
		if s.sparse != nil {
			v := s.sparse.Generate(d.Content)
			if len(v.Indices) > 0 {
				sp = &vectorstore.Sparse{Indices: v.Indices, Values: v.Values}
			}
		}
		points[i] = vectorstore.Point{ID: ids[i], Vector: vecs[i], Sparse: sp, Payload: payload}
	}
	if err := s.store.AddPointsWithSparse(ctx, in.Collection, points); err != nil {
		return nil, mcpsurface.AddDocumentsOutput{}, MapError(err)
	}

	return nil, mcpsurface.AddDocumentsOutput{Added: len(ids), IDs: ids}, nil
}

func (s *Server) handleDeleteDocuments(ctx context.Context, _ *mcp.CallToolRequest, in mcpsurface.DeleteDocumentsInput) (
	*mcp.CallToolResult, mcpsurface.DeleteDocumentsOutput, error,
) {
	if in.Collection == "" || len(in.IDs) == 0 {
		return nil, mcpsurface.DeleteDocumentsOutput{}, NewInvalidParamsError("collection and ids are required")
	}
	if err := s.store.DeletePoints(ctx, in.Collection, in.IDs); err != nil {
		return nil, mcpsurface.DeleteDocumentsOutput{}, MapError(err)
	}
	return nil, mcpsurface.DeleteDocumentsOutput{Deleted: len(in.IDs)}, nil
}

func filterFrom(m map[string]any) *vectorstore.Filter {
	if len(m) == 0 {
		return nil
	}
	f := &vectorstore.Filter{Equals: map[string]string{}}
	for k, v := range m {
		if s, ok := v.(string); ok {
			f.Equals[k] = s
		}
	}
	return f
}

func toSearchHits(results []vectorstore.SearchResult, threshold float64) []mcpsurface.SearchHit {
	hits := make([]mcpsurface.SearchHit, 0, len(results))
	for _, r := range results {
		if float64(r.Score) < threshold {
			continue
		}
		hits = append(hits, mcpsurface.SearchHit{ID: r.ID, Score: float64(r.Score), Payload: r.Payload})
	}
	return hits
}

func (s *Server) handleSemanticSearch(ctx context.Context, _ *mcp.CallToolRequest, in mcpsurface.SemanticSearchInput) (
	*mcp.CallToolResult, mcpsurface.SemanticSearchOutput, error,
) {
	if in.Collection == "" || in.Query == "" {
		return nil, mcpsurface.SemanticSearchOutput{}, NewInvalidParamsError("collection and query are required")
	}
	limit := clampLimit(in.Limit, 5, 1, 100)

	vec, err := s.embedder.Embed(ctx, in.Query)
	if err != nil {
		return nil, mcpsurface.SemanticSearchOutput{}, MapError(err)
	}
	results, err := s.store.Search(ctx, in.Collection, vec, limit, filterFrom(in.Filter))
	if err != nil {
		return nil, mcpsurface.SemanticSearchOutput{}, MapError(err)
	}
	return nil, mcpsurface.SemanticSearchOutput{Results: toSearchHits(results, in.ScoreThreshold)}, nil
}

func (s *Server) handleHybridSearch(ctx context.Context, _ *mcp.CallToolRequest, in mcpsurface.HybridSearchInput) (
	*mcp.CallToolResult, mcpsurface.HybridSearchOutput, error,
) {
	if in.Collection == "" || in.Query == "" {
		return nil, mcpsurface.HybridSearchOutput{}, NewInvalidParamsError("collection and query are required")
	}
	limit := clampLimit(in.Limit, 5, 1, 100)

	vec, err := s.embedder.Embed(ctx, in.Query)
	if err != nil {
		return nil, mcpsurface.HybridSearchOutput{}, MapError(err)
	}
	var sp vectorstore.Sparse
	if s.sparse != nil {
		v := s.sparse.Generate(in.Query)
		sp = vectorstore.Sparse{Indices: v.Indices, Values: v.Values}
	}
	results, err := s.store.HybridSearch(ctx, in.Collection, vec, sp, limit, filterFrom(in.Filter))
	if err != nil {
		return nil, mcpsurface.HybridSearchOutput{}, MapError(err)
	}
	return nil, mcpsurface.HybridSearchOutput{Results: toSearchHits(results, in.ScoreThreshold)}, nil
}

func (s *Server) handleIndexCodebase(ctx context.Context, _ *mcp.CallToolRequest, in mcpsurface.IndexCodebaseInput) (
	*mcp.CallToolResult, mcpsurface.IndexCodebaseOutput, error,
) {
	if in.Path == "" {
		return nil, mcpsurface.IndexCodebaseOutput{}, NewInvalidParamsError("path is required")
	}
	res, err := s.indexer.IndexCodebase(ctx, indexer.Options{
		RootDir:          in.Path,
		Embedder:         s.embedder,
		Store:            s.store,
		Snapshots:        s.snapshots,
		Sparse:           s.sparse,
		PathsInclude:     s.cfg.Paths.Include,
		PathsExclude:     s.cfg.Paths.Exclude,
		Submodules:       &s.cfg.Submodules,
		MaxChunksPerFile: in.MaxChunksPerFile,
		MaxTotalChunks:   in.MaxTotalChunks,
		BatchSize:        in.BatchSize,
		Force:            in.Force,
	})
	if err != nil {
		return nil, mcpsurface.IndexCodebaseOutput{}, MapError(err)
	}
	return nil, mcpsurface.IndexCodebaseOutput{
		FilesScanned: res.FilesScanned, FilesIndexed: res.FilesIndexed, FilesDeleted: res.FilesDeleted,
		ChunksIndexed: res.ChunksIndexed, ChunksDeleted: res.ChunksDeleted,
		Status: res.Status, Warnings: res.Warnings, Errors: res.Errors,
	}, nil
}

func (s *Server) handleSearchCode(ctx context.Context, _ *mcp.CallToolRequest, in mcpsurface.SearchCodeInput) (
	*mcp.CallToolResult, mcpsurface.SearchCodeOutput, error,
) {
	if in.Path == "" || in.Query == "" {
		return nil, mcpsurface.SearchCodeOutput{}, NewInvalidParamsError("path and query are required")
	}
	limit := clampLimit(in.Limit, 5, 1, 100)

	absRoot, err := filepath.Abs(in.Path)
	if err != nil {
		return nil, mcpsurface.SearchCodeOutput{}, MapError(err)
	}
	collection := meta.CodeCollectionName(absRoot)

	vec, err := s.embedder.Embed(ctx, in.Query)
	if err != nil {
		return nil, mcpsurface.SearchCodeOutput{}, MapError(err)
	}

	var results []vectorstore.SearchResult
	if s.sparse != nil {
		v := s.sparse.Generate(in.Query)
		results, err = s.store.HybridSearch(ctx, collection, vec, vectorstore.Sparse{Indices: v.Indices, Values: v.Values}, limit, nil)
	} else {
		results, err = s.store.Search(ctx, collection, vec, limit, nil)
	}
	if err != nil {
		return nil, mcpsurface.SearchCodeOutput{}, MapError(err)
	}

	out := mcpsurface.SearchCodeOutput{Results: make([]mcpsurface.CodeSearchHit, 0, len(results))}
	for _, r := range results {
		if float64(r.Score) < in.ScoreThreshold {
			continue
		}
		hit := mcpsurface.CodeSearchHit{Score: float64(r.Score)}
		if v, ok := r.Payload["content"].(string); ok {
			hit.Content = v
		}
		if v, ok := r.Payload["relativePath"].(string); ok {
			hit.FilePath = v
		}
		if v, ok := r.Payload["language"].(string); ok {
			hit.Language = v
		}
		if v, ok := r.Payload["fileExtension"].(string); ok {
			hit.FileExtension = v
		}
		if v, ok := r.Payload["startLine"].(int); ok {
			hit.StartLine = v
		}
		if v, ok := r.Payload["endLine"].(int); ok {
			hit.EndLine = v
		}
		if !matchesCodeFilters(hit, in.FileTypes, in.PathPattern) {
			continue
		}
		out.Results = append(out.Results, hit)
	}
	return nil, out, nil
}

func matchesCodeFilters(hit mcpsurface.CodeSearchHit, fileTypes []string, pathPattern string) bool {
	if len(fileTypes) > 0 {
		matched := false
		for _, ext := range fileTypes {
			if ext == hit.FileExtension {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if pathPattern != "" {
		ok, err := filepath.Match(pathPattern, hit.FilePath)
		if err != nil || !ok {
			return false
		}
	}
	return true
}

func (s *Server) handleIndexNewCommits(ctx context.Context, _ *mcp.CallToolRequest, in mcpsurface.IndexNewCommitsInput) (
	*mcp.CallToolResult, mcpsurface.GitIndexOutput, error,
) {
	if in.Path == "" {
		return nil, mcpsurface.GitIndexOutput{}, NewInvalidParamsError("path is required")
	}
	res, err := s.gitIndexer.IndexNewCommits(ctx, s.gitOptions(in.Path, time.Time{}, 0, false))
	if err != nil {
		return nil, mcpsurface.GitIndexOutput{}, MapError(err)
	}
	return nil, toGitIndexOutput(res), nil
}

func (s *Server) handleIndexGitHistory(ctx context.Context, _ *mcp.CallToolRequest, in mcpsurface.IndexGitHistoryInput) (
	*mcp.CallToolResult, mcpsurface.GitIndexOutput, error,
) {
	if in.Path == "" {
		return nil, mcpsurface.GitIndexOutput{}, NewInvalidParamsError("path is required")
	}
	var since time.Time
	if in.SinceDate != "" {
		parsed, err := time.Parse(time.RFC3339, in.SinceDate)
		if err != nil {
			return nil, mcpsurface.GitIndexOutput{}, NewInvalidParamsError("since_date must be RFC3339")
		}
		since = parsed
	}
	res, err := s.gitIndexer.IndexHistory(ctx, s.gitOptions(in.Path, since, in.MaxCommits, in.IncludeDiff))
	if err != nil {
		return nil, mcpsurface.GitIndexOutput{}, MapError(err)
	}
	return nil, toGitIndexOutput(res), nil
}

func (s *Server) gitOptions(path string, since time.Time, maxCommits int, includeDiff bool) gitindexer.Options {
	return gitindexer.Options{
		RepoPath:    path,
		Embedder:    s.embedder,
		Store:       s.store,
		Snapshots:   s.gitSnapshots,
		Sparse:      s.sparse,
		SinceDate:   since,
		MaxCommits:  maxCommits,
		IncludeDiff: includeDiff,
	}
}

func toGitIndexOutput(res *gitindexer.Result) mcpsurface.GitIndexOutput {
	return mcpsurface.GitIndexOutput{
		CommitsScanned: res.CommitsScanned, NewCommits: res.NewCommits,
		Status: res.Status, Warnings: res.Warnings, Errors: res.Errors,
	}
}

func (s *Server) handleSearchGitHistory(ctx context.Context, _ *mcp.CallToolRequest, in mcpsurface.SearchGitHistoryInput) (
	*mcp.CallToolResult, mcpsurface.SearchGitHistoryOutput, error,
) {
	if in.Path == "" || in.Query == "" {
		return nil, mcpsurface.SearchGitHistoryOutput{}, NewInvalidParamsError("path and query are required")
	}
	limit := clampLimit(in.Limit, 5, 1, 100)

	absRepo, err := filepath.Abs(in.Path)
	if err != nil {
		return nil, mcpsurface.SearchGitHistoryOutput{}, MapError(err)
	}
	collection := meta.GitCollectionName(absRepo)

	vec, err := s.embedder.Embed(ctx, in.Query)
	if err != nil {
		return nil, mcpsurface.SearchGitHistoryOutput{}, MapError(err)
	}

	filter := map[string]any{}
	if in.CommitType != "" {
		filter["type"] = in.CommitType
	}
	if in.Author != "" {
		filter["author"] = in.Author
	}

	var results []vectorstore.SearchResult
	if s.sparse != nil {
		v := s.sparse.Generate(in.Query)
		results, err = s.store.HybridSearch(ctx, collection, vec, vectorstore.Sparse{Indices: v.Indices, Values: v.Values}, limit, filterFrom(filter))
	} else {
		results, err = s.store.Search(ctx, collection, vec, limit, filterFrom(filter))
	}
	if err != nil {
		return nil, mcpsurface.SearchGitHistoryOutput{}, MapError(err)
	}

	out := mcpsurface.SearchGitHistoryOutput{Results: make([]mcpsurface.CommitSearchHit, 0, len(results))}
	for _, r := range results {
		hit := mcpsurface.CommitSearchHit{Score: float64(r.Score)}
		if v, ok := r.Payload["commitHash"].(string); ok {
			hit.CommitHash = v
		}
		if v, ok := r.Payload["shortHash"].(string); ok {
			hit.ShortHash = v
		}
		if v, ok := r.Payload["author"].(string); ok {
			hit.Author = v
		}
		if v, ok := r.Payload["timestamp"].(string); ok {
			hit.Date = v
		}
		if v, ok := r.Payload["subject"].(string); ok {
			hit.Subject = v
		}
		if v, ok := r.Payload["type"].(string); ok {
			hit.Type = v
		}
		out.Results = append(out.Results, hit)
	}
	return nil, out, nil
}

func (s *Server) handleGetGitIndexStatus(ctx context.Context, _ *mcp.CallToolRequest, in mcpsurface.GetGitIndexStatusInput) (
	*mcp.CallToolResult, mcpsurface.GetGitIndexStatusOutput, error,
) {
	if in.Path == "" {
		return nil, mcpsurface.GetGitIndexStatusOutput{}, NewInvalidParamsError("path is required")
	}
	absRepo, err := filepath.Abs(in.Path)
	if err != nil {
		return nil, mcpsurface.GetGitIndexStatusOutput{}, MapError(err)
	}
	collection := meta.GitCollectionName(absRepo)

	snap, err := s.gitSnapshots.Load(collection, absRepo)
	if err != nil {
		return nil, mcpsurface.GetGitIndexStatusOutput{}, MapError(err)
	}
	if snap == nil {
		return nil, mcpsurface.GetGitIndexStatusOutput{Indexed: false}, nil
	}
	return nil, mcpsurface.GetGitIndexStatusOutput{
		Indexed:      true,
		LastCommit:   snap.LastCommit,
		LastIndexed:  time.UnixMilli(snap.LastIndexed).UTC().Format(time.RFC3339),
		CommitsCount: snap.CommitsCount,
	}, nil
}

func (s *Server) handleClearGitIndex(ctx context.Context, _ *mcp.CallToolRequest, in mcpsurface.ClearGitIndexInput) (
	*mcp.CallToolResult, mcpsurface.ClearGitIndexOutput, error,
) {
	if in.Path == "" {
		return nil, mcpsurface.ClearGitIndexOutput{}, NewInvalidParamsError("path is required")
	}
	absRepo, err := filepath.Abs(in.Path)
	if err != nil {
		return nil, mcpsurface.ClearGitIndexOutput{}, MapError(err)
	}
	collection := meta.GitCollectionName(absRepo)

	exists, err := s.store.CollectionExists(ctx, collection)
	if err != nil {
		return nil, mcpsurface.ClearGitIndexOutput{}, MapError(err)
	}
	if !exists {
		return nil, mcpsurface.ClearGitIndexOutput{Cleared: false}, nil
	}
	if err := s.store.DeleteCollection(ctx, collection); err != nil {
		return nil, mcpsurface.ClearGitIndexOutput{}, MapError(err)
	}
	if err := s.gitSnapshots.Delete(collection); err != nil {
		return nil, mcpsurface.ClearGitIndexOutput{}, MapError(err)
	}
	return nil, mcpsurface.ClearGitIndexOutput{Cleared: true}, nil
}

// clampLimit applies a default when requested is zero and bounds the
// result to [min, max].
func clampLimit(requested, def, min, max int) int {
	if requested <= 0 {
		requested = def
	}
	if requested < min {
		return min
	}
	if requested > max {
		return max
	}
	return requested
}
