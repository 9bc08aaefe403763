package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mhalder/qdrant-mcp-server-sub001/internal/config"
	"github.com/mhalder/qdrant-mcp-server-sub001/internal/embed"
	"github.com/mhalder/qdrant-mcp-server-sub001/internal/gitindexer"
	"github.com/mhalder/qdrant-mcp-server-sub001/internal/indexer"
	"github.com/mhalder/qdrant-mcp-server-sub001/internal/mcp"
	"github.com/mhalder/qdrant-mcp-server-sub001/internal/merkle"
	"github.com/mhalder/qdrant-mcp-server-sub001/internal/sparse"
	"github.com/mhalder/qdrant-mcp-server-sub001/internal/vectorstore"
)

// projectContext bundles the project root and its data directory, both
// derived once per command invocation.
type projectContext struct {
	Root    string
	DataDir string
	Config  *config.Config
}

// resolveProject finds the project root containing path (or falls back
// to path itself) and loads its merged configuration.
func resolveProject(path string) (*projectContext, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	root, err := config.FindProjectRoot(absPath)
	if err != nil {
		root = absPath
	}

	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.NewConfig()
	}

	dataDir := filepath.Join(root, ".qdrantmcp")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return &projectContext{Root: root, DataDir: dataDir, Config: cfg}, nil
}

// newVectorStore builds the vector-store adapter for pc. A local,
// file-backed adapter is used by default; setting QDRANT_URL switches to
// the REST adapter against a real Qdrant deployment.
func newVectorStore(pc *projectContext) vectorstore.Adapter {
	if url := os.Getenv("QDRANT_URL"); url != "" {
		return vectorstore.NewRESTAdapter(url, os.Getenv("QDRANT_API_KEY"))
	}
	return vectorstore.NewLocalAdapter(filepath.Join(pc.DataDir, "vectorstore"))
}

// newEmbedderForConfig creates the embedder selected by cfg.Embeddings,
// honoring AMANMCP_EMBEDDER as a per-invocation override.
func newEmbedderForConfig(ctx context.Context, cfg *config.Config) (embed.Embedder, error) {
	provider := embed.ParseProvider(cfg.Embeddings.Provider)
	if override := os.Getenv("AMANMCP_EMBEDDER"); override != "" {
		provider = embed.ParseProvider(override)
	}
	return embed.NewEmbedder(ctx, provider, cfg.Embeddings.Model)
}

// buildServerDeps wires every dependency internal/mcp.Server needs for
// pc: the vector store, embedder, sparse generator, and the code/git
// indexers and their checkpoint stores.
func buildServerDeps(ctx context.Context, pc *projectContext) (mcp.Deps, func(), error) {
	store := newVectorStore(pc)

	embedder, err := newEmbedderForConfig(ctx, pc.Config)
	if err != nil {
		return mcp.Deps{}, nil, fmt.Errorf("embedder initialization failed: %w", err)
	}

	ix, err := indexer.New(pc.DataDir)
	if err != nil {
		_ = embedder.Close()
		return mcp.Deps{}, nil, fmt.Errorf("failed to create indexer: %w", err)
	}

	deps := mcp.Deps{
		Store:        store,
		Embedder:     embedder,
		Sparse:       sparse.NewGenerator(sparse.DefaultIndexSpace),
		Indexer:      ix,
		GitIndexer:   gitindexer.New(),
		Snapshots:    merkle.NewSnapshotStore(filepath.Join(pc.DataDir, "snapshots")),
		GitSnapshots: merkle.NewGitSnapshotStore(filepath.Join(pc.DataDir, "git-snapshots")),
		Config:       pc.Config,
	}

	cleanup := func() { _ = embedder.Close() }
	return deps, cleanup, nil
}

// newMCPServer constructs the MCP server from already-built deps.
func newMCPServer(deps mcp.Deps) (*mcp.Server, error) {
	srv, err := mcp.NewServer(deps)
	if err != nil {
		return nil, fmt.Errorf("failed to create MCP server: %w", err)
	}
	return srv, nil
}
