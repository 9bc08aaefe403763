package mcp

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhalder/qdrant-mcp-server-sub001/internal/gitindexer"
	"github.com/mhalder/qdrant-mcp-server-sub001/internal/indexer"
	"github.com/mhalder/qdrant-mcp-server-sub001/internal/mcpsurface"
	"github.com/mhalder/qdrant-mcp-server-sub001/internal/merkle"
	"github.com/mhalder/qdrant-mcp-server-sub001/internal/vectorstore"
)

type fakeEmbedder struct {
	dims int
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, f.dims)
	if len(text) > 0 {
		v[0] = 1
	}
	return v, nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, f.dims)
		v[0] = float32(i + 1)
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int                { return f.dims }
func (f *fakeEmbedder) ModelName() string              { return "fake-embedder" }
func (f *fakeEmbedder) Available(context.Context) bool { return true }
func (f *fakeEmbedder) Close() error                   { return nil }
func (f *fakeEmbedder) SetBatchIndex(int)              {}
func (f *fakeEmbedder) SetFinalBatch(bool)             {}

type fakeStore struct {
	mu          sync.Mutex
	collections map[string]*vectorstore.CollectionInfo
	points      map[string]map[string]vectorstore.Point
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		collections: map[string]*vectorstore.CollectionInfo{},
		points:      map[string]map[string]vectorstore.Point{},
	}
}

func (s *fakeStore) CreateCollection(_ context.Context, name string, dim int, _ vectorstore.Distance, hybrid bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[name] = &vectorstore.CollectionInfo{Dimensions: dim, HybridEnabled: hybrid}
	s.points[name] = map[string]vectorstore.Point{}
	return nil
}

func (s *fakeStore) CollectionExists(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.collections[name]
	return ok, nil
}

func (s *fakeStore) GetCollectionInfo(_ context.Context, name string) (*vectorstore.CollectionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.collections[name]
	if !ok {
		return nil, nil
	}
	cp := *info
	cp.PointCount = len(s.points[name])
	return &cp, nil
}

func (s *fakeStore) DeleteCollection(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections, name)
	delete(s.points, name)
	return nil
}

func (s *fakeStore) AddPoints(ctx context.Context, name string, points []vectorstore.Point) error {
	return s.AddPointsWithSparse(ctx, name, points)
}

func (s *fakeStore) AddPointsWithSparse(_ context.Context, name string, points []vectorstore.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range points {
		s.points[name][p.ID] = p
	}
	return nil
}

func (s *fakeStore) Search(_ context.Context, name string, _ []float32, limit int, _ *vectorstore.Filter) ([]vectorstore.SearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []vectorstore.SearchResult
	for _, p := range s.points[name] {
		out = append(out, vectorstore.SearchResult{ID: p.ID, Score: 1, Payload: p.Payload})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *fakeStore) HybridSearch(ctx context.Context, name string, dense []float32, _ vectorstore.Sparse, limit int, filter *vectorstore.Filter) ([]vectorstore.SearchResult, error) {
	return s.Search(ctx, name, dense, limit, filter)
}

func (s *fakeStore) GetPoint(_ context.Context, name, id string) (*vectorstore.Point, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.points[name][id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *fakeStore) DeletePoints(_ context.Context, name string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.points[name], id)
	}
	return nil
}

func newTestServer(t *testing.T) (*Server, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	ix, err := indexer.New(t.TempDir())
	require.NoError(t, err)

	srv, err := NewServer(Deps{
		Store:        store,
		Embedder:     &fakeEmbedder{dims: 4},
		Indexer:      ix,
		GitIndexer:   gitindexer.New(),
		Snapshots:    merkle.NewSnapshotStore(t.TempDir()),
		GitSnapshots: merkle.NewGitSnapshotStore(t.TempDir()),
	})
	require.NoError(t, err)
	return srv, store
}

func TestNewServer_RequiresDeps(t *testing.T) {
	_, err := NewServer(Deps{})
	assert.Error(t, err)
}

func TestHandleAddDocuments_CreatesCollectionAndStoresPoints(t *testing.T) {
	srv, store := newTestServer(t)

	_, out, err := srv.handleAddDocuments(context.Background(), nil, mcpsurface.AddDocumentsInput{
		Collection: "notes",
		Documents:  []mcpsurface.Document{{Content: "hello world"}, {Content: "second doc"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Added)
	assert.Len(t, out.IDs, 2)

	exists, _ := store.CollectionExists(context.Background(), "notes")
	assert.True(t, exists)
}

func TestHandleAddDocuments_RequiresCollectionAndDocuments(t *testing.T) {
	srv, _ := newTestServer(t)
	_, _, err := srv.handleAddDocuments(context.Background(), nil, mcpsurface.AddDocumentsInput{})
	assert.Error(t, err)
}

func TestHandleDeleteDocuments_RemovesPoints(t *testing.T) {
	srv, store := newTestServer(t)
	_, _, err := srv.handleAddDocuments(context.Background(), nil, mcpsurface.AddDocumentsInput{
		Collection: "notes",
		Documents:  []mcpsurface.Document{{Content: "hello"}},
	})
	require.NoError(t, err)

	var id string
	for pid := range store.points["notes"] {
		id = pid
	}

	_, out, err := srv.handleDeleteDocuments(context.Background(), nil, mcpsurface.DeleteDocumentsInput{
		Collection: "notes",
		IDs:        []string{id},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Deleted)
	assert.Empty(t, store.points["notes"])
}

func TestHandleSemanticSearch_ReturnsHits(t *testing.T) {
	srv, _ := newTestServer(t)
	_, _, err := srv.handleAddDocuments(context.Background(), nil, mcpsurface.AddDocumentsInput{
		Collection: "notes",
		Documents:  []mcpsurface.Document{{Content: "hello"}},
	})
	require.NoError(t, err)

	_, out, err := srv.handleSemanticSearch(context.Background(), nil, mcpsurface.SemanticSearchInput{
		Collection: "notes",
		Query:      "hello",
	})
	require.NoError(t, err)
	assert.Len(t, out.Results, 1)
}

func TestHandleSemanticSearch_RequiresQuery(t *testing.T) {
	srv, _ := newTestServer(t)
	_, _, err := srv.handleSemanticSearch(context.Background(), nil, mcpsurface.SemanticSearchInput{Collection: "notes"})
	assert.Error(t, err)
}

func TestHandleGetGitIndexStatus_NotIndexed(t *testing.T) {
	srv, _ := newTestServer(t)
	_, out, err := srv.handleGetGitIndexStatus(context.Background(), nil, mcpsurface.GetGitIndexStatusInput{Path: t.TempDir()})
	require.NoError(t, err)
	assert.False(t, out.Indexed)
}

func TestHandleClearGitIndex_NothingToClear(t *testing.T) {
	srv, _ := newTestServer(t)
	_, out, err := srv.handleClearGitIndex(context.Background(), nil, mcpsurface.ClearGitIndexInput{Path: t.TempDir()})
	require.NoError(t, err)
	assert.False(t, out.Cleared)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 5, clampLimit(0, 5, 1, 100))
	assert.Equal(t, 1, clampLimit(-3, 5, 1, 100))
	assert.Equal(t, 100, clampLimit(500, 5, 1, 100))
	assert.Equal(t, 10, clampLimit(10, 5, 1, 100))
}
