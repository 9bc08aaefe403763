package gitindexer

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhalder/qdrant-mcp-server-sub001/internal/merkle"
	"github.com/mhalder/qdrant-mcp-server-sub001/internal/sparse"
	"github.com/mhalder/qdrant-mcp-server-sub001/internal/vectorstore"
)

// fakeEmbedder returns a deterministic vector per text, optionally
// failing on a configured batch call index.
type fakeEmbedder struct {
	dims       int
	failOnCall int
	calls      int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	call := f.calls
	f.calls++
	if f.failOnCall >= 0 && call == f.failOnCall {
		return nil, assert.AnError
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dims)
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int       { return f.dims }
func (f *fakeEmbedder) ModelName() string     { return "fake-embedder" }
func (f *fakeEmbedder) Available(context.Context) bool { return true }
func (f *fakeEmbedder) Close() error           { return nil }
func (f *fakeEmbedder) SetBatchIndex(int)      {}
func (f *fakeEmbedder) SetFinalBatch(bool)     {}

// fakeStore is an in-memory vectorstore.Adapter sufficient for the
// gitindexer's CreateCollection/AddPointsWithSparse/CollectionExists use.
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

func (s *fakeStore) CreateCollection(ctx context.Context, name string, dim int, distance vectorstore.Distance, hybrid bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[name] = &vectorstore.CollectionInfo{Dimensions: dim, HybridEnabled: hybrid}
	s.points[name] = map[string]vectorstore.Point{}
	return nil
}

func (s *fakeStore) CollectionExists(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.collections[name]
	return ok, nil
}

func (s *fakeStore) GetCollectionInfo(ctx context.Context, name string) (*vectorstore.CollectionInfo, error) {
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

func (s *fakeStore) DeleteCollection(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections, name)
	delete(s.points, name)
	return nil
}

func (s *fakeStore) AddPoints(ctx context.Context, name string, points []vectorstore.Point) error {
	return s.AddPointsWithSparse(ctx, name, points)
}

func (s *fakeStore) AddPointsWithSparse(ctx context.Context, name string, points []vectorstore.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range points {
		s.points[name][p.ID] = p
	}
	return nil
}

func (s *fakeStore) Search(_ context.Context, _ string, _ []float32, _ int, _ *vectorstore.Filter) ([]vectorstore.SearchResult, error) {
	return nil, nil
}

func (s *fakeStore) HybridSearch(_ context.Context, _ string, _ []float32, _ vectorstore.Sparse, _ int, _ *vectorstore.Filter) ([]vectorstore.SearchResult, error) {
	return nil, nil
}

func (s *fakeStore) GetPoint(ctx context.Context, name, id string) (*vectorstore.Point, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.points[name][id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *fakeStore) DeletePoints(ctx context.Context, name string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.points[name], id)
	}
	return nil
}

// testRepo wraps a throwaway git repository for commit-history tests.
type testRepo struct {
	t      *testing.T
	path   string
	repo   *git.Repository
	author *object.Signature
}

func newTestRepo(t *testing.T) *testRepo {
	t.Helper()
	path := filepath.Join(t.TempDir(), "repo")
	repo, err := git.PlainInit(path, false)
	require.NoError(t, err)
	return &testRepo{
		t:    t,
		path: path,
		repo: repo,
		author: &object.Signature{
			Name:  "Test Author",
			Email: "author@example.com",
			When:  time.Now(),
		},
	}
}

func (r *testRepo) commit(relPath, content, message string) string {
	r.t.Helper()
	full := filepath.Join(r.path, relPath)
	require.NoError(r.t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(r.t, os.WriteFile(full, []byte(content), 0o644))

	wt, err := r.repo.Worktree()
	require.NoError(r.t, err)
	_, err = wt.Add(".")
	require.NoError(r.t, err)

	hash, err := wt.Commit(message, &git.CommitOptions{Author: r.author})
	require.NoError(r.t, err)
	return hash.String()
}

func newTestOpts(dir string, embedder *fakeEmbedder, store *fakeStore) Options {
	return Options{
		RepoPath:  dir,
		Embedder:  embedder,
		Store:     store,
		Snapshots: merkle.NewGitSnapshotStore(filepath.Join(dir, "..", "git-snapshots")),
		Sparse:    sparse.NewGenerator(0),
	}
}

func TestIndexHistory_IndexesAllCommits(t *testing.T) {
	repo := newTestRepo(t)
	repo.commit("a.txt", "one", "feat: add a")
	repo.commit("b.txt", "two", "fix: add b")

	gi := New()
	res, err := gi.IndexHistory(context.Background(), newTestOpts(repo.path, &fakeEmbedder{dims: 4, failOnCall: -1}, newFakeStore()))
	require.NoError(t, err)
	assert.Equal(t, 2, res.CommitsScanned)
	assert.Equal(t, 2, res.NewCommits)
	assert.Equal(t, "complete", res.Status)
}

func TestIndexHistory_RespectsMaxCommits(t *testing.T) {
	repo := newTestRepo(t)
	repo.commit("a.txt", "one", "feat: add a")
	repo.commit("b.txt", "two", "fix: add b")
	repo.commit("c.txt", "three", "chore: add c")

	gi := New()
	opts := newTestOpts(repo.path, &fakeEmbedder{dims: 4, failOnCall: -1}, newFakeStore())
	opts.MaxCommits = 2
	res, err := gi.IndexHistory(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 2, res.CommitsScanned)
}

func TestIndexNewCommits_NoCheckpoint_FallsBackToFullHistory(t *testing.T) {
	repo := newTestRepo(t)
	repo.commit("a.txt", "one", "feat: add a")

	gi := New()
	res, err := gi.IndexNewCommits(context.Background(), newTestOpts(repo.path, &fakeEmbedder{dims: 4, failOnCall: -1}, newFakeStore()))
	require.NoError(t, err)
	assert.Equal(t, 1, res.NewCommits)
}

func TestIndexNewCommits_OnlyProcessesCommitsAfterCheckpoint(t *testing.T) {
	repo := newTestRepo(t)
	repo.commit("a.txt", "one", "feat: add a")

	gi := New()
	store := newFakeStore()
	embedder := &fakeEmbedder{dims: 4, failOnCall: -1}
	opts := newTestOpts(repo.path, embedder, store)

	first, err := gi.IndexHistory(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 1, first.CommitsScanned)

	repo.commit("b.txt", "two", "fix: add b")
	repo.commit("c.txt", "three", "chore: add c")

	second, err := gi.IndexNewCommits(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 2, second.NewCommits)
}

func TestIndexNewCommits_EmptyRange_IsNoOp(t *testing.T) {
	repo := newTestRepo(t)
	repo.commit("a.txt", "one", "feat: add a")

	gi := New()
	opts := newTestOpts(repo.path, &fakeEmbedder{dims: 4, failOnCall: -1}, newFakeStore())

	_, err := gi.IndexHistory(context.Background(), opts)
	require.NoError(t, err)

	res, err := gi.IndexNewCommits(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 0, res.NewCommits)
	assert.Equal(t, "complete", res.Status)
}

func TestIndexHistory_BatchEmbedFailure_MarksPartial(t *testing.T) {
	repo := newTestRepo(t)
	repo.commit("a.txt", "one", "feat: add a")
	repo.commit("b.txt", "two", "fix: add b")

	gi := New()
	opts := newTestOpts(repo.path, &fakeEmbedder{dims: 4, failOnCall: 0}, newFakeStore())
	opts.BatchSize = 1
	res, err := gi.IndexHistory(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, "partial", res.Status)
	assert.NotEmpty(t, res.Errors)
	assert.Less(t, res.NewCommits, res.CommitsScanned)
}

func TestIndexHistory_ProgressReportsMonotonically(t *testing.T) {
	repo := newTestRepo(t)
	repo.commit("a.txt", "one", "feat: add a")
	repo.commit("b.txt", "two", "fix: add b")

	var percents []float64
	gi := New()
	opts := newTestOpts(repo.path, &fakeEmbedder{dims: 4, failOnCall: -1}, newFakeStore())
	opts.Progress = func(p Progress) { percents = append(percents, p.Percent) }
	_, err := gi.IndexHistory(context.Background(), opts)
	require.NoError(t, err)
	require.NotEmpty(t, percents)
	assert.True(t, sort.Float64sAreSorted(percents))
}
