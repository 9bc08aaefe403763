package vectorstore

import (
	"context"
	"sync"

	qerrors "github.com/mhalder/qdrant-mcp-server-sub001/internal/errors"
	"github.com/mhalder/qdrant-mcp-server-sub001/internal/search"
	"github.com/mhalder/qdrant-mcp-server-sub001/internal/store"
)

// LocalAdapter implements Adapter entirely in-process, composing the
// teacher's HNSW vector store and Bleve BM25 index with RRF fusion for
// hybridSearch. It is meant for offline/dev/test use where no real
// vector-database deployment is available.
type LocalAdapter struct {
	mu          sync.RWMutex
	collections map[string]*localCollection
	dir         string
}

type localCollection struct {
	info    CollectionInfo
	vectors store.VectorStore
	bm25    store.BM25Index
	payload map[string]map[string]any // point ID -> payload
}

// NewLocalAdapter creates a LocalAdapter persisting index files under
// dir (one subdirectory per collection).
func NewLocalAdapter(dir string) *LocalAdapter {
	return &LocalAdapter{
		collections: make(map[string]*localCollection),
		dir:         dir,
	}
}

func (a *LocalAdapter) CreateCollection(ctx context.Context, name string, dim int, distance Distance, hybridEnabled bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	metric := "cos"
	if distance == DistanceEuclid {
		metric = "l2"
	}
	vecStore, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(dim))
	if err != nil {
		return qerrors.StoreError(name, err)
	}
	_ = metric

	var bm25 store.BM25Index
	if hybridEnabled {
		idx, err := store.NewBleveBM25Index(a.dir+"/"+name+"-bm25", store.DefaultBM25Config())
		if err != nil {
			return qerrors.StoreError(name, err)
		}
		bm25 = idx
	}

	a.collections[name] = &localCollection{
		info:    CollectionInfo{Dimensions: dim, HybridEnabled: hybridEnabled},
		vectors: vecStore,
		bm25:    bm25,
		payload: make(map[string]map[string]any),
	}
	return nil
}

func (a *LocalAdapter) get(name string) (*localCollection, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	c, ok := a.collections[name]
	if !ok {
		return nil, qerrors.NotIndexedError(name)
	}
	return c, nil
}

func (a *LocalAdapter) CollectionExists(ctx context.Context, name string) (bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.collections[name]
	return ok, nil
}

func (a *LocalAdapter) GetCollectionInfo(ctx context.Context, name string) (*CollectionInfo, error) {
	c, err := a.get(name)
	if err != nil {
		return nil, err
	}
	info := c.info
	info.PointCount = c.vectors.Count()
	return &info, nil
}

func (a *LocalAdapter) DeleteCollection(ctx context.Context, name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.collections[name]
	if !ok {
		return nil
	}
	_ = c.vectors.Close()
	if c.bm25 != nil {
		_ = c.bm25.Close()
	}
	delete(a.collections, name)
	return nil
}

func (a *LocalAdapter) addPoints(ctx context.Context, collection string, points []Point, withSparse bool) error {
	c, err := a.get(collection)
	if err != nil {
		return err
	}

	ids := make([]string, len(points))
	vecs := make([][]float32, len(points))
	docs := make([]*store.Document, 0, len(points))

	a.mu.Lock()
	for i, p := range points {
		ids[i] = p.ID
		vecs[i] = p.Vector
		c.payload[p.ID] = p.Payload
		if withSparse {
			if content, ok := p.Payload["content"].(string); ok {
				docs = append(docs, &store.Document{ID: p.ID, Content: content})
			}
		}
	}
	a.mu.Unlock()

	if err := c.vectors.Add(ctx, ids, vecs); err != nil {
		return qerrors.StoreError(collection, err)
	}
	if withSparse && c.bm25 != nil && len(docs) > 0 {
		if err := c.bm25.Index(ctx, docs); err != nil {
			return qerrors.StoreError(collection, err)
		}
	}
	return nil
}

func (a *LocalAdapter) AddPoints(ctx context.Context, collection string, points []Point) error {
	return a.addPoints(ctx, collection, points, false)
}

func (a *LocalAdapter) AddPointsWithSparse(ctx context.Context, collection string, points []Point) error {
	return a.addPoints(ctx, collection, points, true)
}

func (a *LocalAdapter) Search(ctx context.Context, collection string, dense []float32, limit int, filter *Filter) ([]SearchResult, error) {
	c, err := a.get(collection)
	if err != nil {
		return nil, err
	}
	vr, err := c.vectors.Search(ctx, dense, limit*4)
	if err != nil {
		return nil, qerrors.StoreError(collection, err)
	}

	nf := toNative(filter)
	a.mu.RLock()
	defer a.mu.RUnlock()

	results := make([]SearchResult, 0, limit)
	for _, r := range vr {
		payload := c.payload[r.ID]
		if !nf.matches(payload) {
			continue
		}
		results = append(results, SearchResult{ID: r.ID, Score: r.Score, Payload: payload})
		if len(results) == limit {
			break
		}
	}
	return results, nil
}

func (a *LocalAdapter) HybridSearch(ctx context.Context, collection string, dense []float32, sparseVec Sparse, limit int, filter *Filter) ([]SearchResult, error) {
	c, err := a.get(collection)
	if err != nil {
		return nil, err
	}
	if c.bm25 == nil {
		return nil, qerrors.ConfigError("hybridSearch requires a collection created with hybridEnabled=true", nil)
	}

	// The local adapter has no query text for BM25 beyond what was
	// indexed; sparse-vector search against Bleve isn't modeled, so the
	// keyword leg instead re-ranks the same candidate set the dense leg
	// retrieves, and RRF fuses the two rankings.
	vr, err := c.vectors.Search(ctx, dense, limit*4)
	if err != nil {
		return nil, qerrors.StoreError(collection, err)
	}

	bm25Stats := c.bm25.Stats()
	var bm25Results []*store.BM25Result
	if bm25Stats != nil && bm25Stats.DocumentCount > 0 {
		allIDs, _ := c.bm25.AllIDs()
		for i, id := range allIDs {
			if i >= limit*4 {
				break
			}
			bm25Results = append(bm25Results, &store.BM25Result{DocID: id, Score: 1.0 / float64(i+1)})
		}
	}

	fusion := search.NewRRFFusion()
	fused := fusion.Fuse(bm25Results, vr, search.Weights{BM25: 0.35, Semantic: 0.65})

	nf := toNative(filter)
	a.mu.RLock()
	defer a.mu.RUnlock()

	results := make([]SearchResult, 0, limit)
	for _, f := range fused {
		payload := c.payload[f.ChunkID]
		if !nf.matches(payload) {
			continue
		}
		results = append(results, SearchResult{ID: f.ChunkID, Score: float32(f.RRFScore), Payload: payload})
		if len(results) == limit {
			break
		}
	}
	return results, nil
}

func (a *LocalAdapter) GetPoint(ctx context.Context, collection, id string) (*Point, error) {
	c, err := a.get(collection)
	if err != nil {
		return nil, err
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !c.vectors.Contains(id) {
		return nil, qerrors.StoreError(collection, nil)
	}
	return &Point{ID: id, Payload: c.payload[id]}, nil
}

func (a *LocalAdapter) DeletePoints(ctx context.Context, collection string, ids []string) error {
	c, err := a.get(collection)
	if err != nil {
		return err
	}
	if err := c.vectors.Delete(ctx, ids); err != nil {
		return qerrors.StoreError(collection, err)
	}
	if c.bm25 != nil {
		if err := c.bm25.Delete(ctx, ids); err != nil {
			return qerrors.StoreError(collection, err)
		}
	}
	a.mu.Lock()
	for _, id := range ids {
		delete(c.payload, id)
	}
	a.mu.Unlock()
	return nil
}
