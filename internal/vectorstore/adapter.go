// Package vectorstore defines the vector-store adapter contract and two
// implementations: a REST adapter that speaks a Qdrant-style HTTP API
// directly, and a local adapter that composes the teacher's in-process
// HNSW graph and Bleve BM25 index for offline/dev/test use.
package vectorstore

import "context"

// Distance is a supported vector distance metric.
type Distance string

const (
	DistanceCosine Distance = "cosine"
	DistanceEuclid Distance = "euclid"
	DistanceDot    Distance = "dot"
)

// Sparse is a sparse vector in {indices[], values[]} form, co-located
// with a dense point when hybrid search is enabled.
type Sparse struct {
	Indices []uint64
	Values  []float32
}

// Point is one vector-store record: an ID, a dense vector, an optional
// sparse component, and a payload map used for filtering.
type Point struct {
	ID      string
	Vector  []float32
	Sparse  *Sparse
	Payload map[string]any
}

// CollectionInfo reports a collection's size, point count, and whether
// it was created with hybrid (sparse) support.
type CollectionInfo struct {
	Dimensions    int
	PointCount    int
	HybridEnabled bool
}

// Filter is expressed as flat key/value equality or multi-value
// ("any of") matches; the adapter translates it into the store's native
// must/should/must_not form. A nil Filter matches everything.
type Filter struct {
	Equals map[string]string   // key -> exact value
	AnyOf  map[string][]string // key -> accepted values
}

// SearchResult is one scored hit from a search or hybridSearch call.
type SearchResult struct {
	ID      string
	Score   float32
	Payload map[string]any
}

// Adapter is the vector-store contract every backend implements. It
// does not assume a specific client library; the REST adapter speaks
// the wire protocol directly and the local adapter composes in-process
// search engines behind the same shape.
type Adapter interface {
	CreateCollection(ctx context.Context, name string, dim int, distance Distance, hybridEnabled bool) error
	CollectionExists(ctx context.Context, name string) (bool, error)
	GetCollectionInfo(ctx context.Context, name string) (*CollectionInfo, error)
	DeleteCollection(ctx context.Context, name string) error

	AddPoints(ctx context.Context, collection string, points []Point) error
	AddPointsWithSparse(ctx context.Context, collection string, points []Point) error

	Search(ctx context.Context, collection string, dense []float32, limit int, filter *Filter) ([]SearchResult, error)
	HybridSearch(ctx context.Context, collection string, dense []float32, sparse Sparse, limit int, filter *Filter) ([]SearchResult, error)

	GetPoint(ctx context.Context, collection, id string) (*Point, error)
	DeletePoints(ctx context.Context, collection string, ids []string) error
}
