// Package sparse builds BM25-weighted sparse vectors co-located with
// dense embeddings in the hybrid retrieval path. Tokenization reuses the
// code-aware splitting the teacher's local BM25 index already performs
// (camelCase/snake_case aware, stop-word filtered); term identity is
// then hashed into a fixed index space instead of a growing vocabulary
// table, so the output format never depends on what has been seen so
// far.
package sparse

import (
	"math"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/mhalder/qdrant-mcp-server-sub001/internal/store"
)

// DefaultIndexSpace is the recommended hashing modulus (2^20), large
// enough to keep hash collisions rare for typical codebases while still
// producing indices small enough for compact wire payloads.
const DefaultIndexSpace = 1 << 20

// Vector is a sparse vector in {indices[], values[]} form. Indices are
// unique non-negative integers; values are strictly positive.
type Vector struct {
	Indices []uint64  `json:"indices"`
	Values  []float32 `json:"values"`
}

// Generator produces BM25-weighted sparse vectors. It is safe for
// concurrent use; Train/IDF use a read-write lock over the shared table.
type Generator struct {
	indexSpace uint64
	stopWords  map[string]struct{}

	mu  sync.RWMutex
	idf map[string]float64 // term -> trained idf; absent term defaults to 1.0
}

// NewGenerator creates a Generator hashing into the given index space.
// A space of 0 uses DefaultIndexSpace.
func NewGenerator(indexSpace uint64) *Generator {
	if indexSpace == 0 {
		indexSpace = DefaultIndexSpace
	}
	return &Generator{
		indexSpace: indexSpace,
		stopWords:  store.BuildStopWordMap(store.DefaultCodeStopWords),
		idf:        make(map[string]float64),
	}
}

func (g *Generator) tokenize(text string) []string {
	tokens := store.TokenizeCode(text)
	return store.FilterStopWords(tokens, g.stopWords)
}

// Generate builds the sparse vector for a single document. Identical
// input text produces identical output across processes, since hashing
// and the default IDF are both process-independent. Empty input
// produces empty arrays.
func (g *Generator) Generate(text string) Vector {
	tokens := g.tokenize(text)
	if len(tokens) == 0 {
		return Vector{}
	}

	tf := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		tf[tok]++
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	terms := make([]string, 0, len(tf))
	for t := range tf {
		terms = append(terms, t)
	}
	sort.Strings(terms) // stable output ordering for identical inputs

	vec := Vector{
		Indices: make([]uint64, 0, len(terms)),
		Values:  make([]float32, 0, len(terms)),
	}
	for _, term := range terms {
		idf := 1.0
		if trained, ok := g.idf[term]; ok {
			idf = trained
		}
		value := float64(tf[term]) * idf
		if value <= 0 {
			continue
		}
		vec.Indices = append(vec.Indices, xxhash.Sum64String(term)%g.indexSpace)
		vec.Values = append(vec.Values, float32(value))
	}
	return vec
}

// Train computes per-term IDF over a corpus of documents and replaces
// the generator's IDF table. idf(t) = log(1 + N/df(t)), N = len(corpus),
// df(t) = number of documents containing t at least once.
func (g *Generator) Train(corpus []string) {
	df := make(map[string]int)
	for _, doc := range corpus {
		seen := make(map[string]struct{})
		for _, tok := range g.tokenize(doc) {
			seen[tok] = struct{}{}
		}
		for tok := range seen {
			df[tok]++
		}
	}

	n := float64(len(corpus))
	idf := make(map[string]float64, len(df))
	for term, count := range df {
		idf[term] = math.Log(1 + n/float64(count))
	}

	g.mu.Lock()
	g.idf = idf
	g.mu.Unlock()
}

// IsTrained reports whether Train has populated the IDF table.
func (g *Generator) IsTrained() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.idf) > 0
}
