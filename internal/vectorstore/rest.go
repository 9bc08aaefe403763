package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	qerrors "github.com/mhalder/qdrant-mcp-server-sub001/internal/errors"
	"github.com/mhalder/qdrant-mcp-server-sub001/internal/meta"
)

// RESTAdapter speaks a Qdrant-style REST API directly. No vector-store
// client library exists anywhere in the reference corpus, so this
// adapter is deliberately built on net/http and encoding/json rather
// than a generated SDK.
type RESTAdapter struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewRESTAdapter creates an adapter against baseURL (e.g.
// "http://localhost:6333"). apiKey may be empty for unauthenticated
// deployments.
func NewRESTAdapter(baseURL, apiKey string) *RESTAdapter {
	return &RESTAdapter{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (a *RESTAdapter) do(ctx context.Context, method, path string, body any, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		req.Header.Set("api-key", a.apiKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (a *RESTAdapter) CreateCollection(ctx context.Context, name string, dim int, distance Distance, hybridEnabled bool) error {
	vectorsCfg := map[string]any{
		"size":     dim,
		"distance": restDistanceName(distance),
	}
	body := map[string]any{"vectors": vectorsCfg}
	if hybridEnabled {
		body["sparse_vectors"] = map[string]any{"text": map[string]any{}}
	}
	if err := a.do(ctx, http.MethodPut, "/collections/"+name, body, nil); err != nil {
		return qerrors.StoreError(name, err)
	}
	return nil
}

func restDistanceName(d Distance) string {
	switch d {
	case DistanceEuclid:
		return "Euclid"
	case DistanceDot:
		return "Dot"
	default:
		return "Cosine"
	}
}

func (a *RESTAdapter) CollectionExists(ctx context.Context, name string) (bool, error) {
	err := a.do(ctx, http.MethodGet, "/collections/"+name, nil, nil)
	if err != nil {
		return false, nil
	}
	return true, nil
}

func (a *RESTAdapter) GetCollectionInfo(ctx context.Context, name string) (*CollectionInfo, error) {
	var resp struct {
		Result struct {
			PointsCount int `json:"points_count"`
			Config      struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
					SparseVectors map[string]any `json:"sparse_vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	if err := a.do(ctx, http.MethodGet, "/collections/"+name, nil, &resp); err != nil {
		return nil, qerrors.StoreError(name, err)
	}
	return &CollectionInfo{
		Dimensions:    resp.Result.Config.Params.Vectors.Size,
		PointCount:    resp.Result.PointsCount,
		HybridEnabled: len(resp.Result.Config.Params.SparseVectors) > 0,
	}, nil
}

func (a *RESTAdapter) DeleteCollection(ctx context.Context, name string) error {
	if err := a.do(ctx, http.MethodDelete, "/collections/"+name, nil, nil); err != nil {
		return qerrors.StoreError(name, err)
	}
	return nil
}

func restPointID(id string) string {
	return meta.ReshapeToUUID(id)
}

func (a *RESTAdapter) upsert(ctx context.Context, collection string, points []Point, withSparse bool) error {
	wire := make([]map[string]any, 0, len(points))
	for _, p := range points {
		entry := map[string]any{
			"id":      restPointID(p.ID),
			"vector":  p.Vector,
			"payload": p.Payload,
		}
		if withSparse && p.Sparse != nil {
			entry["vector"] = map[string]any{
				"dense": p.Vector,
				"text":  map[string]any{"indices": p.Sparse.Indices, "values": p.Sparse.Values},
			}
		}
		wire = append(wire, entry)
	}
	body := map[string]any{"points": wire}
	path := "/collections/" + collection + "/points?wait=true"
	if err := a.do(ctx, http.MethodPut, path, body, nil); err != nil {
		return qerrors.StoreError(collection, err)
	}
	return nil
}

func (a *RESTAdapter) AddPoints(ctx context.Context, collection string, points []Point) error {
	return a.upsert(ctx, collection, points, false)
}

func (a *RESTAdapter) AddPointsWithSparse(ctx context.Context, collection string, points []Point) error {
	return a.upsert(ctx, collection, points, true)
}

func filterToWire(f *Filter) map[string]any {
	nf := toNative(f)
	if nf == nil || len(nf.Must) == 0 {
		return nil
	}
	must := make([]map[string]any, 0, len(nf.Must))
	for _, cond := range nf.Must {
		if cond.Any != nil {
			must = append(must, map[string]any{
				"key":   cond.Key,
				"match": map[string]any{"any": cond.Any},
			})
			continue
		}
		must = append(must, map[string]any{
			"key":   cond.Key,
			"match": map[string]any{"value": cond.Value},
		})
	}
	return map[string]any{"must": must}
}

func (a *RESTAdapter) search(ctx context.Context, collection string, body map[string]any) ([]SearchResult, error) {
	var resp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float32        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := a.do(ctx, http.MethodPost, "/collections/"+collection+"/points/search", body, &resp); err != nil {
		return nil, qerrors.StoreError(collection, err)
	}
	results := make([]SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		results = append(results, SearchResult{
			ID:      fmt.Sprintf("%v", r.ID),
			Score:   r.Score,
			Payload: r.Payload,
		})
	}
	return results, nil
}

func (a *RESTAdapter) Search(ctx context.Context, collection string, dense []float32, limit int, filter *Filter) ([]SearchResult, error) {
	body := map[string]any{
		"vector":       dense,
		"limit":        limit,
		"with_payload": true,
	}
	if wire := filterToWire(filter); wire != nil {
		body["filter"] = wire
	}
	return a.search(ctx, collection, body)
}

func (a *RESTAdapter) HybridSearch(ctx context.Context, collection string, dense []float32, sparse Sparse, limit int, filter *Filter) ([]SearchResult, error) {
	body := map[string]any{
		"prefetch": []map[string]any{
			{"query": dense, "using": "dense", "limit": limit * 2},
			{"query": map[string]any{"indices": sparse.Indices, "values": sparse.Values}, "using": "text", "limit": limit * 2},
		},
		"query":        map[string]any{"fusion": "rrf"},
		"limit":        limit,
		"with_payload": true,
	}
	if wire := filterToWire(filter); wire != nil {
		body["filter"] = wire
	}
	return a.search(ctx, collection, body)
}

func (a *RESTAdapter) GetPoint(ctx context.Context, collection, id string) (*Point, error) {
	var resp struct {
		Result struct {
			ID      any            `json:"id"`
			Vector  []float32      `json:"vector"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/%s", collection, restPointID(id))
	if err := a.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, qerrors.StoreError(collection, err)
	}
	return &Point{ID: id, Vector: resp.Result.Vector, Payload: resp.Result.Payload}, nil
}

func (a *RESTAdapter) DeletePoints(ctx context.Context, collection string, ids []string) error {
	wire := make([]string, len(ids))
	for i, id := range ids {
		wire[i] = restPointID(id)
	}
	body := map[string]any{"points": wire}
	path := "/collections/" + collection + "/points/delete?wait=true"
	if err := a.do(ctx, http.MethodPost, path, body, nil); err != nil {
		return qerrors.StoreError(collection, err)
	}
	return nil
}
