package indexer

import (
	"context"
	"sort"
	"time"

	"github.com/mhalder/qdrant-mcp-server-sub001/internal/merkle"
	"github.com/mhalder/qdrant-mcp-server-sub001/internal/vectorstore"
)

// InconsistencyType classifies a detected mismatch between the chunk
// index (the file -> chunk-IDs relation recorded alongside the Merkle
// snapshot) and the vector store's actual contents.
type InconsistencyType string

const (
	// InconsistencyMissingPoint means a chunk ID the index believes a
	// file owns is no longer present in the vector store.
	InconsistencyMissingPoint InconsistencyType = "missing_point"

	// InconsistencyCountMismatch means the store's point count for a
	// collection disagrees with the index's recorded chunk count. It is
	// the cheap signal QuickCheck reports; it does not say which chunks.
	InconsistencyCountMismatch InconsistencyType = "count_mismatch"
)

// Inconsistency is one detected mismatch.
type Inconsistency struct {
	Type     InconsistencyType
	ChunkID  string
	FilePath string
	Details  string
}

// CheckResult is the outcome of a consistency pass.
type CheckResult struct {
	Checked         int
	Inconsistencies []Inconsistency
	Duration        time.Duration
}

// QuickCheck compares the store's reported point count for collection
// against the chunk index's recorded count, without touching individual
// points. It is the cheap health signal for a status/doctor command;
// CheckConsistency is the expensive, per-chunk pass.
func (ix *Indexer) QuickCheck(ctx context.Context, store vectorstore.Adapter, collection string) (*CheckResult, error) {
	start := time.Now()
	res := &CheckResult{}

	info, err := store.GetCollectionInfo(ctx, collection)
	if err != nil {
		res.Duration = time.Since(start)
		return res, err
	}

	cm, _ := ix.chunkMaps.Load(collection)
	expected := 0
	if cm != nil {
		for _, ids := range cm.ByFile {
			expected += len(ids)
		}
	}
	res.Checked = expected

	if info == nil || info.PointCount != expected {
		got := 0
		if info != nil {
			got = info.PointCount
		}
		res.Inconsistencies = append(res.Inconsistencies, Inconsistency{
			Type:    InconsistencyCountMismatch,
			Details: mismatchDetail(expected, got),
		})
	}

	res.Duration = time.Since(start)
	return res, nil
}

// CheckConsistency walks every chunk ID the index believes exists and
// confirms it's still retrievable from store. This is O(chunks) in
// GetPoint calls -- run it on demand, not on every search.
func (ix *Indexer) CheckConsistency(ctx context.Context, store vectorstore.Adapter, collection string) (*CheckResult, error) {
	start := time.Now()
	res := &CheckResult{}

	cm, _ := ix.chunkMaps.Load(collection)
	if cm == nil {
		res.Duration = time.Since(start)
		return res, nil
	}

	paths := make([]string, 0, len(cm.ByFile))
	for p := range cm.ByFile {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, path := range paths {
		for _, id := range cm.ByFile[path] {
			select {
			case <-ctx.Done():
				res.Duration = time.Since(start)
				return res, ctx.Err()
			default:
			}
			res.Checked++
			pt, err := store.GetPoint(ctx, collection, id)
			if err != nil || pt == nil {
				res.Inconsistencies = append(res.Inconsistencies, Inconsistency{
					Type:     InconsistencyMissingPoint,
					ChunkID:  id,
					FilePath: path,
					Details:  "recorded in the chunk index but absent from the vector store",
				})
			}
		}
	}

	res.Duration = time.Since(start)
	return res, nil
}

// Repair clears the affected files' entries from both the chunk index
// and the Merkle snapshot, forcing the next IndexCodebase run to treat
// them as modified and fully re-chunk/embed/store them. There is no
// in-place fix for a missing point: the original chunk content isn't
// retained once a run completes, so repair is "schedule for reindex",
// not "patch the store directly". It returns the file paths it flagged.
func (ix *Indexer) Repair(ctx context.Context, snapshots *merkle.SnapshotStore, collection string, issues []Inconsistency) ([]string, error) {
	affected := map[string]struct{}{}
	for _, iss := range issues {
		if iss.Type == InconsistencyMissingPoint && iss.FilePath != "" {
			affected[iss.FilePath] = struct{}{}
		}
	}
	if len(affected) == 0 {
		return nil, nil
	}

	snap, err := snapshots.Load(collection)
	if err != nil {
		return nil, err
	}
	if snap != nil {
		hashes := cloneMap(snap.FileHashes)
		for p := range affected {
			delete(hashes, p)
		}
		newSnap, err := merkle.NewSnapshot(snap.CodebasePath, hashes, time.Now())
		if err != nil {
			return nil, err
		}
		if err := snapshots.Save(collection, newSnap); err != nil {
			return nil, err
		}
	}

	cm, _ := ix.chunkMaps.Load(collection)
	if cm != nil {
		byFile := cloneSliceMap(cm.ByFile)
		for p := range affected {
			delete(byFile, p)
		}
		if err := ix.chunkMaps.Save(collection, &chunkMap{CodebasePath: cm.CodebasePath, ByFile: byFile}); err != nil {
			return nil, err
		}
	}

	out := make([]string, 0, len(affected))
	for p := range affected {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

func mismatchDetail(expected, got int) string {
	if got < expected {
		return "store has fewer points than the chunk index expects"
	}
	return "store has more points than the chunk index expects"
}
