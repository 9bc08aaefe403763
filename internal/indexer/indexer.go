// Package indexer drives the scan -> chunk -> embed -> store pipeline
// that keeps a codebase's vector-store collection in sync with its
// working tree, using a Merkle snapshot of per-file content hashes to
// skip unchanged files on repeat runs.
package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/mhalder/qdrant-mcp-server-sub001/internal/chunk"
	"github.com/mhalder/qdrant-mcp-server-sub001/internal/config"
	"github.com/mhalder/qdrant-mcp-server-sub001/internal/embed"
	qerrors "github.com/mhalder/qdrant-mcp-server-sub001/internal/errors"
	"github.com/mhalder/qdrant-mcp-server-sub001/internal/merkle"
	"github.com/mhalder/qdrant-mcp-server-sub001/internal/meta"
	"github.com/mhalder/qdrant-mcp-server-sub001/internal/scanner"
	"github.com/mhalder/qdrant-mcp-server-sub001/internal/sparse"
	"github.com/mhalder/qdrant-mcp-server-sub001/internal/vectorstore"
)

// Default caps. A file contributing more than DefaultMaxChunksPerFile
// chunks has its tail truncated with a warning rather than failing the
// whole run; DefaultMaxTotalChunks bounds a single run's memory and API
// spend on a codebase far larger than expected.
const (
	DefaultMaxChunksPerFile = 500
	DefaultMaxTotalChunks   = 200_000
)

// Stage names a pipeline phase, reported through Options.Progress.
type Stage string

const (
	StageScanning  Stage = "scanning"
	StageChunking  Stage = "chunking"
	StageEmbedding Stage = "embedding"
	StageStoring   Stage = "storing"
)

// Progress is one update emitted during IndexCodebase.
type Progress struct {
	Stage   Stage
	Current int
	Total   int
	Percent float64
}

// Options configures a single IndexCodebase run.
type Options struct {
	RootDir string

	Embedder embed.Embedder
	Store    vectorstore.Adapter

	// Snapshots persists the Merkle file-hash map used to compute which
	// files changed since the last run. Required.
	Snapshots *merkle.SnapshotStore

	// Sparse generates the hybrid BM25 component. A nil Sparse disables
	// hybrid indexing: the collection is created dense-only.
	Sparse *sparse.Generator

	PathsInclude []string
	PathsExclude []string
	Submodules   *config.SubmoduleConfig

	// MaxChunksPerFile and MaxTotalChunks default to
	// DefaultMaxChunksPerFile / DefaultMaxTotalChunks when zero.
	MaxChunksPerFile int
	MaxTotalChunks   int

	// BatchSize defaults to embed.DefaultBatchSize when zero.
	BatchSize int

	// Force re-chunks and re-embeds every file, ignoring the existing
	// snapshot. Deleted files are still diffed against the old snapshot.
	Force bool

	Progress func(Progress)
}

// Result summarizes a completed (or partially completed) run.
type Result struct {
	FilesScanned  int
	FilesIndexed  int
	FilesDeleted  int
	ChunksIndexed int
	ChunksDeleted int

	// Status is "complete" if every discovered change was embedded and
	// stored, or "partial" if at least one batch failed along the way.
	Status string

	Duration time.Duration
	Warnings []string
	Errors   []string
}

// Indexer holds the stateless scanning/chunking machinery shared across
// runs. It is safe for concurrent use across different codebases, since
// all per-run state lives in the Options/Result values passed through
// IndexCodebase.
type Indexer struct {
	scanner   *scanner.Scanner
	chunker   chunk.Chunker
	chunkMaps *chunkMapStore
}

// New creates an Indexer. stateDir roots the chunk-ownership sidecar
// that accompanies each codebase's Merkle snapshot (see sidecar.go).
func New(stateDir string) (*Indexer, error) {
	sc, err := scanner.New()
	if err != nil {
		return nil, err
	}
	return &Indexer{
		scanner:   sc,
		chunker:   chunk.NewCodeChunker(),
		chunkMaps: newChunkMapStore(filepath.Join(stateDir, "chunkmaps")),
	}, nil
}

type fileRecord struct {
	path    string // relative
	absPath string
	content []byte
	hash    string
}

// IndexCodebase scans opts.RootDir, diffs it against the last recorded
// snapshot, and chunks/embeds/stores only what changed. The snapshot
// and chunk-ownership sidecar are updated to reflect exactly the files
// that were fully processed -- a file left out of a failed batch keeps
// its old hash, so the next run retries it.
func (ix *Indexer) IndexCodebase(ctx context.Context, opts Options) (*Result, error) {
	start := time.Now()
	if opts.Embedder == nil || opts.Store == nil || opts.Snapshots == nil {
		return nil, qerrors.ConfigError("indexer: Embedder, Store, and Snapshots are required", nil)
	}
	maxPerFile := opts.MaxChunksPerFile
	if maxPerFile <= 0 {
		maxPerFile = DefaultMaxChunksPerFile
	}
	maxTotal := opts.MaxTotalChunks
	if maxTotal <= 0 {
		maxTotal = DefaultMaxTotalChunks
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = embed.DefaultBatchSize
	}

	absRoot, err := filepath.Abs(opts.RootDir)
	if err != nil {
		return nil, qerrors.ValidationError("resolving root directory", err)
	}
	collection := meta.CodeCollectionName(absRoot)
	res := &Result{Status: "complete"}

	records, scanWarnings, err := ix.scanAndRead(ctx, absRoot, opts)
	if err != nil {
		return nil, err
	}
	res.Warnings = append(res.Warnings, scanWarnings...)
	res.FilesScanned = len(records)

	newHashes := make(map[string]string, len(records))
	byPath := make(map[string]*fileRecord, len(records))
	for _, r := range records {
		newHashes[r.path] = r.hash
		byPath[r.path] = r
	}

	var oldHashes map[string]string
	if !opts.Force {
		snap, _ := opts.Snapshots.Load(collection)
		if snap != nil {
			oldHashes = snap.FileHashes
		}
	}
	if oldHashes == nil {
		oldHashes = map[string]string{}
	}

	oldChunkMap, _ := ix.chunkMaps.Load(collection)
	byFile := map[string][]string{}
	if oldChunkMap != nil {
		byFile = oldChunkMap.ByFile
	}

	diff := merkle.Compare(oldHashes, newHashes)
	if opts.Force {
		diff = forceDiff(oldHashes, newHashes)
	}

	toProcess := mergeSorted(diff.Added, diff.Modified)
	toDelete := mergeSorted(diff.Deleted, diff.Modified)

	var deleteIDs []string
	for _, p := range toDelete {
		deleteIDs = append(deleteIDs, byFile[p]...)
	}

	chunks, truncated, chunkWarnings := ix.chunkFiles(ctx, byPath, toProcess, maxPerFile, maxTotal, opts.Progress)
	res.Warnings = append(res.Warnings, chunkWarnings...)
	if truncated {
		res.Status = "partial"
	}

	finalHashes := cloneMap(oldHashes)
	finalByFile := cloneSliceMap(byFile)
	for _, p := range diff.Deleted {
		delete(finalHashes, p)
		delete(finalByFile, p)
	}

	if len(chunks) == 0 && len(deleteIDs) == 0 {
		if err := persistState(opts.Snapshots, ix.chunkMaps, collection, absRoot, finalHashes, finalByFile); err != nil {
			return nil, err
		}
		res.Duration = time.Since(start)
		return res, nil
	}

	exists, err := opts.Store.CollectionExists(ctx, collection)
	if err != nil {
		return nil, qerrors.Wrap(qerrors.ErrCodeStoreFailed, err)
	}
	if !exists {
		if err := opts.Store.CreateCollection(ctx, collection, opts.Embedder.Dimensions(), vectorstore.DistanceCosine, opts.Sparse != nil); err != nil {
			return nil, qerrors.Wrap(qerrors.ErrCodeStoreFailed, err)
		}
	}

	succeededFiles, succeededByFile, embedErrs := ix.embedAndStore(ctx, opts, collection, chunks, batchSize)
	res.Errors = append(res.Errors, embedErrs...)
	if len(embedErrs) > 0 {
		res.Status = "partial"
	}

	if len(deleteIDs) > 0 {
		if err := opts.Store.DeletePoints(ctx, collection, deleteIDs); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("deleting stale points: %v", err))
			res.Status = "partial"
			// Deletion failed: keep the old hash/chunk-ownership entries for
			// every file we meant to delete or replace, so the next run
			// retries the delete instead of silently losing track of them.
			for _, p := range toDelete {
				if h, ok := oldHashes[p]; ok {
					finalHashes[p] = h
				}
				if ids, ok := byFile[p]; ok {
					finalByFile[p] = ids
				}
			}
		} else {
			res.ChunksDeleted = len(deleteIDs)
			deletedFiles := make(map[string]struct{}, len(diff.Deleted))
			for _, p := range diff.Deleted {
				deletedFiles[p] = struct{}{}
			}
			res.FilesDeleted = len(deletedFiles)
		}
	}

	for _, p := range succeededFiles {
		finalHashes[p] = newHashes[p]
	}
	for p, ids := range succeededByFile {
		finalByFile[p] = ids
	}
	res.FilesIndexed = len(succeededFiles)
	for _, ids := range succeededByFile {
		res.ChunksIndexed += len(ids)
	}

	if err := persistState(opts.Snapshots, ix.chunkMaps, collection, absRoot, finalHashes, finalByFile); err != nil {
		return nil, err
	}

	res.Duration = time.Since(start)
	return res, nil
}

func persistState(snapshots *merkle.SnapshotStore, chunkMaps *chunkMapStore, collection, absRoot string, hashes map[string]string, byFile map[string][]string) error {
	snap, err := merkle.NewSnapshot(absRoot, hashes, time.Now())
	if err != nil {
		return qerrors.Wrap(qerrors.ErrCodeSnapshotCorrupt, err)
	}
	if err := snapshots.Save(collection, snap); err != nil {
		return err
	}
	return chunkMaps.Save(collection, &chunkMap{CodebasePath: absRoot, ByFile: byFile})
}

func (ix *Indexer) scanAndRead(ctx context.Context, absRoot string, opts Options) ([]*fileRecord, []string, error) {
	scanOpts := &scanner.ScanOptions{
		RootDir:          absRoot,
		IncludePatterns:  opts.PathsInclude,
		ExcludePatterns:  opts.PathsExclude,
		RespectGitignore: true,
		Submodules:       opts.Submodules,
	}
	results, err := ix.scanner.Scan(ctx, scanOpts)
	if err != nil {
		return nil, nil, qerrors.IOError("scanning codebase", err)
	}

	var records []*fileRecord
	var warnings []string
	var infos []*scanner.FileInfo
	for r := range results {
		if r.Error != nil {
			warnings = append(warnings, r.Error.Error())
			continue
		}
		infos = append(infos, r.File)
	}

	for i, f := range infos {
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		default:
		}
		data, err := os.ReadFile(f.AbsPath)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("reading %s: %v", f.Path, err))
			continue
		}
		if meta.ContainsSecrets(string(data)) {
			warnings = append(warnings, fmt.Sprintf("skipping %s: looks like it contains a live credential", f.Path))
			continue
		}
		sum := sha256.Sum256(data)
		records = append(records, &fileRecord{
			path:    f.Path,
			absPath: f.AbsPath,
			content: data,
			hash:    hex.EncodeToString(sum[:]),
		})
		if opts.Progress != nil {
			opts.Progress(Progress{Stage: StageScanning, Current: i + 1, Total: len(infos), Percent: 0})
		}
	}
	return records, warnings, nil
}

func (ix *Indexer) chunkFiles(ctx context.Context, byPath map[string]*fileRecord, toProcess []string, maxPerFile, maxTotal int, progress func(Progress)) ([]*chunk.Chunk, bool, []string) {
	var all []*chunk.Chunk
	var warnings []string
	truncated := false

	for i, p := range toProcess {
		rec := byPath[p]
		if rec == nil {
			continue
		}
		language := meta.DetectLanguage(p)
		chunks, err := ix.chunker.Chunk(ctx, &chunk.FileInput{Path: p, Content: rec.content, Language: language})
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("chunking %s: %v", p, err))
			continue
		}
		if len(chunks) > maxPerFile {
			warnings = append(warnings, fmt.Sprintf("%s: truncated %d chunks to %d (per-file cap)", p, len(chunks), maxPerFile))
			chunks = chunks[:maxPerFile]
			truncated = true
		}

		for _, c := range chunks {
			if len(all) >= maxTotal {
				warnings = append(warnings, fmt.Sprintf("reached global chunk cap of %d, remaining files skipped", maxTotal))
				truncated = true
				if progress != nil {
					progress(Progress{Stage: StageChunking, Current: i + 1, Total: len(toProcess), Percent: 40})
				}
				return all, truncated, warnings
			}
			c.ID = meta.DeriveChunkID(rec.absPath, c.Content, c.StartLine, c.EndLine, c.ChunkIndex)
			all = append(all, c)
		}

		if progress != nil {
			percent := 0.0
			if len(toProcess) > 0 {
				percent = 40 * float64(i+1) / float64(len(toProcess))
			}
			progress(Progress{Stage: StageChunking, Current: i + 1, Total: len(toProcess), Percent: percent})
		}
	}
	return all, truncated, warnings
}

// embedAndStore embeds and stores chunks in batches, tracking exactly
// which source files had every one of their chunks embedded and stored
// successfully -- a batch failure only drops that batch's files from
// the returned set, it never aborts the remaining batches.
func (ix *Indexer) embedAndStore(ctx context.Context, opts Options, collection string, chunks []*chunk.Chunk, batchSize int) ([]string, map[string][]string, []string) {
	succeededByFile := map[string][]string{}
	failedFiles := map[string]struct{}{}
	var errs []string

	total := len(chunks)
	for start := 0; start < total; start += batchSize {
		end := start + batchSize
		if end > total {
			end = total
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}

		opts.Embedder.SetBatchIndex(start / batchSize)
		opts.Embedder.SetFinalBatch(end == total)

		vecs, err := opts.Embedder.EmbedBatch(ctx, texts)
		if err != nil {
			errs = append(errs, fmt.Sprintf("embedding batch %d-%d: %v", start, end, err))
			for _, c := range batch {
				failedFiles[c.FilePath] = struct{}{}
			}
			slog.Warn("indexer_batch_embed_failed", slog.Int("start", start), slog.Int("end", end), slog.String("error", err.Error()))
			continue
		}

		points := make([]vectorstore.Point, len(batch))
		for i, c := range batch {
			var sp *vectorstore.Sparse
			if opts.Sparse != nil {
				v := opts.Sparse.Generate(c.Content)
				if len(v.Indices) > 0 {
					sp = &vectorstore.Sparse{Indices: v.Indices, Values: v.Values}
				}
			}
			points[i] = vectorstore.Point{
				ID:     c.ID,
				Vector: vecs[i],
				Sparse: sp,
				Payload: map[string]any{
					"relativePath":  c.FilePath,
					"language":      c.Language,
					"fileExtension": filepath.Ext(c.FilePath),
					"content":       c.Content,
					"startLine":     c.StartLine,
					"endLine":       c.EndLine,
					"chunkIndex":    c.ChunkIndex,
					"kind":          string(c.Kind),
				},
			}
		}

		if err := opts.Store.AddPointsWithSparse(ctx, collection, points); err != nil {
			errs = append(errs, fmt.Sprintf("storing batch %d-%d: %v", start, end, err))
			for _, c := range batch {
				failedFiles[c.FilePath] = struct{}{}
			}
			slog.Warn("indexer_batch_store_failed", slog.Int("start", start), slog.Int("end", end), slog.String("error", err.Error()))
			continue
		}

		for _, c := range batch {
			succeededByFile[c.FilePath] = append(succeededByFile[c.FilePath], c.ID)
		}

		if opts.Progress != nil {
			percent := 40 + 30*float64(end)/float64(total)
			opts.Progress(Progress{Stage: StageEmbedding, Current: end, Total: total, Percent: percent})
			opts.Progress(Progress{Stage: StageStoring, Current: end, Total: total, Percent: 70 + 30*float64(end)/float64(total)})
		}
	}

	// A file only counts as indexed if none of its batches failed.
	for p := range failedFiles {
		delete(succeededByFile, p)
	}
	succeededFiles := make([]string, 0, len(succeededByFile))
	for p := range succeededByFile {
		succeededFiles = append(succeededFiles, p)
	}
	sort.Strings(succeededFiles)
	return succeededFiles, succeededByFile, errs
}

func forceDiff(oldHashes, newHashes map[string]string) merkle.DiffResult {
	var d merkle.DiffResult
	for p := range newHashes {
		d.Added = append(d.Added, p)
	}
	for p := range oldHashes {
		if _, ok := newHashes[p]; !ok {
			d.Deleted = append(d.Deleted, p)
		}
	}
	sort.Strings(d.Added)
	sort.Strings(d.Deleted)
	return d
}

func mergeSorted(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	sort.Strings(out)
	return out
}

func cloneMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneSliceMap(m map[string][]string) map[string][]string {
	out := make(map[string][]string, len(m))
	for k, v := range m {
		cp := make([]string, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}
