// Package gitindexer drives the log -> chunk -> embed -> store pipeline
// that keeps a repository's commit-history collection in sync with its
// git log, using a GitSnapshot checkpoint (last indexed commit hash) to
// avoid re-processing commits on repeat runs. It mirrors the shape of
// internal/indexer, substituting commits for files: there is no
// "modified" or "deleted" case here, since a committed hash never
// changes -- a git history index only ever grows.
package gitindexer

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/mhalder/qdrant-mcp-server-sub001/internal/embed"
	qerrors "github.com/mhalder/qdrant-mcp-server-sub001/internal/errors"
	"github.com/mhalder/qdrant-mcp-server-sub001/internal/gitlog"
	"github.com/mhalder/qdrant-mcp-server-sub001/internal/merkle"
	"github.com/mhalder/qdrant-mcp-server-sub001/internal/meta"
	"github.com/mhalder/qdrant-mcp-server-sub001/internal/sparse"
	"github.com/mhalder/qdrant-mcp-server-sub001/internal/vectorstore"
)

// DefaultMaxChunkSize bounds a single commit chunk's formatted text,
// after which it is truncated with a trailing marker (see gitlog.CreateChunk).
const DefaultMaxChunkSize = 4000

// Stage names a pipeline phase, reported through Options.Progress.
type Stage string

const (
	StageReading   Stage = "reading"
	StageEmbedding Stage = "embedding"
	StageStoring   Stage = "storing"
)

// Progress is one update emitted during IndexHistory/IndexNewCommits.
type Progress struct {
	Stage   Stage
	Current int
	Total   int
	Percent float64
}

// Options configures a single history-indexing run.
type Options struct {
	RepoPath string

	Embedder embed.Embedder
	Store    vectorstore.Adapter

	// Snapshots persists the checkpoint (last indexed commit hash) used
	// by IndexNewCommits to bound its commit range. Required.
	Snapshots *merkle.GitSnapshotStore

	// Sparse generates the hybrid BM25 component. A nil Sparse disables
	// hybrid indexing: the collection is created dense-only.
	Sparse *sparse.Generator

	// SinceDate and MaxCommits bound IndexHistory's full scan. Zero means
	// unbounded. IndexNewCommits ignores both: its range is always
	// "everything newer than the last checkpoint".
	SinceDate  time.Time
	MaxCommits int

	// IncludeDiff appends a unified-diff preview to each commit's chunk
	// text. Off by default -- diffs can be large and most queries match
	// on the commit message and changed-files list alone.
	IncludeDiff bool

	// MaxChunkSize defaults to DefaultMaxChunkSize when zero.
	MaxChunkSize int

	// BatchSize defaults to embed.DefaultBatchSize when zero.
	BatchSize int

	Progress func(Progress)
}

// Result summarizes a completed (or partially completed) run.
type Result struct {
	CommitsScanned int
	NewCommits     int

	// Status is "complete" if every scanned commit was embedded and
	// stored, or "partial" if at least one batch failed along the way.
	Status string

	Duration time.Duration
	Warnings []string
	Errors   []string
}

// GitIndexer holds no per-run state; every run reads its own Reader and
// writes its own snapshot, so a single GitIndexer is safe to reuse
// across repositories and goroutines.
type GitIndexer struct{}

// New creates a GitIndexer.
func New() *GitIndexer { return &GitIndexer{} }

// IndexHistory enumerates commits bounded by opts.SinceDate/opts.MaxCommits,
// embeds and stores a chunk per commit, and writes a checkpoint recording
// the newest commit seen.
func (gi *GitIndexer) IndexHistory(ctx context.Context, opts Options) (*Result, error) {
	reader, absRepo, collection, err := gi.open(opts)
	if err != nil {
		return nil, err
	}

	commits, err := reader.Log(gitlog.LogOptions{SinceDate: opts.SinceDate, MaxCommits: opts.MaxCommits})
	if err != nil {
		return nil, qerrors.Wrap(qerrors.ErrCodeGitReadFailed, err)
	}

	res, err := gi.indexCommits(ctx, opts, reader, absRepo, collection, commits)
	if err != nil {
		return nil, err
	}
	res.NewCommits = res.CommitsScanned
	return res, nil
}

// IndexNewCommits reads the last-indexed commit hash from the git
// snapshot and processes only commits newer than it. With no existing
// checkpoint it falls back to a full IndexHistory run, establishing the
// baseline. An empty range is a no-op reporting NewCommits = 0.
func (gi *GitIndexer) IndexNewCommits(ctx context.Context, opts Options) (*Result, error) {
	reader, absRepo, collection, err := gi.open(opts)
	if err != nil {
		return nil, err
	}

	snap, err := opts.Snapshots.Load(collection, absRepo)
	if err != nil {
		return nil, qerrors.Wrap(qerrors.ErrCodeSnapshotCorrupt, err)
	}
	if snap == nil {
		return gi.IndexHistory(ctx, opts)
	}

	commits, err := reader.Log(gitlog.LogOptions{Since: snap.LastCommit})
	if err != nil {
		return nil, qerrors.Wrap(qerrors.ErrCodeGitReadFailed, err)
	}
	if len(commits) == 0 {
		return &Result{Status: "complete", NewCommits: 0}, nil
	}

	res, err := gi.indexCommitsFrom(ctx, opts, reader, absRepo, collection, commits, snap.CommitsCount)
	if err != nil {
		return nil, err
	}
	res.NewCommits = res.CommitsScanned
	return res, nil
}

func (gi *GitIndexer) open(opts Options) (*gitlog.Reader, string, string, error) {
	if opts.Embedder == nil || opts.Store == nil || opts.Snapshots == nil {
		return nil, "", "", qerrors.ConfigError("gitindexer: Embedder, Store, and Snapshots are required", nil)
	}
	absRepo, err := filepath.Abs(opts.RepoPath)
	if err != nil {
		return nil, "", "", qerrors.ValidationError("resolving repository path", err)
	}
	reader, err := gitlog.Open(absRepo)
	if err != nil {
		return nil, "", "", err
	}
	collection := meta.GitCollectionName(absRepo)
	return reader, absRepo, collection, nil
}

// indexCommits processes a full-history run: the new checkpoint's
// CommitsCount is simply the number of commits indexed.
func (gi *GitIndexer) indexCommits(ctx context.Context, opts Options, reader *gitlog.Reader, absRepo, collection string, commits []gitlog.Commit) (*Result, error) {
	return gi.process(ctx, opts, reader, absRepo, collection, commits, 0)
}

// indexCommitsFrom processes an incremental run on top of priorCount
// already-indexed commits.
func (gi *GitIndexer) indexCommitsFrom(ctx context.Context, opts Options, reader *gitlog.Reader, absRepo, collection string, commits []gitlog.Commit, priorCount int) (*Result, error) {
	return gi.process(ctx, opts, reader, absRepo, collection, commits, priorCount)
}

func (gi *GitIndexer) process(ctx context.Context, opts Options, reader *gitlog.Reader, absRepo, collection string, commits []gitlog.Commit, priorCount int) (*Result, error) {
	start := time.Now()
	res := &Result{Status: "complete", CommitsScanned: len(commits)}
	if len(commits) == 0 {
		res.Duration = time.Since(start)
		return res, nil
	}

	maxChunkSize := opts.MaxChunkSize
	if maxChunkSize <= 0 {
		maxChunkSize = DefaultMaxChunkSize
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = embed.DefaultBatchSize
	}

	chunks := make([]gitlog.CommitChunk, len(commits))
	for i, c := range commits {
		var diff string
		if opts.IncludeDiff {
			diff = reader.Diff(c.Hash)
		}
		chunks[i] = gitlog.CreateChunk(c, absRepo, diff, opts.IncludeDiff, maxChunkSize)
		if opts.Progress != nil {
			opts.Progress(Progress{Stage: StageReading, Current: i + 1, Total: len(commits), Percent: 30 * float64(i+1) / float64(len(commits))})
		}
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

	indexed, errs := gi.embedAndStore(ctx, opts, collection, chunks, batchSize)
	res.Errors = append(res.Errors, errs...)
	if len(errs) > 0 {
		res.Status = "partial"
	}

	// Only the newest commit that was actually indexed advances the
	// checkpoint -- a failed tail batch must not be skipped on the next run.
	if indexed > 0 {
		newest := commits[0].Hash
		snap := merkle.NewGitSnapshot(absRepo, newest, priorCount+indexed, time.Now())
		if err := opts.Snapshots.Save(collection, snap); err != nil {
			return nil, err
		}
	}

	res.Duration = time.Since(start)
	return res, nil
}

// embedAndStore embeds and stores commit chunks in batches, returning
// how many chunks were fully embedded and stored. A batch failure is
// logged and counted as an error but never aborts the remaining batches.
func (gi *GitIndexer) embedAndStore(ctx context.Context, opts Options, collection string, chunks []gitlog.CommitChunk, batchSize int) (int, []string) {
	var errs []string
	indexed := 0

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
			errs = append(errs, fmt.Sprintf("embedding commit batch %d-%d: %v", start, end, err))
			slog.Warn("gitindexer_batch_embed_failed", slog.Int("start", start), slog.Int("end", end), slog.String("error", err.Error()))
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
					"commitHash":  c.Commit.Hash,
					"shortHash":   c.Commit.ShortHash,
					"author":      c.Commit.AuthorName,
					"authorEmail": c.Commit.AuthorEmail,
					"timestamp":   c.Commit.Timestamp.Format(time.RFC3339),
					"subject":     c.Commit.Subject,
					"type":        string(c.Type),
					"content":     c.Content,
					"insertions":  c.Commit.Insertions,
					"deletions":   c.Commit.Deletions,
				},
			}
		}

		if err := opts.Store.AddPointsWithSparse(ctx, collection, points); err != nil {
			errs = append(errs, fmt.Sprintf("storing commit batch %d-%d: %v", start, end, err))
			slog.Warn("gitindexer_batch_store_failed", slog.Int("start", start), slog.Int("end", end), slog.String("error", err.Error()))
			continue
		}

		indexed += len(batch)
		if opts.Progress != nil {
			opts.Progress(Progress{Stage: StageEmbedding, Current: end, Total: total, Percent: 30 + 30*float64(end)/float64(total)})
			opts.Progress(Progress{Stage: StageStoring, Current: end, Total: total, Percent: 60 + 40*float64(end)/float64(total)})
		}
	}

	return indexed, errs
}
