package merkle

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	qerrors "github.com/mhalder/qdrant-mcp-server-sub001/internal/errors"
)

// GitSnapshot is the checkpoint a git history index advances after each
// successful pass: the repository it was built from, the last commit it
// indexed, and how many commits have been indexed in total.
type GitSnapshot struct {
	RepoPath     string `json:"repoPath"`
	LastCommit   string `json:"lastCommit"`
	LastIndexed  int64  `json:"lastIndexed"` // ms-epoch
	CommitsCount int    `json:"commitsCount"`
}

// GitSnapshotStore persists GitSnapshots per collection, using the same
// flock-guarded atomic write as SnapshotStore.
type GitSnapshotStore struct {
	dir string
}

// NewGitSnapshotStore creates a store rooted at dir (e.g.
// "<userHome>/.qdrant-mcp/git-snapshots").
func NewGitSnapshotStore(dir string) *GitSnapshotStore {
	return &GitSnapshotStore{dir: dir}
}

func (s *GitSnapshotStore) pathFor(collection string) string {
	return filepath.Join(s.dir, collection+".json")
}

// Save writes the snapshot atomically.
func (s *GitSnapshotStore) Save(collection string, snap *GitSnapshot) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return qerrors.IOError("creating git snapshot directory", err)
	}

	target := s.pathFor(collection)
	lock := flock.New(target + ".lock")
	if err := lock.Lock(); err != nil {
		return qerrors.IOError("locking git snapshot file", err)
	}
	defer lock.Unlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return qerrors.Wrap(qerrors.ErrCodeSnapshotCorrupt, err)
	}

	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return qerrors.IOError("writing git snapshot temp file", err)
	}
	return os.Rename(tmp, target)
}

// Load reads a snapshot for collection, rejecting it if its recorded
// repoPath disagrees with the caller's -- a stale snapshot from a
// relocated or reused collection name must never be mistaken for this
// repository's checkpoint. A missing or corrupt file, like
// SnapshotStore.Load, returns (nil, nil): "never indexed" rather than
// an error.
func (s *GitSnapshotStore) Load(collection, repoPath string) (*GitSnapshot, error) {
	data, err := os.ReadFile(s.pathFor(collection))
	if err != nil {
		return nil, nil
	}

	var snap GitSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, nil
	}
	if snap.RepoPath != repoPath {
		return nil, qerrors.New(qerrors.ErrCodeSnapshotCorrupt,
			"git snapshot repo path mismatch: expected "+repoPath+", found "+snap.RepoPath, nil)
	}
	return &snap, nil
}

// NewGitSnapshot builds a GitSnapshot for repoPath at the given
// lastCommit and commit count, stamped at `at`.
func NewGitSnapshot(repoPath, lastCommit string, commitsCount int, at time.Time) *GitSnapshot {
	return &GitSnapshot{
		RepoPath:     repoPath,
		LastCommit:   lastCommit,
		LastIndexed:  at.UnixMilli(),
		CommitsCount: commitsCount,
	}
}

// Delete removes a collection's git snapshot file, if present.
func (s *GitSnapshotStore) Delete(collection string) error {
	err := os.Remove(s.pathFor(collection))
	if err != nil && !os.IsNotExist(err) {
		return qerrors.IOError("deleting git snapshot", err)
	}
	return nil
}
