package merkle

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	qerrors "github.com/mhalder/qdrant-mcp-server-sub001/internal/errors"
)

// Snapshot is the persisted state of one collection's incremental-sync
// pass: the file-hash map it was built from and its serialized tree.
type Snapshot struct {
	CodebasePath string            `json:"codebasePath"`
	Timestamp    int64             `json:"timestamp"` // ms-epoch
	FileHashes   map[string]string `json:"fileHashes"`
	MerkleTree   json.RawMessage   `json:"merkleTree"`
}

// NewSnapshot builds a Snapshot from a codebase path and file-hash map,
// serializing the Merkle tree built over it.
func NewSnapshot(codebasePath string, fileHashes map[string]string, at time.Time) (*Snapshot, error) {
	tree := Build(fileHashes)
	raw, err := tree.Serialize()
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		CodebasePath: codebasePath,
		Timestamp:    at.UnixMilli(),
		FileHashes:   fileHashes,
		MerkleTree:   raw,
	}, nil
}

// Tree deserializes the snapshot's embedded Merkle tree.
func (s *Snapshot) Tree() (*Tree, error) {
	return Deserialize(s.MerkleTree)
}

// SnapshotStore persists Snapshots to a per-collection JSON file under a
// deterministic, user-scoped directory, guarded by a sibling flock so
// that concurrent processes don't interleave writes to the same file.
type SnapshotStore struct {
	dir string
}

// NewSnapshotStore creates a store rooted at dir (e.g.
// "<userHome>/.qdrant-mcp/snapshots" or ".../git-snapshots").
func NewSnapshotStore(dir string) *SnapshotStore {
	return &SnapshotStore{dir: dir}
}

func (s *SnapshotStore) pathFor(collection string) string {
	return filepath.Join(s.dir, collection+".json")
}

// Save writes the snapshot atomically: marshal, write to a ".tmp"
// sibling, then rename into place.
func (s *SnapshotStore) Save(collection string, snap *Snapshot) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return qerrors.IOError("creating snapshot directory", err)
	}

	target := s.pathFor(collection)
	lock := flock.New(target + ".lock")
	if err := lock.Lock(); err != nil {
		return qerrors.IOError("locking snapshot file", err)
	}
	defer lock.Unlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return qerrors.Wrap(qerrors.ErrCodeSnapshotCorrupt, err)
	}

	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return qerrors.IOError("writing snapshot temp file", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return qerrors.IOError("renaming snapshot into place", err)
	}
	return nil
}

// Load reads a snapshot for collection. It returns (nil, nil) if the
// file is missing or fails to parse, matching the "load returns null"
// contract -- a missing/corrupt snapshot is treated as "never indexed",
// not as a hard error.
func (s *SnapshotStore) Load(collection string) (*Snapshot, error) {
	data, err := os.ReadFile(s.pathFor(collection))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, nil
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, nil
	}
	return &snap, nil
}

// Validate loads a snapshot and verifies its tree deserializes and
// either has a non-zero root hash or the file-hash map is empty.
func (s *SnapshotStore) Validate(collection string) (bool, error) {
	snap, err := s.Load(collection)
	if err != nil {
		return false, err
	}
	if snap == nil {
		return false, nil
	}
	tree, err := snap.Tree()
	if err != nil {
		return false, nil
	}
	if len(snap.FileHashes) == 0 {
		return true, nil
	}
	root := tree.RootHash()
	zero := [32]byte{}
	return root != zero, nil
}

// Delete removes a collection's snapshot file, if present.
func (s *SnapshotStore) Delete(collection string) error {
	err := os.Remove(s.pathFor(collection))
	if err != nil && !os.IsNotExist(err) {
		return qerrors.IOError("deleting snapshot", err)
	}
	return nil
}
