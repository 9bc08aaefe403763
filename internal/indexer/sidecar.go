package indexer

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	qerrors "github.com/mhalder/qdrant-mcp-server-sub001/internal/errors"
)

// chunkMap is the persisted relation a codebase's Merkle snapshot alone
// can't express: which chunk IDs a given file currently owns. The
// indexer needs it to delete exactly the stale points belonging to a
// deleted or modified file, without a store-side scroll/list API to
// discover them.
type chunkMap struct {
	CodebasePath string              `json:"codebasePath"`
	ByFile       map[string][]string `json:"byFile"`
}

// chunkMapStore persists chunkMaps alongside a merkle.SnapshotStore,
// using the same flock-guarded write-tmp-then-rename idiom.
type chunkMapStore struct {
	dir string
}

func newChunkMapStore(dir string) *chunkMapStore {
	return &chunkMapStore{dir: dir}
}

func (s *chunkMapStore) pathFor(collection string) string {
	return filepath.Join(s.dir, collection+".chunks.json")
}

func (s *chunkMapStore) Save(collection string, m *chunkMap) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return qerrors.IOError("creating chunk map directory", err)
	}

	target := s.pathFor(collection)
	lock := flock.New(target + ".lock")
	if err := lock.Lock(); err != nil {
		return qerrors.IOError("locking chunk map file", err)
	}
	defer lock.Unlock()

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return qerrors.Wrap(qerrors.ErrCodeSnapshotCorrupt, err)
	}

	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return qerrors.IOError("writing chunk map temp file", err)
	}
	return os.Rename(tmp, target)
}

// Load returns (nil, nil) for a missing or corrupt file, matching
// merkle.SnapshotStore.Load's "never indexed" contract.
func (s *chunkMapStore) Load(collection string) (*chunkMap, error) {
	data, err := os.ReadFile(s.pathFor(collection))
	if err != nil {
		return nil, nil
	}
	var m chunkMap
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, nil
	}
	return &m, nil
}

func (s *chunkMapStore) Delete(collection string) error {
	err := os.Remove(s.pathFor(collection))
	if err != nil && !os.IsNotExist(err) {
		return qerrors.IOError("deleting chunk map", err)
	}
	return nil
}
