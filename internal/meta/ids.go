// Package meta derives stable, content-addressable identifiers for code
// chunks and reshapes them into the forms the embedding and vector-store
// layers expect. It is the one place that knows how a Chunk's identity is
// computed, so the chunker itself stays free of ID concerns.
package meta

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ChunkIDPrefix and GitCommitIDPrefix distinguish code chunks from git
// history chunks sharing the same collection.
const (
	ChunkIDPrefix     = "chunk_"
	GitCommitIDPrefix = "gitcommit_"
)

// DeriveChunkID computes the content-addressable ID for a code chunk.
// The canonical key is the normalized absolute file path, the chunk's
// content, its start/end line, and its index within the file -- stable
// across re-runs as long as none of those inputs change, and distinct
// from a neighboring chunk that happens to share content but not
// position.
func DeriveChunkID(absPath, content string, startLine, endLine, chunkIndex int) string {
	norm := normalizePath(absPath)
	h := sha256.New()
	h.Write([]byte(norm))
	h.Write([]byte{0})
	h.Write([]byte(content))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(startLine)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(endLine)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(chunkIndex)))
	sum := h.Sum(nil)
	return ChunkIDPrefix + hex.EncodeToString(sum)[:16]
}

// DeriveGitCommitChunkID computes the content-addressable ID for a git
// history chunk, keyed by repository path and commit hash rather than
// file position.
func DeriveGitCommitChunkID(repoPath, commitHash string) string {
	h := sha256.New()
	h.Write([]byte(normalizePath(repoPath)))
	h.Write([]byte{0})
	h.Write([]byte(commitHash))
	sum := h.Sum(nil)
	return GitCommitIDPrefix + hex.EncodeToString(sum)[:16]
}

func normalizePath(p string) string {
	abs := filepath.ToSlash(p)
	return strings.TrimRight(abs, "/")
}

// ReshapeToUUID converts an opaque chunk ID into a deterministic UUID,
// for vector-store backends (Qdrant among them) that require point IDs
// to be either unsigned integers or UUIDs. The mapping is one-way and
// collision-resistant: sha256(id) truncated to 16 bytes, laid out as a
// standard 8-4-4-4-12 UUID string.
func ReshapeToUUID(id string) string {
	sum := sha256.Sum256([]byte(id))
	u, err := uuid.FromBytes(sum[:16])
	if err != nil {
		// sha256 always yields exactly 16 bytes here; unreachable in practice.
		return fmt.Sprintf("%x", sum[:16])
	}
	return u.String()
}
