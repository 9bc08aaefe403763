package meta

import (
	"crypto/sha256"
	"encoding/hex"
)

// CodeCollectionName derives the collection name for a codebase at
// absPath: "code_" followed by the first 8 hex characters of
// sha256(absPath).
func CodeCollectionName(absPath string) string {
	return "code_" + shortHash(absPath)
}

// GitCollectionName derives the collection name for a repository's
// commit history at absPath: "git_" followed by the first 8 hex
// characters of sha256(absPath).
func GitCollectionName(absPath string) string {
	return "git_" + shortHash(absPath)
}

func shortHash(absPath string) string {
	sum := sha256.Sum256([]byte(normalizePath(absPath)))
	return hex.EncodeToString(sum[:])[:8]
}
