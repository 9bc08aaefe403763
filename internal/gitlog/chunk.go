package gitlog

import (
	"fmt"
	"strings"

	"github.com/mhalder/qdrant-mcp-server-sub001/internal/meta"
)

const maxFilesListed = 20

// CommitChunk is the indexable unit derived from a single commit: its
// formatted text plus metadata mirroring the commit fields verbatim.
type CommitChunk struct {
	ID       string
	Content  string
	Commit   Commit
	Type     CommitType
	RepoPath string
}

// CreateChunk formats exactly one chunk for a commit. diff, if
// non-empty and enabled, is appended as a preview section. maxChunkSize
// bounds the total text length; content beyond it is truncated with a
// trailing marker.
func CreateChunk(commit Commit, repoPath string, diff string, includeDiff bool, maxChunkSize int) CommitChunk {
	kind := ClassifyCommitType(commit.Subject, commit.Body)

	var b strings.Builder
	fmt.Fprintf(&b, "Commit: %s\n", commit.ShortHash)
	fmt.Fprintf(&b, "Type: %s\n", kind)
	fmt.Fprintf(&b, "Author: %s <%s>\n", commit.AuthorName, commit.AuthorEmail)
	fmt.Fprintf(&b, "Date: %s\n", commit.Timestamp.Format("2006-01-02T15:04:05Z07:00"))
	fmt.Fprintf(&b, "Subject: %s\n", commit.Subject)

	if commit.Body != "" {
		fmt.Fprintf(&b, "Description: %s\n", commit.Body)
	}

	if n := len(commit.ChangedFiles); n > 0 {
		fmt.Fprintf(&b, "Files changed (%d):\n", n)
		shown := commit.ChangedFiles
		truncatedFiles := false
		if n > maxFilesListed {
			shown = commit.ChangedFiles[:maxFilesListed]
			truncatedFiles = true
		}
		for _, f := range shown {
			fmt.Fprintf(&b, "  %s\n", f)
		}
		if truncatedFiles {
			fmt.Fprintf(&b, "... and %d more files\n", n-maxFilesListed)
		}
	}

	fmt.Fprintf(&b, "Changes: +%d -%d\n", commit.Insertions, commit.Deletions)

	if includeDiff && diff != "" {
		fmt.Fprintf(&b, "Diff preview:\n%s\n", diff)
	}

	content := b.String()
	if maxChunkSize > 0 && len(content) > maxChunkSize {
		marker := "\n[content truncated due to size]"
		cut := maxChunkSize - len(marker)
		if cut < 0 {
			cut = 0
		}
		content = content[:cut] + marker
	}

	return CommitChunk{
		ID:       meta.DeriveGitCommitChunkID(repoPath, commit.Hash),
		Content:  content,
		Commit:   commit,
		Type:     kind,
		RepoPath: repoPath,
	}
}
