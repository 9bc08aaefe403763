// Package gitlog reads commit history via go-git, classifies commits by
// conventional-commit prefix, and formats them into indexable chunks.
package gitlog

import "time"

// CommitType is the normalized category of a commit's intent.
type CommitType string

const (
	CommitTypeFeat     CommitType = "feat"
	CommitTypeFix      CommitType = "fix"
	CommitTypeRefactor CommitType = "refactor"
	CommitTypeDocs     CommitType = "docs"
	CommitTypeTest     CommitType = "test"
	CommitTypeChore    CommitType = "chore"
	CommitTypeStyle    CommitType = "style"
	CommitTypePerf     CommitType = "perf"
	CommitTypeBuild    CommitType = "build"
	CommitTypeCI       CommitType = "ci"
	CommitTypeRevert   CommitType = "revert"
	CommitTypeOther    CommitType = "other"
)

// Commit is a full git commit record.
type Commit struct {
	Hash         string
	ShortHash    string
	AuthorName   string
	AuthorEmail  string
	Timestamp    time.Time
	Subject      string
	Body         string
	ChangedFiles []string
	Insertions   int
	Deletions    int
}
