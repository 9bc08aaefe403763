package gitlog

import (
	"fmt"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	qerrors "github.com/mhalder/qdrant-mcp-server-sub001/internal/errors"
)

// Reader enumerates commits from a git repository via go-git, without
// shelling out to the git binary.
type Reader struct {
	repo *git.Repository
	path string
}

// Open opens the repository rooted at path.
func Open(path string) (*Reader, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, qerrors.New(qerrors.ErrCodeGitReadFailed, fmt.Sprintf("opening git repository at %q", path), err)
	}
	return &Reader{repo: repo, path: path}, nil
}

// LogOptions bounds a commit enumeration.
type LogOptions struct {
	SinceDate time.Time // zero means unbounded
	MaxCommits int       // 0 means unbounded
	Since     string     // hash to stop at (exclusive); used for incremental reads
}

// Log enumerates commits reachable from HEAD, newest first, honoring
// the given bounds.
func (r *Reader) Log(opts LogOptions) ([]Commit, error) {
	iter, err := r.repo.Log(&git.LogOptions{Order: git.LogOrderCommitterTime})
	if err != nil {
		return nil, qerrors.New(qerrors.ErrCodeGitReadFailed, "reading commit log", err)
	}

	var commits []Commit
	err = iter.ForEach(func(c *object.Commit) error {
		if opts.MaxCommits > 0 && len(commits) >= opts.MaxCommits {
			return errStop
		}
		if !opts.SinceDate.IsZero() && c.Author.When.Before(opts.SinceDate) {
			return errStop
		}
		if opts.Since != "" && c.Hash.String() == opts.Since {
			return errStop
		}

		commit, err := r.toCommit(c)
		if err != nil {
			return nil // skip commits whose diff can't be computed; non-fatal per file
		}
		commits = append(commits, commit)
		return nil
	})
	if err != nil && err != errStop {
		return nil, qerrors.New(qerrors.ErrCodeGitReadFailed, "iterating commits", err)
	}
	return commits, nil
}

var errStop = fmt.Errorf("gitlog: stop iteration")

func (r *Reader) toCommit(c *object.Commit) (Commit, error) {
	subject, body := splitSubjectBody(c.Message)

	commit := Commit{
		Hash:        c.Hash.String(),
		ShortHash:   c.Hash.String()[:7],
		AuthorName:  c.Author.Name,
		AuthorEmail: c.Author.Email,
		Timestamp:   c.Author.When,
		Subject:     subject,
		Body:        body,
	}

	if c.NumParents() > 0 {
		parent, err := c.Parent(0)
		if err != nil {
			return commit, err
		}
		patch, err := c.Patch(parent)
		if err != nil {
			return commit, err
		}
		for _, stat := range patch.Stats() {
			commit.ChangedFiles = append(commit.ChangedFiles, stat.Name)
			commit.Insertions += stat.Addition
			commit.Deletions += stat.Deletion
		}
	} else {
		tree, err := c.Tree()
		if err != nil {
			return commit, err
		}
		_ = tree.Files().ForEach(func(f *object.File) error {
			commit.ChangedFiles = append(commit.ChangedFiles, f.Name)
			return nil
		})
	}

	return commit, nil
}

// HeadHash returns the repository's current HEAD commit hash.
func (r *Reader) HeadHash() (string, error) {
	ref, err := r.repo.Head()
	if err != nil {
		return "", qerrors.New(qerrors.ErrCodeGitReadFailed, "resolving HEAD", err)
	}
	return ref.Hash().String(), nil
}

// Diff returns the unified diff text between a commit and its first
// parent, or the empty string for a root commit or on failure -- diff
// preview is an optional enrichment, never required for indexing.
func (r *Reader) Diff(hash string) string {
	h := plumbing.NewHash(hash)
	c, err := r.repo.CommitObject(h)
	if err != nil || c.NumParents() == 0 {
		return ""
	}
	parent, err := c.Parent(0)
	if err != nil {
		return ""
	}
	patch, err := c.Patch(parent)
	if err != nil {
		return ""
	}
	return patch.String()
}
