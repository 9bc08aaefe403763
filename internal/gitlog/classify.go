package gitlog

import (
	"regexp"
	"strings"
)

// conventionalPrefix matches a conventional-commit type prefix at the
// start of a subject line, with an optional scope and "!" breaking-
// change marker.
var conventionalPrefix = regexp.MustCompile(`^(feat|fix|bugfix|hotfix|docs|style|refactor|test|chore|perf|build|ci|revert)(\([^)]+\))?!?:`)

// keywordHeuristics is checked in order when no conventional prefix
// matches; the first matching keyword wins.
var keywordHeuristics = []struct {
	pattern *regexp.Regexp
	kind    CommitType
}{
	{regexp.MustCompile(`(?i)\bimplement\b`), CommitTypeFeat},
	{regexp.MustCompile(`(?i)\b(optimize|performance)\b`), CommitTypePerf},
	{regexp.MustCompile(`(?i)\b(fix|bug|error)\b`), CommitTypeFix},
	{regexp.MustCompile(`(?i)\brefactor\b`), CommitTypeRefactor},
	{regexp.MustCompile(`(?i)\b(document|docs)\b`), CommitTypeDocs},
	{regexp.MustCompile(`(?i)\btest(s|ing)?\b`), CommitTypeTest},
	{regexp.MustCompile(`(?i)\brevert\b`), CommitTypeRevert},
}

// ClassifyCommitType derives a commit's type. Prefix-match precedence
// over keyword heuristics: the subject is checked against the
// conventional-commit regex first, and only falls through to keyword
// scanning (subject + body) when no prefix matches.
func ClassifyCommitType(subject, body string) CommitType {
	if m := conventionalPrefix.FindStringSubmatch(subject); m != nil {
		switch m[1] {
		case "bugfix", "hotfix":
			return CommitTypeFix
		default:
			return CommitType(m[1])
		}
	}

	haystack := subject + "\n" + body
	for _, h := range keywordHeuristics {
		if h.pattern.MatchString(haystack) {
			return h.kind
		}
	}
	return CommitTypeOther
}

// splitSubjectBody splits a raw commit message into its subject line
// and body, trimming surrounding whitespace.
func splitSubjectBody(message string) (subject, body string) {
	message = strings.TrimSpace(message)
	if i := strings.IndexByte(message, '\n'); i >= 0 {
		return strings.TrimSpace(message[:i]), strings.TrimSpace(message[i+1:])
	}
	return message, ""
}
