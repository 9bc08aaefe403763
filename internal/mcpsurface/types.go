// Package mcpsurface defines the typed request/response shapes for the
// ten-odd tool operations the tool-protocol server exposes over
// internal/indexer and internal/gitindexer. The protocol transport and
// registration loop are an external collaborator -- this package only
// pins down the wire shapes a registrar uses with
// github.com/modelcontextprotocol/go-sdk's typed-tool pattern.
package mcpsurface

// AddDocumentsInput adds arbitrary text documents to a collection,
// bypassing the code/commit chunking pipelines entirely.
type AddDocumentsInput struct {
	Collection string     `json:"collection" jsonschema:"target collection name"`
	Documents  []Document `json:"documents" jsonschema:"documents to embed and store"`
}

// Document is a single unit of arbitrary text with caller-supplied metadata.
type Document struct {
	Content  string         `json:"content" jsonschema:"document text"`
	Metadata map[string]any `json:"metadata,omitempty" jsonschema:"payload fields stored alongside the vector"`
}

// AddDocumentsOutput reports the IDs assigned to newly stored documents.
type AddDocumentsOutput struct {
	Added int      `json:"added"`
	IDs   []string `json:"ids"`
}

// DeleteDocumentsInput removes points by ID from a collection.
type DeleteDocumentsInput struct {
	Collection string   `json:"collection" jsonschema:"target collection name"`
	IDs        []string `json:"ids" jsonschema:"point IDs to delete"`
}

// DeleteDocumentsOutput reports how many points were actually removed.
type DeleteDocumentsOutput struct {
	Deleted int `json:"deleted"`
}

// SemanticSearchInput runs a dense-only nearest-neighbor query.
type SemanticSearchInput struct {
	Collection     string         `json:"collection" jsonschema:"collection to search"`
	Query          string         `json:"query" jsonschema:"natural-language query text"`
	Limit          int            `json:"limit,omitempty" jsonschema:"maximum number of results, default 5"`
	ScoreThreshold float64        `json:"score_threshold,omitempty" jsonschema:"drop results scoring below this value"`
	Filter         map[string]any `json:"filter,omitempty" jsonschema:"flat payload-field equality filter"`
}

// SemanticSearchOutput carries the matched points, best score first.
type SemanticSearchOutput struct {
	Results []SearchHit `json:"results"`
}

// SearchHit is one matched vector-store point, ID and payload verbatim.
type SearchHit struct {
	ID      string         `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

// HybridSearchInput combines SemanticSearchInput's shape with a sparse
// (BM25) pass fused against the dense one.
type HybridSearchInput struct {
	Collection     string         `json:"collection" jsonschema:"collection to search"`
	Query          string         `json:"query" jsonschema:"natural-language query text"`
	Limit          int            `json:"limit,omitempty" jsonschema:"maximum number of results, default 5"`
	ScoreThreshold float64        `json:"score_threshold,omitempty" jsonschema:"drop results scoring below this value"`
	Filter         map[string]any `json:"filter,omitempty" jsonschema:"flat payload-field equality filter"`
}

// HybridSearchOutput mirrors SemanticSearchOutput.
type HybridSearchOutput struct {
	Results []SearchHit `json:"results"`
}

// IndexCodebaseInput drives internal/indexer.IndexCodebase.
type IndexCodebaseInput struct {
	Path             string `json:"path" jsonschema:"root directory of the codebase to index"`
	Force            bool   `json:"force,omitempty" jsonschema:"re-chunk and re-embed every file, ignoring the existing snapshot"`
	MaxChunksPerFile int    `json:"max_chunks_per_file,omitempty"`
	MaxTotalChunks   int    `json:"max_total_chunks,omitempty"`
	BatchSize        int    `json:"batch_size,omitempty"`
}

// IndexCodebaseOutput mirrors indexer.Result.
type IndexCodebaseOutput struct {
	FilesScanned  int      `json:"files_scanned"`
	FilesIndexed  int      `json:"files_indexed"`
	FilesDeleted  int      `json:"files_deleted"`
	ChunksIndexed int      `json:"chunks_indexed"`
	ChunksDeleted int      `json:"chunks_deleted"`
	Status        string   `json:"status"`
	Warnings      []string `json:"warnings,omitempty"`
	Errors        []string `json:"errors,omitempty"`
}

// SearchCodeInput projects a query against an indexed codebase collection.
type SearchCodeInput struct {
	Path           string   `json:"path" jsonschema:"root directory of the indexed codebase"`
	Query          string   `json:"query" jsonschema:"the code search query to execute"`
	Limit          int      `json:"limit,omitempty" jsonschema:"maximum number of results, default 5"`
	ScoreThreshold float64  `json:"score_threshold,omitempty"`
	FileTypes      []string `json:"file_types,omitempty" jsonschema:"restrict to these file extensions"`
	PathPattern    string   `json:"path_pattern,omitempty" jsonschema:"glob restricting matched paths"`
}

// SearchCodeOutput carries the projected fields searchCode promises:
// content plus enough location/language context to jump to the result.
type SearchCodeOutput struct {
	Results []CodeSearchHit `json:"results"`
}

// CodeSearchHit is one matched code chunk.
type CodeSearchHit struct {
	Content       string  `json:"content"`
	FilePath      string  `json:"file_path"`
	StartLine     int     `json:"start_line"`
	EndLine       int     `json:"end_line"`
	Language      string  `json:"language"`
	Score         float64 `json:"score"`
	FileExtension string  `json:"file_extension"`
}

// IndexNewCommitsInput drives internal/gitindexer.IndexNewCommits.
type IndexNewCommitsInput struct {
	Path string `json:"path" jsonschema:"root directory of the git repository"`
}

// IndexGitHistoryInput drives internal/gitindexer.IndexHistory.
type IndexGitHistoryInput struct {
	Path        string `json:"path" jsonschema:"root directory of the git repository"`
	SinceDate   string `json:"since_date,omitempty" jsonschema:"RFC3339 lower bound on commit author date"`
	MaxCommits  int    `json:"max_commits,omitempty"`
	IncludeDiff bool   `json:"include_diff,omitempty" jsonschema:"append a unified-diff preview to each commit chunk"`
}

// GitIndexOutput mirrors gitindexer.Result, shared by index_new_commits
// and index_git_history.
type GitIndexOutput struct {
	CommitsScanned int      `json:"commits_scanned"`
	NewCommits     int      `json:"new_commits"`
	Status         string   `json:"status"`
	Warnings       []string `json:"warnings,omitempty"`
	Errors         []string `json:"errors,omitempty"`
}

// SearchGitHistoryInput projects a query against an indexed git history collection.
type SearchGitHistoryInput struct {
	Path       string `json:"path" jsonschema:"root directory of the indexed git repository"`
	Query      string `json:"query" jsonschema:"the commit search query to execute"`
	Limit      int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 5"`
	CommitType string `json:"commit_type,omitempty" jsonschema:"restrict to this classified commit type"`
	Author     string `json:"author,omitempty" jsonschema:"restrict to commits by this author"`
}

// SearchGitHistoryOutput carries matched commit chunks.
type SearchGitHistoryOutput struct {
	Results []CommitSearchHit `json:"results"`
}

// CommitSearchHit is one matched commit chunk.
type CommitSearchHit struct {
	CommitHash string  `json:"commit_hash"`
	ShortHash  string  `json:"short_hash"`
	Author     string  `json:"author"`
	Date       string  `json:"date"`
	Subject    string  `json:"subject"`
	Type       string  `json:"type"`
	Score      float64 `json:"score"`
}

// GetGitIndexStatusInput asks whether, and how far, a repository's git
// history has been indexed.
type GetGitIndexStatusInput struct {
	Path string `json:"path" jsonschema:"root directory of the git repository"`
}

// GetGitIndexStatusOutput reflects the repository's GitSnapshot checkpoint,
// if any.
type GetGitIndexStatusOutput struct {
	Indexed      bool   `json:"indexed"`
	LastCommit   string `json:"last_commit,omitempty"`
	LastIndexed  string `json:"last_indexed,omitempty" jsonschema:"RFC3339 timestamp"`
	CommitsCount int    `json:"commits_count,omitempty"`
}

// ClearGitIndexInput deletes a repository's git history collection and checkpoint.
type ClearGitIndexInput struct {
	Path string `json:"path" jsonschema:"root directory of the git repository"`
}

// ClearGitIndexOutput confirms whether there was anything to clear.
type ClearGitIndexOutput struct {
	Cleared bool `json:"cleared"`
}
