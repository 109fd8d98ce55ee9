package mirror

import (
	"time"

	"github.com/s1ren-78/beiduoduo/internal/model"
)

// SearchQuery filters a ranked full-text search over chunks.
// Zero-valued fields are unset.
type SearchQuery struct {
	Text       string
	TopK       int
	SourceType string
	Category   string
	From       time.Time
	To         time.Time
}

// SearchResult is one ranked chunk hit.
type SearchResult struct {
	DocID       string
	Title       string
	SourceType  string
	Category    string
	ChunkID     string
	Score       float64
	Quote       string
	StartOffset int
	EndOffset   int
	FilePath    string
	UpdatedAt   string
}

// DocumentDetail is a document with its ordered chunk set and source
// file attributes.
type DocumentDetail struct {
	Document *model.Document
	Chunks   []*model.Chunk
	FilePath string
	FileName string
	FileExt  string
}

// StatusSummary is the monitoring view over the run ledger and
// checkpoint store.
type StatusSummary struct {
	LastLocalFull          *time.Time
	LastLocalIncremental   *time.Time
	LastRemoteFull         *time.Time
	LastRemoteIncremental  *time.Time
	FailedRuns             int
	Checkpoints            []*model.Checkpoint
}

// Querier is the read-only contract the query surface consumes. Removed
// documents are excluded from search results but remain fetchable by ID.
type Querier interface {
	Search(q SearchQuery) ([]*SearchResult, error)
	GetDocument(docID string) (*DocumentDetail, error)
	SyncStatus() (*StatusSummary, error)
}
