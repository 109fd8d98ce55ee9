package mirror

import (
	"time"

	"github.com/s1ren-78/beiduoduo/internal/model"
)

// Store provides durable state for the sync engine: content tables,
// checkpoints and the run ledger. All methods are implemented with
// appropriate transaction handling; ReplaceChunks in particular must
// swap a document's chunk set and index entries atomically.
type Store interface {
	// Run ledger

	// CreateSyncRun inserts a run record in its initial status.
	CreateSyncRun(run *model.SyncRun) error

	// MarkRunRunning transitions a queued run to running.
	MarkRunRunning(runID string, at time.Time) error

	// FinishSyncRun closes a run with a terminal status, stats JSON and
	// optional error text. Closed runs are never reopened.
	FinishSyncRun(runID, status, stats, errorText string, at time.Time) error

	// LatestRunForScope returns the most recent run for a scope, or nil.
	LatestRunForScope(scope string) (*model.SyncRun, error)

	// RecentSyncRuns returns recent runs across all scopes, newest first.
	RecentSyncRuns(limit int) ([]*model.SyncRun, error)

	// Checkpoints

	// GetCheckpoint returns the checkpoint for a key, or nil if none.
	GetCheckpoint(key string) (*model.Checkpoint, error)

	// SetCheckpoint upserts the checkpoint for a key.
	SetCheckpoint(key, cursor string, watermark time.Time, meta string) error

	// RecentCheckpoints returns checkpoints ordered by update time.
	RecentCheckpoints(limit int) ([]*model.Checkpoint, error)

	// Content

	// UpsertSourceFile inserts or updates by (source_type, source_id)
	// and returns the row ID.
	UpsertSourceFile(sf *model.SourceFile) (int64, error)

	// ListSourceFiles returns all non-removed source files of a type.
	ListSourceFiles(sourceType string) ([]*model.SourceFile, error)

	// GetDocumentHash returns the stored content hash for a live
	// document identified by (source_type, source_id). ok is false if
	// no document exists or the document is removed, so a restored
	// source is reingested instead of skipped.
	GetDocumentHash(sourceType, sourceID string) (hash string, ok bool, err error)

	// UpsertDocument inserts or updates by (source_type, source_id).
	// doc.DocID is the candidate ID for an insert; the returned ID is
	// the stored one (existing rows keep their ID).
	UpsertDocument(doc *model.Document) (docID string, err error)

	// ReplaceChunks atomically replaces a document's chunk set and its
	// full-text index entries.
	ReplaceChunks(docID string, chunks []*model.Chunk) error

	// MarkDocumentRemoved soft-deletes the document and source file for
	// a source identity. Removed documents drop out of search results
	// but remain for audit.
	MarkDocumentRemoved(sourceType, sourceID string, at time.Time) error

	// Whitelist

	// WhitelistEntries returns whitelist entries, optionally only
	// enabled ones.
	WhitelistEntries(enabledOnly bool) ([]*model.WhitelistEntry, error)

	// Close closes the underlying connection.
	Close() error
}
