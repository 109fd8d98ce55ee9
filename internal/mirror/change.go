package mirror

import (
	"context"
	"time"
)

// ChangeKind classifies a change record. Unsupported is a first-class kind,
// not an error: unsupported files are recorded so every observed file is
// attributable, then skipped.
type ChangeKind string

const (
	ChangeUpsert      ChangeKind = "upsert"
	ChangeDelete      ChangeKind = "delete"
	ChangeUnsupported ChangeKind = "unsupported"
)

// Content is the fully-fetched content of one change record.
type Content struct {
	Text  string
	Title string
	Meta  map[string]string
}

// ChangeRecord is one create/update/delete signal yielded by a source
// adapter. Content fetching is deferred behind Fetch so adapters can page
// cheaply and the engine only pays for records it actually ingests.
type ChangeRecord struct {
	SourceType string
	SourceID   string
	Kind       ChangeKind

	Path     string
	Name     string
	Ext      string
	Category string
	Size     int64
	ModTime  time.Time

	// ContentHash is set when the adapter can compute it cheaply
	// (e.g. raw-byte hash of an unsupported local file). Empty means
	// the engine derives it from fetched content.
	ContentHash string

	UnsupportedReason string
	Meta              map[string]string

	// Fetch retrieves full content. Nil for delete and unsupported records.
	Fetch func(ctx context.Context) (*Content, error)
}

// ListRequest parameterizes one adapter listing pass.
type ListRequest struct {
	// Cursor is the checkpoint cursor from the last successful run.
	// Empty for full syncs and first runs.
	Cursor string
	// Full forces reprocessing of everything in scope, ignoring
	// per-file state and stored cursors.
	Full bool
	// RunID tags archived payloads and recorded state with the
	// originating run.
	RunID string
}

// Adapter produces change records for one source variant. ListChanges
// invokes fn for each record in order and returns the cursor to persist
// once the whole window has been reconciled. A non-nil error from fn
// aborts the listing and propagates (the engine only returns run-fatal
// errors from fn).
type Adapter interface {
	// SourceType is the source_type value for records this adapter yields.
	SourceType() string
	// CheckpointKey is the scope-level checkpoint row this adapter's
	// cursor is persisted under.
	CheckpointKey() string
	ListChanges(ctx context.Context, req ListRequest, fn func(ChangeRecord) error) (newCursor string, err error)
}
