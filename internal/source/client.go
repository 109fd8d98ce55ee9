package source

import (
	"context"
	"fmt"
	"time"
)

// RemoteClient is the narrow boundary to the cloud document platform:
// list the documents in a whitelisted container page by page, and fetch
// one document's content. Vendor specifics (auth, endpoints, response
// shapes) live behind this interface.
type RemoteClient interface {
	// ListContainer returns one page of document references for a
	// whitelisted container. An empty pageToken starts from the
	// beginning; the returned page carries the token for the next call.
	// pageSize is the requested page length; zero or negative lets the
	// client choose.
	ListContainer(ctx context.Context, entryType, entryToken, pageToken string, pageSize int) (*ContainerPage, error)

	// FetchDoc retrieves one document's content and metadata.
	FetchDoc(ctx context.Context, docToken string) (*RemoteDoc, error)
}

// ContainerPage is one page of a container listing.
type ContainerPage struct {
	Refs          []DocRef
	NextPageToken string
	HasMore       bool
}

// DocRef identifies one document within a container. Trashed documents
// come back with Deleted set so the mirror can soft-remove them.
type DocRef struct {
	DocToken  string
	Deleted   bool
	UpdatedAt time.Time
}

// RemoteDoc is one fetched document.
type RemoteDoc struct {
	Title      string
	Content    string
	RevisionAt time.Time
	Raw        []byte // raw platform payload, archived verbatim
}

// ThrottleError signals that the platform asked us to slow down. It is a
// backoff cue, not a failure: the adapter pauses and retries the same
// page, so no data is skipped.
type ThrottleError struct {
	RetryAfter time.Duration
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled by platform (retry after %s)", e.RetryAfter)
}
