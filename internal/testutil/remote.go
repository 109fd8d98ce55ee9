package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/s1ren-78/beiduoduo/internal/source"
)

// ScriptedDoc is one document served by the scripted remote client.
type ScriptedDoc struct {
	Title      string
	Content    string
	RevisionAt time.Time
	Deleted    bool
}

// ScriptedRemoteClient serves a fixed set of documents per container,
// paged by PageSize. Throttle responses and fetch errors can be
// injected to exercise backoff and failure paths. Safe for concurrent
// use; call counts are tracked for assertions.
type ScriptedRemoteClient struct {
	mu sync.Mutex

	// containers maps "entryType/entryToken" to ordered doc tokens.
	containers map[string][]string
	docs       map[string]*ScriptedDoc

	// PageSize is the page length used when the caller does not
	// request one.
	PageSize int

	// ThrottleListCalls contains 1-based ListContainer call numbers
	// that return a ThrottleError instead of a page.
	ThrottleListCalls map[int]bool

	// FetchErrors maps doc tokens to errors returned by FetchDoc.
	FetchErrors map[string]error

	ListCalls  int
	FetchCalls int
}

// NewScriptedRemoteClient creates an empty scripted client with a page
// size of 2, small enough that multi-page paths are exercised by
// default.
func NewScriptedRemoteClient() *ScriptedRemoteClient {
	return &ScriptedRemoteClient{
		containers:        make(map[string][]string),
		docs:              make(map[string]*ScriptedDoc),
		PageSize:          2,
		ThrottleListCalls: make(map[int]bool),
		FetchErrors:       make(map[string]error),
	}
}

// AddDoc registers a document inside a container.
func (c *ScriptedRemoteClient) AddDoc(entryType, entryToken, docToken string, doc *ScriptedDoc) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := entryType + "/" + entryToken
	c.containers[key] = append(c.containers[key], docToken)
	c.docs[docToken] = doc
}

// SetDoc replaces a document's content without changing container
// membership.
func (c *ScriptedRemoteClient) SetDoc(docToken string, doc *ScriptedDoc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs[docToken] = doc
}

func (c *ScriptedRemoteClient) ListContainer(ctx context.Context, entryType, entryToken, pageToken string, pageSize int) (*source.ContainerPage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ListCalls++
	if c.ThrottleListCalls[c.ListCalls] {
		return nil, &source.ThrottleError{RetryAfter: time.Millisecond}
	}
	if pageSize <= 0 {
		pageSize = c.PageSize
	}

	tokens := c.containers[entryType+"/"+entryToken]

	start := 0
	if pageToken != "" {
		if _, err := fmt.Sscanf(pageToken, "page-%d", &start); err != nil {
			return nil, fmt.Errorf("bad page token: %s", pageToken)
		}
	}
	if start > len(tokens) {
		start = len(tokens)
	}

	end := start + pageSize
	if end > len(tokens) {
		end = len(tokens)
	}

	page := &source.ContainerPage{}
	for _, tok := range tokens[start:end] {
		doc := c.docs[tok]
		page.Refs = append(page.Refs, source.DocRef{
			DocToken:  tok,
			Deleted:   doc.Deleted,
			UpdatedAt: doc.RevisionAt,
		})
	}
	if end < len(tokens) {
		page.NextPageToken = fmt.Sprintf("page-%d", end)
		page.HasMore = true
	}
	return page, nil
}

func (c *ScriptedRemoteClient) FetchDoc(ctx context.Context, docToken string) (*source.RemoteDoc, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.FetchCalls++
	if err := c.FetchErrors[docToken]; err != nil {
		return nil, err
	}

	doc, ok := c.docs[docToken]
	if !ok {
		return nil, fmt.Errorf("doc not found: %s", docToken)
	}
	return &source.RemoteDoc{
		Title:      doc.Title,
		Content:    doc.Content,
		RevisionAt: doc.RevisionAt,
		Raw:        []byte(doc.Content),
	}, nil
}

var _ source.RemoteClient = (*ScriptedRemoteClient)(nil)
