package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/s1ren-78/beiduoduo/internal/extract"
	"github.com/s1ren-78/beiduoduo/internal/mirror"
	"github.com/s1ren-78/beiduoduo/internal/model"
)

// remoteCheckpointKey is the scope-level checkpoint for remote syncs.
// Each whitelisted container additionally keeps its own checkpoint row
// ("remote:<type>:<token>") so a killed run resumes mid-container.
const remoteCheckpointKey = "remote:global"

// RemoteAdapter pages through whitelist-enabled containers on the
// document platform and yields their documents as change records. It
// backs off cooperatively when the platform throttles and advances the
// per-container cursor only after a page's records have been reconciled
// by the caller.
type RemoteAdapter struct {
	client  RemoteClient
	store   mirror.Store
	archive mirror.Archive // nil disables raw payload archival
	clock   mirror.Clock
	logger  mirror.Logger

	pageSize     int
	retryMax     int
	retryBackoff time.Duration
	sleep        func(ctx context.Context, d time.Duration) error
}

var _ mirror.Adapter = (*RemoteAdapter)(nil)

// NewRemoteAdapter creates an adapter over the given client. pageSize
// is the listing page length requested from the platform (zero lets the
// client choose). retryMax bounds backoff attempts per page or fetch;
// retryBackoff is the initial delay, doubled per attempt unless the
// platform names its own.
func NewRemoteAdapter(client RemoteClient, store mirror.Store, archive mirror.Archive, clock mirror.Clock, logger mirror.Logger, pageSize, retryMax int, retryBackoff time.Duration) *RemoteAdapter {
	return &RemoteAdapter{
		client:       client,
		store:        store,
		archive:      archive,
		clock:        clock,
		logger:       logger,
		pageSize:     pageSize,
		retryMax:     retryMax,
		retryBackoff: retryBackoff,
		sleep:        sleepCtx,
	}
}

func (a *RemoteAdapter) SourceType() string    { return model.SourceRemote }
func (a *RemoteAdapter) CheckpointKey() string { return remoteCheckpointKey }

// ListChanges yields the documents of every enabled whitelist entry.
// The whitelist is a pure filter: disabled entries are skipped, never
// un-synced.
func (a *RemoteAdapter) ListChanges(ctx context.Context, req mirror.ListRequest, fn func(mirror.ChangeRecord) error) (string, error) {
	entries, err := a.store.WhitelistEntries(true)
	if err != nil {
		return "", fmt.Errorf("loading whitelist: %w", err)
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		category := entry.Label.String
		if category == "" {
			category = "remote-" + entry.EntryType
		}

		switch entry.EntryType {
		case "doc":
			ref := DocRef{DocToken: entry.EntryToken}
			if err := fn(a.recordFor(ref, entry.EntryType, entry.EntryToken, category, req.RunID)); err != nil {
				return "", err
			}
		case "space", "folder":
			if err := a.syncContainer(ctx, entry, category, req, fn); err != nil {
				return "", err
			}
		default:
			// drive_file and unknown entry types are not synced yet.
			a.logger.Debug("skipping whitelist entry", "entry_type", entry.EntryType, "token", entry.EntryToken)
		}
	}

	return "", nil
}

// syncContainer pages through one container. The container checkpoint is
// advanced after every page, once the caller has reconciled the page's
// records, and cleared when the container is exhausted, so the cursor
// only ever points at unfinished work.
func (a *RemoteAdapter) syncContainer(ctx context.Context, entry *model.WhitelistEntry, category string, req mirror.ListRequest, fn func(mirror.ChangeRecord) error) error {
	key := containerCheckpointKey(entry.EntryType, entry.EntryToken)

	pageToken := ""
	if !req.Full {
		cp, err := a.store.GetCheckpoint(key)
		if err != nil {
			return fmt.Errorf("resolving container checkpoint %s: %w", key, err)
		}
		if cp != nil && cp.Cursor.Valid {
			pageToken = cp.Cursor.String
		}
	}

	for {
		var page *ContainerPage
		err := a.withBackoff(ctx, "listing "+key, func() error {
			var err error
			page, err = a.client.ListContainer(ctx, entry.EntryType, entry.EntryToken, pageToken, a.pageSize)
			return err
		})
		if err != nil {
			return err
		}

		for _, ref := range page.Refs {
			if err := fn(a.recordFor(ref, entry.EntryType, entry.EntryToken, category, req.RunID)); err != nil {
				return err
			}
		}

		if !page.HasMore {
			break
		}
		pageToken = page.NextPageToken

		meta := checkpointMeta(req.RunID)
		if err := a.store.SetCheckpoint(key, pageToken, a.clock.Now(), meta); err != nil {
			return fmt.Errorf("advancing container checkpoint %s: %w", key, err)
		}
	}

	if err := a.store.SetCheckpoint(key, "", a.clock.Now(), checkpointMeta(req.RunID)); err != nil {
		return fmt.Errorf("closing container checkpoint %s: %w", key, err)
	}
	return nil
}

// recordFor builds the change record for one document reference.
// Content fetching, hashing and raw archival happen lazily in Fetch so
// the engine's hash gate can still skip unchanged documents cheaply.
func (a *RemoteAdapter) recordFor(ref DocRef, entryType, entryToken, category, runID string) mirror.ChangeRecord {
	sourceID := "remote:doc:" + ref.DocToken
	rec := mirror.ChangeRecord{
		SourceType: model.SourceRemote,
		SourceID:   sourceID,
		Path:       "remote://docx/" + ref.DocToken,
		Name:       ref.DocToken,
		Ext:        ".docx",
		Category:   category,
		ModTime:    ref.UpdatedAt,
		Meta: map[string]string{
			"entry_type":  entryType,
			"entry_token": entryToken,
			"doc_token":   ref.DocToken,
		},
	}

	if ref.Deleted {
		rec.Kind = mirror.ChangeDelete
		return rec
	}

	rec.Kind = mirror.ChangeUpsert
	rec.Fetch = func(ctx context.Context) (*mirror.Content, error) {
		var doc *RemoteDoc
		err := a.withBackoff(ctx, "fetching "+sourceID, func() error {
			var err error
			doc, err = a.client.FetchDoc(ctx, ref.DocToken)
			return err
		})
		if err != nil {
			return nil, err
		}

		hash := extract.HashText(doc.Content)
		if err := a.archiveDoc(sourceID, hash, doc, entryType, entryToken, runID); err != nil {
			// Archival is best-effort; the relational store is the
			// system of record.
			a.logger.Warn("archiving raw payload", "source_id", sourceID, "error", err)
		}

		title := doc.Title
		if title == "" {
			title = ref.DocToken
		}
		return &mirror.Content{
			Text:  doc.Content,
			Title: title,
			Meta:  map[string]string{"content_hash": hash},
		}, nil
	}
	return rec
}

// archiveDoc stores the raw payload content-addressed and records the
// fetch event.
func (a *RemoteAdapter) archiveDoc(sourceID, hash string, doc *RemoteDoc, entryType, entryToken, runID string) error {
	if a.archive == nil {
		return nil
	}

	raw := doc.Raw
	if len(raw) == 0 {
		raw = []byte(doc.Content)
	}
	if err := a.archive.PutPayload(hash, bytes.NewReader(raw), int64(len(raw))); err != nil {
		return err
	}
	return a.archive.AppendEvent("remote_doc", &mirror.ArchiveEvent{
		RunID:       runID,
		SourceID:    sourceID,
		ContentHash: hash,
		FetchedAt:   a.clock.Now(),
		EntryType:   entryType,
		EntryToken:  entryToken,
	})
}

// withBackoff runs fn, pausing and retrying on throttle signals and
// transient errors up to retryMax attempts. Throttle delays honor the
// platform's hint when present, otherwise exponential backoff from
// retryBackoff.
func (a *RemoteAdapter) withBackoff(ctx context.Context, op string, fn func() error) error {
	delay := a.retryBackoff
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if attempt >= a.retryMax {
			return fmt.Errorf("%s: giving up after %d attempts: %w", op, attempt+1, err)
		}

		wait := delay
		var throttle *ThrottleError
		if errors.As(err, &throttle) && throttle.RetryAfter > 0 {
			wait = throttle.RetryAfter
		} else {
			delay *= 2
		}

		a.logger.Warn("backing off", "op", op, "attempt", attempt+1, "wait", wait, "error", err)
		if err := a.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func containerCheckpointKey(entryType, entryToken string) string {
	return "remote:" + entryType + ":" + entryToken
}

func checkpointMeta(runID string) string {
	data, err := json.Marshal(map[string]string{"run_id": runID})
	if err != nil {
		return "{}"
	}
	return string(data)
}

// sleepCtx sleeps for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
