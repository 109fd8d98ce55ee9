package mirror

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/s1ren-78/beiduoduo/internal/chunk"
	"github.com/s1ren-78/beiduoduo/internal/extract"
	"github.com/s1ren-78/beiduoduo/internal/model"
)

// Sync scopes.
const (
	ScopeLocal      = "local"
	ScopeRemote     = "remote"
	ScopeAll        = "all"
	ScopeMarket     = "market"
	ScopeFinancials = "financials"
)

// Sync modes.
const (
	ModeFull        = "full"
	ModeIncremental = "incremental"
)

// Trigger reasons. Miss is treated identically to manual; the reason is
// recorded for the audit trail only.
const (
	ReasonManual    = "manual"
	ReasonScheduled = "scheduled"
	ReasonMiss      = "miss"
)

// RunOutcome is the result of one synchronization run.
type RunOutcome struct {
	RunID  string
	Status string
	Stats  *Stats
}

// ScopeRunner executes one non-document scope (market, financials).
type ScopeRunner interface {
	Run(ctx context.Context, mode, runID string) (*Stats, error)
}

// Service is the sync engine. It orchestrates one synchronization run:
// resolve the checkpoint, stream changes from the source adapter,
// reconcile each into the store, persist the checkpoint, and record the
// run outcome. It holds no mutable state beyond its injected
// dependencies; callers are responsible for not running the same scope
// concurrently.
type Service struct {
	store    Store
	local    Adapter
	remote   Adapter
	runners  map[string]ScopeRunner
	chunkCfg chunk.Config
	logger   Logger
	clock    Clock
	idgen    IDGenerator
}

// NewService creates a sync engine. local and remote may be nil when the
// corresponding scope is not configured; runners maps extra scope names
// to their runners.
func NewService(store Store, local, remote Adapter, runners map[string]ScopeRunner, logger Logger, clock Clock, idgen IDGenerator) *Service {
	return &Service{
		store:    store,
		local:    local,
		remote:   remote,
		runners:  runners,
		chunkCfg: chunk.DefaultConfig(),
		logger:   logger,
		clock:    clock,
		idgen:    idgen,
	}
}

// RunSync executes one synchronization run for the given scope. The run
// is recorded in the ledger whatever its outcome; a failed run leaves
// every checkpoint at its pre-run value so the next incremental run
// resumes from the last successful point.
func (s *Service) RunSync(ctx context.Context, scope, mode, reason string) (*RunOutcome, error) {
	if err := validateRun(scope, mode, reason, s.runners); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	run := &model.SyncRun{
		RunID:     s.idgen.New(),
		Scope:     scope,
		Mode:      mode,
		Reason:    reason,
		Status:    model.RunQueued,
		StartedAt: now,
		Stats:     "{}",
		CreatedAt: now,
	}
	if err := s.store.CreateSyncRun(run); err != nil {
		return nil, fmt.Errorf("creating sync run: %w", err)
	}
	if err := s.store.MarkRunRunning(run.RunID, s.clock.Now()); err != nil {
		return nil, fmt.Errorf("starting sync run: %w", err)
	}

	s.logger.Info("sync run started", "run_id", run.RunID, "scope", scope, "mode", mode, "reason", reason)

	stats, err := s.execute(ctx, scope, mode, run.RunID)
	if err != nil {
		s.logger.Error("sync run failed", "run_id", run.RunID, "scope", scope, "error", err)
		// Partial counters are kept alongside the error text so a
		// failed run still shows how far it got.
		failStats := "{}"
		if stats != nil {
			if data, merr := json.Marshal(stats); merr == nil {
				failStats = string(data)
			}
		}
		if ferr := s.store.FinishSyncRun(run.RunID, model.RunFailed, failStats, err.Error(), s.clock.Now()); ferr != nil {
			s.logger.Error("recording failed run", "run_id", run.RunID, "error", ferr)
		}
		return &RunOutcome{RunID: run.RunID, Status: model.RunFailed, Stats: stats}, err
	}

	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return nil, fmt.Errorf("encoding run stats: %w", err)
	}
	if err := s.store.FinishSyncRun(run.RunID, model.RunSuccess, string(statsJSON), "", s.clock.Now()); err != nil {
		return nil, fmt.Errorf("finishing sync run: %w", err)
	}

	s.logger.Info("sync run finished", "run_id", run.RunID, "scope", scope,
		"created", stats.Created, "updated", stats.Updated, "skipped", stats.Skipped,
		"deleted", stats.Deleted, "unsupported", stats.Unsupported, "failures", stats.Failures)

	return &RunOutcome{RunID: run.RunID, Status: model.RunSuccess, Stats: stats}, nil
}

// GetSyncStatus returns the latest run for the scope (or across all
// scopes when scope is empty) plus recent history.
func (s *Service) GetSyncStatus(scope string, historyLimit int) (*model.SyncRun, []*model.SyncRun, error) {
	var latest *model.SyncRun
	var err error
	if scope != "" {
		latest, err = s.store.LatestRunForScope(scope)
		if err != nil {
			return nil, nil, fmt.Errorf("latest run for scope %s: %w", scope, err)
		}
	}
	history, err := s.store.RecentSyncRuns(historyLimit)
	if err != nil {
		return nil, nil, fmt.Errorf("recent runs: %w", err)
	}
	if latest == nil && len(history) > 0 {
		latest = history[0]
	}
	return latest, history, nil
}

func validateRun(scope, mode, reason string, runners map[string]ScopeRunner) error {
	switch scope {
	case ScopeLocal, ScopeRemote, ScopeAll:
	default:
		if _, ok := runners[scope]; !ok {
			return fmt.Errorf("unknown sync scope: %s", scope)
		}
	}
	if mode != ModeFull && mode != ModeIncremental {
		return fmt.Errorf("unknown sync mode: %s", mode)
	}
	switch reason {
	case ReasonManual, ReasonScheduled, ReasonMiss:
	default:
		return fmt.Errorf("unknown sync reason: %s", reason)
	}
	return nil
}

// execute dispatches one run body by scope.
func (s *Service) execute(ctx context.Context, scope, mode, runID string) (*Stats, error) {
	switch scope {
	case ScopeLocal:
		return s.syncAdapter(ctx, s.local, mode, runID)
	case ScopeRemote:
		return s.syncAdapter(ctx, s.remote, mode, runID)
	case ScopeAll:
		// Unconfigured sides are skipped so "all" works on a
		// local-only setup; at least one side must be configured.
		total := &Stats{}
		ran := false
		for _, side := range []struct {
			scope   string
			adapter Adapter
		}{{ScopeLocal, s.local}, {ScopeRemote, s.remote}} {
			if side.adapter == nil {
				s.logger.Warn("scope not configured, skipping", "scope", side.scope)
				continue
			}
			stats, err := s.syncAdapter(ctx, side.adapter, mode, runID)
			if stats != nil {
				total.Add(stats)
			}
			if err != nil {
				return total, err
			}
			ran = true
		}
		if !ran {
			return nil, fmt.Errorf("no scopes configured")
		}
		return total, nil
	default:
		return s.runners[scope].Run(ctx, mode, runID)
	}
}

// syncAdapter streams one adapter's changes and reconciles them. The
// scope checkpoint is written only after the adapter reports stream
// exhaustion and every yielded record has been committed; a failure at
// any point leaves it untouched.
func (s *Service) syncAdapter(ctx context.Context, a Adapter, mode, runID string) (*Stats, error) {
	if a == nil {
		return nil, fmt.Errorf("scope not configured")
	}

	req := ListRequest{Full: mode == ModeFull, RunID: runID}
	if mode == ModeIncremental {
		cp, err := s.store.GetCheckpoint(a.CheckpointKey())
		if err != nil {
			return nil, fmt.Errorf("resolving checkpoint %s: %w", a.CheckpointKey(), err)
		}
		if cp != nil && cp.Cursor.Valid {
			req.Cursor = cp.Cursor.String
		}
	}

	// On failure the partial stats still come back with the error so
	// the ledger records how far the run got.
	stats := &Stats{}
	cursor, err := a.ListChanges(ctx, req, func(rec ChangeRecord) error {
		return s.reconcile(ctx, rec, runID, stats)
	})
	if err != nil {
		return stats, fmt.Errorf("listing changes for %s: %w", a.CheckpointKey(), err)
	}

	meta, err := json.Marshal(map[string]any{"run_id": runID, "stats": stats})
	if err != nil {
		return stats, fmt.Errorf("encoding checkpoint meta: %w", err)
	}
	if err := s.store.SetCheckpoint(a.CheckpointKey(), cursor, s.clock.Now(), string(meta)); err != nil {
		return stats, fmt.Errorf("advancing checkpoint %s: %w", a.CheckpointKey(), err)
	}

	return stats, nil
}

// reconcile applies one change record to the store. Per-item anomalies
// (unsupported formats, fetch/parse failures) are recorded against the
// source file and swallowed; only store write failures propagate and
// abort the run.
func (s *Service) reconcile(ctx context.Context, rec ChangeRecord, runID string, stats *Stats) error {
	stats.Scanned++

	switch rec.Kind {
	case ChangeUnsupported:
		stats.Unsupported++
		return s.recordUnsupported(rec, runID, rec.UnsupportedReason)

	case ChangeDelete:
		if err := s.store.MarkDocumentRemoved(rec.SourceType, rec.SourceID, s.clock.Now()); err != nil {
			return fmt.Errorf("marking %s removed: %w", rec.SourceID, err)
		}
		stats.Deleted++
		s.logger.Debug("source removed", "source_id", rec.SourceID)
		return nil

	case ChangeUpsert:
		return s.ingest(ctx, rec, runID, stats)

	default:
		return fmt.Errorf("unknown change kind %q for %s", rec.Kind, rec.SourceID)
	}
}

// ingest fetches, hash-gates, and (if changed) rewrites one document and
// its chunk set.
func (s *Service) ingest(ctx context.Context, rec ChangeRecord, runID string, stats *Stats) error {
	content, err := rec.Fetch(ctx)
	if err != nil {
		// Unreachable or unparseable content is a per-item anomaly,
		// recorded with a reason so it stays attributable.
		stats.Failures++
		s.logger.Warn("fetch failed", "source_id", rec.SourceID, "error", err)
		return s.recordUnsupported(rec, runID, fmt.Sprintf("fetch_error: %v", err))
	}

	hash := rec.ContentHash
	if hash == "" {
		hash = extract.HashText(content.Text)
	}

	sfID, err := s.store.UpsertSourceFile(&model.SourceFile{
		SourceType:  rec.SourceType,
		SourceID:    rec.SourceID,
		FilePath:    rec.Path,
		FileName:    rec.Name,
		FileExt:     rec.Ext,
		Category:    nullString(rec.Category),
		FileSize:    rec.Size,
		FileMtime:   nullTime(rec.ModTime),
		ContentHash: hash,
		IsSupported: true,
		Meta:        s.metaJSON(runID, rec.Meta, content.Meta),
	})
	if err != nil {
		return fmt.Errorf("upserting source file %s: %w", rec.SourceID, err)
	}

	existingHash, exists, err := s.store.GetDocumentHash(rec.SourceType, rec.SourceID)
	if err != nil {
		return fmt.Errorf("checking document hash for %s: %w", rec.SourceID, err)
	}
	if exists && existingHash == hash {
		stats.Skipped++
		s.logger.Debug("content unchanged", "source_id", rec.SourceID)
		return nil
	}

	title := strings.TrimSpace(content.Title)
	if title == "" {
		title = rec.Name
	}

	docID, err := s.store.UpsertDocument(&model.Document{
		DocID:        s.idgen.New(),
		SourceType:   rec.SourceType,
		SourceID:     rec.SourceID,
		Title:        title,
		Category:     nullString(rec.Category),
		SourceFileID: sql.NullInt64{Int64: sfID, Valid: true},
		FullText:     content.Text,
		ContentHash:  hash,
		UpdatedTime:  nullTime(rec.ModTime),
		SyncedAt:     s.clock.Now(),
		Meta:         s.metaJSON(runID, rec.Meta, content.Meta),
	})
	if err != nil {
		return fmt.Errorf("upserting document %s: %w", rec.SourceID, err)
	}

	pieces := chunk.Split(content.Text, s.chunkCfg)
	chunks := make([]*model.Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = &model.Chunk{
			ChunkID:     s.idgen.New(),
			DocID:       docID,
			ChunkIndex:  p.Index,
			Section:     nullString(p.Section),
			Content:     p.Content,
			StartOffset: p.StartOffset,
			EndOffset:   p.EndOffset,
			UpdatedTime: nullTime(rec.ModTime),
			Meta:        "{}",
		}
	}
	if err := s.store.ReplaceChunks(docID, chunks); err != nil {
		return fmt.Errorf("replacing chunks for %s: %w", rec.SourceID, err)
	}

	if exists {
		stats.Updated++
	} else {
		stats.Created++
	}
	stats.ChunksWritten += len(chunks)
	return nil
}

// recordUnsupported upserts a source-file row flagged unsupported.
// Unsupported rows keep the "unsupported" source type so every observed
// file is recorded even when it never becomes a document.
func (s *Service) recordUnsupported(rec ChangeRecord, runID, reason string) error {
	_, err := s.store.UpsertSourceFile(&model.SourceFile{
		SourceType:        model.SourceUnsupported,
		SourceID:          rec.SourceID,
		FilePath:          rec.Path,
		FileName:          rec.Name,
		FileExt:           rec.Ext,
		Category:          nullString(rec.Category),
		FileSize:          rec.Size,
		FileMtime:         nullTime(rec.ModTime),
		ContentHash:       rec.ContentHash,
		IsSupported:       false,
		UnsupportedReason: nullString(reason),
		Meta:              s.metaJSON(runID, rec.Meta, nil),
	})
	if err != nil {
		return fmt.Errorf("recording unsupported file %s: %w", rec.SourceID, err)
	}
	return nil
}

// metaJSON merges record and content metadata with the run ID into one
// opaque JSON blob. The engine never reads it back.
func (s *Service) metaJSON(runID string, sets ...map[string]string) string {
	merged := map[string]string{"run_id": runID}
	for _, set := range sets {
		for k, v := range set {
			merged[k] = v
		}
	}
	data, err := json.Marshal(merged)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
