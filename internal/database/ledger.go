package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/s1ren-78/beiduoduo/internal/model"
)

// Run ledger operations. Runs are insert-on-start, update-on-terminal:
// a closed run is never reopened.

func (s *SQLiteDatabase) CreateSyncRun(run *model.SyncRun) error {
	_, err := s.db.Exec(`
		INSERT INTO sync_run (run_id, scope, mode, reason, status, started_at, stats, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.Scope, run.Mode, run.Reason, run.Status, run.StartedAt,
		metaOr(run.Stats), run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting sync run: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) MarkRunRunning(runID string, at time.Time) error {
	res, err := s.db.Exec(
		"UPDATE sync_run SET status = ?, started_at = ? WHERE run_id = ? AND status = ?",
		model.RunRunning, at, runID, model.RunQueued,
	)
	if err != nil {
		return fmt.Errorf("starting sync run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking run transition: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("sync run %s is not queued", runID)
	}
	return nil
}

func (s *SQLiteDatabase) FinishSyncRun(runID, status, stats, errorText string, at time.Time) error {
	if status != model.RunSuccess && status != model.RunFailed {
		return fmt.Errorf("invalid terminal status: %s", status)
	}
	res, err := s.db.Exec(`
		UPDATE sync_run
		SET status = ?, ended_at = ?, stats = ?, error_text = ?
		WHERE run_id = ? AND status = ?`,
		status, at, metaOr(stats), nullableText(errorText), runID, model.RunRunning,
	)
	if err != nil {
		return fmt.Errorf("finishing sync run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking run transition: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("sync run %s is not running", runID)
	}
	return nil
}

func (s *SQLiteDatabase) LatestRunForScope(scope string) (*model.SyncRun, error) {
	row := s.db.QueryRow(`
		SELECT run_id, scope, mode, reason, status, started_at, ended_at, stats, error_text, created_at
		FROM sync_run
		WHERE scope = ?
		ORDER BY created_at DESC
		LIMIT 1`, scope)

	run, err := scanSyncRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return run, err
}

func (s *SQLiteDatabase) RecentSyncRuns(limit int) ([]*model.SyncRun, error) {
	rows, err := s.db.Query(`
		SELECT run_id, scope, mode, reason, status, started_at, ended_at, stats, error_text, created_at
		FROM sync_run
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing sync runs: %w", err)
	}
	defer rows.Close()

	var runs []*model.SyncRun
	for rows.Next() {
		run, err := scanSyncRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSyncRun(row rowScanner) (*model.SyncRun, error) {
	var run model.SyncRun
	err := row.Scan(&run.RunID, &run.Scope, &run.Mode, &run.Reason, &run.Status,
		&run.StartedAt, &run.EndedAt, &run.Stats, &run.ErrorText, &run.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning sync run: %w", err)
	}
	return &run, nil
}

// Checkpoint operations. SetCheckpoint is the only writer; the engine
// calls it strictly after the corresponding content writes commit.

func (s *SQLiteDatabase) GetCheckpoint(key string) (*model.Checkpoint, error) {
	var cp model.Checkpoint
	err := s.db.QueryRow(`
		SELECT checkpoint_key, cursor, watermark_ts, meta, updated_at
		FROM checkpoint WHERE checkpoint_key = ?`, key,
	).Scan(&cp.Key, &cp.Cursor, &cp.WatermarkTs, &cp.Meta, &cp.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading checkpoint: %w", err)
	}
	return &cp, nil
}

func (s *SQLiteDatabase) SetCheckpoint(key, cursor string, watermark time.Time, meta string) error {
	_, err := s.db.Exec(`
		INSERT INTO checkpoint (checkpoint_key, cursor, watermark_ts, meta, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (checkpoint_key) DO UPDATE SET
			cursor = excluded.cursor,
			watermark_ts = excluded.watermark_ts,
			meta = excluded.meta,
			updated_at = excluded.updated_at`,
		key, nullableText(cursor), watermark, metaOr(meta), timeNow(),
	)
	if err != nil {
		return fmt.Errorf("writing checkpoint: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) RecentCheckpoints(limit int) ([]*model.Checkpoint, error) {
	rows, err := s.db.Query(`
		SELECT checkpoint_key, cursor, watermark_ts, meta, updated_at
		FROM checkpoint
		ORDER BY updated_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing checkpoints: %w", err)
	}
	defer rows.Close()

	var cps []*model.Checkpoint
	for rows.Next() {
		var cp model.Checkpoint
		if err := rows.Scan(&cp.Key, &cp.Cursor, &cp.WatermarkTs, &cp.Meta, &cp.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning checkpoint: %w", err)
		}
		cps = append(cps, &cp)
	}
	return cps, rows.Err()
}

func nullableText(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
