package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/s1ren-78/beiduoduo/internal/mirror"
	"github.com/s1ren-78/beiduoduo/internal/model"
)

const defaultTopK = 10

// Search runs an FTS5 match over chunk content, joined back to live
// documents. Removed documents never appear in results. Score is the
// negated FTS rank so that higher means more relevant.
func (s *SQLiteDatabase) Search(q mirror.SearchQuery) ([]*mirror.SearchResult, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, errors.New("empty search query")
	}
	topK := q.TopK
	if topK <= 0 {
		topK = defaultTopK
	}

	query := `
		SELECT d.doc_id, d.title, d.source_type, COALESCE(d.category, ''),
		       c.chunk_id, -f.rank,
		       snippet(chunk_fts, 2, '', '', '...', 24),
		       c.start_offset, c.end_offset,
		       COALESCE(sf.file_path, ''), d.synced_at
		FROM chunk_fts f
		JOIN chunk c ON c.chunk_id = f.chunk_id
		JOIN document d ON d.doc_id = c.doc_id
		LEFT JOIN source_file sf ON sf.id = d.source_file_id
		WHERE chunk_fts MATCH ? AND d.removed = 0`
	args := []any{ftsQuery(q.Text)}

	if q.SourceType != "" {
		query += " AND d.source_type = ?"
		args = append(args, q.SourceType)
	}
	if q.Category != "" {
		query += " AND d.category = ?"
		args = append(args, q.Category)
	}
	if !q.From.IsZero() {
		query += " AND d.updated_time >= ?"
		args = append(args, q.From)
	}
	if !q.To.IsZero() {
		query += " AND d.updated_time <= ?"
		args = append(args, q.To)
	}
	query += " ORDER BY f.rank LIMIT ?"
	args = append(args, topK)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}
	defer rows.Close()

	var results []*mirror.SearchResult
	for rows.Next() {
		var r mirror.SearchResult
		err := rows.Scan(&r.DocID, &r.Title, &r.SourceType, &r.Category,
			&r.ChunkID, &r.Score, &r.Quote, &r.StartOffset, &r.EndOffset,
			&r.FilePath, &r.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning search result: %w", err)
		}
		results = append(results, &r)
	}
	return results, rows.Err()
}

// ftsQuery quotes each term so user input cannot inject FTS5 syntax.
func ftsQuery(text string) string {
	terms := strings.Fields(text)
	for i, t := range terms {
		terms[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(terms, " ")
}

func (s *SQLiteDatabase) GetDocument(docID string) (*mirror.DocumentDetail, error) {
	var doc model.Document
	err := s.db.QueryRow(`
		SELECT doc_id, source_type, source_id, title, category, source_file_id,
		       full_text, content_hash, updated_time, synced_at, removed, meta
		FROM document WHERE doc_id = ?`, docID,
	).Scan(&doc.DocID, &doc.SourceType, &doc.SourceID, &doc.Title, &doc.Category,
		&doc.SourceFileID, &doc.FullText, &doc.ContentHash, &doc.UpdatedTime,
		&doc.SyncedAt, &doc.Removed, &doc.Meta)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s not found", docID)
	}
	if err != nil {
		return nil, fmt.Errorf("reading document: %w", err)
	}

	detail := &mirror.DocumentDetail{Document: &doc}

	if doc.SourceFileID.Valid {
		err = s.db.QueryRow(
			"SELECT file_path, file_name, file_ext FROM source_file WHERE id = ?",
			doc.SourceFileID.Int64,
		).Scan(&detail.FilePath, &detail.FileName, &detail.FileExt)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("reading source file: %w", err)
		}
	}

	rows, err := s.db.Query(`
		SELECT chunk_id, doc_id, chunk_index, section, content,
		       start_offset, end_offset, updated_time, meta
		FROM chunk WHERE doc_id = ?
		ORDER BY chunk_index`, docID)
	if err != nil {
		return nil, fmt.Errorf("listing chunks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c model.Chunk
		err := rows.Scan(&c.ChunkID, &c.DocID, &c.ChunkIndex, &c.Section, &c.Content,
			&c.StartOffset, &c.EndOffset, &c.UpdatedTime, &c.Meta)
		if err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		detail.Chunks = append(detail.Chunks, &c)
	}
	return detail, rows.Err()
}

func (s *SQLiteDatabase) SyncStatus() (*mirror.StatusSummary, error) {
	summary := &mirror.StatusSummary{}

	type slot struct {
		scope string
		mode  string
		dest  **time.Time
	}
	slots := []slot{
		{mirror.ScopeLocal, mirror.ModeFull, &summary.LastLocalFull},
		{mirror.ScopeLocal, mirror.ModeIncremental, &summary.LastLocalIncremental},
		{mirror.ScopeRemote, mirror.ModeFull, &summary.LastRemoteFull},
		{mirror.ScopeRemote, mirror.ModeIncremental, &summary.LastRemoteIncremental},
	}
	for _, sl := range slots {
		var ended sql.NullTime
		err := s.db.QueryRow(`
			SELECT ended_at FROM sync_run
			WHERE scope = ? AND mode = ? AND status = ?
			ORDER BY ended_at DESC LIMIT 1`,
			sl.scope, sl.mode, model.RunSuccess,
		).Scan(&ended)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("reading last %s %s run: %w", sl.scope, sl.mode, err)
		}
		if ended.Valid {
			t := ended.Time
			*sl.dest = &t
		}
	}

	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM sync_run WHERE status = ? AND created_at >= datetime('now', '-7 days')",
		model.RunFailed,
	).Scan(&summary.FailedRuns)
	if err != nil {
		return nil, fmt.Errorf("counting failed runs: %w", err)
	}

	cps, err := s.RecentCheckpoints(20)
	if err != nil {
		return nil, err
	}
	summary.Checkpoints = cps
	return summary, nil
}
