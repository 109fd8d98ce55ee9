// Package database implements the mirror's durable stores on sqlite:
// content tables, the checkpoint table, the run ledger, the FTS5 chunk
// index, and the market data tables.
package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/s1ren-78/beiduoduo/internal/database/migrations"
	"github.com/s1ren-78/beiduoduo/internal/mirror"
	"github.com/s1ren-78/beiduoduo/internal/model"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase implements mirror.Store, mirror.Querier and
// market.Store on a single sqlite file.
type SQLiteDatabase struct {
	db   *sql.DB
	path string
}

var _ mirror.Store = (*SQLiteDatabase)(nil)

// NewSQLiteDatabase opens (or creates) a sqlite database at path.
// path can be a file path or ":memory:" for an in-memory database.
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteDatabase{db: db, path: path}, nil
}

// NewSQLiteDatabaseFromDB wraps an existing connection. The caller is
// responsible for ensuring the connection is properly configured.
func NewSQLiteDatabaseFromDB(db *sql.DB) *SQLiteDatabase {
	return &SQLiteDatabase{db: db}
}

// OpenConnection opens and configures a sqlite connection with the
// PRAGMAs the mirror relies on. Exported for tools and tests that need
// a properly configured connection.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %q: %w", pragma, err)
		}
	}
	return db, nil
}

// MigrateUp brings the schema to the latest version.
func (s *SQLiteDatabase) MigrateUp() error {
	return migrations.Up(s.db)
}

// CheckMigrations verifies the schema is at the latest version.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.Check(s.db)
}

// Close closes the underlying connection.
func (s *SQLiteDatabase) Close() error {
	return s.db.Close()
}

// Source file operations

// UpsertSourceFile inserts or updates by (source_type, source_id) and
// returns the row ID. Re-observing a previously removed file clears its
// removed flag.
func (s *SQLiteDatabase) UpsertSourceFile(sf *model.SourceFile) (int64, error) {
	now := timeNow()
	_, err := s.db.Exec(`
		INSERT INTO source_file (
			source_type, source_id, file_path, file_name, file_ext, category,
			file_size, file_mtime, content_hash, is_supported, unsupported_reason,
			removed, meta, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?)
		ON CONFLICT (source_type, source_id) DO UPDATE SET
			file_path = excluded.file_path,
			file_name = excluded.file_name,
			file_ext = excluded.file_ext,
			category = excluded.category,
			file_size = excluded.file_size,
			file_mtime = excluded.file_mtime,
			content_hash = excluded.content_hash,
			is_supported = excluded.is_supported,
			unsupported_reason = excluded.unsupported_reason,
			removed = 0,
			meta = excluded.meta,
			updated_at = excluded.updated_at`,
		sf.SourceType, sf.SourceID, sf.FilePath, sf.FileName, sf.FileExt, sf.Category,
		sf.FileSize, sf.FileMtime, sf.ContentHash, sf.IsSupported, sf.UnsupportedReason,
		metaOr(sf.Meta), now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("upserting source file: %w", err)
	}

	var id int64
	err = s.db.QueryRow(
		"SELECT id FROM source_file WHERE source_type = ? AND source_id = ?",
		sf.SourceType, sf.SourceID,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("reading source file id: %w", err)
	}
	return id, nil
}

// ListSourceFiles returns all non-removed source files of a type.
func (s *SQLiteDatabase) ListSourceFiles(sourceType string) ([]*model.SourceFile, error) {
	rows, err := s.db.Query(`
		SELECT id, source_type, source_id, file_path, file_name, file_ext, category,
		       file_size, file_mtime, content_hash, is_supported, unsupported_reason,
		       removed, meta, created_at, updated_at
		FROM source_file
		WHERE source_type = ? AND removed = 0
		ORDER BY source_id ASC`, sourceType)
	if err != nil {
		return nil, fmt.Errorf("listing source files: %w", err)
	}
	defer rows.Close()

	var files []*model.SourceFile
	for rows.Next() {
		var f model.SourceFile
		err := rows.Scan(&f.ID, &f.SourceType, &f.SourceID, &f.FilePath, &f.FileName, &f.FileExt,
			&f.Category, &f.FileSize, &f.FileMtime, &f.ContentHash, &f.IsSupported,
			&f.UnsupportedReason, &f.Removed, &f.Meta, &f.CreatedAt, &f.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning source file: %w", err)
		}
		files = append(files, &f)
	}
	return files, rows.Err()
}

// Document operations

// GetDocumentHash returns the stored content hash for a live document.
// Removed documents report not-found so a deleted-then-restored source
// is reingested rather than skipped by the hash gate.
func (s *SQLiteDatabase) GetDocumentHash(sourceType, sourceID string) (string, bool, error) {
	var hash string
	err := s.db.QueryRow(
		"SELECT content_hash FROM document WHERE source_type = ? AND source_id = ? AND removed = 0",
		sourceType, sourceID,
	).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading document hash: %w", err)
	}
	return hash, true, nil
}

// UpsertDocument inserts or updates by (source_type, source_id).
// Existing rows keep their doc_id; doc.DocID is only used for inserts.
func (s *SQLiteDatabase) UpsertDocument(doc *model.Document) (string, error) {
	var existingID string
	err := s.db.QueryRow(
		"SELECT doc_id FROM document WHERE source_type = ? AND source_id = ?",
		doc.SourceType, doc.SourceID,
	).Scan(&existingID)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err := s.db.Exec(`
			INSERT INTO document (
				doc_id, source_type, source_id, title, category, source_file_id,
				full_text, content_hash, updated_time, synced_at, removed, meta
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
			doc.DocID, doc.SourceType, doc.SourceID, doc.Title, doc.Category, doc.SourceFileID,
			doc.FullText, doc.ContentHash, doc.UpdatedTime, doc.SyncedAt, metaOr(doc.Meta),
		)
		if err != nil {
			return "", fmt.Errorf("inserting document: %w", err)
		}
		return doc.DocID, nil

	case err != nil:
		return "", fmt.Errorf("finding document: %w", err)

	default:
		_, err := s.db.Exec(`
			UPDATE document
			SET title = ?, category = ?, source_file_id = ?, full_text = ?,
			    content_hash = ?, updated_time = ?, synced_at = ?, removed = 0, meta = ?
			WHERE doc_id = ?`,
			doc.Title, doc.Category, doc.SourceFileID, doc.FullText,
			doc.ContentHash, doc.UpdatedTime, doc.SyncedAt, metaOr(doc.Meta), existingID,
		)
		if err != nil {
			return "", fmt.Errorf("updating document: %w", err)
		}
		return existingID, nil
	}
}

// ReplaceChunks atomically replaces a document's chunk set and its
// full-text index entries.
func (s *SQLiteDatabase) ReplaceChunks(docID string, chunks []*model.Chunk) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM chunk_fts WHERE doc_id = ?", docID); err != nil {
		return fmt.Errorf("clearing chunk index: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM chunk WHERE doc_id = ?", docID); err != nil {
		return fmt.Errorf("clearing chunks: %w", err)
	}

	for _, c := range chunks {
		_, err := tx.Exec(`
			INSERT INTO chunk (
				chunk_id, doc_id, chunk_index, section, content,
				start_offset, end_offset, updated_time, meta
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ChunkID, docID, c.ChunkIndex, c.Section, c.Content,
			c.StartOffset, c.EndOffset, c.UpdatedTime, metaOr(c.Meta),
		)
		if err != nil {
			return fmt.Errorf("inserting chunk %d: %w", c.ChunkIndex, err)
		}
		_, err = tx.Exec(
			"INSERT INTO chunk_fts (chunk_id, doc_id, content) VALUES (?, ?, ?)",
			c.ChunkID, docID, c.Content,
		)
		if err != nil {
			return fmt.Errorf("indexing chunk %d: %w", c.ChunkIndex, err)
		}
	}

	return tx.Commit()
}

// MarkDocumentRemoved soft-deletes the document and source file for a
// source identity. Rows persist for audit; search filters them out.
func (s *SQLiteDatabase) MarkDocumentRemoved(sourceType, sourceID string, at time.Time) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		"UPDATE document SET removed = 1, synced_at = ? WHERE source_type = ? AND source_id = ?",
		at, sourceType, sourceID,
	)
	if err != nil {
		return fmt.Errorf("marking document removed: %w", err)
	}
	_, err = tx.Exec(
		"UPDATE source_file SET removed = 1, updated_at = ? WHERE source_type = ? AND source_id = ?",
		at, sourceType, sourceID,
	)
	if err != nil {
		return fmt.Errorf("marking source file removed: %w", err)
	}
	return tx.Commit()
}

func timeNow() time.Time {
	return time.Now().UTC()
}

func metaOr(meta string) string {
	if meta == "" {
		return "{}"
	}
	return meta
}
