package database

import (
	"fmt"

	"github.com/s1ren-78/beiduoduo/internal/model"
)

// Whitelist management. Disabling an entry only filters future syncs;
// already-synced content stays in place.

func (s *SQLiteDatabase) UpsertWhitelistEntry(entry *model.WhitelistEntry) error {
	now := timeNow()
	_, err := s.db.Exec(`
		INSERT INTO whitelist (entry_type, entry_token, label, enabled, meta, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (entry_type, entry_token) DO UPDATE SET
			label = excluded.label,
			enabled = excluded.enabled,
			meta = excluded.meta,
			updated_at = excluded.updated_at`,
		entry.EntryType, entry.EntryToken, entry.Label, entry.Enabled,
		metaOr(entry.Meta), now, now,
	)
	if err != nil {
		return fmt.Errorf("upserting whitelist entry: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) SetWhitelistEnabled(entryType, entryToken string, enabled bool) error {
	res, err := s.db.Exec(
		"UPDATE whitelist SET enabled = ?, updated_at = ? WHERE entry_type = ? AND entry_token = ?",
		enabled, timeNow(), entryType, entryToken,
	)
	if err != nil {
		return fmt.Errorf("updating whitelist entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking whitelist update: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("whitelist entry %s/%s not found", entryType, entryToken)
	}
	return nil
}

func (s *SQLiteDatabase) WhitelistEntries(enabledOnly bool) ([]*model.WhitelistEntry, error) {
	query := `
		SELECT id, entry_type, entry_token, label, enabled, meta, created_at, updated_at
		FROM whitelist`
	if enabledOnly {
		query += " WHERE enabled = 1"
	}
	query += " ORDER BY id"

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("listing whitelist: %w", err)
	}
	defer rows.Close()

	var entries []*model.WhitelistEntry
	for rows.Next() {
		var e model.WhitelistEntry
		err := rows.Scan(&e.ID, &e.EntryType, &e.EntryToken, &e.Label, &e.Enabled,
			&e.Meta, &e.CreatedAt, &e.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning whitelist entry: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// Watchlist management for the market and financials scopes.

func (s *SQLiteDatabase) UpsertWatchlistItem(item *model.WatchlistItem) error {
	now := timeNow()
	_, err := s.db.Exec(`
		INSERT INTO market_watchlist (symbol, asset_class, label, enabled, meta, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol, asset_class) DO UPDATE SET
			label = excluded.label,
			enabled = excluded.enabled,
			meta = excluded.meta,
			updated_at = excluded.updated_at`,
		item.Symbol, item.AssetClass, item.Label, item.Enabled,
		metaOr(item.Meta), now, now,
	)
	if err != nil {
		return fmt.Errorf("upserting watchlist item: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) Watchlist(enabledOnly bool) ([]*model.WatchlistItem, error) {
	query := `
		SELECT id, symbol, asset_class, label, enabled, meta, created_at, updated_at
		FROM market_watchlist`
	if enabledOnly {
		query += " WHERE enabled = 1"
	}
	query += " ORDER BY id"

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("listing watchlist: %w", err)
	}
	defer rows.Close()

	var items []*model.WatchlistItem
	for rows.Next() {
		var it model.WatchlistItem
		err := rows.Scan(&it.ID, &it.Symbol, &it.AssetClass, &it.Label, &it.Enabled,
			&it.Meta, &it.CreatedAt, &it.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning watchlist item: %w", err)
		}
		items = append(items, &it)
	}
	return items, rows.Err()
}
