package model

import (
	"database/sql"
	"time"
)

// Source types for files and documents.
const (
	SourceLocal       = "local"
	SourceRemote      = "remote"
	SourceUnsupported = "unsupported"
)

// SourceFile is one observed physical or remote file.
// (SourceType, SourceID) is unique; re-observing the same source ID
// updates the existing row.
type SourceFile struct {
	ID                int64
	SourceType        string
	SourceID          string
	FilePath          string
	FileName          string
	FileExt           string
	Category          sql.NullString
	FileSize          int64
	FileMtime         sql.NullTime
	ContentHash       string
	IsSupported       bool
	UnsupportedReason sql.NullString
	Removed           bool
	Meta              string // opaque JSON, never parsed by the engine
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Document is a normalized, synced unit of content derived from one
// source file. ContentHash is the SHA-256 of the normalized full text.
type Document struct {
	DocID        string
	SourceType   string
	SourceID     string
	Title        string
	Category     sql.NullString
	SourceFileID sql.NullInt64
	FullText     string
	ContentHash  string
	UpdatedTime  sql.NullTime
	SyncedAt     time.Time
	Removed      bool
	Meta         string
}

// Chunk is a retrieval-sized slice of a document's text.
// (DocID, ChunkIndex) is unique; the chunk set is regenerated wholesale
// whenever the owning document's content changes.
type Chunk struct {
	ChunkID     string
	DocID       string
	ChunkIndex  int
	Section     sql.NullString
	Content     string
	StartOffset int
	EndOffset   int
	UpdatedTime sql.NullTime
	Meta        string
}

// Checkpoint marks the last successfully processed position for a sync scope.
type Checkpoint struct {
	Key         string
	Cursor      sql.NullString
	WatermarkTs sql.NullTime
	UpdatedAt   time.Time
	Meta        string
}

// Sync run status values.
const (
	RunQueued  = "queued"
	RunRunning = "running"
	RunSuccess = "success"
	RunFailed  = "failed"
)

// SyncRun is one synchronization attempt. Once it reaches a terminal
// status it is never reopened; a retry creates a new run.
type SyncRun struct {
	RunID     string
	Scope     string
	Mode      string
	Reason    string
	Status    string
	StartedAt time.Time
	EndedAt   sql.NullTime
	Stats     string // JSON stats blob
	ErrorText sql.NullString
	CreatedAt time.Time
}

// WhitelistEntry bounds what the remote adapter may pull. Disabling an
// entry filters future syncs; it never deletes already-synced content.
type WhitelistEntry struct {
	ID         int64
	EntryType  string // "space", "folder", "doc" or "drive_file"
	EntryToken string
	Label      sql.NullString
	Enabled    bool
	Meta       string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// WatchlistItem is one symbol tracked by the market and financials scopes.
type WatchlistItem struct {
	ID         int64
	Symbol     string
	AssetClass string // "stock", "crypto", "protocol" or "chain"
	Label      sql.NullString
	Enabled    bool
	Meta       string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// PriceBar is one daily OHLCV row for a symbol.
type PriceBar struct {
	Symbol     string
	AssetClass string
	TradeDate  string // YYYY-MM-DD
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     float64
	MarketCap  sql.NullFloat64
}

// Quote is the latest observed quote for a symbol.
type Quote struct {
	Symbol     string
	AssetClass string
	Price      float64
	ChangePct  float64
	Volume     float64
	MarketCap  sql.NullFloat64
	AsOf       time.Time
}

// MetricRow is one daily metric observation for a protocol or chain.
type MetricRow struct {
	Entity     string
	EntityKind string // "protocol" or "chain"
	MetricDate string // YYYY-MM-DD
	Metric     string
	Value      float64
}

// LiquidityRow is one daily token liquidity observation.
type LiquidityRow struct {
	Symbol    string
	Chain     string
	PoolDate  string // YYYY-MM-DD
	Liquidity float64
	Volume    float64
}

// FinStatement is one financial statement line item.
type FinStatement struct {
	Symbol     string
	Period     string // e.g. "2025-Q2" or "2025-FY"
	Statement  string // "income", "balance" or "cashflow"
	LineItem   string
	Value      float64
	ReportDate string // YYYY-MM-DD
}
