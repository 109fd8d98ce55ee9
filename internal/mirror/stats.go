package mirror

// Stats aggregates the outcome counts of one sync run. Document scopes
// fill the first block; market and financials scopes fill the second.
type Stats struct {
	Scanned       int `json:"scanned"`
	Created       int `json:"created"`
	Updated       int `json:"updated"`
	Skipped       int `json:"skipped"`
	Deleted       int `json:"deleted"`
	Unsupported   int `json:"unsupported"`
	Failures      int `json:"failures"`
	ChunksWritten int `json:"chunks_written"`

	SymbolsSynced int      `json:"symbols_synced,omitempty"`
	RowsWritten   int      `json:"rows_written,omitempty"`
	FailedItems   []string `json:"failed_items,omitempty"`
}

// Add accumulates other into s. Used by the "all" scope to combine the
// local and remote passes of one run.
func (s *Stats) Add(other *Stats) {
	s.Scanned += other.Scanned
	s.Created += other.Created
	s.Updated += other.Updated
	s.Skipped += other.Skipped
	s.Deleted += other.Deleted
	s.Unsupported += other.Unsupported
	s.Failures += other.Failures
	s.ChunksWritten += other.ChunksWritten
	s.SymbolsSynced += other.SymbolsSynced
	s.RowsWritten += other.RowsWritten
	s.FailedItems = append(s.FailedItems, other.FailedItems...)
}
