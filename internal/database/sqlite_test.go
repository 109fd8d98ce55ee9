package database_test

import (
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/s1ren-78/beiduoduo/internal/database"
	"github.com/s1ren-78/beiduoduo/internal/mirror"
	"github.com/s1ren-78/beiduoduo/internal/model"
	"github.com/s1ren-78/beiduoduo/internal/testutil"
)

func nullStr(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func insertDocument(t *testing.T, db *database.SQLiteDatabase, docID, sourceID, title, category, text string) {
	t.Helper()

	id, err := db.UpsertDocument(&model.Document{
		DocID:       docID,
		SourceType:  model.SourceLocal,
		SourceID:    sourceID,
		Title:       title,
		Category:    nullStr(category),
		FullText:    text,
		ContentHash: testutil.SHA256Hex(text),
		SyncedAt:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("UpsertDocument() error = %v", err)
	}
	err = db.ReplaceChunks(id, []*model.Chunk{{
		ChunkID:     docID + "-c0",
		DocID:       id,
		ChunkIndex:  0,
		Content:     text,
		StartOffset: 0,
		EndOffset:   len([]rune(text)),
	}})
	if err != nil {
		t.Fatalf("ReplaceChunks() error = %v", err)
	}
}

func TestSQLiteDatabase_SourceFiles(t *testing.T) {
	db := testutil.NewTestDatabase(t)

	sf := &model.SourceFile{
		SourceType:  model.SourceLocal,
		SourceID:    "local:notes.md",
		FilePath:    "/data/notes.md",
		FileName:    "notes.md",
		FileExt:     ".md",
		Category:    nullStr("root"),
		FileSize:    10,
		FileMtime:   sql.NullTime{Time: time.Now().UTC(), Valid: true},
		ContentHash: "abc",
		IsSupported: true,
	}

	id1, err := db.UpsertSourceFile(sf)
	if err != nil {
		t.Fatalf("UpsertSourceFile() error = %v", err)
	}

	sf.FileSize = 20
	id2, err := db.UpsertSourceFile(sf)
	if err != nil {
		t.Fatalf("second UpsertSourceFile() error = %v", err)
	}
	if id1 != id2 {
		t.Errorf("ids = %d, %d, want stable id across upserts", id1, id2)
	}

	files, err := db.ListSourceFiles(model.SourceLocal)
	if err != nil {
		t.Fatalf("ListSourceFiles() error = %v", err)
	}
	if len(files) != 1 || files[0].FileSize != 20 {
		t.Fatalf("files = %+v, want one row with updated size", files)
	}

	// Soft delete hides the row; re-observing it brings it back.
	if err := db.MarkDocumentRemoved(model.SourceLocal, "local:notes.md", time.Now().UTC()); err != nil {
		t.Fatalf("MarkDocumentRemoved() error = %v", err)
	}
	files, _ = db.ListSourceFiles(model.SourceLocal)
	if len(files) != 0 {
		t.Errorf("removed file still listed")
	}

	if _, err := db.UpsertSourceFile(sf); err != nil {
		t.Fatalf("re-observing UpsertSourceFile() error = %v", err)
	}
	files, _ = db.ListSourceFiles(model.SourceLocal)
	if len(files) != 1 {
		t.Errorf("re-observed file not listed")
	}
}

func TestSQLiteDatabase_Documents(t *testing.T) {
	db := testutil.NewTestDatabase(t)

	t.Run("upsert keeps existing doc_id", func(t *testing.T) {
		insertDocument(t, db, "doc-1", "local:a.md", "First", "root", "first body")

		id, err := db.UpsertDocument(&model.Document{
			DocID:       "doc-other",
			SourceType:  model.SourceLocal,
			SourceID:    "local:a.md",
			Title:       "Renamed",
			FullText:    "second body",
			ContentHash: testutil.SHA256Hex("second body"),
			SyncedAt:    time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("UpsertDocument() error = %v", err)
		}
		if id != "doc-1" {
			t.Errorf("doc id = %q, want doc-1 kept", id)
		}
	})

	t.Run("hash gate state", func(t *testing.T) {
		hash, found, err := db.GetDocumentHash(model.SourceLocal, "local:a.md")
		if err != nil {
			t.Fatalf("GetDocumentHash() error = %v", err)
		}
		if !found || hash != testutil.SHA256Hex("second body") {
			t.Errorf("hash = %q found = %v", hash, found)
		}

		_, found, err = db.GetDocumentHash(model.SourceLocal, "local:missing.md")
		if err != nil || found {
			t.Errorf("missing doc: found = %v, err = %v", found, err)
		}
	})

	t.Run("removed document reports no hash", func(t *testing.T) {
		insertDocument(t, db, "doc-gone", "local:gone.md", "Gone", "", "vanishing body")

		if err := db.MarkDocumentRemoved(model.SourceLocal, "local:gone.md", time.Now().UTC()); err != nil {
			t.Fatalf("MarkDocumentRemoved() error = %v", err)
		}

		// A removed row must not satisfy the hash gate, otherwise a
		// restored source would be skipped and stay hidden.
		_, found, err := db.GetDocumentHash(model.SourceLocal, "local:gone.md")
		if err != nil {
			t.Fatalf("GetDocumentHash() error = %v", err)
		}
		if found {
			t.Error("found = true for removed document, want false")
		}

		// Reingesting restores the row.
		insertDocument(t, db, "doc-gone-2", "local:gone.md", "Gone", "", "vanishing body")
		_, found, err = db.GetDocumentHash(model.SourceLocal, "local:gone.md")
		if err != nil || !found {
			t.Errorf("after reingest: found = %v, err = %v, want found", found, err)
		}
	})

	t.Run("replace chunks regenerates the set", func(t *testing.T) {
		chunks := []*model.Chunk{
			{ChunkID: "c-a", DocID: "doc-1", ChunkIndex: 0, Content: "alpha part", EndOffset: 10},
			{ChunkID: "c-b", DocID: "doc-1", ChunkIndex: 1, Content: "beta part", StartOffset: 8, EndOffset: 17},
		}
		if err := db.ReplaceChunks("doc-1", chunks); err != nil {
			t.Fatalf("ReplaceChunks() error = %v", err)
		}

		detail, err := db.GetDocument("doc-1")
		if err != nil {
			t.Fatalf("GetDocument() error = %v", err)
		}
		if len(detail.Chunks) != 2 {
			t.Fatalf("chunks = %d, want 2", len(detail.Chunks))
		}
		if detail.Chunks[0].ChunkID != "c-a" || detail.Chunks[1].ChunkID != "c-b" {
			t.Errorf("chunk order = %s, %s", detail.Chunks[0].ChunkID, detail.Chunks[1].ChunkID)
		}
	})
}

func TestSQLiteDatabase_RunLedger(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	now := time.Now().UTC()

	run := &model.SyncRun{
		RunID: "run-1", Scope: "local", Mode: "full", Reason: "manual",
		Status: model.RunQueued, StartedAt: now, Stats: "{}", CreatedAt: now,
	}
	if err := db.CreateSyncRun(run); err != nil {
		t.Fatalf("CreateSyncRun() error = %v", err)
	}

	t.Run("cannot finish a queued run", func(t *testing.T) {
		err := db.FinishSyncRun("run-1", model.RunSuccess, "{}", "", now)
		if err == nil || !strings.Contains(err.Error(), "not running") {
			t.Errorf("FinishSyncRun() error = %v, want not-running guard", err)
		}
	})

	if err := db.MarkRunRunning("run-1", now); err != nil {
		t.Fatalf("MarkRunRunning() error = %v", err)
	}

	t.Run("cannot start twice", func(t *testing.T) {
		if err := db.MarkRunRunning("run-1", now); err == nil {
			t.Error("second MarkRunRunning() succeeded")
		}
	})

	t.Run("rejects non-terminal status", func(t *testing.T) {
		if err := db.FinishSyncRun("run-1", model.RunRunning, "{}", "", now); err == nil {
			t.Error("FinishSyncRun(running) succeeded")
		}
	})

	if err := db.FinishSyncRun("run-1", model.RunFailed, "{}", "listing failed", now); err != nil {
		t.Fatalf("FinishSyncRun() error = %v", err)
	}

	t.Run("terminal runs never reopen", func(t *testing.T) {
		if err := db.FinishSyncRun("run-1", model.RunSuccess, "{}", "", now); err == nil {
			t.Error("re-finishing a closed run succeeded")
		}
	})

	latest, err := db.LatestRunForScope("local")
	if err != nil {
		t.Fatalf("LatestRunForScope() error = %v", err)
	}
	if latest.Status != model.RunFailed || latest.ErrorText.String != "listing failed" {
		t.Errorf("latest = %+v", latest)
	}
	if !latest.EndedAt.Valid {
		t.Error("ended_at not recorded")
	}

	if r, err := db.LatestRunForScope("remote"); err != nil || r != nil {
		t.Errorf("empty scope: run = %+v, err = %v", r, err)
	}
}

func TestSQLiteDatabase_Checkpoints(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	now := time.Now().UTC()

	cp, err := db.GetCheckpoint("remote:global")
	if err != nil || cp != nil {
		t.Fatalf("missing checkpoint: cp = %+v, err = %v", cp, err)
	}

	if err := db.SetCheckpoint("remote:global", "page-4", now, `{"run_id":"r1"}`); err != nil {
		t.Fatalf("SetCheckpoint() error = %v", err)
	}
	if err := db.SetCheckpoint("remote:global", "", now.Add(time.Minute), `{"run_id":"r2"}`); err != nil {
		t.Fatalf("second SetCheckpoint() error = %v", err)
	}

	cp, err = db.GetCheckpoint("remote:global")
	if err != nil {
		t.Fatalf("GetCheckpoint() error = %v", err)
	}
	if cp.Cursor.Valid {
		t.Errorf("cursor = %q, want cleared", cp.Cursor.String)
	}
	if !strings.Contains(cp.Meta, "r2") {
		t.Errorf("meta = %s, want latest write", cp.Meta)
	}

	if err := db.SetCheckpoint("local:files", "", now, "{}"); err != nil {
		t.Fatal(err)
	}
	cps, err := db.RecentCheckpoints(10)
	if err != nil {
		t.Fatalf("RecentCheckpoints() error = %v", err)
	}
	if len(cps) != 2 {
		t.Errorf("checkpoints = %d, want 2", len(cps))
	}
}

func TestSQLiteDatabase_Search(t *testing.T) {
	db := testutil.NewTestDatabase(t)

	insertDocument(t, db, "doc-r", "local:macro/rates.md", "Rates Outlook", "macro", "the short end stays pinned for quarters")
	insertDocument(t, db, "doc-t", "local:equities/tech.md", "Tech Earnings", "equities", "earnings stay resilient across quarters")

	t.Run("matches and ranks", func(t *testing.T) {
		results, err := db.Search(mirror.SearchQuery{Text: "quarters"})
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if len(results) != 2 {
			t.Fatalf("hits = %d, want 2", len(results))
		}
		if results[0].Quote == "" {
			t.Error("empty snippet")
		}
	})

	t.Run("filters by category and source type", func(t *testing.T) {
		results, err := db.Search(mirror.SearchQuery{Text: "quarters", Category: "macro"})
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if len(results) != 1 || results[0].DocID != "doc-r" {
			t.Errorf("results = %+v, want doc-r only", results)
		}

		results, err = db.Search(mirror.SearchQuery{Text: "quarters", SourceType: model.SourceRemote})
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if len(results) != 0 {
			t.Errorf("remote filter hits = %d, want 0", len(results))
		}
	})

	t.Run("respects topK", func(t *testing.T) {
		results, err := db.Search(mirror.SearchQuery{Text: "quarters", TopK: 1})
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if len(results) != 1 {
			t.Errorf("hits = %d, want 1", len(results))
		}
	})

	t.Run("rejects empty query", func(t *testing.T) {
		if _, err := db.Search(mirror.SearchQuery{Text: "  "}); err == nil {
			t.Error("Search(blank) succeeded")
		}
	})

	t.Run("quotes hostile input", func(t *testing.T) {
		if _, err := db.Search(mirror.SearchQuery{Text: `quarters" OR x`}); err != nil {
			t.Errorf("Search() error = %v, want quoted terms to parse", err)
		}
	})

	t.Run("removed documents drop out of search but not fetch", func(t *testing.T) {
		if err := db.MarkDocumentRemoved(model.SourceLocal, "local:macro/rates.md", time.Now().UTC()); err != nil {
			t.Fatalf("MarkDocumentRemoved() error = %v", err)
		}

		results, err := db.Search(mirror.SearchQuery{Text: "pinned"})
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if len(results) != 0 {
			t.Errorf("removed doc still searchable: %d hits", len(results))
		}

		detail, err := db.GetDocument("doc-r")
		if err != nil {
			t.Fatalf("GetDocument() error = %v", err)
		}
		if !detail.Document.Removed {
			t.Error("removed flag not set on fetched document")
		}
	})
}

func TestSQLiteDatabase_Whitelist(t *testing.T) {
	db := testutil.NewTestDatabase(t)

	entry := &model.WhitelistEntry{EntryType: "space", EntryToken: "sp-1", Label: nullStr("research"), Enabled: true}
	if err := db.UpsertWhitelistEntry(entry); err != nil {
		t.Fatalf("UpsertWhitelistEntry() error = %v", err)
	}
	if err := db.UpsertWhitelistEntry(&model.WhitelistEntry{EntryType: "doc", EntryToken: "d-1", Enabled: false}); err != nil {
		t.Fatal(err)
	}

	enabled, err := db.WhitelistEntries(true)
	if err != nil {
		t.Fatalf("WhitelistEntries() error = %v", err)
	}
	if len(enabled) != 1 || enabled[0].EntryToken != "sp-1" {
		t.Fatalf("enabled = %+v, want sp-1 only", enabled)
	}

	if err := db.SetWhitelistEnabled("space", "sp-1", false); err != nil {
		t.Fatalf("SetWhitelistEnabled() error = %v", err)
	}
	enabled, _ = db.WhitelistEntries(true)
	if len(enabled) != 0 {
		t.Error("disabled entry still enabled")
	}

	all, _ := db.WhitelistEntries(false)
	if len(all) != 2 {
		t.Errorf("all entries = %d, want 2", len(all))
	}

	if err := db.SetWhitelistEnabled("space", "nope", true); err == nil {
		t.Error("SetWhitelistEnabled() on unknown entry succeeded")
	}
}

func TestSQLiteDatabase_Watchlist(t *testing.T) {
	db := testutil.NewTestDatabase(t)

	if err := db.UpsertWatchlistItem(&model.WatchlistItem{Symbol: "AAPL", AssetClass: "stock", Enabled: true}); err != nil {
		t.Fatalf("UpsertWatchlistItem() error = %v", err)
	}
	// Same symbol in a different asset class is a distinct item.
	if err := db.UpsertWatchlistItem(&model.WatchlistItem{Symbol: "AAPL", AssetClass: "crypto", Enabled: false}); err != nil {
		t.Fatal(err)
	}

	items, err := db.Watchlist(false)
	if err != nil {
		t.Fatalf("Watchlist() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}

	enabled, _ := db.Watchlist(true)
	if len(enabled) != 1 || enabled[0].AssetClass != "stock" {
		t.Errorf("enabled = %+v, want the stock item", enabled)
	}
}
