package mirror_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/s1ren-78/beiduoduo/internal/database"
	"github.com/s1ren-78/beiduoduo/internal/mirror"
	"github.com/s1ren-78/beiduoduo/internal/model"
	"github.com/s1ren-78/beiduoduo/internal/source"
	"github.com/s1ren-78/beiduoduo/internal/testutil"
)

func newLocalService(t *testing.T, root string) (*mirror.Service, *testutil.StubClock, *database.SQLiteDatabase) {
	t.Helper()
	db := testutil.NewTestDatabase(t)
	clock := testutil.FixedClock()
	local := source.NewLocalAdapter(root, db, nil, mirror.NewNopLogger())
	svc := mirror.NewService(db, local, nil, nil, mirror.NewNopLogger(), clock, testutil.NewStubIDGenerator())
	return svc, clock, db
}

func TestService_RunSync_Local(t *testing.T) {
	t.Run("full sync ingests supported files", func(t *testing.T) {
		root := t.TempDir()
		testutil.WriteTree(t, root, map[string]string{
			"macro/rates.md":   "# Rates Outlook\n\nShort end stays pinned.\n",
			"equities/tech.txt": "earnings season notes\n",
		})

		svc, _, db := newLocalService(t, root)

		outcome, err := svc.RunSync(context.Background(), mirror.ScopeLocal, mirror.ModeFull, mirror.ReasonManual)
		if err != nil {
			t.Fatalf("RunSync() error = %v", err)
		}
		if outcome.Status != model.RunSuccess {
			t.Fatalf("status = %s, want success", outcome.Status)
		}
		if outcome.Stats.Created != 2 {
			t.Errorf("created = %d, want 2", outcome.Stats.Created)
		}
		if outcome.Stats.ChunksWritten == 0 {
			t.Error("no chunks written")
		}

		results, err := db.Search(mirror.SearchQuery{Text: "earnings"})
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if len(results) != 1 {
			t.Fatalf("search hits = %d, want 1", len(results))
		}
		if results[0].Category != "equities" {
			t.Errorf("category = %q, want equities", results[0].Category)
		}
	})

	t.Run("unchanged content is skipped on full re-sync", func(t *testing.T) {
		root := t.TempDir()
		testutil.WriteTree(t, root, map[string]string{
			"notes.md": "# Notes\n\nbody\n",
		})

		svc, _, _ := newLocalService(t, root)

		if _, err := svc.RunSync(context.Background(), mirror.ScopeLocal, mirror.ModeFull, mirror.ReasonManual); err != nil {
			t.Fatalf("first RunSync() error = %v", err)
		}

		// Touch the mtime without changing content; a full sync
		// re-yields the file but the hash gate must skip it.
		path := filepath.Join(root, "notes.md")
		future := time.Now().Add(time.Hour)
		if err := os.Chtimes(path, future, future); err != nil {
			t.Fatalf("touching file: %v", err)
		}

		outcome, err := svc.RunSync(context.Background(), mirror.ScopeLocal, mirror.ModeFull, mirror.ReasonManual)
		if err != nil {
			t.Fatalf("second RunSync() error = %v", err)
		}
		if outcome.Stats.Skipped != 1 {
			t.Errorf("skipped = %d, want 1", outcome.Stats.Skipped)
		}
		if outcome.Stats.Created != 0 || outcome.Stats.Updated != 0 {
			t.Errorf("created/updated = %d/%d, want 0/0", outcome.Stats.Created, outcome.Stats.Updated)
		}
	})

	t.Run("incremental sync does not rescan unchanged files", func(t *testing.T) {
		root := t.TempDir()
		testutil.WriteTree(t, root, map[string]string{
			"a.md": "# A\n\nalpha\n",
			"b.md": "# B\n\nbeta\n",
		})

		svc, _, _ := newLocalService(t, root)

		if _, err := svc.RunSync(context.Background(), mirror.ScopeLocal, mirror.ModeFull, mirror.ReasonManual); err != nil {
			t.Fatalf("full RunSync() error = %v", err)
		}

		outcome, err := svc.RunSync(context.Background(), mirror.ScopeLocal, mirror.ModeIncremental, mirror.ReasonScheduled)
		if err != nil {
			t.Fatalf("incremental RunSync() error = %v", err)
		}
		if outcome.Stats.Scanned != 0 {
			t.Errorf("scanned = %d, want 0 (size and mtime unchanged)", outcome.Stats.Scanned)
		}
	})

	t.Run("mixed changes produce exact stats", func(t *testing.T) {
		root := t.TempDir()
		testutil.WriteTree(t, root, map[string]string{
			"created.md":   "placeholder", // replaced below
			"updated.md":   "# Updated\n\noriginal body\n",
			"unchanged.md": "# Unchanged\n\nstable body\n",
			"deleted.md":   "# Deleted\n\ngoing away\n",
		})
		// First run establishes state for updated/unchanged/deleted.
		if err := os.Remove(filepath.Join(root, "created.md")); err != nil {
			t.Fatal(err)
		}

		svc, _, db := newLocalService(t, root)
		if _, err := svc.RunSync(context.Background(), mirror.ScopeLocal, mirror.ModeFull, mirror.ReasonManual); err != nil {
			t.Fatalf("seed RunSync() error = %v", err)
		}

		// One new, one modified, one untouched, one removed.
		testutil.WriteTree(t, root, map[string]string{
			"created.md": "# Created\n\nbrand new\n",
			"updated.md": "# Updated\n\nrevised body\n",
		})
		if err := os.Remove(filepath.Join(root, "deleted.md")); err != nil {
			t.Fatal(err)
		}

		outcome, err := svc.RunSync(context.Background(), mirror.ScopeLocal, mirror.ModeFull, mirror.ReasonManual)
		if err != nil {
			t.Fatalf("RunSync() error = %v", err)
		}

		s := outcome.Stats
		if s.Created != 1 || s.Updated != 1 || s.Skipped != 1 || s.Deleted != 1 {
			t.Errorf("stats = created:%d updated:%d skipped:%d deleted:%d, want 1 each",
				s.Created, s.Updated, s.Skipped, s.Deleted)
		}

		// The removed document must drop out of search but keep its row.
		results, err := db.Search(mirror.SearchQuery{Text: "going"})
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if len(results) != 0 {
			t.Errorf("removed document still searchable: %d hits", len(results))
		}
	})

	t.Run("deleted then restored file is reingested", func(t *testing.T) {
		root := t.TempDir()
		const body = "# Memo\n\nan unmistakable phrase\n"
		testutil.WriteTree(t, root, map[string]string{"memo.md": body})

		svc, _, db := newLocalService(t, root)

		if _, err := svc.RunSync(context.Background(), mirror.ScopeLocal, mirror.ModeFull, mirror.ReasonManual); err != nil {
			t.Fatalf("first RunSync() error = %v", err)
		}

		if err := os.Remove(filepath.Join(root, "memo.md")); err != nil {
			t.Fatalf("removing file: %v", err)
		}
		outcome, err := svc.RunSync(context.Background(), mirror.ScopeLocal, mirror.ModeFull, mirror.ReasonManual)
		if err != nil {
			t.Fatalf("delete RunSync() error = %v", err)
		}
		if outcome.Stats.Deleted != 1 {
			t.Fatalf("deleted = %d, want 1", outcome.Stats.Deleted)
		}

		// Restoring the identical content must reingest the document:
		// the hash gate ignores removed rows, so the match against the
		// old hash cannot leave it hidden from search.
		testutil.WriteTree(t, root, map[string]string{"memo.md": body})
		outcome, err = svc.RunSync(context.Background(), mirror.ScopeLocal, mirror.ModeFull, mirror.ReasonManual)
		if err != nil {
			t.Fatalf("restore RunSync() error = %v", err)
		}
		if outcome.Stats.Created != 1 || outcome.Stats.Skipped != 0 {
			t.Errorf("created/skipped = %d/%d, want 1/0", outcome.Stats.Created, outcome.Stats.Skipped)
		}

		results, err := db.Search(mirror.SearchQuery{Text: "unmistakable"})
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if len(results) != 1 {
			t.Errorf("search hits = %d, want restored document searchable", len(results))
		}
	})

	t.Run("unsupported extension is recorded, not fatal", func(t *testing.T) {
		root := t.TempDir()
		testutil.WriteTree(t, root, map[string]string{
			"report.docx": "binary-ish",
			"notes.md":    "# Notes\n\nfine\n",
		})

		svc, _, db := newLocalService(t, root)

		outcome, err := svc.RunSync(context.Background(), mirror.ScopeLocal, mirror.ModeFull, mirror.ReasonManual)
		if err != nil {
			t.Fatalf("RunSync() error = %v", err)
		}
		if outcome.Status != model.RunSuccess {
			t.Fatalf("status = %s, want success", outcome.Status)
		}
		if outcome.Stats.Unsupported != 1 {
			t.Errorf("unsupported = %d, want 1", outcome.Stats.Unsupported)
		}

		files, err := db.ListSourceFiles(model.SourceUnsupported)
		if err != nil {
			t.Fatalf("ListSourceFiles() error = %v", err)
		}
		if len(files) != 1 {
			t.Fatalf("unsupported rows = %d, want 1", len(files))
		}
		if files[0].UnsupportedReason.String != "extension_not_supported" {
			t.Errorf("reason = %q", files[0].UnsupportedReason.String)
		}
		if files[0].ContentHash == "" {
			t.Error("unsupported row missing raw content hash")
		}
	})

	t.Run("checkpoint advances only on success", func(t *testing.T) {
		root := t.TempDir()
		testutil.WriteTree(t, root, map[string]string{
			"notes.md": "# Notes\n\nbody\n",
		})

		svc, clock, db := newLocalService(t, root)

		if _, err := svc.RunSync(context.Background(), mirror.ScopeLocal, mirror.ModeFull, mirror.ReasonManual); err != nil {
			t.Fatalf("RunSync() error = %v", err)
		}

		cp, err := db.GetCheckpoint("local:files")
		if err != nil {
			t.Fatalf("GetCheckpoint() error = %v", err)
		}
		if cp == nil {
			t.Fatal("checkpoint not written after successful run")
		}
		if !cp.WatermarkTs.Valid || !cp.WatermarkTs.Time.Equal(clock.Now()) {
			t.Errorf("watermark = %v, want %v", cp.WatermarkTs, clock.Now())
		}
		if !strings.Contains(cp.Meta, "run_id") {
			t.Errorf("checkpoint meta missing run_id: %s", cp.Meta)
		}
	})
}

func TestService_RunSync_FailureLeavesCheckpointUntouched(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	clock := testutil.FixedClock()

	// A client that always throttles with zero retries makes every
	// listing fail immediately.
	client := testutil.NewScriptedRemoteClient()
	client.AddDoc("space", "sp-1", "doc-1", &testutil.ScriptedDoc{Title: "One", Content: "alpha"})
	client.ThrottleListCalls[1] = true
	client.ThrottleListCalls[2] = true

	if err := db.UpsertWhitelistEntry(&model.WhitelistEntry{EntryType: "space", EntryToken: "sp-1", Enabled: true}); err != nil {
		t.Fatal(err)
	}

	remote := source.NewRemoteAdapter(client, db, nil, clock, mirror.NewNopLogger(), 0, 0, time.Millisecond)
	svc := mirror.NewService(db, nil, remote, nil, mirror.NewNopLogger(), clock, testutil.NewStubIDGenerator())

	_, err := svc.RunSync(context.Background(), mirror.ScopeRemote, mirror.ModeIncremental, mirror.ReasonManual)
	if err == nil {
		t.Fatal("RunSync() succeeded, want failure")
	}

	cp, cerr := db.GetCheckpoint("remote:global")
	if cerr != nil {
		t.Fatalf("GetCheckpoint() error = %v", cerr)
	}
	if cp != nil {
		t.Errorf("scope checkpoint written by failed run: %+v", cp)
	}

	run, rerr := db.LatestRunForScope(mirror.ScopeRemote)
	if rerr != nil {
		t.Fatalf("LatestRunForScope() error = %v", rerr)
	}
	if run == nil || run.Status != model.RunFailed {
		t.Fatalf("run status = %v, want failed", run)
	}
	if !run.ErrorText.Valid || run.ErrorText.String == "" {
		t.Error("failed run missing error text")
	}
}

func TestService_RunSync_FetchErrorIsPerItem(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	clock := testutil.FixedClock()

	client := testutil.NewScriptedRemoteClient()
	client.AddDoc("folder", "fd-1", "doc-ok", &testutil.ScriptedDoc{Title: "Good", Content: "good content"})
	client.AddDoc("folder", "fd-1", "doc-bad", &testutil.ScriptedDoc{Title: "Bad", Content: "bad content"})
	client.FetchErrors["doc-bad"] = errors.New("corrupt payload")

	if err := db.UpsertWhitelistEntry(&model.WhitelistEntry{EntryType: "folder", EntryToken: "fd-1", Enabled: true}); err != nil {
		t.Fatal(err)
	}

	remote := source.NewRemoteAdapter(client, db, nil, clock, mirror.NewNopLogger(), 0, 0, time.Millisecond)
	svc := mirror.NewService(db, nil, remote, nil, mirror.NewNopLogger(), clock, testutil.NewStubIDGenerator())

	outcome, err := svc.RunSync(context.Background(), mirror.ScopeRemote, mirror.ModeFull, mirror.ReasonManual)
	if err != nil {
		t.Fatalf("RunSync() error = %v", err)
	}
	if outcome.Status != model.RunSuccess {
		t.Fatalf("status = %s, want success despite per-item failure", outcome.Status)
	}
	if outcome.Stats.Created != 1 {
		t.Errorf("created = %d, want 1", outcome.Stats.Created)
	}
	if outcome.Stats.Failures != 1 {
		t.Errorf("failures = %d, want 1", outcome.Stats.Failures)
	}

	files, err := db.ListSourceFiles(model.SourceUnsupported)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || !strings.HasPrefix(files[0].UnsupportedReason.String, "fetch_error:") {
		t.Errorf("fetch failure not recorded: %+v", files)
	}
}

func TestService_RunSync_AllScopeCombinesStats(t *testing.T) {
	root := t.TempDir()
	testutil.WriteTree(t, root, map[string]string{
		"local.md": "# Local\n\nlocal body\n",
	})

	db := testutil.NewTestDatabase(t)
	clock := testutil.FixedClock()

	client := testutil.NewScriptedRemoteClient()
	client.AddDoc("space", "sp-1", "doc-1", &testutil.ScriptedDoc{Title: "Remote", Content: "remote body"})
	if err := db.UpsertWhitelistEntry(&model.WhitelistEntry{EntryType: "space", EntryToken: "sp-1", Enabled: true}); err != nil {
		t.Fatal(err)
	}

	local := source.NewLocalAdapter(root, db, nil, mirror.NewNopLogger())
	remote := source.NewRemoteAdapter(client, db, nil, clock, mirror.NewNopLogger(), 0, 0, time.Millisecond)
	svc := mirror.NewService(db, local, remote, nil, mirror.NewNopLogger(), clock, testutil.NewStubIDGenerator())

	outcome, err := svc.RunSync(context.Background(), mirror.ScopeAll, mirror.ModeFull, mirror.ReasonManual)
	if err != nil {
		t.Fatalf("RunSync() error = %v", err)
	}
	if outcome.Stats.Created != 2 {
		t.Errorf("created = %d, want 2 (one per side)", outcome.Stats.Created)
	}
}

func TestService_RunSync_AllScopeSkipsUnconfigured(t *testing.T) {
	root := t.TempDir()
	testutil.WriteTree(t, root, map[string]string{
		"only.md": "# Only\n\nlocal body\n",
	})

	// Local-only setup: "all" runs the configured side and skips the
	// rest instead of failing.
	svc, _, _ := newLocalService(t, root)

	outcome, err := svc.RunSync(context.Background(), mirror.ScopeAll, mirror.ModeFull, mirror.ReasonManual)
	if err != nil {
		t.Fatalf("RunSync() error = %v", err)
	}
	if outcome.Status != model.RunSuccess {
		t.Fatalf("status = %s, want success", outcome.Status)
	}
	if outcome.Stats.Created != 1 {
		t.Errorf("created = %d, want 1", outcome.Stats.Created)
	}

	// With nothing configured the run still fails.
	db := testutil.NewTestDatabase(t)
	bare := mirror.NewService(db, nil, nil, nil, mirror.NewNopLogger(), testutil.FixedClock(), testutil.NewStubIDGenerator())
	outcome, err = bare.RunSync(context.Background(), mirror.ScopeAll, mirror.ModeFull, mirror.ReasonManual)
	if err == nil {
		t.Fatal("RunSync() succeeded with no adapters configured")
	}
	if outcome.Status != model.RunFailed {
		t.Errorf("status = %s, want failed", outcome.Status)
	}
}

func TestService_RunSync_FailureRecordsPartialStats(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	clock := testutil.FixedClock()

	// First page succeeds, second listing throttles with zero retries,
	// so the run fails after two documents were already ingested.
	client := testutil.NewScriptedRemoteClient()
	for _, tok := range []string{"d1", "d2", "d3"} {
		client.AddDoc("space", "sp-1", tok, &testutil.ScriptedDoc{Title: tok, Content: "body " + tok})
	}
	client.ThrottleListCalls[2] = true

	if err := db.UpsertWhitelistEntry(&model.WhitelistEntry{EntryType: "space", EntryToken: "sp-1", Enabled: true}); err != nil {
		t.Fatal(err)
	}

	remote := source.NewRemoteAdapter(client, db, nil, clock, mirror.NewNopLogger(), 0, 0, time.Millisecond)
	svc := mirror.NewService(db, nil, remote, nil, mirror.NewNopLogger(), clock, testutil.NewStubIDGenerator())

	_, err := svc.RunSync(context.Background(), mirror.ScopeRemote, mirror.ModeFull, mirror.ReasonManual)
	if err == nil {
		t.Fatal("RunSync() succeeded, want failure")
	}

	run, rerr := db.LatestRunForScope(mirror.ScopeRemote)
	if rerr != nil {
		t.Fatalf("LatestRunForScope() error = %v", rerr)
	}
	if run == nil || run.Status != model.RunFailed {
		t.Fatalf("run status = %v, want failed", run)
	}
	if !strings.Contains(run.Stats, `"created":2`) {
		t.Errorf("stats = %s, want partial counters from before the failure", run.Stats)
	}
	if !run.ErrorText.Valid || run.ErrorText.String == "" {
		t.Error("failed run missing error text")
	}
}

func TestService_RunSync_Validation(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	svc := mirror.NewService(db, nil, nil, nil, mirror.NewNopLogger(), testutil.FixedClock(), testutil.NewStubIDGenerator())

	cases := []struct {
		name   string
		scope  string
		mode   string
		reason string
	}{
		{"unknown scope", "backup", mirror.ModeFull, mirror.ReasonManual},
		{"unknown mode", mirror.ScopeLocal, "resync", mirror.ReasonManual},
		{"unknown reason", mirror.ScopeLocal, mirror.ModeFull, "cron"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.RunSync(context.Background(), tc.scope, tc.mode, tc.reason); err == nil {
				t.Error("RunSync() succeeded, want validation error")
			}
		})
	}

	t.Run("unconfigured scope fails the run", func(t *testing.T) {
		outcome, err := svc.RunSync(context.Background(), mirror.ScopeLocal, mirror.ModeFull, mirror.ReasonManual)
		if err == nil {
			t.Fatal("RunSync() succeeded with nil adapter")
		}
		if outcome == nil || outcome.Status != model.RunFailed {
			t.Errorf("outcome = %+v, want failed run recorded", outcome)
		}
	})
}

func TestService_GetSyncStatus(t *testing.T) {
	root := t.TempDir()
	testutil.WriteTree(t, root, map[string]string{"a.md": "# A\n\nbody\n"})

	svc, _, _ := newLocalService(t, root)

	if _, err := svc.RunSync(context.Background(), mirror.ScopeLocal, mirror.ModeFull, mirror.ReasonManual); err != nil {
		t.Fatalf("RunSync() error = %v", err)
	}

	latest, history, err := svc.GetSyncStatus(mirror.ScopeLocal, 10)
	if err != nil {
		t.Fatalf("GetSyncStatus() error = %v", err)
	}
	if latest == nil || latest.Status != model.RunSuccess {
		t.Fatalf("latest = %+v, want successful run", latest)
	}
	if !strings.Contains(latest.Stats, "\"created\":1") {
		t.Errorf("stats JSON = %s, want created:1", latest.Stats)
	}
	if len(history) != 1 {
		t.Errorf("history length = %d, want 1", len(history))
	}
}
