package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	"github.com/s1ren-78/beiduoduo/internal/archive"
	"github.com/s1ren-78/beiduoduo/internal/config"
	"github.com/s1ren-78/beiduoduo/internal/database"
	"github.com/s1ren-78/beiduoduo/internal/encryption"
	"github.com/s1ren-78/beiduoduo/internal/market"
	"github.com/s1ren-78/beiduoduo/internal/mirror"
	"github.com/s1ren-78/beiduoduo/internal/model"
	"github.com/s1ren-78/beiduoduo/internal/source"
	"github.com/s1ren-78/beiduoduo/internal/watcher"
)

// Options carries the injectable backends the config file cannot
// describe: the remote platform client and the market data providers.
// Any of them may be nil, which leaves the matching scope unconfigured.
type Options struct {
	RemoteClient source.RemoteClient
	Quotes       market.QuoteProvider
	Metrics      market.MetricsProvider
	Financials   market.FinancialsProvider
}

// App is the application layer between the CLI and the sync service.
// It constructs all dependencies from config and manages their
// lifecycle on Close.
type App struct {
	cfg       *config.Config
	db        *database.SQLiteDatabase
	archive   mirror.Archive
	encryptor mirror.Encryptor
	service   *mirror.Service
	logger    mirror.Logger
	logCloser io.Closer
}

// New creates a fully wired App from the given config. operation
// identifies the CLI command being run (e.g. "Sync", "Search").
// The caller must call Close when done.
func New(cfg *config.Config, operation string, opts Options) (*App, error) {
	db, err := database.NewDatabaseFromConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}

	if err := db.MigrateUp(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	// Payloads are only encrypted once the key pair exists; before
	// `keys init` the archive stores plaintext.
	archiveEnc := enc
	if ae, ok := enc.(*encryption.AgeEncryptor); ok && !ae.IsConfigured() {
		archiveEnc = nil
	}
	arch, err := archive.NewArchiveFromConfig(cfg.Archive, archiveEnc)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating archive: %w", err)
	}

	opID := time.Now().UTC().Format("20060102T150405Z")
	slogger, logCloser, err := newLogger(cfg.LogDir, opID)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger.With("operation", operation)}

	var local, remote mirror.Adapter
	if cfg.Local.Root != "" {
		local = source.NewLocalAdapter(cfg.Local.Root, db, cfg.Local.Ignore, logger)
	}
	if opts.RemoteClient != nil {
		remote = source.NewRemoteAdapter(opts.RemoteClient, db, arch, mirror.RealClock{}, logger,
			cfg.Remote.PageSize, cfg.Remote.RetryMax, time.Duration(cfg.Remote.RetryBackoffMs)*time.Millisecond)
	}

	runners := make(map[string]mirror.ScopeRunner)
	if opts.Quotes != nil || opts.Metrics != nil {
		runners[mirror.ScopeMarket] = market.NewSyncer(db, opts.Quotes, opts.Metrics,
			mirror.RealClock{}, logger, cfg.Market.HistoryDays)
	}
	if opts.Financials != nil {
		runners[mirror.ScopeFinancials] = market.NewFinSyncer(db, opts.Financials, logger)
	}

	svc := mirror.NewService(db, local, remote, runners, logger, mirror.RealClock{}, mirror.UUIDGenerator{})

	return &App{
		cfg:       cfg,
		db:        db,
		archive:   arch,
		encryptor: enc,
		service:   svc,
		logger:    logger,
		logCloser: logCloser,
	}, nil
}

// Sync runs one synchronization for the given scope and mode.
func (a *App) Sync(ctx context.Context, scope, mode, reason string) (*mirror.RunOutcome, error) {
	return a.service.RunSync(ctx, scope, mode, reason)
}

// Status returns the run ledger and checkpoint summary.
func (a *App) Status() (*mirror.StatusSummary, error) {
	return a.db.SyncStatus()
}

// RecentRuns returns the most recent sync runs across all scopes.
func (a *App) RecentRuns(limit int) ([]*model.SyncRun, error) {
	return a.db.RecentSyncRuns(limit)
}

// Search runs a ranked full-text query over synced chunks.
func (a *App) Search(q mirror.SearchQuery) ([]*mirror.SearchResult, error) {
	return a.db.Search(q)
}

// GetDocument returns a document with its chunks and source attributes.
func (a *App) GetDocument(docID string) (*mirror.DocumentDetail, error) {
	return a.db.GetDocument(docID)
}

// Whitelist returns the remote pull whitelist.
func (a *App) Whitelist(enabledOnly bool) ([]*model.WhitelistEntry, error) {
	return a.db.WhitelistEntries(enabledOnly)
}

// AddWhitelistEntry registers a remote container or document for syncing.
func (a *App) AddWhitelistEntry(entryType, entryToken, label string) error {
	switch entryType {
	case "space", "folder", "doc", "drive_file":
	default:
		return fmt.Errorf("unknown entry type: %s", entryType)
	}
	return a.db.UpsertWhitelistEntry(&model.WhitelistEntry{
		EntryType:  entryType,
		EntryToken: entryToken,
		Label:      nullString(label),
		Enabled:    true,
	})
}

// SetWhitelistEnabled toggles an existing whitelist entry.
func (a *App) SetWhitelistEnabled(entryType, entryToken string, enabled bool) error {
	return a.db.SetWhitelistEnabled(entryType, entryToken, enabled)
}

// Watchlist returns the market watchlist.
func (a *App) Watchlist(enabledOnly bool) ([]*model.WatchlistItem, error) {
	return a.db.Watchlist(enabledOnly)
}

// AddWatchlistItem registers a symbol for the market and financials scopes.
func (a *App) AddWatchlistItem(symbol, assetClass, label string) error {
	switch assetClass {
	case "stock", "crypto", "protocol", "chain":
	default:
		return fmt.Errorf("unknown asset class: %s", assetClass)
	}
	return a.db.UpsertWatchlistItem(&model.WatchlistItem{
		Symbol:     symbol,
		AssetClass: assetClass,
		Label:      nullString(label),
		Enabled:    true,
	})
}

// Watch blocks watching the local root, triggering an incremental local
// sync after each settled burst of changes.
func (a *App) Watch(ctx context.Context) error {
	if a.cfg.Local.Root == "" {
		return fmt.Errorf("no local root configured")
	}

	w := watcher.New(a.cfg.Local.Root, source.NewIgnoreMatcher(a.cfg.Local.Ignore), a.logger,
		time.Duration(a.cfg.Watch.DebounceMs)*time.Millisecond,
		func(ctx context.Context) {
			if _, err := a.service.RunSync(ctx, mirror.ScopeLocal, mirror.ModeIncremental, mirror.ReasonScheduled); err != nil {
				a.logger.Error("watch-triggered sync failed", "error", err)
			}
		})
	return w.Start(ctx)
}

// SetupKeys generates the archive encryption key pair.
func (a *App) SetupKeys(passphrase string) error {
	if a.encryptor == nil {
		return fmt.Errorf("encryption is disabled")
	}
	return a.encryptor.Setup(passphrase)
}

// ValidateArchive verifies the archive backend is reachable.
func (a *App) ValidateArchive() error {
	if a.archive == nil {
		return nil
	}
	return a.archive.ValidateSetup()
}

// Close releases all resources.
func (a *App) Close() error {
	var firstErr error
	if err := a.db.Close(); err != nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}
	if a.logCloser != nil {
		a.logCloser.Close()
	}
	return firstErr
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
