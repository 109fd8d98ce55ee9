package market

import (
	"context"
	"fmt"
	"time"

	"github.com/s1ren-78/beiduoduo/internal/mirror"
	"github.com/s1ren-78/beiduoduo/internal/model"
)

// incrementalDays is the lookback window for incremental runs. Two days
// covers late-settling daily bars across timezones.
const incrementalDays = 2

// Syncer pulls market data for every enabled watchlist item. It
// implements mirror.ScopeRunner for the market scope. A failing symbol
// is recorded and skipped; only store errors abort the run.
type Syncer struct {
	store       Store
	quotes      QuoteProvider
	metrics     MetricsProvider
	clock       mirror.Clock
	logger      mirror.Logger
	historyDays int
}

// NewSyncer creates a market syncer. metrics may be nil when no
// protocol or chain symbols are watched.
func NewSyncer(store Store, quotes QuoteProvider, metrics MetricsProvider, clock mirror.Clock, logger mirror.Logger, historyDays int) *Syncer {
	if logger == nil {
		logger = mirror.NewNopLogger()
	}
	if historyDays <= 0 {
		historyDays = 365
	}
	return &Syncer{
		store:       store,
		quotes:      quotes,
		metrics:     metrics,
		clock:       clock,
		logger:      logger,
		historyDays: historyDays,
	}
}

var _ mirror.ScopeRunner = (*Syncer)(nil)

func (s *Syncer) Run(ctx context.Context, mode, runID string) (*mirror.Stats, error) {
	items, err := s.store.Watchlist(true)
	if err != nil {
		return nil, fmt.Errorf("loading watchlist: %w", err)
	}

	from, to := s.window(mode)
	stats := &mirror.Stats{}

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		rows, err := s.syncItem(ctx, item, from, to)
		if err != nil {
			s.logger.Warn("market sync failed for symbol", "symbol", item.Symbol, "asset_class", item.AssetClass, "error", err)
			stats.Failures++
			stats.FailedItems = append(stats.FailedItems, item.Symbol)
			continue
		}
		stats.SymbolsSynced++
		stats.RowsWritten += rows
	}
	return stats, nil
}

func (s *Syncer) window(mode string) (time.Time, time.Time) {
	to := s.clock.Now()
	days := incrementalDays
	if mode == mirror.ModeFull {
		days = s.historyDays
	}
	return to.AddDate(0, 0, -days), to
}

func (s *Syncer) syncItem(ctx context.Context, item *model.WatchlistItem, from, to time.Time) (int, error) {
	switch item.AssetClass {
	case "stock", "crypto":
		return s.syncQuoted(ctx, item, from, to)
	case "protocol", "chain":
		return s.syncMetrics(ctx, item, from, to)
	default:
		return 0, fmt.Errorf("unknown asset class: %s", item.AssetClass)
	}
}

func (s *Syncer) syncQuoted(ctx context.Context, item *model.WatchlistItem, from, to time.Time) (int, error) {
	if s.quotes == nil {
		return 0, fmt.Errorf("no quote provider configured")
	}

	bars, err := s.quotes.DailyBars(ctx, item.Symbol, item.AssetClass, from, to)
	if err != nil {
		return 0, fmt.Errorf("fetching bars: %w", err)
	}
	if err := s.store.UpsertPriceBars(bars); err != nil {
		return 0, err
	}
	rows := len(bars)

	quote, err := s.quotes.LatestQuote(ctx, item.Symbol, item.AssetClass)
	if err != nil {
		return rows, fmt.Errorf("fetching quote: %w", err)
	}
	if quote != nil {
		if err := s.store.UpsertQuote(quote); err != nil {
			return rows, err
		}
		rows++
	}

	// Token liquidity rides along for crypto symbols when a metrics
	// provider is available.
	if item.AssetClass == "crypto" && s.metrics != nil {
		liq, err := s.metrics.TokenLiquidity(ctx, item.Symbol, from, to)
		if err != nil {
			return rows, fmt.Errorf("fetching liquidity: %w", err)
		}
		if err := s.store.UpsertLiquidityRows(liq); err != nil {
			return rows, err
		}
		rows += len(liq)
	}
	return rows, nil
}

func (s *Syncer) syncMetrics(ctx context.Context, item *model.WatchlistItem, from, to time.Time) (int, error) {
	if s.metrics == nil {
		return 0, fmt.Errorf("no metrics provider configured")
	}

	rows, err := s.metrics.DailyMetrics(ctx, item.Symbol, item.AssetClass, from, to)
	if err != nil {
		return 0, fmt.Errorf("fetching metrics: %w", err)
	}
	if err := s.store.UpsertMetricRows(rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// FinSyncer pulls financial statements for watched stock symbols. It
// implements mirror.ScopeRunner for the financials scope.
type FinSyncer struct {
	store      Store
	financials FinancialsProvider
	logger     mirror.Logger

	// Periods of history per mode. Full reaches back further so a
	// fresh database gets several years of statements.
	fullPeriods        int
	incrementalPeriods int
}

// NewFinSyncer creates a financials syncer.
func NewFinSyncer(store Store, financials FinancialsProvider, logger mirror.Logger) *FinSyncer {
	if logger == nil {
		logger = mirror.NewNopLogger()
	}
	return &FinSyncer{
		store:              store,
		financials:         financials,
		logger:             logger,
		fullPeriods:        12,
		incrementalPeriods: 2,
	}
}

var _ mirror.ScopeRunner = (*FinSyncer)(nil)

func (s *FinSyncer) Run(ctx context.Context, mode, runID string) (*mirror.Stats, error) {
	if s.financials == nil {
		return nil, fmt.Errorf("no financials provider configured")
	}

	items, err := s.store.Watchlist(true)
	if err != nil {
		return nil, fmt.Errorf("loading watchlist: %w", err)
	}

	periods := s.incrementalPeriods
	if mode == mirror.ModeFull {
		periods = s.fullPeriods
	}

	stats := &mirror.Stats{}
	for _, item := range items {
		if item.AssetClass != "stock" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		stmts, err := s.financials.Statements(ctx, item.Symbol, periods)
		if err != nil {
			s.logger.Warn("financials sync failed for symbol", "symbol", item.Symbol, "error", err)
			stats.Failures++
			stats.FailedItems = append(stats.FailedItems, item.Symbol)
			continue
		}
		if err := s.store.UpsertFinStatements(stmts); err != nil {
			return stats, err
		}
		stats.SymbolsSynced++
		stats.RowsWritten += len(stmts)
	}
	return stats, nil
}
