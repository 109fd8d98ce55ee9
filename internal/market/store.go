package market

import (
	"github.com/s1ren-78/beiduoduo/internal/model"
)

// Store is the persistence contract the market and financials syncers
// write through. All upserts are idempotent on their natural keys.
type Store interface {
	Watchlist(enabledOnly bool) ([]*model.WatchlistItem, error)

	UpsertPriceBars(bars []*model.PriceBar) error
	UpsertQuote(q *model.Quote) error
	UpsertMetricRows(rows []*model.MetricRow) error
	UpsertLiquidityRows(rows []*model.LiquidityRow) error
	UpsertFinStatements(stmts []*model.FinStatement) error
}
