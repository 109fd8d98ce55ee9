package market

import (
	"context"
	"time"

	"github.com/s1ren-78/beiduoduo/internal/model"
)

// QuoteProvider serves price data for watched symbols.
type QuoteProvider interface {
	// DailyBars returns daily OHLCV bars for the symbol in [from, to].
	DailyBars(ctx context.Context, symbol, assetClass string, from, to time.Time) ([]*model.PriceBar, error)

	// LatestQuote returns the current quote for the symbol.
	LatestQuote(ctx context.Context, symbol, assetClass string) (*model.Quote, error)
}

// MetricsProvider serves protocol and chain metrics plus token
// liquidity. Implementations cover the "protocol" and "chain" asset
// classes of the watchlist.
type MetricsProvider interface {
	DailyMetrics(ctx context.Context, entity, entityKind string, from, to time.Time) ([]*model.MetricRow, error)
	TokenLiquidity(ctx context.Context, symbol string, from, to time.Time) ([]*model.LiquidityRow, error)
}

// FinancialsProvider serves financial statement line items for equity
// symbols.
type FinancialsProvider interface {
	Statements(ctx context.Context, symbol string, periods int) ([]*model.FinStatement, error)
}
