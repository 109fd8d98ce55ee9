package database

import (
	"fmt"

	"github.com/s1ren-78/beiduoduo/internal/model"
)

// Market and financials writes. Every upsert is idempotent on its
// natural key so re-running a window of history is safe.

func (s *SQLiteDatabase) UpsertPriceBars(bars []*model.PriceBar) error {
	if len(bars) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO market_price_daily (symbol, asset_class, trade_date, open, high, low, close, volume, market_cap, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol, asset_class, trade_date) DO UPDATE SET
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			volume = excluded.volume,
			market_cap = excluded.market_cap`)
	if err != nil {
		return fmt.Errorf("preparing price upsert: %w", err)
	}
	defer stmt.Close()

	now := timeNow()
	for _, b := range bars {
		_, err := stmt.Exec(b.Symbol, b.AssetClass, b.TradeDate,
			b.Open, b.High, b.Low, b.Close, b.Volume, b.MarketCap, now)
		if err != nil {
			return fmt.Errorf("upserting price bar %s %s: %w", b.Symbol, b.TradeDate, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteDatabase) UpsertQuote(q *model.Quote) error {
	_, err := s.db.Exec(`
		INSERT INTO market_quote_latest (symbol, asset_class, price, change_pct, volume, market_cap, as_of, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol, asset_class) DO UPDATE SET
			price = excluded.price,
			change_pct = excluded.change_pct,
			volume = excluded.volume,
			market_cap = excluded.market_cap,
			as_of = excluded.as_of,
			updated_at = excluded.updated_at`,
		q.Symbol, q.AssetClass, q.Price, q.ChangePct, q.Volume, q.MarketCap, q.AsOf, timeNow(),
	)
	if err != nil {
		return fmt.Errorf("upserting quote %s: %w", q.Symbol, err)
	}
	return nil
}

func (s *SQLiteDatabase) UpsertMetricRows(rows []*model.MetricRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO metric_daily (entity, entity_kind, metric_date, metric, value, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (entity, entity_kind, metric_date, metric) DO UPDATE SET
			value = excluded.value`)
	if err != nil {
		return fmt.Errorf("preparing metric upsert: %w", err)
	}
	defer stmt.Close()

	now := timeNow()
	for _, r := range rows {
		if _, err := stmt.Exec(r.Entity, r.EntityKind, r.MetricDate, r.Metric, r.Value, now); err != nil {
			return fmt.Errorf("upserting metric %s/%s: %w", r.Entity, r.Metric, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteDatabase) UpsertLiquidityRows(rows []*model.LiquidityRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO token_liquidity (symbol, chain, pool_date, liquidity, volume, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol, chain, pool_date) DO UPDATE SET
			liquidity = excluded.liquidity,
			volume = excluded.volume`)
	if err != nil {
		return fmt.Errorf("preparing liquidity upsert: %w", err)
	}
	defer stmt.Close()

	now := timeNow()
	for _, r := range rows {
		if _, err := stmt.Exec(r.Symbol, r.Chain, r.PoolDate, r.Liquidity, r.Volume, now); err != nil {
			return fmt.Errorf("upserting liquidity %s/%s: %w", r.Symbol, r.PoolDate, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteDatabase) UpsertFinStatements(stmts []*model.FinStatement) error {
	if len(stmts) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO fin_statement (symbol, period, statement, line_item, value, report_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol, period, statement, line_item) DO UPDATE SET
			value = excluded.value,
			report_date = excluded.report_date`)
	if err != nil {
		return fmt.Errorf("preparing statement upsert: %w", err)
	}
	defer stmt.Close()

	now := timeNow()
	for _, f := range stmts {
		if _, err := stmt.Exec(f.Symbol, f.Period, f.Statement, f.LineItem, f.Value, f.ReportDate, now); err != nil {
			return fmt.Errorf("upserting statement %s/%s/%s: %w", f.Symbol, f.Period, f.LineItem, err)
		}
	}
	return tx.Commit()
}
