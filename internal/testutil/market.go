package testutil

import (
	"context"
	"time"

	"github.com/s1ren-78/beiduoduo/internal/model"
)

// ScriptedQuoteProvider serves canned price data keyed by symbol.
type ScriptedQuoteProvider struct {
	Bars   map[string][]*model.PriceBar
	Quotes map[string]*model.Quote
	Errs   map[string]error

	// LastFrom and LastTo record the window of the most recent
	// DailyBars call.
	LastFrom time.Time
	LastTo   time.Time
}

func NewScriptedQuoteProvider() *ScriptedQuoteProvider {
	return &ScriptedQuoteProvider{
		Bars:   make(map[string][]*model.PriceBar),
		Quotes: make(map[string]*model.Quote),
		Errs:   make(map[string]error),
	}
}

func (p *ScriptedQuoteProvider) DailyBars(ctx context.Context, symbol, assetClass string, from, to time.Time) ([]*model.PriceBar, error) {
	p.LastFrom, p.LastTo = from, to
	if err := p.Errs[symbol]; err != nil {
		return nil, err
	}
	return p.Bars[symbol], nil
}

func (p *ScriptedQuoteProvider) LatestQuote(ctx context.Context, symbol, assetClass string) (*model.Quote, error) {
	if err := p.Errs[symbol]; err != nil {
		return nil, err
	}
	return p.Quotes[symbol], nil
}

// ScriptedMetricsProvider serves canned protocol metrics and liquidity.
type ScriptedMetricsProvider struct {
	Metrics   map[string][]*model.MetricRow
	Liquidity map[string][]*model.LiquidityRow
	Errs      map[string]error
}

func NewScriptedMetricsProvider() *ScriptedMetricsProvider {
	return &ScriptedMetricsProvider{
		Metrics:   make(map[string][]*model.MetricRow),
		Liquidity: make(map[string][]*model.LiquidityRow),
		Errs:      make(map[string]error),
	}
}

func (p *ScriptedMetricsProvider) DailyMetrics(ctx context.Context, entity, entityKind string, from, to time.Time) ([]*model.MetricRow, error) {
	if err := p.Errs[entity]; err != nil {
		return nil, err
	}
	return p.Metrics[entity], nil
}

func (p *ScriptedMetricsProvider) TokenLiquidity(ctx context.Context, symbol string, from, to time.Time) ([]*model.LiquidityRow, error) {
	if err := p.Errs[symbol]; err != nil {
		return nil, err
	}
	return p.Liquidity[symbol], nil
}

// ScriptedFinancialsProvider serves canned statement line items.
type ScriptedFinancialsProvider struct {
	Data map[string][]*model.FinStatement
	Errs map[string]error

	// LastPeriods records the periods argument of the most recent call.
	LastPeriods int
}

func NewScriptedFinancialsProvider() *ScriptedFinancialsProvider {
	return &ScriptedFinancialsProvider{
		Data: make(map[string][]*model.FinStatement),
		Errs: make(map[string]error),
	}
}

func (p *ScriptedFinancialsProvider) Statements(ctx context.Context, symbol string, periods int) ([]*model.FinStatement, error) {
	p.LastPeriods = periods
	if err := p.Errs[symbol]; err != nil {
		return nil, err
	}
	return p.Data[symbol], nil
}
