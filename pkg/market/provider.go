package market

import (
	"context"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"qxbot/pkg/broker"
	"qxbot/pkg/market/indicators"
)

// CandleSource supplies the raw data a snapshot is computed from. The broker
// client satisfies this directly.
type CandleSource interface {
	GetQuote(ctx context.Context, instrument string) (*broker.Quote, error)
	GetCandles(ctx context.Context, instrument string, timeframe time.Duration, count int) ([]broker.Candle, error)
}

// CandleProvider computes indicator snapshots from venue candle history.
type CandleProvider struct {
	cfg *Config
	src CandleSource
}

// NewCandleProvider constructs a provider over the given source.
func NewCandleProvider(cfg *Config, src CandleSource) *CandleProvider {
	return &CandleProvider{cfg: cfg, src: src}
}

// Snapshot assembles the price and every configured indicator for one
// instrument. Indicators whose warm-up window is not covered by the fetched
// history come back unavailable rather than zero; a missing candle history
// yields a snapshot with only the live price when a quote exists.
func (p *CandleProvider) Snapshot(ctx context.Context, instrument string) (*Snapshot, error) {
	snap := &Snapshot{
		Instrument: instrument,
		At:         time.Now(),
		Indicators: make(map[string]Value, len(p.cfg.Indicators)),
	}
	for _, name := range p.cfg.Indicators {
		snap.Indicators[name] = Unavailable()
	}

	candles, err := p.src.GetCandles(ctx, instrument, p.cfg.Timeframe, p.cfg.CandleCount)
	if err != nil && !broker.IsUnavailable(err) {
		return nil, err
	}
	if err != nil {
		logx.Infof("market: no candle history for %s, indicators unavailable", instrument)
	}

	if len(candles) > 0 {
		closes := make([]float64, len(candles))
		bars := make([]indicators.Bar, len(candles))
		for i, k := range candles {
			closes[i] = k.Close
			bars[i] = indicators.Bar{Open: k.Open, High: k.High, Low: k.Low, Close: k.Close}
		}
		p.compute(snap, closes, bars)
		snap.Price = Val(closes[len(closes)-1])
		snap.At = candles[len(candles)-1].OpenTime
	}

	// A live quote beats the last close when available.
	if quote, qerr := p.src.GetQuote(ctx, instrument); qerr == nil && quote != nil && quote.Price > 0 {
		snap.Price = Val(quote.Price)
		snap.At = quote.At
	}

	if !snap.Price.Valid {
		return nil, broker.NewError(broker.KindUnavailable, "snapshot",
			errNoData{instrument: instrument})
	}
	return snap, nil
}

func (p *CandleProvider) compute(snap *Snapshot, closes []float64, bars []indicators.Bar) {
	for _, name := range p.cfg.Indicators {
		switch name {
		case IndicatorRSI:
			snap.Indicators[name] = Val(indicators.Last(indicators.RSI(closes, p.cfg.RSIPeriod)))
		case IndicatorSMA:
			snap.Indicators[name] = Val(indicators.Last(indicators.SMA(closes, p.cfg.SMAPeriod)))
		case IndicatorEMA:
			snap.Indicators[name] = Val(indicators.Last(indicators.EMA(closes, p.cfg.EMAPeriod)))
		case IndicatorATR:
			snap.Indicators[name] = Val(indicators.Last(indicators.ATR(bars, p.cfg.ATRPeriod)))
		case IndicatorMACD:
			macd, _, _ := indicators.MACD(closes, p.cfg.MACDFast, p.cfg.MACDSlow, p.cfg.MACDSignal)
			snap.Indicators[name] = Val(indicators.Last(macd))
		}
	}
}

type errNoData struct{ instrument string }

func (e errNoData) Error() string { return "no price data for " + e.instrument }
