package backtest

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"time"

	"qxbot/pkg/broker"
	"qxbot/pkg/market"
	"qxbot/pkg/market/indicators"
)

// CandleFeeder replays a candle series as indicator snapshots. All configured
// indicator series are computed once up front; the value emitted at a step
// only ever depends on candles up to that step.
type CandleFeeder struct {
	instrument string
	candles    []broker.Candle
	series     map[string][]float64
	idx        int
}

// NewCandleFeeder constructs a feeder over a candle history using the given
// indicator configuration.
func NewCandleFeeder(instrument string, candles []broker.Candle, cfg *market.Config) *CandleFeeder {
	closes := make([]float64, len(candles))
	bars := make([]indicators.Bar, len(candles))
	for i, k := range candles {
		closes[i] = k.Close
		bars[i] = indicators.Bar{Open: k.Open, High: k.High, Low: k.Low, Close: k.Close}
	}

	series := make(map[string][]float64, len(cfg.Indicators))
	for _, name := range cfg.Indicators {
		switch name {
		case market.IndicatorRSI:
			series[name] = indicators.RSI(closes, cfg.RSIPeriod)
		case market.IndicatorSMA:
			series[name] = indicators.SMA(closes, cfg.SMAPeriod)
		case market.IndicatorEMA:
			series[name] = indicators.EMA(closes, cfg.EMAPeriod)
		case market.IndicatorATR:
			series[name] = indicators.ATR(bars, cfg.ATRPeriod)
		case market.IndicatorMACD:
			macd, _, _ := indicators.MACD(closes, cfg.MACDFast, cfg.MACDSlow, cfg.MACDSignal)
			series[name] = macd
		}
	}
	return &CandleFeeder{instrument: instrument, candles: candles, series: series}
}

// Next returns the snapshot for the next candle in the series.
func (f *CandleFeeder) Next(ctx context.Context, instrument string) (*market.Snapshot, bool, error) {
	if f.idx >= len(f.candles) {
		return nil, false, nil
	}
	i := f.idx
	f.idx++

	snap := &market.Snapshot{
		Instrument: instrument,
		Price:      market.Val(f.candles[i].Close),
		At:         f.candles[i].OpenTime,
		Indicators: make(map[string]market.Value, len(f.series)),
	}
	for name, vals := range f.series {
		snap.Indicators[name] = market.Val(vals[i])
	}
	return snap, true, nil
}

// NewCSVCandleFeederFromFile reads a close-price CSV from disk.
func NewCSVCandleFeederFromFile(instrument, path string, cfg *market.Config) (*CandleFeeder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return NewCSVCandleFeeder(instrument, f, cfg)
}

// NewCSVCandleFeeder builds a feeder from CSV rows whose last column is the
// close price. A non-numeric header row is skipped. Rows collapse to flat
// candles, so ATR-style range indicators come out zero.
func NewCSVCandleFeeder(instrument string, r io.Reader, cfg *market.Config) (*CandleFeeder, error) {
	cr := csv.NewReader(r)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	var candles []broker.Candle
	at := time.Time{}
	for _, rec := range records {
		if len(rec) == 0 {
			continue
		}
		v, err := strconv.ParseFloat(rec[len(rec)-1], 64)
		if err != nil {
			// Header rows and malformed lines are skipped.
			continue
		}
		candles = append(candles, broker.Candle{
			OpenTime: at, Open: v, High: v, Low: v, Close: v,
		})
		at = at.Add(cfg.Timeframe)
	}
	return NewCandleFeeder(instrument, candles, cfg), nil
}
