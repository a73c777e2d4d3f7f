package backtest

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qxbot/pkg/broker"
	"qxbot/pkg/market"
)

// nullReader yields no bytes, so config loaders fall back to defaults.
type nullReader struct{}

func (nullReader) Read(p []byte) (int, error) { return 0, io.EOF }

func flatCandles(prices []float64, cfg *market.Config) []broker.Candle {
	out := make([]broker.Candle, len(prices))
	at := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i, px := range prices {
		out[i] = broker.Candle{OpenTime: at, Open: px, High: px, Low: px, Close: px}
		at = at.Add(cfg.Timeframe)
	}
	return out
}

func TestCandleFeederEmitsCausalIndicators(t *testing.T) {
	cfg, err := market.LoadConfigFromReader(strings.NewReader("indicators: [SMA]\nsma_period: 3\n"))
	require.NoError(t, err)

	feeder := NewCandleFeeder("EURUSD_OTC", flatCandles([]float64{1, 2, 3, 4}, cfg), cfg)
	ctx := context.Background()

	// Warm-up steps carry no SMA.
	for i := 0; i < 2; i++ {
		snap, ok, err := feeder.Next(ctx, "EURUSD_OTC")
		require.NoError(t, err)
		require.True(t, ok)
		assert.False(t, snap.Indicator(market.IndicatorSMA).Valid)
	}

	snap, ok, err := feeder.Next(ctx, "EURUSD_OTC")
	require.NoError(t, err)
	require.True(t, ok)
	sma := snap.Indicator(market.IndicatorSMA)
	require.True(t, sma.Valid)
	assert.InDelta(t, 2.0, sma.Float, 1e-9) // mean of 1,2,3

	snap, ok, err = feeder.Next(ctx, "EURUSD_OTC")
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 3.0, snap.Indicator(market.IndicatorSMA).Float, 1e-9)

	_, ok, err = feeder.Next(ctx, "EURUSD_OTC")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCSVCandleFeederSkipsHeader(t *testing.T) {
	cfg, err := market.LoadConfigFromReader(strings.NewReader("indicators: [SMA]\nsma_period: 2\n"))
	require.NoError(t, err)

	csvData := "ts,close\n1717200000,1.10\n1717200060,1.12\n1717200120,1.14\n"
	feeder, err := NewCSVCandleFeeder("EURUSD_OTC", strings.NewReader(csvData), cfg)
	require.NoError(t, err)

	ctx := context.Background()
	snap, ok, err := feeder.Next(ctx, "EURUSD_OTC")
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 1.10, snap.Price.Float, 1e-9)

	snap, ok, err = feeder.Next(ctx, "EURUSD_OTC")
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 1.12, snap.Price.Float, 1e-9)
	assert.InDelta(t, 1.11, snap.Indicator(market.IndicatorSMA).Float, 1e-9)
}
