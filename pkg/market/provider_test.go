package market

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qxbot/pkg/broker"
)

type fakeSource struct {
	quote   *broker.Quote
	quoteOK bool
	candles []broker.Candle
}

func (f *fakeSource) GetQuote(ctx context.Context, instrument string) (*broker.Quote, error) {
	if !f.quoteOK {
		return nil, broker.NewError(broker.KindUnavailable, "get quote", nil)
	}
	return f.quote, nil
}

func (f *fakeSource) GetCandles(ctx context.Context, instrument string, timeframe time.Duration, count int) ([]broker.Candle, error) {
	if len(f.candles) == 0 {
		return nil, broker.NewError(broker.KindUnavailable, "get candles", nil)
	}
	return f.candles, nil
}

func mustConfig(t *testing.T, yaml string) *Config {
	t.Helper()
	cfg, err := LoadConfigFromReader(strings.NewReader(yaml))
	require.NoError(t, err)
	return cfg
}

func risingCandles(n int) []broker.Candle {
	out := make([]broker.Candle, n)
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := range out {
		px := 1.0 + float64(i)*0.01
		out[i] = broker.Candle{
			OpenTime: base.Add(time.Duration(i) * time.Minute),
			Open:     px, High: px + 0.005, Low: px - 0.005, Close: px,
		}
	}
	return out
}

func TestSnapshotComputesIndicators(t *testing.T) {
	cfg := mustConfig(t, "indicators: [RSI, SMA, ATR]\ncandle_count: 60\n")
	src := &fakeSource{candles: risingCandles(60)}
	p := NewCandleProvider(cfg, src)

	snap, err := p.Snapshot(context.Background(), "EURUSD_OTC")
	require.NoError(t, err)

	require.True(t, snap.Price.Valid)
	assert.InDelta(t, 1.59, snap.Price.Float, 1e-9)

	rsi := snap.Indicator(IndicatorRSI)
	require.True(t, rsi.Valid)
	assert.InDelta(t, 100, rsi.Float, 1e-6) // strictly rising closes

	sma := snap.Indicator(IndicatorSMA)
	require.True(t, sma.Valid)
	assert.Less(t, sma.Float, snap.Price.Float)

	atr := snap.Indicator(IndicatorATR)
	require.True(t, atr.Valid)
	assert.Greater(t, atr.Float, 0.0)
}

func TestSnapshotShortHistoryYieldsUnavailable(t *testing.T) {
	cfg := mustConfig(t, "indicators: [RSI]\nrsi_period: 14\ncandle_count: 30\n")
	src := &fakeSource{candles: risingCandles(5)}
	p := NewCandleProvider(cfg, src)

	snap, err := p.Snapshot(context.Background(), "EURUSD_OTC")
	require.NoError(t, err)

	assert.False(t, snap.Indicator(IndicatorRSI).Valid)
	assert.True(t, snap.Price.Valid)
}

func TestSnapshotLiveQuoteWins(t *testing.T) {
	cfg := mustConfig(t, "indicators: [SMA]\nsma_period: 5\ncandle_count: 30\n")
	src := &fakeSource{
		candles: risingCandles(30),
		quoteOK: true,
		quote:   &broker.Quote{Instrument: "EURUSD_OTC", Price: 2.5, At: time.Now()},
	}
	p := NewCandleProvider(cfg, src)

	snap, err := p.Snapshot(context.Background(), "EURUSD_OTC")
	require.NoError(t, err)
	assert.InDelta(t, 2.5, snap.Price.Float, 1e-9)
}

func TestSnapshotNoDataAtAll(t *testing.T) {
	cfg := mustConfig(t, "indicators: [RSI]\n")
	p := NewCandleProvider(cfg, &fakeSource{})

	_, err := p.Snapshot(context.Background(), "EURUSD_OTC")
	require.Error(t, err)
	assert.True(t, broker.IsUnavailable(err))
}

func TestUnknownIndicatorRejected(t *testing.T) {
	_, err := LoadConfigFromReader(strings.NewReader("indicators: [VWAP]\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown indicator")
}

func TestCandleCountMustCoverWarmup(t *testing.T) {
	_, err := LoadConfigFromReader(strings.NewReader("indicators: [MACD]\ncandle_count: 20\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot warm up")
}

func TestValueCollapsesNaN(t *testing.T) {
	assert.False(t, Val(math.NaN()).Valid)
	assert.False(t, Val(math.Inf(1)).Valid)
	v := Val(1.5)
	assert.True(t, v.Valid)
	assert.InDelta(t, 1.5, v.Float, 1e-9)
}
