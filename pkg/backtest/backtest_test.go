package backtest

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qxbot/pkg/engine"
	"qxbot/pkg/market"
)

// priceFeeder emits bare price snapshots for scripted-strategy tests.
type priceFeeder struct {
	prices []float64
	idx    int
}

func (f *priceFeeder) Next(ctx context.Context, instrument string) (*market.Snapshot, bool, error) {
	if f.idx >= len(f.prices) {
		return nil, false, nil
	}
	px := f.prices[f.idx]
	f.idx++
	return &market.Snapshot{Instrument: instrument, Price: market.Val(px)}, true, nil
}

// scriptedStrategy fires a fixed signal at one step.
type scriptedStrategy struct {
	step   int
	signal engine.Signal
	seen   int
}

func (s *scriptedStrategy) Decide(ctx context.Context, snap *market.Snapshot) (engine.Signal, error) {
	s.seen++
	if s.seen == s.step {
		return s.signal, nil
	}
	return engine.SignalNone, nil
}

func TestEngineSettlesWinningCall(t *testing.T) {
	e := &Engine{
		Feeder:         &priceFeeder{prices: []float64{100, 101, 102, 103, 104}},
		Strategy:       &scriptedStrategy{step: 1, signal: engine.SignalCall},
		Instrument:     "EURUSD_OTC",
		InitialBalance: 1000,
		RiskPercent:    5,
		PayoutPercent:  85,
		ExpirySteps:    2,
	}
	res, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, res.Steps)
	assert.Equal(t, 1, res.BetsPlaced)
	assert.Equal(t, 1, res.Wins)
	assert.Zero(t, res.Losses)
	assert.Equal(t, 1.0, res.WinRate)
	// 50 staked at 100, settled at 102: profit 42.50.
	assert.InDelta(t, 1042.5, res.FinalBalance, 1e-9)
	assert.InDelta(t, 42.5, res.NetPNL, 1e-9)

	require.Len(t, res.Details, 1)
	d := res.Details[0]
	assert.Equal(t, "win", d.Outcome)
	assert.Equal(t, 1, d.OpenStep)
	assert.Equal(t, 3, d.SettleStep)
	assert.Equal(t, 100.0, d.EntryPrice)
	assert.Equal(t, 102.0, d.ExitPrice)
}

func TestEngineSettlesLosingCall(t *testing.T) {
	e := &Engine{
		Feeder:         &priceFeeder{prices: []float64{100, 99, 98, 97}},
		Strategy:       &scriptedStrategy{step: 1, signal: engine.SignalCall},
		Instrument:     "EURUSD_OTC",
		InitialBalance: 1000,
		RiskPercent:    5,
		ExpirySteps:    2,
	}
	res, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Losses)
	assert.InDelta(t, 950.0, res.FinalBalance, 1e-9)
	assert.Greater(t, res.MaxDDPct, 0.0)
}

func TestEnginePutWinsOnFall(t *testing.T) {
	e := &Engine{
		Feeder:         &priceFeeder{prices: []float64{100, 99, 98, 97}},
		Strategy:       &scriptedStrategy{step: 1, signal: engine.SignalPut},
		Instrument:     "EURUSD_OTC",
		InitialBalance: 1000,
		RiskPercent:    5,
		PayoutPercent:  80,
	}
	res, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Wins)
	assert.InDelta(t, 1040.0, res.FinalBalance, 1e-9)
}

func TestEngineDrawReturnsStake(t *testing.T) {
	e := &Engine{
		Feeder:         &priceFeeder{prices: []float64{100, 101, 100, 99}},
		Strategy:       &scriptedStrategy{step: 1, signal: engine.SignalCall},
		Instrument:     "EURUSD_OTC",
		InitialBalance: 1000,
		RiskPercent:    5,
		ExpirySteps:    2,
	}
	res, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Draws)
	assert.Zero(t, res.Wins)
	assert.Zero(t, res.Losses)
	assert.InDelta(t, 1000.0, res.FinalBalance, 1e-9)
	assert.Zero(t, res.WinRate)
}

func TestEngineVoidsBetAtSeriesEnd(t *testing.T) {
	e := &Engine{
		Feeder:         &priceFeeder{prices: []float64{100, 101}},
		Strategy:       &scriptedStrategy{step: 2, signal: engine.SignalCall},
		Instrument:     "EURUSD_OTC",
		InitialBalance: 1000,
		RiskPercent:    5,
		ExpirySteps:    5,
	}
	res, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.BetsPlaced)
	assert.Equal(t, 1, res.Voided)
	assert.InDelta(t, 1000.0, res.FinalBalance, 1e-9)
}

func TestEngineWithSignalStrategy(t *testing.T) {
	cfg := &engine.Config{
		RSIBuyThreshold:  35,
		RSISellThreshold: 65,
		ATRMax:           0.05,
	}
	// Long declining series drives RSI toward zero, but price under the SMA
	// keeps the call side quiet, so no bets fire.
	prices := make([]float64, 60)
	for i := range prices {
		prices[i] = 2.0 - float64(i)*0.01
	}
	mcfg, err := market.LoadConfigFromReader(nullReader{})
	require.NoError(t, err)

	feeder := NewCandleFeeder("EURUSD_OTC", flatCandles(prices, mcfg), mcfg)
	e := &Engine{
		Feeder:     feeder,
		Strategy:   &SignalStrategy{Config: cfg},
		Instrument: "EURUSD_OTC",
	}
	res, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 60, res.Steps)
	assert.Zero(t, res.BetsPlaced)
	assert.False(t, math.IsNaN(res.Sharpe))
}
