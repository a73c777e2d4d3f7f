package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qxbot/pkg/broker"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time          { return f.now }
func (f *fakeClock) Advance(d time.Duration) { f.now = f.now.Add(d) }

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func riskConfig() *Config {
	return &Config{
		BasePercent:           5,
		MinPercent:            2,
		MaxPercent:            5,
		WinStreakThreshold:    2,
		LossStreakThreshold:   2,
		DailyLossLimitPercent: 10,
		Cooldown:              5 * time.Minute,
	}
}

func newRisk(t *testing.T, clock *fakeClock) *RiskState {
	t.Helper()
	s := NewRiskState(riskConfig(), WithRiskClock(clock.Now))
	require.True(t, s.MaybeDailyReset(1000))
	return s
}

func openOrder(id, instrument string, amount float64) OpenOrder {
	return OpenOrder{
		ID:            id,
		Instrument:    instrument,
		Direction:     broker.DirectionCall,
		Amount:        amount,
		Duration:      2 * time.Minute,
		PercentProfit: 85,
		PercentLoss:   100,
	}
}

func TestDailyResetIdempotentWithinWindow(t *testing.T) {
	clock := newFakeClock()
	s := newRisk(t, clock)
	s.AddOrder(openOrder("o1", "EURUSD_OTC", 50))
	_, ok := s.SettleLoss("o1")
	require.True(t, ok)

	// Second check inside the same window mutates nothing.
	clock.Advance(12 * time.Hour)
	assert.False(t, s.MaybeDailyReset(900))
	assert.Equal(t, 50.0, s.DailyLoss())
	assert.Equal(t, 1000.0, s.InitialDailyBalance())

	clock.Advance(12 * time.Hour)
	assert.True(t, s.MaybeDailyReset(900))
	assert.Equal(t, 0.0, s.DailyLoss())
	assert.Equal(t, 900.0, s.InitialDailyBalance())
	wins, losses := s.Streaks()
	assert.Zero(t, wins)
	assert.Zero(t, losses)
	assert.Equal(t, 5.0, s.RiskPercent())
}

func TestStreakInvariants(t *testing.T) {
	clock := newFakeClock()
	s := newRisk(t, clock)

	s.AddOrder(openOrder("o1", "EURUSD_OTC", 50))
	_, ok := s.SettleWin("o1")
	require.True(t, ok)
	wins, losses := s.Streaks()
	assert.Equal(t, 1, wins)
	assert.Zero(t, losses)

	s.AddOrder(openOrder("o2", "EURUSD_OTC", 50))
	_, ok = s.SettleLoss("o2")
	require.True(t, ok)
	wins, losses = s.Streaks()
	assert.Zero(t, wins)
	assert.Equal(t, 1, losses)
}

func TestDrawLeavesEverythingButTheOrder(t *testing.T) {
	clock := newFakeClock()
	s := newRisk(t, clock)
	s.AddOrder(openOrder("o1", "EURUSD_OTC", 50))
	s.AddOrder(openOrder("o2", "GBPUSD_OTC", 50))
	_, ok := s.SettleLoss("o1")
	require.True(t, ok)

	require.True(t, s.SettleDraw("o2"))
	assert.Equal(t, 50.0, s.DailyLoss())
	wins, losses := s.Streaks()
	assert.Zero(t, wins)
	assert.Equal(t, 1, losses)
	assert.False(t, s.HasOpenOrder("GBPUSD_OTC"))
}

func TestSettlementIdempotent(t *testing.T) {
	clock := newFakeClock()
	s := newRisk(t, clock)
	s.AddOrder(openOrder("o1", "EURUSD_OTC", 50))

	profit, ok := s.SettleWin("o1")
	require.True(t, ok)
	assert.Equal(t, 42.5, profit)
	lossBefore := s.DailyLoss()

	// Settling an order already removed from the open set is a no-op.
	_, ok = s.SettleWin("o1")
	assert.False(t, ok)
	_, ok = s.SettleLoss("o1")
	assert.False(t, ok)
	assert.False(t, s.SettleDraw("o1"))
	assert.False(t, s.Forget("o1"))
	assert.Equal(t, lossBefore, s.DailyLoss())
}

func TestLossStreakShrinksRisk(t *testing.T) {
	clock := newFakeClock()
	s := newRisk(t, clock)

	for _, id := range []string{"o1", "o2"} {
		s.AddOrder(openOrder(id, "EURUSD_OTC", 50))
		_, ok := s.SettleLoss(id)
		require.True(t, ok)
	}
	s.AdjustRisk()
	assert.Equal(t, 4.0, s.RiskPercent()) // max(2, 5*0.8)

	// Further losses keep shrinking but never break the floor.
	for _, id := range []string{"o3", "o4", "o5", "o6"} {
		s.AddOrder(openOrder(id, "EURUSD_OTC", 50))
		_, ok := s.SettleLoss(id)
		require.True(t, ok)
		s.AdjustRisk()
	}
	assert.Equal(t, 2.0, s.RiskPercent())
}

func TestWinStreakGrowsRiskToCap(t *testing.T) {
	clock := newFakeClock()
	s := newRisk(t, clock)

	for _, id := range []string{"o1", "o2", "o3"} {
		s.AddOrder(openOrder(id, "EURUSD_OTC", 50))
		_, ok := s.SettleWin(id)
		require.True(t, ok)
		s.AdjustRisk()
	}
	assert.Equal(t, 5.0, s.RiskPercent()) // capped at MaxPercent
}

func TestRiskRevertsToBaselineWithoutStreak(t *testing.T) {
	clock := newFakeClock()
	s := newRisk(t, clock)

	for _, id := range []string{"o1", "o2"} {
		s.AddOrder(openOrder(id, "EURUSD_OTC", 50))
		_, ok := s.SettleLoss(id)
		require.True(t, ok)
	}
	s.AdjustRisk()
	require.Equal(t, 4.0, s.RiskPercent())

	// One win breaks the loss streak; risk reverts to baseline.
	s.AddOrder(openOrder("o3", "EURUSD_OTC", 50))
	_, ok := s.SettleWin("o3")
	require.True(t, ok)
	s.AdjustRisk()
	assert.Equal(t, 5.0, s.RiskPercent())
}

func TestBreakerTripsAtLimit(t *testing.T) {
	clock := newFakeClock()
	s := NewRiskState(riskConfig(), WithRiskClock(clock.Now))
	require.True(t, s.MaybeDailyReset(100))

	s.AddOrder(openOrder("o1", "EURUSD_OTC", 12))
	_, ok := s.SettleLoss("o1")
	require.True(t, ok)

	// 12 of 100 lost against a 10% limit.
	assert.True(t, s.BreakerTripped())
}

func TestBreakerNeedsOpeningBalance(t *testing.T) {
	clock := newFakeClock()
	s := NewRiskState(riskConfig(), WithRiskClock(clock.Now))
	assert.False(t, s.BreakerTripped())
}

func TestCooldownGate(t *testing.T) {
	clock := newFakeClock()
	s := newRisk(t, clock)

	assert.True(t, s.CooldownAllows("EURUSD_OTC"))
	s.NoteTradeAttempt("EURUSD_OTC")
	assert.False(t, s.CooldownAllows("EURUSD_OTC"))
	assert.True(t, s.CooldownAllows("GBPUSD_OTC"))

	clock.Advance(4 * time.Minute)
	assert.False(t, s.CooldownAllows("EURUSD_OTC"))
	clock.Advance(time.Minute)
	assert.True(t, s.CooldownAllows("EURUSD_OTC"))
}

func TestOnePositionPerInstrument(t *testing.T) {
	clock := newFakeClock()
	s := newRisk(t, clock)

	s.AddOrder(openOrder("o1", "EURUSD_OTC", 50))
	assert.True(t, s.HasOpenOrder("EURUSD_OTC"))
	assert.False(t, s.HasOpenOrder("GBPUSD_OTC"))

	require.True(t, s.Forget("o1"))
	assert.False(t, s.HasOpenOrder("EURUSD_OTC"))
}

func TestUntrackableOrderNeverAdded(t *testing.T) {
	clock := newFakeClock()
	s := newRisk(t, clock)
	s.AddOrder(openOrder("", "EURUSD_OTC", 50))
	assert.False(t, s.HasOpenOrder("EURUSD_OTC"))
	assert.Empty(t, s.OpenOrders())
}

func TestOpenOrdersStableOrder(t *testing.T) {
	clock := newFakeClock()
	s := newRisk(t, clock)

	first := openOrder("b", "EURUSD_OTC", 50)
	first.OpenedAt = clock.Now()
	second := openOrder("a", "GBPUSD_OTC", 50)
	second.OpenedAt = clock.Now().Add(time.Minute)
	s.AddOrder(second)
	s.AddOrder(first)

	got := s.OpenOrders()
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, "a", got[1].ID)
}
