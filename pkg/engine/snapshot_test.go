package engine

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDaySnapshotRoundTrip(t *testing.T) {
	clock := newFakeClock()
	path := filepath.Join(t.TempDir(), "day.msgpack")

	s := newRisk(t, clock)
	s.AddOrder(openOrder("o1", "EURUSD_OTC", 80))
	_, ok := s.SettleLoss("o1")
	require.True(t, ok)
	s.AddOrder(openOrder("o2", "EURUSD_OTC", 80))
	_, ok = s.SettleLoss("o2")
	require.True(t, ok)
	s.AdjustRisk()
	require.NoError(t, s.SaveDaySnapshot(path))

	// A restart two hours later inside the same day picks the accounting up.
	clock.Advance(2 * time.Hour)
	restored := NewRiskState(riskConfig(), WithRiskClock(clock.Now))
	ok, err := restored.LoadDaySnapshot(path)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, 160.0, restored.DailyLoss())
	assert.Equal(t, 1000.0, restored.InitialDailyBalance())
	assert.Equal(t, 4.0, restored.RiskPercent())
	wins, losses := restored.Streaks()
	assert.Zero(t, wins)
	assert.Equal(t, 2, losses)

	// The restored window still expires at the original boundary.
	assert.False(t, restored.MaybeDailyReset(840))
	clock.Advance(23 * time.Hour)
	assert.True(t, restored.MaybeDailyReset(840))
}

func TestDaySnapshotStaleDiscarded(t *testing.T) {
	clock := newFakeClock()
	path := filepath.Join(t.TempDir(), "day.msgpack")

	s := newRisk(t, clock)
	require.NoError(t, s.SaveDaySnapshot(path))

	clock.Advance(25 * time.Hour)
	restored := NewRiskState(riskConfig(), WithRiskClock(clock.Now))
	ok, err := restored.LoadDaySnapshot(path)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, restored.LastResetAt().IsZero())
}

func TestDaySnapshotMissingFile(t *testing.T) {
	s := NewRiskState(riskConfig())
	ok, err := s.LoadDaySnapshot(filepath.Join(t.TempDir(), "absent.msgpack"))
	require.NoError(t, err)
	assert.False(t, ok)
}
