package guards

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qxbot/pkg/broker"
	"qxbot/pkg/broker/sim"
)

func newGuarded(t *testing.T, cap int, dupWindow time.Duration, now *time.Time) *SafeBroker {
	t.Helper()
	inner := sim.New(sim.WithBalance(10000), sim.WithClock(func() time.Time { return *now }))
	inner.AddInstrument(broker.Instrument{ID: "EURUSD_OTC", PayoutPercent: 85})
	require.NoError(t, inner.SetQuote("EURUSD_OTC", 1.1))
	return New(inner, cap, dupWindow, WithClock(func() time.Time { return *now }))
}

func req(amount float64) broker.OrderRequest {
	return broker.OrderRequest{
		Instrument: "EURUSD_OTC",
		Direction:  broker.DirectionCall,
		Amount:     amount,
		Duration:   time.Minute,
	}
}

func TestDuplicateSuppression(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	g := newGuarded(t, 0, 30*time.Second, &now)
	ctx := context.Background()

	_, err := g.SubmitOrder(ctx, req(10))
	require.NoError(t, err)

	_, err = g.SubmitOrder(ctx, req(10))
	require.Error(t, err)
	assert.Equal(t, broker.KindRejected, broker.KindOf(err))
	assert.Contains(t, err.Error(), "duplicate")

	// A different amount is a different order key.
	_, err = g.SubmitOrder(ctx, req(20))
	require.NoError(t, err)

	// The original order passes again once the window has elapsed.
	now = now.Add(31 * time.Second)
	_, err = g.SubmitOrder(ctx, req(10))
	require.NoError(t, err)
}

func TestPerMinuteCap(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	g := newGuarded(t, 2, 0, &now)
	ctx := context.Background()

	_, err := g.SubmitOrder(ctx, req(10))
	require.NoError(t, err)
	now = now.Add(time.Second)
	_, err = g.SubmitOrder(ctx, req(11))
	require.NoError(t, err)

	now = now.Add(time.Second)
	_, err = g.SubmitOrder(ctx, req(12))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "per-minute cap")

	// The window slides: a minute later submissions pass again.
	now = now.Add(62 * time.Second)
	_, err = g.SubmitOrder(ctx, req(13))
	require.NoError(t, err)
}

func TestPassthroughWhenDisabled(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	g := newGuarded(t, 0, 0, &now)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := g.SubmitOrder(ctx, req(10))
		require.NoError(t, err)
	}

	balance, err := g.GetBalance(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 10000-50, balance, 1e-9)
}
