package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"qxbot/internal/model"
	"qxbot/pkg/broker"
	"qxbot/pkg/engine"
)

var _ engine.TradeRecorder = (*Recorder)(nil)

// Recorder mirrors trade lifecycle events to Postgres. A nil Recorder is a
// valid no-op, so wiring code can pass it through unconditionally.
type Recorder struct {
	trades    model.TradesModel
	snapshots model.EquitySnapshotsModel
}

// NewRecorder returns a recorder over the given models, or nil when the
// trades model is absent.
func NewRecorder(trades model.TradesModel, snapshots model.EquitySnapshotsModel) *Recorder {
	if trades == nil {
		return nil
	}
	return &Recorder{trades: trades, snapshots: snapshots}
}

// RecordTrade implements engine.TradeRecorder.
func (r *Recorder) RecordTrade(ctx context.Context, ev engine.TradeEvent) error {
	if r == nil {
		return nil
	}
	switch ev.Event {
	case engine.TradeEventSubmitted:
		return r.insertOpen(ctx, ev)
	case engine.TradeEventSettled:
		return r.settle(ctx, ev, string(ev.Status))
	case engine.TradeEventDropped:
		return r.settle(ctx, ev, "dropped")
	default:
		// Dry-run signals stay in the journal only.
		return nil
	}
}

func (r *Recorder) insertOpen(ctx context.Context, ev engine.TradeEvent) error {
	row := &model.Trades{
		OrderId:         ev.Order.ID,
		Instrument:      ev.Order.Instrument,
		Direction:       string(ev.Order.Direction),
		Amount:          ev.Order.Amount,
		PayoutPercent:   sql.NullFloat64{Float64: ev.Order.PercentProfit, Valid: ev.Order.PercentProfit > 0},
		DurationSeconds: int64(ev.Order.Duration / time.Second),
		Status:          string(broker.OutcomeOpen),
		BalanceAfter:    sql.NullFloat64{Float64: ev.Balance, Valid: ev.Balance > 0},
		OpenedAt:        orderTime(ev),
	}
	_, err := r.trades.Insert(ctx, row)
	return err
}

func (r *Recorder) settle(ctx context.Context, ev engine.TradeEvent, status string) error {
	if err := r.trades.SettleByOrderId(ctx, ev.Order.ID, status, ev.ProfitLoss); err != nil {
		return err
	}
	if r.snapshots == nil {
		return nil
	}
	snap := &model.EquitySnapshots{
		Balance:           sql.NullFloat64{Float64: ev.Balance, Valid: ev.Balance > 0},
		DailyLoss:         ev.DailyLoss,
		RiskPercent:       ev.RiskPercent,
		ConsecutiveWins:   int64(ev.ConsecutiveWins),
		ConsecutiveLosses: int64(ev.ConsecutiveLosses),
		RecordedAt:        orderTime(ev),
	}
	if _, err := r.snapshots.Insert(ctx, snap); err != nil {
		// Equity history is best-effort; the settled trade row is what matters.
		logx.Errorf("persistence: equity snapshot insert failed: %v", err)
	}
	return nil
}

func orderTime(ev engine.TradeEvent) time.Time {
	if !ev.OccurredAt.IsZero() {
		return ev.OccurredAt.UTC()
	}
	return time.Now().UTC()
}
