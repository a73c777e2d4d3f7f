package engine

import (
	"context"

	"github.com/zeromicro/go-zero/core/logx"

	"qxbot/pkg/broker"
)

// OutcomeSource answers settlement queries for submitted orders. The broker
// client satisfies this directly.
type OutcomeSource interface {
	QueryOutcome(ctx context.Context, orderID string) (*broker.Outcome, error)
}

// Reconciler walks the open order set and folds broker-reported outcomes
// back into the risk state. It is the only component that settles orders.
type Reconciler struct {
	source   OutcomeSource
	state    *RiskState
	recorder TradeRecorder
}

// NewReconciler constructs a reconciler over the given outcome source.
func NewReconciler(source OutcomeSource, state *RiskState, recorder TradeRecorder) *Reconciler {
	if recorder == nil {
		recorder = noopTradeRecorder{}
	}
	return &Reconciler{source: source, state: state, recorder: recorder}
}

// Reconcile queries every open order once. Unexpired orders stay open; wins,
// losses and draws settle through the risk state; an order whose outcome
// query fails in a non-connectivity way is dropped from tracking without any
// P/L update, since its outcome is permanently unknown. Only connectivity
// failures abort the pass, so the controller can trigger a reconnect with
// the remaining orders still tracked.
func (r *Reconciler) Reconcile(ctx context.Context) error {
	for _, o := range r.state.OpenOrders() {
		outcome, err := r.source.QueryOutcome(ctx, o.ID)
		if err != nil {
			if broker.IsConnectivity(err) {
				return err
			}
			logx.Errorf("reconcile: dropping order %s on %s, outcome unknowable: %v", o.ID, o.Instrument, err)
			r.state.Forget(o.ID)
			r.record(ctx, TradeEvent{Event: TradeEventDropped, Order: o})
			continue
		}

		switch outcome.Status {
		case broker.OutcomeOpen:
			// Not expired yet.
		case broker.OutcomeWin:
			profit, ok := r.state.SettleWin(o.ID)
			if ok {
				logx.Infof("reconcile: order %s on %s won, profit %.2f", o.ID, o.Instrument, profit)
				r.record(ctx, TradeEvent{
					Event: TradeEventSettled, Order: o,
					Status: broker.OutcomeWin, ProfitLoss: profit,
				})
			}
		case broker.OutcomeLoss:
			stake, ok := r.state.SettleLoss(o.ID)
			if ok {
				logx.Infof("reconcile: order %s on %s lost, stake %.2f", o.ID, o.Instrument, stake)
				r.record(ctx, TradeEvent{
					Event: TradeEventSettled, Order: o,
					Status: broker.OutcomeLoss, ProfitLoss: -stake,
				})
			}
		case broker.OutcomeDraw:
			if r.state.SettleDraw(o.ID) {
				logx.Infof("reconcile: order %s on %s drew, stake returned", o.ID, o.Instrument)
				r.record(ctx, TradeEvent{
					Event: TradeEventSettled, Order: o, Status: broker.OutcomeDraw,
				})
			}
		default:
			logx.Errorf("reconcile: dropping order %s, unrecognised status %q", o.ID, outcome.Status)
			r.state.Forget(o.ID)
			r.record(ctx, TradeEvent{Event: TradeEventDropped, Order: o})
		}
	}
	return nil
}

func (r *Reconciler) record(ctx context.Context, ev TradeEvent) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = r.state.clock()
	}
	ev.DailyLoss = r.state.DailyLoss()
	ev.RiskPercent = r.state.RiskPercent()
	ev.ConsecutiveWins, ev.ConsecutiveLosses = r.state.Streaks()
	if err := r.recorder.RecordTrade(ctx, ev); err != nil {
		logx.Errorf("reconcile: trade recorder failed for order %s: %v", ev.Order.ID, err)
	}
}
