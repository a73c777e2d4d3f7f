package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/mr"

	"qxbot/pkg/broker"
	"qxbot/pkg/journal"
	"qxbot/pkg/market"
)

const snapshotWorkers = 4

// Controller runs the execution cycle: reconcile outstanding orders, adjust
// risk, check the circuit breaker, scan instruments for signals and submit
// sized orders, then sleep out the remainder of the cycle interval. All risk
// state mutation happens on the goroutine that calls Run.
type Controller struct {
	cfg        *Config
	broker     broker.Provider
	market     market.Provider
	state      *RiskState
	reconciler *Reconciler
	recorder   TradeRecorder
	journal    *journal.Writer
	clock      func() time.Time
}

// Option customises controller construction.
type Option func(*Controller)

// WithTradeRecorder injects a persistence hook for trade lifecycle events.
func WithTradeRecorder(r TradeRecorder) Option {
	return func(c *Controller) {
		if r != nil {
			c.recorder = r
		}
	}
}

// WithJournal injects a cycle journal writer.
func WithJournal(w *journal.Writer) Option {
	return func(c *Controller) { c.journal = w }
}

// WithState injects a pre-built risk state, for tests.
func WithState(s *RiskState) Option {
	return func(c *Controller) { c.state = s }
}

// WithClock overrides the controller time source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(c *Controller) { c.clock = clock }
}

// NewController wires the engine together. When a snapshot path is
// configured, day accounting from a previous run inside the same 24h window
// is restored.
func NewController(cfg *Config, bk broker.Provider, mkt market.Provider, opts ...Option) *Controller {
	c := &Controller{
		cfg:      cfg,
		broker:   bk,
		market:   mkt,
		recorder: noopTradeRecorder{},
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.state == nil {
		c.state = NewRiskState(cfg)
	}
	c.reconciler = NewReconciler(bk, c.state, c.recorder)

	if cfg.SnapshotPath != "" {
		restored, err := c.state.LoadDaySnapshot(cfg.SnapshotPath)
		if err != nil {
			logx.Errorf("engine: day snapshot unreadable, starting fresh: %v", err)
		} else if restored {
			logx.Infof("engine: restored day accounting, daily loss %.2f, risk %.2f%%",
				c.state.DailyLoss(), c.state.RiskPercent())
		}
	}
	return c
}

// State exposes the risk state for wiring code and tests. Callers must not
// mutate it from another goroutine while Run is active.
func (c *Controller) State() *RiskState { return c.state }

// Run drives cycles until the context is cancelled or connectivity recovery
// is exhausted. Cancellation is graceful: the in-flight cycle finishes, the
// day snapshot is saved and Run returns nil.
func (c *Controller) Run(ctx context.Context) error {
	for {
		start := c.clock()
		if err := c.runCycle(ctx); err != nil {
			if ctx.Err() != nil {
				c.saveSnapshot()
				return nil
			}
			if broker.IsConnectivity(err) {
				logx.Errorf("engine: connectivity lost: %v", err)
				if rerr := c.reconnect(ctx); rerr != nil {
					c.saveSnapshot()
					return fmt.Errorf("engine: reconnect exhausted: %w", rerr)
				}
			} else {
				logx.Errorf("engine: cycle failed: %v", err)
			}
		}
		c.saveSnapshot()

		wait := c.cfg.CycleInterval - c.clock().Sub(start)
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// runCycle executes one pass of the state machine. Only connectivity
// failures are returned; everything else is handled inside the cycle.
func (c *Controller) runCycle(ctx context.Context) error {
	rec := &journal.CycleRecord{Skipped: make(map[string]string)}
	defer c.writeJournal(rec)

	balance, err := c.broker.GetBalance(ctx)
	if err != nil {
		rec.ErrorMessage = err.Error()
		return err
	}

	if c.state.MaybeDailyReset(balance) {
		logx.Infof("engine: new accounting day, opening balance %.2f, risk %.2f%%",
			balance, c.state.RiskPercent())
	}

	if err := c.reconciler.Reconcile(ctx); err != nil {
		rec.ErrorMessage = err.Error()
		return err
	}

	c.state.AdjustRisk()

	rec.Balance = balance
	rec.RiskPercent = c.state.RiskPercent()
	rec.DailyLoss = c.state.DailyLoss()
	rec.ConsecutiveWins, rec.ConsecutiveLosses = c.state.Streaks()
	rec.OpenOrders = len(c.state.OpenOrders())

	if c.state.BreakerTripped() {
		rec.BreakerTripped = true
		rec.Success = true
		logx.Errorf("engine: daily loss limit reached (%.2f of %.2f), no new orders this cycle",
			c.state.DailyLoss(), c.state.InitialDailyBalance())
		return nil
	}

	instruments, err := c.broker.ListInstruments(ctx)
	if err != nil {
		rec.ErrorMessage = err.Error()
		if broker.IsConnectivity(err) {
			return err
		}
		logx.Errorf("engine: instrument listing failed, skipping scan: %v", err)
		return nil
	}

	candidates := make([]broker.Instrument, 0, len(instruments))
	for _, inst := range instruments {
		if !inst.IsOpen || inst.PayoutPercent < c.cfg.MinPayoutPercent {
			continue
		}
		candidates = append(candidates, inst)
		rec.Candidates = append(rec.Candidates, inst.ID)
	}

	snaps := c.fetchSnapshots(ctx, candidates)

	running := balance
	for _, inst := range candidates {
		id := inst.ID
		switch {
		case c.state.HasOpenOrder(id):
			rec.Skipped[id] = "open order"
			continue
		case !c.state.CooldownAllows(id):
			rec.Skipped[id] = "cooldown"
			continue
		}
		snap, ok := snaps[id]
		if !ok {
			rec.Skipped[id] = "no data"
			continue
		}
		if !SnapshotComplete(snap) {
			rec.Skipped[id] = "insufficient data"
			continue
		}

		sig := EvaluateSignal(c.cfg, snap)
		if sig == SignalNone {
			rec.Skipped[id] = "no signal"
			continue
		}

		amount, err := SizeOrder(c.cfg, running, c.state.RiskPercent())
		if err != nil {
			rec.Skipped[id] = "not sizeable"
			logx.Errorf("engine: cannot size %s order for %s from balance %.2f", sig, id, running)
			continue
		}

		if !c.cfg.TradingEnabled {
			rec.Skipped[id] = "trading disabled"
			logx.Infof("engine: trading disabled, would place %s on %s for %.2f", sig, id, amount)
			c.record(ctx, TradeEvent{
				Event:   TradeEventSignalOnly,
				Order:   OpenOrder{Instrument: id, Direction: sig.Direction(), Amount: amount},
				Balance: running,
			})
			continue
		}

		running, err = c.submit(ctx, rec, inst, sig, amount, running)
		if err != nil {
			rec.ErrorMessage = err.Error()
			return err
		}
	}

	rec.Balance = running
	rec.Success = true
	return nil
}

// submit places one order and folds the result into the risk state. The
// cooldown is consumed before the call, so a rejected submission still backs
// the instrument off. Returns the updated running balance; only connectivity
// failures surface as errors.
func (c *Controller) submit(ctx context.Context, rec *journal.CycleRecord, inst broker.Instrument, sig Signal, amount, running float64) (float64, error) {
	c.state.NoteTradeAttempt(inst.ID)

	receipt, err := c.broker.SubmitOrder(ctx, broker.OrderRequest{
		Instrument: inst.ID,
		Direction:  sig.Direction(),
		Amount:     amount,
		Duration:   c.cfg.TradeDuration,
	})
	if err != nil {
		if broker.IsConnectivity(err) {
			return running, err
		}
		logx.Errorf("engine: %s on %s for %.2f rejected: %v", sig, inst.ID, amount, err)
		rec.Submitted = append(rec.Submitted, journal.OrderNote{
			Instrument: inst.ID, Direction: sig.String(), Amount: amount, Error: err.Error(),
		})
		return running, nil
	}

	if receipt.HasPostTradeBalance {
		running = receipt.PostTradeBalance
	} else {
		running -= amount
	}

	if receipt.OrderID == "" {
		// Accepted but untrackable; its outcome can never be reconciled.
		logx.Errorf("engine: venue accepted %s on %s without an order id, not tracking", sig, inst.ID)
	} else {
		order := OpenOrder{
			ID:            receipt.OrderID,
			Instrument:    inst.ID,
			Direction:     sig.Direction(),
			Amount:        amount,
			OpenedAt:      receipt.OpenedAt,
			Duration:      c.cfg.TradeDuration,
			PercentProfit: receipt.PercentProfit,
			PercentLoss:   receipt.PercentLoss,
		}
		c.state.AddOrder(order)
		logx.Infof("engine: placed %s on %s for %.2f, order %s", sig, inst.ID, amount, receipt.OrderID)
		c.record(ctx, TradeEvent{Event: TradeEventSubmitted, Order: order, Balance: running})
	}
	rec.Submitted = append(rec.Submitted, journal.OrderNote{
		OrderID: receipt.OrderID, Instrument: inst.ID, Direction: sig.String(),
		Amount: amount, Accepted: true,
	})
	return running, nil
}

// fetchSnapshots pulls indicator snapshots for all candidates concurrently.
// Results come back as an immutable per-cycle map; instruments whose fetch
// failed are simply absent. The caller alone mutates state afterwards.
func (c *Controller) fetchSnapshots(ctx context.Context, candidates []broker.Instrument) map[string]*market.Snapshot {
	if len(candidates) == 0 {
		return map[string]*market.Snapshot{}
	}
	type fetched struct {
		id   string
		snap *market.Snapshot
	}
	out, err := mr.MapReduce(func(source chan<- string) {
		for _, inst := range candidates {
			source <- inst.ID
		}
	}, func(id string, writer mr.Writer[fetched], cancel func(error)) {
		snap, err := c.market.Snapshot(ctx, id)
		if err != nil {
			logx.Infof("engine: snapshot for %s unavailable this cycle: %v", id, err)
			return
		}
		writer.Write(fetched{id: id, snap: snap})
	}, func(pipe <-chan fetched, writer mr.Writer[map[string]*market.Snapshot], cancel func(error)) {
		m := make(map[string]*market.Snapshot, len(candidates))
		for f := range pipe {
			m[f.id] = f.snap
		}
		writer.Write(m)
	}, mr.WithContext(ctx), mr.WithWorkers(snapshotWorkers))
	if err != nil {
		logx.Errorf("engine: snapshot fan-out failed: %v", err)
		return map[string]*market.Snapshot{}
	}
	return out
}

// reconnect probes liveness and re-establishes the session. The broker
// client bounds its own retries; a returned error means recovery is
// exhausted and the controller must stop.
func (c *Controller) reconnect(ctx context.Context) error {
	if err := c.broker.Ping(ctx); err == nil {
		return nil
	}
	logx.Infof("engine: session dead, reconnecting")
	return c.broker.Connect(ctx)
}

func (c *Controller) record(ctx context.Context, ev TradeEvent) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = c.clock()
	}
	if err := c.recorder.RecordTrade(ctx, ev); err != nil {
		logx.Errorf("engine: trade recorder failed: %v", err)
	}
}

func (c *Controller) writeJournal(rec *journal.CycleRecord) {
	if c.journal == nil {
		return
	}
	if _, err := c.journal.WriteCycle(rec); err != nil {
		logx.Errorf("engine: journal write failed: %v", err)
	}
}

func (c *Controller) saveSnapshot() {
	if c.cfg.SnapshotPath == "" {
		return
	}
	if err := c.state.SaveDaySnapshot(c.cfg.SnapshotPath); err != nil {
		logx.Errorf("engine: day snapshot save failed: %v", err)
	}
}
