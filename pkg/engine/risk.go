package engine

import (
	"sort"
	"time"

	"qxbot/pkg/broker"
)

// OpenOrder is one submitted trade awaiting settlement.
type OpenOrder struct {
	ID            string
	Instrument    string
	Direction     broker.Direction
	Amount        float64
	OpenedAt      time.Time
	Duration      time.Duration
	PercentProfit float64
	PercentLoss   float64
}

// RiskState is the single process-wide record of daily P/L, win and loss
// streaks, the open order set and the dynamically adjusted risk percentage.
// It owns every mutation of that state; the controller goroutine is its only
// writer and no method call suspends. Not safe for concurrent use.
type RiskState struct {
	cfg   *Config
	clock func() time.Time

	dailyLoss           float64
	initialDailyBalance float64
	lastResetAt         time.Time

	consecutiveWins    int
	consecutiveLosses  int
	currentRiskPercent float64

	open         map[string]*OpenOrder // order id → order
	byInstrument map[string]string     // instrument → order id
	lastTradeAt  map[string]time.Time
}

// RiskOption customises RiskState construction.
type RiskOption func(*RiskState)

// WithRiskClock overrides the time source, for tests.
func WithRiskClock(clock func() time.Time) RiskOption {
	return func(s *RiskState) { s.clock = clock }
}

// NewRiskState constructs the risk state at baseline risk with no history.
// The first MaybeDailyReset call snapshots the opening balance.
func NewRiskState(cfg *Config, opts ...RiskOption) *RiskState {
	s := &RiskState{
		cfg:                cfg,
		clock:              time.Now,
		currentRiskPercent: cfg.BasePercent,
		open:               make(map[string]*OpenOrder),
		byInstrument:       make(map[string]string),
		lastTradeAt:        make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaybeDailyReset starts a fresh accounting day when 24h have elapsed since
// the last reset, or on first run. The reset zeroes the loss accumulator and
// streaks, resnapshots the opening balance and reverts risk to baseline.
// Calling it again inside the same window mutates nothing. Reports whether a
// reset happened.
func (s *RiskState) MaybeDailyReset(balance float64) bool {
	now := s.clock()
	if !s.lastResetAt.IsZero() && now.Sub(s.lastResetAt) < 24*time.Hour {
		return false
	}
	s.dailyLoss = 0
	s.initialDailyBalance = balance
	s.consecutiveWins = 0
	s.consecutiveLosses = 0
	s.currentRiskPercent = s.cfg.BasePercent
	s.lastResetAt = now
	return true
}

// AdjustRisk recomputes the risk percentage from the streak counters: a loss
// streak shrinks it by 20%, a win streak grows it by 20%, and with neither
// streak active it reverts to baseline. The result always lands inside
// [MinPercent, MaxPercent].
func (s *RiskState) AdjustRisk() {
	switch {
	case s.consecutiveLosses >= s.cfg.LossStreakThreshold:
		s.currentRiskPercent *= 0.8
		if s.currentRiskPercent < s.cfg.MinPercent {
			s.currentRiskPercent = s.cfg.MinPercent
		}
	case s.consecutiveWins >= s.cfg.WinStreakThreshold:
		s.currentRiskPercent *= 1.2
		if s.currentRiskPercent > s.cfg.MaxPercent {
			s.currentRiskPercent = s.cfg.MaxPercent
		}
	default:
		s.currentRiskPercent = s.cfg.BasePercent
		if s.currentRiskPercent < s.cfg.MinPercent {
			s.currentRiskPercent = s.cfg.MinPercent
		}
		if s.currentRiskPercent > s.cfg.MaxPercent {
			s.currentRiskPercent = s.cfg.MaxPercent
		}
	}
}

// BreakerTripped reports whether the accumulated daily loss has reached the
// configured share of the opening balance. Evaluated fresh every cycle.
func (s *RiskState) BreakerTripped() bool {
	if s.initialDailyBalance <= 0 {
		return false
	}
	return s.dailyLoss/s.initialDailyBalance*100 >= s.cfg.DailyLossLimitPercent
}

// CooldownAllows reports whether enough time has passed since the last
// submission attempt on the instrument.
func (s *RiskState) CooldownAllows(instrument string) bool {
	last, ok := s.lastTradeAt[instrument]
	if !ok {
		return true
	}
	return s.clock().Sub(last) >= s.cfg.Cooldown
}

// NoteTradeAttempt stamps the instrument's cooldown clock. Both accepted and
// rejected submissions consume the cooldown, so a misbehaving instrument
// cannot be retried in a tight loop.
func (s *RiskState) NoteTradeAttempt(instrument string) {
	s.lastTradeAt[instrument] = s.clock()
}

// HasOpenOrder reports whether the instrument already has an order in flight.
// At most one order per instrument is ever open.
func (s *RiskState) HasOpenOrder(instrument string) bool {
	_, ok := s.byInstrument[instrument]
	return ok
}

// AddOrder inserts an accepted order into the open set. Orders without a
// broker id are untrackable and must not be added.
func (s *RiskState) AddOrder(o OpenOrder) {
	if o.ID == "" {
		return
	}
	cp := o
	s.open[o.ID] = &cp
	s.byInstrument[o.Instrument] = o.ID
}

// OpenOrders returns a stable-ordered copy of the open set.
func (s *RiskState) OpenOrders() []OpenOrder {
	out := make([]OpenOrder, 0, len(s.open))
	for _, o := range s.open {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].OpenedAt.Before(out[j].OpenedAt)
	})
	return out
}

// SettleWin books a winning order: the payout share of the stake reduces the
// daily loss, the win streak grows and the loss streak resets. Settling an
// order that is no longer tracked is a no-op, so outcomes are never counted
// twice. Returns the booked profit.
func (s *RiskState) SettleWin(orderID string) (float64, bool) {
	o, ok := s.open[orderID]
	if !ok {
		return 0, false
	}
	profit := o.Amount * o.PercentProfit / 100
	s.dailyLoss -= profit
	s.consecutiveWins++
	s.consecutiveLosses = 0
	s.remove(o)
	return profit, true
}

// SettleLoss books a losing order: the full stake adds to the daily loss, the
// loss streak grows and the win streak resets.
func (s *RiskState) SettleLoss(orderID string) (float64, bool) {
	o, ok := s.open[orderID]
	if !ok {
		return 0, false
	}
	s.dailyLoss += o.Amount
	s.consecutiveLosses++
	s.consecutiveWins = 0
	s.remove(o)
	return o.Amount, true
}

// SettleDraw removes a drawn order. P/L and both streaks stay untouched.
func (s *RiskState) SettleDraw(orderID string) bool {
	o, ok := s.open[orderID]
	if !ok {
		return false
	}
	s.remove(o)
	return true
}

// Forget drops an order whose outcome is permanently unknowable, without any
// P/L or streak update.
func (s *RiskState) Forget(orderID string) bool {
	o, ok := s.open[orderID]
	if !ok {
		return false
	}
	s.remove(o)
	return true
}

func (s *RiskState) remove(o *OpenOrder) {
	delete(s.open, o.ID)
	if s.byInstrument[o.Instrument] == o.ID {
		delete(s.byInstrument, o.Instrument)
	}
}

// RiskPercent returns the current risk percentage used for sizing.
func (s *RiskState) RiskPercent() float64 { return s.currentRiskPercent }

// DailyLoss returns the signed daily loss accumulator.
func (s *RiskState) DailyLoss() float64 { return s.dailyLoss }

// InitialDailyBalance returns the balance snapshot taken at the last reset.
func (s *RiskState) InitialDailyBalance() float64 { return s.initialDailyBalance }

// Streaks returns the consecutive win and loss counters.
func (s *RiskState) Streaks() (wins, losses int) {
	return s.consecutiveWins, s.consecutiveLosses
}

// LastResetAt returns the time of the last daily reset, zero before first run.
func (s *RiskState) LastResetAt() time.Time { return s.lastResetAt }
