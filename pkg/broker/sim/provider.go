package sim

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"context"

	"qxbot/pkg/broker"
)

const (
	defaultInitialBalance = 10000.0
	defaultPayoutPercent  = 85.0
)

// Provider is a paper broker that keeps balance, quotes and outstanding
// options in-memory. Options settle deterministically at expiry by comparing
// the then-current quote against the entry price, which makes the provider
// usable both as a dry-run venue and as a test double.
type Provider struct {
	mu sync.Mutex

	nextOrderID int64

	balance     float64
	instruments map[string]broker.Instrument
	quotes      map[string]float64
	candles     map[string][]broker.Candle
	orders      map[string]*simOrder

	nowFn func() time.Time
}

type simOrder struct {
	req      broker.OrderRequest
	entry    float64
	openedAt time.Time
	payout   float64
	settled  *broker.Outcome
}

// Option customises the simulator.
type Option func(*Provider)

// WithBalance overrides the starting balance.
func WithBalance(balance float64) Option {
	return func(p *Provider) {
		if balance > 0 {
			p.balance = balance
		}
	}
}

// WithClock injects a deterministic time source.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) {
		if now != nil {
			p.nowFn = now
		}
	}
}

// New constructs a simulator with default balance.
func New(opts ...Option) *Provider {
	p := &Provider{
		nextOrderID: 1,
		balance:     defaultInitialBalance,
		instruments: make(map[string]broker.Instrument),
		quotes:      make(map[string]float64),
		candles:     make(map[string][]broker.Candle),
		orders:      make(map[string]*simOrder),
		nowFn:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func init() {
	broker.RegisterProvider("sim", func(name string, cfg *broker.ProviderConfig) (broker.Provider, error) {
		return New(), nil
	})
}

func canonical(instrument string) string {
	return strings.ToUpper(strings.TrimSpace(instrument))
}

// AddInstrument registers a tradable instrument with a payout percentage.
func (p *Provider) AddInstrument(inst broker.Instrument) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if inst.PayoutPercent <= 0 {
		inst.PayoutPercent = defaultPayoutPercent
	}
	p.instruments[canonical(inst.ID)] = inst
}

// SetQuote updates the reference price used for fills and settlement.
func (p *Provider) SetQuote(instrument string, price float64) error {
	if price <= 0 {
		return fmt.Errorf("sim: quote must be positive")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.quotes[canonical(instrument)] = price
	return nil
}

// SetCandles seeds the candle history served by GetCandles.
func (p *Provider) SetCandles(instrument string, candles []broker.Candle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]broker.Candle, len(candles))
	copy(cp, candles)
	p.candles[canonical(instrument)] = cp
}

// Connect is a no-op for the simulator.
func (p *Provider) Connect(ctx context.Context) error { return nil }

// Ping is a no-op for the simulator.
func (p *Provider) Ping(ctx context.Context) error { return nil }

// GetBalance returns the current paper balance.
func (p *Provider) GetBalance(ctx context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balance, nil
}

// GetQuote serves the latest seeded price.
func (p *Provider) GetQuote(ctx context.Context, instrument string) (*broker.Quote, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := canonical(instrument)
	px, ok := p.quotes[c]
	if !ok {
		return nil, broker.NewError(broker.KindUnavailable, "get quote", fmt.Errorf("no quote for %s", c))
	}
	return &broker.Quote{Instrument: c, Price: px, At: p.nowFn()}, nil
}

// GetCandles serves the most recent count candles from the seeded history.
func (p *Provider) GetCandles(ctx context.Context, instrument string, timeframe time.Duration, count int) ([]broker.Candle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := canonical(instrument)
	history, ok := p.candles[c]
	if !ok || len(history) == 0 {
		return nil, broker.NewError(broker.KindUnavailable, "get candles", fmt.Errorf("no candles for %s", c))
	}
	if count <= 0 || count > len(history) {
		count = len(history)
	}
	out := make([]broker.Candle, count)
	copy(out, history[len(history)-count:])
	return out, nil
}

// ListInstruments returns every registered instrument in insertion-stable form.
func (p *Provider) ListInstruments(ctx context.Context) ([]broker.Instrument, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]broker.Instrument, 0, len(p.instruments))
	for _, inst := range p.instruments {
		out = append(out, inst)
	}
	return out, nil
}

// SubmitOrder debits the stake and opens an option that expires after the
// requested duration.
func (p *Provider) SubmitOrder(ctx context.Context, req broker.OrderRequest) (*broker.OrderReceipt, error) {
	if req.Amount <= 0 {
		return nil, broker.NewError(broker.KindRejected, "submit order", fmt.Errorf("amount must be positive"))
	}
	if req.Direction != broker.DirectionCall && req.Direction != broker.DirectionPut {
		return nil, broker.NewError(broker.KindRejected, "submit order", fmt.Errorf("unknown direction %q", req.Direction))
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	c := canonical(req.Instrument)
	inst, ok := p.instruments[c]
	if !ok {
		return nil, broker.NewError(broker.KindRejected, "submit order", fmt.Errorf("unknown instrument %s", c))
	}
	px, ok := p.quotes[c]
	if !ok {
		return nil, broker.NewError(broker.KindUnavailable, "submit order", fmt.Errorf("no quote for %s", c))
	}
	if req.Amount > p.balance {
		return nil, broker.NewError(broker.KindRejected, "submit order", fmt.Errorf("insufficient balance"))
	}

	id := fmt.Sprintf("sim-%d", p.nextOrderID)
	p.nextOrderID++
	now := p.nowFn()
	p.balance -= req.Amount
	p.orders[id] = &simOrder{
		req:      req,
		entry:    px,
		openedAt: now,
		payout:   inst.PayoutPercent,
	}

	return &broker.OrderReceipt{
		OrderID:             id,
		OpenedAt:            now,
		PercentProfit:       inst.PayoutPercent,
		PercentLoss:         100,
		PostTradeBalance:    p.balance,
		HasPostTradeBalance: true,
	}, nil
}

// QueryOutcome reports OPEN until expiry, then settles the option against the
// latest quote exactly once and credits any payout.
func (p *Provider) QueryOutcome(ctx context.Context, orderID string) (*broker.Outcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ord, ok := p.orders[orderID]
	if !ok {
		return nil, broker.NewError(broker.KindMalformed, "query outcome", fmt.Errorf("unknown order %s", orderID))
	}
	if ord.settled != nil {
		return ord.settled, nil
	}
	now := p.nowFn()
	if now.Before(ord.openedAt.Add(ord.req.Duration)) {
		return &broker.Outcome{OrderID: orderID, Status: broker.OutcomeOpen}, nil
	}

	exit, ok := p.quotes[canonical(ord.req.Instrument)]
	if !ok {
		exit = ord.entry
	}

	outcome := &broker.Outcome{OrderID: orderID}
	switch {
	case exit == ord.entry:
		outcome.Status = broker.OutcomeDraw
		p.balance += ord.req.Amount
	case (ord.req.Direction == broker.DirectionCall) == (exit > ord.entry):
		outcome.Status = broker.OutcomeWin
		outcome.ProfitAmount = ord.req.Amount * ord.payout / 100
		p.balance += ord.req.Amount + outcome.ProfitAmount
	default:
		outcome.Status = broker.OutcomeLoss
	}
	ord.settled = outcome
	return outcome, nil
}
