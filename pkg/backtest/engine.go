package backtest

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"qxbot/pkg/engine"
	"qxbot/pkg/market"
)

// Feeder yields sequential market snapshots for an instrument.
type Feeder interface {
	Next(ctx context.Context, instrument string) (*market.Snapshot, bool, error)
}

// Strategy maps a snapshot into a trade signal.
type Strategy interface {
	Decide(ctx context.Context, snap *market.Snapshot) (engine.Signal, error)
}

// Engine replays a snapshot series through a Strategy and settles the
// resulting binary bets against later prices, simulating a fixed-payout
// session.
type Engine struct {
	Feeder     Feeder
	Strategy   Strategy
	Instrument string

	InitialBalance float64 // defaults to 1000 if zero
	RiskPercent    float64 // stake share of the running balance, defaults to 5
	PayoutPercent  float64 // profit share of stake on a win, defaults to 85
	ExpirySteps    int     // snapshots between entry and settlement, defaults to 2
	MinAmount      float64 // defaults to 1
	MaxAmount      float64 // defaults to 5000

	// Optional: write a JSON report to this path.
	OutputPath string
}

// Result summarises a simulation run.
type Result struct {
	Steps        int         `json:"steps"`
	BetsPlaced   int         `json:"bets_placed"`
	Wins         int         `json:"wins"`
	Losses       int         `json:"losses"`
	Draws        int         `json:"draws"`
	Voided       int         `json:"voided"` // still open when the series ended
	WinRate      float64     `json:"win_rate"`
	NetPNL       float64     `json:"net_pnl"`
	FinalBalance float64     `json:"final_balance"`
	MaxDDPct     float64     `json:"max_dd_pct"`
	Sharpe       float64     `json:"sharpe"`
	EquityCurve  []float64   `json:"equity_curve"`
	Details      []BetDetail `json:"details"`
}

// BetDetail records one simulated bet for analysis.
type BetDetail struct {
	OpenStep   int     `json:"open_step"`
	SettleStep int     `json:"settle_step,omitempty"`
	Direction  string  `json:"direction"`
	Stake      float64 `json:"stake"`
	EntryPrice float64 `json:"entry_price"`
	ExitPrice  float64 `json:"exit_price,omitempty"`
	Outcome    string  `json:"outcome"`
	PNL        float64 `json:"pnl"`
}

type openBet struct {
	detail     BetDetail
	direction  engine.Signal
	settleStep int
}

// Run drives the simulation to the end of the feeder series.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	if e.Feeder == nil || e.Strategy == nil || e.Instrument == "" {
		return nil, fmt.Errorf("backtest: engine not fully configured")
	}
	balance := e.InitialBalance
	if balance <= 0 {
		balance = 1000
	}
	risk := e.RiskPercent
	if risk <= 0 {
		risk = 5
	}
	payout := e.PayoutPercent
	if payout <= 0 {
		payout = 85
	}
	expiry := e.ExpirySteps
	if expiry <= 0 {
		expiry = 2
	}
	sizing := &engine.Config{MinAmount: e.MinAmount, MaxAmount: e.MaxAmount}
	if sizing.MinAmount <= 0 {
		sizing.MinAmount = 1
	}
	if sizing.MaxAmount <= 0 {
		sizing.MaxAmount = 5000
	}

	res := &Result{}
	var open *openBet

	for {
		snap, ok, err := e.Feeder.Next(ctx, e.Instrument)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		res.Steps++
		if !snap.Price.Valid {
			res.EquityCurve = append(res.EquityCurve, balance)
			continue
		}
		px := snap.Price.Float

		// Settle a due bet before deciding on this step.
		if open != nil && res.Steps >= open.settleStep {
			balance += settle(res, open, px, payout)
			open = nil
		}

		if open == nil {
			sig, err := e.Strategy.Decide(ctx, snap)
			if err != nil {
				return nil, err
			}
			if sig != engine.SignalNone {
				stake, err := engine.SizeOrder(sizing, balance, risk)
				if err == nil {
					balance -= stake
					open = &openBet{
						direction:  sig,
						settleStep: res.Steps + expiry,
						detail: BetDetail{
							OpenStep:   res.Steps,
							Direction:  sig.String(),
							Stake:      stake,
							EntryPrice: px,
						},
					}
					res.BetsPlaced++
				}
			}
		}

		equity := balance
		if open != nil {
			equity += open.detail.Stake
		}
		res.EquityCurve = append(res.EquityCurve, equity)
	}

	// A bet the series ended on is voided with the stake returned.
	if open != nil {
		balance += open.detail.Stake
		open.detail.Outcome = "void"
		res.Details = append(res.Details, open.detail)
		res.Voided++
	}

	res.FinalBalance = balance
	initial := e.InitialBalance
	if initial <= 0 {
		initial = 1000
	}
	res.NetPNL = balance - initial
	settledBets := res.Wins + res.Losses + res.Draws
	if settledBets > 0 {
		res.WinRate = float64(res.Wins) / float64(settledBets)
	}
	res.MaxDDPct = maxDrawdownPct(append([]float64{initial}, res.EquityCurve...))
	res.Sharpe = sharpe(res.EquityCurve)

	if e.OutputPath != "" {
		if err := writeReport(e.OutputPath, res); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// settle books one expired bet and returns the cash credited back.
func settle(res *Result, bet *openBet, exitPx, payout float64) float64 {
	d := &bet.detail
	d.SettleStep = res.Steps
	d.ExitPrice = exitPx

	won := (bet.direction == engine.SignalCall) == (exitPx > d.EntryPrice)
	switch {
	case exitPx == d.EntryPrice:
		d.Outcome = "draw"
		d.PNL = 0
		res.Draws++
		res.Details = append(res.Details, *d)
		return d.Stake
	case won:
		d.Outcome = "win"
		d.PNL = d.Stake * payout / 100
		res.Wins++
		res.Details = append(res.Details, *d)
		return d.Stake + d.PNL
	default:
		d.Outcome = "loss"
		d.PNL = -d.Stake
		res.Losses++
		res.Details = append(res.Details, *d)
		return 0
	}
}

func maxDrawdownPct(series []float64) float64 {
	peak := series[0]
	mdd := 0.0
	for _, v := range series {
		if v > peak {
			peak = v
		}
		dd := (peak - v) / peak
		if dd > mdd {
			mdd = dd
		}
	}
	return mdd * 100
}

func sharpe(equity []float64) float64 {
	if len(equity) < 2 {
		return 0
	}
	rets := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		if equity[i-1] == 0 {
			continue
		}
		rets = append(rets, equity[i]/equity[i-1]-1)
	}
	if len(rets) == 0 {
		return 0
	}
	m := 0.0
	for _, r := range rets {
		m += r
	}
	m /= float64(len(rets))
	v := 0.0
	for _, r := range rets {
		d := r - m
		v += d * d
	}
	v /= float64(len(rets))
	sd := math.Sqrt(v)
	if sd == 0 {
		return 0
	}
	return m / sd * math.Sqrt(float64(len(rets)))
}

func writeReport(path string, r *Result) error {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}
