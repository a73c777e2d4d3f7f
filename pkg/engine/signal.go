package engine

import (
	"qxbot/pkg/broker"
	"qxbot/pkg/market"
)

// Signal is the outcome of evaluating one instrument snapshot.
type Signal int

const (
	SignalNone Signal = iota
	SignalCall
	SignalPut
)

// String implements fmt.Stringer.
func (s Signal) String() string {
	switch s {
	case SignalCall:
		return "CALL"
	case SignalPut:
		return "PUT"
	default:
		return "NONE"
	}
}

// Direction maps a non-empty signal onto the broker wire direction.
func (s Signal) Direction() broker.Direction {
	if s == SignalPut {
		return broker.DirectionPut
	}
	return broker.DirectionCall
}

// SnapshotComplete reports whether snap carries every input the evaluator
// reads: price, RSI, SMA and ATR. Incomplete snapshots must be skipped as
// lacking data, not treated as a neutral reading.
func SnapshotComplete(snap *market.Snapshot) bool {
	if snap == nil {
		return false
	}
	return snap.Price.Valid &&
		snap.Indicator(market.IndicatorRSI).Valid &&
		snap.Indicator(market.IndicatorSMA).Valid &&
		snap.Indicator(market.IndicatorATR).Valid
}

// EvaluateSignal decides whether a snapshot justifies a directional trade.
// Price, RSI, SMA and ATR must all be available; any gap yields SignalNone.
// A call fires when RSI sits under the buy threshold with price above the
// SMA; a put fires when RSI sits over the sell threshold while ATR stays
// under the volatility cap. Call wins when both would match. Pure function.
func EvaluateSignal(cfg *Config, snap *market.Snapshot) Signal {
	if !SnapshotComplete(snap) {
		return SignalNone
	}
	price := snap.Price
	rsi := snap.Indicator(market.IndicatorRSI)
	sma := snap.Indicator(market.IndicatorSMA)
	atr := snap.Indicator(market.IndicatorATR)

	if rsi.Float < cfg.RSIBuyThreshold && price.Float > sma.Float {
		return SignalCall
	}
	if rsi.Float > cfg.RSISellThreshold && atr.Float < cfg.ATRMax {
		return SignalPut
	}
	return SignalNone
}
