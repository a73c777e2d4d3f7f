package market

import (
	"context"
	"math"
	"time"
)

// Indicator names recognised by the snapshot provider.
const (
	IndicatorRSI  = "RSI"
	IndicatorSMA  = "SMA"
	IndicatorEMA  = "EMA"
	IndicatorATR  = "ATR"
	IndicatorMACD = "MACD"
)

// Value is an optional numeric observation. Unavailability is a first-class
// state: consumers must check Valid and never substitute a default.
type Value struct {
	Float float64
	Valid bool
}

// Val wraps a concrete observation. NaN and infinities collapse to the
// unavailable state so they cannot leak into threshold comparisons.
func Val(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}
	}
	return Value{Float: f, Valid: true}
}

// Unavailable is the missing-observation state.
func Unavailable() Value { return Value{} }

// Snapshot is an immutable per-cycle view of one instrument: the latest price
// plus every configured indicator, each independently optional.
type Snapshot struct {
	Instrument string
	Price      Value
	At         time.Time
	Indicators map[string]Value
}

// Indicator returns the named indicator value, unavailable when absent.
func (s *Snapshot) Indicator(name string) Value {
	if s == nil || s.Indicators == nil {
		return Unavailable()
	}
	v, ok := s.Indicators[name]
	if !ok {
		return Unavailable()
	}
	return v
}

// Provider assembles market snapshots for instruments.
type Provider interface {
	Snapshot(ctx context.Context, instrument string) (*Snapshot, error)
}
