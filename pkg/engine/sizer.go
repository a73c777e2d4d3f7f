package engine

import (
	"errors"
	"math"
)

// ErrNotSizeable marks a balance no position can be sized from. Callers skip
// the trade; a zero or negative amount is never submitted.
var ErrNotSizeable = errors.New("engine: balance not sizeable")

// SizeOrder converts the account balance and the current risk percentage
// into a stake, clamped to the configured amount bounds and rounded to the
// cent.
func SizeOrder(cfg *Config, balance, riskPercent float64) (float64, error) {
	if balance <= 0 || math.IsNaN(balance) || math.IsInf(balance, 0) {
		return 0, ErrNotSizeable
	}
	amount := riskPercent / 100 * balance
	if amount < cfg.MinAmount {
		amount = cfg.MinAmount
	}
	if amount > cfg.MaxAmount {
		amount = cfg.MaxAmount
	}
	return math.Round(amount*100) / 100, nil
}
