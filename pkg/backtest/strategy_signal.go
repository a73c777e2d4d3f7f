package backtest

import (
	"context"

	"qxbot/pkg/engine"
	"qxbot/pkg/market"
)

// SignalStrategy decides with the live engine's signal rules, so a backtest
// exercises exactly the thresholds a session would trade on.
type SignalStrategy struct {
	Config *engine.Config
}

// Decide implements Strategy.
func (s *SignalStrategy) Decide(ctx context.Context, snap *market.Snapshot) (engine.Signal, error) {
	return engine.EvaluateSignal(s.Config, snap), nil
}
