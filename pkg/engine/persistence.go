package engine

import (
	"context"
	"time"

	"qxbot/pkg/broker"
)

// TradeEventType distinguishes the lifecycle hooks emitted to recorders.
type TradeEventType string

const (
	// TradeEventSubmitted marks an accepted order entering the open set.
	TradeEventSubmitted TradeEventType = "submitted"
	// TradeEventSettled marks a terminal win, loss or draw outcome.
	TradeEventSettled TradeEventType = "settled"
	// TradeEventDropped marks an order removed because its outcome could not
	// be determined.
	TradeEventDropped TradeEventType = "dropped"
	// TradeEventSignalOnly marks a signal the engine would have traded on
	// while trading is disabled.
	TradeEventSignalOnly TradeEventType = "signal_only"
)

// TradeEvent captures the data persistence layers mirror per lifecycle hook.
type TradeEvent struct {
	Event      TradeEventType
	Order      OpenOrder
	Status     broker.OutcomeStatus
	ProfitLoss float64 // signed: positive on win, negative on loss
	Balance    float64 // running balance after the event, when known

	// Risk context at the moment the event was booked, for settled and
	// dropped events.
	DailyLoss         float64
	RiskPercent       float64
	ConsecutiveWins   int
	ConsecutiveLosses int

	OccurredAt time.Time
}

// TradeRecorder receives trade lifecycle events for DB or cache mirroring.
// Recorder failures are logged and never block the trading loop.
type TradeRecorder interface {
	RecordTrade(ctx context.Context, ev TradeEvent) error
}

type noopTradeRecorder struct{}

func (noopTradeRecorder) RecordTrade(ctx context.Context, ev TradeEvent) error { return nil }
