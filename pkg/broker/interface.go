package broker

import (
	"context"
	"time"
)

// Provider exposes brokerage capabilities in a venue-agnostic fashion.
type Provider interface {
	// Session management.
	Connect(ctx context.Context) error
	Ping(ctx context.Context) error

	// Account information.
	GetBalance(ctx context.Context) (float64, error)

	// Market data.
	GetQuote(ctx context.Context, instrument string) (*Quote, error)
	GetCandles(ctx context.Context, instrument string, timeframe time.Duration, count int) ([]Candle, error)
	ListInstruments(ctx context.Context) ([]Instrument, error)

	// Order flow.
	SubmitOrder(ctx context.Context, req OrderRequest) (*OrderReceipt, error)
	QueryOutcome(ctx context.Context, orderID string) (*Outcome, error)
}
