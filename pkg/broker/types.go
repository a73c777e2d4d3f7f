package broker

import "time"

// Core binary-options domain types shared across broker implementations.
// These structures normalise venue payloads so the engine stays agnostic to
// the concrete brokerage protocol.

// Direction is the side of a binary option position.
type Direction string

const (
	// DirectionCall bets that price rises by expiry.
	DirectionCall Direction = "call"
	// DirectionPut bets that price falls by expiry.
	DirectionPut Direction = "put"
)

// Instrument describes one tradable asset as reported by the venue listing.
type Instrument struct {
	ID            string  `json:"id"`
	Name          string  `json:"name,omitempty"`
	PayoutPercent float64 `json:"payoutPercent"` // profit share of stake on a win
	IsOTC         bool    `json:"isOtc"`
	IsOpen        bool    `json:"isOpen"`
}

// Quote is a realtime price observation for an instrument.
type Quote struct {
	Instrument string    `json:"instrument"`
	Price      float64   `json:"price"`
	At         time.Time `json:"at"`
}

// Candle is one OHLC bar used for indicator computation.
type Candle struct {
	OpenTime time.Time `json:"openTime"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
}

// OrderRequest describes a trade submission.
type OrderRequest struct {
	Instrument string        `json:"instrument"`
	Direction  Direction     `json:"direction"`
	Amount     float64       `json:"amount"`
	Duration   time.Duration `json:"-"`
}

// OrderReceipt is returned when the venue accepts an order. OrderID may be
// empty when the venue acknowledged the request without assigning an id; such
// orders cannot be tracked and callers must discard them.
type OrderReceipt struct {
	OrderID       string    `json:"orderId"`
	OpenedAt      time.Time `json:"openedAt"`
	PercentProfit float64   `json:"percentProfit"`
	PercentLoss   float64   `json:"percentLoss"`

	// PostTradeBalance carries the venue-reported balance after the stake was
	// debited. Valid only when HasPostTradeBalance is set; venues that omit it
	// leave the caller to decrement locally.
	PostTradeBalance    float64 `json:"postTradeBalance,omitempty"`
	HasPostTradeBalance bool    `json:"-"`
}

// OutcomeStatus is the settlement state of a submitted order.
type OutcomeStatus string

const (
	// OutcomeOpen means the option has not expired yet.
	OutcomeOpen OutcomeStatus = "open"
	// OutcomeWin means the option settled in the money.
	OutcomeWin OutcomeStatus = "win"
	// OutcomeLoss means the option settled out of the money.
	OutcomeLoss OutcomeStatus = "loss"
	// OutcomeDraw means the option settled at the entry price; stake returned.
	OutcomeDraw OutcomeStatus = "draw"
)

// Outcome reports the broker-side settlement of an order.
type Outcome struct {
	OrderID      string        `json:"orderId"`
	Status       OutcomeStatus `json:"status"`
	ProfitAmount float64       `json:"profitAmount"`
}
