package qxapi

// Wire payloads for the venue's JSON API. Field names follow the venue
// contract; conversion into the normalized broker types happens in client.go.

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Lang     string `json:"lang,omitempty"`
	Demo     bool   `json:"demo"`
}

type loginResponse struct {
	Token string `json:"token"`
}

type balanceResponse struct {
	Balance  float64 `json:"balance"`
	Currency string  `json:"currency"`
}

type instrumentPayload struct {
	Symbol string  `json:"symbol"`
	Name   string  `json:"name"`
	Payout float64 `json:"payout"`
	IsOpen bool    `json:"isOpen"`
}

type quotePayload struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	TsMs   int64   `json:"timestamp"`
}

type candlePayload struct {
	TsMs  int64   `json:"timestamp"`
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

type orderPayload struct {
	Asset       string  `json:"asset"`
	Direction   string  `json:"direction"`
	Amount      float64 `json:"amount"`
	DurationSec int     `json:"duration"`
}

type orderResponsePayload struct {
	ID            string   `json:"id"`
	OpenTsMs      int64    `json:"openTimestamp"`
	PercentProfit float64  `json:"percentProfit"`
	PercentLoss   float64  `json:"percentLoss"`
	Balance       *float64 `json:"balance,omitempty"`
}

type outcomePayload struct {
	ID     string  `json:"id"`
	Status string  `json:"status"`
	Profit float64 `json:"profit"`
}

type apiErrorPayload struct {
	Error string `json:"error"`
}
