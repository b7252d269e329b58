package domain

import "time"

// Ticker is the latest traded price for a symbol.
type Ticker struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Timestamp int64   `json:"timestamp"`
}

// Balance is one asset line of the account.
type Balance struct {
	Asset  string  `json:"asset"`
	Free   float64 `json:"free"`
	Locked float64 `json:"locked"`
}

// TradeTick is a single public trade from the market-data stream.
type TradeTick struct {
	Symbol       string
	Price        float64
	Quantity     float64
	IsBuyerMaker bool
	Time         time.Time
}
