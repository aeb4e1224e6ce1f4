package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is an immutable record of a completed fill. Once created it is never
// modified; trade history is append-only.
type Trade struct {
	OrderID    string    `yaml:"order_id" json:"order_id"`
	Symbol     string    `yaml:"symbol" json:"symbol"`
	Side       Side      `yaml:"side" json:"side"`
	Quantity   float64   `yaml:"quantity" json:"quantity"`
	Price      float64   `yaml:"price" json:"price"`
	Fee        float64   `yaml:"fee" json:"fee"`
	ExecutedAt time.Time `yaml:"executed_at" json:"executed_at"`
}

// Notional returns quantity * price computed with decimal math.
func (t Trade) Notional() float64 {
	notional, _ := decimal.NewFromFloat(t.Quantity).Mul(decimal.NewFromFloat(t.Price)).Float64()

	return notional
}

// OrderFilter filters order queries. An empty symbol means no filter.
type OrderFilter struct {
	Symbol string `yaml:"symbol" json:"symbol"`
}

// PositionFilter filters position queries. An empty symbol means no filter.
type PositionFilter struct {
	Symbol string `yaml:"symbol" json:"symbol"`
}

// TradeFilter is used to filter trades when querying trade history.
type TradeFilter struct {
	// Symbol filters trades by symbol (empty string means no filter)
	Symbol string `yaml:"symbol" json:"symbol"`
	// StartTime filters trades executed after this time (zero time means no filter)
	StartTime time.Time `yaml:"start_time" json:"start_time"`
	// EndTime filters trades executed before this time (zero time means no filter)
	EndTime time.Time `yaml:"end_time" json:"end_time"`
	// Limit limits the number of trades returned (0 means no limit)
	Limit int `yaml:"limit" json:"limit"`
}

// Matches reports whether the trade passes the filter.
func (f TradeFilter) Matches(trade Trade) bool {
	if f.Symbol != "" && trade.Symbol != f.Symbol {
		return false
	}

	if !f.StartTime.IsZero() && trade.ExecutedAt.Before(f.StartTime) {
		return false
	}

	if !f.EndTime.IsZero() && trade.ExecutedAt.After(f.EndTime) {
		return false
	}

	return true
}
