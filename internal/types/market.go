package types

import (
	"time"

	"github.com/moznion/go-optional"
	"github.com/quantarc/quantarc/pkg/errors"
)

// Granularity is a fixed candle aggregation interval.
type Granularity string

const (
	Granularity1m  Granularity = "1m"
	Granularity5m  Granularity = "5m"
	Granularity15m Granularity = "15m"
	Granularity30m Granularity = "30m"
	Granularity1h  Granularity = "1h"
	Granularity4h  Granularity = "4h"
	Granularity1d  Granularity = "1d"
)

var granularityDurations = map[Granularity]time.Duration{
	Granularity1m:  time.Minute,
	Granularity5m:  5 * time.Minute,
	Granularity15m: 15 * time.Minute,
	Granularity30m: 30 * time.Minute,
	Granularity1h:  time.Hour,
	Granularity4h:  4 * time.Hour,
	Granularity1d:  24 * time.Hour,
}

// ParseGranularity parses a granularity string like "1m" or "1h".
func ParseGranularity(s string) (Granularity, error) {
	g := Granularity(s)
	if _, ok := granularityDurations[g]; !ok {
		return "", errors.Newf(errors.ErrCodeInvalidParameter, "unknown granularity: %s", s)
	}

	return g, nil
}

// Duration returns the bar length of the granularity.
func (g Granularity) Duration() time.Duration {
	return granularityDurations[g]
}

// Candle is an aggregated OHLCV summary over a fixed time granularity.
// Candles are read-only snapshots, never owned by order or position state.
type Candle struct {
	Symbol   string    `yaml:"symbol" json:"symbol" csv:"symbol"`
	OpenTime time.Time `yaml:"open_time" json:"open_time" csv:"open_time"`
	Open     float64   `yaml:"open" json:"open" csv:"open"`
	High     float64   `yaml:"high" json:"high" csv:"high"`
	Low      float64   `yaml:"low" json:"low" csv:"low"`
	Close    float64   `yaml:"close" json:"close" csv:"close"`
	Volume   float64   `yaml:"volume" json:"volume" csv:"volume"`
}

// Crosses reports whether the candle's high/low range includes price.
func (c Candle) Crosses(price float64) bool {
	return price >= c.Low && price <= c.High
}

// PriceLevel is one side entry of an order book.
type PriceLevel struct {
	Price float64 `yaml:"price" json:"price"`
	Size  float64 `yaml:"size" json:"size"`
}

// OrderBook is a timestamped snapshot of bid/ask levels. Bids are ordered
// best (highest) first, asks best (lowest) first.
type OrderBook struct {
	Symbol    string       `yaml:"symbol" json:"symbol"`
	Bids      []PriceLevel `yaml:"bids" json:"bids"`
	Asks      []PriceLevel `yaml:"asks" json:"asks"`
	Timestamp time.Time    `yaml:"timestamp" json:"timestamp"`
}

// BestBid returns the highest bid level, if any.
func (b OrderBook) BestBid() optional.Option[PriceLevel] {
	if len(b.Bids) == 0 {
		return optional.None[PriceLevel]()
	}

	return optional.Some(b.Bids[0])
}

// BestAsk returns the lowest ask level, if any.
func (b OrderBook) BestAsk() optional.Option[PriceLevel] {
	if len(b.Asks) == 0 {
		return optional.None[PriceLevel]()
	}

	return optional.Some(b.Asks[0])
}
