package engine

import (
	"context"

	"github.com/moznion/go-optional"
	"github.com/quantarc/quantarc/internal/types"
)

// MarketState is the snapshot a strategy sees for one step.
type MarketState struct {
	Candle    types.Candle
	Positions []types.Position
	NAV       float64
}

// OrderIntent is a strategy's request to trade, before the engine assigns
// identity and lifecycle state.
type OrderIntent struct {
	Symbol       string
	Side         types.Side
	Type         types.OrderType
	Quantity     float64
	LimitPrice   optional.Option[float64]
	TriggerPrice optional.Option[float64]
	TimeInForce  types.TimeInForce
}

// Order converts the intent into a submittable order.
func (i OrderIntent) Order() types.Order {
	return types.Order{
		Symbol:       i.Symbol,
		Side:         i.Side,
		Type:         i.Type,
		Quantity:     i.Quantity,
		LimitPrice:   i.LimitPrice,
		TriggerPrice: i.TriggerPrice,
		TimeInForce:  i.TimeInForce,
	}
}

// Strategy is the decision boundary. Implementations see market state and
// answer with order intents; execution, serialization, and venue details
// stay on the engine side.
type Strategy interface {
	// Name identifies the strategy in logs.
	Name() string
	// GenerateSignal returns the orders to place for this step. An error
	// aborts the run.
	GenerateSignal(ctx context.Context, state MarketState) ([]OrderIntent, error)
}
