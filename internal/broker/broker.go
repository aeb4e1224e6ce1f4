package broker

import (
	"context"

	"github.com/quantarc/quantarc/internal/types"
)

// Broker is the capability contract every venue implementation must satisfy
// to be usable by the execution engine. Implementations exist for the
// simulated replay venue and for each live venue; strategies and the router
// never see which one is behind the interface.
type Broker interface {
	// GetNAV returns the total account value (balance plus unrealized P&L).
	// Fails with ErrCodeUnavailable if account state cannot be determined.
	GetNAV(ctx context.Context) (float64, error)
	// GetBalance returns the current cash balance.
	GetBalance(ctx context.Context) (float64, error)
	// PlaceOrder validates and submits an order, returning the engine order id.
	// On acceptance the order enters OrderStatusPending.
	PlaceOrder(ctx context.Context, order types.Order) (string, error)
	// CancelOrder cancels an open order. Cancelling an already-terminal order
	// that was cancelled is a success; other terminal states fail with
	// ErrCodeAlreadyTerminal, unknown ids with ErrCodeNotFound.
	CancelOrder(ctx context.Context, orderID string) error
	// GetOrders returns orders matching the filter. Each call is a fresh
	// query, not a live cursor.
	GetOrders(ctx context.Context, filter types.OrderFilter) ([]types.Order, error)
	// GetPositions returns positions matching the filter.
	GetPositions(ctx context.Context, filter types.PositionFilter) ([]types.Position, error)
	// GetTrades returns executed trades matching the filter.
	GetTrades(ctx context.Context, filter types.TradeFilter) ([]types.Trade, error)
	// GetCandles returns up to count candles for the instrument, ascending by
	// open time and deduplicated. Fails with ErrCodeUnsupportedGranularity if
	// the venue cannot serve that bar size.
	GetCandles(ctx context.Context, symbol string, granularity types.Granularity, count int) ([]types.Candle, error)
	// GetOrderBook returns a best-effort timestamped book snapshot.
	GetOrderBook(ctx context.Context, symbol string) (types.OrderBook, error)
	// GetPublicTrades returns a best-effort snapshot of recent venue-wide trades.
	GetPublicTrades(ctx context.Context, symbol string) ([]types.Trade, error)
	// Tradable reports whether the venue can trade the given symbol or alias.
	Tradable(symbol string) bool
	// Close releases venue resources. Idempotent.
	Close() error
}
