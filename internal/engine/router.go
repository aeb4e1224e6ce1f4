// Package engine routes strategy order flow to a venue. The router serializes
// mutations per instrument, gates orders on venue tradability, and emits
// lifecycle notifications without ever letting a notifier interfere with
// order handling.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/quantarc/quantarc/internal/broker"
	"github.com/quantarc/quantarc/internal/logger"
	"github.com/quantarc/quantarc/internal/types"
	"github.com/quantarc/quantarc/pkg/errors"
	"go.uber.org/zap"
)

// Router wraps a venue with per-instrument serialization and notifications.
// It implements the venue contract itself, so strategies and tooling can use
// a routed venue anywhere a bare one is expected. Reads pass straight
// through; PlaceOrder and CancelOrder for the same instrument never run
// concurrently.
type Router struct {
	broker   broker.Broker
	notifier Notifier
	logger   *logger.Logger

	mu           sync.Mutex
	symbolLocks  map[string]*sync.Mutex
	orderSymbols map[string]string
}

// NewRouter creates a router in front of the given venue. notifier may be nil.
func NewRouter(venue broker.Broker, notifier Notifier, log *logger.Logger) *Router {
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Router{
		broker:       venue,
		notifier:     notifier,
		logger:       log,
		symbolLocks:  make(map[string]*sync.Mutex),
		orderSymbols: make(map[string]string),
	}
}

func (r *Router) symbolLock(symbol string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock, ok := r.symbolLocks[symbol]
	if !ok {
		lock = &sync.Mutex{}
		r.symbolLocks[symbol] = lock
	}

	return lock
}

// PlaceOrder gates the order on tradability, serializes per instrument, and
// submits to the venue. Acceptance and rejection are both notified.
func (r *Router) PlaceOrder(ctx context.Context, order types.Order) (string, error) {
	if !r.broker.Tradable(order.Symbol) {
		err := errors.Newf(errors.ErrCodeInvalidOrder, "instrument %s is not tradable on this venue", order.Symbol)
		r.notify(Notification{Event: EventOrderRejected, Symbol: order.Symbol, Err: err, At: time.Now()})

		return "", err
	}

	lock := r.symbolLock(order.Symbol)
	lock.Lock()
	defer lock.Unlock()

	id, err := r.broker.PlaceOrder(ctx, order)
	if err != nil {
		r.logger.Warn("order not placed",
			zap.String("symbol", order.Symbol),
			zap.Error(err))

		r.notify(Notification{Event: EventOrderRejected, Symbol: order.Symbol, Err: err, At: time.Now()})

		if errors.HasCode(err, errors.ErrCodeAuthError) {
			r.notify(Notification{Event: EventSessionAuthFailed, Symbol: order.Symbol, Err: err, At: time.Now()})
		}

		return "", err
	}

	r.mu.Lock()
	r.orderSymbols[id] = order.Symbol
	r.mu.Unlock()

	r.notify(Notification{Event: EventOrderAccepted, OrderID: id, Symbol: order.Symbol, At: time.Now()})

	return id, nil
}

// CancelOrder serializes against placements for the same instrument when the
// order was placed through this router.
func (r *Router) CancelOrder(ctx context.Context, orderID string) error {
	r.mu.Lock()
	symbol, known := r.orderSymbols[orderID]
	r.mu.Unlock()

	if known {
		lock := r.symbolLock(symbol)
		lock.Lock()
		defer lock.Unlock()
	}

	return r.broker.CancelOrder(ctx, orderID)
}

// GetNAV passes through to the venue.
func (r *Router) GetNAV(ctx context.Context) (float64, error) {
	return r.broker.GetNAV(ctx)
}

// GetBalance passes through to the venue.
func (r *Router) GetBalance(ctx context.Context) (float64, error) {
	return r.broker.GetBalance(ctx)
}

// GetOrders passes through to the venue.
func (r *Router) GetOrders(ctx context.Context, filter types.OrderFilter) ([]types.Order, error) {
	return r.broker.GetOrders(ctx, filter)
}

// GetPositions passes through to the venue.
func (r *Router) GetPositions(ctx context.Context, filter types.PositionFilter) ([]types.Position, error) {
	return r.broker.GetPositions(ctx, filter)
}

// GetTrades passes through to the venue.
func (r *Router) GetTrades(ctx context.Context, filter types.TradeFilter) ([]types.Trade, error) {
	return r.broker.GetTrades(ctx, filter)
}

// GetCandles passes through to the venue.
func (r *Router) GetCandles(ctx context.Context, symbol string, granularity types.Granularity, count int) ([]types.Candle, error) {
	return r.broker.GetCandles(ctx, symbol, granularity, count)
}

// GetOrderBook passes through to the venue.
func (r *Router) GetOrderBook(ctx context.Context, symbol string) (types.OrderBook, error) {
	return r.broker.GetOrderBook(ctx, symbol)
}

// GetPublicTrades passes through to the venue.
func (r *Router) GetPublicTrades(ctx context.Context, symbol string) ([]types.Trade, error) {
	return r.broker.GetPublicTrades(ctx, symbol)
}

// Tradable passes through to the venue.
func (r *Router) Tradable(symbol string) bool {
	return r.broker.Tradable(symbol)
}

// Close passes through to the venue.
func (r *Router) Close() error {
	return r.broker.Close()
}

// notify dispatches in a goroutine and swallows panics. Order handling must
// never block on or fail because of a notifier.
func (r *Router) notify(notification Notification) {
	if r.notifier == nil {
		return
	}

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("notifier panicked",
					zap.String("event", string(notification.Event)),
					zap.Any("panic", rec))
			}
		}()

		r.notifier.Notify(notification)
	}()
}

var _ broker.Broker = (*Router)(nil)
