package simulated

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quantarc/quantarc/internal/broker"
	"github.com/quantarc/quantarc/internal/logger"
	"github.com/quantarc/quantarc/internal/types"
	"github.com/quantarc/quantarc/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// syntheticSpreadBps is the half-spread used to synthesize order book
// snapshots around the last traded price.
const syntheticSpreadBps = 5.0

// Engine is the simulated venue: it implements broker.Broker by replaying
// historical bars supplied one at a time by the caller and synthesizing
// fills. Time only advances on explicit Step calls, never on its own. A
// mutex guards all state so a routed venue can take orders from concurrent
// callers; identical bar and order sequences still produce identical trade
// and position output.
type Engine struct {
	config  Config
	symbols *types.SymbolTable
	logger  *logger.Logger

	mu        sync.Mutex
	balance   decimal.Decimal
	totalFees decimal.Decimal
	orders    map[string]*types.Order
	orderSeq  []string
	positions map[string]*types.Position
	trades    []types.Trade
	history   map[string][]types.Candle
	lastBar   map[string]types.Candle
}

// NewEngine creates a simulated venue with the given configuration and
// tradable symbol table.
func NewEngine(config Config, symbols *types.SymbolTable, log *logger.Logger) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if symbols == nil {
		return nil, errors.New(errors.ErrCodeInvalidConfiguration, "symbol table is required")
	}

	return &Engine{
		config:    config,
		symbols:   symbols,
		logger:    log,
		balance:   decimal.NewFromFloat(config.InitialBalance),
		totalFees: decimal.Zero,
		orders:    make(map[string]*types.Order),
		orderSeq:  []string{},
		positions: make(map[string]*types.Position),
		trades:    []types.Trade{},
		history:   make(map[string][]types.Candle),
		lastBar:   make(map[string]types.Candle),
	}, nil
}

// Step advances the simulation by one bar for the candle's instrument.
// Pending orders are acknowledged, then every open order on the instrument is
// matched against the bar's range, at most one fill event per order per step.
// Position, NAV and balance are recomputed synchronously so that a query
// immediately following the step reflects it.
func (e *Engine) Step(candle types.Candle) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	instrument, err := e.symbols.Normalize(candle.Symbol)
	if err != nil {
		return err
	}

	candle.Symbol = instrument.Symbol

	if candle.Low > candle.High || candle.Open <= 0 {
		return errors.Newf(errors.ErrCodeInvalidParameter, "malformed candle for %s at %s", candle.Symbol, candle.OpenTime)
	}

	e.appendHistory(candle)
	e.lastBar[candle.Symbol] = candle

	// Fills are applied in order-submission sequence for determinism.
	for _, id := range e.orderSeq {
		order := e.orders[id]
		if order.Symbol != candle.Symbol || order.Status.IsTerminal() {
			continue
		}

		if order.Status == types.OrderStatusPending {
			if err := order.Transition(types.OrderStatusOpen); err != nil {
				return err
			}
		}

		e.matchOrder(order, candle)
	}

	// Mark open positions so unrealized P&L reflects this bar's close.
	if position, ok := e.positions[candle.Symbol]; ok {
		position.MarkPrice(candle.Close, candle.OpenTime)
	}

	return nil
}

// matchOrder attempts at most one fill for the order against the bar.
func (e *Engine) matchOrder(order *types.Order, candle types.Candle) {
	price, fillable := e.fillPrice(order, candle)
	if !fillable {
		return
	}

	quantity := order.RemainingQuantity()

	if order.Type == types.OrderTypeClose {
		position, ok := e.positions[order.Symbol]
		if !ok || position.IsClosed() {
			// Position already flat: nothing left to close.
			_ = order.Transition(types.OrderStatusCancelled)

			return
		}

		quantity = position.AbsQuantity()
		if position.Quantity > 0 {
			order.Side = types.SideSell
		} else {
			order.Side = types.SideBuy
		}
	}

	partial := false
	if e.config.LiquidityCap.IsSome() && quantity > e.config.LiquidityCap.Unwrap() {
		quantity = e.config.LiquidityCap.Unwrap()
		partial = true
	}

	fee := decimal.NewFromFloat(quantity).
		Mul(decimal.NewFromFloat(price)).
		Mul(decimal.NewFromFloat(e.config.FeeRate))
	cost := decimal.NewFromFloat(quantity).Mul(decimal.NewFromFloat(price)).Add(fee)

	if order.Side == types.SideBuy && cost.GreaterThan(e.balance) {
		_ = order.Transition(types.OrderStatusRejected)
		e.logger.Warn("order rejected: insufficient balance",
			zap.String("order_id", order.ID),
			zap.String("symbol", order.Symbol),
			zap.Float64("cost", cost.InexactFloat64()),
			zap.Float64("balance", e.balance.InexactFloat64()),
		)

		return
	}

	e.applyFill(order, quantity, price, fee, candle.OpenTime, partial)
}

// fillPrice determines whether the order fills within the bar and at what
// price. Market orders fill at the open plus slippage. Limit orders fill at
// the limit price, or better if the open already clears it, never worse.
// Stop and take-profit orders convert to a market fill at the trigger price
// subject to the same range-crossing rule.
func (e *Engine) fillPrice(order *types.Order, candle types.Candle) (float64, bool) {
	switch order.Type {
	case types.OrderTypeMarket, types.OrderTypeClose:
		return e.applySlippage(order.Side, candle.Open), true

	case types.OrderTypeLimit:
		return limitFillPrice(order.Side, order.LimitPrice.Unwrap(), candle)

	case types.OrderTypeStop:
		trigger := order.TriggerPrice.Unwrap()
		if order.Side == types.SideBuy {
			// Buy stop arms above the market.
			if candle.Open >= trigger {
				return e.applySlippage(order.Side, candle.Open), true
			}
		} else {
			if candle.Open <= trigger {
				return e.applySlippage(order.Side, candle.Open), true
			}
		}

		if candle.Crosses(trigger) {
			return e.applySlippage(order.Side, trigger), true
		}

		return 0, false

	case types.OrderTypeTakeProfit:
		// A take-profit fills on favorable movement, like a limit order at
		// the trigger price.
		return limitFillPrice(order.Side, order.TriggerPrice.Unwrap(), candle)

	case types.OrderTypeStopLimit:
		trigger := order.TriggerPrice.Unwrap()

		triggered := false
		if order.Side == types.SideBuy {
			triggered = candle.High >= trigger
		} else {
			triggered = candle.Low <= trigger
		}

		if !triggered {
			return 0, false
		}

		return limitFillPrice(order.Side, order.LimitPrice.Unwrap(), candle)
	}

	return 0, false
}

// limitFillPrice applies the range-crossing rule for resting price orders.
func limitFillPrice(side types.Side, limit float64, candle types.Candle) (float64, bool) {
	if side == types.SideBuy && candle.Open <= limit {
		return candle.Open, true
	}

	if side == types.SideSell && candle.Open >= limit {
		return candle.Open, true
	}

	if candle.Crosses(limit) {
		return limit, true
	}

	return 0, false
}

func (e *Engine) applySlippage(side types.Side, price float64) float64 {
	if e.config.SlippageBps == 0 {
		return price
	}

	offset := decimal.NewFromFloat(price).Mul(decimal.NewFromFloat(e.config.SlippageBps)).Div(decimal.NewFromInt(10000))

	result := decimal.NewFromFloat(price)
	if side == types.SideBuy {
		result = result.Add(offset)
	} else {
		result = result.Sub(offset)
	}

	return result.InexactFloat64()
}

// applyFill records the trade, updates the order's fill attributes and
// status, mutates the position, and settles cash.
func (e *Engine) applyFill(order *types.Order, quantity, price float64, fee decimal.Decimal, at time.Time, partial bool) {
	feeValue := fee.InexactFloat64()

	trade := types.Trade{
		OrderID:    order.ID,
		Symbol:     order.Symbol,
		Side:       order.Side,
		Quantity:   quantity,
		Price:      price,
		Fee:        feeValue,
		ExecutedAt: at,
	}
	e.trades = append(e.trades, trade)

	// Volume-weighted average across partial fills.
	prevNotional := decimal.NewFromFloat(order.AvgFillPrice).Mul(decimal.NewFromFloat(order.FilledQuantity))
	fillNotional := decimal.NewFromFloat(price).Mul(decimal.NewFromFloat(quantity))
	filled := decimal.NewFromFloat(order.FilledQuantity).Add(decimal.NewFromFloat(quantity))
	order.FilledQuantity = filled.InexactFloat64()
	order.AvgFillPrice = prevNotional.Add(fillNotional).Div(filled).InexactFloat64()

	if partial {
		_ = order.Transition(types.OrderStatusPartiallyFilled)
	} else {
		_ = order.Transition(types.OrderStatusFilled)
	}

	position, ok := e.positions[order.Symbol]
	if !ok {
		position = &types.Position{Symbol: order.Symbol}
		e.positions[order.Symbol] = position
	}

	position.ApplyFill(order.Side, quantity, price, feeValue, at)

	notional := decimal.NewFromFloat(trade.Notional())
	if order.Side == types.SideBuy {
		e.balance = e.balance.Sub(notional).Sub(fee)
	} else {
		e.balance = e.balance.Add(notional).Sub(fee)
	}

	e.totalFees = e.totalFees.Add(fee)

	e.logger.Info("order filled",
		zap.String("order_id", order.ID),
		zap.String("symbol", order.Symbol),
		zap.String("side", string(order.Side)),
		zap.Float64("quantity", quantity),
		zap.Float64("price", price),
		zap.Bool("partial", partial),
	)
}

func (e *Engine) appendHistory(candle types.Candle) {
	bars := e.history[candle.Symbol]
	if len(bars) > 0 && bars[len(bars)-1].OpenTime.Equal(candle.OpenTime) {
		// Duplicate bar: keep the latest version.
		bars[len(bars)-1] = candle

		return
	}

	e.history[candle.Symbol] = append(bars, candle)
}

// PlaceOrder implements broker.Broker. The order is validated, assigned an
// engine id, and queued as pending; it becomes eligible to fill on the next
// Step for its instrument.
func (e *Engine) PlaceOrder(_ context.Context, order types.Order) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	instrument, err := e.symbols.Normalize(order.Symbol)
	if err != nil {
		return "", errors.Wrapf(errors.ErrCodeInvalidOrder, err, "order references unknown instrument %s", order.Symbol)
	}

	order.Symbol = instrument.Symbol

	bar, replayed := e.lastBar[order.Symbol]
	if !replayed {
		return "", errors.Newf(errors.ErrCodeUnavailable, "no market data replayed yet for %s", order.Symbol)
	}

	order.ID = uuid.New().String()
	order.Status = types.OrderStatusPending
	order.FilledQuantity = 0
	order.AvgFillPrice = 0

	if order.CreatedAt.IsZero() {
		// Simulated time comes from the replay, not the wall clock.
		order.CreatedAt = bar.OpenTime
	}

	if order.TimeInForce == "" {
		order.TimeInForce = types.TimeInForceGTC
	}

	if order.Type == types.OrderTypeClose {
		position, ok := e.positions[order.Symbol]
		if !ok || position.IsClosed() {
			return "", errors.Newf(errors.ErrCodeRejectedByVenue, "no open position to close for %s", order.Symbol)
		}

		// Sized to the position at submission; resized again at execution in
		// case fills move the position before the next step.
		order.Quantity = position.AbsQuantity()
		if position.Quantity > 0 {
			order.Side = types.SideSell
		} else {
			order.Side = types.SideBuy
		}
	}

	if err := order.Validate(); err != nil {
		return "", err
	}

	// Venue-side affordability check for orders with a known worst-case cost.
	if order.Side == types.SideBuy && order.LimitPrice.IsSome() {
		cost := decimal.NewFromFloat(order.Quantity).Mul(decimal.NewFromFloat(order.LimitPrice.Unwrap()))
		if cost.GreaterThan(e.balance) {
			return "", errors.Newf(errors.ErrCodeRejectedByVenue,
				"order cost %.2f exceeds available balance %.2f", cost.InexactFloat64(), e.balance.InexactFloat64())
		}
	}

	stored := order
	e.orders[order.ID] = &stored
	e.orderSeq = append(e.orderSeq, order.ID)

	return order.ID, nil
}

// CancelOrder implements broker.Broker. Cancelling an already-cancelled
// order is a success; other terminal states report ErrCodeAlreadyTerminal.
func (e *Engine) CancelOrder(_ context.Context, orderID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	order, ok := e.orders[orderID]
	if !ok {
		return errors.Newf(errors.ErrCodeNotFound, "no such order: %s", orderID)
	}

	switch order.Status {
	case types.OrderStatusCancelled:
		return nil
	case types.OrderStatusFilled, types.OrderStatusRejected:
		return errors.Newf(errors.ErrCodeAlreadyTerminal, "order %s is already %s", orderID, order.Status)
	case types.OrderStatusPending:
		// Cancel before acknowledgement: ack then cancel.
		if err := order.Transition(types.OrderStatusOpen); err != nil {
			return err
		}

		return order.Transition(types.OrderStatusCancelled)
	case types.OrderStatusOpen, types.OrderStatusPartiallyFilled:
		return order.Transition(types.OrderStatusCancelled)
	}

	return errors.Newf(errors.ErrCodeInvariantViolation, "order %s has unknown status %s", orderID, order.Status)
}

// GetBalance implements broker.Broker.
func (e *Engine) GetBalance(_ context.Context) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.balance.InexactFloat64(), nil
}

// GetNAV implements broker.Broker. NAV is balance plus the value of every
// open position marked at its last replayed close.
func (e *Engine) GetNAV(_ context.Context) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	nav := e.balance

	for _, position := range e.positions {
		nav = nav.Add(positionValue(position))
	}

	return nav.InexactFloat64(), nil
}

// positionValue is the marked value of the position: cost basis plus
// unrealized P&L, signed. Unrealized is (mark - avg) * qty, so this equals
// qty * mark without needing the mark price stored.
func positionValue(position *types.Position) decimal.Decimal {
	basis := decimal.NewFromFloat(position.Quantity).Mul(decimal.NewFromFloat(position.AvgEntryPrice))

	return basis.Add(decimal.NewFromFloat(position.UnrealizedPnL))
}

// GetOrders implements broker.Broker.
func (e *Engine) GetOrders(_ context.Context, filter types.OrderFilter) ([]types.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	orders := make([]types.Order, 0, len(e.orderSeq))

	for _, id := range e.orderSeq {
		order := e.orders[id]
		if filter.Symbol != "" && order.Symbol != filter.Symbol {
			continue
		}

		orders = append(orders, *order)
	}

	return orders, nil
}

// GetPositions implements broker.Broker. Closed positions are omitted.
func (e *Engine) GetPositions(_ context.Context, filter types.PositionFilter) ([]types.Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	positions := make([]types.Position, 0, len(e.positions))

	for _, symbol := range e.positionSymbols() {
		position := e.positions[symbol]
		if position.IsClosed() {
			continue
		}

		if filter.Symbol != "" && position.Symbol != filter.Symbol {
			continue
		}

		positions = append(positions, *position)
	}

	return positions, nil
}

// positionSymbols returns position keys in first-touch order for
// deterministic query output.
func (e *Engine) positionSymbols() []string {
	seen := make(map[string]bool)
	symbols := make([]string, 0, len(e.positions))

	for _, trade := range e.trades {
		if !seen[trade.Symbol] {
			seen[trade.Symbol] = true

			symbols = append(symbols, trade.Symbol)
		}
	}

	return symbols
}

// GetTrades implements broker.Broker.
func (e *Engine) GetTrades(_ context.Context, filter types.TradeFilter) ([]types.Trade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.tradesMatching(filter), nil
}

func (e *Engine) tradesMatching(filter types.TradeFilter) []types.Trade {
	trades := make([]types.Trade, 0, len(e.trades))

	for _, trade := range e.trades {
		if !filter.Matches(trade) {
			continue
		}

		trades = append(trades, trade)

		if filter.Limit > 0 && len(trades) >= filter.Limit {
			break
		}
	}

	return trades
}

// GetCandles implements broker.Broker. It serves the most recent bars of the
// replayed history, ascending by open time. The replay granularity is
// whatever the caller fed in; requesting a different bar size is not
// re-aggregated, but the granularity must at least be a known one.
func (e *Engine) GetCandles(_ context.Context, symbol string, granularity types.Granularity, count int) ([]types.Candle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := types.ParseGranularity(string(granularity)); err != nil {
		return nil, errors.Wrapf(errors.ErrCodeUnsupportedGranularity, err, "granularity %s is not replayable", granularity)
	}

	instrument, err := e.symbols.Normalize(symbol)
	if err != nil {
		return nil, err
	}

	bars := e.history[instrument.Symbol]
	if count > 0 && len(bars) > count {
		bars = bars[len(bars)-count:]
	}

	result := make([]types.Candle, len(bars))
	copy(result, bars)

	return result, nil
}

// GetOrderBook implements broker.Broker. The simulated venue has no real
// book, so a one-level snapshot is synthesized around the last close and
// timestamped with the last replayed bar.
func (e *Engine) GetOrderBook(_ context.Context, symbol string) (types.OrderBook, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	instrument, err := e.symbols.Normalize(symbol)
	if err != nil {
		return types.OrderBook{}, err
	}

	bar, ok := e.lastBar[instrument.Symbol]
	if !ok {
		return types.OrderBook{}, errors.Newf(errors.ErrCodeUnavailable, "no market data replayed yet for %s", instrument.Symbol)
	}

	half := decimal.NewFromFloat(bar.Close).Mul(decimal.NewFromFloat(syntheticSpreadBps)).Div(decimal.NewFromInt(10000))
	bid := decimal.NewFromFloat(bar.Close).Sub(half).InexactFloat64()
	ask := decimal.NewFromFloat(bar.Close).Add(half).InexactFloat64()

	return types.OrderBook{
		Symbol:    instrument.Symbol,
		Bids:      []types.PriceLevel{{Price: bid, Size: bar.Volume}},
		Asks:      []types.PriceLevel{{Price: ask, Size: bar.Volume}},
		Timestamp: bar.OpenTime,
	}, nil
}

// GetPublicTrades implements broker.Broker. The replay has no external trade
// tape, so the engine's own fills serve as the best-effort snapshot.
func (e *Engine) GetPublicTrades(_ context.Context, symbol string) ([]types.Trade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	instrument, err := e.symbols.Normalize(symbol)
	if err != nil {
		return nil, err
	}

	return e.tradesMatching(types.TradeFilter{Symbol: instrument.Symbol}), nil
}

// Tradable implements broker.Broker.
func (e *Engine) Tradable(symbol string) bool {
	return e.symbols.Known(symbol)
}

// AccountInfo returns a snapshot of the simulated account.
func (e *Engine) AccountInfo() types.AccountInfo {
	e.mu.Lock()
	defer e.mu.Unlock()

	var realized, unrealized, marked decimal.Decimal

	for _, position := range e.positions {
		realized = realized.Add(decimal.NewFromFloat(position.RealizedPnL))
		unrealized = unrealized.Add(decimal.NewFromFloat(position.UnrealizedPnL))
		marked = marked.Add(positionValue(position))
	}

	return types.AccountInfo{
		Balance:       e.balance.InexactFloat64(),
		NAV:           e.balance.Add(marked).InexactFloat64(),
		RealizedPnL:   realized.InexactFloat64(),
		UnrealizedPnL: unrealized.InexactFloat64(),
		TotalFees:     e.totalFees.InexactFloat64(),
	}
}

// Close implements broker.Broker.
func (e *Engine) Close() error {
	return nil
}

// Ensure Engine implements broker.Broker.
var _ broker.Broker = (*Engine)(nil)
