// Package binance implements the live venue adapter for Binance spot. All
// REST traffic flows through a session manager for rate limiting and retries,
// and all wire values pass through a translator that refuses unknown codes.
package binance

import (
	"context"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/google/uuid"
	"github.com/quantarc/quantarc/internal/broker"
	"github.com/quantarc/quantarc/internal/logger"
	"github.com/quantarc/quantarc/internal/session"
	"github.com/quantarc/quantarc/internal/types"
	"github.com/quantarc/quantarc/pkg/errors"
	"go.uber.org/zap"
)

// quoteAssets are the stable quote currencies counted as cash balance.
var quoteAssets = map[string]bool{
	"USDT": true,
	"BUSD": true,
	"USD":  true,
}

// quoteAssetOrder fixes the resolution order when mapping an asset to a
// registered trading pair.
var quoteAssetOrder = []string{"USDT", "BUSD", "USD"}

// Adapter implements the venue contract against the Binance spot API.
// It is stateless - all data is fetched directly from the venue.
type Adapter struct {
	client     Client
	translator *Translator
	session    *session.Manager
	symbols    *types.SymbolTable
	logger     *logger.Logger
}

// NewAdapter creates a live Binance adapter.
// If config.UseTestnet is true, connects to the Binance testnet.
// If config.BaseURL is set, it takes precedence over UseTestnet.
func NewAdapter(config Config, symbols *types.SymbolTable, log *logger.Logger) (*Adapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if symbols == nil {
		return nil, errors.New(errors.ErrCodeInvalidConfiguration, "symbol table is required")
	}

	if log == nil {
		log = logger.NewNopLogger()
	}

	if config.UseTestnet {
		binance.UseTestnet = true
	}

	rawClient := binance.NewClient(config.Credentials.APIKey, config.Credentials.APISecret)
	if config.BaseURL != "" {
		rawClient.BaseURL = config.BaseURL
	}

	client := &realClient{client: rawClient}

	sessionManager, err := session.NewManager(config.sessionConfig(), newListenKeySource(client), log)
	if err != nil {
		return nil, err
	}

	return &Adapter{
		client:     client,
		translator: NewTranslator(),
		session:    sessionManager,
		symbols:    symbols,
		logger:     log,
	}, nil
}

// newAdapterWithClient creates an adapter with a custom client.
// This is used for testing with mock clients.
func newAdapterWithClient(client Client, symbols *types.SymbolTable, sessionManager *session.Manager) *Adapter {
	return &Adapter{
		client:     client,
		translator: NewTranslator(),
		session:    sessionManager,
		symbols:    symbols,
		logger:     logger.NewNopLogger(),
	}
}

// Session exposes the session manager so the streaming layer can share the
// listen key and rate budget.
func (a *Adapter) Session() *session.Manager {
	return a.session
}

// GetBalance returns the cash balance: free plus locked quote assets.
func (a *Adapter) GetBalance(ctx context.Context) (float64, error) {
	account, err := a.getAccount(ctx)
	if err != nil {
		return 0, err
	}

	var balance float64

	for _, assetBalance := range account.Balances {
		if !quoteAssets[assetBalance.Asset] {
			continue
		}

		free, _ := strconv.ParseFloat(assetBalance.Free, 64)
		locked, _ := strconv.ParseFloat(assetBalance.Locked, 64)
		balance += free + locked
	}

	return balance, nil
}

// GetNAV returns the cash balance plus the marked value of non-quote
// holdings. Assets whose price cannot be fetched are left out rather than
// valued by guesswork.
func (a *Adapter) GetNAV(ctx context.Context) (float64, error) {
	account, err := a.getAccount(ctx)
	if err != nil {
		return 0, err
	}

	var nav float64

	for _, assetBalance := range account.Balances {
		free, _ := strconv.ParseFloat(assetBalance.Free, 64)
		locked, _ := strconv.ParseFloat(assetBalance.Locked, 64)
		total := free + locked

		if total <= 0 {
			continue
		}

		if quoteAssets[assetBalance.Asset] {
			nav += total

			continue
		}

		price, priceErr := a.lastPrice(ctx, assetBalance.Asset+"USDT")
		if priceErr != nil {
			a.logger.Warn("excluding unpriceable asset from NAV",
				zap.String("asset", assetBalance.Asset),
				zap.Error(priceErr))

			continue
		}

		nav += total * price
	}

	return nav, nil
}

// PlaceOrder validates, translates, and submits an order, returning the
// engine order id. The id rides to the venue as the client order id, so the
// order stays addressable by the same id it was placed under.
func (a *Adapter) PlaceOrder(ctx context.Context, order types.Order) (string, error) {
	instrument, err := a.symbols.Normalize(order.Symbol)
	if err != nil {
		return "", errors.Wrapf(errors.ErrCodeInvalidOrder, err, "order references unknown instrument %s", order.Symbol)
	}

	order.Symbol = instrument.Symbol
	if order.ID == "" {
		order.ID = uuid.New().String()
	}

	if order.TimeInForce == "" {
		order.TimeInForce = types.TimeInForceGTC
	}

	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}

	if err := order.Validate(); err != nil {
		return "", err
	}

	side, err := a.translator.ToWireSide(order.Side)
	if err != nil {
		return "", err
	}

	orderType, err := a.translator.ToWireType(order)
	if err != nil {
		return "", err
	}

	service := a.client.NewCreateOrderService().
		Symbol(order.Symbol).
		Side(side).
		Type(orderType).
		Quantity(a.translator.FormatQuantity(order.Quantity)).
		NewClientOrderID(order.ID)

	if order.LimitPrice.IsSome() {
		tif, tifErr := a.translator.ToWireTimeInForce(order.TimeInForce)
		if tifErr != nil {
			return "", tifErr
		}

		service = service.
			Price(a.translator.FormatPrice(order.LimitPrice.Unwrap())).
			TimeInForce(tif)
	}

	if order.TriggerPrice.IsSome() {
		service = service.StopPrice(a.translator.FormatPrice(order.TriggerPrice.Unwrap()))
	}

	var response *binance.CreateOrderResponse

	err = a.session.Do(ctx, func(ctx context.Context) error {
		var doErr error

		response, doErr = service.Do(ctx)

		return classifyError(doErr, "failed to place order")
	})
	if err != nil {
		return "", err
	}

	a.logger.Info("order placed",
		zap.String("symbol", order.Symbol),
		zap.String("side", string(order.Side)),
		zap.String("type", string(order.Type)),
		zap.String("order_id", order.ID),
		zap.String("venue_order_id", strconv.FormatInt(response.OrderID, 10)))

	return order.ID, nil
}

// CancelOrder cancels an open order by the id PlaceOrder returned; venue
// order ids are accepted as well. The venue keys cancels by symbol, so the
// order is located among open orders first.
func (a *Adapter) CancelOrder(ctx context.Context, orderID string) error {
	var openOrders []*binance.Order

	err := a.session.Do(ctx, func(ctx context.Context) error {
		var doErr error

		openOrders, doErr = a.client.NewListOpenOrdersService().Do(ctx)

		return classifyError(doErr, "failed to list open orders")
	})
	if err != nil {
		return err
	}

	var matched *binance.Order

	for _, openOrder := range openOrders {
		if openOrder.ClientOrderID == orderID || strconv.FormatInt(openOrder.OrderID, 10) == orderID {
			matched = openOrder

			break
		}
	}

	if matched == nil {
		return errors.Newf(errors.ErrCodeNotFound, "no open order with id %s", orderID)
	}

	err = a.session.Do(ctx, func(ctx context.Context) error {
		service := a.client.NewCancelOrderService().Symbol(matched.Symbol)
		if matched.ClientOrderID == orderID {
			service = service.OrigClientOrderID(orderID)
		} else {
			service = service.OrderID(matched.OrderID)
		}

		_, doErr := service.Do(ctx)

		return classifyError(doErr, "failed to cancel order")
	})
	if err != nil {
		// The order was open moments ago: a not-found on cancel means it
		// reached a terminal state in between.
		if errors.HasCode(err, errors.ErrCodeNotFound) {
			return errors.Wrapf(errors.ErrCodeAlreadyTerminal, err, "order %s is already terminal", orderID)
		}

		return err
	}

	return nil
}

// GetOrders returns orders matching the filter. With a symbol the full order
// history for that instrument is returned; without one, open orders across
// all instruments.
func (a *Adapter) GetOrders(ctx context.Context, filter types.OrderFilter) ([]types.Order, error) {
	var wireOrders []*binance.Order

	if filter.Symbol != "" {
		instrument, err := a.symbols.Normalize(filter.Symbol)
		if err != nil {
			return nil, err
		}

		err = a.session.Do(ctx, func(ctx context.Context) error {
			var doErr error

			wireOrders, doErr = a.client.NewListOrdersService().Symbol(instrument.Symbol).Do(ctx)

			return classifyError(doErr, "failed to list orders")
		})
		if err != nil {
			return nil, err
		}
	} else {
		err := a.session.Do(ctx, func(ctx context.Context) error {
			var doErr error

			wireOrders, doErr = a.client.NewListOpenOrdersService().Do(ctx)

			return classifyError(doErr, "failed to list open orders")
		})
		if err != nil {
			return nil, err
		}
	}

	orders := make([]types.Order, 0, len(wireOrders))

	for _, wireOrder := range wireOrders {
		order, err := a.translator.FromWireOrder(wireOrder)
		if err != nil {
			return nil, err
		}

		orders = append(orders, order)
	}

	return orders, nil
}

// GetPositions derives positions from spot balances. Holdings are reported
// under the canonical symbol of their registered quote pair so that position
// queries key the same symbols as every other read. Spot holdings carry no
// entry price, so AvgEntryPrice and P&L fields stay zero.
func (a *Adapter) GetPositions(ctx context.Context, filter types.PositionFilter) ([]types.Position, error) {
	account, err := a.getAccount(ctx)
	if err != nil {
		return nil, err
	}

	filterSymbol := filter.Symbol
	if filterSymbol != "" {
		if instrument, normErr := a.symbols.Normalize(filterSymbol); normErr == nil {
			filterSymbol = instrument.Symbol
		}
	}

	positions := make([]types.Position, 0)

	for _, assetBalance := range account.Balances {
		if quoteAssets[assetBalance.Asset] {
			continue
		}

		free, _ := strconv.ParseFloat(assetBalance.Free, 64)
		locked, _ := strconv.ParseFloat(assetBalance.Locked, 64)
		total := free + locked

		if total <= 0 {
			continue
		}

		symbol := a.positionSymbol(assetBalance.Asset)
		if filterSymbol != "" && filterSymbol != symbol {
			continue
		}

		positions = append(positions, types.Position{
			Symbol:    symbol,
			Quantity:  total,
			UpdatedAt: time.Now(),
		})
	}

	return positions, nil
}

// positionSymbol resolves an asset to the canonical symbol of its registered
// quote pair, falling back to the raw asset when no pair is registered.
func (a *Adapter) positionSymbol(asset string) string {
	for _, quote := range quoteAssetOrder {
		if instrument, err := a.symbols.Normalize(asset + quote); err == nil {
			return instrument.Symbol
		}
	}

	return asset
}

// GetTrades returns the account's executed trades. The venue requires a
// symbol for trade history.
func (a *Adapter) GetTrades(ctx context.Context, filter types.TradeFilter) ([]types.Trade, error) {
	if filter.Symbol == "" {
		return nil, errors.New(errors.ErrCodeInvalidParameter, "symbol is required for trade history on Binance")
	}

	instrument, err := a.symbols.Normalize(filter.Symbol)
	if err != nil {
		return nil, err
	}

	symbol := instrument.Symbol
	service := a.client.NewListTradesService().Symbol(symbol)

	if filter.Limit > 0 {
		service = service.Limit(filter.Limit)
	}

	if !filter.StartTime.IsZero() {
		service = service.StartTime(filter.StartTime.UnixMilli())
	}

	if !filter.EndTime.IsZero() {
		service = service.EndTime(filter.EndTime.UnixMilli())
	}

	var wireTrades []*binance.TradeV3

	err = a.session.Do(ctx, func(ctx context.Context) error {
		var doErr error

		wireTrades, doErr = service.Do(ctx)

		return classifyError(doErr, "failed to list trades")
	})
	if err != nil {
		return nil, err
	}

	trades := make([]types.Trade, 0, len(wireTrades))
	for _, wireTrade := range wireTrades {
		trades = append(trades, a.translator.FromWireTrade(wireTrade, symbol))
	}

	return trades, nil
}

// GetCandles returns up to count candles, ascending by open time.
func (a *Adapter) GetCandles(ctx context.Context, symbol string, granularity types.Granularity, count int) ([]types.Candle, error) {
	instrument, err := a.symbols.Normalize(symbol)
	if err != nil {
		return nil, err
	}

	normalized := instrument.Symbol

	interval, err := a.translator.ToWireInterval(granularity)
	if err != nil {
		return nil, err
	}

	service := a.client.NewKlinesService().Symbol(normalized).Interval(interval)
	if count > 0 {
		service = service.Limit(count)
	}

	var klines []*binance.Kline

	err = a.session.Do(ctx, func(ctx context.Context) error {
		var doErr error

		klines, doErr = service.Do(ctx)

		return classifyError(doErr, "failed to fetch klines")
	})
	if err != nil {
		return nil, err
	}

	candles := make([]types.Candle, 0, len(klines))
	for _, kline := range klines {
		candles = append(candles, a.translator.FromWireKline(kline, normalized))
	}

	return candles, nil
}

// GetOrderBook returns a depth snapshot, timestamped at receipt.
func (a *Adapter) GetOrderBook(ctx context.Context, symbol string) (types.OrderBook, error) {
	instrument, err := a.symbols.Normalize(symbol)
	if err != nil {
		return types.OrderBook{}, err
	}

	normalized := instrument.Symbol

	var depth *binance.DepthResponse

	err = a.session.Do(ctx, func(ctx context.Context) error {
		var doErr error

		depth, doErr = a.client.NewDepthService().Symbol(normalized).Limit(50).Do(ctx)

		return classifyError(doErr, "failed to fetch depth")
	})
	if err != nil {
		return types.OrderBook{}, err
	}

	book := types.OrderBook{
		Symbol:    normalized,
		Bids:      make([]types.PriceLevel, 0, len(depth.Bids)),
		Asks:      make([]types.PriceLevel, 0, len(depth.Asks)),
		Timestamp: time.Now(),
	}

	for _, bid := range depth.Bids {
		price, _ := strconv.ParseFloat(bid.Price, 64)
		size, _ := strconv.ParseFloat(bid.Quantity, 64)
		book.Bids = append(book.Bids, types.PriceLevel{Price: price, Size: size})
	}

	for _, ask := range depth.Asks {
		price, _ := strconv.ParseFloat(ask.Price, 64)
		size, _ := strconv.ParseFloat(ask.Quantity, 64)
		book.Asks = append(book.Asks, types.PriceLevel{Price: price, Size: size})
	}

	return book, nil
}

// GetPublicTrades returns recent venue-wide trades for the instrument.
func (a *Adapter) GetPublicTrades(ctx context.Context, symbol string) ([]types.Trade, error) {
	instrument, err := a.symbols.Normalize(symbol)
	if err != nil {
		return nil, err
	}

	normalized := instrument.Symbol

	var wireTrades []*binance.Trade

	err = a.session.Do(ctx, func(ctx context.Context) error {
		var doErr error

		wireTrades, doErr = a.client.NewRecentTradesService().Symbol(normalized).Limit(100).Do(ctx)

		return classifyError(doErr, "failed to fetch recent trades")
	})
	if err != nil {
		return nil, err
	}

	trades := make([]types.Trade, 0, len(wireTrades))
	for _, wireTrade := range wireTrades {
		trades = append(trades, a.translator.FromWirePublicTrade(wireTrade, normalized))
	}

	return trades, nil
}

// Tradable reports whether the symbol or one of its aliases is registered.
func (a *Adapter) Tradable(symbol string) bool {
	return a.symbols.Known(symbol)
}

// Close releases adapter resources. Idempotent.
func (a *Adapter) Close() error {
	a.session.Invalidate()

	return nil
}

func (a *Adapter) getAccount(ctx context.Context) (*binance.Account, error) {
	var account *binance.Account

	err := a.session.Do(ctx, func(ctx context.Context) error {
		var doErr error

		account, doErr = a.client.NewGetAccountService().Do(ctx)

		return classifyError(doErr, "failed to get account info")
	})
	if err != nil {
		// Account reads promise Unavailable when state cannot be determined;
		// the classified cause stays on the chain.
		return nil, errors.Wrap(errors.ErrCodeUnavailable, "account state unavailable", err)
	}

	return account, nil
}

func (a *Adapter) lastPrice(ctx context.Context, symbol string) (float64, error) {
	var prices []*binance.SymbolPrice

	err := a.session.Do(ctx, func(ctx context.Context) error {
		var doErr error

		prices, doErr = a.client.NewListPricesService().Symbol(symbol).Do(ctx)

		return classifyError(doErr, "failed to fetch price")
	})
	if err != nil {
		return 0, err
	}

	if len(prices) == 0 {
		return 0, errors.Newf(errors.ErrCodeNotFound, "no price for %s", symbol)
	}

	price, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		return 0, errors.Wrapf(errors.ErrCodeProtocolMismatch, err, "unparseable price for %s", symbol)
	}

	return price, nil
}

// Ensure Adapter implements the venue contract.
var _ broker.Broker = (*Adapter)(nil)
