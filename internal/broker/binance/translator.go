package binance

import (
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/moznion/go-optional"
	"github.com/quantarc/quantarc/internal/types"
	"github.com/quantarc/quantarc/pkg/errors"
)

const (
	// DecimalPrecision is a default decimal precision used as a fallback.
	// 8 decimals allows for satoshi-level precision (0.00000001 BTC) for BTC-like assets.
	// Production systems should use symbol-specific precision from Binance exchange info (e.g. LOT_SIZE, PRICE_FILTER).
	DecimalPrecision = 8
)

// granularityIntervals maps engine granularities to Binance kline intervals.
var granularityIntervals = map[types.Granularity]string{
	types.Granularity1m:  "1m",
	types.Granularity5m:  "5m",
	types.Granularity15m: "15m",
	types.Granularity30m: "30m",
	types.Granularity1h:  "1h",
	types.Granularity4h:  "4h",
	types.Granularity1d:  "1d",
}

// Translator converts between the engine order model and Binance wire types.
// It is stateless; every unknown wire value fails loudly instead of being
// silently coerced.
type Translator struct {
	precision int
}

// NewTranslator creates a translator with the default decimal precision.
func NewTranslator() *Translator {
	return &Translator{precision: DecimalPrecision}
}

// ToWireSide maps an order side to the Binance side type.
func (t *Translator) ToWireSide(side types.Side) (binance.SideType, error) {
	switch side {
	case types.SideBuy:
		return binance.SideTypeBuy, nil
	case types.SideSell:
		return binance.SideTypeSell, nil
	default:
		return "", errors.Newf(errors.ErrCodeInvalidParameter, "unsupported order side: %s", side)
	}
}

// ToWireType maps an order type to the Binance order type. Stop and
// take-profit orders become their limit variants when a limit price is set.
func (t *Translator) ToWireType(order types.Order) (binance.OrderType, error) {
	hasLimit := order.LimitPrice.IsSome()

	switch order.Type {
	case types.OrderTypeMarket, types.OrderTypeClose:
		return binance.OrderTypeMarket, nil
	case types.OrderTypeLimit:
		return binance.OrderTypeLimit, nil
	case types.OrderTypeStop:
		return binance.OrderTypeStopLoss, nil
	case types.OrderTypeStopLimit:
		return binance.OrderTypeStopLossLimit, nil
	case types.OrderTypeTakeProfit:
		if hasLimit {
			return binance.OrderTypeTakeProfitLimit, nil
		}

		return binance.OrderTypeTakeProfit, nil
	default:
		return "", errors.Newf(errors.ErrCodeInvalidParameter, "unsupported order type: %s", order.Type)
	}
}

// ToWireTimeInForce maps a time-in-force to the Binance value.
func (t *Translator) ToWireTimeInForce(tif types.TimeInForce) (binance.TimeInForceType, error) {
	switch tif {
	case types.TimeInForceGTC, "":
		return binance.TimeInForceTypeGTC, nil
	case types.TimeInForceIOC:
		return binance.TimeInForceTypeIOC, nil
	case types.TimeInForceFOK:
		return binance.TimeInForceTypeFOK, nil
	default:
		return "", errors.Newf(errors.ErrCodeInvalidParameter, "unsupported time in force: %s", tif)
	}
}

// ToWireInterval maps a granularity to a Binance kline interval.
func (t *Translator) ToWireInterval(granularity types.Granularity) (string, error) {
	interval, ok := granularityIntervals[granularity]
	if !ok {
		return "", errors.Newf(errors.ErrCodeUnsupportedGranularity, "granularity %s is not supported by Binance", granularity)
	}

	return interval, nil
}

// FromWireStatus maps a Binance order status to the engine status. Unknown
// status codes are a protocol mismatch, never a guess.
func (t *Translator) FromWireStatus(status binance.OrderStatusType) (types.OrderStatus, error) {
	switch status {
	case binance.OrderStatusTypeNew, binance.OrderStatusTypePendingCancel:
		return types.OrderStatusOpen, nil
	case binance.OrderStatusTypePartiallyFilled:
		return types.OrderStatusPartiallyFilled, nil
	case binance.OrderStatusTypeFilled:
		return types.OrderStatusFilled, nil
	case binance.OrderStatusTypeCanceled, binance.OrderStatusTypeExpired:
		return types.OrderStatusCancelled, nil
	case binance.OrderStatusTypeRejected:
		return types.OrderStatusRejected, nil
	default:
		return "", errors.Newf(errors.ErrCodeProtocolMismatch, "unknown order status from venue: %s", status)
	}
}

// FormatQuantity renders a quantity at the wire decimal precision.
func (t *Translator) FormatQuantity(quantity float64) string {
	return strconv.FormatFloat(quantity, 'f', t.precision, 64)
}

// FormatPrice renders a price for the wire.
func (t *Translator) FormatPrice(price float64) string {
	return strconv.FormatFloat(price, 'f', -1, 64)
}

// FromWireOrder converts a Binance order to the engine order model.
func (t *Translator) FromWireOrder(bo *binance.Order) (types.Order, error) {
	status, err := t.FromWireStatus(bo.Status)
	if err != nil {
		return types.Order{}, err
	}

	var side types.Side

	switch bo.Side {
	case binance.SideTypeBuy:
		side = types.SideBuy
	case binance.SideTypeSell:
		side = types.SideSell
	default:
		return types.Order{}, errors.Newf(errors.ErrCodeProtocolMismatch, "unknown order side from venue: %s", bo.Side)
	}

	orderType, err := t.fromWireType(bo.Type)
	if err != nil {
		return types.Order{}, err
	}

	quantity, _ := strconv.ParseFloat(bo.OrigQuantity, 64)
	executed, _ := strconv.ParseFloat(bo.ExecutedQuantity, 64)
	price, _ := strconv.ParseFloat(bo.Price, 64)
	stopPrice, _ := strconv.ParseFloat(bo.StopPrice, 64)
	cumQuote, _ := strconv.ParseFloat(bo.CummulativeQuoteQuantity, 64)

	limitPrice := optional.None[float64]()
	if price > 0 {
		limitPrice = optional.Some(price)
	}

	triggerPrice := optional.None[float64]()
	if stopPrice > 0 {
		triggerPrice = optional.Some(stopPrice)
	}

	avgFillPrice := 0.0
	if executed > 0 {
		avgFillPrice = cumQuote / executed
	}

	venueID := strconv.FormatInt(bo.OrderID, 10)

	// The client order id carries the engine-assigned id for orders placed
	// through the adapter; orders placed elsewhere keep the venue id.
	id := bo.ClientOrderID
	if id == "" {
		id = venueID
	}

	return types.Order{
		ID:             id,
		Symbol:         bo.Symbol,
		Side:           side,
		Type:           orderType,
		Quantity:       quantity,
		LimitPrice:     limitPrice,
		TriggerPrice:   triggerPrice,
		TimeInForce:    types.TimeInForce(bo.TimeInForce),
		CreatedAt:      time.UnixMilli(bo.Time),
		Status:         status,
		VenueOrderID:   venueID,
		FilledQuantity: executed,
		AvgFillPrice:   avgFillPrice,
	}, nil
}

func (t *Translator) fromWireType(orderType binance.OrderType) (types.OrderType, error) {
	switch orderType {
	case binance.OrderTypeMarket:
		return types.OrderTypeMarket, nil
	case binance.OrderTypeLimit, binance.OrderTypeLimitMaker:
		return types.OrderTypeLimit, nil
	case binance.OrderTypeStopLoss:
		return types.OrderTypeStop, nil
	case binance.OrderTypeStopLossLimit:
		return types.OrderTypeStopLimit, nil
	case binance.OrderTypeTakeProfit, binance.OrderTypeTakeProfitLimit:
		return types.OrderTypeTakeProfit, nil
	default:
		return "", errors.Newf(errors.ErrCodeProtocolMismatch, "unknown order type from venue: %s", orderType)
	}
}

// FromWireTrade converts a Binance account trade to the engine trade model.
func (t *Translator) FromWireTrade(bt *binance.TradeV3, symbol string) types.Trade {
	quantity, _ := strconv.ParseFloat(bt.Quantity, 64)
	price, _ := strconv.ParseFloat(bt.Price, 64)
	commission, _ := strconv.ParseFloat(bt.Commission, 64)

	side := types.SideSell
	if bt.IsBuyer {
		side = types.SideBuy
	}

	return types.Trade{
		OrderID:    strconv.FormatInt(bt.OrderID, 10),
		Symbol:     symbol,
		Side:       side,
		Quantity:   quantity,
		Price:      price,
		Fee:        commission,
		ExecutedAt: time.UnixMilli(bt.Time),
	}
}

// FromWirePublicTrade converts a venue-wide trade. The reported side is the
// aggressor side: a buyer-maker trade was driven by a sell.
func (t *Translator) FromWirePublicTrade(bt *binance.Trade, symbol string) types.Trade {
	quantity, _ := strconv.ParseFloat(bt.Quantity, 64)
	price, _ := strconv.ParseFloat(bt.Price, 64)

	side := types.SideBuy
	if bt.IsBuyerMaker {
		side = types.SideSell
	}

	return types.Trade{
		OrderID:    strconv.FormatInt(bt.ID, 10),
		Symbol:     symbol,
		Side:       side,
		Quantity:   quantity,
		Price:      price,
		Fee:        0,
		ExecutedAt: time.UnixMilli(bt.Time),
	}
}

// FromWireKline converts a Binance kline to a candle.
func (t *Translator) FromWireKline(k *binance.Kline, symbol string) types.Candle {
	open, _ := strconv.ParseFloat(k.Open, 64)
	high, _ := strconv.ParseFloat(k.High, 64)
	low, _ := strconv.ParseFloat(k.Low, 64)
	closePrice, _ := strconv.ParseFloat(k.Close, 64)
	volume, _ := strconv.ParseFloat(k.Volume, 64)

	return types.Candle{
		Symbol:   symbol,
		OpenTime: time.UnixMilli(k.OpenTime),
		Open:     open,
		High:     high,
		Low:      low,
		Close:    closePrice,
		Volume:   volume,
	}
}
