package types

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/moznion/go-optional"
	"github.com/quantarc/quantarc/pkg/errors"
)

type Side string

type OrderType string

type OrderStatus string

type TimeInForce string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

const (
	OrderTypeMarket     OrderType = "MARKET"
	OrderTypeLimit      OrderType = "LIMIT"
	OrderTypeStop       OrderType = "STOP"
	OrderTypeStopLimit  OrderType = "STOP_LIMIT"
	OrderTypeTakeProfit OrderType = "TAKE_PROFIT"
	OrderTypeClose      OrderType = "CLOSE"
)

const (
	OrderStatusPending         OrderStatus = "PENDING"
	OrderStatusOpen            OrderStatus = "OPEN"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
	OrderStatusRejected        OrderStatus = "REJECTED"
)

const (
	TimeInForceGTC TimeInForce = "GTC"
	TimeInForceIOC TimeInForce = "IOC"
	TimeInForceFOK TimeInForce = "FOK"
)

// orderTransitions is the complete order state machine. A status may only
// move to one of the listed successors; terminal states have none.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:         {OrderStatusOpen, OrderStatusRejected},
	OrderStatusOpen:            {OrderStatusPartiallyFilled, OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected},
	OrderStatusPartiallyFilled: {OrderStatusPartiallyFilled, OrderStatusFilled, OrderStatusCancelled},
	OrderStatusFilled:          {},
	OrderStatusCancelled:       {},
	OrderStatusRejected:        {},
}

// IsTerminal reports whether no further transition is permitted from s.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCancelled || s == OrderStatusRejected
}

// CanTransition reports whether the state machine permits moving from s to next.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}

	return false
}

// Order is an instruction to trade an instrument. The engine assigns ID at
// creation; VenueOrderID is set by whichever venue accepted the order.
// Economic terms are never mutated after submission, only Status and the
// fill attributes.
type Order struct {
	ID       string    `yaml:"id" json:"id" validate:"required,uuid"`
	Symbol   string    `yaml:"symbol" json:"symbol" validate:"required"`
	Side     Side      `yaml:"side" json:"side" validate:"required,oneof=BUY SELL"`
	Type     OrderType `yaml:"type" json:"type" validate:"required,oneof=MARKET LIMIT STOP STOP_LIMIT TAKE_PROFIT CLOSE"`
	Quantity float64   `yaml:"quantity" json:"quantity" validate:"required,gt=0"`
	// LimitPrice is required for LIMIT and STOP_LIMIT orders.
	LimitPrice optional.Option[float64] `yaml:"limit_price" json:"limit_price"`
	// TriggerPrice is required for STOP, STOP_LIMIT and TAKE_PROFIT orders.
	TriggerPrice optional.Option[float64] `yaml:"trigger_price" json:"trigger_price"`
	TimeInForce  TimeInForce              `yaml:"time_in_force" json:"time_in_force" validate:"required,oneof=GTC IOC FOK"`
	CreatedAt    time.Time                `yaml:"created_at" json:"created_at" validate:"required"`
	Status       OrderStatus              `yaml:"status" json:"status"`
	// VenueOrderID is the venue-assigned identifier, distinct from ID.
	VenueOrderID   string  `yaml:"venue_order_id" json:"venue_order_id"`
	FilledQuantity float64 `yaml:"filled_quantity" json:"filled_quantity" validate:"gte=0"`
	AvgFillPrice   float64 `yaml:"avg_fill_price" json:"avg_fill_price" validate:"gte=0"`
}

// Validate checks structural validity and that price fields are consistent
// with the order type.
func (o *Order) Validate() error {
	validate := validator.New()
	if err := validate.Struct(o); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidOrder, "invalid order", err)
	}

	switch o.Type {
	case OrderTypeLimit, OrderTypeStopLimit:
		if err := requirePositivePrice(o.LimitPrice, "limit price", o.Type); err != nil {
			return err
		}
	case OrderTypeMarket, OrderTypeStop, OrderTypeTakeProfit, OrderTypeClose:
		// No limit price required.
	}

	switch o.Type {
	case OrderTypeStop, OrderTypeStopLimit, OrderTypeTakeProfit:
		if err := requirePositivePrice(o.TriggerPrice, "trigger price", o.Type); err != nil {
			return err
		}
	case OrderTypeMarket, OrderTypeLimit, OrderTypeClose:
		// No trigger price required.
	}

	return nil
}

// Transition moves the order to the next status. Any transition the state
// machine does not permit, including any transition out of a terminal state,
// fails with ErrCodeInvariantViolation and leaves the order unchanged.
func (o *Order) Transition(next OrderStatus) error {
	if !o.Status.CanTransition(next) {
		return errors.Newf(errors.ErrCodeInvariantViolation,
			"illegal order state transition %s -> %s for order %s", o.Status, next, o.ID)
	}

	o.Status = next

	return nil
}

// RemainingQuantity returns the unfilled portion of the order.
func (o *Order) RemainingQuantity() float64 {
	remaining := o.Quantity - o.FilledQuantity
	if remaining < 0 {
		return 0
	}

	return remaining
}

func requirePositivePrice(price optional.Option[float64], name string, orderType OrderType) error {
	if price.IsNone() {
		return errors.Newf(errors.ErrCodeInvalidOrder, "%s order requires a %s", orderType, name)
	}

	if price.Unwrap() <= 0 {
		return errors.Newf(errors.ErrCodeInvalidOrder, "%s order requires a %s greater than zero", orderType, name)
	}

	return nil
}
