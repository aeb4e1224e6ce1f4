package types

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/quantarc/quantarc/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type OrderTestSuite struct {
	suite.Suite
}

func TestOrderTestSuite(t *testing.T) {
	suite.Run(t, new(OrderTestSuite))
}

func (suite *OrderTestSuite) newOrder(orderType OrderType) Order {
	order := Order{
		ID:          uuid.New().String(),
		Symbol:      "BTCUSDT",
		Side:        SideBuy,
		Type:        orderType,
		Quantity:    1.5,
		TimeInForce: TimeInForceGTC,
		CreatedAt:   time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC),
		Status:      OrderStatusPending,
	}

	switch orderType {
	case OrderTypeLimit:
		order.LimitPrice = optional.Some(100.0)
	case OrderTypeStopLimit:
		order.LimitPrice = optional.Some(100.0)
		order.TriggerPrice = optional.Some(99.0)
	case OrderTypeStop, OrderTypeTakeProfit:
		order.TriggerPrice = optional.Some(99.0)
	case OrderTypeMarket, OrderTypeClose:
	}

	return order
}

func (suite *OrderTestSuite) TestValidateMarketOrder() {
	order := suite.newOrder(OrderTypeMarket)
	suite.Require().NoError(order.Validate())
}

func (suite *OrderTestSuite) TestValidateLimitOrderRequiresPrice() {
	order := suite.newOrder(OrderTypeLimit)
	order.LimitPrice = optional.None[float64]()

	err := order.Validate()
	suite.Require().Error(err)
	suite.Assert().Equal(errors.ErrCodeInvalidOrder, errors.GetCode(err))
}

func (suite *OrderTestSuite) TestValidateLimitOrderRejectsZeroPrice() {
	order := suite.newOrder(OrderTypeLimit)
	order.LimitPrice = optional.Some(0.0)

	err := order.Validate()
	suite.Require().Error(err)
	suite.Assert().Equal(errors.ErrCodeInvalidOrder, errors.GetCode(err))
}

func (suite *OrderTestSuite) TestValidateStopOrderRequiresTrigger() {
	order := suite.newOrder(OrderTypeStop)
	order.TriggerPrice = optional.None[float64]()

	err := order.Validate()
	suite.Require().Error(err)
	suite.Assert().Equal(errors.ErrCodeInvalidOrder, errors.GetCode(err))
}

func (suite *OrderTestSuite) TestValidateRejectsZeroQuantity() {
	order := suite.newOrder(OrderTypeMarket)
	order.Quantity = 0

	err := order.Validate()
	suite.Require().Error(err)
	suite.Assert().Equal(errors.ErrCodeInvalidOrder, errors.GetCode(err))
}

func (suite *OrderTestSuite) TestTransitionPendingToOpen() {
	order := suite.newOrder(OrderTypeLimit)

	suite.Require().NoError(order.Transition(OrderStatusOpen))
	suite.Assert().Equal(OrderStatusOpen, order.Status)
}

func (suite *OrderTestSuite) TestTransitionFullLifecycle() {
	order := suite.newOrder(OrderTypeLimit)

	suite.Require().NoError(order.Transition(OrderStatusOpen))
	suite.Require().NoError(order.Transition(OrderStatusPartiallyFilled))
	suite.Require().NoError(order.Transition(OrderStatusPartiallyFilled))
	suite.Require().NoError(order.Transition(OrderStatusFilled))
	suite.Assert().True(order.Status.IsTerminal())
}

func (suite *OrderTestSuite) TestTransitionPendingSkipsOpenFails() {
	order := suite.newOrder(OrderTypeLimit)

	err := order.Transition(OrderStatusFilled)
	suite.Require().Error(err)
	suite.Assert().Equal(errors.ErrCodeInvariantViolation, errors.GetCode(err))
	suite.Assert().Equal(OrderStatusPending, order.Status)
}

func (suite *OrderTestSuite) TestTerminalStatesAreClosed() {
	// Once terminal, no transition to any state is accepted.
	for _, terminal := range []OrderStatus{OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected} {
		for _, next := range []OrderStatus{
			OrderStatusPending, OrderStatusOpen, OrderStatusPartiallyFilled,
			OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected,
		} {
			order := suite.newOrder(OrderTypeMarket)
			order.Status = terminal

			err := order.Transition(next)
			suite.Require().Error(err, "transition %s -> %s must fail", terminal, next)
			suite.Assert().Equal(errors.ErrCodeInvariantViolation, errors.GetCode(err))
			suite.Assert().Equal(terminal, order.Status)
		}
	}
}

func (suite *OrderTestSuite) TestRemainingQuantity() {
	order := suite.newOrder(OrderTypeLimit)
	suite.Assert().InDelta(1.5, order.RemainingQuantity(), 1e-9)

	order.FilledQuantity = 1.0
	suite.Assert().InDelta(0.5, order.RemainingQuantity(), 1e-9)

	order.FilledQuantity = 1.5
	suite.Assert().Zero(order.RemainingQuantity())
}
