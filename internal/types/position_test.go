package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type PositionTestSuite struct {
	suite.Suite
	now time.Time
}

func TestPositionTestSuite(t *testing.T) {
	suite.Run(t, new(PositionTestSuite))
}

func (suite *PositionTestSuite) SetupTest() {
	suite.now = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
}

func (suite *PositionTestSuite) TestOpenLong() {
	position := Position{Symbol: "BTCUSDT"}
	position.ApplyFill(SideBuy, 10, 100, 0, suite.now)

	suite.Assert().InDelta(10.0, position.Quantity, 1e-9)
	suite.Assert().InDelta(100.0, position.AvgEntryPrice, 1e-9)
	suite.Assert().Zero(position.RealizedPnL)
	suite.Assert().False(position.IsClosed())
}

func (suite *PositionTestSuite) TestIncreaseLongMovesAverage() {
	position := Position{Symbol: "BTCUSDT"}
	position.ApplyFill(SideBuy, 10, 100, 0, suite.now)
	position.ApplyFill(SideBuy, 10, 110, 0, suite.now)

	suite.Assert().InDelta(20.0, position.Quantity, 1e-9)
	suite.Assert().InDelta(105.0, position.AvgEntryPrice, 1e-9)
}

func (suite *PositionTestSuite) TestReduceLongRealizesPnL() {
	position := Position{Symbol: "BTCUSDT"}
	position.ApplyFill(SideBuy, 10, 100, 0, suite.now)
	position.ApplyFill(SideSell, 4, 110, 0, suite.now)

	suite.Assert().InDelta(6.0, position.Quantity, 1e-9)
	suite.Assert().InDelta(100.0, position.AvgEntryPrice, 1e-9)
	suite.Assert().InDelta(40.0, position.RealizedPnL, 1e-9)
}

func (suite *PositionTestSuite) TestCloseLong() {
	position := Position{Symbol: "BTCUSDT"}
	position.ApplyFill(SideBuy, 10, 100, 0, suite.now)
	position.ApplyFill(SideSell, 10, 90, 0, suite.now)

	suite.Assert().True(position.IsClosed())
	suite.Assert().Zero(position.AvgEntryPrice)
	suite.Assert().InDelta(-100.0, position.RealizedPnL, 1e-9)
	suite.Assert().Zero(position.UnrealizedPnL)
}

func (suite *PositionTestSuite) TestCrossThroughZero() {
	position := Position{Symbol: "BTCUSDT"}
	position.ApplyFill(SideBuy, 10, 100, 0, suite.now)
	position.ApplyFill(SideSell, 15, 120, 0, suite.now)

	// 10 closed at +20 each, remaining 5 short from 120.
	suite.Assert().InDelta(-5.0, position.Quantity, 1e-9)
	suite.Assert().InDelta(120.0, position.AvgEntryPrice, 1e-9)
	suite.Assert().InDelta(200.0, position.RealizedPnL, 1e-9)
}

func (suite *PositionTestSuite) TestShortRealizesPnLOnBuyBack() {
	position := Position{Symbol: "EURUSD"}
	position.ApplyFill(SideSell, 10, 100, 0, suite.now)
	position.ApplyFill(SideBuy, 10, 90, 0, suite.now)

	suite.Assert().True(position.IsClosed())
	suite.Assert().InDelta(100.0, position.RealizedPnL, 1e-9)
}

func (suite *PositionTestSuite) TestFeesReduceRealizedPnL() {
	position := Position{Symbol: "BTCUSDT"}
	position.ApplyFill(SideBuy, 10, 100, 2.5, suite.now)

	suite.Assert().InDelta(-2.5, position.RealizedPnL, 1e-9)
}

func (suite *PositionTestSuite) TestMarkPrice() {
	position := Position{Symbol: "BTCUSDT"}
	position.ApplyFill(SideBuy, 10, 100, 0, suite.now)

	later := suite.now.Add(time.Minute)
	position.MarkPrice(107.5, later)

	suite.Assert().InDelta(75.0, position.UnrealizedPnL, 1e-9)
	suite.Assert().Equal(later, position.UpdatedAt)
}

func (suite *PositionTestSuite) TestMarkPriceShort() {
	position := Position{Symbol: "BTCUSDT"}
	position.ApplyFill(SideSell, 10, 100, 0, suite.now)
	position.MarkPrice(95, suite.now)

	suite.Assert().InDelta(50.0, position.UnrealizedPnL, 1e-9)
}
