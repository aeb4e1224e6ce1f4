package types

import (
	"testing"

	"github.com/quantarc/quantarc/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type InstrumentTestSuite struct {
	suite.Suite
	table *SymbolTable
}

func TestInstrumentTestSuite(t *testing.T) {
	suite.Run(t, new(InstrumentTestSuite))
}

func (suite *InstrumentTestSuite) SetupTest() {
	suite.table = NewSymbolTable()
	suite.Require().NoError(suite.table.Register("BTCUSDT", AssetClassCrypto, "BTC-USDT", "XBTUSDT"))
	suite.Require().NoError(suite.table.Register("EURUSD", AssetClassFx, "EUR/USD", "EUR_USD"))
}

func (suite *InstrumentTestSuite) TestNormalizeAlias() {
	instrument, err := suite.table.Normalize("BTC-USDT")
	suite.Require().NoError(err)
	suite.Assert().Equal("BTCUSDT", instrument.Symbol)
	suite.Assert().Equal(AssetClassCrypto, instrument.Class)
}

func (suite *InstrumentTestSuite) TestNormalizeIsCaseInsensitive() {
	instrument, err := suite.table.Normalize("eur/usd")
	suite.Require().NoError(err)
	suite.Assert().Equal("EURUSD", instrument.Symbol)
}

func (suite *InstrumentTestSuite) TestNormalizeIsIdempotent() {
	// normalize(normalize(x)) == normalize(x) for every known alias.
	for _, alias := range []string{"BTC-USDT", "XBTUSDT", "BTCUSDT", "EUR/USD", "EUR_USD", "EURUSD"} {
		first, err := suite.table.Normalize(alias)
		suite.Require().NoError(err)

		second, err := suite.table.Normalize(first.Symbol)
		suite.Require().NoError(err)
		suite.Assert().Equal(first, second)
	}
}

func (suite *InstrumentTestSuite) TestNormalizeUnknownAliasFails() {
	_, err := suite.table.Normalize("DOGEUSDT")
	suite.Require().Error(err)
	suite.Assert().Equal(errors.ErrCodeUnknownInstrument, errors.GetCode(err))
}

func (suite *InstrumentTestSuite) TestRegisterConflictingAliasFails() {
	err := suite.table.Register("ETHUSDT", AssetClassCrypto, "XBTUSDT")
	suite.Require().Error(err)
	suite.Assert().Equal(errors.ErrCodeInvalidParameter, errors.GetCode(err))
}

func (suite *InstrumentTestSuite) TestKnown() {
	suite.Assert().True(suite.table.Known("XBTUSDT"))
	suite.Assert().False(suite.table.Known("AAPL"))
}

func (suite *InstrumentTestSuite) TestSymbols() {
	symbols := suite.table.Symbols()
	suite.Assert().ElementsMatch([]string{"BTCUSDT", "EURUSD"}, symbols)
}
