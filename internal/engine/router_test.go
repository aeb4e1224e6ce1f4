package engine

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/quantarc/quantarc/internal/broker"
	"github.com/quantarc/quantarc/internal/logger"
	"github.com/quantarc/quantarc/internal/types"
	"github.com/quantarc/quantarc/pkg/errors"
	"github.com/stretchr/testify/suite"
)

// fakeVenue is a controllable venue for router tests.
type fakeVenue struct {
	mu       sync.Mutex
	placed   []types.Order
	placeErr error
	seq      atomic.Int64

	// entered/release let tests observe and hold order placements in flight.
	entered chan string
	release chan struct{}

	tradable  func(symbol string) bool
	cancelErr error
	cancelled []string
}

func newFakeVenue() *fakeVenue {
	return &fakeVenue{
		tradable: func(string) bool { return true },
	}
}

func (f *fakeVenue) PlaceOrder(ctx context.Context, order types.Order) (string, error) {
	if f.entered != nil {
		f.entered <- order.Symbol
		<-f.release
	}

	if f.placeErr != nil {
		return "", f.placeErr
	}

	f.mu.Lock()
	f.placed = append(f.placed, order)
	f.mu.Unlock()

	return strconv.FormatInt(f.seq.Add(1), 10), nil
}

func (f *fakeVenue) CancelOrder(ctx context.Context, orderID string) error {
	if f.cancelErr != nil {
		return f.cancelErr
	}

	f.mu.Lock()
	f.cancelled = append(f.cancelled, orderID)
	f.mu.Unlock()

	return nil
}

func (f *fakeVenue) GetNAV(ctx context.Context) (float64, error)     { return 100000, nil }
func (f *fakeVenue) GetBalance(ctx context.Context) (float64, error) { return 100000, nil }

func (f *fakeVenue) GetOrders(ctx context.Context, filter types.OrderFilter) ([]types.Order, error) {
	return nil, nil
}

func (f *fakeVenue) GetPositions(ctx context.Context, filter types.PositionFilter) ([]types.Position, error) {
	return nil, nil
}

func (f *fakeVenue) GetTrades(ctx context.Context, filter types.TradeFilter) ([]types.Trade, error) {
	return nil, nil
}

func (f *fakeVenue) GetCandles(ctx context.Context, symbol string, granularity types.Granularity, count int) ([]types.Candle, error) {
	return nil, nil
}

func (f *fakeVenue) GetOrderBook(ctx context.Context, symbol string) (types.OrderBook, error) {
	return types.OrderBook{Symbol: symbol}, nil
}

func (f *fakeVenue) GetPublicTrades(ctx context.Context, symbol string) ([]types.Trade, error) {
	return nil, nil
}

func (f *fakeVenue) Tradable(symbol string) bool { return f.tradable(symbol) }
func (f *fakeVenue) Close() error                { return nil }

var _ broker.Broker = (*fakeVenue)(nil)

// recordingNotifier collects notifications for assertion.
type recordingNotifier struct {
	mu     sync.Mutex
	events []Notification
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{}
}

func (n *recordingNotifier) Notify(notification Notification) {
	n.mu.Lock()
	n.events = append(n.events, notification)
	n.mu.Unlock()
}

func (n *recordingNotifier) find(event Event) (Notification, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, notification := range n.events {
		if notification.Event == event {
			return notification, true
		}
	}

	return Notification{}, false
}

// waitFor blocks until the event was notified; delivery is asynchronous.
func (n *recordingNotifier) waitFor(t *testing.T, event Event) Notification {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)

	for time.Now().Before(deadline) {
		if notification, ok := n.find(event); ok {
			return notification
		}

		time.Sleep(2 * time.Millisecond)
	}

	t.Fatalf("timed out waiting for %s", event)

	return Notification{}
}

type panickingNotifier struct{}

func (panickingNotifier) Notify(Notification) {
	panic("notifier exploded")
}

type RouterTestSuite struct {
	suite.Suite
	ctx   context.Context
	venue *fakeVenue
}

func TestRouterTestSuite(t *testing.T) {
	suite.Run(t, new(RouterTestSuite))
}

func (suite *RouterTestSuite) SetupTest() {
	suite.ctx = context.Background()
	suite.venue = newFakeVenue()
}

func (suite *RouterTestSuite) marketOrder(symbol string) types.Order {
	return types.Order{
		Symbol:   symbol,
		Side:     types.SideBuy,
		Type:     types.OrderTypeMarket,
		Quantity: 1,
	}
}

func (suite *RouterTestSuite) TestUntradableInstrumentRejected() {
	suite.venue.tradable = func(symbol string) bool { return symbol == "BTCUSDT" }
	notifier := newRecordingNotifier()
	router := NewRouter(suite.venue, notifier, logger.NewNopLogger())

	_, err := router.PlaceOrder(suite.ctx, suite.marketOrder("ETHUSDT"))
	suite.Require().Error(err)
	suite.Assert().Equal(errors.ErrCodeInvalidOrder, errors.GetCode(err))
	suite.Assert().Empty(suite.venue.placed)

	notification := notifier.waitFor(suite.T(), EventOrderRejected)
	suite.Assert().Equal("ETHUSDT", notification.Symbol)
}

func (suite *RouterTestSuite) TestAcceptedOrderNotified() {
	notifier := newRecordingNotifier()
	router := NewRouter(suite.venue, notifier, logger.NewNopLogger())

	id, err := router.PlaceOrder(suite.ctx, suite.marketOrder("BTCUSDT"))
	suite.Require().NoError(err)

	notification := notifier.waitFor(suite.T(), EventOrderAccepted)
	suite.Assert().Equal(id, notification.OrderID)
	suite.Assert().Equal("BTCUSDT", notification.Symbol)
}

func (suite *RouterTestSuite) TestAuthFailureEmitsSessionEvent() {
	suite.venue.placeErr = errors.New(errors.ErrCodeAuthError, "signature rejected")
	notifier := newRecordingNotifier()
	router := NewRouter(suite.venue, notifier, logger.NewNopLogger())

	_, err := router.PlaceOrder(suite.ctx, suite.marketOrder("BTCUSDT"))
	suite.Require().Error(err)

	notifier.waitFor(suite.T(), EventOrderRejected)
	notifier.waitFor(suite.T(), EventSessionAuthFailed)
}

func (suite *RouterTestSuite) TestPanickingNotifierDoesNotAffectOrders() {
	router := NewRouter(suite.venue, panickingNotifier{}, logger.NewNopLogger())

	id, err := router.PlaceOrder(suite.ctx, suite.marketOrder("BTCUSDT"))
	suite.Require().NoError(err)
	suite.Assert().NotEmpty(id)
	suite.Assert().Len(suite.venue.placed, 1)
}

func (suite *RouterTestSuite) TestSameSymbolPlacementsSerialized() {
	suite.venue.entered = make(chan string, 2)
	suite.venue.release = make(chan struct{})
	router := NewRouter(suite.venue, nil, logger.NewNopLogger())

	for i := 0; i < 2; i++ {
		go func() {
			_, _ = router.PlaceOrder(suite.ctx, suite.marketOrder("BTCUSDT"))
		}()
	}

	// First placement enters and holds the symbol lock.
	<-suite.venue.entered

	// The second must not enter while the first is in flight.
	select {
	case <-suite.venue.entered:
		suite.Require().FailNow("second placement entered while first was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	suite.venue.release <- struct{}{}
	<-suite.venue.entered
	suite.venue.release <- struct{}{}
}

func (suite *RouterTestSuite) TestDifferentSymbolsPlaceInParallel() {
	suite.venue.entered = make(chan string, 2)
	suite.venue.release = make(chan struct{})
	router := NewRouter(suite.venue, nil, logger.NewNopLogger())

	go func() { _, _ = router.PlaceOrder(suite.ctx, suite.marketOrder("BTCUSDT")) }()
	go func() { _, _ = router.PlaceOrder(suite.ctx, suite.marketOrder("ETHUSDT")) }()

	// Both enter without either releasing: no cross-symbol serialization.
	first := <-suite.venue.entered
	second := <-suite.venue.entered
	suite.Assert().NotEqual(first, second)

	suite.venue.release <- struct{}{}
	suite.venue.release <- struct{}{}
}

func (suite *RouterTestSuite) TestCancelPassesThrough() {
	router := NewRouter(suite.venue, nil, logger.NewNopLogger())

	id, err := router.PlaceOrder(suite.ctx, suite.marketOrder("BTCUSDT"))
	suite.Require().NoError(err)

	suite.Require().NoError(router.CancelOrder(suite.ctx, id))
	suite.Assert().Equal([]string{id}, suite.venue.cancelled)
}

func (suite *RouterTestSuite) TestCancelErrorPropagates() {
	suite.venue.cancelErr = errors.New(errors.ErrCodeNotFound, "no such order")
	router := NewRouter(suite.venue, nil, logger.NewNopLogger())

	err := router.CancelOrder(suite.ctx, "missing")
	suite.Require().Error(err)
	suite.Assert().Equal(errors.ErrCodeNotFound, errors.GetCode(err))
}
