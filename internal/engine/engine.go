package engine

import (
	"context"
	"time"

	"github.com/quantarc/quantarc/internal/logger"
	"github.com/quantarc/quantarc/internal/types"
	"github.com/quantarc/quantarc/pkg/errors"
	"go.uber.org/zap"
)

// Stepper is a venue that advances on replayed bars. The simulated venue
// implements it; live venues advance on their own.
type Stepper interface {
	Step(candle types.Candle) error
}

// Engine drives a strategy over a bar sequence: step the venue, snapshot
// market state, collect intents, route orders. One Engine runs one strategy
// against one routed venue.
type Engine struct {
	router   *Router
	stepper  Stepper
	strategy Strategy
	logger   *logger.Logger

	// fillMarks tracks the notified fill quantity per routed order so that
	// each fill increment is announced exactly once.
	fillMarks map[string]float64
}

// NewEngine creates an execution engine.
func NewEngine(router *Router, stepper Stepper, strategy Strategy, log *logger.Logger) (*Engine, error) {
	if router == nil || stepper == nil || strategy == nil {
		return nil, errors.New(errors.ErrCodeInvalidConfiguration, "router, stepper, and strategy are required")
	}

	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Engine{
		router:    router,
		stepper:   stepper,
		strategy:  strategy,
		logger:    log,
		fillMarks: make(map[string]float64),
	}, nil
}

// Run replays the bars in order. Venue rejections of individual orders are
// logged and notified but do not abort the run; strategy errors and step
// failures do. Fills produced by a step are notified before the strategy is
// consulted again. Context cancellation stops before the next bar.
func (e *Engine) Run(ctx context.Context, bars []types.Candle) error {
	e.logger.Info("run started",
		zap.String("strategy", e.strategy.Name()),
		zap.Int("bars", len(bars)))

	for _, bar := range bars {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := e.stepper.Step(bar); err != nil {
			return err
		}

		if err := e.notifyFills(ctx); err != nil {
			return err
		}

		state, err := e.marketState(ctx, bar)
		if err != nil {
			return err
		}

		intents, err := e.strategy.GenerateSignal(ctx, state)
		if err != nil {
			return errors.Wrapf(errors.ErrCodeUnknown, err, "strategy %s failed", e.strategy.Name())
		}

		for _, intent := range intents {
			id, err := e.router.PlaceOrder(ctx, intent.Order())
			if err != nil {
				// Rejections are part of normal operation; the router has
				// already notified.
				e.logger.Warn("intent not placed",
					zap.String("strategy", e.strategy.Name()),
					zap.String("symbol", intent.Symbol),
					zap.Error(err))

				continue
			}

			e.fillMarks[id] = 0
		}
	}

	e.logger.Info("run finished", zap.String("strategy", e.strategy.Name()))

	return nil
}

// notifyFills announces fill progress on routed orders after a step. Partial
// fills notify once per increment; terminal orders drop out of tracking.
func (e *Engine) notifyFills(ctx context.Context) error {
	if len(e.fillMarks) == 0 {
		return nil
	}

	orders, err := e.router.GetOrders(ctx, types.OrderFilter{})
	if err != nil {
		return err
	}

	for _, order := range orders {
		notified, tracked := e.fillMarks[order.ID]
		if !tracked {
			continue
		}

		if order.FilledQuantity > notified {
			e.router.notify(Notification{
				Event:   EventOrderFilled,
				OrderID: order.ID,
				Symbol:  order.Symbol,
				At:      time.Now(),
			})

			e.fillMarks[order.ID] = order.FilledQuantity
		}

		if order.Status.IsTerminal() {
			delete(e.fillMarks, order.ID)
		}
	}

	return nil
}

func (e *Engine) marketState(ctx context.Context, bar types.Candle) (MarketState, error) {
	positions, err := e.router.GetPositions(ctx, types.PositionFilter{})
	if err != nil {
		return MarketState{}, err
	}

	nav, err := e.router.GetNAV(ctx)
	if err != nil {
		return MarketState{}, err
	}

	return MarketState{
		Candle:    bar,
		Positions: positions,
		NAV:       nav,
	}, nil
}
