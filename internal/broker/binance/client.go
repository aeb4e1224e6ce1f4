package binance

import (
	"context"

	"github.com/adshao/go-binance/v2"
)

// Service interfaces for mocking the Binance API

// CreateOrderService interface for creating orders.
type CreateOrderService interface {
	Symbol(symbol string) CreateOrderService
	Side(side binance.SideType) CreateOrderService
	Type(orderType binance.OrderType) CreateOrderService
	Quantity(quantity string) CreateOrderService
	Price(price string) CreateOrderService
	StopPrice(price string) CreateOrderService
	TimeInForce(tif binance.TimeInForceType) CreateOrderService
	NewClientOrderID(id string) CreateOrderService
	Do(ctx context.Context) (*binance.CreateOrderResponse, error)
}

// GetAccountService interface for getting account info.
type GetAccountService interface {
	Do(ctx context.Context) (*binance.Account, error)
}

// ListOpenOrdersService interface for listing open orders.
type ListOpenOrdersService interface {
	Symbol(symbol string) ListOpenOrdersService
	Do(ctx context.Context) ([]*binance.Order, error)
}

// ListOrdersService interface for listing all orders of a symbol.
type ListOrdersService interface {
	Symbol(symbol string) ListOrdersService
	Limit(limit int) ListOrdersService
	Do(ctx context.Context) ([]*binance.Order, error)
}

// CancelOrderService interface for canceling orders.
type CancelOrderService interface {
	Symbol(symbol string) CancelOrderService
	OrderID(orderID int64) CancelOrderService
	OrigClientOrderID(id string) CancelOrderService
	Do(ctx context.Context) (*binance.CancelOrderResponse, error)
}

// ListTradesService interface for listing account trades.
type ListTradesService interface {
	Symbol(symbol string) ListTradesService
	Limit(limit int) ListTradesService
	StartTime(startTime int64) ListTradesService
	EndTime(endTime int64) ListTradesService
	Do(ctx context.Context) ([]*binance.TradeV3, error)
}

// KlinesService interface for fetching candles.
type KlinesService interface {
	Symbol(symbol string) KlinesService
	Interval(interval string) KlinesService
	Limit(limit int) KlinesService
	Do(ctx context.Context) ([]*binance.Kline, error)
}

// DepthService interface for order book snapshots.
type DepthService interface {
	Symbol(symbol string) DepthService
	Limit(limit int) DepthService
	Do(ctx context.Context) (*binance.DepthResponse, error)
}

// RecentTradesService interface for venue-wide recent trades.
type RecentTradesService interface {
	Symbol(symbol string) RecentTradesService
	Limit(limit int) RecentTradesService
	Do(ctx context.Context) ([]*binance.Trade, error)
}

// ListPricesService interface for last traded prices.
type ListPricesService interface {
	Symbol(symbol string) ListPricesService
	Do(ctx context.Context) ([]*binance.SymbolPrice, error)
}

// StartUserStreamService interface for issuing user data stream listen keys.
type StartUserStreamService interface {
	Do(ctx context.Context) (string, error)
}

// Client interface abstracts the Binance client for testing.
type Client interface {
	NewCreateOrderService() CreateOrderService
	NewGetAccountService() GetAccountService
	NewListOpenOrdersService() ListOpenOrdersService
	NewListOrdersService() ListOrdersService
	NewCancelOrderService() CancelOrderService
	NewListTradesService() ListTradesService
	NewKlinesService() KlinesService
	NewDepthService() DepthService
	NewRecentTradesService() RecentTradesService
	NewListPricesService() ListPricesService
	NewStartUserStreamService() StartUserStreamService
}

// realClient wraps the actual binance.Client.
type realClient struct {
	client *binance.Client
}

func (r *realClient) NewCreateOrderService() CreateOrderService {
	return &realCreateOrderService{service: r.client.NewCreateOrderService()}
}

func (r *realClient) NewGetAccountService() GetAccountService {
	return &realGetAccountService{service: r.client.NewGetAccountService()}
}

func (r *realClient) NewListOpenOrdersService() ListOpenOrdersService {
	return &realListOpenOrdersService{service: r.client.NewListOpenOrdersService()}
}

func (r *realClient) NewListOrdersService() ListOrdersService {
	return &realListOrdersService{service: r.client.NewListOrdersService()}
}

func (r *realClient) NewCancelOrderService() CancelOrderService {
	return &realCancelOrderService{service: r.client.NewCancelOrderService()}
}

func (r *realClient) NewListTradesService() ListTradesService {
	return &realListTradesService{service: r.client.NewListTradesService()}
}

func (r *realClient) NewKlinesService() KlinesService {
	return &realKlinesService{service: r.client.NewKlinesService()}
}

func (r *realClient) NewDepthService() DepthService {
	return &realDepthService{service: r.client.NewDepthService()}
}

func (r *realClient) NewRecentTradesService() RecentTradesService {
	return &realRecentTradesService{service: r.client.NewRecentTradesService()}
}

func (r *realClient) NewListPricesService() ListPricesService {
	return &realListPricesService{service: r.client.NewListPricesService()}
}

func (r *realClient) NewStartUserStreamService() StartUserStreamService {
	return &realStartUserStreamService{service: r.client.NewStartUserStreamService()}
}

// Real service wrappers

type realCreateOrderService struct {
	service *binance.CreateOrderService
}

func (s *realCreateOrderService) Symbol(symbol string) CreateOrderService {
	s.service = s.service.Symbol(symbol)

	return s
}

func (s *realCreateOrderService) Side(side binance.SideType) CreateOrderService {
	s.service = s.service.Side(side)

	return s
}

func (s *realCreateOrderService) Type(orderType binance.OrderType) CreateOrderService {
	s.service = s.service.Type(orderType)

	return s
}

func (s *realCreateOrderService) Quantity(quantity string) CreateOrderService {
	s.service = s.service.Quantity(quantity)

	return s
}

func (s *realCreateOrderService) Price(price string) CreateOrderService {
	s.service = s.service.Price(price)

	return s
}

func (s *realCreateOrderService) StopPrice(price string) CreateOrderService {
	s.service = s.service.StopPrice(price)

	return s
}

func (s *realCreateOrderService) TimeInForce(tif binance.TimeInForceType) CreateOrderService {
	s.service = s.service.TimeInForce(tif)

	return s
}

func (s *realCreateOrderService) NewClientOrderID(id string) CreateOrderService {
	s.service = s.service.NewClientOrderID(id)

	return s
}

func (s *realCreateOrderService) Do(ctx context.Context) (*binance.CreateOrderResponse, error) {
	return s.service.Do(ctx)
}

type realGetAccountService struct {
	service *binance.GetAccountService
}

func (s *realGetAccountService) Do(ctx context.Context) (*binance.Account, error) {
	return s.service.Do(ctx)
}

type realListOpenOrdersService struct {
	service *binance.ListOpenOrdersService
}

func (s *realListOpenOrdersService) Symbol(symbol string) ListOpenOrdersService {
	s.service = s.service.Symbol(symbol)

	return s
}

func (s *realListOpenOrdersService) Do(ctx context.Context) ([]*binance.Order, error) {
	return s.service.Do(ctx)
}

type realListOrdersService struct {
	service *binance.ListOrdersService
}

func (s *realListOrdersService) Symbol(symbol string) ListOrdersService {
	s.service = s.service.Symbol(symbol)

	return s
}

func (s *realListOrdersService) Limit(limit int) ListOrdersService {
	s.service = s.service.Limit(limit)

	return s
}

func (s *realListOrdersService) Do(ctx context.Context) ([]*binance.Order, error) {
	return s.service.Do(ctx)
}

type realCancelOrderService struct {
	service *binance.CancelOrderService
}

func (s *realCancelOrderService) Symbol(symbol string) CancelOrderService {
	s.service = s.service.Symbol(symbol)

	return s
}

func (s *realCancelOrderService) OrderID(orderID int64) CancelOrderService {
	s.service = s.service.OrderID(orderID)

	return s
}

func (s *realCancelOrderService) OrigClientOrderID(id string) CancelOrderService {
	s.service = s.service.OrigClientOrderID(id)

	return s
}

func (s *realCancelOrderService) Do(ctx context.Context) (*binance.CancelOrderResponse, error) {
	return s.service.Do(ctx)
}

type realListTradesService struct {
	service *binance.ListTradesService
}

func (s *realListTradesService) Symbol(symbol string) ListTradesService {
	s.service = s.service.Symbol(symbol)

	return s
}

func (s *realListTradesService) Limit(limit int) ListTradesService {
	s.service = s.service.Limit(limit)

	return s
}

func (s *realListTradesService) StartTime(startTime int64) ListTradesService {
	s.service = s.service.StartTime(startTime)

	return s
}

func (s *realListTradesService) EndTime(endTime int64) ListTradesService {
	s.service = s.service.EndTime(endTime)

	return s
}

func (s *realListTradesService) Do(ctx context.Context) ([]*binance.TradeV3, error) {
	return s.service.Do(ctx)
}

type realKlinesService struct {
	service *binance.KlinesService
}

func (s *realKlinesService) Symbol(symbol string) KlinesService {
	s.service = s.service.Symbol(symbol)

	return s
}

func (s *realKlinesService) Interval(interval string) KlinesService {
	s.service = s.service.Interval(interval)

	return s
}

func (s *realKlinesService) Limit(limit int) KlinesService {
	s.service = s.service.Limit(limit)

	return s
}

func (s *realKlinesService) Do(ctx context.Context) ([]*binance.Kline, error) {
	return s.service.Do(ctx)
}

type realDepthService struct {
	service *binance.DepthService
}

func (s *realDepthService) Symbol(symbol string) DepthService {
	s.service = s.service.Symbol(symbol)

	return s
}

func (s *realDepthService) Limit(limit int) DepthService {
	s.service = s.service.Limit(limit)

	return s
}

func (s *realDepthService) Do(ctx context.Context) (*binance.DepthResponse, error) {
	return s.service.Do(ctx)
}

type realRecentTradesService struct {
	service *binance.RecentTradesService
}

func (s *realRecentTradesService) Symbol(symbol string) RecentTradesService {
	s.service = s.service.Symbol(symbol)

	return s
}

func (s *realRecentTradesService) Limit(limit int) RecentTradesService {
	s.service = s.service.Limit(limit)

	return s
}

func (s *realRecentTradesService) Do(ctx context.Context) ([]*binance.Trade, error) {
	return s.service.Do(ctx)
}

type realListPricesService struct {
	service *binance.ListPricesService
}

func (s *realListPricesService) Symbol(symbol string) ListPricesService {
	s.service = s.service.Symbol(symbol)

	return s
}

func (s *realListPricesService) Do(ctx context.Context) ([]*binance.SymbolPrice, error) {
	return s.service.Do(ctx)
}

type realStartUserStreamService struct {
	service *binance.StartUserStreamService
}

func (s *realStartUserStreamService) Do(ctx context.Context) (string, error) {
	return s.service.Do(ctx)
}
