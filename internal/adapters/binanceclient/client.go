// Package binanceclient implements the exchange port against Binance
// USDT-M futures using the go-binance library. The account is expected to
// run in hedge (dual-side) position mode, matching the long/short posture
// sides the rest of the system works with.
package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"llmTraderBot/internal/domain"
	"llmTraderBot/internal/ports"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
)

const (
	// Base URLs
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"
)

// Client implements the ports.ExchangeClient interface using the go-binance library.
type Client struct {
	futuresClient        *futures.Client
	logger               ports.Logger
	reconnectDelay       time.Duration
	maxReconnectAttempts int
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey               string
	SecretKey            string
	UseTestnet           bool
	Logger               ports.Logger
	ReconnectDelay       time.Duration // Reconnect delay (e.g., 1 * time.Second)
	MaxReconnectAttempts int           // Max attempts before giving up
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("%w: API key and secret are required", ports.ErrInvalidAPIKeys)
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)

	// Set BaseURL directly instead of using global futures.UseTestnet
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
		cfg.Logger.Info(context.Background(), "Binance client configured for Testnet", map[string]interface{}{"baseURL": client.BaseURL})
	} else {
		client.BaseURL = baseURLProduction
		cfg.Logger.Info(context.Background(), "Binance client configured for Production", map[string]interface{}{"baseURL": client.BaseURL})
	}

	// Default reconnect settings if not provided
	reconnectDelay := cfg.ReconnectDelay
	if reconnectDelay <= 0 {
		reconnectDelay = 1 * time.Second
	}
	maxAttempts := cfg.MaxReconnectAttempts
	if maxAttempts <= 0 {
		maxAttempts = 10
	}

	return &Client{
		futuresClient:        client,
		logger:               cfg.Logger,
		reconnectDelay:       reconnectDelay,
		maxReconnectAttempts: maxAttempts,
	}, nil
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		// Map specific Binance error codes to custom errors
		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1021: // Timestamp for this request is outside of the recvWindow
			mappedErr = ports.ErrTimeout
		case -1022: // Signature for this request is not valid
			mappedErr = ports.ErrAuthenticationFailed
		case -1101, -1102, -1103, -1104, -1106, -1111, -1121, -4003, -4014, -4015: // Parameter/Request format errors
			mappedErr = ports.ErrInvalidRequest
		case -2010, -2022: // New order rejected / ReduceOnly order rejected
			mappedErr = ports.ErrOrderRejected
		case -2011: // Cancel order rejected
			mappedErr = ports.ErrCancelFailed
		case -2013: // Order does not exist
			mappedErr = ports.ErrOrderNotFound
		case -2014, -2015: // API-key format invalid / invalid key, IP, permissions
			mappedErr = ports.ErrInvalidAPIKeys
		case -2019, -3005: // Margin is insufficient / insufficient balance
			mappedErr = ports.ErrMarginInsufficient
		case -4044: // Position not found
			mappedErr = ports.ErrPositionNotFound
		default:
			mappedErr = ports.ErrUnknown
		}
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

	// Handle non-API errors (network, context cancellation, etc.)
	var finalErr error
	if errors.Is(err, context.DeadlineExceeded) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	} else if errors.Is(err, context.Canceled) {
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	} else if strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset by peer") {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	} else {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// Ping checks the connectivity to the exchange API.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	err := c.withReconnect(ctx, op, func(ctx context.Context) error {
		return c.futuresClient.NewPingService().Do(ctx)
	})
	if err != nil {
		return c.handleError(ctx, fmt.Errorf("ping failed: %w", err), op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// withReconnect runs fn up to maxReconnectAttempts times, waiting
// reconnectDelay between attempts. Used for connectivity checks where a
// transient network failure should not take the service down.
func (c *Client) withReconnect(ctx context.Context, op string, fn func(context.Context) error) error {
	var err error
	for attempt := 1; attempt <= c.maxReconnectAttempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt == c.maxReconnectAttempts {
			break
		}
		c.logger.Warn(ctx, op+": attempt failed, retrying", map[string]interface{}{
			"attempt": attempt,
			"max":     c.maxReconnectAttempts,
			"delay":   c.reconnectDelay.String(),
			"error":   err.Error(),
		})
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.reconnectDelay):
		}
	}
	return err
}

// GetServerTime retrieves the current server time from the exchange.
func (c *Client) GetServerTime(ctx context.Context) (time.Time, error) {
	op := "GetServerTime"
	serverTimeMs, err := c.futuresClient.NewServerTimeService().Do(ctx)
	if err != nil {
		return time.Time{}, c.handleError(ctx, err, op)
	}
	return time.UnixMilli(serverTimeMs), nil
}

// GetAccountSnapshot retrieves total and available USDT-margined equity.
func (c *Client) GetAccountSnapshot(ctx context.Context) (*domain.AccountSnapshot, error) {
	op := "GetAccountSnapshot"
	account, err := c.futuresClient.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	total, err := strconv.ParseFloat(account.TotalMarginBalance, 64)
	if err != nil {
		parseErr := fmt.Errorf("could not parse total margin balance '%s': %w", account.TotalMarginBalance, err)
		return nil, c.handleError(ctx, parseErr, op)
	}
	avail, err := strconv.ParseFloat(account.AvailableBalance, 64)
	if err != nil {
		parseErr := fmt.Errorf("could not parse available balance '%s': %w", account.AvailableBalance, err)
		return nil, c.handleError(ctx, parseErr, op)
	}
	return &domain.AccountSnapshot{TotalEquity: total, AvailableEquity: avail}, nil
}

// GetTickerPrice retrieves the last ticker price for a given symbol.
func (c *Client) GetTickerPrice(ctx context.Context, symbol string) (float64, error) {
	op := "GetTickerPrice"
	tickers, err := c.futuresClient.NewListPriceChangeStatsService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}
	if len(tickers) == 0 {
		err := fmt.Errorf("no ticker data returned for symbol %s", symbol)
		return 0, c.handleError(ctx, err, op)
	}

	price, err := strconv.ParseFloat(tickers[0].LastPrice, 64)
	if err != nil {
		parseErr := fmt.Errorf("could not parse price '%s': %w", tickers[0].LastPrice, err)
		return 0, c.handleError(ctx, parseErr, op)
	}
	return price, nil
}

// GetInstrument retrieves trading rules for a symbol. Binance USDT-M
// quantities are denominated in the base asset, so the unit value is 1.
func (c *Client) GetInstrument(ctx context.Context, symbol string) (*domain.Instrument, error) {
	op := "GetInstrument"
	info, err := c.futuresClient.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		lot := s.LotSizeFilter()
		if lot == nil {
			break
		}
		step, err := strconv.ParseFloat(lot.StepSize, 64)
		if err != nil || step <= 0 {
			parseErr := fmt.Errorf("could not parse step size '%s' for %s: %w", lot.StepSize, symbol, err)
			return nil, c.handleError(ctx, parseErr, op)
		}
		return &domain.Instrument{ID: symbol, LotStep: step, UnitValue: 1}, nil
	}

	err = fmt.Errorf("symbol %s not found in exchange info", symbol)
	return nil, c.handleError(ctx, err, op)
}

// GetPosition retrieves the open position for a symbol, if any, with
// stop-loss/take-profit triggers resolved from open conditional orders.
func (c *Client) GetPosition(ctx context.Context, symbol string) (*domain.Position, error) {
	op := "GetPosition"
	positions, err := c.futuresClient.NewGetPositionRiskService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	var raw *futures.PositionRisk
	for _, p := range positions {
		qty, _ := strconv.ParseFloat(p.PositionAmt, 64)
		if qty != 0 {
			raw = p
			break
		}
	}
	if raw == nil {
		c.logger.Debug(ctx, op+": no position for symbol", map[string]interface{}{"symbol": symbol})
		return nil, nil
	}

	qty, _ := strconv.ParseFloat(raw.PositionAmt, 64)
	entry, _ := strconv.ParseFloat(raw.EntryPrice, 64)
	margin, _ := strconv.ParseFloat(raw.IsolatedMargin, 64)
	breakeven, _ := strconv.ParseFloat(raw.BreakEvenPrice, 64)
	lev, _ := strconv.Atoi(raw.Leverage)

	pos := &domain.Position{
		Instrument:     symbol,
		Side:           toDomainSide(futures.PositionSideType(raw.PositionSide), qty),
		SizeContracts:  absFloat(qty),
		EntryPrice:     entry,
		Margin:         margin,
		Leverage:       lev,
		BreakevenPrice: breakeven,
	}

	algos, err := c.GetAlgoOrders(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("resolving protection for %s: %w", symbol, err)
	}
	for _, a := range algos {
		if a.PositionSide != pos.Side {
			continue
		}
		switch a.Kind {
		case domain.AlgoStopLoss:
			pos.StopLoss = a.TriggerPrice
		case domain.AlgoTakeProfit:
			pos.TakeProfit = a.TriggerPrice
		}
	}
	return pos, nil
}

// SetLeverage sets the leverage for a specific symbol. Binance applies
// leverage per symbol, not per posture side; the side argument is accepted
// for interface symmetry.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int, _ domain.PositionSide) error {
	op := "SetLeverage"
	_, err := c.futuresClient.NewChangeLeverageService().
		Symbol(symbol).
		Leverage(leverage).
		Do(ctx)
	if err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "leverage": leverage})
	return nil
}

// PlaceMarketOrder places a market order. In hedge mode an order against
// the posture side reduces it, so the reduceOnly flag needs no dedicated
// parameter. Attached protection is emulated with follow-up conditional
// orders since USDT-M has no atomic attach.
func (c *Client) PlaceMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, posSide domain.PositionSide, reduceOnly bool, quantity string, attach *ports.AttachedProtection) (*ports.OrderResponse, error) {
	op := "PlaceMarketOrder"

	order, err := c.futuresClient.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideType(side)).
		PositionSide(toBinanceSide(posSide)).
		Type(futures.OrderTypeMarket).
		Quantity(quantity).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	resp := translateOrderResponse(order, symbol)
	c.logger.Info(ctx, op+" successful", map[string]interface{}{
		"symbol": symbol, "side": side, "posSide": posSide, "quantity": quantity,
		"reduceOnly": reduceOnly, "orderID": resp.OrderID, "avgPrice": resp.AvgPrice,
	})

	if attach != nil && !reduceOnly {
		if attach.StopLoss > 0 {
			if _, err := c.PlaceAlgoOrder(ctx, symbol, posSide, attach.StopLoss, domain.AlgoStopLoss); err != nil {
				return resp, fmt.Errorf("order %s filled but stop loss attach failed: %w", resp.OrderID, err)
			}
		}
		if attach.TakeProfit > 0 {
			if _, err := c.PlaceAlgoOrder(ctx, symbol, posSide, attach.TakeProfit, domain.AlgoTakeProfit); err != nil {
				return resp, fmt.Errorf("order %s filled but take profit attach failed: %w", resp.OrderID, err)
			}
		}
	}
	return resp, nil
}

// PlaceAlgoOrder places a close-position conditional order triggered at the
// given price: STOP_MARKET for stops, TAKE_PROFIT_MARKET for take profits.
func (c *Client) PlaceAlgoOrder(ctx context.Context, symbol string, posSide domain.PositionSide, trigger float64, kind domain.AlgoOrderKind) (string, error) {
	op := "PlaceAlgoOrder"

	orderType := futures.OrderTypeStopMarket
	if kind == domain.AlgoTakeProfit {
		orderType = futures.OrderTypeTakeProfitMarket
	}

	order, err := c.futuresClient.NewCreateOrderService().
		Symbol(symbol).
		Side(closingSide(posSide)).
		PositionSide(toBinanceSide(posSide)).
		Type(orderType).
		StopPrice(strconv.FormatFloat(trigger, 'f', -1, 64)).
		ClosePosition(true).
		Do(ctx)
	if err != nil {
		return "", c.handleError(ctx, err, op)
	}

	c.logger.Info(ctx, op+" successful", map[string]interface{}{
		"symbol": symbol, "posSide": posSide, "trigger": trigger, "kind": kind, "orderID": order.OrderID,
	})
	return strconv.FormatInt(order.OrderID, 10), nil
}

// GetAlgoOrders lists open conditional orders for a symbol.
func (c *Client) GetAlgoOrders(ctx context.Context, symbol string) ([]*domain.AlgoOrder, error) {
	op := "GetAlgoOrders"
	open, err := c.futuresClient.NewListOpenOrdersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	var orders []*domain.AlgoOrder
	for _, o := range open {
		var kind domain.AlgoOrderKind
		switch o.Type {
		case futures.OrderTypeStopMarket:
			kind = domain.AlgoStopLoss
		case futures.OrderTypeTakeProfitMarket:
			kind = domain.AlgoTakeProfit
		default:
			continue
		}
		trigger, err := strconv.ParseFloat(o.StopPrice, 64)
		if err != nil || trigger <= 0 {
			continue
		}
		orders = append(orders, &domain.AlgoOrder{
			ID:           strconv.FormatInt(o.OrderID, 10),
			Instrument:   symbol,
			PositionSide: toDomainSide(o.PositionSide, 0),
			TriggerPrice: trigger,
			Kind:         kind,
		})
	}
	return orders, nil
}

// CancelAlgoOrders cancels open conditional orders by ID.
func (c *Client) CancelAlgoOrders(ctx context.Context, symbol string, ids []string) error {
	op := "CancelAlgoOrders"
	for _, id := range ids {
		orderID, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: non-numeric order ID %q", ports.ErrInvalidRequest, id)
		}
		if _, err := c.futuresClient.NewCancelOrderService().Symbol(symbol).OrderID(orderID).Do(ctx); err != nil {
			return c.handleError(ctx, err, op)
		}
	}
	return nil
}

// ClosePosition closes the full position on one posture side at market.
func (c *Client) ClosePosition(ctx context.Context, symbol string, side domain.PositionSide) error {
	op := "ClosePosition"

	positions, err := c.futuresClient.NewGetPositionRiskService().Symbol(symbol).Do(ctx)
	if err != nil {
		return c.handleError(ctx, err, op)
	}

	var qty float64
	for _, p := range positions {
		if toDomainSide(futures.PositionSideType(p.PositionSide), 0) != side {
			continue
		}
		qty, _ = strconv.ParseFloat(p.PositionAmt, 64)
		break
	}
	if qty == 0 {
		return fmt.Errorf("%s: no open %s position on %s: %w", op, side, symbol, ports.ErrPositionNotFound)
	}

	_, err = c.futuresClient.NewCreateOrderService().
		Symbol(symbol).
		Side(closingSide(side)).
		PositionSide(toBinanceSide(side)).
		Type(futures.OrderTypeMarket).
		Quantity(strconv.FormatFloat(absFloat(qty), 'f', -1, 64)).
		Do(ctx)
	if err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "posSide": side, "quantity": absFloat(qty)})
	return nil
}

// --- helpers ---

func translateOrderResponse(order *futures.CreateOrderResponse, symbol string) *ports.OrderResponse {
	avgPrice, _ := strconv.ParseFloat(order.AvgPrice, 64)
	executed, _ := strconv.ParseFloat(order.ExecutedQuantity, 64)
	return &ports.OrderResponse{
		OrderID:       strconv.FormatInt(order.OrderID, 10),
		ClientOrderID: order.ClientOrderID,
		Instrument:    symbol,
		AvgPrice:      avgPrice,
		ExecutedQty:   executed,
		Status:        string(order.Status),
		Timestamp:     time.UnixMilli(order.UpdateTime),
	}
}

func toBinanceSide(side domain.PositionSide) futures.PositionSideType {
	if side == domain.PositionShort {
		return futures.PositionSideTypeShort
	}
	return futures.PositionSideTypeLong
}

// toDomainSide maps a Binance position side onto the domain's. In one-way
// mode the side is BOTH and the sign of the quantity decides.
func toDomainSide(side futures.PositionSideType, qty float64) domain.PositionSide {
	switch side {
	case futures.PositionSideTypeLong:
		return domain.PositionLong
	case futures.PositionSideTypeShort:
		return domain.PositionShort
	default:
		if qty < 0 {
			return domain.PositionShort
		}
		return domain.PositionLong
	}
}

func closingSide(posSide domain.PositionSide) futures.SideType {
	if posSide == domain.PositionLong {
		return futures.SideTypeSell
	}
	return futures.SideTypeBuy
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
