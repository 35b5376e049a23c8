// Package okx implements the exchange port against the OKX v5 REST API.
package okx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"llmTraderBot/internal/domain"
	"llmTraderBot/internal/ports"
)

const (
	defaultBaseURL = "https://www.okx.com"

	// Margin mode is fixed to cross; isolated would change how the margin
	// shrink-retry interacts with available equity.
	tradeMode = "cross"
)

// Config holds the parameters needed to connect to OKX.
type Config struct {
	APIKey     string
	SecretKey  string
	Passphrase string
	BaseURL    string
	IsTestnet  bool // Sends the simulated-trading header
	Timeout    time.Duration
	Logger     ports.Logger
}

// Client implements ports.ExchangeClient against OKX v5.
type Client struct {
	httpClient *http.Client
	baseURL    string
	signer     *signer
	limiter    *rate.Limiter
	logger     ports.Logger
}

// NewClient creates and validates a new OKX client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" || cfg.SecretKey == "" || cfg.Passphrase == "" {
		return nil, fmt.Errorf("okx: %w: API key, secret and passphrase are required", ports.ErrInvalidAPIKeys)
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("okx: logger is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if !strings.HasPrefix(baseURL, "https://") && !strings.Contains(baseURL, "127.0.0.1") && !strings.Contains(baseURL, "localhost") {
		return nil, fmt.Errorf("okx: base URL must use https: %s", baseURL)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		signer:     newSigner(cfg.APIKey, cfg.SecretKey, cfg.Passphrase, cfg.IsTestnet),
		// Public REST endpoints allow 20 req/2s per IP; stay under it.
		limiter: rate.NewLimiter(rate.Limit(8), 16),
		logger:  cfg.Logger,
	}, nil
}

// envelope is the OKX response wrapper with the data left raw for the
// caller to decode into the endpoint's shape.
type envelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, reqBody, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", ports.ErrContextCanceled, err)
	}

	var bodyStr string
	var bodyReader io.Reader
	if reqBody != nil {
		encoded, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("okx: encoding request body: %w", err)
		}
		bodyStr = string(encoded)
		bodyReader = bytes.NewReader(encoded)
	}

	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return fmt.Errorf("okx: building request: %w", err)
	}
	c.signer.sign(req, bodyStr)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ports.ErrContextCanceled, ctx.Err())
		}
		return fmt.Errorf("%w: %v", ports.ErrConnectionFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading response: %v", ports.ErrConnectionFailed, err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("okx http 429: %w", ports.ErrRateLimited)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("okx http %d: %w", resp.StatusCode, ports.ErrAuthenticationFailed)
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return fmt.Errorf("okx: decoding response (http %d): %w", resp.StatusCode, err)
	}
	if env.Code != "0" {
		// The envelope code can be generic while the real cause sits in the
		// first item's sCode.
		var items []orderData
		if json.Unmarshal(env.Data, &items) == nil && len(items) > 0 && items[0].SCode != "" && items[0].SCode != "0" {
			return mapError(items[0].SCode, items[0].SMsg)
		}
		return mapError(env.Code, env.Msg)
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("okx: decoding data: %w", err)
		}
	}
	return nil
}

// GetServerTime retrieves the exchange clock.
func (c *Client) GetServerTime(ctx context.Context) (time.Time, error) {
	var data []serverTimeData
	if err := c.doRequest(ctx, http.MethodGet, "/api/v5/public/time", nil, nil, &data); err != nil {
		return time.Time{}, err
	}
	if len(data) == 0 {
		return time.Time{}, fmt.Errorf("okx: empty server time response")
	}
	ms, err := strconv.ParseInt(data[0].TS, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("okx: parsing server time %q: %w", data[0].TS, err)
	}
	return time.UnixMilli(ms), nil
}

// Ping checks REST connectivity via the public time endpoint.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.GetServerTime(ctx)
	return err
}

// GetAccountSnapshot retrieves total and available USDT equity.
func (c *Client) GetAccountSnapshot(ctx context.Context) (*domain.AccountSnapshot, error) {
	query := url.Values{"ccy": {"USDT"}}
	var data []balanceData
	if err := c.doRequest(ctx, http.MethodGet, "/api/v5/account/balance", query, nil, &data); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("okx: empty balance response")
	}

	snap := &domain.AccountSnapshot{}
	snap.TotalEquity = parseFloat(data[0].TotalEq)
	for _, d := range data[0].Details {
		if d.Ccy == "USDT" {
			snap.AvailableEquity = parseFloat(d.AvailEq)
			break
		}
	}
	return snap, nil
}

// GetTickerPrice retrieves the last traded price.
func (c *Client) GetTickerPrice(ctx context.Context, instrument string) (float64, error) {
	query := url.Values{"instId": {instrument}}
	var data []tickerData
	if err := c.doRequest(ctx, http.MethodGet, "/api/v5/market/ticker", query, nil, &data); err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, fmt.Errorf("okx: no ticker for %s", instrument)
	}
	price := parseFloat(data[0].Last)
	if price <= 0 {
		return 0, fmt.Errorf("okx: unusable last price %q for %s", data[0].Last, instrument)
	}
	return price, nil
}

// GetInstrument retrieves lot step and contract unit value.
func (c *Client) GetInstrument(ctx context.Context, instrument string) (*domain.Instrument, error) {
	query := url.Values{"instType": {"SWAP"}, "instId": {instrument}}
	var data []instrumentData
	if err := c.doRequest(ctx, http.MethodGet, "/api/v5/public/instruments", query, nil, &data); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("okx: unknown instrument %s", instrument)
	}
	inst := &domain.Instrument{
		ID:        data[0].InstID,
		LotStep:   parseFloat(data[0].LotSz),
		UnitValue: parseFloat(data[0].CtVal),
	}
	if inst.LotStep <= 0 || inst.UnitValue <= 0 {
		return nil, fmt.Errorf("okx: unusable instrument rules for %s (lotSz=%q ctVal=%q)", instrument, data[0].LotSz, data[0].CtVal)
	}
	return inst, nil
}

// GetPosition retrieves the open position for an instrument, if any, with
// stop-loss/take-profit triggers resolved from pending conditional orders.
func (c *Client) GetPosition(ctx context.Context, instrument string) (*domain.Position, error) {
	query := url.Values{"instType": {"SWAP"}, "instId": {instrument}}
	var data []positionData
	if err := c.doRequest(ctx, http.MethodGet, "/api/v5/account/positions", query, nil, &data); err != nil {
		return nil, err
	}

	var raw *positionData
	for i := range data {
		if parseFloat(data[i].Pos) != 0 {
			raw = &data[i]
			break
		}
	}
	if raw == nil {
		return nil, nil
	}

	pos := &domain.Position{
		Instrument:     raw.InstID,
		Side:           domain.PositionSide(raw.PosSide),
		SizeContracts:  abs(parseFloat(raw.Pos)),
		EntryPrice:     parseFloat(raw.AvgPx),
		Margin:         parseFloat(raw.Margin),
		Leverage:       int(parseFloat(raw.Lever)),
		BreakevenPrice: parseFloat(raw.BePx),
	}

	algos, err := c.GetAlgoOrders(ctx, instrument)
	if err != nil {
		return nil, fmt.Errorf("resolving protection for %s: %w", instrument, err)
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

// SetLeverage sets leverage for one posture side.
func (c *Client) SetLeverage(ctx context.Context, instrument string, leverage int, side domain.PositionSide) error {
	req := setLeverageRequest{
		InstID:  instrument,
		Lever:   strconv.Itoa(leverage),
		MgnMode: tradeMode,
		PosSide: string(side),
	}
	return c.doRequest(ctx, http.MethodPost, "/api/v5/account/set-leverage", nil, req, nil)
}

// PlaceMarketOrder submits a market order, optionally with attached
// stop-loss/take-profit triggers that execute at market when touched.
func (c *Client) PlaceMarketOrder(ctx context.Context, instrument string, side domain.OrderSide, posSide domain.PositionSide, reduceOnly bool, size string, attach *ports.AttachedProtection) (*ports.OrderResponse, error) {
	op := "okx.PlaceMarketOrder"

	req := placeOrderRequest{
		InstID:     instrument,
		TdMode:     tradeMode,
		ClOrdID:    newClientOrderID(),
		Side:       strings.ToLower(string(side)),
		PosSide:    string(posSide),
		OrdType:    "market",
		Sz:         size,
		ReduceOnly: reduceOnly,
	}
	if attach != nil && !reduceOnly {
		spec := attachedAlgoSpec{}
		if attach.StopLoss > 0 {
			spec.SlTriggerPx = formatPrice(attach.StopLoss)
			spec.SlOrdPx = "-1"
		}
		if attach.TakeProfit > 0 {
			spec.TpTriggerPx = formatPrice(attach.TakeProfit)
			spec.TpOrdPx = "-1"
		}
		req.Attach = []attachedAlgoSpec{spec}
	}

	var data []orderData
	if err := c.doRequest(ctx, http.MethodPost, "/api/v5/trade/order", nil, req, &data); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("okx: empty order response")
	}
	if data[0].SCode != "" && data[0].SCode != "0" {
		return nil, mapError(data[0].SCode, data[0].SMsg)
	}

	c.logger.Info(ctx, op+": order placed", map[string]interface{}{
		"instrument": instrument,
		"side":       string(side),
		"posSide":    string(posSide),
		"size":       size,
		"reduceOnly": reduceOnly,
		"orderID":    data[0].OrdID,
	})

	return &ports.OrderResponse{
		OrderID:       data[0].OrdID,
		ClientOrderID: req.ClOrdID,
		Instrument:    instrument,
		Status:        "live",
		Timestamp:     time.Now(),
	}, nil
}

// PlaceAlgoOrder places a conditional order closing the full position at
// market when the trigger is touched.
func (c *Client) PlaceAlgoOrder(ctx context.Context, instrument string, posSide domain.PositionSide, trigger float64, kind domain.AlgoOrderKind) (string, error) {
	req := placeAlgoRequest{
		InstID:    instrument,
		TdMode:    tradeMode,
		Side:      closingSide(posSide),
		PosSide:   string(posSide),
		OrdType:   "conditional",
		CloseFrac: "1",
	}
	switch kind {
	case domain.AlgoStopLoss:
		req.SlTriggerPx = formatPrice(trigger)
		req.SlOrdPx = "-1"
	case domain.AlgoTakeProfit:
		req.TpTriggerPx = formatPrice(trigger)
		req.TpOrdPx = "-1"
	default:
		return "", fmt.Errorf("%w: unknown conditional order kind %q", ports.ErrInvalidRequest, kind)
	}

	var data []algoOrderResult
	if err := c.doRequest(ctx, http.MethodPost, "/api/v5/trade/order-algo", nil, req, &data); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", fmt.Errorf("okx: empty algo order response")
	}
	if data[0].SCode != "" && data[0].SCode != "0" {
		return "", mapError(data[0].SCode, data[0].SMsg)
	}
	return data[0].AlgoID, nil
}

// GetAlgoOrders lists pending conditional orders for an instrument.
func (c *Client) GetAlgoOrders(ctx context.Context, instrument string) ([]*domain.AlgoOrder, error) {
	query := url.Values{"ordType": {"conditional"}, "instId": {instrument}}
	var data []pendingAlgoData
	if err := c.doRequest(ctx, http.MethodGet, "/api/v5/trade/orders-algo-pending", query, nil, &data); err != nil {
		return nil, err
	}

	var orders []*domain.AlgoOrder
	for _, d := range data {
		if sl := parseFloat(d.SlTriggerPx); sl > 0 {
			orders = append(orders, &domain.AlgoOrder{
				ID:           d.AlgoID,
				Instrument:   d.InstID,
				PositionSide: domain.PositionSide(d.PosSide),
				TriggerPrice: sl,
				Kind:         domain.AlgoStopLoss,
			})
		}
		if tp := parseFloat(d.TpTriggerPx); tp > 0 {
			orders = append(orders, &domain.AlgoOrder{
				ID:           d.AlgoID,
				Instrument:   d.InstID,
				PositionSide: domain.PositionSide(d.PosSide),
				TriggerPrice: tp,
				Kind:         domain.AlgoTakeProfit,
			})
		}
	}
	return orders, nil
}

// CancelAlgoOrders cancels pending conditional orders by ID.
func (c *Client) CancelAlgoOrders(ctx context.Context, instrument string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	// An OCO order surfaces as two domain entries sharing one algo ID.
	seen := make(map[string]bool, len(ids))
	var reqs []cancelAlgoRequest
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		reqs = append(reqs, cancelAlgoRequest{AlgoID: id, InstID: instrument})
	}

	var data []algoOrderResult
	if err := c.doRequest(ctx, http.MethodPost, "/api/v5/trade/cancel-algos", nil, reqs, &data); err != nil {
		return fmt.Errorf("%w: %v", ports.ErrCancelFailed, err)
	}
	for _, d := range data {
		if d.SCode != "" && d.SCode != "0" {
			return fmt.Errorf("%w: %v", ports.ErrCancelFailed, mapError(d.SCode, d.SMsg))
		}
	}
	return nil
}

// ClosePosition closes the full position on one posture side at market.
func (c *Client) ClosePosition(ctx context.Context, instrument string, side domain.PositionSide) error {
	op := "okx.ClosePosition"

	req := closePositionRequest{
		InstID:  instrument,
		MgnMode: tradeMode,
		PosSide: string(side),
	}
	if err := c.doRequest(ctx, http.MethodPost, "/api/v5/trade/close-position", nil, req, nil); err != nil {
		return err
	}
	c.logger.Info(ctx, op+": position closed", map[string]interface{}{
		"instrument": instrument,
		"posSide":    string(side),
	})
	return nil
}

// --- helpers ---

func closingSide(posSide domain.PositionSide) string {
	if posSide == domain.PositionLong {
		return "sell"
	}
	return "buy"
}

// newClientOrderID derives a 32-char alphanumeric ID, the maximum OKX
// accepts for clOrdId.
func newClientOrderID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
