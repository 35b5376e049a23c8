package executor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llmTraderBot/internal/domain"
	"llmTraderBot/internal/ports"
)

// --- Mocks ---

type nopLogger struct{}

func (nopLogger) Debug(context.Context, string, ...map[string]interface{})        {}
func (nopLogger) Info(context.Context, string, ...map[string]interface{})         {}
func (nopLogger) Warn(context.Context, string, ...map[string]interface{})         {}
func (nopLogger) Error(context.Context, error, string, ...map[string]interface{}) {}

type mockExchange struct {
	calls []string

	position    *domain.Position
	positionErr error

	setLeverageErr error

	placeOrderFn func(size string, reduceOnly bool, attach *ports.AttachedProtection) (*ports.OrderResponse, error)
	placedSizes  []string

	algoOrders   []*domain.AlgoOrder
	algoOrderErr error
	placeAlgoFn  func(trigger float64, kind domain.AlgoOrderKind) (string, error)
	cancelFn     func(ids []string) error

	closeFn func(side domain.PositionSide) error
}

func (m *mockExchange) GetServerTime(ctx context.Context) (time.Time, error) { return time.Now(), nil }
func (m *mockExchange) Ping(ctx context.Context) error                       { return nil }
func (m *mockExchange) GetAccountSnapshot(ctx context.Context) (*domain.AccountSnapshot, error) {
	return &domain.AccountSnapshot{TotalEquity: 100, AvailableEquity: 100}, nil
}
func (m *mockExchange) GetTickerPrice(ctx context.Context, instrument string) (float64, error) {
	return 3000, nil
}
func (m *mockExchange) GetInstrument(ctx context.Context, instrument string) (*domain.Instrument, error) {
	return &domain.Instrument{ID: instrument, LotStep: 0.01, UnitValue: 0.1}, nil
}
func (m *mockExchange) GetPosition(ctx context.Context, instrument string) (*domain.Position, error) {
	m.calls = append(m.calls, "GetPosition")
	return m.position, m.positionErr
}
func (m *mockExchange) SetLeverage(ctx context.Context, instrument string, leverage int, side domain.PositionSide) error {
	m.calls = append(m.calls, "SetLeverage")
	return m.setLeverageErr
}
func (m *mockExchange) PlaceMarketOrder(ctx context.Context, instrument string, side domain.OrderSide, posSide domain.PositionSide, reduceOnly bool, size string, attach *ports.AttachedProtection) (*ports.OrderResponse, error) {
	m.calls = append(m.calls, "PlaceMarketOrder")
	m.placedSizes = append(m.placedSizes, size)
	if m.placeOrderFn != nil {
		return m.placeOrderFn(size, reduceOnly, attach)
	}
	return &ports.OrderResponse{OrderID: "order-1", Instrument: instrument}, nil
}
func (m *mockExchange) PlaceAlgoOrder(ctx context.Context, instrument string, posSide domain.PositionSide, trigger float64, kind domain.AlgoOrderKind) (string, error) {
	m.calls = append(m.calls, fmt.Sprintf("PlaceAlgoOrder:%s", kind))
	if m.placeAlgoFn != nil {
		return m.placeAlgoFn(trigger, kind)
	}
	return fmt.Sprintf("algo-%s", kind), nil
}
func (m *mockExchange) GetAlgoOrders(ctx context.Context, instrument string) ([]*domain.AlgoOrder, error) {
	m.calls = append(m.calls, "GetAlgoOrders")
	return m.algoOrders, m.algoOrderErr
}
func (m *mockExchange) CancelAlgoOrders(ctx context.Context, instrument string, ids []string) error {
	m.calls = append(m.calls, fmt.Sprintf("CancelAlgoOrders:%v", ids))
	if m.cancelFn != nil {
		return m.cancelFn(ids)
	}
	return nil
}
func (m *mockExchange) ClosePosition(ctx context.Context, instrument string, side domain.PositionSide) error {
	m.calls = append(m.calls, fmt.Sprintf("ClosePosition:%s", side))
	if m.closeFn != nil {
		return m.closeFn(side)
	}
	return nil
}

func newTestExecutor(t *testing.T, m *mockExchange) *Executor {
	t.Helper()
	e, err := NewExecutor(m, nopLogger{}, 0.20, 2)
	require.NoError(t, err)
	return e
}

func openReq() OpenRequest {
	return OpenRequest{
		Instrument: "ETH-USDT-SWAP",
		Action:     domain.ActionBuy,
		Size:       1.00,
		LotStep:    0.01,
		Leverage:   10,
		StopLoss:   2900,
		TakeProfit: 3300,
	}
}

// --- Execute ---

func TestExecute_ShrinkSequenceThenExhausted(t *testing.T) {
	m := &mockExchange{}
	m.placeOrderFn = func(size string, reduceOnly bool, attach *ports.AttachedProtection) (*ports.OrderResponse, error) {
		return nil, fmt.Errorf("code 51008: %w", ports.ErrMarginInsufficient)
	}
	e := newTestExecutor(t, m)

	_, err := e.Execute(context.Background(), openReq())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ports.ErrMarginInsufficient))
	assert.Equal(t, []string{"1.00", "0.80", "0.64"}, m.placedSizes)
}

func TestExecute_SucceedsAfterOneShrink(t *testing.T) {
	m := &mockExchange{}
	attempts := 0
	m.placeOrderFn = func(size string, reduceOnly bool, attach *ports.AttachedProtection) (*ports.OrderResponse, error) {
		attempts++
		if attempts == 1 {
			return nil, ports.ErrMarginInsufficient
		}
		return &ports.OrderResponse{OrderID: "order-2"}, nil
	}
	e := newTestExecutor(t, m)

	res, err := e.Execute(context.Background(), openReq())
	require.NoError(t, err)
	assert.Equal(t, "order-2", res.OrderID)
	assert.Equal(t, 0.80, res.FinalSize)
	assert.Equal(t, 1, res.Retries)
}

func TestExecute_NonMarginErrorNotRetried(t *testing.T) {
	m := &mockExchange{}
	m.placeOrderFn = func(size string, reduceOnly bool, attach *ports.AttachedProtection) (*ports.OrderResponse, error) {
		return nil, ports.ErrOrderRejected
	}
	e := newTestExecutor(t, m)

	_, err := e.Execute(context.Background(), openReq())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ports.ErrOrderRejected))
	assert.Len(t, m.placedSizes, 1)
}

func TestExecute_AbortsWhenShrunkBelowLotStep(t *testing.T) {
	m := &mockExchange{}
	m.placeOrderFn = func(size string, reduceOnly bool, attach *ports.AttachedProtection) (*ports.OrderResponse, error) {
		return nil, ports.ErrMarginInsufficient
	}
	e := newTestExecutor(t, m)

	req := openReq()
	req.Size = 1
	req.LotStep = 1
	_, err := e.Execute(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ports.ErrMarginInsufficient))
	assert.Len(t, m.placedSizes, 1, "a whole-contract order cannot shrink")
}

func TestExecute_OppositeDirectionReducesWithoutProtection(t *testing.T) {
	m := &mockExchange{position: &domain.Position{
		Instrument:    "ETH-USDT-SWAP",
		Side:          domain.PositionLong,
		SizeContracts: 2,
	}}
	var gotReduceOnly bool
	var gotAttach *ports.AttachedProtection
	m.placeOrderFn = func(size string, reduceOnly bool, attach *ports.AttachedProtection) (*ports.OrderResponse, error) {
		gotReduceOnly = reduceOnly
		gotAttach = attach
		return &ports.OrderResponse{OrderID: "order-3"}, nil
	}
	e := newTestExecutor(t, m)

	req := openReq()
	req.Action = domain.ActionSell
	res, err := e.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, gotReduceOnly)
	assert.Nil(t, gotAttach, "reduce orders must not attach triggers")
	assert.True(t, res.ReduceOnly)
	assert.NotContains(t, m.calls, "SetLeverage", "leverage is never touched on a reduce")
}

func TestExecute_LeverageFailureIsFatal(t *testing.T) {
	m := &mockExchange{setLeverageErr: ports.ErrExchangeUnavailable}
	e := newTestExecutor(t, m)

	_, err := e.Execute(context.Background(), openReq())
	require.Error(t, err)
	assert.Empty(t, m.placedSizes, "no order may be placed when leverage setup fails")
}

func TestResolveSide(t *testing.T) {
	long := &domain.Position{Side: domain.PositionLong, SizeContracts: 1}
	short := &domain.Position{Side: domain.PositionShort, SizeContracts: 1}

	tests := []struct {
		name       string
		action     domain.Action
		pos        *domain.Position
		wantSide   domain.OrderSide
		wantPos    domain.PositionSide
		wantReduce bool
	}{
		{"open long", domain.ActionBuy, nil, domain.OrderSideBuy, domain.PositionLong, false},
		{"open short", domain.ActionSell, nil, domain.OrderSideSell, domain.PositionShort, false},
		{"add to long", domain.ActionBuy, long, domain.OrderSideBuy, domain.PositionLong, false},
		{"add to short", domain.ActionSell, short, domain.OrderSideSell, domain.PositionShort, false},
		{"reduce long", domain.ActionSell, long, domain.OrderSideSell, domain.PositionLong, true},
		{"reduce short", domain.ActionBuy, short, domain.OrderSideBuy, domain.PositionShort, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			side, posSide, reduce := resolveSide(tt.action, tt.pos)
			assert.Equal(t, tt.wantSide, side)
			assert.Equal(t, tt.wantPos, posSide)
			assert.Equal(t, tt.wantReduce, reduce)
		})
	}
}

// --- CloseAny ---

func TestCloseAny_LongFirst(t *testing.T) {
	m := &mockExchange{}
	e := newTestExecutor(t, m)

	side, err := e.CloseAny(context.Background(), "ETH-USDT-SWAP")
	require.NoError(t, err)
	assert.Equal(t, domain.PositionLong, side)
	assert.Equal(t, []string{"ClosePosition:long"}, m.calls)
}

func TestCloseAny_FallsBackToShort(t *testing.T) {
	m := &mockExchange{}
	m.closeFn = func(side domain.PositionSide) error {
		if side == domain.PositionLong {
			return ports.ErrPositionNotFound
		}
		return nil
	}
	e := newTestExecutor(t, m)

	side, err := e.CloseAny(context.Background(), "ETH-USDT-SWAP")
	require.NoError(t, err)
	assert.Equal(t, domain.PositionShort, side)
	assert.Equal(t, []string{"ClosePosition:long", "ClosePosition:short"}, m.calls)
}

func TestCloseAny_UnexpectedLongErrorStopsThere(t *testing.T) {
	m := &mockExchange{}
	m.closeFn = func(side domain.PositionSide) error {
		return ports.ErrRateLimited
	}
	e := newTestExecutor(t, m)

	_, err := e.CloseAny(context.Background(), "ETH-USDT-SWAP")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ports.ErrRateLimited))
	assert.Equal(t, []string{"ClosePosition:long"}, m.calls, "short side must not be attempted")
}

func TestCloseAny_BothSidesFail(t *testing.T) {
	m := &mockExchange{}
	m.closeFn = func(side domain.PositionSide) error {
		if side == domain.PositionLong {
			return ports.ErrPositionNotFound
		}
		return ports.ErrExchangeUnavailable
	}
	e := newTestExecutor(t, m)

	_, err := e.CloseAny(context.Background(), "ETH-USDT-SWAP")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ports.ErrExchangeUnavailable))
	assert.Contains(t, err.Error(), "both sides")
}
