package executor

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llmTraderBot/internal/domain"
	"llmTraderBot/internal/ports"
)

func protectedLong() (*domain.Position, []*domain.AlgoOrder) {
	pos := &domain.Position{
		Instrument:    "ETH-USDT-SWAP",
		Side:          domain.PositionLong,
		SizeContracts: 1,
		EntryPrice:    3000,
		StopLoss:      2900,
		TakeProfit:    3300,
	}
	orders := []*domain.AlgoOrder{
		{ID: "old-sl", Instrument: pos.Instrument, PositionSide: domain.PositionLong, TriggerPrice: 2900, Kind: domain.AlgoStopLoss},
		{ID: "old-tp", Instrument: pos.Instrument, PositionSide: domain.PositionLong, TriggerPrice: 3300, Kind: domain.AlgoTakeProfit},
	}
	return pos, orders
}

func TestReconcileProtection_PlacesBeforeCanceling(t *testing.T) {
	pos, orders := protectedLong()
	m := &mockExchange{algoOrders: orders}
	e := newTestExecutor(t, m)

	err := e.ReconcileProtection(context.Background(), pos, 2950, 3350)
	require.NoError(t, err)

	require.Equal(t, []string{
		"GetAlgoOrders",
		"PlaceAlgoOrder:SL",
		"PlaceAlgoOrder:TP",
		"CancelAlgoOrders:[old-sl old-tp]",
	}, m.calls, "new triggers must be live before the old ones go away")
}

func TestReconcileProtection_StopOnlyLeavesTakeProfitAlone(t *testing.T) {
	pos, orders := protectedLong()
	m := &mockExchange{algoOrders: orders}
	e := newTestExecutor(t, m)

	err := e.ReconcileProtection(context.Background(), pos, 2950, 0)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"GetAlgoOrders",
		"PlaceAlgoOrder:SL",
		"CancelAlgoOrders:[old-sl]",
	}, m.calls, "the pending take profit must survive a stop-only update")
}

func TestReconcileProtection_PlacementFailureLeavesOldOrders(t *testing.T) {
	pos, orders := protectedLong()
	m := &mockExchange{algoOrders: orders}
	m.placeAlgoFn = func(trigger float64, kind domain.AlgoOrderKind) (string, error) {
		return "", ports.ErrOrderRejected
	}
	e := newTestExecutor(t, m)

	err := e.ReconcileProtection(context.Background(), pos, 2950, 3350)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ports.ErrOrderRejected))
	for _, call := range m.calls {
		assert.NotContains(t, call, "CancelAlgoOrders", "no cancel may happen when placement fails")
	}
}

func TestReconcileProtection_TakeProfitFailureRollsBackNewStop(t *testing.T) {
	pos, orders := protectedLong()
	m := &mockExchange{algoOrders: orders}
	m.placeAlgoFn = func(trigger float64, kind domain.AlgoOrderKind) (string, error) {
		if kind == domain.AlgoTakeProfit {
			return "", ports.ErrOrderRejected
		}
		return "new-sl", nil
	}
	e := newTestExecutor(t, m)

	err := e.ReconcileProtection(context.Background(), pos, 2950, 3350)
	require.Error(t, err)

	assert.Contains(t, m.calls, "CancelAlgoOrders:[new-sl]", "the just-placed stop must be rolled back")
	assert.NotContains(t, m.calls, "CancelAlgoOrders:[old-sl old-tp]", "the prior generation stays in place")
}

func TestReconcileProtection_IgnoresOtherSideOrders(t *testing.T) {
	pos, _ := protectedLong()
	m := &mockExchange{algoOrders: []*domain.AlgoOrder{
		{ID: "short-sl", Instrument: pos.Instrument, PositionSide: domain.PositionShort, TriggerPrice: 3200, Kind: domain.AlgoStopLoss},
	}}
	e := newTestExecutor(t, m)

	err := e.ReconcileProtection(context.Background(), pos, 2950, 0)
	require.NoError(t, err)
	for _, call := range m.calls {
		assert.NotContains(t, call, "short-sl", "orders on the other posture side are untouched")
	}
}

func TestReconcileProtection_CancelFailureIsNotFatal(t *testing.T) {
	pos, orders := protectedLong()
	m := &mockExchange{algoOrders: orders}
	m.cancelFn = func(ids []string) error { return fmt.Errorf("venue hiccup") }
	e := newTestExecutor(t, m)

	err := e.ReconcileProtection(context.Background(), pos, 2950, 3350)
	assert.NoError(t, err, "new protection is live, stale orders are survivable")
}

func TestReconcileProtection_Validation(t *testing.T) {
	e := newTestExecutor(t, &mockExchange{})

	err := e.ReconcileProtection(context.Background(), nil, 2950, 0)
	assert.True(t, errors.Is(err, ports.ErrPositionNotFound))

	pos, _ := protectedLong()
	err = e.ReconcileProtection(context.Background(), pos, 0, 0)
	assert.True(t, errors.Is(err, ports.ErrInvalidRequest))
}
