package executor

import (
	"context"
	"fmt"

	"llmTraderBot/internal/domain"
	"llmTraderBot/internal/ports"
)

// ReconcileProtection moves a position's stop-loss/take-profit triggers to
// new prices. New conditional orders are placed before the old ones are
// canceled, so the position is never unprotected; the cost is a brief window
// where both generations are pending. A zero trigger leaves that kind alone.
//
// If the take-profit placement fails after the new stop was already placed,
// the just-placed orders are canceled and the prior generation is left
// untouched.
func (e *Executor) ReconcileProtection(ctx context.Context, pos *domain.Position, newSL, newTP float64) error {
	op := "Executor.ReconcileProtection"

	if pos == nil {
		return fmt.Errorf("%w: no position to protect", ports.ErrPositionNotFound)
	}
	if newSL <= 0 && newTP <= 0 {
		return fmt.Errorf("%w: no trigger prices to reconcile", ports.ErrInvalidRequest)
	}

	existing, err := e.exchange.GetAlgoOrders(ctx, pos.Instrument)
	if err != nil {
		return fmt.Errorf("listing conditional orders for %s: %w", pos.Instrument, err)
	}

	var staleIDs []string
	for _, o := range existing {
		if o.PositionSide != pos.Side {
			continue
		}
		if (o.Kind == domain.AlgoStopLoss && newSL > 0) || (o.Kind == domain.AlgoTakeProfit && newTP > 0) {
			staleIDs = append(staleIDs, o.ID)
		}
	}

	var placedIDs []string
	if newSL > 0 {
		id, err := e.exchange.PlaceAlgoOrder(ctx, pos.Instrument, pos.Side, newSL, domain.AlgoStopLoss)
		if err != nil {
			return fmt.Errorf("placing stop loss at %v on %s: %w", newSL, pos.Instrument, err)
		}
		placedIDs = append(placedIDs, id)
	}
	if newTP > 0 {
		id, err := e.exchange.PlaceAlgoOrder(ctx, pos.Instrument, pos.Side, newTP, domain.AlgoTakeProfit)
		if err != nil {
			e.rollbackPlaced(ctx, pos.Instrument, placedIDs)
			return fmt.Errorf("placing take profit at %v on %s: %w", newTP, pos.Instrument, err)
		}
		placedIDs = append(placedIDs, id)
	}

	if len(staleIDs) > 0 {
		if err := e.exchange.CancelAlgoOrders(ctx, pos.Instrument, staleIDs); err != nil {
			// New protection is live; the stale orders are survivable noise.
			e.logger.Warn(ctx, op+": stale conditional orders not canceled", map[string]interface{}{
				"instrument": pos.Instrument,
				"orderIDs":   staleIDs,
				"error":      err.Error(),
			})
		}
	}

	e.logger.Info(ctx, op+": protection updated", map[string]interface{}{
		"instrument": pos.Instrument,
		"side":       string(pos.Side),
		"stopLoss":   newSL,
		"takeProfit": newTP,
	})
	return nil
}

func (e *Executor) rollbackPlaced(ctx context.Context, instrument string, ids []string) {
	if len(ids) == 0 {
		return
	}
	if err := e.exchange.CancelAlgoOrders(ctx, instrument, ids); err != nil {
		e.logger.Error(ctx, err, "Executor.ReconcileProtection: rollback of new conditional orders failed", map[string]interface{}{
			"instrument": instrument,
			"orderIDs":   ids,
		})
	}
}
