package executor

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"llmTraderBot/internal/domain"
	"llmTraderBot/internal/ports"
	"llmTraderBot/internal/risk"
)

// Executor turns a sized, normalized decision into exchange calls. It owns
// the margin shrink-retry loop; everything above it treats placement as a
// single operation that either succeeds or fails with a taxonomy error.
type Executor struct {
	exchange ports.ExchangeClient
	logger   ports.Logger

	shrinkFactor     float64
	marginRetryLimit int
}

// NewExecutor creates an Executor. shrinkFactor is the fraction removed from
// the order size on each margin retry (0.20 means the next attempt is 80% of
// the previous one); marginRetryLimit bounds the retries after the initial
// attempt.
func NewExecutor(exchange ports.ExchangeClient, logger ports.Logger, shrinkFactor float64, marginRetryLimit int) (*Executor, error) {
	if exchange == nil {
		return nil, errors.New("exchange client is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	if shrinkFactor <= 0 || shrinkFactor >= 1 {
		return nil, fmt.Errorf("shrink factor must be in (0, 1), got %v", shrinkFactor)
	}
	if marginRetryLimit < 0 {
		return nil, fmt.Errorf("margin retry limit must be >= 0, got %d", marginRetryLimit)
	}
	return &Executor{
		exchange:         exchange,
		logger:           logger,
		shrinkFactor:     shrinkFactor,
		marginRetryLimit: marginRetryLimit,
	}, nil
}

// OpenRequest describes an entry or add to be placed at market.
type OpenRequest struct {
	Instrument string
	Action     domain.Action // BUY or SELL
	Size       float64       // contracts, already sized and floored
	LotStep    float64
	Leverage   int
	StopLoss   float64 // 0 means no attached stop
	TakeProfit float64 // 0 means no attached take profit
}

// OpenResult reports what actually went to the exchange.
type OpenResult struct {
	OrderID    string
	FinalSize  float64
	ReduceOnly bool
	Retries    int
}

// Execute runs the placement state machine for an open/add/reduce decision:
// resolve the posture side against the live position, set leverage, then
// place the market order, shrinking the size on margin rejections only.
func (e *Executor) Execute(ctx context.Context, req OpenRequest) (*OpenResult, error) {
	op := "Executor.Execute"

	if req.Action != domain.ActionBuy && req.Action != domain.ActionSell {
		return nil, fmt.Errorf("%w: action %q is not placeable", ports.ErrInvalidRequest, req.Action)
	}
	if req.Size <= 0 {
		return nil, fmt.Errorf("%w: non-positive size %v", ports.ErrInvalidRequest, req.Size)
	}

	pos, err := e.exchange.GetPosition(ctx, req.Instrument)
	if err != nil {
		return nil, fmt.Errorf("resolving side for %s: %w", req.Instrument, err)
	}

	side, posSide, reduceOnly := resolveSide(req.Action, pos)

	if !reduceOnly {
		if err := e.exchange.SetLeverage(ctx, req.Instrument, req.Leverage, posSide); err != nil {
			return nil, fmt.Errorf("setting leverage %dx on %s: %w", req.Leverage, req.Instrument, err)
		}
	}

	var attach *ports.AttachedProtection
	if !reduceOnly && (req.StopLoss > 0 || req.TakeProfit > 0) {
		attach = &ports.AttachedProtection{StopLoss: req.StopLoss, TakeProfit: req.TakeProfit}
	}

	size := req.Size
	for attempt := 0; ; attempt++ {
		resp, err := e.exchange.PlaceMarketOrder(ctx, req.Instrument, side, posSide, reduceOnly, formatSize(size, req.LotStep), attach)
		if err == nil {
			if attempt > 0 {
				e.logger.Info(ctx, op+": order filled after margin shrink", map[string]interface{}{
					"instrument": req.Instrument,
					"size":       size,
					"retries":    attempt,
				})
			}
			return &OpenResult{
				OrderID:    resp.OrderID,
				FinalSize:  size,
				ReduceOnly: reduceOnly,
				Retries:    attempt,
			}, nil
		}

		if !errors.Is(err, ports.ErrMarginInsufficient) {
			return nil, fmt.Errorf("placing %s order on %s: %w", side, req.Instrument, err)
		}
		if attempt >= e.marginRetryLimit {
			return nil, fmt.Errorf("margin retries exhausted for %s after %d attempts: %w", req.Instrument, attempt+1, ports.ErrMarginInsufficient)
		}

		shrunk := risk.FloorToStep(size*(1-e.shrinkFactor), req.LotStep)
		if shrunk < req.LotStep || shrunk >= size {
			return nil, fmt.Errorf("cannot shrink %s order below lot step %v: %w", req.Instrument, req.LotStep, ports.ErrMarginInsufficient)
		}

		e.logger.Warn(ctx, op+": margin insufficient, shrinking order", map[string]interface{}{
			"instrument": req.Instrument,
			"from":       size,
			"to":         shrunk,
			"attempt":    attempt + 1,
		})
		size = shrunk
	}
}

// resolveSide maps a trade direction onto the live position: trading with
// the existing side adds, trading against it reduces, and with no position
// a fresh posture side is opened.
func resolveSide(action domain.Action, pos *domain.Position) (domain.OrderSide, domain.PositionSide, bool) {
	wantLong := action == domain.ActionBuy

	if pos == nil || pos.SizeContracts == 0 {
		if wantLong {
			return domain.OrderSideBuy, domain.PositionLong, false
		}
		return domain.OrderSideSell, domain.PositionShort, false
	}

	holdingLong := pos.Side == domain.PositionLong
	if wantLong == holdingLong {
		// Same direction: add to the existing side.
		if wantLong {
			return domain.OrderSideBuy, domain.PositionLong, false
		}
		return domain.OrderSideSell, domain.PositionShort, false
	}

	// Opposite direction: reduce the existing side, never flip in one order.
	if holdingLong {
		return domain.OrderSideSell, domain.PositionLong, true
	}
	return domain.OrderSideBuy, domain.PositionShort, true
}

func formatSize(size, lotStep float64) string {
	prec := 0
	for step := lotStep; step < 1 && prec < 8; step *= 10 {
		prec++
	}
	return strconv.FormatFloat(size, 'f', prec, 64)
}
