package executor

import (
	"context"
	"errors"
	"fmt"

	"llmTraderBot/internal/domain"
	"llmTraderBot/internal/ports"
)

// CloseAny closes whichever posture side is open on the instrument without
// knowing the side up front. It tries long first and falls back to short only
// when the exchange reports the long side flat; any other long-side failure
// is returned as-is. At most one side is ever closed.
func (e *Executor) CloseAny(ctx context.Context, instrument string) (domain.PositionSide, error) {
	op := "Executor.CloseAny"

	longErr := e.exchange.ClosePosition(ctx, instrument, domain.PositionLong)
	if longErr == nil {
		e.logger.Info(ctx, op+": closed long position", map[string]interface{}{"instrument": instrument})
		return domain.PositionLong, nil
	}
	if !errors.Is(longErr, ports.ErrPositionNotFound) {
		return "", fmt.Errorf("closing long %s: %w", instrument, longErr)
	}

	shortErr := e.exchange.ClosePosition(ctx, instrument, domain.PositionShort)
	if shortErr == nil {
		e.logger.Info(ctx, op+": closed short position", map[string]interface{}{"instrument": instrument})
		return domain.PositionShort, nil
	}

	return "", fmt.Errorf("closing %s failed on both sides (long: %v): %w", instrument, longErr, shortErr)
}
