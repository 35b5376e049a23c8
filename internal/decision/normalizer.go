package decision

import (
	"fmt"
	"math"

	"llmTraderBot/internal/domain"
)

// Normalize adjusts a parsed decision against the live position so that it
// can never loosen existing protection. It is pure and never errors: every
// unacceptable proposal is downgraded to HOLD with an audit note saying why.
//
// Stop-loss ratchet: once a position has a stop, a long's stop may only move
// up and a short's stop may only move down. A proposal that would widen the
// stop is rejected wholesale rather than partially applied.
func Normalize(d domain.Decision, pos *domain.Position) (domain.Decision, string) {
	switch d.Action {
	case domain.ActionHold:
		return d, ""
	case domain.ActionClose:
		if pos == nil {
			return hold(d), "close requested with no open position"
		}
		return d, ""
	case domain.ActionUpdateTPSL:
		if pos == nil {
			return hold(d), "protection update requested with no open position"
		}
		if note := checkRatchet(d, pos); note != "" {
			return hold(d), note
		}
		if d.ProposedStopLoss <= 0 && d.ProposedTakeProfit <= 0 {
			return hold(d), "protection update carried no trigger prices"
		}
		return d, ""
	case domain.ActionBuy, domain.ActionSell:
		if d.ProposedStopLoss != 0 && !isUsablePrice(d.ProposedStopLoss) {
			return hold(d), fmt.Sprintf("unusable stop loss %v", d.ProposedStopLoss)
		}
		if d.ProposedTakeProfit != 0 && !isUsablePrice(d.ProposedTakeProfit) {
			return hold(d), fmt.Sprintf("unusable take profit %v", d.ProposedTakeProfit)
		}
		// Adding to a position with a stop already set is subject to the
		// same ratchet as an explicit protection update.
		if pos != nil {
			if note := checkRatchet(d, pos); note != "" {
				return hold(d), note
			}
		}
		return d, ""
	default:
		return hold(d), fmt.Sprintf("unrecognized action %q", d.Action)
	}
}

func checkRatchet(d domain.Decision, pos *domain.Position) string {
	if d.ProposedStopLoss <= 0 || pos.StopLoss <= 0 {
		return ""
	}
	if !isUsablePrice(d.ProposedStopLoss) {
		return fmt.Sprintf("unusable stop loss %v", d.ProposedStopLoss)
	}
	switch pos.Side {
	case domain.PositionLong:
		if d.ProposedStopLoss < pos.StopLoss {
			return fmt.Sprintf("stop loss ratchet: long stop %v may not drop below %v", d.ProposedStopLoss, pos.StopLoss)
		}
	case domain.PositionShort:
		if d.ProposedStopLoss > pos.StopLoss {
			return fmt.Sprintf("stop loss ratchet: short stop %v may not rise above %v", d.ProposedStopLoss, pos.StopLoss)
		}
	}
	return ""
}

func hold(d domain.Decision) domain.Decision {
	d.Action = domain.ActionHold
	d.ProposedSize = 0
	d.ProposedStopLoss = 0
	d.ProposedTakeProfit = 0
	return d
}

func isUsablePrice(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}
