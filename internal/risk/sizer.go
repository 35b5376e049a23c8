package risk

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// SizeInput carries everything the sizer needs for one decision. The
// ProposedSize field is the recommendation's own number and is treated as
// untrusted: it may be zero, negative, NaN, Inf, or absurdly large.
type SizeInput struct {
	AvailableEquity float64
	Price           float64
	UnitValue       float64 // Contract unit value
	LotStep         float64 // Minimum tradeable increment, in contracts
	Leverage        int
	RiskRatio       float64 // Base risk ratio (open vs add, possibly modified)
	CapRatio        float64 // Independent hard-cap ratio
	Modifier        float64 // Performance modifier; <= 0 means 1.0
	ProposedSize    float64 // Untrusted
}

// SizeResult is the bounded outcome of sizing.
type SizeResult struct {
	Contracts float64
	Clamped   bool   // True when the proposal exceeded the hard cap
	Hold      bool   // True when the result fell below the lot step
	Note      string // Human-readable explanation for clamp/hold outcomes
}

// Size converts risk parameters and an untrusted proposed size into a
// bounded contract quantity. The submitted quantity never exceeds a cap
// computed solely from account state and configuration, regardless of what
// the recommendation proposed.
func Size(in SizeInput) SizeResult {
	if in.Price <= 0 || in.UnitValue <= 0 || in.Leverage <= 0 || in.AvailableEquity <= 0 {
		return SizeResult{Hold: true, Note: "sizing inputs unusable (price/unit/leverage/equity)"}
	}

	modifier := in.Modifier
	if modifier <= 0 || math.IsNaN(modifier) || math.IsInf(modifier, 0) {
		modifier = 1.0
	}

	notionalPerContract := in.UnitValue * in.Price
	algo := (in.AvailableEquity * in.RiskRatio * modifier * float64(in.Leverage)) / notionalPerContract

	candidate := algo
	proposedUsed := false
	if isFinitePositive(in.ProposedSize) {
		candidate = in.ProposedSize
		proposedUsed = true
	}

	hardCap := (in.AvailableEquity * in.CapRatio * float64(in.Leverage)) / notionalPerContract

	final := candidate
	clamped := false
	if final > hardCap {
		final = hardCap
		clamped = true
	}

	final = FloorToStep(final, in.LotStep)

	if final < in.LotStep || final <= 0 {
		return SizeResult{
			Hold: true,
			Note: fmt.Sprintf("sized quantity %.8f below minimum increment %.8f", final, in.LotStep),
		}
	}

	res := SizeResult{Contracts: final, Clamped: clamped}
	if clamped {
		src := "algorithmic target"
		if proposedUsed {
			src = "proposed size"
		}
		res.Note = fmt.Sprintf("%s %.4f clamped to hard cap %.4f", src, candidate, hardCap)
	}
	return res
}

// FloorToStep floors a quantity to a multiple of the instrument's lot step.
// Decimal arithmetic avoids float drift turning an exact multiple into the
// next-lower step.
func FloorToStep(qty, step float64) float64 {
	if step <= 0 {
		return qty
	}
	if qty <= 0 || math.IsNaN(qty) || math.IsInf(qty, 0) {
		return 0
	}
	q := decimal.NewFromFloat(qty)
	s := decimal.NewFromFloat(step)
	floored := q.Div(s).Floor().Mul(s)
	f, _ := floored.Float64()
	return f
}

func isFinitePositive(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}
