package domain

// Action is the high-level instruction extracted from a model recommendation.
type Action string

const (
	ActionBuy        Action = "BUY"
	ActionSell       Action = "SELL"
	ActionClose      Action = "CLOSE"
	ActionUpdateTPSL Action = "UPDATE_TPSL"
	ActionHold       Action = "HOLD"
)

// IsValid reports whether the action is one of the known values.
func (a Action) IsValid() bool {
	switch a {
	case ActionBuy, ActionSell, ActionClose, ActionUpdateTPSL, ActionHold:
		return true
	}
	return false
}

// OrderSide represents the side of an order (BUY or SELL).
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// PositionSide is the posture side of a holding. Accounts in long/short mode
// may hold both sides of the same instrument simultaneously.
type PositionSide string

const (
	PositionLong  PositionSide = "long"
	PositionShort PositionSide = "short"
)

// Opposite returns the other posture side.
func (s PositionSide) Opposite() PositionSide {
	if s == PositionLong {
		return PositionShort
	}
	return PositionLong
}

// AlgoOrderKind distinguishes the two protective conditional order types.
type AlgoOrderKind string

const (
	AlgoStopLoss   AlgoOrderKind = "SL"
	AlgoTakeProfit AlgoOrderKind = "TP"
)
