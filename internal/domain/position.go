package domain

// Position is a read-only snapshot of an open holding as reported by the
// exchange. The core never mutates it directly; it issues orders that cause
// the exchange to mutate it, and re-reads a fresh snapshot next cycle.
type Position struct {
	Instrument     string       // Instrument identifier (e.g., "ETH-USDT-SWAP")
	Side           PositionSide // Posture side (long or short)
	SizeContracts  float64      // Size in contracts
	EntryPrice     float64      // Average entry price
	Margin         float64      // Margin allocated to the position
	Leverage       int          // Leverage currently applied
	StopLoss       float64      // Trigger of the pending stop-loss order (0 = unset)
	TakeProfit     float64      // Trigger of the pending take-profit order (0 = unset)
	BreakevenPrice float64      // Exchange-reported breakeven price after fees
}

// AccountSnapshot is the per-cycle read of account equity.
type AccountSnapshot struct {
	TotalEquity     float64
	AvailableEquity float64
}

// Instrument carries the trading rules needed to turn a target size into a
// quantity the exchange will accept.
type Instrument struct {
	ID        string
	LotStep   float64 // Minimum tradeable increment, in contracts
	UnitValue float64 // Value of one contract in units of the underlying
}

// AlgoOrder is a conditional order pending on the exchange. The core only
// tracks these transiently while reconciling protective orders.
type AlgoOrder struct {
	ID           string
	Instrument   string
	PositionSide PositionSide
	TriggerPrice float64
	Kind         AlgoOrderKind
}
