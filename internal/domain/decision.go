package domain

// Decision is a validated trade recommendation for a single instrument.
// It is produced once per evaluation cycle from untrusted model output,
// immutable once normalized, and discarded after execution. The proposed
// fields are advisory: sizing and stop placement are re-derived under the
// account's risk configuration before anything reaches the exchange.
type Decision struct {
	Instrument         string
	Action             Action
	ProposedSize       float64 // Contracts; 0 = not proposed. Untrusted.
	ProposedLeverage   int     // 0 = not proposed
	ProposedStopLoss   float64 // 0 = not proposed
	ProposedTakeProfit float64 // 0 = not proposed
	Rationale          string  // Display only, never parsed for control
}

// ExecutionResult is what a single evaluation cycle reports back.
type ExecutionResult struct {
	Instrument        string
	Accepted          bool
	AppliedAction     Action
	AppliedSize       float64
	AppliedStopLoss   float64
	AppliedTakeProfit float64
	OrderID           string
	AuditNote         string // Populated when the action was overridden or clamped
	Err               error
}
