package domain

import "time"

// DecisionRecord is the persisted audit trail of a normalized decision,
// including any hold override applied to the model's proposal.
type DecisionRecord struct {
	ID             int64
	Instrument     string
	ProposedAction Action
	AppliedAction  Action
	ProposedSize   float64
	StopLoss       float64
	TakeProfit     float64
	AuditNote      string
	Rationale      string
	CreatedAt      time.Time
}

// ExecutionRecord is the persisted outcome of one cycle's exchange activity.
type ExecutionRecord struct {
	ID         int64
	Instrument string
	Action     Action
	Size       float64
	StopLoss   float64
	TakeProfit float64
	OrderID    string
	Accepted   bool
	Error      string // Empty on success
	CreatedAt  time.Time
}
