package ports

import (
	"context"

	"llmTraderBot/internal/domain"
)

// ExecutionRepository stores the per-cycle audit trail: the normalized
// decision (with any hold override) and the execution outcome.
type ExecutionRepository interface {
	// RecordDecision saves a normalized decision and returns its assigned ID.
	RecordDecision(ctx context.Context, rec *domain.DecisionRecord) (int64, error)
	// RecordExecution saves an execution outcome and returns its assigned ID.
	RecordExecution(ctx context.Context, rec *domain.ExecutionRecord) (int64, error)
	// FindRecentExecutions retrieves the most recent executions for an
	// instrument, newest first, up to a limit.
	FindRecentExecutions(ctx context.Context, instrument string, limit int) ([]*domain.ExecutionRecord, error)
	// CountTodayByInstrument counts today's executions for an instrument.
	CountTodayByInstrument(ctx context.Context, instrument string) (int, error)
}
