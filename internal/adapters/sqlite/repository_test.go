package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"llmTraderBot/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// setupTestDB creates a temporary database for testing
func setupTestDB(t *testing.T) (*Repository, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "trader-bot-test-*")
	require.NoError(t, err)

	dbPath := filepath.Join(tmpDir, "test.db")
	repo, err := NewRepository(Config{
		DBPath: dbPath,
		Logger: &mockLogger{},
	})
	require.NoError(t, err)

	cleanup := func() {
		repo.Close()
		os.RemoveAll(tmpDir)
	}

	return repo, cleanup
}

func TestRecordDecision(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	rec := &domain.DecisionRecord{
		Instrument:     "ETH-USDT-SWAP",
		ProposedAction: domain.ActionBuy,
		AppliedAction:  domain.ActionHold,
		ProposedSize:   2.5,
		StopLoss:       2900,
		TakeProfit:     3300,
		AuditNote:      "stop loss ratchet: long stop 2800 may not drop below 2900",
		Rationale:      "breakout setup",
		CreatedAt:      time.Now().UTC(),
	}

	id, err := repo.RecordDecision(ctx, rec)
	require.NoError(t, err)
	assert.Positive(t, id)
	assert.Equal(t, id, rec.ID)
}

func TestRecordAndFindExecutions(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		_, err := repo.RecordExecution(ctx, &domain.ExecutionRecord{
			Instrument: "ETH-USDT-SWAP",
			Action:     domain.ActionBuy,
			Size:       float64(i + 1),
			OrderID:    "order",
			Accepted:   true,
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}
	// Different instrument must not leak into results.
	_, err := repo.RecordExecution(ctx, &domain.ExecutionRecord{
		Instrument: "BTC-USDT-SWAP",
		Action:     domain.ActionSell,
		Accepted:   true,
		CreatedAt:  base,
	})
	require.NoError(t, err)

	records, err := repo.FindRecentExecutions(ctx, "ETH-USDT-SWAP", 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 3.0, records[0].Size, "newest first")
	assert.Equal(t, 2.0, records[1].Size)
	assert.Equal(t, domain.ActionBuy, records[0].Action)
}

func TestCountTodayByInstrument(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	now := time.Now().UTC()
	records := []*domain.ExecutionRecord{
		{Instrument: "ETH-USDT-SWAP", Action: domain.ActionBuy, Accepted: true, CreatedAt: now},
		{Instrument: "ETH-USDT-SWAP", Action: domain.ActionSell, Accepted: true, CreatedAt: now},
		// Rejected orders and non-opening actions don't count against the cap.
		{Instrument: "ETH-USDT-SWAP", Action: domain.ActionBuy, Accepted: false, CreatedAt: now},
		{Instrument: "ETH-USDT-SWAP", Action: domain.ActionClose, Accepted: true, CreatedAt: now},
		{Instrument: "ETH-USDT-SWAP", Action: domain.ActionHold, Accepted: true, CreatedAt: now},
		// Yesterday's trades don't count either.
		{Instrument: "ETH-USDT-SWAP", Action: domain.ActionBuy, Accepted: true, CreatedAt: now.Add(-25 * time.Hour)},
		{Instrument: "BTC-USDT-SWAP", Action: domain.ActionBuy, Accepted: true, CreatedAt: now},
	}
	for _, rec := range records {
		_, err := repo.RecordExecution(ctx, rec)
		require.NoError(t, err)
	}

	count, err := repo.CountTodayByInstrument(ctx, "ETH-USDT-SWAP")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestFindRecentExecutions_Empty(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	records, err := repo.FindRecentExecutions(context.Background(), "ETH-USDT-SWAP", 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}
