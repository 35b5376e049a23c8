package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"llmTraderBot/internal/domain"
	"llmTraderBot/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements the ports.ExecutionRepository interface using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/trader_bot.db" // Default path
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Open database connection
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000") // WAL mode for better concurrency
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Set connection pool settings (important for SQLite)
	db.SetMaxOpenConns(1) // SQLite handles concurrency internally, but Go driver benefits from limiting connections
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, logger: cfg.Logger}

	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS decisions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		instrument TEXT NOT NULL,
		proposed_action TEXT NOT NULL,
		applied_action TEXT NOT NULL,
		proposed_size REAL NOT NULL DEFAULT 0,
		stop_loss REAL NOT NULL DEFAULT 0,
		take_profit REAL NOT NULL DEFAULT 0,
		audit_note TEXT NOT NULL DEFAULT '',
		rationale TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS executions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		instrument TEXT NOT NULL,
		action TEXT NOT NULL,
		size REAL NOT NULL DEFAULT 0,
		stop_loss REAL NOT NULL DEFAULT 0,
		take_profit REAL NOT NULL DEFAULT 0,
		order_id TEXT NOT NULL DEFAULT '',
		accepted INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	);
	-- Add indexes for common lookups
	CREATE INDEX IF NOT EXISTS idx_decisions_instrument_created ON decisions (instrument, created_at);
	CREATE INDEX IF NOT EXISTS idx_executions_instrument_created ON executions (instrument, created_at);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// RecordDecision saves a normalized decision and returns its assigned ID.
func (r *Repository) RecordDecision(ctx context.Context, rec *domain.DecisionRecord) (int64, error) {
	const query = `
	INSERT INTO decisions (instrument, proposed_action, applied_action, proposed_size, stop_loss, take_profit, audit_note, rationale, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		rec.Instrument, string(rec.ProposedAction), string(rec.AppliedAction),
		rec.ProposedSize, rec.StopLoss, rec.TakeProfit, rec.AuditNote, rec.Rationale, rec.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert decision for %s: %w: %v", rec.Instrument, ports.ErrQueryFailed, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for decision %s: %w", rec.Instrument, err)
	}
	rec.ID = id
	r.logger.Debug(ctx, "Decision recorded", map[string]interface{}{"decisionID": id, "instrument": rec.Instrument})
	return id, nil
}

// RecordExecution saves an execution outcome and returns its assigned ID.
func (r *Repository) RecordExecution(ctx context.Context, rec *domain.ExecutionRecord) (int64, error) {
	const query = `
	INSERT INTO executions (instrument, action, size, stop_loss, take_profit, order_id, accepted, error, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		rec.Instrument, string(rec.Action), rec.Size, rec.StopLoss, rec.TakeProfit,
		rec.OrderID, rec.Accepted, rec.Error, rec.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert execution for %s: %w: %v", rec.Instrument, ports.ErrQueryFailed, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for execution %s: %w", rec.Instrument, err)
	}
	rec.ID = id
	r.logger.Debug(ctx, "Execution recorded", map[string]interface{}{"executionID": id, "instrument": rec.Instrument})
	return id, nil
}

// FindRecentExecutions retrieves the most recent executions for an
// instrument, newest first, up to a limit.
func (r *Repository) FindRecentExecutions(ctx context.Context, instrument string, limit int) ([]*domain.ExecutionRecord, error) {
	const query = `
	SELECT id, instrument, action, size, stop_loss, take_profit, order_id, accepted, error, created_at
	FROM executions
	WHERE instrument = ?
	ORDER BY created_at DESC, id DESC
	LIMIT ?`

	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, query, instrument, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions for %s: %w: %v", instrument, ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	var records []*domain.ExecutionRecord
	for rows.Next() {
		rec := &domain.ExecutionRecord{}
		var action string
		if err := rows.Scan(&rec.ID, &rec.Instrument, &action, &rec.Size, &rec.StopLoss,
			&rec.TakeProfit, &rec.OrderID, &rec.Accepted, &rec.Error, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan execution row: %w", err)
		}
		rec.Action = domain.Action(action)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating execution rows for %s: %w", instrument, err)
	}
	return records, nil
}

// CountTodayByInstrument counts accepted opening executions since UTC midnight.
func (r *Repository) CountTodayByInstrument(ctx context.Context, instrument string) (int, error) {
	const query = `
	SELECT COUNT(*)
	FROM executions
	WHERE instrument = ? AND accepted = 1 AND action IN (?, ?) AND created_at >= ?`

	midnight := time.Now().UTC().Truncate(24 * time.Hour)
	var count int
	err := r.db.QueryRowContext(ctx, query, instrument,
		string(domain.ActionBuy), string(domain.ActionSell), midnight).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count today's executions for %s: %w: %v", instrument, ports.ErrQueryFailed, err)
	}
	return count, nil
}
