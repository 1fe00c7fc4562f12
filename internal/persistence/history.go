// Package persistence provides a SQLite-backed recovery history for
// deployments that want attempt telemetry to survive restarts. The in-memory
// ring in the recovery package remains the default; nothing else in the core
// persists state.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/aristath/chainflow/internal/diagnose"
	"github.com/aristath/chainflow/internal/recovery"
	_ "modernc.org/sqlite"
)

// SQLiteHistory implements recovery.History on a SQLite database.
type SQLiteHistory struct {
	db *sql.DB
}

var _ recovery.History = (*SQLiteHistory)(nil)

// NewSQLiteHistory opens (or creates) a history database at dbPath. Parent
// directories are created as needed; WAL mode and a busy timeout are set via
// the connection string.
func NewSQLiteHistory(ctx context.Context, dbPath string) (*SQLiteHistory, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("creating parent directories: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	return openHistory(ctx, connStr)
}

// NewMemoryHistory creates an in-memory history store for testing. A shared
// cache lets multiple connections see the same database.
func NewMemoryHistory(ctx context.Context) (*SQLiteHistory, error) {
	return openHistory(ctx, "file::memory:?mode=memory&cache=shared")
}

func openHistory(ctx context.Context, connStr string) (*SQLiteHistory, error) {
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(2)

	h := &SQLiteHistory{db: db}
	if err := h.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return h, nil
}

func (h *SQLiteHistory) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS recovery_attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		error_category TEXT NOT NULL,
		strategy_name TEXT NOT NULL,
		success INTEGER NOT NULL,
		signature TEXT,
		timestamp DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_recovery_attempts_timestamp
		ON recovery_attempts(timestamp);
	`
	_, err := h.db.ExecContext(ctx, schema)
	return err
}

// Append inserts one attempt record.
func (h *SQLiteHistory) Append(ctx context.Context, a recovery.Attempt) error {
	success := 0
	if a.Success {
		success = 1
	}
	// Signatures are stored as text: SQLite INTEGER is signed 64-bit and
	// would mangle large uint64 hashes.
	_, err := h.db.ExecContext(ctx, `
		INSERT INTO recovery_attempts (error_category, strategy_name, success, signature, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`, string(a.Category), a.Strategy, success, strconv.FormatUint(a.Signature, 10), a.Timestamp.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("inserting recovery attempt: %w", err)
	}
	return nil
}

// Recent returns up to limit of the newest attempts in chronological order.
// limit <= 0 returns all attempts.
func (h *SQLiteHistory) Recent(ctx context.Context, limit int) ([]recovery.Attempt, error) {
	query := `
		SELECT error_category, strategy_name, success, signature, timestamp
		FROM (
			SELECT id, error_category, strategy_name, success, signature, timestamp
			FROM recovery_attempts
			ORDER BY id DESC
			%s
		)
		ORDER BY id ASC
	`
	args := []any{}
	clause := ""
	if limit > 0 {
		clause = "LIMIT ?"
		args = append(args, limit)
	}

	rows, err := h.db.QueryContext(ctx, fmt.Sprintf(query, clause), args...)
	if err != nil {
		return nil, fmt.Errorf("querying recovery attempts: %w", err)
	}
	defer rows.Close()

	var attempts []recovery.Attempt
	for rows.Next() {
		var (
			category  string
			strategy  string
			success   int
			signature string
			ts        string
		)
		if err := rows.Scan(&category, &strategy, &success, &signature, &ts); err != nil {
			return nil, fmt.Errorf("scanning recovery attempt: %w", err)
		}

		a := recovery.Attempt{
			Category: diagnose.Category(category),
			Strategy: strategy,
			Success:  success == 1,
		}
		if sig, err := strconv.ParseUint(signature, 10, 64); err == nil {
			a.Signature = sig
		}
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			a.Timestamp = t
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating recovery attempts: %w", err)
	}
	return attempts, nil
}

// Close closes the database connection.
func (h *SQLiteHistory) Close() error {
	return h.db.Close()
}
