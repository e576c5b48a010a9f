package executions

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/watzon/tenantcore/internal/database"
	"github.com/watzon/tenantcore/internal/triggers"
)

// Store is the SQLite-backed trigger execution log. Each Append is a single
// INSERT, so concurrent writers never interleave partial entries.
type Store struct {
	db *database.DB
}

var _ triggers.ExecutionLog = (*Store)(nil)

// NewStore creates a new execution store.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// Append inserts one log entry.
func (s *Store) Append(ctx context.Context, entry triggers.LogEntry) error {
	query := `
		INSERT INTO trigger_executions (
			id, trigger_id, entity_class, phase, executed_at,
			duration_ms, success, error, entity_id, user_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		entry.ID,
		entry.TriggerID,
		entry.EntityClass,
		string(entry.Phase),
		database.FormatTime(entry.Timestamp),
		entry.DurationMs,
		entry.Success,
		entry.Error,
		entry.EntityID,
		entry.UserID,
	)
	if err != nil {
		return fmt.Errorf("inserting execution log: %w", err)
	}

	return nil
}

// Entries returns a trigger's log in execution order.
func (s *Store) Entries(ctx context.Context, triggerID string) ([]triggers.LogEntry, error) {
	query := `
		SELECT id, trigger_id, entity_class, phase, executed_at,
		       duration_ms, success, error, entity_id, user_id
		FROM trigger_executions
		WHERE trigger_id = ?
		ORDER BY executed_at ASC, rowid ASC
	`

	rows, err := s.db.QueryContext(ctx, query, triggerID)
	if err != nil {
		return nil, fmt.Errorf("querying execution log: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// List returns log entries matching f, most recent first.
func (s *Store) List(ctx context.Context, f Filter) ([]triggers.LogEntry, error) {
	query := `
		SELECT id, trigger_id, entity_class, phase, executed_at,
		       duration_ms, success, error, entity_id, user_id
		FROM trigger_executions
		WHERE 1=1
	`
	args := []any{}

	if f.TriggerID != "" {
		query += " AND trigger_id = ?"
		args = append(args, f.TriggerID)
	}
	if f.EntityClass != "" {
		query += " AND entity_class = ?"
		args = append(args, f.EntityClass)
	}
	if f.Success != nil {
		query += " AND success = ?"
		args = append(args, *f.Success)
	}
	if !f.Since.IsZero() {
		query += " AND executed_at >= ?"
		args = append(args, database.FormatTime(f.Since))
	}

	query += " ORDER BY executed_at DESC, rowid DESC"

	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
		if f.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, f.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying execution logs: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Count returns the number of entries for a trigger.
func (s *Store) Count(ctx context.Context, triggerID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trigger_executions WHERE trigger_id = ?`, triggerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting execution logs: %w", err)
	}
	return n, nil
}

// DeleteOlderThan removes entries executed before cutoff and returns how many
// were removed.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM trigger_executions WHERE executed_at < ?`,
		database.FormatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("deleting old execution logs: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}
	return rows, nil
}

func scanEntries(rows *sql.Rows) ([]triggers.LogEntry, error) {
	var entries []triggers.LogEntry
	for rows.Next() {
		var (
			e          triggers.LogEntry
			phase      string
			executedAt string
		)

		if err := rows.Scan(
			&e.ID,
			&e.TriggerID,
			&e.EntityClass,
			&phase,
			&executedAt,
			&e.DurationMs,
			&e.Success,
			&e.Error,
			&e.EntityID,
			&e.UserID,
		); err != nil {
			return nil, fmt.Errorf("scanning execution log: %w", err)
		}

		e.Phase = triggers.Phase(phase)
		ts, err := database.ParseTime(executedAt)
		if err != nil {
			return nil, err
		}
		e.Timestamp = ts

		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating execution logs: %w", err)
	}

	return entries, nil
}
