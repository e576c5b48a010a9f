package triggers

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/watzon/tenantcore/internal/database"
)

// DefinitionStore persists trigger definitions.
type DefinitionStore interface {
	Save(ctx context.Context, def *Definition) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*Definition, error)
}

// Store persists definitions in the triggers table.
type Store struct {
	db *database.DB
}

func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// Save inserts or replaces def.
func (s *Store) Save(ctx context.Context, def *Definition) error {
	conditions := def.Conditions
	if conditions == nil {
		conditions = []Condition{}
	}
	conditionsJSON, err := json.Marshal(conditions)
	if err != nil {
		return fmt.Errorf("marshaling conditions: %w", err)
	}

	query := `
		INSERT INTO triggers (id, name, entity_class, phase, status, conditions, body, guard, blocking, priority, version, seq, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			entity_class = excluded.entity_class,
			phase = excluded.phase,
			status = excluded.status,
			conditions = excluded.conditions,
			body = excluded.body,
			guard = excluded.guard,
			blocking = excluded.blocking,
			priority = excluded.priority,
			version = excluded.version,
			updated_at = excluded.updated_at
	`

	_, err = s.db.ExecContext(ctx, query,
		def.ID,
		def.Name,
		def.EntityClass,
		string(def.Phase),
		string(def.Status),
		string(conditionsJSON),
		def.Body,
		def.Guard,
		def.Blocking,
		def.Priority,
		def.Version,
		def.seq,
		database.FormatTime(def.CreatedAt),
		database.FormatTime(def.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("saving trigger: %w", err)
	}

	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM triggers WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting trigger: %w", err)
	}
	return nil
}

// List returns all definitions in registration order.
func (s *Store) List(ctx context.Context) ([]*Definition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, entity_class, phase, status, conditions, body, guard, blocking, priority, version, seq, created_at, updated_at
		FROM triggers
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying triggers: %w", err)
	}
	defer rows.Close()

	var defs []*Definition
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating triggers: %w", err)
	}

	return defs, nil
}

func scanDefinition(rows *sql.Rows) (*Definition, error) {
	var (
		def                  Definition
		phase, status        string
		conditionsJSON       string
		createdAt, updatedAt string
	)

	err := rows.Scan(
		&def.ID,
		&def.Name,
		&def.EntityClass,
		&phase,
		&status,
		&conditionsJSON,
		&def.Body,
		&def.Guard,
		&def.Blocking,
		&def.Priority,
		&def.Version,
		&def.seq,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning trigger: %w", err)
	}

	def.Phase = Phase(phase)
	def.Status = Status(status)

	if err := json.Unmarshal([]byte(conditionsJSON), &def.Conditions); err != nil {
		return nil, fmt.Errorf("unmarshaling conditions for %s: %w", def.ID, err)
	}
	if def.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if def.UpdatedAt, err = database.ParseTime(updatedAt); err != nil {
		return nil, err
	}

	return &def, nil
}
