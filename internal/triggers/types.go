// Package triggers runs declarative, condition-gated triggers bound to an
// entity class and lifecycle phase, and keeps an append-only execution log
// from which per-trigger statistics are derived.
package triggers

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrTriggerNotFound   = errors.New("trigger not found")
	ErrInvalidTransition = errors.New("invalid trigger status transition")
	ErrMutationBlocked   = errors.New("mutation blocked by trigger")
	ErrBodyNotFound      = errors.New("trigger body not found")
)

// Phase is the lifecycle moment a trigger fires at.
type Phase string

const (
	PhaseBeforeSave   Phase = "beforeSave"
	PhaseAfterSave    Phase = "afterSave"
	PhaseBeforeDelete Phase = "beforeDelete"
	PhaseAfterDelete  Phase = "afterDelete"
	PhaseBeforeFind   Phase = "beforeFind"
	PhaseAfterFind    Phase = "afterFind"
)

func (p Phase) Valid() bool {
	switch p {
	case PhaseBeforeSave, PhaseAfterSave, PhaseBeforeDelete, PhaseAfterDelete, PhaseBeforeFind, PhaseAfterFind:
		return true
	}
	return false
}

// Before reports whether p runs ahead of the mutation commit.
func (p Phase) Before() bool {
	return p == PhaseBeforeSave || p == PhaseBeforeDelete || p == PhaseBeforeFind
}

// Status is the lifecycle state of a trigger definition.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusActive   Status = "active"
	StatusDisabled Status = "disabled"
	StatusError    Status = "error"
)

// Operator is a condition comparison.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "notEquals"
	OpExists      Operator = "exists"
	OpNotExists   Operator = "notExists"
	OpGreaterThan Operator = "greaterThan"
	OpLessThan    Operator = "lessThan"
)

func (o Operator) Valid() bool {
	switch o {
	case OpEquals, OpNotEquals, OpExists, OpNotExists, OpGreaterThan, OpLessThan:
		return true
	}
	return false
}

// NeedsValue reports whether the operator compares against Condition.Value.
func (o Operator) NeedsValue() bool {
	return o != OpExists && o != OpNotExists
}

// Condition is one predicate over an entity field.
type Condition struct {
	Field    string   `json:"field" yaml:"field"`
	Operator Operator `json:"operator" yaml:"operator"`
	Value    any      `json:"value,omitempty" yaml:"value,omitempty"`
}

// Definition is a trigger bound to an entity class and phase.
type Definition struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	EntityClass string      `json:"entityClass"`
	Phase       Phase       `json:"phase"`
	Status      Status      `json:"status"`
	Conditions  []Condition `json:"conditions"`

	// Body is a reference resolved by a BodyResolver at execution time.
	Body string `json:"body"`

	// Guard is an optional CEL expression over entity, previous and user,
	// checked after Conditions.
	Guard string `json:"guard,omitempty"`

	// Blocking before-phase triggers abort the mutation when they fail.
	Blocking bool `json:"blocking"`
	Priority int  `json:"priority"`
	Version  int  `json:"version"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	seq int64
}

// SameSpec reports whether d and o have identical editable fields, ignoring
// identity, status and version.
func (d *Definition) SameSpec(o *Definition) bool {
	return bytes.Equal(d.specJSON(), o.specJSON())
}

func (d *Definition) specJSON() []byte {
	data, _ := json.Marshal(struct {
		Name        string
		EntityClass string
		Phase       Phase
		Conditions  []Condition
		Body        string
		Guard       string
		Blocking    bool
		Priority    int
	}{d.Name, d.EntityClass, d.Phase, d.Conditions, d.Body, d.Guard, d.Blocking, d.Priority})
	return data
}

func (d *Definition) clone() *Definition {
	c := *d
	c.Conditions = append([]Condition(nil), d.Conditions...)
	return &c
}

// Event is one entity lifecycle occurrence.
type Event struct {
	EntityClass    string
	Phase          Phase
	EntityID       string
	Entity         map[string]any
	Previous       map[string]any
	UserID         string
	OrganizationID string
}

// ID returns EntityID, falling back to the entity's "id" field.
func (e *Event) ID() string {
	if e.EntityID != "" {
		return e.EntityID
	}
	if id, ok := e.Entity["id"].(string); ok {
		return id
	}
	return ""
}

// LogEntry records one attempted trigger execution.
type LogEntry struct {
	ID          string    `json:"id"`
	TriggerID   string    `json:"triggerId"`
	EntityClass string    `json:"entityClass"`
	Phase       Phase     `json:"phase"`
	Timestamp   time.Time `json:"timestamp"`
	DurationMs  float64   `json:"durationMs"`
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
	EntityID    string    `json:"entityId,omitempty"`
	UserID      string    `json:"userId,omitempty"`
}

// Stats aggregates a trigger's execution log.
type Stats struct {
	TotalExecutions       int        `json:"totalExecutions"`
	SuccessRate           float64    `json:"successRate"`
	AverageExecutionTime  float64    `json:"averageExecutionTime"`
	ErrorCount            int        `json:"errorCount"`
	PeakExecutionsPerHour int        `json:"peakExecutionsPerHour"`
	LastExecution         *time.Time `json:"lastExecution"`
}

// FireResult reports what a Fire call executed.
type FireResult struct {
	Entries []LogEntry `json:"entries"`
	Skipped int        `json:"skipped"`

	// Blocked is set when a blocking before-phase trigger failed. It wraps
	// ErrMutationBlocked.
	Blocked error `json:"-"`
}
