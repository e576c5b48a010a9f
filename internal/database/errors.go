package database

import (
	"errors"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	ErrUniqueViolation     = errors.New("unique constraint violated")
	ErrCheckConstraint     = errors.New("check constraint failed")
	ErrNotNullViolation    = errors.New("not null constraint failed")
	ErrForeignKeyViolation = errors.New("foreign key constraint failed")
)

// ConstraintError is a classified SQLite constraint failure. Columns are
// "table.column" pairs as reported by SQLite, when it reports them.
type ConstraintError struct {
	Kind    error
	Columns []string
	Message string
	cause   error
}

func (e *ConstraintError) Error() string {
	return e.Message
}

// Is matches the Kind sentinel.
func (e *ConstraintError) Is(target error) bool {
	return target == e.Kind
}

func (e *ConstraintError) Unwrap() error {
	return e.cause
}

// ClassifyError maps SQLite constraint failures onto ConstraintError values.
// Other errors are returned unchanged.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}

	var se *sqlite.Error
	if !errors.As(err, &se) {
		return err
	}

	kind := constraintKind(se.Code(), se.Error())
	if kind == nil {
		return err
	}

	return &ConstraintError{
		Kind:    kind,
		Columns: failedColumns(se.Error()),
		Message: kind.Error(),
		cause:   err,
	}
}

func constraintKind(code int, msg string) error {
	switch code {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return ErrUniqueViolation
	case sqlite3.SQLITE_CONSTRAINT_CHECK:
		return ErrCheckConstraint
	case sqlite3.SQLITE_CONSTRAINT_NOTNULL:
		return ErrNotNullViolation
	case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		return ErrForeignKeyViolation
	}

	if code&0xff != sqlite3.SQLITE_CONSTRAINT {
		return nil
	}

	// Primary result code only; fall back to the message.
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return ErrUniqueViolation
	case strings.Contains(msg, "CHECK constraint failed"):
		return ErrCheckConstraint
	case strings.Contains(msg, "NOT NULL constraint failed"):
		return ErrNotNullViolation
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return ErrForeignKeyViolation
	}
	return nil
}

func failedColumns(msg string) []string {
	_, list, ok := strings.Cut(msg, "constraint failed: ")
	if !ok {
		return nil
	}
	if i := strings.Index(list, " ("); i >= 0 {
		list = list[:i]
	}

	var cols []string
	for _, c := range strings.Split(list, ",") {
		if c = strings.TrimSpace(c); strings.Contains(c, ".") {
			cols = append(cols, c)
		}
	}
	return cols
}

func IsUniqueError(err error) bool {
	return errors.Is(err, ErrUniqueViolation)
}
