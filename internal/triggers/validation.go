package triggers

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidDefinition matches every *DefinitionError.
var ErrInvalidDefinition = errors.New("invalid trigger definition")

// DefinitionError reports a malformed trigger definition.
type DefinitionError struct {
	Field   string
	Message string
}

func (e *DefinitionError) Error() string {
	return fmt.Sprintf("invalid trigger definition: %s: %s", e.Field, e.Message)
}

func (e *DefinitionError) Is(target error) bool {
	return target == ErrInvalidDefinition
}

func definitionError(field, format string, args ...any) *DefinitionError {
	return &DefinitionError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// validate checks the editable fields of def. checkGuard compiles a guard
// expression; nil means guards are not supported.
func validate(def *Definition, checkGuard func(string) error) error {
	if strings.TrimSpace(def.EntityClass) == "" {
		return definitionError("entityClass", "entity class is required")
	}
	if !def.Phase.Valid() {
		return definitionError("phase", "unknown phase %q", def.Phase)
	}
	if strings.TrimSpace(def.Body) == "" {
		return definitionError("body", "body reference is required")
	}

	for i, c := range def.Conditions {
		field := fmt.Sprintf("conditions[%d]", i)
		if c.Field == "" {
			return definitionError(field+".field", "field is required")
		}
		if !c.Operator.Valid() {
			return definitionError(field+".operator", "unknown operator %q", c.Operator)
		}
		if c.Operator.NeedsValue() && c.Value == nil {
			return definitionError(field+".value", "operator %s requires a value", c.Operator)
		}
		if c.Operator == OpGreaterThan || c.Operator == OpLessThan {
			if _, ok := coerceNumber(c.Value); !ok {
				return definitionError(field+".value", "operator %s requires a numeric value", c.Operator)
			}
		}
	}

	if def.Guard != "" {
		if checkGuard == nil {
			return definitionError("guard", "guard expressions are not enabled")
		}
		if err := checkGuard(def.Guard); err != nil {
			return definitionError("guard", "%v", err)
		}
	}

	return nil
}
