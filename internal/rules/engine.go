// Package rules compiles and evaluates CEL expressions used by trigger guards
// and manifest-declared procedures.
package rules

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"google.golang.org/protobuf/types/known/structpb"
)

var (
	ErrRuleNotFound    = errors.New("rule not found")
	ErrRuleEvaluation  = errors.New("rule evaluation failed")
	ErrInvalidRuleExpr = errors.New("invalid rule expression")
)

// Engine caches compiled programs by key. Keys are chosen by callers, for
// example "trigger:<id>" or "proc:<name>".
type Engine struct {
	env      *cel.Env
	programs map[string]cel.Program
	mu       sync.RWMutex
}

// EvalContext holds the variables visible to an expression. Nil maps are
// exposed as empty maps.
type EvalContext struct {
	Entity   map[string]any
	Previous map[string]any
	User     map[string]any
	Params   map[string]any
	Caller   map[string]any
}

func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("entity", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("previous", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("user", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("params", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("caller", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("creating CEL environment: %w", err)
	}

	return &Engine{
		env:      env,
		programs: make(map[string]cel.Program),
	}, nil
}

// Validate reports whether expr compiles without caching it.
func (e *Engine) Validate(expr string) error {
	_, err := e.program(expr)
	return err
}

// Compile compiles expr and stores it under key, replacing any previous program.
func (e *Engine) Compile(key, expr string) error {
	program, err := e.program(expr)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.programs[key] = program
	e.mu.Unlock()
	return nil
}

func (e *Engine) program(expr string) (cel.Program, error) {
	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRuleExpr, issues.Err())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("creating program: %w", err)
	}
	return program, nil
}

// Remove drops the program stored under key.
func (e *Engine) Remove(key string) {
	e.mu.Lock()
	delete(e.programs, key)
	e.mu.Unlock()
}

func (e *Engine) HasRule(key string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.programs[key]
	return ok
}

// Evaluate runs the boolean program stored under key. A missing program allows.
func (e *Engine) Evaluate(key string, ctx *EvalContext) (bool, error) {
	e.mu.RLock()
	program, ok := e.programs[key]
	e.mu.RUnlock()

	if !ok {
		return true, nil
	}

	result, _, err := program.Eval(ctx.vars())
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrRuleEvaluation, err)
	}

	allowed, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("%w: rule did not return boolean", ErrRuleEvaluation)
	}

	return allowed, nil
}

// EvaluateValue runs the program stored under key and converts its result to
// plain Go values (maps, slices, strings, numbers, bools, nil).
func (e *Engine) EvaluateValue(key string, ctx *EvalContext) (any, error) {
	e.mu.RLock()
	program, ok := e.programs[key]
	e.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRuleNotFound, key)
	}

	result, _, err := program.Eval(ctx.vars())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuleEvaluation, err)
	}

	return nativeValue(result)
}

func (ctx *EvalContext) vars() map[string]any {
	if ctx == nil {
		ctx = &EvalContext{}
	}
	return map[string]any{
		"entity":   orEmpty(ctx.Entity),
		"previous": orEmpty(ctx.Previous),
		"user":     orEmpty(ctx.User),
		"params":   orEmpty(ctx.Params),
		"caller":   orEmpty(ctx.Caller),
	}
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

var protoValueType = reflect.TypeOf(&structpb.Value{})

func nativeValue(v ref.Val) (any, error) {
	switch v.Type() {
	case types.NullType:
		return nil, nil
	case types.BoolType, types.IntType, types.UintType, types.DoubleType, types.StringType:
		return v.Value(), nil
	}

	converted, err := v.ConvertToNative(protoValueType)
	if err != nil {
		return nil, fmt.Errorf("%w: converting result: %w", ErrRuleEvaluation, err)
	}
	pb, ok := converted.(*structpb.Value)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected result type %T", ErrRuleEvaluation, converted)
	}
	return pb.AsInterface(), nil
}

// BuildUserContext returns the user variable for a caller. An empty userID
// yields nil so guards can test has(user.id).
func BuildUserContext(userID, organizationID string) map[string]any {
	if userID == "" {
		return nil
	}
	user := map[string]any{"id": userID}
	if organizationID != "" {
		user["organization_id"] = organizationID
	}
	return user
}
