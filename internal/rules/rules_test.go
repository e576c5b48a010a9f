package rules

import (
	"errors"
	"testing"
)

func TestNewEngine(t *testing.T) {
	engine, err := NewEngine()
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	if engine == nil {
		t.Fatal("NewEngine returned nil")
	}
}

func TestEngine_CompileAndHasRule(t *testing.T) {
	engine, err := NewEngine()
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	if err := engine.Compile("trigger:1", "entity.status == 'active'"); err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	if !engine.HasRule("trigger:1") {
		t.Error("Expected trigger:1 rule to exist")
	}
	if engine.HasRule("trigger:2") {
		t.Error("Expected trigger:2 rule to not exist")
	}

	engine.Remove("trigger:1")
	if engine.HasRule("trigger:1") {
		t.Error("Expected trigger:1 rule to be removed")
	}
}

func TestEngine_InvalidExpression(t *testing.T) {
	engine, err := NewEngine()
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	err = engine.Compile("bad", "entity.status ==")
	if !errors.Is(err, ErrInvalidRuleExpr) {
		t.Errorf("Expected ErrInvalidRuleExpr, got %v", err)
	}

	if err := engine.Validate("unknown_var == 1"); !errors.Is(err, ErrInvalidRuleExpr) {
		t.Errorf("Expected undeclared variable to fail validation, got %v", err)
	}

	if err := engine.Validate("previous.amount < entity.amount"); err != nil {
		t.Errorf("Expected valid guard, got %v", err)
	}
}

func TestEngine_EvaluateGuard(t *testing.T) {
	engine, err := NewEngine()
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	if err := engine.Compile("guard", "has(user.id) && entity.amount > 100"); err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	tests := []struct {
		name string
		ctx  *EvalContext
		want bool
	}{
		{
			name: "matching",
			ctx: &EvalContext{
				Entity: map[string]any{"amount": 150},
				User:   BuildUserContext("u1", ""),
			},
			want: true,
		},
		{
			name: "below threshold",
			ctx: &EvalContext{
				Entity: map[string]any{"amount": 50},
				User:   BuildUserContext("u1", ""),
			},
			want: false,
		},
		{
			name: "anonymous",
			ctx: &EvalContext{
				Entity: map[string]any{"amount": 150},
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := engine.Evaluate("guard", tt.ctx)
			if err != nil {
				t.Fatalf("Evaluate failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEngine_EvaluateMissingRuleAllows(t *testing.T) {
	engine, err := NewEngine()
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	allowed, err := engine.Evaluate("nothing", nil)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if !allowed {
		t.Error("Expected missing rule to allow")
	}
}

func TestEngine_EvaluateErrors(t *testing.T) {
	engine, err := NewEngine()
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	if err := engine.Compile("missing-key", "entity.status == 'x'"); err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if _, err := engine.Evaluate("missing-key", &EvalContext{}); !errors.Is(err, ErrRuleEvaluation) {
		t.Errorf("Expected ErrRuleEvaluation for missing key, got %v", err)
	}

	if err := engine.Compile("not-bool", "'text'"); err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if _, err := engine.Evaluate("not-bool", &EvalContext{}); !errors.Is(err, ErrRuleEvaluation) {
		t.Errorf("Expected ErrRuleEvaluation for non-boolean result, got %v", err)
	}
}

func TestEngine_EvaluateValue(t *testing.T) {
	engine, err := NewEngine()
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	if err := engine.Compile("proc:double", "params.amount * 2"); err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	got, err := engine.EvaluateValue("proc:double", &EvalContext{Params: map[string]any{"amount": 21}})
	if err != nil {
		t.Fatalf("EvaluateValue failed: %v", err)
	}
	if got != int64(42) {
		t.Errorf("Expected 42, got %#v", got)
	}

	if err := engine.Compile("proc:summary", "{'user': caller.user_id, 'tags': ['a', 'b']}"); err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	got, err = engine.EvaluateValue("proc:summary", &EvalContext{Caller: map[string]any{"user_id": "u1"}})
	if err != nil {
		t.Fatalf("EvaluateValue failed: %v", err)
	}

	m, ok := got.(map[string]any)
	if !ok {
		t.Fatalf("Expected map result, got %T", got)
	}
	if m["user"] != "u1" {
		t.Errorf("Expected user u1, got %v", m["user"])
	}
	tags, ok := m["tags"].([]any)
	if !ok || len(tags) != 2 {
		t.Errorf("Expected two tags, got %#v", m["tags"])
	}

	if _, err := engine.EvaluateValue("proc:missing", nil); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("Expected ErrRuleNotFound, got %v", err)
	}
}

func TestBuildUserContext(t *testing.T) {
	if BuildUserContext("", "o1") != nil {
		t.Error("Expected nil user context for anonymous caller")
	}

	user := BuildUserContext("u1", "o1")
	if user["id"] != "u1" || user["organization_id"] != "o1" {
		t.Errorf("Unexpected user context %v", user)
	}
}
