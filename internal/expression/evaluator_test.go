package expression

import (
	"strings"
	"testing"
)

func TestEvaluate(t *testing.T) {
	eval := New()
	outputs := map[string]any{
		"priority": "high",
		"count":    float64(3),
		"tags":     []any{"escalated", "vip"},
		"open":     true,
	}

	tests := []struct {
		name      string
		condition string
		want      bool
		wantErr   bool
	}{
		{"empty is true", "", true, false},
		{"string equality", `outputs.priority == "high"`, true, false},
		{"string inequality", `outputs.priority == "low"`, false, false},
		{"numeric comparison", `outputs.count > 2`, true, false},
		{"boolean output", `outputs.open`, true, false},
		{"has over list", `has(outputs.tags, "vip")`, true, false},
		{"includes alias", `includes(outputs.tags, "vip")`, true, false},
		{"has misses", `has(outputs.tags, "missing")`, false, false},
		{"length", `length(outputs.tags) == 2`, true, false},
		{"combined", `outputs.priority == "high" && outputs.count > 2`, true, false},
		{"undefined variable compares false", `outputs.missing == "x"`, false, false},
		{"syntax error", `outputs.priority ==`, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := eval.Evaluate(tt.condition, outputs)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Evaluate(%q) = %v, want %v", tt.condition, got, tt.want)
			}
		})
	}
}

func TestEvaluateErrorsAreValidationErrors(t *testing.T) {
	eval := New()
	_, err := eval.Evaluate("outputs.x ==", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "condition") {
		t.Errorf("error should name the condition field, got: %v", err)
	}
}

func TestCompileCache(t *testing.T) {
	eval := New()
	if eval.CacheSize() != 0 {
		t.Fatalf("new evaluator cache size = %d, want 0", eval.CacheSize())
	}

	cond := `outputs.priority == "high"`
	for i := 0; i < 3; i++ {
		if _, err := eval.Evaluate(cond, map[string]any{"priority": "high"}); err != nil {
			t.Fatalf("Evaluate() error = %v", err)
		}
	}
	if eval.CacheSize() != 1 {
		t.Errorf("cache size = %d, want 1 after repeated evaluation", eval.CacheSize())
	}

	if _, err := eval.Evaluate(`outputs.count > 1`, map[string]any{"count": 2}); err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if eval.CacheSize() != 2 {
		t.Errorf("cache size = %d, want 2", eval.CacheSize())
	}
}
