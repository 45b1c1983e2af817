// Package expression evaluates trigger condition expressions.
//
// A trigger step may carry a "condition" input: a boolean expression
// evaluated against the firing event's outputs. Expressions use expr-lang
// syntax, e.g.:
//
//	outputs.priority == "high"
//	has(outputs.tags, "escalated") && length(outputs.tags) > 1
package expression

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/tombee/playbook/pkg/errors"
)

// Evaluator compiles and evaluates condition expressions. Compiled programs
// are cached, keyed by expression text; the same condition is evaluated for
// every event that reaches its trigger type.
type Evaluator struct {
	cache map[string]*vm.Program
	mu    sync.RWMutex
}

// New creates an Evaluator with an empty cache.
func New() *Evaluator {
	return &Evaluator{cache: make(map[string]*vm.Program)}
}

// Evaluate evaluates a condition against the event outputs. The expression
// sees the outputs map as "outputs". An empty expression is true: a trigger
// with no condition always fires.
func (e *Evaluator) Evaluate(condition string, outputs map[string]any) (bool, error) {
	if condition == "" {
		return true, nil
	}

	program, err := e.compile(condition)
	if err != nil {
		return false, &errors.ValidationError{
			Field:      "condition",
			Message:    fmt.Sprintf("failed to compile condition: %s", err.Error()),
			Suggestion: "check the condition syntax",
		}
	}

	// "contains" is a reserved string operator in expr, hence has/includes.
	env := map[string]any{
		"outputs":  outputs,
		"has":      containsFunc,
		"includes": containsFunc,
		"length":   lenFunc,
	}

	result, err := expr.Run(program, env)
	if err != nil {
		return false, &errors.ValidationError{
			Field:      "condition",
			Message:    fmt.Sprintf("condition evaluation failed: %s", err.Error()),
			Suggestion: "verify that all referenced outputs exist for this event",
		}
	}

	value, ok := result.(bool)
	if !ok {
		return false, &errors.ValidationError{
			Field:      "condition",
			Message:    fmt.Sprintf("condition must return boolean, got %T (%v)", result, result),
			Suggestion: "use comparison operators or boolean functions",
		}
	}
	return value, nil
}

func (e *Evaluator) compile(condition string) (*vm.Program, error) {
	e.mu.RLock()
	if prog, ok := e.cache[condition]; ok {
		e.mu.RUnlock()
		return prog, nil
	}
	e.mu.RUnlock()

	env := map[string]any{
		"outputs":  map[string]any{},
		"has":      containsFunc,
		"includes": containsFunc,
		"length":   lenFunc,
	}

	prog, err := expr.Compile(condition,
		expr.Env(env),
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
	)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[condition] = prog
	e.mu.Unlock()
	return prog, nil
}

// CacheSize returns the number of cached programs.
func (e *Evaluator) CacheSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}
