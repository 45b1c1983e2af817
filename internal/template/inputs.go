package template

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tombee/playbook/internal/catalog"
	"github.com/tombee/playbook/pkg/errors"
)

// ResolveInputs evaluates every string input as a template and coerces the
// results to their declared property kinds. Input keys are rewritten to
// canonical property names when the author used an old-name alias. Keys the
// step type does not declare pass through untouched; missing required
// inputs are validation errors.
func ResolveInputs(st *catalog.StepType, inputs map[string]any, ctx *Context) (map[string]any, error) {
	resolved := make(map[string]any, len(inputs))
	for key, value := range inputs {
		name := key
		prop, declared := st.Input(key)
		if declared {
			name = prop.Name
		}

		if s, ok := value.(string); ok {
			evaluated, err := ctx.Evaluate(s)
			if err != nil {
				return nil, err
			}
			value = evaluated
		}

		if declared {
			coerced, err := coerce(value, prop)
			if err != nil {
				return nil, err
			}
			value = coerced
		}
		resolved[name] = value
	}

	for _, prop := range st.Inputs {
		if !prop.Required {
			continue
		}
		if _, ok := resolved[prop.Name]; !ok {
			return nil, &errors.ValidationError{
				Field:   prop.Name,
				Message: fmt.Sprintf("step type %q requires input %q", st.Name, prop.Name),
			}
		}
	}
	return resolved, nil
}

// coerce converts a resolved value to its declared kind. Values already of
// the right type pass through; strings parse; anything else is a validation
// error naming the property.
func coerce(value any, prop catalog.StepProperty) (any, error) {
	if value == nil {
		return nil, nil
	}
	switch prop.Kind {
	case catalog.PropertyString:
		if s, ok := value.(string); ok {
			return s, nil
		}
		return fmt.Sprintf("%v", value), nil

	case catalog.PropertyNumber:
		switch n := value.(type) {
		case float64:
			return n, nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		case string:
			parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
			if err != nil {
				return nil, coercionError(prop.Name, n, "number")
			}
			return parsed, nil
		default:
			return nil, coercionError(prop.Name, value, "number")
		}

	case catalog.PropertyBoolean:
		switch b := value.(type) {
		case bool:
			return b, nil
		case string:
			parsed, err := strconv.ParseBool(strings.TrimSpace(b))
			if err != nil {
				return nil, coercionError(prop.Name, b, "boolean")
			}
			return parsed, nil
		default:
			return nil, coercionError(prop.Name, value, "boolean")
		}

	default:
		return value, nil
	}
}

func coercionError(name string, value any, kind string) error {
	return &errors.ValidationError{
		Field:   name,
		Message: fmt.Sprintf("value %v cannot be converted to %s", value, kind),
	}
}
