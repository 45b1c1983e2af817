// Package template evaluates handlebars-style expressions in step inputs
// against the accumulated results of a run.
//
// The context a template sees:
//
//	steps            map of step id to {id, outcome, outputs}
//	previous         the immediately preceding step's entry, if any
//	trigger          the triggering step's entry
//	outputs          flattened merge of every step's outputs so far,
//	                 later steps overriding earlier ones
//
// Two exact forms short-circuit the template engine and preserve the
// referenced value's type: "{{outputs.KEY}}" and "{{trigger.outputs.KEY}}".
// A structured output stays structured instead of being stringified just
// because it appears inside a template-looking string.
package template

import (
	"bytes"
	"fmt"
	"regexp"
	"text/template"
	"time"

	"github.com/tombee/playbook/internal/metrics"
	"github.com/tombee/playbook/pkg/errors"
)

// StepRecord is one prior step's contribution to the context, in execution
// order. The first record is the triggering step.
type StepRecord struct {
	ID      string
	Outcome string
	Outputs map[string]any
}

// Context is the immutable evaluation context for one step. It is built as
// a pure fold over prior step records, so resuming a suspended run rebuilds
// the exact same context from persisted results.
type Context struct {
	steps    map[string]map[string]any
	previous map[string]any
	trigger  map[string]any
	outputs  map[string]any
}

// Build folds prior step records into a Context. Records must be in
// execution order with the trigger first.
func Build(records []StepRecord) *Context {
	c := &Context{
		steps:   make(map[string]map[string]any, len(records)),
		outputs: make(map[string]any),
	}
	for i, rec := range records {
		entry := map[string]any{
			"id":      rec.ID,
			"outcome": rec.Outcome,
			"outputs": rec.Outputs,
		}
		c.steps[rec.ID] = entry
		if i == 0 {
			c.trigger = entry
		}
		if i == len(records)-1 {
			c.previous = entry
		}
		for k, v := range rec.Outputs {
			c.outputs[k] = v
		}
	}
	return c
}

// Outputs returns the flattened outputs map.
func (c *Context) Outputs() map[string]any { return c.outputs }

var (
	outputsRef        = regexp.MustCompile(`^\{\{\s*outputs\.([a-zA-Z_][a-zA-Z0-9_]*)\s*\}\}$`)
	triggerOutputsRef = regexp.MustCompile(`^\{\{\s*trigger\.outputs\.([a-zA-Z_][a-zA-Z0-9_]*)\s*\}\}$`)

	// contextRef rewrites handlebars-style references into text/template
	// field accesses: "{{outputs.x}}" becomes "{{.outputs.x}}".
	contextRef = regexp.MustCompile(`\{\{(\s*)(outputs|steps|previous|trigger)\b`)
)

// Evaluate resolves one template string against the context. The two exact
// reference forms return the referenced value unchanged; anything else runs
// through text/template and returns a string. Failures are validation
// errors carrying the offending template text.
func (c *Context) Evaluate(tmpl string) (any, error) {
	start := time.Now()
	defer func() { metrics.ObserveTemplateEvaluation(time.Since(start)) }()

	if m := outputsRef.FindStringSubmatch(tmpl); m != nil {
		if v, ok := c.outputs[m[1]]; ok {
			return v, nil
		}
		return nil, templateError(tmpl, fmt.Sprintf("no output named %q", m[1]))
	}
	if m := triggerOutputsRef.FindStringSubmatch(tmpl); m != nil {
		if c.trigger != nil {
			if outs, ok := c.trigger["outputs"].(map[string]any); ok {
				if v, ok := outs[m[1]]; ok {
					return v, nil
				}
			}
		}
		return nil, templateError(tmpl, fmt.Sprintf("trigger has no output named %q", m[1]))
	}

	if !containsTemplateSyntax(tmpl) {
		return tmpl, nil
	}

	parsed, err := template.New("input").
		Option("missingkey=error").
		Parse(contextRef.ReplaceAllString(tmpl, "{{$1.$2"))
	if err != nil {
		return nil, templateError(tmpl, err.Error())
	}

	var buf bytes.Buffer
	if err := parsed.Execute(&buf, c.data()); err != nil {
		return nil, templateError(tmpl, err.Error())
	}
	return buf.String(), nil
}

func (c *Context) data() map[string]any {
	data := map[string]any{
		"steps":   c.steps,
		"outputs": c.outputs,
	}
	if c.previous != nil {
		data["previous"] = c.previous
	}
	if c.trigger != nil {
		data["trigger"] = c.trigger
	}
	return data
}

// templateError wraps a template failure as a validation error for the
// playbook author, never an engine fault.
func templateError(tmpl, message string) error {
	return &errors.ValidationError{
		Field:      "template",
		Message:    fmt.Sprintf("%s in template %q", message, truncate(tmpl)),
		Suggestion: "check that the referenced step outputs exist at this point in the run",
	}
}

func truncate(s string) string {
	if len(s) > 60 {
		return s[:57] + "..."
	}
	return s
}

func containsTemplateSyntax(s string) bool {
	for i := 0; i+1 < len(s); i++ {
		if s[i] == '{' && s[i+1] == '{' {
			return true
		}
	}
	return false
}
