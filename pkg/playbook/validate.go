package playbook

import (
	"fmt"
	"regexp"
)

// Diagnostic is one validation finding, intended for display next to the
// relevant definition field.
type Diagnostic struct {
	Message string `json:"message"`
}

// Identifier grammars. These are a de facto wire contract with stored
// definitions and must not drift.
var (
	// identifierPattern constrains step, input, and branch ids.
	identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

	// sequenceNamePattern additionally allows ':' as a namespace-like
	// separator (e.g. "stepId:branchName"), never at position 0.
	sequenceNamePattern = regexp.MustCompile(`^[a-zA-Z_][:a-zA-Z0-9_]*$`)

	// stepTypeNamePattern constrains step-type names: lowercase words
	// separated by '-', namespaced by '.' or ':'.
	stepTypeNamePattern = regexp.MustCompile(`^[a-z]([a-z0-9.:-]*)$`)
)

// IsValidIdentifier reports whether s is a valid step/input/branch id.
func IsValidIdentifier(s string) bool { return identifierPattern.MatchString(s) }

// IsValidSequenceName reports whether s is a valid sequence name.
func IsValidSequenceName(s string) bool { return sequenceNamePattern.MatchString(s) }

// IsValidStepTypeName reports whether s is a valid step-type name.
func IsValidStepTypeName(s string) bool { return stepTypeNamePattern.MatchString(s) }

// invalidPlaybook is the single diagnostic returned for structural
// corruption, where detailed findings would just describe a broken document.
const invalidPlaybook = "the playbook is invalid"

// Validate checks a definition and returns its diagnostics, empty when the
// definition is valid. Structural corruption (wrong format version, missing
// top-level shape, steps with no id or type) short-circuits to a single
// "invalid" diagnostic; everything else accumulates so an author sees all
// findings at once.
func Validate(def *Definition) []Diagnostic {
	if def == nil ||
		def.FormatVersion != CurrentFormatVersion ||
		def.Sequences == nil ||
		def.StartSequence == "" ||
		def.Triggers == nil {
		return []Diagnostic{{Message: invalidPlaybook}}
	}

	var diags []Diagnostic

	if _, ok := def.Sequences[def.StartSequence]; !ok {
		diags = append(diags, Diagnostic{
			Message: fmt.Sprintf("the start sequence %q does not exist", def.StartSequence),
		})
	}

	for name := range def.Sequences {
		if !IsValidSequenceName(name) {
			diags = append(diags, Diagnostic{
				Message: fmt.Sprintf("%q is not a valid sequence name", name),
			})
		}
	}

	steps := def.AllSteps()
	for _, step := range steps {
		// A step with no id or type means the stored JSON never described
		// one; per-field diagnostics would be noise on a broken document.
		if step == nil || step.StepID() == "" || step.TypeName() == "" {
			return []Diagnostic{{Message: invalidPlaybook}}
		}
	}

	seen := make(map[string]bool, len(steps))
	for _, step := range steps {
		id := step.StepID()
		if !IsValidIdentifier(id) {
			diags = append(diags, Diagnostic{
				Message: fmt.Sprintf("%q is not a valid step id", id),
			})
		}
		if seen[id] {
			diags = append(diags, Diagnostic{
				Message: fmt.Sprintf("duplicate step id %q", id),
			})
		}
		seen[id] = true

		if !IsValidStepTypeName(step.TypeName()) {
			diags = append(diags, Diagnostic{
				Message: fmt.Sprintf("%q is not a valid step type name", step.TypeName()),
			})
		}

		for key := range step.StepInputs() {
			if !IsValidIdentifier(key) {
				diags = append(diags, Diagnostic{
					Message: fmt.Sprintf("input %q on step %q is not a valid identifier", key, id),
				})
			}
		}

		if action, ok := step.(*ActionStep); ok {
			for branch, target := range action.Branches {
				if !IsValidIdentifier(branch) {
					diags = append(diags, Diagnostic{
						Message: fmt.Sprintf("branch %q on step %q is not a valid identifier", branch, id),
					})
				}
				if !IsValidSequenceName(target) {
					diags = append(diags, Diagnostic{
						Message: fmt.Sprintf("branch %q on step %q targets an invalid sequence name %q", branch, id, target),
					})
				}
			}
		}
	}

	return diags
}

// Messages flattens diagnostics into their message strings, in order.
func Messages(diags []Diagnostic) []string {
	if len(diags) == 0 {
		return nil
	}
	msgs := make([]string, len(diags))
	for i, d := range diags {
		msgs[i] = d.Message
	}
	return msgs
}
