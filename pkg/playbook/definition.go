// Package playbook provides the playbook definition model.
//
// A playbook definition describes a workflow as a set of entry-point
// triggers, a dispatch fan-out policy, and named sequences of action steps.
// Definitions are JSON-serializable and acyclic by construction: every
// cross-reference (start sequence, branch target) is a string id, never an
// object reference, so a definition can round-trip through storage without
// aliasing. The format version field is checked on read; a definition
// written by a different format version is treated as unreadable.
package playbook

// Definition is a versioned, serializable playbook definition.
//
// Once a playbook version is published its serialized definition is
// immutable; in-flight runs carry their own frozen copy, so later edits
// never affect them.
type Definition struct {
	// FormatVersion is the serialization format version. A definition whose
	// format version does not equal CurrentFormatVersion is invalid.
	FormatVersion int `json:"formatVersion,omitempty"`

	// Triggers are the entry-point steps, in author order. Trigger order is
	// significant: when several triggers of the same type match an event,
	// the first whose conditions pass wins.
	Triggers []*TriggerStep `json:"triggers"`

	// Dispatch is the fan-out policy applied when a trigger fires.
	Dispatch DispatchSettings `json:"dispatch"`

	// StartSequence is the id of the first sequence to run. It must be a
	// key of Sequences.
	StartSequence string `json:"startSequence"`

	// Sequences maps sequence name to its action list. Key order is not
	// significant.
	Sequences map[string]*ActionSequence `json:"sequences"`
}

// Step is the common surface of trigger and action steps. It exists so the
// validator and catalog can treat all steps of a definition uniformly.
type Step interface {
	// StepID returns the step's id, unique across the whole definition.
	StepID() string

	// TypeName returns the step-type name resolved through the catalog.
	TypeName() string

	// StepInputs returns the step's configured inputs. Values are JSON
	// primitives only (string, number, boolean); string values are template
	// expressions evaluated at run time.
	StepInputs() map[string]any
}

// TriggerStep is an entry-point step. When an external event matches the
// step's type and its conditions pass, the playbook is dispatched.
type TriggerStep struct {
	ID     string         `json:"id"`
	Type   string         `json:"type"`
	Inputs map[string]any `json:"inputs,omitempty"`
}

// StepID implements Step.
func (s *TriggerStep) StepID() string { return s.ID }

// TypeName implements Step.
func (s *TriggerStep) TypeName() string { return s.Type }

// StepInputs implements Step.
func (s *TriggerStep) StepInputs() map[string]any { return s.Inputs }

// ActionStep is a step that performs work during a run. Its result may name
// a branch; the branch maps to the sequence executed next.
type ActionStep struct {
	ID     string         `json:"id"`
	Type   string         `json:"type"`
	Inputs map[string]any `json:"inputs,omitempty"`

	// Branches maps branch name to target sequence name. Only honored when
	// the step's result outcome is Succeeded.
	Branches map[string]string `json:"branches,omitempty"`
}

// StepID implements Step.
func (s *ActionStep) StepID() string { return s.ID }

// TypeName implements Step.
func (s *ActionStep) TypeName() string { return s.Type }

// StepInputs implements Step.
func (s *ActionStep) StepInputs() map[string]any { return s.Inputs }

// ActionSequence is a named, linear list of action steps. Execution proceeds
// in order until a step's result redirects to another sequence via a branch
// or the playbook completes.
type ActionSequence struct {
	Actions []*ActionStep `json:"actions"`
}

// ActionReference bundles the coordinates of one action step so callers can
// retrieve it without scanning every sequence.
type ActionReference struct {
	SequenceID  string `json:"sequenceId"`
	ActionID    string `json:"actionId"`
	ActionIndex int    `json:"actionIndex"`
}

// AllSteps returns every step in the definition: triggers first, then each
// sequence's actions. Sequence iteration order is unspecified.
func (d *Definition) AllSteps() []Step {
	steps := make([]Step, 0, len(d.Triggers))
	for _, t := range d.Triggers {
		steps = append(steps, t)
	}
	for _, seq := range d.Sequences {
		if seq == nil {
			continue
		}
		for _, a := range seq.Actions {
			steps = append(steps, a)
		}
	}
	return steps
}

// TriggersOfType returns the definition's triggers with the given type name,
// preserving definition order.
func (d *Definition) TriggersOfType(typeName string) []*TriggerStep {
	var matched []*TriggerStep
	for _, t := range d.Triggers {
		if t != nil && t.Type == typeName {
			matched = append(matched, t)
		}
	}
	return matched
}

// FindTrigger returns the trigger step with the given id, or nil.
func (d *Definition) FindTrigger(id string) *TriggerStep {
	for _, t := range d.Triggers {
		if t != nil && t.ID == id {
			return t
		}
	}
	return nil
}

// FindAction resolves an ActionReference to its step. It returns nil when
// the reference no longer resolves, which callers must treat as a stale
// reference rather than an error.
func (d *Definition) FindAction(ref ActionReference) *ActionStep {
	seq, ok := d.Sequences[ref.SequenceID]
	if !ok || seq == nil {
		return nil
	}
	// The index is a hint; the id is authoritative. A definition edit can
	// shift indexes without invalidating the id.
	if ref.ActionIndex >= 0 && ref.ActionIndex < len(seq.Actions) {
		if a := seq.Actions[ref.ActionIndex]; a != nil && a.ID == ref.ActionID {
			return a
		}
	}
	for _, a := range seq.Actions {
		if a != nil && a.ID == ref.ActionID {
			return a
		}
	}
	return nil
}

// ReferenceTo builds an ActionReference for the action with the given id,
// returning false when the id does not exist in the definition.
func (d *Definition) ReferenceTo(actionID string) (ActionReference, bool) {
	for name, seq := range d.Sequences {
		if seq == nil {
			continue
		}
		for i, a := range seq.Actions {
			if a != nil && a.ID == actionID {
				return ActionReference{SequenceID: name, ActionID: actionID, ActionIndex: i}, true
			}
		}
	}
	return ActionReference{}, false
}
