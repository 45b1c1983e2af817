package playbook

import (
	"strings"
	"testing"
)

func validDefinition() *Definition {
	return &Definition{
		FormatVersion: CurrentFormatVersion,
		Triggers: []*TriggerStep{
			{ID: "start", Type: "signal", Inputs: map[string]any{"signal": "go"}},
		},
		StartSequence: "main",
		Sequences: map[string]*ActionSequence{
			"main": {Actions: []*ActionStep{
				{ID: "act", Type: "chat.send-message", Branches: map[string]string{"next": "other"}},
			}},
			"other": {Actions: []*ActionStep{}},
		},
	}
}

func diagnosticMentioning(diags []Diagnostic, fragment string) bool {
	for _, d := range diags {
		if strings.Contains(d.Message, fragment) {
			return true
		}
	}
	return false
}

func TestValidateAcceptsValidDefinition(t *testing.T) {
	if diags := Validate(validDefinition()); len(diags) != 0 {
		t.Fatalf("expected no diagnostics, got %v", diags)
	}
}

func TestValidateStructuralCorruption(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Definition)
	}{
		{"nil definition", nil},
		{"wrong format version", func(d *Definition) { d.FormatVersion = 99 }},
		{"missing sequences", func(d *Definition) { d.Sequences = nil }},
		{"missing start sequence", func(d *Definition) { d.StartSequence = "" }},
		{"missing triggers", func(d *Definition) { d.Triggers = nil }},
		{"step with empty id", func(d *Definition) { d.Triggers[0].ID = "" }},
		{"step with empty type", func(d *Definition) { d.Sequences["main"].Actions[0].Type = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var def *Definition
			if tt.mutate != nil {
				def = validDefinition()
				tt.mutate(def)
			}
			diags := Validate(def)
			if len(diags) != 1 || diags[0].Message != invalidPlaybook {
				t.Fatalf("expected single %q diagnostic, got %v", invalidPlaybook, diags)
			}
		})
	}
}

func TestValidateDiagnostics(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Definition)
		mention string
	}{
		{
			name:    "start sequence must exist",
			mutate:  func(d *Definition) { d.StartSequence = "missing" },
			mention: "missing",
		},
		{
			name: "sequence name pattern",
			mutate: func(d *Definition) {
				d.Sequences[":bad"] = &ActionSequence{}
			},
			mention: ":bad",
		},
		{
			name:    "step id pattern",
			mutate:  func(d *Definition) { d.Triggers[0].ID = "1bad" },
			mention: "1bad",
		},
		{
			name:    "step type pattern",
			mutate:  func(d *Definition) { d.Triggers[0].Type = "Not-Lower" },
			mention: "Not-Lower",
		},
		{
			name: "input key pattern",
			mutate: func(d *Definition) {
				d.Triggers[0].Inputs = map[string]any{"bad-key": "x"}
			},
			mention: "bad-key",
		},
		{
			name: "branch key pattern",
			mutate: func(d *Definition) {
				d.Sequences["main"].Actions[0].Branches = map[string]string{"bad name": "other"}
			},
			mention: "bad name",
		},
		{
			name: "branch target sequence name pattern",
			mutate: func(d *Definition) {
				d.Sequences["main"].Actions[0].Branches = map[string]string{"next": ":broken"}
			},
			mention: ":broken",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := validDefinition()
			tt.mutate(def)
			diags := Validate(def)
			if len(diags) == 0 {
				t.Fatal("expected diagnostics, got none")
			}
			if !diagnosticMentioning(diags, tt.mention) {
				t.Fatalf("expected a diagnostic mentioning %q, got %v", tt.mention, diags)
			}
		})
	}
}

func TestValidateDuplicateStepIDs(t *testing.T) {
	def := validDefinition()
	def.Sequences["other"].Actions = []*ActionStep{
		{ID: "act", Type: "chat.send-message"},
		{ID: "act", Type: "chat.send-message"},
	}

	diags := Validate(def)

	// One diagnostic per duplicate occurrence beyond the first.
	dupes := 0
	for _, d := range diags {
		if strings.Contains(d.Message, "duplicate step id") {
			dupes++
		}
	}
	if dupes != 2 {
		t.Fatalf("expected 2 duplicate diagnostics, got %d: %v", dupes, diags)
	}
}

func TestIdentifierGrammars(t *testing.T) {
	tests := []struct {
		value      string
		identifier bool
		sequence   bool
		stepType   bool
	}{
		{"stepOne", true, true, false},
		{"_private", true, true, false},
		{"step_1", true, true, false},
		{"1step", false, false, false},
		{"step:branch", false, true, true},
		{":branch", false, false, false},
		{"chat.send-message", false, false, true},
		{"signal", true, true, true},
		{"ns:scoped-type", false, false, true},
		{"Upper", true, true, false},
		{"", false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			if got := IsValidIdentifier(tt.value); got != tt.identifier {
				t.Errorf("IsValidIdentifier(%q) = %v, want %v", tt.value, got, tt.identifier)
			}
			if got := IsValidSequenceName(tt.value); got != tt.sequence {
				t.Errorf("IsValidSequenceName(%q) = %v, want %v", tt.value, got, tt.sequence)
			}
			if got := IsValidStepTypeName(tt.value); got != tt.stepType {
				t.Errorf("IsValidStepTypeName(%q) = %v, want %v", tt.value, got, tt.stepType)
			}
		})
	}
}
