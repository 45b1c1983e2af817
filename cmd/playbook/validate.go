// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tombee/playbook/pkg/playbook"
)

// validateResult is the JSON output shape of the validate command.
type validateResult struct {
	File        string   `json:"file"`
	Valid       bool     `json:"valid"`
	Diagnostics []string `json:"diagnostics,omitempty"`
}

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <playbook>",
		Short: "Validate a playbook definition file",
		Long: `Validate checks that a playbook file parses and satisfies the
definition rules: known format version, valid identifiers, unique step
ids, resolvable branches, and a reachable start sequence.

YAML and JSON documents are both accepted; YAML is normalized through
the same path the engine stores definitions in, so a document that
validates here parses identically at dispatch time.`,
		Example: `  # Validate an authored playbook
  playbook validate onboarding.yaml

  # Validate with JSON output for parsing
  playbook validate onboarding.yaml --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, args[0])
		},
	}
}

func runValidate(cmd *cobra.Command, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read playbook file: %w", err)
	}

	def, err := parseDocument(path, data)
	var diags []string
	if err != nil {
		diags = []string{err.Error()}
	} else {
		diags = playbook.Messages(playbook.Validate(def))
	}

	result := validateResult{File: path, Valid: len(diags) == 0, Diagnostics: diags}
	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
	} else if result.Valid {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: valid\n", path)
	} else {
		for _, d := range diags {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: error: %s\n", path, d)
		}
	}

	if !result.Valid {
		return fmt.Errorf("%s: %d validation error(s)", path, len(diags))
	}
	return nil
}

// parseDocument picks the decoder by extension: .json documents use the
// stored-form decoder directly, everything else goes through YAML.
func parseDocument(path string, data []byte) (*playbook.Definition, error) {
	if strings.HasSuffix(path, ".json") {
		return playbook.Deserialize(string(data))
	}
	return playbook.FromYAML(data)
}
