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
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tombee/playbook/internal/catalog"
	"github.com/tombee/playbook/internal/featureflags"
)

func newTypesCommand() *cobra.Command {
	var staff bool

	cmd := &cobra.Command{
		Use:   "types",
		Short: "List the trigger and action types the engine knows about",
		Long: `Types lists every built-in step type with its kind and declared
inputs. Feature flags are read from the environment, so the listing
matches what an organization with every integration enabled would see.`,
		Example: `  # List all step types
  playbook types

  # Include staff-only types
  playbook types --staff

  # Full metadata as JSON
  playbook types --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTypes(cmd, staff)
		},
	}

	cmd.Flags().BoolVar(&staff, "staff", false, "Include staff-only step types")
	return cmd
}

func runTypes(cmd *cobra.Command, staff bool) error {
	cat, err := catalog.NewBuiltin(featureflags.NewEnvChecker(nil))
	if err != nil {
		return err
	}

	// Project for a fully-equipped organization so nothing is hidden by
	// missing integrations.
	org := catalog.OrganizationInfo{BotInstalled: true}
	actor := featureflags.Actor{Staff: staff}
	projection := cat.AllTypes(cmd.Context(), org, actor)

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(projection.Types)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tKIND\tINPUTS")
	for _, t := range projection.Types {
		fmt.Fprintf(w, "%s\t%s\t%s\n", t.Name, t.Kind, inputSummary(t))
	}
	return w.Flush()
}

// inputSummary renders a type's inputs as "name*, name" with required
// inputs starred.
func inputSummary(t *catalog.StepType) string {
	if len(t.Inputs) == 0 {
		return "-"
	}
	parts := make([]string, len(t.Inputs))
	for i, p := range t.Inputs {
		parts[i] = p.Name
		if p.Required {
			parts[i] += "*"
		}
	}
	return strings.Join(parts, ", ")
}
