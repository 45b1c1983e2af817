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

package trigger

import (
	"fmt"
	"strings"
)

// MatchExact compares the input value at key against the output value at
// the same key. Both must be strings; a type mismatch or missing key is a
// non-match with a diagnostic reason, never an error.
func MatchExact(inputs, outputs map[string]any, key string, ignoreCase bool) Decision {
	rawInput, ok := inputs[key]
	if !ok {
		return Skip(fmt.Sprintf("input %q is not configured", key))
	}
	want, ok := rawInput.(string)
	if !ok {
		return Skip(fmt.Sprintf("input %q is not a string", key))
	}

	rawOutput, ok := outputs[key]
	if !ok {
		return Skip(fmt.Sprintf("event has no %q output", key))
	}
	got, ok := rawOutput.(string)
	if !ok {
		return Skip(fmt.Sprintf("event output %q is not a string", key))
	}

	matched := want == got
	if ignoreCase {
		matched = strings.EqualFold(want, got)
	}
	if !matched {
		return Skip(fmt.Sprintf("%s %q does not match %q", key, got, want))
	}
	return Fire(fmt.Sprintf("%s matches %q", key, want))
}

// MatchMember checks set membership: the input at inputKey (a single string
// or an array of strings) must overlap the candidate strings carried by the
// output at outputKey. Candidate extraction accepts a plain string list or
// an object exposing a "segments" collection. Comparison ignores case.
//
// When optional is true an absent or empty input matches everything; when
// false it is a non-match.
func MatchMember(inputs, outputs map[string]any, inputKey, outputKey string, optional bool) Decision {
	wanted := stringList(inputs[inputKey])
	if len(wanted) == 0 {
		if optional {
			return Fire(fmt.Sprintf("input %q is empty, matches all", inputKey))
		}
		return Skip(fmt.Sprintf("input %q is not configured", inputKey))
	}

	rawOutput, ok := outputs[outputKey]
	if !ok {
		return Skip(fmt.Sprintf("event has no %q output", outputKey))
	}
	candidates := candidateStrings(rawOutput)
	if len(candidates) == 0 {
		return Skip(fmt.Sprintf("event output %q carries no candidate values", outputKey))
	}

	for _, want := range wanted {
		for _, have := range candidates {
			if strings.EqualFold(want, have) {
				return Fire(fmt.Sprintf("%s %q found in %s", inputKey, have, outputKey))
			}
		}
	}
	return Skip(fmt.Sprintf("none of %v found in %s %v", wanted, outputKey, candidates))
}

// stringList normalizes a single string or an array of values to a string
// slice. Non-string elements are skipped.
func stringList(v any) []string {
	switch val := v.(type) {
	case string:
		if val == "" {
			return nil
		}
		return []string{val}
	case []string:
		return val
	case []any:
		var out []string
		for _, item := range val {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// candidateStrings extracts the comparable strings carried by an output
// value: a string, a string list, or an object with a "segments" list.
func candidateStrings(v any) []string {
	switch val := v.(type) {
	case string, []string, []any:
		return stringList(val)
	case map[string]any:
		return stringList(val["segments"])
	default:
		return nil
	}
}
