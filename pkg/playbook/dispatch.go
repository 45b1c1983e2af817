package playbook

import (
	"sort"
	"strings"
)

// DispatchType selects the fan-out policy applied when a trigger fires.
type DispatchType string

const (
	// DispatchOnce produces exactly one run per trigger firing.
	DispatchOnce DispatchType = "Once"

	// DispatchByCustomer produces one run per customer matching the
	// configured segment filter.
	DispatchByCustomer DispatchType = "ByCustomer"
)

// DispatchSettings is the fan-out policy of a definition.
type DispatchSettings struct {
	// Type is the fan-out policy. An empty value reads as DispatchOnce so
	// that definitions written before dispatch settings existed stay valid.
	Type DispatchType `json:"type,omitempty"`

	// CustomerSegments filters ByCustomer fan-out to customers in any of
	// the named segments. Empty means all customers.
	CustomerSegments []string `json:"customerSegments,omitempty"`
}

// EffectiveType returns the dispatch type, mapping the zero value to Once.
func (s DispatchSettings) EffectiveType() DispatchType {
	if s.Type == "" {
		return DispatchOnce
	}
	return s.Type
}

// Equal reports whether two settings describe the same policy: same type and
// the same set of segments, ignoring order.
func (s DispatchSettings) Equal(other DispatchSettings) bool {
	if s.EffectiveType() != other.EffectiveType() {
		return false
	}
	return segmentSet(s.CustomerSegments) == segmentSet(other.CustomerSegments)
}

// segmentSet canonicalizes a segment list for set comparison. Duplicates
// collapse; order is discarded.
func segmentSet(segments []string) string {
	if len(segments) == 0 {
		return ""
	}
	seen := make(map[string]bool, len(segments))
	for _, seg := range segments {
		seen[seg] = true
	}
	names := make([]string, 0, len(seen))
	for seg := range seen {
		names = append(names, seg)
	}
	sort.Strings(names)
	return strings.Join(names, "\x00")
}
