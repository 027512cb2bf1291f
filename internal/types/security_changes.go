package types

import (
	"slices"
	"strings"
)

// SecurityChanges is the delta produced by one universe evaluation.
type SecurityChanges struct {
	Added   []Symbol `yaml:"added" json:"added"`
	Removed []Symbol `yaml:"removed" json:"removed"`
	// InternalAdded holds securities added only for internal feeds such as
	// currency conversion. They are not reported to the algorithm as additions.
	InternalAdded []Symbol `yaml:"internal_added" json:"internal_added"`
}

// SecurityChangesNone is returned when nothing changed. Compare against it
// with ==.
var SecurityChangesNone = &SecurityChanges{Added: nil, Removed: nil, InternalAdded: nil}

// NewSecurityChanges builds a delta, returning SecurityChangesNone when every list is empty.
func NewSecurityChanges(added, removed, internalAdded []Symbol) *SecurityChanges {
	if len(added) == 0 && len(removed) == 0 && len(internalAdded) == 0 {
		return SecurityChangesNone
	}

	return &SecurityChanges{
		Added:         sortedSymbols(added),
		Removed:       sortedSymbols(removed),
		InternalAdded: sortedSymbols(internalAdded),
	}
}

// IsNone reports whether the changes are the None sentinel or carry nothing.
func (c *SecurityChanges) IsNone() bool {
	return c == nil || c == SecurityChangesNone || (len(c.Added) == 0 && len(c.Removed) == 0 && len(c.InternalAdded) == 0)
}

// Merge combines two deltas. A symbol added by one and removed by the other
// keeps the latest intent: other wins.
func (c *SecurityChanges) Merge(other *SecurityChanges) *SecurityChanges {
	if other.IsNone() {
		if c == nil {
			return SecurityChangesNone
		}

		return c
	}

	if c.IsNone() {
		return other
	}

	added := make(map[Symbol]struct{})
	removed := make(map[Symbol]struct{})
	internal := make(map[Symbol]struct{})

	for _, changes := range []*SecurityChanges{c, other} {
		for _, s := range changes.Added {
			added[s] = struct{}{}
			delete(removed, s)
		}

		for _, s := range changes.InternalAdded {
			internal[s] = struct{}{}
			delete(removed, s)
		}

		for _, s := range changes.Removed {
			removed[s] = struct{}{}
			delete(added, s)
			delete(internal, s)
		}
	}

	return NewSecurityChanges(keys(added), keys(removed), keys(internal))
}

func (c *SecurityChanges) String() string {
	if c.IsNone() {
		return "SecurityChanges: None"
	}

	names := func(symbols []Symbol) string {
		out := make([]string, 0, len(symbols))
		for _, s := range symbols {
			out = append(out, s.Ticker)
		}

		return strings.Join(out, ",")
	}

	return "SecurityChanges: Added: " + names(c.Added) + " Removed: " + names(c.Removed)
}

func keys(m map[Symbol]struct{}) []Symbol {
	out := make([]Symbol, 0, len(m))
	for s := range m {
		out = append(out, s)
	}

	return out
}

func sortedSymbols(symbols []Symbol) []Symbol {
	out := slices.Clone(symbols)
	slices.SortFunc(out, func(a, b Symbol) int {
		return strings.Compare(a.String(), b.String())
	})

	return out
}
