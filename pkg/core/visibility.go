package core

import (
	"fmt"
	"sort"
)

// PlanTier is the subscription level of a user.
type PlanTier string

// Plan tiers.
const (
	PlanFree PlanTier = "free"
	PlanPro  PlanTier = "pro"
)

// FreeTierTableLimit is the number of connected tables a free user can see.
const FreeTierTableLimit = 4

// ParsePlanTier validates a tier string. The empty string means free.
func ParsePlanTier(s string) (PlanTier, error) {
	switch PlanTier(s) {
	case "", PlanFree:
		return PlanFree, nil
	case PlanPro:
		return PlanPro, nil
	default:
		return "", fmt.Errorf("unknown plan tier %q (expected free or pro)", s)
	}
}

// SessionContext is the explicit per-session context handed to the engine
// at construction instead of shared globals.
type SessionContext struct {
	UserID           string
	Tier             PlanTier
	HasProviderToken bool
}

// VisibilityState holds the user's filter choices.
// It is derived input for the filter engine and is never persisted as a unit.
type VisibilityState struct {
	SelectedPropertyTypes map[string]struct{}
	HiddenTableIDs        map[TableID]struct{}
	HideIsolated          bool
	CustomColors          map[TableID]string
}

// NewVisibilityState returns an empty state with all maps allocated.
func NewVisibilityState() VisibilityState {
	return VisibilityState{
		SelectedPropertyTypes: make(map[string]struct{}),
		HiddenTableIDs:        make(map[TableID]struct{}),
		CustomColors:          make(map[TableID]string),
	}
}

// Clone returns a deep copy.
func (v VisibilityState) Clone() VisibilityState {
	out := NewVisibilityState()
	for k := range v.SelectedPropertyTypes {
		out.SelectedPropertyTypes[k] = struct{}{}
	}
	for k := range v.HiddenTableIDs {
		out.HiddenTableIDs[k] = struct{}{}
	}
	for k, c := range v.CustomColors {
		out.CustomColors[k] = c
	}
	out.HideIsolated = v.HideIsolated
	return out
}

// IDSet is a set of table ids.
type IDSet map[TableID]struct{}

// NewIDSet builds a set from ids.
func NewIDSet(ids ...TableID) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports membership.
func (s IDSet) Has(id TableID) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the members in lexical order.
func (s IDSet) Sorted() []TableID {
	out := make([]TableID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// SortedKeys returns the keys of a string set in lexical order.
func SortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
