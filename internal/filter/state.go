package filter

import "github.com/leapstack-labs/schemagraph/pkg/core"

// State wraps a VisibilityState with the mutators the UI drives.
// Every mutator marks the state dirty; the owner clears it after a
// successful cloud save. State is not safe for concurrent use.
type State struct {
	vis   core.VisibilityState
	dirty bool
}

// NewState returns an empty, clean state.
func NewState() *State {
	return &State{vis: core.NewVisibilityState()}
}

// Restore replaces the whole state without marking it dirty.
// It is used when loading persisted choices.
func Restore(types []string, hidden []core.TableID, hideIsolated bool, colors map[core.TableID]string) *State {
	s := NewState()
	for _, t := range types {
		s.vis.SelectedPropertyTypes[t] = struct{}{}
	}
	for _, id := range hidden {
		s.vis.HiddenTableIDs[id] = struct{}{}
	}
	for id, c := range colors {
		s.vis.CustomColors[id] = c
	}
	s.vis.HideIsolated = hideIsolated
	return s
}

// Visibility returns a copy of the current choices.
func (s *State) Visibility() core.VisibilityState {
	return s.vis.Clone()
}

// Dirty reports whether the state changed since the last MarkClean.
func (s *State) Dirty() bool { return s.dirty }

// MarkClean clears the dirty flag.
func (s *State) MarkClean() { s.dirty = false }

// ToggleFilter adds or removes a property type from the inclusion filter.
func (s *State) ToggleFilter(propertyType string) {
	if _, ok := s.vis.SelectedPropertyTypes[propertyType]; ok {
		delete(s.vis.SelectedPropertyTypes, propertyType)
	} else {
		s.vis.SelectedPropertyTypes[propertyType] = struct{}{}
	}
	s.dirty = true
}

// ToggleHiddenTable hides or unhides one table.
func (s *State) ToggleHiddenTable(id core.TableID) {
	if _, ok := s.vis.HiddenTableIDs[id]; ok {
		delete(s.vis.HiddenTableIDs, id)
	} else {
		s.vis.HiddenTableIDs[id] = struct{}{}
	}
	s.dirty = true
}

// ToggleHideIsolated flips the isolated-table exclusion.
func (s *State) ToggleHideIsolated() {
	s.vis.HideIsolated = !s.vis.HideIsolated
	s.dirty = true
}

// ClearFilters resets property filters and the isolation toggle.
// Manually hidden tables are left untouched.
func (s *State) ClearFilters() {
	s.vis.SelectedPropertyTypes = make(map[string]struct{})
	s.vis.HideIsolated = false
	s.dirty = true
}

// SetColor overrides a table's color. An empty color removes the override.
func (s *State) SetColor(id core.TableID, color string) {
	if color == "" {
		delete(s.vis.CustomColors, id)
	} else {
		s.vis.CustomColors[id] = color
	}
	s.dirty = true
}

// ApplyFilters replaces the property type filter without marking dirty.
func (s *State) ApplyFilters(types []string) {
	s.vis.SelectedPropertyTypes = make(map[string]struct{}, len(types))
	for _, t := range types {
		s.vis.SelectedPropertyTypes[t] = struct{}{}
	}
}

// ApplyHidden replaces the hidden set without marking dirty.
func (s *State) ApplyHidden(ids []core.TableID) {
	s.vis.HiddenTableIDs = make(map[core.TableID]struct{}, len(ids))
	for _, id := range ids {
		s.vis.HiddenTableIDs[id] = struct{}{}
	}
}

// ApplyHideIsolated sets the isolation flag without marking dirty.
func (s *State) ApplyHideIsolated(v bool) { s.vis.HideIsolated = v }

// ApplyColors replaces the custom colors without marking dirty.
func (s *State) ApplyColors(colors map[core.TableID]string) {
	s.vis.CustomColors = make(map[core.TableID]string, len(colors))
	for id, c := range colors {
		s.vis.CustomColors[id] = c
	}
}

// Filters returns the selected property types in lexical order.
func (s *State) Filters() []string { return core.SortedKeys(s.vis.SelectedPropertyTypes) }

// Hidden returns the hidden table ids in lexical order.
func (s *State) Hidden() []core.TableID { return core.SortedKeys(s.vis.HiddenTableIDs) }

// HideIsolated returns the isolation flag.
func (s *State) HideIsolated() bool { return s.vis.HideIsolated }

// Colors returns a copy of the custom colors.
func (s *State) Colors() map[core.TableID]string {
	out := make(map[core.TableID]string, len(s.vis.CustomColors))
	for id, c := range s.vis.CustomColors {
		out[id] = c
	}
	return out
}
