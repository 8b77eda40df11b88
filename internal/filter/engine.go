// Package filter derives the visible table set from the user's visibility choices.
package filter

import (
	"github.com/leapstack-labs/schemagraph/internal/graph"
	"github.com/leapstack-labs/schemagraph/pkg/core"
)

// ComputeVisible returns the ids of the tables that survive every visibility rule.
//
// The steps run in a fixed order and the order matters: the tier cap is taken
// over the unfiltered table list, so filters never pull a fifth table into
// view for a free user.
//  1. start from all tables
//  2. cap connected free-tier data at core.FreeTierTableLimit (demo data is exempt)
//  3. keep tables having a property of a selected type, if any type is selected
//  4. drop manually hidden tables
//  5. drop tables with no relation at all, if hideIsolated is set
func ComputeVisible(
	tables []core.RawTable,
	relations []core.RawRelation,
	vis core.VisibilityState,
	tier core.PlanTier,
	hasProviderToken bool,
) core.IDSet {
	candidates := tables

	if hasProviderToken && tier == core.PlanFree && len(candidates) > core.FreeTierTableLimit {
		candidates = candidates[:core.FreeTierTableLimit]
	}

	if len(vis.SelectedPropertyTypes) > 0 {
		kept := make([]core.RawTable, 0, len(candidates))
		for _, t := range candidates {
			if t.HasPropertyType(vis.SelectedPropertyTypes) {
				kept = append(kept, t)
			}
		}
		candidates = kept
	}

	if len(vis.HiddenTableIDs) > 0 {
		kept := make([]core.RawTable, 0, len(candidates))
		for _, t := range candidates {
			if _, hidden := vis.HiddenTableIDs[t.ID]; !hidden {
				kept = append(kept, t)
			}
		}
		candidates = kept
	}

	var connected core.IDSet
	if vis.HideIsolated {
		connected = graph.NewIndex(relations).Connected()
	}

	visible := make(core.IDSet, len(candidates))
	for _, t := range candidates {
		if connected != nil && !connected.Has(t.ID) {
			continue
		}
		visible[t.ID] = struct{}{}
	}
	return visible
}

// IsCapped reports whether the tier cap hides tables from this user.
func IsCapped(tableCount int, tier core.PlanTier, hasProviderToken bool) bool {
	return hasProviderToken && tier == core.PlanFree && tableCount > core.FreeTierTableLimit
}
