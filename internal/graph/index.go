package graph

import (
	"sort"

	"github.com/leapstack-labs/schemagraph/pkg/core"
)

// Index is a relation adjacency view over one set of relations.
// Unlike a dependency DAG it keeps duplicate and self-referencing relations,
// since every RawRelation counts towards a table's degree.
type Index struct {
	outgoing map[core.TableID][]core.TableID // source -> targets
	incoming map[core.TableID][]core.TableID // target -> sources
	edges    int
}

// NewIndex indexes the given relations.
func NewIndex(relations []core.RawRelation) *Index {
	idx := &Index{
		outgoing: make(map[core.TableID][]core.TableID),
		incoming: make(map[core.TableID][]core.TableID),
	}
	for _, r := range relations {
		idx.outgoing[r.Source] = append(idx.outgoing[r.Source], r.Target)
		idx.incoming[r.Target] = append(idx.incoming[r.Target], r.Source)
		idx.edges++
	}
	return idx
}

// OutDegree returns the number of relations whose source is id.
func (idx *Index) OutDegree(id core.TableID) int {
	return len(idx.outgoing[id])
}

// InDegree returns the number of relations whose target is id.
func (idx *Index) InDegree(id core.TableID) int {
	return len(idx.incoming[id])
}

// EdgeCount returns the number of indexed relations.
func (idx *Index) EdgeCount() int {
	return idx.edges
}

// Connected returns every id that appears as a source or target of any relation.
func (idx *Index) Connected() core.IDSet {
	set := make(core.IDSet, len(idx.outgoing)+len(idx.incoming))
	for id := range idx.outgoing {
		set[id] = struct{}{}
	}
	for id := range idx.incoming {
		set[id] = struct{}{}
	}
	return set
}

// Neighbors returns the distinct tables directly related to id in either direction.
func (idx *Index) Neighbors(id core.TableID) []core.TableID {
	seen := make(map[core.TableID]bool)
	for _, t := range idx.outgoing[id] {
		seen[t] = true
	}
	for _, s := range idx.incoming[id] {
		seen[s] = true
	}
	delete(seen, id)

	out := make([]core.TableID, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
