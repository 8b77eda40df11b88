// Package graph turns normalized tables and relations into renderable nodes and edges.
package graph

import (
	"fmt"
	"hash/fnv"
	"math/rand/v2"

	"github.com/google/uuid"
	"github.com/leapstack-labs/schemagraph/internal/palette"
	"github.com/leapstack-labs/schemagraph/pkg/core"
)

// SeedSpread bounds the square in which unsaved nodes are seeded.
// The layout engine relaxes these points later.
const SeedSpread = 800.0

// Build produces one node per table and one edge per relation.
// It is pure apart from the random suffix of edge ids.
func Build(
	tables []core.RawTable,
	relations []core.RawRelation,
	positions map[core.TableID]core.Position,
	customColors map[core.TableID]string,
) core.Graph {
	idx := NewIndex(relations)

	tableColors := make(map[core.TableID]string, len(tables))
	nodes := make([]core.GraphNode, 0, len(tables))
	for _, t := range tables {
		color := t.Color
		if c, ok := customColors[t.ID]; ok && c != "" {
			color = c
		}
		tableColors[t.ID] = t.Color

		pos, ok := positions[t.ID]
		if !ok {
			pos = SeedPosition(t.ID)
		}

		nodes = append(nodes, core.GraphNode{
			ID:       t.ID,
			Position: pos,
			Data: core.NodeData{
				Label:             t.Title,
				Properties:        t.Properties,
				Color:             color,
				PropertyCount:     len(t.Properties),
				OutgoingRelations: idx.OutDegree(t.ID),
				IncomingRelations: idx.InDegree(t.ID),
				URL:               t.URL,
				Icon:              t.Icon,
				CreatedTime:       t.CreatedTime,
				LastEditedTime:    t.LastEditedTime,
			},
		})
	}

	edges := make([]core.GraphEdge, 0, len(relations))
	for i, r := range relations {
		edges = append(edges, core.GraphEdge{
			ID:     edgeID(i),
			Source: r.Source,
			Target: r.Target,
			Label:  r.Label,
			Color:  edgeColor(r.Source, customColors, tableColors),
		})
	}

	return core.Graph{Nodes: nodes, Edges: edges}
}

// edgeColor picks the custom color of the source, then its table color, then the fallback.
func edgeColor(source core.TableID, custom, table map[core.TableID]string) string {
	if c := custom[source]; c != "" {
		return c
	}
	if c := table[source]; c != "" {
		return c
	}
	return palette.FallbackColor
}

// edgeID combines the relation index with a random suffix so that parallel
// relations between the same tables never collide.
func edgeID(i int) string {
	return fmt.Sprintf("e%d-%s", i, uuid.NewString()[:8])
}

// SeedPosition returns a pseudo-random point for a table without a saved position.
// The point is derived from the id, so rebuilding with the same input is stable.
func SeedPosition(id core.TableID) core.Position {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	sum := h.Sum64()

	r := rand.New(rand.NewPCG(sum, sum>>17|sum<<47)) //nolint:gosec // layout seed, not security
	return core.Position{
		X: r.Float64() * SeedSpread,
		Y: r.Float64() * SeedSpread,
	}
}

// Filter keeps the nodes in visible and the edges whose endpoints are both visible.
func Filter(g core.Graph, visible core.IDSet) core.Graph {
	out := core.Graph{
		Nodes: make([]core.GraphNode, 0, len(visible)),
		Edges: make([]core.GraphEdge, 0, len(g.Edges)),
	}
	for _, n := range g.Nodes {
		if visible.Has(n.ID) {
			out.Nodes = append(out.Nodes, n)
		}
	}
	for _, e := range g.Edges {
		if visible.Has(e.Source) && visible.Has(e.Target) {
			out.Edges = append(out.Edges, e)
		}
	}
	return out
}
