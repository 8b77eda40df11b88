package core

// Position is a node's location on the canvas.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NodeData is the payload carried by a graph node.
// Relation counts are recomputed on every build and never persisted.
type NodeData struct {
	Label             string     `json:"label"`
	Properties        []Property `json:"properties"`
	Color             string     `json:"color"`
	PropertyCount     int        `json:"propertyCount"`
	OutgoingRelations int        `json:"outgoingRelations"`
	IncomingRelations int        `json:"incomingRelations"`
	URL               string     `json:"url,omitempty"`
	Icon              string     `json:"icon,omitempty"`
	CreatedTime       string     `json:"createdTime,omitempty"`
	LastEditedTime    string     `json:"lastEditedTime,omitempty"`
}

// GraphNode is one table rendered as a node.
type GraphNode struct {
	ID       TableID  `json:"id"`
	Position Position `json:"position"`
	Data     NodeData `json:"data"`
}

// GraphEdge is one relation rendered as an edge.
type GraphEdge struct {
	// ID is unique within one build only.
	ID     string  `json:"id"`
	Source TableID `json:"source"`
	Target TableID `json:"target"`
	Label  string  `json:"label,omitempty"`
	Color  string  `json:"color"`
}

// Graph is the output of one build.
type Graph struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// Positions extracts the position of every node keyed by id.
func (g Graph) Positions() map[TableID]Position {
	out := make(map[TableID]Position, len(g.Nodes))
	for _, n := range g.Nodes {
		out[n.ID] = n.Position
	}
	return out
}
