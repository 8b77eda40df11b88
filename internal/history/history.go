// Package history keeps a linear undo/redo stack of node positions.
package history

import (
	"sort"
	"time"

	"github.com/leapstack-labs/schemagraph/pkg/core"
)

// Defaults for New.
const (
	DefaultDebounce = 500 * time.Millisecond
	DefaultLimit    = 50
)

// NodePosition is one entry of a snapshot.
type NodePosition struct {
	ID       core.TableID  `json:"id"`
	Position core.Position `json:"position"`
}

// Snapshot is a deep copy of node positions, ordered by node order at save time.
type Snapshot []NodePosition

// Apply returns a copy of nodes with positions taken from the snapshot.
// Nodes missing from the snapshot keep their current position.
func (s Snapshot) Apply(nodes []core.GraphNode) []core.GraphNode {
	byID := s.Positions()
	out := make([]core.GraphNode, len(nodes))
	for i, n := range nodes {
		if p, ok := byID[n.ID]; ok {
			n.Position = p
		}
		out[i] = n
	}
	return out
}

// Positions returns the snapshot keyed by id.
func (s Snapshot) Positions() map[core.TableID]core.Position {
	out := make(map[core.TableID]core.Position, len(s))
	for _, np := range s {
		out[np.ID] = np.Position
	}
	return out
}

// SnapshotOf copies the positions out of nodes.
func SnapshotOf(nodes []core.GraphNode) Snapshot {
	snap := make(Snapshot, len(nodes))
	for i, n := range nodes {
		snap[i] = NodePosition{ID: n.ID, Position: n.Position}
	}
	return snap
}

// SnapshotFromPositions builds a snapshot from a position map, ordered by id.
func SnapshotFromPositions(positions map[core.TableID]core.Position) Snapshot {
	snap := make(Snapshot, 0, len(positions))
	for id, p := range positions {
		snap = append(snap, NodePosition{ID: id, Position: p})
	}
	sort.Slice(snap, func(i, j int) bool { return snap[i].ID < snap[j].ID })
	return snap
}

// Option configures a History.
type Option func(*History)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(h *History) { h.now = now }
}

// WithDebounce sets the minimum gap between accepted saves.
func WithDebounce(d time.Duration) Option {
	return func(h *History) { h.debounce = d }
}

// WithLimit caps the number of stored snapshots.
func WithLimit(n int) Option {
	return func(h *History) {
		if n > 0 {
			h.limit = n
		}
	}
}

// History is a debounced linear undo stack. It is not safe for concurrent use.
type History struct {
	stack    []Snapshot
	cursor   int // index of the current snapshot, -1 when empty
	lastSave time.Time
	debounce time.Duration
	limit    int
	now      func() time.Time
}

// New creates an empty history.
func New(opts ...Option) *History {
	h := &History{
		cursor:   -1,
		debounce: DefaultDebounce,
		limit:    DefaultLimit,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SaveState records the positions of nodes.
// Calls closer than the debounce window to the previous accepted call are
// dropped and report false. Saving while undone discards the redo branch.
func (h *History) SaveState(nodes []core.GraphNode) bool {
	return h.Save(SnapshotOf(nodes))
}

// Save records a snapshot with the same rules as SaveState.
func (h *History) Save(snap Snapshot) bool {
	now := h.now()
	if !h.lastSave.IsZero() && now.Sub(h.lastSave) < h.debounce {
		return false
	}
	h.lastSave = now

	h.stack = append(h.stack[:h.cursor+1], snap.clone())
	h.cursor = len(h.stack) - 1

	if over := len(h.stack) - h.limit; over > 0 {
		h.stack = append([]Snapshot(nil), h.stack[over:]...)
		h.cursor -= over
	}
	return true
}

// Undo moves one step back and returns that snapshot.
// At the bottom of the stack it returns false and does not move.
func (h *History) Undo() (Snapshot, bool) {
	if !h.CanUndo() {
		return nil, false
	}
	h.cursor--
	return h.stack[h.cursor].clone(), true
}

// Redo moves one step forward and returns that snapshot.
// At the top of the stack it returns false and does not move.
func (h *History) Redo() (Snapshot, bool) {
	if !h.CanRedo() {
		return nil, false
	}
	h.cursor++
	return h.stack[h.cursor].clone(), true
}

// CanUndo reports whether Undo would move.
func (h *History) CanUndo() bool { return h.cursor > 0 }

// CanRedo reports whether Redo would move.
func (h *History) CanRedo() bool { return h.cursor >= 0 && h.cursor < len(h.stack)-1 }

// Len returns the number of stored snapshots.
func (h *History) Len() int { return len(h.stack) }

// Clear drops every snapshot and resets the debounce window.
func (h *History) Clear() {
	h.stack = nil
	h.cursor = -1
	h.lastSave = time.Time{}
}

func (s Snapshot) clone() Snapshot {
	out := make(Snapshot, len(s))
	copy(out, s)
	return out
}
