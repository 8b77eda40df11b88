package history

import (
	"testing"
	"time"

	"github.com/leapstack-labs/schemagraph/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances only when told to.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestHistory(opts ...Option) (*History, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	return New(append([]Option{WithClock(clock.now)}, opts...)...), clock
}

func nodesAt(x float64) []core.GraphNode {
	return []core.GraphNode{
		{ID: "a", Position: core.Position{X: x, Y: 0}},
		{ID: "b", Position: core.Position{X: x + 1, Y: 1}},
	}
}

func TestHistory_UndoRedoRoundTrip(t *testing.T) {
	h, clock := newTestHistory()

	require.True(t, h.SaveState(nodesAt(1)))
	clock.advance(600 * time.Millisecond)
	require.True(t, h.SaveState(nodesAt(2)))

	undone, ok := h.Undo()
	require.True(t, ok)
	assert.Equal(t, SnapshotOf(nodesAt(1)), undone)

	redone, ok := h.Redo()
	require.True(t, ok)
	assert.Equal(t, SnapshotOf(nodesAt(2)), redone)
}

func TestHistory_Debounce(t *testing.T) {
	h, clock := newTestHistory()

	assert.True(t, h.SaveState(nodesAt(1)))
	clock.advance(100 * time.Millisecond)
	assert.False(t, h.SaveState(nodesAt(2)), "second save inside the window is dropped")

	assert.Equal(t, 1, h.Len())
	assert.False(t, h.CanUndo())

	clock.advance(500 * time.Millisecond)
	assert.True(t, h.SaveState(nodesAt(3)))
	assert.Equal(t, 2, h.Len())
}

func TestHistory_DebounceMeasuredFromLastAcceptedSave(t *testing.T) {
	h, clock := newTestHistory()

	require.True(t, h.SaveState(nodesAt(1)))
	clock.advance(300 * time.Millisecond)
	require.False(t, h.SaveState(nodesAt(2)))
	clock.advance(300 * time.Millisecond)
	assert.True(t, h.SaveState(nodesAt(3)), "600ms after the accepted save")
}

func TestHistory_Boundaries(t *testing.T) {
	h, _ := newTestHistory()

	snap, ok := h.Undo()
	assert.False(t, ok)
	assert.Nil(t, snap)
	_, ok = h.Redo()
	assert.False(t, ok)

	h.SaveState(nodesAt(1))
	_, ok = h.Undo()
	assert.False(t, ok, "single entry cannot be undone")
	_, ok = h.Redo()
	assert.False(t, ok)
	assert.Equal(t, 0, h.cursor, "cursor did not move")
}

func TestHistory_SaveDiscardsRedoBranch(t *testing.T) {
	h, clock := newTestHistory()

	for i := 1; i <= 3; i++ {
		require.True(t, h.SaveState(nodesAt(float64(i))))
		clock.advance(time.Second)
	}
	_, _ = h.Undo()
	_, _ = h.Undo()
	require.True(t, h.CanRedo())

	require.True(t, h.SaveState(nodesAt(9)))
	assert.False(t, h.CanRedo())
	assert.Equal(t, 2, h.Len())

	undone, ok := h.Undo()
	require.True(t, ok)
	assert.Equal(t, SnapshotOf(nodesAt(1)), undone)
}

func TestHistory_LimitEvictsOldest(t *testing.T) {
	h, clock := newTestHistory(WithLimit(3))

	for i := 1; i <= 5; i++ {
		require.True(t, h.SaveState(nodesAt(float64(i))))
		clock.advance(time.Second)
	}
	assert.Equal(t, 3, h.Len())

	var last Snapshot
	for h.CanUndo() {
		last, _ = h.Undo()
	}
	assert.Equal(t, SnapshotOf(nodesAt(3)), last, "entries 1 and 2 were evicted")
}

func TestHistory_DefaultLimit(t *testing.T) {
	h, clock := newTestHistory()
	for i := 0; i < DefaultLimit+10; i++ {
		h.SaveState(nodesAt(float64(i)))
		clock.advance(time.Second)
	}
	assert.Equal(t, DefaultLimit, h.Len())
	assert.Equal(t, DefaultLimit-1, h.cursor)
}

func TestHistory_SnapshotsAreDeepCopies(t *testing.T) {
	h, clock := newTestHistory()
	nodes := nodesAt(1)
	h.SaveState(nodes)
	clock.advance(time.Second)
	h.SaveState(nodesAt(2))

	nodes[0].Position.X = 1000

	undone, _ := h.Undo()
	assert.Equal(t, 1.0, undone[0].Position.X)

	undone[0].Position.X = 2000
	redone, _ := h.Redo()
	again, _ := h.Undo()
	assert.Equal(t, 2.0, redone[0].Position.X)
	assert.Equal(t, 1.0, again[0].Position.X)
}

func TestHistory_Clear(t *testing.T) {
	h, clock := newTestHistory()
	h.SaveState(nodesAt(1))
	clock.advance(time.Second)
	h.SaveState(nodesAt(2))

	h.Clear()
	assert.Equal(t, 0, h.Len())
	assert.False(t, h.CanUndo())
	assert.False(t, h.CanRedo())
	assert.True(t, h.SaveState(nodesAt(3)), "clear resets the debounce window")
}

func TestSnapshot_Apply(t *testing.T) {
	snap := Snapshot{{ID: "a", Position: core.Position{X: 5, Y: 5}}}
	nodes := nodesAt(1)

	applied := snap.Apply(nodes)
	assert.Equal(t, core.Position{X: 5, Y: 5}, applied[0].Position)
	assert.Equal(t, nodes[1].Position, applied[1].Position)
	assert.Equal(t, 1.0, nodes[0].Position.X, "input untouched")
}

func TestSnapshotFromPositions_Ordered(t *testing.T) {
	snap := SnapshotFromPositions(map[core.TableID]core.Position{"b": {X: 2}, "a": {X: 1}})
	require.Len(t, snap, 2)
	assert.Equal(t, "a", snap[0].ID)
	assert.Equal(t, "b", snap[1].ID)
}
