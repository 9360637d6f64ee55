package whiteboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pt(x, y float64) Point { return Point{X: x, Y: y, T: 1} }

func TestStrokeStart_NewCreatesAuthoredStroke(t *testing.T) {
	b := New()
	isNew := b.StrokeStart("u1", "s1", Style{Tool: "pen"}, []Point{pt(0.1, 0.1)})
	require.True(t, isNew)

	s, ok := b.Strokes()["s1"]
	require.True(t, ok)
	assert.Equal(t, "u1", s.UserID)

	hist := b.HistoryFor("u1")
	assert.True(t, hist.CanUndo)
	assert.False(t, hist.CanRedo)
	assert.Equal(t, 1, hist.UndoCount)
}

func TestStrokeStart_ExistingTreatedAsMove(t *testing.T) {
	b := New()
	b.StrokeStart("u1", "s1", Style{Tool: "pen"}, []Point{pt(0, 0)})
	isNew := b.StrokeStart("u2", "s1", Style{Tool: "eraser"}, []Point{pt(1, 1)})
	assert.False(t, isNew)

	s := b.Strokes()["s1"]
	assert.Equal(t, "u1", s.UserID, "author never changes once set")
	assert.Len(t, s.Points, 2)
	assert.Equal(t, "eraser", s.Style.Tool, "style is last-writer-wins")
}

func TestStrokeMove_CrossUserAllowed(t *testing.T) {
	b := New()
	b.StrokeStart("u1", "s1", Style{Tool: "pen"}, []Point{pt(0, 0)})

	ok := b.StrokeMove("s1", Style{Tool: "pen"}, []Point{pt(0.5, 0.5)})
	assert.True(t, ok)
	assert.Len(t, b.Strokes()["s1"].Points, 2)
}

func TestStrokeMove_UnknownStrokeIsNoop(t *testing.T) {
	b := New()
	ok := b.StrokeMove("ghost", Style{}, []Point{pt(0, 0)})
	assert.False(t, ok)
}

func TestUndo_OnlyAuthorCanRemove(t *testing.T) {
	b := New()
	b.StrokeStart("u1", "s1", Style{}, []Point{pt(0, 0)})

	_, ok := b.Undo("u2")
	assert.False(t, ok, "u2 never authored anything, nothing to undo")
	_, stillPresent := b.Strokes()["s1"]
	assert.True(t, stillPresent)
}

func TestUndoRedo_RoundTrip(t *testing.T) {
	b := New()
	b.StrokeStart("u1", "s1", Style{Tool: "pen", Color: "#000"}, []Point{pt(0.1, 0.1)})

	removed, ok := b.Undo("u1")
	require.True(t, ok)
	assert.Equal(t, "s1", removed.StrokeID)
	_, present := b.Strokes()["s1"]
	assert.False(t, present)

	restored, ok := b.Redo("u1")
	require.True(t, ok)
	assert.Equal(t, removed.StrokeID, restored.StrokeID)
	assert.Equal(t, removed.Points, restored.Points)
	assert.Equal(t, removed.Style, restored.Style)

	hist := b.HistoryFor("u1")
	assert.Equal(t, 1, hist.UndoCount)
	assert.Equal(t, 0, hist.RedoCount)
}

func TestStrokeStart_ClearsRedoStack(t *testing.T) {
	b := New()
	b.StrokeStart("u1", "s1", Style{}, []Point{pt(0, 0)})
	b.Undo("u1")
	require.True(t, b.HistoryFor("u1").CanRedo)

	b.StrokeStart("u1", "s2", Style{}, []Point{pt(1, 1)})
	assert.False(t, b.HistoryFor("u1").CanRedo, "a fresh stroke-start must invalidate redo")
}

func TestUndo_SkipsStaleEntries(t *testing.T) {
	b := New()
	b.StrokeStart("u1", "s1", Style{}, []Point{pt(0, 0)})
	b.StrokeStart("u1", "s2", Style{}, []Point{pt(0, 0)})

	// Directly clear s2 out from under the stack (simulating a concurrent
	// clear-by-someone-else scenario at the data level) to exercise the
	// discard-until-match loop.
	delete(b.strokes, "s2")

	removed, ok := b.Undo("u1")
	require.True(t, ok)
	assert.Equal(t, "s1", removed.StrokeID)
}

func TestClear_Idempotent(t *testing.T) {
	b := New()
	b.StrokeStart("u1", "s1", Style{}, []Point{pt(0, 0)})
	b.Clear()
	first := b.Snapshot()
	b.Clear()
	second := b.Snapshot()
	assert.Equal(t, first, second)
	assert.Empty(t, second)
}

func TestLoadSnapshot_UndoRedoStartEmpty(t *testing.T) {
	b := LoadSnapshot([]Stroke{{StrokeID: "s1", UserID: "u1", Points: []Point{pt(0, 0)}}})
	assert.Len(t, b.Snapshot(), 1)
	hist := b.HistoryFor("u1")
	assert.False(t, hist.CanUndo)
	assert.False(t, hist.CanRedo)
}
