package spatial

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"realtimehub/internal/whiteboard"
)

func stroke(id string, x, y float64) whiteboard.Stroke {
	return whiteboard.Stroke{StrokeID: id, Points: []whiteboard.Point{{X: x, Y: y}}}
}

func TestQuery_FindsStrokeWithinBounds(t *testing.T) {
	ix := NewIndex()
	ix.Upsert(stroke("s1", 0.1, 0.1))
	ix.Upsert(stroke("s2", 0.9, 0.9))

	ids := ix.Query([2]float64{0, 0}, [2]float64{0.2, 0.2})
	assert.Contains(t, ids, "s1")
	assert.NotContains(t, ids, "s2")
}

func TestUpsert_ReplacesPriorBoundingBox(t *testing.T) {
	ix := NewIndex()
	ix.Upsert(stroke("s1", 0.1, 0.1))
	ix.Upsert(stroke("s1", 0.9, 0.9))

	assert.Empty(t, ix.Query([2]float64{0, 0}, [2]float64{0.2, 0.2}))
	assert.Contains(t, ix.Query([2]float64{0.8, 0.8}, [2]float64{1, 1}), "s1")
}

func TestRemove(t *testing.T) {
	ix := NewIndex()
	ix.Upsert(stroke("s1", 0.1, 0.1))
	ix.Remove("s1")
	assert.Empty(t, ix.Query([2]float64{0, 0}, [2]float64{1, 1}))
}

func TestClear(t *testing.T) {
	ix := NewIndex()
	ix.Upsert(stroke("s1", 0.1, 0.1))
	ix.Upsert(stroke("s2", 0.5, 0.5))
	ix.Clear()
	assert.Empty(t, ix.Query([2]float64{0, 0}, [2]float64{1, 1}))
}
