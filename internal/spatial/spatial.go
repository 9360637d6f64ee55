// Package spatial maintains an rtree-backed bounding-box index over a
// room's strokes, backing the supplemental viewport-query HTTP
// endpoint. It is not part of the websocket protocol and carries none
// of its ordering guarantees — it is a best-effort read side index,
// queried from a different goroutine than the room's single-writer
// actor, so it guards its own state independently.
package spatial

import (
	"sync"

	"github.com/tidwall/rtree"

	"realtimehub/internal/whiteboard"
)

const padding = 0.01

// Index tracks one room's strokes by bounding box.
type Index struct {
	mu     sync.RWMutex
	tree   rtree.RTree
	bounds map[string][2][2]float64
}

// NewIndex constructs an empty index.
func NewIndex() *Index {
	return &Index{bounds: make(map[string][2][2]float64)}
}

func boundingBox(points []whiteboard.Point) (min, max [2]float64) {
	if len(points) == 0 {
		return [2]float64{0, 0}, [2]float64{0, 0}
	}
	min = [2]float64{points[0].X, points[0].Y}
	max = min
	for _, p := range points[1:] {
		if p.X < min[0] {
			min[0] = p.X
		}
		if p.Y < min[1] {
			min[1] = p.Y
		}
		if p.X > max[0] {
			max[0] = p.X
		}
		if p.Y > max[1] {
			max[1] = p.Y
		}
	}
	min[0] -= padding
	min[1] -= padding
	max[0] += padding
	max[1] += padding
	return min, max
}

// Upsert (re)inserts a stroke's current bounding box, replacing any
// prior entry for the same strokeId.
func (ix *Index) Upsert(s whiteboard.Stroke) {
	min, max := boundingBox(s.Points)

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if prev, ok := ix.bounds[s.StrokeID]; ok {
		ix.tree.Delete(prev[0], prev[1], s.StrokeID)
	}
	ix.tree.Insert(min, max, s.StrokeID)
	ix.bounds[s.StrokeID] = [2][2]float64{min, max}
}

// Remove drops strokeID from the index, e.g. after an undo.
func (ix *Index) Remove(strokeID string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	prev, ok := ix.bounds[strokeID]
	if !ok {
		return
	}
	ix.tree.Delete(prev[0], prev[1], strokeID)
	delete(ix.bounds, strokeID)
}

// Clear empties the index.
func (ix *Index) Clear() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.tree = rtree.RTree{}
	ix.bounds = make(map[string][2][2]float64)
}

// Query returns the strokeIds whose bounding box intersects [min,max].
func (ix *Index) Query(min, max [2]float64) []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var ids []string
	ix.tree.Search(min, max, func(_, _ [2]float64, item any) bool {
		ids = append(ids, item.(string))
		return true
	})
	return ids
}
