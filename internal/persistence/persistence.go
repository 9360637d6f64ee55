// Package persistence implements debounced, whole-file JSON
// persistence of a room's whiteboard strokes. Every mutating
// whiteboard event schedules a write 250ms out; a further event
// within the window resets the timer, coalescing bursts of edits into
// one disk write (spec.md §4.4/§5). The debounce timers fire on their
// own scheduler, independent of any room's serialized event loop —
// this package is itself a shared, cross-room resource and guards its
// own state with a mutex.
package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"realtimehub/internal/logging"
	"realtimehub/internal/whiteboard"
)

// Debounce is the coalescing window for writes.
const Debounce = 250 * time.Millisecond

type document struct {
	RoomID  string              `json:"roomId"`
	SavedAt int64               `json:"savedAt"`
	Strokes []whiteboard.Stroke `json:"strokes"`
}

type pending struct {
	timer  *time.Timer
	latest []whiteboard.Stroke
}

// Store writes per-room snapshot files under a data directory.
type Store struct {
	dataDir string

	mu      sync.Mutex
	pending map[string]*pending
}

// NewStore creates a Store rooted at dataDir, creating the directory
// if it doesn't exist.
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("persistence: create data dir: %w", err)
	}
	return &Store{
		dataDir: dataDir,
		pending: make(map[string]*pending),
	}, nil
}

func (s *Store) path(roomID string) string {
	return filepath.Join(s.dataDir, roomID+".json")
}

// Load reads a room's persisted snapshot. A missing file or a parse
// failure both yield an empty stroke list with no error — persistence
// read failures are downgraded to "empty room, same id" (spec.md §7).
func (s *Store) Load(roomID string) []whiteboard.Stroke {
	raw, err := os.ReadFile(s.path(roomID))
	if err != nil {
		return nil
	}
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		logging.L().Warn("persistence: corrupt snapshot, treating as empty", zap.String("roomId", roomID), zap.Error(err))
		return nil
	}
	return doc.Strokes
}

// ScheduleSave debounces a write of strokes for roomID. Calling it
// again before the window elapses replaces the pending payload and
// resets the timer rather than queuing a second write.
func (s *Store) ScheduleSave(roomID string, strokes []whiteboard.Stroke) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.pending[roomID]; ok {
		p.latest = strokes
		p.timer.Reset(Debounce)
		return
	}

	p := &pending{latest: strokes}
	p.timer = time.AfterFunc(Debounce, func() { s.flush(roomID) })
	s.pending[roomID] = p
}

func (s *Store) flush(roomID string) {
	s.mu.Lock()
	p, ok := s.pending[roomID]
	if ok {
		delete(s.pending, roomID)
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	doc := document{RoomID: roomID, SavedAt: time.Now().Unix(), Strokes: p.latest}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		logging.L().Error("persistence: marshal snapshot", zap.String("roomId", roomID), zap.Error(err))
		return
	}
	if err := os.WriteFile(s.path(roomID), raw, 0o644); err != nil {
		// Best-effort: the next debounce window retries naturally on the
		// next mutating event. Nothing here is fatal to serving.
		logging.L().Error("persistence: write snapshot", zap.String("roomId", roomID), zap.Error(err))
	}
}

// FlushNow forces an immediate synchronous write, bypassing the
// debounce window. Used when a room is torn down (its client set
// becomes empty) so state isn't left stranded in a pending timer.
func (s *Store) FlushNow(roomID string, strokes []whiteboard.Stroke) {
	s.mu.Lock()
	if p, ok := s.pending[roomID]; ok {
		p.timer.Stop()
		delete(s.pending, roomID)
	}
	s.mu.Unlock()

	doc := document{RoomID: roomID, SavedAt: time.Now().Unix(), Strokes: strokes}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		logging.L().Error("persistence: marshal snapshot", zap.String("roomId", roomID), zap.Error(err))
		return
	}
	if err := os.WriteFile(s.path(roomID), raw, 0o644); err != nil {
		logging.L().Error("persistence: write snapshot", zap.String("roomId", roomID), zap.Error(err))
	}
}
