// Package httpapi wires the hub's single HTTP listener: the
// websocket upgrade path, the optional debug log sink, and the
// supplemental spatial viewport query (spec.md §4.9). Routing follows
// the teacher's plain net/http mux rather than reaching for a router
// package — the surface is small enough that a mux adds nothing.
package httpapi

import (
	"bufio"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"realtimehub/internal/connection"
	"realtimehub/internal/logging"
	"realtimehub/internal/room"
)

const maxLogBodyBytes = 64 * 1024

// Server bundles the dependencies the HTTP handlers need.
type Server struct {
	Registry  *room.Registry
	DebugLogs bool
	LogDir    string

	logMu sync.Mutex
}

// NewMux builds the top-level handler: websocket upgrade at /ws,
// POST /log, GET /api/rooms/{roomId}/viewport, and a catch-all 200
// plaintext ok.
func (s *Server) NewMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/log", s.handleLog)
	mux.HandleFunc("/api/rooms/", s.handleViewport)
	mux.HandleFunc("/", s.handleCatchAll)
	return mux
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	connection.ServeWS(s.Registry, w, r)
}

type logEntry struct {
	App   string          `json:"app"`
	Level string          `json:"level"`
	Msg   string          `json:"msg"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// handleLog accepts {app, level, msg, data}, bodies capped at 64 KiB,
// and appends a line to a per-app log file when debug logging is
// enabled. CORS is permissive for this endpoint.
func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body := http.MaxBytesReader(w, r.Body, maxLogBodyBytes)
	raw, err := io.ReadAll(body)
	if err != nil {
		http.Error(w, "body too large", http.StatusRequestEntityTooLarge)
		return
	}

	var entry logEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if s.DebugLogs {
		s.appendLogLine(entry)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) appendLogLine(entry logEntry) {
	if entry.App == "" {
		entry.App = "client"
	}
	name := filepath.Base(entry.App) + ".log"

	s.logMu.Lock()
	defer s.logMu.Unlock()

	f, err := os.OpenFile(filepath.Join(s.LogDir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		logging.L().Error("open client log file", zap.String("app", entry.App), zap.Error(err))
		return
	}
	defer f.Close()

	line, err := json.Marshal(entry)
	if err != nil {
		return
	}
	w := bufio.NewWriter(f)
	w.Write(line)
	w.WriteByte('\n')
	w.Flush()
}

// handleViewport answers a bounding-box stroke query for a room, a
// supplemental read-side endpoint not part of the websocket protocol.
// Query params: minX, minY, maxX, maxY.
func (s *Server) handleViewport(w http.ResponseWriter, r *http.Request) {
	const prefix = "/api/rooms/"
	const suffix = "/viewport"
	path := r.URL.Path
	if len(path) <= len(prefix)+len(suffix) {
		http.NotFound(w, r)
		return
	}
	roomID := path[len(prefix) : len(path)-len(suffix)]
	if roomID == "" {
		http.NotFound(w, r)
		return
	}

	ix, ok := s.Registry.SpatialIndex(roomID)
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"strokeIds":[]}`))
		return
	}

	q := r.URL.Query()
	min := [2]float64{parseFloat(q.Get("minX")), parseFloat(q.Get("minY"))}
	max := [2]float64{parseFloat(q.Get("maxX")), parseFloat(q.Get("maxY"))}

	ids := ix.Query(min, max)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"strokeIds": ids})
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func (s *Server) handleCatchAll(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}
