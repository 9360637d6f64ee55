package httpapi

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realtimehub/internal/pairing"
	"realtimehub/internal/persistence"
	"realtimehub/internal/room"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	store, err := persistence.NewStore(dir)
	require.NoError(t, err)
	return &Server{
		Registry:  room.NewRegistry(store, pairing.NewTable()),
		DebugLogs: true,
		LogDir:    dir,
	}
}

func TestCatchAll_ReturnsPlaintextOk(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/anything", nil)
	w := httptest.NewRecorder()
	s.NewMux().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestHandleLog_AppendsLineWhenDebugEnabled(t *testing.T) {
	s := newTestServer(t)
	body := strings.NewReader(`{"app":"mobile","level":"info","msg":"hello"}`)
	req := httptest.NewRequest(http.MethodPost, "/log", body)
	w := httptest.NewRecorder()
	s.NewMux().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	raw, err := os.ReadFile(filepath.Join(s.LogDir, "mobile.log"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "hello")
}

func TestHandleLog_RejectsOversizedBody(t *testing.T) {
	s := newTestServer(t)
	huge := strings.Repeat("a", maxLogBodyBytes+1)
	req := httptest.NewRequest(http.MethodPost, "/log", strings.NewReader(huge))
	w := httptest.NewRecorder()
	s.NewMux().ServeHTTP(w, req)

	assert.NotEqual(t, http.StatusNoContent, w.Code)
}

func TestHandleViewport_EmptyForUnknownRoom(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/rooms/none/viewport", nil)
	w := httptest.NewRecorder()
	s.NewMux().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"strokeIds":[]}`, w.Body.String())
}
