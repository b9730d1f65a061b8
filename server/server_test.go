package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/typewell/typewell/config"
	"github.com/typewell/typewell/engine"
	"github.com/typewell/typewell/vfs"
)

// stubService answers queries with canned results
type stubService struct{}

func (stubService) Hover(ctx context.Context, path string, offset int) (*engine.HoverResult, error) {
	return &engine.HoverResult{Contents: "const x: number"}, nil
}

func (stubService) Completions(ctx context.Context, path, prefix string) ([]engine.CompletionItem, error) {
	return []engine.CompletionItem{{Label: "xs", Kind: "const"}}, nil
}

func (stubService) Diagnostics(ctx context.Context, path string) ([]engine.Diagnostic, error) {
	return nil, nil
}

func (stubService) SnapshotID() string {
	return "snap-test"
}

func newTestServer(t *testing.T, cfg config.ServerConfig) (*Server, *vfs.Overlay, *httptest.Server) {
	t.Helper()
	overlay := vfs.NewOverlay()
	s := NewServer(cfg, stubService{}, overlay, zap.NewNop().Sugar())
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, overlay, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func call(t *testing.T, conn *websocket.Conn, id, method string, params any) response {
	t.Helper()
	raw, err := json.Marshal(params)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(request{ID: id, Method: method, Params: raw}))

	var resp response
	require.NoError(t, conn.ReadJSON(&resp))
	require.Equal(t, id, resp.ID)
	return resp
}

func notify(t *testing.T, conn *websocket.Conn, method string, params any) {
	t.Helper()
	raw, err := json.Marshal(params)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(request{Method: method, Params: raw}))
}

func TestHoverRoundTrip(t *testing.T) {
	_, _, ts := newTestServer(t, config.ServerConfig{})
	conn := dial(t, ts)

	resp := call(t, conn, "1", "hover", hoverParams{Path: "/src/app.ts", Offset: 4})
	require.Empty(t, resp.Error)

	result, ok := resp.Result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "const x: number", result["contents"])
}

func TestCompletionsRoundTrip(t *testing.T) {
	_, _, ts := newTestServer(t, config.ServerConfig{})
	conn := dial(t, ts)

	resp := call(t, conn, "2", "completions", completionParams{Path: "/src/app.ts", Prefix: "x"})
	require.Empty(t, resp.Error)

	items, ok := resp.Result.([]any)
	require.True(t, ok)
	require.Len(t, items, 1)
	assert.Equal(t, "xs", items[0].(map[string]any)["label"])
}

func TestSnapshotForwarded(t *testing.T) {
	_, _, ts := newTestServer(t, config.ServerConfig{})
	conn := dial(t, ts)

	resp := call(t, conn, "3", "snapshot", nil)
	require.Empty(t, resp.Error)
	assert.Equal(t, "snap-test", resp.Result)
}

func TestDocumentLifecycle(t *testing.T) {
	_, overlay, ts := newTestServer(t, config.ServerConfig{})
	conn := dial(t, ts)

	notify(t, conn, "didOpen", documentParams{Path: "/src/app.ts", Text: "const a = 1;"})
	notify(t, conn, "didChange", documentParams{Path: "/src/app.ts", Text: "const a = 2;"})

	// Round-trip a request so the notifications are processed
	resp := call(t, conn, "4", "snapshot", nil)
	require.Empty(t, resp.Error)

	text, ok := overlay.Read("/src/app.ts")
	require.True(t, ok)
	assert.Equal(t, "const a = 2;", text)
	assert.Equal(t, 2, overlay.Version("/src/app.ts"))

	notify(t, conn, "didClose", documentParams{Path: "/src/app.ts"})
	call(t, conn, "5", "snapshot", nil)
	_, ok = overlay.Read("/src/app.ts")
	assert.False(t, ok)
}

func TestDidChange_UnopenedDocument(t *testing.T) {
	_, _, ts := newTestServer(t, config.ServerConfig{})
	conn := dial(t, ts)

	resp := call(t, conn, "6", "didChange", documentParams{Path: "/src/never.ts", Text: "x"})
	assert.Contains(t, resp.Error, "not open")
}

func TestDocumentLimit(t *testing.T) {
	_, overlay, ts := newTestServer(t, config.ServerConfig{MaxDocsPerClient: 2})
	conn := dial(t, ts)

	require.Empty(t, call(t, conn, "1", "didOpen", documentParams{Path: "/a.ts"}).Error)
	require.Empty(t, call(t, conn, "2", "didOpen", documentParams{Path: "/b.ts"}).Error)

	resp := call(t, conn, "3", "didOpen", documentParams{Path: "/c.ts"})
	assert.Contains(t, resp.Error, "document limit")
	assert.Equal(t, 2, overlay.Len())

	// Re-opening an already open document is not a new slot
	require.Empty(t, call(t, conn, "4", "didOpen", documentParams{Path: "/a.ts"}).Error)
}

func TestUnknownMethod(t *testing.T) {
	_, _, ts := newTestServer(t, config.ServerConfig{})
	conn := dial(t, ts)

	resp := call(t, conn, "7", "definitelyNot", nil)
	assert.Contains(t, resp.Error, "unknown method")
}

func TestDisconnectClosesClientDocuments(t *testing.T) {
	s, overlay, ts := newTestServer(t, config.ServerConfig{})
	conn := dial(t, ts)

	require.Empty(t, call(t, conn, "1", "didOpen", documentParams{Path: "/src/app.ts", Text: "x"}).Error)
	require.Equal(t, 1, overlay.Len())
	require.Equal(t, 1, s.ConnCount())

	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		return overlay.Len() == 0 && s.ConnCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestOriginRejected(t *testing.T) {
	_, _, ts := newTestServer(t, config.ServerConfig{AllowedOrigins: []string{"http://localhost"}})

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	header := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestOriginAllowedByPrefix(t *testing.T) {
	_, _, ts := newTestServer(t, config.ServerConfig{AllowedOrigins: []string{"http://localhost"}})

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	header := http.Header{"Origin": []string{"http://localhost:5173"}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	_ = conn.Close()
}
