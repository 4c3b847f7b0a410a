package devserver

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBridge records what the WS handler forwards to it.
type fakeBridge struct {
	mu      sync.Mutex
	inputs  []string
	resizes [][2]int
	closed  bool
	writer  *wsWriter
}

func (b *fakeBridge) WriteInput(data string) error {
	b.mu.Lock()
	b.inputs = append(b.inputs, data)
	b.mu.Unlock()
	// Echo like a shell would, so clients see output flow.
	return b.writer.WriteOutput([]byte(data))
}

func (b *fakeBridge) Resize(cols, rows int) error {
	b.mu.Lock()
	b.resizes = append(b.resizes, [2]int{cols, rows})
	b.mu.Unlock()
	return nil
}

func (b *fakeBridge) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
}

// wsTestSetup stands up a server whose bridge factory yields fakes.
func wsTestSetup(t *testing.T, cfg Config) (*httptest.Server, *sync.Map) {
	t.Helper()
	if cfg.AppToken == "" {
		cfg.AppToken = "mission-deck"
	}
	if cfg.FilesRoot == "" {
		cfg.FilesRoot = t.TempDir()
	}
	s := NewServer(cfg)

	bridges := &sync.Map{}
	s.newBridge = func(shell, workspaceID string, writer *wsWriter) (bridge, error) {
		b := &fakeBridge{writer: writer}
		bridges.Store(workspaceID, b)
		_ = writer.WriteOutput([]byte("$ "))
		return b, nil
	}

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv, bridges
}

func wsEndpoint(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func dialWS(t *testing.T, endpoint string, protocols []string) *websocket.Conn {
	t.Helper()
	dialer := websocket.Dialer{Subprotocols: protocols}
	conn, resp, err := dialer.Dial(endpoint, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestConsoleWSRoundTrip(t *testing.T) {
	srv, bridges := wsTestSetup(t, Config{})
	conn := dialWS(t, wsEndpoint(srv, "/ws/console"), []string{"mission-deck"})

	assert.Equal(t, "mission-deck", conn.Subprotocol())

	// The bridge greets on attach.
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "$ ", string(data))

	// Input frame reaches the bridge and the echo comes back.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"t":"i","d":"ls\r"}`)))
	_, data, err = conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "ls\r", string(data))

	// Resize frame reaches the bridge.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"t":"r","c":120,"r":40}`)))

	// Malformed payloads are ignored, the connection survives.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{oops")))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"t":"i","d":"pwd\r"}`)))
	_, data, err = conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "pwd\r", string(data))

	v, ok := bridges.Load("")
	require.True(t, ok)
	b := v.(*fakeBridge)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		b.mu.Lock()
		done := len(b.inputs) == 2 && len(b.resizes) == 1
		b.mu.Unlock()
		if done {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	assert.Equal(t, []string{"ls\r", "pwd\r"}, b.inputs)
	assert.Equal(t, [][2]int{{120, 40}}, b.resizes)
}

func TestConsoleWSRejectsMissingSubprotocol(t *testing.T) {
	srv, _ := wsTestSetup(t, Config{})

	dialer := websocket.Dialer{}
	_, resp, err := dialer.Dial(wsEndpoint(srv, "/ws/console"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestConsoleWSRejectsWrongCredential(t *testing.T) {
	srv, _ := wsTestSetup(t, Config{Token: "sekrit"})

	dialer := websocket.Dialer{Subprotocols: []string{"mission-deck", "jwt.wrong"}}
	_, resp, err := dialer.Dial(wsEndpoint(srv, "/ws/console"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestConsoleWSAcceptsCredential(t *testing.T) {
	srv, _ := wsTestSetup(t, Config{Token: "sekrit"})
	conn := dialWS(t, wsEndpoint(srv, "/ws/console"), []string{"mission-deck", "jwt.sekrit"})
	assert.Equal(t, "mission-deck", conn.Subprotocol())
}

func TestWorkspaceWS(t *testing.T) {
	srv, bridges := wsTestSetup(t, Config{})

	conn := dialWS(t, wsEndpoint(srv, "/ws/workspace/w-1/shell"), []string{"mission-deck"})
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "$ ", string(data))

	_, ok := bridges.Load("w-1")
	assert.True(t, ok, "bridge should be keyed by workspace id")
}

func TestWorkspaceWSUnknownWorkspace(t *testing.T) {
	srv, _ := wsTestSetup(t, Config{})

	dialer := websocket.Dialer{Subprotocols: []string{"mission-deck"}}
	_, resp, err := dialer.Dial(wsEndpoint(srv, "/ws/workspace/ghost/shell"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBridgeClosedWhenClientDisconnects(t *testing.T) {
	srv, bridges := wsTestSetup(t, Config{})
	conn := dialWS(t, wsEndpoint(srv, "/ws/console"), []string{"mission-deck"})

	_, _, err := conn.ReadMessage() // greeting
	require.NoError(t, err)
	conn.Close()

	v, ok := bridges.Load("")
	require.True(t, ok)
	b := v.(*fakeBridge)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		b.mu.Lock()
		closed := b.closed
		b.mu.Unlock()
		if closed {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("bridge was not closed after client disconnect")
}
