package console

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

// eventRecorder captures transport callbacks for assertion.
type eventRecorder struct {
	mu      sync.Mutex
	opened  bool
	output  []string
	closed  bool
	code    int
	reached bool

	openCh  chan struct{}
	closeCh chan struct{}
}

func newEventRecorder() *eventRecorder {
	return &eventRecorder{
		openCh:  make(chan struct{}),
		closeCh: make(chan struct{}),
	}
}

func (r *eventRecorder) callbacks() Callbacks {
	return Callbacks{
		OnOpen: func() {
			r.mu.Lock()
			r.opened = true
			r.mu.Unlock()
			close(r.openCh)
		},
		OnOutput: func(data []byte) {
			r.mu.Lock()
			r.output = append(r.output, string(data))
			r.mu.Unlock()
		},
		OnClose: func(code int, reachedOpen bool) {
			r.mu.Lock()
			r.closed = true
			r.code = code
			r.reached = reachedOpen
			r.mu.Unlock()
			close(r.closeCh)
		},
	}
}

func (r *eventRecorder) waitOpen(t *testing.T) {
	t.Helper()
	select {
	case <-r.openCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for open")
	}
}

func (r *eventRecorder) waitClose(t *testing.T) {
	t.Helper()
	select {
	case <-r.closeCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for close")
	}
}

func (r *eventRecorder) outputText() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return strings.Join(r.output, "")
}

// wsTestServer upgrades one connection and hands it to fn.
func wsTestServer(t *testing.T, subprotocols []string, fn func(*websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{Subprotocols: subprotocols}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		fn(conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestTransportOpenAndOutput(t *testing.T) {
	srv := wsTestServer(t, []string{"mission-deck"}, func(conn *websocket.Conn) {
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte("user@host:~$ "))
		_ = conn.WriteMessage(websocket.TextMessage, []byte("ls\r\n"))
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
	})

	rec := newEventRecorder()
	tr := NewTransport(wsURL(srv), []string{"mission-deck"}, rec.callbacks())
	tr.Dial()

	rec.waitOpen(t)
	rec.waitClose(t)

	assert.Equal(t, "user@host:~$ ls\r\n", rec.outputText())
	assert.Equal(t, websocket.CloseNormalClosure, rec.code)
	assert.True(t, rec.reached)
}

func TestTransportSendReachesServer(t *testing.T) {
	got := make(chan Frame, 1)
	srv := wsTestServer(t, []string{"mission-deck"}, func(conn *websocket.Conn) {
		defer conn.Close()
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		f, err := DecodeFrame(data)
		if err != nil {
			return
		}
		got <- f
	})

	rec := newEventRecorder()
	tr := NewTransport(wsURL(srv), []string{"mission-deck"}, rec.callbacks())
	tr.Dial()
	defer tr.Close()

	rec.waitOpen(t)
	tr.Send(InputFrame("echo hi\r"))

	select {
	case f := <-got:
		assert.True(t, f.IsInput())
		assert.Equal(t, "echo hi\r", f.D)
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the frame")
	}
}

func TestTransportSubprotocolNegotiation(t *testing.T) {
	selected := make(chan string, 1)
	srv := wsTestServer(t, []string{"mission-deck"}, func(conn *websocket.Conn) {
		selected <- conn.Subprotocol()
		conn.Close()
	})

	rec := newEventRecorder()
	tr := NewTransport(wsURL(srv), []string{"mission-deck", "jwt.header.payload.sig"}, rec.callbacks())
	tr.Dial()
	defer tr.Close()

	select {
	case got := <-selected:
		assert.Equal(t, "mission-deck", got)
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw the connection")
	}
}

func TestTransportDialFailure(t *testing.T) {
	// A server that exists only long enough to produce a dead address.
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	endpoint := wsURL(srv)
	srv.Close()

	rec := newEventRecorder()
	tr := NewTransport(endpoint, []string{"mission-deck"}, rec.callbacks())
	tr.Dial()

	rec.waitClose(t)
	assert.Equal(t, websocket.CloseAbnormalClosure, rec.code)
	assert.False(t, rec.reached, "handshake failure must report reachedOpen=false")
	assert.False(t, rec.opened)
}

func TestTransportNonUpgradeResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	rec := newEventRecorder()
	tr := NewTransport(wsURL(srv), []string{"mission-deck"}, rec.callbacks())
	tr.Dial()

	rec.waitClose(t)
	assert.Equal(t, websocket.CloseAbnormalClosure, rec.code)
	assert.False(t, rec.reached)
}

func TestTransportAbnormalDropAfterOpen(t *testing.T) {
	srv := wsTestServer(t, []string{"mission-deck"}, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte("hi"))
		// Kill the socket without a close frame.
		conn.UnderlyingConn().Close()
	})

	rec := newEventRecorder()
	tr := NewTransport(wsURL(srv), []string{"mission-deck"}, rec.callbacks())
	tr.Dial()

	rec.waitOpen(t)
	rec.waitClose(t)
	assert.Equal(t, websocket.CloseAbnormalClosure, rec.code)
	assert.True(t, rec.reached)
}

func TestTransportDetachSilencesCallbacks(t *testing.T) {
	release := make(chan struct{})
	srv := wsTestServer(t, []string{"mission-deck"}, func(conn *websocket.Conn) {
		defer conn.Close()
		<-release
		_ = conn.WriteMessage(websocket.TextMessage, []byte("late output"))
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
	})

	rec := newEventRecorder()
	tr := NewTransport(wsURL(srv), []string{"mission-deck"}, rec.callbacks())
	tr.Dial()
	rec.waitOpen(t)

	tr.Detach()
	close(release)

	// Give the late traffic time to arrive. Nothing may reach the
	// recorder after detach.
	time.Sleep(100 * time.Millisecond)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Empty(t, rec.output, "output after detach must be dropped")
	assert.False(t, rec.closed, "close after detach must be silent")
}

func TestTransportCloseSendsNormalClosure(t *testing.T) {
	codeCh := make(chan int, 1)
	srv := wsTestServer(t, []string{"mission-deck"}, func(conn *websocket.Conn) {
		defer conn.Close()
		_, _, err := conn.ReadMessage()
		if ce, ok := err.(*websocket.CloseError); ok {
			codeCh <- ce.Code
		}
	})

	rec := newEventRecorder()
	tr := NewTransport(wsURL(srv), []string{"mission-deck"}, rec.callbacks())
	tr.Dial()
	rec.waitOpen(t)

	tr.Close()
	select {
	case code := <-codeCh:
		assert.Equal(t, websocket.CloseNormalClosure, code)
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw the close frame")
	}
}

func TestTransportSendBeforeOpenIsNoop(t *testing.T) {
	tr := NewTransport("ws://test.invalid/ws/console", []string{"mission-deck"}, Callbacks{})
	// Must not panic or block.
	tr.Send(InputFrame("ls\r"))
	require.Equal(t, StateIdle, tr.State())
}
