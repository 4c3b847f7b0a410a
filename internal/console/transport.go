package console

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/asheshgoplani/mission-deck/internal/logging"
)

var transportLog = logging.ForComponent(logging.CompConsole)

const (
	// writeTimeout bounds a single frame write so a wedged peer cannot
	// block the sender forever.
	writeTimeout = 5 * time.Second

	// maxServerFrame bounds a single output frame from the server.
	maxServerFrame = 1 << 20
)

// Callbacks receives transport lifecycle events. The controller wraps each
// callback with a generation check, so a transport never needs to know
// whether it has been superseded.
type Callbacks struct {
	// OnOpen fires once when the handshake completes.
	OnOpen func()

	// OnOutput fires for every server output frame, in delivery order.
	OnOutput func(data []byte)

	// OnClose fires exactly once when the socket is done, with the close
	// code and whether the connection ever reached open. Handshake
	// failures report close code 1006 with reachedOpen false.
	OnClose func(code int, reachedOpen bool)
}

// Transport owns exactly one WebSocket connection to a resolved endpoint.
// It is one-shot: dial once, read until the socket dies, never reconnect.
// Reconnection policy lives in the Controller, which builds a fresh
// Transport per attempt.
type Transport struct {
	endpoint  string
	protocols []string

	mu       sync.Mutex
	conn     *websocket.Conn
	state    State
	opened   bool
	detached bool
	cb       Callbacks
}

// NewTransport creates a transport for the given endpoint carrying the
// given subprotocol list. Dial must be called to start it.
func NewTransport(endpoint string, protocols []string, cb Callbacks) *Transport {
	return &Transport{
		endpoint:  endpoint,
		protocols: protocols,
		state:     StateIdle,
		cb:        cb,
	}
}

// State returns the transport's connection state.
func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Dial starts the connection attempt in the background. Lifecycle events
// arrive on the Callbacks. There is no handshake timeout: a stalled
// handshake leaves the transport connecting until the dial errors out.
func (t *Transport) Dial() {
	t.mu.Lock()
	t.state = StateConnecting
	t.mu.Unlock()
	go t.run()
}

func (t *Transport) run() {
	dialer := websocket.Dialer{
		Proxy:        http.ProxyFromEnvironment,
		Subprotocols: t.protocols,
	}

	conn, resp, err := dialer.Dial(t.endpoint, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		transportLog.Debug("dial_failed",
			slog.String("endpoint", t.endpoint),
			slog.String("error", err.Error()))
		t.mu.Lock()
		t.state = StateDisconnected
		cb := t.cb
		t.mu.Unlock()
		// A failed handshake never reached open; surface it as an
		// abnormal closure.
		if cb.OnClose != nil {
			cb.OnClose(websocket.CloseAbnormalClosure, false)
		}
		return
	}

	conn.SetReadLimit(maxServerFrame)

	t.mu.Lock()
	if t.detached {
		// Superseded while the handshake was in flight: close quietly,
		// emit nothing.
		t.mu.Unlock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeTimeout))
		conn.Close()
		return
	}
	t.conn = conn
	t.opened = true
	t.state = StateConnected
	cb := t.cb
	t.mu.Unlock()

	if cb.OnOpen != nil {
		cb.OnOpen()
	}

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			t.finish(closeCodeFromError(err))
			return
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		t.mu.Lock()
		cb := t.cb
		t.mu.Unlock()
		if cb.OnOutput != nil {
			cb.OnOutput(data)
		}
	}
}

// finish marks the transport dead and emits OnClose unless detached.
func (t *Transport) finish(code int) {
	t.mu.Lock()
	if t.state == StateDisconnected {
		t.mu.Unlock()
		return
	}
	t.state = StateDisconnected
	opened := t.opened
	cb := t.cb
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if cb.OnClose != nil {
		cb.OnClose(code, opened)
	}
}

// Send writes a frame to the server. No-op unless connected; write errors
// are swallowed because connection state is surfaced separately, not
// per-send.
func (t *Transport) Send(frame Frame) {
	t.mu.Lock()
	conn := t.conn
	connected := t.state == StateConnected
	t.mu.Unlock()

	if !connected || conn == nil {
		return
	}

	data, err := frame.Encode()
	if err != nil {
		transportLog.Warn("frame_encode_failed", slog.String("error", err.Error()))
		return
	}

	// Serialize writes; gorilla connections allow one concurrent writer.
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return
	}
	_ = t.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		logging.Aggregate(logging.CompConsole, "send_failed",
			slog.String("error", err.Error()))
	}
}

// Detach nulls the callbacks so this transport can no longer mutate shared
// state. The read loop keeps draining until the socket closes, but every
// event lands in a zero callback set.
func (t *Transport) Detach() {
	t.mu.Lock()
	t.detached = true
	t.cb = Callbacks{}
	t.mu.Unlock()
}

// Close detaches the callbacks, closes the socket with a normal-closure
// code, and marks the transport disconnected.
func (t *Transport) Close() {
	t.mu.Lock()
	t.detached = true
	t.cb = Callbacks{}
	conn := t.conn
	t.conn = nil
	t.state = StateDisconnected
	t.mu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeTimeout))
		conn.Close()
	}
}

// closeCodeFromError extracts the close code from a read error. Anything
// that is not an explicit close frame counts as abnormal (1006).
func closeCodeFromError(err error) int {
	if ce, ok := err.(*websocket.CloseError); ok {
		return ce.Code
	}
	return websocket.CloseAbnormalClosure
}
