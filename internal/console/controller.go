package console

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/asheshgoplani/mission-deck/internal/logging"
)

var controllerLog = logging.ForComponent(logging.CompConsole)

// refitDelay is the pause before re-fitting a surface after its tab comes
// back to the foreground, giving the layout a beat to settle.
const refitDelay = 50 * time.Millisecond

// Tuning holds the timing heuristics of the connect cycle. The defaults
// were tuned empirically; treat them as knobs, not constants of nature.
type Tuning struct {
	// SettleDelay is the pause after open before the first resize frame.
	SettleDelay time.Duration

	// NudgeDelay is how long to wait for first output before sending a
	// bare carriage return. Some remote shells never emit a prompt on a
	// silent connection.
	NudgeDelay time.Duration

	// RetryDelay is the pause before the single automatic reconnect
	// after a handshake failure.
	RetryDelay time.Duration

	// ResetPacing is the gap between "reset" and "stty sane".
	ResetPacing time.Duration
}

// DefaultTuning returns the stock timing values.
func DefaultTuning() Tuning {
	return Tuning{
		SettleDelay: 150 * time.Millisecond,
		NudgeDelay:  300 * time.Millisecond,
		RetryDelay:  time.Second,
		ResetPacing: 250 * time.Millisecond,
	}
}

// link is the transport seam. Production uses *Transport; controller tests
// substitute a fake to drive lifecycle events deterministically.
type link interface {
	Dial()
	Send(Frame)
	Detach()
	Close()
}

// Dialer constructs a transport for one connection attempt.
type Dialer func(endpoint string, protocols []string, cb Callbacks) link

func defaultDialer(endpoint string, protocols []string, cb Callbacks) link {
	return NewTransport(endpoint, protocols, cb)
}

// ControllerConfig wires a controller to its endpoint and host UI.
type ControllerConfig struct {
	// Endpoint is the resolved WebSocket URL.
	Endpoint string

	// Protocols supplies the subprotocol list per attempt, so a rotated
	// credential is picked up on reconnect.
	Protocols func() ([]string, error)

	// Tuning holds the timing heuristics; zero fields get defaults.
	Tuning Tuning

	// OnStatus is invoked on connection-state changes, only while the
	// owning tab is active.
	OnStatus func(State)

	// OnOutput is invoked after output lands in the surface, so the UI
	// can repaint. Called from the transport goroutine.
	OnOutput func()

	// Dialer overrides transport construction. Nil means real sockets.
	Dialer Dialer
}

// Controller binds exactly one transport to exactly one surface for the
// lifetime of a tab. It owns the connect/reconnect/retry policy, the
// prompt-nudge heuristic, and the generation counter that suppresses
// callbacks from superseded connection attempts.
type Controller struct {
	cfg     ControllerConfig
	surface *Surface
	timers  *timerGroup

	mu         sync.Mutex
	gen        uint64
	state      State
	transport  link
	retryUsed  bool
	outputSeen int
	started    bool
	active     bool
	closed     bool
}

// NewController creates an idle controller with an unsized surface.
// Nothing connects until Activate.
func NewController(cfg ControllerConfig) *Controller {
	if cfg.Dialer == nil {
		cfg.Dialer = defaultDialer
	}
	def := DefaultTuning()
	if cfg.Tuning.SettleDelay <= 0 {
		cfg.Tuning.SettleDelay = def.SettleDelay
	}
	if cfg.Tuning.NudgeDelay <= 0 {
		cfg.Tuning.NudgeDelay = def.NudgeDelay
	}
	if cfg.Tuning.RetryDelay <= 0 {
		cfg.Tuning.RetryDelay = def.RetryDelay
	}
	if cfg.Tuning.ResetPacing <= 0 {
		cfg.Tuning.ResetPacing = def.ResetPacing
	}
	return &Controller{
		cfg:     cfg,
		surface: NewSurface(),
		timers:  newTimerGroup(),
		state:   StateIdle,
	}
}

// Surface returns the terminal surface bound to this controller.
func (c *Controller) Surface() *Surface {
	return c.surface
}

// Status returns the current connection state.
func (c *Controller) Status() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Generation returns the current generation counter. Exposed for tests.
func (c *Controller) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// SetActive marks whether the owning tab is in the foreground. Status is
// reported upward only while active, so the registry always reflects the
// foreground session.
func (c *Controller) SetActive(active bool) {
	c.mu.Lock()
	c.active = active
	state := c.state
	notify := c.statusNotifierLocked()
	c.mu.Unlock()
	if active {
		notify(state)
	}
}

// Activate brings the tab to the foreground. The first call sizes the
// surface and starts the initial connect; later calls merely re-fit after
// a short delay to correct for layout drift while the tab was hidden.
// Hidden tabs stay mounted, so scrollback and the connection survive
// switches.
func (c *Controller) Activate(cols, rows int) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if !c.started {
		c.started = true
		c.mu.Unlock()
		c.surface.Fit(cols, rows)
		c.mu.Lock()
		notify := c.connectLocked()
		c.mu.Unlock()
		notify()
		return
	}
	c.mu.Unlock()

	c.timers.After(refitDelay, func() {
		if c.surface.Fit(cols, rows) {
			c.sendIfConnected(ResizeFrame(cols, rows))
		}
	})
}

// Reconnect tears down the current transport and dials again. User
// initiated, so the automatic retry budget resets.
func (c *Controller) Reconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.retryUsed = false
	c.started = true
	notify := c.connectLocked()
	c.mu.Unlock()
	notify()
}

// Reset restores a wedged shell: when connected it sends "reset" followed,
// after a pacing delay, by "stty sane"; otherwise it falls back to a full
// reconnect.
func (c *Controller) Reset() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.state != StateConnected {
		c.mu.Unlock()
		c.Reconnect()
		return
	}
	g := c.gen
	tr := c.transport
	pacing := c.cfg.Tuning.ResetPacing
	c.mu.Unlock()

	tr.Send(InputFrame("reset\r"))
	c.timers.After(pacing, func() {
		c.mu.Lock()
		stale := g != c.gen || c.state != StateConnected
		tr := c.transport
		c.mu.Unlock()
		if stale || tr == nil {
			return
		}
		tr.Send(InputFrame("stty sane\r"))
	})
}

// SendInput forwards raw keystroke bytes to the remote shell. Best-effort;
// silently dropped while not connected.
func (c *Controller) SendInput(data string) {
	c.sendIfConnected(InputFrame(data))
}

// Resize re-fits the surface and, when connected, tells the remote PTY.
func (c *Controller) Resize(cols, rows int) {
	if !c.surface.Fit(cols, rows) {
		return
	}
	c.sendIfConnected(ResizeFrame(cols, rows))
}

// Teardown invalidates every pending callback and timer, closes the
// transport, and disposes the surface. Sequenced so no callback can
// observe post-teardown state: generation first, timers second, transport
// last.
func (c *Controller) Teardown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.gen++
	tr := c.transport
	c.transport = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	c.timers.Close()
	if tr != nil {
		tr.Detach()
		tr.Close()
	}
	c.surface.Dispose()
}

// connectLocked starts a new connection attempt under c.mu and returns
// the status notification to run once the lock is released. Any prior
// transport is detached first so it can no longer mutate shared state,
// then closed with a normal code.
func (c *Controller) connectLocked() func() {
	if old := c.transport; old != nil {
		old.Detach()
		// Close on a detached transport emits nothing, so holding c.mu
		// here is safe.
		old.Close()
		c.transport = nil
	}

	c.gen++
	g := c.gen
	c.outputSeen = 0
	notify := c.setStateLocked(StateConnecting)

	protocols, err := c.cfg.Protocols()
	if err != nil {
		controllerLog.Warn("credential_load_failed", slog.String("error", err.Error()))
		c.surface.WriteDiagnostic("[credential error: " + err.Error() + "]")
		notifyErr := c.setStateLocked(StateError)
		return func() { notify(); notifyErr() }
	}

	cb := Callbacks{
		OnOpen:   func() { c.handleOpen(g) },
		OnOutput: func(data []byte) { c.handleOutput(g, data) },
		OnClose:  func(code int, reachedOpen bool) { c.handleClose(g, code, reachedOpen) },
	}
	c.transport = c.cfg.Dialer(c.cfg.Endpoint, protocols, cb)
	c.transport.Dial()
	return notify
}

// handleOpen runs when generation g's handshake completes. Stale
// generations are ignored outright.
func (c *Controller) handleOpen(g uint64) {
	c.mu.Lock()
	if g != c.gen || c.closed {
		c.mu.Unlock()
		return
	}
	notify := c.setStateLocked(StateConnected)
	settle := c.cfg.Tuning.SettleDelay
	nudge := c.cfg.Tuning.NudgeDelay
	c.mu.Unlock()
	notify()

	// After a short settle, tell the remote PTY our real dimensions.
	c.timers.After(settle, func() {
		c.mu.Lock()
		stale := g != c.gen || c.state != StateConnected
		tr := c.transport
		c.mu.Unlock()
		if stale || tr == nil {
			return
		}
		cols, rows := c.surface.Size()
		tr.Send(ResizeFrame(cols, rows))
	})

	// If the shell stays silent past the nudge window, send one bare
	// carriage return to coax the prompt out.
	c.timers.After(nudge, func() {
		c.mu.Lock()
		stale := g != c.gen || c.state != StateConnected || c.outputSeen > 0
		tr := c.transport
		c.mu.Unlock()
		if stale || tr == nil {
			return
		}
		controllerLog.Debug("prompt_nudge", slog.String("endpoint", c.cfg.Endpoint))
		tr.Send(InputFrame("\r"))
	})
}

// handleOutput forwards one server frame to the surface.
func (c *Controller) handleOutput(g uint64, data []byte) {
	c.mu.Lock()
	if g != c.gen || c.closed {
		c.mu.Unlock()
		return
	}
	c.outputSeen++
	c.mu.Unlock()

	_, _ = c.surface.Write(data)
	logging.Aggregate(logging.CompConsole, "output_frame",
		slog.Int("bytes", len(data)))
	if c.cfg.OnOutput != nil {
		c.cfg.OnOutput()
	}
}

// handleClose applies the close-code policy for generation g:
// normal/going-away closes are silent; an abnormal close before open gets
// a diagnostic and at most one automatic retry; an abnormal close after
// open gets a diagnostic and waits for the user.
func (c *Controller) handleClose(g uint64, code int, reachedOpen bool) {
	c.mu.Lock()
	if g != c.gen || c.closed {
		c.mu.Unlock()
		return
	}

	switch {
	case code == websocket.CloseNormalClosure || code == websocket.CloseGoingAway:
		notify := c.setStateLocked(StateDisconnected)
		c.mu.Unlock()
		notify()

	case !reachedOpen:
		retry := !c.retryUsed
		if retry {
			c.retryUsed = true
		}
		var notify func()
		if retry {
			notify = c.setStateLocked(StateDisconnected)
		} else {
			notify = c.setStateLocked(StateError)
		}
		delay := c.cfg.Tuning.RetryDelay
		c.mu.Unlock()

		if retry {
			c.surface.WriteDiagnostic("[connection failed, retrying...]")
			c.timers.After(delay, func() {
				c.mu.Lock()
				if g != c.gen || c.closed {
					c.mu.Unlock()
					return
				}
				retryNotify := c.connectLocked()
				c.mu.Unlock()
				retryNotify()
			})
		} else {
			c.surface.WriteDiagnostic("[connection failed, press r to reconnect]")
		}
		notify()

	default:
		// Reached open, then dropped abnormally. The user decides
		// whether to reconnect.
		notify := c.setStateLocked(StateDisconnected)
		c.mu.Unlock()
		c.surface.WriteDiagnostic("Disconnected.")
		notify()
	}
}

// sendIfConnected sends a frame on the current transport when connected.
func (c *Controller) sendIfConnected(f Frame) {
	c.mu.Lock()
	tr := c.transport
	connected := c.state == StateConnected
	c.mu.Unlock()
	if !connected || tr == nil {
		return
	}
	tr.Send(f)
}

// setStateLocked updates the state and returns the notification to run
// after c.mu is released. Deferred invocation keeps OnStatus callbacks
// from re-entering the lock.
func (c *Controller) setStateLocked(s State) func() {
	c.state = s
	notify := c.statusNotifierLocked()
	return func() { notify(s) }
}

func (c *Controller) statusNotifierLocked() func(State) {
	if !c.active || c.cfg.OnStatus == nil {
		return func(State) {}
	}
	fn := c.cfg.OnStatus
	return func(s State) { fn(s) }
}
