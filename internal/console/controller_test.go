package console

import (
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeLink stands in for a Transport so tests can drive lifecycle events
// deterministically.
type fakeLink struct {
	mu       sync.Mutex
	cb       Callbacks
	dialed   bool
	detached bool
	closed   bool
	sent     []Frame
}

func (f *fakeLink) Dial() {
	f.mu.Lock()
	f.dialed = true
	f.mu.Unlock()
}

func (f *fakeLink) Send(frame Frame) {
	f.mu.Lock()
	f.sent = append(f.sent, frame)
	f.mu.Unlock()
}

func (f *fakeLink) Detach() {
	f.mu.Lock()
	f.detached = true
	f.mu.Unlock()
}

func (f *fakeLink) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeLink) sentFrames() []Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Frame, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeLink) open()              { f.cb.OnOpen() }
func (f *fakeLink) output(data string) { f.cb.OnOutput([]byte(data)) }
func (f *fakeLink) closeWith(code int, reachedOpen bool) {
	f.cb.OnClose(code, reachedOpen)
}

// linkRecorder collects every link a controller dials.
type linkRecorder struct {
	mu    sync.Mutex
	links []*fakeLink
}

func (r *linkRecorder) dialer(endpoint string, protocols []string, cb Callbacks) link {
	l := &fakeLink{cb: cb}
	r.mu.Lock()
	r.links = append(r.links, l)
	r.mu.Unlock()
	return l
}

func (r *linkRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.links)
}

func (r *linkRecorder) link(i int) *fakeLink {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.links[i]
}

func fastTuning() Tuning {
	return Tuning{
		SettleDelay: 5 * time.Millisecond,
		NudgeDelay:  20 * time.Millisecond,
		RetryDelay:  10 * time.Millisecond,
		ResetPacing: 5 * time.Millisecond,
	}
}

func newTestController(t *testing.T, rec *linkRecorder) *Controller {
	t.Helper()
	c := NewController(ControllerConfig{
		Endpoint:  "ws://test.invalid/ws/console",
		Protocols: func() ([]string, error) { return []string{"mission-deck"}, nil },
		Tuning:    fastTuning(),
		Dialer:    rec.dialer,
	})
	t.Cleanup(c.Teardown)
	return c
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func hasFrame(frames []Frame, match func(Frame) bool) bool {
	for _, f := range frames {
		if match(f) {
			return true
		}
	}
	return false
}

func countFrames(frames []Frame, match func(Frame) bool) int {
	n := 0
	for _, f := range frames {
		if match(f) {
			n++
		}
	}
	return n
}

func TestControllerConnectFlow(t *testing.T) {
	rec := &linkRecorder{}
	c := newTestController(t, rec)

	c.Activate(120, 40)
	if rec.count() != 1 {
		t.Fatalf("expected 1 dial, got %d", rec.count())
	}
	if got := c.Status(); got != StateConnecting {
		t.Errorf("state = %v, want connecting", got)
	}

	rec.link(0).open()
	if got := c.Status(); got != StateConnected {
		t.Errorf("state = %v, want connected", got)
	}

	// After the settle delay the controller announces its dimensions.
	waitFor(t, "settle resize frame", func() bool {
		return hasFrame(rec.link(0).sentFrames(), func(f Frame) bool {
			return f.IsResize() && f.C == 120 && f.R == 40
		})
	})
}

func TestPromptNudgeOnSilentShell(t *testing.T) {
	rec := &linkRecorder{}
	c := newTestController(t, rec)

	c.Activate(80, 24)
	rec.link(0).open()

	// No output arrives: exactly one bare carriage return goes out.
	waitFor(t, "nudge frame", func() bool {
		return hasFrame(rec.link(0).sentFrames(), func(f Frame) bool {
			return f.IsInput() && f.D == "\r"
		})
	})

	time.Sleep(40 * time.Millisecond)
	n := countFrames(rec.link(0).sentFrames(), func(f Frame) bool {
		return f.IsInput() && f.D == "\r"
	})
	if n != 1 {
		t.Errorf("expected exactly 1 nudge, got %d", n)
	}
}

func TestPromptNudgeSuppressedByOutput(t *testing.T) {
	rec := &linkRecorder{}
	c := newTestController(t, rec)

	c.Activate(80, 24)
	rec.link(0).open()
	rec.link(0).output("user@host:~$ ")

	// Give the nudge window plenty of time to expire.
	time.Sleep(60 * time.Millisecond)
	if hasFrame(rec.link(0).sentFrames(), func(f Frame) bool {
		return f.IsInput() && f.D == "\r"
	}) {
		t.Error("nudge must not fire once output has been observed")
	}
}

func TestStaleCallbacksAreSuppressed(t *testing.T) {
	rec := &linkRecorder{}
	c := newTestController(t, rec)

	c.Activate(80, 24)
	first := rec.link(0)
	first.open()
	gen := c.Generation()

	c.Reconnect()
	if c.Generation() == gen {
		t.Fatal("reconnect must advance the generation")
	}
	if rec.count() != 2 {
		t.Fatalf("expected 2 dials, got %d", rec.count())
	}

	// The superseded link's events must not move state or reach the
	// surface.
	second := rec.link(1)
	second.open()
	first.output("stale bytes from generation one")
	first.closeWith(1006, true)

	if got := c.Status(); got != StateConnected {
		t.Errorf("stale close flipped state to %v", got)
	}
	for _, line := range c.Surface().Lines() {
		if strings.Contains(line, "stale bytes") {
			t.Error("stale output reached the surface")
		}
	}
}

func TestAtMostOneLiveTransport(t *testing.T) {
	rec := &linkRecorder{}
	c := newTestController(t, rec)

	c.Activate(80, 24)
	for i := 0; i < 5; i++ {
		c.Reconnect()
	}

	// Every link but the newest must be detached and closed.
	live := 0
	for i := 0; i < rec.count(); i++ {
		l := rec.link(i)
		l.mu.Lock()
		if !l.detached {
			live++
		}
		l.mu.Unlock()
	}
	if live != 1 {
		t.Errorf("expected exactly 1 live transport, got %d", live)
	}
}

func TestAutoRetryExactlyOnce(t *testing.T) {
	rec := &linkRecorder{}
	c := newTestController(t, rec)

	c.Activate(80, 24)
	rec.link(0).closeWith(1006, false)

	// One automatic reconnect fires after the retry delay.
	waitFor(t, "automatic retry dial", func() bool { return rec.count() == 2 })

	// The retry also fails: no third attempt.
	rec.link(1).closeWith(1006, false)
	time.Sleep(50 * time.Millisecond)
	if rec.count() != 2 {
		t.Fatalf("expected retry budget of 1, saw %d dials", rec.count())
	}
	if got := c.Status(); got != StateError {
		t.Errorf("state after exhausted budget = %v, want error", got)
	}

	// A user reconnect resets the budget and the cycle starts over.
	c.Reconnect()
	if rec.count() != 3 {
		t.Fatalf("expected user reconnect to dial, got %d", rec.count())
	}
	rec.link(2).closeWith(1006, false)
	waitFor(t, "retry after user reconnect", func() bool { return rec.count() == 4 })
}

func TestHandshakeFailureDiagnostic(t *testing.T) {
	rec := &linkRecorder{}
	c := newTestController(t, rec)

	c.Activate(80, 24)
	rec.link(0).closeWith(1006, false)

	found := false
	for _, line := range c.Surface().Lines() {
		if strings.Contains(line, "connection failed") {
			found = true
		}
	}
	if !found {
		t.Error("expected a connection-failed diagnostic in the output stream")
	}
}

func TestMidSessionDropNoRetry(t *testing.T) {
	rec := &linkRecorder{}
	c := newTestController(t, rec)

	c.Activate(80, 24)
	rec.link(0).open()
	rec.link(0).closeWith(1006, true)

	if got := c.Status(); got != StateDisconnected {
		t.Errorf("state = %v, want disconnected", got)
	}

	found := false
	for _, line := range c.Surface().Lines() {
		if strings.Contains(line, "Disconnected.") {
			found = true
		}
	}
	if !found {
		t.Error("expected Disconnected. diagnostic")
	}

	time.Sleep(50 * time.Millisecond)
	if rec.count() != 1 {
		t.Errorf("mid-session drop must not auto-retry, saw %d dials", rec.count())
	}
}

func TestNormalCloseIsSilent(t *testing.T) {
	rec := &linkRecorder{}
	c := newTestController(t, rec)

	c.Activate(80, 24)
	rec.link(0).open()
	rec.link(0).closeWith(1000, true)

	if got := c.Status(); got != StateDisconnected {
		t.Errorf("state = %v, want disconnected", got)
	}
	for _, line := range c.Surface().Lines() {
		if strings.Contains(line, "Disconnected") || strings.Contains(line, "failed") {
			t.Error("normal closure must not emit a diagnostic")
		}
	}
	time.Sleep(30 * time.Millisecond)
	if rec.count() != 1 {
		t.Errorf("normal closure must not auto-retry, saw %d dials", rec.count())
	}
}

func TestResetWhenConnected(t *testing.T) {
	rec := &linkRecorder{}
	c := newTestController(t, rec)

	c.Activate(80, 24)
	rec.link(0).open()
	rec.link(0).output("$ ")

	c.Reset()
	frames := rec.link(0).sentFrames()
	if !hasFrame(frames, func(f Frame) bool { return f.IsInput() && f.D == "reset\r" }) {
		t.Error("expected reset command")
	}

	waitFor(t, "stty sane", func() bool {
		return hasFrame(rec.link(0).sentFrames(), func(f Frame) bool {
			return f.IsInput() && f.D == "stty sane\r"
		})
	})

	// Reset never spawns a new connection while the current one is live.
	if rec.count() != 1 {
		t.Errorf("reset dialed a new transport: %d", rec.count())
	}
}

func TestResetWhenDisconnectedReconnects(t *testing.T) {
	rec := &linkRecorder{}
	c := newTestController(t, rec)

	c.Activate(80, 24)
	rec.link(0).open()
	rec.link(0).closeWith(1000, true)

	c.Reset()
	if rec.count() != 2 {
		t.Errorf("reset while disconnected should reconnect, dials = %d", rec.count())
	}
}

func TestSendInputDroppedWhileDisconnected(t *testing.T) {
	rec := &linkRecorder{}
	c := newTestController(t, rec)

	c.Activate(80, 24)
	c.SendInput("ls\r") // still connecting: dropped

	rec.link(0).open()
	c.SendInput("pwd\r")

	frames := rec.link(0).sentFrames()
	if hasFrame(frames, func(f Frame) bool { return f.IsInput() && f.D == "ls\r" }) {
		t.Error("input sent while connecting should be dropped")
	}
	if !hasFrame(frames, func(f Frame) bool { return f.IsInput() && f.D == "pwd\r" }) {
		t.Error("input sent while connected should go through")
	}
}

func TestResizeSendsFrameWhenConnected(t *testing.T) {
	rec := &linkRecorder{}
	c := newTestController(t, rec)

	c.Activate(80, 24)
	rec.link(0).open()

	// Let the post-open settle resize fire before counting.
	time.Sleep(30 * time.Millisecond)

	c.Resize(100, 30)
	if !hasFrame(rec.link(0).sentFrames(), func(f Frame) bool {
		return f.IsResize() && f.C == 100 && f.R == 30
	}) {
		t.Error("expected resize frame after Resize")
	}

	// Same dimensions again: no duplicate frame.
	before := countFrames(rec.link(0).sentFrames(), func(f Frame) bool { return f.IsResize() })
	c.Resize(100, 30)
	after := countFrames(rec.link(0).sentFrames(), func(f Frame) bool { return f.IsResize() })
	if after != before {
		t.Error("unchanged dimensions must not send a resize frame")
	}
}

func TestTeardownStopsEverything(t *testing.T) {
	rec := &linkRecorder{}
	c := NewController(ControllerConfig{
		Endpoint:  "ws://test.invalid/ws/console",
		Protocols: func() ([]string, error) { return []string{"mission-deck"}, nil },
		Tuning:    fastTuning(),
		Dialer:    rec.dialer,
	})

	c.Activate(80, 24)
	first := rec.link(0)
	first.open()

	c.Teardown()

	first.mu.Lock()
	closed := first.closed
	first.mu.Unlock()
	if !closed {
		t.Error("teardown must close the transport")
	}

	// The pending nudge timer must not fire after teardown.
	framesBefore := len(first.sentFrames())
	time.Sleep(50 * time.Millisecond)
	if got := len(first.sentFrames()); got != framesBefore {
		t.Errorf("timers fired after teardown: %d -> %d frames", framesBefore, got)
	}

	// Events from the dead transport are ignored.
	first.closeWith(1006, true)
	if got := c.Status(); got != StateDisconnected {
		t.Errorf("state after teardown = %v, want disconnected", got)
	}
}

func TestStatusReportedOnlyWhileActive(t *testing.T) {
	rec := &linkRecorder{}
	var mu sync.Mutex
	var reported []State

	c := NewController(ControllerConfig{
		Endpoint:  "ws://test.invalid/ws/console",
		Protocols: func() ([]string, error) { return []string{"mission-deck"}, nil },
		Tuning:    fastTuning(),
		Dialer:    rec.dialer,
		OnStatus: func(s State) {
			mu.Lock()
			reported = append(reported, s)
			mu.Unlock()
		},
	})
	t.Cleanup(c.Teardown)

	// Background tab: no reports.
	c.Activate(80, 24)
	rec.link(0).open()
	mu.Lock()
	if len(reported) != 0 {
		t.Errorf("inactive controller reported status: %v", reported)
	}
	mu.Unlock()

	// Foregrounding reports the current state immediately.
	c.SetActive(true)
	mu.Lock()
	if len(reported) == 0 || reported[len(reported)-1] != StateConnected {
		t.Errorf("expected connected report on activation, got %v", reported)
	}
	mu.Unlock()

	rec.link(0).closeWith(1000, true)
	mu.Lock()
	if reported[len(reported)-1] != StateDisconnected {
		t.Errorf("expected disconnected report, got %v", reported)
	}
	mu.Unlock()
}
