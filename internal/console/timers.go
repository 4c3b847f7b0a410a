package console

import (
	"sync"
	"time"
)

// timerGroup owns the delayed tasks of one controller (connection settle,
// prompt nudge, retry, reset pacing) so teardown can cancel them en masse.
// An orphaned timer firing into disposed state was the original sin this
// replaces.
type timerGroup struct {
	mu     sync.Mutex
	next   int
	timers map[int]*time.Timer
	closed bool
}

func newTimerGroup() *timerGroup {
	return &timerGroup{timers: make(map[int]*time.Timer)}
}

// After schedules fn after d. The task unregisters itself when it fires.
func (g *timerGroup) After(d time.Duration, fn func()) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	id := g.next
	g.next++
	t := time.AfterFunc(d, func() {
		g.mu.Lock()
		_, live := g.timers[id]
		delete(g.timers, id)
		g.mu.Unlock()
		if live {
			fn()
		}
	})
	g.timers[id] = t
	g.mu.Unlock()
}

// CancelAll stops every pending task. Tasks already past the registry
// check may still run; callers guard with generation checks.
func (g *timerGroup) CancelAll() {
	g.mu.Lock()
	for id, t := range g.timers {
		t.Stop()
		delete(g.timers, id)
	}
	g.mu.Unlock()
}

// Close cancels everything and refuses new tasks.
func (g *timerGroup) Close() {
	g.mu.Lock()
	g.closed = true
	for id, t := range g.timers {
		t.Stop()
		delete(g.timers, id)
	}
	g.mu.Unlock()
}
