package tabs

import (
	"sync"

	"github.com/asheshgoplani/mission-deck/internal/console"
)

// SessionFactory builds a controller for a terminal-hosting tab. The
// factory decides the endpoint: generic console for plain terminals,
// workspace-scoped shell for workspace tabs.
type SessionFactory func(tab *Tab) (*console.Controller, error)

// Arena owns the live sessions keyed by tab id. Hidden tabs stay mounted:
// switching tabs flips active flags instead of tearing sessions down, so
// scrollback and connections survive the switch. Sessions are constructed
// lazily on first activation and torn down only when their tab closes.
type Arena struct {
	factory SessionFactory

	mu       sync.Mutex
	sessions map[string]*console.Controller
	activeID string
}

// NewArena creates an empty arena.
func NewArena(factory SessionFactory) *Arena {
	return &Arena{
		factory:  factory,
		sessions: make(map[string]*console.Controller),
	}
}

// Session returns the controller for tab, constructing it on first use.
// File-browser tabs host no session and return nil.
func (a *Arena) Session(tab *Tab) (*console.Controller, error) {
	if tab == nil || tab.Kind == KindFileBrowser {
		return nil, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if ctrl, ok := a.sessions[tab.ID]; ok {
		return ctrl, nil
	}
	ctrl, err := a.factory(tab)
	if err != nil {
		return nil, err
	}
	a.sessions[tab.ID] = ctrl
	return ctrl, nil
}

// Get returns the already-constructed controller for a tab id.
func (a *Arena) Get(id string) (*console.Controller, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	ctrl, ok := a.sessions[id]
	return ctrl, ok
}

// SetActive marks the session for id as the foreground one. The previous
// foreground session stops reporting status upward; the new one starts.
func (a *Arena) SetActive(id string) {
	a.mu.Lock()
	prev := a.activeID
	a.activeID = id
	prevCtrl := a.sessions[prev]
	ctrl := a.sessions[id]
	a.mu.Unlock()

	if prevCtrl != nil && prev != id {
		prevCtrl.SetActive(false)
	}
	if ctrl != nil {
		ctrl.SetActive(true)
	}
}

// ActiveID returns the id of the foreground session.
func (a *Arena) ActiveID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.activeID
}

// Drop tears down and removes the session for a closed tab.
func (a *Arena) Drop(id string) {
	a.mu.Lock()
	ctrl, ok := a.sessions[id]
	delete(a.sessions, id)
	if a.activeID == id {
		a.activeID = ""
	}
	a.mu.Unlock()

	if ok && ctrl != nil {
		ctrl.Teardown()
	}
}

// DropMissing tears down every session whose tab id is not in alive. Used
// after an external reload replaces the tab set.
func (a *Arena) DropMissing(alive map[string]bool) {
	a.mu.Lock()
	var doomed []*console.Controller
	for id, ctrl := range a.sessions {
		if alive[id] {
			continue
		}
		delete(a.sessions, id)
		if a.activeID == id {
			a.activeID = ""
		}
		if ctrl != nil {
			doomed = append(doomed, ctrl)
		}
	}
	a.mu.Unlock()

	for _, ctrl := range doomed {
		ctrl.Teardown()
	}
}

// Len returns the number of live sessions.
func (a *Arena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sessions)
}

// Teardown disposes every session. Called on application shutdown.
func (a *Arena) Teardown() {
	a.mu.Lock()
	sessions := a.sessions
	a.sessions = make(map[string]*console.Controller)
	a.activeID = ""
	a.mu.Unlock()

	for _, ctrl := range sessions {
		if ctrl != nil {
			ctrl.Teardown()
		}
	}
}
