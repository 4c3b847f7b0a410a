package tabs

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/asheshgoplani/mission-deck/internal/logging"
	"github.com/asheshgoplani/mission-deck/internal/statedb"
)

var tabLog = logging.ForComponent(logging.CompTabs)

// Kind classifies what a tab hosts.
type Kind string

const (
	KindTerminal       Kind = "terminal"
	KindWorkspaceShell Kind = "workspace_shell"
	KindFileBrowser    Kind = "file_browser"
)

// valid reports whether k is a known tab kind.
func (k Kind) valid() bool {
	switch k {
	case KindTerminal, KindWorkspaceShell, KindFileBrowser:
		return true
	}
	return false
}

// WorkspaceRef binds a workspace-shell tab to its workspace.
type WorkspaceRef struct {
	ID   string
	Name string
}

// Tab is one entry in the registry. ID and Kind are immutable after
// creation.
type Tab struct {
	ID        string
	Kind      Kind
	Title     string
	Workspace *WorkspaceRef
	CreatedAt time.Time
}

// Store is the persistence surface the registry needs. *statedb.StateDB
// satisfies it; registry tests may substitute a fake.
type Store interface {
	SaveTabs(tabs []*statedb.TabRow, activeID string) error
	LoadTabs() ([]*statedb.TabRow, string, error)
}

// Registry is the ordered tab list with a single active pointer. Every
// mutation persists {tabs, activeTabID} to the store; load failures and
// malformed stored state fall back wholesale to the default pair of tabs.
// The registry never holds zero tabs.
type Registry struct {
	mu       sync.Mutex
	store    Store // nil means in-memory only
	tabs     []*Tab
	activeID string
	writable bool
	onChange func()
}

// NewRegistry builds a registry hydrated from store. A nil store, a load
// error, an empty store, or malformed rows all yield the default tabs:
// "Terminal 1" (active) and "Files 1".
func NewRegistry(store Store) *Registry {
	r := &Registry{store: store, writable: true}

	if store != nil {
		rows, activeID, err := store.LoadTabs()
		if err != nil {
			tabLog.Warn("tab_load_failed", slog.String("error", err.Error()))
		} else if tabs, ok := tabsFromRows(rows); ok && len(tabs) > 0 {
			r.tabs = tabs
			r.activeID = activeID
			if r.findIndexLocked(activeID) < 0 {
				r.activeID = tabs[0].ID
			}
			return r
		} else if len(rows) > 0 {
			tabLog.Warn("tab_state_malformed", slog.Int("rows", len(rows)))
		}
	}

	r.seedDefaultsLocked()
	r.persistLocked()
	return r
}

// SetOnChange registers a callback fired after every mutation, with the
// registry lock released. The UI uses it to repaint the tab bar.
func (r *Registry) SetOnChange(fn func()) {
	r.mu.Lock()
	r.onChange = fn
	r.mu.Unlock()
}

// SetWritable controls whether mutations persist. Secondary instances
// follow the primary's writes instead of competing with them.
func (r *Registry) SetWritable(w bool) {
	r.mu.Lock()
	r.writable = w
	r.mu.Unlock()
}

// Tabs returns the ordered tab list.
func (r *Registry) Tabs() []*Tab {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Tab, len(r.tabs))
	copy(out, r.tabs)
	return out
}

// Len returns the number of tabs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tabs)
}

// ActiveID returns the id of the active tab.
func (r *Registry) ActiveID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeID
}

// Active returns the active tab.
func (r *Registry) Active() *Tab {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := r.findIndexLocked(r.activeID); i >= 0 {
		return r.tabs[i]
	}
	return nil
}

// Get returns the tab with the given id.
func (r *Registry) Get(id string) (*Tab, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := r.findIndexLocked(id); i >= 0 {
		return r.tabs[i], true
	}
	return nil, false
}

// Add appends a new tab of the given kind, numbered after its siblings,
// and activates it.
func (r *Registry) Add(kind Kind) *Tab {
	if !kind.valid() {
		kind = KindTerminal
	}
	r.mu.Lock()
	tab := &Tab{
		ID:        uuid.NewString(),
		Kind:      kind,
		Title:     r.nextTitleLocked(kind),
		CreatedAt: time.Now(),
	}
	r.tabs = append(r.tabs, tab)
	r.activeID = tab.ID
	notify := r.commitLocked()
	r.mu.Unlock()
	notify()
	return tab
}

// Close removes the tab with the given id. Closing the last remaining tab
// is refused. If the closed tab was active, the nearest remaining tab by
// index becomes active. Returns whether a tab was removed.
func (r *Registry) Close(id string) bool {
	r.mu.Lock()
	if len(r.tabs) <= 1 {
		r.mu.Unlock()
		return false
	}
	i := r.findIndexLocked(id)
	if i < 0 {
		r.mu.Unlock()
		return false
	}

	wasActive := r.tabs[i].ID == r.activeID
	r.tabs = append(r.tabs[:i], r.tabs[i+1:]...)
	if wasActive {
		// Prefer the tab that slid into the closed slot, else the new
		// last tab.
		j := i
		if j >= len(r.tabs) {
			j = len(r.tabs) - 1
		}
		r.activeID = r.tabs[j].ID
	}
	notify := r.commitLocked()
	r.mu.Unlock()
	notify()
	return true
}

// Activate makes the tab with the given id active. Unknown ids are
// ignored.
func (r *Registry) Activate(id string) bool {
	r.mu.Lock()
	if r.findIndexLocked(id) < 0 {
		r.mu.Unlock()
		return false
	}
	if r.activeID == id {
		r.mu.Unlock()
		return true
	}
	r.activeID = id
	notify := r.commitLocked()
	r.mu.Unlock()
	notify()
	return true
}

// LaunchWorkspace satisfies a workspace-launch request: an existing tab
// bound to the workspace is re-activated, otherwise a new workspace-shell
// tab is created and activated. The request is consumed here, never
// reprocessed.
func (r *Registry) LaunchWorkspace(workspaceID, name string) *Tab {
	r.mu.Lock()
	for _, t := range r.tabs {
		if t.Kind == KindWorkspaceShell && t.Workspace != nil && t.Workspace.ID == workspaceID {
			existing := t
			if r.activeID == existing.ID {
				r.mu.Unlock()
				return existing
			}
			r.activeID = existing.ID
			notify := r.commitLocked()
			r.mu.Unlock()
			notify()
			return existing
		}
	}

	title := name
	if title == "" {
		title = workspaceID
	}
	tab := &Tab{
		ID:        uuid.NewString(),
		Kind:      KindWorkspaceShell,
		Title:     title,
		Workspace: &WorkspaceRef{ID: workspaceID, Name: name},
		CreatedAt: time.Now(),
	}
	r.tabs = append(r.tabs, tab)
	r.activeID = tab.ID
	notify := r.commitLocked()
	r.mu.Unlock()
	notify()
	return tab
}

// Reload re-reads the store and adopts its state when it differs from the
// in-memory view. Used by the watcher when another instance writes tab
// state. Returns whether anything changed. Malformed or empty stored
// state is ignored; the in-memory tabs stay authoritative.
func (r *Registry) Reload() bool {
	if r.store == nil {
		return false
	}
	rows, activeID, err := r.store.LoadTabs()
	if err != nil {
		tabLog.Warn("tab_reload_failed", slog.String("error", err.Error()))
		return false
	}
	tabs, ok := tabsFromRows(rows)
	if !ok || len(tabs) == 0 {
		return false
	}

	r.mu.Lock()
	if sameTabsLocked(r.tabs, tabs) && r.activeID == activeID {
		r.mu.Unlock()
		return false
	}
	r.tabs = tabs
	r.activeID = activeID
	if r.findIndexLocked(activeID) < 0 {
		r.activeID = tabs[0].ID
	}
	fn := r.onChange
	r.mu.Unlock()
	if fn != nil {
		fn()
	}
	return true
}

func (r *Registry) findIndexLocked(id string) int {
	for i, t := range r.tabs {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// seedDefaultsLocked installs the default tab pair.
func (r *Registry) seedDefaultsLocked() {
	term := &Tab{
		ID:        uuid.NewString(),
		Kind:      KindTerminal,
		Title:     "Terminal 1",
		CreatedAt: time.Now(),
	}
	files := &Tab{
		ID:        uuid.NewString(),
		Kind:      KindFileBrowser,
		Title:     "Files 1",
		CreatedAt: time.Now(),
	}
	r.tabs = []*Tab{term, files}
	r.activeID = term.ID
}

// nextTitleLocked numbers a new tab after the highest existing sibling of
// its kind: "Terminal 3", "Files 2".
func (r *Registry) nextTitleLocked(kind Kind) string {
	prefix := titlePrefix(kind)
	max := 0
	for _, t := range r.tabs {
		if t.Kind != kind {
			continue
		}
		rest, found := strings.CutPrefix(t.Title, prefix+" ")
		if !found {
			continue
		}
		if n, err := strconv.Atoi(rest); err == nil && n > max {
			max = n
		}
	}
	return fmt.Sprintf("%s %d", prefix, max+1)
}

func titlePrefix(kind Kind) string {
	switch kind {
	case KindFileBrowser:
		return "Files"
	case KindWorkspaceShell:
		return "Workspace"
	default:
		return "Terminal"
	}
}

// commitLocked persists the current state and returns the change
// notification to run after the lock is released.
func (r *Registry) commitLocked() func() {
	r.persistLocked()
	fn := r.onChange
	if fn == nil {
		return func() {}
	}
	return fn
}

func (r *Registry) persistLocked() {
	if r.store == nil || !r.writable {
		return
	}
	rows := make([]*statedb.TabRow, len(r.tabs))
	for i, t := range r.tabs {
		row := &statedb.TabRow{
			ID:        t.ID,
			Kind:      string(t.Kind),
			Title:     t.Title,
			Order:     i,
			CreatedAt: t.CreatedAt,
		}
		if t.Workspace != nil {
			row.WorkspaceID = t.Workspace.ID
			row.WorkspaceName = t.Workspace.Name
		}
		rows[i] = row
	}
	if err := r.store.SaveTabs(rows, r.activeID); err != nil {
		tabLog.Warn("tab_save_failed", slog.String("error", err.Error()))
	}
}

// tabsFromRows validates and converts stored rows. A single bad row
// poisons the whole set; persisted state is never partially trusted.
func tabsFromRows(rows []*statedb.TabRow) ([]*Tab, bool) {
	tabs := make([]*Tab, 0, len(rows))
	seen := make(map[string]bool, len(rows))
	for _, row := range rows {
		if row.ID == "" || row.Title == "" || !Kind(row.Kind).valid() || seen[row.ID] {
			return nil, false
		}
		if Kind(row.Kind) == KindWorkspaceShell && row.WorkspaceID == "" {
			return nil, false
		}
		seen[row.ID] = true
		t := &Tab{
			ID:        row.ID,
			Kind:      Kind(row.Kind),
			Title:     row.Title,
			CreatedAt: row.CreatedAt,
		}
		if row.WorkspaceID != "" {
			t.Workspace = &WorkspaceRef{ID: row.WorkspaceID, Name: row.WorkspaceName}
		}
		tabs = append(tabs, t)
	}
	return tabs, true
}

func sameTabsLocked(a, b []*Tab) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Kind != b[i].Kind || a[i].Title != b[i].Title {
			return false
		}
	}
	return true
}
