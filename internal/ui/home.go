package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/asheshgoplani/mission-deck/internal/api"
	"github.com/asheshgoplani/mission-deck/internal/auth"
	"github.com/asheshgoplani/mission-deck/internal/config"
	"github.com/asheshgoplani/mission-deck/internal/console"
	"github.com/asheshgoplani/mission-deck/internal/logging"
	"github.com/asheshgoplani/mission-deck/internal/tabs"
)

var uiLog = logging.ForComponent(logging.CompUI)

const (
	// Minimum usable terminal size
	minTerminalWidth  = 40
	minTerminalHeight = 12

	// Rows reserved by chrome: tab bar on top, menu bar on the bottom
	chromeRows = 2

	// tickInterval drives the periodic status repaint
	tickInterval = time.Second

	// eventBuffer bounds the session-to-UI event queue. Events are repaint
	// hints, dropping under pressure is fine.
	eventBuffer = 64
)

type tickMsg time.Time

// sessionStatusMsg reports a connection-state change for the active tab.
type sessionStatusMsg struct {
	tabID string
	state console.State
}

// sessionOutputMsg signals new terminal output landed in a surface.
type sessionOutputMsg struct{}

// tabsReloadedMsg signals the registry adopted external tab state.
type tabsReloadedMsg struct{}

// themeChangedMsg reports an OS dark mode flip.
type themeChangedMsg struct {
	dark bool
}

// workspacesLoadedMsg carries the workspace list for the launcher.
type workspacesLoadedMsg struct {
	workspaces []api.Workspace
	err        error
}

// HomeDeps carries everything the root model needs from main.
type HomeDeps struct {
	Config      *config.Config
	Client      *api.Client
	Credentials *auth.Credentials
	Registry    *tabs.Registry
	BaseURL     string
}

// Home is the root bubbletea model: tab strip on top, the active tab's body
// in the middle, menu bar on the bottom, with modal overlays for the
// launcher, dashboard and help.
type Home struct {
	deps  HomeDeps
	arena *tabs.Arena

	tabBar    *TabBar
	termView  *TerminalView
	browsers  map[string]*FileBrowser
	launcher  *Launcher
	dashboard *DashboardPanel
	help      *HelpOverlay
	menu      *Menu

	themeWatcher *ThemeWatcher
	watcher      *tabs.Watcher
	events       chan tea.Msg

	width   int
	height  int
	errText string
}

// NewHome builds the root model and its session arena.
func NewHome(deps HomeDeps) *Home {
	h := &Home{
		deps:      deps,
		tabBar:    NewTabBar(),
		termView:  NewTerminalView(),
		browsers:  make(map[string]*FileBrowser),
		launcher:  NewLauncher(),
		dashboard: NewDashboardPanel(deps.Client),
		help:      NewHelpOverlay(),
		menu:      NewMenu(),
		events:    make(chan tea.Msg, eventBuffer),
	}
	h.arena = tabs.NewArena(h.buildSession)
	return h
}

// SetWatcher attaches and starts the external tab-state watcher (nil is
// fine when watching is disabled).
func (h *Home) SetWatcher(w *tabs.Watcher) {
	h.watcher = w
	if w != nil {
		// Start blocks until the watcher is stopped, so it gets its
		// own goroutine; SetWatcher must return before the event loop
		// starts pumping.
		go w.Start()
	}
}

// SetThemeWatcher attaches an OS theme watcher (nil is fine).
func (h *Home) SetThemeWatcher(tw *ThemeWatcher) {
	h.themeWatcher = tw
	if tw == nil {
		return
	}
	go func() {
		for isDark := range tw.ChangeChannel() {
			h.pushEvent(themeChangedMsg{dark: isDark})
		}
	}()
}

// buildSession is the arena's factory: one controller per terminal tab.
func (h *Home) buildSession(tab *tabs.Tab) (*console.Controller, error) {
	path := console.ConsolePath
	if tab.Kind == tabs.KindWorkspaceShell {
		if tab.Workspace == nil {
			return nil, fmt.Errorf("workspace shell tab %s has no workspace", tab.ID)
		}
		path = console.WorkspaceShellPath(tab.Workspace.ID)
	}
	endpoint, err := console.ResolveEndpoint(h.deps.BaseURL, path)
	if err != nil {
		return nil, err
	}

	tabID := tab.ID
	cfg := console.ControllerConfig{
		Endpoint:  endpoint,
		Protocols: h.deps.Credentials.Subprotocols,
		Tuning: console.Tuning{
			SettleDelay: h.deps.Config.Console.GetSettleDelay(),
			NudgeDelay:  h.deps.Config.Console.GetNudgeDelay(),
			RetryDelay:  h.deps.Config.Console.GetRetryDelay(),
			ResetPacing: h.deps.Config.Console.GetResetPacing(),
		},
		OnStatus: func(s console.State) {
			h.pushEvent(sessionStatusMsg{tabID: tabID, state: s})
		},
		OnOutput: func() {
			h.pushEvent(sessionOutputMsg{})
		},
	}
	return console.NewController(cfg), nil
}

// pushEvent hands a message from a session goroutine to the UI loop.
// Non-blocking: a full queue means repaints are already pending.
func (h *Home) pushEvent(msg tea.Msg) {
	select {
	case h.events <- msg:
	default:
	}
}

func (h *Home) waitEvent() tea.Msg {
	return <-h.events
}

// Init starts the event pump and the status tick.
func (h *Home) Init() tea.Cmd {
	return tea.Batch(h.waitEvent, h.tick())
}

func (h *Home) tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update is the root message router.
func (h *Home) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		first := h.width == 0
		h.resize(msg.Width, msg.Height)
		if first {
			// Bring the restored active tab to the foreground once we
			// know the terminal dimensions
			if active := h.deps.Registry.Active(); active != nil {
				return h, h.activateTab(active)
			}
		}
		return h, nil

	case tickMsg:
		return h, h.tick()

	case sessionStatusMsg:
		uiLog.Debug("session_status", "tab", msg.tabID, "state", msg.state.String())
		return h, h.waitEvent

	case sessionOutputMsg:
		// Repaint trigger; screen content is read from the arena at render
		return h, h.waitEvent

	case tabsReloadedMsg:
		cmd := h.reconcileSessions()
		return h, tea.Batch(h.waitEvent, cmd)

	case themeChangedMsg:
		if h.deps.Config.Theme == "system" || h.deps.Config.Theme == "" {
			if msg.dark {
				InitTheme("dark")
			} else {
				InitTheme("light")
			}
		}
		return h, h.waitEvent

	case workspacesLoadedMsg:
		if msg.err != nil {
			h.errText = "workspaces: " + msg.err.Error()
			return h, nil
		}
		h.errText = ""
		h.launcher.Show(msg.workspaces)
		return h, nil

	case launchWorkspaceMsg:
		return h, h.openWorkspaceShell(msg.workspaceID, msg.name)

	case dirLoadedMsg, fileLoadedMsg:
		// Browsers filter by tab id, so broadcast is safe
		var cmds []tea.Cmd
		for _, fb := range h.browsers {
			if cmd := fb.Update(msg); cmd != nil {
				cmds = append(cmds, cmd)
			}
		}
		return h, tea.Batch(cmds...)

	case dashboardLoadedMsg, secretsLoadedMsg, profilesLoadedMsg, panelActionMsg:
		return h, h.dashboard.Update(msg)

	case tea.KeyMsg:
		return h.handleKey(msg)
	}
	return h, nil
}

func (h *Home) resize(width, height int) {
	h.width = width
	h.height = height
	body := height - chromeRows
	if body < 1 {
		body = 1
	}
	h.tabBar.SetWidth(width)
	h.menu.SetWidth(width)
	h.termView.SetSize(width, body)
	for _, fb := range h.browsers {
		fb.SetSize(width, body)
	}
	h.launcher.SetSize(width, height)
	h.dashboard.SetSize(width, height)
	h.help.SetSize(width, height)
}

func (h *Home) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Quit always works
	if msg.String() == "ctrl+q" {
		return h, tea.Quit
	}

	// Modal overlays capture input while visible
	if h.help.IsVisible() {
		return h, h.help.Update(msg)
	}
	if h.launcher.IsVisible() {
		return h, h.launcher.Update(msg)
	}
	if h.dashboard.IsVisible() {
		return h, h.dashboard.Update(msg)
	}

	switch msg.String() {
	case "ctrl+t":
		return h, h.openTab(tabs.KindTerminal)
	case "ctrl+b":
		return h, h.openTab(tabs.KindFileBrowser)
	case "ctrl+w":
		return h, h.closeActiveTab()
	case "ctrl+right":
		return h, h.cycleTab(1)
	case "ctrl+left":
		return h, h.cycleTab(-1)
	case "ctrl+o":
		return h, h.fetchWorkspaces()
	case "ctrl+d":
		return h, h.dashboard.Show()
	case "f1":
		h.help.Show()
		return h, nil
	case "ctrl+r":
		if s := h.termView.Session(); s != nil {
			s.Reconnect()
		}
		return h, nil
	case "ctrl+g":
		if s := h.termView.Session(); s != nil {
			s.Reset()
		}
		return h, nil
	}

	// alt+1..9 jumps to a tab by position
	if msg.Alt && len(msg.Runes) == 1 && msg.Runes[0] >= '1' && msg.Runes[0] <= '9' {
		return h, h.jumpToTab(int(msg.Runes[0] - '1'))
	}

	// Everything else goes to the active tab body
	if fb := h.activeBrowser(); fb != nil {
		return h, fb.Update(msg)
	}
	return h, h.termView.Update(msg)
}

// activeBrowser returns the file browser for the active tab, nil for
// terminal tabs.
func (h *Home) activeBrowser() *FileBrowser {
	active := h.deps.Registry.Active()
	if active == nil || active.Kind != tabs.KindFileBrowser {
		return nil
	}
	return h.browsers[active.ID]
}

func (h *Home) openTab(kind tabs.Kind) tea.Cmd {
	tab := h.deps.Registry.Add(kind)
	return h.activateTab(tab)
}

func (h *Home) openWorkspaceShell(workspaceID, name string) tea.Cmd {
	tab := h.deps.Registry.LaunchWorkspace(workspaceID, name)
	return h.activateTab(tab)
}

func (h *Home) closeActiveTab() tea.Cmd {
	active := h.deps.Registry.Active()
	if active == nil {
		return nil
	}
	if !h.deps.Registry.Close(active.ID) {
		return nil
	}
	h.arena.Drop(active.ID)
	delete(h.browsers, active.ID)
	if next := h.deps.Registry.Active(); next != nil {
		return h.activateTab(next)
	}
	return nil
}

func (h *Home) cycleTab(delta int) tea.Cmd {
	all := h.deps.Registry.Tabs()
	if len(all) < 2 {
		return nil
	}
	activeID := h.deps.Registry.ActiveID()
	for i, t := range all {
		if t.ID == activeID {
			next := (i + delta + len(all)) % len(all)
			return h.activateTab(all[next])
		}
	}
	return nil
}

func (h *Home) jumpToTab(index int) tea.Cmd {
	all := h.deps.Registry.Tabs()
	if index >= len(all) {
		return nil
	}
	return h.activateTab(all[index])
}

// activateTab makes a tab the foreground: binds the terminal view or lazily
// creates the file browser, and flips session activity flags. Returns the
// browser's initial load command on first activation.
func (h *Home) activateTab(tab *tabs.Tab) tea.Cmd {
	h.deps.Registry.Activate(tab.ID)

	if tab.Kind == tabs.KindFileBrowser {
		h.arena.SetActive("")
		h.termView.Bind(nil)
		if _, ok := h.browsers[tab.ID]; !ok {
			fb := NewFileBrowser(h.deps.Client, tab.ID)
			fb.SetSize(h.width, max(h.height-chromeRows, 1))
			h.browsers[tab.ID] = fb
			return fb.Init()
		}
		return nil
	}

	session, err := h.arena.Session(tab)
	if err != nil {
		uiLog.Error("session_create_failed", "tab", tab.ID, "error", err)
		h.errText = err.Error()
		return nil
	}
	h.arena.SetActive(tab.ID)
	h.termView.Bind(session)
	return nil
}

func (h *Home) fetchWorkspaces() tea.Cmd {
	client := h.deps.Client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), apiCallTimeout)
		defer cancel()
		workspaces, err := client.ListWorkspaces(ctx)
		return workspacesLoadedMsg{workspaces: workspaces, err: err}
	}
}

// reconcileSessions drops arena sessions and browsers whose tabs vanished in
// an external reload, then re-activates the registry's active tab.
func (h *Home) reconcileSessions() tea.Cmd {
	alive := make(map[string]bool)
	for _, t := range h.deps.Registry.Tabs() {
		alive[t.ID] = true
	}
	for id := range h.browsers {
		if !alive[id] {
			delete(h.browsers, id)
		}
	}
	h.arena.DropMissing(alive)
	if active := h.deps.Registry.Active(); active != nil {
		return h.activateTab(active)
	}
	return nil
}

// View renders tab bar, body, and menu, with overlays replacing the whole
// frame while visible.
func (h *Home) View() string {
	if h.width < minTerminalWidth || h.height < minTerminalHeight {
		return ErrorStyle.Render(fmt.Sprintf("Terminal too small (need %dx%d)", minTerminalWidth, minTerminalHeight))
	}

	switch {
	case h.help.IsVisible():
		return h.help.View()
	case h.launcher.IsVisible():
		return h.launcher.View()
	case h.dashboard.IsVisible():
		return h.dashboard.View()
	}

	states := make(map[string]console.State)
	for _, t := range h.deps.Registry.Tabs() {
		if s, ok := h.arena.Get(t.ID); ok {
			states[t.ID] = s.Status()
		}
	}

	var b strings.Builder
	b.WriteString(h.tabBar.View(h.deps.Registry.Tabs(), h.deps.Registry.ActiveID(), states))
	b.WriteString("\n")

	if fb := h.activeBrowser(); fb != nil {
		b.WriteString(fb.View())
	} else {
		b.WriteString(h.termView.View())
	}
	b.WriteString("\n")

	status := h.termView.StatusLine()
	if h.errText != "" {
		status = ErrorStyle.Render(h.errText)
	}
	b.WriteString(h.menu.View(status))
	return b.String()
}

// Shutdown tears down sessions and watchers. Call after the program exits.
func (h *Home) Shutdown() {
	h.arena.Teardown()
	if h.watcher != nil {
		h.watcher.Stop()
	}
	if h.themeWatcher != nil {
		h.themeWatcher.Close()
	}
}

// NotifyReload is the registry watcher's callback; safe from any goroutine.
func (h *Home) NotifyReload() {
	h.pushEvent(tabsReloadedMsg{})
}
