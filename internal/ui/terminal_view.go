package ui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/asheshgoplani/mission-deck/internal/console"
)

// TerminalView renders one terminal tab's surface and routes keystrokes to
// its controller. The controller (and its scrollback) belongs to the session
// arena; this component is just the presentation layer for whichever tab is
// in the foreground.
type TerminalView struct {
	session *console.Controller
	width   int
	height  int
}

// NewTerminalView creates a terminal view with no session bound.
func NewTerminalView() *TerminalView {
	return &TerminalView{}
}

// Bind points the view at a session. The first bind after a resize activates
// the controller with the current dimensions.
func (tv *TerminalView) Bind(session *console.Controller) {
	tv.session = session
	if session != nil && tv.width > 0 && tv.height > 0 {
		session.Activate(tv.width, tv.height)
	}
}

// Session returns the bound controller, nil when the foreground tab is a
// file browser.
func (tv *TerminalView) Session() *console.Controller {
	return tv.session
}

// SetSize updates the terminal dimensions and propagates them to the bound
// session.
func (tv *TerminalView) SetSize(width, height int) {
	tv.width = width
	tv.height = height
	if tv.session != nil && width > 0 && height > 0 {
		tv.session.Resize(width, height)
	}
}

// Update handles key input for the foreground terminal.
func (tv *TerminalView) Update(msg tea.Msg) tea.Cmd {
	if tv.session == nil {
		return nil
	}
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return nil
	}
	if seq := keyBytes(key); seq != "" {
		tv.session.SendInput(seq)
	}
	return nil
}

// View renders the surface contents padded to the component height.
// Rows come out of the surface with their ANSI colors intact.
func (tv *TerminalView) View() string {
	if tv.session == nil {
		return DimStyle.Render("no session")
	}
	lines := tv.session.Surface().StyledLines()
	if len(lines) > tv.height && tv.height > 0 {
		lines = lines[len(lines)-tv.height:]
	}
	for len(lines) < tv.height {
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

// StatusLine renders a short connection summary for the footer.
func (tv *TerminalView) StatusLine() string {
	if tv.session == nil {
		return ""
	}
	switch tv.session.Status() {
	case console.StateConnected:
		return PillConnectedStyle.Render("connected")
	case console.StateConnecting:
		return PillConnectingStyle.Render("connecting...")
	case console.StateDisconnected:
		return PillDisconnectedStyle.Render("disconnected (r to reconnect)")
	case console.StateError:
		return PillErrorStyle.Render("error (r to reconnect)")
	default:
		return PillIdleStyle.Render("idle")
	}
}
