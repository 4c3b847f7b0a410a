package ui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// HelpOverlay shows the keybinding reference.
type HelpOverlay struct {
	visible bool
	width   int
	height  int
}

// NewHelpOverlay creates a hidden help overlay.
func NewHelpOverlay() *HelpOverlay {
	return &HelpOverlay{}
}

// Show makes the overlay visible.
func (h *HelpOverlay) Show() {
	h.visible = true
}

// Hide dismisses the overlay.
func (h *HelpOverlay) Hide() {
	h.visible = false
}

// IsVisible reports whether the overlay is showing.
func (h *HelpOverlay) IsVisible() bool {
	return h.visible
}

// SetSize updates dimensions for centering.
func (h *HelpOverlay) SetSize(width, height int) {
	h.width = width
	h.height = height
}

// Update handles dismissal keys.
func (h *HelpOverlay) Update(msg tea.Msg) tea.Cmd {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "esc", "q", "f1":
			h.Hide()
		}
	}
	return nil
}

// helpSections lists keybindings as key/description pairs per section.
var helpSections = []struct {
	title string
	keys  [][2]string
}{
	{
		title: "Tabs",
		keys: [][2]string{
			{"ctrl+t", "new terminal tab"},
			{"ctrl+b", "new file browser tab"},
			{"ctrl+w", "close tab"},
			{"ctrl+right / ctrl+left", "next / previous tab"},
			{"alt+1..9", "jump to tab"},
		},
	},
	{
		title: "Session",
		keys: [][2]string{
			{"ctrl+r", "reconnect"},
			{"ctrl+g", "reset session (reset + stty sane)"},
		},
	},
	{
		title: "Control Plane",
		keys: [][2]string{
			{"ctrl+o", "open workspace shell picker"},
			{"ctrl+d", "dashboard (missions, skills, secrets, profiles)"},
		},
	},
	{
		title: "General",
		keys: [][2]string{
			{"F1", "toggle this help"},
			{"ctrl+q", "quit"},
		},
	},
}

// View renders the centered help box.
func (h *HelpOverlay) View() string {
	themeMu.RLock()
	defer themeMu.RUnlock()

	var b strings.Builder
	b.WriteString(DialogTitleStyle.Render("Keyboard Reference"))
	b.WriteString("\n")
	for _, section := range helpSections {
		b.WriteString("\n")
		b.WriteString(PanelTitleStyle.Render(section.title))
		b.WriteString("\n")
		for _, kv := range section.keys {
			b.WriteString("  ")
			b.WriteString(MenuKeyStyle.Render(kv[0]))
			b.WriteString(" ")
			b.WriteString(BaseStyle.Render(kv[1]))
			b.WriteString("\n")
		}
	}
	box := DialogBoxStyle.Render(b.String())
	return lipgloss.Place(h.width, h.height, lipgloss.Center, lipgloss.Center, box)
}
