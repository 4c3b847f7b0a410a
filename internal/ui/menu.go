package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Menu shows the bottom menu bar.
type Menu struct {
	width int
}

// NewMenu creates a new menu.
func NewMenu() *Menu {
	return &Menu{}
}

// SetWidth sets menu width.
func (m *Menu) SetWidth(width int) {
	m.width = width
}

// View renders the menu with a status pill on the right.
func (m *Menu) View(status string) string {
	themeMu.RLock()
	defer themeMu.RUnlock()

	items := []string{
		MenuKey("^T", "Term"),
		MenuKey("^B", "Files"),
		MenuKey("^O", "Workspace"),
		MenuKey("^D", "Dash"),
		MenuKey("^W", "Close"),
		MenuKey("^R", "Reconnect"),
		MenuKey("F1", "Help"),
		MenuKey("^Q", "Quit"),
	}
	content := strings.Join(items, "  ")

	if status != "" {
		gap := m.width - lipgloss.Width(content) - lipgloss.Width(status) - 1
		if gap > 0 {
			content += MenuStyle.Render(strings.Repeat(" ", gap)) + status
		}
	}
	return MenuStyle.Width(m.width).Render(content)
}
