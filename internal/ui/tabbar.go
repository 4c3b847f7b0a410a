package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/asheshgoplani/mission-deck/internal/console"
	"github.com/asheshgoplani/mission-deck/internal/tabs"
)

// TabBar renders the top tab strip.
type TabBar struct {
	width int
}

// NewTabBar creates a tab bar component.
func NewTabBar() *TabBar {
	return &TabBar{}
}

// SetWidth sets the available width.
func (tb *TabBar) SetWidth(width int) {
	tb.width = width
}

// View renders the tab strip for the given tabs, highlighting activeID.
// states carries the connection state per tab (missing entries render without
// a pill, which is what file browser tabs want).
func (tb *TabBar) View(tabList []*tabs.Tab, activeID string, states map[string]console.State) string {
	themeMu.RLock()
	defer themeMu.RUnlock()

	var b strings.Builder
	used := 0
	for i, t := range tabList {
		title := truncateTitle(t.Title, MaxTabTitleWidth)
		glyph, pillStyle := statePill(t, states)

		style := TabStyle
		if t.ID == activeID {
			style = TabActiveStyle
		}

		// Width math runs over the plain text; the rendered cell carries
		// escape sequences runewidth would miscount.
		plain := title
		if glyph != "" {
			plain = glyph + " " + title
		}
		w := runewidth.StringWidth(plain) + 2 // one pad cell each side
		if used+w > tb.width && i > 0 {
			break
		}

		if glyph == "" {
			b.WriteString(style.Render(title))
		} else {
			// Composed side by side rather than nesting rendered strings:
			// the pill keeps its own foreground and picks up the cell's
			// background through Inherit.
			pad := lipgloss.NewStyle().Background(style.GetBackground()).Render(" ")
			b.WriteString(pad)
			b.WriteString(pillStyle.Inherit(style).Render(glyph + " "))
			b.WriteString(style.UnsetPadding().Render(title))
			b.WriteString(pad)
		}
		used += w
	}
	if used < tb.width {
		b.WriteString(TabBarFillStyle.Render(strings.Repeat(" ", tb.width-used)))
	}
	return b.String()
}

// statePill returns a one-character connection indicator and its style for
// terminal tabs. File browser tabs get no pill.
func statePill(t *tabs.Tab, states map[string]console.State) (string, lipgloss.Style) {
	if t.Kind == tabs.KindFileBrowser {
		return "", lipgloss.Style{}
	}
	st, ok := states[t.ID]
	if !ok {
		return "○", PillIdleStyle
	}
	switch st {
	case console.StateConnected:
		return "●", PillConnectedStyle
	case console.StateConnecting:
		return "◐", PillConnectingStyle
	case console.StateError:
		return "✗", PillErrorStyle
	case console.StateDisconnected:
		return "○", PillDisconnectedStyle
	default:
		return "○", PillIdleStyle
	}
}

func truncateTitle(title string, max int) string {
	if runewidth.StringWidth(title) <= max {
		return title
	}
	return runewidth.Truncate(title, max, "…")
}
