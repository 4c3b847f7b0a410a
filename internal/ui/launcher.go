package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sahilm/fuzzy"

	"github.com/asheshgoplani/mission-deck/internal/api"
)

// launchWorkspaceMsg asks the root model to open (or focus) a workspace
// shell tab.
type launchWorkspaceMsg struct {
	workspaceID string
	name        string
}

// Launcher is the fuzzy workspace picker overlay. Type to filter, enter to
// open a shell tab for the selected workspace.
type Launcher struct {
	visible    bool
	input      textinput.Model
	workspaces []api.Workspace
	matches    []fuzzy.Match
	cursor     int
	width      int
	height     int
}

// NewLauncher creates a hidden launcher.
func NewLauncher() *Launcher {
	ti := textinput.New()
	ti.Placeholder = "workspace name..."
	ti.CharLimit = 64
	ti.Width = 40
	return &Launcher{input: ti}
}

// Show opens the overlay over the given workspace list.
func (l *Launcher) Show(workspaces []api.Workspace) {
	l.visible = true
	l.workspaces = workspaces
	l.input.SetValue("")
	l.input.Focus()
	l.cursor = 0
	l.refilter()
}

// Hide dismisses the overlay.
func (l *Launcher) Hide() {
	l.visible = false
	l.input.Blur()
}

// IsVisible reports whether the overlay is showing.
func (l *Launcher) IsVisible() bool {
	return l.visible
}

// SetSize updates dimensions for centering.
func (l *Launcher) SetSize(width, height int) {
	l.width = width
	l.height = height
}

// workspaceNames adapts the list for fuzzy matching.
type workspaceNames []api.Workspace

func (w workspaceNames) String(i int) string { return w[i].Name }
func (w workspaceNames) Len() int            { return len(w) }

func (l *Launcher) refilter() {
	query := l.input.Value()
	if query == "" {
		// Empty query lists everything in order
		l.matches = make([]fuzzy.Match, len(l.workspaces))
		for i := range l.workspaces {
			l.matches[i] = fuzzy.Match{Str: l.workspaces[i].Name, Index: i}
		}
	} else {
		l.matches = fuzzy.FindFrom(query, workspaceNames(l.workspaces))
	}
	if l.cursor >= len(l.matches) {
		l.cursor = 0
	}
}

// Update handles overlay input. Returns a command when a workspace is
// chosen.
func (l *Launcher) Update(msg tea.Msg) tea.Cmd {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return nil
	}
	switch key.String() {
	case "esc":
		l.Hide()
		return nil
	case "up", "ctrl+p":
		if l.cursor > 0 {
			l.cursor--
		}
		return nil
	case "down", "ctrl+n":
		if l.cursor < len(l.matches)-1 {
			l.cursor++
		}
		return nil
	case "enter":
		if l.cursor < len(l.matches) {
			ws := l.workspaces[l.matches[l.cursor].Index]
			l.Hide()
			return func() tea.Msg {
				return launchWorkspaceMsg{workspaceID: ws.ID, name: ws.Name}
			}
		}
		return nil
	}
	var cmd tea.Cmd
	l.input, cmd = l.input.Update(msg)
	l.refilter()
	return cmd
}

// View renders the centered picker dialog.
func (l *Launcher) View() string {
	themeMu.RLock()
	defer themeMu.RUnlock()

	var b strings.Builder
	b.WriteString(DialogTitleStyle.Render("Open Workspace Shell"))
	b.WriteString("\n\n")
	b.WriteString(l.input.View())
	b.WriteString("\n\n")

	if len(l.matches) == 0 {
		b.WriteString(DimStyle.Render("no matches"))
	}
	maxRows := 8
	for i, m := range l.matches {
		if i >= maxRows {
			b.WriteString(DimStyle.Render("..."))
			break
		}
		line := renderMatch(m)
		if i == l.cursor {
			line = ListItemSelStyle.Render(" " + m.Str + " ")
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	box := DialogBoxStyle.Render(b.String())
	return lipgloss.Place(l.width, l.height, lipgloss.Center, lipgloss.Center, box)
}

// renderMatch highlights the matched runes within a candidate name.
func renderMatch(m fuzzy.Match) string {
	matched := make(map[int]bool, len(m.MatchedIndexes))
	for _, idx := range m.MatchedIndexes {
		matched[idx] = true
	}
	var b strings.Builder
	b.WriteString(" ")
	for i, r := range m.Str {
		if matched[i] {
			b.WriteString(MatchStyle.Render(string(r)))
		} else {
			b.WriteString(ListItemStyle.Render(string(r)))
		}
	}
	b.WriteString(" ")
	return b.String()
}
