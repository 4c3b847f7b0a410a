package ui

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-runewidth"

	"github.com/asheshgoplani/mission-deck/internal/api"
)

const fileLoadTimeout = 10 * time.Second

// dirLoadedMsg carries a directory listing back to the UI loop.
type dirLoadedMsg struct {
	tabID   string
	dirPath string
	entries []api.FileEntry
	err     error
}

// fileLoadedMsg carries file contents for the preview pane.
type fileLoadedMsg struct {
	tabID    string
	filePath string
	data     []byte
	err      error
}

// FileBrowser is the remote file browser tab body. Each file browser tab
// owns one instance, keyed by tab ID so async loads land in the right tab.
type FileBrowser struct {
	client *api.Client
	tabID  string

	path    string
	entries []api.FileEntry
	cursor  int
	loading bool
	loadErr string

	preview     string
	previewPath string

	width  int
	height int
}

// NewFileBrowser creates a browser rooted at "." for the given tab.
func NewFileBrowser(client *api.Client, tabID string) *FileBrowser {
	return &FileBrowser{client: client, tabID: tabID, path: "."}
}

// SetSize updates the component dimensions.
func (fb *FileBrowser) SetSize(width, height int) {
	fb.width = width
	fb.height = height
}

// Init kicks off the initial directory load.
func (fb *FileBrowser) Init() tea.Cmd {
	return fb.loadDir(fb.path)
}

func (fb *FileBrowser) loadDir(dirPath string) tea.Cmd {
	fb.loading = true
	client, tabID := fb.client, fb.tabID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fileLoadTimeout)
		defer cancel()
		entries, err := client.ListDir(ctx, dirPath)
		return dirLoadedMsg{tabID: tabID, dirPath: dirPath, entries: entries, err: err}
	}
}

func (fb *FileBrowser) loadFile(filePath string) tea.Cmd {
	fb.loading = true
	client, tabID := fb.client, fb.tabID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fileLoadTimeout)
		defer cancel()
		data, err := client.ReadFile(ctx, filePath)
		return fileLoadedMsg{tabID: tabID, filePath: filePath, data: data, err: err}
	}
}

// Update handles navigation keys and load results.
func (fb *FileBrowser) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case dirLoadedMsg:
		if msg.tabID != fb.tabID {
			return nil
		}
		fb.loading = false
		if msg.err != nil {
			fb.loadErr = msg.err.Error()
			return nil
		}
		fb.loadErr = ""
		fb.path = msg.dirPath
		fb.entries = msg.entries
		fb.cursor = 0
		fb.preview = ""
		fb.previewPath = ""
		return nil

	case fileLoadedMsg:
		if msg.tabID != fb.tabID {
			return nil
		}
		fb.loading = false
		if msg.err != nil {
			fb.loadErr = msg.err.Error()
			return nil
		}
		fb.loadErr = ""
		fb.preview = string(msg.data)
		fb.previewPath = msg.filePath
		return nil

	case tea.KeyMsg:
		return fb.handleKey(msg)
	}
	return nil
}

func (fb *FileBrowser) handleKey(msg tea.KeyMsg) tea.Cmd {
	// A visible preview captures navigation until dismissed.
	if fb.preview != "" {
		switch msg.String() {
		case "esc", "q", "enter":
			fb.preview = ""
			fb.previewPath = ""
		}
		return nil
	}

	switch msg.String() {
	case "up", "k":
		if fb.cursor > 0 {
			fb.cursor--
		}
	case "down", "j":
		if fb.cursor < len(fb.entries)-1 {
			fb.cursor++
		}
	case "enter":
		if fb.cursor < len(fb.entries) {
			entry := fb.entries[fb.cursor]
			if entry.IsDir {
				return fb.loadDir(entry.Path)
			}
			return fb.loadFile(entry.Path)
		}
	case "backspace", "h", "left":
		if fb.path != "." && fb.path != "/" && fb.path != "" {
			parent := path.Dir(fb.path)
			return fb.loadDir(parent)
		}
	case "R":
		return fb.loadDir(fb.path)
	}
	return nil
}

// View renders the listing or the file preview.
func (fb *FileBrowser) View() string {
	themeMu.RLock()
	defer themeMu.RUnlock()

	if fb.preview != "" {
		return fb.viewPreview()
	}

	var b strings.Builder
	b.WriteString(PanelTitleStyle.Render(fb.path))
	b.WriteString("\n")

	switch {
	case fb.loading:
		b.WriteString(DimStyle.Render("loading..."))
	case fb.loadErr != "":
		b.WriteString(ErrorStyle.Render(fb.loadErr))
	case len(fb.entries) == 0:
		b.WriteString(DimStyle.Render("(empty)"))
	default:
		visible := fb.height - 2
		if visible < 1 {
			visible = 1
		}
		start := 0
		if fb.cursor >= visible {
			start = fb.cursor - visible + 1
		}
		for i := start; i < len(fb.entries) && i < start+visible; i++ {
			b.WriteString(fb.renderEntry(i))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (fb *FileBrowser) renderEntry(i int) string {
	entry := fb.entries[i]
	name := entry.Name
	if entry.IsDir {
		name += "/"
	}
	line := name
	if !entry.IsDir {
		line = fmt.Sprintf("%-*s %s", 40, name, humanSize(entry.Size))
	}
	line = runewidth.Truncate(line, max(fb.width-2, 10), "…")
	if i == fb.cursor {
		return ListItemSelStyle.Render(line)
	}
	if entry.IsDir {
		return ListItemStyle.Foreground(ColorCyan).Render(line)
	}
	return ListItemStyle.Render(line)
}

func (fb *FileBrowser) viewPreview() string {
	var b strings.Builder
	b.WriteString(PanelTitleStyle.Render(fb.previewPath))
	b.WriteString(DimStyle.Render("  (esc to close)"))
	b.WriteString("\n")
	lines := strings.Split(fb.preview, "\n")
	visible := fb.height - 2
	if visible < 1 {
		visible = 1
	}
	if len(lines) > visible {
		lines = lines[:visible]
	}
	for _, l := range lines {
		b.WriteString(runewidth.Truncate(l, max(fb.width-2, 10), "…"))
		b.WriteString("\n")
	}
	return b.String()
}

func humanSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1fM", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1fK", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%dB", n)
	}
}
