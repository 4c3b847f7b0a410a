package ui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
)

func TestKeyBytes(t *testing.T) {
	tests := []struct {
		name string
		msg  tea.KeyMsg
		want string
	}{
		{"plain rune", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("a")}, "a"},
		{"multi rune paste", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("ls -la")}, "ls -la"},
		{"alt rune", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("f"), Alt: true}, "\x1bf"},
		{"space", tea.KeyMsg{Type: tea.KeySpace}, " "},
		{"enter", tea.KeyMsg{Type: tea.KeyEnter}, "\r"},
		{"backspace", tea.KeyMsg{Type: tea.KeyBackspace}, "\x7f"},
		{"tab", tea.KeyMsg{Type: tea.KeyTab}, "\t"},
		{"shift tab", tea.KeyMsg{Type: tea.KeyShiftTab}, "\x1b[Z"},
		{"esc", tea.KeyMsg{Type: tea.KeyEsc}, "\x1b"},
		{"up", tea.KeyMsg{Type: tea.KeyUp}, "\x1b[A"},
		{"down", tea.KeyMsg{Type: tea.KeyDown}, "\x1b[B"},
		{"right", tea.KeyMsg{Type: tea.KeyRight}, "\x1b[C"},
		{"left", tea.KeyMsg{Type: tea.KeyLeft}, "\x1b[D"},
		{"home", tea.KeyMsg{Type: tea.KeyHome}, "\x1b[H"},
		{"end", tea.KeyMsg{Type: tea.KeyEnd}, "\x1b[F"},
		{"page up", tea.KeyMsg{Type: tea.KeyPgUp}, "\x1b[5~"},
		{"page down", tea.KeyMsg{Type: tea.KeyPgDown}, "\x1b[6~"},
		{"delete", tea.KeyMsg{Type: tea.KeyDelete}, "\x1b[3~"},
		{"ctrl+c", tea.KeyMsg{Type: tea.KeyCtrlC}, "\x03"},
		{"ctrl+a", tea.KeyMsg{Type: tea.KeyCtrlA}, "\x01"},
		{"ctrl+z", tea.KeyMsg{Type: tea.KeyCtrlZ}, "\x1a"},
		{"ctrl+l", tea.KeyMsg{Type: tea.KeyCtrlL}, "\x0c"},
		{"f1", tea.KeyMsg{Type: tea.KeyF1}, "\x1bOP"},
		{"f4", tea.KeyMsg{Type: tea.KeyF4}, "\x1bOS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, keyBytes(tt.msg))
		})
	}
}

func TestKeyBytesUnmappedKeys(t *testing.T) {
	// Keys with no terminal encoding produce nothing
	assert.Equal(t, "", keyBytes(tea.KeyMsg{Type: tea.KeyF12}))
}
