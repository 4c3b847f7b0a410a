package ui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
)

// keyBytes translates a bubbletea key event into the byte sequence a shell
// expects on stdin. Returns "" for keys that have no terminal encoding.
func keyBytes(msg tea.KeyMsg) string {
	switch msg.Type {
	case tea.KeyRunes:
		if msg.Alt {
			return "\x1b" + string(msg.Runes)
		}
		return string(msg.Runes)
	case tea.KeySpace:
		return " "
	case tea.KeyEnter:
		return "\r"
	case tea.KeyBackspace:
		return "\x7f"
	case tea.KeyTab:
		return "\t"
	case tea.KeyShiftTab:
		return "\x1b[Z"
	case tea.KeyEsc:
		return "\x1b"
	case tea.KeyUp:
		return "\x1b[A"
	case tea.KeyDown:
		return "\x1b[B"
	case tea.KeyRight:
		return "\x1b[C"
	case tea.KeyLeft:
		return "\x1b[D"
	case tea.KeyHome:
		return "\x1b[H"
	case tea.KeyEnd:
		return "\x1b[F"
	case tea.KeyPgUp:
		return "\x1b[5~"
	case tea.KeyPgDown:
		return "\x1b[6~"
	case tea.KeyDelete:
		return "\x1b[3~"
	case tea.KeyInsert:
		return "\x1b[2~"
	case tea.KeyCtrlA, tea.KeyCtrlB, tea.KeyCtrlC, tea.KeyCtrlD, tea.KeyCtrlE,
		tea.KeyCtrlF, tea.KeyCtrlG, tea.KeyCtrlJ, tea.KeyCtrlK, tea.KeyCtrlL,
		tea.KeyCtrlN, tea.KeyCtrlO, tea.KeyCtrlP, tea.KeyCtrlQ, tea.KeyCtrlR,
		tea.KeyCtrlS, tea.KeyCtrlT, tea.KeyCtrlU, tea.KeyCtrlV, tea.KeyCtrlW,
		tea.KeyCtrlX, tea.KeyCtrlY, tea.KeyCtrlZ:
		return string(rune(msg.Type - tea.KeyCtrlA + 1))
	case tea.KeyF1, tea.KeyF2, tea.KeyF3, tea.KeyF4:
		// F1-F4 use the SS3 prefix
		return fmt.Sprintf("\x1bO%c", 'P'+rune(msg.Type-tea.KeyF1))
	}
	return ""
}
