package console

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/hinshun/vt10x"
)

// Surface wraps a terminal-emulation engine bound to a screen region.
// Output bytes flow in through Write; the TUI pulls rendered rows out
// through StyledLines. The surface stays unsized until the first Fit so
// the initial resize frame sent after connect carries real dimensions
// rather than a placeholder.
type Surface struct {
	mu       sync.Mutex
	vt       vt10x.Terminal
	cols     int
	rows     int
	sized    bool
	disposed bool
}

// defaultCols/defaultRows seed the emulator before the first Fit.
const (
	defaultCols = 80
	defaultRows = 24
)

// NewSurface creates an unsized surface. Call Fit before connecting.
func NewSurface() *Surface {
	return &Surface{
		vt:   vt10x.New(vt10x.WithSize(defaultCols, defaultRows)),
		cols: defaultCols,
		rows: defaultRows,
	}
}

// Fit resizes the emulation to the given dimensions. Zero or negative
// dimensions are ignored (the surface's container has not laid out yet).
// Returns true when the dimensions actually changed or this was the first
// successful fit.
func (s *Surface) Fit(cols, rows int) bool {
	if cols <= 0 || rows <= 0 {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return false
	}
	first := !s.sized
	s.sized = true
	if !first && cols == s.cols && rows == s.rows {
		return false
	}
	s.cols = cols
	s.rows = rows
	s.vt.Resize(cols, rows)
	return true
}

// Sized reports whether the surface has received its first fit.
func (s *Surface) Sized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sized
}

// Size returns the current dimensions.
func (s *Surface) Size() (cols, rows int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cols, s.rows
}

// Write feeds server output bytes into the emulation.
func (s *Surface) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return len(p), nil
	}
	return s.vt.Write(p)
}

// WriteDiagnostic injects a user-visible diagnostic line into the output
// stream, rendered dim so it reads as annotation rather than shell output.
func (s *Surface) WriteDiagnostic(msg string) {
	line := fmt.Sprintf("\r\n\x1b[2m%s\x1b[0m\r\n", msg)
	_, _ = s.Write([]byte(line))
}

// StyledLines renders the screen as one string per row with colors kept
// as ANSI sequences: cell-by-cell content with minimal attribute changes
// and a reset at the end of any styled row. Each row stands alone, so
// the TUI can clip and stack rows without attributes bleeding between
// them or into the surrounding chrome.
func (s *Surface) StyledLines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return nil
	}

	cols, rows := s.vt.Size()
	lines := make([]string, rows)
	var buf bytes.Buffer
	for row := 0; row < rows; row++ {
		buf.Reset()
		lastFG, lastBG := vt10x.DefaultFG, vt10x.DefaultBG
		for col := 0; col < cols; col++ {
			cell := s.vt.Cell(col, row)

			if cell.FG != lastFG || cell.BG != lastBG {
				buf.WriteString("\x1b[0m")
				if cell.FG != vt10x.DefaultFG && cell.FG < 256 {
					fmt.Fprintf(&buf, "\x1b[38;5;%dm", cell.FG)
				}
				if cell.BG != vt10x.DefaultBG && cell.BG < 256 {
					fmt.Fprintf(&buf, "\x1b[48;5;%dm", cell.BG)
				}
				lastFG, lastBG = cell.FG, cell.BG
			}

			if cell.Char == 0 {
				buf.WriteRune(' ')
			} else {
				buf.WriteRune(cell.Char)
			}
		}
		if lastFG != vt10x.DefaultFG || lastBG != vt10x.DefaultBG {
			buf.WriteString("\x1b[0m")
		}
		lines[row] = buf.String()
	}
	return lines
}

// Lines renders the screen as plain text rows with attributes stripped.
// Useful for content assertions and anywhere styling is unwanted.
func (s *Surface) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return nil
	}

	cols, rows := s.vt.Size()
	lines := make([]string, rows)
	var sb bytes.Buffer
	for row := 0; row < rows; row++ {
		sb.Reset()
		for col := 0; col < cols; col++ {
			cell := s.vt.Cell(col, row)
			if cell.Char == 0 {
				sb.WriteRune(' ')
			} else {
				sb.WriteRune(cell.Char)
			}
		}
		lines[row] = sb.String()
	}
	return lines
}

// Cursor returns the emulation's cursor position.
func (s *Surface) Cursor() (x, y int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.vt.Cursor()
	return c.X, c.Y
}

// Dispose releases the surface. Further writes and renders are no-ops.
func (s *Surface) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disposed = true
}
