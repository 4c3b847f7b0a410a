package clipboard

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	atotto "github.com/atotto/clipboard"

	"github.com/asheshgoplani/mission-deck/internal/platform"
)

// CopyResult contains metadata about a successful clipboard copy operation.
type CopyResult struct {
	Method    string // How the content was copied (e.g., "native", "clip.exe", "osc52")
	ByteSize  int    // Number of bytes copied
	LineCount int    // Number of lines in the content
}

// Copy copies text to the system clipboard. The fallback chain is: native
// clipboard → OSC 52 escape sequence (for SSH sessions where no local
// clipboard tool exists).
func Copy(text string, supportsOSC52 bool) (*CopyResult, error) {
	if text == "" {
		return nil, fmt.Errorf("no content to copy")
	}

	lineCount := countLines(text)
	byteSize := len(text)

	method, err := copyNative(text)
	if err == nil {
		return &CopyResult{
			Method:    method,
			ByteSize:  byteSize,
			LineCount: lineCount,
		}, nil
	}

	if supportsOSC52 {
		if err := copyOSC52(text); err != nil {
			return nil, fmt.Errorf("OSC 52 clipboard failed: %w", err)
		}
		return &CopyResult{
			Method:    "osc52",
			ByteSize:  byteSize,
			LineCount: lineCount,
		}, nil
	}

	return nil, fmt.Errorf("no clipboard method available (install xclip, xsel, or wl-copy)")
}

// copyNative attempts to copy using the OS clipboard. WSL needs clip.exe,
// which the generic library does not reach for, so it gets special-cased.
func copyNative(text string) (string, error) {
	if platform.IsWSL() {
		return "clip.exe", platform.PipeTo("clip.exe", nil, text)
	}
	if atotto.Unsupported {
		return "", fmt.Errorf("no clipboard command found on %s", platform.Detect())
	}
	if err := atotto.WriteAll(text); err != nil {
		return "", err
	}
	return "native", nil
}

// copyOSC52 copies text using the OSC 52 terminal escape sequence.
// Inside tmux, wraps the sequence in a DCS passthrough.
func copyOSC52(text string) error {
	encoded := base64.StdEncoding.EncodeToString([]byte(text))
	seq := generateOSC52(encoded, os.Getenv("TMUX") != "")

	// Write to /dev/tty to bypass any stdout redirection
	tty, err := os.OpenFile("/dev/tty", os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("cannot open /dev/tty: %w", err)
	}
	defer tty.Close()

	_, err = tty.WriteString(seq)
	return err
}

// generateOSC52 builds the OSC 52 escape sequence.
// If inTmux is true, wraps it in a DCS passthrough for tmux compatibility.
func generateOSC52(base64Content string, inTmux bool) string {
	osc := "\x1b]52;c;" + base64Content + "\x07"
	if inTmux {
		// tmux DCS passthrough: \ePtmux;\e{OSC}\e\\
		return "\x1bPtmux;\x1b" + osc + "\x1b\\"
	}
	return osc
}

// countLines counts the number of non-empty lines in text.
// A trailing newline does not add an extra line.
func countLines(text string) int {
	if text == "" {
		return 0
	}
	n := strings.Count(text, "\n")
	// If text doesn't end with newline, the last line still counts
	if !strings.HasSuffix(text, "\n") {
		n++
	}
	return n
}
