package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/asheshgoplani/mission-deck/internal/config"
)

// handleLogs prints the debug log path, or tails it with "logs tail [n]".
func handleLogs(args []string) {
	dir, err := config.Dir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logPath := filepath.Join(dir, "mission-deck.log")

	if len(args) > 0 && args[0] == "tail" {
		n := 50
		if len(args) > 1 {
			if parsed, err := strconv.Atoi(args[1]); err == nil && parsed > 0 {
				n = parsed
			}
		}
		tailFile(logPath, n)
		return
	}

	fmt.Printf("Debug log: %s\n", logPath)
	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		fmt.Println("(empty; run with MISSIONDECK_DEBUG=1 to enable)")
		return
	}
	fmt.Println("Send SIGUSR1 to a running instance to dump the in-memory ring buffer.")
}

// tailFile prints the last n lines of a file without loading all of it.
func tailFile(path string, n int) {
	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Read backwards in chunks until n+1 newlines are found
	const chunk = 64 * 1024
	var (
		buf    []byte
		offset = info.Size()
	)
	for offset > 0 && countNewlines(buf) <= n {
		step := int64(chunk)
		if step > offset {
			step = offset
		}
		offset -= step
		part := make([]byte, step)
		if _, err := f.ReadAt(part, offset); err != nil && err != io.EOF {
			break
		}
		buf = append(part, buf...)
	}

	lines := splitLines(buf)
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	for _, line := range lines {
		fmt.Println(line)
	}
}

func countNewlines(b []byte) int {
	count := 0
	for _, c := range b {
		if c == '\n' {
			count++
		}
	}
	return count
}

func splitLines(b []byte) []string {
	var lines []string
	start := 0
	for i, c := range b {
		if c == '\n' {
			if i > start {
				lines = append(lines, string(b[start:i]))
			}
			start = i + 1
		}
	}
	if start < len(b) {
		lines = append(lines, string(b[start:]))
	}
	return lines
}
