package devserver

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/gorilla/websocket"
)

// wsWriter serializes writes to one WebSocket connection; gorilla allows
// a single concurrent writer.
type wsWriter struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func newWSWriter(conn *websocket.Conn) *wsWriter {
	return &wsWriter{conn: conn}
}

func (w *wsWriter) WriteOutput(data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.conn.WriteMessage(websocket.BinaryMessage, data)
}

// bridge is the session behind one console WebSocket. shellBridge is the
// real one; tests substitute fakes.
type bridge interface {
	WriteInput(data string) error
	Resize(cols, rows int) error
	Close()
}

// bridgeFactory builds the bridge for a connection. workspaceID is empty
// for the generic console endpoint.
type bridgeFactory func(shell, workspaceID string, writer *wsWriter) (bridge, error)

// shellBridge runs a local shell on a PTY and streams its output to the
// WebSocket. It stands in for the production backend's remote PTY so the
// client can be exercised end to end on a developer machine.
type shellBridge struct {
	writer *wsWriter
	cmd    *exec.Cmd
	ptmx   *os.File

	closeOnce sync.Once
	done      chan struct{}
}

func newShellBridge(shell, workspaceID string, writer *wsWriter) (bridge, error) {
	if shell == "" {
		shell = os.Getenv("SHELL")
	}
	if shell == "" {
		shell = "/bin/sh"
	}

	cmd := exec.Command(shell)
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")
	if workspaceID != "" {
		cmd.Env = append(cmd.Env, "MISSIONDECK_WORKSPACE="+workspaceID)
	}

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return nil, fmt.Errorf("start shell pty: %w", err)
	}

	b := &shellBridge{
		writer: writer,
		cmd:    cmd,
		ptmx:   ptmx,
		done:   make(chan struct{}),
	}
	go b.streamOutput()
	return b, nil
}

func (b *shellBridge) streamOutput() {
	defer close(b.done)

	buf := make([]byte, 4096)
	for {
		n, err := b.ptmx.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if writeErr := b.writer.WriteOutput(chunk); writeErr != nil {
				b.Close()
				return
			}
		}
		if err != nil {
			// PTY read errors mean the shell exited or the fd closed.
			b.Close()
			return
		}
	}
}

func (b *shellBridge) WriteInput(data string) error {
	if b == nil || b.ptmx == nil {
		return fmt.Errorf("bridge not initialized")
	}
	if data == "" {
		return nil
	}
	_, err := b.ptmx.Write([]byte(data))
	return err
}

func (b *shellBridge) Resize(cols, rows int) error {
	if b == nil || b.ptmx == nil {
		return fmt.Errorf("bridge not initialized")
	}
	if cols <= 0 || rows <= 0 {
		return fmt.Errorf("invalid dimensions: cols=%d rows=%d", cols, rows)
	}
	return pty.Setsize(b.ptmx, &pty.Winsize{
		Cols: uint16(cols),
		Rows: uint16(rows),
	})
}

func (b *shellBridge) Close() {
	if b == nil {
		return
	}
	b.closeOnce.Do(func() {
		if b.ptmx != nil {
			_ = b.ptmx.Close()
		}
		if b.cmd != nil && b.cmd.Process != nil {
			pgid, err := syscall.Getpgid(b.cmd.Process.Pid)
			if err == nil {
				_ = syscall.Kill(-pgid, syscall.SIGTERM)
			} else {
				_ = b.cmd.Process.Kill()
			}
		}
		if b.cmd != nil {
			_ = b.cmd.Wait()
		}
	})
}
