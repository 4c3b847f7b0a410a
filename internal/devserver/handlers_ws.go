package devserver

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/asheshgoplani/mission-deck/internal/auth"
	"github.com/asheshgoplani/mission-deck/internal/console"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     allowWSOrigin,
}

func allowWSOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	originURL, err := url.Parse(origin)
	if err != nil || originURL.Host == "" {
		return false
	}
	return strings.EqualFold(originURL.Host, r.Host)
}

// handleConsoleWS serves the generic console endpoint.
func (s *Server) handleConsoleWS(w http.ResponseWriter, r *http.Request) {
	s.serveShellWS(w, r, "")
}

// handleWorkspaceWS serves /ws/workspace/{id}/shell.
func (s *Server) handleWorkspaceWS(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/ws/workspace/")
	id, ok := strings.CutSuffix(rest, "/shell")
	if !ok || id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "workspace id is required")
		return
	}
	id = pathSegment(id)
	if _, found := s.store.workspace(id); !found {
		writeError(w, http.StatusNotFound, "no such workspace")
		return
	}
	s.serveShellWS(w, r, id)
}

// serveShellWS authenticates the upgrade via the subprotocol list, starts
// a shell bridge, and pumps frames between the socket and the PTY.
func (s *Server) serveShellWS(w http.ResponseWriter, r *http.Request, workspaceID string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	// The client carries its credential in the subprotocol list: the
	// application tag, plus "jwt.<token>" when a credential is set.
	protocols := websocket.Subprotocols(r)
	token, ok := auth.ParseSubprotocols(protocols, s.cfg.AppToken)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing application subprotocol")
		return
	}
	if s.cfg.Token != "" && !auth.SecureEqual(token, s.cfg.Token) {
		writeError(w, http.StatusUnauthorized, "invalid credential")
		return
	}

	// Echo the application tag back as the selected subprotocol so the
	// handshake completes cleanly.
	conn, err := wsUpgrader.Upgrade(w, r, http.Header{
		"Sec-WebSocket-Protocol": {s.cfg.AppToken},
	})
	if err != nil {
		return
	}
	defer conn.Close()

	writer := newWSWriter(conn)
	bridge, err := s.newBridge(s.cfg.Shell, workspaceID, writer)
	if err != nil {
		devLog.Error("shell_bridge_failed",
			slog.String("workspace", workspaceID),
			slog.String("error", err.Error()))
		_ = writer.WriteOutput([]byte("failed to start shell: " + err.Error() + "\r\n"))
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, ""),
			time.Now().Add(time.Second))
		return
	}
	defer bridge.Close()

	devLog.Info("console_connected",
		slog.String("workspace", workspaceID),
		slog.String("remote", r.RemoteAddr))

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(
				err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				devLog.Warn("console_closed_unexpectedly",
					slog.String("workspace", workspaceID),
					slog.String("error", err.Error()))
			}
			return
		}

		frame, err := console.DecodeFrame(payload)
		if err != nil {
			devLog.Debug("malformed_frame", slog.Int("bytes", len(payload)))
			continue
		}

		switch {
		case frame.IsInput():
			if err := bridge.WriteInput(frame.D); err != nil {
				devLog.Warn("input_write_failed", slog.String("error", err.Error()))
				return
			}
		case frame.IsResize():
			if err := bridge.Resize(frame.C, frame.R); err != nil {
				devLog.Debug("resize_failed",
					slog.Int("cols", frame.C),
					slog.Int("rows", frame.R),
					slog.String("error", err.Error()))
			}
		}
	}
}
