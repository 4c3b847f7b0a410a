package devserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/asheshgoplani/mission-deck/internal/auth"
	"github.com/asheshgoplani/mission-deck/internal/logging"
)

var devLog = logging.ForComponent(logging.CompDevServer)

// Config defines runtime options for the dev server.
type Config struct {
	// ListenAddr is the bind address. Empty means 127.0.0.1:4317.
	ListenAddr string

	// AppToken is the application tag expected in the WebSocket
	// subprotocol list.
	AppToken string

	// Token, when set, is required as a bearer credential on REST
	// requests and as the jwt subprotocol entry on WebSocket upgrades.
	Token string

	// Shell overrides the shell the PTY bridge launches. Empty means
	// $SHELL, falling back to /bin/sh.
	Shell string

	// FilesRoot is the directory served by the file browser endpoints.
	// Empty means the current working directory.
	FilesRoot string
}

// Server is a local stand-in for the control plane: REST fixtures for the
// panels plus console WebSocket endpoints bridged to a real local shell.
// It exists so the client can be exercised end to end without a backend.
type Server struct {
	cfg        Config
	store      *fixtureStore
	newBridge  bridgeFactory
	httpServer *http.Server
	baseCtx    context.Context
	cancelBase context.CancelFunc
}

// NewServer creates a dev server with fixture data and shell bridging.
func NewServer(cfg Config) *Server {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:4317"
	}
	if cfg.FilesRoot == "" {
		if wd, err := os.Getwd(); err == nil {
			cfg.FilesRoot = wd
		} else {
			cfg.FilesRoot = "/"
		}
	}

	s := &Server{
		cfg:       cfg,
		store:     newFixtureStore(cfg.FilesRoot),
		newBridge: newShellBridge,
	}
	s.baseCtx, s.cancelBase = context.WithCancel(context.Background())

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/api/missions", s.requireAuth(s.handleMissions))
	mux.HandleFunc("/api/missions/", s.requireAuth(s.handleMissions))
	mux.HandleFunc("/api/workspaces", s.requireAuth(s.handleWorkspaces))
	mux.HandleFunc("/api/workspaces/", s.requireAuth(s.handleWorkspaces))
	mux.HandleFunc("/api/skills", s.requireAuth(s.handleSkills))
	mux.HandleFunc("/api/skills/", s.requireAuth(s.handleSkills))
	mux.HandleFunc("/api/secrets", s.requireAuth(s.handleSecrets))
	mux.HandleFunc("/api/secrets/", s.requireAuth(s.handleSecrets))
	mux.HandleFunc("/api/profiles", s.requireAuth(s.handleProfiles))
	mux.HandleFunc("/api/profiles/", s.requireAuth(s.handleProfiles))
	mux.HandleFunc("/api/files", s.requireAuth(s.handleFiles))
	mux.HandleFunc("/api/files/", s.requireAuth(s.handleFiles))
	mux.HandleFunc("/ws/console", s.handleConsoleWS)
	mux.HandleFunc("/ws/workspace/", s.handleWorkspaceWS)

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           withRecover(mux),
		BaseContext:       func(_ net.Listener) context.Context { return s.baseCtx },
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Handler returns the configured HTTP handler (used by tests).
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the HTTP server and blocks until shutdown or error.
// Returns nil on graceful shutdown.
func (s *Server) Start() error {
	devLog.Info("dev_server_listening", slog.String("addr", s.cfg.ListenAddr))
	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cancelBase != nil {
		// Signal long-lived WS handlers to stop promptly.
		s.cancelBase()
	}

	err := s.httpServer.Shutdown(ctx)
	if err == nil {
		return nil
	}

	// Live console connections can block graceful shutdown. Force close
	// so Ctrl+C exits promptly.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		if closeErr := s.httpServer.Close(); closeErr == nil {
			return nil
		} else {
			return fmt.Errorf("graceful shutdown timed out and force close failed: %w", closeErr)
		}
	}
	return err
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, map[string]any{
		"ok":   true,
		"time": time.Now().UTC().Format(time.RFC3339),
	})
}

// requireAuth gates REST handlers on the configured bearer token.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Token != "" {
			got := auth.BearerFromHeader(r.Header.Get("Authorization"))
			if got == "" || !auth.SecureEqual(got, s.cfg.Token) {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
		}
		next(w, r)
	}
}

func withRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				devLog.Error("panic",
					slog.String("recover", fmt.Sprintf("%v", rec)),
					slog.String("path", r.URL.Path))
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) String() string {
	return fmt.Sprintf("dev-server(addr=%s, files=%s)", s.cfg.ListenAddr, s.cfg.FilesRoot)
}
