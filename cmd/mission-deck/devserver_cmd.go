package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/asheshgoplani/mission-deck/internal/config"
	"github.com/asheshgoplani/mission-deck/internal/devserver"
	"github.com/asheshgoplani/mission-deck/internal/logging"
)

// handleDevServer runs the local stand-in control plane: REST fixtures plus
// console WebSockets bridged to a real local shell.
func handleDevServer(args []string) {
	fs := flag.NewFlagSet("dev-server", flag.ExitOnError)
	addr := fs.String("addr", "127.0.0.1:4317", "listen address")
	token := fs.String("token", "", "bearer token to require (empty disables auth)")
	appToken := fs.String("app-token", "mission-deck", "WebSocket subprotocol application tag")
	shell := fs.String("shell", "", "shell for console sessions (default $SHELL)")
	root := fs.String("root", "", "directory served by the file browser (default cwd)")
	fs.Parse(args)

	logDir, err := config.Dir()
	if err == nil {
		err = os.MkdirAll(logDir, 0o755)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logging.Init(logging.Config{Debug: true, LogDir: logDir, Format: "text", Level: "debug"})
	defer logging.Shutdown()

	srv := devserver.NewServer(devserver.Config{
		ListenAddr: *addr,
		AppToken:   *appToken,
		Token:      *token,
		Shell:      *shell,
		FilesRoot:  *root,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	fmt.Printf("Mission Deck dev server on http://%s\n", *addr)
	fmt.Printf("Point the TUI at it: url = \"http://%s\" in %s\n", *addr, configPathHint())
	if *token != "" {
		fmt.Println("Auth required: set the same token in the client config")
	}

	if err := srv.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func configPathHint() string {
	if path, err := config.Path(); err == nil {
		return path
	}
	return "config.toml"
}
