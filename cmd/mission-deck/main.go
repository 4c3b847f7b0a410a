package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/asheshgoplani/mission-deck/internal/config"
	"github.com/asheshgoplani/mission-deck/internal/update"
)

const Version = "0.3.0"

// init sets up color profile for consistent terminal colors across environments
func init() {
	initColorProfile()
	initUpdateSettings()
}

// initUpdateSettings configures update checking from user config
func initUpdateSettings() {
	settings := config.GetUpdateSettings()
	update.SetCheckInterval(settings.CheckIntervalHours)
}

// printUpdateNotice checks for updates and prints a one-liner if available.
// Uses the cached check result when it is still fresh.
func printUpdateNotice() {
	settings := config.GetUpdateSettings()
	if !settings.GetCheckEnabled() {
		return
	}

	info, err := update.CheckForUpdate(Version, false)
	if err != nil || info == nil || !info.Available {
		return
	}

	fmt.Fprintf(os.Stderr, "\n💡 Update available: v%s → v%s (run: mission-deck update)\n",
		info.CurrentVersion, info.LatestVersion)
}

// initColorProfile configures lipgloss color profile based on terminal
// capabilities. Prefers TrueColor, falls back to ANSI256.
func initColorProfile() {
	// Allow user override via environment variable
	// MISSIONDECK_COLOR: truecolor, 256, 16, none
	if colorEnv := os.Getenv("MISSIONDECK_COLOR"); colorEnv != "" {
		switch strings.ToLower(colorEnv) {
		case "truecolor", "true", "24bit":
			lipgloss.SetColorProfile(termenv.TrueColor)
			return
		case "256", "ansi256":
			lipgloss.SetColorProfile(termenv.ANSI256)
			return
		case "16", "ansi", "basic":
			lipgloss.SetColorProfile(termenv.ANSI)
			return
		case "none", "off", "ascii":
			lipgloss.SetColorProfile(termenv.Ascii)
			return
		}
	}

	// Explicit TrueColor support
	colorTerm := os.Getenv("COLORTERM")
	if colorTerm == "truecolor" || colorTerm == "24bit" {
		lipgloss.SetColorProfile(termenv.TrueColor)
		return
	}

	// Known TrueColor-capable terminals
	term := os.Getenv("TERM")
	trueColorTerms := []string{
		"xterm-256color",
		"screen-256color",
		"tmux-256color",
		"xterm-direct",
		"alacritty",
		"kitty",
		"wezterm",
	}
	for _, t := range trueColorTerms {
		if strings.Contains(term, t) || term == t {
			lipgloss.SetColorProfile(termenv.TrueColor)
			return
		}
	}

	// Common terminal emulators advertise themselves via env vars
	if os.Getenv("WT_SESSION") != "" || // Windows Terminal
		os.Getenv("ITERM_SESSION_ID") != "" || // iTerm2
		os.Getenv("TERMINAL_EMULATOR") != "" || // JetBrains terminals
		os.Getenv("KONSOLE_VERSION") != "" { // Konsole
		lipgloss.SetColorProfile(termenv.TrueColor)
		return
	}

	// ANSI256 works in SSH, basic terminals, and older emulators
	lipgloss.SetColorProfile(termenv.ANSI256)
}

func main() {
	args := os.Args[1:]

	if len(args) > 0 {
		switch args[0] {
		case "version", "--version", "-v":
			fmt.Printf("Mission Deck v%s\n", Version)
			return
		case "help", "--help", "-h":
			printHelp()
			return
		case "config":
			handleConfig(args[1:])
			return
		case "logs":
			handleLogs(args[1:])
			return
		case "dev-server":
			handleDevServer(args[1:])
			return
		case "update":
			handleUpdate(args[1:])
			return
		}
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
		printHelp()
		os.Exit(1)
	}

	runTUI()
}

func printHelp() {
	fmt.Println(`Mission Deck - terminal dashboard for the agent control plane

Usage:
  mission-deck              Launch the dashboard TUI
  mission-deck config       Show the resolved configuration
  mission-deck config init  Write a commented default config.toml
  mission-deck logs         Show the debug log location
  mission-deck dev-server   Run a local stand-in control plane
  mission-deck update       Check for and install updates
  mission-deck version      Print the version

Environment:
  MISSIONDECK_HOME          Override the state directory (default ~/.mission-deck)
  MISSIONDECK_DEBUG         Enable debug logging to $MISSIONDECK_HOME/mission-deck.log
  MISSIONDECK_COLOR         Force a color profile: truecolor, 256, 16, none`)
}
