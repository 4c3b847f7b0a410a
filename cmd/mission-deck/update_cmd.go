package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/asheshgoplani/mission-deck/internal/update"
)

// handleUpdate checks for and performs updates
func handleUpdate(args []string) {
	fs := flag.NewFlagSet("update", flag.ExitOnError)
	checkOnly := fs.Bool("check", false, "Only check for updates, don't install")

	fs.Usage = func() {
		fmt.Println("Usage: mission-deck update [options]")
		fmt.Println()
		fmt.Println("Check for and install updates (always checks GitHub for latest).")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  mission-deck update           # Check and install if available")
		fmt.Println("  mission-deck update --check   # Only check, don't install")
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	fmt.Printf("Mission Deck v%s\n", Version)
	fmt.Println("Checking for updates...")

	// Always force check when the user explicitly runs 'update'.
	// The cache only serves the background startup check.
	info, err := update.CheckForUpdate(Version, true)
	if err != nil {
		fmt.Printf("Error checking for updates: %v\n", err)
		os.Exit(1)
	}

	if !info.Available {
		fmt.Println("✓ You're running the latest version!")
		return
	}

	fmt.Printf("\n⬆ Update available: v%s → v%s\n", info.CurrentVersion, info.LatestVersion)
	fmt.Printf("  Release: %s\n", info.ReleaseURL)

	displayChangelog(info.CurrentVersion, info.LatestVersion)

	if *checkOnly {
		fmt.Println("\nRun 'mission-deck update' to install.")
		return
	}

	// Confirm update, draining any buffered input first to avoid garbage
	drainStdin()
	fmt.Print("\nInstall update? [Y/n] ")
	reader := bufio.NewReader(os.Stdin)
	response, _ := reader.ReadString('\n')
	response = strings.TrimSpace(response)
	if response != "" && response != "y" && response != "Y" {
		fmt.Println("Update cancelled.")
		return
	}

	fmt.Println()
	if err := update.PerformUpdate(info.DownloadURL); err != nil {
		fmt.Printf("Error installing update: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\n✓ Updated to v%s\n", info.LatestVersion)
	fmt.Println("  Restart mission-deck to use the new version.")
}

// displayChangelog fetches and displays changelog entries between versions
func displayChangelog(currentVersion, latestVersion string) {
	changelog, err := update.FetchChangelog()
	if err != nil {
		fmt.Println("\n  (Could not fetch changelog. See release notes at the URL above.)")
		return
	}

	entries := update.ParseChangelog(changelog)
	changes := update.GetChangesBetweenVersions(entries, currentVersion, latestVersion)

	if len(changes) > 0 {
		fmt.Print(update.FormatChangelogForDisplay(changes))
	}
}

// drainStdin discards pending terminal input so ANSI escape sequences or
// keypresses buffered during the changelog display don't leak into the prompt.
func drainStdin() {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return
	}

	// ioctl(fd, TCFLSH, TCIFLUSH) flushes the terminal input queue.
	// The TCFLSH request code differs between Darwin and Linux.
	const (
		tcflshDarwin = 0x80047410
		tcflshLinux  = 0x540B
		tciflush     = 0 // flush input queue
	)

	_, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(fd), tcflshDarwin, tciflush)
	if errno != 0 {
		_, _, _ = syscall.Syscall(syscall.SYS_IOCTL, uintptr(fd), tcflshLinux, tciflush)
	}
}
