package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/asheshgoplani/mission-deck/internal/api"
	"github.com/asheshgoplani/mission-deck/internal/auth"
	"github.com/asheshgoplani/mission-deck/internal/config"
	"github.com/asheshgoplani/mission-deck/internal/logging"
	"github.com/asheshgoplani/mission-deck/internal/statedb"
	"github.com/asheshgoplani/mission-deck/internal/tabs"
	"github.com/asheshgoplani/mission-deck/internal/ui"
)

// stateFileName is the SQLite database holding tab state and instance
// registrations.
const stateFileName = "state.db"

// legacyTabsFile is imported once when the database is empty.
const legacyTabsFile = "tabs.json"

func runTUI() {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Fprintln(os.Stderr, "Error: mission-deck needs an interactive terminal")
		os.Exit(1)
	}

	cfg, cfgErr := config.Load()
	if cfg == nil {
		cfg = &config.Config{}
	}

	baseDir, err := config.Dir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	initLogging(baseDir, cfg)
	defer logging.Shutdown()
	mainLog := logging.ForComponent(logging.CompUI)
	if cfgErr != nil {
		mainLog.Warn("config_load_failed", slog.String("error", cfgErr.Error()))
	}

	ui.InitTheme(config.ResolveTheme())

	// Open state storage and elect a primary via heartbeats. Secondaries
	// run read-only against the tab table and follow the primary's writes.
	dbPath := filepath.Join(baseDir, stateFileName)
	var db *statedb.StateDB
	isPrimary := true
	if opened, err := statedb.Open(dbPath); err != nil {
		mainLog.Warn("statedb_open_failed", slog.String("error", err.Error()))
	} else if err := opened.Migrate(); err != nil {
		mainLog.Warn("statedb_migrate_failed", slog.String("error", err.Error()))
		opened.Close()
	} else {
		db = opened
		statedb.SetGlobal(db)
		_ = db.RegisterInstance(false)
		if primary, err := db.ElectPrimary(30 * time.Second); err == nil {
			isPrimary = primary
		}
		if alive, err := db.AliveInstanceCount(); err == nil {
			mainLog.Info("instance_registered",
				slog.Bool("primary", isPrimary),
				slog.Int("alive_instances", alive))
		}
		if _, err := db.ImportLegacyJSON(filepath.Join(baseDir, legacyTabsFile)); err != nil {
			mainLog.Warn("legacy_import_failed", slog.String("error", err.Error()))
		}
	}

	// Graceful shutdown releases the primary slot
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		if g := statedb.GetGlobal(); g != nil {
			_ = g.ResignPrimary()
			_ = g.UnregisterInstance()
		}
		os.Exit(0)
	}()

	// SIGUSR1 dumps the log ring buffer for post-mortem debugging
	usr1Chan := make(chan os.Signal, 1)
	signal.Notify(usr1Chan, syscall.SIGUSR1)
	go func() {
		for range usr1Chan {
			dumpPath := filepath.Join(baseDir, fmt.Sprintf("crash-dump-%d.jsonl", time.Now().Unix()))
			if err := logging.DumpRingBuffer(dumpPath); err != nil {
				mainLog.Error("crash_dump_failed", slog.String("error", err.Error()))
			} else {
				mainLog.Info("crash_dump_written", slog.String("path", dumpPath))
			}
		}
	}()

	creds := buildCredentials(cfg)
	client := api.NewClient(api.ClientConfig{
		BaseURL:     cfg.Server.URL,
		Credentials: creds,
		Timeout:     cfg.Server.GetRequestTimeout(),
		RateLimit:   float64(cfg.Server.GetRateLimit()),
	})

	var registry *tabs.Registry
	if db != nil && cfg.Tabs.GetRestore() {
		registry = tabs.NewRegistry(db)
	} else {
		registry = tabs.NewRegistry(nil)
	}
	registry.SetWritable(isPrimary)

	home := ui.NewHome(ui.HomeDeps{
		Config:      cfg,
		Client:      client,
		Credentials: creds,
		Registry:    registry,
		BaseURL:     cfg.Server.URL,
	})

	if db != nil && cfg.Tabs.GetWatchExternal() {
		watcher, err := tabs.NewWatcher(db, dbPath, registry, home.NotifyReload)
		if err != nil {
			mainLog.Warn("tab_watcher_failed", slog.String("error", err.Error()))
		} else {
			home.SetWatcher(watcher)
		}
	}
	home.SetThemeWatcher(ui.NewThemeWatcher(context.Background()))

	heartbeatCtx, stopHeartbeat := context.WithCancel(context.Background())
	defer stopHeartbeat()
	if db != nil {
		go heartbeatLoop(heartbeatCtx, db)
	}

	p := tea.NewProgram(
		home,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	_, runErr := p.Run()
	home.Shutdown()
	if db != nil {
		_ = db.ResignPrimary()
		_ = db.UnregisterInstance()
		db.Close()
	}
	if runErr != nil {
		fmt.Printf("Error: %v\n", runErr)
		os.Exit(1)
	}

	printUpdateNotice()
}

// heartbeatLoop keeps this instance's registration fresh and retries the
// primary election when the current primary goes away.
func heartbeatLoop(ctx context.Context, db *statedb.StateDB) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = db.Heartbeat()
			_ = db.CleanDeadInstances(30 * time.Second)
			_, _ = db.ElectPrimary(30 * time.Second)
		}
	}
}

// buildCredentials assembles the bearer source: a token file wins over an
// inline token so an external refresher can rotate it.
func buildCredentials(cfg *config.Config) *auth.Credentials {
	appToken := cfg.Server.GetAppToken()
	if cfg.Server.TokenFile != "" {
		path := cfg.Server.TokenFile
		return auth.New(appToken, auth.TokenFunc(func() (string, error) {
			data, err := os.ReadFile(path)
			if err != nil {
				return "", fmt.Errorf("read token file: %w", err)
			}
			return strings.TrimSpace(string(data)), nil
		}))
	}
	if cfg.Server.Token != "" {
		return auth.New(appToken, auth.StaticToken(cfg.Server.Token))
	}
	return auth.New(appToken, nil)
}

// initLogging configures structured logging. Without MISSIONDECK_DEBUG the
// logs are discarded so they cannot corrupt the TUI.
func initLogging(baseDir string, cfg *config.Config) {
	debugMode := os.Getenv("MISSIONDECK_DEBUG") != ""
	logCfg := logging.Config{
		Debug:                 debugMode,
		LogDir:                baseDir,
		Level:                 "debug",
		Format:                "json",
		MaxSizeMB:             10,
		MaxBackups:            5,
		MaxAgeDays:            10,
		Compress:              true,
		RingBufferSize:        4 * 1024 * 1024,
		AggregateIntervalSecs: 30,
	}
	ls := cfg.Logs
	if ls.DebugLevel != "" {
		logCfg.Level = ls.DebugLevel
	}
	if ls.DebugFormat != "" {
		logCfg.Format = ls.DebugFormat
	}
	if ls.DebugMaxMB > 0 {
		logCfg.MaxSizeMB = ls.DebugMaxMB
	}
	if ls.DebugBackups > 0 {
		logCfg.MaxBackups = ls.DebugBackups
	}
	if ls.DebugRetentionDays > 0 {
		logCfg.MaxAgeDays = ls.DebugRetentionDays
	}
	if ls.RingBufferMB > 0 {
		logCfg.RingBufferSize = ls.RingBufferMB * 1024 * 1024
	}
	if ls.PprofEnabled {
		logCfg.PprofEnabled = true
	}
	logging.Init(logCfg)
}
