package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	dark "github.com/thiagokokada/dark-mode-go"
)

// FileName is the TOML config file for user preferences.
const FileName = "config.toml"

// EnvHome overrides the mission-deck home directory (default ~/.mission-deck).
const EnvHome = "MISSIONDECK_HOME"

// Config represents user-facing configuration in TOML format.
type Config struct {
	// Theme sets the color scheme: "dark" (default), "light", or "system"
	Theme string `toml:"theme"`

	// Server defines the control-plane endpoint and credentials
	Server ServerSettings `toml:"server"`

	// Console tunes the terminal session heuristics
	Console ConsoleSettings `toml:"console"`

	// Tabs defines tab persistence behavior
	Tabs TabSettings `toml:"tabs"`

	// Dashboard defines panel refresh behavior
	Dashboard DashboardSettings `toml:"dashboard"`

	// Logs defines debug log settings
	Logs LogSettings `toml:"logs"`

	// Updates defines self-update check behavior
	Updates UpdateSettings `toml:"updates"`
}

// ServerSettings defines the control-plane connection.
type ServerSettings struct {
	// URL is the base URL of the control plane (e.g. "https://deck.example.com")
	// ws:// and wss:// endpoints are derived from it.
	URL string `toml:"url"`

	// AppToken is the fixed application tag carried as the first WebSocket
	// subprotocol entry. Default: "mission-deck"
	AppToken string `toml:"app_token"`

	// TokenFile is a file containing the bearer token (JWT). Read on demand
	// so an external refresher can rotate it.
	TokenFile string `toml:"token_file"`

	// Token is an inline bearer token. TokenFile takes precedence when both
	// are set.
	Token string `toml:"token"`

	// RequestTimeoutSecs is the REST request timeout (default: 15)
	RequestTimeoutSecs int `toml:"request_timeout_secs"`

	// RateLimitPerSec caps REST requests per second (default: 10)
	RateLimitPerSec int `toml:"rate_limit_per_sec"`
}

// GetAppToken returns the subprotocol application tag, defaulting to "mission-deck".
func (s *ServerSettings) GetAppToken() string {
	if s.AppToken == "" {
		return "mission-deck"
	}
	return s.AppToken
}

// GetRequestTimeout returns the REST request timeout with the default applied.
func (s *ServerSettings) GetRequestTimeout() time.Duration {
	if s.RequestTimeoutSecs <= 0 {
		return 15 * time.Second
	}
	return time.Duration(s.RequestTimeoutSecs) * time.Second
}

// GetRateLimit returns requests per second for the REST client.
func (s *ServerSettings) GetRateLimit() int {
	if s.RateLimitPerSec <= 0 {
		return 10
	}
	return s.RateLimitPerSec
}

// ConsoleSettings tunes the terminal session heuristics. All delays were
// chosen empirically; override only if your backend's shells behave
// differently.
type ConsoleSettings struct {
	// SettleDelayMs is the delay after the socket opens before the first
	// resize frame is sent (default: 150)
	SettleDelayMs int `toml:"settle_delay_ms"`

	// NudgeDelayMs is how long to wait for first output before sending a
	// carriage return to coax a prompt out of a silent shell (default: 300)
	NudgeDelayMs int `toml:"nudge_delay_ms"`

	// RetryDelayMs is the delay before the single automatic reconnect after
	// a handshake failure (default: 1000)
	RetryDelayMs int `toml:"retry_delay_ms"`

	// ResetPacingMs is the gap between "reset" and "stty sane" in the
	// reset sequence (default: 250)
	ResetPacingMs int `toml:"reset_pacing_ms"`
}

// GetSettleDelay returns the post-open settle delay.
func (c *ConsoleSettings) GetSettleDelay() time.Duration {
	if c.SettleDelayMs <= 0 {
		return 150 * time.Millisecond
	}
	return time.Duration(c.SettleDelayMs) * time.Millisecond
}

// GetNudgeDelay returns the prompt-nudge window.
func (c *ConsoleSettings) GetNudgeDelay() time.Duration {
	if c.NudgeDelayMs <= 0 {
		return 300 * time.Millisecond
	}
	return time.Duration(c.NudgeDelayMs) * time.Millisecond
}

// GetRetryDelay returns the auto-reconnect delay.
func (c *ConsoleSettings) GetRetryDelay() time.Duration {
	if c.RetryDelayMs <= 0 {
		return time.Second
	}
	return time.Duration(c.RetryDelayMs) * time.Millisecond
}

// GetResetPacing returns the reset-sequence pacing delay.
func (c *ConsoleSettings) GetResetPacing() time.Duration {
	if c.ResetPacingMs <= 0 {
		return 250 * time.Millisecond
	}
	return time.Duration(c.ResetPacingMs) * time.Millisecond
}

// TabSettings defines tab persistence behavior.
type TabSettings struct {
	// Restore re-opens the tabs from the previous run on startup
	// Default: true (pointer to distinguish "not set" from "explicitly false")
	Restore *bool `toml:"restore"`

	// WatchExternal reloads tab state written by another running instance
	// Default: true
	WatchExternal *bool `toml:"watch_external"`
}

// GetRestore returns whether to restore persisted tabs, defaulting to true.
func (t *TabSettings) GetRestore() bool {
	if t.Restore == nil {
		return true
	}
	return *t.Restore
}

// GetWatchExternal returns whether to watch for external tab-state writes,
// defaulting to true.
func (t *TabSettings) GetWatchExternal() bool {
	if t.WatchExternal == nil {
		return true
	}
	return *t.WatchExternal
}

// DashboardSettings defines panel refresh behavior.
type DashboardSettings struct {
	// RefreshSecs is how often mission/workspace panels refresh (default: 30)
	RefreshSecs int `toml:"refresh_secs"`
}

// GetRefreshInterval returns the panel refresh interval.
func (d *DashboardSettings) GetRefreshInterval() time.Duration {
	if d.RefreshSecs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(d.RefreshSecs) * time.Second
}

// LogSettings defines debug log configuration.
type LogSettings struct {
	// DebugLevel sets the minimum log level: "debug", "info", "warn", "error"
	// Default: "info"
	DebugLevel string `toml:"debug_level"`

	// DebugFormat sets the log format: "json" (default) or "text"
	DebugFormat string `toml:"debug_format"`

	// DebugMaxMB is the max size in MB for the log file before rotation
	// Default: 10
	DebugMaxMB int `toml:"debug_max_mb"`

	// DebugBackups is the number of rotated log files to keep
	// Default: 5
	DebugBackups int `toml:"debug_backups"`

	// DebugRetentionDays is the number of days to keep rotated logs
	// Default: 10
	DebugRetentionDays int `toml:"debug_retention_days"`

	// DebugCompress enables gzip compression for rotated logs
	// Default: true
	DebugCompress bool `toml:"debug_compress"`

	// RingBufferMB is the in-memory ring buffer size in MB for crash dumps
	// Default: 4
	RingBufferMB int `toml:"ring_buffer_mb"`

	// PprofEnabled starts a pprof server on localhost:6060 in debug mode
	// Default: false
	PprofEnabled bool `toml:"pprof_enabled"`
}

var defaultConfig = Config{}

var (
	cache   *Config
	cacheMu sync.RWMutex
)

// Dir returns the mission-deck home directory (~/.mission-deck by default,
// overridable via MISSIONDECK_HOME).
func Dir() (string, error) {
	if dir := os.Getenv(EnvHome); dir != "" {
		return expandTilde(dir), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".mission-deck"), nil
}

// Path returns the path to the user config file.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

// Load loads the user configuration from the TOML file.
// Returns cached config after first load.
func Load() (*Config, error) {
	cacheMu.RLock()
	if cache != nil {
		defer cacheMu.RUnlock()
		return cache, nil
	}
	cacheMu.RUnlock()

	cacheMu.Lock()
	defer cacheMu.Unlock()

	// Double-check after acquiring write lock
	if cache != nil {
		return cache, nil
	}

	configPath, err := Path()
	if err != nil {
		cache = &defaultConfig
		return cache, nil
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cache = &defaultConfig
		return cache, nil
	}

	var cfg Config
	if _, err := toml.DecodeFile(configPath, &cfg); err != nil {
		// Cache the default anyway to prevent repeated parse attempts;
		// the caller decides whether to surface the error.
		cache = &defaultConfig
		return cache, fmt.Errorf("config.toml parse error: %w", err)
	}

	cache = &cfg
	return cache, nil
}

// Reload forces a reload of the user config.
func Reload() (*Config, error) {
	cacheMu.Lock()
	cache = nil
	cacheMu.Unlock()
	return Load()
}

// ClearCache clears the cached config so the next Load() reads from disk.
// Exists for tests.
func ClearCache() {
	cacheMu.Lock()
	cache = nil
	cacheMu.Unlock()
}

// Save writes the config to config.toml using the atomic write pattern
// (tmp file + fsync + rename) and clears the cache.
func Save(cfg *Config) error {
	configPath, err := Path()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("# Mission Deck Configuration\n")
	buf.WriteString("# Edit this file, then restart the dashboard to apply changes\n\n")

	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	tmpPath := configPath + ".tmp"
	if err := os.WriteFile(tmpPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	// fsync before rename so the data reaches disk; rename alone is atomic
	// but may persist an empty file after power loss.
	if err := syncFile(tmpPath); err != nil {
		_ = err
	}

	if err := os.Rename(tmpPath, configPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to finalize config save: %w", err)
	}

	ClearCache()
	return nil
}

func syncFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}

// GetTheme returns the configured theme, defaulting to "dark".
func GetTheme() string {
	cfg, err := Load()
	if err != nil || cfg == nil {
		return "dark"
	}
	switch cfg.Theme {
	case "dark", "light", "system":
		return cfg.Theme
	default:
		return "dark"
	}
}

// ResolveTheme resolves the configured theme to "dark" or "light".
// If theme is "system", detects the OS dark mode setting.
// Falls back to "dark" on detection failure.
func ResolveTheme() string {
	theme := GetTheme()
	if theme != "system" {
		return theme
	}
	isDark, err := dark.IsDarkMode()
	if err != nil {
		return "dark"
	}
	if isDark {
		return "dark"
	}
	return "light"
}

// UpdateSettings defines self-update check behavior.
type UpdateSettings struct {
	// CheckEnabled controls the background new-release check on startup
	// Default: true
	CheckEnabled *bool `toml:"check_enabled"`

	// CheckIntervalHours is how long a check result is cached (default: 24)
	CheckIntervalHours int `toml:"check_interval_hours"`
}

// GetCheckEnabled returns whether update checks run, defaulting to true.
func (u *UpdateSettings) GetCheckEnabled() bool {
	if u.CheckEnabled == nil {
		return true
	}
	return *u.CheckEnabled
}

// GetUpdateSettings returns update settings with defaults applied.
func GetUpdateSettings() UpdateSettings {
	cfg, err := Load()
	if err != nil || cfg == nil {
		return UpdateSettings{CheckIntervalHours: 24}
	}

	settings := cfg.Updates
	if settings.CheckIntervalHours <= 0 {
		settings.CheckIntervalHours = 24
	}
	return settings
}

// GetLogSettings returns log settings with defaults applied.
func GetLogSettings() LogSettings {
	cfg, err := Load()
	if err != nil || cfg == nil {
		return LogSettings{
			DebugMaxMB:         10,
			DebugBackups:       5,
			DebugRetentionDays: 10,
			DebugCompress:      true,
			RingBufferMB:       4,
		}
	}

	settings := cfg.Logs
	if settings.DebugMaxMB <= 0 {
		settings.DebugMaxMB = 10
	}
	if settings.DebugBackups <= 0 {
		settings.DebugBackups = 5
	}
	if settings.DebugRetentionDays <= 0 {
		settings.DebugRetentionDays = 10
	}
	if settings.RingBufferMB <= 0 {
		settings.RingBufferMB = 4
	}
	// Compress defaults to true when the section is absent entirely.
	if cfg.Logs.DebugMaxMB == 0 && cfg.Logs.DebugBackups == 0 {
		settings.DebugCompress = true
	}
	return settings
}

// ResolveToken returns the bearer token, preferring the token file over the
// inline value. Returns empty string when neither is configured.
func (s *ServerSettings) ResolveToken() (string, error) {
	if s.TokenFile != "" {
		data, err := os.ReadFile(expandTilde(s.TokenFile))
		if err != nil {
			return "", fmt.Errorf("failed to read token file: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	return strings.TrimSpace(s.Token), nil
}

// expandTilde expands a leading ~/ to the user's home directory.
func expandTilde(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// CreateExampleConfig creates an example config file if none exists.
func CreateExampleConfig() error {
	configPath, err := Path()
	if err != nil {
		return err
	}

	// Don't overwrite existing config
	if _, err := os.Stat(configPath); err == nil {
		return nil
	}

	exampleConfig := `# Mission Deck User Configuration
# This file is loaded on startup.

# Color scheme: "dark" (default), "light", or "system"
# theme = "system"

# Control-plane connection
[server]
# Base URL of the control plane. WebSocket endpoints are derived from it.
url = "http://localhost:8420"
# Fixed application tag carried as the first WebSocket subprotocol entry
# app_token = "mission-deck"
# Bearer token file (rotated externally); takes precedence over token
# token_file = "~/.mission-deck/token"
# Inline bearer token
# token = ""
# REST request timeout in seconds (default: 15)
# request_timeout_secs = 15
# REST requests per second (default: 10)
# rate_limit_per_sec = 10

# Terminal session tuning. The defaults were chosen empirically;
# override only if your backend's shells behave differently.
# [console]
# Delay after socket open before the first resize frame (default: 150)
# settle_delay_ms = 150
# How long to wait for first output before nudging the prompt (default: 300)
# nudge_delay_ms = 300
# Delay before the single automatic reconnect after a handshake failure
# retry_delay_ms = 1000
# Gap between "reset" and "stty sane" in the reset sequence (default: 250)
# reset_pacing_ms = 250

# Tab persistence
# [tabs]
# Restore tabs from the previous run (default: true)
# restore = true
# Reload tab state written by another running instance (default: true)
# watch_external = true

# Dashboard panels
# [dashboard]
# Refresh interval for mission/workspace panels in seconds (default: 30)
# refresh_secs = 30

# Debug logging (written to ~/.mission-deck/mission-deck.log in debug mode)
# [logs]
# debug_level = "info"
# debug_format = "json"
# debug_max_mb = 10
# debug_backups = 5
# debug_retention_days = 10
# debug_compress = true
# ring_buffer_mb = 4
# pprof_enabled = false

# Self-update checks against GitHub releases
# [updates]
# check_enabled = true
# check_interval_hours = 24
`

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	return os.WriteFile(configPath, []byte(exampleConfig), 0o600)
}
