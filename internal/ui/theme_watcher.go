package ui

import (
	"context"
	"log/slog"
	"sync"

	dark "github.com/thiagokokada/dark-mode-go"
)

// ThemeWatcher follows the OS dark mode setting so a "system" theme can
// flip the palette while the dashboard runs.
type ThemeWatcher struct {
	changes chan bool // true when the OS switched to dark
	cancel  context.CancelFunc
	once    sync.Once
}

// NewThemeWatcher starts watching for OS appearance changes. Returns nil
// when the platform offers no change notifications; the theme then stays
// at whatever was resolved at startup.
func NewThemeWatcher(parent context.Context) *ThemeWatcher {
	ctx, cancel := context.WithCancel(parent)

	events, errs, err := dark.WatchDarkMode(ctx)
	if err != nil {
		cancel()
		uiLog.Warn("theme_watcher_init_failed", slog.String("error", err.Error()))
		return nil
	}

	tw := &ThemeWatcher{
		changes: make(chan bool, 1),
		cancel:  cancel,
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case isDark, ok := <-events:
				if !ok {
					return
				}
				tw.publish(isDark)
			case err, ok := <-errs:
				if ok && err != nil {
					uiLog.Warn("theme_watcher_error", slog.String("error", err.Error()))
				}
			}
		}
	}()
	return tw
}

// publish replaces any pending value so the consumer always sees the
// latest appearance, never a stale intermediate flip.
func (tw *ThemeWatcher) publish(isDark bool) {
	for {
		select {
		case tw.changes <- isDark:
			return
		default:
			select {
			case <-tw.changes:
			default:
			}
		}
	}
}

// ChangeChannel returns the channel carrying appearance changes.
func (tw *ThemeWatcher) ChangeChannel() <-chan bool {
	return tw.changes
}

// Close stops the watch goroutine. Safe to call multiple times.
func (tw *ThemeWatcher) Close() {
	tw.once.Do(tw.cancel)
}
