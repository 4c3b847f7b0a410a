package logging

import (
	"log/slog"
	"sync"
	"time"
)

// bucket accumulates occurrences of one (component, event) pair within a
// flush window.
type bucket struct {
	count     int64
	firstSeen time.Time
	fields    []slog.Attr
}

// Aggregator collapses high-frequency events into periodic summary lines.
// Terminal output and resize events would otherwise dominate the debug log.
type Aggregator struct {
	logger   *slog.Logger
	interval time.Duration

	mu      sync.Mutex
	buckets map[[2]string]*bucket

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewAggregator creates an aggregator flushing every intervalSecs seconds.
// A nil logger turns Record into a counter that never emits.
func NewAggregator(logger *slog.Logger, intervalSecs int) *Aggregator {
	if intervalSecs <= 0 {
		intervalSecs = 30
	}
	return &Aggregator{
		logger:   logger,
		interval: time.Duration(intervalSecs) * time.Second,
		buckets:  make(map[[2]string]*bucket),
		done:     make(chan struct{}),
	}
}

// Start launches the background flush goroutine.
func (a *Aggregator) Start() {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ticker := time.NewTicker(a.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				a.flush()
			case <-a.done:
				return
			}
		}
	}()
}

// Stop halts the flush goroutine and emits any pending summaries.
// Safe to call more than once.
func (a *Aggregator) Stop() {
	a.stopOnce.Do(func() {
		close(a.done)
		a.wg.Wait()
		a.flush()
	})
}

// Record counts one occurrence of an event. The most recent call's fields
// win; they carry context like the tab or session the event belonged to.
func (a *Aggregator) Record(component, event string, fields ...slog.Attr) {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := [2]string{component, event}
	b := a.buckets[key]
	if b == nil {
		b = &bucket{firstSeen: time.Now()}
		a.buckets[key] = b
	}
	b.count++
	if len(fields) > 0 {
		b.fields = fields
	}
}

func (a *Aggregator) flush() {
	a.mu.Lock()
	if len(a.buckets) == 0 {
		a.mu.Unlock()
		return
	}
	drained := a.buckets
	a.buckets = make(map[[2]string]*bucket)
	a.mu.Unlock()

	if a.logger == nil {
		return
	}

	for key, b := range drained {
		attrs := []any{
			slog.String("component", key[0]),
			slog.String("event", key[1]),
			slog.Int64("count", b.count),
			slog.Int64("span_ms", time.Since(b.firstSeen).Milliseconds()),
		}
		for _, f := range b.fields {
			attrs = append(attrs, f)
		}
		a.logger.Info("event_summary", attrs...)
	}
}
