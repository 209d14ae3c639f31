package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	start time.Time
	count int
}

// MemoryLimiter is a fixed-window limiter holding its counters in process
// memory. It suits single-instance deployments.
type MemoryLimiter struct {
	limit    int
	window   time.Duration
	now      func() time.Time
	interval time.Duration

	mu      sync.Mutex
	windows map[string]*window

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// MemoryOption customises a MemoryLimiter.
type MemoryOption func(*MemoryLimiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) MemoryOption {
	return func(l *MemoryLimiter) {
		if now != nil {
			l.now = now
		}
	}
}

// WithSweepInterval sets how often elapsed windows are dropped. Zero disables
// the background sweeper.
func WithSweepInterval(d time.Duration) MemoryOption {
	return func(l *MemoryLimiter) {
		l.interval = d
	}
}

// NewMemoryLimiter creates a limiter admitting limit attempts per window.
// Close must be called to stop the sweeper.
func NewMemoryLimiter(limit int, win time.Duration, opts ...MemoryOption) *MemoryLimiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if win <= 0 {
		win = DefaultWindow
	}
	l := &MemoryLimiter{
		limit:    limit,
		window:   win,
		now:      time.Now,
		interval: win,
		windows:  make(map[string]*window),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.interval > 0 {
		go l.sweepLoop()
	} else {
		close(l.done)
	}
	return l
}

// Allow admits the attempt when key has room left in its current window.
// Denied attempts are not counted.
func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= l.window {
		w = &window{start: now}
		l.windows[key] = w
	}
	if w.count >= l.limit {
		return false, nil
	}
	w.count++
	return true, nil
}

// Close stops the sweeper. It is safe to call more than once.
func (l *MemoryLimiter) Close() error {
	l.closeOnce.Do(func() {
		close(l.stop)
	})
	<-l.done
	return nil
}

func (l *MemoryLimiter) sweepLoop() {
	defer close(l.done)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

func (l *MemoryLimiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, w := range l.windows {
		if now.Sub(w.start) >= l.window {
			delete(l.windows, key)
		}
	}
}

func (l *MemoryLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}
