package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const sweepInterval = time.Minute

// MemoryLimiter keeps one window per key in process memory. Each window is a
// rate.Limiter that never refills, so its burst is the request budget; used
// counts the requests it has granted.
type MemoryLimiter struct {
	window time.Duration
	max    int
	now    func() time.Time

	mu      sync.Mutex
	windows map[string]*memoryWindow

	stop     chan struct{}
	stopOnce sync.Once
}

type memoryWindow struct {
	limiter *rate.Limiter
	used    int
	resetAt time.Time
}

func NewMemoryLimiter(window time.Duration, max int) *MemoryLimiter {
	l := newMemoryLimiter(window, max, time.Now)
	go l.sweepLoop(sweepInterval)
	return l
}

func newMemoryLimiter(window time.Duration, max int, now func() time.Time) *MemoryLimiter {
	return &MemoryLimiter{
		window:  window,
		max:     max,
		now:     now,
		windows: make(map[string]*memoryWindow),
		stop:    make(chan struct{}),
	}
}

func (l *MemoryLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &memoryWindow{
			limiter: rate.NewLimiter(0, l.max),
			resetAt: now.Add(l.window),
		}
		l.windows[key] = w
	}

	allowed := w.limiter.AllowN(now, 1)
	if allowed {
		w.used++
	}
	return Decision{
		Allowed:   allowed,
		Limit:     l.max,
		Remaining: max(0, l.max-w.used),
		ResetAt:   w.resetAt,
	}, nil
}

// Len reports how many keys currently hold a window.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

func (l *MemoryLimiter) Close() error {
	l.stopOnce.Do(func() { close(l.stop) })
	return nil
}

func (l *MemoryLimiter) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-l.stop:
			return
		}
	}
}

// sweep drops windows that have already expired.
func (l *MemoryLimiter) sweep() {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	for key, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, key)
		}
	}
}
